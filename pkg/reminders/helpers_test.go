package reminders

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/smith3v/aquamind/pkg/quotes"
	"github.com/smith3v/aquamind/pkg/store"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	phone string
	text  string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	fail error
}

func (f *fakeSender) Send(_ context.Context, phoneNumber, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, sentMessage{phone: phoneNumber, text: text})
	return nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

// gatedSender blocks sends to phone until release is closed.
type gatedSender struct {
	*fakeSender
	phone   string
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSender) Send(ctx context.Context, phoneNumber, text string) error {
	if phoneNumber == g.phone {
		close(g.entered)
		<-g.release
	}
	return g.fakeSender.Send(ctx, phoneNumber, text)
}

type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (r *recordingNotifier) Notify(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

var errGatewayDown = errors.New("gateway down")

type testEngine struct {
	*Engine
	sender   *fakeSender
	alerts   *recordingNotifier
	clock    *fakeClock
	registry *store.Registry
	path     string
}

func newTestEngine(t *testing.T, mutate ...func(*Options)) *testEngine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "user_data.json")
	registry := store.NewRegistry(store.NewFileStore(path), nil)
	opts := DefaultOptions()
	for _, fn := range mutate {
		fn(&opts)
	}
	te := &testEngine{
		sender:   &fakeSender{},
		alerts:   &recordingNotifier{},
		clock:    newFakeClock(),
		registry: registry,
		path:     path,
	}
	te.Engine = NewEngine(registry, te.sender, quotes.NewStatic("Drink water."), opts,
		WithAlerts(te.alerts),
		WithClock(te.clock.Now),
	)
	return te
}

func (te *testEngine) register(t *testing.T, username, number string) store.UserRecord {
	t.Helper()
	rec, err := te.registry.Register(context.Background(), store.Registration{
		Username:    username,
		PhoneNumber: number,
		Gender:      "female",
		Age:         25,
		Weight:      60,
	})
	require.NoError(t, err)
	return rec
}

func (te *testEngine) user(t *testing.T, username string) store.UserRecord {
	t.Helper()
	rec, err := te.registry.Find(context.Background(), username)
	require.NoError(t, err)
	return rec
}
