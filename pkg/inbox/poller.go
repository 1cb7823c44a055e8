package inbox

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/smith3v/aquamind/pkg/gateway"
	"github.com/smith3v/aquamind/pkg/logger"
	"github.com/smith3v/aquamind/pkg/reminders"
	"github.com/smith3v/aquamind/pkg/store"
)

const DefaultPollInterval = 10 * time.Second

type MessageSource interface {
	Messages(ctx context.Context, teamName string) ([]gateway.InboundMessage, error)
}

// Poller feeds new team inbox messages to the reminder engine. Messages
// already in the inbox before the poller started are never processed.
type Poller struct {
	source     MessageSource
	team       string
	engine     *reminders.Engine
	onboarding *Onboarding
	interval   time.Duration
	started    time.Time

	// seen holds the keys of the last fetched batch only, so it never
	// outgrows the gateway inbox.
	seen   map[string]struct{}
	primed bool
}

type Option func(*Poller)

func WithOnboarding(o *Onboarding) Option {
	return func(p *Poller) {
		p.onboarding = o
	}
}

func WithInterval(interval time.Duration) Option {
	return func(p *Poller) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

// WithStart overrides the cutoff for messages that predate the poller.
func WithStart(t time.Time) Option {
	return func(p *Poller) {
		p.started = t
	}
}

func NewPoller(source MessageSource, team string, engine *reminders.Engine, opts ...Option) *Poller {
	p := &Poller{
		source:   source,
		team:     team,
		engine:   engine,
		interval: DefaultPollInterval,
		started:  time.Now(),
		seen:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func messageKey(m gateway.InboundMessage) string {
	return m.Phone + "|" + strconv.FormatInt(m.ReceivedAt.UnixMilli(), 10) + "|" + m.Text
}

// Poll processes one batch: the newest reply of each user with an open
// reply window, registrations from unknown numbers, then expiry of stale
// windows.
func (p *Poller) Poll(ctx context.Context) error {
	msgs, err := p.source.Messages(ctx, p.team)
	if err != nil {
		return err
	}

	pending, err := p.engine.Pending(ctx)
	if err != nil {
		return err
	}
	waiting := make(map[string]reminders.PendingReply, len(pending))
	for _, pr := range pending {
		waiting[pr.PhoneNumber] = pr
	}

	replies := make(map[string]gateway.InboundMessage)
	var order []string
	for _, m := range p.fresh(msgs) {
		if pr, ok := waiting[m.Phone]; ok {
			if !m.ReceivedAt.IsZero() && m.ReceivedAt.Before(pr.SentAt) {
				continue
			}
			if _, queued := replies[pr.Username]; !queued {
				order = append(order, pr.Username)
			}
			replies[pr.Username] = m
			continue
		}
		p.unsolicited(ctx, m)
	}

	for _, username := range order {
		m := replies[username]
		_, err := p.engine.HandleReplyFrom(ctx, reminders.SourceSMS, username, m.Text)
		switch {
		case err == nil:
		case errors.Is(err, reminders.ErrInvalidResponse), errors.Is(err, reminders.ErrNoReminderPending):
			logger.Info("ignored reply", "username", username, "text", m.Text, "reason", err)
		default:
			logger.Error("failed to handle reply", "username", username, "error", err)
		}
	}

	if _, err := p.engine.ExpireReplies(ctx); err != nil {
		logger.Error("failed to expire reply windows", "error", err)
	}
	return nil
}

// fresh returns unseen messages in arrival order and marks them seen. On
// the first call, messages older than the poller are only marked. Keys of
// messages that left the inbox are dropped.
func (p *Poller) fresh(msgs []gateway.InboundMessage) []gateway.InboundMessage {
	var out []gateway.InboundMessage
	next := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		key := messageKey(m)
		next[key] = struct{}{}
		if _, ok := p.seen[key]; ok {
			continue
		}
		if !p.primed && (m.ReceivedAt.IsZero() || m.ReceivedAt.Before(p.started)) {
			continue
		}
		out = append(out, m)
	}
	p.seen = next
	p.primed = true
	return out
}

func (p *Poller) unsolicited(ctx context.Context, m gateway.InboundMessage) {
	_, err := p.engine.Registry().FindByPhone(ctx, m.Phone)
	switch {
	case err == nil:
		logger.Debug("message from registered user outside a reply window", "phone", m.Phone)
	case errors.Is(err, store.ErrNotFound) && p.onboarding != nil:
		if _, err := p.onboarding.Handle(ctx, m); err != nil {
			logger.Debug("onboarding did not register sender", "phone", m.Phone, "error", err)
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		logger.Error("failed to look up sender", "phone", m.Phone, "error", err)
	}
}

// Run polls every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Poll(ctx); err != nil {
				logger.Error("inbox poll failed", "error", err)
			}
		}
	}
}
