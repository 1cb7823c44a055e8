package reminders

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/smith3v/aquamind/pkg/hydration"
	"github.com/smith3v/aquamind/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFullCycleForAlice(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t)
	te.register(t, "alice", "+49 170 1234567")

	for i := 1; i <= 3; i++ {
		sent, err := te.SendReminder(ctx, "alice")
		require.NoError(t, err)
		require.True(t, sent, "reminder %d should be sent", i)

		reply, err := te.HandleReply(ctx, "alice", " Done ")
		require.NoError(t, err)
		assert.Equal(t, Done, reply.Response)
		assert.InDelta(t, 0.67, reply.Added, 1e-9)

		te.clock.Advance(time.Minute)
	}

	msgs := te.sender.messages()
	require.Len(t, msgs, 3)
	for _, m := range msgs {
		assert.Equal(t, "491701234567", m.phone)
		assert.Equal(t, "Drink water. Don't forget to drink 0.67l.", m.text)
	}

	alice := te.user(t, "alice")
	assert.Equal(t, 3, alice.RemindersSent)
	assert.InDelta(t, 2.01, alice.WaterIntake, 1e-9)

	status, err := te.StateOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, Completed, status.State)

	sent, err := te.SendReminder(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, sent, "no reminder after the limit")
	assert.Equal(t, 3, te.user(t, "alice").RemindersSent)

	sent, err = te.SendSummary(ctx, "alice")
	require.NoError(t, err)
	require.True(t, sent)
	msgs = te.sender.messages()
	summary := msgs[len(msgs)-1].text
	assert.True(t, strings.HasPrefix(summary, "Awesome!"), summary)
	assert.Contains(t, summary, "You drank 2.01l out of 2.00l today.")
	assert.Equal(t, hydration.TierGoalHit, hydration.TierFor(hydration.Percentage(alice.WaterIntake, alice.DailyTarget)))
}

func TestGatewayFailureDoesNotCount(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t)
	te.register(t, "alice", "491701234567")

	te.sender.fail = errGatewayDown
	sent, err := te.SendReminder(ctx, "alice")
	require.ErrorIs(t, err, errGatewayDown)
	assert.False(t, sent)
	assert.Equal(t, 0, te.user(t, "alice").RemindersSent)
	require.Len(t, te.alerts.texts, 1)
	assert.Contains(t, te.alerts.texts[0], "alice")

	te.sender.fail = nil
	sent, err = te.SendReminder(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, 1, te.user(t, "alice").RemindersSent)
}

func TestRepliesOnlyTouchIntake(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t)
	te.register(t, "alice", "491701234567")

	_, err := te.SendReminder(ctx, "alice")
	require.NoError(t, err)

	_, err = te.HandleReply(ctx, "alice", "maybe later")
	require.ErrorIs(t, err, ErrInvalidResponse)
	alice := te.user(t, "alice")
	assert.Equal(t, 1, alice.RemindersSent)
	assert.Zero(t, alice.WaterIntake)

	reply, err := te.HandleReply(ctx, "alice", "  SKIP\n")
	require.NoError(t, err)
	assert.Equal(t, Skip, reply.Response)
	assert.Zero(t, reply.Added)
	alice = te.user(t, "alice")
	assert.Equal(t, 1, alice.RemindersSent)
	assert.Zero(t, alice.WaterIntake)

	_, err = te.HandleReply(ctx, "alice", "done")
	assert.ErrorIs(t, err, ErrNoReminderPending, "one reply per reminder")
}

func TestReplyWithoutReminder(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t)
	te.register(t, "alice", "491701234567")

	_, err := te.HandleReply(ctx, "alice", "done")
	require.ErrorIs(t, err, ErrNoReminderPending)
	assert.Zero(t, te.user(t, "alice").WaterIntake)

	_, err = te.HandleReply(ctx, "nobody", "done")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDoneUsesCurrentTarget(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t)
	te.register(t, "alice", "491701234567")

	_, err := te.SendReminder(ctx, "alice")
	require.NoError(t, err)
	_, err = te.registry.Update(ctx, "alice", func(u *store.UserRecord) error {
		u.DailyTarget = 3.0
		return nil
	})
	require.NoError(t, err)

	reply, err := te.HandleReply(ctx, "alice", "done")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, reply.Added, 1e-9)
}

func TestReminderWaitsForReplyWindow(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t)
	te.register(t, "alice", "491701234567")

	sent, err := te.SendReminder(ctx, "alice")
	require.NoError(t, err)
	require.True(t, sent)

	te.clock.Advance(time.Minute)
	sent, err = te.SendReminder(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, sent, "window still open")

	pending, err := te.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "alice", pending[0].Username)

	te.clock.Advance(61 * time.Second)
	pending, err = te.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	sent, err = te.SendReminder(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, sent, "expired window counts as skip")
	alice := te.user(t, "alice")
	assert.Equal(t, 2, alice.RemindersSent)
	assert.Zero(t, alice.WaterIntake)
}

func TestExpireReplies(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t)
	te.register(t, "alice", "491701234567")
	te.register(t, "bob", "491709999999")

	_, err := te.SendReminder(ctx, "alice")
	require.NoError(t, err)
	te.clock.Advance(100 * time.Second)
	_, err = te.SendReminder(ctx, "bob")
	require.NoError(t, err)

	te.clock.Advance(30 * time.Second)
	expired, err := te.ExpireReplies(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	_, err = te.HandleReply(ctx, "alice", "done")
	assert.ErrorIs(t, err, ErrNoReminderPending)
	_, err = te.HandleReply(ctx, "bob", "done")
	assert.NoError(t, err)
}

func TestLateReplyAfterLastReminderCountsAsSkip(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t)
	te.register(t, "alice", "491701234567")
	for i := 0; i < 3; i++ {
		if i > 0 {
			te.clock.Advance(3 * time.Minute)
		}
		sent, err := te.SendReminder(ctx, "alice")
		require.NoError(t, err)
		require.True(t, sent)
	}

	te.clock.Advance(5 * time.Hour)
	reply, err := te.HandleReplyFrom(ctx, SourceAPI, "alice", "done")
	require.ErrorIs(t, err, ErrNoReminderPending)
	assert.Zero(t, reply.Added)
	assert.Zero(t, te.user(t, "alice").WaterIntake)

	_, err = te.HandleReplyFrom(ctx, SourceAPI, "alice", "done")
	assert.ErrorIs(t, err, ErrNoReminderPending, "window stays closed")
}

func TestReplyJustBeforeTimeoutIsCredited(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t)
	te.register(t, "alice", "491701234567")

	_, err := te.SendReminder(ctx, "alice")
	require.NoError(t, err)
	te.clock.Advance(119 * time.Second)
	reply, err := te.HandleReply(ctx, "alice", "done")
	require.NoError(t, err)
	assert.InDelta(t, 0.67, reply.Added, 1e-9)
}

func TestSendDoesNotBlockOtherUsers(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t)
	te.register(t, "alice", "491701234567")
	te.register(t, "bob", "491709999999")

	_, err := te.SendReminder(ctx, "bob")
	require.NoError(t, err)

	gate := &gatedSender{fakeSender: te.sender, phone: "491701234567", entered: make(chan struct{}), release: make(chan struct{})}
	te.Engine.sender = gate

	done := make(chan error, 1)
	go func() {
		_, err := te.SendReminder(ctx, "alice")
		done <- err
	}()
	<-gate.entered

	sent, err := te.SendReminder(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, sent, "second send while the first is in flight")

	replied := make(chan error, 1)
	go func() {
		pending, err := te.Pending(ctx)
		if err == nil && len(pending) != 1 {
			err = fmt.Errorf("expected bob pending, got %+v", pending)
		}
		if err == nil {
			_, err = te.HandleReply(ctx, "bob", "done")
		}
		replied <- err
	}()
	select {
	case err := <-replied:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reply for bob blocked behind alice's send")
	}

	close(gate.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, te.user(t, "alice").RemindersSent)
	assert.InDelta(t, 0.67, te.user(t, "bob").WaterIntake, 1e-9)
}

func TestSummaryOnlyForCompletedUsers(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, func(o *Options) { o.ReplyTimeout = 0 })
	te.register(t, "alice", "491701234567")

	sent, err := te.SendSummary(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, sent)

	for i := 0; i < 3; i++ {
		_, err := te.SendReminder(ctx, "alice")
		require.NoError(t, err)
	}
	before := te.user(t, "alice")
	sent, err = te.SendSummary(ctx, "alice")
	require.NoError(t, err)
	require.True(t, sent)

	msgs := te.sender.messages()
	assert.True(t, strings.HasPrefix(msgs[len(msgs)-1].text, "You're doing great, but could drink more."))
	assert.Equal(t, before, te.user(t, "alice"), "summary mutates nothing")
}

func TestRolloverResetsCounters(t *testing.T) {
	ctx := context.Background()
	for _, resetIntake := range []bool{true, false} {
		te := newTestEngine(t, func(o *Options) { o.ResetIntakeOnCycle = resetIntake })
		te.register(t, "alice", "491701234567")

		_, err := te.SendReminder(ctx, "alice")
		require.NoError(t, err)
		_, err = te.HandleReply(ctx, "alice", "done")
		require.NoError(t, err)

		require.NoError(t, te.Rollover(ctx))
		alice := te.user(t, "alice")
		assert.Equal(t, 0, alice.RemindersSent)
		if resetIntake {
			assert.Zero(t, alice.WaterIntake)
		} else {
			assert.InDelta(t, 0.67, alice.WaterIntake, 1e-9)
		}

		status, err := te.StateOf(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, NotStarted, status.State)
	}
}

func TestCorruptStoreSchedulesNoUsers(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t)
	require.NoError(t, os.WriteFile(te.path, []byte("{not json"), 0o644))

	s := NewScheduler()
	now := te.clock.Now()
	require.NoError(t, te.Schedule(ctx, s, now))
	assert.Equal(t, 2, s.Len(), "only rollover and sync jobs")

	ran := s.RunPending(ctx, now.Add(time.Minute))
	assert.Equal(t, 1, ran)
	assert.Empty(t, te.sender.messages())
}

func TestSchedulePicksUpNewUsers(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, func(o *Options) { o.ReplyTimeout = 0 })
	te.register(t, "alice", "491701234567")

	s := NewScheduler()
	now := te.clock.Now()
	require.NoError(t, te.Schedule(ctx, s, now))
	assert.True(t, s.Has("reminder:alice"))
	assert.True(t, s.Has("summary:alice"))

	te.register(t, "bob", "491709999999")
	now = te.clock.Advance(time.Minute)
	s.RunPending(ctx, now)
	assert.True(t, s.Has("reminder:bob"))

	// alice's reminder ran in the same tick; bob's first fires a minute later.
	assert.Equal(t, 1, te.user(t, "alice").RemindersSent)
	assert.Equal(t, 0, te.user(t, "bob").RemindersSent)

	now = te.clock.Advance(time.Minute)
	s.RunPending(ctx, now)
	assert.Equal(t, 2, te.user(t, "alice").RemindersSent)
	assert.Equal(t, 1, te.user(t, "bob").RemindersSent)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "not_started", StatusOf(store.UserRecord{}, 3).String())
	assert.Equal(t, "awaiting_response(2)", StatusOf(store.UserRecord{RemindersSent: 2}, 3).String())
	assert.Equal(t, "completed", StatusOf(store.UserRecord{RemindersSent: 3}, 3).String())
}

func TestParseResponse(t *testing.T) {
	cases := map[string]Response{"done": Done, " DONE ": Done, "Skip\n": Skip}
	for in, want := range cases {
		got, err := ParseResponse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	for _, in := range []string{"", "yes", "done!"} {
		_, err := ParseResponse(in)
		assert.ErrorIs(t, err, ErrInvalidResponse, in)
	}
}
