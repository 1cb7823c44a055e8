package reminders

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/smith3v/aquamind/pkg/alerts"
	"github.com/smith3v/aquamind/pkg/gateway"
	"github.com/smith3v/aquamind/pkg/hydration"
	"github.com/smith3v/aquamind/pkg/logger"
	"github.com/smith3v/aquamind/pkg/quotes"
	"github.com/smith3v/aquamind/pkg/store"
)

const (
	SourceSMS     = "sms"
	SourceAPI     = "api"
	SourceTimeout = "timeout"
)

type Options struct {
	NotificationLimit    int
	NotificationInterval time.Duration
	SummaryHour          int
	SummaryMinute        int
	ResetHour            int
	ResetMinute          int
	ResetIntakeOnCycle   bool
	// ReplyTimeout bounds the wait for a reply; past it the reply counts as skip.
	ReplyTimeout   time.Duration
	QuoteMaxLength int
}

func DefaultOptions() Options {
	return Options{
		NotificationLimit:    3,
		NotificationInterval: time.Minute,
		SummaryHour:          20,
		ResetIntakeOnCycle:   true,
		ReplyTimeout:         120 * time.Second,
		QuoteMaxLength:       100,
	}
}

// replyWindow counts replies consumed against the sends of the current
// cycle. A window is open while answered < reminders_sent.
type replyWindow struct {
	answered int
	sentAt   time.Time
	sending  bool
}

// Engine is the reminder/response state machine. The persisted
// reminders_sent counter is the state; Engine only adds the in-memory reply
// windows on top of it.
type Engine struct {
	registry *store.Registry
	sender   gateway.Sender
	quotes   quotes.Provider
	alerts   alerts.Notifier
	opts     Options
	now      func() time.Time

	mu      sync.Mutex
	windows map[string]*replyWindow
}

type EngineOption func(*Engine)

func WithAlerts(n alerts.Notifier) EngineOption {
	return func(e *Engine) {
		if n != nil {
			e.alerts = n
		}
	}
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(registry *store.Registry, sender gateway.Sender, provider quotes.Provider, opts Options, extra ...EngineOption) *Engine {
	defaults := DefaultOptions()
	if opts.NotificationLimit <= 0 {
		opts.NotificationLimit = defaults.NotificationLimit
	}
	if opts.NotificationInterval <= 0 {
		opts.NotificationInterval = defaults.NotificationInterval
	}
	if opts.QuoteMaxLength <= 0 {
		opts.QuoteMaxLength = defaults.QuoteMaxLength
	}
	e := &Engine{
		registry: registry,
		sender:   sender,
		quotes:   provider,
		alerts:   alerts.Nop{},
		opts:     opts,
		now:      time.Now,
		windows:  make(map[string]*replyWindow),
	}
	for _, opt := range extra {
		opt(e)
	}
	return e
}

func (e *Engine) Options() Options {
	return e.opts
}

func (e *Engine) Registry() *store.Registry {
	return e.registry
}

func (e *Engine) StateOf(ctx context.Context, username string) (Status, error) {
	rec, err := e.registry.Find(ctx, username)
	if err != nil {
		return Status{}, err
	}
	return StatusOf(rec, e.opts.NotificationLimit), nil
}

// SendReminder sends the next reminder of the cycle to username. It reports
// false without error when nothing is due: the user completed the cycle,
// has no target, or still has an unexpired reply window. Only a confirmed
// send advances reminders_sent.
func (e *Engine) SendReminder(ctx context.Context, username string) (bool, error) {
	rec, due, err := e.beginSend(ctx, username)
	if err != nil || !due {
		return false, err
	}

	// e.mu is not held across the quote lookup and the gateway call.
	share := hydration.PerNotification(rec.DailyTarget, e.opts.NotificationLimit)
	text := e.reminderText(ctx, share)
	sendErr := e.sender.Send(ctx, rec.PhoneNumber, text)

	e.mu.Lock()
	defer e.mu.Unlock()
	w := e.windowLocked(rec.Username)
	w.sending = false
	if sendErr != nil {
		logger.Error("failed to send reminder", "username", username, "error", sendErr)
		alerts.Raise(ctx, e.alerts, "reminder to %s failed: %v", username, sendErr)
		return false, sendErr
	}

	limit := e.opts.NotificationLimit
	updated, err := e.registry.Update(ctx, username, func(u *store.UserRecord) error {
		if u.RemindersSent < limit {
			u.RemindersSent++
		}
		return nil
	})
	if err != nil {
		if !store.IsPersistence(err) {
			return true, err
		}
		alerts.Raise(ctx, e.alerts, "saving reminder count for %s failed: %v", username, err)
	}
	w.sentAt = e.now()
	logger.Info("sent reminder", "username", username, "reminders_sent", updated.RemindersSent, "share", share)
	return true, nil
}

// beginSend decides under e.mu whether a reminder is due and, if so, marks
// the user's window as sending until SendReminder settles it.
func (e *Engine) beginSend(ctx context.Context, username string) (store.UserRecord, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.registry.Find(ctx, username)
	if err != nil {
		return store.UserRecord{}, false, err
	}
	if StatusOf(rec, e.opts.NotificationLimit).State == Completed || rec.DailyTarget <= 0 {
		return rec, false, nil
	}

	w := e.windowLocked(rec.Username)
	if w.sending {
		logger.Debug("reminder already in flight", "username", username)
		return rec, false, nil
	}
	if w.answered < rec.RemindersSent {
		if e.now().Sub(w.sentAt) < e.opts.ReplyTimeout {
			logger.Debug("reminder deferred, waiting for reply", "username", username)
			return rec, false, nil
		}
		e.expireLocked(ctx, rec, w)
	}
	w.sending = true
	return rec, true, nil
}

func (e *Engine) reminderText(ctx context.Context, share float64) string {
	quote := quotes.QuoteOrFallback(ctx, e.quotes, e.opts.QuoteMaxLength)
	text := hydration.ReminderMessage(quote, share)
	if utf8.RuneCountInString(text) > gateway.MaxMessageLength {
		text = hydration.ReminderMessage(quotes.Fallback, share)
	}
	return text
}

type Reply struct {
	Response Response
	// Added is the amount credited to water_intake.
	Added  float64
	Record store.UserRecord
}

func (e *Engine) HandleReply(ctx context.Context, username, text string) (Reply, error) {
	return e.HandleReplyFrom(ctx, SourceSMS, username, text)
}

// HandleReplyFrom applies a "done" or "skip" reply to the oldest unanswered
// reminder. A reply arriving after the reply timeout closes the window as
// skipped instead. Replies never change reminders_sent.
func (e *Engine) HandleReplyFrom(ctx context.Context, source, username, text string) (Reply, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.registry.Find(ctx, username)
	if err != nil {
		return Reply{}, err
	}
	resp, err := ParseResponse(text)
	if err != nil {
		logger.Info("rejected reply", "username", username, "text", text)
		return Reply{Record: rec}, err
	}
	w := e.windowLocked(rec.Username)
	if rec.RemindersSent == 0 || w.answered >= rec.RemindersSent {
		return Reply{Record: rec}, ErrNoReminderPending
	}
	now := e.now()
	if now.Sub(w.sentAt) >= e.opts.ReplyTimeout {
		e.expireLocked(ctx, rec, w)
		return Reply{Record: rec}, ErrNoReminderPending
	}

	out := Reply{Response: resp, Record: rec}
	if resp == Done {
		updated, err := e.registry.Update(ctx, username, func(u *store.UserRecord) error {
			out.Added = hydration.PerNotification(u.DailyTarget, e.opts.NotificationLimit)
			u.WaterIntake = hydration.Round2(u.WaterIntake + out.Added)
			return nil
		})
		out.Record = updated
		if err != nil {
			if !store.IsPersistence(err) {
				return Reply{}, err
			}
			alerts.Raise(ctx, e.alerts, "saving intake for %s failed: %v", username, err)
		}
	}
	w.answered++
	e.recordReply(ctx, store.ReplyEntry{
		Username:   username,
		Text:       text,
		Response:   string(resp),
		Share:      out.Added,
		Source:     source,
		ReceivedAt: now,
	})
	logger.Info("handled reply", "username", username, "response", resp, "water_intake", out.Record.WaterIntake)
	return out, nil
}

type PendingReply struct {
	Username    string
	PhoneNumber string
	SentAt      time.Time
}

// Pending lists users with an open, unexpired reply window, oldest send
// first.
func (e *Engine) Pending(ctx context.Context) ([]PendingReply, error) {
	users, err := e.registry.Users(ctx)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	var out []PendingReply
	for _, rec := range users {
		w := e.windowLocked(rec.Username)
		if w.answered >= rec.RemindersSent || now.Sub(w.sentAt) >= e.opts.ReplyTimeout {
			continue
		}
		out = append(out, PendingReply{Username: rec.Username, PhoneNumber: rec.PhoneNumber, SentAt: w.sentAt})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out, nil
}

// ExpireReplies closes every reply window older than the reply timeout as
// skipped and returns how many it closed.
func (e *Engine) ExpireReplies(ctx context.Context) (int, error) {
	users, err := e.registry.Users(ctx)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	expired := 0
	for _, rec := range users {
		w := e.windowLocked(rec.Username)
		if w.answered >= rec.RemindersSent || now.Sub(w.sentAt) < e.opts.ReplyTimeout {
			continue
		}
		e.expireLocked(ctx, rec, w)
		expired++
	}
	return expired, nil
}

func (e *Engine) expireLocked(ctx context.Context, rec store.UserRecord, w *replyWindow) {
	missed := rec.RemindersSent - w.answered
	w.answered = rec.RemindersSent
	logger.Info("no reply in time, counting as skip", "username", rec.Username, "missed", missed)
	e.recordReply(ctx, store.ReplyEntry{
		Username:   rec.Username,
		Response:   string(Skip),
		Source:     SourceTimeout,
		ReceivedAt: e.now(),
	})
}

func (e *Engine) windowLocked(username string) *replyWindow {
	w, ok := e.windows[username]
	if !ok {
		w = &replyWindow{}
		e.windows[username] = w
	}
	return w
}

func (e *Engine) recordReply(ctx context.Context, entry store.ReplyEntry) {
	if err := e.registry.RecordReply(ctx, entry); err != nil {
		logger.Error("failed to record reply", "username", entry.Username, "error", err)
	}
}

// SendSummary sends the daily summary to a user who completed the cycle.
// It mutates nothing.
func (e *Engine) SendSummary(ctx context.Context, username string) (bool, error) {
	rec, err := e.registry.Find(ctx, username)
	if err != nil {
		return false, err
	}
	if StatusOf(rec, e.opts.NotificationLimit).State != Completed {
		return false, nil
	}
	text := hydration.SummaryMessage(rec.WaterIntake, rec.DailyTarget)
	if err := e.sender.Send(ctx, rec.PhoneNumber, text); err != nil {
		logger.Error("failed to send summary", "username", username, "error", err)
		alerts.Raise(ctx, e.alerts, "summary to %s failed: %v", username, err)
		return false, err
	}
	pct := hydration.Percentage(rec.WaterIntake, rec.DailyTarget)
	logger.Info("sent summary", "username", username, "percentage", hydration.Round2(pct), "tier", hydration.TierFor(pct).String())
	return true, nil
}

// ResetCycle returns every user to NotStarted.
func (e *Engine) ResetCycle(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.registry.UpdateAll(ctx, func(u *store.UserRecord) {
		u.RemindersSent = 0
	})
	e.windows = make(map[string]*replyWindow)
	if err != nil {
		alerts.Raise(ctx, e.alerts, "cycle reset failed: %v", err)
		return err
	}
	logger.Info("reminder cycle reset")
	return nil
}

func (e *Engine) ResetIntake(ctx context.Context) error {
	err := e.registry.UpdateAll(ctx, func(u *store.UserRecord) {
		u.WaterIntake = 0
	})
	if err != nil {
		alerts.Raise(ctx, e.alerts, "intake reset failed: %v", err)
		return err
	}
	logger.Info("water intake reset")
	return nil
}

// Rollover ends the cycle: counters always reset, intake only when
// configured to.
func (e *Engine) Rollover(ctx context.Context) error {
	var errs []error
	if err := e.ResetCycle(ctx); err != nil {
		errs = append(errs, err)
	}
	if e.opts.ResetIntakeOnCycle {
		if err := e.ResetIntake(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
