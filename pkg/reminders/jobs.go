package reminders

import (
	"context"
	"errors"
	"time"

	"github.com/smith3v/aquamind/pkg/logger"
	"github.com/smith3v/aquamind/pkg/store"
)

const (
	rolloverJob  = "rollover"
	syncUsersJob = "sync-users"
)

func reminderJobName(username string) string { return "reminder:" + username }
func summaryJobName(username string) string  { return "summary:" + username }

// Schedule registers the rollover and user-sync jobs and the per-user jobs
// for everyone currently registered.
func (e *Engine) Schedule(ctx context.Context, s *Scheduler, now time.Time) error {
	s.DailyAt(rolloverJob, e.opts.ResetHour, e.opts.ResetMinute, now, func(ctx context.Context, _ time.Time) error {
		return e.Rollover(ctx)
	})
	s.Every(syncUsersJob, e.opts.NotificationInterval, now, func(ctx context.Context, now time.Time) error {
		_, err := e.SyncJobs(ctx, s, now)
		return err
	})
	_, err := e.SyncJobs(ctx, s, now)
	return err
}

// SyncJobs registers reminder and summary jobs for users that have none yet
// and returns how many users were added.
func (e *Engine) SyncJobs(ctx context.Context, s *Scheduler, now time.Time) (int, error) {
	users, err := e.registry.Users(ctx)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, rec := range users {
		if s.Has(reminderJobName(rec.Username)) {
			continue
		}
		e.scheduleUser(s, rec.Username, now)
		added++
	}
	if added > 0 {
		logger.Info("scheduled reminders", "new_users", added, "jobs", s.Len())
	}
	return added, nil
}

func (e *Engine) scheduleUser(s *Scheduler, username string, now time.Time) {
	s.Every(reminderJobName(username), e.opts.NotificationInterval, now, func(ctx context.Context, _ time.Time) error {
		_, err := e.SendReminder(ctx, username)
		if errors.Is(err, store.ErrNotFound) {
			unscheduleUser(s, username)
			return nil
		}
		return err
	})
	s.DailyAt(summaryJobName(username), e.opts.SummaryHour, e.opts.SummaryMinute, now, func(ctx context.Context, _ time.Time) error {
		_, err := e.SendSummary(ctx, username)
		if errors.Is(err, store.ErrNotFound) {
			unscheduleUser(s, username)
			return nil
		}
		return err
	})
}

func unscheduleUser(s *Scheduler, username string) {
	logger.Info("user no longer registered, dropping jobs", "username", username)
	s.Remove(reminderJobName(username))
	s.Remove(summaryJobName(username))
}
