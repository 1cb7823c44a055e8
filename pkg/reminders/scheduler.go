// Package reminders drives the per-user reminder cycle: a tick-based job
// scheduler and the reminder/response state machine it runs.
package reminders

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/smith3v/aquamind/pkg/logger"
)

// TickInterval is how often Run checks for due jobs.
const TickInterval = time.Second

type Job func(ctx context.Context, now time.Time) error

type entry struct {
	name  string
	seq   int
	dueAt time.Time
	next  func(after time.Time) time.Time
	job   Job
}

// Scheduler owns a table of {due_at, job} entries. Due jobs run
// synchronously, one at a time, in registration order.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*entry
	seq     int
	tick    time.Duration
	clock   func() time.Time
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		entries: make(map[string]*entry),
		tick:    TickInterval,
		clock:   time.Now,
	}
}

// Every registers job to run every interval, first at now+interval.
// Registering an existing name replaces that job.
func (s *Scheduler) Every(name string, interval time.Duration, now time.Time, job Job) {
	s.add(name, now.Add(interval), func(after time.Time) time.Time {
		return after.Add(interval)
	}, job)
}

// DailyAt registers job for the next hour:minute wall-clock time in now's
// location and every day after.
func (s *Scheduler) DailyAt(name string, hour, minute int, now time.Time, job Job) {
	next := func(after time.Time) time.Time {
		y, m, d := after.Date()
		at := time.Date(y, m, d, hour, minute, 0, 0, after.Location())
		if !at.After(after) {
			at = time.Date(y, m, d+1, hour, minute, 0, 0, after.Location())
		}
		return at
	}
	s.add(name, next(now), next, job)
}

func (s *Scheduler) add(name string, dueAt time.Time, next func(time.Time) time.Time, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.seq
	if existing, ok := s.entries[name]; ok {
		seq = existing.seq
	} else {
		s.seq++
	}
	s.entries[name] = &entry{name: name, seq: seq, dueAt: dueAt, next: next, job: job}
}

func (s *Scheduler) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[name]
	return ok
}

func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, name)
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// NextDue reports when the named job fires next.
func (s *Scheduler) NextDue(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return e.dueAt, true
}

// RunPending runs every job due at now and returns how many ran. The
// context is checked between jobs; a running job is never interrupted.
func (s *Scheduler) RunPending(ctx context.Context, now time.Time) int {
	ran := 0
	for _, e := range s.due(now) {
		if ctx.Err() != nil {
			return ran
		}
		if err := e.job(ctx, now); err != nil {
			logger.Error("scheduled job failed", "job", e.name, "error", err)
		}
		ran++

		s.mu.Lock()
		// The job may have replaced or removed itself.
		if current, ok := s.entries[e.name]; ok && current == e {
			e.dueAt = e.next(now)
		}
		s.mu.Unlock()
	}
	return ran
}

func (s *Scheduler) due(now time.Time) []*entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entry
	for _, e := range s.entries {
		if !now.Before(e.dueAt) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b *entry) int {
		return cmp.Compare(a.seq, b.seq)
	})
	return out
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunPending(ctx, s.clock())
		}
	}
}
