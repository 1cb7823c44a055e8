package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/smith3v/aquamind/pkg/logger"
)

type Backend interface {
	Load(ctx context.Context) (*Table, error)
	Save(ctx context.Context, table *Table) error
}

// ReplyRecorder is implemented by backends that keep a reply audit log.
type ReplyRecorder interface {
	RecordReply(ctx context.Context, entry ReplyEntry) error
}

// Registry runs every operation as one locked load-modify-save against the
// backend. When a save fails the mutated in-memory table stays
// authoritative and is written again by the next successful operation.
type Registry struct {
	backend Backend
	locker  Locker

	mu    sync.Mutex
	cache *Table
	dirty bool
}

func NewRegistry(backend Backend, locker Locker) *Registry {
	if locker == nil {
		locker = &LocalLocker{}
	}
	return &Registry{backend: backend, locker: locker}
}

func (r *Registry) Register(ctx context.Context, in Registration) (UserRecord, error) {
	var rec UserRecord
	err := r.mutate(ctx, func(t *Table) (bool, error) {
		var err error
		rec, err = t.Register(in)
		return err == nil, err
	})
	if err != nil && !isPersistence(err) {
		return UserRecord{}, err
	}
	if err == nil {
		logger.Info("registered user", "username", rec.Username, "daily_target", rec.DailyTarget)
	}
	return rec, err
}

func (r *Registry) Find(ctx context.Context, username string) (UserRecord, error) {
	var rec UserRecord
	err := r.view(ctx, func(t *Table) error {
		found, ok := t.Get(username)
		if !ok {
			return ErrNotFound
		}
		rec = *found
		return nil
	})
	return rec, err
}

func (r *Registry) FindByPhone(ctx context.Context, number string) (UserRecord, error) {
	var rec UserRecord
	err := r.view(ctx, func(t *Table) error {
		found, ok := t.FindByPhone(number)
		if !ok {
			return ErrNotFound
		}
		rec = *found
		return nil
	})
	return rec, err
}

// Users returns a snapshot in registration order.
func (r *Registry) Users(ctx context.Context) ([]UserRecord, error) {
	var out []UserRecord
	err := r.view(ctx, func(t *Table) error {
		for _, rec := range t.Users() {
			out = append(out, *rec)
		}
		return nil
	})
	return out, err
}

// Update applies fn to one user and persists. fn returning an error leaves
// the record untouched.
func (r *Registry) Update(ctx context.Context, username string, fn func(*UserRecord) error) (UserRecord, error) {
	var out UserRecord
	err := r.mutate(ctx, func(t *Table) (bool, error) {
		rec, ok := t.Get(username)
		if !ok {
			return false, ErrNotFound
		}
		working := *rec
		if err := fn(&working); err != nil {
			out = *rec
			return false, err
		}
		*rec = working
		out = working
		return true, nil
	})
	return out, err
}

// UpdateAll applies fn to every user in registration order and persists once.
func (r *Registry) UpdateAll(ctx context.Context, fn func(*UserRecord)) error {
	return r.mutate(ctx, func(t *Table) (bool, error) {
		for _, rec := range t.Users() {
			fn(rec)
		}
		return true, nil
	})
}

func (r *Registry) RecordReply(ctx context.Context, entry ReplyEntry) error {
	recorder, ok := r.backend.(ReplyRecorder)
	if !ok {
		return nil
	}
	return recorder.RecordReply(ctx, entry)
}

func (r *Registry) view(ctx context.Context, fn func(*Table) error) error {
	unlock, err := r.locker.Lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	table, err := r.loadLocked(ctx)
	if err != nil {
		return err
	}
	return fn(table)
}

func (r *Registry) mutate(ctx context.Context, fn func(*Table) (bool, error)) error {
	unlock, err := r.locker.Lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	table, err := r.loadLocked(ctx)
	if err != nil {
		return err
	}
	changed, err := fn(table)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return r.saveLocked(ctx, table)
}

// loadLocked refreshes the cache from the backend. A read failure falls back
// to the last good snapshot; without one the operation is refused so an
// empty table is never saved over the real data.
func (r *Registry) loadLocked(ctx context.Context) (*Table, error) {
	if r.dirty && r.cache != nil {
		return r.cache, nil
	}
	table, err := r.backend.Load(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrCorrupt):
		logger.Warn("user store is corrupt, starting from an empty table", "error", err)
	default:
		if r.cache != nil {
			logger.Error("failed to load user store, using cached state", "error", err)
			return r.cache, nil
		}
		logger.Error("failed to load user store", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if table == nil {
		table = NewTable()
	}
	r.cache = table
	return table, nil
}

func (r *Registry) saveLocked(ctx context.Context, table *Table) error {
	r.cache = table
	if err := r.backend.Save(ctx, table); err != nil {
		r.dirty = true
		logger.Error("failed to save user store, keeping in-memory state", "error", err)
		var perr *PersistenceError
		if errors.As(err, &perr) {
			return err
		}
		return &PersistenceError{Op: "save", Err: err}
	}
	r.dirty = false
	return nil
}

func isPersistence(err error) bool {
	if errors.Is(err, ErrUnavailable) {
		return false
	}
	var perr *PersistenceError
	return errors.As(err, &perr)
}

// IsPersistence reports whether err is a backend failure that left the
// in-memory state applied.
func IsPersistence(err error) bool {
	return isPersistence(err)
}
