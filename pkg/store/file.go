package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/smith3v/aquamind/pkg/hydration"
	"github.com/smith3v/aquamind/pkg/phone"
)

const fileFormatVersion = 1

// FileStore keeps the table in a single JSON document:
//
//	{"version": 1, "users": {"alice": {"id": 1, "username": "alice", ...}}}
//
// Older layouts (a "users" list, or a bare username map with camelCase
// phoneNumber) are accepted on load and rewritten canonically on save.
type FileStore struct {
	path string
	now  func() time.Time
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

func (s *FileStore) Path() string {
	return s.path
}

type fileDocument struct {
	Version int                   `json:"version"`
	Users   map[string]UserRecord `json:"users"`
}

// legacyRecord accepts every field spelling seen in older files.
type legacyRecord struct {
	ID             int     `json:"id"`
	Username       string  `json:"username"`
	PhoneNumber    string  `json:"phone_number"`
	PhoneNumberAlt string  `json:"phoneNumber"`
	Gender         string  `json:"gender"`
	Age            int     `json:"age"`
	Weight         float64 `json:"weight"`
	DailyTarget    float64 `json:"daily_target"`
	WaterIntake    float64 `json:"water_intake"`
	RemindersSent  int     `json:"reminders_sent"`
}

func (l legacyRecord) record(username string) UserRecord {
	if l.Username != "" {
		username = l.Username
	}
	number := l.PhoneNumber
	if number == "" {
		number = l.PhoneNumberAlt
	}
	gender := hydration.Gender(l.Gender)
	target := l.DailyTarget
	if target <= 0 && gender.Valid() && l.Age > 0 && l.Weight > 0 {
		target = hydration.ComputeTarget(gender, l.Age, l.Weight)
	}
	intake := l.WaterIntake
	if intake < 0 {
		intake = 0
	}
	return UserRecord{
		ID:            l.ID,
		Username:      username,
		PhoneNumber:   phone.Normalize(number),
		Gender:        gender,
		Age:           l.Age,
		Weight:        l.Weight,
		DailyTarget:   target,
		WaterIntake:   intake,
		RemindersSent: l.RemindersSent,
	}
}

// Load returns an empty table when the file does not exist. A file that
// cannot be parsed is moved aside and reported with ErrCorrupt alongside an
// empty table.
func (s *FileStore) Load(ctx context.Context) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return NewTable(), err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewTable(), nil
		}
		return NewTable(), &PersistenceError{Op: "load", Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return NewTable(), nil
	}

	table, err := decodeTable(data)
	if err != nil {
		quarantined := s.quarantine()
		return NewTable(), fmt.Errorf("%w: %s: %v (moved to %s)", ErrCorrupt, s.path, err, quarantined)
	}
	return table, nil
}

func decodeTable(data []byte) (*Table, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, err
	}

	table := NewTable()
	var pending []UserRecord
	raw, hasUsers := top["users"]
	switch {
	case hasUsers && len(bytes.TrimSpace(raw)) > 0 && bytes.TrimSpace(raw)[0] == '[':
		var list []legacyRecord
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		for _, entry := range list {
			pending = append(pending, entry.record(""))
		}
	case hasUsers:
		var keyed map[string]legacyRecord
		if err := json.Unmarshal(raw, &keyed); err != nil {
			return nil, err
		}
		for name, entry := range keyed {
			pending = append(pending, entry.record(name))
		}
	default:
		for name, value := range top {
			if name == "version" {
				continue
			}
			var entry legacyRecord
			if err := json.Unmarshal(value, &entry); err != nil {
				return nil, fmt.Errorf("user %q: %w", name, err)
			}
			pending = append(pending, entry.record(name))
		}
	}

	for _, rec := range pending {
		if rec.Username == "" {
			return nil, errors.New("user entry without username")
		}
		if _, dup := table.Get(rec.Username); dup {
			return nil, fmt.Errorf("duplicate username %q", rec.Username)
		}
		if rec.ID > 0 {
			table.Put(rec)
		}
	}
	// Entries without ids get the next free ones after all explicit ids.
	for _, rec := range pending {
		if rec.ID <= 0 {
			table.Put(rec)
		}
	}
	return table, nil
}

// Save writes the whole table to a temp file in the same directory and
// renames it over the target.
func (s *FileStore) Save(ctx context.Context, table *Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := fileDocument{Version: fileFormatVersion, Users: make(map[string]UserRecord, table.Len())}
	for _, rec := range table.Users() {
		doc.Users[rec.Username] = *rec
	}
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return &PersistenceError{Op: "encode", Err: err}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		cleanup()
		return &PersistenceError{Op: "save", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return &PersistenceError{Op: "save", Err: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return &PersistenceError{Op: "save", Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return &PersistenceError{Op: "save", Err: err}
	}
	return nil
}

func (s *FileStore) quarantine() string {
	target := fmt.Sprintf("%s.corrupt-%s", s.path, s.now().UTC().Format("20060102T150405"))
	if err := os.Rename(s.path, target); err != nil {
		return "nowhere: " + err.Error()
	}
	return target
}
