package store

import (
	"sort"

	"github.com/smith3v/aquamind/pkg/hydration"
	"github.com/smith3v/aquamind/pkg/phone"
)

// Table is the in-memory user set keyed by username.
type Table struct {
	users map[string]*UserRecord
}

func NewTable() *Table {
	return &Table{users: make(map[string]*UserRecord)}
}

func (t *Table) Len() int {
	return len(t.users)
}

func (t *Table) Get(username string) (*UserRecord, bool) {
	rec, ok := t.users[username]
	return rec, ok
}

func (t *Table) FindByPhone(number string) (*UserRecord, bool) {
	number = phone.Normalize(number)
	for _, rec := range t.users {
		if rec.PhoneNumber == number {
			return rec, true
		}
	}
	return nil, false
}

// Users returns records in registration order.
func (t *Table) Users() []*UserRecord {
	out := make([]*UserRecord, 0, len(t.users))
	for _, rec := range t.users {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

// Put inserts or replaces rec, assigning an ID when it has none.
func (t *Table) Put(rec UserRecord) {
	if rec.ID <= 0 {
		rec.ID = t.NextID()
	}
	t.users[rec.Username] = &rec
}

func (t *Table) NextID() int {
	maxID := 0
	for _, rec := range t.users {
		if rec.ID > maxID {
			maxID = rec.ID
		}
	}
	return maxID + 1
}

// Register validates in, computes the daily target and adds the user.
// The table is unchanged when an error is returned.
func (t *Table) Register(in Registration) (UserRecord, error) {
	if err := in.validate(); err != nil {
		return UserRecord{}, err
	}
	if _, exists := t.users[in.Username]; exists {
		return UserRecord{}, &ValidationError{Kind: DuplicateUser, Value: in.Username}
	}
	if _, exists := t.FindByPhone(in.PhoneNumber); exists {
		return UserRecord{}, &ValidationError{Kind: DuplicatePhone, Value: in.PhoneNumber}
	}

	gender := hydration.Gender(in.Gender)
	rec := UserRecord{
		ID:          t.NextID(),
		Username:    in.Username,
		PhoneNumber: in.PhoneNumber,
		Gender:      gender,
		Age:         in.Age,
		Weight:      in.Weight,
		DailyTarget: hydration.ComputeTarget(gender, in.Age, in.Weight),
	}
	t.users[rec.Username] = &rec
	return rec, nil
}
