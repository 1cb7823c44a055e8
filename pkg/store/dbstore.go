package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/smith3v/aquamind/pkg/db"
	"github.com/smith3v/aquamind/pkg/hydration"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DBStore keeps the table in the users relation of a gorm database.
type DBStore struct {
	gdb *gorm.DB
}

func NewDBStore(gdb *gorm.DB) *DBStore {
	return &DBStore{gdb: gdb}
}

func (s *DBStore) Load(ctx context.Context) (*Table, error) {
	var rows []db.User
	if err := s.gdb.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return NewTable(), &PersistenceError{Op: "load", Err: err}
	}
	table := NewTable()
	for _, row := range rows {
		table.Put(fromRow(row))
	}
	return table, nil
}

// Save upserts every record and removes rows no longer in the table, in one
// transaction.
func (s *DBStore) Save(ctx context.Context, table *Table) error {
	records := table.Users()
	err := s.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		names := make([]string, 0, len(records))
		for _, rec := range records {
			row := toRow(*rec)
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"username", "phone_number", "gender", "age", "weight", "daily_target", "water_intake", "reminders_sent", "updated_at"}),
			}).Create(&row).Error; err != nil {
				return err
			}
			names = append(names, rec.Username)
		}
		query := tx.Model(&db.User{})
		if len(names) > 0 {
			query = query.Where("username NOT IN ?", names)
		} else {
			query = query.Where("1 = 1")
		}
		return query.Delete(&db.User{}).Error
	})
	if err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	return nil
}

// RecordReply appends a processed reply to the audit log.
func (s *DBStore) RecordReply(ctx context.Context, entry ReplyEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return &PersistenceError{Op: "record reply", Err: err}
	}
	row := db.ReplyLog{
		Username:   entry.Username,
		Response:   entry.Response,
		Share:      entry.Share,
		Raw:        datatypes.JSON(raw),
		ReceivedAt: entry.ReceivedAt.UTC(),
	}
	if err := s.gdb.WithContext(ctx).Create(&row).Error; err != nil {
		return &PersistenceError{Op: "record reply", Err: err}
	}
	return nil
}

// ReplyEntry describes one reply that changed, or deliberately did not
// change, a user's intake.
type ReplyEntry struct {
	Username   string    `json:"username"`
	Text       string    `json:"text"`
	Response   string    `json:"response"`
	Share      float64   `json:"share"`
	Source     string    `json:"source"`
	ReceivedAt time.Time `json:"received_at"`
}

func toRow(rec UserRecord) db.User {
	return db.User{
		ID:            uint(rec.ID),
		Username:      rec.Username,
		PhoneNumber:   rec.PhoneNumber,
		Gender:        string(rec.Gender),
		Age:           rec.Age,
		Weight:        rec.Weight,
		DailyTarget:   rec.DailyTarget,
		WaterIntake:   rec.WaterIntake,
		RemindersSent: rec.RemindersSent,
	}
}

func fromRow(row db.User) UserRecord {
	return UserRecord{
		ID:            int(row.ID),
		Username:      row.Username,
		PhoneNumber:   row.PhoneNumber,
		Gender:        hydration.Gender(row.Gender),
		Age:           row.Age,
		Weight:        row.Weight,
		DailyTarget:   row.DailyTarget,
		WaterIntake:   row.WaterIntake,
		RemindersSent: row.RemindersSent,
	}
}
