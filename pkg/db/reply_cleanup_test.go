package db

import (
	"testing"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestCleanupReplyLogs(t *testing.T) {
	gdb, err := gorm.Open(sqlite.Open("file:reply_cleanup?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}
	if err := Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	DB = gdb

	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to access underlying DB: %v", err)
	}
	t.Cleanup(func() {
		if err := sqlDB.Close(); err != nil {
			t.Fatalf("failed to close database: %v", err)
		}
		DB = nil
	})

	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	raw := datatypes.JSON([]byte(`{"text":"done"}`))

	old := ReplyLog{Username: "alice", Response: "done", Share: 0.67, Raw: raw, ReceivedAt: now.Add(-40 * 24 * time.Hour)}
	recent := ReplyLog{Username: "alice", Response: "skip", Raw: raw, ReceivedAt: now.Add(-time.Hour)}
	for _, entry := range []*ReplyLog{&old, &recent} {
		if err := DB.Create(entry).Error; err != nil {
			t.Fatalf("failed to seed reply log: %v", err)
		}
	}

	deleted, err := CleanupReplyLogs(now.Add(-ReplyLogRetention))
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted row, got %d", deleted)
	}

	var remaining []ReplyLog
	if err := DB.Find(&remaining).Error; err != nil {
		t.Fatalf("failed to load reply logs: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Response != "skip" {
		t.Fatalf("unexpected remaining rows: %+v", remaining)
	}
}

func TestCleanupReplyLogsWithoutDB(t *testing.T) {
	DB = nil
	deleted, err := CleanupReplyLogs(time.Now())
	if err != nil || deleted != 0 {
		t.Fatalf("expected no-op without database, got %d, %v", deleted, err)
	}
}

func TestDialectorForRejectsJSONDriver(t *testing.T) {
	if _, err := dialectorFor(configForDriver("json")); err == nil {
		t.Fatal("expected error for json driver")
	}
	d, err := dialectorFor(configForDriver("sqlite"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Name() != "sqlite" {
		t.Fatalf("expected sqlite dialector, got %s", d.Name())
	}
}
