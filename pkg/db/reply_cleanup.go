package db

import (
	"context"
	"time"

	"github.com/smith3v/aquamind/pkg/logger"
)

const (
	ReplyLogCleanupInterval = time.Hour
	ReplyLogRetention       = 30 * 24 * time.Hour
)

func CleanupReplyLogs(before time.Time) (int64, error) {
	if DB == nil {
		return 0, nil
	}
	res := DB.Where("received_at < ?", before).Delete(&ReplyLog{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func StartReplyLogCleanup(ctx context.Context, interval, retention time.Duration) {
	if interval <= 0 {
		interval = ReplyLogCleanupInterval
	}
	if retention <= 0 {
		retention = ReplyLogRetention
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			deleted, err := CleanupReplyLogs(now.UTC().Add(-retention))
			if err != nil {
				logger.Error("failed to cleanup reply logs", "error", err)
				continue
			}
			if deleted > 0 {
				logger.Debug("cleaned up reply logs", "deleted", deleted)
			}
		}
	}
}
