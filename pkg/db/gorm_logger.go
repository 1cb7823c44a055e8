package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/smith3v/aquamind/pkg/logger"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	slowQueryThreshold = 200 * time.Millisecond
	defaultQueryLevel  = gormlogger.Warn
)

// queryLogger routes gorm output into the application logger under
// component=store.
type queryLogger struct {
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

// newGormLogger falls back to warn on an unknown level and reports it.
func newGormLogger(value string) (gormlogger.Interface, error) {
	l := &queryLogger{level: defaultQueryLevel, slowThreshold: slowQueryThreshold}
	if strings.TrimSpace(value) == "" {
		return l, nil
	}
	level, err := parseGormLogLevel(value)
	l.level = level
	return l, err
}

func (l *queryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *queryLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.printf(ctx, gormlogger.Info, msg, data...)
}

func (l *queryLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.printf(ctx, gormlogger.Warn, msg, data...)
}

func (l *queryLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.printf(ctx, gormlogger.Error, msg, data...)
}

func (l *queryLogger) printf(ctx context.Context, level gormlogger.LogLevel, msg string, data ...interface{}) {
	if !l.allows(level) {
		return
	}
	l.log(ctx, level, fmt.Sprintf(msg, data...))
}

// Trace logs failed queries at error, slow ones at warn and the rest at
// info. Missing rows are expected lookups and never logged.
func (l *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level == gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	switch {
	case err != nil && errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		if l.allows(gormlogger.Error) {
			sql, rows := fc()
			l.log(ctx, gormlogger.Error, "store query failed", "sql", sql, "rows", rows, "elapsed", elapsed, "error", err)
		}
	case l.slowThreshold > 0 && elapsed > l.slowThreshold:
		if l.allows(gormlogger.Warn) {
			sql, rows := fc()
			l.log(ctx, gormlogger.Warn, "slow store query", "sql", sql, "rows", rows, "elapsed", elapsed, "threshold", l.slowThreshold)
		}
	default:
		if l.allows(gormlogger.Info) {
			sql, rows := fc()
			l.log(ctx, gormlogger.Info, "store query", "sql", sql, "rows", rows, "elapsed", elapsed)
		}
	}
}

func (l *queryLogger) log(ctx context.Context, level gormlogger.LogLevel, msg string, args ...any) {
	args = append([]any{"component", "store"}, args...)
	logger.Logger.Log(ctx, slogLevelFor(level), msg, args...)
}

// allows applies both the gorm level and the application log level.
func (l *queryLogger) allows(level gormlogger.LogLevel) bool {
	if l.level == gormlogger.Silent || level > l.level {
		return false
	}
	switch level {
	case gormlogger.Info:
		return logger.Enabled(logger.INFO)
	case gormlogger.Warn:
		return logger.Enabled(logger.WARN)
	case gormlogger.Error:
		return logger.Enabled(logger.ERROR)
	}
	return false
}

func slogLevelFor(level gormlogger.LogLevel) slog.Level {
	switch level {
	case gormlogger.Error:
		return slog.LevelError
	case gormlogger.Warn:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func parseGormLogLevel(value string) (gormlogger.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "silent", "off":
		return gormlogger.Silent, nil
	case "error":
		return gormlogger.Error, nil
	case "warn", "warning":
		return gormlogger.Warn, nil
	case "info":
		return gormlogger.Info, nil
	}
	return defaultQueryLevel, fmt.Errorf("invalid gorm log level %q", value)
}
