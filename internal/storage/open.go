package storage

import (
	"context"
	"errors"
	"strings"

	logx "digestbot/pkg/logx"
)

// Store records run outcomes for later inspection.
type Store interface {
	AppendRun(ctx context.Context, r RunRecord) error
	// RecentRuns returns up to n records, newest first.
	RecentRuns(ctx context.Context, n int) ([]RunRecord, error)
	Close() error
}

// Open builds the store selected by cfg.Driver. Disabled storage ("" or
// "none") yields a nil Store with no error; callers treat nil as off.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "none":
		return nil, nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
