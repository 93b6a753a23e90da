package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "wikiwatch/pkg/logx"
)

// Store is the persistence API used by the relay.
//
// The cursor contract is the load-bearing part: LoadSources returns each
// source with the cursor it last committed, and CommitCursor persists a
// new upper bound only after that source's dispatch has returned. A crash
// in between re-delivers the window on restart (at-least-once).
type Store interface {
	LoadSources(ctx context.Context) ([]SourceRecord, error)
	CommitCursor(ctx context.Context, sourceID int64, cursor time.Time) error

	AddSource(ctx context.Context, baseURL string) (int64, error)
	AddChannel(ctx context.Context, sourceID int64, kind, url string, filter uint8) (int64, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
