package storage

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("storage: not found")

// Config configures the persistent store.
//
// Driver values:
//   - "sqlite": SQLite database file (the default and currently only driver)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

// SourceRecord is one monitored site as persisted, with its channels.
type SourceRecord struct {
	ID       int64
	BaseURL  string
	Cursor   time.Time
	Channels []ChannelRecord
}

// ChannelRecord is one delivery destination of a source.
//
// Kind selects the transport ("discord" or "telegram"); URL is the
// transport endpoint; Filter is a bitmask over event categories.
type ChannelRecord struct {
	ID       int64
	SourceID int64
	Kind     string
	URL      string
	Filter   uint8
}
