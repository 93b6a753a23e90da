package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "wikiwatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadSources(ctx context.Context) ([]SourceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, base_url, cursor FROM sources ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SourceRecord
	for rows.Next() {
		var rec SourceRecord
		var cursorMS int64
		if err := rows.Scan(&rec.ID, &rec.BaseURL, &cursorMS); err != nil {
			return nil, err
		}
		if cursorMS > 0 {
			rec.Cursor = time.UnixMilli(cursorMS).UTC()
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		chs, err := s.loadChannels(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Channels = chs
	}
	return out, nil
}

func (s *sqliteStore) loadChannels(ctx context.Context, sourceID int64) ([]ChannelRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_id, kind, url, filter FROM channels WHERE source_id = ? ORDER BY id`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChannelRecord
	for rows.Next() {
		var ch ChannelRecord
		if err := rows.Scan(&ch.ID, &ch.SourceID, &ch.Kind, &ch.URL, &ch.Filter); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CommitCursor(ctx context.Context, sourceID int64, cursor time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sources SET cursor = ? WHERE id = ?`, cursor.UnixMilli(), sourceID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("commit cursor for source %d: %w", sourceID, ErrNotFound)
	}
	return nil
}

func (s *sqliteStore) AddSource(ctx context.Context, baseURL string) (int64, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return 0, errors.New("base url is required")
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO sources(base_url) VALUES(?)`, baseURL)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) AddChannel(ctx context.Context, sourceID int64, kind, url string, filter uint8) (int64, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" || strings.TrimSpace(url) == "" {
		return 0, errors.New("channel kind and url are required")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO channels(source_id, kind, url, filter) VALUES(?,?,?,?)`,
		sourceID, kind, url, filter)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
