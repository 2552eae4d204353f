package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/chanlight/dbopen"
	"github.com/hazyhaar/chanlight/highlight"
	"github.com/hazyhaar/chanlight/watch"
)

// Schema for the key-value table. updated_at is in milliseconds and only
// ever grows, which lets a poller in another process notice writes.
const Schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL DEFAULT '[]',
	updated_at INTEGER NOT NULL
);
`

// SQLite is a Store backed by a single SQLite table.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time

	busyTimeout time.Duration
}

// Option configures a SQLite store.
type Option func(*SQLite)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *SQLite) { s.logger = l }
}

// WithClock overrides time.Now for updated_at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *SQLite) { s.now = now }
}

// WithBusyTimeout sets how long Open waits on a database locked by the
// other process. It has no effect on New.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *SQLite) { s.busyTimeout = d }
}

// New wraps an open database. The caller must have applied Schema.
func New(db *sql.DB, opts ...Option) *SQLite {
	s := &SQLite{db: db, logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open opens (creating if needed) the settings database at path.
func Open(path string, opts ...Option) (*SQLite, error) {
	var probe SQLite
	for _, o := range opts {
		o(&probe)
	}
	dbOpts := []dbopen.Option{dbopen.WithMkdirAll(), dbopen.WithSchema(Schema)}
	if probe.busyTimeout > 0 {
		dbOpts = append(dbOpts, dbopen.WithBusyTimeout(int(probe.busyTimeout.Milliseconds())))
	}
	db, err := dbopen.Open(path, dbOpts...)
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	return New(db, opts...), nil
}

// DB exposes the underlying handle.
func (s *SQLite) DB() *sql.DB { return s.db }

// Close closes the database. Later calls fail with ErrContextInvalidated.
func (s *SQLite) Close() error { return s.db.Close() }

// Load returns the stored set, normalised.
func (s *SQLite) Load(ctx context.Context) (highlight.Set, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, Key).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return highlight.Set{}, nil
	case err != nil:
		return nil, s.classify("load", err)
	}

	var set highlight.Set
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		s.logger.Warn("settings: malformed record, using empty set", "key", Key, "error", err)
		return highlight.Set{}, nil
	}
	return set.Normalize(), nil
}

// Save replaces the stored set.
func (s *SQLite) Save(ctx context.Context, set highlight.Set) error {
	if set == nil {
		set = highlight.Set{}
	}
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}
	_, err = dbopen.Exec(ctx, s.db, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = MAX(kv.updated_at + 1, excluded.updated_at)`,
		Key, string(data), s.now().UnixMilli())
	if err != nil {
		return s.classify("save", err)
	}
	s.logger.Debug("settings: saved", "entries", len(set))
	return nil
}

// Watcher returns a poller that fires when another connection or process
// saves the set.
func (s *SQLite) Watcher(interval time.Duration) *watch.Watcher {
	return watch.New(s.db, watch.Options{
		Interval: interval,
		Debounce: 250 * time.Millisecond,
		Detector: watch.MaxColumnDetector("kv", "updated_at"),
		Logger:   s.logger,
	})
}

func (s *SQLite) classify(op string, err error) error {
	if dbopen.IsClosed(err) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s: %v", ErrContextInvalidated, op, err)
	}
	return fmt.Errorf("settings: %s: %w", op, err)
}
