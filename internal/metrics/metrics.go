// Package metrics implements the append-only counters and gauges used by
// the pipeline and trim worker, persisted to a WAL-mode SQLite database
// when metrics are enabled, and stubbed out with the same surface when
// they are not.
package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Sink is the metrics surface every caller uses; callers never branch on
// whether metrics are enabled.
type Sink interface {
	Add(ctx context.Context, name string, value float64, tag string) error
	Increment(ctx context.Context, name string, delta float64, tag string) error
	AddArray(ctx context.Context, name string, values []float64, tags []string) error
	IncrementArray(ctx context.Context, name string, deltas []float64, tags []string) error
	ByName(ctx context.Context, name string) ([]Point, error)
	ByTagAndName(ctx context.Context, tag, name string) ([]Point, error)
	Hosts(ctx context.Context) ([]string, error)
	Close() error
}

// Point is a single recorded sample.
type Point struct {
	Name      string
	Value     float64
	Tag       string
	Timestamp time.Time
}

// New opens (creating if needed) the metrics database at dbPath and
// returns a Sink backed by it. If dbPath is empty, a no-op stub with the
// same surface is returned instead.
func New(dbPath string) (Sink, error) {
	if dbPath == "" {
		return &stubSink{totals: map[string]float64{}}, nil
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening metrics db %s: %w", dbPath, err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL on metrics db: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS metrics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			value REAL NOT NULL,
			tag TEXT,
			timestamp TEXT NOT NULL
		)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating metrics table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_metrics_name_ts ON metrics(name, timestamp)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating metrics name index: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_metrics_tag ON metrics(tag)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating metrics tag index: %w", err)
	}

	return &sqliteSink{db: db, totals: map[string]float64{}}, nil
}

// NewInDir is a convenience wrapper that places the database at
// <dir>/metrics.db, or returns a stub if dir is empty.
func NewInDir(dir string) (Sink, error) {
	if dir == "" {
		return New("")
	}
	return New(filepath.Join(dir, "metrics.db"))
}

type sqliteSink struct {
	db *sql.DB

	mu     sync.Mutex
	totals map[string]float64
}

func totalKey(name, tag string) string {
	return name + "\x00" + tag
}

func (s *sqliteSink) insert(ctx context.Context, name string, value float64, tag string) error {
	var tagArg any
	if tag != "" {
		tagArg = tag
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO metrics(name, value, tag, timestamp) VALUES (?, ?, ?, ?)`,
		name, value, tagArg, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("recording metric %s: %w", name, err)
	}
	return nil
}

func (s *sqliteSink) Add(ctx context.Context, name string, value float64, tag string) error {
	return s.insert(ctx, name, value, tag)
}

func (s *sqliteSink) Increment(ctx context.Context, name string, delta float64, tag string) error {
	s.mu.Lock()
	key := totalKey(name, tag)
	s.totals[key] += delta
	total := s.totals[key]
	s.mu.Unlock()
	return s.insert(ctx, name, total, tag)
}

func (s *sqliteSink) AddArray(ctx context.Context, name string, values []float64, tags []string) error {
	return zipEach(values, tags, func(v float64, t string) error { return s.Add(ctx, name, v, t) })
}

func (s *sqliteSink) IncrementArray(ctx context.Context, name string, deltas []float64, tags []string) error {
	return zipEach(deltas, tags, func(v float64, t string) error { return s.Increment(ctx, name, v, t) })
}

func zipEach(values []float64, tags []string, f func(float64, string) error) error {
	for i, v := range values {
		tag := ""
		if i < len(tags) {
			tag = tags[i]
		}
		if err := f(v, tag); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteSink) query(ctx context.Context, sqlText string, args ...any) ([]Point, error) {
	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("querying metrics: %w", err)
	}
	defer rows.Close()

	var out []Point
	for rows.Next() {
		var p Point
		var tag sql.NullString
		var ts string
		if err := rows.Scan(&p.Name, &p.Value, &tag, &ts); err != nil {
			return nil, fmt.Errorf("scanning metric row: %w", err)
		}
		p.Tag = tag.String
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			p.Timestamp = t
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *sqliteSink) ByName(ctx context.Context, name string) ([]Point, error) {
	return s.query(ctx, `SELECT name, value, tag, timestamp FROM metrics WHERE name = ? ORDER BY timestamp`, name)
}

func (s *sqliteSink) ByTagAndName(ctx context.Context, tag, name string) ([]Point, error) {
	return s.query(ctx, `SELECT name, value, tag, timestamp FROM metrics WHERE tag = ? AND name = ? ORDER BY timestamp`, tag, name)
}

func (s *sqliteSink) Hosts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT tag FROM metrics WHERE tag LIKE 'host=%'`)
	if err != nil {
		return nil, fmt.Errorf("querying metric hosts: %w", err)
	}
	defer rows.Close()

	var hosts []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scanning metric host: %w", err)
		}
		if strings.HasPrefix(h, "host=") {
			hosts = append(hosts, h)
		}
	}
	return hosts, rows.Err()
}

func (s *sqliteSink) Close() error {
	return s.db.Close()
}

// stubSink discards every write; used when metrics_dir is absent.
type stubSink struct {
	mu     sync.Mutex
	totals map[string]float64
}

func (s *stubSink) Add(ctx context.Context, name string, value float64, tag string) error { return nil }

func (s *stubSink) Increment(ctx context.Context, name string, delta float64, tag string) error {
	s.mu.Lock()
	s.totals[totalKey(name, tag)] += delta
	s.mu.Unlock()
	return nil
}

func (s *stubSink) AddArray(ctx context.Context, name string, values []float64, tags []string) error {
	return nil
}

func (s *stubSink) IncrementArray(ctx context.Context, name string, deltas []float64, tags []string) error {
	for i, d := range deltas {
		tag := ""
		if i < len(tags) {
			tag = tags[i]
		}
		_ = s.Increment(ctx, name, d, tag)
	}
	return nil
}

func (s *stubSink) ByName(ctx context.Context, name string) ([]Point, error)          { return nil, nil }
func (s *stubSink) ByTagAndName(ctx context.Context, tag, name string) ([]Point, error) { return nil, nil }
func (s *stubSink) Hosts(ctx context.Context) ([]string, error)                        { return nil, nil }
func (s *stubSink) Close() error                                                       { return nil }
