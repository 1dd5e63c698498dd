// Package journal keeps a SQLite record of dance sessions and audio
// classification changes. Writes happen on one background goroutine so
// the audio loop never waits on the disk.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/teslashibe/go-rave/pkg/coordinator"
)

// ErrClosed is returned by queries after Close.
var ErrClosed = errors.New("journal: closed")

// timeFormat is fixed width so text timestamps sort chronologically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Config configures the journal.
type Config struct {
	// Path of the database file. Empty disables the journal.
	// Default: "data/rave.db"
	Path string `yaml:"path" json:"path"`

	// Buffer is the number of events queued for the writer before new
	// ones are dropped. Default: 256
	Buffer int `yaml:"buffer" json:"buffer"`
}

// DefaultConfig returns the journal defaults.
func DefaultConfig() Config {
	return Config{Path: "data/rave.db", Buffer: 256}
}

// Session is one continuous dance.
type Session struct {
	ID          string     `json:"id"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	BPM         float64    `json:"bpm"`
	Energy      float64    `json:"energy"`
	Patterns    int        `json:"patterns"`
	LastPattern string     `json:"last_pattern,omitempty"`
	EndReason   string     `json:"end_reason,omitempty"`
}

// Classification is one change of the detected audio type.
type Classification struct {
	At         time.Time     `json:"at"`
	Stream     time.Duration `json:"stream"`
	AudioType  string        `json:"audio_type"`
	Confidence float64       `json:"confidence"`
	BPM        float64       `json:"bpm"`
	Energy     float64       `json:"energy"`
}

// Stats are cumulative writer counters.
type Stats struct {
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Errors  uint64 `json:"errors"`
}

// Journal is a coordinator.EventSink backed by SQLite.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	events chan coordinator.Event
	done   chan struct{}

	written atomic.Uint64
	dropped atomic.Uint64
	errors  atomic.Uint64
}

var _ coordinator.EventSink = (*Journal)(nil)

// Open opens or creates the database at cfg.Path and starts the writer.
func Open(cfg Config, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Buffer < 1 {
		cfg.Buffer = DefaultConfig().Buffer
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// One connection keeps writes serialized and in-memory databases shared.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}

	j := &Journal{
		db:     db,
		logger: logger.With("component", "journal"),
		events: make(chan coordinator.Event, cfg.Buffer),
		done:   make(chan struct{}),
	}
	go j.run()

	j.logger.Info("journal opened", "path", cfg.Path)
	return j, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		ended_at TEXT,
		bpm REAL NOT NULL DEFAULT 0,
		energy REAL NOT NULL DEFAULT 0,
		patterns INTEGER NOT NULL DEFAULT 0,
		last_pattern TEXT NOT NULL DEFAULT '',
		end_reason TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at DESC);

	CREATE TABLE IF NOT EXISTS classifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at TEXT NOT NULL,
		stream_ms INTEGER NOT NULL,
		audio_type TEXT NOT NULL,
		confidence REAL NOT NULL,
		bpm REAL NOT NULL,
		energy REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS faults (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at TEXT NOT NULL,
		move TEXT NOT NULL,
		error TEXT NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Record queues ev for the writer. It never blocks; when the queue is full
// or the journal is closed the event is dropped.
func (j *Journal) Record(ev coordinator.Event) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		j.dropped.Add(1)
		return
	}
	select {
	case j.events <- ev:
	default:
		j.dropped.Add(1)
	}
}

func (j *Journal) run() {
	defer close(j.done)
	for ev := range j.events {
		if err := j.write(ev); err != nil {
			j.errors.Add(1)
			j.logger.Warn("journal write failed", "kind", ev.Kind, "error", err)
			continue
		}
		j.written.Add(1)
	}
}

func (j *Journal) write(ev coordinator.Event) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	ts := at.UTC().Format(timeFormat)

	var err error
	switch ev.Kind {
	case coordinator.EventDanceStarted:
		_, err = j.db.Exec(`INSERT INTO sessions (id, started_at, bpm, energy) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`, ev.SessionID, ts, ev.BPM, ev.Energy)

	case coordinator.EventPattern:
		_, err = j.db.Exec(`UPDATE sessions SET patterns = patterns + 1, last_pattern = ? WHERE id = ?`,
			ev.Pattern, ev.SessionID)

	case coordinator.EventDanceStopped:
		_, err = j.db.Exec(`UPDATE sessions SET ended_at = ?, end_reason = ? WHERE id = ? AND ended_at IS NULL`,
			ts, ev.Reason, ev.SessionID)

	case coordinator.EventClassification:
		_, err = j.db.Exec(`INSERT INTO classifications (at, stream_ms, audio_type, confidence, bpm, energy)
			VALUES (?, ?, ?, ?, ?, ?)`,
			ts, ev.Stream.Milliseconds(), ev.AudioType.String(), ev.Confidence, ev.BPM, ev.Energy)

	case coordinator.EventMotionFault:
		_, err = j.db.Exec(`INSERT INTO faults (at, move, error) VALUES (?, ?, ?)`, ts, ev.Pattern, ev.Reason)

	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	return err
}

// Sessions returns the most recent sessions, newest first.
func (j *Journal) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if j.isClosed() {
		return nil, ErrClosed
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, started_at, ended_at, bpm, energy, patterns, last_pattern, end_reason
		FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			s       Session
			started string
			ended   sql.NullString
		)
		if err := rows.Scan(&s.ID, &started, &ended, &s.BPM, &s.Energy, &s.Patterns, &s.LastPattern, &s.EndReason); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if s.StartedAt, err = time.Parse(timeFormat, started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if ended.Valid {
			t, err := time.Parse(timeFormat, ended.String)
			if err != nil {
				return nil, fmt.Errorf("parse ended_at: %w", err)
			}
			s.EndedAt = &t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Classifications returns the most recent classification changes, newest
// first.
func (j *Journal) Classifications(ctx context.Context, limit int) ([]Classification, error) {
	if j.isClosed() {
		return nil, ErrClosed
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT at, stream_ms, audio_type, confidence, bpm, energy
		FROM classifications ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query classifications: %w", err)
	}
	defer rows.Close()

	var out []Classification
	for rows.Next() {
		var (
			c        Classification
			at       string
			streamMS int64
		)
		if err := rows.Scan(&at, &streamMS, &c.AudioType, &c.Confidence, &c.BPM, &c.Energy); err != nil {
			return nil, fmt.Errorf("scan classification: %w", err)
		}
		if c.At, err = time.Parse(timeFormat, at); err != nil {
			return nil, fmt.Errorf("parse at: %w", err)
		}
		c.Stream = time.Duration(streamMS) * time.Millisecond
		out = append(out, c)
	}
	return out, rows.Err()
}

// Stats returns the writer counters.
func (j *Journal) Stats() Stats {
	return Stats{
		Written: j.written.Load(),
		Dropped: j.dropped.Load(),
		Errors:  j.errors.Load(),
	}
}

func (j *Journal) isClosed() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.closed
}

// Close writes out queued events and closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.events)
	j.mu.Unlock()

	<-j.done
	j.logger.Info("journal closed", "written", j.written.Load(), "dropped", j.dropped.Load())
	return j.db.Close()
}
