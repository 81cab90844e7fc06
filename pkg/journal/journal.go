// Package journal keeps a sqlite record of finished sorting tasks.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gwillem/sortbot/pkg/sequencer"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	label       TEXT NOT NULL,
	x           REAL NOT NULL,
	y           REAL NOT NULL,
	z           REAL NOT NULL,
	phases      TEXT NOT NULL,
	waypoints   INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	ticks       INTEGER NOT NULL,
	completed   INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS tasks_started_at ON tasks (started_at);
`

// Entry is one recorded task.
type Entry struct {
	ID        string
	Label     string
	X, Y, Z   float64
	Phases    []string
	Waypoints int
	Skipped   int
	Ticks     int
	Completed bool
	Error     string
	Started   time.Time
	Finished  time.Time
}

// Journal wraps the sqlite database.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal at path. Use ":memory:" for a
// throwaway journal.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// One writer; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores the outcome of a task.
func (j *Journal) Record(ctx context.Context, rep *sequencer.Report) error {
	phases := make([]string, len(rep.Phases))
	for i, p := range rep.Phases {
		phases[i] = p.String()
	}
	var errText string
	if rep.Err != nil {
		errText = rep.Err.Error()
	}
	pos := rep.Target.Position

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO tasks (id, label, x, y, z, phases, waypoints, skipped, ticks, completed, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.TaskID.String(), string(rep.Target.Label), pos.X, pos.Y, pos.Z,
		strings.Join(phases, ","), rep.Waypoints, rep.Skipped, rep.Ticks,
		rep.Completed(), errText, rep.Started.UnixNano(), rep.Finished.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record task %s: %w", rep.TaskID, err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, label, x, y, z, phases, waypoints, skipped, ticks, completed, error, started_at, finished_at
		FROM tasks ORDER BY started_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var phases string
		var started, finished int64
		if err := rows.Scan(&e.ID, &e.Label, &e.X, &e.Y, &e.Z, &phases, &e.Waypoints, &e.Skipped,
			&e.Ticks, &e.Completed, &e.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if phases != "" {
			e.Phases = strings.Split(phases, ",")
		}
		e.Started = time.Unix(0, started)
		e.Finished = time.Unix(0, finished)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats counts completed and aborted tasks.
func (j *Journal) Stats(ctx context.Context) (completed, aborted int, err error) {
	err = j.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(completed), 0), COALESCE(SUM(1 - completed), 0) FROM tasks`).Scan(&completed, &aborted)
	if err != nil {
		return 0, 0, fmt.Errorf("count tasks: %w", err)
	}
	return completed, aborted, nil
}
