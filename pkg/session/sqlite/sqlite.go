// Package sqlite implements an alternative session catalog backed by
// SQLite, usable in place of jsonl.Manager's index.json when a process
// wants to query sessions (filter by status, sort by modified time) without
// scanning every *.jsonl file. The session logs themselves remain the
// source of truth; Catalog only mirrors SessionInfo for fast lookup.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mariozechner/coding-agent/session/pkg/session"
)

// Catalog is a SQLite-backed mirror of session.SessionInfo rows, with a
// Subscribe/notify fan-out identical in shape to jsonl.Manager's.
type Catalog struct {
	db *sql.DB

	mu   sync.RWMutex
	subs []chan string

	events chan string
}

// Open creates (or reuses) a SQLite catalog at dbPath, running migrations
// and starting the notification broadcast loop.
func Open(dbPath string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite catalog: %w", err)
	}

	c := &Catalog{
		db:     db,
		events: make(chan string, 100),
	}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite catalog: %w", err)
	}

	go c.broadcastLoop()
	return c, nil
}

func (c *Catalog) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	path          TEXT NOT NULL,
	name          TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'active',
	cwd           TEXT NOT NULL DEFAULT '',
	message_count INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL,
	modified_at   DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_modified ON sessions(modified_at DESC);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
`
	_, err := c.db.Exec(schema)
	return err
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// Upsert records or updates a session's catalog row. Nothing in this tree
// calls it automatically (jsonl.Manager does not write to the catalog);
// callers keep the catalog in step with the session logs themselves.
func (c *Catalog) Upsert(ctx context.Context, info session.SessionInfo) error {
	const q = `
INSERT INTO sessions (id, path, name, status, cwd, message_count, created_at, modified_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	path = excluded.path,
	name = excluded.name,
	status = excluded.status,
	cwd = excluded.cwd,
	message_count = excluded.message_count,
	modified_at = excluded.modified_at
`
	_, err := c.db.ExecContext(ctx, q,
		info.ID, info.Path, info.Name, info.Status,
		info.Cwd, info.MessageCount, info.Created, info.Modified)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", info.ID, err)
	}
	c.publish(info.ID)
	return nil
}

// SetStatus updates only the status column, returning an error if the
// session is not cataloged.
func (c *Catalog) SetStatus(ctx context.Context, id, status string) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, modified_at = ? WHERE id = ?`,
		status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("set status for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	c.publish(id)
	return nil
}

// IncrementMessageCount bumps a session's cached message count, used so
// List callers don't need to replay the log to show a count in the UI.
func (c *Catalog) IncrementMessageCount(ctx context.Context, id string, by int) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE sessions SET message_count = message_count + ?, modified_at = ? WHERE id = ?`,
		by, time.Now(), id)
	if err != nil {
		return fmt.Errorf("increment message count for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	c.publish(id)
	return nil
}

// Get returns a single session's catalog row.
func (c *Catalog) Get(ctx context.Context, id string) (session.SessionInfo, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT id, path, name, status, cwd, message_count, created_at, modified_at
		 FROM sessions WHERE id = ?`, id)
	return scanInfo(row)
}

// List returns all cataloged sessions ordered by most-recently-modified
// first, optionally filtered by status (pass "" for all).
func (c *Catalog) List(ctx context.Context, status string) ([]session.SessionInfo, error) {
	query := `SELECT id, path, name, status, cwd, message_count, created_at, modified_at
	          FROM sessions`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY modified_at DESC`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []session.SessionInfo
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// Delete removes a session's catalog row. The underlying log file is left
// untouched; callers remove it separately.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	c.publish(id)
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInfo(row scanner) (session.SessionInfo, error) {
	var info session.SessionInfo
	err := row.Scan(&info.ID, &info.Path, &info.Name, &info.Status,
		&info.Cwd, &info.MessageCount, &info.Created, &info.Modified)
	if err == sql.ErrNoRows {
		return session.SessionInfo{}, fmt.Errorf("session not found")
	}
	if err != nil {
		return session.SessionInfo{}, err
	}
	return info, nil
}

func (c *Catalog) broadcastLoop() {
	for id := range c.events {
		c.mu.RLock()
		for _, sub := range c.subs {
			select {
			case sub <- id:
			default:
			}
		}
		c.mu.RUnlock()
	}
}

// Subscribe returns a channel that emits session IDs whenever a row is
// upserted, its status changes, or it is deleted.
func (c *Catalog) Subscribe() <-chan string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan string, 10)
	c.subs = append(c.subs, ch)
	return ch
}

func (c *Catalog) publish(id string) {
	select {
	case c.events <- id:
	default:
	}
}
