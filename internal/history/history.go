// Package history keeps a SQLite-backed list of past turns for the CLI and
// chat front ends.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sadopc/bankql/internal/audit"
)

const createTableSQL = `CREATE TABLE IF NOT EXISTS turns (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	turn_id       TEXT,
	question      TEXT NOT NULL,
	sql_text      TEXT,
	status        TEXT NOT NULL,
	fallback      BOOLEAN DEFAULT FALSE,
	adapter       TEXT,
	database_name TEXT,
	executed_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
	duration_ms   INTEGER,
	row_count     INTEGER,
	is_error      BOOLEAN DEFAULT FALSE
)`

// Entry is one recorded turn.
type Entry struct {
	ID           int64     `json:"id"`
	TurnID       string    `json:"turn_id"`
	Question     string    `json:"question"`
	SQL          string    `json:"sql"`
	Status       string    `json:"status"`
	Fallback     bool      `json:"fallback"`
	Adapter      string    `json:"adapter"`
	DatabaseName string    `json:"database_name"`
	ExecutedAt   time.Time `json:"executed_at"`
	DurationMS   int64     `json:"duration_ms"`
	RowCount     int64     `json:"row_count"`
	IsError      bool      `json:"is_error"`
}

// History provides SQLite-backed turn history storage.
type History struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (or creates) the history database at path and ensures the
// schema exists.
func Open(path string, logger *slog.Logger) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("history: create dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create table: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &History{db: db, log: logger}, nil
}

// Add inserts a new history entry.
func (h *History) Add(ctx context.Context, e Entry) error {
	if e.ExecutedAt.IsZero() {
		e.ExecutedAt = time.Now().UTC()
	}
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO turns (turn_id, question, sql_text, status, fallback, adapter, database_name, executed_at, duration_ms, row_count, is_error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TurnID,
		e.Question,
		e.SQL,
		e.Status,
		e.Fallback,
		e.Adapter,
		e.DatabaseName,
		e.ExecutedAt,
		e.DurationMS,
		e.RowCount,
		e.IsError,
	)
	if err != nil {
		return fmt.Errorf("history add: %w", err)
	}
	return nil
}

// Log records a finished pipeline turn. Failures are logged, not returned.
// Calling Log on a nil History is a no-op.
func (h *History) Log(e audit.Entry) {
	if h == nil {
		return
	}
	err := h.Add(context.Background(), Entry{
		TurnID:       e.TurnID,
		Question:     e.Question,
		SQL:          e.SQL,
		Status:       e.Status,
		Fallback:     e.Fallback,
		Adapter:      e.Adapter,
		DatabaseName: e.DatabaseName,
		ExecutedAt:   e.Timestamp,
		DurationMS:   e.DurationMS,
		RowCount:     e.RowCount,
		IsError:      e.Status == "error",
	})
	if err != nil {
		h.log.Warn("history write failed", "turn_id", e.TurnID, "error", err)
	}
}

const selectColumns = `SELECT id, turn_id, question, sql_text, status, fallback, adapter, database_name, executed_at, duration_ms, row_count, is_error FROM turns`

// Search returns entries whose question or SQL matches the given SQL LIKE
// pattern, most recent first, limited to limit rows.
func (h *History) Search(ctx context.Context, pattern string, limit int) ([]Entry, error) {
	rows, err := h.db.QueryContext(ctx,
		selectColumns+`
		 WHERE question LIKE ? OR sql_text LIKE ?
		 ORDER BY executed_at DESC, id DESC
		 LIMIT ?`,
		pattern, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history search: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Recent returns the most recent entries, limited to limit rows.
func (h *History) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := h.db.QueryContext(ctx,
		selectColumns+`
		 ORDER BY executed_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history recent: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Clear deletes all history entries.
func (h *History) Clear(ctx context.Context) error {
	if _, err := h.db.ExecContext(ctx, `DELETE FROM turns`); err != nil {
		return fmt.Errorf("history clear: %w", err)
	}
	return nil
}

// Close closes the underlying database connection. Calling Close on a nil
// History is a no-op.
func (h *History) Close() error {
	if h == nil {
		return nil
	}
	return h.db.Close()
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			e                             Entry
			turnID, sqlText, adapter, dbn sql.NullString
		)
		if err := rows.Scan(
			&e.ID,
			&turnID,
			&e.Question,
			&sqlText,
			&e.Status,
			&e.Fallback,
			&adapter,
			&dbn,
			&e.ExecutedAt,
			&e.DurationMS,
			&e.RowCount,
			&e.IsError,
		); err != nil {
			return nil, fmt.Errorf("history scan: %w", err)
		}
		e.TurnID, e.SQL, e.Adapter, e.DatabaseName = turnID.String, sqlText.String, adapter.String, dbn.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history rows: %w", err)
	}
	return entries, nil
}
