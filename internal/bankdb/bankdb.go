// Package bankdb creates the five-table demo banking database: branches,
// employees, customers, accounts and transactions.
package bankdb

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed schema.sql
var schemaSQL string

//go:embed seed.sql
var seedSQL string

// Tables lists the demo tables in creation order.
var Tables = []string{"branches", "employees", "customers", "accounts", "transactions"}

// Create builds the schema and loads the seed rows in one transaction. It is
// a no-op when the database is already initialized.
func Create(ctx context.Context, db *sql.DB) error {
	ok, err := Initialized(ctx, db)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("bankdb: begin: %w", err)
	}
	defer tx.Rollback()

	for _, script := range []struct{ name, body string }{{"schema", schemaSQL}, {"seed", seedSQL}} {
		for _, stmt := range Statements(script.body) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("bankdb: %s: %w", script.name, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("bankdb: commit: %w", err)
	}
	return nil
}

// Initialized reports whether every demo table exists and holds rows.
func Initialized(ctx context.Context, db *sql.DB) (bool, error) {
	existing := make(map[string]bool)
	rows, err := db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type='table'")
	if err != nil {
		return false, fmt.Errorf("bankdb: list tables: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return false, fmt.Errorf("bankdb: list tables: %w", err)
		}
		existing[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, err
	}

	for _, t := range Tables {
		if !existing[t] {
			return false, nil
		}
		var n int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t).Scan(&n); err != nil {
			return false, fmt.Errorf("bankdb: count %s: %w", t, err)
		}
		if n == 0 {
			return false, nil
		}
	}
	return true, nil
}

// Statements splits a script into statements on semicolons that end a line.
func Statements(script string) []string {
	var (
		out []string
		cur strings.Builder
	)
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			out = append(out, strings.TrimSuffix(strings.TrimSpace(cur.String()), ";"))
			cur.Reset()
		}
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}
