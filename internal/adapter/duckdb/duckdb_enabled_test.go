//go:build duckdb

package duckdb

import (
	"context"
	"testing"
)

func TestDuckDB_InMemory(t *testing.T) {
	a := &duckdbAdapter{}
	ctx := context.Background()
	conn, err := a.Connect(ctx, "duckdb://")
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer conn.Close()

	for _, s := range []string{
		"CREATE TABLE branches (id INTEGER PRIMARY KEY, name VARCHAR, city VARCHAR)",
		"INSERT INTO branches VALUES (1, 'Main', NULL)",
	} {
		if _, err := conn.Execute(ctx, s); err != nil {
			t.Fatalf("setup %q: %v", s, err)
		}
	}

	tables, err := conn.Tables(ctx)
	if err != nil || len(tables) != 1 || tables[0].Name != "branches" {
		t.Fatalf("Tables() = %v, %v", tables, err)
	}
	if err := conn.Explain(ctx, "SELECT name FROM branches"); err != nil {
		t.Errorf("Explain() error: %v", err)
	}
	if err := conn.Explain(ctx, "SELECT nope FROM branches"); err == nil {
		t.Error("expected explain error for unknown column")
	}
	res, err := conn.Execute(ctx, "SELECT name, city FROM branches")
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if res.Rows[0][0] != "Main" || res.Rows[0][1] != "NULL" {
		t.Errorf("Rows = %v", res.Rows)
	}
}
