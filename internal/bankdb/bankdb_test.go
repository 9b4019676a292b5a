package bankdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "bank.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreate(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	ok, err := Initialized(ctx, db)
	if err != nil {
		t.Fatalf("Initialized() error: %v", err)
	}
	if ok {
		t.Fatal("empty database reported as initialized")
	}

	if err := Create(ctx, db); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	ok, err = Initialized(ctx, db)
	if err != nil || !ok {
		t.Fatalf("Initialized() = %v, %v after Create", ok, err)
	}

	want := map[string]int{"branches": 3, "employees": 6, "customers": 6, "accounts": 7, "transactions": 12}
	for table, n := range want {
		var got int
		if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&got); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if got != n {
			t.Errorf("%s has %d rows, want %d", table, got, n)
		}
	}

	// Second call is a no-op rather than a UNIQUE violation.
	if err := Create(ctx, db); err != nil {
		t.Fatalf("second Create() error: %v", err)
	}
}

func TestStatements(t *testing.T) {
	script := "-- header\nCREATE TABLE a (\n  id INTEGER\n);\n\nINSERT INTO a VALUES (1);\nSELECT 1"
	got := Statements(script)
	if len(got) != 3 {
		t.Fatalf("Statements() returned %d statements: %q", len(got), got)
	}
	if got[1] != "INSERT INTO a VALUES (1)" {
		t.Errorf("statement 1 = %q", got[1])
	}
	if got[2] != "SELECT 1" {
		t.Errorf("statement 2 = %q", got[2])
	}
}

func TestEmbeddedScriptsParse(t *testing.T) {
	if n := len(Statements(schemaSQL)); n != len(Tables)+3 {
		t.Errorf("schema has %d statements, want %d", n, len(Tables)+3)
	}
	if n := len(Statements(seedSQL)); n != len(Tables) {
		t.Errorf("seed has %d statements, want %d", n, len(Tables))
	}
}
