package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sadopc/bankql/internal/adapter"
)

// Override with BANKQL_PG_DSN.
const defaultTestDSN = "postgres://localhost:5432/bankql_test?sslmode=disable"

func testDSN() string {
	if dsn := os.Getenv("BANKQL_PG_DSN"); dsn != "" {
		return dsn
	}
	return defaultTestDSN
}

func connectForTest(t *testing.T) adapter.Connection {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := &postgresAdapter{}
	conn, err := a.Connect(ctx, testDSN())
	if err != nil {
		t.Skipf("skipping: cannot connect to PostgreSQL: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestIntegration_IntrospectAndExplain(t *testing.T) {
	conn := connectForTest(t)
	ctx := context.Background()

	setup := []string{
		"DROP TABLE IF EXISTS bankql_it_accounts",
		"CREATE TABLE bankql_it_accounts (id SERIAL PRIMARY KEY, type TEXT NOT NULL, balance NUMERIC(12,2))",
		"INSERT INTO bankql_it_accounts (type, balance) VALUES ('checking', 100.50), ('savings', NULL)",
	}
	for _, s := range setup {
		if _, err := conn.Execute(ctx, s); err != nil {
			t.Fatalf("setup %q: %v", s, err)
		}
	}
	t.Cleanup(func() {
		conn.Execute(context.Background(), "DROP TABLE IF EXISTS bankql_it_accounts")
	})

	tables, err := conn.Tables(ctx)
	if err != nil {
		t.Fatalf("Tables() error: %v", err)
	}
	found := false
	for _, tbl := range tables {
		if tbl.Name == "bankql_it_accounts" {
			found = true
		}
	}
	if !found {
		t.Fatal("bankql_it_accounts not listed")
	}

	cols, err := conn.Columns(ctx, "bankql_it_accounts")
	if err != nil {
		t.Fatalf("Columns() error: %v", err)
	}
	if len(cols) != 3 || cols[0].Name != "id" || !cols[0].IsPK {
		t.Errorf("Columns() = %+v", cols)
	}

	if err := conn.Explain(ctx, "SELECT type FROM bankql_it_accounts;"); err != nil {
		t.Errorf("Explain(valid) error: %v", err)
	}
	if err := conn.Explain(ctx, "SELECT nickname FROM bankql_it_accounts"); err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Errorf("Explain(unknown column) error = %v", err)
	}

	res, err := conn.Execute(ctx, "SELECT balance FROM bankql_it_accounts ORDER BY id")
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if len(res.Rows) != 2 || res.Rows[1][0] != "NULL" {
		t.Errorf("Rows = %v", res.Rows)
	}
}
