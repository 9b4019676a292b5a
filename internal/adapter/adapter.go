// Package adapter defines the database collaborator used by the query
// pipeline: schema introspection, plan-only dry runs, and execution.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/sadopc/bankql/internal/schema"
)

var (
	ErrNotConnected   = errors.New("not connected to database")
	ErrCancelled      = errors.New("query cancelled")
	ErrUnknownAdapter = errors.New("unknown adapter")
)

// Adapter creates database connections.
type Adapter interface {
	Connect(ctx context.Context, dsn string) (Connection, error)
	Name() string
	DefaultPort() int
}

// Connection represents an active database connection.
type Connection interface {
	// Introspection
	Tables(ctx context.Context) ([]schema.Table, error)
	Columns(ctx context.Context, table string) ([]schema.Column, error)

	// Explain asks the engine to plan query without running it.
	Explain(ctx context.Context, query string) error
	Execute(ctx context.Context, query string) (*QueryResult, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error

	// Info
	DatabaseName() string
	AdapterName() string
}

// QueryResult holds the result of a query execution.
type QueryResult struct {
	Columns  []ColumnMeta  `json:"columns"`
	Rows     [][]string    `json:"rows"`
	RowCount int64         `json:"row_count"`
	Duration time.Duration `json:"duration"`
	Message  string        `json:"message,omitempty"`
}

// ColumnMeta holds metadata about a result column.
type ColumnMeta struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// ColumnNames returns the result's column names in order.
func (r *QueryResult) ColumnNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// Registry holds registered adapters by name.
var Registry = map[string]Adapter{}

// Register adds an adapter to the global registry.
func Register(a Adapter) {
	Registry[a.Name()] = a
}

// Names returns the registered adapter names, sorted.
func Names() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RetryPolicy bounds the connection bootstrap.
type RetryPolicy struct {
	MaxTries       uint
	InitialBackoff time.Duration
	Logger         *slog.Logger
}

// DefaultRetryPolicy is used when a zero RetryPolicy is passed to Open.
var DefaultRetryPolicy = RetryPolicy{MaxTries: 5, InitialBackoff: 500 * time.Millisecond}

// Open connects through the named adapter, retrying with exponential backoff
// up to policy.MaxTries attempts. Unknown adapters fail without retrying.
func Open(ctx context.Context, name, dsn string, policy RetryPolicy) (Connection, error) {
	a, ok := Registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownAdapter, name, strings.Join(Names(), ", "))
	}
	if policy.MaxTries == 0 {
		policy.MaxTries = DefaultRetryPolicy.MaxTries
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = DefaultRetryPolicy.InitialBackoff
	}
	log := policy.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = policy.InitialBackoff

	attempt := 0
	conn, err := backoff.Retry(ctx, func() (Connection, error) {
		attempt++
		conn, err := a.Connect(ctx, dsn)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			log.Warn("connect failed", "adapter", name, "attempt", attempt, "error", err)
			return nil, err
		}
		return conn, nil
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(policy.MaxTries))
	if err != nil {
		return nil, fmt.Errorf("connect %s after %d attempt(s): %w", name, attempt, err)
	}
	return conn, nil
}

// Detect infers the adapter name from a DSN. It returns "" when the DSN
// carries no recognizable hint.
func Detect(dsn string) string {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(lower, "mysql://"):
		return "mysql"
	case strings.HasPrefix(lower, "sqlite://") || strings.HasPrefix(lower, "file:"):
		return "sqlite"
	case strings.HasPrefix(lower, "duckdb://"):
		return "duckdb"
	case lower == ":memory:":
		return "sqlite"
	case strings.HasSuffix(lower, ".db") || strings.HasSuffix(lower, ".sqlite") || strings.HasSuffix(lower, ".sqlite3"):
		return "sqlite"
	case strings.HasSuffix(lower, ".duckdb"):
		return "duckdb"
	case strings.Contains(lower, "@tcp("):
		return "mysql"
	}
	if strings.Contains(dsn, "@") {
		return "postgres"
	}
	return ""
}

// rowKeywords are the leading keywords of statements that return a result
// set on at least one supported engine.
var rowKeywords = map[string]bool{
	"SELECT": true, "WITH": true, "VALUES": true, "TABLE": true, "SHOW": true,
	"DESCRIBE": true, "DESC": true, "EXPLAIN": true, "PRAGMA": true, "FROM": true,
}

// ReturnsRows reports whether query should be run with Query rather than
// Exec. Leading line and block comments are skipped.
func ReturnsRows(query string) bool {
	q := strings.TrimSpace(query)
	for {
		switch {
		case strings.HasPrefix(q, "--"):
			idx := strings.IndexByte(q, '\n')
			if idx < 0 {
				return false
			}
			q = strings.TrimSpace(q[idx+1:])
		case strings.HasPrefix(q, "/*"):
			idx := strings.Index(q, "*/")
			if idx < 0 {
				return false
			}
			q = strings.TrimSpace(q[idx+2:])
		default:
			end := strings.IndexFunc(q, func(r rune) bool {
				return !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z')
			})
			if end < 0 {
				end = len(q)
			}
			return rowKeywords[strings.ToUpper(q[:end])]
		}
	}
}
