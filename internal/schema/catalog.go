package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
)

// Introspector lists tables and their columns from a live database.
type Introspector interface {
	Tables(ctx context.Context) ([]Table, error)
	Columns(ctx context.Context, table string) ([]Column, error)
}

// Catalog maps table names to their ordered column names. Names are stored
// lower-cased. A Catalog is never mutated after construction.
type Catalog struct {
	order   []string
	columns map[string][]string
}

// NewCatalog builds a Catalog from tables in the given order. Duplicate table
// names keep their first position and last column list.
func NewCatalog(tables []Table) *Catalog {
	c := &Catalog{columns: make(map[string][]string, len(tables))}
	for _, t := range tables {
		name := strings.ToLower(t.Name)
		if _, ok := c.columns[name]; !ok {
			c.order = append(c.order, name)
		}
		cols := make([]string, 0, len(t.Columns))
		for _, col := range t.Columns {
			cols = append(cols, strings.ToLower(col.Name))
		}
		c.columns[name] = cols
	}
	return c
}

// FromMap is a convenience for building a Catalog from literal data. Table
// order follows the tables slice.
func FromMap(tables []string, columns map[string][]string) *Catalog {
	ts := make([]Table, 0, len(tables))
	for _, name := range tables {
		t := Table{Name: name}
		for _, col := range columns[name] {
			t.Columns = append(t.Columns, Column{Name: col})
		}
		ts = append(ts, t)
	}
	return NewCatalog(ts)
}

// Load reads every table and its columns from src.
func Load(ctx context.Context, src Introspector) (*Catalog, error) {
	if src == nil {
		return nil, errors.New("schema: nil introspector")
	}
	tables, err := src.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("schema: list tables: %w", err)
	}
	for i := range tables {
		cols, err := src.Columns(ctx, tables[i].Name)
		if err != nil {
			return nil, fmt.Errorf("schema: list columns of %s: %w", tables[i].Name, err)
		}
		tables[i].Columns = cols
	}
	return NewCatalog(tables), nil
}

// Tables returns the table names in source order.
func (c *Catalog) Tables() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Columns returns the ordered column names of table, or nil if unknown.
func (c *Catalog) Columns(table string) []string {
	if c == nil {
		return nil
	}
	cols, ok := c.columns[strings.ToLower(table)]
	if !ok {
		return nil
	}
	out := make([]string, len(cols))
	copy(out, cols)
	return out
}

// HasTable reports whether table is known.
func (c *Catalog) HasTable(table string) bool {
	if c == nil {
		return false
	}
	_, ok := c.columns[strings.ToLower(table)]
	return ok
}

// HasColumn reports whether any table has the named column.
func (c *Catalog) HasColumn(column string) bool {
	column = strings.ToLower(column)
	for _, name := range c.AllColumns() {
		if name == column {
			return true
		}
	}
	return false
}

// AllColumns returns every distinct column name across all tables, in
// first-seen order.
func (c *Catalog) AllColumns() []string {
	if c == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, t := range c.order {
		for _, col := range c.columns[t] {
			if !seen[col] {
				seen[col] = true
				out = append(out, col)
			}
		}
	}
	return out
}

// Len returns the number of tables.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}

// Store holds the current Catalog. Readers never block; Reload swaps in a
// freshly loaded catalog.
type Store struct {
	src     Introspector
	current atomic.Pointer[Catalog]
}

// NewStore loads the catalog from src once.
func NewStore(ctx context.Context, src Introspector) (*Store, error) {
	cat, err := Load(ctx, src)
	if err != nil {
		return nil, err
	}
	s := &Store{src: src}
	s.current.Store(cat)
	return s, nil
}

// StaticStore wraps a fixed catalog. Reload on a static store is a no-op.
func StaticStore(cat *Catalog) *Store {
	s := &Store{}
	s.current.Store(cat)
	return s
}

// Current returns the active catalog.
func (s *Store) Current() *Catalog {
	if s == nil {
		return nil
	}
	return s.current.Load()
}

// Reload rebuilds the catalog from the store's introspector. On error the
// previous catalog stays active.
func (s *Store) Reload(ctx context.Context) error {
	if s.src == nil {
		return nil
	}
	cat, err := Load(ctx, s.src)
	if err != nil {
		return err
	}
	s.current.Store(cat)
	return nil
}
