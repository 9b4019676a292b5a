// Package schema describes the relational tables a query may reference and
// holds the catalog the validator and corrector check against.
package schema

// Table represents a database table.
type Table struct {
	Name    string
	Columns []Column
}

// Column represents a table column.
type Column struct {
	Name     string
	Type     string
	Nullable bool
	IsPK     bool
}
