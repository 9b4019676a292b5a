// Package fallback holds the pre-approved queries served when the generation
// service is out of quota.
package fallback

import "strings"

// Entry maps a keyword to a pre-approved query.
type Entry struct {
	Keyword string `json:"keyword"`
	SQL     string `json:"sql"`
}

// DefaultEntry is served when no keyword matches.
var DefaultEntry = Entry{
	Keyword: "",
	SQL:     "SELECT t.*, c.name as customer_name FROM transactions t JOIN accounts a ON t.account_id = a.id JOIN customers c ON a.customer_id = c.id ORDER BY t.date DESC LIMIT 10",
}

// Entries are matched in order.
var Entries = []Entry{
	{"customers", "SELECT * FROM customers LIMIT 10"},
	{"accounts", "SELECT * FROM accounts LIMIT 10"},
	{"transactions", "SELECT * FROM transactions ORDER BY date DESC LIMIT 10"},
	{"balance", "SELECT c.name, a.type, a.balance FROM customers c JOIN accounts a ON c.id = a.customer_id ORDER BY a.balance DESC LIMIT 10"},
	{"recent", "SELECT t.*, c.name FROM transactions t JOIN accounts a ON t.account_id = a.id JOIN customers c ON a.customer_id = c.id ORDER BY t.date DESC LIMIT 10"},
	{"high", "SELECT c.name, a.type, a.balance FROM customers c JOIN accounts a ON c.id = a.customer_id WHERE a.balance > 50000 ORDER BY a.balance DESC LIMIT 10"},
	{"employee", "SELECT e.*, b.name as branch_name FROM employees e JOIN branches b ON e.branch_id = b.id LIMIT 10"},
	{"branch", "SELECT * FROM branches LIMIT 10"},
	{"monthly", "SELECT strftime('%Y-%m', date) as month, COUNT(*) as transaction_count, SUM(amount) as total_amount FROM transactions GROUP BY strftime('%Y-%m', date) ORDER BY month DESC LIMIT 12"},
	{"average", "SELECT AVG(balance) as avg_balance, COUNT(*) as account_count FROM accounts"},
}

// Catalog selects a fallback query by keyword.
type Catalog struct {
	entries []Entry
	def     Entry
}

// New returns a Catalog over entries with def as the default. With no
// entries the standard set is used.
func New(entries []Entry, def Entry) *Catalog {
	if len(entries) == 0 {
		entries = Entries
	}
	if def.SQL == "" {
		def = DefaultEntry
	}
	return &Catalog{entries: entries, def: def}
}

// Default returns the standard catalog.
func Default() *Catalog { return New(nil, Entry{}) }

// Lookup returns the first entry whose keyword occurs in text, compared
// case-insensitively. Without a match it returns the default entry and false.
func (c *Catalog) Lookup(text string) (Entry, bool) {
	lower := strings.ToLower(text)
	for _, e := range c.entries {
		if strings.Contains(lower, e.Keyword) {
			return e, true
		}
	}
	return c.def, false
}

// Entries returns the catalog's entries in match order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}
