package fallback

import (
	"context"
	"strings"
	"testing"

	"github.com/sadopc/bankql/internal/correct"
	"github.com/sadopc/bankql/internal/schema"
	"github.com/sadopc/bankql/internal/validate"
)

func TestLookup(t *testing.T) {
	c := Default()
	tests := []struct {
		text    string
		keyword string
		matched bool
	}{
		{"Show all customers", "customers", true},
		{"customer accounts with high balance", "accounts", true},
		{"What is my BALANCE", "balance", true},
		{"recent transactions", "transactions", true},
		{"who are the employees", "employee", true},
		{"Monthly totals", "monthly", true},
		{"average", "average", true},
		{"hello there", "", false},
	}
	for _, tt := range tests {
		e, ok := c.Lookup(tt.text)
		if ok != tt.matched || e.Keyword != tt.keyword {
			t.Errorf("Lookup(%q) = (%q, %v), want (%q, %v)", tt.text, e.Keyword, ok, tt.keyword, tt.matched)
		}
	}
	if e, _ := c.Lookup("hello"); e.SQL != DefaultEntry.SQL {
		t.Errorf("default SQL = %q", e.SQL)
	}
}

func TestNew_Custom(t *testing.T) {
	c := New([]Entry{{"loans", "SELECT * FROM accounts WHERE type = 'loan'"}}, Entry{SQL: "SELECT 1 FROM accounts"})
	if e, ok := c.Lookup("my loans"); !ok || e.Keyword != "loans" {
		t.Errorf("Lookup = %+v, %v", e, ok)
	}
	if e, ok := c.Lookup("customers"); ok || e.SQL != "SELECT 1 FROM accounts" {
		t.Errorf("Lookup = %+v, %v", e, ok)
	}
	got := c.Entries()
	got[0].Keyword = "x"
	if c.Entries()[0].Keyword != "loans" {
		t.Error("Entries() returned shared storage")
	}
}

// Every pre-approved query must survive correction and strict validation.
func TestEntries_PassValidation(t *testing.T) {
	cat := schema.FromMap(
		[]string{"branches", "employees", "customers", "accounts", "transactions"},
		map[string][]string{
			"branches":     {"id", "name", "city"},
			"employees":    {"id", "branch_id", "name"},
			"customers":    {"id", "first_name", "last_name"},
			"accounts":     {"id", "customer_id", "type", "balance"},
			"transactions": {"id", "account_id", "transaction_date", "amount"},
		},
	)
	v := validate.New(validate.Strict, nil, schema.StaticStore(cat), nil)
	for _, e := range append(Entries, DefaultEntry) {
		sql, _ := correct.Correct(e.SQL)
		if strings.Contains(sql, "c.name") || strings.Contains(sql, " date ") {
			t.Errorf("corrected %q still has a bad column: %q", e.Keyword, sql)
		}
		if res := v.Validate(context.Background(), sql); !res.OK() {
			t.Errorf("entry %q rejected: %+v", e.Keyword, res)
		}
	}
}
