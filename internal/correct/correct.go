// Package correct repairs the systematic naming mistakes generated queries
// make against the banking schema, and bounds the result size.
//
// Rules run in a fixed order and later rules assume earlier ones ran. Every
// rule that changes the text adds one Entry to the returned Log.
package correct

import (
	"fmt"
	"strings"
)

// DefaultRowLimit is appended when a query has no LIMIT clause.
const DefaultRowLimit = 1000

// Fragment is one literal rewrite made by a rule.
type Fragment struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

// Entry records a rule that changed the text.
type Entry struct {
	Rule   string `json:"rule"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// Log is the ordered trace of applied rules.
type Log []Entry

// Rules returns the names of the applied rules in order.
func (l Log) Rules() []string {
	names := make([]string, len(l))
	for i, e := range l {
		names[i] = e.Rule
	}
	return names
}

// Rule is one named rewrite step. Apply returns the rewritten text and the
// fragments it changed; no fragments means the rule did not apply.
type Rule struct {
	Name  string
	Apply func(sql string) (string, []Fragment)
}

// Options configures a Corrector.
type Options struct {
	RowLimit int
}

// Corrector applies its rules in order.
type Corrector struct {
	rules []Rule
}

// New returns a Corrector with the standard rule set.
func New(opts Options) *Corrector {
	if opts.RowLimit <= 0 {
		opts.RowLimit = DefaultRowLimit
	}
	return &Corrector{rules: []Rule{
		{Name: "protect-compound-dates", Apply: protectCompoundDates},
		{Name: "date-column", Apply: dateColumn},
		{Name: "restore-compound-dates", Apply: restoreCompoundDates},
		{Name: "date-functions", Apply: dateFunctions},
		{Name: "customer-full-name", Apply: customerFullName},
		{Name: "qualify-ambiguous", Apply: qualifyAmbiguous},
		{Name: "canonical-aliases", Apply: canonicalAliases},
		{Name: "table-typos", Apply: tableTypos},
		{Name: "row-limit", Apply: rowLimit(opts.RowLimit)},
	}}
}

// Rules returns the rule names in application order.
func (c *Corrector) Rules() []string {
	names := make([]string, len(c.rules))
	for i, r := range c.rules {
		names[i] = r.Name
	}
	return names
}

// Correct runs every rule over sql. Correct is idempotent: correcting its own
// output returns the same text.
func (c *Corrector) Correct(sql string) (string, Log) {
	var log Log
	for _, r := range c.rules {
		out, frags := r.Apply(sql)
		if len(frags) == 0 || out == sql {
			continue
		}
		log = append(log, entry(r.Name, frags))
		sql = out
	}
	return sql, log
}

var defaultCorrector = New(Options{})

// Correct runs the default Corrector.
func Correct(sql string) (string, Log) {
	return defaultCorrector.Correct(sql)
}

func entry(rule string, frags []Fragment) Entry {
	before := make([]string, 0, len(frags))
	after := make([]string, 0, len(frags))
	for _, f := range frags {
		before = append(before, f.Before)
		after = append(after, f.After)
	}
	return Entry{Rule: rule, Before: strings.Join(before, "; "), After: strings.Join(after, "; ")}
}

// String renders the log one rule per line.
func (l Log) String() string {
	var b strings.Builder
	for _, e := range l {
		fmt.Fprintf(&b, "%s: %q -> %q\n", e.Rule, e.Before, e.After)
	}
	return b.String()
}
