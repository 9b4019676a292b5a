package correct

import (
	"fmt"
	"regexp"
	"strings"
)

// rewrite replaces every match of re with repl(s, loc), where loc is the
// submatch index slice of the match within s.
type rewrite struct {
	re   *regexp.Regexp
	repl func(s string, loc []int) string
}

func literal(re, out string) rewrite {
	return rewrite{re: regexp.MustCompile(re), repl: func(string, []int) string { return out }}
}

func (w rewrite) apply(s string, frags *[]Fragment) string {
	locs := w.re.FindAllStringSubmatchIndex(s, -1)
	if locs == nil {
		return s
	}
	var b strings.Builder
	last := 0
	for _, loc := range locs {
		match := s[loc[0]:loc[1]]
		out := w.repl(s, loc)
		b.WriteString(s[last:loc[0]])
		b.WriteString(out)
		if out != match {
			*frags = append(*frags, Fragment{Before: match, After: out})
		}
		last = loc[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

func applyAll(s string, ws []rewrite) (string, []Fragment) {
	var frags []Fragment
	for _, w := range ws {
		s = w.apply(s, &frags)
	}
	return s, frags
}

func group(s string, loc []int, n int) string {
	if loc[2*n] < 0 {
		return ""
	}
	return s[loc[2*n]:loc[2*n+1]]
}

// Compound date columns and the placeholders that shield them from the
// bare "date" rewrite.
var compoundDates = []struct{ column, placeholder string }{
	{"date_of_birth", "BANKQL_PROTECTED_0"},
	{"birth_date", "BANKQL_PROTECTED_1"},
	{"hire_date", "BANKQL_PROTECTED_2"},
	{"opened_at", "BANKQL_PROTECTED_3"},
}

var (
	protectRewrites []rewrite
	restoreRewrites []rewrite
)

func init() {
	for _, c := range compoundDates {
		protectRewrites = append(protectRewrites, literal(`(?i)\b`+c.column+`\b`, c.placeholder))
		restoreRewrites = append(restoreRewrites, literal(`\b`+c.placeholder+`\b`, c.column))
	}
}

func protectCompoundDates(sql string) (string, []Fragment) {
	return applyAll(sql, protectRewrites)
}

func restoreCompoundDates(sql string) (string, []Fragment) {
	return applyAll(sql, restoreRewrites)
}

var dateRewrites = []rewrite{literal(`(?i)\bdate\b`, "transaction_date")}

func dateColumn(sql string) (string, []Fragment) {
	return applyAll(sql, dateRewrites)
}

// dateFunctions turns function calls corrupted by dateColumn back into date().
var dateFunctionRewrites = []rewrite{{
	re: regexp.MustCompile(`(?i)\btransaction_date(\s*)\(`),
	repl: func(s string, loc []int) string {
		return "date" + group(s, loc, 1) + "("
	},
}}

func dateFunctions(sql string) (string, []Fragment) {
	return applyAll(sql, dateFunctionRewrites)
}

const fullName = "first_name || ' ' || last_name"

func qualifiedFullName(q string) string {
	return q + ".first_name || ' ' || " + q + ".last_name"
}

var (
	customersRe = regexp.MustCompile(`(?i)\bcustomers\b`)
	// Both have a real name column.
	namedTablesRe = regexp.MustCompile(`(?i)\b(employees|branches)\b`)

	bareNameRewrites = []rewrite{
		literal(`(?i)\bWHERE\s+name\b`, "WHERE "+fullName),
		literal(`(?i)\bORDER\s+BY\s+name\b`, "ORDER BY "+fullName),
		literal(`(?i)\bname\s+LIKE\b`, fullName+" LIKE"),
	}
	selectNameRewrites = []rewrite{
		literal(`(?i)\bSELECT\s+name\b`, "SELECT "+fullName+" AS name"),
		literal(`,\s*name\b`, ", "+fullName+" AS name"),
	}
)

// customerFullName rewrites references to the nonexistent customers.name
// column as a first/last name concatenation.
func customerFullName(sql string) (string, []Fragment) {
	norm := withoutTypos(sql)
	qualifiers := []string{"c", "customers", "costumers"}
	if q, ok := tableQualifiers(norm)["customers"]; ok && !strings.EqualFold(q, "c") && !strings.EqualFold(q, "customers") {
		qualifiers = append(qualifiers, q)
	}
	var ws []rewrite
	for _, q := range qualifiers {
		ws = append(ws, literal(`(?i)\b`+regexp.QuoteMeta(q)+`\.name\b`, qualifiedFullName(q)))
	}
	sql, frags := applyAll(sql, ws)

	if !customersRe.MatchString(norm) || namedTablesRe.MatchString(norm) {
		return sql, frags
	}

	start, end := selectList(sql)
	if start >= 0 {
		list, more := applyAll(sql[start:end], selectNameRewrites)
		sql = sql[:start] + list + sql[end:]
		frags = append(frags, more...)
	}
	sql, more := applyAll(sql, bareNameRewrites)
	return sql, append(frags, more...)
}

var (
	selectRe = regexp.MustCompile(`(?i)\bSELECT\b`)
	fromRe   = regexp.MustCompile(`(?i)\bFROM\b`)
)

// selectList returns the span from the first SELECT keyword to the first
// FROM after it, or -1 when there is none.
func selectList(sql string) (int, int) {
	loc := selectRe.FindStringIndex(sql)
	if loc == nil {
		return -1, -1
	}
	end := len(sql)
	if f := fromRe.FindStringIndex(sql[loc[0]:]); f != nil {
		end = loc[0] + f[0]
	}
	return loc[0], end
}

// ambiguousColumns maps columns shared by several tables to the tables that
// claim them when unqualified, in priority order.
var ambiguousColumns = []struct {
	column string
	tables []string
}{
	{"type", []string{"transactions", "accounts"}},
	{"status", []string{"transactions", "accounts"}},
	{"id", []string{"transactions", "accounts", "customers", "branches", "employees"}},
}

var (
	bareColumnRe = regexp.MustCompile(`(?i)(\bSELECT\s+(?:DISTINCT\s+)?|,\s*|\bWHERE\s+|\bAND\s+|\bOR\s+|\bORDER\s+BY\s+|\bGROUP\s+BY\s+)(type|status|id)\b`)
	joinRe       = regexp.MustCompile(`(?i)\bJOIN\b`)
)

// qualifyAmbiguous prefixes bare type, status and id references with the
// alias of their preferred table when the statement reads several tables.
func qualifyAmbiguous(sql string) (string, []Fragment) {
	refs := tableQualifiers(withoutTypos(sql))
	if len(refs) < 2 && !joinRe.MatchString(sql) {
		return sql, nil
	}
	qualifier := make(map[string]string)
	for _, ac := range ambiguousColumns {
		for _, t := range ac.tables {
			if q, ok := refs[t]; ok {
				qualifier[ac.column] = q
				break
			}
		}
	}
	if len(qualifier) == 0 {
		return sql, nil
	}

	original := sql
	w := rewrite{re: bareColumnRe, repl: func(s string, loc []int) string {
		match := s[loc[0]:loc[1]]
		if loc[1] < len(s) && (s[loc[1]] == '.' || s[loc[1]] == '(') {
			return match
		}
		col := group(s, loc, 2)
		q, ok := qualifier[strings.ToLower(col)]
		if !ok {
			return match
		}
		out := group(s, loc, 1) + q + "." + col
		if strings.Contains(original, out) {
			return match
		}
		return out
	}}
	var frags []Fragment
	sql = w.apply(sql, &frags)
	return sql, frags
}

// Singular prefixes match their misspellings too, since typos are fixed
// only after this rule runs.
const (
	customerPrefix    = `(?i)\b(?:customer|costumer)\.`
	accountPrefix     = `(?i)\b(?:account|accout)\.`
	transactionPrefix = `(?i)\b(?:transaction|trasaction)\.`
	employeePrefix    = `(?i)\b(?:employee|employe)\.`
)

var canonicalRewrites = []rewrite{
	literal(customerPrefix+`name\b`, qualifiedFullName("c")),
	literal(customerPrefix+`id\b`, "c.id"),
	literal(customerPrefix+`email\b`, "c.email"),
	literal(accountPrefix+`id\b`, "a.id"),
	literal(accountPrefix+`balance\b`, "a.balance"),
	literal(accountPrefix+`type\b`, "a.type"),
	literal(transactionPrefix+`id\b`, "t.id"),
	literal(transactionPrefix+`amount\b`, "t.amount"),
	literal(transactionPrefix+`type\b`, "t.type"),
	literal(transactionPrefix+`(?:transaction_)?date\b`, "t.transaction_date"),
	literal(employeePrefix+`id\b`, "e.id"),
	literal(employeePrefix+`name\b`, "e.name"),
	literal(`(?i)\bbranch\.id\b`, "b.id"),
	literal(`(?i)\bbranch\.name\b`, "b.name"),
}

func canonicalAliases(sql string) (string, []Fragment) {
	return applyAll(sql, canonicalRewrites)
}

var typoRewrites = []rewrite{
	literal(`(?i)\bcostumers\b`, "customers"),
	literal(`(?i)\bcostumer\b`, "customer"),
	literal(`(?i)\btrasactions\b`, "transactions"),
	literal(`(?i)\btrasaction\b`, "transaction"),
	literal(`(?i)\bacounts\b`, "accounts"),
	literal(`(?i)\baccout\b`, "account"),
	literal(`(?i)\bemployeees\b`, "employees"),
	literal(`(?i)\bemployes\b`, "employees"),
	literal(`(?i)\bemploye\b`, "employee"),
}

func tableTypos(sql string) (string, []Fragment) {
	return applyAll(sql, typoRewrites)
}

// withoutTypos is the text table detection runs on, so that rules before
// tableTypos see the tables the statement will name once corrected.
func withoutTypos(sql string) string {
	out, _ := applyAll(sql, typoRewrites)
	return out
}

var (
	limitRe    = regexp.MustCompile(`(?i)\bLIMIT\b`)
	trailingRe = regexp.MustCompile(`[\s;]+$`)
)

// rowLimit appends a LIMIT clause when none exists. ORDER BY always ends the
// statement here, so appending keeps the bound after it. A trailing line
// comment is dropped first; the clause would otherwise land inside it.
func rowLimit(n int) func(string) (string, []Fragment) {
	clause := fmt.Sprintf("LIMIT %d", n)
	return func(sql string) (string, []Fragment) {
		if limitRe.MatchString(withoutLineComments(sql)) {
			return sql, nil
		}
		body := trailingRe.ReplaceAllString(sql, "")
		start := strings.LastIndexByte(body, '\n') + 1
		if i := lineComment(body[start:]); i >= 0 {
			body = trailingRe.ReplaceAllString(body[:start+i], "")
		}
		return body + " " + clause, []Fragment{{Before: strings.TrimSpace(sql[len(body):]), After: clause}}
	}
}

// lineComment returns the offset of a "--" comment in line, ignoring dashes
// inside quoted strings, or -1.
func lineComment(line string) int {
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '-' && i+1 < len(line) && line[i+1] == '-':
			return i
		}
	}
	return -1
}

func withoutLineComments(sql string) string {
	lines := strings.Split(sql, "\n")
	for i, l := range lines {
		if j := lineComment(l); j >= 0 {
			lines[i] = l[:j]
		}
	}
	return strings.Join(lines, "\n")
}

var (
	fromClauseEndRe = regexp.MustCompile(`(?i)\b(WHERE|GROUP|ORDER|LIMIT|HAVING|JOIN|INNER|LEFT|RIGHT|FULL|CROSS|NATURAL|UNION|ON)\b|\)|;`)
	joinRefRe       = regexp.MustCompile(`(?i)\bJOIN\s+(\w+)(?:\s+(?:AS\s+)?(\w+))?`)
	identRe         = regexp.MustCompile(`^\w+$`)
)

var notAlias = map[string]bool{
	"WHERE": true, "JOIN": true, "INNER": true, "LEFT": true, "RIGHT": true, "FULL": true,
	"OUTER": true, "CROSS": true, "NATURAL": true, "ON": true, "USING": true, "GROUP": true,
	"ORDER": true, "LIMIT": true, "HAVING": true, "UNION": true, "AS": true, "SET": true,
	"OFFSET": true, "WINDOW": true,
}

// tableQualifiers maps each table read by the statement (lower-cased) to the
// qualifier that refers to it: its alias, or its own name when unaliased.
func tableQualifiers(sql string) map[string]string {
	refs := make(map[string]string)
	add := func(table, alias string) {
		if !identRe.MatchString(table) || notAlias[strings.ToUpper(table)] {
			return
		}
		if alias == "" || notAlias[strings.ToUpper(alias)] {
			alias = table
		}
		key := strings.ToLower(table)
		if _, ok := refs[key]; !ok {
			refs[key] = alias
		}
	}

	for _, loc := range fromRe.FindAllStringIndex(sql, -1) {
		rest := sql[loc[1]:]
		if end := fromClauseEndRe.FindStringIndex(rest); end != nil {
			rest = rest[:end[0]]
		}
		for _, item := range strings.Split(rest, ",") {
			fields := strings.Fields(item)
			switch {
			case len(fields) == 0:
			case len(fields) >= 3 && strings.EqualFold(fields[1], "AS"):
				add(fields[0], fields[2])
			case len(fields) >= 2:
				add(fields[0], fields[1])
			default:
				add(fields[0], "")
			}
		}
	}
	for _, m := range joinRefRe.FindAllStringSubmatch(sql, -1) {
		add(m[1], m[2])
	}
	return refs
}
