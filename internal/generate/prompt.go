package generate

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sadopc/bankql/internal/ambiguity"
	"github.com/sadopc/bankql/internal/schema"
)

const systemPrompt = `Expert SQL generator for banking DB. Convert NL to SELECT queries only.

Schema (use EXACT names):
customers(id,email,phone,address,first_name,last_name,date_of_birth,gender,national_id,created_at,updated_at,branch_id)
accounts(id,customer_id,account_number,type,balance,opened_at,interest_rate,status,branch_id,created_at,updated_at)
transactions(id,account_id,transaction_date,amount,type,description,status,created_at,updated_at,employee_id)
branches(id,name,address,city,state,zip_code,manager_id,created_at,updated_at)
employees(id,branch_id,name,email,phone,position,hire_date,salary,created_at,updated_at)

Rules:
1. SELECT only, end with LIMIT 1000
2. Use aliases: c(customers), a(accounts), t(transactions), e(employees), b(branches)
3. customers: first_name+last_name (NOT name), employees: name column exists
4. Date format: YYYY-MM-DD, use transaction_date for transactions
5. JOIN tables when needed, qualify ambiguous columns (t.type, a.type, etc.)
6. LIKE with % for name searches`

// Prompt is the request sent to a provider.
type Prompt struct {
	System string
	User   string
}

// String joins the system and user parts for single-message providers.
func (p Prompt) String() string {
	return joinNonEmpty("\n", p.System, p.User)
}

var tableKeywords = []struct {
	table    string
	keywords []string
}{
	{"customers", []string{"customer", "client", "name", "email", "phone", "address", "birth", "gender"}},
	{"accounts", []string{"account", "balance", "saving", "checking", "credit", "interest", "opened"}},
	{"transactions", []string{"transaction", "deposit", "withdrawal", "transfer", "payment", "amount", "recent"}},
	{"employees", []string{"employee", "staff", "manager", "position", "hire", "salary", "work"}},
	{"branches", []string{"branch", "office", "location", "city", "state", "zip"}},
}

// Tables pulled in with the key table, since queries on it usually join them.
var joinCompanions = map[string]string{
	"accounts":     "customers",
	"transactions": "accounts",
	"employees":    "branches",
}

var briefColumns = map[string]string{
	"customers":    "id,first_name,last_name,email,phone,branch_id",
	"accounts":     "id,customer_id,type,balance,status,branch_id",
	"transactions": "id,account_id,transaction_date,amount,type,description,status",
	"employees":    "id,branch_id,name,position,salary",
	"branches":     "id,name,address,city,state",
}

// RelevantTables returns the tables question is likely about, with their
// join companions, sorted. With no keyword hit every table is returned.
func RelevantTables(question string) []string {
	lower := strings.ToLower(question)
	set := make(map[string]bool)
	for _, tk := range tableKeywords {
		for _, kw := range tk.keywords {
			if strings.Contains(lower, kw) {
				set[tk.table] = true
				break
			}
		}
	}
	if len(set) == 0 {
		for _, tk := range tableKeywords {
			set[tk.table] = true
		}
	}
	for _, tk := range tableKeywords {
		if companion, ok := joinCompanions[tk.table]; ok && set[tk.table] {
			set[companion] = true
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func relevantSchema(question string, cat *schema.Catalog) string {
	var parts []string
	for _, t := range RelevantTables(question) {
		cols := briefColumns[t]
		if cat.HasTable(t) {
			cols = strings.Join(cat.Columns(t), ",")
		}
		if cols != "" {
			parts = append(parts, t+"("+cols+")")
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "Schema: " + strings.Join(parts, ", ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func compressContext(c *ambiguity.Context) string {
	if c == nil {
		return ""
	}
	var parts []string
	if c.PreviousQuery != "" {
		parts = append(parts, "Prev: "+truncate(c.PreviousQuery, 50)+"...")
	}
	if len(c.Clarifications) > 0 {
		keys := make([]string, 0, len(c.Clarifications))
		for k := range c.Clarifications {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		answers := make([]string, 0, len(keys))
		for _, k := range keys {
			answers = append(answers, c.Clarifications[k])
		}
		parts = append(parts, "User said: "+truncate(strings.Join(answers, "; "), 30)+"...")
	}
	if len(parts) == 0 {
		return ""
	}
	return "Context: " + strings.Join(parts, " | ")
}

// BuildPrompt assembles the generation prompt for question. A nil catalog
// describes tables with the built-in column summaries.
func BuildPrompt(question string, c *ambiguity.Context, cat *schema.Catalog) Prompt {
	return Prompt{
		System: systemPrompt,
		User: joinNonEmpty("\n",
			relevantSchema(question, cat),
			compressContext(c),
			"Q: "+question,
			"SQL:",
		),
	}
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

var (
	fenceRe     = regexp.MustCompile("(?s)```(?:sql|SQL)?\\s*\n?(.*?)(?:```|$)")
	statementRe = regexp.MustCompile(`(?i)^(SELECT|INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|WITH)\b`)
	selectRe    = regexp.MustCompile(`(?i)^SELECT\b`)
)

// ExtractSQL pulls the SELECT statement out of a model response: code
// fences are stripped, the statement's lines collected up to the next
// statement, comments dropped and whitespace collapsed. It returns
// ErrEmptySQL when no SELECT is found.
func ExtractSQL(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	var lines []string
	found := false
collect:
	for _, line := range strings.Split(text, "\n") {
		// Lines are joined below, so a trailing comment would swallow the rest.
		if i := lineComment(line); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case !found:
			if !selectRe.MatchString(line) {
				continue
			}
			found = true
		case statementRe.MatchString(line):
			break collect
		case strings.HasPrefix(line, "#"), strings.HasPrefix(line, "//"):
			continue
		}
		lines = append(lines, line)
		if strings.HasSuffix(line, ";") {
			break
		}
	}
	sql := strings.Join(strings.Fields(strings.Join(lines, " ")), " ")
	sql = strings.TrimRight(sql, "; ")
	if !selectRe.MatchString(sql) {
		return "", ErrEmptySQL
	}
	return sql, nil
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
