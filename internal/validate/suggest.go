package validate

import (
	"regexp"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/sadopc/bankql/internal/schema"
)

// Error phrasings of sqlite, postgres and mysql. The first group captures
// the unknown name.
var (
	unknownTableRes = []*regexp.Regexp{
		regexp.MustCompile(`no such table: (?:\w+\.)?(\w+)`),
		regexp.MustCompile(`relation "(?:\w+\.)?(\w+)" does not exist`),
		regexp.MustCompile(`Table '(?:\w+\.)?(\w+)' doesn't exist`),
		regexp.MustCompile(`Catalog Error: Table with name (\w+) does not exist`),
	}
	unknownColumnRes = []*regexp.Regexp{
		regexp.MustCompile(`no such column: (?:\w+\.)?(\w+)`),
		regexp.MustCompile(`column "(?:\w+\.)?(\w+)" does not exist`),
		regexp.MustCompile(`column (?:\w+\.)?(\w+) does not exist`),
		regexp.MustCompile(`Unknown column '(?:\w+\.)?(\w+)'`),
		regexp.MustCompile(`Referenced column "(\w+)" not found`),
	}
	syntaxErrorRe = regexp.MustCompile(`(?i)syntax error|error in your SQL syntax|Parser Error`)
)

// suggest maps a dry-run error to a correction hint, naming the closest
// catalog identifier when the error names an unknown one.
func suggest(errText string, cat *schema.Catalog) string {
	if name := firstCapture(unknownTableRes, errText); name != "" {
		return withHint("Check table name spelling and existence.", name, cat.Tables())
	}
	if name := firstCapture(unknownColumnRes, errText); name != "" {
		return withHint("Check column name spelling and existence.", name, cat.AllColumns())
	}
	if syntaxErrorRe.MatchString(errText) {
		return "Check SQL syntax, missing keywords, or misplaced commas."
	}
	return "Review SQL query for errors."
}

func firstCapture(res []*regexp.Regexp, s string) string {
	for _, re := range res {
		if m := re.FindStringSubmatch(s); m != nil {
			return m[1]
		}
	}
	return ""
}

func withHint(base, name string, candidates []string) string {
	if best := closest(name, candidates); best != "" {
		return base + " Did you mean " + best + "?"
	}
	return base
}

// closest returns the best fuzzy match for name among candidates, trying
// name as a pattern first and then each candidate as a pattern against name
// so omitted and extra letters both resolve.
func closest(name string, candidates []string) string {
	name = strings.ToLower(name)
	if len(candidates) == 0 || name == "" {
		return ""
	}
	if matches := fuzzy.Find(name, candidates); len(matches) > 0 {
		if matches[0].Str != name {
			return matches[0].Str
		}
		return ""
	}
	best, bestScore := "", 0
	for _, c := range candidates {
		m := fuzzy.Find(c, []string{name})
		if len(m) > 0 && (best == "" || m[0].Score > bestScore) {
			best, bestScore = c, m[0].Score
		}
	}
	return best
}
