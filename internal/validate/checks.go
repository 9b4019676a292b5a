package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sadopc/bankql/internal/schema"
)

var (
	leadingCommentRe = regexp.MustCompile(`^(?s)(?:\s+|--[^\n]*(?:\n|$)|/\*.*?\*/)*`)
	leadingWordRe    = regexp.MustCompile(`^[A-Za-z]+`)

	stackedRe     = regexp.MustCompile(`(?i);\s*(DROP|DELETE|UPDATE|INSERT|CREATE|ALTER)\b`)
	tautologyRe   = regexp.MustCompile(`(?i)--.*\b(OR|AND)\b.*=`)
	unionRe       = regexp.MustCompile(`(?i)\bUNION\s+(ALL\s+)?SELECT\b`)
	destructiveRe = regexp.MustCompile(`(?i)\b(DROP|TRUNCATE|ALTER)\b`)
	mutationRe    = regexp.MustCompile(`(?i)\b(DELETE|UPDATE)\b`)
	whereRe       = regexp.MustCompile(`(?i)\bWHERE\b`)
)

// leadingKeyword returns the upper-cased first word of sql after any leading
// whitespace and comments.
func leadingKeyword(sql string) string {
	body := sql[len(leadingCommentRe.FindString(sql)):]
	return strings.ToUpper(leadingWordRe.FindString(body))
}

func checkSafety(level Level, sql string) verdict {
	op := leadingKeyword(sql)
	switch {
	case !level.allows(op):
		return verdict{message: fmt.Sprintf("Operation not allowed in %s mode.", level)}
	case stackedRe.MatchString(sql):
		return verdict{message: "Possible SQL injection attempt detected (multiple statements)."}
	case tautologyRe.MatchString(sql):
		return verdict{message: "Possible SQL injection attempt detected (comment injection)."}
	case unionRe.MatchString(sql) && op != "SELECT":
		return verdict{message: "Possible SQL injection attempt detected (UNION injection)."}
	case destructiveRe.MatchString(sql):
		return verdict{message: "Dangerous operation detected (DROP/TRUNCATE/ALTER not allowed)."}
	case mutationRe.MatchString(sql) && !whereRe.MatchString(sql):
		return verdict{message: "DELETE/UPDATE must have a WHERE clause."}
	}
	return verdict{pass: true}
}

var (
	wildcardRe  = regexp.MustCompile(`(?i)\bselect\s+(?:distinct\s+)?\*|\bselect\s+count\s*\(\s*\*\s*\)`)
	aggregateRe = regexp.MustCompile(`(?i)\b(count|sum|avg|max|min)\s*\(`)
	wordRe      = regexp.MustCompile(`\w+`)
)

func checkSchema(cat *schema.Catalog, sql string) verdict {
	words := make(map[string]bool)
	for _, w := range wordRe.FindAllString(strings.ToLower(sql), -1) {
		words[w] = true
	}

	referencesTable := false
	for _, t := range cat.Tables() {
		if words[t] {
			referencesTable = true
			break
		}
	}
	if !referencesTable {
		return verdict{message: "No valid table referenced in query."}
	}
	if wildcardRe.MatchString(sql) {
		return verdict{pass: true}
	}
	for _, col := range cat.AllColumns() {
		if words[col] {
			return verdict{pass: true}
		}
	}
	if aggregateRe.MatchString(sql) {
		return verdict{pass: true}
	}
	return verdict{message: "No valid column referenced in query."}
}
