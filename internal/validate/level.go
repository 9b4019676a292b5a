package validate

import (
	"fmt"
	"strings"
)

// Level controls which statement kinds the safety check admits.
type Level string

const (
	Strict   Level = "strict"
	Moderate Level = "moderate"
	Lenient  Level = "lenient"
)

// Levels lists the accepted strictness levels.
var Levels = []Level{Strict, Moderate, Lenient}

// ParseLevel parses s case-insensitively.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	switch l {
	case Strict, Moderate, Lenient:
		return l, nil
	}
	return "", fmt.Errorf("unknown validation level %q (want strict, moderate or lenient)", s)
}

// Operations returns the leading keywords allowed at level l.
func (l Level) Operations() []string {
	switch l {
	case Moderate:
		return []string{"SELECT", "UPDATE", "DELETE"}
	case Lenient:
		return []string{"SELECT", "INSERT", "UPDATE", "DELETE"}
	default:
		return []string{"SELECT"}
	}
}

func (l Level) allows(op string) bool {
	for _, allowed := range l.Operations() {
		if op == allowed {
			return true
		}
	}
	return false
}
