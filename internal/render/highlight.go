// Package render formats pipeline output for the terminal: highlighted SQL,
// result tables, and a turn summary.
package render

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/bankql/internal/theme"
)

// Highlighter styles SQL tokens with the colours of a theme.
type Highlighter struct {
	lexer chroma.Lexer
}

// NewHighlighter returns a Highlighter for the named chroma lexer ("SQLite",
// "PostgreSQL", "MySQL"), falling back to generic SQL.
func NewHighlighter(dialect string) *Highlighter {
	l := lexers.Get(dialect)
	if l == nil {
		l = lexers.Get("SQL")
	}
	if l == nil {
		l = lexers.Fallback
	}
	return &Highlighter{lexer: chroma.Coalesce(l)}
}

// LexerFor maps an adapter name to its lexer name.
func LexerFor(adapter string) string {
	switch adapter {
	case "postgres":
		return "PostgreSQL"
	case "mysql":
		return "MySQL"
	}
	return "SQL"
}

// Highlight returns sql with each token styled. A nil theme returns sql
// unchanged. Newlines are always emitted unstyled.
func (h *Highlighter) Highlight(sql string, th *theme.Theme) string {
	if th == nil {
		return sql
	}
	iter, err := h.lexer.Tokenise(nil, sql)
	if err != nil {
		return sql
	}

	var b strings.Builder
	b.Grow(len(sql) * 2)
	for _, tok := range iter.Tokens() {
		if tok.Value == "" {
			continue
		}
		style, ok := styleFor(tok.Type, th)
		if !ok {
			b.WriteString(tok.Value)
			continue
		}
		lines := strings.Split(tok.Value, "\n")
		for i, line := range lines {
			if line != "" {
				b.WriteString(style.Render(line))
			}
			if i < len(lines)-1 {
				b.WriteByte('\n')
			}
		}
	}
	return b.String()
}

func styleFor(tt chroma.TokenType, th *theme.Theme) (lipgloss.Style, bool) {
	switch {
	// KeywordType sits inside the Keyword category; check it first.
	case tt == chroma.KeywordType:
		return th.SQLType, true
	case tt == chroma.NameFunction || tt == chroma.NameBuiltin:
		return th.SQLFunction, true
	case tt.InCategory(chroma.Keyword):
		return th.SQLKeyword, true
	case tt.InSubCategory(chroma.LiteralString):
		return th.SQLString, true
	case tt.InSubCategory(chroma.LiteralNumber):
		return th.SQLNumber, true
	case tt.InCategory(chroma.Comment):
		return th.SQLComment, true
	case tt.InCategory(chroma.Operator):
		return th.SQLOperator, true
	}
	return lipgloss.Style{}, false
}
