// Package theme holds the lipgloss styles used by the terminal renderer and
// the chat UI. Themes are built from a small palette so a new one only
// needs colours.
package theme

import "github.com/charmbracelet/lipgloss"

// Theme holds lipgloss.Style values for every rendered element.
type Theme struct {
	Name string

	// SQL syntax highlighting
	SQLKeyword  lipgloss.Style
	SQLString   lipgloss.Style
	SQLNumber   lipgloss.Style
	SQLComment  lipgloss.Style
	SQLOperator lipgloss.Style
	SQLFunction lipgloss.Style
	SQLType     lipgloss.Style

	// Results table
	ResultsBorder lipgloss.Style
	ResultsHeader lipgloss.Style
	ResultsCell   lipgloss.Style
	ResultsNull   lipgloss.Style

	// Conversation
	Title      lipgloss.Style
	Prompt     lipgloss.Style
	UserText   lipgloss.Style
	Question   lipgloss.Style
	Correction lipgloss.Style
	InputBox   lipgloss.Style

	// General
	ErrorText   lipgloss.Style
	SuccessText lipgloss.Style
	WarningText lipgloss.Style
	MutedText   lipgloss.Style
}

type palette struct {
	keyword, str, number, comment, operator, function, typ string
	border, header, headerBg, fg                           string
	accent, errorC, success, warning, muted                string
}

func build(name string, p palette) *Theme {
	fg := func(c string) lipgloss.Style { return lipgloss.NewStyle().Foreground(lipgloss.Color(c)) }
	return &Theme{
		Name: name,

		SQLKeyword:  fg(p.keyword).Bold(true),
		SQLString:   fg(p.str),
		SQLNumber:   fg(p.number),
		SQLComment:  fg(p.comment).Italic(true),
		SQLOperator: fg(p.operator),
		SQLFunction: fg(p.function),
		SQLType:     fg(p.typ),

		ResultsBorder: fg(p.border),
		ResultsHeader: fg(p.header).Background(lipgloss.Color(p.headerBg)).Bold(true).Padding(0, 1),
		ResultsCell:   fg(p.fg).Padding(0, 1),
		ResultsNull:   fg(p.muted).Italic(true).Padding(0, 1),

		Title:      fg(p.accent).Bold(true),
		Prompt:     fg(p.accent).Bold(true),
		UserText:   fg(p.fg),
		Question:   fg(p.warning),
		Correction: fg(p.muted),
		InputBox: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(p.accent)).
			Padding(0, 1),

		ErrorText:   fg(p.errorC).Bold(true),
		SuccessText: fg(p.success),
		WarningText: fg(p.warning),
		MutedText:   fg(p.muted),
	}
}

// Themes maps theme names to their Theme definitions.
var Themes = map[string]*Theme{
	"default": build("default", palette{
		keyword: "#569CD6", str: "#CE9178", number: "#B5CEA8", comment: "#6A9955",
		operator: "#D4D4D4", function: "#DCDCAA", typ: "#4EC9B0",
		border: "#3C3C3C", header: "#569CD6", headerBg: "#252526", fg: "#D4D4D4",
		accent: "#569CD6", errorC: "#F44747", success: "#6A9955", warning: "#CCA700", muted: "#808080",
	}),
	"light": build("light", palette{
		keyword: "#0000FF", str: "#A31515", number: "#098658", comment: "#008000",
		operator: "#1E1E1E", function: "#795E26", typ: "#267F99",
		border: "#D4D4D4", header: "#0451A5", headerBg: "#F3F3F3", fg: "#1E1E1E",
		accent: "#0451A5", errorC: "#E51400", success: "#16825D", warning: "#BF8803", muted: "#A0A0A0",
	}),
	"monokai": build("monokai", palette{
		keyword: "#F92672", str: "#E6DB74", number: "#AE81FF", comment: "#75715E",
		operator: "#F92672", function: "#A6E22E", typ: "#66D9EF",
		border: "#49483E", header: "#A6E22E", headerBg: "#3E3D32", fg: "#F8F8F2",
		accent: "#F92672", errorC: "#F92672", success: "#A6E22E", warning: "#E6DB74", muted: "#75715E",
	}),
}

// Names lists the available themes.
var Names = []string{"default", "light", "monokai"}

// Default returns the default dark theme.
func Default() *Theme {
	return Themes["default"]
}

// Get returns the theme identified by name. If no theme with that name exists
// it falls back to the default theme.
func Get(name string) *Theme {
	if t, ok := Themes[name]; ok {
		return t
	}
	return Default()
}
