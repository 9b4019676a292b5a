package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/sadopc/bankql/internal/pipeline"
	"github.com/sadopc/bankql/internal/theme"
)

// Renderer formats whole turns.
type Renderer struct {
	Theme       *theme.Theme
	Highlighter *Highlighter
	// Verbose adds the correction trace.
	Verbose bool
}

// New returns a Renderer for the named theme and adapter dialect.
func New(themeName, adapterName string) *Renderer {
	return &Renderer{
		Theme:       theme.Get(themeName),
		Highlighter: NewHighlighter(LexerFor(adapterName)),
	}
}

// Response renders one turn: the outcome line, any follow-up questions, the
// SQL, the correction trace when verbose, and the result table.
func (r *Renderer) Response(resp pipeline.Response) string {
	th := r.Theme
	if th == nil {
		th = theme.Default()
	}
	var b strings.Builder

	switch resp.Status {
	case pipeline.StatusClarification:
		b.WriteString(th.WarningText.Render(resp.Explanation))
		b.WriteByte('\n')
		for i, q := range resp.FollowUpQuestions {
			fmt.Fprintf(&b, "  %s\n", th.Question.Render(fmt.Sprintf("%d. %s", i+1, q)))
		}
		return b.String()
	case pipeline.StatusError:
		b.WriteString(th.ErrorText.Render("Error: " + resp.Error.Message))
		b.WriteByte('\n')
		if resp.Error.Suggestion != "" {
			b.WriteString(th.MutedText.Render(resp.Error.Suggestion))
			b.WriteByte('\n')
		}
	default:
		b.WriteString(th.SuccessText.Render(resp.Explanation))
		b.WriteByte('\n')
	}

	if resp.SQL != "" {
		b.WriteByte('\n')
		b.WriteString(r.sql(resp.SQL, th))
		b.WriteByte('\n')
	}
	if r.Verbose && len(resp.Corrections) > 0 {
		b.WriteByte('\n')
		for _, c := range resp.Corrections {
			b.WriteString(th.Correction.Render(fmt.Sprintf("  %s: %s -> %s", c.Rule, c.Before, c.After)))
			b.WriteByte('\n')
		}
	}
	if resp.Result != nil {
		b.WriteByte('\n')
		b.WriteString(Table(resp.Result, th))
		b.WriteByte('\n')
	}
	if r.Verbose {
		fmt.Fprintf(&b, "%s\n", th.MutedText.Render(fmt.Sprintf("confidence %.1f, %s", resp.Confidence, resp.Duration.Round(time.Millisecond))))
	}
	return b.String()
}

// SQL renders highlighted SQL.
func (r *Renderer) SQL(sql string) string {
	th := r.Theme
	if th == nil {
		th = theme.Default()
	}
	return r.sql(sql, th)
}

func (r *Renderer) sql(sql string, th *theme.Theme) string {
	if r.Highlighter == nil {
		return sql
	}
	return r.Highlighter.Highlight(sql, th)
}
