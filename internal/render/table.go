package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/sadopc/bankql/internal/adapter"
	"github.com/sadopc/bankql/internal/theme"
)

// MaxCellWidth bounds a rendered cell; longer values are cut with an ellipsis.
const MaxCellWidth = 40

// Table renders a query result as a bordered table followed by a row count
// line. Results without columns render their message only.
func Table(res *adapter.QueryResult, th *theme.Theme) string {
	if res == nil {
		return ""
	}
	if th == nil {
		th = theme.Default()
	}
	if len(res.Columns) == 0 {
		return th.MutedText.Render(res.Message)
	}

	rows := make([][]string, len(res.Rows))
	for i, r := range res.Rows {
		row := make([]string, len(res.Columns))
		for j := range row {
			if j < len(r) {
				row[j] = clip(r[j], MaxCellWidth)
			}
		}
		rows[i] = row
	}
	data := res.Rows

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(th.ResultsBorder).
		Headers(res.ColumnNames()...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return th.ResultsHeader
			}
			if row >= 0 && row < len(data) && col < len(data[row]) && data[row][col] == "NULL" {
				return th.ResultsNull
			}
			return th.ResultsCell
		})

	return t.String() + "\n" + th.MutedText.Render(Summary(res))
}

// Summary describes the row count and timing of a result.
func Summary(res *adapter.QueryResult) string {
	noun := "rows"
	if res.RowCount == 1 {
		noun = "row"
	}
	return fmt.Sprintf("%d %s (%s)", res.RowCount, noun, res.Duration.Round(100*time.Microsecond))
}

func clip(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
