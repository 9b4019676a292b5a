package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/sadopc/bankql/internal/adapter"
	"github.com/sadopc/bankql/internal/correct"
	"github.com/sadopc/bankql/internal/pipeline"
	"github.com/sadopc/bankql/internal/theme"
)

// lipgloss renders styles as no-ops without a TTY, so these tests check
// content and structure rather than escape codes.

func sample() *adapter.QueryResult {
	return &adapter.QueryResult{
		Columns:  []adapter.ColumnMeta{{Name: "id"}, {Name: "email"}},
		Rows:     [][]string{{"1", "john.smith@mail.example"}, {"2", "NULL"}},
		RowCount: 2,
		Duration: 3 * time.Millisecond,
	}
}

func TestHighlight_PreservesContent(t *testing.T) {
	tests := []string{
		"SELECT id, first_name FROM customers WHERE id = 1",
		"SELECT COUNT(*) FROM accounts -- total\nWHERE balance > 100.5",
		"SELECT 'it''s' AS s",
		"",
	}
	for _, dialect := range []string{"SQL", "PostgreSQL", "MySQL", "nope"} {
		h := NewHighlighter(dialect)
		for _, sql := range tests {
			got := h.Highlight(sql, theme.Default())
			for _, word := range strings.Fields(sql) {
				if !strings.Contains(got, word) {
					t.Errorf("%s: Highlight(%q) lost %q: %q", dialect, sql, word, got)
				}
			}
			if strings.Count(got, "\n") != strings.Count(sql, "\n") {
				t.Errorf("%s: newline count changed for %q", dialect, sql)
			}
		}
	}
}

func TestHighlight_NilTheme(t *testing.T) {
	sql := "SELECT 1"
	if got := NewHighlighter("SQL").Highlight(sql, nil); got != sql {
		t.Errorf("Highlight(nil theme) = %q, want %q", got, sql)
	}
}

func TestLexerFor(t *testing.T) {
	tests := map[string]string{"postgres": "PostgreSQL", "mysql": "MySQL", "sqlite": "SQL", "duckdb": "SQL"}
	for in, want := range tests {
		if got := LexerFor(in); got != want {
			t.Errorf("LexerFor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTable(t *testing.T) {
	out := Table(sample(), theme.Default())
	for _, want := range []string{"id", "email", "john.smith@mail.example", "NULL", "2 rows (3ms)"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestTable_MessageOnly(t *testing.T) {
	out := Table(&adapter.QueryResult{Message: "1 row(s) affected"}, nil)
	if out != "1 row(s) affected" {
		t.Errorf("Table() = %q", out)
	}
	if Table(nil, nil) != "" {
		t.Error("Table(nil) should be empty")
	}
}

func TestSummary(t *testing.T) {
	if got := Summary(&adapter.QueryResult{RowCount: 1, Duration: 1500 * time.Microsecond}); got != "1 row (1.5ms)" {
		t.Errorf("Summary() = %q", got)
	}
}

func TestClip(t *testing.T) {
	if got := clip("abcdef", 4); got != "abc…" {
		t.Errorf("clip() = %q", got)
	}
	if got := clip("a\nb", 10); got != "a b" {
		t.Errorf("clip() = %q", got)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sample()); err != nil {
		t.Fatal(err)
	}
	want := "id,email\n1,john.smith@mail.example\n2,NULL\n"
	if buf.String() != want {
		t.Errorf("CSV = %q, want %q", buf.String(), want)
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sample()); err != nil {
		t.Fatal(err)
	}
	var got []map[string]string
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0]["email"] != "john.smith@mail.example" || got[1]["id"] != "2" {
		t.Errorf("JSON = %v", got)
	}
}

func TestResponse(t *testing.T) {
	r := New("default", "sqlite")
	r.Verbose = true

	tests := []struct {
		name string
		resp pipeline.Response
		want []string
	}{
		{
			name: "clarification",
			resp: pipeline.Response{
				Status:            pipeline.StatusClarification,
				Explanation:       "I need to know what time period you consider 'recent'.",
				FollowUpQuestions: []string{"How recent?", "Most recent first?"},
			},
			want: []string{"'recent'", "1. How recent?", "2. Most recent first?"},
		},
		{
			name: "error",
			resp: pipeline.Response{
				Status: pipeline.StatusError,
				SQL:    "DELETE FROM accounts LIMIT 1000",
				Error:  &pipeline.TurnError{Kind: pipeline.KindSafety, Message: "Operation not allowed in strict mode.", Suggestion: "Rephrase."},
			},
			want: []string{"Error: Operation not allowed in strict mode.", "Rephrase.", "DELETE"},
		},
		{
			name: "success",
			resp: pipeline.Response{
				Status:      pipeline.StatusSuccess,
				Explanation: "Query executed successfully.",
				SQL:         "SELECT id, email FROM customers LIMIT 1000",
				Corrections: correct.Log{{Rule: "row-limit", Before: "", After: " LIMIT 1000"}},
				Result:      sample(),
				Confidence:  0.9,
			},
			want: []string{"Query executed successfully.", "customers", "row-limit", "john.smith@mail.example", "confidence 0.9"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.Response(tt.resp)
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
		})
	}
}
