package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/sadopc/bankql/internal/adapter"
	"github.com/sadopc/bankql/internal/adapter/sqlite"
	"github.com/sadopc/bankql/internal/ambiguity"
	"github.com/sadopc/bankql/internal/audit"
	"github.com/sadopc/bankql/internal/bankdb"
	"github.com/sadopc/bankql/internal/generate"
	"github.com/sadopc/bankql/internal/schema"
	"github.com/sadopc/bankql/internal/validate"
)

type fakeGenerator struct {
	mu      sync.Mutex
	out     string
	err     error
	calls   int
	prompts []generate.Prompt
}

func (g *fakeGenerator) Name() string { return "fake" }

func (g *fakeGenerator) Generate(_ context.Context, p generate.Prompt) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.prompts = append(g.prompts, p)
	return g.out, g.err
}

type fakeValidator struct {
	res   validate.Result
	calls int
}

func (v *fakeValidator) Validate(_ context.Context, sql string) validate.Result {
	v.calls++
	r := v.res
	if r.OK() {
		r.SQL = sql
	}
	return r
}

type fakeExecutor struct {
	res     *adapter.QueryResult
	err     error
	queries []string
}

func (e *fakeExecutor) Execute(_ context.Context, q string) (*adapter.QueryResult, error) {
	e.queries = append(e.queries, q)
	return e.res, e.err
}

func (e *fakeExecutor) AdapterName() string  { return "fake" }
func (e *fakeExecutor) DatabaseName() string { return "bank" }

type memRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (m *memRecorder) Log(e audit.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
}

var okResult = validate.Result{Safe: true, Valid: true, Stage: validate.StageOK, Message: "Query is valid."}

func newPipeline(t *testing.T, deps Deps) *Pipeline {
	t.Helper()
	p, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return p
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Deps{})
	if err == nil {
		t.Fatal("expected error for empty deps")
	}
	for _, want := range []string{"generator", "validator", "executor"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestHandle_Clarification(t *testing.T) {
	gen := &fakeGenerator{out: "SELECT 1"}
	exec := &fakeExecutor{}
	p := newPipeline(t, Deps{Generator: gen, Validator: &fakeValidator{res: okResult}, Executor: exec})

	resp := p.Handle(context.Background(), "Show me recent transactions", nil)

	if resp.Status != StatusClarification || resp.State != StateClarifying {
		t.Fatalf("status/state = %s/%s, want clarification_needed/clarifying", resp.Status, resp.State)
	}
	if resp.Confidence != ConfidenceClarification {
		t.Errorf("confidence = %v, want %v", resp.Confidence, ConfidenceClarification)
	}
	if len(resp.FollowUpQuestions) != 2 || !strings.HasPrefix(resp.FollowUpQuestions[0], "How recent?") {
		t.Errorf("questions = %q", resp.FollowUpQuestions)
	}
	if resp.Explanation != "I need to know what time period you consider 'recent'." {
		t.Errorf("explanation = %q", resp.Explanation)
	}
	if gen.calls != 0 || len(exec.queries) != 0 {
		t.Errorf("generator called %d times, executor %d times; want 0", gen.calls, len(exec.queries))
	}
	if resp.TurnID == "" {
		t.Error("turn id not set")
	}
}

func TestHandle_ResumeAfterClarification(t *testing.T) {
	gen := &fakeGenerator{out: "SELECT * FROM transactions WHERE transaction_date >= date('now','-7 days')"}
	exec := &fakeExecutor{res: &adapter.QueryResult{Columns: []adapter.ColumnMeta{{Name: "id"}}, Rows: [][]string{{"1"}}, RowCount: 1}}
	p := newPipeline(t, Deps{Generator: gen, Validator: &fakeValidator{res: okResult}, Executor: exec})
	ctx := context.Background()

	first := p.Handle(ctx, "Show me recent transactions", nil)
	text, actx := ambiguity.Resume("Show me recent transactions", first.FollowUpQuestions, []string{"last 7 days"})

	resp := p.Handle(ctx, text, actx)
	if resp.Status != StatusSuccess {
		t.Fatalf("status = %s, error = %+v", resp.Status, resp.Error)
	}
	if gen.calls != 1 {
		t.Fatalf("generator calls = %d, want 1", gen.calls)
	}
	if !strings.Contains(gen.prompts[0].User, "User said:") {
		t.Errorf("prompt carries no clarification context:\n%s", gen.prompts[0].User)
	}
}

func TestHandle_Success(t *testing.T) {
	gen := &fakeGenerator{out: "```sql\nSELECT c.name FROM customers c\n```"}
	exec := &fakeExecutor{res: &adapter.QueryResult{
		Columns:  []adapter.ColumnMeta{{Name: "name"}},
		Rows:     [][]string{{"Jane Doe"}},
		RowCount: 1,
	}}
	rec := &memRecorder{}
	p := newPipeline(t, Deps{Generator: gen, Validator: &fakeValidator{res: okResult}, Executor: exec, Audit: rec})

	resp := p.Handle(context.Background(), "List all customer names", nil)

	wantSQL := "SELECT c.first_name || ' ' || c.last_name FROM customers c LIMIT 1000"
	if resp.Status != StatusSuccess || resp.State != StateDone {
		t.Fatalf("status/state = %s/%s, error = %+v", resp.Status, resp.State, resp.Error)
	}
	if resp.SQL != wantSQL {
		t.Errorf("SQL = %q, want %q", resp.SQL, wantSQL)
	}
	if len(exec.queries) != 1 || exec.queries[0] != wantSQL {
		t.Errorf("executed %q, want %q", exec.queries, wantSQL)
	}
	if resp.Confidence != ConfidenceGenerated || resp.Fallback {
		t.Errorf("confidence = %v fallback = %v", resp.Confidence, resp.Fallback)
	}
	if got := resp.Corrections.Rules(); len(got) != 2 || got[0] != "customer-full-name" || got[1] != "row-limit" {
		t.Errorf("rules = %v", got)
	}
	if resp.Result == nil || resp.Result.RowCount != 1 {
		t.Errorf("result = %+v", resp.Result)
	}

	if len(rec.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(rec.entries))
	}
	e := rec.entries[0]
	if e.TurnID != resp.TurnID || e.Status != "success" || e.Stage != "ok" || e.RowCount != 1 {
		t.Errorf("audit entry = %+v", e)
	}
	if e.Adapter != "fake" || e.DatabaseName != "bank" || e.Question != "List all customer names" {
		t.Errorf("audit entry = %+v", e)
	}
}

func TestHandle_GenerationFailures(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		err     error
		wantMsg string
	}{
		{
			name:    "upstream error",
			err:     &generate.ServiceError{Provider: "fake", StatusCode: 500, Message: "internal"},
			wantMsg: "SQL generation failed: fake: status 500: internal",
		},
		{
			name:    "no select in output",
			out:     "I cannot answer that.",
			wantMsg: "Could not generate valid SQL query. LLM returned: I cannot answer that....",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{}
			v := &fakeValidator{res: okResult}
			p := newPipeline(t, Deps{Generator: &fakeGenerator{out: tt.out, err: tt.err}, Validator: v, Executor: exec})

			resp := p.Handle(context.Background(), "List all accounts by balance", nil)

			if resp.Status != StatusError || resp.State != StateError {
				t.Fatalf("status/state = %s/%s", resp.Status, resp.State)
			}
			if resp.Error == nil || resp.Error.Kind != KindGeneration {
				t.Fatalf("error = %+v", resp.Error)
			}
			if resp.Error.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", resp.Error.Message, tt.wantMsg)
			}
			if resp.Confidence != ConfidenceGeneration || resp.SQL != "" {
				t.Errorf("confidence = %v SQL = %q", resp.Confidence, resp.SQL)
			}
			if v.calls != 0 || len(exec.queries) != 0 {
				t.Error("validator or executor ran after a generation failure")
			}
		})
	}
}

func TestHandle_LongOutputTruncated(t *testing.T) {
	out := strings.Repeat("x", 300)
	p := newPipeline(t, Deps{Generator: &fakeGenerator{out: out}, Validator: &fakeValidator{res: okResult}, Executor: &fakeExecutor{}})

	resp := p.Handle(context.Background(), "List all accounts by balance", nil)
	want := "Could not generate valid SQL query. LLM returned: " + strings.Repeat("x", 200) + "..."
	if resp.Error == nil || resp.Error.Message != want {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestHandle_QuotaUsesFallback(t *testing.T) {
	exec := &fakeExecutor{res: &adapter.QueryResult{RowCount: 3}}
	p := newPipeline(t, Deps{
		Generator: &fakeGenerator{err: &generate.ServiceError{Provider: "fake", StatusCode: 429, Message: "Too Many Requests"}},
		Validator: &fakeValidator{res: okResult},
		Executor:  exec,
	})

	resp := p.Handle(context.Background(), "List all branch locations", nil)

	if resp.Status != StatusSuccess || !resp.Fallback {
		t.Fatalf("status = %s fallback = %v error = %+v", resp.Status, resp.Fallback, resp.Error)
	}
	if resp.Confidence != ConfidenceFallback {
		t.Errorf("confidence = %v, want %v", resp.Confidence, ConfidenceFallback)
	}
	if resp.SQL != "SELECT * FROM branches LIMIT 10" {
		t.Errorf("SQL = %q", resp.SQL)
	}
	if !strings.Contains(resp.Explanation, "pre-approved") {
		t.Errorf("explanation = %q", resp.Explanation)
	}
}

func TestHandle_DisabledGeneratorFallsBack(t *testing.T) {
	exec := &fakeExecutor{res: &adapter.QueryResult{}}
	p := newPipeline(t, Deps{Generator: generate.Disabled{}, Validator: &fakeValidator{res: okResult}, Executor: exec})

	resp := p.Handle(context.Background(), "Show the list of everything please", nil)

	if !resp.Fallback || resp.Status != StatusSuccess {
		t.Fatalf("fallback = %v status = %s", resp.Fallback, resp.Status)
	}
	if !strings.HasPrefix(exec.queries[0], "SELECT t.*, c.first_name || ' ' || c.last_name") {
		t.Errorf("default fallback not corrected: %q", exec.queries[0])
	}
}

func TestHandle_ValidationRejected(t *testing.T) {
	tests := []struct {
		name     string
		res      validate.Result
		wantKind ErrorKind
		wantSugg string
	}{
		{
			name:     "safety",
			res:      validate.Result{Stage: validate.StageSafety, Message: "Potential SQL injection detected in query."},
			wantKind: KindSafety,
			wantSugg: "Please rephrase your query to avoid potentially harmful SQL patterns.",
		},
		{
			name:     "syntax",
			res:      validate.Result{Safe: true, Stage: validate.StageSyntax, Message: "SQL syntax error: near FORM", Suggestion: "Check SQL syntax."},
			wantKind: KindSyntax,
			wantSugg: "Check SQL syntax.",
		},
		{
			name:     "schema",
			res:      validate.Result{Safe: true, Stage: validate.StageSchema, Message: "No valid table referenced in query."},
			wantKind: KindSchema,
			wantSugg: suggestRephrase,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{}
			p := newPipeline(t, Deps{
				Generator: &fakeGenerator{out: "SELECT * FROM accounts"},
				Validator: &fakeValidator{res: tt.res},
				Executor:  exec,
			})

			resp := p.Handle(context.Background(), "List all accounts by balance", nil)

			if resp.Status != StatusError || resp.State != StateError {
				t.Fatalf("status/state = %s/%s", resp.Status, resp.State)
			}
			if resp.Error.Kind != tt.wantKind || resp.Error.Message != tt.res.Message || resp.Error.Suggestion != tt.wantSugg {
				t.Errorf("error = %+v", resp.Error)
			}
			if resp.SQL != "SELECT * FROM accounts LIMIT 1000" {
				t.Errorf("corrected SQL not returned: %q", resp.SQL)
			}
			if resp.Result != nil || len(exec.queries) != 0 {
				t.Error("rejected query was executed")
			}
			if resp.Confidence != ConfidenceInvalid {
				t.Errorf("confidence = %v", resp.Confidence)
			}
		})
	}
}

func TestHandle_ExecutionFailure(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("database is locked")}
	p := newPipeline(t, Deps{Generator: &fakeGenerator{out: "SELECT * FROM accounts"}, Validator: &fakeValidator{res: okResult}, Executor: exec})

	resp := p.Handle(context.Background(), "List all accounts by balance", nil)

	if resp.Status != StatusError || resp.State != StateDone {
		t.Fatalf("status/state = %s/%s, want error/done", resp.Status, resp.State)
	}
	if resp.Error.Kind != KindExecution || !strings.Contains(resp.Error.Message, "database is locked") {
		t.Errorf("error = %+v", resp.Error)
	}
	if resp.Confidence != ConfidenceExecution {
		t.Errorf("confidence = %v", resp.Confidence)
	}
}

func TestTurnError(t *testing.T) {
	e := &TurnError{Kind: KindSafety, Message: "nope"}
	if e.Error() != "safety_rejected: nope" {
		t.Errorf("Error() = %q", e.Error())
	}
}

// bank opens the demo database in memory and wires the real collaborators.
func bank(t *testing.T, gen generate.Generator) (*Pipeline, adapter.Connection) {
	t.Helper()
	ctx := context.Background()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := bankdb.Create(ctx, db); err != nil {
		t.Fatalf("bankdb.Create() error: %v", err)
	}
	conn := sqlite.FromDB(db, "bank")
	store, err := schema.NewStore(ctx, conn)
	if err != nil {
		t.Fatalf("schema.NewStore() error: %v", err)
	}
	p := newPipeline(t, Deps{
		Generator: gen,
		Validator: validate.New(validate.Strict, conn, store, nil),
		Executor:  conn,
		Catalog:   store,
	})
	return p, conn
}

func TestEndToEnd_Success(t *testing.T) {
	gen := &fakeGenerator{out: "```sql\nSELECT first_name, email FROM customers WHERE id = 1;\n```"}
	p, _ := bank(t, gen)

	resp := p.Handle(context.Background(), "List all customers with their email", nil)

	if resp.Status != StatusSuccess {
		t.Fatalf("status = %s error = %+v", resp.Status, resp.Error)
	}
	if resp.SQL != "SELECT first_name, email FROM customers WHERE id = 1 LIMIT 1000" {
		t.Errorf("SQL = %q", resp.SQL)
	}
	if resp.Result.RowCount != 1 || resp.Result.Rows[0][0] != "John" || resp.Result.Rows[0][1] != "john.smith@mail.example" {
		t.Errorf("rows = %v", resp.Result.Rows)
	}
	if !strings.Contains(gen.prompts[0].User, "customers(") {
		t.Errorf("prompt has no customers schema:\n%s", gen.prompts[0].User)
	}
}

func TestEndToEnd_LineCommentKeepsFilterAndLimit(t *testing.T) {
	gen := &fakeGenerator{out: "SELECT *\nFROM transactions -- every row\nWHERE amount > 100000000\nORDER BY amount DESC"}
	p, _ := bank(t, gen)

	resp := p.Handle(context.Background(), "List every payment above one hundred million", nil)

	if resp.Status != StatusSuccess {
		t.Fatalf("status = %s error = %+v", resp.Status, resp.Error)
	}
	want := "SELECT * FROM transactions WHERE amount > 100000000 ORDER BY amount DESC LIMIT 1000"
	if resp.SQL != want {
		t.Errorf("SQL = %q, want %q", resp.SQL, want)
	}
	if resp.Result.RowCount != 0 {
		t.Errorf("row count = %d, want 0", resp.Result.RowCount)
	}
}

func TestEndToEnd_Fallback(t *testing.T) {
	p, _ := bank(t, generate.Disabled{})

	resp := p.Handle(context.Background(), "List all customers", nil)

	if resp.Status != StatusSuccess || !resp.Fallback {
		t.Fatalf("status = %s fallback = %v error = %+v", resp.Status, resp.Fallback, resp.Error)
	}
	if resp.Result.RowCount != 6 {
		t.Errorf("row count = %d, want 6", resp.Result.RowCount)
	}
}

func TestEndToEnd_InjectionNeverExecuted(t *testing.T) {
	p, conn := bank(t, &fakeGenerator{out: "SELECT * FROM customers; DROP TABLE customers;"})
	ctx := context.Background()

	resp := p.Handle(ctx, "List all customers now", nil)

	if resp.Error == nil || resp.Error.Kind != KindSafety {
		t.Fatalf("error = %+v, want safety rejection", resp.Error)
	}
	if resp.Validation == nil || resp.Validation.Safe {
		t.Errorf("validation = %+v", resp.Validation)
	}
	res, err := conn.Execute(ctx, "SELECT COUNT(*) FROM customers")
	if err != nil {
		t.Fatalf("customers table gone: %v", err)
	}
	if res.Rows[0][0] != "6" {
		t.Errorf("customer count = %s, want 6", res.Rows[0][0])
	}
}

func TestEndToEnd_SyntaxError(t *testing.T) {
	p, _ := bank(t, &fakeGenerator{out: "SELECT * FORM accounts"})

	resp := p.Handle(context.Background(), "List all accounts by balance", nil)

	if resp.Error == nil || resp.Error.Kind != KindSyntax {
		t.Fatalf("error = %+v, want syntax_invalid", resp.Error)
	}
	if !strings.HasPrefix(resp.Error.Message, "SQL syntax error: ") {
		t.Errorf("message = %q", resp.Error.Message)
	}
}
