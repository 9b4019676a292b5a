// Package validate decides whether a candidate query may run. A query passes
// three checks in order: safety, syntax, and schema. The first failing check
// decides the result.
package validate

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sadopc/bankql/internal/schema"
)

// Stage names the check that decided a Result.
type Stage string

const (
	StageSafety Stage = "safety"
	StageSyntax Stage = "syntax"
	StageSchema Stage = "schema"
	StageOK     Stage = "ok"
)

// Result is the verdict for one query. SQL is set only when both Safe and
// Valid are true; a query with either flag false must not be executed.
type Result struct {
	Safe       bool   `json:"safe"`
	Valid      bool   `json:"valid"`
	Stage      Stage  `json:"stage"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
	SQL        string `json:"sql,omitempty"`
}

// OK reports whether the query may be executed.
func (r Result) OK() bool { return r.Safe && r.Valid }

// AuditEntry records one validation call.
type AuditEntry struct {
	Query  string    `json:"query"`
	Result Result    `json:"result"`
	At     time.Time `json:"at"`
}

// Explainer plans a query without executing it.
type Explainer interface {
	Explain(ctx context.Context, query string) error
}

// verdict is what a single check returns. pass means go on to the next check.
type verdict struct {
	pass       bool
	message    string
	suggestion string
}

type check struct {
	stage Stage
	run   func(ctx context.Context, sql string) verdict
}

// Validator runs the checks and keeps an append-only audit log. It is safe
// for concurrent use.
type Validator struct {
	level     Level
	explainer Explainer
	store     *schema.Store
	logger    *slog.Logger
	now       func() time.Time
	checks    []check

	mu  sync.Mutex
	log []AuditEntry
}

// New returns a Validator. A nil explainer skips the syntax check; a nil
// logger discards output.
func New(level Level, explainer Explainer, store *schema.Store, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if _, err := ParseLevel(string(level)); err != nil {
		level = Strict
	}
	v := &Validator{
		level:     level,
		explainer: explainer,
		store:     store,
		logger:    logger,
		now:       time.Now,
	}
	v.checks = []check{
		{StageSafety, func(_ context.Context, sql string) verdict { return checkSafety(v.level, sql) }},
		{StageSyntax, v.checkSyntax},
		{StageSchema, func(_ context.Context, sql string) verdict { return checkSchema(v.store.Current(), sql) }},
	}
	return v
}

// Level returns the configured strictness level.
func (v *Validator) Level() Level { return v.level }

// Validate runs the checks against sql. Every call appends one AuditEntry.
func (v *Validator) Validate(ctx context.Context, sql string) Result {
	res := v.run(ctx, sql)
	v.record(sql, res)
	v.logger.Debug("validated query",
		slog.String("stage", string(res.Stage)),
		slog.Bool("safe", res.Safe),
		slog.Bool("valid", res.Valid),
		slog.String("message", res.Message))
	return res
}

func (v *Validator) run(ctx context.Context, sql string) Result {
	for _, c := range v.checks {
		vd := c.run(ctx, sql)
		if vd.pass {
			continue
		}
		return Result{
			// Safe reports whether the safety check passed.
			Safe:       c.stage != StageSafety,
			Valid:      false,
			Stage:      c.stage,
			Message:    vd.message,
			Suggestion: vd.suggestion,
		}
	}
	return Result{Safe: true, Valid: true, Stage: StageOK, Message: "Query is valid.", SQL: sql}
}

func (v *Validator) record(sql string, res Result) {
	v.mu.Lock()
	v.log = append(v.log, AuditEntry{Query: sql, Result: res, At: v.now()})
	v.mu.Unlock()
}

// Log returns a copy of the audit log in call order.
func (v *Validator) Log() []AuditEntry {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]AuditEntry, len(v.log))
	copy(out, v.log)
	return out
}

func (v *Validator) checkSyntax(ctx context.Context, sql string) verdict {
	if v.explainer == nil {
		return verdict{pass: true}
	}
	err := v.explainer.Explain(ctx, sql)
	if err == nil {
		return verdict{pass: true}
	}
	return verdict{
		message:    "SQL syntax error: " + err.Error(),
		suggestion: suggest(err.Error(), v.store.Current()),
	}
}
