// Package pipeline runs one natural-language request through ambiguity
// classification, SQL generation, correction, validation and execution.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sadopc/bankql/internal/adapter"
	"github.com/sadopc/bankql/internal/ambiguity"
	"github.com/sadopc/bankql/internal/audit"
	"github.com/sadopc/bankql/internal/correct"
	"github.com/sadopc/bankql/internal/fallback"
	"github.com/sadopc/bankql/internal/generate"
	"github.com/sadopc/bankql/internal/metrics"
	"github.com/sadopc/bankql/internal/schema"
	"github.com/sadopc/bankql/internal/validate"
)

// Classifier decides whether a request needs clarification.
type Classifier interface {
	Classify(text string, ctx *ambiguity.Context) ambiguity.Result
}

// Corrector rewrites candidate SQL.
type Corrector interface {
	Correct(sql string) (string, correct.Log)
}

// Validator gates SQL before execution.
type Validator interface {
	Validate(ctx context.Context, sql string) validate.Result
}

// Executor runs validated SQL.
type Executor interface {
	Execute(ctx context.Context, query string) (*adapter.QueryResult, error)
}

// Deps are the collaborators of a Pipeline. Classifier, Corrector and
// Fallback default to the standard implementations; Generator, Validator and
// Executor are required.
type Deps struct {
	Classifier Classifier
	Generator  generate.Generator
	Corrector  Corrector
	Validator  Validator
	Executor   Executor
	Fallback   *fallback.Catalog
	Catalog    *schema.Store
	Audit      audit.Sink
	Logger     *slog.Logger
}

// Pipeline is safe for concurrent use when its collaborators are.
type Pipeline struct {
	deps Deps
	log  *slog.Logger
	now  func() time.Time
}

// New returns a Pipeline over deps.
func New(deps Deps) (*Pipeline, error) {
	var missing []error
	if deps.Generator == nil {
		missing = append(missing, errors.New("generator is required"))
	}
	if deps.Validator == nil {
		missing = append(missing, errors.New("validator is required"))
	}
	if deps.Executor == nil {
		missing = append(missing, errors.New("executor is required"))
	}
	if err := errors.Join(missing...); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if deps.Classifier == nil {
		deps.Classifier = ambiguity.New()
	}
	if deps.Corrector == nil {
		deps.Corrector = correct.New(correct.Options{})
	}
	if deps.Fallback == nil {
		deps.Fallback = fallback.Default()
	}
	log := deps.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{deps: deps, log: log, now: time.Now}, nil
}

// Handle runs one turn. Failures never escape as Go errors; they are
// reported in Response.Error.
func (p *Pipeline) Handle(ctx context.Context, text string, actx *ambiguity.Context) Response {
	start := p.now()
	t := &turn{
		id:   uuid.NewString(),
		text: text,
		resp: Response{State: StateNew},
		log:  p.log,
	}
	t.resp.TurnID = t.id

	p.run(ctx, t, actx)

	t.resp.Duration = p.now().Sub(start)
	p.finish(t)
	return t.resp
}

func (p *Pipeline) run(ctx context.Context, t *turn, actx *ambiguity.Context) {
	amb := p.deps.Classifier.Classify(t.text, actx)
	if amb.Ambiguous {
		t.enter(StateClarifying)
		t.resp.Status = StatusClarification
		t.resp.Explanation = amb.Explanation
		t.resp.FollowUpQuestions = amb.Questions
		t.resp.Confidence = ConfidenceClarification
		return
	}

	t.enter(StateGenerating)
	candidate, ok := p.generate(ctx, t, actx)
	if !ok {
		return
	}

	t.enter(StateCorrecting)
	corrected, clog := p.deps.Corrector.Correct(candidate)
	t.resp.SQL = corrected
	t.resp.Corrections = clog
	metrics.IncrementCorrections(clog.Rules())

	t.enter(StateValidating)
	vres := p.deps.Validator.Validate(ctx, corrected)
	t.resp.Validation = &vres
	metrics.IncrementValidation(string(vres.Stage))
	if !vres.OK() {
		t.fail(validationKind(vres.Stage), vres.Message, validationSuggestion(vres), ConfidenceInvalid)
		return
	}

	t.enter(StateExecuting)
	res, err := p.deps.Executor.Execute(ctx, corrected)
	if err != nil {
		t.fail(KindExecution, fmt.Sprintf("Query execution failed: %v", err), suggestRephrase, ConfidenceExecution)
		t.enter(StateDone)
		return
	}
	metrics.ObserveQuery(res.Duration)

	t.enter(StateDone)
	t.resp.Status = StatusSuccess
	t.resp.Result = res
	if t.resp.Fallback {
		t.resp.Confidence = ConfidenceFallback
	} else {
		t.resp.Confidence = ConfidenceGenerated
	}
	t.resp.Explanation = successExplanation(res, t.resp.Fallback)
}

// generate produces the candidate SQL, serving a fallback query when the
// generator reports a quota condition.
func (p *Pipeline) generate(ctx context.Context, t *turn, actx *ambiguity.Context) (string, bool) {
	gen := p.deps.Generator
	prompt := generate.BuildPrompt(t.text, actx, p.deps.Catalog.Current())

	raw, err := gen.Generate(ctx, prompt)
	if err == nil {
		sql, xerr := generate.ExtractSQL(raw)
		if xerr == nil {
			return sql, true
		}
		metrics.IncrementGenerationError(gen.Name(), "empty")
		t.fail(KindGeneration, fmt.Sprintf("Could not generate valid SQL query. LLM returned: %s...", head(raw, 200)), suggestRephrase, ConfidenceGeneration)
		return "", false
	}

	if generate.IsQuota(err) {
		metrics.IncrementGenerationError(gen.Name(), "quota")
		entry, matched := p.deps.Fallback.Lookup(t.text)
		metrics.IncrementFallback()
		t.log.Info("using fallback query", "turn_id", t.id, "keyword", entry.Keyword, "matched", matched, "error", err)
		t.resp.Fallback = true
		return entry.SQL, true
	}

	metrics.IncrementGenerationError(gen.Name(), "failure")
	t.fail(KindGeneration, fmt.Sprintf("SQL generation failed: %v", err), suggestRephrase, ConfidenceGeneration)
	return "", false
}

func (p *Pipeline) finish(t *turn) {
	r := t.resp
	metrics.ObserveTurn(string(r.Status), r.Duration)

	attrs := []any{
		"turn_id", r.TurnID,
		"status", r.Status,
		"state", r.State,
		"fallback", r.Fallback,
		"duration", r.Duration,
	}
	if r.Error != nil {
		attrs = append(attrs, "kind", r.Error.Kind, "error", r.Error.Message)
		p.log.Warn("turn failed", attrs...)
	} else {
		p.log.Info("turn finished", attrs...)
	}

	if p.deps.Audit == nil {
		return
	}
	e := audit.Entry{
		Timestamp:  p.now(),
		TurnID:     r.TurnID,
		Question:   t.text,
		Status:     string(r.Status),
		State:      string(r.State),
		SQL:        r.SQL,
		Rules:      r.Corrections.Rules(),
		Fallback:   r.Fallback,
		Confidence: r.Confidence,
		DurationMS: r.Duration.Milliseconds(),
	}
	if len(e.Rules) == 0 {
		e.Rules = nil
	}
	if r.Validation != nil {
		e.Stage = string(r.Validation.Stage)
	}
	if r.Error != nil {
		e.ErrorKind = string(r.Error.Kind)
		e.Message = r.Error.Message
	}
	if r.Result != nil {
		e.RowCount = r.Result.RowCount
	}
	if info, ok := p.deps.Executor.(interface {
		AdapterName() string
		DatabaseName() string
	}); ok {
		e.Adapter = info.AdapterName()
		e.DatabaseName = info.DatabaseName()
	}
	p.deps.Audit.Log(e)
}

// turn carries the mutable state of one Handle call.
type turn struct {
	id   string
	text string
	resp Response
	log  *slog.Logger
}

func (t *turn) enter(s State) {
	t.log.Debug("turn state", "turn_id", t.id, "from", t.resp.State, "to", s)
	t.resp.State = s
}

func (t *turn) fail(kind ErrorKind, msg, suggestion string, confidence float64) {
	t.enter(StateError)
	t.resp.Status = StatusError
	t.resp.Explanation = msg
	t.resp.Confidence = confidence
	t.resp.Error = &TurnError{Kind: kind, Message: msg, Suggestion: suggestion}
}

func validationKind(stage validate.Stage) ErrorKind {
	switch stage {
	case validate.StageSafety:
		return KindSafety
	case validate.StageSyntax:
		return KindSyntax
	}
	return KindSchema
}

func validationSuggestion(r validate.Result) string {
	if r.Suggestion != "" {
		return r.Suggestion
	}
	if r.Stage == validate.StageSafety {
		return "Please rephrase your query to avoid potentially harmful SQL patterns."
	}
	return suggestRephrase
}

func successExplanation(res *adapter.QueryResult, fromFallback bool) string {
	msg := "Query executed successfully."
	if res.RowCount == 0 && len(res.Columns) > 0 {
		msg = "Query executed successfully but returned no results."
	}
	if fromFallback {
		msg += " The SQL generator was unavailable, so a pre-approved query was used."
	}
	return msg
}

func head(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
