package pipeline

import (
	"time"

	"github.com/sadopc/bankql/internal/adapter"
	"github.com/sadopc/bankql/internal/correct"
	"github.com/sadopc/bankql/internal/validate"
)

// State is a step of the turn state machine.
type State string

const (
	StateNew        State = "new"
	StateClarifying State = "clarifying"
	StateGenerating State = "generating"
	StateCorrecting State = "correcting"
	StateValidating State = "validating"
	StateExecuting  State = "executing"
	StateDone       State = "done"
	StateError      State = "error"
)

// Status is the outcome reported to the caller.
type Status string

const (
	StatusClarification Status = "clarification_needed"
	StatusSuccess       Status = "success"
	StatusError         Status = "error"
)

// ErrorKind classifies a failed turn.
type ErrorKind string

const (
	KindGeneration ErrorKind = "generation_failure"
	KindSafety     ErrorKind = "safety_rejected"
	KindSyntax     ErrorKind = "syntax_invalid"
	KindSchema     ErrorKind = "schema_invalid"
	KindExecution  ErrorKind = "execution_failure"
)

// Confidence reported per outcome.
const (
	ConfidenceClarification = 0.3
	ConfidenceGenerated     = 0.9
	ConfidenceFallback      = 0.7
	ConfidenceInvalid       = 0.5
	ConfidenceGeneration    = 0.0
	ConfidenceExecution     = 0.5
)

const suggestRephrase = "Please try rephrasing your question or provide more specific details."

// TurnError describes why a turn did not succeed.
type TurnError struct {
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
}

func (e *TurnError) Error() string { return string(e.Kind) + ": " + e.Message }

// Response is the result of one turn. SQL holds the corrected text whenever
// generation produced one, even if validation rejected it; Result is only
// set after a successful execution.
type Response struct {
	TurnID            string               `json:"turn_id"`
	Status            Status               `json:"status"`
	State             State                `json:"state"`
	SQL               string               `json:"sql,omitempty"`
	Explanation       string               `json:"explanation,omitempty"`
	FollowUpQuestions []string             `json:"follow_up_questions,omitempty"`
	Confidence        float64              `json:"confidence"`
	Fallback          bool                 `json:"fallback"`
	Corrections       correct.Log          `json:"corrections,omitempty"`
	Validation        *validate.Result     `json:"validation,omitempty"`
	Result            *adapter.QueryResult `json:"result,omitempty"`
	Error             *TurnError           `json:"error,omitempty"`
	Duration          time.Duration        `json:"duration"`
}
