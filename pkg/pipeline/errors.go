package pipeline

import (
	"errors"
	"fmt"
)

// Error codes for state-machine failures. None of these should ever
// crash the dashboard: they are surfaced to the operator and the run
// continues where possible.
const (
	CodeInvalidTransition   = "E_INVALID_TRANSITION"
	CodeRetryExhausted      = "E_RETRY_EXHAUSTED"
	CodeUnknownRun          = "E_UNKNOWN_RUN"
	CodeEmptySelection      = "E_EMPTY_SELECTION"
	CodeCollaboratorFailure = "E_COLLABORATOR_FAILURE"
)

var (
	ErrInvalidTransition = errors.New(CodeInvalidTransition)
	ErrRetryExhausted    = errors.New(CodeRetryExhausted)
	ErrUnknownRun        = errors.New(CodeUnknownRun)
	ErrEmptySelection    = errors.New(CodeEmptySelection)
)

// StateError is a coded state-machine error carrying enough context to
// render an operator-visible diagnostic.
type StateError struct {
	Code    string
	RunID   string
	Step    Step
	Message string
}

func (e *StateError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: run=%q step=%q", e.Code, e.RunID, e.Step)
	}
	return fmt.Sprintf("%s: run=%q step=%q: %s", e.Code, e.RunID, e.Step, e.Message)
}

func (e *StateError) Is(target error) bool {
	te, ok := target.(interface{ Error() string })
	if !ok {
		return false
	}
	switch target {
	case ErrInvalidTransition, ErrRetryExhausted, ErrUnknownRun, ErrEmptySelection:
		return e.Code == te.Error()
	}
	return false
}

func invalidTransition(runID string, step Step, from, to StepStatus) error {
	return &StateError{
		Code:    CodeInvalidTransition,
		RunID:   runID,
		Step:    step,
		Message: fmt.Sprintf("%s -> %s", from, to),
	}
}

func unknownRun(runID string) error {
	return &StateError{Code: CodeUnknownRun, RunID: runID}
}
