package agent

import (
	"errors"
	"fmt"
)

// ErrInvalidInput rejects a question before any external call is made.
// Match with errors.Is.
var ErrInvalidInput = errors.New("invalid input")

// PlanningError means the decomposition call produced zero usable
// subqueries. The loop falls back to researching the original question.
type PlanningError struct {
	Err error
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning failed: %v", e.Err)
}

func (e *PlanningError) Unwrap() error { return e.Err }

// ResearcherFatalError means the search call itself failed for a subquery,
// so that subquery produced no URLs at all. The loop records it as a failed
// round input and keeps going.
type ResearcherFatalError struct {
	Subquery string
	Err      error
}

func (e *ResearcherFatalError) Error() string {
	return fmt.Sprintf("search failed for %q: %v", e.Subquery, e.Err)
}

func (e *ResearcherFatalError) Unwrap() error { return e.Err }

// ReflectionError means the reflection call failed or returned an
// unparseable verdict. The safe fallback is to stop searching.
type ReflectionError struct {
	Err error
}

func (e *ReflectionError) Error() string {
	return fmt.Sprintf("reflection failed: %v", e.Err)
}

func (e *ReflectionError) Unwrap() error { return e.Err }

// SynthesisError means both synthesis shots failed; the loop falls back
// to the raw-findings report.
type SynthesisError struct {
	Shot string // "outline" or "report"
	Err  error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis %s failed: %v", e.Shot, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }
