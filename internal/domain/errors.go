package domain

import "errors"

// Error taxonomy shared by the supervisor and the engine.
var (
	// ErrNotFound indicates an unknown execution, orchestration, or
	// project id. Never retried.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition indicates an operation attempted from a
	// status that disallows it. No state change.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrBudgetExceeded indicates one of the four budget ceilings would
	// be exceeded. Forces needs_attention, never auto-retried.
	ErrBudgetExceeded = errors.New("budget exceeded")
)

// Failure reasons recorded on terminal execution records.
const (
	ReasonTimeout       = "timeout"
	ReasonProcessFailed = "process failure"
	ReasonParseFailed   = "output parse failure"
	ReasonLostProcess   = "lost process"
	ReasonCancelled     = "cancelled"
)
