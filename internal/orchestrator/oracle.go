package orchestrator

import (
	"context"
	"time"

	"github.com/joss/autopilot/internal/domain"
)

// DecisionAction is what the oracle tells the engine to do with an
// ambiguous execution.
type DecisionAction string

const (
	DecisionWait     DecisionAction = "wait"
	DecisionProceed  DecisionAction = "proceed"
	DecisionHeal     DecisionAction = "heal"
	DecisionEscalate DecisionAction = "escalate"
)

// DecisionContext is the evidence handed to the oracle.
type DecisionContext struct {
	OrchestrationID string
	ProjectID       string
	Phase           domain.Phase
	BatchIndex      int // -1 outside implement
	ExecutionID     string
	Elapsed         time.Duration
	SinceProgress   time.Duration
	OutputTail      string
}

// DecisionOracle resolves ambiguous execution states. The engine only
// defines this contract; the heuristic behind it is an external
// collaborator.
type DecisionOracle interface {
	Decide(ctx context.Context, dc DecisionContext) (DecisionAction, error)
}

// OracleFunc adapts a function to the DecisionOracle interface.
type OracleFunc func(ctx context.Context, dc DecisionContext) (DecisionAction, error)

func (f OracleFunc) Decide(ctx context.Context, dc DecisionContext) (DecisionAction, error) {
	return f(ctx, dc)
}

// StaticOracle always returns the same action.
type StaticOracle struct {
	Action DecisionAction
}

func (s StaticOracle) Decide(context.Context, DecisionContext) (DecisionAction, error) {
	return s.Action, nil
}
