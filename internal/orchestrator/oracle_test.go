package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/joss/autopilot/internal/domain"
	"github.com/joss/autopilot/internal/skills"
)

// staleConfig makes every running execution look stale on the next poll.
func staleConfig(oracle DecisionOracle) EngineConfig {
	return EngineConfig{StaleAfter: time.Nanosecond, Oracle: oracle}
}

func TestProgressSuppressesOracle(t *testing.T) {
	calls := 0
	oracle := OracleFunc(func(ctx context.Context, dc DecisionContext) (DecisionAction, error) {
		calls++
		return DecisionWait, nil
	})
	e, _, runner := testEngine(t, staleConfig(oracle))

	o, err := e.StartRun(context.Background(), "proj1", implOnly(), nil, []string{"t1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Output grew since the last poll, so the run is making progress.
	runner.outLen[o.ActiveExecutionID] = 128
	o = poll(t, e, o.ID)
	if calls != 0 {
		t.Fatalf("oracle consulted despite progress")
	}
	if o.LastOutputLen != 128 {
		t.Fatalf("progress not recorded: %d", o.LastOutputLen)
	}
}

func TestOracleWait(t *testing.T) {
	var seen DecisionContext
	oracle := OracleFunc(func(ctx context.Context, dc DecisionContext) (DecisionAction, error) {
		seen = dc
		return DecisionWait, nil
	})
	e, _, runner := testEngine(t, staleConfig(oracle))

	o, err := e.StartRun(context.Background(), "proj1", implOnly(), nil, []string{"t1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	// The record carries no output until exit; the oracle gets the
	// live stream.
	runner.out[o.ActiveExecutionID] = "still chewing on t1\n"

	time.Sleep(time.Millisecond)
	o = poll(t, e, o.ID)
	if o.Status != domain.OrchRunning {
		t.Fatalf("wait changed status to %s", o.Status)
	}
	if o.DecisionsUsed != 1 {
		t.Fatalf("decisions used = %d", o.DecisionsUsed)
	}
	if seen.Phase != domain.PhaseImplement || seen.BatchIndex != 0 {
		t.Fatalf("decision context = %+v", seen)
	}
	if seen.OutputTail != "still chewing on t1\n" {
		t.Fatalf("output tail = %q", seen.OutputTail)
	}
}

func TestOracleProceed(t *testing.T) {
	oracle := OracleFunc(func(ctx context.Context, dc DecisionContext) (DecisionAction, error) {
		return DecisionProceed, nil
	})
	e, store, _ := testEngine(t, staleConfig(oracle))

	o, err := e.StartRun(context.Background(), "proj1", implOnly(), nil, []string{"t1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	activeID := o.ActiveExecutionID

	time.Sleep(time.Millisecond)
	o = poll(t, e, o.ID)
	if o.Status != domain.OrchComplete {
		t.Fatalf("expected complete, got %s", o.Status)
	}
	ex, _ := store.GetExecution(context.Background(), activeID)
	if ex.Status != domain.ExecCancelled {
		t.Fatalf("stalled execution status = %s", ex.Status)
	}
}

func TestOracleHeal(t *testing.T) {
	oracle := OracleFunc(func(ctx context.Context, dc DecisionContext) (DecisionAction, error) {
		return DecisionHeal, nil
	})
	e, _, runner := testEngine(t, staleConfig(oracle))

	o, err := e.StartRun(context.Background(), "proj1", implOnly(), nil, []string{"t1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	time.Sleep(time.Millisecond)
	o = poll(t, e, o.ID)
	if runner.lastSkill() != skills.HealSkill {
		t.Fatalf("expected healer, got %s", runner.lastSkill())
	}
	if !o.ActiveIsHealer {
		t.Fatal("active execution not marked as healer")
	}
}

func TestOracleEscalate(t *testing.T) {
	oracle := OracleFunc(func(ctx context.Context, dc DecisionContext) (DecisionAction, error) {
		return DecisionEscalate, nil
	})
	e, _, _ := testEngine(t, staleConfig(oracle))

	o, err := e.StartRun(context.Background(), "proj1", implOnly(), nil, []string{"t1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	time.Sleep(time.Millisecond)
	o = poll(t, e, o.ID)
	if o.Status != domain.OrchNeedsAttention || o.AttentionReason != domain.AttentionOracleEscalated {
		t.Fatalf("got status=%s reason=%q", o.Status, o.AttentionReason)
	}
}

func TestOracleErrorEscalates(t *testing.T) {
	oracle := OracleFunc(func(ctx context.Context, dc DecisionContext) (DecisionAction, error) {
		return "", errors.New("oracle unreachable")
	})
	e, _, _ := testEngine(t, staleConfig(oracle))

	o, err := e.StartRun(context.Background(), "proj1", implOnly(), nil, []string{"t1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	time.Sleep(time.Millisecond)
	o = poll(t, e, o.ID)
	if o.Status != domain.OrchNeedsAttention {
		t.Fatalf("expected needs_attention, got %s", o.Status)
	}
}

func TestDecisionBudget(t *testing.T) {
	oracle := OracleFunc(func(ctx context.Context, dc DecisionContext) (DecisionAction, error) {
		return DecisionWait, nil
	})
	e, _, _ := testEngine(t, staleConfig(oracle))

	cfg := implOnly()
	cfg.Budget.MaxDecisions = 1
	o, err := e.StartRun(context.Background(), "proj1", cfg, nil, []string{"t1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	time.Sleep(time.Millisecond)
	o = poll(t, e, o.ID)
	if o.DecisionsUsed != 1 || o.Status != domain.OrchRunning {
		t.Fatalf("first consult: used=%d status=%s", o.DecisionsUsed, o.Status)
	}

	// Budget spent: the next stall escalates without consulting.
	time.Sleep(time.Millisecond)
	o = poll(t, e, o.ID)
	if o.Status != domain.OrchNeedsAttention || o.AttentionReason != domain.AttentionDecisionBudget {
		t.Fatalf("got status=%s reason=%q", o.Status, o.AttentionReason)
	}

	// Retry after decision-budget escalation resets the counter.
	o, err = e.Recover(context.Background(), o.ID, "retry")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if o.DecisionsUsed != 0 {
		t.Fatalf("decisions not reset: %d", o.DecisionsUsed)
	}
}

func TestStaticOracle(t *testing.T) {
	action, err := StaticOracle{Action: DecisionProceed}.Decide(context.Background(), DecisionContext{})
	if err != nil || action != DecisionProceed {
		t.Fatalf("got %s, %v", action, err)
	}
}
