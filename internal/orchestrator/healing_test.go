package orchestrator

import (
	"testing"

	"github.com/joss/autopilot/internal/domain"
)

func TestHealingEvaluate(t *testing.T) {
	run := func(cfg domain.OrchestrationConfig, o *domain.OrchestrationExecution, batch *domain.BatchItem) (string, bool) {
		h := NewHealingController(cfg, NewBudgetTracker(cfg.Budget))
		return h.Evaluate(o, batch)
	}

	base := domain.OrchestrationConfig{AutoHeal: true, MaxHealAttempts: 2}

	if reason, ok := run(base, &domain.OrchestrationExecution{}, &domain.BatchItem{}); !ok || reason != "" {
		t.Fatalf("fresh batch refused: %q", reason)
	}

	noHeal := base
	noHeal.AutoHeal = false
	if reason, ok := run(noHeal, &domain.OrchestrationExecution{}, &domain.BatchItem{}); ok || reason != domain.AttentionPhaseFailed {
		t.Fatalf("auto-heal off: ok=%v reason=%q", ok, reason)
	}

	if reason, ok := run(base, &domain.OrchestrationExecution{}, &domain.BatchItem{HealAttempts: 2}); ok || reason != domain.AttentionHealExhausted {
		t.Fatalf("exhausted: ok=%v reason=%q", ok, reason)
	}

	capped := base
	capped.Budget.HealingUSD = 1.0
	o := &domain.OrchestrationExecution{HealingCostUSD: 1.0}
	if reason, ok := run(capped, o, &domain.BatchItem{}); ok || reason != domain.AttentionHealBudget {
		t.Fatalf("healing budget: ok=%v reason=%q", ok, reason)
	}
}
