package orchestrator

import (
	"github.com/joss/autopilot/internal/domain"
)

// HealingController decides whether a failed batch gets a remediation
// attempt. Bounded by the attempt cap and the healing budget.
type HealingController struct {
	cfg    domain.OrchestrationConfig
	budget *BudgetTracker
}

// NewHealingController creates a controller for one run's configuration.
func NewHealingController(cfg domain.OrchestrationConfig, budget *BudgetTracker) *HealingController {
	return &HealingController{cfg: cfg, budget: budget}
}

// Evaluate reports whether the batch may be healed. A refusal returns
// ok=false and the attention reason the engine escalates with; the
// batch stays failed.
func (h *HealingController) Evaluate(o *domain.OrchestrationExecution, batch *domain.BatchItem) (reason string, ok bool) {
	if !h.cfg.AutoHeal {
		return domain.AttentionPhaseFailed, false
	}
	if batch.HealAttempts >= h.cfg.MaxHealAttempts {
		return domain.AttentionHealExhausted, false
	}
	if err := h.budget.CheckHealing(o.HealingCostUSD); err != nil {
		return domain.AttentionHealBudget, false
	}
	return "", true
}
