package orchestrator

import (
	"fmt"

	"github.com/joss/autopilot/internal/domain"
)

// BudgetTracker enforces the four cost ceilings of a run. Pure
// bookkeeping over persisted totals; a zero ceiling means unlimited.
type BudgetTracker struct {
	budget domain.Budget
}

// NewBudgetTracker creates a tracker for a run's budget.
func NewBudgetTracker(b domain.Budget) *BudgetTracker {
	return &BudgetTracker{budget: b}
}

// CheckTotal refuses any execution start once the run total meets the
// overall cap.
func (t *BudgetTracker) CheckTotal(totalSoFar float64) error {
	if t.budget.MaxTotalUSD > 0 && totalSoFar >= t.budget.MaxTotalUSD {
		return fmt.Errorf("total cost %.2f meets cap %.2f: %w",
			totalSoFar, t.budget.MaxTotalUSD, domain.ErrBudgetExceeded)
	}
	return nil
}

// CheckBatch refuses a batch or healer start when the batch's
// executions so far already meet the per-batch cap.
func (t *BudgetTracker) CheckBatch(batchSoFar float64) error {
	if t.budget.MaxPerBatchUSD > 0 && batchSoFar >= t.budget.MaxPerBatchUSD {
		return fmt.Errorf("batch cost %.2f meets cap %.2f: %w",
			batchSoFar, t.budget.MaxPerBatchUSD, domain.ErrBudgetExceeded)
	}
	return nil
}

// CheckHealing refuses a healer when accumulated healing spend already
// meets the healing budget.
func (t *BudgetTracker) CheckHealing(healingSoFar float64) error {
	if t.budget.HealingUSD > 0 && healingSoFar >= t.budget.HealingUSD {
		return fmt.Errorf("healing cost %.2f meets cap %.2f: %w",
			healingSoFar, t.budget.HealingUSD, domain.ErrBudgetExceeded)
	}
	return nil
}

// CanConsult reports whether another oracle consultation is within the
// decision budget.
func (t *BudgetTracker) CanConsult(used int) bool {
	return t.budget.MaxDecisions <= 0 || used < t.budget.MaxDecisions
}
