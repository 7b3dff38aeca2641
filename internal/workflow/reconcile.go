package workflow

import (
	"context"
	"fmt"

	"github.com/joss/autopilot/internal/domain"
	"github.com/joss/autopilot/internal/exec"
)

// Reconcile reclassifies executions recorded as running that have no
// backing process; a host restart mid-invocation leaves them behind.
// They become failed with a lost-process reason rather than silently
// resuming. Stranded pending records are swept the same way: a crash
// between the pending persist and the running persist leaves one with
// no process to ever advance it. Returns the reclassified executions.
func (s *Supervisor) Reconcile(ctx context.Context) ([]*domain.WorkflowExecution, error) {
	executions, err := s.store.ListExecutions(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}

	var lost []*domain.WorkflowExecution
	for _, e := range executions {
		if e.Status != domain.ExecRunning && e.Status != domain.ExecPending {
			continue
		}

		s.mu.Lock()
		_, supervised := s.procs[e.ID]
		s.mu.Unlock()
		if supervised {
			continue
		}

		if exec.ProcessAlive(e.PID) {
			// Process still exists, just unsupervised. Leave it running.
			continue
		}

		e.Status = domain.ExecFailed
		e.FailureReason = domain.ReasonLostProcess
		e.PID = 0
		if err := s.store.SaveExecution(ctx, e); err != nil {
			return lost, fmt.Errorf("persist %s: %w", e.ID, err)
		}

		s.log.WithProject(e.ProjectID).WithExecution(e.ID).Warn("lost_process", nil, nil)
		lost = append(lost, e)
	}

	return lost, nil
}
