// Package orchestrator implements the multi-phase orchestration engine:
// the phase state machine, batch tracking, healing and budget
// enforcement over workflow executions.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joss/autopilot/internal/activity"
	"github.com/joss/autopilot/internal/domain"
	"github.com/joss/autopilot/internal/logging"
	"github.com/joss/autopilot/internal/skills"
	"github.com/joss/autopilot/internal/workflow"
)

// WorkflowRunner is what the engine needs from the workflow supervisor.
type WorkflowRunner interface {
	Start(ctx context.Context, opts workflow.StartOptions) (*domain.WorkflowExecution, error)
	Cancel(ctx context.Context, id string) (*domain.WorkflowExecution, error)
	Get(ctx context.Context, id string) (*domain.WorkflowExecution, error)

	// OutputLen reports the live captured stdout size of an in-flight
	// execution; the engine uses growth as its progress signal.
	OutputLen(id string) int

	// Output returns the live captured stdout of an in-flight
	// execution; the persisted record only carries it after exit.
	Output(id string) string
}

// EngineConfig holds the injected collaborators of the engine.
type EngineConfig struct {
	// Oracle resolves ambiguous execution states. Nil escalates.
	Oracle DecisionOracle

	// Probe supplies the file-activity progress signal. Nil disables it.
	Probe *activity.Probe

	// StaleAfter is the no-progress window before the oracle is consulted.
	StaleAfter time.Duration
}

// Engine drives orchestration executions. Each run behaves as an
// independent single-threaded state machine: at most one workflow
// execution is active under it, and advancement is strictly sequential.
type Engine struct {
	store      domain.Store
	runner     WorkflowRunner
	skills     *skills.Registry
	oracle     DecisionOracle
	probe      *activity.Probe
	staleAfter time.Duration
	log        *logging.Logger

	// Each run is a single-threaded state machine; a per-run lock
	// serializes its read-modify-write cycles so a concurrent Poll
	// cannot overwrite an operator action with a stale record.
	mu       sync.Mutex
	runLocks map[string]*sync.Mutex
}

// NewEngine creates an orchestration engine.
func NewEngine(store domain.Store, runner WorkflowRunner, reg *skills.Registry, cfg EngineConfig) *Engine {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	return &Engine{
		store:      store,
		runner:     runner,
		skills:     reg,
		oracle:     cfg.Oracle,
		probe:      cfg.Probe,
		staleAfter: cfg.StaleAfter,
		log:        logging.New("orchestrator"),
		runLocks:   make(map[string]*sync.Mutex),
	}
}

// lockRun acquires the per-run mutex, creating it on first use. The
// caller must call the returned unlock.
func (e *Engine) lockRun(id string) func() {
	e.mu.Lock()
	l, ok := e.runLocks[id]
	if !ok {
		l = &sync.Mutex{}
		e.runLocks[id] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// StartRun creates an orchestration and launches its first unit of work.
func (e *Engine) StartRun(ctx context.Context, projectID string, cfg domain.OrchestrationConfig, sections []domain.TaskSection, taskIDs []string) (*domain.OrchestrationExecution, error) {
	if _, err := e.store.GetProject(ctx, projectID); err != nil {
		return nil, fmt.Errorf("project not found: %s: %w", projectID, domain.ErrNotFound)
	}

	if cfg.MaxHealAttempts <= 0 {
		cfg.MaxHealAttempts = 2
	}
	if cfg.FallbackBatchSize <= 0 {
		cfg.FallbackBatchSize = 5
	}

	o := &domain.OrchestrationExecution{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		Status:      domain.OrchRunning,
		Phase:       domain.PhaseDesign,
		Config:      cfg,
		Tasks:       sections,
		TaskIDs:     taskIDs,
		CostApplied: make(map[string]bool),
		CreatedAt:   time.Now().UTC(),
	}

	e.advance(ctx, o)
	if err := e.store.SaveOrchestration(ctx, o); err != nil {
		return nil, fmt.Errorf("persist orchestration: %w", err)
	}

	e.log.WithProject(projectID).Info("run_started", map[string]interface{}{
		"orchestration": o.ID,
		"phase":         string(o.Phase),
	})
	return o, nil
}

// Poll observes the active execution and advances the state machine.
// Every transition is persisted before the updated record is returned.
func (e *Engine) Poll(ctx context.Context, id string) (*domain.OrchestrationExecution, error) {
	defer e.lockRun(id)()

	o, err := e.store.GetOrchestration(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status != domain.OrchRunning {
		return o, nil
	}

	if o.ActiveExecutionID == "" {
		e.advance(ctx, o)
		return o, e.store.SaveOrchestration(ctx, o)
	}

	ex, err := e.runner.Get(ctx, o.ActiveExecutionID)
	if err != nil {
		return nil, err
	}

	switch {
	case ex.Status == domain.ExecRunning:
		e.observeProgress(ctx, o, ex)
	case ex.Status == domain.ExecWaitingInput:
		// Surfaced to the caller, never auto-answered. The engine
		// stays on the phase until the execution is resumed.
	default:
		e.handleTerminal(ctx, o, ex)
	}

	return o, e.store.SaveOrchestration(ctx, o)
}

// GetRun returns an orchestration by id.
func (e *Engine) GetRun(ctx context.Context, id string) (*domain.OrchestrationExecution, error) {
	return e.store.GetOrchestration(ctx, id)
}

// ListRuns returns orchestrations sorted by last-updated descending.
func (e *Engine) ListRuns(ctx context.Context, projectID string) ([]*domain.OrchestrationExecution, error) {
	return e.store.ListOrchestrations(ctx, projectID)
}

// Pause stops phase advancement without discarding progress. Valid only
// from running; the in-flight execution is cancelled.
func (e *Engine) Pause(ctx context.Context, id string) (*domain.OrchestrationExecution, error) {
	defer e.lockRun(id)()

	o, err := e.store.GetOrchestration(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status != domain.OrchRunning {
		return nil, fmt.Errorf("pause from %s: %w", o.Status, domain.ErrInvalidTransition)
	}

	e.cancelActive(ctx, o)
	if batch := e.currentBatch(o); batch != nil &&
		(batch.Status == domain.BatchRunning || batch.Status == domain.BatchHealing) {
		batch.Status = domain.BatchPending
	}
	o.Status = domain.OrchPaused
	o.AppendDecision(uuid.NewString(), "paused", "operator pause")

	return o, e.store.SaveOrchestration(ctx, o)
}

// ResumeRun restarts the current unit of work as a fresh execution.
// Valid only from paused.
func (e *Engine) ResumeRun(ctx context.Context, id string) (*domain.OrchestrationExecution, error) {
	defer e.lockRun(id)()

	o, err := e.store.GetOrchestration(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status != domain.OrchPaused {
		return nil, fmt.Errorf("resume from %s: %w", o.Status, domain.ErrInvalidTransition)
	}

	o.Status = domain.OrchRunning
	o.AppendDecision(uuid.NewString(), "resumed", "operator resume")
	e.advance(ctx, o)

	return o, e.store.SaveOrchestration(ctx, o)
}

// CancelRun kills any in-flight execution and terminates the run.
// Valid from any non-terminal status; irreversible.
func (e *Engine) CancelRun(ctx context.Context, id string) (*domain.OrchestrationExecution, error) {
	defer e.lockRun(id)()

	o, err := e.store.GetOrchestration(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status.Terminal() {
		return nil, fmt.Errorf("cancel from %s: %w", o.Status, domain.ErrInvalidTransition)
	}

	e.cancelActive(ctx, o)
	o.Status = domain.OrchFailed
	o.AppendDecision(uuid.NewString(), "cancelled", "operator cancel")

	return o, e.store.SaveOrchestration(ctx, o)
}

// TriggerMerge starts the merge skill. Valid only from waiting_merge.
func (e *Engine) TriggerMerge(ctx context.Context, id string) (*domain.OrchestrationExecution, error) {
	defer e.lockRun(id)()

	o, err := e.store.GetOrchestration(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status != domain.OrchWaitingMerge {
		return nil, fmt.Errorf("trigger merge from %s: %w", o.Status, domain.ErrInvalidTransition)
	}

	o.Status = domain.OrchRunning
	e.startPhase(ctx, o, domain.PhaseMerge)

	return o, e.store.SaveOrchestration(ctx, o)
}

// Recover resolves a needs_attention condition with exactly one of
// retry, skip, or abort. Any other action is rejected without side
// effects.
func (e *Engine) Recover(ctx context.Context, id, action string) (*domain.OrchestrationExecution, error) {
	defer e.lockRun(id)()

	o, err := e.store.GetOrchestration(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status != domain.OrchNeedsAttention {
		return nil, fmt.Errorf("recover from %s: %w", o.Status, domain.ErrInvalidTransition)
	}

	switch action {
	case "retry":
		// Heal attempts reset only when the trigger was decision-budget
		// exhaustion; a heal-budget trigger keeps the counter.
		fromDecisionBudget := o.AttentionReason == domain.AttentionDecisionBudget
		if batch := e.currentBatch(o); batch != nil &&
			(batch.Status == domain.BatchFailed || batch.Status == domain.BatchHealing) {
			batch.Status = domain.BatchPending
			if fromDecisionBudget {
				batch.HealAttempts = 0
			}
		}
		if fromDecisionBudget {
			o.DecisionsUsed = 0
		}
		o.AttentionReason = ""
		o.Status = domain.OrchRunning
		o.AppendDecision(uuid.NewString(), "recover", "retry")
		e.advance(ctx, o)

	case "skip":
		if batch := e.currentBatch(o); batch != nil {
			batch.Status = domain.BatchCompleted
			o.Batches.Current++
		} else {
			o.Phase = o.Phase.Next()
		}
		o.AttentionReason = ""
		o.Status = domain.OrchRunning
		o.AppendDecision(uuid.NewString(), "recover", "skip")
		e.advance(ctx, o)

	case "abort":
		o.Status = domain.OrchFailed
		o.AppendDecision(uuid.NewString(), "recover", "abort")

	default:
		return nil, fmt.Errorf("recovery action %q: %w", action, domain.ErrInvalidTransition)
	}

	return o, e.store.SaveOrchestration(ctx, o)
}

// ── state machine internals ──────────────────────────────────────────────────

// advance launches the next unit of work. It loops through skipped
// phases and stops as soon as an execution starts or the run leaves
// the running status.
func (e *Engine) advance(ctx context.Context, o *domain.OrchestrationExecution) {
	for o.Status == domain.OrchRunning {
		switch o.Phase {
		case domain.PhaseDesign:
			if o.Config.SkipDesign {
				e.skipPhase(o)
				continue
			}
			e.startPhase(ctx, o, domain.PhaseDesign)
			return

		case domain.PhaseAnalyze:
			if o.Config.SkipAnalyze {
				e.skipPhase(o)
				continue
			}
			e.startPhase(ctx, o, domain.PhaseAnalyze)
			return

		case domain.PhaseImplement:
			if o.Batches == nil {
				o.Batches = ComputeBatches(o.Tasks, o.TaskIDs, o.Config.FallbackBatchSize)
				o.AppendDecision(uuid.NewString(), "batches_computed",
					fmt.Sprintf("%d batches", o.Batches.Total))
			}
			batch := o.Batches.CurrentItem()
			if batch == nil {
				o.Phase = domain.PhaseVerify
				continue
			}
			e.startBatch(ctx, o, batch)
			return

		case domain.PhaseVerify:
			if o.Config.SkipVerify {
				e.skipPhase(o)
				continue
			}
			e.startPhase(ctx, o, domain.PhaseVerify)
			return

		case domain.PhaseMerge:
			if o.Config.SkipMerge {
				e.skipPhase(o)
				continue
			}
			if !o.Config.AutoMerge {
				o.Status = domain.OrchWaitingMerge
				o.AppendDecision(uuid.NewString(), "waiting_merge", "auto-merge disabled")
				return
			}
			e.startPhase(ctx, o, domain.PhaseMerge)
			return

		case domain.PhaseComplete:
			o.Status = domain.OrchComplete
			o.AppendDecision(uuid.NewString(), "complete", "")
			return

		default:
			return
		}
	}
}

func (e *Engine) skipPhase(o *domain.OrchestrationExecution) {
	o.AppendDecision(uuid.NewString(), "skipped", string(o.Phase))
	o.Phase = o.Phase.Next()
}

// startPhase launches the single execution of a non-implement phase.
func (e *Engine) startPhase(ctx context.Context, o *domain.OrchestrationExecution, phase domain.Phase) {
	tracker := NewBudgetTracker(o.Config.Budget)
	if err := tracker.CheckTotal(o.TotalCostUSD); err != nil {
		e.needsAttention(o, domain.AttentionTotalBudget, err.Error())
		return
	}

	skill, err := e.skills.ForPhase(phase)
	if err != nil {
		e.needsAttention(o, domain.AttentionPhaseFailed, err.Error())
		return
	}

	ex, err := e.runner.Start(ctx, workflow.StartOptions{
		ProjectID: o.ProjectID,
		Skill:     skill,
		Context:   o.Config.AdditionalContext,
	})
	if err != nil {
		e.needsAttention(o, domain.AttentionPhaseFailed, err.Error())
		return
	}

	// A retried phase replaces the linked id; the prior attempt moves
	// to Superseded so its cost stays attributable to the run.
	switch phase {
	case domain.PhaseDesign:
		e.supersede(o, o.Executions.Design)
		o.Executions.Design = ex.ID
	case domain.PhaseAnalyze:
		e.supersede(o, o.Executions.Analyze)
		o.Executions.Analyze = ex.ID
	case domain.PhaseVerify:
		e.supersede(o, o.Executions.Verify)
		o.Executions.Verify = ex.ID
	case domain.PhaseMerge:
		e.supersede(o, o.Executions.Merge)
		o.Executions.Merge = ex.ID
	}

	e.setActive(o, ex.ID, false)
	o.AppendDecision(uuid.NewString(), "phase_started", skill)
}

// startBatch launches the execution for the current implement batch.
func (e *Engine) startBatch(ctx context.Context, o *domain.OrchestrationExecution, batch *domain.BatchItem) {
	tracker := NewBudgetTracker(o.Config.Budget)
	if err := tracker.CheckTotal(o.TotalCostUSD); err != nil {
		e.needsAttention(o, domain.AttentionTotalBudget, err.Error())
		return
	}
	if err := tracker.CheckBatch(batch.CostUSD); err != nil {
		e.needsAttention(o, domain.AttentionBatchBudget, err.Error())
		return
	}

	skill, err := e.skills.ForPhase(domain.PhaseImplement)
	if err != nil {
		e.needsAttention(o, domain.AttentionPhaseFailed, err.Error())
		return
	}

	ex, err := e.runner.Start(ctx, workflow.StartOptions{
		ProjectID: o.ProjectID,
		Skill:     skill,
		TaskIDs:   batch.TaskIDs,
		Context:   o.Config.AdditionalContext,
	})
	if err != nil {
		e.needsAttention(o, domain.AttentionPhaseFailed, err.Error())
		return
	}

	batch.Status = domain.BatchRunning
	o.Executions.Implement = append(o.Executions.Implement, ex.ID)
	e.setActive(o, ex.ID, false)
	o.AppendDecision(uuid.NewString(), "batch_started",
		fmt.Sprintf("%s (%d tasks)", batch.Section, len(batch.TaskIDs)))
}

// startHealer launches a remediation execution for a failed batch.
func (e *Engine) startHealer(ctx context.Context, o *domain.OrchestrationExecution, batch *domain.BatchItem, failed *domain.WorkflowExecution) {
	tracker := NewBudgetTracker(o.Config.Budget)
	if err := tracker.CheckTotal(o.TotalCostUSD); err != nil {
		e.needsAttention(o, domain.AttentionTotalBudget, err.Error())
		return
	}
	if err := tracker.CheckBatch(batch.CostUSD); err != nil {
		e.needsAttention(o, domain.AttentionBatchBudget, err.Error())
		return
	}

	batch.HealAttempts++
	batch.Status = domain.BatchHealing

	ex, err := e.runner.Start(ctx, workflow.StartOptions{
		ProjectID: o.ProjectID,
		Skill:     e.skills.Healer(),
		TaskIDs:   batch.TaskIDs,
		Context:   failureContext(failed),
	})
	if err != nil {
		batch.Status = domain.BatchFailed
		e.needsAttention(o, domain.AttentionPhaseFailed, err.Error())
		return
	}

	o.Executions.Healers = append(o.Executions.Healers, ex.ID)
	e.setActive(o, ex.ID, true)
	o.AppendDecision(uuid.NewString(), "heal_started",
		fmt.Sprintf("%s attempt %d/%d", batch.Section, batch.HealAttempts, o.Config.MaxHealAttempts))
}

// handleTerminal folds a finished execution back into the run.
func (e *Engine) handleTerminal(ctx context.Context, o *domain.OrchestrationExecution, ex *domain.WorkflowExecution) {
	isHealer := o.ActiveIsHealer
	batch := e.currentBatch(o)
	e.applyCost(o, ex, isHealer, batch)
	o.ActiveExecutionID = ""
	o.ActiveIsHealer = false

	switch ex.Status {
	case domain.ExecCompleted:
		e.completeUnit(ctx, o)

	case domain.ExecFailed:
		if batch != nil {
			batch.Status = domain.BatchFailed
			e.healOrEscalate(ctx, o, batch, ex)
			return
		}
		e.needsAttention(o, domain.AttentionPhaseFailed, ex.FailureReason)

	case domain.ExecCancelled:
		// Cancelled out from under the engine by an external caller.
		e.needsAttention(o, domain.AttentionPhaseFailed, "execution cancelled externally")
	}
}

// completeUnit marks the current unit satisfied and advances.
func (e *Engine) completeUnit(ctx context.Context, o *domain.OrchestrationExecution) {
	if batch := e.currentBatch(o); batch != nil {
		batch.Status = domain.BatchCompleted
		o.Batches.Current++
		o.AppendDecision(uuid.NewString(), "batch_completed", batch.Section)

		if o.Config.PauseBetweenBatches && o.Batches.CurrentItem() != nil {
			o.Status = domain.OrchPaused
			o.AppendDecision(uuid.NewString(), "paused", "pause between batches")
			return
		}
		e.advance(ctx, o)
		return
	}

	if o.Phase == domain.PhaseMerge {
		o.Phase = domain.PhaseComplete
		o.Status = domain.OrchComplete
		o.AppendDecision(uuid.NewString(), "complete", "merge succeeded")
		return
	}

	o.Phase = o.Phase.Next()
	e.advance(ctx, o)
}

// healOrEscalate runs the healing decision for a failed batch.
func (e *Engine) healOrEscalate(ctx context.Context, o *domain.OrchestrationExecution, batch *domain.BatchItem, failed *domain.WorkflowExecution) {
	controller := NewHealingController(o.Config, NewBudgetTracker(o.Config.Budget))
	if reason, ok := controller.Evaluate(o, batch); !ok {
		e.needsAttention(o, reason, fmt.Sprintf("%s failed: %s", batch.Section, failed.FailureReason))
		return
	}
	e.startHealer(ctx, o, batch, failed)
}

// observeProgress decides whether the active execution is stale enough
// to consult the decision oracle.
func (e *Engine) observeProgress(ctx context.Context, o *domain.OrchestrationExecution, ex *domain.WorkflowExecution) {
	now := time.Now().UTC()

	if outLen := e.runner.OutputLen(ex.ID); outLen > o.LastOutputLen {
		o.LastOutputLen = outLen
		o.LastProgressAt = now
		return
	}

	if e.probe != nil {
		if p, err := e.store.GetProject(ctx, o.ProjectID); err == nil && e.probe.ActiveSince(p.Path, o.LastProgressAt) {
			o.LastProgressAt = now
			return
		}
	}

	if o.LastProgressAt.IsZero() {
		o.LastProgressAt = now
		return
	}
	if now.Sub(o.LastProgressAt) < e.staleAfter {
		return
	}

	e.consult(ctx, o, ex)
}

// consult asks the decision oracle what to do with a stale execution.
func (e *Engine) consult(ctx context.Context, o *domain.OrchestrationExecution, ex *domain.WorkflowExecution) {
	tracker := NewBudgetTracker(o.Config.Budget)
	if !tracker.CanConsult(o.DecisionsUsed) {
		e.cancelActive(ctx, o)
		e.needsAttention(o, domain.AttentionDecisionBudget, "decision budget exhausted")
		return
	}
	if e.oracle == nil {
		e.cancelActive(ctx, o)
		e.needsAttention(o, domain.AttentionOracleEscalated, "no oracle configured")
		return
	}

	o.DecisionsUsed++
	batchIndex := -1
	if batch := e.currentBatch(o); batch != nil {
		batchIndex = batch.Index
	}

	action, err := e.oracle.Decide(ctx, DecisionContext{
		OrchestrationID: o.ID,
		ProjectID:       o.ProjectID,
		Phase:           o.Phase,
		BatchIndex:      batchIndex,
		ExecutionID:     ex.ID,
		Elapsed:         time.Since(ex.StartedAt),
		SinceProgress:   time.Since(o.LastProgressAt),
		OutputTail:      tail(e.runner.Output(ex.ID), 2048),
	})
	if err != nil {
		action = DecisionEscalate
	}
	o.AppendDecision(uuid.NewString(), "oracle", string(action))

	switch action {
	case DecisionWait:
		// Poll again later; reset the window so the oracle is not
		// hammered on every poll.
		o.LastProgressAt = time.Now().UTC()

	case DecisionProceed:
		e.cancelActive(ctx, o)
		e.completeUnit(ctx, o)

	case DecisionHeal:
		batch := e.currentBatch(o)
		if batch == nil {
			e.cancelActive(ctx, o)
			e.needsAttention(o, domain.AttentionOracleEscalated, "heal requested outside implement")
			return
		}
		e.cancelActive(ctx, o)
		batch.Status = domain.BatchFailed
		failed, _ := e.runner.Get(ctx, ex.ID)
		if failed == nil {
			failed = ex
		}
		e.healOrEscalate(ctx, o, batch, failed)

	default:
		e.cancelActive(ctx, o)
		e.needsAttention(o, domain.AttentionOracleEscalated, string(action))
	}
}

// cancelActive terminates the in-flight execution, folds its cost in,
// and clears the active pointer.
func (e *Engine) cancelActive(ctx context.Context, o *domain.OrchestrationExecution) {
	if o.ActiveExecutionID == "" {
		return
	}

	ex, err := e.runner.Cancel(ctx, o.ActiveExecutionID)
	if err != nil {
		// Already terminal; fetch the record for cost accounting.
		ex, _ = e.runner.Get(ctx, o.ActiveExecutionID)
	}
	if ex != nil && ex.Status.Terminal() {
		e.applyCost(o, ex, o.ActiveIsHealer, e.currentBatch(o))
	}

	o.ActiveExecutionID = ""
	o.ActiveIsHealer = false
}

// applyCost adds a terminal execution's cost to the run totals exactly
// once per execution id, so resumes are never double-counted.
func (e *Engine) applyCost(o *domain.OrchestrationExecution, ex *domain.WorkflowExecution, isHealer bool, batch *domain.BatchItem) {
	if o.CostApplied == nil {
		o.CostApplied = make(map[string]bool)
	}
	if o.CostApplied[ex.ID] {
		return
	}
	o.CostApplied[ex.ID] = true
	o.TotalCostUSD += ex.CostUSD
	if isHealer {
		o.HealingCostUSD += ex.CostUSD
	}
	if batch != nil {
		batch.CostUSD += ex.CostUSD
	}
}

func (e *Engine) supersede(o *domain.OrchestrationExecution, prior string) {
	if prior != "" {
		o.Executions.Superseded = append(o.Executions.Superseded, prior)
	}
}

func (e *Engine) setActive(o *domain.OrchestrationExecution, id string, isHealer bool) {
	o.ActiveExecutionID = id
	o.ActiveIsHealer = isHealer
	o.LastProgressAt = time.Now().UTC()
	o.LastOutputLen = 0
}

func (e *Engine) currentBatch(o *domain.OrchestrationExecution) *domain.BatchItem {
	if o.Phase != domain.PhaseImplement || o.Batches == nil {
		return nil
	}
	return o.Batches.CurrentItem()
}

func (e *Engine) needsAttention(o *domain.OrchestrationExecution, reason, detail string) {
	o.Status = domain.OrchNeedsAttention
	o.AttentionReason = reason
	o.AppendDecision(uuid.NewString(), "needs_attention", fmt.Sprintf("%s: %s", reason, detail))
	e.log.WithProject(o.ProjectID).Warn("needs_attention", map[string]interface{}{
		"orchestration": o.ID,
		"reason":        reason,
		"detail":        detail,
	}, nil)
}

func failureContext(failed *domain.WorkflowExecution) string {
	ctx := failed.FailureReason
	if logs := tail(failed.Logs, 1024); logs != "" {
		ctx += "\n" + logs
	}
	return ctx
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
