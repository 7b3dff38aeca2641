package domain

import "time"

// OrchestrationStatus is the lifecycle state of one multi-phase run.
type OrchestrationStatus string

const (
	OrchRunning        OrchestrationStatus = "running"
	OrchPaused         OrchestrationStatus = "paused"
	OrchWaitingMerge   OrchestrationStatus = "waiting_merge"
	OrchNeedsAttention OrchestrationStatus = "needs_attention"
	OrchFailed         OrchestrationStatus = "failed"
	OrchComplete       OrchestrationStatus = "complete"
)

// Terminal reports whether the orchestration can make no further transition.
func (s OrchestrationStatus) Terminal() bool {
	return s == OrchComplete || s == OrchFailed
}

// Phase identifies a step of the nominal phase order.
type Phase string

const (
	PhaseDesign    Phase = "design"
	PhaseAnalyze   Phase = "analyze"
	PhaseImplement Phase = "implement"
	PhaseVerify    Phase = "verify"
	PhaseMerge     Phase = "merge"
	PhaseComplete  Phase = "complete"
)

// PhaseOrder is the nominal phase sequence.
var PhaseOrder = []Phase{PhaseDesign, PhaseAnalyze, PhaseImplement, PhaseVerify, PhaseMerge, PhaseComplete}

// Next returns the phase after p, or PhaseComplete at the end.
func (p Phase) Next() Phase {
	for i, cur := range PhaseOrder {
		if cur == p && i+1 < len(PhaseOrder) {
			return PhaseOrder[i+1]
		}
	}
	return PhaseComplete
}

// Budget holds the four cost ceilings for a run. Zero means unlimited.
type Budget struct {
	MaxPerBatchUSD float64 `json:"max_per_batch_usd"`
	MaxTotalUSD    float64 `json:"max_total_usd"`
	HealingUSD     float64 `json:"healing_usd"`
	MaxDecisions   int     `json:"max_decisions"`
}

// OrchestrationConfig is the immutable per-run configuration.
type OrchestrationConfig struct {
	SkipDesign  bool `json:"skip_design"`
	SkipAnalyze bool `json:"skip_analyze"`
	SkipVerify  bool `json:"skip_verify"`
	SkipMerge   bool `json:"skip_merge"`

	AutoMerge           bool `json:"auto_merge"`
	AutoHeal            bool `json:"auto_heal"`
	MaxHealAttempts     int  `json:"max_heal_attempts"`
	FallbackBatchSize   int  `json:"fallback_batch_size"`
	PauseBetweenBatches bool `json:"pause_between_batches"`

	// AdditionalContext is free-text forwarded to every invocation.
	AdditionalContext string `json:"additional_context,omitempty"`

	Budget Budget `json:"budget"`
}

// BatchStatus is the lifecycle state of one implement batch.
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
	BatchHealing   BatchStatus = "healing"
)

// BatchItem is a contiguous subset of implement tasks executed as one
// workflow execution. Retried in place, never re-indexed.
type BatchItem struct {
	Index        int         `json:"index"`
	Section      string      `json:"section"`
	TaskIDs      []string    `json:"task_ids"`
	Status       BatchStatus `json:"status"`
	HealAttempts int         `json:"heal_attempts"`
	CostUSD      float64     `json:"cost_usd"`
}

// BatchTracking follows implement-phase progress. Batches are computed
// once when implement begins and are not re-split afterwards.
type BatchTracking struct {
	Total   int         `json:"total"`
	Current int         `json:"current"`
	Items   []BatchItem `json:"items"`
}

// CurrentItem returns the batch at the current index, or nil past the end.
func (b *BatchTracking) CurrentItem() *BatchItem {
	if b == nil || b.Current >= len(b.Items) {
		return nil
	}
	return &b.Items[b.Current]
}

// PhaseExecutions maps phases to the workflow execution ids they ran.
// The single-valued fields hold the latest attempt of their phase;
// attempts replaced by a retry move to Superseded so every execution
// that ever accrued cost stays linked to the run.
type PhaseExecutions struct {
	Design     string   `json:"design,omitempty"`
	Analyze    string   `json:"analyze,omitempty"`
	Implement  []string `json:"implement,omitempty"`
	Verify     string   `json:"verify,omitempty"`
	Merge      string   `json:"merge,omitempty"`
	Healers    []string `json:"healers,omitempty"`
	Superseded []string `json:"superseded,omitempty"`
}

// All returns every linked execution id: healers and superseded
// attempts included.
func (p PhaseExecutions) All() []string {
	ids := make([]string, 0, 5+len(p.Implement)+len(p.Healers)+len(p.Superseded))
	for _, id := range []string{p.Design, p.Analyze, p.Verify, p.Merge} {
		if id != "" {
			ids = append(ids, id)
		}
	}
	ids = append(ids, p.Implement...)
	ids = append(ids, p.Healers...)
	ids = append(ids, p.Superseded...)
	return ids
}

// DecisionEntry is one append-only decision log record.
type DecisionEntry struct {
	ID     string    `json:"id"`
	At     time.Time `json:"at"`
	Phase  Phase     `json:"phase"`
	Action string    `json:"action"`
	Detail string    `json:"detail,omitempty"`
}

// Attention reasons recorded when an orchestration escalates.
const (
	AttentionHealExhausted   = "heal attempts exhausted"
	AttentionHealBudget      = "healing budget exceeded"
	AttentionDecisionBudget  = "decision budget exhausted"
	AttentionBatchBudget     = "batch budget exceeded"
	AttentionTotalBudget     = "total budget exceeded"
	AttentionPhaseFailed     = "phase failed"
	AttentionOracleEscalated = "escalated by decision oracle"
)

// OrchestrationExecution is one multi-phase run. The engine is its only
// writer; workflow executions are referenced one-directionally by id.
type OrchestrationExecution struct {
	ID        string              `json:"id"`
	ProjectID string              `json:"project_id"`
	Status    OrchestrationStatus `json:"status"`
	Phase     Phase               `json:"phase"`

	Config OrchestrationConfig `json:"config"`

	Batches    *BatchTracking  `json:"batches,omitempty"`
	Executions PhaseExecutions `json:"executions"`
	Decisions  []DecisionEntry `json:"decisions,omitempty"`

	// ActiveExecutionID is the single non-terminal linked execution, if any.
	ActiveExecutionID string `json:"active_execution_id,omitempty"`

	// ActiveIsHealer marks the active execution as a remediation run.
	ActiveIsHealer bool `json:"active_is_healer,omitempty"`

	TotalCostUSD   float64 `json:"total_cost_usd"`
	HealingCostUSD float64 `json:"healing_cost_usd"`
	DecisionsUsed  int     `json:"decisions_used"`

	// CostApplied marks execution ids whose terminal cost has been
	// added to the totals, so resumes are never double-counted.
	CostApplied map[string]bool `json:"cost_applied,omitempty"`

	// AttentionReason explains a needs_attention status.
	AttentionReason string `json:"attention_reason,omitempty"`

	// Tasks is the sectioned task grouping supplied by the planning
	// collaborator; TaskIDs is the flat incomplete task set used by the
	// fallback batch split when no sections were supplied.
	Tasks   []TaskSection `json:"tasks,omitempty"`
	TaskIDs []string      `json:"task_ids,omitempty"`

	// LastProgressAt and LastOutputLen track the active execution's
	// observable progress between polls.
	LastProgressAt time.Time `json:"last_progress_at,omitempty"`
	LastOutputLen  int       `json:"last_output_len,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TaskSection is a labeled group of task ids supplied by the planning
// collaborator when a run starts.
type TaskSection struct {
	Section string   `json:"section"`
	TaskIDs []string `json:"task_ids"`
}

// AppendDecision records an entry in the append-only decision log.
func (o *OrchestrationExecution) AppendDecision(id string, action, detail string) {
	o.Decisions = append(o.Decisions, DecisionEntry{
		ID:     id,
		At:     time.Now().UTC(),
		Phase:  o.Phase,
		Action: action,
		Detail: detail,
	})
}
