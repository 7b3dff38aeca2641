// Package domain defines the persistent records shared by the workflow
// supervisor and the orchestration engine, plus the store contract they
// are persisted through.
package domain

import (
	"encoding/json"
	"time"
)

// ExecutionStatus is the lifecycle state of one agent invocation.
type ExecutionStatus string

const (
	ExecPending      ExecutionStatus = "pending"
	ExecRunning      ExecutionStatus = "running"
	ExecWaitingInput ExecutionStatus = "waiting_for_input"
	ExecCompleted    ExecutionStatus = "completed"
	ExecFailed       ExecutionStatus = "failed"
	ExecCancelled    ExecutionStatus = "cancelled"
)

// Terminal reports whether the status is absorbing.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecCompleted, ExecFailed, ExecCancelled:
		return true
	}
	return false
}

// WorkflowExecution is one external-agent invocation. Owned exclusively
// by the workflow supervisor; the engine references it by id only.
type WorkflowExecution struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	SessionID string          `json:"session_id,omitempty"`
	Skill     string          `json:"skill"`
	Status    ExecutionStatus `json:"status"`

	// Output is captured agent stdout; Logs is captured stderr.
	Output string          `json:"output,omitempty"`
	Logs   string          `json:"logs,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`

	// Questions the agent needs answered before it can continue.
	Questions []string `json:"questions,omitempty"`

	// Answers supplied on resume. Merged across resumes, never replaced.
	Answers map[string]string `json:"answers,omitempty"`

	// CostUSD accumulates across resumes of the same execution.
	CostUSD float64 `json:"cost_usd"`

	// FailureReason holds the last error text for failed executions.
	FailureReason string `json:"failure_reason,omitempty"`

	// TaskIDs scope implement-batch and healer executions.
	TaskIDs []string `json:"task_ids,omitempty"`

	PID     int           `json:"pid,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty"`

	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MergeAnswers unions new answers into the execution's answer set.
// New keys win on conflict.
func (e *WorkflowExecution) MergeAnswers(answers map[string]string) {
	if len(answers) == 0 {
		return
	}
	if e.Answers == nil {
		e.Answers = make(map[string]string, len(answers))
	}
	for k, v := range answers {
		e.Answers[k] = v
	}
}
