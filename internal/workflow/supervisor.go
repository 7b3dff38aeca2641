// Package workflow supervises individual external-agent invocations:
// spawn, resume, cancel, timeout, and output capture. It has no
// knowledge of phases or batches.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joss/autopilot/internal/config"
	"github.com/joss/autopilot/internal/domain"
	"github.com/joss/autopilot/internal/exec"
	"github.com/joss/autopilot/internal/logging"
)

// Config holds supervisor settings.
type Config struct {
	// AgentBin is the external compute agent binary.
	AgentBin string

	// DefaultTimeout bounds an invocation when no per-start timeout is given.
	DefaultTimeout time.Duration

	// KillGrace is how long a terminated process gets before SIGKILL.
	KillGrace time.Duration
}

// ConfigFromEnv builds supervisor settings from the environment.
func ConfigFromEnv() Config {
	e := config.Env()
	return Config{
		AgentBin:       e.AgentBin,
		DefaultTimeout: e.DefaultTimeout,
		KillGrace:      e.KillGrace,
	}
}

// StartOptions describes one invocation.
type StartOptions struct {
	ProjectID string
	Skill     string

	// Timeout overrides the supervisor default when positive.
	Timeout time.Duration

	// ResumeSession resumes a prior agent session instead of starting fresh.
	ResumeSession string

	// TaskIDs scope implement-batch and healer invocations.
	TaskIDs []string

	// Context is free-text forwarded to the agent (run context, or the
	// failure context handed to a healer).
	Context string

	// Answers are forwarded on resumed invocations.
	Answers map[string]string
}

type cancelRequest struct {
	status domain.ExecutionStatus
	reason string
}

// procState is the supervisor-owned handle for one in-flight process.
// Held in a per-execution-id map, never in global state.
type procState struct {
	proc     exec.Process
	cancel   chan cancelRequest
	finished chan struct{}
}

// Supervisor owns the lifecycle of workflow executions.
type Supervisor struct {
	cfg    Config
	store  domain.Store
	runner exec.Runner
	log    *logging.Logger

	mu    sync.Mutex
	procs map[string]*procState
}

// NewSupervisor creates a workflow supervisor.
func NewSupervisor(store domain.Store, runner exec.Runner, cfg Config) *Supervisor {
	if cfg.AgentBin == "" {
		cfg.AgentBin = "agent"
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Minute
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = 5 * time.Second
	}
	return &Supervisor{
		cfg:    cfg,
		store:  store,
		runner: runner,
		log:    logging.New("workflow"),
		procs:  make(map[string]*procState),
	}
}

// Start spawns the agent for a skill and returns the running execution.
// Rejects unknown projects without retrying.
func (s *Supervisor) Start(ctx context.Context, opts StartOptions) (*domain.WorkflowExecution, error) {
	project, err := s.store.GetProject(ctx, opts.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("project not found: %s: %w", opts.ProjectID, domain.ErrNotFound)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}

	e := &domain.WorkflowExecution{
		ID:        ulid.Make().String(),
		ProjectID: opts.ProjectID,
		Skill:     opts.Skill,
		Status:    domain.ExecPending,
		SessionID: opts.ResumeSession,
		TaskIDs:   opts.TaskIDs,
		Timeout:   timeout,
		StartedAt: time.Now().UTC(),
	}
	e.MergeAnswers(opts.Answers)

	if err := s.store.SaveExecution(ctx, e); err != nil {
		return nil, fmt.Errorf("persist execution: %w", err)
	}

	return s.spawn(ctx, e, project.Path, opts.Context)
}

// Resume restarts a waiting execution with additional answers. Answers
// are merged into the existing set; new keys win on conflict.
func (s *Supervisor) Resume(ctx context.Context, id string, answers map[string]string) (*domain.WorkflowExecution, error) {
	e, err := s.store.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status != domain.ExecWaitingInput {
		return nil, fmt.Errorf("resume from %s: %w", e.Status, domain.ErrInvalidTransition)
	}

	project, err := s.store.GetProject(ctx, e.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("project not found: %s: %w", e.ProjectID, domain.ErrNotFound)
	}

	e.MergeAnswers(answers)
	e.Questions = nil
	return s.spawn(ctx, e, project.Path, "")
}

// spawn starts the agent process and transitions the execution to
// running. The running record is persisted before spawn returns.
func (s *Supervisor) spawn(ctx context.Context, e *domain.WorkflowExecution, projectPath, extraContext string) (*domain.WorkflowExecution, error) {
	args := []string{"run", "--skill", e.Skill, "--project", projectPath}
	if e.SessionID != "" {
		args = append(args, "--resume", e.SessionID)
	}
	if len(e.Answers) > 0 {
		encoded, _ := json.Marshal(e.Answers)
		args = append(args, "--answers", string(encoded))
	}
	if len(e.TaskIDs) > 0 {
		args = append(args, "--tasks", strings.Join(e.TaskIDs, ","))
	}
	if extraContext != "" {
		args = append(args, "--context", extraContext)
	}

	proc, err := s.runner.Spawn(ctx, projectPath, s.cfg.AgentBin, args...)
	if err != nil {
		e.Status = domain.ExecFailed
		e.FailureReason = fmt.Sprintf("%s: %v", domain.ReasonProcessFailed, err)
		if saveErr := s.store.SaveExecution(ctx, e); saveErr != nil {
			return nil, saveErr
		}
		return nil, fmt.Errorf("spawn agent: %w", err)
	}

	e.Status = domain.ExecRunning
	e.PID = proc.Pid()
	if err := s.store.SaveExecution(ctx, e); err != nil {
		proc.Terminate(s.cfg.KillGrace)
		return nil, fmt.Errorf("persist execution: %w", err)
	}

	ps := &procState{
		proc:     proc,
		cancel:   make(chan cancelRequest, 1),
		finished: make(chan struct{}),
	}
	s.mu.Lock()
	s.procs[e.ID] = ps
	s.mu.Unlock()

	go s.monitor(e.ID, ps, e.Timeout)

	s.log.WithProject(e.ProjectID).WithExecution(e.ID).Info("agent_started", map[string]interface{}{
		"skill": e.Skill,
		"pid":   e.PID,
	})

	out := *e
	return &out, nil
}

// monitor races process exit against timeout and cancellation, then
// persists the terminal transition exactly once.
func (s *Supervisor) monitor(id string, ps *procState, timeout time.Duration) {
	defer close(ps.finished)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var forced *cancelRequest
	select {
	case <-ps.proc.Done():
	case <-timer.C:
		forced = &cancelRequest{status: domain.ExecFailed, reason: domain.ReasonTimeout}
		ps.proc.Terminate(s.cfg.KillGrace)
		<-ps.proc.Done()
	case req := <-ps.cancel:
		forced = &req
		ps.proc.Terminate(s.cfg.KillGrace)
		<-ps.proc.Done()
	}

	ctx := context.Background()
	e, err := s.store.GetExecution(ctx, id)
	if err != nil {
		s.log.Error("load_after_exit", map[string]interface{}{"execution": id}, err)
		s.unregister(id)
		return
	}

	// Output accumulates across resumes of the same execution; the
	// parser scans from the end so only the latest result line counts.
	e.Output = accumulate(e.Output, string(ps.proc.Stdout()))
	e.Logs = accumulate(e.Logs, string(ps.proc.Stderr()))
	e.PID = 0

	if forced != nil {
		e.Status = forced.status
		e.FailureReason = forced.reason
	} else {
		s.classify(e, ps.proc.Err())
	}

	if err := s.store.SaveExecution(ctx, e); err != nil {
		s.log.Error("persist_after_exit", map[string]interface{}{"execution": id}, err)
	}
	s.unregister(id)

	s.log.WithProject(e.ProjectID).WithExecution(id).Info("agent_exited", map[string]interface{}{
		"status": string(e.Status),
		"cost":   e.CostUSD,
	})
}

func accumulate(prior, next string) string {
	if prior == "" {
		return next
	}
	if next == "" {
		return prior
	}
	if !strings.HasSuffix(prior, "\n") {
		prior += "\n"
	}
	return prior + next
}

// classify maps a finished process to its terminal (or waiting) status.
func (s *Supervisor) classify(e *domain.WorkflowExecution, exitErr error) {
	res, parseErr := parseResult([]byte(e.Output))

	// Session token and cost are extracted even from failed runs: the
	// agent may have priced work before crashing, and cost is additive
	// across resumes, never reset.
	if res != nil {
		if res.SessionID != "" {
			e.SessionID = res.SessionID
		}
		e.CostUSD += res.CostUSD
	}

	if exitErr != nil {
		e.Status = domain.ExecFailed
		e.FailureReason = fmt.Sprintf("%s: %v", domain.ReasonProcessFailed, exitErr)
		return
	}

	if parseErr != nil {
		// Raw output stays on the record for diagnosis.
		e.Status = domain.ExecFailed
		e.FailureReason = domain.ReasonParseFailed
		return
	}

	if res.needsInput() {
		e.Status = domain.ExecWaitingInput
		e.Questions = res.Questions
		return
	}

	e.Status = domain.ExecCompleted
	e.Result = res.Result
}

// Cancel terminates a running or waiting execution.
func (s *Supervisor) Cancel(ctx context.Context, id string) (*domain.WorkflowExecution, error) {
	e, err := s.store.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}

	switch e.Status {
	case domain.ExecRunning:
		s.mu.Lock()
		ps := s.procs[id]
		s.mu.Unlock()

		if ps == nil {
			// No backing process: the record cannot stay running.
			e.Status = domain.ExecCancelled
			e.FailureReason = domain.ReasonCancelled
			e.PID = 0
			if err := s.store.SaveExecution(ctx, e); err != nil {
				return nil, err
			}
			return e, nil
		}

		select {
		case ps.cancel <- cancelRequest{status: domain.ExecCancelled, reason: domain.ReasonCancelled}:
		default:
		}
		select {
		case <-ps.finished:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return s.store.GetExecution(ctx, id)

	case domain.ExecWaitingInput:
		e.Status = domain.ExecCancelled
		e.FailureReason = domain.ReasonCancelled
		if err := s.store.SaveExecution(ctx, e); err != nil {
			return nil, err
		}
		return e, nil

	default:
		return nil, fmt.Errorf("cancel from %s: %w", e.Status, domain.ErrInvalidTransition)
	}
}

// Get returns an execution by id.
func (s *Supervisor) Get(ctx context.Context, id string) (*domain.WorkflowExecution, error) {
	return s.store.GetExecution(ctx, id)
}

// List returns executions sorted by last-updated, descending. Empty
// projectID lists every project.
func (s *Supervisor) List(ctx context.Context, projectID string) ([]*domain.WorkflowExecution, error) {
	return s.store.ListExecutions(ctx, projectID)
}

// Wait blocks until the execution's monitor has persisted a transition,
// or the context expires. Executions without an in-flight process
// return immediately.
func (s *Supervisor) Wait(ctx context.Context, id string) error {
	s.mu.Lock()
	ps := s.procs[id]
	s.mu.Unlock()
	if ps == nil {
		return nil
	}
	select {
	case <-ps.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OutputLen reports the live captured stdout size of an in-flight
// execution. Executions without an in-flight process report the
// persisted output length instead.
func (s *Supervisor) OutputLen(id string) int {
	s.mu.Lock()
	ps := s.procs[id]
	s.mu.Unlock()
	if ps != nil {
		return len(ps.proc.Stdout())
	}
	e, err := s.store.GetExecution(context.Background(), id)
	if err != nil {
		return 0
	}
	return len(e.Output)
}

// Output returns the live captured stdout of an in-flight execution,
// or the persisted output once the process has exited.
func (s *Supervisor) Output(id string) string {
	s.mu.Lock()
	ps := s.procs[id]
	s.mu.Unlock()
	if ps != nil {
		return string(ps.proc.Stdout())
	}
	e, err := s.store.GetExecution(context.Background(), id)
	if err != nil {
		return ""
	}
	return e.Output
}

func (s *Supervisor) unregister(id string) {
	s.mu.Lock()
	delete(s.procs, id)
	s.mu.Unlock()
}
