package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/autopilot/internal/domain"
	"github.com/joss/autopilot/internal/exec"
)

// memStore is an in-memory domain.Store for supervisor tests. Records
// are deep-copied on both sides so stored state never aliases caller
// state, matching the sqlite store.
type memStore struct {
	mu       sync.Mutex
	execs    map[string]*domain.WorkflowExecution
	orchs    map[string]*domain.OrchestrationExecution
	projects map[string]*domain.Project
}

func newMemStore() *memStore {
	return &memStore{
		execs:    make(map[string]*domain.WorkflowExecution),
		orchs:    make(map[string]*domain.OrchestrationExecution),
		projects: make(map[string]*domain.Project),
	}
}

func clone[T any](in *T) *T {
	data, _ := json.Marshal(in)
	out := new(T)
	_ = json.Unmarshal(data, out)
	return out
}

func (s *memStore) SaveExecution(ctx context.Context, e *domain.WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.UpdatedAt = time.Now().UTC()
	s.execs[e.ID] = clone(e)
	return nil
}

func (s *memStore) GetExecution(ctx context.Context, id string) (*domain.WorkflowExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.execs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(e), nil
}

func (s *memStore) ListExecutions(ctx context.Context, projectID string) ([]*domain.WorkflowExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.WorkflowExecution
	for _, e := range s.execs {
		if projectID == "" || e.ProjectID == projectID {
			out = append(out, clone(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *memStore) SaveOrchestration(ctx context.Context, o *domain.OrchestrationExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.UpdatedAt = time.Now().UTC()
	s.orchs[o.ID] = clone(o)
	return nil
}

func (s *memStore) GetOrchestration(ctx context.Context, id string) (*domain.OrchestrationExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orchs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(o), nil
}

func (s *memStore) ListOrchestrations(ctx context.Context, projectID string) ([]*domain.OrchestrationExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.OrchestrationExecution
	for _, o := range s.orchs {
		if projectID == "" || o.ProjectID == projectID {
			out = append(out, clone(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *memStore) CreateProject(ctx context.Context, p *domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = clone(p)
	return nil
}

func (s *memStore) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(p), nil
}

func (s *memStore) ListProjects(ctx context.Context) ([]*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Project
	for _, p := range s.projects {
		out = append(out, clone(p))
	}
	return out, nil
}

func (s *memStore) Close() error { return nil }

func testSetup(t *testing.T) (*Supervisor, *memStore, *exec.MockRunner) {
	t.Helper()
	store := newMemStore()
	require.NoError(t, store.CreateProject(context.Background(), &domain.Project{
		ID:   "proj1",
		Name: "proj1",
		Path: t.TempDir(),
	}))

	runner := exec.NewMockRunner()
	sup := NewSupervisor(store, runner, Config{
		AgentBin:       "agent",
		DefaultTimeout: 5 * time.Second,
		KillGrace:      10 * time.Millisecond,
	})
	return sup, store, runner
}

func resultLine(t *testing.T, r agentResult) string {
	t.Helper()
	data, err := json.Marshal(r)
	require.NoError(t, err)
	return string(data) + "\n"
}

func TestStartPersistsRunning(t *testing.T) {
	sup, store, runner := testSetup(t)

	e, err := sup.Start(context.Background(), StartOptions{
		ProjectID: "proj1",
		Skill:     "design",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecRunning, e.Status)
	assert.NotZero(t, e.PID)

	stored, err := store.GetExecution(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecRunning, stored.Status)

	call := runner.LastCall()
	assert.Equal(t, "agent", call.Name)
	assert.Contains(t, call.Args, "--skill")
	assert.Contains(t, call.Args, "design")
}

func TestStartUnknownProject(t *testing.T) {
	sup, _, _ := testSetup(t)

	_, err := sup.Start(context.Background(), StartOptions{ProjectID: "nope", Skill: "design"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStartSpawnFailure(t *testing.T) {
	sup, store, runner := testSetup(t)
	runner.SpawnErr = errors.New("binary not found")

	e, err := sup.Start(context.Background(), StartOptions{ProjectID: "proj1", Skill: "design"})
	require.Error(t, err)
	assert.Nil(t, e)

	// The pending record was persisted and then failed.
	execs, err := store.ListExecutions(context.Background(), "proj1")
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, domain.ExecFailed, execs[0].Status)
	assert.Contains(t, execs[0].FailureReason, domain.ReasonProcessFailed)
}

func TestCompletedExecution(t *testing.T) {
	sup, _, runner := testSetup(t)
	runner.Script = func(call exec.MockCall, p *exec.MockProcess) {
		p.WriteStdout("working...\n")
		p.WriteStdout(resultLine(t, agentResult{
			SessionID: "sess-1",
			CostUSD:   1.25,
			Status:    resultCompleted,
			Result:    json.RawMessage(`{"ok":true}`),
		}))
		p.Exit(nil)
	}

	ctx := context.Background()
	e, err := sup.Start(ctx, StartOptions{ProjectID: "proj1", Skill: "implement"})
	require.NoError(t, err)
	require.NoError(t, sup.Wait(ctx, e.ID))

	final, err := sup.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecCompleted, final.Status)
	assert.Equal(t, "sess-1", final.SessionID)
	assert.InDelta(t, 1.25, final.CostUSD, 1e-9)
	assert.JSONEq(t, `{"ok":true}`, string(final.Result))
	assert.Zero(t, final.PID)
}

func TestNeedsInputExecution(t *testing.T) {
	sup, _, runner := testSetup(t)
	runner.Script = func(call exec.MockCall, p *exec.MockProcess) {
		p.WriteStdout(resultLine(t, agentResult{
			SessionID: "sess-2",
			Status:    resultNeedsInput,
			Questions: []string{"which db?"},
		}))
		p.Exit(nil)
	}

	ctx := context.Background()
	e, err := sup.Start(ctx, StartOptions{ProjectID: "proj1", Skill: "design"})
	require.NoError(t, err)
	require.NoError(t, sup.Wait(ctx, e.ID))

	final, err := sup.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecWaitingInput, final.Status)
	assert.Equal(t, []string{"which db?"}, final.Questions)
}

func TestParseFailureRetainsOutput(t *testing.T) {
	sup, _, runner := testSetup(t)
	runner.Script = func(call exec.MockCall, p *exec.MockProcess) {
		p.WriteStdout("no structured result here\n")
		p.Exit(nil)
	}

	ctx := context.Background()
	e, err := sup.Start(ctx, StartOptions{ProjectID: "proj1", Skill: "verify"})
	require.NoError(t, err)
	require.NoError(t, sup.Wait(ctx, e.ID))

	final, err := sup.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecFailed, final.Status)
	assert.Equal(t, domain.ReasonParseFailed, final.FailureReason)
	assert.Contains(t, final.Output, "no structured result")
}

func TestProcessFailureStillExtractsCost(t *testing.T) {
	sup, _, runner := testSetup(t)
	runner.Script = func(call exec.MockCall, p *exec.MockProcess) {
		p.WriteStdout(resultLine(t, agentResult{SessionID: "sess-3", CostUSD: 0.40}))
		p.Exit(errors.New("exit status 1"))
	}

	ctx := context.Background()
	e, err := sup.Start(ctx, StartOptions{ProjectID: "proj1", Skill: "implement"})
	require.NoError(t, err)
	require.NoError(t, sup.Wait(ctx, e.ID))

	final, err := sup.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecFailed, final.Status)
	assert.Contains(t, final.FailureReason, domain.ReasonProcessFailed)
	assert.Equal(t, "sess-3", final.SessionID)
	assert.InDelta(t, 0.40, final.CostUSD, 1e-9)
}

func TestTimeoutKillsProcess(t *testing.T) {
	sup, _, runner := testSetup(t)
	// Script leaves the process hanging; only the timeout can end it.

	ctx := context.Background()
	e, err := sup.Start(ctx, StartOptions{
		ProjectID: "proj1",
		Skill:     "implement",
		Timeout:   20 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, sup.Wait(ctx, e.ID))

	final, err := sup.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecFailed, final.Status)
	assert.Equal(t, domain.ReasonTimeout, final.FailureReason)
	assert.True(t, runner.Procs[0].Terminated)
}

func TestResumeMergesAnswers(t *testing.T) {
	sup, store, runner := testSetup(t)
	runner.Script = func(call exec.MockCall, p *exec.MockProcess) {
		p.WriteStdout(resultLine(t, agentResult{
			SessionID: "sess-4",
			CostUSD:   0.50,
			Status:    resultNeedsInput,
			Questions: []string{"db?", "region?"},
		}))
		p.Exit(nil)
	}

	ctx := context.Background()
	e, err := sup.Start(ctx, StartOptions{
		ProjectID: "proj1",
		Skill:     "design",
		Answers:   map[string]string{"db": "sqlite", "keep": "yes"},
	})
	require.NoError(t, err)
	require.NoError(t, sup.Wait(ctx, e.ID))

	// Second invocation completes.
	runner.Script = func(call exec.MockCall, p *exec.MockProcess) {
		p.WriteStdout(resultLine(t, agentResult{
			SessionID: "sess-4",
			CostUSD:   0.75,
			Status:    resultCompleted,
		}))
		p.Exit(nil)
	}

	resumed, err := sup.Resume(ctx, e.ID, map[string]string{"db": "postgres", "region": "eu"})
	require.NoError(t, err)
	require.NoError(t, sup.Wait(ctx, resumed.ID))

	call := runner.LastCall()
	assert.Contains(t, call.Args, "--resume")
	assert.Contains(t, call.Args, "sess-4")

	final, err := store.GetExecution(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecCompleted, final.Status)
	// New keys win, untouched keys survive.
	assert.Equal(t, "postgres", final.Answers["db"])
	assert.Equal(t, "eu", final.Answers["region"])
	assert.Equal(t, "yes", final.Answers["keep"])
	assert.Empty(t, final.Questions)
	// Cost accumulates across resumes.
	assert.InDelta(t, 1.25, final.CostUSD, 1e-9)
}

func TestResumeRejectsNonWaiting(t *testing.T) {
	sup, _, runner := testSetup(t)
	runner.Script = func(call exec.MockCall, p *exec.MockProcess) {
		p.WriteStdout(resultLine(t, agentResult{SessionID: "s", Status: resultCompleted}))
		p.Exit(nil)
	}

	ctx := context.Background()
	e, err := sup.Start(ctx, StartOptions{ProjectID: "proj1", Skill: "design"})
	require.NoError(t, err)
	require.NoError(t, sup.Wait(ctx, e.ID))

	_, err = sup.Resume(ctx, e.ID, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCancelRunning(t *testing.T) {
	sup, _, runner := testSetup(t)
	// Hanging process; cancel is the only way out.

	ctx := context.Background()
	e, err := sup.Start(ctx, StartOptions{ProjectID: "proj1", Skill: "implement"})
	require.NoError(t, err)

	cancelled, err := sup.Cancel(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecCancelled, cancelled.Status)
	assert.Equal(t, domain.ReasonCancelled, cancelled.FailureReason)
	assert.True(t, runner.Procs[0].Terminated)

	// Cancel of a terminal execution is rejected.
	_, err = sup.Cancel(ctx, e.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCancelWaiting(t *testing.T) {
	sup, _, runner := testSetup(t)
	runner.Script = func(call exec.MockCall, p *exec.MockProcess) {
		p.WriteStdout(resultLine(t, agentResult{
			SessionID: "s",
			Status:    resultNeedsInput,
			Questions: []string{"q"},
		}))
		p.Exit(nil)
	}

	ctx := context.Background()
	e, err := sup.Start(ctx, StartOptions{ProjectID: "proj1", Skill: "design"})
	require.NoError(t, err)
	require.NoError(t, sup.Wait(ctx, e.ID))

	cancelled, err := sup.Cancel(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecCancelled, cancelled.Status)
}

func TestCancelRunningWithoutProcess(t *testing.T) {
	sup, store, _ := testSetup(t)

	// Simulate a record left running by a dead supervisor.
	orphan := &domain.WorkflowExecution{
		ID:        "orphan",
		ProjectID: "proj1",
		Skill:     "implement",
		Status:    domain.ExecRunning,
		PID:       999999,
	}
	require.NoError(t, store.SaveExecution(context.Background(), orphan))

	cancelled, err := sup.Cancel(context.Background(), "orphan")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecCancelled, cancelled.Status)
	assert.Zero(t, cancelled.PID)
}

func TestReconcileLostProcess(t *testing.T) {
	sup, store, _ := testSetup(t)

	lost := &domain.WorkflowExecution{
		ID:        "lost",
		ProjectID: "proj1",
		Skill:     "implement",
		Status:    domain.ExecRunning,
		PID:       999999999,
	}
	require.NoError(t, store.SaveExecution(context.Background(), lost))

	done := &domain.WorkflowExecution{
		ID:        "done",
		ProjectID: "proj1",
		Skill:     "design",
		Status:    domain.ExecCompleted,
	}
	require.NoError(t, store.SaveExecution(context.Background(), done))

	reclassified, err := sup.Reconcile(context.Background())
	require.NoError(t, err)
	require.Len(t, reclassified, 1)
	assert.Equal(t, "lost", reclassified[0].ID)
	assert.Equal(t, domain.ExecFailed, reclassified[0].Status)
	assert.Equal(t, domain.ReasonLostProcess, reclassified[0].FailureReason)

	// Terminal records are untouched.
	d, err := store.GetExecution(context.Background(), "done")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecCompleted, d.Status)
}

func TestReconcileSkipsSupervised(t *testing.T) {
	sup, _, _ := testSetup(t)

	ctx := context.Background()
	e, err := sup.Start(ctx, StartOptions{ProjectID: "proj1", Skill: "implement"})
	require.NoError(t, err)

	reclassified, err := sup.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, reclassified)

	_, err = sup.Cancel(ctx, e.ID)
	require.NoError(t, err)
}

func TestOutputLen(t *testing.T) {
	sup, _, runner := testSetup(t)

	ctx := context.Background()
	e, err := sup.Start(ctx, StartOptions{ProjectID: "proj1", Skill: "implement"})
	require.NoError(t, err)

	runner.Procs[0].WriteStdout("progress line\n")
	assert.Equal(t, len("progress line\n"), sup.OutputLen(e.ID))

	runner.Procs[0].WriteStdout(resultLine(t, agentResult{SessionID: "s", Status: resultCompleted}))
	runner.Procs[0].Exit(nil)
	require.NoError(t, sup.Wait(ctx, e.ID))

	// After exit the persisted output backs the length.
	final, err := sup.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, len(final.Output), sup.OutputLen(e.ID))
}

func TestOutputAccumulatesAcrossResumes(t *testing.T) {
	sup, store, runner := testSetup(t)
	runner.Script = func(call exec.MockCall, p *exec.MockProcess) {
		p.WriteStdout("first invocation log\n")
		p.WriteStdout(resultLine(t, agentResult{
			SessionID: "sess-9",
			Status:    resultNeedsInput,
			Questions: []string{"which db?"},
		}))
		p.Exit(nil)
	}

	ctx := context.Background()
	e, err := sup.Start(ctx, StartOptions{ProjectID: "proj1", Skill: "implement"})
	require.NoError(t, err)
	require.NoError(t, sup.Wait(ctx, e.ID))

	runner.Script = func(call exec.MockCall, p *exec.MockProcess) {
		p.WriteStdout("second invocation log\n")
		p.WriteStdout(resultLine(t, agentResult{
			SessionID: "sess-9",
			Status:    resultCompleted,
			Result:    json.RawMessage(`"done"`),
		}))
		p.Exit(nil)
	}

	resumed, err := sup.Resume(ctx, e.ID, map[string]string{"db": "sqlite"})
	require.NoError(t, err)
	require.NoError(t, sup.Wait(ctx, resumed.ID))

	final, err := store.GetExecution(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecCompleted, final.Status)
	// Both invocations' text survives; the last result line wins.
	assert.Contains(t, final.Output, "first invocation log")
	assert.Contains(t, final.Output, "second invocation log")
	assert.Equal(t, json.RawMessage(`"done"`), final.Result)
}

func TestOutputLiveThenPersisted(t *testing.T) {
	sup, _, runner := testSetup(t)

	ctx := context.Background()
	e, err := sup.Start(ctx, StartOptions{ProjectID: "proj1", Skill: "implement"})
	require.NoError(t, err)

	// In flight: the snapshot comes from the live stream, not the
	// record (which carries no output until exit).
	runner.Procs[0].WriteStdout("working on t1\n")
	assert.Equal(t, "working on t1\n", sup.Output(e.ID))

	runner.Procs[0].WriteStdout(resultLine(t, agentResult{SessionID: "s", Status: resultCompleted}))
	runner.Procs[0].Exit(nil)
	require.NoError(t, sup.Wait(ctx, e.ID))

	final, err := sup.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, final.Output, sup.Output(e.ID))
}

func TestReconcileStrandedPending(t *testing.T) {
	sup, store, _ := testSetup(t)

	stranded := &domain.WorkflowExecution{
		ID:        "stranded",
		ProjectID: "proj1",
		Skill:     "design",
		Status:    domain.ExecPending,
	}
	require.NoError(t, store.SaveExecution(context.Background(), stranded))

	reclassified, err := sup.Reconcile(context.Background())
	require.NoError(t, err)
	require.Len(t, reclassified, 1)
	assert.Equal(t, "stranded", reclassified[0].ID)
	assert.Equal(t, domain.ExecFailed, reclassified[0].Status)
	assert.Equal(t, domain.ReasonLostProcess, reclassified[0].FailureReason)
}
