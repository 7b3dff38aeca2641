package domain

import "testing"

func TestPhaseNext(t *testing.T) {
	cases := map[Phase]Phase{
		PhaseDesign:    PhaseAnalyze,
		PhaseAnalyze:   PhaseImplement,
		PhaseImplement: PhaseVerify,
		PhaseVerify:    PhaseMerge,
		PhaseMerge:     PhaseComplete,
		PhaseComplete:  PhaseComplete,
	}
	for p, want := range cases {
		if got := p.Next(); got != want {
			t.Errorf("%s.Next() = %s, want %s", p, got, want)
		}
	}
}

func TestExecutionTerminal(t *testing.T) {
	terminal := []ExecutionStatus{ExecCompleted, ExecFailed, ExecCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	live := []ExecutionStatus{ExecPending, ExecRunning, ExecWaitingInput}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestOrchestrationTerminal(t *testing.T) {
	if !OrchComplete.Terminal() || !OrchFailed.Terminal() {
		t.Error("complete and failed are terminal")
	}
	for _, s := range []OrchestrationStatus{OrchRunning, OrchPaused, OrchWaitingMerge, OrchNeedsAttention} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestMergeAnswersNewKeysWin(t *testing.T) {
	e := &WorkflowExecution{Answers: map[string]string{"db": "sqlite", "keep": "yes"}}
	e.MergeAnswers(map[string]string{"db": "postgres", "region": "eu"})

	want := map[string]string{"db": "postgres", "keep": "yes", "region": "eu"}
	for k, v := range want {
		if e.Answers[k] != v {
			t.Errorf("Answers[%q] = %q, want %q", k, e.Answers[k], v)
		}
	}
}

func TestMergeAnswersNilReceiverMap(t *testing.T) {
	e := &WorkflowExecution{}
	e.MergeAnswers(nil)
	if e.Answers != nil {
		t.Error("empty merge allocated a map")
	}

	e.MergeAnswers(map[string]string{"k": "v"})
	if e.Answers["k"] != "v" {
		t.Error("merge into nil map failed")
	}
}

func TestAppendDecisionRecordsPhase(t *testing.T) {
	o := &OrchestrationExecution{Phase: PhaseImplement}
	o.AppendDecision("d1", "batch_started", "auth")
	o.Phase = PhaseVerify
	o.AppendDecision("d2", "phase_started", "verify")

	if len(o.Decisions) != 2 {
		t.Fatalf("decisions = %d", len(o.Decisions))
	}
	if o.Decisions[0].Phase != PhaseImplement || o.Decisions[1].Phase != PhaseVerify {
		t.Error("decision phases not captured at append time")
	}
}
