package governance

import (
	"testing"

	"lockstep/internal/types"
)

// =============================================================================
// TRANSITION TABLE
// =============================================================================

func TestStanceMachineStartsInSensemaking(t *testing.T) {
	t.Parallel()
	m := NewStanceMachine()
	if got := m.Current(); got != types.StanceSensemaking {
		t.Errorf("initial stance = %s, want sensemaking", got)
	}
}

func TestFramingGateOpensExploration(t *testing.T) {
	t.Parallel()
	m := NewStanceMachine()

	out := m.Transition(types.StanceDiscovery, "frame settled", types.GateFraming)
	if !out.Accepted {
		t.Fatalf("sensemaking -> discovery via framing rejected: %s", out.Reason)
	}
	if m.Current() != types.StanceDiscovery {
		t.Errorf("stance = %s, want discovery", m.Current())
	}
}

func TestFramingGateRejectsExecutionToDiscovery(t *testing.T) {
	t.Parallel()
	m := NewStanceMachine()
	m.Restore(types.StanceExecution)

	out := m.Transition(types.StanceDiscovery, "wander off", types.GateFraming)
	if out.Accepted {
		t.Fatal("execution -> discovery via framing must be rejected")
	}
	if out.From != out.To {
		t.Errorf("rejected outcome mutated stance: %s -> %s", out.From, out.To)
	}
	if m.Current() != types.StanceExecution {
		t.Errorf("stance changed on rejection: %s", m.Current())
	}
}

func TestCommitmentGateOnlyEntersExecution(t *testing.T) {
	t.Parallel()
	m := NewStanceMachine()

	if out := m.Transition(types.StanceDiscovery, "x", types.GateCommitment); out.Accepted {
		t.Error("commitment gate accepted a non-execution target")
	}
	if out := m.Transition(types.StanceExecution, "commit", types.GateCommitment); !out.Accepted {
		t.Errorf("sensemaking -> execution via commitment rejected: %s", out.Reason)
	}
}

func TestEvaluationGateReachableFromAnywhere(t *testing.T) {
	t.Parallel()
	for _, from := range []types.Stance{
		types.StanceSensemaking, types.StanceDiscovery,
		types.StanceExecution, types.StanceEvaluation,
	} {
		m := NewStanceMachine()
		m.Restore(from)
		if out := m.Transition(types.StanceEvaluation, "check", types.GateEvaluation); !out.Accepted {
			t.Errorf("%s -> evaluation via evaluation gate rejected", from)
		}
	}
}

func TestEvaluationGateExits(t *testing.T) {
	t.Parallel()
	m := NewStanceMachine()
	m.Restore(types.StanceEvaluation)

	if out := m.Transition(types.StanceDiscovery, "x", types.GateEvaluation); out.Accepted {
		t.Error("evaluation -> discovery via evaluation gate must be rejected")
	}
	if out := m.Transition(types.StanceExecution, "resume", types.GateEvaluation); !out.Accepted {
		t.Errorf("evaluation -> execution rejected: %s", out.Reason)
	}
}

func TestEmergencyGateIsUnconditional(t *testing.T) {
	t.Parallel()
	m := NewStanceMachine()
	m.Restore(types.StanceExecution)

	out := m.Transition(types.StanceDiscovery, "abort", types.GateEmergency)
	if !out.Accepted {
		t.Fatalf("execution -> discovery via emergency rejected: %s", out.Reason)
	}
}

func TestTransitionRejectsUnknownStance(t *testing.T) {
	t.Parallel()
	m := NewStanceMachine()
	if out := m.Transition(types.Stance("panic"), "x", types.GateEmergency); out.Accepted {
		t.Error("unknown target stance accepted")
	}
}
