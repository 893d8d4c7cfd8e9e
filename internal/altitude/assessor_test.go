package altitude

import (
	"path/filepath"
	"testing"

	"lockstep/internal/memory"
	"lockstep/internal/types"
)

func newAssessor(t *testing.T, lease *types.CommitmentLease) (*Assessor, *memory.FastStore) {
	t.Helper()
	dir := t.TempDir()

	slow, err := memory.NewSlowStore(filepath.Join(dir, "slow.json"))
	if err != nil {
		t.Fatal(err)
	}
	if lease != nil {
		if err := slow.SetLease(lease); err != nil {
			t.Fatal(err)
		}
	}
	fast, err := memory.NewFastStore(filepath.Join(dir, "fast.json"), 20, 5)
	if err != nil {
		t.Fatal(err)
	}
	return NewAssessor(slow, fast), fast
}

func TestAssessStanceSetsBaseDepth(t *testing.T) {
	t.Parallel()
	a, _ := newAssessor(t, nil)

	input := "walk me through the current state of the system please"
	if got := a.Assess(types.TurnContext{Input: input, Stance: types.StanceSensemaking}); got != types.AltitudeStrategic {
		t.Errorf("sensemaking altitude = %s, want strategic", got)
	}
	if got := a.Assess(types.TurnContext{Input: input, Stance: types.StanceExecution}); got != types.AltitudeOperational {
		t.Errorf("execution altitude = %s, want operational", got)
	}
}

func TestAssessDepthMarkersRaise(t *testing.T) {
	t.Parallel()
	a, _ := newAssessor(t, nil)

	got := a.Assess(types.TurnContext{
		Input:  "what are the architecture tradeoffs of sharding here",
		Stance: types.StanceSensemaking,
	})
	if got != types.AltitudeSystemic {
		t.Errorf("altitude = %s, want systemic", got)
	}
}

func TestAssessShortQuestionLowers(t *testing.T) {
	t.Parallel()
	a, _ := newAssessor(t, nil)

	got := a.Assess(types.TurnContext{Input: "does it compile?", Stance: types.StanceExecution})
	if got != types.AltitudeTactical {
		t.Errorf("altitude = %s, want tactical", got)
	}
}

func TestAssessHorizonShifts(t *testing.T) {
	t.Parallel()
	input := "continue working through the remaining open items now"

	aLong, _ := newAssessor(t, &types.CommitmentLease{
		ID: "l", Frame: "f", Horizon: types.HorizonLong, Status: types.LeaseActive,
	})
	aShort, _ := newAssessor(t, &types.CommitmentLease{
		ID: "l", Frame: "f", Horizon: types.HorizonShort, Status: types.LeaseActive,
	})

	long := aLong.Assess(types.TurnContext{Input: input, Stance: types.StanceExecution})
	short := aShort.Assess(types.TurnContext{Input: input, Stance: types.StanceExecution})
	if long <= short {
		t.Errorf("long horizon %s should sit above short horizon %s", long, short)
	}
}

func TestAssessUrgencyCompresses(t *testing.T) {
	t.Parallel()
	a, fast := newAssessor(t, nil)
	fast.AddSignal(types.InteractionSignal{Turn: 9, Kind: "urgency", Strength: 0.8})

	input := "walk me through the current state of the system please"
	calm := a.Assess(types.TurnContext{Turn: 20, Input: input, Stance: types.StanceSensemaking})
	urgent := a.Assess(types.TurnContext{Turn: 10, Input: input, Stance: types.StanceSensemaking})
	if urgent >= calm {
		t.Errorf("urgent %s should sit below calm %s", urgent, calm)
	}
}

func TestAssessAlwaysValid(t *testing.T) {
	t.Parallel()
	a, fast := newAssessor(t, &types.CommitmentLease{
		ID: "l", Frame: "f", Horizon: types.HorizonShort, Status: types.LeaseActive,
	})
	fast.AddSignal(types.InteractionSignal{Turn: 1, Kind: "urgency"})

	got := a.Assess(types.TurnContext{Turn: 1, Input: "quick: ok?", Stance: types.StanceExecution})
	if !got.Valid() {
		t.Errorf("altitude %d out of range", got)
	}
}
