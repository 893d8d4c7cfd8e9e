package evaluator

import (
	"testing"
	"time"

	"lockstep/internal/config"
	"lockstep/internal/types"
)

func newEvaluator() *Evaluator {
	return New(func() config.Policy { return config.DefaultPolicy() })
}

// =============================================================================
// SCORING
// =============================================================================

func TestScoreHealthyOutput(t *testing.T) {
	t.Parallel()
	e := newEvaluator()
	report := types.OutputReport{Length: 800, Latency: 2 * time.Second}
	if got := e.Score(report, 1200); got != 1.0 {
		t.Errorf("healthy score = %.2f, want 1.0", got)
	}
}

func TestScoreEmptyOutputIsZero(t *testing.T) {
	t.Parallel()
	e := newEvaluator()
	if got := e.Score(types.OutputReport{Length: 0}, 1200); got != 0 {
		t.Errorf("empty score = %.2f, want 0", got)
	}
}

func TestScoreDegradationDominates(t *testing.T) {
	t.Parallel()
	e := newEvaluator()
	degraded := e.Score(types.OutputReport{Length: 800, Degraded: true}, 1200)
	truncated := e.Score(types.OutputReport{Length: 800, Truncated: true}, 1200)
	if degraded >= truncated {
		t.Errorf("degraded %.2f should score below truncated %.2f", degraded, truncated)
	}
}

func TestScoreThinOutputPenalized(t *testing.T) {
	t.Parallel()
	e := newEvaluator()
	thin := e.Score(types.OutputReport{Length: 50}, 4000)
	full := e.Score(types.OutputReport{Length: 2000}, 4000)
	if thin >= full {
		t.Errorf("thin %.2f should score below full %.2f", thin, full)
	}
}

// =============================================================================
// PROPOSALS
// =============================================================================

func TestObserveQuietAboveFloor(t *testing.T) {
	t.Parallel()
	e := newEvaluator()
	p := e.Observe(types.TurnContext{
		Turn:       2,
		LastOutput: &types.OutputReport{Length: 600, Altitude: types.AltitudeStrategic},
	})
	if p != nil {
		t.Errorf("above-floor output raised a proposal: %+v", p)
	}
}

func TestObserveProposesBelowFloor(t *testing.T) {
	t.Parallel()
	e := newEvaluator()
	p := e.Observe(types.TurnContext{
		Turn:       2,
		LastOutput: &types.OutputReport{Length: 600, Degraded: true, Truncated: true, Altitude: types.AltitudeOperational},
	})
	if p == nil {
		t.Fatal("sub-floor output raised no proposal")
	}
	if p.TargetGate != types.GateEvaluation || p.Source != types.SourceEvaluator {
		t.Errorf("proposal = %+v", p)
	}
	if p.Severity != types.SeverityMedium {
		t.Errorf("first sub-floor severity = %s, want medium", p.Severity)
	}
}

func TestObserveEscalatesOnStreak(t *testing.T) {
	t.Parallel()
	e := newEvaluator()
	bad := &types.OutputReport{Length: 600, Degraded: true, Truncated: true, Altitude: types.AltitudeOperational}

	e.Observe(types.TurnContext{Turn: 1, LastOutput: bad})
	p := e.Observe(types.TurnContext{Turn: 2, LastOutput: bad})
	if p == nil || p.Severity != types.SeverityHigh {
		t.Fatalf("second consecutive sub-floor turn = %+v, want high severity", p)
	}

	// A healthy turn resets the streak.
	e.Observe(types.TurnContext{Turn: 3, LastOutput: &types.OutputReport{Length: 600, Altitude: types.AltitudeOperational}})
	p = e.Observe(types.TurnContext{Turn: 4, LastOutput: bad})
	if p == nil || p.Severity != types.SeverityMedium {
		t.Errorf("streak not reset: %+v", p)
	}
}

func TestObserveNoPriorOutput(t *testing.T) {
	t.Parallel()
	e := newEvaluator()
	if p := e.Observe(types.TurnContext{Turn: 1}); p != nil {
		t.Errorf("first turn raised a proposal: %+v", p)
	}
}
