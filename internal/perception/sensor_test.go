package perception

import (
	"path/filepath"
	"testing"
	"time"

	"lockstep/internal/memory"
	"lockstep/internal/types"
)

func slowWithLease(t *testing.T, lease *types.CommitmentLease) *memory.SlowStore {
	t.Helper()
	s, err := memory.NewSlowStore(filepath.Join(t.TempDir(), "slow.json"))
	if err != nil {
		t.Fatal(err)
	}
	if lease != nil {
		if err := s.SetLease(lease); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

// =============================================================================
// PERCEPTION SENSOR
// =============================================================================

func TestSensorDetectsHardStop(t *testing.T) {
	t.Parallel()
	sensor := NewSensor(slowWithLease(t, nil))

	p := sensor.Observe(types.TurnContext{
		Turn:   3,
		Input:  "Stop everything, the requirements changed completely",
		Stance: types.StanceExecution,
	})
	if p == nil {
		t.Fatal("hard stop not detected")
	}
	if p.TargetGate != types.GateEmergency || p.Severity != types.SeverityEmergency {
		t.Errorf("proposal = %+v, want emergency", p)
	}
	if p.Source != types.SourcePerception {
		t.Errorf("source = %s", p.Source)
	}
}

func TestSensorDetectsReframing(t *testing.T) {
	t.Parallel()
	sensor := NewSensor(slowWithLease(t, nil))

	p := sensor.Observe(types.TurnContext{
		Input:  "let's rethink how we are storing these records",
		Stance: types.StanceDiscovery,
	})
	if p == nil || p.TargetGate != types.GateFraming {
		t.Fatalf("reframing not proposed: %+v", p)
	}
	if p.Severity != types.SeverityMedium {
		t.Errorf("severity = %s, want medium", p.Severity)
	}
}

func TestSensorDetectsFrameDrift(t *testing.T) {
	t.Parallel()
	lease := &types.CommitmentLease{
		ID: "l", Frame: "implement the payment retry queue",
		Status: types.LeaseActive,
	}
	sensor := NewSensor(slowWithLease(t, lease))

	p := sensor.Observe(types.TurnContext{
		Input:  "can you redesign the marketing website landing hero section",
		Stance: types.StanceExecution,
	})
	if p == nil || p.TargetGate != types.GateEvaluation {
		t.Fatalf("drift not proposed: %+v", p)
	}

	// On-frame input stays quiet.
	p = sensor.Observe(types.TurnContext{
		Input:  "the payment retry queue should back off exponentially",
		Stance: types.StanceExecution,
	})
	if p != nil {
		t.Errorf("on-frame input raised a proposal: %+v", p)
	}
}

func TestSensorQuietOnSteadyTurn(t *testing.T) {
	t.Parallel()
	sensor := NewSensor(slowWithLease(t, nil))
	if p := sensor.Observe(types.TurnContext{Input: "looks good, continue", Stance: types.StanceExecution}); p != nil {
		t.Errorf("steady turn raised a proposal: %+v", p)
	}
}

func TestSensorSignals(t *testing.T) {
	t.Parallel()
	sensor := NewSensor(slowWithLease(t, nil))

	signals := sensor.Signals(types.TurnContext{
		Turn:       5,
		Input:      "this is urgent, the import is still broken",
		LastOutput: &types.OutputReport{Degraded: true},
	})

	kinds := make(map[string]bool)
	for _, s := range signals {
		kinds[s.Kind] = true
	}
	for _, want := range []string{"urgency", "frustration", "degraded"} {
		if !kinds[want] {
			t.Errorf("missing %s signal, got %v", want, kinds)
		}
	}
}

// =============================================================================
// CONTRAST DETECTOR
// =============================================================================

func TestContrastFlagsExecutionWithoutLease(t *testing.T) {
	t.Parallel()
	contrast := NewContrast(slowWithLease(t, nil))

	p := contrast.Observe(types.TurnContext{Input: "keep going", Stance: types.StanceExecution})
	if p == nil || p.Severity != types.SeverityHigh || p.TargetGate != types.GateEvaluation {
		t.Fatalf("lease-less execution not flagged: %+v", p)
	}
	if p.Source != types.SourceContrast {
		t.Errorf("source = %s", p.Source)
	}
}

func TestContrastFlagsNonGoalWork(t *testing.T) {
	t.Parallel()
	lease := &types.CommitmentLease{
		ID: "l", Frame: "ship the importer",
		NonGoals: []string{"performance tuning"},
		Status:   types.LeaseActive,
	}
	contrast := NewContrast(slowWithLease(t, lease))

	p := contrast.Observe(types.TurnContext{
		Input:  "let's spend some time on performance tuning of the parser",
		Stance: types.StanceExecution,
	})
	if p == nil || p.TargetGate != types.GateEvaluation || p.Severity != types.SeverityHigh {
		t.Fatalf("non-goal work not flagged: %+v", p)
	}
}

func TestContrastQuietWhenAligned(t *testing.T) {
	t.Parallel()
	lease := &types.CommitmentLease{
		ID: "l", Frame: "ship the importer",
		NonGoals: []string{"performance tuning"},
		Status:   types.LeaseActive,
	}
	contrast := NewContrast(slowWithLease(t, lease))

	if p := contrast.Observe(types.TurnContext{
		Input:  "importer now handles the malformed header case",
		Stance: types.StanceExecution,
	}); p != nil {
		t.Errorf("aligned turn raised a proposal: %+v", p)
	}
}

func TestContrastFlagsNeedOutputShapeGap(t *testing.T) {
	t.Parallel()
	lease := &types.CommitmentLease{
		ID: "l", Frame: "ship the importer", Status: types.LeaseActive,
	}
	contrast := NewContrast(slowWithLease(t, lease))

	// Everything wrong at once: depth was asked for, a degraded, truncated
	// stub came back, slowly.
	p := contrast.Observe(types.TurnContext{
		Input:  "walk me through the importer failure in detail, this is urgent",
		Stance: types.StanceExecution,
		LastOutput: &types.OutputReport{
			Length: 3, Truncated: true, Degraded: true, Latency: 90 * time.Second,
		},
	})
	if p == nil {
		t.Fatal("maximal shape gap raised no proposal")
	}
	if p.Severity != types.SeverityHigh || p.TargetGate != types.GateEvaluation {
		t.Errorf("proposal = %+v, want high severity at the evaluation gate", p)
	}
	if p.Source != types.SourceContrast {
		t.Errorf("source = %s", p.Source)
	}
}

func TestContrastShapeSeverityScalesWithGap(t *testing.T) {
	t.Parallel()
	contrast := NewContrast(slowWithLease(t, nil))

	// One factor: a lone truncation is a low-severity nudge.
	p := contrast.Observe(types.TurnContext{
		Input:      "continue",
		Stance:     types.StanceSensemaking,
		LastOutput: &types.OutputReport{Length: 400, Truncated: true},
	})
	if p == nil || p.Severity != types.SeverityLow {
		t.Fatalf("single-factor gap = %+v, want low severity", p)
	}

	// Two factors: truncated stub against a detail-seeking input.
	p = contrast.Observe(types.TurnContext{
		Input:      "explain what happened there",
		Stance:     types.StanceSensemaking,
		LastOutput: &types.OutputReport{Length: 40, Truncated: true},
	})
	if p == nil || p.Severity != types.SeverityMedium {
		t.Fatalf("two-factor gap = %+v, want medium severity", p)
	}
}

func TestContrastQuietWhenShapeMatchesNeed(t *testing.T) {
	t.Parallel()
	contrast := NewContrast(slowWithLease(t, nil))

	if p := contrast.Observe(types.TurnContext{
		Input:      "explain the failure in detail",
		Stance:     types.StanceSensemaking,
		LastOutput: &types.OutputReport{Length: 900, Latency: 2 * time.Second},
	}); p != nil {
		t.Errorf("well-shaped output raised a proposal: %+v", p)
	}
}

func TestContrastQuietExploringWithoutLease(t *testing.T) {
	t.Parallel()
	contrast := NewContrast(slowWithLease(t, nil))
	if p := contrast.Observe(types.TurnContext{Input: "what options do we have", Stance: types.StanceSensemaking}); p != nil {
		t.Errorf("exploration without lease raised a proposal: %+v", p)
	}
}
