// Package altitude implements the per-turn reasoning-depth assessor.
// The assessor weighs the commitment horizon, the apparent risk of the turn,
// and the immediate moment (urgency, frustration) into one of four depths.
// Its output is advisory: it shapes response depth and never overrides
// stance or commitment constraints.
package altitude

import (
	"strings"

	"lockstep/internal/logging"
	"lockstep/internal/memory"
	"lockstep/internal/types"
)

// Markers that pull a turn toward deeper reasoning.
var depthMarkers = []string{
	"architecture", "tradeoff", "trade-off", "strategy", "long term",
	"design", "why", "implications", "compare", "direction",
}

// Markers that pull a turn toward a direct, shallow answer.
var shallowMarkers = []string{
	"quick", "just", "simply", "one-liner", "briefly", "yes or no",
}

// Assessor selects a reasoning altitude for each turn.
type Assessor struct {
	slow memory.SlowView
	fast *memory.FastStore
}

// NewAssessor creates an assessor reading memory through its views.
func NewAssessor(slow memory.SlowView, fast *memory.FastStore) *Assessor {
	return &Assessor{slow: slow, fast: fast}
}

// Assess picks the altitude for the turn.
//
// Base depth follows the stance: accuracy stances start deeper than momentum
// stances. The commitment horizon, input markers, and recent urgency
// signals then shift it, clamped to the four valid depths.
func (a *Assessor) Assess(tc types.TurnContext) types.Altitude {
	depth := baseDepth(tc.Stance)

	if lease := a.slow.Lease(); lease != nil && lease.Status == types.LeaseActive {
		switch lease.Horizon {
		case types.HorizonLong:
			depth++
		case types.HorizonShort:
			depth--
		}
	}

	input := strings.ToLower(tc.Input)
	if containsAny(input, depthMarkers) {
		depth++
	}
	if containsAny(input, shallowMarkers) || len(strings.Fields(input)) <= 4 {
		depth--
	}

	// Recent urgency compresses depth: answer first, elaborate later.
	if a.recentUrgency(tc.Turn) {
		depth--
	}

	if depth < int(types.AltitudeTactical) {
		depth = int(types.AltitudeTactical)
	}
	if depth > int(types.AltitudeSystemic) {
		depth = int(types.AltitudeSystemic)
	}

	alt := types.Altitude(depth)
	logging.Altitude("turn %d: altitude %s (stance=%s)", tc.Turn, alt, tc.Stance)
	return alt
}

func baseDepth(s types.Stance) int {
	switch s {
	case types.StanceSensemaking, types.StanceEvaluation:
		return int(types.AltitudeStrategic)
	default:
		return int(types.AltitudeOperational)
	}
}

// recentUrgency reports whether an urgency signal landed within the last
// two turns.
func (a *Assessor) recentUrgency(turn int) bool {
	for _, sig := range a.fast.Signals() {
		if sig.Kind == "urgency" && turn-sig.Turn <= 2 {
			return true
		}
	}
	return false
}

func containsAny(input string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(input, m) {
			return true
		}
	}
	return false
}
