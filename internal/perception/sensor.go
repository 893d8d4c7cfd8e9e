// Package perception implements the observer components of the slow loop:
// the perception sensor and the contrast detector. Both are read-only over
// system state and express influence exclusively as gate proposals; neither
// can change a stance or touch slow memory.
package perception

import (
	"strings"

	"lockstep/internal/memory"
	"lockstep/internal/types"
)

// =============================================================================
// MARKER TABLES
// =============================================================================

// Emergency markers indicate the user is pulling the cord, not steering.
var emergencyMarkers = []string{
	"stop everything",
	"drop everything",
	"abort",
	"this is all wrong",
	"completely wrong",
	"start over",
}

// Reframe markers indicate the frame itself is in question.
var reframeMarkers = []string{
	"step back",
	"let's rethink",
	"different approach",
	"actually, instead",
	"change of plan",
	"wrong problem",
	"reframe",
}

// Urgency markers feed fast-loop signals, never proposals on their own.
var urgencyMarkers = []string{
	"urgent", "asap", "right now", "immediately", "quickly",
}

// Frustration markers likewise feed signals.
var frustrationMarkers = []string{
	"again?", "still broken", "why is this", "not what i asked", "frustrating",
}

// Sensor watches the interaction for frame-level trouble: explicit aborts,
// reframing language, and input drifting away from the committed frame.
type Sensor struct {
	slow memory.SlowView
}

// NewSensor creates a perception sensor reading slow memory through its view.
func NewSensor(slow memory.SlowView) *Sensor {
	return &Sensor{slow: slow}
}

// Observe inspects one turn and returns at most one proposal, or nil when
// the interaction looks steady.
func (s *Sensor) Observe(tc types.TurnContext) *types.GateProposal {
	input := strings.ToLower(tc.Input)

	if matchAny(input, emergencyMarkers) {
		return &types.GateProposal{
			Reason:       "user signaled a hard stop",
			Severity:     types.SeverityEmergency,
			TargetGate:   types.GateEmergency,
			TargetStance: types.StanceSensemaking,
			Source:       types.SourcePerception,
		}
	}

	if matchAny(input, reframeMarkers) {
		return &types.GateProposal{
			Reason:       "user is questioning the current frame",
			Severity:     types.SeverityMedium,
			TargetGate:   types.GateFraming,
			TargetStance: types.StanceSensemaking,
			Source:       types.SourcePerception,
		}
	}

	// Drift check: committed work whose input no longer resembles the frame.
	if tc.Stance == types.StanceExecution {
		if lease := s.slow.Lease(); lease != nil && lease.Status == types.LeaseActive {
			if overlap(input, strings.ToLower(lease.Frame)) == 0 && wordCount(input) >= 6 {
				return &types.GateProposal{
					Reason:       "input has drifted away from the committed frame",
					Severity:     types.SeverityLow,
					TargetGate:   types.GateEvaluation,
					TargetStance: types.StanceEvaluation,
					Source:       types.SourcePerception,
				}
			}
		}
	}

	return nil
}

// Signals extracts fast-loop interaction signals from the turn. These go to
// fast memory and inform pacing; they are not proposals.
func (s *Sensor) Signals(tc types.TurnContext) []types.InteractionSignal {
	input := strings.ToLower(tc.Input)
	var signals []types.InteractionSignal

	if matchAny(input, urgencyMarkers) {
		signals = append(signals, types.InteractionSignal{
			Turn: tc.Turn, Kind: "urgency", Strength: 0.8,
		})
	}
	if matchAny(input, frustrationMarkers) {
		signals = append(signals, types.InteractionSignal{
			Turn: tc.Turn, Kind: "frustration", Strength: 0.7,
		})
	}
	if tc.LastOutput != nil && tc.LastOutput.Degraded {
		signals = append(signals, types.InteractionSignal{
			Turn: tc.Turn, Kind: "degraded", Strength: 1.0,
			Note: "previous output was degraded",
		})
	}
	return signals
}

// =============================================================================
// TEXT HELPERS
// =============================================================================

func matchAny(input string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(input, m) {
			return true
		}
	}
	return false
}

// overlap counts content words shared between two texts.
func overlap(a, b string) int {
	set := make(map[string]bool)
	for _, w := range strings.Fields(b) {
		if len(w) > 3 {
			set[w] = true
		}
	}
	count := 0
	for _, w := range strings.Fields(a) {
		if set[w] {
			count++
		}
	}
	return count
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
