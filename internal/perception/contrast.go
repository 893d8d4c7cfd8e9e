package perception

import (
	"fmt"
	"strings"
	"time"

	"lockstep/internal/memory"
	"lockstep/internal/types"
)

// Detail markers indicate the user is asking for depth, not a quick answer.
var detailMarkers = []string{
	"explain", "in detail", "walk me through", "elaborate", "break down", "why does",
}

// shortOutputThreshold is the length below which an answer counts as a stub
// when the input asked for depth.
const shortOutputThreshold = 200

// slowLatencyThreshold is the pacing bound an urgent input expects.
const slowLatencyThreshold = 30 * time.Second

// Contrast compares observed behavior against the record: work touching
// declared non-goals, momentum stances running without any lease, and a
// last output whose shape mismatches the need the input expresses.
// Read-only; influence is proposals only.
type Contrast struct {
	slow memory.SlowView
}

// NewContrast creates a contrast detector reading slow memory through its view.
func NewContrast(slow memory.SlowView) *Contrast {
	return &Contrast{slow: slow}
}

// Observe compares the turn against the commitment record and the last
// output's shape, returning at most one proposal, or nil when behavior,
// commitment, and output agree.
func (c *Contrast) Observe(tc types.TurnContext) *types.GateProposal {
	lease := c.slow.Lease()
	active := lease != nil && lease.Status == types.LeaseActive
	input := strings.ToLower(tc.Input)

	// Execution with no lease is a contradiction between stance and record.
	if tc.Stance == types.StanceExecution && !active {
		return &types.GateProposal{
			Reason:       "execution stance with no active commitment lease",
			Severity:     types.SeverityHigh,
			TargetGate:   types.GateEvaluation,
			TargetStance: types.StanceEvaluation,
			Source:       types.SourceContrast,
		}
	}

	// Work steering into a declared non-goal.
	if active {
		for _, ng := range lease.NonGoals {
			ng = strings.ToLower(strings.TrimSpace(ng))
			if ng == "" {
				continue
			}
			if strings.Contains(input, ng) {
				return &types.GateProposal{
					Reason:       fmt.Sprintf("turn touches a declared non-goal: %s", ng),
					Severity:     types.SeverityHigh,
					TargetGate:   types.GateEvaluation,
					TargetStance: types.StanceEvaluation,
					Source:       types.SourceContrast,
				}
			}
		}
	}

	// Shape check: infer the need from the input and compare it against
	// what the executor actually produced last turn.
	if tc.LastOutput != nil {
		if gap, causes := shapeGap(input, tc.LastOutput); gap > 0 {
			return &types.GateProposal{
				Reason:       fmt.Sprintf("output shape mismatches the inferred need: %s", causes),
				Severity:     severityForGap(gap),
				TargetGate:   types.GateEvaluation,
				TargetStance: types.StanceEvaluation,
				Source:       types.SourceContrast,
			}
		}
	}

	return nil
}

// shapeGap scores the mismatch between the need the input expresses and the
// shape of the last output. Each contributing factor widens the gap.
func shapeGap(input string, out *types.OutputReport) (int, string) {
	gap := 0
	var causes []string

	if out.Degraded {
		gap += 2
		causes = append(causes, "degraded output")
	}
	if out.Truncated {
		gap++
		causes = append(causes, "truncated output")
	}
	if matchAny(input, detailMarkers) && out.Length < shortOutputThreshold {
		gap++
		causes = append(causes, "depth requested but a stub was produced")
	}
	if matchAny(input, urgencyMarkers) && out.Latency > slowLatencyThreshold {
		gap++
		causes = append(causes, "urgent input against slow pacing")
	}
	return gap, strings.Join(causes, ", ")
}

// severityForGap scales corrective severity with the size of the gap.
func severityForGap(gap int) types.Severity {
	switch {
	case gap >= 4:
		return types.SeverityHigh
	case gap >= 2:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}
