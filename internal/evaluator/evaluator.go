// Package evaluator implements the continuous output evaluator: a read-only
// observer that scores each output report against the policy quality floor
// and raises evaluation proposals when quality slips. It reasons about shape
// (length, truncation, degradation, latency) rather than content.
package evaluator

import (
	"fmt"
	"time"

	"lockstep/internal/config"
	"lockstep/internal/logging"
	"lockstep/internal/types"
)

// Evaluator scores output reports turn over turn. It keeps only a small
// rolling record of sub-floor streaks; everything durable lives in memory
// tiers it cannot write.
type Evaluator struct {
	policy func() config.Policy

	belowFloorStreak int
}

// New creates an evaluator. policy is consulted on every observation so
// reloaded floors apply immediately.
func New(policy func() config.Policy) *Evaluator {
	return &Evaluator{policy: policy}
}

// Score rates one output report in [0, 1]. Degradation dominates; truncation
// and thin output relative to the altitude ceiling cost less.
func (e *Evaluator) Score(report types.OutputReport, ceiling int) float64 {
	if report.Length == 0 {
		return 0
	}

	score := 1.0
	if report.Degraded {
		score -= 0.5
	}
	if report.Truncated {
		score -= 0.2
	}
	if ceiling > 0 && report.Length*10 < ceiling {
		// Output an order of magnitude under the allowed depth.
		score -= 0.2
	}
	if report.Latency > 30*time.Second {
		score -= 0.1
	}

	if score < 0 {
		score = 0
	}
	return score
}

// Observe scores the last output and returns at most one proposal.
// A single sub-floor turn proposes gently; a streak escalates.
func (e *Evaluator) Observe(tc types.TurnContext) *types.GateProposal {
	if tc.LastOutput == nil {
		return nil
	}

	pol := e.policy()
	ceiling := 0
	if tc.LastOutput.Altitude.Valid() {
		ceiling = pol.AltitudeCeilings[int(tc.LastOutput.Altitude)]
	}

	score := e.Score(*tc.LastOutput, ceiling)
	logging.Evaluator("turn %d: output score %.2f (floor %.2f)", tc.Turn, score, pol.QualityFloor)

	if score >= pol.QualityFloor {
		e.belowFloorStreak = 0
		return nil
	}
	e.belowFloorStreak++

	severity := types.SeverityMedium
	if e.belowFloorStreak >= 2 {
		severity = types.SeverityHigh
	}
	return &types.GateProposal{
		Reason: fmt.Sprintf("output quality %.2f below floor %.2f (%d consecutive)",
			score, pol.QualityFloor, e.belowFloorStreak),
		Severity:     severity,
		TargetGate:   types.GateEvaluation,
		TargetStance: types.StanceEvaluation,
		Source:       types.SourceEvaluator,
	}
}
