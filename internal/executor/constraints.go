// Package executor produces the per-turn response. It reads the governing
// state (stance, altitude, lease, memory views), folds it into behavioral
// constraints for the generation collaborator, and reports the shape of what
// came back. It never proposes transitions and never writes authoritative
// state.
package executor

import (
	"fmt"
	"strings"

	"lockstep/internal/types"
)

// stanceConstraint describes how a stance binds the executor's behavior.
type stanceConstraint struct {
	posture string
	allowed []string
	avoided []string
}

var stanceConstraints = map[types.Stance]stanceConstraint{
	types.StanceSensemaking: {
		posture: "You are making sense of the situation before anything is decided.",
		allowed: []string{
			"ask clarifying questions",
			"name assumptions and unknowns",
			"summarize what is established so far",
		},
		avoided: []string{
			"committing to a solution",
			"producing final deliverables",
		},
	},
	types.StanceDiscovery: {
		posture: "You are probing options with momentum; breadth over polish.",
		allowed: []string{
			"sketch candidate approaches",
			"run quick comparisons",
			"surface risks early",
		},
		avoided: []string{
			"deep-polishing any single option",
			"treating a sketch as a decision",
		},
	},
	types.StanceExecution: {
		posture: "You are executing against the committed frame; depth over breadth.",
		allowed: []string{
			"produce concrete work on the committed frame",
			"flag blockers as they appear",
		},
		avoided: []string{
			"reopening settled questions",
			"wandering outside the committed frame",
		},
	},
	types.StanceEvaluation: {
		posture: "You are checking work against its success criteria.",
		allowed: []string{
			"judge results against the stated criteria",
			"recommend renewing, revising, or closing the commitment",
		},
		avoided: []string{
			"starting new work",
			"moving goalposts mid-assessment",
		},
	},
}

var altitudeStyle = map[types.Altitude]string{
	types.AltitudeTactical:    "Answer directly. No preamble, minimal structure.",
	types.AltitudeOperational: "Answer in a short structured form; a few steps or bullets at most.",
	types.AltitudeStrategic:   "Reason in parts: context, options, recommendation.",
	types.AltitudeSystemic:    "Give a full-depth analysis including second-order effects.",
}

// buildSystemPrompt merges stance constraints, altitude style, the lease,
// and session principles into one instruction block. Lease non-goals merge
// with the stance's avoided list; the tighter set always wins.
func buildSystemPrompt(tc types.TurnContext, lease *types.CommitmentLease, principles []string, progressStage string) string {
	sc := stanceConstraints[tc.Stance]

	var b strings.Builder
	b.WriteString(sc.posture)
	b.WriteString("\n\n")
	b.WriteString(altitudeStyle[tc.Altitude])
	b.WriteString("\n")

	if len(sc.allowed) > 0 {
		b.WriteString("\nDo:\n")
		for _, a := range sc.allowed {
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}

	avoided := append([]string(nil), sc.avoided...)
	if lease != nil && lease.Status == types.LeaseActive {
		fmt.Fprintf(&b, "\nCommitted frame: %s\n", lease.Frame)
		if len(lease.Criteria) > 0 {
			b.WriteString("Success criteria:\n")
			for _, c := range lease.Criteria {
				fmt.Fprintf(&b, "- %s\n", c)
			}
		}
		avoided = append(avoided, lease.NonGoals...)
	}

	if len(avoided) > 0 {
		b.WriteString("\nDo not:\n")
		for _, a := range avoided {
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}

	if len(principles) > 0 {
		b.WriteString("\nSession principles:\n")
		for _, p := range principles {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}

	if progressStage != "" {
		fmt.Fprintf(&b, "\nCurrent work stage: %s\n", progressStage)
	}

	return b.String()
}
