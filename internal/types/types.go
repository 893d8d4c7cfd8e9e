// Package types holds the shared governance types used across lockstep's
// packages: stances, gates, proposals, altitudes, and the turn context.
// Keeping them here lets observer components construct proposals without
// any reference to the components that consume them.
package types

import (
	"time"
)

// =============================================================================
// STANCE AND GATE TYPES
// =============================================================================

// Stance is the exclusive behavioral mode governing the current turn.
// The four values form a 2x2 of (exploration/exploitation) x (accuracy/momentum).
// Exactly one stance is active system-wide; only the gate controller mutates it.
type Stance string

const (
	StanceSensemaking Stance = "sensemaking" // exploration + accuracy
	StanceDiscovery   Stance = "discovery"   // exploration + momentum
	StanceExecution   Stance = "execution"   // exploitation + momentum
	StanceEvaluation  Stance = "evaluation"  // exploitation + accuracy
)

// Exploring reports whether the stance sits on the exploration side.
func (s Stance) Exploring() bool {
	return s == StanceSensemaking || s == StanceDiscovery
}

// Momentum reports whether the stance favors momentum over accuracy.
func (s Stance) Momentum() bool {
	return s == StanceDiscovery || s == StanceExecution
}

// Valid reports whether s is one of the four stances.
func (s Stance) Valid() bool {
	switch s {
	case StanceSensemaking, StanceDiscovery, StanceExecution, StanceEvaluation:
		return true
	}
	return false
}

// Gate is a named authority checkpoint through which stance changes and
// authoritative writes must pass.
type Gate string

const (
	GateFraming    Gate = "framing"
	GateCommitment Gate = "commitment"
	GateEvaluation Gate = "evaluation"
	GateEmergency  Gate = "emergency"
)

// =============================================================================
// PROPOSAL TYPES
// =============================================================================

// Severity orders proposals within a turn. Emergency outranks everything.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityEmergency
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// ProposalSource identifies which observer produced a proposal.
// Source priority breaks severity ties: user-originated requests outrank the
// decay manager, which outranks perception/contrast, which outranks the
// continuous evaluator, which outranks scoped work orders.
type ProposalSource string

const (
	SourceUser       ProposalSource = "user"
	SourceDecay      ProposalSource = "decay"
	SourcePerception ProposalSource = "perception"
	SourceContrast   ProposalSource = "contrast"
	SourceEvaluator  ProposalSource = "evaluator"
	SourceWorkOrder  ProposalSource = "work_order"
)

// Rank returns the tie-break priority of the source (lower wins).
func (s ProposalSource) Rank() int {
	switch s {
	case SourceUser:
		return 0
	case SourceDecay:
		return 1
	case SourcePerception, SourceContrast:
		return 2
	case SourceEvaluator:
		return 3
	case SourceWorkOrder:
		return 4
	default:
		return 5
	}
}

// GateProposal is an immutable, single-turn request for a gate transition.
// Produced by any observer; consumed and cleared by the gate controller
// exactly once per turn; never mutated after creation.
type GateProposal struct {
	ID           string         `json:"id"`
	Reason       string         `json:"reason"`
	Severity     Severity       `json:"severity"`
	TargetGate   Gate           `json:"target_gate"`
	TargetStance Stance         `json:"target_stance"`
	Source       ProposalSource `json:"source"`
	Seq          uint64         `json:"seq"` // Buffer-assigned creation order
	CreatedAt    time.Time      `json:"created_at"`
}

// =============================================================================
// ALTITUDE
// =============================================================================

// Altitude is the chosen reasoning/response depth for a turn.
// Four ordered depths; higher altitudes allow longer, more structured output.
// Advisory only: it never overrides stance or commitment constraints.
type Altitude int

const (
	AltitudeTactical    Altitude = 1 // direct answer, minimal structure
	AltitudeOperational Altitude = 2 // short structured response
	AltitudeStrategic   Altitude = 3 // multi-part reasoning
	AltitudeSystemic    Altitude = 4 // full-depth analysis
)

// String returns the altitude name.
func (a Altitude) String() string {
	switch a {
	case AltitudeTactical:
		return "tactical"
	case AltitudeOperational:
		return "operational"
	case AltitudeStrategic:
		return "strategic"
	case AltitudeSystemic:
		return "systemic"
	default:
		return "unknown"
	}
}

// Valid reports whether a is one of the four depths.
func (a Altitude) Valid() bool {
	return a >= AltitudeTactical && a <= AltitudeSystemic
}

// =============================================================================
// TURN CONTEXT
// =============================================================================

// TurnContext is the read-only snapshot handed to observer components.
type TurnContext struct {
	Turn       int
	Input      string
	Stance     Stance
	Altitude   Altitude
	LastOutput *OutputReport
}

// OutputReport describes the shape of the executor's last output.
// State, not meaning: observers reason about length, degradation, and pacing,
// never about content quality directly.
type OutputReport struct {
	Turn      int           `json:"turn"`
	Stance    Stance        `json:"stance"`
	Altitude  Altitude      `json:"altitude"`
	Length    int           `json:"length"`
	Truncated bool          `json:"truncated"`
	Degraded  bool          `json:"degraded"`
	Latency   time.Duration `json:"latency"`
}

// =============================================================================
// HISTORY
// =============================================================================

// HistoryEntry is one append-only record of an accepted gate transition.
type HistoryEntry struct {
	Turn      int       `json:"turn"`
	From      Stance    `json:"from"`
	To        Stance    `json:"to"`
	Gate      Gate      `json:"gate"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}
