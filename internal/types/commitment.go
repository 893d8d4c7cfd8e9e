package types

import (
	"time"
)

// =============================================================================
// COMMITMENT LEASE TYPES
// =============================================================================

// HorizonClass classifies how long a commitment is expected to hold focus.
type HorizonClass string

const (
	HorizonShort HorizonClass = "short"
	HorizonMid   HorizonClass = "mid"
	HorizonLong  HorizonClass = "long"
)

// ExpiryKind selects the expiry condition of a lease.
type ExpiryKind string

const (
	ExpiryTurns    ExpiryKind = "turns"     // expires after N turns
	ExpiryDeadline ExpiryKind = "deadline"  // expires at a wall-clock time
	ExpiryExternal ExpiryKind = "external"  // expires on a named external signal
)

// Expiry is a lease's expiry condition.
type Expiry struct {
	Kind     ExpiryKind `json:"kind"`
	Turns    int        `json:"turns,omitempty"`
	Deadline time.Time  `json:"deadline,omitempty"`
	Signal   string     `json:"signal,omitempty"`
}

// LeaseStatus is the lifecycle state of a commitment lease.
type LeaseStatus string

const (
	LeaseActive      LeaseStatus = "active"
	LeaseExpired     LeaseStatus = "expired"     // reached expiry without renewal; still readable
	LeaseCompleted   LeaseStatus = "completed"   // explicitly finished at a gate
	LeaseInvalidated LeaseStatus = "invalidated" // revoked by an emergency
)

// CommitmentLease is the time-bounded record of the problem currently
// authorized for focus. At most one lease is active at any instant.
type CommitmentLease struct {
	ID             string       `json:"id"`
	Frame          string       `json:"frame"` // problem statement
	Horizon        HorizonClass `json:"horizon"`
	Criteria       []string     `json:"criteria"`  // success criteria, bounded
	NonGoals       []string     `json:"non_goals"` // bounded
	Expiry         Expiry       `json:"expiry"`
	RenewalPrompt  string       `json:"renewal_prompt"`
	RemainingTurns int          `json:"remaining_turns"`
	Status         LeaseStatus  `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
	ClosedAt       *time.Time   `json:"closed_at,omitempty"`
}

// Clone returns a deep copy so callers cannot mutate the managed lease.
func (l *CommitmentLease) Clone() *CommitmentLease {
	if l == nil {
		return nil
	}
	cp := *l
	cp.Criteria = append([]string(nil), l.Criteria...)
	cp.NonGoals = append([]string(nil), l.NonGoals...)
	if l.ClosedAt != nil {
		t := *l.ClosedAt
		cp.ClosedAt = &t
	}
	return &cp
}

// =============================================================================
// DECISION RECORDS
// =============================================================================

// DecisionRecord is one append-only entry in the authoritative decision log.
// Records are never deleted; a superseding record references the prior one,
// which remains readable.
type DecisionRecord struct {
	ID              string    `json:"id"`
	Turn            int       `json:"turn"`
	Decision        string    `json:"decision"`
	Rationale       string    `json:"rationale"`
	Tradeoffs       []string  `json:"tradeoffs,omitempty"`
	Confidence      float64   `json:"confidence"` // 0.0-1.0
	RevisitTriggers []string  `json:"revisit_triggers,omitempty"`
	Supersedes      string    `json:"supersedes,omitempty"` // prior record ID
	CreatedAt       time.Time `json:"created_at"`
}
