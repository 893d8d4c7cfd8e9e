package types

import (
	"time"
)

// =============================================================================
// FAST MEMORY TYPES
// =============================================================================

// ProgressState is the continuously-updated, non-authoritative snapshot of
// where the work stands. Overwritten freely by the fast loop; it can never
// override slow memory.
type ProgressState struct {
	Stage             string    `json:"stage"`
	NextActions       []string  `json:"next_actions"`       // bounded
	Blockers          []string  `json:"blockers"`           // bounded
	RecentCompletions []string  `json:"recent_completions"` // bounded
	UpdatedTurn       int       `json:"updated_turn"`
	UpdatedAt         time.Time `json:"updated_at"`
	Stale             bool      `json:"stale"`
}

// InteractionSignal is a single fast-loop observation about the exchange.
type InteractionSignal struct {
	Turn      int       `json:"turn"`
	Kind      string    `json:"kind"` // urgency, frustration, topic_shift, verbosity_gap, degraded
	Strength  float64   `json:"strength"`
	Note      string    `json:"note,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// =============================================================================
// BRIDGE / ARTIFACT INDEX TYPES
// =============================================================================

// ArtifactStatus decays on a schedule independent of explicit writes.
type ArtifactStatus string

const (
	ArtifactCurrent     ArtifactStatus = "current"
	ArtifactStale       ArtifactStatus = "stale"
	ArtifactNeedsReview ArtifactStatus = "needs_review"
)

// ArtifactEntry is a pointer-only index record. It never stores content.
type ArtifactEntry struct {
	Name        string         `json:"name"`
	Kind        string         `json:"kind"`
	Pointer     string         `json:"pointer"` // location, never content
	Status      ArtifactStatus `json:"status"`
	Version     int            `json:"version"`
	Owner       string         `json:"owner"` // primary or a work-order ID
	UpdatedTurn int            `json:"updated_turn"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
