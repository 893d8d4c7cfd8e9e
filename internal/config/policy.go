package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy holds the governance policy constants.
// These are tunable operating points, not contracts: the engine reads them
// at each decision point, so a reload takes effect on the next turn.
type Policy struct {
	// EmergencyCooldownTurns is the number of turns after an applied
	// Emergency during which further Emergency effects are deferred.
	// Minimum 3.
	EmergencyCooldownTurns int `yaml:"emergency_cooldown_turns"`

	// QualityFloor is the evaluator score below which an escalation
	// proposal is emitted (0.0-1.0).
	QualityFloor float64 `yaml:"quality_floor"`

	// BridgeStaleTurns / BridgeReviewTurns drive artifact status decay:
	// current -> stale after BridgeStaleTurns without update,
	// stale -> needs-review after BridgeReviewTurns more.
	BridgeStaleTurns  int `yaml:"bridge_stale_turns"`
	BridgeReviewTurns int `yaml:"bridge_review_turns"`

	// ProgressStaleTurns marks the fast-memory progress state stale when
	// it has not been rewritten for this many turns.
	ProgressStaleTurns int `yaml:"progress_stale_turns"`

	// SignalWindow bounds the rolling interaction-signal lists in fast
	// memory; oldest entries are dropped beyond this length.
	SignalWindow int `yaml:"signal_window"`

	// HistoryWindow is the number of recent turns handed to the executor.
	HistoryWindow int `yaml:"history_window"`

	// DefaultLeaseTurns is the lease length used when a commitment is
	// created without an explicit expiry.
	DefaultLeaseTurns int `yaml:"default_lease_turns"`

	// WorkOrderTurns is the lease length granted to scoped work orders.
	WorkOrderTurns int `yaml:"work_order_turns"`

	// AltitudeCeilings maps each altitude (1-4) to a max response length
	// in characters. Index 0 is unused.
	AltitudeCeilings [5]int `yaml:"altitude_ceilings"`
}

// DefaultPolicy returns the default governance policy.
func DefaultPolicy() Policy {
	return Policy{
		EmergencyCooldownTurns: 3,
		QualityFloor:           0.5,
		BridgeStaleTurns:       10,
		BridgeReviewTurns:      20,
		ProgressStaleTurns:     5,
		SignalWindow:           20,
		HistoryWindow:          6,
		DefaultLeaseTurns:      10,
		WorkOrderTurns:         5,
		AltitudeCeilings:       [5]int{0, 400, 1200, 4000, 12000},
	}
}

// Validate checks policy invariants.
func (p Policy) Validate() error {
	if p.EmergencyCooldownTurns < 3 {
		return fmt.Errorf("emergency_cooldown_turns must be >= 3, got %d", p.EmergencyCooldownTurns)
	}
	if p.QualityFloor < 0 || p.QualityFloor > 1 {
		return fmt.Errorf("quality_floor must be in [0,1], got %f", p.QualityFloor)
	}
	if p.SignalWindow <= 0 {
		return fmt.Errorf("signal_window must be positive, got %d", p.SignalWindow)
	}
	if p.HistoryWindow <= 0 {
		return fmt.Errorf("history_window must be positive, got %d", p.HistoryWindow)
	}
	if p.DefaultLeaseTurns <= 0 {
		return fmt.Errorf("default_lease_turns must be positive, got %d", p.DefaultLeaseTurns)
	}
	for alt := 1; alt <= 4; alt++ {
		if p.AltitudeCeilings[alt] <= 0 {
			return fmt.Errorf("altitude_ceilings[%d] must be positive, got %d", alt, p.AltitudeCeilings[alt])
		}
	}
	return nil
}

// LoadPolicyFile reads a standalone policy YAML file.
// Used by the watcher for hot reload; the file contains only the policy
// section, not the full config.
func LoadPolicyFile(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to read policy file: %w", err)
	}

	p := DefaultPolicy()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("failed to parse policy file: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}
