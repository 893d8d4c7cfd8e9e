// Package governance implements the slow decision loop: the stance machine,
// the proposal buffer, the commitment manager, and the gate controller that
// is the sole authority over all of them.
package governance

import (
	"sync"
	"time"

	"lockstep/internal/logging"
	"lockstep/internal/types"
)

// TransitionOutcome is the result of attempting one gate transition.
// Rejection is not an exception path: it is the expected steady-state
// response to most proposals, and it always carries the unchanged stance.
type TransitionOutcome struct {
	Accepted bool         `json:"accepted"`
	From     types.Stance `json:"from"`
	To       types.Stance `json:"to"` // equals From when rejected
	Gate     types.Gate   `json:"gate"`
	Reason   string       `json:"reason"`
	Deferred bool         `json:"deferred"` // emergency accepted during cooldown
	Applied  time.Time    `json:"applied"`
}

// StanceMachine is the exclusive-state automaton. Exactly one stance is
// active; transitions succeed only under the fixed gate table, and only the
// gate controller calls Transition.
type StanceMachine struct {
	mu      sync.RWMutex
	current types.Stance
}

// NewStanceMachine starts in Sensemaking.
func NewStanceMachine() *StanceMachine {
	return &StanceMachine{current: types.StanceSensemaking}
}

// Current returns the active stance.
func (m *StanceMachine) Current() types.Stance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Restore sets the stance directly. Boot-time only.
func (m *StanceMachine) Restore(s types.Stance) {
	if !s.Valid() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = s
}

// Transition attempts to move to the target stance via the given gate.
func (m *StanceMachine) Transition(to types.Stance, reason string, via types.Gate) TransitionOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	outcome := TransitionOutcome{
		From:    m.current,
		To:      m.current,
		Gate:    via,
		Applied: time.Now(),
	}

	if !to.Valid() {
		outcome.Reason = "unknown target stance"
		return outcome
	}

	if !reachable(m.current, to, via) {
		outcome.Reason = "transition outside gate table"
		logging.Get(logging.CategoryStance).Debug("rejected %s -> %s via %s: %s",
			m.current, to, via, reason)
		return outcome
	}

	logging.Stance("%s -> %s via %s: %s", m.current, to, via, reason)
	m.current = to
	outcome.Accepted = true
	outcome.To = to
	outcome.Reason = reason
	return outcome
}

// reachable is the fixed transition table, exhaustive over gate kind.
//
// A direct Execution -> Discovery move is illegal under every gate except
// Emergency; it must route through Evaluation or Framing, which prevents
// thrashing between building and wandering.
func reachable(from, to types.Stance, via types.Gate) bool {
	switch via {
	case types.GateFraming:
		// Framing reopens exploration from anywhere, except the direct
		// Execution -> Discovery shortcut.
		if to != types.StanceSensemaking && to != types.StanceDiscovery {
			return false
		}
		if from == types.StanceExecution && to == types.StanceDiscovery {
			return false
		}
		return true

	case types.GateCommitment:
		if to != types.StanceExecution {
			return false
		}
		return from == types.StanceSensemaking ||
			from == types.StanceDiscovery ||
			from == types.StanceEvaluation

	case types.GateEvaluation:
		if to == types.StanceEvaluation {
			return true // from any state
		}
		// Leaving Evaluation: back to framing or back to work.
		return from == types.StanceEvaluation &&
			(to == types.StanceSensemaking || to == types.StanceExecution)

	case types.GateEmergency:
		// Unconditional escape hatch.
		return true

	default:
		return false
	}
}
