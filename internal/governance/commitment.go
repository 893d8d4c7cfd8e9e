package governance

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"lockstep/internal/logging"
	"lockstep/internal/types"

	"github.com/google/uuid"
)

// ErrCommitmentConflict is returned when a lease is created while another
// is still active. Hard error, never a silent queue.
var ErrCommitmentConflict = errors.New("commitment conflict: a lease is already active")

// ErrNoActiveLease is returned by renew/complete when no lease is active.
var ErrNoActiveLease = errors.New("no active commitment lease")

// TickResult reports one commitment clock tick.
type TickResult struct {
	Lease     *types.CommitmentLease // snapshot after the tick, nil if no lease
	Expired   bool                   // lease reached its expiry this tick
	Remaining int
}

// CommitmentManager owns the single active commitment lease and its expiry
// clock. Leases are created/renewed/revised only at a gate; the manager
// itself only decrements the clock, once per turn. Expiry never deletes the
// lease - the expired lease stays readable and the gate controller turns the
// expiry signal into an evaluation proposal.
type CommitmentManager struct {
	mu    sync.RWMutex
	lease *types.CommitmentLease
}

// NewCommitmentManager creates a manager with no active lease.
func NewCommitmentManager() *CommitmentManager {
	return &CommitmentManager{}
}

// Restore installs a persisted lease at boot.
func (m *CommitmentManager) Restore(lease *types.CommitmentLease) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lease = lease.Clone()
}

// Active returns a snapshot of the lease if it is currently active, else nil.
func (m *CommitmentManager) Active() *types.CommitmentLease {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lease == nil || m.lease.Status != types.LeaseActive {
		return nil
	}
	return m.lease.Clone()
}

// Current returns a snapshot of the lease regardless of status, else nil.
// An expired lease remains readable here until replaced.
func (m *CommitmentManager) Current() *types.CommitmentLease {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lease.Clone()
}

// Create establishes a new lease. Fails with ErrCommitmentConflict while
// another lease is active; an expired/completed/invalidated lease does not
// block creation.
func (m *CommitmentManager) Create(frame string, horizon types.HorizonClass,
	criteria, nonGoals []string, expiry types.Expiry, renewalPrompt string) (*types.CommitmentLease, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == "" {
		return nil, fmt.Errorf("commitment frame required")
	}
	if m.lease != nil && m.lease.Status == types.LeaseActive {
		return nil, ErrCommitmentConflict
	}

	remaining := 0
	if expiry.Kind == types.ExpiryTurns {
		if expiry.Turns <= 0 {
			return nil, fmt.Errorf("turn-count expiry requires positive turns, got %d", expiry.Turns)
		}
		remaining = expiry.Turns
	}

	lease := &types.CommitmentLease{
		ID:             uuid.NewString(),
		Frame:          frame,
		Horizon:        horizon,
		Criteria:       append([]string(nil), criteria...),
		NonGoals:       append([]string(nil), nonGoals...),
		Expiry:         expiry,
		RenewalPrompt:  renewalPrompt,
		RemainingTurns: remaining,
		Status:         types.LeaseActive,
		CreatedAt:      time.Now(),
	}
	m.lease = lease

	logging.Commitment("lease created: %s (horizon=%s, expiry=%s)", lease.ID, horizon, expiry.Kind)
	return lease.Clone(), nil
}

// Tick decrements the expiry clock once. On reaching the expiry condition
// the lease is marked expired but not deleted; the caller is responsible
// for raising the evaluation-severity proposal.
func (m *CommitmentManager) Tick(now time.Time) TickResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lease == nil || m.lease.Status != types.LeaseActive {
		return TickResult{Lease: m.lease.Clone()}
	}

	switch m.lease.Expiry.Kind {
	case types.ExpiryTurns:
		if m.lease.RemainingTurns > 0 {
			m.lease.RemainingTurns--
		}
		if m.lease.RemainingTurns == 0 {
			m.expireLocked(now)
			return TickResult{Lease: m.lease.Clone(), Expired: true}
		}
		return TickResult{Lease: m.lease.Clone(), Remaining: m.lease.RemainingTurns}

	case types.ExpiryDeadline:
		if !m.lease.Expiry.Deadline.IsZero() && !now.Before(m.lease.Expiry.Deadline) {
			m.expireLocked(now)
			return TickResult{Lease: m.lease.Clone(), Expired: true}
		}
		return TickResult{Lease: m.lease.Clone()}

	default:
		// External-signal expiry: the clock never fires on its own.
		return TickResult{Lease: m.lease.Clone()}
	}
}

// Signal delivers an external expiry signal. Returns true if the lease
// expired as a result.
func (m *CommitmentManager) Signal(name string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lease == nil || m.lease.Status != types.LeaseActive {
		return false
	}
	if m.lease.Expiry.Kind != types.ExpiryExternal || m.lease.Expiry.Signal != name {
		return false
	}
	m.expireLocked(now)
	return true
}

func (m *CommitmentManager) expireLocked(now time.Time) {
	m.lease.Status = types.LeaseExpired
	t := now
	m.lease.ClosedAt = &t
	logging.Commitment("lease expired: %s", m.lease.ID)
}

// Renew extends an active lease's turn budget.
func (m *CommitmentManager) Renew(extraTurns int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lease == nil || m.lease.Status != types.LeaseActive {
		return ErrNoActiveLease
	}
	if extraTurns <= 0 {
		return fmt.Errorf("renewal requires positive turns, got %d", extraTurns)
	}
	m.lease.RemainingTurns += extraTurns

	logging.Commitment("lease renewed: %s (+%d turns, %d remaining)",
		m.lease.ID, extraTurns, m.lease.RemainingTurns)
	return nil
}

// Complete finishes the active lease.
func (m *CommitmentManager) Complete(now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lease == nil || m.lease.Status != types.LeaseActive {
		return ErrNoActiveLease
	}
	m.lease.Status = types.LeaseCompleted
	t := now
	m.lease.ClosedAt = &t

	logging.Commitment("lease completed: %s", m.lease.ID)
	return nil
}

// Invalidate revokes the current lease. Emergency path; gate controller only.
func (m *CommitmentManager) Invalidate(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lease == nil || m.lease.Status != types.LeaseActive {
		return
	}
	m.lease.Status = types.LeaseInvalidated
	t := now
	m.lease.ClosedAt = &t

	logging.Commitment("lease invalidated: %s", m.lease.ID)
}
