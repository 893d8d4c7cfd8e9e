package governance

import (
	"fmt"
	"sync"
	"time"

	"lockstep/internal/config"
	"lockstep/internal/logging"
	"lockstep/internal/memory"
	"lockstep/internal/types"

	"github.com/google/uuid"
)

// GateController is the sole authority that consumes proposals and performs
// state changes. It is the only component holding a writable reference to
// the stance machine, the commitment manager, and slow memory.
type GateController struct {
	mu          sync.Mutex
	machine     *StanceMachine
	commitments *CommitmentManager
	buffer      *Buffer
	slow        *memory.SlowStore
	history     *memory.HistoryStore
	policy      func() config.Policy

	turn              int
	cooldownRemaining int
	deferred          *types.GateProposal
	warnings          []string
}

// NewGateController wires the controller to its owned state.
// policy is called at each decision point so reloads apply next turn.
func NewGateController(machine *StanceMachine, commitments *CommitmentManager,
	buffer *Buffer, slow *memory.SlowStore, history *memory.HistoryStore,
	policy func() config.Policy) *GateController {

	return &GateController{
		machine:     machine,
		commitments: commitments,
		buffer:      buffer,
		slow:        slow,
		history:     history,
		policy:      policy,
	}
}

// Stance returns the current stance.
func (c *GateController) Stance() types.Stance {
	return c.machine.Current()
}

// CurrentCommitment returns the lease snapshot regardless of status, or nil.
func (c *GateController) CurrentCommitment() *types.CommitmentLease {
	return c.commitments.Current()
}

// CooldownRemaining returns the turns left in the emergency cooldown.
func (c *GateController) CooldownRemaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cooldownRemaining
}

// Warnings drains accumulated non-fatal warnings (persistence failures).
// These must reach the turn result: downstream decisions depend on the
// authoritative writes being durable.
func (c *GateController) Warnings() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := c.warnings
	c.warnings = nil
	return w
}

// =============================================================================
// SLOW LOOP: TURN TICK
// =============================================================================

// BeginTurn advances the governance clocks for a new turn: cooldown first
// (applying any deferred emergency once it elapses), then the commitment
// lease. An expiring lease produces an evaluation-severity proposal; it is
// never deleted out-of-band.
func (c *GateController) BeginTurn(turn int) {
	c.mu.Lock()
	c.turn = turn

	if c.cooldownRemaining > 0 {
		c.cooldownRemaining--
		if c.cooldownRemaining == 0 && c.deferred != nil {
			p := *c.deferred
			c.deferred = nil
			c.mu.Unlock()
			c.applyEmergency(p)
			c.mu.Lock()
		}
	}
	c.mu.Unlock()

	tick := c.commitments.Tick(time.Now())
	if tick.Expired {
		// Persist the expired lease so the authoritative record shows it.
		if err := c.slow.SetLease(tick.Lease); err != nil {
			c.warn("slow memory write failed after lease expiry: %v", err)
		}

		reason := fmt.Sprintf("commitment lease expired: %s", tick.Lease.Frame)
		if tick.Lease.RenewalPrompt != "" {
			reason = fmt.Sprintf("%s (%s)", reason, tick.Lease.RenewalPrompt)
		}
		c.buffer.Emit(types.GateProposal{
			Reason:       reason,
			Severity:     types.SeverityHigh,
			TargetGate:   types.GateEvaluation,
			TargetStance: types.StanceEvaluation,
			Source:       types.SourceDecay,
		})
		logging.Gate("turn %d: expiry proposal raised for lease %s", turn, tick.Lease.ID)
	}
}

// =============================================================================
// SLOW LOOP: PROPOSAL PROCESSING
// =============================================================================

// ProcessProposals drains the buffer, orders it deterministically, and
// attempts each proposal against the stance machine. Multiple proposals may
// succeed in one turn when they do not contend for the same (gate, target)
// transition; the rest are rejected and discarded. Every accepted
// transition appends a history entry, and commitment/evaluation/emergency
// gates additionally append a decision record.
func (c *GateController) ProcessProposals() []TransitionOutcome {
	proposals := c.buffer.Drain()
	if len(proposals) == 0 {
		return nil
	}

	SortProposals(proposals)

	applied := make(map[string]bool)
	outcomes := make([]TransitionOutcome, 0, len(proposals))

	for _, p := range proposals {
		outcomes = append(outcomes, c.apply(p, applied))
	}
	return outcomes
}

func (c *GateController) apply(p types.GateProposal, applied map[string]bool) TransitionOutcome {
	target := p.TargetStance
	if target == "" {
		target = defaultTarget(p.TargetGate)
	}

	if p.TargetGate == types.GateEmergency {
		return c.applyOrDeferEmergency(p, target)
	}

	// Commitment gate presupposes something to commit to.
	if p.TargetGate == types.GateCommitment && c.commitments.Active() == nil {
		logging.GateDebug("rejected %s proposal from %s: no active lease", p.TargetGate, p.Source)
		return TransitionOutcome{
			From:    c.machine.Current(),
			To:      c.machine.Current(),
			Gate:    p.TargetGate,
			Reason:  "commitment gate requires an active lease",
			Applied: time.Now(),
		}
	}

	key := string(p.TargetGate) + "|" + string(target)
	if applied[key] {
		return TransitionOutcome{
			From:    c.machine.Current(),
			To:      c.machine.Current(),
			Gate:    p.TargetGate,
			Reason:  "contends with an already-applied transition this turn",
			Applied: time.Now(),
		}
	}

	outcome := c.machine.Transition(target, p.Reason, p.TargetGate)
	if !outcome.Accepted {
		return outcome
	}
	applied[key] = true

	c.recordTransition(outcome, p)
	return outcome
}

// applyOrDeferEmergency handles the costly escape hatch. During cooldown
// the proposal is still accepted into history, but its lease-reset and
// stance-force effects wait until the cooldown elapses.
func (c *GateController) applyOrDeferEmergency(p types.GateProposal, target types.Stance) TransitionOutcome {
	c.mu.Lock()
	inCooldown := c.cooldownRemaining > 0
	if inCooldown {
		pc := p
		pc.TargetStance = target
		// A later emergency supersedes an earlier deferral. The effects
		// (invalidate lease, force stance, restart cooldown) are idempotent,
		// so only the most recent one needs to fire when the cooldown ends;
		// each deferral still lands in history individually.
		c.deferred = &pc
	}
	c.mu.Unlock()

	if inCooldown {
		logging.Gate("emergency deferred (cooldown active): %s", p.Reason)
		outcome := TransitionOutcome{
			Accepted: true,
			Deferred: true,
			From:     c.machine.Current(),
			To:       c.machine.Current(),
			Gate:     types.GateEmergency,
			Reason:   p.Reason,
			Applied:  time.Now(),
		}
		c.appendHistory(outcome)
		return outcome
	}

	pc := p
	pc.TargetStance = target
	return c.applyEmergency(pc)
}

// applyEmergency performs the full emergency effects: invalidate the lease,
// reset the commitment clock, force the target stance, start the cooldown.
func (c *GateController) applyEmergency(p types.GateProposal) TransitionOutcome {
	now := time.Now()
	c.commitments.Invalidate(now)
	if lease := c.commitments.Current(); lease != nil {
		if err := c.slow.SetLease(lease); err != nil {
			c.warn("slow memory write failed after emergency invalidation: %v", err)
		}
	}

	outcome := c.machine.Transition(p.TargetStance, p.Reason, types.GateEmergency)

	c.mu.Lock()
	c.cooldownRemaining = c.policy().EmergencyCooldownTurns
	c.mu.Unlock()

	logging.Gate("emergency applied: %s (cooldown %d turns)", p.Reason, c.policy().EmergencyCooldownTurns)
	c.recordTransition(outcome, p)
	return outcome
}

// recordTransition appends the history entry and, for decision-bearing
// gates, the decision record. Framing is exploratory and only logs history.
func (c *GateController) recordTransition(outcome TransitionOutcome, p types.GateProposal) {
	c.appendHistory(outcome)

	switch p.TargetGate {
	case types.GateCommitment, types.GateEvaluation, types.GateEmergency:
		rec := types.DecisionRecord{
			ID:         uuid.NewString(),
			Turn:       c.currentTurn(),
			Decision:   fmt.Sprintf("stance %s -> %s via %s gate", outcome.From, outcome.To, p.TargetGate),
			Rationale:  p.Reason,
			Confidence: confidenceFor(p.Severity),
			CreatedAt:  time.Now(),
		}
		if err := c.slow.AppendDecision(rec); err != nil {
			c.warn("slow memory write failed for decision record: %v", err)
		}
	}
}

func (c *GateController) appendHistory(outcome TransitionOutcome) {
	entry := types.HistoryEntry{
		Turn:      c.currentTurn(),
		From:      outcome.From,
		To:        outcome.To,
		Gate:      outcome.Gate,
		Reason:    outcome.Reason,
		Timestamp: outcome.Applied,
	}
	if err := c.history.Append(entry); err != nil {
		c.warn("history append failed: %v", err)
	}
}

func (c *GateController) currentTurn() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turn
}

func (c *GateController) warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logging.MemoryWarn("%s", msg)
	c.mu.Lock()
	c.warnings = append(c.warnings, msg)
	c.mu.Unlock()
}

// defaultTarget infers the canonical target stance for a gate when the
// proposal leaves it unset.
func defaultTarget(gate types.Gate) types.Stance {
	switch gate {
	case types.GateFraming:
		return types.StanceSensemaking
	case types.GateCommitment:
		return types.StanceExecution
	case types.GateEvaluation:
		return types.StanceEvaluation
	case types.GateEmergency:
		return types.StanceSensemaking
	default:
		return ""
	}
}

// confidenceFor maps proposal severity to recorded decision confidence.
// Higher-severity interventions carry less certainty about the path forward.
func confidenceFor(s types.Severity) float64 {
	switch s {
	case types.SeverityEmergency:
		return 0.4
	case types.SeverityHigh:
		return 0.6
	case types.SeverityMedium:
		return 0.7
	default:
		return 0.8
	}
}

// =============================================================================
// COMMITMENT OPERATIONS (GATE-TIME ONLY)
// =============================================================================

// CreateCommitment establishes a new lease and persists it. The only path
// by which a lease comes into existence; ErrCommitmentConflict propagates.
func (c *GateController) CreateCommitment(frame string, horizon types.HorizonClass,
	criteria, nonGoals []string, expiry types.Expiry, renewalPrompt string) (*types.CommitmentLease, error) {

	lease, err := c.commitments.Create(frame, horizon, criteria, nonGoals, expiry, renewalPrompt)
	if err != nil {
		return nil, err
	}

	if err := c.slow.SetLease(lease); err != nil {
		c.warn("slow memory write failed for new lease: %v", err)
	}

	rec := types.DecisionRecord{
		ID:         uuid.NewString(),
		Turn:       c.currentTurn(),
		Decision:   fmt.Sprintf("committed to: %s", frame),
		Rationale:  fmt.Sprintf("horizon=%s, expiry=%s", horizon, expiry.Kind),
		Confidence: 0.7,
		CreatedAt:  time.Now(),
	}
	if err := c.slow.AppendDecision(rec); err != nil {
		c.warn("slow memory write failed for commitment decision: %v", err)
	}

	return lease, nil
}

// RenewCommitment extends the active lease and persists the change.
func (c *GateController) RenewCommitment(extraTurns int) error {
	if err := c.commitments.Renew(extraTurns); err != nil {
		return err
	}
	if lease := c.commitments.Current(); lease != nil {
		if err := c.slow.SetLease(lease); err != nil {
			c.warn("slow memory write failed for lease renewal: %v", err)
		}
	}
	return nil
}

// CompleteCommitment finishes the active lease and persists the change.
func (c *GateController) CompleteCommitment() error {
	if err := c.commitments.Complete(time.Now()); err != nil {
		return err
	}
	if lease := c.commitments.Current(); lease != nil {
		if err := c.slow.SetLease(lease); err != nil {
			c.warn("slow memory write failed for lease completion: %v", err)
		}
	}
	return nil
}
