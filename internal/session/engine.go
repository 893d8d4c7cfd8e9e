// Package session orchestrates the two loops around a conversation: the
// slow loop (tick clocks, drain proposals, apply gate decisions) and the
// fast loop (assess altitude, execute, record signals). One Engine owns one
// session and its workspace state under .lockstep/.
package session

import (
	"context"
	"fmt"
	"sync"

	"lockstep/internal/altitude"
	"lockstep/internal/config"
	"lockstep/internal/delegation"
	"lockstep/internal/evaluator"
	"lockstep/internal/executor"
	"lockstep/internal/governance"
	"lockstep/internal/llm"
	"lockstep/internal/logging"
	"lockstep/internal/memory"
	"lockstep/internal/perception"
	"lockstep/internal/types"
)

// TurnResult is everything one processed turn produced.
type TurnResult struct {
	Turn        int                            `json:"turn"`
	Response    string                         `json:"response"`
	Stance      types.Stance                   `json:"stance"`
	Altitude    types.Altitude                 `json:"altitude"`
	Transitions []governance.TransitionOutcome `json:"transitions,omitempty"`
	Commitment  *types.CommitmentLease         `json:"commitment,omitempty"`
	Warnings    []string                       `json:"warnings,omitempty"`
}

// Engine wires the full system together for one session.
type Engine struct {
	workspace string
	cfg       *config.Config

	// Governance (slow loop). Only the gate holds write authority.
	buffer *governance.Buffer
	gate   *governance.GateController

	// Memory tiers.
	slow    *memory.SlowStore
	fast    *memory.FastStore
	bridge  *memory.BridgeStore
	history *memory.HistoryStore
	closeDB func() error

	// Observers and fast loop.
	sensor    *perception.Sensor
	contrast  *perception.Contrast
	evaluator *evaluator.Evaluator
	assessor  *altitude.Assessor
	executor  *executor.Executor

	// Delegation.
	delegation *delegation.Manager

	watcher *config.PolicyWatcher

	mu         sync.Mutex
	policy     config.Policy
	turn       int
	lastOutput *types.OutputReport
}

// NewEngine boots a session in the workspace: configuration, logging, the
// memory tiers, and every component. The persisted lease (if any) is
// restored; the stance always starts at Sensemaking.
func NewEngine(ctx context.Context, workspace string, client llm.Client) (*Engine, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logging.Initialize(workspace); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logging.Boot("session boot: workspace=%s", workspace)

	slow, err := memory.NewSlowStore(cfg.Memory.SlowPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open slow memory: %w", err)
	}
	fast, err := memory.NewFastStore(cfg.Memory.FastPath, cfg.Policy.SignalWindow, cfg.Policy.ProgressStaleTurns)
	if err != nil {
		return nil, fmt.Errorf("failed to open fast memory: %w", err)
	}
	db, err := memory.OpenDatabase(cfg.Memory.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	bridge, err := memory.NewBridgeStore(db, cfg.Policy.BridgeStaleTurns, cfg.Policy.BridgeReviewTurns)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open bridge store: %w", err)
	}
	history, err := memory.NewHistoryStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}

	e := &Engine{
		workspace: workspace,
		cfg:       cfg,
		slow:      slow,
		fast:      fast,
		bridge:    bridge,
		history:   history,
		closeDB:   db.Close,
		policy:    cfg.Policy,
	}

	commitments := governance.NewCommitmentManager()
	if lease := slow.Lease(); lease != nil {
		commitments.Restore(lease)
		logging.Boot("restored lease %s (%s)", lease.ID, lease.Status)
	}

	e.buffer = governance.NewBuffer()
	e.gate = governance.NewGateController(governance.NewStanceMachine(), commitments,
		e.buffer, slow, history, e.currentPolicy)

	e.sensor = perception.NewSensor(slow)
	e.contrast = perception.NewContrast(slow)
	e.evaluator = evaluator.New(e.currentPolicy)
	e.assessor = altitude.NewAssessor(slow, fast)
	e.executor = executor.New(client, slow, fast, e.currentPolicy)
	e.delegation = delegation.NewManager(client, bridge, e.buffer,
		e.gate.CurrentCommitment, e.currentPolicy, e.currentTurn)

	watcher, err := config.NewPolicyWatcher(workspace, e.applyPolicy)
	if err != nil {
		logging.Boot("policy watcher unavailable: %v", err)
	} else {
		e.watcher = watcher
		if err := watcher.Start(ctx); err != nil {
			logging.Boot("policy watcher not started: %v", err)
			e.watcher = nil
		}
	}

	return e, nil
}

// Process runs one full turn: slow loop first, then the fast loop.
func (e *Engine) Process(ctx context.Context, input string) (*TurnResult, error) {
	e.mu.Lock()
	e.turn++
	turn := e.turn
	lastOutput := e.lastOutput
	e.mu.Unlock()

	logging.Session("turn %d begins", turn)

	// Slow loop: clocks tick first so decayed state is visible to observers.
	e.gate.BeginTurn(turn)
	if err := e.bridge.DecayTick(turn); err != nil {
		logging.MemoryWarn("bridge decay failed: %v", err)
	}
	e.fast.MarkStaleness(turn)
	e.delegation.Tick()

	tc := types.TurnContext{
		Turn:       turn,
		Input:      input,
		Stance:     e.gate.Stance(),
		LastOutput: lastOutput,
	}

	// Observers see the turn and file their proposals.
	if p := e.sensor.Observe(tc); p != nil {
		e.buffer.Emit(*p)
	}
	if p := e.contrast.Observe(tc); p != nil {
		e.buffer.Emit(*p)
	}
	if p := e.evaluator.Observe(tc); p != nil {
		e.buffer.Emit(*p)
	}

	transitions := e.gate.ProcessProposals()
	tc.Stance = e.gate.Stance()

	// Fast loop: depth, then the bounded execution step.
	tc.Altitude = e.assessor.Assess(tc)
	response, report := e.executor.Execute(ctx, tc)

	e.mu.Lock()
	e.lastOutput = &report
	e.mu.Unlock()

	for _, sig := range e.sensor.Signals(tc) {
		e.fast.AddSignal(sig)
	}
	e.fast.SetProgress(progressFor(tc, e.fast.Progress()))
	if err := e.fast.Persist(); err != nil {
		logging.MemoryWarn("fast memory persist failed: %v", err)
	}

	result := &TurnResult{
		Turn:        turn,
		Response:    response,
		Stance:      tc.Stance,
		Altitude:    tc.Altitude,
		Transitions: transitions,
		Commitment:  e.gate.CurrentCommitment(),
		Warnings:    e.gate.Warnings(),
	}
	logging.Session("turn %d done: stance=%s altitude=%s transitions=%d",
		turn, result.Stance, result.Altitude, len(result.Transitions))
	return result, nil
}

// progressFor rewrites the fast-tier progress snapshot for the turn.
func progressFor(tc types.TurnContext, prev types.ProgressState) types.ProgressState {
	stage := prev.Stage
	switch tc.Stance {
	case types.StanceSensemaking:
		stage = "framing the problem"
	case types.StanceDiscovery:
		stage = "exploring options"
	case types.StanceExecution:
		stage = "executing committed work"
	case types.StanceEvaluation:
		stage = "assessing results"
	}
	return types.ProgressState{
		Stage:             stage,
		NextActions:       prev.NextActions,
		Blockers:          prev.Blockers,
		RecentCompletions: prev.RecentCompletions,
		UpdatedTurn:       tc.Turn,
	}
}

// =============================================================================
// USER-LEVEL OPERATIONS
// =============================================================================

// Commit creates a commitment lease on the user's behalf and files the
// matching commitment-gate proposal for the next processing pass.
func (e *Engine) Commit(frame string, horizon types.HorizonClass, criteria, nonGoals []string, turns int) (*types.CommitmentLease, error) {
	if turns <= 0 {
		turns = e.currentPolicy().DefaultLeaseTurns
	}
	lease, err := e.gate.CreateCommitment(frame, horizon, criteria, nonGoals,
		types.Expiry{Kind: types.ExpiryTurns, Turns: turns}, "")
	if err != nil {
		return nil, err
	}
	e.buffer.Emit(types.GateProposal{
		Reason:       fmt.Sprintf("user committed to: %s", frame),
		Severity:     types.SeverityHigh,
		TargetGate:   types.GateCommitment,
		TargetStance: types.StanceExecution,
		Source:       types.SourceUser,
	})
	return lease, nil
}

// Propose files a user-sourced proposal for the next turn.
func (e *Engine) Propose(reason string, severity types.Severity, gate types.Gate, target types.Stance) {
	e.buffer.Emit(types.GateProposal{
		Reason:       reason,
		Severity:     severity,
		TargetGate:   gate,
		TargetStance: target,
		Source:       types.SourceUser,
	})
}

// RenewCommitment extends the active lease.
func (e *Engine) RenewCommitment(extraTurns int) error {
	return e.gate.RenewCommitment(extraTurns)
}

// CompleteCommitment closes the active lease as done.
func (e *Engine) CompleteCommitment() error {
	return e.gate.CompleteCommitment()
}

// Delegate starts a work order scoped by the active commitment's frame.
// Without an active lease there is nothing to scope by and the call fails.
func (e *Engine) Delegate(ctx context.Context, task string, runner delegation.Runner) (delegation.WorkOrder, error) {
	return e.delegation.Delegate(ctx, task, runner)
}

// =============================================================================
// INSPECTION
// =============================================================================

// Status is a read-only snapshot for the status surface.
type Status struct {
	Turn       int                    `json:"turn"`
	Stance     types.Stance           `json:"stance"`
	Cooldown   int                    `json:"cooldown"`
	Commitment *types.CommitmentLease `json:"commitment,omitempty"`
	Progress   types.ProgressState    `json:"progress"`
	Artifacts  []types.ArtifactEntry  `json:"artifacts,omitempty"`
	WorkOrders []delegation.WorkOrder `json:"work_orders,omitempty"`
	Decisions  []types.DecisionRecord `json:"decisions,omitempty"`
}

// Status reports the current governed state.
func (e *Engine) Status() (*Status, error) {
	artifacts, err := e.bridge.List()
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	turn := e.turn
	e.mu.Unlock()

	return &Status{
		Turn:       turn,
		Stance:     e.gate.Stance(),
		Cooldown:   e.gate.CooldownRemaining(),
		Commitment: e.gate.CurrentCommitment(),
		Progress:   e.fast.Progress(),
		Artifacts:  artifacts,
		WorkOrders: e.delegation.Orders(),
		Decisions:  e.slow.Decisions(),
	}, nil
}

// History returns the most recent gate transitions, newest first.
func (e *Engine) History(limit int) ([]types.HistoryEntry, error) {
	return e.history.Recent(limit)
}

// Stance returns the current stance.
func (e *Engine) Stance() types.Stance {
	return e.gate.Stance()
}

// =============================================================================
// POLICY AND LIFECYCLE
// =============================================================================

func (e *Engine) currentPolicy() config.Policy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy
}

func (e *Engine) currentTurn() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.turn
}

// applyPolicy installs a hot-reloaded policy; stores with internal bounds
// pick the new values up immediately, everything else on the next turn.
func (e *Engine) applyPolicy(p config.Policy) {
	e.mu.Lock()
	e.policy = p
	e.mu.Unlock()

	e.fast.SetBounds(p.SignalWindow, p.ProgressStaleTurns)
	e.bridge.SetDecaySchedule(p.BridgeStaleTurns, p.BridgeReviewTurns)
	logging.Policy("policy applied: cooldown=%d floor=%.2f", p.EmergencyCooldownTurns, p.QualityFloor)
}

// Close shuts the session down: waits for work orders, stops the watcher,
// flushes fast memory, and closes storage.
func (e *Engine) Close() error {
	e.delegation.Wait()
	if e.watcher != nil {
		e.watcher.Stop()
	}
	if err := e.fast.Persist(); err != nil {
		logging.MemoryWarn("fast memory persist on close failed: %v", err)
	}
	logging.Session("session closed at turn %d", e.currentTurn())
	logging.CloseAll()
	return e.closeDB()
}
