package delegation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"lockstep/internal/config"
	"lockstep/internal/governance"
	"lockstep/internal/llm"
	"lockstep/internal/logging"
	"lockstep/internal/memory"
	"lockstep/internal/types"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrNoScope is returned when delegation is attempted without an active
// commitment lease to inherit a scope boundary from.
var ErrNoScope = errors.New("delegation requires an active commitment lease")

// OrderStatus is the lifecycle state of a work order.
type OrderStatus string

const (
	OrderRunning   OrderStatus = "running"
	OrderCompleted OrderStatus = "completed"
	OrderFailed    OrderStatus = "failed"
	OrderExpired   OrderStatus = "expired" // turn budget exhausted; cancelled
)

// WorkOrder is the record of one delegated side-task. Every order inherits
// the active commitment's frame as its scope and carries a turn budget;
// expiry cancels the runner rather than letting it linger.
type WorkOrder struct {
	ID             string      `json:"id"`
	Task           string      `json:"task"`
	Scope          string      `json:"scope"` // the commitment frame at creation
	RemainingTurns int         `json:"remaining_turns"`
	Status         OrderStatus `json:"status"`
	Err            string      `json:"err,omitempty"`
}

// Runner is the work a caller delegates. It sees only the Handle.
type Runner func(ctx context.Context, h *Handle) error

type orderState struct {
	order  WorkOrder
	cancel context.CancelFunc
}

// Manager creates work orders, runs them concurrently, and enforces their
// turn budgets. Orders exist only inside an active commitment: the scope of
// every order is derived from the lease, never from the caller.
type Manager struct {
	client     llm.Client
	bridge     memory.BridgeWriter
	emitter    governance.Emitter
	commitment func() *types.CommitmentLease
	policy     func() config.Policy
	turn       func() int

	mu     sync.Mutex
	orders map[string]*orderState
	wg     sync.WaitGroup
}

// NewManager wires the delegation manager to the capabilities it may grant
// and to the commitment record its orders are scoped by.
func NewManager(client llm.Client, bridge memory.BridgeWriter, emitter governance.Emitter,
	commitment func() *types.CommitmentLease, policy func() config.Policy, turn func() int) *Manager {

	return &Manager{
		client:     client,
		bridge:     bridge,
		emitter:    emitter,
		commitment: commitment,
		policy:     policy,
		turn:       turn,
		orders:     make(map[string]*orderState),
	}
}

// activeScope resolves the delegation boundary from the active lease.
func (m *Manager) activeScope() (string, error) {
	lease := m.commitment()
	if lease == nil || lease.Status != types.LeaseActive {
		return "", ErrNoScope
	}
	return lease.Frame, nil
}

// Delegate creates a work order for the task and starts its runner in the
// background. The order's scope is the active commitment's frame; without
// an active lease, delegation is refused. The runner's context is cancelled
// when the order's turn budget expires or the parent context ends.
func (m *Manager) Delegate(ctx context.Context, task string, runner Runner) (WorkOrder, error) {
	if task == "" {
		return WorkOrder{}, fmt.Errorf("work order task required")
	}
	scope, err := m.activeScope()
	if err != nil {
		return WorkOrder{}, err
	}

	id := "wo-" + uuid.NewString()[:8]
	orderCtx, cancel := context.WithCancel(ctx)

	state := &orderState{
		order: WorkOrder{
			ID:             id,
			Task:           task,
			Scope:          scope,
			RemainingTurns: m.policy().WorkOrderTurns,
			Status:         OrderRunning,
		},
		cancel: cancel,
	}

	m.mu.Lock()
	m.orders[id] = state
	m.mu.Unlock()

	h := &Handle{
		orderID: id,
		task:    task,
		scope:   scope,
		client:  m.client,
		bridge:  m.bridge,
		emitter: m.emitter,
		turn:    m.turn,
	}

	logging.Delegation("work order %s started: %s (scope: %s)", id, task, scope)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.finish(id, runner(orderCtx, h))
	}()

	return state.order, nil
}

// DelegateAll runs a batch of tasks concurrently and waits for all of them.
// Every order shares the scope of the active lease at batch start. The first
// runner error cancels the remaining runners.
func (m *Manager) DelegateAll(ctx context.Context, tasks map[string]Runner) error {
	scope, err := m.activeScope()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	for task, runner := range tasks {
		task, runner := task, runner
		g.Go(func() error {
			id := "wo-" + uuid.NewString()[:8]
			orderCtx, cancel := context.WithCancel(gctx)
			defer cancel()

			h := &Handle{
				orderID: id,
				task:    task,
				scope:   scope,
				client:  m.client,
				bridge:  m.bridge,
				emitter: m.emitter,
				turn:    m.turn,
			}
			m.mu.Lock()
			m.orders[id] = &orderState{
				order: WorkOrder{
					ID: id, Task: task, Scope: scope,
					RemainingTurns: m.policy().WorkOrderTurns,
					Status:         OrderRunning,
				},
				cancel: cancel,
			}
			m.mu.Unlock()

			logging.Delegation("work order %s started (batch): %s (scope: %s)", id, task, scope)
			err := runner(orderCtx, h)
			m.finish(id, err)
			return err
		})
	}
	return g.Wait()
}

func (m *Manager) finish(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.orders[id]
	if !ok || state.order.Status != OrderRunning {
		return
	}
	if err != nil {
		state.order.Status = OrderFailed
		state.order.Err = err.Error()
		logging.Delegation("work order %s failed: %v", id, err)
		return
	}
	state.order.Status = OrderCompleted
	logging.Delegation("work order %s completed", id)
}

// Tick decrements every running order's turn budget. Exhausted orders are
// cancelled, marked expired, and surfaced as a low-priority proposal so the
// gate controller learns about the dropped work.
func (m *Manager) Tick() {
	m.mu.Lock()
	var expired []*orderState
	for _, state := range m.orders {
		if state.order.Status != OrderRunning {
			continue
		}
		state.order.RemainingTurns--
		if state.order.RemainingTurns <= 0 {
			state.order.Status = OrderExpired
			expired = append(expired, state)
		}
	}
	m.mu.Unlock()

	for _, state := range expired {
		state.cancel()
		logging.Delegation("work order %s expired", state.order.ID)
		m.emitter.Emit(types.GateProposal{
			Reason:       fmt.Sprintf("work order expired before completing: %s", state.order.Task),
			Severity:     types.SeverityLow,
			TargetGate:   types.GateEvaluation,
			TargetStance: types.StanceEvaluation,
			Source:       types.SourceWorkOrder,
		})
	}
}

// Orders returns a snapshot of all work orders.
func (m *Manager) Orders() []WorkOrder {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]WorkOrder, 0, len(m.orders))
	for _, state := range m.orders {
		out = append(out, state.order)
	}
	return out
}

// Wait blocks until every started runner has returned. Shutdown path.
func (m *Manager) Wait() {
	m.wg.Wait()
}
