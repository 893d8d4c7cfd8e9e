// Package delegation manages scoped work orders: bounded side-tasks that run
// with strictly less capability than the primary loop. Restriction is carried
// by the type system: a runner receives only a Handle, and the Handle exposes
// generation, artifact registration, and proposal emission. No path from a
// Handle reaches the stance machine, slow memory, or the gate controller.
package delegation

import (
	"context"
	"fmt"
	"time"

	"lockstep/internal/governance"
	"lockstep/internal/llm"
	"lockstep/internal/memory"
	"lockstep/internal/types"
)

// Handle is the complete capability surface of one work order.
type Handle struct {
	orderID string
	task    string
	scope   string
	client  llm.Client
	bridge  memory.BridgeWriter
	emitter governance.Emitter
	turn    func() int
}

// OrderID returns the owning work order's ID.
func (h *Handle) OrderID() string {
	return h.orderID
}

// Scope returns the commitment frame the order is bounded by.
func (h *Handle) Scope() string {
	return h.scope
}

// Complete runs one generation call scoped to the order's task and the
// commitment frame it inherited.
func (h *Handle) Complete(ctx context.Context, prompt string) (string, error) {
	system := fmt.Sprintf(
		"You are executing a bounded work order inside the commitment %q. Task: %s. Stay inside this task and its commitment; produce nothing beyond it.",
		h.scope, h.task)
	return h.client.CompleteWithSystem(ctx, system, prompt)
}

// RegisterArtifact records an output pointer in the artifact index.
// Ownership is stamped with the order ID; a work order cannot register on
// the primary loop's behalf.
func (h *Handle) RegisterArtifact(name, kind, pointer string) error {
	return h.bridge.Register(types.ArtifactEntry{
		Name:        name,
		Kind:        kind,
		Pointer:     pointer,
		Owner:       h.orderID,
		UpdatedTurn: h.turn(),
		UpdatedAt:   time.Now(),
	})
}

// Propose emits a gate proposal on the order's behalf. The source is forced
// to work-order rank, severity is capped below emergency, and the emergency
// gate is out of reach: a side-task can ask for attention, not seize control.
func (h *Handle) Propose(reason string, severity types.Severity, gate types.Gate, target types.Stance) types.GateProposal {
	if severity >= types.SeverityEmergency {
		severity = types.SeverityHigh
	}
	if gate == types.GateEmergency {
		gate = types.GateEvaluation
		target = types.StanceEvaluation
	}
	return h.emitter.Emit(types.GateProposal{
		Reason:       fmt.Sprintf("[%s] %s", h.orderID, reason),
		Severity:     severity,
		TargetGate:   gate,
		TargetStance: target,
		Source:       types.SourceWorkOrder,
	})
}
