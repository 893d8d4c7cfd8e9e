package governance

import (
	"sort"
	"sync"
	"time"

	"lockstep/internal/logging"
	"lockstep/internal/types"

	"github.com/google/uuid"
)

// Buffer is the append-only, turn-scoped proposal collection.
// Any number of producers may append concurrently; the gate controller is
// the single consumer and drains by range. Proposals are immutable after
// insertion, which eliminates write-write races on content.
type Buffer struct {
	mu    sync.Mutex
	items []types.GateProposal
	seq   uint64
}

// Emitter is the narrow capability handed to observer components and scoped
// work orders: it can construct proposals into the buffer and nothing else.
type Emitter interface {
	Emit(p types.GateProposal) types.GateProposal
}

// NewBuffer creates an empty proposal buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Emit appends a proposal, assigning its ID, creation sequence, and
// timestamp. The returned copy is the immutable record as stored.
func (b *Buffer) Emit(p types.GateProposal) types.GateProposal {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	p.Seq = b.seq
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	b.items = append(b.items, p)

	logging.ProposalsDebug("proposal %s: gate=%s target=%s severity=%s source=%s",
		p.ID, p.TargetGate, p.TargetStance, p.Severity, p.Source)
	return p
}

// Drain removes and returns everything currently buffered.
// Single consumer: only the gate controller calls this.
func (b *Buffer) Drain() []types.GateProposal {
	b.mu.Lock()
	defer b.mu.Unlock()

	drained := b.items
	b.items = nil
	return drained
}

// Len returns the number of buffered proposals.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Peek returns a copy of the buffered proposals without clearing them.
func (b *Buffer) Peek() []types.GateProposal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]types.GateProposal(nil), b.items...)
}

// SortProposals orders proposals for deterministic application:
// severity descending, then source priority, then creation order.
// Replaying identical buffer contents yields an identical accepted set.
func SortProposals(proposals []types.GateProposal) {
	sort.SliceStable(proposals, func(i, j int) bool {
		if proposals[i].Severity != proposals[j].Severity {
			return proposals[i].Severity > proposals[j].Severity
		}
		if proposals[i].Source.Rank() != proposals[j].Source.Rank() {
			return proposals[i].Source.Rank() < proposals[j].Source.Rank()
		}
		return proposals[i].Seq < proposals[j].Seq
	})
}
