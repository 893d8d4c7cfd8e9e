// Package memory implements lockstep's four memory tiers: Slow
// (authoritative document), Fast (per-turn snapshot), Bridge (artifact
// index), and History (audit log). Each tier is a distinct store behind a
// distinct interface so write authority is carried by the type system, not
// by runtime permission checks.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"lockstep/internal/logging"
	"lockstep/internal/types"
)

// SlowDocument is the persisted authoritative record: the active lease (or
// nil), the ordered decision log, and session-level principles. Rewritten
// atomically after every gate-accepted change.
type SlowDocument struct {
	Lease      *types.CommitmentLease `json:"lease"`
	Decisions  []types.DecisionRecord `json:"decisions"`
	Principles []string               `json:"principles"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// SlowView is the read-only interface handed to every component except the
// gate controller. No mutable reference to slow memory exists outside it.
type SlowView interface {
	Lease() *types.CommitmentLease
	Decisions() []types.DecisionRecord
	Principles() []string
}

// SlowStore owns the authoritative document. Exactly one writer role: the
// gate controller constructs it and keeps the only reference; everyone else
// sees it through SlowView.
type SlowStore struct {
	mu   sync.RWMutex
	path string
	doc  SlowDocument
}

// NewSlowStore loads (or initializes) the slow memory document at path.
func NewSlowStore(path string) (*SlowStore, error) {
	s := &SlowStore{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Memory("slow memory initialized (no prior document)")
			return s, nil
		}
		return nil, fmt.Errorf("failed to read slow memory: %w", err)
	}

	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("failed to parse slow memory: %w", err)
	}

	logging.Memory("slow memory loaded: %d decisions, lease=%v", len(s.doc.Decisions), s.doc.Lease != nil)
	return s, nil
}

// Lease returns a copy of the persisted lease, or nil.
func (s *SlowStore) Lease() *types.CommitmentLease {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Lease.Clone()
}

// Decisions returns a copy of the ordered decision log.
func (s *SlowStore) Decisions() []types.DecisionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.DecisionRecord(nil), s.doc.Decisions...)
}

// Principles returns the session-level principles.
func (s *SlowStore) Principles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.doc.Principles...)
}

// SetLease replaces the persisted lease and rewrites the document.
func (s *SlowStore) SetLease(lease *types.CommitmentLease) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Lease = lease.Clone()
	return s.persistLocked()
}

// AppendDecision appends a decision record and rewrites the document.
// The log is append-only: existing records are never altered or removed.
func (s *SlowStore) AppendDecision(rec types.DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Decisions = append(s.doc.Decisions, rec)
	return s.persistLocked()
}

// SetPrinciples replaces the session principles and rewrites the document.
func (s *SlowStore) SetPrinciples(principles []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Principles = append([]string(nil), principles...)
	return s.persistLocked()
}

// persistLocked writes the document atomically: marshal, write a temp file
// in the same directory, then rename over the target. A failure here must
// surface - downstream gate decisions depend on this state being durable.
func (s *SlowStore) persistLocked() error {
	s.doc.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(&s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal slow memory: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create memory directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".slow_memory-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write slow memory: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace slow memory: %w", err)
	}

	return nil
}
