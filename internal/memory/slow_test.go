package memory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lockstep/internal/types"

	"github.com/google/go-cmp/cmp"
)

// =============================================================================
// SLOW MEMORY: AUTHORITATIVE DOCUMENT
// =============================================================================

func TestSlowStoreRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "slow_memory.json")

	s, err := NewSlowStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	lease := &types.CommitmentLease{
		ID:             "lease-1",
		Frame:          "stabilize the ingest path",
		Horizon:        types.HorizonMid,
		Criteria:       []string{"no dropped batches"},
		NonGoals:       []string{"throughput tuning"},
		Expiry:         types.Expiry{Kind: types.ExpiryTurns, Turns: 8},
		RemainingTurns: 8,
		Status:         types.LeaseActive,
		CreatedAt:      time.Now().Truncate(time.Second),
	}
	if err := s.SetLease(lease); err != nil {
		t.Fatalf("set lease: %v", err)
	}
	rec := types.DecisionRecord{
		ID:         "dec-1",
		Turn:       3,
		Decision:   "batch size stays at 100",
		Rationale:  "larger batches stall the consumer",
		Confidence: 0.8,
		CreatedAt:  time.Now().Truncate(time.Second),
	}
	if err := s.AppendDecision(rec); err != nil {
		t.Fatalf("append decision: %v", err)
	}
	if err := s.SetPrinciples([]string{"prefer reversible changes"}); err != nil {
		t.Fatalf("set principles: %v", err)
	}

	// A fresh store reading the same file sees the identical document.
	reloaded, err := NewSlowStore(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if diff := cmp.Diff(lease, reloaded.Lease()); diff != "" {
		t.Errorf("lease mismatch after reload (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]types.DecisionRecord{rec}, reloaded.Decisions()); diff != "" {
		t.Errorf("decisions mismatch after reload (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"prefer reversible changes"}, reloaded.Principles()); diff != "" {
		t.Errorf("principles mismatch after reload (-want +got):\n%s", diff)
	}
}

func TestSlowStoreMissingFileInitializesEmpty(t *testing.T) {
	t.Parallel()
	s, err := NewSlowStore(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("new store on missing file: %v", err)
	}
	if s.Lease() != nil || len(s.Decisions()) != 0 {
		t.Error("missing file did not initialize an empty document")
	}
}

func TestSlowStoreRejectsCorruptDocument(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "slow_memory.json")
	if err := os.WriteFile(path, []byte("{truncated"), 0644); err != nil {
		t.Fatal(err)
	}

	// Authoritative state never silently resets.
	if _, err := NewSlowStore(path); err == nil {
		t.Fatal("corrupt slow memory loaded without error")
	}
}

func TestSlowStoreWriteIsAtomic(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "slow_memory.json")

	s, err := NewSlowStore(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if err := s.AppendDecision(types.DecisionRecord{ID: "d", Turn: i}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		// Every intermediate on-disk state parses; no partial writes.
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read after append %d: %v", i, err)
		}
		var doc SlowDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			t.Fatalf("on-disk document unparsable after append %d: %v", i, err)
		}
		if len(doc.Decisions) != i+1 {
			t.Fatalf("on-disk decisions = %d, want %d", len(doc.Decisions), i+1)
		}
	}

	// No stray temp files left behind.
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries, want only the document", len(entries))
	}
}

func TestSlowStoreDecisionsAreAppendOnly(t *testing.T) {
	t.Parallel()
	s, err := NewSlowStore(filepath.Join(t.TempDir(), "slow_memory.json"))
	if err != nil {
		t.Fatal(err)
	}

	s.AppendDecision(types.DecisionRecord{ID: "first", Decision: "original"})
	s.AppendDecision(types.DecisionRecord{ID: "second", Supersedes: "first"})

	decisions := s.Decisions()
	if len(decisions) != 2 {
		t.Fatalf("decisions = %d, want 2", len(decisions))
	}
	// Superseded records remain readable, unaltered.
	if decisions[0].ID != "first" || decisions[0].Decision != "original" {
		t.Errorf("superseded record altered: %+v", decisions[0])
	}
}
