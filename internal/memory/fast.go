package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"lockstep/internal/types"
)

// FastDocument is the per-turn snapshot: progress state plus rolling
// interaction-signal lists. Overwritten each turn; bounded length with
// oldest entries dropped.
type FastDocument struct {
	Progress  types.ProgressState       `json:"progress"`
	Signals   []types.InteractionSignal `json:"signals"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

// FastStore is the fast-loop memory tier. Single-writer-per-turn: the fast
// loop writes it every turn without coordination, and nothing it holds can
// override slow memory.
type FastStore struct {
	mu           sync.RWMutex
	path         string
	doc          FastDocument
	signalWindow int
	staleTurns   int
}

// NewFastStore loads (or initializes) the fast memory snapshot at path.
// signalWindow bounds the rolling signal list; staleTurns controls when the
// progress snapshot is marked stale.
func NewFastStore(path string, signalWindow, staleTurns int) (*FastStore, error) {
	s := &FastStore{path: path, signalWindow: signalWindow, staleTurns: staleTurns}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read fast memory: %w", err)
	}

	if err := json.Unmarshal(data, &s.doc); err != nil {
		// Fast memory is disposable; a corrupt snapshot resets rather than blocks.
		s.doc = FastDocument{}
	}
	return s, nil
}

// SetBounds updates the rolling-window bounds (policy reload).
func (s *FastStore) SetBounds(signalWindow, staleTurns int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if signalWindow > 0 {
		s.signalWindow = signalWindow
	}
	if staleTurns > 0 {
		s.staleTurns = staleTurns
	}
}

// Progress returns the current progress snapshot.
func (s *FastStore) Progress() types.ProgressState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Progress
}

// Signals returns a copy of the rolling signal list.
func (s *FastStore) Signals() []types.InteractionSignal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.InteractionSignal(nil), s.doc.Signals...)
}

// SetProgress overwrites the progress state for this turn.
func (s *FastStore) SetProgress(p types.ProgressState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.UpdatedAt = time.Now()
	p.Stale = false
	s.doc.Progress = p
}

// AddSignal appends an interaction signal, dropping the oldest beyond the window.
func (s *FastStore) AddSignal(sig types.InteractionSignal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sig.Timestamp.IsZero() {
		sig.Timestamp = time.Now()
	}
	s.doc.Signals = append(s.doc.Signals, sig)
	if over := len(s.doc.Signals) - s.signalWindow; over > 0 {
		s.doc.Signals = s.doc.Signals[over:]
	}
}

// MarkStaleness updates the staleness marker given the current turn.
func (s *FastStore) MarkStaleness(turn int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if turn-s.doc.Progress.UpdatedTurn >= s.staleTurns {
		s.doc.Progress.Stale = true
	}
}

// Persist overwrites the fast memory file. Called once per turn by the
// fast loop; failures are logged by the caller, never fatal to the turn.
func (s *FastStore) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(&s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal fast memory: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create memory directory: %w", err)
	}
	return os.WriteFile(s.path, data, 0644)
}
