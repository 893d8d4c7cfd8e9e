package memory

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"lockstep/internal/logging"
	"lockstep/internal/types"
)

// BridgeStore is the artifact index tier: pointer-only records registered by
// the primary loop or by scoped work orders. All writes go through the
// serialized index-update operation; content is never stored here.
//
// Status decays on a turn schedule independent of deletion:
// current -> stale -> needs_review.
type BridgeStore struct {
	db *sql.DB
	mu sync.Mutex

	staleTurns  int
	reviewTurns int
}

// BridgeWriter is the narrow capability granted to scoped work orders:
// register/update index entries, nothing else.
type BridgeWriter interface {
	Register(entry types.ArtifactEntry) error
}

// NewBridgeStore initializes the artifact index on the shared database.
func NewBridgeStore(db *sql.DB, staleTurns, reviewTurns int) (*BridgeStore, error) {
	s := &BridgeStore{db: db, staleTurns: staleTurns, reviewTurns: reviewTurns}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize bridge schema: %w", err)
	}
	return s, nil
}

func (s *BridgeStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS artifacts (
		name TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		pointer TEXT NOT NULL,
		status TEXT NOT NULL,
		version INTEGER NOT NULL,
		owner TEXT NOT NULL,
		updated_turn INTEGER NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_artifacts_status ON artifacts(status);
	CREATE INDEX IF NOT EXISTS idx_artifacts_owner ON artifacts(owner);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SetDecaySchedule updates the decay thresholds (policy reload).
func (s *BridgeStore) SetDecaySchedule(staleTurns, reviewTurns int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if staleTurns > 0 {
		s.staleTurns = staleTurns
	}
	if reviewTurns > 0 {
		s.reviewTurns = reviewTurns
	}
}

// Register inserts or updates an index entry. An update bumps the version
// and resets status to current. This is the only write path into the index.
func (s *BridgeStore) Register(entry types.ArtifactEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.Name == "" {
		return fmt.Errorf("artifact name required")
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO artifacts (name, kind, pointer, status, version, owner, updated_turn, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			kind = excluded.kind,
			pointer = excluded.pointer,
			status = excluded.status,
			version = artifacts.version + 1,
			owner = excluded.owner,
			updated_turn = excluded.updated_turn,
			updated_at = excluded.updated_at
	`, entry.Name, entry.Kind, entry.Pointer, types.ArtifactCurrent, entry.Owner,
		entry.UpdatedTurn, entry.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to register artifact: %w", err)
	}

	logging.Memory("artifact registered: %s (owner=%s)", entry.Name, entry.Owner)
	return nil
}

// Get retrieves one entry by name, or nil if absent.
func (s *BridgeStore) Get(name string) (*types.ArtifactEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var e types.ArtifactEntry
	err := s.db.QueryRow(`
		SELECT name, kind, pointer, status, version, owner, updated_turn, updated_at
		FROM artifacts WHERE name = ?
	`, name).Scan(&e.Name, &e.Kind, &e.Pointer, &e.Status, &e.Version, &e.Owner,
		&e.UpdatedTurn, &e.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact: %w", err)
	}
	return &e, nil
}

// List returns all entries ordered by name.
func (s *BridgeStore) List() ([]types.ArtifactEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT name, kind, pointer, status, version, owner, updated_turn, updated_at
		FROM artifacts ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []types.ArtifactEntry
	for rows.Next() {
		var e types.ArtifactEntry
		if err := rows.Scan(&e.Name, &e.Kind, &e.Pointer, &e.Status, &e.Version,
			&e.Owner, &e.UpdatedTurn, &e.UpdatedAt); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DecayTick advances status decay given the current turn:
// current entries older than staleTurns become stale, and stale entries
// older than staleTurns+reviewTurns become needs_review. Runs once per turn.
func (s *BridgeStore) DecayTick(turn int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE artifacts SET status = ?
		WHERE status = ? AND ? - updated_turn >= ?
	`, types.ArtifactStale, types.ArtifactCurrent, turn, s.staleTurns)
	if err != nil {
		return fmt.Errorf("failed stale decay: %w", err)
	}

	_, err = s.db.Exec(`
		UPDATE artifacts SET status = ?
		WHERE status = ? AND ? - updated_turn >= ?
	`, types.ArtifactNeedsReview, types.ArtifactStale, turn, s.staleTurns+s.reviewTurns)
	if err != nil {
		return fmt.Errorf("failed review decay: %w", err)
	}
	return nil
}
