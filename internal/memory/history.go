package memory

import (
	"database/sql"
	"fmt"
	"sync"

	"lockstep/internal/types"
)

// HistoryStore is the append-only audit log of gate transitions.
// Entries are written only by the gate controller, strictly ordered by
// gate-application sequence, and never updated or deleted.
type HistoryStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewHistoryStore initializes the history table on the shared database.
func NewHistoryStore(db *sql.DB) (*HistoryStore, error) {
	s := &HistoryStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return s, nil
}

func (s *HistoryStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS history (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		turn INTEGER NOT NULL,
		from_stance TEXT NOT NULL,
		to_stance TEXT NOT NULL,
		gate TEXT NOT NULL,
		reason TEXT NOT NULL,
		timestamp DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_turn ON history(turn);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append records one accepted transition.
func (s *HistoryStore) Append(entry types.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO history (turn, from_stance, to_stance, gate, reason, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.Turn, entry.From, entry.To, entry.Gate, entry.Reason, entry.Timestamp)

	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// Recent returns the most recent entries, newest first.
func (s *HistoryStore) Recent(limit int) ([]types.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT turn, from_stance, to_stance, gate, reason, timestamp
		FROM history
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []types.HistoryEntry
	for rows.Next() {
		var e types.HistoryEntry
		if err := rows.Scan(&e.Turn, &e.From, &e.To, &e.Gate, &e.Reason, &e.Timestamp); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the total number of history entries.
func (s *HistoryStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM history`).Scan(&count)
	return count, err
}
