// Package storage dumps the session state to disk as JSON. Persistence
// across restarts is not a session guarantee; this is an export surface
// layered on top of the snapshot.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/paperbtc/turntrader/internal/models"
)

// SessionDump is the on-disk shape: the snapshot plus the full ledger.
type SessionDump struct {
	Snapshot models.SessionSnapshot `json:"snapshot"`
	Ledger   []models.LedgerEntry   `json:"ledger"`
	SavedAt  time.Time              `json:"saved_at"`
}

// SnapshotStore writes and reads session dumps at a fixed path.
type SnapshotStore struct {
	mu   sync.Mutex
	path string
}

// NewSnapshotStore creates a store for the given path.
func NewSnapshotStore(path string) (*SnapshotStore, error) {
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	return &SnapshotStore{path: path}, nil
}

// Save writes the dump atomically (temp file, then rename).
func (s *SnapshotStore) Save(snapshot models.SessionSnapshot, entries []models.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dump := SessionDump{
		Snapshot: snapshot,
		Ledger:   entries,
		SavedAt:  time.Now().UTC(),
	}

	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session dump: %w", err)
	}

	tmpFile := s.path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		return fmt.Errorf("writing session dump: %w", err)
	}

	return os.Rename(tmpFile, s.path)
}

// Load reads a previously saved dump.
func (s *SnapshotStore) Load() (*SessionDump, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	var dump SessionDump
	if err := json.Unmarshal(data, &dump); err != nil {
		return nil, fmt.Errorf("parsing session dump: %w", err)
	}
	return &dump, nil
}
