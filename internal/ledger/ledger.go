// Package ledger keeps the append-only record of settled turns.
package ledger

import (
	"sync"

	"github.com/paperbtc/turntrader/internal/models"
)

// Ledger is an append-only sequence of turn outcomes, ordered by turn
// number. Entries are immutable once appended; the only way to remove them
// is a full session reset.
type Ledger struct {
	mu      sync.RWMutex
	entries []models.LedgerEntry
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Append records a settled turn.
func (l *Ledger) Append(entry models.LedgerEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Recent returns the last n entries in reverse-chronological order (most
// recent first) for display.
func (l *Ledger) Recent(n int) []models.LedgerEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || len(l.entries) == 0 {
		return nil
	}
	if n > len(l.entries) {
		n = len(l.entries)
	}

	out := make([]models.LedgerEntry, 0, n)
	for i := len(l.entries) - 1; i >= len(l.entries)-n; i-- {
		out = append(out, l.entries[i])
	}
	return out
}

// All returns a copy of every entry in turn order.
func (l *Ledger) All() []models.LedgerEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.LedgerEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Reset discards all entries. Only called as part of a full session reset.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}
