package ledger

import (
	"slices"
	"sync"

	"dupx-go/internal/dupx"
)

// MemoryLedger keeps entries in memory. Dry runs use it to hold the
// rollback preview without persisting anything.
type MemoryLedger struct {
	mu      sync.Mutex
	path    string
	entries []dupx.RollbackEntry
}

// NewMemoryLedger creates an empty MemoryLedger. path is reported by Path
// and names where a real run would have written.
func NewMemoryLedger(path string) *MemoryLedger {
	return &MemoryLedger{path: path}
}

func (l *MemoryLedger) Append(entry dupx.RollbackEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func (l *MemoryLedger) Entries() ([]dupx.RollbackEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.entries), nil
}

func (l *MemoryLedger) Path() string { return l.path }

func (l *MemoryLedger) Close() error { return nil }

// Compile-time check that MemoryLedger implements dupx.Ledger interface
var _ dupx.Ledger = (*MemoryLedger)(nil)
