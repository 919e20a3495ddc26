package ledger

import (
	"path/filepath"

	"dupx-go/internal/dupx"
)

// PathFor returns the ledger location for a session.
func PathFor(ledgerDir, sessionID string) string {
	return filepath.Join(ledgerDir, sessionID+".jsonl")
}

// NewLedger returns a MemoryLedger for dry runs and a FileLedger otherwise.
func NewLedger(path string, dryRun bool) (dupx.Ledger, error) {
	if dryRun {
		return NewMemoryLedger(path), nil
	}
	return OpenFileLedger(path)
}
