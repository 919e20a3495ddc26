package dupx

import "time"

// RollbackEntry is one line of the rollback ledger. Entries with Reverts set
// are markers recording that an earlier operation has been undone.
type RollbackEntry struct {
	OperationID    string        `json:"operation_id"`
	SessionID      string        `json:"session_id"`
	Row            int           `json:"row"`
	Action         Action        `json:"action"`
	Kind           OperationKind `json:"kind"`
	TargetPath     string        `json:"target_path"`
	LinkTarget     string        `json:"link_target,omitempty"`
	RestoreSource  string        `json:"restore_source,omitempty"`
	BackupChecksum string        `json:"backup_checksum,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
	DryRun         bool          `json:"dry_run,omitempty"`
	Reverts        string        `json:"reverts,omitempty"`
}

// IsMarker reports whether the entry records a revert rather than a mutation.
func (e RollbackEntry) IsMarker() bool {
	return e.Reverts != ""
}

// backupEntry rebuilds the backup description the entry was recorded from.
func (e RollbackEntry) backupEntry() BackupEntry {
	return BackupEntry{
		SourcePath: e.TargetPath,
		BackupPath: e.RestoreSource,
		Kind:       e.Kind,
		Checksum:   e.BackupChecksum,
	}
}

// Ledger is the append-only store of applied mutations.
type Ledger interface {
	// Append durably records an entry before returning.
	Append(entry RollbackEntry) error

	// Entries returns every entry in append order.
	Entries() ([]RollbackEntry, error)

	// Path returns where the ledger lives.
	Path() string

	Close() error
}
