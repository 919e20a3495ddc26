package dupx

import "fmt"

// ParseError reports a decision table row that could not be turned into a record.
// The row is skipped and loading continues.
type ParseError struct {
	Row    int
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("row %d: %s: %v", e.Row, e.Reason, e.Err)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError reports a failed precondition: a missing file, an
// unwritable directory or a protected path. The row is not mutated.
type ValidationError struct {
	Row    int
	Path   string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("row %d: %s: %s", e.Row, e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// CrossDeviceError reports a hard link request across filesystem volumes.
// It is counted as a skip, not an error.
type CrossDeviceError struct {
	Row             int
	OriginalDir     string
	DuplicateDir    string
	OriginalDevice  uint64
	DuplicateDevice uint64
}

func (e *CrossDeviceError) Error() string {
	return fmt.Sprintf("row %d: cannot hard link across devices: %s (dev %d) and %s (dev %d)",
		e.Row, e.OriginalDir, e.OriginalDevice, e.DuplicateDir, e.DuplicateDevice)
}

// BackupError reports a backup copy that failed before any mutation.
type BackupError struct {
	Row  int
	Path string
	Err  error
}

func (e *BackupError) Error() string {
	return fmt.Sprintf("row %d: backing up %s: %v", e.Row, e.Path, e.Err)
}

func (e *BackupError) Unwrap() error { return e.Err }

// MutationError reports a filesystem primitive that failed after the backup
// was taken. Restored tells whether the best-effort restore succeeded.
type MutationError struct {
	Row      int
	Path     string
	Op       string
	Err      error
	Restored bool
}

func (e *MutationError) Error() string {
	state := "restored from backup"
	if !e.Restored {
		state = "restore failed"
	}
	return fmt.Sprintf("row %d: %s %s: %v (%s)", e.Row, e.Op, e.Path, e.Err, state)
}

func (e *MutationError) Unwrap() error { return e.Err }

// RollbackError reports a ledger entry that could not be reverted.
type RollbackError struct {
	OperationID string
	Path        string
	Reason      string
	Err         error
}

func (e *RollbackError) Error() string {
	msg := fmt.Sprintf("operation %s: %s: %s", e.OperationID, e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RollbackError) Unwrap() error { return e.Err }
