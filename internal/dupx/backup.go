package dupx

import "time"

// BackupEntry describes a copy of a file taken before it was mutated.
type BackupEntry struct {
	SourcePath string
	BackupPath string
	Kind       OperationKind
	Checksum   string // BLAKE3 hex of the copied bytes; empty in dry-run
	Size       int64
	CreatedAt  time.Time
	DryRun     bool
}

// Restorer copies backups back into place.
type Restorer interface {
	// Restore writes the backup described by entry to target, verifying the
	// checksum first when one is recorded.
	Restore(entry BackupEntry, target string) error

	// Matches reports whether the file at path has the given checksum.
	Matches(path, checksum string) (bool, error)
}

// BackupManager takes session-scoped backups before mutations.
type BackupManager interface {
	Restorer

	// Backup copies source into the session directory. In dry-run mode it
	// performs no I/O and returns the entry that would have been created.
	Backup(source string, kind OperationKind) (BackupEntry, error)

	// Discard removes a backup that no mutation ended up needing.
	Discard(entry BackupEntry) error

	// SessionDir returns the directory holding this session's backups.
	SessionDir() string
}
