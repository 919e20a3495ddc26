package backup

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/blake3"

	"dupx-go/internal/dupx"
)

// Restorer copies backups back into place. It needs no session and is used
// on its own by rollback runs.
type Restorer struct {
	fsops dupx.FileOps
}

// NewRestorer creates a Restorer.
func NewRestorer(fsops dupx.FileOps) *Restorer {
	return &Restorer{fsops: fsops}
}

// Checksum returns the BLAKE3 hex digest of the file at path.
func (r *Restorer) Checksum(path string) (string, error) {
	f, err := r.fsops.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Matches reports whether the file at path has the given checksum.
// An empty checksum never matches.
func (r *Restorer) Matches(path, checksum string) (bool, error) {
	if checksum == "" {
		return false, nil
	}
	got, err := r.Checksum(path)
	if err != nil {
		return false, err
	}
	return got == checksum, nil
}

// Restore atomically writes the backup to target with the backup's mode and
// modification time.
func (r *Restorer) Restore(entry dupx.BackupEntry, target string) error {
	info, err := r.fsops.Stat(entry.BackupPath)
	if err != nil {
		return fmt.Errorf("backup missing: %w", err)
	}

	if entry.Checksum != "" {
		ok, err := r.Matches(entry.BackupPath, entry.Checksum)
		if err != nil {
			return fmt.Errorf("verifying backup: %w", err)
		}
		if !ok {
			return fmt.Errorf("backup %s does not match recorded checksum", entry.BackupPath)
		}
	}

	f, err := r.fsops.Open(entry.BackupPath)
	if err != nil {
		return fmt.Errorf("opening backup: %w", err)
	}
	defer f.Close()

	written, err := r.fsops.WriteFile(target, f, info.Mode().Perm(), info.ModTime())
	if err != nil {
		return fmt.Errorf("writing %s: %w", target, err)
	}
	if written != info.Size() {
		return fmt.Errorf("size mismatch restoring %s: expected %d bytes, got %d", target, info.Size(), written)
	}
	return nil
}

// Compile-time check that Restorer implements dupx.Restorer interface
var _ dupx.Restorer = (*Restorer)(nil)
