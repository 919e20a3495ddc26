package backup

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"

	"dupx-go/internal/dupx"
)

// SessionName formats the backup session directory name for a run start time.
func SessionName(startedAt time.Time) string {
	return startedAt.Format("20060102_150405")
}

// maxSessionSuffix bounds the search for a free session name.
const maxSessionSuffix = 1000

// Session is a dupx.BackupManager that places every backup of one run in
// its own directory:
//
//	<backup_dir>/
//	  <YYYYMMDD_HHMMSS>[-N]/
//	    <kind>_<basename>_<YYYYMMDDTHHMMSS.ffffff>[-N]
type Session struct {
	*Restorer
	fsops  dupx.FileOps
	name   string
	dir    string
	clock  dupx.Clock
	dryRun bool
	issued map[string]bool
}

// NewSession claims a session directory under backupDir for a run started at
// startedAt. If that name already exists, or inUse reports it as taken, a
// -2, -3, ... suffix is appended. inUse may be nil. In dry-run mode nothing
// is created.
func NewSession(fsops dupx.FileOps, backupDir string, startedAt time.Time, clock dupx.Clock, dryRun bool, inUse func(name string) bool) (*Session, error) {
	if !dryRun {
		if err := fsops.MkdirAll(backupDir, 0700); err != nil {
			return nil, fmt.Errorf("creating backup directory: %w", err)
		}
	}

	base := SessionName(startedAt)
	for n := 1; n <= maxSessionSuffix; n++ {
		name := base
		if n > 1 {
			name = fmt.Sprintf("%s-%d", base, n)
		}
		if inUse != nil && inUse(name) {
			continue
		}
		dir := filepath.Join(backupDir, name)
		if dryRun {
			if _, err := fsops.Lstat(dir); err == nil {
				continue
			}
		} else if err := fsops.Mkdir(dir, 0700); err != nil {
			if errors.Is(err, fs.ErrExist) {
				continue
			}
			return nil, fmt.Errorf("creating backup session directory: %w", err)
		}
		return &Session{
			Restorer: NewRestorer(fsops),
			fsops:    fsops,
			name:     name,
			dir:      dir,
			clock:    clock,
			dryRun:   dryRun,
			issued:   make(map[string]bool),
		}, nil
	}
	return nil, fmt.Errorf("no free backup session name for %s", base)
}

// Name returns the session id, which is also the session directory's name.
func (s *Session) Name() string {
	return s.name
}

// SessionDir returns the directory holding this session's backups.
func (s *Session) SessionDir() string {
	return s.dir
}

// Backup copies source into the session directory, checksumming it on the way.
func (s *Session) Backup(source string, kind dupx.OperationKind) (dupx.BackupEntry, error) {
	// 1. Get initial stat
	info1, err := s.fsops.Lstat(source)
	if err != nil {
		return dupx.BackupEntry{}, fmt.Errorf("stat source: %w", err)
	}
	if !info1.Mode().IsRegular() {
		return dupx.BackupEntry{}, fmt.Errorf("source is not a regular file: %s", source)
	}

	now := s.clock.Now()
	entry := dupx.BackupEntry{
		SourcePath: source,
		BackupPath: filepath.Join(s.dir, s.uniqueName(kind, filepath.Base(source), now)),
		Kind:       kind,
		Size:       info1.Size(),
		CreatedAt:  now,
		DryRun:     s.dryRun,
	}
	if s.dryRun {
		return entry, nil
	}

	// 2. Copy through the hasher
	r, err := s.fsops.Open(source)
	if err != nil {
		return dupx.BackupEntry{}, fmt.Errorf("opening source: %w", err)
	}
	h := blake3.New()
	written, err := s.fsops.WriteFile(entry.BackupPath, io.TeeReader(r, h), info1.Mode().Perm(), info1.ModTime())
	r.Close()
	if err != nil {
		return dupx.BackupEntry{}, fmt.Errorf("writing backup: %w", err)
	}
	if written != info1.Size() {
		s.fsops.Remove(entry.BackupPath)
		return dupx.BackupEntry{}, fmt.Errorf("size mismatch: expected %d bytes, got %d", info1.Size(), written)
	}

	// 3. Re-stat to validate the source did not change while copying
	info2, err := s.fsops.Lstat(source)
	if err != nil {
		s.fsops.Remove(entry.BackupPath)
		return dupx.BackupEntry{}, fmt.Errorf("re-stat source: %w", err)
	}
	if err := validateStatUnchanged(info1, info2); err != nil {
		s.fsops.Remove(entry.BackupPath)
		return dupx.BackupEntry{}, fmt.Errorf("file changed during backup: %w", err)
	}

	entry.Checksum = hex.EncodeToString(h.Sum(nil))
	return entry, nil
}

// Discard removes a backup taken in this session. Dry-run entries have
// nothing on disk.
func (s *Session) Discard(entry dupx.BackupEntry) error {
	if s.dryRun || entry.DryRun || entry.BackupPath == "" {
		return nil
	}
	if filepath.Dir(entry.BackupPath) != s.dir {
		return fmt.Errorf("backup %s is not part of session %s", entry.BackupPath, s.name)
	}
	if err := s.fsops.Remove(entry.BackupPath); err != nil {
		return fmt.Errorf("removing backup: %w", err)
	}
	return nil
}

// uniqueName returns a backup file name not yet issued in this session.
func (s *Session) uniqueName(kind dupx.OperationKind, base string, now time.Time) string {
	stem := fmt.Sprintf("%s_%s_%s", kind, base, now.Format("20060102T150405.000000"))
	name := stem
	for i := 1; s.taken(name); i++ {
		name = fmt.Sprintf("%s-%d", stem, i)
	}
	s.issued[name] = true
	return name
}

func (s *Session) taken(name string) bool {
	if s.issued[name] {
		return true
	}
	if s.dryRun {
		return false
	}
	_, err := s.fsops.Lstat(filepath.Join(s.dir, name))
	return err == nil
}

// Compile-time check that Session implements dupx.BackupManager interface
var _ dupx.BackupManager = (*Session)(nil)
