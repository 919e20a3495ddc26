package fs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"dupx-go/internal/dupx"
)

// OSFileOps is the real filesystem implementation of dupx.FileOps.
type OSFileOps struct{}

// NewOSFileOps creates a FileOps that operates on the real filesystem.
func NewOSFileOps() *OSFileOps {
	return &OSFileOps{}
}

func (o *OSFileOps) Lstat(path string) (fs.FileInfo, error) { return os.Lstat(path) }

func (o *OSFileOps) Stat(path string) (fs.FileInfo, error) { return os.Stat(path) }

func (o *OSFileOps) SameFile(a, b string) (bool, error) {
	ia, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	ib, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	return os.SameFile(ia, ib), nil
}

// Open opens a regular file for reading.
func (o *OSFileOps) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("cannot open %s: not a regular file", path)
	}
	return f, nil
}

// WriteFile writes r to a temp file beside path, syncs it, applies perm and
// modTime, then renames it into place.
func (o *OSFileOps) WriteFile(path string, r io.Reader, perm fs.FileMode, modTime time.Time) (int64, error) {
	// Create temp file in the same directory to ensure atomic rename works
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".dupx-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return 0, fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return 0, fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, perm.Perm()); err != nil {
		return 0, fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Chtimes(tmpPath, modTime, modTime); err != nil {
		return 0, fmt.Errorf("failed to set modification time: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return 0, fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return written, nil
}

func (o *OSFileOps) Rename(oldpath, newpath string) error { return os.Rename(oldpath, newpath) }

func (o *OSFileOps) Remove(path string) error { return os.Remove(path) }

func (o *OSFileOps) Symlink(target, link string) error { return os.Symlink(target, link) }

func (o *OSFileOps) Link(target, link string) error { return os.Link(target, link) }

func (o *OSFileOps) Readlink(path string) (string, error) { return os.Readlink(path) }

func (o *OSFileOps) Mkdir(path string, perm fs.FileMode) error { return os.Mkdir(path, perm) }

func (o *OSFileOps) MkdirAll(path string, perm fs.FileMode) error { return os.MkdirAll(path, perm) }

// Compile-time check that OSFileOps implements dupx.FileOps interface
var _ dupx.FileOps = (*OSFileOps)(nil)
