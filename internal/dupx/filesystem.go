package dupx

import (
	"io"
	"io/fs"
	"time"
)

// FileOps is the set of filesystem primitives the executor and rollback
// runner depend on. All paths are absolute.
type FileOps interface {
	// Lstat returns file info without following symlinks.
	Lstat(path string) (fs.FileInfo, error)

	// Stat returns file info, following symlinks.
	Stat(path string) (fs.FileInfo, error)

	// DeviceID returns the identifier of the volume holding path.
	DeviceID(path string) (uint64, error)

	// CheckWritable returns nil if entries can be created and removed in dir.
	CheckWritable(dir string) error

	// SameFile reports whether both paths refer to the same underlying file.
	SameFile(a, b string) (bool, error)

	// Open opens a regular file for reading.
	Open(path string) (io.ReadCloser, error)

	// WriteFile atomically replaces path with the contents of r, applying
	// perm and modTime. It returns the number of bytes written.
	WriteFile(path string, r io.Reader, perm fs.FileMode, modTime time.Time) (int64, error)

	// Rename moves oldpath to newpath, replacing newpath if it exists.
	Rename(oldpath, newpath string) error

	// Remove deletes a file, link or empty directory.
	Remove(path string) error

	// Symlink creates link pointing at target.
	Symlink(target, link string) error

	// Link creates link as a hard link to target.
	Link(target, link string) error

	// Readlink returns the destination of a symbolic link.
	Readlink(path string) (string, error)

	// Mkdir creates a single directory. It fails with fs.ErrExist if path
	// already exists.
	Mkdir(path string, perm fs.FileMode) error

	// MkdirAll creates a directory and any missing parents.
	MkdirAll(path string, perm fs.FileMode) error
}

// PathMatcher reports whether a path is covered by a set of patterns.
type PathMatcher interface {
	Match(path string) bool
}
