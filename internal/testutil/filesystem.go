package testutil

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"dupx-go/internal/dupx"
)

// memData is the content of a regular file. Hard links share one memData.
type memData struct {
	content []byte
	mode    fs.FileMode
	modTime time.Time
}

type nodeKind int

const (
	kindFile nodeKind = iota
	kindDir
	kindSymlink
)

// memNode is a directory entry in the memory filesystem.
type memNode struct {
	kind     nodeKind
	data     *memData // kindFile
	target   string   // kindSymlink
	device   uint64   // kindDir
	readOnly bool     // kindDir
	modTime  time.Time
}

// MemoryFileOps is an in-memory implementation of dupx.FileOps.
// Directories carry a device id and a writable flag so that cross-device
// and permission failures can be simulated. Failures can be injected per
// operation and path with FailOn.
type MemoryFileOps struct {
	mu       sync.Mutex
	nodes    map[string]*memNode
	failures map[string]error
	now      time.Time
}

// NewMemoryFileOps creates an empty filesystem whose root is on device 1.
func NewMemoryFileOps() *MemoryFileOps {
	now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	return &MemoryFileOps{
		nodes: map[string]*memNode{
			"/": {kind: kindDir, device: 1, modTime: now},
		},
		failures: make(map[string]error),
		now:      now,
	}
}

// AddDirectory creates a directory and any missing parents.
func (m *MemoryFileOps) AddDirectory(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mkdirAll(filepath.Clean(path))
}

// AddFile creates a regular file with mode 0644, creating parent directories.
func (m *MemoryFileOps) AddFile(path string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	m.mkdirAll(filepath.Dir(path))
	m.nodes[path] = &memNode{
		kind: kindFile,
		data: &memData{content: bytes.Clone(content), mode: 0644, modTime: m.now},
	}
}

// AddSymlink creates a symbolic link, creating parent directories.
func (m *MemoryFileOps) AddSymlink(target, link string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link = filepath.Clean(link)
	m.mkdirAll(filepath.Dir(link))
	m.nodes[link] = &memNode{kind: kindSymlink, target: target, modTime: m.now}
}

// SetDevice assigns a device id to an existing directory. Directories
// created below it afterwards inherit the id.
func (m *MemoryFileOps) SetDevice(dir string, device uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[filepath.Clean(dir)]; ok && n.kind == kindDir {
		n.device = device
	}
}

// SetReadOnly marks an existing directory as unwritable.
func (m *MemoryFileOps) SetReadOnly(dir string, readOnly bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[filepath.Clean(dir)]; ok && n.kind == kindDir {
		n.readOnly = readOnly
	}
}

// FailOn makes the named operation return err for path.
// op is the FileOps method name in lower case, e.g. "remove" or "writefile".
func (m *MemoryFileOps) FailOn(op, path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op+":"+filepath.Clean(path)] = err
}

// ClearFailures removes all injected failures.
func (m *MemoryFileOps) ClearFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = make(map[string]error)
}

// ReadFile returns the content of a regular file, following symlinks.
func (m *MemoryFileOps) ReadFile(path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, _, err := m.resolve(filepath.Clean(path))
	if err != nil || n.kind != kindFile {
		return nil, false
	}
	return bytes.Clone(n.data.content), true
}

// Exists reports whether path exists, without following symlinks.
func (m *MemoryFileOps) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.nodes[filepath.Clean(path)]
	return ok
}

// SymlinkTarget returns the destination of a symlink at path.
func (m *MemoryFileOps) SymlinkTarget(path string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[filepath.Clean(path)]
	if !ok || n.kind != kindSymlink {
		return "", false
	}
	return n.target, true
}

// List returns the sorted paths of all entries directly inside dir.
func (m *MemoryFileOps) List(dir string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.children(filepath.Clean(dir))
}

// Snapshot returns a description of every entry, for comparing whole trees.
func (m *MemoryFileOps) Snapshot() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.nodes))
	for p, n := range m.nodes {
		switch n.kind {
		case kindDir:
			out[p] = "dir"
		case kindSymlink:
			out[p] = "symlink:" + n.target
		case kindFile:
			out[p] = fmt.Sprintf("file:%o:%s", n.data.mode, n.data.content)
		}
	}
	return out
}

// FileOps implementation

func (m *MemoryFileOps) Lstat(path string) (fs.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	if err := m.fail("lstat", path); err != nil {
		return nil, err
	}
	n, ok := m.nodes[path]
	if !ok {
		return nil, notExist("lstat", path)
	}
	return newMemInfo(path, n), nil
}

func (m *MemoryFileOps) Stat(path string) (fs.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	if err := m.fail("stat", path); err != nil {
		return nil, err
	}
	n, _, err := m.resolve(path)
	if err != nil {
		return nil, err
	}
	return newMemInfo(path, n), nil
}

func (m *MemoryFileOps) DeviceID(path string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	if err := m.fail("deviceid", path); err != nil {
		return 0, err
	}
	n, resolved, err := m.resolve(path)
	if err != nil {
		return 0, err
	}
	if n.kind == kindDir {
		return n.device, nil
	}
	return m.nodes[filepath.Dir(resolved)].device, nil
}

func (m *MemoryFileOps) CheckWritable(dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dir = filepath.Clean(dir)
	if err := m.fail("checkwritable", dir); err != nil {
		return err
	}
	return m.writableDir("access", dir)
}

func (m *MemoryFileOps) SameFile(a, b string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	na, _, err := m.resolve(filepath.Clean(a))
	if err != nil {
		return false, err
	}
	nb, _, err := m.resolve(filepath.Clean(b))
	if err != nil {
		return false, err
	}
	if na.kind == kindFile && nb.kind == kindFile {
		return na.data == nb.data, nil
	}
	return na == nb, nil
}

func (m *MemoryFileOps) Open(path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	if err := m.fail("open", path); err != nil {
		return nil, err
	}
	n, _, err := m.resolve(path)
	if err != nil {
		return nil, err
	}
	if n.kind != kindFile {
		return nil, &fs.PathError{Op: "open", Path: path, Err: syscall.EISDIR}
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(n.data.content))), nil
}

func (m *MemoryFileOps) WriteFile(path string, r io.Reader, perm fs.FileMode, modTime time.Time) (int64, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("reading source: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	if err := m.fail("writefile", path); err != nil {
		return 0, err
	}
	if err := m.writableDir("open", filepath.Dir(path)); err != nil {
		return 0, err
	}
	if n, ok := m.nodes[path]; ok && n.kind == kindDir {
		return 0, &fs.PathError{Op: "rename", Path: path, Err: syscall.EISDIR}
	}
	m.nodes[path] = &memNode{
		kind: kindFile,
		data: &memData{content: content, mode: perm.Perm(), modTime: modTime},
	}
	return int64(len(content)), nil
}

func (m *MemoryFileOps) Rename(oldpath, newpath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	oldpath, newpath = filepath.Clean(oldpath), filepath.Clean(newpath)
	if err := m.fail("rename", newpath); err != nil {
		return err
	}
	n, ok := m.nodes[oldpath]
	if !ok {
		return notExist("rename", oldpath)
	}
	if n.kind == kindDir {
		return &fs.PathError{Op: "rename", Path: oldpath, Err: syscall.EISDIR}
	}
	if err := m.writableDir("rename", filepath.Dir(oldpath)); err != nil {
		return err
	}
	if err := m.writableDir("rename", filepath.Dir(newpath)); err != nil {
		return err
	}
	if existing, ok := m.nodes[newpath]; ok && existing.kind == kindDir {
		return &fs.PathError{Op: "rename", Path: newpath, Err: syscall.EISDIR}
	}
	delete(m.nodes, oldpath)
	m.nodes[newpath] = n
	return nil
}

func (m *MemoryFileOps) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	if err := m.fail("remove", path); err != nil {
		return err
	}
	n, ok := m.nodes[path]
	if !ok {
		return notExist("remove", path)
	}
	if n.kind == kindDir && len(m.children(path)) > 0 {
		return &fs.PathError{Op: "remove", Path: path, Err: syscall.ENOTEMPTY}
	}
	if err := m.writableDir("remove", filepath.Dir(path)); err != nil {
		return err
	}
	delete(m.nodes, path)
	return nil
}

func (m *MemoryFileOps) Symlink(target, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	link = filepath.Clean(link)
	if err := m.fail("symlink", link); err != nil {
		return err
	}
	if _, ok := m.nodes[link]; ok {
		return &fs.PathError{Op: "symlink", Path: link, Err: fs.ErrExist}
	}
	if err := m.writableDir("symlink", filepath.Dir(link)); err != nil {
		return err
	}
	m.nodes[link] = &memNode{kind: kindSymlink, target: target, modTime: m.now}
	return nil
}

func (m *MemoryFileOps) Link(target, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, link = filepath.Clean(target), filepath.Clean(link)
	if err := m.fail("link", link); err != nil {
		return err
	}
	n, ok := m.nodes[target]
	if !ok {
		return notExist("link", target)
	}
	if n.kind != kindFile {
		return &fs.PathError{Op: "link", Path: target, Err: syscall.EPERM}
	}
	if _, ok := m.nodes[link]; ok {
		return &fs.PathError{Op: "link", Path: link, Err: fs.ErrExist}
	}
	if err := m.writableDir("link", filepath.Dir(link)); err != nil {
		return err
	}
	if m.nodes[filepath.Dir(target)].device != m.nodes[filepath.Dir(link)].device {
		return &fs.PathError{Op: "link", Path: link, Err: syscall.EXDEV}
	}
	m.nodes[link] = &memNode{kind: kindFile, data: n.data}
	return nil
}

func (m *MemoryFileOps) Readlink(path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	n, ok := m.nodes[path]
	if !ok {
		return "", notExist("readlink", path)
	}
	if n.kind != kindSymlink {
		return "", &fs.PathError{Op: "readlink", Path: path, Err: syscall.EINVAL}
	}
	return n.target, nil
}

func (m *MemoryFileOps) Mkdir(path string, perm fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	if err := m.fail("mkdir", path); err != nil {
		return err
	}
	if _, ok := m.nodes[path]; ok {
		return &fs.PathError{Op: "mkdir", Path: path, Err: fs.ErrExist}
	}
	if err := m.writableDir("mkdir", filepath.Dir(path)); err != nil {
		return err
	}
	m.mkdirAll(path)
	return nil
}

func (m *MemoryFileOps) MkdirAll(path string, perm fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	if err := m.fail("mkdirall", path); err != nil {
		return err
	}
	for p := path; ; p = filepath.Dir(p) {
		if n, ok := m.nodes[p]; ok {
			if n.kind != kindDir {
				return &fs.PathError{Op: "mkdir", Path: p, Err: syscall.ENOTDIR}
			}
			if p != path && n.readOnly {
				return &fs.PathError{Op: "mkdir", Path: p, Err: fs.ErrPermission}
			}
			break
		}
		if p == "/" {
			break
		}
	}
	m.mkdirAll(path)
	return nil
}

// internal helpers; callers hold m.mu

func (m *MemoryFileOps) mkdirAll(path string) {
	if _, ok := m.nodes[path]; ok {
		return
	}
	parent := filepath.Dir(path)
	m.mkdirAll(parent)
	m.nodes[path] = &memNode{kind: kindDir, device: m.nodes[parent].device, modTime: m.now}
}

// resolve follows symlinks at path and returns the final node and its path.
func (m *MemoryFileOps) resolve(path string) (*memNode, string, error) {
	for range 40 {
		n, ok := m.nodes[path]
		if !ok {
			return nil, "", notExist("stat", path)
		}
		if n.kind != kindSymlink {
			return n, path, nil
		}
		target := n.target
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(path), target)
		}
		path = filepath.Clean(target)
	}
	return nil, "", &fs.PathError{Op: "stat", Path: path, Err: syscall.ELOOP}
}

func (m *MemoryFileOps) writableDir(op, dir string) error {
	n, ok := m.nodes[dir]
	if !ok {
		return notExist(op, dir)
	}
	if n.kind != kindDir {
		return &fs.PathError{Op: op, Path: dir, Err: syscall.ENOTDIR}
	}
	if n.readOnly {
		return &fs.PathError{Op: op, Path: dir, Err: fs.ErrPermission}
	}
	return nil
}

func (m *MemoryFileOps) children(dir string) []string {
	prefix := dir + "/"
	if dir == "/" {
		prefix = "/"
	}
	var out []string
	for p := range m.nodes {
		if p == dir || !strings.HasPrefix(p, prefix) {
			continue
		}
		if !strings.Contains(p[len(prefix):], "/") {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func (m *MemoryFileOps) fail(op, path string) error {
	return m.failures[op+":"+path]
}

func notExist(op, path string) error {
	return &fs.PathError{Op: op, Path: path, Err: fs.ErrNotExist}
}

// memInfo implements fs.FileInfo for memory nodes.
type memInfo struct {
	name string
	node *memNode
}

func newMemInfo(path string, n *memNode) *memInfo {
	return &memInfo{name: filepath.Base(path), node: n}
}

func (i *memInfo) Name() string { return i.name }

func (i *memInfo) Size() int64 {
	switch i.node.kind {
	case kindFile:
		return int64(len(i.node.data.content))
	case kindSymlink:
		return int64(len(i.node.target))
	}
	return 0
}

func (i *memInfo) Mode() fs.FileMode {
	switch i.node.kind {
	case kindDir:
		return fs.ModeDir | 0755
	case kindSymlink:
		return fs.ModeSymlink | 0777
	}
	return i.node.data.mode
}

func (i *memInfo) ModTime() time.Time {
	if i.node.kind == kindFile {
		return i.node.data.modTime
	}
	return i.node.modTime
}

func (i *memInfo) IsDir() bool { return i.node.kind == kindDir }
func (i *memInfo) Sys() any    { return i.node }

// Compile-time check that MemoryFileOps implements dupx.FileOps interface
var _ dupx.FileOps = (*MemoryFileOps)(nil)
