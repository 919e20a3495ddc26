package fs

import (
	"bytes"
	"errors"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOSFileOps_WriteFile(t *testing.T) {
	t.Run("writes content with mode and mtime", func(t *testing.T) {
		t.Parallel()
		o := NewOSFileOps()
		path := filepath.Join(t.TempDir(), "out.txt")
		mtime := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)

		n, err := o.WriteFile(path, bytes.NewReader([]byte("hello")), 0600, mtime)
		if err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		if n != 5 {
			t.Errorf("WriteFile() = %d, want 5", n)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("mode = %v, want 0600", info.Mode().Perm())
		}
		if !info.ModTime().Equal(mtime) {
			t.Errorf("mtime = %v, want %v", info.ModTime(), mtime)
		}
	})

	t.Run("replaces a symlink rather than following it", func(t *testing.T) {
		t.Parallel()
		o := NewOSFileOps()
		dir := t.TempDir()
		kept := filepath.Join(dir, "kept.txt")
		link := filepath.Join(dir, "link.txt")
		os.WriteFile(kept, []byte("kept"), 0644)
		if err := os.Symlink(kept, link); err != nil {
			t.Fatal(err)
		}

		if _, err := o.WriteFile(link, bytes.NewReader([]byte("restored")), 0644, time.Now()); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}

		info, _ := os.Lstat(link)
		if !info.Mode().IsRegular() {
			t.Errorf("link.txt mode = %v, want regular file", info.Mode())
		}
		got, _ := os.ReadFile(kept)
		if string(got) != "kept" {
			t.Errorf("kept.txt = %q, want unchanged", got)
		}
	})

	t.Run("leaves no temp file on failure", func(t *testing.T) {
		t.Parallel()
		o := NewOSFileOps()
		dir := t.TempDir()
		_, err := o.WriteFile(filepath.Join(dir, "out.txt"), failingReader{}, 0644, time.Now())
		if err == nil {
			t.Fatal("WriteFile() expected error")
		}
		entries, _ := os.ReadDir(dir)
		if len(entries) != 0 {
			t.Errorf("directory has %d entries, want 0", len(entries))
		}
	})
}

func TestOSFileOps_Links(t *testing.T) {
	o := NewOSFileOps()
	dir := t.TempDir()
	orig := filepath.Join(dir, "orig.txt")
	if err := os.WriteFile(orig, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}

	hard := filepath.Join(dir, "hard.txt")
	if err := o.Link(orig, hard); err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	same, err := o.SameFile(orig, hard)
	if err != nil {
		t.Fatalf("SameFile() error = %v", err)
	}
	if !same {
		t.Error("SameFile() = false for hard link")
	}

	soft := filepath.Join(dir, "soft.txt")
	if err := o.Symlink(orig, soft); err != nil {
		t.Fatalf("Symlink() error = %v", err)
	}
	dest, err := o.Readlink(soft)
	if err != nil {
		t.Fatalf("Readlink() error = %v", err)
	}
	if dest != orig {
		t.Errorf("Readlink() = %q, want %q", dest, orig)
	}
	info, err := o.Lstat(soft)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&iofs.ModeSymlink == 0 {
		t.Error("Lstat() did not report a symlink")
	}
}

func TestOSFileOps_DeviceID(t *testing.T) {
	o := NewOSFileOps()
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	os.Mkdir(sub, 0755)

	a, err := o.DeviceID(dir)
	if err != nil {
		t.Fatalf("DeviceID() error = %v", err)
	}
	b, err := o.DeviceID(sub)
	if err != nil {
		t.Fatalf("DeviceID() error = %v", err)
	}
	if a != b {
		t.Errorf("DeviceID() differs within one temp dir: %d vs %d", a, b)
	}

	if _, err := o.DeviceID(filepath.Join(dir, "missing")); err == nil {
		t.Error("DeviceID() expected error for missing path")
	}
}

func TestOSFileOps_CheckWritable(t *testing.T) {
	o := NewOSFileOps()
	if err := o.CheckWritable(t.TempDir()); err != nil {
		t.Errorf("CheckWritable() error = %v", err)
	}
	if err := o.CheckWritable(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("CheckWritable() expected error for missing directory")
	}
}

func TestOSFileOps_Open(t *testing.T) {
	o := NewOSFileOps()
	dir := t.TempDir()

	if _, err := o.Open(dir); err == nil {
		t.Error("Open() expected error for directory")
	}

	_, err := o.Open(filepath.Join(dir, "missing"))
	if !errors.Is(err, iofs.ErrNotExist) {
		t.Errorf("Open() error = %v, want ErrNotExist", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }
