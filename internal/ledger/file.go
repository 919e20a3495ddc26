package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"dupx-go/internal/dupx"
)

// FileLedger is a JSON Lines rollback ledger. Every Append is written with
// O_APPEND and synced before it returns.
type FileLedger struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// OpenFileLedger opens or creates the ledger at path. A trailing partial
// line left by an interrupted append is cut off first.
func OpenFileLedger(path string) (*FileLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}
	if err := trimPartialLine(path); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	return &FileLedger{path: path, f: f}, nil
}

// Append durably records an entry.
func (l *FileLedger) Append(entry dupx.RollbackEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding ledger entry: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return fmt.Errorf("ledger %s is closed", l.path)
	}
	if _, err := l.f.Write(data); err != nil {
		return fmt.Errorf("writing ledger entry: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("syncing ledger: %w", err)
	}
	return nil
}

// Entries reads every entry back from disk.
func (l *FileLedger) Entries() ([]dupx.RollbackEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ReadFile(l.path)
}

func (l *FileLedger) Path() string { return l.path }

func (l *FileLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// ReadFile parses a ledger file. A final line without a trailing newline that
// fails to parse is an interrupted append and is ignored; any other malformed
// line is an error.
func ReadFile(path string) ([]dupx.RollbackEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}
	return parse(data)
}

func parse(data []byte) ([]dupx.RollbackEntry, error) {
	var entries []dupx.RollbackEntry
	lines := bytes.Split(data, []byte("\n"))
	for i, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var e dupx.RollbackEntry
		if err := json.Unmarshal(line, &e); err != nil {
			if i == len(lines)-1 {
				break
			}
			return nil, fmt.Errorf("ledger line %d: %w", i+1, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// trimPartialLine truncates anything after the last newline in path.
func trimPartialLine(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading ledger: %w", err)
	}
	if len(data) == 0 || data[len(data)-1] == '\n' {
		return nil
	}
	keep := bytes.LastIndexByte(data, '\n') + 1
	if err := os.Truncate(path, int64(keep)); err != nil {
		return fmt.Errorf("trimming partial ledger line: %w", err)
	}
	return nil
}

// Compile-time check that FileLedger implements dupx.Ledger interface
var _ dupx.Ledger = (*FileLedger)(nil)
