package dupx_test

import (
	"errors"
	"iter"
	"strings"
	"testing"
	"time"

	"dupx-go/internal/backup"
	"dupx-go/internal/dupx"
	"dupx-go/internal/ledger"
	"dupx-go/internal/testutil"
)

const backupDir = "/backups"

// harness wires an Executor over an in-memory filesystem.
type harness struct {
	fsops   *testutil.MemoryFileOps
	backups *backup.Session
	ledger  dupx.Ledger
	clock   *testutil.TickingClock
	ids     *testutil.StubIDGenerator
	exec    *dupx.Executor
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	dryRun    bool
	protected dupx.PathMatcher
	ledger    func(dupx.Ledger) dupx.Ledger
}

func withDryRun() harnessOption {
	return func(c *harnessConfig) { c.dryRun = true }
}

func withProtected(patterns ...string) harnessOption {
	return func(c *harnessConfig) { c.protected = prefixMatcher(patterns) }
}

func withLedger(wrap func(dupx.Ledger) dupx.Ledger) harnessOption {
	return func(c *harnessConfig) { c.ledger = wrap }
}

func newHarness(t *testing.T, fsops *testutil.MemoryFileOps, opts ...harnessOption) *harness {
	t.Helper()
	var cfg harnessConfig
	for _, o := range opts {
		o(&cfg)
	}

	clock := testutil.NewTickingClock(time.Second)
	sess, err := backup.NewSession(fsops, backupDir, clock.Now(), clock, cfg.dryRun, nil)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	var l dupx.Ledger = ledger.NewMemoryLedger("/ledger/session.jsonl")
	if cfg.ledger != nil {
		l = cfg.ledger(l)
	}

	ids := testutil.NewStubIDGenerator()
	v := dupx.NewValidator(fsops, cfg.protected)
	exec := dupx.NewExecutor(fsops, v, sess, l, dupx.NewNopLogger(), clock, ids, dupx.ExecuteOptions{
		SessionID: "20240115_103000",
		DryRun:    cfg.dryRun,
	})

	return &harness{fsops: fsops, backups: sess, ledger: l, clock: clock, ids: ids, exec: exec}
}

func (h *harness) run(t *testing.T, recs ...dupx.DecisionRecord) dupx.RunSummary {
	t.Helper()
	sum, err := h.exec.Execute(t.Context(), seqOf(recs...))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	return sum
}

func (h *harness) entries(t *testing.T) []dupx.RollbackEntry {
	t.Helper()
	entries, err := h.ledger.Entries()
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	return entries
}

func (h *harness) rollbackRunner(dryRun bool) *dupx.RollbackRunner {
	return dupx.NewRollbackRunner(h.fsops, backup.NewRestorer(h.fsops), h.ledger, dupx.NewNopLogger(), h.clock, h.ids, dryRun)
}

// newPairFS creates /a/<name> and /b/<name> with distinct contents.
func newPairFS(names ...string) *testutil.MemoryFileOps {
	fsops := testutil.NewMemoryFileOps()
	for _, n := range names {
		fsops.AddFile("/a/"+n, []byte("original bytes of "+n))
		fsops.AddFile("/b/"+n, []byte("duplicate bytes of "+n))
	}
	return fsops
}

func record(row int, name, action string) dupx.DecisionRecord {
	return dupx.DecisionRecord{
		Row:             row,
		OriginalFolder:  "/a",
		OriginalFile:    name,
		DuplicateFolder: "/b",
		DuplicateFile:   name,
		Action:          action,
	}
}

func seqOf(recs ...dupx.DecisionRecord) iter.Seq2[dupx.DecisionRecord, error] {
	return func(yield func(dupx.DecisionRecord, error) bool) {
		for _, r := range recs {
			if !yield(r, nil) {
				return
			}
		}
	}
}

// userTree returns the snapshot entries outside the backup directory.
func userTree(fsops *testutil.MemoryFileOps) map[string]string {
	out := make(map[string]string)
	for p, desc := range fsops.Snapshot() {
		if p == backupDir || strings.HasPrefix(p, backupDir+"/") {
			continue
		}
		out[p] = desc
	}
	return out
}

func assertTreeEqual(t *testing.T, got, want map[string]string) {
	t.Helper()
	for p, w := range want {
		if g, ok := got[p]; !ok {
			t.Errorf("%s missing, want %q", p, w)
		} else if g != w {
			t.Errorf("%s = %q, want %q", p, g, w)
		}
	}
	for p, g := range got {
		if _, ok := want[p]; !ok {
			t.Errorf("unexpected entry %s = %q", p, g)
		}
	}
}

// backupFiles lists the files in the session directory.
func backupFiles(h *harness) []string {
	return h.fsops.List(h.backups.SessionDir())
}

type prefixMatcher []string

func (m prefixMatcher) Match(path string) bool {
	for _, p := range m {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// failingLedger fails every Append after the first n.
type failingLedger struct {
	dupx.Ledger
	n int
}

func (l *failingLedger) Append(e dupx.RollbackEntry) error {
	if l.n <= 0 {
		return errors.New("disk full")
	}
	l.n--
	return l.Ledger.Append(e)
}
