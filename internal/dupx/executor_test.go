package dupx_test

import (
	"context"
	"errors"
	"iter"
	"testing"

	"dupx-go/internal/dupx"
)

func TestExecutor_DeleteDuplicate(t *testing.T) {
	fsops := newPairFS("f.txt")
	h := newHarness(t, fsops)

	sum := h.run(t, record(3, "f.txt", "DELETE_DUPLICATE"))

	if !fsops.Exists("/a/f.txt") {
		t.Error("/a/f.txt was removed")
	}
	if fsops.Exists("/b/f.txt") {
		t.Error("/b/f.txt still exists")
	}

	files := backupFiles(h)
	if len(files) != 1 {
		t.Fatalf("session has %d backups, want 1", len(files))
	}
	content, _ := fsops.ReadFile(files[0])
	if string(content) != "duplicate bytes of f.txt" {
		t.Errorf("backup content = %q", content)
	}

	entries := h.entries(t)
	if len(entries) != 1 {
		t.Fatalf("ledger has %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.TargetPath != "/b/f.txt" || e.RestoreSource != files[0] {
		t.Errorf("entry = %+v, want target /b/f.txt restored from %s", e, files[0])
	}
	if e.Kind != dupx.KindDelete || e.Action != dupx.ActionDeleteDuplicate || e.Row != 3 {
		t.Errorf("entry kind/action/row = %s/%s/%d", e.Kind, e.Action, e.Row)
	}

	if sum.Total != 1 || sum.Processed != 1 || sum.FilesDeleted != 1 || sum.ByAction[dupx.ActionDeleteDuplicate] != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestExecutor_SoftlinkOriginal(t *testing.T) {
	fsops := newPairFS("f.txt")
	h := newHarness(t, fsops)

	sum := h.run(t, record(3, "f.txt", "SOFTLINK_ORIGINAL"))

	target, ok := fsops.SymlinkTarget("/a/f.txt")
	if !ok {
		t.Fatal("/a/f.txt is not a symlink")
	}
	if target != "/b/f.txt" {
		t.Errorf("/a/f.txt -> %q, want /b/f.txt", target)
	}
	if content, _ := fsops.ReadFile("/b/f.txt"); string(content) != "duplicate bytes of f.txt" {
		t.Errorf("/b/f.txt content = %q, want unchanged", content)
	}
	if _, isLink := fsops.SymlinkTarget("/b/f.txt"); isLink {
		t.Error("/b/f.txt became a symlink")
	}
	if len(fsops.List("/a")) != 1 {
		t.Errorf("/a contains %v, want only f.txt", fsops.List("/a"))
	}
	if sum.SoftlinksCreated != 1 {
		t.Errorf("SoftlinksCreated = %d, want 1", sum.SoftlinksCreated)
	}

	rsum, err := h.rollbackRunner(false).Run(t.Context(), dupx.RollbackFilter{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rsum.Restored != 1 {
		t.Fatalf("rollback summary = %+v", rsum)
	}
	if _, isLink := fsops.SymlinkTarget("/a/f.txt"); isLink {
		t.Error("/a/f.txt is still a symlink after rollback")
	}
	if content, _ := fsops.ReadFile("/a/f.txt"); string(content) != "original bytes of f.txt" {
		t.Errorf("/a/f.txt content = %q after rollback", content)
	}
}

func TestExecutor_HardlinkCrossDevice(t *testing.T) {
	fsops := newPairFS("f.txt")
	fsops.SetDevice("/b", 2)
	before := userTree(fsops)
	h := newHarness(t, fsops)

	sum := h.run(t, record(3, "f.txt", "HARDLINK_DUPLICATE"))

	assertTreeEqual(t, userTree(fsops), before)
	if n := len(backupFiles(h)); n != 0 {
		t.Errorf("session has %d backups, want 0", n)
	}
	if len(h.entries(t)) != 0 {
		t.Error("ledger has entries for a skipped row")
	}
	if sum.Skipped != 1 || sum.Errored != 0 || sum.Processed != 0 {
		t.Errorf("summary = %+v, want one skip and no errors", sum)
	}
}

func TestExecutor_Hardlink(t *testing.T) {
	fsops := newPairFS("f.txt")
	h := newHarness(t, fsops)

	sum := h.run(t, record(3, "f.txt", "HARDLINK_DUPLICATE"))

	same, err := fsops.SameFile("/a/f.txt", "/b/f.txt")
	if err != nil {
		t.Fatalf("SameFile() error = %v", err)
	}
	if !same {
		t.Error("/b/f.txt is not a hard link to /a/f.txt")
	}
	if sum.HardlinksCreated != 1 || sum.Processed != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if len(fsops.List("/b")) != 1 {
		t.Errorf("/b contains %v, want only f.txt", fsops.List("/b"))
	}
}

func TestExecutor_RoundTrip(t *testing.T) {
	actions := []string{
		"DELETE_ORIGINAL",
		"DELETE_DUPLICATE",
		"DELETE_BOTH",
		"SOFTLINK_ORIGINAL",
		"SOFTLINK_DUPLICATE",
		"HARDLINK_ORIGINAL",
		"HARDLINK_DUPLICATE",
	}

	for _, action := range actions {
		t.Run(action, func(t *testing.T) {
			fsops := newPairFS("f.txt")
			before := userTree(fsops)
			h := newHarness(t, fsops)

			sum := h.run(t, record(3, "f.txt", action))
			if sum.Processed != 1 {
				t.Fatalf("summary = %+v, want row applied", sum)
			}

			rsum, err := h.rollbackRunner(false).Run(t.Context(), dupx.RollbackFilter{})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if rsum.Failed != 0 {
				t.Fatalf("rollback summary = %+v", rsum)
			}

			assertTreeEqual(t, userTree(fsops), before)
		})
	}

	t.Run("whole table", func(t *testing.T) {
		names := []string{"1.txt", "2.txt", "3.txt", "4.txt", "5.txt", "6.txt", "7.txt"}
		fsops := newPairFS(names...)
		before := userTree(fsops)
		h := newHarness(t, fsops)

		var recs []dupx.DecisionRecord
		for i, action := range actions {
			recs = append(recs, record(i+3, names[i], action))
		}
		sum := h.run(t, recs...)
		if sum.Processed != len(actions) {
			t.Fatalf("summary = %+v", sum)
		}
		if sum.FilesDeleted != 4 || sum.SoftlinksCreated != 2 || sum.HardlinksCreated != 2 {
			t.Errorf("per-kind counts = %d/%d/%d, want 4/2/2", sum.FilesDeleted, sum.SoftlinksCreated, sum.HardlinksCreated)
		}

		if _, err := h.rollbackRunner(false).Run(t.Context(), dupx.RollbackFilter{}); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		assertTreeEqual(t, userTree(fsops), before)
	})
}

func TestExecutor_InertActions(t *testing.T) {
	for _, action := range []string{"", "REVIEW_NEEDED", "KEEP_BOTH", "delete_duplicate"} {
		t.Run("action "+action, func(t *testing.T) {
			fsops := newPairFS("f.txt")
			before := userTree(fsops)
			h := newHarness(t, fsops)

			sum := h.run(t, record(3, "f.txt", action))

			if sum.Skipped != 1 || sum.Total != 1 || sum.Errored != 0 {
				t.Errorf("summary = %+v, want exactly one skip", sum)
			}
			assertTreeEqual(t, userTree(fsops), before)
			if n := len(backupFiles(h)); n != 0 {
				t.Errorf("session has %d backups, want 0", n)
			}
		})
	}
}

func TestExecutor_DryRun(t *testing.T) {
	names := []string{"1.txt", "2.txt", "3.txt", "4.txt", "5.txt", "6.txt", "7.txt"}
	actions := []string{"DELETE_ORIGINAL", "DELETE_DUPLICATE", "DELETE_BOTH", "SOFTLINK_ORIGINAL", "SOFTLINK_DUPLICATE", "HARDLINK_ORIGINAL", "HARDLINK_DUPLICATE"}
	fsops := newPairFS(names...)
	before := fsops.Snapshot()
	h := newHarness(t, fsops, withDryRun())

	var recs []dupx.DecisionRecord
	for i, action := range actions {
		recs = append(recs, record(i+3, names[i], action))
	}
	sum := h.run(t, recs...)

	assertTreeEqual(t, fsops.Snapshot(), before)

	if !sum.DryRun {
		t.Error("summary not marked as dry run")
	}
	if sum.Processed != len(actions) {
		t.Errorf("Processed = %d, want %d", sum.Processed, len(actions))
	}

	entries := h.entries(t)
	if len(entries) != len(actions)+1 {
		t.Fatalf("preview has %d entries, want %d", len(entries), len(actions)+1)
	}
	for _, e := range entries {
		if !e.DryRun {
			t.Errorf("entry %s not marked as dry run", e.OperationID)
		}
		if e.BackupChecksum != "" {
			t.Errorf("entry %s has checksum in dry run", e.OperationID)
		}
		if e.RestoreSource == "" {
			t.Errorf("entry %s has no planned backup path", e.OperationID)
		}
	}
}

func TestExecutor_DryRunStillValidates(t *testing.T) {
	fsops := newPairFS("f.txt")
	h := newHarness(t, fsops, withDryRun())

	sum := h.run(t, record(3, "missing.txt", "DELETE_DUPLICATE"))

	if sum.Errored != 1 {
		t.Errorf("summary = %+v, want validation error", sum)
	}
}

func TestExecutor_Idempotence(t *testing.T) {
	names := []string{"1.txt", "2.txt", "3.txt", "4.txt", "5.txt", "6.txt", "7.txt"}
	actions := []string{"DELETE_ORIGINAL", "DELETE_DUPLICATE", "DELETE_BOTH", "SOFTLINK_ORIGINAL", "SOFTLINK_DUPLICATE", "HARDLINK_ORIGINAL", "HARDLINK_DUPLICATE"}
	fsops := newPairFS(names...)

	var recs []dupx.DecisionRecord
	for i, action := range actions {
		recs = append(recs, record(i+3, names[i], action))
	}

	first := newHarness(t, fsops)
	if sum := first.run(t, recs...); sum.Processed != len(actions) {
		t.Fatalf("first run summary = %+v", sum)
	}
	afterFirst := userTree(fsops)

	second := newHarness(t, fsops)
	outcomes := make([]dupx.Outcome, 0, len(recs))
	for _, r := range recs {
		out, err := second.exec.Process(r)
		if err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		outcomes = append(outcomes, out)
	}

	for _, out := range outcomes {
		var verr *dupx.ValidationError
		if out.State != dupx.StateFailed || !errors.As(out.Err, &verr) {
			t.Errorf("row %d (%s): state %s err %v, want ValidationError", out.Row, out.Action, out.State, out.Err)
		}
	}
	assertTreeEqual(t, userTree(fsops), afterFirst)
	if len(second.entries(t)) != 0 {
		t.Error("second run wrote ledger entries")
	}
}

func TestExecutor_ValidationFailures(t *testing.T) {
	t.Run("missing duplicate", func(t *testing.T) {
		fsops := newPairFS("f.txt")
		fsops.Remove("/b/f.txt")
		h := newHarness(t, fsops)
		out, _ := h.exec.Process(record(3, "f.txt", "DELETE_ORIGINAL"))
		assertValidationFailure(t, out)
		if !fsops.Exists("/a/f.txt") {
			t.Error("/a/f.txt was removed although validation failed")
		}
	})

	t.Run("read-only directory", func(t *testing.T) {
		fsops := newPairFS("f.txt")
		fsops.SetReadOnly("/b", true)
		h := newHarness(t, fsops)
		out, _ := h.exec.Process(record(3, "f.txt", "DELETE_DUPLICATE"))
		assertValidationFailure(t, out)
		if n := len(backupFiles(h)); n != 0 {
			t.Errorf("session has %d backups, want 0", n)
		}
	})

	t.Run("protected path", func(t *testing.T) {
		fsops := newPairFS("f.txt")
		h := newHarness(t, fsops, withProtected("/b"))
		out, _ := h.exec.Process(record(3, "f.txt", "DELETE_DUPLICATE"))
		assertValidationFailure(t, out)
		if !fsops.Exists("/b/f.txt") {
			t.Error("protected file was removed")
		}
	})
}

func assertValidationFailure(t *testing.T, out dupx.Outcome) {
	t.Helper()
	var verr *dupx.ValidationError
	if out.State != dupx.StateFailed || !errors.As(out.Err, &verr) {
		t.Errorf("outcome = %s / %v, want FAILED with ValidationError", out.State, out.Err)
	}
}

func TestExecutor_BackupFailure(t *testing.T) {
	fsops := newPairFS("f.txt")
	fsops.FailOn("open", "/b/f.txt", errors.New("input/output error"))
	before := userTree(fsops)
	h := newHarness(t, fsops)

	out, err := h.exec.Process(record(3, "f.txt", "DELETE_DUPLICATE"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	var berr *dupx.BackupError
	if out.State != dupx.StateFailed || !errors.As(out.Err, &berr) {
		t.Fatalf("outcome = %s / %v, want FAILED with BackupError", out.State, out.Err)
	}
	assertTreeEqual(t, userTree(fsops), before)
	if len(h.entries(t)) != 0 {
		t.Error("ledger has entries after backup failure")
	}
}

func TestExecutor_BackupFailureDiscardsEarlierBackups(t *testing.T) {
	fsops := newPairFS("f.txt")
	fsops.FailOn("open", "/b/f.txt", errors.New("input/output error"))
	before := userTree(fsops)
	h := newHarness(t, fsops)

	out, err := h.exec.Process(record(3, "f.txt", "DELETE_BOTH"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	var berr *dupx.BackupError
	if !errors.As(out.Err, &berr) || berr.Path != "/b/f.txt" {
		t.Fatalf("error = %v, want BackupError for /b/f.txt", out.Err)
	}
	assertTreeEqual(t, userTree(fsops), before)
	if files := backupFiles(h); len(files) != 0 {
		t.Errorf("session still holds %v", files)
	}
}

func TestExecutor_MutationFailure(t *testing.T) {
	t.Run("delete fails and file is intact", func(t *testing.T) {
		fsops := newPairFS("f.txt")
		fsops.FailOn("remove", "/b/f.txt", errors.New("device busy"))
		before := userTree(fsops)
		h := newHarness(t, fsops)

		out, _ := h.exec.Process(record(3, "f.txt", "DELETE_DUPLICATE"))

		var merr *dupx.MutationError
		if !errors.As(out.Err, &merr) {
			t.Fatalf("error = %v, want MutationError", out.Err)
		}
		if !merr.Restored {
			t.Error("Restored = false")
		}
		assertTreeEqual(t, userTree(fsops), before)
		if files := backupFiles(h); len(files) != 0 {
			t.Errorf("session still holds %v", files)
		}
	})

	t.Run("link rename fails and no temp file remains", func(t *testing.T) {
		fsops := newPairFS("f.txt")
		fsops.FailOn("rename", "/a/f.txt", errors.New("permission denied"))
		before := userTree(fsops)
		h := newHarness(t, fsops)

		out, _ := h.exec.Process(record(3, "f.txt", "SOFTLINK_ORIGINAL"))

		var merr *dupx.MutationError
		if out.State != dupx.StateFailed || !errors.As(out.Err, &merr) {
			t.Fatalf("outcome = %s / %v, want FAILED with MutationError", out.State, out.Err)
		}
		assertTreeEqual(t, userTree(fsops), before)
	})
}

func TestExecutor_DeleteBothPartial(t *testing.T) {
	fsops := newPairFS("f.txt")
	fsops.FailOn("remove", "/b/f.txt", errors.New("device busy"))
	h := newHarness(t, fsops)

	sum := h.run(t, record(3, "f.txt", "DELETE_BOTH"))

	if fsops.Exists("/a/f.txt") {
		t.Error("first deletion was reverted")
	}
	if !fsops.Exists("/b/f.txt") {
		t.Error("/b/f.txt was removed")
	}
	entries := h.entries(t)
	if len(entries) != 1 || entries[0].TargetPath != "/a/f.txt" {
		t.Fatalf("ledger = %+v, want one entry for /a/f.txt", entries)
	}
	if files := backupFiles(h); len(files) != 1 || files[0] != entries[0].RestoreSource {
		t.Errorf("session holds %v, want only %s", files, entries[0].RestoreSource)
	}
	if sum.Errored != 1 || sum.Partial != 1 || sum.FilesDeleted != 1 || sum.Processed != 0 {
		t.Errorf("summary = %+v", sum)
	}

	// The applied half can still be rolled back.
	fsops.ClearFailures()
	if _, err := h.rollbackRunner(false).Run(t.Context(), dupx.RollbackFilter{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if content, _ := fsops.ReadFile("/a/f.txt"); string(content) != "original bytes of f.txt" {
		t.Errorf("/a/f.txt = %q after rollback", content)
	}
}

func TestExecutor_LedgerFailureAbortsRun(t *testing.T) {
	fsops := newPairFS("1.txt", "2.txt")
	before := userTree(fsops)
	h := newHarness(t, fsops, withLedger(func(l dupx.Ledger) dupx.Ledger {
		return &failingLedger{Ledger: l, n: 0}
	}))

	sum, err := h.exec.Execute(t.Context(), seqOf(
		record(3, "1.txt", "DELETE_DUPLICATE"),
		record(4, "2.txt", "DELETE_DUPLICATE"),
	))

	if !errors.Is(err, dupx.ErrLedgerWrite) {
		t.Fatalf("Execute() error = %v, want ErrLedgerWrite", err)
	}
	assertTreeEqual(t, userTree(fsops), before)
	if sum.Total != 1 || sum.Errored != 1 {
		t.Errorf("summary = %+v, want the run to stop after the first row", sum)
	}
}

func TestExecutor_ParseErrorsAreSkipped(t *testing.T) {
	fsops := newPairFS("f.txt")
	h := newHarness(t, fsops)

	seq := func(yield func(dupx.DecisionRecord, error) bool) {
		if !yield(dupx.DecisionRecord{}, &dupx.ParseError{Row: 3, Reason: "expected at least 10 columns, got 4"}) {
			return
		}
		yield(record(4, "f.txt", "DELETE_DUPLICATE"), nil)
	}

	sum, err := h.exec.Execute(t.Context(), seq)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if sum.Total != 2 || sum.Skipped != 1 || sum.Processed != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestExecutor_ReadErrorAbortsRun(t *testing.T) {
	h := newHarness(t, newPairFS("f.txt"))
	var seq iter.Seq2[dupx.DecisionRecord, error] = func(yield func(dupx.DecisionRecord, error) bool) {
		yield(dupx.DecisionRecord{}, errors.New("read failed"))
	}

	if _, err := h.exec.Execute(t.Context(), seq); err == nil {
		t.Error("Execute() expected error")
	}
}

func TestExecutor_Cancelled(t *testing.T) {
	fsops := newPairFS("f.txt")
	h := newHarness(t, fsops)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := h.exec.Execute(ctx, seqOf(record(3, "f.txt", "DELETE_DUPLICATE")))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
	if !fsops.Exists("/b/f.txt") {
		t.Error("row processed after cancellation")
	}
}
