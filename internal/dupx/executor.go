package dupx

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"path/filepath"
)

// ErrLedgerWrite is returned when an applied mutation could not be recorded.
// The run stops because later mutations would no longer be reversible.
var ErrLedgerWrite = errors.New("writing rollback ledger")

// ExecuteOptions configures an Executor.
type ExecuteOptions struct {
	SessionID string
	DryRun    bool
}

// Executor drives each decision record through
// PENDING -> VALIDATED -> BACKED_UP -> APPLIED, or to FAILED / SKIPPED.
type Executor struct {
	fsops     FileOps
	validator *Validator
	backups   BackupManager
	ledger    Ledger
	logger    Logger
	clock     Clock
	ids       IDGenerator
	opts      ExecuteOptions
}

// NewExecutor creates an Executor. In dry-run mode ledger should be an
// in-memory ledger; entries appended to it are marked as a preview.
func NewExecutor(fsops FileOps, validator *Validator, backups BackupManager, ledger Ledger, logger Logger, clock Clock, ids IDGenerator, opts ExecuteOptions) *Executor {
	return &Executor{
		fsops:     fsops,
		validator: validator,
		backups:   backups,
		ledger:    ledger,
		logger:    logger,
		clock:     clock,
		ids:       ids,
		opts:      opts,
	}
}

// Execute processes records in order and returns the run summary.
// Per-row failures are counted and never stop the run. A non-nil error means
// the run was aborted; the summary still reflects every row seen so far.
func (e *Executor) Execute(ctx context.Context, records iter.Seq2[DecisionRecord, error]) (RunSummary, error) {
	rep := NewReporter(e.opts.DryRun)

	for rec, err := range records {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return rep.Summary(), fmt.Errorf("run interrupted: %w", ctxErr)
		}
		if err != nil {
			var perr *ParseError
			if !errors.As(err, &perr) {
				return rep.Summary(), fmt.Errorf("reading decision table: %w", err)
			}
			e.logger.Warn("skipping malformed row", "row", perr.Row, "reason", perr.Error())
			rep.RecordParseError()
			continue
		}

		out, err := e.Process(rec)
		rep.Record(out)
		if err != nil {
			return rep.Summary(), err
		}
	}

	return rep.Summary(), nil
}

// Process runs a single record to a terminal state. The returned error is
// non-nil only for conditions that must abort the whole run.
func (e *Executor) Process(rec DecisionRecord) (Outcome, error) {
	action, ok := ParseAction(rec.Action)
	if !ok {
		if rec.Action == "" || Action(rec.Action) == ActionReviewNeeded {
			e.logger.Info("no action", "row", rec.Row, "action", rec.Action)
		} else {
			e.logger.Warn("unrecognized action", "row", rec.Row, "action", rec.Action)
		}
		return Outcome{Row: rec.Row, Action: Action(rec.Action), State: StateSkipped}, nil
	}

	out := Outcome{Row: rec.Row, Action: action, State: StatePending}

	if err := e.validator.Validate(rec, action); err != nil {
		out.Err = err
		if isSkip(err) {
			out.State = StateSkipped
			e.logger.Warn("skipping row", "row", rec.Row, "action", action, "reason", err.Error())
		} else {
			out.State = StateFailed
			e.logger.Error("validation failed", "row", rec.Row, "action", action, "error", err.Error())
		}
		return out, nil
	}
	out.State = StateValidated

	steps := rec.plan(action)
	backups := make([]BackupEntry, len(steps))
	for i, st := range steps {
		b, err := e.backups.Backup(st.target, st.kind)
		if err != nil {
			e.discard(rec.Row, backups[:i])
			out.State = StateFailed
			out.Err = &BackupError{Row: rec.Row, Path: st.target, Err: err}
			e.logger.Error("backup failed", "row", rec.Row, "path", st.target, "error", err.Error())
			return out, nil
		}
		backups[i] = b
		e.logger.Debug("backed up", "row", rec.Row, "path", st.target, "backup", b.BackupPath, "dry_run", b.DryRun)
	}
	out.State = StateBackedUp

	for i, st := range steps {
		if err := e.apply(st); err != nil {
			restored := e.restoreAfterFailure(st, backups[i])
			e.discard(rec.Row, unused(backups, i, restored))
			out.State = StateFailed
			out.Partial = i > 0
			out.Err = &MutationError{Row: rec.Row, Path: st.target, Op: string(st.kind), Err: err, Restored: restored}
			e.logger.Error("mutation failed", "row", rec.Row, "path", st.target, "error", out.Err.Error())
			return out, nil
		}

		entry := RollbackEntry{
			OperationID:    e.ids.New(),
			SessionID:      e.opts.SessionID,
			Row:            rec.Row,
			Action:         action,
			Kind:           st.kind,
			TargetPath:     st.target,
			LinkTarget:     st.linkTarget,
			RestoreSource:  backups[i].BackupPath,
			BackupChecksum: backups[i].Checksum,
			Timestamp:      e.clock.Now().UTC(),
			DryRun:         e.opts.DryRun,
		}
		if err := e.ledger.Append(entry); err != nil {
			restored := e.undo(st, backups[i])
			e.discard(rec.Row, unused(backups, i, restored))
			out.State = StateFailed
			out.Partial = i > 0
			out.Err = &MutationError{Row: rec.Row, Path: st.target, Op: "record", Err: err, Restored: restored}
			e.logger.Error("ledger append failed, aborting run", "row", rec.Row, "path", st.target, "error", err.Error())
			return out, fmt.Errorf("%w: row %d: %v", ErrLedgerWrite, rec.Row, err)
		}
		out.Applied = append(out.Applied, entry)

		if e.opts.DryRun {
			e.logger.Info("dry run: would apply", "row", rec.Row, "op", st.kind, "path", st.target, "link_target", st.linkTarget, "backup", entry.RestoreSource)
		} else {
			e.logger.Success("applied", "row", rec.Row, "op", st.kind, "path", st.target, "link_target", st.linkTarget, "backup", entry.RestoreSource)
		}
	}

	out.State = StateApplied
	return out, nil
}

// apply performs the filesystem primitive for a step.
func (e *Executor) apply(st step) error {
	if e.opts.DryRun {
		return nil
	}
	switch st.kind {
	case KindDelete:
		return e.fsops.Remove(st.target)
	case KindSoftlink:
		return e.replaceWith(st.target, func(tmp string) error {
			return e.fsops.Symlink(st.linkTarget, tmp)
		})
	case KindHardlink:
		return e.replaceWith(st.target, func(tmp string) error {
			return e.fsops.Link(st.linkTarget, tmp)
		})
	}
	return fmt.Errorf("unknown operation kind %q", st.kind)
}

// replaceWith creates the new link beside target and renames it over target,
// so target is never missing.
func (e *Executor) replaceWith(target string, create func(tmp string) error) error {
	tmp := filepath.Join(filepath.Dir(target), ".dupx-"+e.ids.New()+".tmp")
	if err := create(tmp); err != nil {
		return err
	}
	if err := e.fsops.Rename(tmp, target); err != nil {
		e.fsops.Remove(tmp)
		return err
	}
	return nil
}

// restoreAfterFailure puts the backup back if a failed primitive left target
// missing or replaced. It reports whether target holds the original content.
func (e *Executor) restoreAfterFailure(st step, b BackupEntry) bool {
	if e.opts.DryRun {
		return true
	}
	if info, err := e.fsops.Lstat(st.target); err == nil && info.Mode().IsRegular() {
		return true
	}
	if err := e.backups.Restore(b, st.target); err != nil {
		e.logger.Error("restore after failed mutation", "path", st.target, "backup", b.BackupPath, "error", err.Error())
		return false
	}
	return true
}

// undo reverts an applied step whose ledger entry could not be written.
func (e *Executor) undo(st step, b BackupEntry) bool {
	if e.opts.DryRun {
		return true
	}
	if err := e.backups.Restore(b, st.target); err != nil {
		e.logger.Error("undoing unrecorded mutation", "path", st.target, "backup", b.BackupPath, "error", err.Error())
		return false
	}
	return true
}

// unused returns the backups of a row that failed at step i. The backup of
// step i is kept unless its target was put back.
func unused(backups []BackupEntry, i int, restored bool) []BackupEntry {
	if restored {
		return backups[i:]
	}
	return backups[i+1:]
}

// discard removes backups that no applied step depends on.
func (e *Executor) discard(row int, backups []BackupEntry) {
	for _, b := range backups {
		if err := e.backups.Discard(b); err != nil {
			e.logger.Warn("removing unused backup", "row", row, "backup", b.BackupPath, "error", err.Error())
		}
	}
}
