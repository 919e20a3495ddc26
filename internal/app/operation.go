package app

import (
	"time"

	"dupx-go/internal/dupx"
)

// RunOperation tracks the CLI run being recorded in the history.
// Operations are created in memory with ID=0. Only execute and rollback
// persist them (giving them an auto-increment ID from the database).
type RunOperation struct {
	Record *dupx.RunRecord
}

// NewRunOperation creates a new in-memory run operation.
func NewRunOperation(command, inputPath string, dryRun bool, startedAt time.Time) *RunOperation {
	return &RunOperation{Record: &dupx.RunRecord{
		Command:   command,
		StartedAt: startedAt.UTC(),
		DryRun:    dryRun,
		InputPath: inputPath,
		Status:    dupx.RunStatusRunning,
	}}
}

// Persisted returns true if this operation has been saved to the database.
func (op *RunOperation) Persisted() bool {
	return op.Record.ID != 0
}

// CompleteExecute copies the counts of an execute run and sets the final status.
func (op *RunOperation) CompleteExecute(sum dupx.RunSummary, err error) {
	op.Record.Total = sum.Total
	op.Record.Processed = sum.Processed
	op.Record.Skipped = sum.Skipped
	op.Record.Errored = sum.Errored
	op.Record.Status = runStatus(sum.Errored, err)
}

// CompleteRollback copies the counts of a rollback run and sets the final status.
func (op *RunOperation) CompleteRollback(sum dupx.RollbackSummary, err error) {
	op.Record.Total = sum.Total
	op.Record.Processed = sum.Restored
	op.Record.Skipped = sum.Skipped
	op.Record.Errored = sum.Failed
	op.Record.Status = runStatus(sum.Failed, err)
}

// Fail marks the operation as aborted before any row was processed.
func (op *RunOperation) Fail() {
	op.Record.Status = dupx.RunStatusError
}

func runStatus(errored int, err error) string {
	switch {
	case err != nil:
		return dupx.RunStatusError
	case errored > 0:
		return dupx.RunStatusPartial
	default:
		return dupx.RunStatusSuccess
	}
}
