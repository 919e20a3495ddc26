package dupx

import "time"

// Run statuses stored in the history.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusPartial = "partial"
	RunStatusError   = "error"
)

// RunRecord is one execute or rollback invocation in the run history.
type RunRecord struct {
	ID         int64
	Command    string
	StartedAt  time.Time
	FinishedAt *time.Time
	DryRun     bool
	InputPath  string
	SessionDir string
	LedgerPath string
	Status     string
	Total      int
	Processed  int
	Skipped    int
	Errored    int
}

// RunHistory persists the run history.
type RunHistory interface {
	// CreateRun inserts a run and returns its id.
	CreateRun(run *RunRecord) (int64, error)

	// FinishRun records the outcome of a run.
	FinishRun(run *RunRecord) error

	// ListRuns returns the most recent runs, newest first.
	ListRuns(limit int) ([]*RunRecord, error)

	// CheckMigrations verifies the schema is up to date.
	CheckMigrations() error

	Close() error
}
