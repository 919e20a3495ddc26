package dupx

import "maps"

// State is a position in the per-record state machine.
type State int

const (
	StatePending State = iota
	StateValidated
	StateBackedUp
	StateApplied
	StateFailed
	StateSkipped
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateValidated:
		return "VALIDATED"
	case StateBackedUp:
		return "BACKED_UP"
	case StateApplied:
		return "APPLIED"
	case StateFailed:
		return "FAILED"
	case StateSkipped:
		return "SKIPPED"
	}
	return "UNKNOWN"
}

// Outcome is the terminal result of processing one decision table row.
type Outcome struct {
	Row     int
	Action  Action
	State   State
	Err     error
	Partial bool // DELETE_BOTH removed the first file but not the second
	Applied []RollbackEntry
}

// RunSummary is the immutable result of an execute run.
type RunSummary struct {
	Total            int
	Processed        int
	Skipped          int
	Errored          int
	Partial          int
	ByAction         map[Action]int
	FilesDeleted     int
	SoftlinksCreated int
	HardlinksCreated int
	DryRun           bool
}

// RollbackSummary is the immutable result of a rollback run.
type RollbackSummary struct {
	Total    int
	Restored int
	Failed   int
	Skipped  int
	DryRun   bool
}

// Reporter aggregates outcomes into a RunSummary. It has no side effects
// beyond counting.
type Reporter struct {
	s RunSummary
}

// NewReporter creates an empty Reporter.
func NewReporter(dryRun bool) *Reporter {
	return &Reporter{s: RunSummary{ByAction: make(map[Action]int), DryRun: dryRun}}
}

// RecordParseError counts a row rejected by the loader.
func (r *Reporter) RecordParseError() {
	r.s.Total++
	r.s.Skipped++
}

// Record counts a terminal outcome.
func (r *Reporter) Record(o Outcome) {
	r.s.Total++
	switch o.State {
	case StateApplied:
		r.s.Processed++
		r.s.ByAction[o.Action]++
	case StateSkipped:
		r.s.Skipped++
	case StateFailed:
		r.s.Errored++
		if o.Partial {
			r.s.Partial++
		}
	}
	for _, e := range o.Applied {
		switch e.Kind {
		case KindDelete:
			r.s.FilesDeleted++
		case KindSoftlink:
			r.s.SoftlinksCreated++
		case KindHardlink:
			r.s.HardlinksCreated++
		}
	}
}

// Summary returns a copy of the current counts.
func (r *Reporter) Summary() RunSummary {
	s := r.s
	s.ByAction = maps.Clone(r.s.ByAction)
	return s
}
