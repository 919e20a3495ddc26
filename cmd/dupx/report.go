package main

import (
	"fmt"
	"io"

	"dupx-go/internal/app"
	"dupx-go/internal/dupx"
)

// actionOrder is the order actions are listed in the summary.
var actionOrder = []dupx.Action{
	dupx.ActionDeleteOriginal,
	dupx.ActionDeleteDuplicate,
	dupx.ActionDeleteBoth,
	dupx.ActionSoftlinkOriginal,
	dupx.ActionSoftlinkDuplicate,
	dupx.ActionHardlinkOriginal,
	dupx.ActionHardlinkDuplicate,
}

// printExecuteResult prints the planned operations of a dry run followed by
// the run summary.
func printExecuteResult(w io.Writer, session string, res *app.ExecuteResult) {
	if res.Summary.DryRun {
		printPreview(w, res.Preview)
	}
	printRunSummary(w, session, res)
}

func printRunSummary(w io.Writer, session string, res *app.ExecuteResult) {
	s := res.Summary
	title := "Execution summary"
	if s.DryRun {
		title += " (dry run, nothing was changed)"
	}
	fmt.Fprintf(w, "\n%s\n", title)
	fmt.Fprintf(w, "  Session:    %s\n", session)
	fmt.Fprintf(w, "  Rows:       %d\n", s.Total)
	fmt.Fprintf(w, "  Processed:  %d\n", s.Processed)
	fmt.Fprintf(w, "  Skipped:    %d\n", s.Skipped)
	fmt.Fprintf(w, "  Errors:     %d\n", s.Errored)
	if s.Partial > 0 {
		fmt.Fprintf(w, "  Partial:    %d\n", s.Partial)
	}

	for _, a := range actionOrder {
		if n := s.ByAction[a]; n > 0 {
			fmt.Fprintf(w, "    %-20s %d\n", a, n)
		}
	}

	fmt.Fprintf(w, "  Deleted:    %d files\n", s.FilesDeleted)
	fmt.Fprintf(w, "  Softlinks:  %d\n", s.SoftlinksCreated)
	fmt.Fprintf(w, "  Hardlinks:  %d\n", s.HardlinksCreated)

	if !s.DryRun {
		if res.SessionDir != "" {
			fmt.Fprintf(w, "  Backups:    %s\n", res.SessionDir)
		}
		if res.LedgerPath != "" {
			fmt.Fprintf(w, "  Ledger:     %s\n", res.LedgerPath)
			fmt.Fprintf(w, "\nUndo with: dupx rollback %s\n", res.LedgerPath)
		}
	}
}

func printPreview(w io.Writer, entries []dupx.RollbackEntry) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintln(w, "Planned operations:")
	for _, e := range entries {
		switch e.Kind {
		case dupx.KindDelete:
			fmt.Fprintf(w, "  row %-5d delete    %s\n", e.Row, e.TargetPath)
		default:
			fmt.Fprintf(w, "  row %-5d %-9s %s -> %s\n", e.Row, e.Kind, e.TargetPath, e.LinkTarget)
		}
	}
}

func printRollbackSummary(w io.Writer, res *app.RollbackResult) {
	s := res.Summary
	title := "Rollback summary"
	if s.DryRun {
		title += " (dry run, nothing was changed)"
	}
	fmt.Fprintf(w, "\n%s\n", title)
	fmt.Fprintf(w, "  Ledger:     %s\n", res.LedgerPath)
	fmt.Fprintf(w, "  Selected:   %d\n", s.Total)
	fmt.Fprintf(w, "  Restored:   %d\n", s.Restored)
	fmt.Fprintf(w, "  Skipped:    %d\n", s.Skipped)
	fmt.Fprintf(w, "  Failed:     %d\n", s.Failed)
}

