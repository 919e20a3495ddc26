package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"dupx-go/internal/app"
	"dupx-go/internal/config"
	"dupx-go/internal/dupx"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Exit codes.
const (
	exitOK        = 0
	exitFatal     = 1
	exitRowErrors = 2
)

// exitError carries the process exit code for a finished command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// exitCode maps a command error to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitFatal
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		var ee *exitError
		if !errors.As(err, &ee) || ee.err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(exitCode(err))
	}
}

// loadConfig reads the config file, falling back to defaults when it does not exist.
func loadConfig() (*config.Config, map[string]string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.Load(defaults["config_path"], defaults["base_dir"])
	if err != nil {
		return nil, nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults, nil
}

// newApp reads the config and creates a DupxApp. The caller must defer app.Close().
func newApp(command string, verbose bool) (*app.DupxApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewDupxApp(cfg, command, app.Options{Verbose: verbose})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:           "dupx",
	Short:         "Apply duplicate-file decisions with backups and rollback",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// execute command
var executeCmd = &cobra.Command{
	Use:   "execute DECISION_TABLE",
	Short: "Apply the actions of a decision table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		verbose, _ := cmd.Flags().GetBool("verbose")
		yes, _ := cmd.Flags().GetBool("yes")

		if !dryRun && !yes && term.IsTerminal(int(os.Stdin.Fd())) {
			ok, err := confirm(os.Stdin, cmd.OutOrStdout(), fmt.Sprintf("Apply decisions from %s? Files will be deleted or replaced by links.", args[0]))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return &exitError{code: exitFatal}
			}
		}

		a, err := newApp("execute", verbose)
		if err != nil {
			return err
		}
		defer a.Close()

		res, runErr := a.Execute(cmd.Context(), args[0], dryRun)
		printExecuteResult(cmd.OutOrStdout(), a.Session(), res)

		switch {
		case runErr != nil:
			return &exitError{code: exitFatal, err: runErr}
		case res.Summary.Errored > 0:
			return &exitError{code: exitRowErrors}
		}
		return nil
	},
}

// rollback command
var rollbackCmd = &cobra.Command{
	Use:   "rollback LEDGER",
	Short: "Revert the operations recorded in a rollback ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		verbose, _ := cmd.Flags().GetBool("verbose")
		types, _ := cmd.Flags().GetStringArray("operation-type")
		after, _ := cmd.Flags().GetString("after")
		before, _ := cmd.Flags().GetString("before")

		filter, err := buildFilter(types, after, before)
		if err != nil {
			return err
		}

		a, err := newApp("rollback", verbose)
		if err != nil {
			return err
		}
		defer a.Close()

		res, runErr := a.Rollback(cmd.Context(), args[0], filter, dryRun)
		printRollbackSummary(cmd.OutOrStdout(), res)

		switch {
		case runErr != nil:
			return &exitError{code: exitFatal, err: runErr}
		case res.Summary.Failed > 0:
			return &exitError{code: exitRowErrors}
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View recorded runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("history", false)
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}

		for _, r := range runs {
			duration := ""
			if r.FinishedAt != nil {
				duration = r.FinishedAt.Sub(r.StartedAt).Truncate(time.Millisecond).String()
			}
			mode := ""
			if r.DryRun {
				mode = " (dry run)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "#%d  %-8s  %s  %-8s  %3d/%3d/%3d/%3d  %s  %s%s\n",
				r.ID,
				r.Command,
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Status,
				r.Total, r.Processed, r.Skipped, r.Errored,
				duration,
				r.InputPath,
				mode,
			)
		}
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Configuration initialized at %s\n", defaults["config_path"])
		fmt.Fprintf(cmd.OutOrStdout(), "Base Dir: %s\n", cfg.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, defaults, err := loadConfig()
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Configuration from %s:\n\n", defaults["config_path"])
		fmt.Fprintf(w, "Base Dir:     %s\n", cfg.BaseDir)
		fmt.Fprintf(w, "Log Dir:      %s\n", cfg.LogDir)
		fmt.Fprintf(w, "Backup Dir:   %s\n", cfg.BackupDir)
		fmt.Fprintf(w, "Ledger Dir:   %s\n", cfg.LedgerDir)
		fmt.Fprintf(w, "Database:     %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Fprintf(w, "Delimiter:    %s\n", cfg.DecisionTable.Delimiter)
		fmt.Fprintf(w, "Protect:      %s\n", strings.Join(cfg.Filesystem.Protect, ", "))
		if cfg.Filesystem.ProtectFile != "" {
			fmt.Fprintf(w, "Protect File: %s\n", cfg.Filesystem.ProtectFile)
		}
		return nil
	},
}

// validTypes lists the accepted --operation-type values.
var validTypes = []string{
	string(dupx.KindDelete), string(dupx.KindSoftlink), string(dupx.KindHardlink),
	string(dupx.ActionDeleteOriginal), string(dupx.ActionDeleteDuplicate), string(dupx.ActionDeleteBoth),
	string(dupx.ActionSoftlinkOriginal), string(dupx.ActionSoftlinkDuplicate),
	string(dupx.ActionHardlinkOriginal), string(dupx.ActionHardlinkDuplicate),
}

// buildFilter validates the rollback selection flags.
func buildFilter(types []string, after, before string) (dupx.RollbackFilter, error) {
	var f dupx.RollbackFilter
	for _, t := range types {
		if !slices.Contains(validTypes, t) {
			return f, fmt.Errorf("invalid --operation-type %q: want one of %s", t, strings.Join(validTypes, ", "))
		}
		f.Types = append(f.Types, t)
	}

	var err error
	if after != "" {
		if f.After, err = dupx.ParseTimeBound(after); err != nil {
			return f, fmt.Errorf("--after: %w", err)
		}
	}
	if before != "" {
		if f.Before, err = dupx.ParseTimeBound(before); err != nil {
			return f, fmt.Errorf("--before: %w", err)
		}
	}
	if !f.After.IsZero() && !f.Before.IsZero() && f.Before.Before(f.After) {
		return f, fmt.Errorf("--before %s is earlier than --after %s", before, after)
	}
	return f, nil
}

// confirm asks a yes/no question and reports whether the answer was yes.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("reading answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func init() {
	// execute
	rootCmd.AddCommand(executeCmd)
	executeCmd.Flags().Bool("dry-run", false, "Validate and report without changing anything")
	executeCmd.Flags().BoolP("verbose", "v", false, "Show INFO messages")
	executeCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")

	// rollback
	rootCmd.AddCommand(rollbackCmd)
	rollbackCmd.Flags().Bool("dry-run", false, "Report what would be restored without changing anything")
	rollbackCmd.Flags().BoolP("verbose", "v", false, "Show INFO messages")
	rollbackCmd.Flags().StringArrayP("operation-type", "t", nil, "Only revert this operation kind or action (repeatable)")
	rollbackCmd.Flags().String("after", "", "Only revert operations at or after this time (UTC unless a zone is given)")
	rollbackCmd.Flags().String("before", "", "Only revert operations at or before this time (UTC unless a zone is given)")

	// history
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	rootCmd.AddCommand(configCmd)
}
