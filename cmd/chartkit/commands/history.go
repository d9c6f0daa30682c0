package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/chartkit/chartkit/pkg/stores"
)

var errHistoryDisabled = errors.New("run history is disabled: set store_path or CHARTKIT_STORE_PATH")

func openHistory(cmd *cobra.Command, version string) (*app, error) {
	a, err := newApp(cmd.Context(), version, withStore())
	if err != nil {
		return nil, err
	}
	if a.store == nil {
		a.Close()
		return nil, errHistoryDisabled
	}
	return a, nil
}

func newHistoryCommand(version string) *cobra.Command {
	var (
		failedOnly bool
		since      time.Duration
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded generate runs",
		Long: `List generate runs recorded in the run store, newest first.

Run history is kept only when a store path is configured.`,
		Example: `  # Recent runs
  chartkit history

  # Failed runs of the last day
  chartkit history --failed --since 24h

  # One run with its per-file outcomes (a unique ID prefix is enough)
  chartkit history show 3f2a`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openHistory(cmd, version)
			if err != nil {
				return err
			}
			defer a.Close()

			filter := stores.RunFilter{FailedOnly: failedOnly, Limit: limit}
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}
			runs, err := a.store.ListRuns(cmd.Context(), filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "no runs recorded")
				return nil
			}
			for _, run := range runs {
				printRunLine(out, run)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&failedOnly, "failed", false, "only runs with failed documents")
	cmd.Flags().DurationVar(&since, "since", 0, "only runs started within this duration")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs")

	cmd.AddCommand(newHistoryShowCommand(version))
	cmd.AddCommand(newHistoryFileCommand(version))
	cmd.AddCommand(newHistoryPruneCommand(version))

	return cmd
}

func printRunLine(w io.Writer, run *stores.Run) {
	id := run.ID
	if len(id) > 8 {
		id = id[:8]
	}
	fmt.Fprintf(w, "%s  %-14s  %3d ok  %3d failed  %8s  %s\n",
		id,
		humanize.Time(run.StartedAt),
		run.Succeeded,
		run.Failed,
		run.Duration.Round(time.Millisecond),
		strings.Join(run.Paths, " "),
	)
}

func newHistoryShowCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run and its per-file outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openHistory(cmd, version)
			if err != nil {
				return err
			}
			defer a.Close()

			run, err := a.store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, run)
			}
			fmt.Fprintf(out, "run %s\n", run.ID)
			fmt.Fprintf(out, "  started:  %s (%s)\n", run.StartedAt.Local().Format(time.RFC3339), humanize.Time(run.StartedAt))
			fmt.Fprintf(out, "  duration: %s\n", run.Duration.Round(time.Millisecond))
			fmt.Fprintf(out, "  outdir:   %s\n", run.Outdir)
			fmt.Fprintf(out, "  strict:   %t\n", run.Strict)
			fmt.Fprintf(out, "  result:   %d succeeded, %d failed\n", run.Succeeded, run.Failed)
			for _, f := range run.Files {
				printFileLine(out, f)
			}
			return nil
		},
	}
}

func printFileLine(w io.Writer, f *stores.RunFile) {
	status := "ok"
	if !f.Succeeded {
		status = "FAILED"
	}
	fmt.Fprintf(w, "  %-6s %s", status, f.File)
	if f.ChartType != "" {
		fmt.Fprintf(w, " (%s)", f.ChartType)
	}
	if f.Warnings > 0 {
		fmt.Fprintf(w, " %s", english.Plural(f.Warnings, "warning", "warnings"))
	}
	fmt.Fprintln(w)
	if f.Message != "" {
		fmt.Fprintf(w, "         %s\n", f.Message)
	}
}

func newHistoryFileCommand(version string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "file <path>",
		Short: "Show the outcomes of one document across runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openHistory(cmd, version)
			if err != nil {
				return err
			}
			defer a.Close()

			files, err := a.store.FileHistory(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, files)
			}
			for _, f := range files {
				fmt.Fprintf(out, "%s  %-14s", f.RunID[:min(8, len(f.RunID))], humanize.Time(f.StartedAt))
				printFileLine(out, f)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of entries")
	return cmd
}

func newHistoryPruneCommand(version string) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than a duration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			a, err := openHistory(cmd, version)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.store.PruneRuns(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			log.Info().Int64("runs", n).Dur("older_than", olderThan).Msg("Pruned run history")
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %s\n", english.Plural(int(n), "run", "runs"))
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age of the runs to delete")
	return cmd
}
