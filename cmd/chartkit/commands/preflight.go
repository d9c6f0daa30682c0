package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/chartkit/chartkit/pkg/engine"
)

func newPreflightCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preflight <file>",
		Short: "Report how close a chart document is to rendering",
		Long: `Compute the readiness report an editor shows for a partially written
chart document: missing required paths, blocking errors, warnings and the
status of each workflow step.

The document may be incomplete. Problems are reported, never raised.`,
		Example: `  chartkit preflight charts/draft.yaml
  chartkit preflight --json charts/draft.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), version)
			if err != nil {
				return err
			}
			defer a.Close()

			doc, err := readRawDocument(a.fs, args[0])
			if err != nil {
				return err
			}
			report := a.preflight.Preflight(cmd.Context(), doc)
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), report)
			}
			printReport(cmd.OutOrStdout(), args[0], report)
			return nil
		},
	}
	return cmd
}

// readRawDocument reads a possibly incomplete document as plain values.
func readRawDocument(fs afero.Fs, path string) (map[string]any, error) {
	src, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	doc := map[string]any{}
	if err := yaml.Unmarshal(src, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

func printReport(w io.Writer, file string, report engine.PreflightReport) {
	ready := "not ready"
	if report.ReadyForPreview {
		ready = "ready for preview"
	}
	fmt.Fprintf(w, "%s: %s\n", file, ready)
	for _, step := range engine.Steps {
		fmt.Fprintf(w, "  %-28s %s\n", step, report.StepStatus[step])
	}
	if len(report.MissingPaths) > 0 {
		fmt.Fprintf(w, "  missing: %s\n", strings.Join(report.MissingPaths, ", "))
	}
	for _, be := range report.BlockingErrors {
		fmt.Fprintf(w, "  error at %s: %s\n", be.Path, be.Message)
	}
	for _, warning := range report.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
}

func newProfileCommand(version string) *cobra.Command {
	var (
		columns []string
		cast    map[string]string
		renames map[string]string
	)

	cmd := &cobra.Command{
		Use:   "profile <source>",
		Short: "Load a data source and summarize its columns",
		Long: `Load a data source the way a chart document would and print its row
count, column types, the first rows and the extra context keys it provides.

The source uses document syntax: a CSV path, "url:" or "csv:" prefixed
locations, a controller method such as budget.by_year, or a controller
file followed by ":method".`,
		Example: `  chartkit profile data/budget.csv
  chartkit profile --columns Year,Budget --cast Year=int data/budget.csv
  chartkit profile budget.by_year`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), version)
			if err != nil {
				return err
			}
			defer a.Close()

			raw := map[string]any{"source": args[0]}
			params := map[string]any{}
			if len(columns) > 0 {
				params["columns"] = columns
			}
			if len(cast) > 0 {
				params["cast"] = cast
			}
			if len(renames) > 0 {
				params["renames"] = renames
			}
			if len(params) > 0 {
				raw["params"] = params
			}

			cfg, issues := engine.DecodeDataSource(raw)
			if len(issues) > 0 {
				return issues[0].AsError()
			}

			profile, err := a.preflight.Profile(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), profile)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s): %d rows\n", args[0], profile.SourceKind, profile.RowCount)
			for _, c := range profile.Columns {
				fmt.Fprintf(out, "  %-24s %s\n", c.Name, c.DType)
			}
			if len(profile.ContextKeys) > 0 {
				fmt.Fprintf(out, "  context: %s\n", strings.Join(profile.ContextKeys, ", "))
			}
			for _, w := range profile.Warnings {
				fmt.Fprintf(out, "  warning: %s\n", w)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&columns, "columns", nil, "columns to keep")
	cmd.Flags().StringToStringVar(&cast, "cast", nil, "column casts (name=int|float|str|datetime)")
	cmd.Flags().StringToStringVar(&renames, "rename", nil, "column renames (old=new)")

	return cmd
}
