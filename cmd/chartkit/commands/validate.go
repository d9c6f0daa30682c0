package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/chartkit/chartkit/pkg/engine"
	"github.com/chartkit/chartkit/pkg/processor"
)

func newValidateCommand(version string) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate <path>...",
		Short: "Resolve and validate chart documents without rendering",
		Long: `Resolve chart documents and check them against their chart schemas and
lint policies. Nothing is rendered.

This command checks:
  - YAML syntax and document structure
  - Data source loading and parameter handling
  - Reference resolution against the loaded data
  - Schema conformance of the resolved configuration
  - Policy compliance (OPA/rego)`,
		Example: `  # Validate a directory of charts
  chartkit validate charts/

  # Treat every problem as fatal
  chartkit validate --strict charts/budget.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), version)
			if err != nil {
				return err
			}
			defer a.Close()

			files, err := a.processor.Collect(args)
			if err != nil {
				return err
			}
			log.Debug().Int("files", len(files)).Bool("strict", strict).Msg("Validating chart documents")

			var results []*processor.Result
			for _, file := range files {
				doc, err := processor.LoadDocument(a.fs, file)
				if err != nil {
					res := &processor.Result{File: file}
					res.Errors = append(res.Errors, engine.IssueFromError("", err))
					results = append(results, res)
					continue
				}
				results = append(results, a.processor.ProcessDocument(cmd.Context(), doc, strict))
			}

			failed := 0
			for _, res := range results {
				if !res.OK() {
					failed++
				}
			}

			if jsonOutput {
				if err := printJSON(cmd.OutOrStdout(), results); err != nil {
					return err
				}
			} else {
				printResults(cmd, results)
			}

			if failed > 0 {
				return &ExitError{Code: 1, Message: fmt.Sprintf("%d document(s) invalid", failed)}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "treat unresolved references and missing fields as errors")

	return cmd
}

func printResults(cmd *cobra.Command, results []*processor.Result) {
	out := cmd.OutOrStdout()
	for _, res := range results {
		status := "ok"
		if !res.OK() {
			status = "INVALID"
		}
		fmt.Fprintf(out, "%s: %s", res.File, status)
		if res.ChartType != "" {
			fmt.Fprintf(out, " (%s)", res.ChartType)
		}
		fmt.Fprintln(out)
		for _, issue := range res.Errors {
			fmt.Fprintf(out, "  error: %s\n", issue.Error())
		}
		for _, w := range res.Warnings {
			fmt.Fprintf(out, "  warning: %s\n", w)
		}
	}
}
