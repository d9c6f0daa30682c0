package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chartkit/chartkit/pkg/processor"
	"github.com/chartkit/chartkit/pkg/telemetry"
)

func newGenerateCommand(version string) *cobra.Command {
	var (
		outdir string
		strict bool
		quiet  bool
	)

	cmd := &cobra.Command{
		Use:   "generate <path>...",
		Short: "Resolve and render chart documents",
		Long: `Resolve chart documents and render them into the output directory.

Paths may be files, directories (their *.yaml and *.yml children) or glob
patterns such as charts/**/*.yaml. A failing document never stops the rest
of the batch. With --strict, any failure makes the command exit non-zero.`,
		Example: `  # Generate every chart in a directory
  chartkit generate charts/

  # Generate with strict validation into a custom directory
  chartkit generate --strict --outdir build/charts 'charts/**/*.yaml'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), version, withStore())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, span := a.telemetry.Tracer.StartGenerateSpan(cmd.Context(), args, strict)
			defer span.End()

			result, err := a.processor.Generate(ctx, args, processor.GenerateOptions{
				Outdir: outdir,
				Strict: strict,
				Quiet:  quiet,
			})
			if err != nil {
				telemetry.RecordError(span, err)
				return err
			}
			span.SetAttributes(telemetry.AttrRunID.String(result.RunID))
			a.telemetry.Metrics.RecordRun(result.Failed)

			if jsonOutput {
				if err := printJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				for _, file := range result.Files {
					fmt.Fprintf(out, "  wrote %s\n", file)
				}
				for _, fe := range result.Errors {
					fmt.Fprintf(out, "  FAILED %s: %s\n", fe.File, fe.Message)
				}
				fmt.Fprintf(out, "%d succeeded, %d failed (run %s)\n", result.Succeeded, result.Failed, result.RunID)
			}

			if strict && result.Failed > 0 {
				return &ExitError{Code: 1, Message: fmt.Sprintf("%d chart(s) failed", result.Failed)}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outdir, "outdir", "o", "charts", "output directory for rendered charts")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail documents on the first fatal error and exit non-zero on failures")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress per-file progress logging")

	return cmd
}
