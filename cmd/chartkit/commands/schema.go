package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSchemaCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema [chart-type]",
		Short: "List chart types or show the schema of one",
		Long: `Without arguments, list the registered chart types. With a chart type,
print its CUE definition, or its field table with --json.`,
		Example: `  chartkit schema
  chartkit schema line
  chartkit schema --json stacked_bar`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), version)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				types := a.registry.Types()
				if jsonOutput {
					return printJSON(out, types)
				}
				for _, t := range types {
					s, _ := a.registry.Get(t)
					fmt.Fprintf(out, "%-20s %s\n", t, s.Description)
				}
				return nil
			}

			s, ok := a.registry.Get(args[0])
			if !ok {
				return fmt.Errorf("unknown chart type %q (known: %s)", args[0], strings.Join(a.registry.Types(), ", "))
			}
			if jsonOutput {
				return printJSON(out, s)
			}
			src, _ := a.registry.Source(args[0])
			fmt.Fprint(out, src)
			return nil
		},
	}
	return cmd
}

func newPoliciesCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "List lint policies",
		Long: `List the built-in lint policies and any loaded from the configured
policy directories.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), version)
			if err != nil {
				return err
			}
			defer a.Close()

			policies := a.policies.ListPolicies()
			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, policies)
			}
			for _, p := range policies {
				state := "enabled"
				if !p.Enabled {
					state = "disabled"
				}
				origin := p.Source
				if p.Builtin {
					origin = "builtin"
				}
				fmt.Fprintf(out, "%-24s %-8s %-8s %s\n", p.Name, p.Severity, state, origin)
				if p.Description != "" {
					fmt.Fprintf(out, "    %s\n", p.Description)
				}
			}
			return nil
		},
	}
	return cmd
}
