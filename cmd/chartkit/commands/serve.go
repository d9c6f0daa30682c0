package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/chartkit/chartkit/pkg/api"
)

func newServeCommand(version string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the interactive preflight API",
		Long: `Start an HTTP server for chart editors.

Endpoints:
  POST /api/preflight        readiness report for a JSON or YAML document
  POST /api/profile          data profile for a document's data block
  GET  /api/chart-types      registered chart types
  GET  /api/schema/{type}    fields and CUE definition of a chart type
  GET  /metrics              Prometheus metrics
  GET  /health               liveness

Policy directories are watched and reloaded on change unless
server.watch_policies is false.`,
		Example: `  chartkit serve
  chartkit serve --addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, version, withStore())
			if err != nil {
				return err
			}
			defer a.Close()

			s := a.settings
			if addr == "" {
				addr = s.Server.Addr
			}
			if s.Server.WatchPolicy && len(s.PolicyDirs) > 0 {
				if err := a.policies.Watch(ctx, s.PolicyDirs); err != nil {
					return err
				}
			}

			opts := []api.Option{
				api.WithCORSOrigins(s.Server.CORSOrigins),
				api.WithLogger(a.logger),
			}
			if a.telemetry.Metrics.Enabled() {
				opts = append(opts, api.WithMetricsHandler(a.telemetry.Metrics.Handler()))
			}
			if a.store != nil {
				opts = append(opts, api.WithHealthCheck(func(ctx context.Context) error {
					return a.store.HealthCheck(ctx)
				}))
			}

			server := api.NewServer(a.preflight, a.registry, opts...)
			return server.ListenAndServe(ctx, addr, s.Server.ReadTimeout)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from settings)")
	return cmd
}
