package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/chartkit/chartkit/pkg/config"
	"github.com/chartkit/chartkit/pkg/controllers"
	"github.com/chartkit/chartkit/pkg/dataload"
	"github.com/chartkit/chartkit/pkg/engine"
	"github.com/chartkit/chartkit/pkg/policy"
	"github.com/chartkit/chartkit/pkg/preflight"
	"github.com/chartkit/chartkit/pkg/processor"
	"github.com/chartkit/chartkit/pkg/schema"
	"github.com/chartkit/chartkit/pkg/stores"
	"github.com/chartkit/chartkit/pkg/telemetry"
)

// app holds the components shared by every command, built once from the
// loaded settings.
type app struct {
	settings  *config.Settings
	telemetry *telemetry.Telemetry
	logger    zerolog.Logger
	fs        afero.Fs

	registry  *schema.Registry
	validator *schema.Validator
	loader    *dataload.Loader
	policies  *policy.Engine
	store     *stores.SQLiteStore
	processor *processor.Processor
	preflight *preflight.Engine
}

type appConfig struct {
	// withStore opens the run ledger when a store path is configured.
	withStore bool
}

type appOption func(*appConfig)

func withStore() appOption {
	return func(c *appConfig) { c.withStore = true }
}

func loadSettings() (*config.Settings, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		settings.Logging.Level = "debug"
	}
	return settings, nil
}

func newApp(ctx context.Context, version string, opts ...appOption) (*app, error) {
	var cfg appConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	settings, err := loadSettings()
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	tel, err := telemetry.New(settings.Telemetry(version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	a := &app{
		settings:  settings,
		telemetry: tel,
		logger:    tel.Logger,
		fs:        afero.NewOsFs(),
	}
	if err := a.build(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) build(ctx context.Context, cfg appConfig) error {
	s := a.settings
	metrics := a.telemetry.Metrics

	palette := schema.DefaultPalette()
	for name, color := range s.Colors {
		palette[name] = color
	}
	a.registry = schema.NewRegistry()
	a.validator = schema.NewValidator(a.registry,
		schema.WithPalette(palette),
		schema.WithLogger(a.logger),
	)

	client := dataload.NewHTTPClient(s.HTTP.RetryMax, a.logger)
	if s.HTTP.Timeout > 0 {
		client.HTTPClient.Timeout = s.HTTP.Timeout
	}
	indexes := dataload.NewIndexes(dataload.NewFetcher(a.fs, client))
	if s.Inflation.NNSISource != "" {
		indexes.SetSource(engine.InflationNNSI, s.Inflation.NNSISource)
	}
	if s.Inflation.GDPSource != "" {
		indexes.SetSource(engine.InflationGDP, s.Inflation.GDPSource)
	}

	loader, err := dataload.NewLoader(
		dataload.WithFs(a.fs),
		dataload.WithHTTPClient(client),
		dataload.WithRegistry(controllers.NewRegistry(
			controllers.WithFs(a.fs),
			controllers.WithSearchDirs(s.ControllerDirs...),
			controllers.WithLogger(a.logger),
		)),
		dataload.WithIndexes(indexes),
		dataload.WithCacheSize(s.CacheSize),
		dataload.WithCacheObserver(metrics),
		dataload.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}
	a.loader = loader

	a.policies, err = policy.NewEngine(a.logger, policy.WithFs(a.fs))
	if err != nil {
		return fmt.Errorf("failed to initialize policies: %w", err)
	}
	if len(s.PolicyDirs) > 0 {
		if err := a.policies.LoadPolicies(ctx, s.PolicyDirs); err != nil {
			return fmt.Errorf("failed to load policies: %w", err)
		}
	}

	procOpts := []processor.Option{
		processor.WithPolicyEngine(a.policies),
		processor.WithRenderer(processor.NewJSONRenderer(a.fs)),
		processor.WithObserver(metrics),
		processor.WithFs(a.fs),
		processor.WithHeadless(s.Headless),
		processor.WithLogger(a.logger),
	}
	if s.Concurrency > 0 {
		procOpts = append(procOpts, processor.WithConcurrency(s.Concurrency))
	}
	if cfg.withStore && s.StorePath != "" {
		a.store, err = stores.Open(ctx, stores.Config{Path: s.StorePath})
		if err != nil {
			return fmt.Errorf("failed to open run store: %w", err)
		}
		procOpts = append(procOpts, processor.WithRunRecorder(a.store))
	}
	a.processor = processor.New(a.loader, a.validator, procOpts...)

	a.preflight = preflight.NewEngine(a.loader, a.validator,
		preflight.WithObserver(metrics),
		preflight.WithLogger(a.logger),
	)
	return nil
}

// Close releases the store, policy watchers and telemetry.
func (a *app) Close() {
	if a.policies != nil {
		if err := a.policies.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to stop policy watcher")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close run store")
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.telemetry.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to shut down telemetry")
	}
}
