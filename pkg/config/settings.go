package config

import (
	"time"

	"github.com/chartkit/chartkit/pkg/telemetry"
)

// Settings is the process-wide chartkit configuration. The resolution core
// never reads it directly; commands thread the relevant values into each
// component.
type Settings struct {
	// CacheSize bounds the loader's cache of resolved data contexts.
	CacheSize int `yaml:"cache_size" mapstructure:"cache_size" validate:"gte=0"`

	// Concurrency limits documents processed at once. Zero means GOMAXPROCS.
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency" validate:"gte=0"`

	// ControllerDirs are searched for custom controller files.
	ControllerDirs []string `yaml:"controller_dirs" mapstructure:"controller_dirs" validate:"dive,required"`

	// PolicyDirs hold extra .rego lint policies.
	PolicyDirs []string `yaml:"policy_dirs" mapstructure:"policy_dirs" validate:"dive,required"`

	// StorePath is the SQLite run ledger. Empty disables run history.
	StorePath string `yaml:"store_path" mapstructure:"store_path"`

	// Headless selects a non-interactive rendering backend.
	Headless bool `yaml:"headless" mapstructure:"headless"`

	// Colors adds named colors to the palette.
	Colors map[string]string `yaml:"colors" mapstructure:"colors" validate:"dive,keys,required,endkeys,hexcolor"`

	Inflation InflationSettings `yaml:"inflation" mapstructure:"inflation"`
	HTTP      HTTPSettings      `yaml:"http" mapstructure:"http"`
	Server    ServerSettings    `yaml:"server" mapstructure:"server"`

	Logging telemetry.LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Metrics telemetry.MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Tracing telemetry.TracingConfig `yaml:"tracing" mapstructure:"tracing"`
}

// InflationSettings overrides where index tables are read from.
type InflationSettings struct {
	NNSISource string `yaml:"nnsi_source" mapstructure:"nnsi_source"`
	GDPSource  string `yaml:"gdp_source" mapstructure:"gdp_source"`
}

// HTTPSettings configures remote CSV and index downloads.
type HTTPSettings struct {
	RetryMax int           `yaml:"retry_max" mapstructure:"retry_max" validate:"gte=0,lte=10"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`
}

// ServerSettings configures `chartkit serve`.
type ServerSettings struct {
	Addr        string        `yaml:"addr" mapstructure:"addr" validate:"required,hostname_port"`
	CORSOrigins []string      `yaml:"cors_origins" mapstructure:"cors_origins"`
	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" validate:"gte=0"`
	WatchPolicy bool          `yaml:"watch_policies" mapstructure:"watch_policies"`
}

// Default returns the settings used when no file or environment overrides
// them.
func Default() *Settings {
	tel := telemetry.DefaultConfig()
	return &Settings{
		CacheSize: 128,
		HTTP: HTTPSettings{
			RetryMax: 2,
			Timeout:  30 * time.Second,
		},
		Server: ServerSettings{
			Addr:        "127.0.0.1:8080",
			CORSOrigins: []string{"http://localhost:3000"},
			ReadTimeout: 15 * time.Second,
			WatchPolicy: true,
		},
		Logging: tel.Logging,
		Metrics: tel.Metrics,
		Tracing: tel.Tracing,
	}
}

// Telemetry assembles the telemetry configuration.
func (s *Settings) Telemetry(version string) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.Logging = s.Logging
	cfg.Metrics = s.Metrics
	cfg.Tracing = s.Tracing
	return cfg
}
