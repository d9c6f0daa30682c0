package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue/cuecontext"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CHARTKIT_"

// envKeys maps environment variables, without the prefix, to settings
// paths.
var envKeys = map[string]string{
	"CACHE_SIZE":      "cache_size",
	"CONCURRENCY":     "concurrency",
	"CONTROLLER_DIRS": "controller_dirs",
	"POLICY_DIRS":     "policy_dirs",
	"STORE_PATH":      "store_path",
	"HEADLESS":        "headless",
	"NNSI_SOURCE":     "inflation.nnsi_source",
	"GDP_SOURCE":      "inflation.gdp_source",
	"HTTP_RETRY_MAX":  "http.retry_max",
	"HTTP_TIMEOUT":    "http.timeout",
	"SERVER_ADDR":     "server.addr",
	"CORS_ORIGINS":    "server.cors_origins",
	"LOG_LEVEL":       "logging.level",
	"LOG_FORMAT":      "logging.format",
	"LOG_OUTPUT":      "logging.output",
	"METRICS_ENABLED": "metrics.enabled",
	"TRACING_ENABLED": "tracing.enabled",
	"TRACE_EXPORTER":  "tracing.exporter",
	"OTLP_ENDPOINT":   "tracing.endpoint",
}

type loadOptions struct {
	fs     afero.Fs
	lookup func(string) (string, bool)
}

// LoadOption customizes Load.
type LoadOption func(*loadOptions)

// WithFs reads the settings file from fs.
func WithFs(fs afero.Fs) LoadOption {
	return func(o *loadOptions) { o.fs = fs }
}

// WithEnv replaces os.LookupEnv for environment overrides.
func WithEnv(lookup func(string) (string, bool)) LoadOption {
	return func(o *loadOptions) { o.lookup = lookup }
}

// Load builds settings from defaults, the file at path (YAML or CUE) and
// CHARTKIT_* environment variables, in that order of precedence. An empty
// path skips the file.
func Load(path string, opts ...LoadOption) (*Settings, error) {
	o := loadOptions{fs: afero.NewOsFs(), lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(&o)
	}

	raw := map[string]any{}
	if path != "" {
		data, err := afero.ReadFile(o.fs, path)
		if err != nil {
			return nil, fmt.Errorf("failed to read settings: %w", err)
		}
		raw, err = parseRaw(path, data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
		}
	}
	applyEnv(raw, o.lookup)

	settings := Default()
	if err := decode(raw, settings); err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

func parseRaw(path string, data []byte) (map[string]any, error) {
	raw := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		v := cuecontext.New().CompileBytes(data)
		if err := v.Err(); err != nil {
			return nil, err
		}
		if err := v.Decode(&raw); err != nil {
			return nil, err
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported settings format %q", filepath.Ext(path))
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func applyEnv(raw map[string]any, lookup func(string) (string, bool)) {
	names := make([]string, 0, len(envKeys))
	for name := range envKeys {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		setPath(raw, strings.Split(envKeys[name], "."), value)
	}
}

func setPath(m map[string]any, keys []string, value any) {
	for _, key := range keys[:len(keys)-1] {
		next, ok := m[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[key] = next
		}
		m = next
	}
	m[keys[len(keys)-1]] = value
}

func decode(raw map[string]any, settings *Settings) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           settings,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func settingsValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Validate checks field constraints and the telemetry combination rules.
// Every problem is reported.
func (s *Settings) Validate() error {
	var result *multierror.Error

	if err := settingsValidator().Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			result = multierror.Append(result, fieldError(fe))
		}
	}
	if err := s.Telemetry("").Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func fieldError(fe validator.FieldError) error {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	if fe.Param() != "" {
		return fmt.Errorf("%s: failed %q constraint (%s)", ns, fe.Tag(), fe.Param())
	}
	return fmt.Errorf("%s: failed %q constraint", ns, fe.Tag())
}
