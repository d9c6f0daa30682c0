package schema

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	cueerrors "cuelang.org/go/cue/errors"
	"github.com/rs/zerolog"

	"github.com/chartkit/chartkit/pkg/engine"
)

// Validator checks resolved chart configurations against their schemas.
type Validator struct {
	registry *Registry
	palette  Palette
	logger   zerolog.Logger
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithPalette sets the palette color names are checked against.
func WithPalette(p Palette) ValidatorOption {
	return func(v *Validator) {
		v.palette = p
	}
}

// WithLogger sets the validator logger.
func WithLogger(logger zerolog.Logger) ValidatorOption {
	return func(v *Validator) {
		v.logger = logger
	}
}

// NewValidator creates a validator over registry.
func NewValidator(registry *Registry, opts ...ValidatorOption) *Validator {
	v := &Validator{
		registry: registry,
		palette:  DefaultPalette(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = v.logger.With().Str("component", "validator").Logger()
	return v
}

// Registry returns the schema registry.
func (v *Validator) Registry() *Registry {
	return v.registry
}

// Palette returns the palette color names are checked against.
func (v *Validator) Palette() Palette {
	return v.palette
}

// Validate checks config against the schema of chartType and returns it
// with defaults filled in.
//
// Unknown fields, type, range and enum violations and invalid colors are
// always errors. A required field that is absent and has no default is a
// missing_required issue: an error when strict, a degraded warning
// otherwise.
func (v *Validator) Validate(ctx context.Context, config map[string]any, chartType string, strict bool) engine.Outcome {
	var out engine.Outcome

	s, ok := v.registry.Get(chartType)
	if !ok {
		out.Errors = append(out.Errors, engine.ResolutionError{
			Path:    Root + ".type",
			Message: fmt.Sprintf("unknown chart type %q, available: %s", chartType, strings.Join(v.registry.Types(), ", ")),
			Kind:    engine.IssueConfiguration,
			Code:    engine.ErrCodeUnknownChartType,
		})
		return out
	}

	filled := make(map[string]any, len(config)+len(s.Fields))
	for _, name := range sortedNames(config) {
		if _, known := s.Field(name); !known {
			out.Errors = append(out.Errors, engine.ResolutionError{
				Path:    Root + "." + name,
				Message: fmt.Sprintf("unknown field %q for chart type %s", name, chartType),
				Kind:    engine.IssueConfiguration,
				Code:    engine.ErrCodeUnknownField,
			})
			continue
		}
		filled[name] = config[name]
	}

	for _, f := range s.Fields {
		if val, present := filled[f.Name]; present && val != nil {
			continue
		}
		switch {
		case f.Default != nil:
			filled[f.Name] = f.Default
		case f.Required:
			issue := engine.ResolutionError{
				Path:    f.Path(),
				Message: fmt.Sprintf("missing required field %q", f.Name),
				Kind:    engine.IssueMissingRequired,
				Code:    engine.ErrCodeMissingRequired,
			}
			if strict {
				out.Errors = append(out.Errors, issue)
			} else {
				out.Warn(issue)
			}
		default:
			delete(filled, f.Name)
		}
	}

	out.Errors = append(out.Errors, v.checkTypes(s, filled)...)
	out.Errors = append(out.Errors, v.checkColors(s, filled)...)

	if len(out.Errors) > 0 {
		v.logger.Debug().
			Str("chart_type", chartType).
			Int("errors", len(out.Errors)).
			Msg("Chart configuration is invalid")
		if strict {
			return out
		}
	}
	out.Value = filled
	return out
}

// checkTypes unifies the typed fields with the compiled CUE definition.
func (v *Validator) checkTypes(s *ChartSchema, config map[string]any) []engine.ResolutionError {
	data := make(map[string]any, len(config))
	for name, val := range config {
		f, _ := s.Field(name)
		if f.Opaque || f.Type == TypeAny || val == nil {
			continue
		}
		data[name] = cueValue(val)
	}

	err := v.registry.check(s.Type, data)
	if err == nil {
		return nil
	}

	seen := make(map[string]bool)
	var issues []engine.ResolutionError
	for _, e := range cueerrors.Errors(err) {
		path := issuePath(e.Path())
		if seen[path] {
			continue
		}
		seen[path] = true
		format, args := e.Msg()
		issues = append(issues, engine.ResolutionError{
			Path:    path,
			Message: fmt.Sprintf(format, args...),
			Kind:    engine.IssueConfiguration,
			Code:    engine.ErrCodeInvalidValue,
		})
	}
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Path < issues[j].Path })
	return issues
}

// issuePath turns a CUE error path into a document path, dropping the
// definition name.
func issuePath(segments []string) string {
	parts := []string{Root}
	for _, seg := range segments {
		if strings.HasPrefix(seg, "#") {
			continue
		}
		if unquoted, err := strconv.Unquote(seg); err == nil {
			seg = unquoted
		}
		parts = append(parts, seg)
	}
	return strings.Join(parts, ".")
}

func (v *Validator) checkColors(s *ChartSchema, config map[string]any) []engine.ResolutionError {
	var issues []engine.ResolutionError
	check := func(path string, val any) {
		str, ok := val.(string)
		if !ok || str == "" {
			return
		}
		if err := v.palette.Check(str); err != nil {
			issues = append(issues, engine.ResolutionError{
				Path:    path,
				Message: "invalid color: " + err.Error(),
				Kind:    engine.IssueConfiguration,
				Code:    engine.ErrCodeInvalidValue,
			})
		}
	}

	for _, name := range s.ColorFields() {
		val, ok := config[name]
		if !ok {
			continue
		}
		path := Root + "." + name
		if items, ok := val.([]any); ok {
			for i, item := range items {
				check(path+"."+strconv.Itoa(i), item)
			}
			continue
		}
		check(path, val)
	}
	return issues
}

// cueValue reduces a resolved value to the plain types CUE can encode.
func cueValue(v any) any {
	switch x := v.(type) {
	case nil, bool, string, int, int64, float64:
		if f, ok := x.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			return nil
		}
		return x
	case time.Time:
		return x.Format(time.RFC3339)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = cueValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = cueValue(item)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	case reflect.Float32:
		return cueValue(rv.Float())
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = cueValue(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			out := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				out[iter.Key().String()] = cueValue(iter.Value().Interface())
			}
			return out
		}
	}
	return fmt.Sprint(v)
}

func sortedNames(m map[string]any) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
