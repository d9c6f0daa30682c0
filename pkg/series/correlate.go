// Package series matches per-series styling fields to the number of series
// a chart draws.
package series

import (
	"fmt"
	"reflect"

	"github.com/chartkit/chartkit/pkg/engine"
	"github.com/chartkit/chartkit/pkg/frame"
	"github.com/chartkit/chartkit/pkg/schema"
)

// Count returns the number of series a trigger value describes. A list of
// lists (or a mapping of lists) holds one series per element; any other
// value is a single series.
func Count(v any) int {
	if v == nil {
		return 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if isList(rv.Index(i).Interface()) {
				return rv.Len()
			}
		}
	case reflect.Map:
		iter := rv.MapRange()
		for iter.Next() {
			if isList(iter.Value().Interface()) {
				return rv.Len()
			}
		}
	}
	return 1
}

// Correlate checks the correlated fields of s against the series count of
// its trigger fields. With two or more series, a scalar correlated field is
// broadcast to one copy per series and a list must have one entry per
// series. Fewer than two series leave the config untouched.
//
// The returned config is a copy; config itself is never modified.
func Correlate(config map[string]any, s *schema.ChartSchema) (map[string]any, []engine.ResolutionError) {
	n := 0
	for _, name := range s.Triggers {
		n += Count(config[name])
	}
	if n < 2 {
		return config, nil
	}

	copied, err := frame.CopyTree(config)
	if err != nil {
		return nil, []engine.ResolutionError{{
			Path:    schema.Root,
			Message: fmt.Sprintf("failed to copy config: %v", err),
			Kind:    engine.IssueConfiguration,
		}}
	}
	out := copied.(map[string]any)

	var issues []engine.ResolutionError
	for _, name := range s.Correlated {
		v, ok := out[name]
		if !ok || v == nil {
			continue
		}
		if !isList(v) {
			out[name] = broadcast(v, n)
			continue
		}
		if got := reflect.ValueOf(v).Len(); got != n {
			issues = append(issues, engine.ResolutionError{
				Path:    schema.Root + "." + name,
				Message: fmt.Sprintf("%s has %d values but the chart draws %d series", name, got, n),
				Kind:    engine.IssueConfiguration,
				Code:    engine.ErrCodeSeriesMismatch,
			})
		}
	}
	if len(issues) > 0 {
		return nil, issues
	}
	return out, nil
}

func broadcast(v any, n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func isList(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		_, bytes := v.([]byte)
		return !bytes
	}
	return false
}
