package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chartkit/chartkit/pkg/engine"
)

// Root is the document key chart fields live under. Issue paths are
// reported as "chart.<field>".
const Root = "chart"

// CUE type expressions used by field declarations.
const (
	TypeAny     = "_"
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInt     = "int"
	TypeBool    = "bool"
	TypeMap     = "{[string]: _}"
	TypeList    = "[..._]"
	TypeStrings = "string | [...(string | null)]"
	TypeNumbers = "number | [...(number | null)]"
	TypeLimits  = "[..._] | {[string]: _} | string"
	TypeToggle  = "bool | {[string]: _} | string"
)

// OneOf returns an enum of string literals.
func OneOf(values ...string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return strings.Join(quoted, " | ")
}

// Between returns a number bounded on both ends.
func Between(lo, hi float64) string {
	return fmt.Sprintf("number & >=%v & <=%v", lo, hi)
}

// ListOf returns a list whose elements are of type t.
func ListOf(t string) string {
	return "[...(" + t + ")]"
}

// Field declares one chart configuration field.
type Field struct {
	Name string `json:"name"`

	// Type is a CUE type expression checked against the resolved value.
	Type string `json:"type"`

	// Required fields without a default are reported as missing_required.
	Required bool `json:"required,omitempty"`

	// Default fills the field when the document omits it.
	Default any `json:"default,omitempty"`

	// Color marks fields holding a color or a list of colors. Values must
	// be palette names or CSS colors.
	Color bool `json:"color,omitempty"`

	// Prose marks text fields that interpolate tokens embedded in other text.
	Prose bool `json:"prose,omitempty"`

	// Opaque fields are passed through without resolution or type checks.
	Opaque bool `json:"opaque,omitempty"`

	// Binding marks fields bound to loaded data.
	Binding bool `json:"binding,omitempty"`

	// Step is the editor workflow step the field belongs to.
	Step engine.StepKey `json:"step"`

	Description string `json:"description,omitempty"`
}

// Path returns the dotted document path of the field.
func (f Field) Path() string {
	return Root + "." + f.Name
}

// ChartSchema is the declared shape of one chart type.
type ChartSchema struct {
	Type        string  `json:"type"`
	Description string  `json:"description,omitempty"`
	Fields      []Field `json:"fields"`

	// Triggers are the fields whose series counts add up to the number of
	// series drawn. Correlated fields must match that count.
	Triggers   []string `json:"triggers,omitempty"`
	Correlated []string `json:"correlated,omitempty"`

	// SeriesOverrides allows series_<n> mappings with per-series styling.
	SeriesOverrides bool `json:"series_overrides,omitempty"`

	index map[string]int
}

// NewChartSchema builds a schema from field groups. Later groups override
// earlier fields of the same name. The type field is added automatically.
func NewChartSchema(chartType, description string, groups ...[]Field) *ChartSchema {
	s := &ChartSchema{
		Type:        chartType,
		Description: description,
		index:       make(map[string]int),
	}
	s.add(Field{
		Name:        "type",
		Type:        fmt.Sprintf("%q", chartType),
		Required:    true,
		Step:        engine.StepDataBindings,
		Description: "Chart type discriminator",
	})
	for _, group := range groups {
		for _, f := range group {
			s.add(f)
		}
	}
	return s
}

func (s *ChartSchema) add(f Field) {
	if f.Type == "" {
		f.Type = TypeAny
	}
	if f.Step == "" {
		f.Step = defaultStep(f)
	}
	if i, ok := s.index[f.Name]; ok {
		s.Fields[i] = f
		return
	}
	s.index[f.Name] = len(s.Fields)
	s.Fields = append(s.Fields, f)
}

func defaultStep(f Field) engine.StepKey {
	switch {
	case f.Binding:
		return engine.StepDataBindings
	case f.Prose:
		return engine.StepAnnotationOutput
	default:
		return engine.StepVisualDesign
	}
}

// WithSeries sets the trigger and correlated fields.
func (s *ChartSchema) WithSeries(triggers, correlated []string) *ChartSchema {
	s.Triggers = triggers
	s.Correlated = correlated
	return s
}

// Field returns a declared field. When the schema allows series overrides,
// series_<n> names resolve to a mapping field.
func (s *ChartSchema) Field(name string) (Field, bool) {
	if i, ok := s.index[name]; ok {
		return s.Fields[i], true
	}
	if s.SeriesOverrides && IsSeriesOverride(name) {
		return Field{Name: name, Type: TypeMap, Step: engine.StepVisualDesign}, true
	}
	return Field{}, false
}

// Names returns the declared field names in declaration order.
func (s *ChartSchema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Bindings returns the data binding fields.
func (s *ChartSchema) Bindings() []Field {
	var out []Field
	for _, f := range s.Fields {
		if f.Binding {
			out = append(out, f)
		}
	}
	return out
}

// StepFields returns the names of the fields that belong to step.
func (s *ChartSchema) StepFields(step engine.StepKey) []string {
	var out []string
	for _, f := range s.Fields {
		if f.Step == step {
			out = append(out, f.Name)
		}
	}
	return out
}

// ColorFields returns the names of the color fields, sorted.
func (s *ChartSchema) ColorFields() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Color {
			out = append(out, f.Name)
		}
	}
	sort.Strings(out)
	return out
}

// Interpolates reports whether the field at a path relative to the chart
// root substitutes embedded tokens.
func (s *ChartSchema) Interpolates(path string) bool {
	f, ok := s.Field(topLevel(path))
	return ok && f.Prose
}

// IsOpaque reports whether the field at a path relative to the chart root
// passes through unresolved.
func (s *ChartSchema) IsOpaque(path string) bool {
	f, ok := s.Field(topLevel(path))
	return ok && f.Opaque
}

func topLevel(path string) string {
	if i := strings.IndexByte(path, '.'); i >= 0 {
		return path[:i]
	}
	return path
}

// IsSeriesOverride reports whether name has the form series_<n>.
func IsSeriesOverride(name string) bool {
	rest, ok := strings.CutPrefix(name, "series_")
	if !ok || rest == "" {
		return false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
