package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// definitionName is the CUE definition each chart schema compiles to.
const definitionName = "#Chart"

// Registry holds chart schemas and their compiled CUE definitions.
type Registry struct {
	ctx     *cue.Context
	charts  map[string]*ChartSchema
	defs    map[string]cue.Value
	sources map[string]string
	mu      sync.RWMutex
}

// NewRegistry creates a registry with the built-in chart types.
func NewRegistry() *Registry {
	r := &Registry{
		ctx:     cuecontext.New(),
		charts:  make(map[string]*ChartSchema),
		defs:    make(map[string]cue.Value),
		sources: make(map[string]string),
	}
	for _, s := range Builtin() {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
	return r
}

// Register compiles and adds a chart schema, replacing any schema of the
// same type.
func (r *Registry) Register(s *ChartSchema) error {
	src := Definition(s)

	r.mu.Lock()
	defer r.mu.Unlock()

	val := r.ctx.CompileString(src, cue.Filename(s.Type+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", s.Type, err)
	}
	def := val.LookupPath(cue.ParsePath(definitionName))
	if err := def.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", s.Type, err)
	}

	r.charts[s.Type] = s
	r.defs[s.Type] = def
	r.sources[s.Type] = src
	return nil
}

// Get returns the schema of a chart type.
func (r *Registry) Get(chartType string) (*ChartSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.charts[chartType]
	return s, ok
}

// Source returns the CUE source of a chart type's definition.
func (r *Registry) Source(chartType string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src, ok := r.sources[chartType]
	return src, ok
}

// Types returns the registered chart types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.charts))
	for t := range r.charts {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// check unifies a plain value with the compiled definition of chartType.
func (r *Registry) check(chartType string, data map[string]any) error {
	r.mu.RLock()
	def, ok := r.defs[chartType]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("schema %s not found", chartType)
	}

	// cue.Context is not safe for concurrent use.
	r.mu.Lock()
	defer r.mu.Unlock()

	val := r.ctx.Encode(data)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}
	return def.Unify(val).Validate(cue.Concrete(true))
}

// Definition renders a chart schema as a closed CUE definition. Every field
// is optional in CUE; required fields are checked separately so that they
// can be reported as missing rather than invalid.
func Definition(s *ChartSchema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "// %s chart", s.Type)
	if s.Description != "" {
		fmt.Fprintf(&b, ": %s", s.Description)
	}
	b.WriteString("\n" + definitionName + ": {\n")
	for _, f := range s.Fields {
		if f.Description != "" {
			fmt.Fprintf(&b, "\t// %s\n", f.Description)
		}
		typ := f.Type
		if f.Opaque {
			typ = TypeAny
		}
		if f.Default != nil {
			if lit, ok := cueLiteral(f.Default); ok {
				typ = "*" + lit + " | " + typ
			}
		}
		fmt.Fprintf(&b, "\t%q?: %s\n", f.Name, typ)
	}
	if s.SeriesOverrides {
		b.WriteString("\t[=~\"^series_[0-9]+$\"]: {[string]: _}\n")
	}
	b.WriteString("}\n")
	return b.String()
}

func cueLiteral(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return fmt.Sprintf("%q", x), true
	case bool:
		return fmt.Sprintf("%t", x), true
	case int:
		return fmt.Sprintf("%d", x), true
	case float64:
		return fmt.Sprintf("%v", x), true
	}
	return "", false
}
