package template

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chartkit/chartkit/pkg/engine"
)

// Mode selects how unresolved references are handled.
type Mode int

const (
	// Strict aborts resolution at the first unresolved reference.
	Strict Mode = iota

	// Lenient records a warning, drops the value and keeps going.
	Lenient
)

// String returns the mode name.
func (m Mode) String() string {
	if m == Lenient {
		return "lenient"
	}
	return "strict"
}

// Options control a resolution pass.
type Options struct {
	Mode Mode

	// Root prefixes every reported path, e.g. "chart".
	Root string

	// Interpolate reports whether a field substitutes tokens embedded in
	// prose. Nil means no field does.
	Interpolate func(path string) bool

	// Opaque reports whether a field passes through untouched. Nil means
	// every field is resolved.
	Opaque func(path string) bool
}

// Resolve replaces references in tree with values from ctx. The outcome
// value is a plain tree of maps, slices and scalars with the same shape as
// the input.
//
// In strict mode the first failure aborts and is the only error returned.
// In lenient mode failures are recorded as degraded issues: a mapping field
// whose value failed is omitted and a failed list element becomes nil.
func Resolve(tree Node, ctx any, opts Options) engine.Outcome {
	r := &resolver{ctx: ctx, opts: opts}
	v, _, err := r.resolve(tree, "")
	if err != nil {
		return engine.Outcome{Errors: []engine.ResolutionError{engine.IssueFromError(r.full(""), err)}}
	}
	r.out.Value = v
	return r.out
}

// ResolveValue builds a node tree from a plain value and resolves it.
func ResolveValue(v any, ctx any, opts Options) engine.Outcome {
	return Resolve(Build(v), ctx, opts)
}

type resolver struct {
	ctx  any
	opts Options
	out  engine.Outcome
}

// resolve returns the value for n and whether it should be kept.
func (r *resolver) resolve(n Node, path string) (any, bool, error) {
	if path != "" && r.opts.Opaque != nil && r.opts.Opaque(path) {
		return Plain(n), true, nil
	}

	switch x := n.(type) {
	case *Literal:
		return x.Value, true, nil

	case *Ref:
		if len(x.Refs) == 1 {
			return r.reference(x.Refs[0], path)
		}
		values := make([]any, len(x.Refs))
		for i, ref := range x.Refs {
			v, _, err := r.reference(ref, path)
			if err != nil {
				return nil, false, err
			}
			values[i] = v
		}
		return values, true, nil

	case *Interp:
		if r.opts.Interpolate == nil || !r.opts.Interpolate(path) {
			return x.Raw, true, nil
		}
		return r.interpolate(x, path)

	case *List:
		out := make([]any, len(x.Items))
		for i, item := range x.Items {
			v, _, err := r.resolve(item, join(path, strconv.Itoa(i)))
			if err != nil {
				return nil, false, err
			}
			out[i] = v
		}
		return out, true, nil

	case *Mapping:
		out := make(map[string]any, len(x.Keys))
		for _, k := range x.Keys {
			v, keep, err := r.resolve(x.Values[k], join(path, k))
			if err != nil {
				return nil, false, err
			}
			if keep {
				out[k] = v
			}
		}
		return out, true, nil

	case nil:
		return nil, true, nil

	default:
		return nil, false, engine.NewConfigurationError(fmt.Sprintf("unsupported node %T", n), nil).
			WithPath(r.full(path))
	}
}

// reference looks up one token and applies its format spec.
func (r *resolver) reference(ref Reference, path string) (any, bool, error) {
	v, err := r.lookup(ref, path)
	if err == nil {
		return v, true, nil
	}
	if r.opts.Mode == Strict {
		return nil, false, err
	}
	r.out.Warn(engine.IssueFromError(r.full(path), err))
	return nil, false, nil
}

func (r *resolver) lookup(ref Reference, path string) (any, error) {
	v, err := Lookup(r.ctx, ref.Path)
	if err != nil {
		return nil, engine.NewUnresolvedReferenceError(r.full(path), ref.Raw, err)
	}
	if !ref.HasFormat {
		return v, nil
	}
	s, err := Format(v, ref.FormatSpec)
	if err != nil {
		if ce, ok := err.(*engine.ChartError); ok {
			ce.WithPath(r.full(path))
		}
		return nil, err
	}
	return s, nil
}

func (r *resolver) interpolate(x *Interp, path string) (any, bool, error) {
	var b strings.Builder
	last := 0
	for _, m := range tokenPattern.FindAllStringSubmatchIndex(x.Raw, -1) {
		b.WriteString(x.Raw[last:m[0]])
		last = m[1]

		ref, ok := parseToken(x.Raw[m[0]:m[1]], x.Raw[m[2]:m[3]])
		if !ok {
			b.WriteString(x.Raw[m[0]:m[1]])
			continue
		}
		v, err := r.lookup(ref, path)
		if err != nil {
			if r.opts.Mode == Strict {
				return nil, false, err
			}
			r.out.Warn(engine.IssueFromError(r.full(path), err))
			b.WriteString(ref.Raw)
			continue
		}
		b.WriteString(stringify(v))
	}
	b.WriteString(x.Raw[last:])
	return b.String(), true, nil
}

// stringify renders a value for embedding in prose.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	}
	if scalar(v) {
		if s, err := Format(v, ""); err == nil {
			return s
		}
	}
	return fmt.Sprint(v)
}

func (r *resolver) full(path string) string {
	return join(r.opts.Root, path)
}

func join(parent, key string) string {
	if parent == "" {
		return key
	}
	if key == "" {
		return parent
	}
	return parent + "." + key
}
