package engine

import "sort"

// DataKey is the context entry holding the primary data frame.
const DataKey = "data"

// ResolvedContext is the read-only mapping of names to values produced by a
// data load. Values are column sequences, frames, or scalars and opaque
// values returned by controllers. A context is never mutated once built, so
// it may be shared between documents through the loader cache.
type ResolvedContext struct {
	keys   []string
	values map[string]any
}

// ContextBuilder assembles a ResolvedContext. Later writes to the same name
// replace the value but keep the original position.
type ContextBuilder struct {
	keys   []string
	values map[string]any
}

// NewContextBuilder creates an empty builder.
func NewContextBuilder() *ContextBuilder {
	return &ContextBuilder{values: make(map[string]any)}
}

// Set records a named value.
func (b *ContextBuilder) Set(name string, value any) *ContextBuilder {
	if _, exists := b.values[name]; !exists {
		b.keys = append(b.keys, name)
	}
	b.values[name] = value
	return b
}

// Delete removes a named value.
func (b *ContextBuilder) Delete(name string) *ContextBuilder {
	if _, exists := b.values[name]; !exists {
		return b
	}
	delete(b.values, name)
	for i, k := range b.keys {
		if k == name {
			b.keys = append(b.keys[:i:i], b.keys[i+1:]...)
			break
		}
	}
	return b
}

// Get returns a value recorded so far.
func (b *ContextBuilder) Get(name string) (any, bool) {
	v, ok := b.values[name]
	return v, ok
}

// Build freezes the builder into a context. The builder must not be used afterwards.
func (b *ContextBuilder) Build() *ResolvedContext {
	ctx := &ResolvedContext{
		keys:   b.keys,
		values: b.values,
	}
	b.keys = nil
	b.values = nil
	return ctx
}

// NewResolvedContext builds a context from a plain map. Keys are ordered
// lexically since map order is not stable.
func NewResolvedContext(values map[string]any) *ResolvedContext {
	b := NewContextBuilder()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.Set(k, values[k])
	}
	return b.Build()
}

// Get returns the value recorded under name.
func (c *ResolvedContext) Get(name string) (any, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.values[name]
	return v, ok
}

// Keys returns the entry names in insertion order.
func (c *ResolvedContext) Keys() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Len returns the number of entries.
func (c *ResolvedContext) Len() int {
	if c == nil {
		return 0
	}
	return len(c.keys)
}

// Data returns the primary data frame entry, if any.
func (c *ResolvedContext) Data() (any, bool) {
	return c.Get(DataKey)
}

// Map returns a shallow copy of the entries.
func (c *ResolvedContext) Map() map[string]any {
	out := make(map[string]any, c.Len())
	if c == nil {
		return out
	}
	for k, v := range c.values {
		out[k] = v
	}
	return out
}
