package frame

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// DType names the storage type of a column.
type DType string

const (
	Int64    DType = "int64"
	Float64  DType = "float64"
	Bool     DType = "bool"
	Object   DType = "object"
	Datetime DType = "datetime64[ns]"
)

// Column is a named, typed sequence of values. A nil entry is a missing value.
type Column struct {
	Name   string
	DType  DType
	Values []any
}

// Frame is an ordered set of equal-length columns.
type Frame struct {
	columns []*Column
	index   map[string]int
	rows    int
}

// New creates an empty frame with the given row count.
func New(rows int) *Frame {
	return &Frame{index: make(map[string]int), rows: rows}
}

// FromColumns builds a frame from named value sequences. All sequences must
// have the same length.
func FromColumns(names []string, values map[string][]any) (*Frame, error) {
	rows := -1
	for _, name := range names {
		vals, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("column %q has no values", name)
		}
		if rows >= 0 && len(vals) != rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", name, len(vals), rows)
		}
		rows = len(vals)
	}
	if rows < 0 {
		rows = 0
	}

	f := New(rows)
	for _, name := range names {
		if err := f.SetColumn(name, values[name]); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// FromRecords builds a frame from row mappings. Column order follows order;
// keys missing from a record become missing values.
func FromRecords(order []string, records []map[string]any) *Frame {
	f := New(len(records))
	for _, name := range order {
		vals := make([]any, len(records))
		for i, rec := range records {
			vals[i] = rec[name]
		}
		// lengths always match
		_ = f.SetColumn(name, vals)
	}
	return f
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return f.rows
}

// Columns returns the column names in order.
func (f *Frame) Columns() []string {
	names := make([]string, len(f.columns))
	for i, c := range f.columns {
		names[i] = c.Name
	}
	return names
}

// Has reports whether a column exists.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Column returns a column by name.
func (f *Frame) Column(name string) (*Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.columns[i], true
}

// Get returns the values of a column. It lets reference lookups treat a
// frame like a mapping of column names.
func (f *Frame) Get(name string) (any, bool) {
	c, ok := f.Column(name)
	if !ok {
		return nil, false
	}
	return c.Values, true
}

// SetColumn adds or replaces a column. Values are normalized and the dtype
// inferred.
func (f *Frame) SetColumn(name string, values []any) error {
	if len(values) != f.rows {
		if len(f.columns) > 0 {
			return fmt.Errorf("column %q has %d rows, frame has %d", name, len(values), f.rows)
		}
		f.rows = len(values)
	}
	dtype, norm := Normalize(values)
	col := &Column{Name: name, DType: dtype, Values: norm}
	if i, ok := f.index[name]; ok {
		f.columns[i] = col
		return nil
	}
	f.index[name] = len(f.columns)
	f.columns = append(f.columns, col)
	return nil
}

// Drop removes a column if present.
func (f *Frame) Drop(name string) {
	i, ok := f.index[name]
	if !ok {
		return
	}
	f.columns = append(f.columns[:i:i], f.columns[i+1:]...)
	f.reindex()
}

// Select keeps only the named columns, in the order given. Names that do not
// exist are returned.
func (f *Frame) Select(names []string) (missing []string) {
	kept := make([]*Column, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		c, ok := f.Column(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		kept = append(kept, c)
	}
	f.columns = kept
	f.reindex()
	return missing
}

// Rename renames columns. Renames of absent columns are ignored. A rename onto
// an existing column replaces it.
func (f *Frame) Rename(renames map[string]string) {
	for _, c := range f.columns {
		if to, ok := renames[c.Name]; ok && to != "" {
			c.Name = to
		}
	}
	out := make([]*Column, 0, len(f.columns))
	pos := make(map[string]int, len(f.columns))
	for _, c := range f.columns {
		if i, dup := pos[c.Name]; dup {
			out[i] = c
			continue
		}
		pos[c.Name] = len(out)
		out = append(out, c)
	}
	f.columns = out
	f.reindex()
}

// FilterRows keeps the rows for which keep returns true.
func (f *Frame) FilterRows(keep func(row int) bool) {
	var rows []int
	for i := 0; i < f.rows; i++ {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	for _, c := range f.columns {
		vals := make([]any, len(rows))
		for j, r := range rows {
			vals[j] = c.Values[r]
		}
		c.Values = vals
	}
	f.rows = len(rows)
}

// Value returns a single cell.
func (f *Frame) Value(column string, row int) any {
	c, ok := f.Column(column)
	if !ok || row < 0 || row >= f.rows {
		return nil
	}
	return c.Values[row]
}

// Record returns a row as a mapping of column name to value.
func (f *Frame) Record(row int) map[string]any {
	rec := make(map[string]any, len(f.columns))
	for _, c := range f.columns {
		rec[c.Name] = c.Values[row]
	}
	return rec
}

// Head returns up to n rows as records.
func (f *Frame) Head(n int) []map[string]any {
	if n > f.rows {
		n = f.rows
	}
	out := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, f.Record(i))
	}
	return out
}

// Records returns every row as a record.
func (f *Frame) Records() []map[string]any {
	return f.Head(f.rows)
}

// Clone returns a copy whose columns can be modified independently.
func (f *Frame) Clone() *Frame {
	out := New(f.rows)
	for _, c := range f.columns {
		vals := make([]any, len(c.Values))
		copy(vals, c.Values)
		out.index[c.Name] = len(out.columns)
		out.columns = append(out.columns, &Column{Name: c.Name, DType: c.DType, Values: vals})
	}
	return out
}

// MarshalJSON encodes the frame as a list of records.
func (f *Frame) MarshalJSON() ([]byte, error) {
	recs := f.Records()
	for _, rec := range recs {
		for k, v := range rec {
			rec[k] = jsonSafe(v)
		}
	}
	return json.Marshal(recs)
}

func (f *Frame) reindex() {
	f.index = make(map[string]int, len(f.columns))
	for i, c := range f.columns {
		f.index[c.Name] = i
	}
}

// jsonSafe maps values JSON cannot carry to null.
func jsonSafe(v any) any {
	if x, ok := v.(float64); ok && (math.IsNaN(x) || math.IsInf(x, 0)) {
		return nil
	}
	return v
}

// Normalize converts values to canonical Go types and infers the column dtype.
// Integers become int64 unless mixed with floats or missing values, in which
// case they become float64. NaN becomes a missing value.
func Normalize(values []any) (DType, []any) {
	out := make([]any, len(values))
	var ints, floats, bools, times, others, missing int
	for i, v := range values {
		v = canonical(v)
		out[i] = v
		switch v.(type) {
		case nil:
			missing++
		case int64:
			ints++
		case float64:
			floats++
		case bool:
			bools++
		case time.Time:
			times++
		default:
			others++
		}
	}

	present := len(values) - missing
	switch {
	case present == 0:
		if len(values) == 0 {
			return Object, out
		}
		return Float64, out
	case ints == present && missing == 0:
		return Int64, out
	case ints+floats == present:
		for i, v := range out {
			if n, ok := v.(int64); ok {
				out[i] = float64(n)
			}
		}
		return Float64, out
	case bools == present && missing == 0:
		return Bool, out
	case times == present:
		return Datetime, out
	default:
		return Object, out
	}
}

func canonical(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return canonical(float64(x))
	case float64:
		if math.IsNaN(x) {
			return nil
		}
		return x
	case *time.Time:
		if x == nil {
			return nil
		}
		return *x
	default:
		return v
	}
}

// AsFloat converts a numeric value to float64.
func AsFloat(v any) (float64, bool) {
	switch x := canonical(v).(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}
