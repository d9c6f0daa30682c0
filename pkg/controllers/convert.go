package controllers

import (
	"fmt"
	"time"

	startime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/chartkit/chartkit/pkg/engine"
	"github.com/chartkit/chartkit/pkg/frame"
)

// resultMap converts a method's returned dict. A "data" entry holding a
// dict of equal-length lists becomes a frame with the dict's column order.
func resultMap(d *starlark.Dict) (map[string]any, error) {
	out := make(map[string]any, d.Len())
	for _, item := range d.Items() {
		key, ok := starlark.AsString(item[0])
		if !ok {
			return nil, invalidReturn(fmt.Sprintf("result keys must be strings, got %s", item[0].Type()))
		}

		if cols, ok := item[1].(*starlark.Dict); ok && key == engine.DataKey {
			if f, ok, err := dictFrame(cols); err != nil {
				return nil, err
			} else if ok {
				out[key] = f
				continue
			}
		}

		v, err := fromStarlark(item[1])
		if err != nil {
			return nil, invalidReturn(fmt.Sprintf("result %s: %v", key, err))
		}
		out[key] = v
	}
	return out, nil
}

// dictFrame builds a frame from a dict of lists. ok is false when the dict
// is not columnar.
func dictFrame(d *starlark.Dict) (*frame.Frame, bool, error) {
	names := make([]string, 0, d.Len())
	values := make(map[string][]any, d.Len())
	for _, item := range d.Items() {
		name, ok := starlark.AsString(item[0])
		if !ok {
			return nil, false, nil
		}
		list, ok := item[1].(*starlark.List)
		if !ok {
			return nil, false, nil
		}
		v, err := fromStarlark(list)
		if err != nil {
			return nil, false, invalidReturn(fmt.Sprintf("column %s: %v", name, err))
		}
		names = append(names, name)
		values[name] = v.([]any)
	}

	f, err := frame.FromColumns(names, values)
	if err != nil {
		return nil, false, invalidReturn(err.Error())
	}
	return f, true, nil
}

func invalidReturn(msg string) error {
	return engine.NewDataSourceError(msg, nil).
		WithCode(engine.ErrCodeInvalidReturn).
		WithPath("data.source")
}

// toStarlark converts a Go value to a Starlark value.
func toStarlark(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case time.Time:
		return startime.Time(val), nil
	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlark converts a Starlark value to a Go value.
func fromStarlark(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		if i, ok := val.Int64(); ok {
			return i, nil
		}
		return float64(val.Float()), nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case startime.Time:
		return time.Time(val), nil
	case *starlark.List:
		return iterate(val, val.Len())
	case starlark.Tuple:
		return iterate(val, val.Len())
	case *starlark.Dict:
		dict := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			key, ok := starlark.AsString(item[0])
			if !ok {
				key = item[0].String()
			}
			value, err := fromStarlark(item[1])
			if err != nil {
				return nil, err
			}
			dict[key] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]any)
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			if _, fn := attr.(starlark.Callable); fn {
				continue
			}
			value, err := fromStarlark(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}

func iterate(it starlark.Indexable, n int) ([]any, error) {
	list := make([]any, n)
	for i := 0; i < n; i++ {
		item, err := fromStarlark(it.Index(i))
		if err != nil {
			return nil, err
		}
		list[i] = item
	}
	return list, nil
}
