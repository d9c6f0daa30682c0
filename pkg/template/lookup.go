package template

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Getter is implemented by values that expose named entries, such as a
// resolved context or a data frame.
type Getter interface {
	Get(name string) (any, bool)
}

type keyLister interface {
	Keys() []string
}

type columnLister interface {
	Columns() []string
}

// Lookup descends root along path. At each step the longest run of segments
// that names an existing key wins, so a column literally named "a.b" is found
// before a nested a -> b.
func Lookup(root any, path []string) (any, error) {
	cur := root
	traversed := make([]string, 0, len(path))
	for rest := path; len(rest) > 0; {
		matched := 0
		var next any
		for k := len(rest); k > 0; k-- {
			if v, ok := step(cur, strings.Join(rest[:k], ".")); ok {
				next, matched = v, k
				break
			}
		}
		if matched == 0 {
			return nil, missingKey(cur, rest[0], traversed)
		}
		traversed = append(traversed, strings.Join(rest[:matched], "."))
		cur = next
		rest = rest[matched:]
	}
	return cur, nil
}

func missingKey(cur any, key string, traversed []string) error {
	where := "(root)"
	if len(traversed) > 0 {
		where = strings.Join(traversed, ".")
	}
	if keys := availableKeys(cur); keys != nil {
		return fmt.Errorf("key %q does not exist; traversed: %s; available keys: [%s]",
			key, where, strings.Join(keys, ", "))
	}
	return fmt.Errorf("cannot access %q on %T; traversed: %s", key, cur, where)
}

func step(cur any, key string) (any, bool) {
	switch c := cur.(type) {
	case nil:
		return nil, false
	case Getter:
		return c.Get(key)
	case map[string]any:
		v, ok := c[key]
		return v, ok
	case []any:
		return index(reflect.ValueOf(c), key)
	}

	rv := reflect.ValueOf(cur)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Slice, reflect.Array:
		return index(rv, key)
	case reflect.Struct:
		return field(rv, key)
	}
	return nil, false
}

func index(rv reflect.Value, key string) (any, bool) {
	i, err := strconv.Atoi(key)
	if err != nil {
		return nil, false
	}
	if i < 0 {
		i += rv.Len()
	}
	if i < 0 || i >= rv.Len() {
		return nil, false
	}
	return rv.Index(i).Interface(), true
}

func field(rv reflect.Value, key string) (any, bool) {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if f.Name == key || jsonName(f) == key {
			return rv.Field(i).Interface(), true
		}
	}
	return nil, false
}

func jsonName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" || tag == "-" {
		return ""
	}
	return strings.SplitN(tag, ",", 2)[0]
}

func availableKeys(cur any) []string {
	switch c := cur.(type) {
	case keyLister:
		return c.Keys()
	case columnLister:
		return c.Columns()
	case map[string]any:
		keys := make([]string, 0, len(c))
		for k := range c {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys
	}

	rv := reflect.ValueOf(cur)
	for rv.IsValid() && (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return keys
	case reflect.Struct:
		t := rv.Type()
		var keys []string
		for i := 0; i < t.NumField(); i++ {
			if t.Field(i).IsExported() {
				keys = append(keys, t.Field(i).Name)
			}
		}
		return keys
	}
	return nil
}
