package dataload

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/chartkit/chartkit/pkg/engine"
	"github.com/chartkit/chartkit/pkg/frame"
)

// Cast types accepted in params.cast.
const (
	CastInt      = "int"
	CastFloat    = "float"
	CastString   = "str"
	CastDatetime = "datetime"
)

var castTypes = map[string]bool{CastInt: true, CastFloat: true, CastString: true, CastDatetime: true}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
}

// warningList collects non-fatal load problems.
type warningList struct {
	errs *multierror.Error
}

func (w *warningList) add(format string, args ...any) {
	w.errs = multierror.Append(w.errs, fmt.Errorf(format, args...))
}

func (w *warningList) strings() []string {
	if w == nil || w.errs == nil {
		return nil
	}
	out := make([]string, len(w.errs.Errors))
	for i, err := range w.errs.Errors {
		out[i] = err.Error()
	}
	return out
}

// applyParams transforms f in place. remote selects the currency cleaning
// default.
func (l *Loader) applyParams(f *frame.Frame, p *engine.LoadParams, remote bool) *warningList {
	w := &warningList{}

	if p.Columns != nil && len(p.Columns) == 0 {
		w.add("params.columns is empty; all columns kept")
	}
	if len(p.Columns) > 0 {
		if missing := f.Select(p.Columns); len(missing) > 0 {
			w.add("columns not found in data: %s", strings.Join(missing, ", "))
		}
	}

	if len(p.Renames) > 0 {
		f.Rename(p.Renames)
	}

	for _, name := range sortedKeys(p.Cast) {
		applyCast(f, name, p.Cast[name], w)
	}

	clean := remote
	if p.AutoCleanCurrency != nil {
		clean = *p.AutoCleanCurrency
	}
	if clean {
		multiplier := 1.0
		if p.CurrencyMultiplier != nil {
			multiplier = *p.CurrencyMultiplier
		}
		for _, name := range cleanCurrencyColumns(f, multiplier) {
			l.logger.Debug().Str("column", name).Msg("Cleaned currency column")
		}
	}

	l.applyFiscalYear(f, p.FiscalYearColumn, w)
	return w
}

func applyCast(f *frame.Frame, name, to string, w *warningList) {
	col, ok := f.Column(name)
	if !ok {
		w.add("cast column %q not found", name)
		return
	}
	if !castTypes[to] {
		w.add("unknown cast type %q for column %q, valid types: int, float, str, datetime", to, name)
		return
	}

	out := make([]any, len(col.Values))
	for i, v := range col.Values {
		out[i] = castValue(v, to)
	}
	_ = f.SetColumn(name, out)
}

// castValue converts one cell. Values that cannot be converted become missing.
func castValue(v any, to string) any {
	if v == nil {
		return nil
	}
	switch to {
	case CastInt:
		x, ok := toNumber(v)
		if !ok {
			return nil
		}
		return int64(x)
	case CastFloat:
		x, ok := toNumber(v)
		if !ok {
			return nil
		}
		return x
	case CastString:
		return cellString(v)
	case CastDatetime:
		return toTime(v)
	}
	return v
}

func toNumber(v any) (float64, bool) {
	if x, ok := frame.AsFloat(v); ok {
		return x, true
	}
	switch x := v.(type) {
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

func toTime(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	}
	return nil
}

func cellString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(x)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
