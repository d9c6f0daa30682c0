package dataload

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/chartkit/chartkit/pkg/engine"
	"github.com/chartkit/chartkit/pkg/frame"
)

// TransitionQuarter is the 1976 fiscal transition quarter. It is kept as a
// string in fiscal year columns.
const TransitionQuarter = "1976 TQ"

// FiscalYearStrategy picks the fiscal year column of a frame.
type FiscalYearStrategy interface {
	Detect(f *frame.Frame) (column string, ok bool)
}

// NamePattern detects the first column whose trimmed name matches a pattern.
type NamePattern struct {
	Pattern *regexp.Regexp
}

// Detect implements FiscalYearStrategy.
func (s NamePattern) Detect(f *frame.Frame) (string, bool) {
	for _, name := range f.Columns() {
		if s.Pattern.MatchString(strings.TrimSpace(name)) {
			return name, true
		}
	}
	return "", false
}

// DefaultFiscalYearStrategy matches "Fiscal Year", "FY", "FY2024" and
// "Year", ignoring case.
func DefaultFiscalYearStrategy() FiscalYearStrategy {
	return NamePattern{Pattern: regexp.MustCompile(`(?i)^(fiscal\s*year|fy\d{0,4}|year)$`)}
}

// applyFiscalYear converts the fiscal year column to January 1 dates and
// drops rows without a usable year.
func (l *Loader) applyFiscalYear(f *frame.Frame, opt *engine.FiscalYearOption, w *warningList) {
	var name string
	switch {
	case opt != nil && opt.Disabled:
		return
	case opt != nil && opt.Column != "":
		name = opt.Column
		if !f.Has(name) {
			w.add("fiscal_year_column %q not found", name)
			return
		}
	default:
		var ok bool
		if name, ok = l.strategy.Detect(f); !ok {
			return
		}
	}

	col, _ := f.Column(name)
	years := make([]any, len(col.Values))
	for i, v := range col.Values {
		years[i] = FiscalYearValue(v)
	}
	_ = f.SetColumn(name, years)

	before := f.Len()
	f.FilterRows(func(row int) bool { return years[row] != nil })
	if dropped := before - f.Len(); dropped > 0 {
		w.add("dropped %d rows with invalid fiscal year values in %q", dropped, name)
	}
}

// FiscalYearValue normalizes one fiscal year cell: a year between 1900 and
// 2100 becomes January 1 of that year, anything naming the transition
// quarter becomes "1976 TQ", and the rest is missing.
func FiscalYearValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		return yearStart(x.Year())
	case string:
		s := strings.TrimSpace(x)
		if strings.Contains(strings.ToUpper(s), "TQ") {
			return TransitionQuarter
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return yearStart(int(f))
	case bool:
		return nil
	}
	if f, ok := frame.AsFloat(v); ok {
		return yearStart(int(f))
	}
	return nil
}

func yearStart(year int) any {
	if year < 1900 || year > 2100 {
		return nil
	}
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

var datePrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// looksLikeDates reports whether the first non-missing value is a date or a
// YYYY-MM-DD string. Fiscal year columns hold January 1 dates and qualify.
func looksLikeDates(values []any) bool {
	for _, v := range values {
		switch x := v.(type) {
		case nil:
			continue
		case time.Time:
			return true
		case string:
			return datePrefix.MatchString(x)
		default:
			return false
		}
	}
	return false
}

// roundToYears maps dates to years, rounding dates on or after June 15 up to
// the next year.
func roundToYears(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		var t time.Time
		switch x := v.(type) {
		case time.Time:
			t = x
		case string:
			if !datePrefix.MatchString(x) {
				continue
			}
			parsed, err := time.Parse("2006-01-02", x[:10])
			if err != nil {
				continue
			}
			t = parsed
		default:
			continue
		}
		year := t.Year()
		if t.Month() > time.June || (t.Month() == time.June && t.Day() >= 15) {
			year++
		}
		out[i] = int64(year)
	}
	return out
}
