package dataload

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/chartkit/chartkit/pkg/frame"
)

const (
	currencyThreshold  = 0.8
	currencyMinSamples = 3

	rawSuffix = "_raw"
)

var (
	currencyDetect = regexp.MustCompile(`^\$[\d,]+(?:\.\d{1,2})?$`)
	currencyStrip  = regexp.MustCompile(`(?i)[\$,]|\s*[MB]$`)
)

// LooksLikeCurrency reports whether at least 80% of the non-missing values,
// and at least three of them, are written like "$1,234" or "$1,234.56".
func LooksLikeCurrency(values []any) bool {
	var total, matches int
	for _, v := range values {
		if v == nil {
			continue
		}
		total++
		if currencyDetect.MatchString(cellString(v)) {
			matches++
		}
	}
	if total < currencyMinSamples {
		return false
	}
	return float64(matches)/float64(total) >= currencyThreshold
}

// CleanCurrency strips currency symbols, separators and M/B suffixes and
// parses the rest as a number scaled by multiplier. Values that do not parse
// become missing.
func CleanCurrency(values []any, multiplier float64) []any {
	m := decimal.NewFromFloat(multiplier)
	out := make([]any, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		s := strings.TrimSpace(currencyStrip.ReplaceAllString(cellString(v), ""))
		d, err := decimal.NewFromString(s)
		if err != nil {
			continue
		}
		out[i], _ = d.Mul(m).Float64()
	}
	return out
}

// cleanCurrencyColumns cleans every currency-like column of f, keeping the
// original values as <col>_raw. It returns the cleaned column names.
func cleanCurrencyColumns(f *frame.Frame, multiplier float64) []string {
	var cleaned []string
	for _, name := range f.Columns() {
		col, _ := f.Column(name)
		if !LooksLikeCurrency(col.Values) {
			continue
		}
		raw := col.Values
		_ = f.SetColumn(name+rawSuffix, raw)
		_ = f.SetColumn(name, CleanCurrency(raw, multiplier))
		cleaned = append(cleaned, name)
	}
	return cleaned
}
