package template

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/ncruces/go-strftime"

	"github.com/chartkit/chartkit/pkg/engine"
)

// specPattern is the standard format mini-language:
// [[fill]align][sign][#][0][width][grouping][.precision][type]
var specPattern = regexp.MustCompile(`^(?:(.)?([<>=^]))?([+\- ])?(#)?(0)?(\d+)?([,_])?(?:\.(\d+))?([bcdeEfFgGnosxX%])?$`)

type formatSpec struct {
	fill      rune
	align     byte
	sign      byte
	alt       bool
	width     int
	grouping  byte
	precision int
	hasPrec   bool
	verb      byte
}

func parseSpec(spec string) (formatSpec, error) {
	m := specPattern.FindStringSubmatch(spec)
	if m == nil {
		return formatSpec{}, fmt.Errorf("invalid format specifier %q", spec)
	}
	fs := formatSpec{fill: ' ', sign: '-', precision: -1}
	if m[1] != "" {
		fs.fill, _ = utf8.DecodeRuneInString(m[1])
	}
	if m[2] != "" {
		fs.align = m[2][0]
	}
	if m[3] != "" {
		fs.sign = m[3][0]
	}
	fs.alt = m[4] != ""
	if m[5] != "" && m[2] == "" {
		fs.fill, fs.align = '0', '='
	}
	if m[6] != "" {
		fs.width, _ = strconv.Atoi(m[6])
	}
	if m[7] != "" {
		fs.grouping = m[7][0]
	}
	if m[8] != "" {
		fs.precision, _ = strconv.Atoi(m[8])
		fs.hasPrec = true
	}
	if m[9] != "" {
		fs.verb = m[9][0]
	}
	return fs, nil
}

// Format renders a resolved value with a format spec. Numbers use the
// standard mini-language (".2f", ",.0f", "+.1%", ">10,d"), times use
// strftime directives ("%Y", "%b %d, %Y"). Collections cannot be formatted,
// and numeric specs on non-numeric values are configuration errors.
func Format(v any, spec string) (string, error) {
	switch x := v.(type) {
	case time.Time:
		if strings.Contains(spec, "%") {
			return strftime.Format(spec, x), nil
		}
		return "", formatError(v, spec, "time values take strftime specs")
	case *time.Time:
		if x != nil {
			return Format(*x, spec)
		}
	}

	if !scalar(v) {
		return "", formatError(v, spec, "format specs apply only to scalar values")
	}

	fs, err := parseSpec(spec)
	if err != nil {
		return "", formatError(v, spec, err.Error())
	}

	switch x := v.(type) {
	case nil:
		if (fs.verb != 0 && fs.verb != 's') || fs.sign != 0 || fs.grouping != 0 || fs.align == '=' {
			return "", formatError(v, spec, "unsupported format string passed to None")
		}
		return fs.pad("None", '<'), nil
	case string:
		return fs.formatString(x, v, spec)
	case bool:
		if fs.verb == 0 || fs.verb == 's' {
			s := "False"
			if x {
				s = "True"
			}
			return fs.formatString(s, v, spec)
		}
		n := int64(0)
		if x {
			n = 1
		}
		return fs.formatInt(n, v, spec)
	}

	if n, ok := asInt(v); ok {
		return fs.formatInt(n, v, spec)
	}
	if f, ok := asFloat(v); ok {
		return fs.formatFloat(f, v, spec)
	}
	return fs.formatString(fmt.Sprint(v), v, spec)
}

func (fs formatSpec) formatString(s string, v any, spec string) (string, error) {
	if fs.verb != 0 && fs.verb != 's' {
		return "", formatError(v, spec, fmt.Sprintf("unknown format code '%c' for %T", fs.verb, v))
	}
	if fs.sign != '-' || fs.grouping != 0 || fs.align == '=' {
		return "", formatError(v, spec, "sign, grouping and '=' alignment are not allowed for strings")
	}
	if fs.hasPrec && utf8.RuneCountInString(s) > fs.precision {
		s = string([]rune(s)[:fs.precision])
	}
	return fs.pad(s, '<'), nil
}

func (fs formatSpec) formatInt(n int64, v any, spec string) (string, error) {
	switch fs.verb {
	case 0, 'd', 'n':
		if fs.hasPrec {
			return "", formatError(v, spec, "precision not allowed in integer format specifier")
		}
		return fs.number(n < 0, group(strconv.FormatUint(absInt(n), 10), fs.grouping), ""), nil
	case 'b', 'o', 'x', 'X':
		if fs.hasPrec {
			return "", formatError(v, spec, "precision not allowed in integer format specifier")
		}
		base, prefix := map[byte]int{'b': 2, 'o': 8, 'x': 16, 'X': 16}[fs.verb], ""
		body := strconv.FormatUint(absInt(n), base)
		if fs.verb == 'X' {
			body = strings.ToUpper(body)
		}
		if fs.alt {
			prefix = "0" + string(fs.verb)
		}
		return fs.number(n < 0, prefix+body, ""), nil
	case 'c':
		return fs.pad(string(rune(n)), '<'), nil
	case 's':
		return "", formatError(v, spec, "unknown format code 's' for integer")
	default:
		return fs.formatFloat(float64(n), v, spec)
	}
}

func (fs formatSpec) formatFloat(f float64, v any, spec string) (string, error) {
	neg := math.Signbit(f) && !math.IsNaN(f)
	abs := math.Abs(f)

	if math.IsInf(f, 0) || math.IsNaN(f) {
		body := "inf"
		if math.IsNaN(f) {
			body = "nan"
		}
		if fs.verb == 'F' || fs.verb == 'E' || fs.verb == 'G' {
			body = strings.ToUpper(body)
		}
		suffix := ""
		if fs.verb == '%' {
			suffix = "%"
		}
		return fs.number(neg, body, suffix), nil
	}

	prec := fs.precision
	switch fs.verb {
	case 'd':
		if abs != math.Trunc(abs) || fs.hasPrec {
			return "", formatError(v, spec, "'d' requires an integral value")
		}
		digits := new(big.Float).SetFloat64(abs).Text('f', 0)
		return fs.number(neg, group(digits, fs.grouping), ""), nil
	case 'f', 'F':
		if prec < 0 {
			prec = 6
		}
		return fs.number(neg, groupFixed(strconv.FormatFloat(abs, 'f', prec, 64), fs.grouping), ""), nil
	case 'e', 'E':
		if prec < 0 {
			prec = 6
		}
		body := strconv.FormatFloat(abs, 'e', prec, 64)
		if fs.verb == 'E' {
			body = strings.ToUpper(body)
		}
		return fs.number(neg, body, ""), nil
	case 'g', 'G', 'n':
		if prec < 0 {
			prec = 6
		}
		if prec == 0 {
			prec = 1
		}
		body := strconv.FormatFloat(abs, 'g', prec, 64)
		if fs.verb == 'G' {
			body = strings.ToUpper(body)
		}
		return fs.number(neg, groupFixed(body, fs.grouping), ""), nil
	case '%':
		if prec < 0 {
			prec = 6
		}
		return fs.number(neg, groupFixed(strconv.FormatFloat(abs*100, 'f', prec, 64), fs.grouping), "%"), nil
	case 0:
		if fs.hasPrec {
			p := prec
			if p == 0 {
				p = 1
			}
			return fs.number(neg, strconv.FormatFloat(abs, 'g', p, 64), ""), nil
		}
		return fs.number(neg, groupFixed(floatRepr(abs), fs.grouping), ""), nil
	default:
		return "", formatError(v, spec, fmt.Sprintf("unknown format code '%c' for float", fs.verb))
	}
}

// number applies sign, suffix and padding to a formatted magnitude.
func (fs formatSpec) number(neg bool, body, suffix string) string {
	sign := ""
	switch {
	case neg:
		sign = "-"
	case fs.sign == '+':
		sign = "+"
	case fs.sign == ' ':
		sign = " "
	}
	body += suffix

	if fs.align == '=' {
		n := fs.width - utf8.RuneCountInString(sign) - utf8.RuneCountInString(body)
		if n > 0 {
			body = strings.Repeat(string(fs.fill), n) + body
		}
		return sign + body
	}
	return fs.pad(sign+body, '>')
}

func (fs formatSpec) pad(s string, defaultAlign byte) string {
	n := fs.width - utf8.RuneCountInString(s)
	if n <= 0 {
		return s
	}
	fill := string(fs.fill)
	align := fs.align
	if align == 0 || align == '=' {
		align = defaultAlign
	}
	switch align {
	case '<':
		return s + strings.Repeat(fill, n)
	case '^':
		left := n / 2
		return strings.Repeat(fill, left) + s + strings.Repeat(fill, n-left)
	default:
		return strings.Repeat(fill, n) + s
	}
}

// group inserts thousands separators into a run of integer digits.
func group(digits string, sep byte) string {
	if sep == 0 {
		return digits
	}
	b, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return digits
	}
	out := humanize.BigComma(b)
	if sep == '_' {
		out = strings.ReplaceAll(out, ",", "_")
	}
	return out
}

// groupFixed groups the integer part of a fixed-point number.
func groupFixed(s string, sep byte) string {
	if sep == 0 {
		return s
	}
	end := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' })
	if end < 0 {
		end = len(s)
	}
	return group(s[:end], sep) + s[end:]
}

// floatRepr renders the shortest round-tripping decimal form, always with a
// fractional part or an exponent.
func floatRepr(abs float64) string {
	if abs != 0 && (abs >= 1e16 || abs < 1e-4) {
		return strconv.FormatFloat(abs, 'e', -1, 64)
	}
	s := strconv.FormatFloat(abs, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func absInt(n int64) uint64 {
	if n < 0 {
		return uint64(-(n + 1)) + 1
	}
	return uint64(n)
}

func asInt(v any) (int64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	}
	if f, ok := v.(interface{ InexactFloat64() float64 }); ok {
		return f.InexactFloat64(), true
	}
	return 0, false
}

func scalar(v any) bool {
	if v == nil {
		return true
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return false
	}
	if _, ok := v.(Getter); ok {
		return false
	}
	return true
}

func formatError(v any, spec, reason string) error {
	return engine.NewConfigurationError(
		fmt.Sprintf("cannot apply format %q to value %v", spec, summarize(v)),
		errors.New(reason),
	).WithCode(engine.ErrCodeFormatSpec)
}

func summarize(v any) string {
	s := fmt.Sprint(v)
	if len(s) > 60 {
		s = s[:57] + "..."
	}
	return s
}
