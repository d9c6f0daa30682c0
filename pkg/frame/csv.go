package frame

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrEmptyCSV is returned when a CSV document has no header row.
var ErrEmptyCSV = errors.New("csv has no header row")

// ReadCSV parses a CSV document with a header row. Each column is typed as a
// whole: int64 when every present cell is an integer, float64 when every
// present cell is numeric, bool for True/False columns, and strings otherwise.
// Empty cells are missing values.
func ReadCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyCSV
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	names := headerNames(header)

	cells := make([][]string, len(names))
	rows := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row %d: %w", rows+2, err)
		}
		if blank(rec) {
			continue
		}
		for i := range names {
			cell := ""
			if i < len(rec) {
				cell = rec[i]
			}
			cells[i] = append(cells[i], cell)
		}
		rows++
	}

	f := New(rows)
	for i, name := range names {
		col := cells[i]
		if col == nil {
			col = []string{}
		}
		if err := f.SetColumn(name, parseCells(col)); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// headerNames cleans header cells and disambiguates duplicates with a
// numeric suffix.
func headerNames(header []string) []string {
	names := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			seen[name] = 0
		}
		names[i] = name
	}
	return names
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseCells(cells []string) []any {
	out := make([]any, len(cells))

	numeric, boolean := true, true
	for _, c := range cells {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, err := strconv.ParseFloat(c, 64); err != nil {
			numeric = false
		}
		if _, ok := parseBool(c); !ok {
			boolean = false
		}
	}

	for i, c := range cells {
		t := strings.TrimSpace(c)
		if t == "" {
			continue
		}
		switch {
		case numeric:
			if n, err := strconv.ParseInt(t, 10, 64); err == nil {
				out[i] = n
			} else {
				x, _ := strconv.ParseFloat(t, 64)
				out[i] = x
			}
		case boolean:
			out[i], _ = parseBool(t)
		default:
			out[i] = c
		}
	}
	return out
}

func parseBool(s string) (bool, bool) {
	switch s {
	case "True", "TRUE", "true":
		return true, true
	case "False", "FALSE", "false":
		return false, true
	}
	return false, false
}
