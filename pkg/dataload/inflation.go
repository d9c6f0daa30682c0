package dataload

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chartkit/chartkit/pkg/engine"
	"github.com/chartkit/chartkit/pkg/frame"
)

// InflationTargetYearKey is the context entry holding the constant-dollar year.
const InflationTargetYearKey = "inflation_target_year"

// Default index table locations.
const (
	DefaultNNSISource = "https://docs.google.com/spreadsheets/d/1t7hYjU6AIAovar5sqi7cHXPmkWu6uAujsptMtGukQrA/export?format=csv"
	DefaultGDPSource  = "https://fred.stlouisfed.org/graph/fredgraph.csv?id=GDPDEF"
)

// IndexTable maps fiscal years to the multiplier that converts nominal
// values of that year to constant dollars of Target.
type IndexTable struct {
	Index       engine.InflationIndex
	Target      int
	Multipliers map[string]float64

	// Warnings describe a partially covered target year.
	Warnings []string
}

// Adjust converts a nominal value from year to the target year. Years
// missing from the table are left unadjusted.
func (t *IndexTable) Adjust(year any, value float64) float64 {
	if m, ok := t.Multipliers[t.key(year)]; ok {
		return value * m
	}
	return value
}

func (t *IndexTable) key(year any) string {
	var s string
	switch x := year.(type) {
	case time.Time:
		s = strconv.Itoa(x.Year())
	case string:
		s = x
	default:
		if f, ok := frame.AsFloat(year); ok {
			s = strconv.Itoa(int(f))
		} else {
			s = fmt.Sprint(year)
		}
	}
	s = strings.ToUpper(strings.TrimSpace(s))
	if t.Index == engine.InflationNNSI && strings.HasSuffix(s, "TQ") {
		return "TQ"
	}
	return s
}

// Indexes fetches index tables once per process and memoizes the tables
// derived from them for each target year.
type Indexes struct {
	fetch   Fetcher
	sources map[engine.InflationIndex]string

	mu     sync.Mutex
	raw    map[engine.InflationIndex][][]string
	tables map[string]*IndexTable
}

// NewIndexes creates index tables read through fetch from the default
// sources.
func NewIndexes(fetch Fetcher) *Indexes {
	return &Indexes{
		fetch: fetch,
		sources: map[engine.InflationIndex]string{
			engine.InflationNNSI: DefaultNNSISource,
			engine.InflationGDP:  DefaultGDPSource,
		},
		raw:    make(map[engine.InflationIndex][][]string),
		tables: make(map[string]*IndexTable),
	}
}

// SetSource overrides where an index table is read from.
func (ix *Indexes) SetSource(index engine.InflationIndex, location string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.sources[index] = location
	delete(ix.raw, index)
	for key, t := range ix.tables {
		if t.Index == index {
			delete(ix.tables, key)
		}
	}
}

// Table returns the multipliers of index for a target year.
func (ix *Indexes) Table(ctx context.Context, index engine.InflationIndex, target int) (*IndexTable, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	key := fmt.Sprintf("%s/%d", index, target)
	if t, ok := ix.tables[key]; ok {
		return t, nil
	}

	rows, ok := ix.raw[index]
	if !ok {
		location, known := ix.sources[index]
		if !known {
			return nil, inflationError(fmt.Sprintf("unknown inflation index %q", index), nil)
		}
		data, err := ix.fetch(ctx, location)
		if err != nil {
			return nil, inflationError(fmt.Sprintf("failed to load %s index table", index), err)
		}
		r := csv.NewReader(bytes.NewReader(data))
		r.FieldsPerRecord = -1
		if rows, err = r.ReadAll(); err != nil {
			return nil, inflationError(fmt.Sprintf("failed to parse %s index table", index), err)
		}
		ix.raw[index] = rows
	}

	var (
		t   *IndexTable
		err error
	)
	switch index {
	case engine.InflationNNSI:
		t, err = parseNNSI(rows, target)
	case engine.InflationGDP:
		t, err = parseGDP(rows, target)
	default:
		err = fmt.Errorf("unknown inflation index %q", index)
	}
	if err != nil {
		return nil, inflationError(fmt.Sprintf("no %s inflation data for FY %d", index, target), err)
	}

	ix.tables[key] = t
	return t, nil
}

func inflationError(msg string, err error) error {
	return engine.NewDataSourceError(msg, err).
		WithCode(engine.ErrCodeInflation).
		WithPath("data.calculate_inflation")
}

// parseNNSI reads the NASA New Start Index sheet: title rows, a header row
// starting with "YEAR" that lists target years, then one "FROM <year>" row
// per source year holding multipliers (plain or percentages).
func parseNNSI(rows [][]string, target int) (*IndexTable, error) {
	header := -1
	for i, row := range rows {
		if len(row) > 0 && strings.ToUpper(strings.TrimSpace(row[0])) == "YEAR" {
			header = i
			break
		}
	}
	if header < 0 {
		return nil, fmt.Errorf("NNSI table header row not found")
	}

	col := -1
	for j, cell := range rows[header] {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			break
		}
		if year, err := strconv.Atoi(cell); err == nil && year == target {
			col = j
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("NNSI table has no column for FY %d", target)
	}

	t := &IndexTable{Index: engine.InflationNNSI, Target: target, Multipliers: make(map[string]float64)}
	for _, row := range rows[header+1:] {
		if len(row) <= col {
			continue
		}
		label := strings.ToUpper(strings.TrimSpace(row[0]))
		if !strings.HasPrefix(label, "FROM") {
			continue
		}
		m, ok := indexNumber(row[col])
		if !ok {
			continue
		}
		t.Multipliers[strings.TrimSpace(strings.TrimPrefix(label, "FROM"))] = m
	}
	if len(t.Multipliers) == 0 {
		return nil, fmt.Errorf("NNSI table has no multipliers for FY %d", target)
	}

	tq, ok := t.Multipliers["TQ"]
	if !ok {
		tq = 1
	}
	t.Multipliers[TransitionQuarter] = tq
	return t, nil
}

func indexNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.HasSuffix(s, "%") {
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
		return f / 100, err == nil
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// parseGDP reads the FRED GDPDEF quarterly series and averages it into
// October to September fiscal years.
func parseGDP(rows [][]string, target int) (*IndexTable, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("GDP deflator table is empty")
	}

	dateCol, valueCol := -1, -1
	for j, name := range rows[0] {
		switch strings.TrimSpace(name) {
		case "observation_date", "DATE":
			dateCol = j
		case "GDPDEF":
			valueCol = j
		}
	}
	if dateCol < 0 || valueCol < 0 {
		return nil, fmt.Errorf("GDP deflator table needs observation_date and GDPDEF columns")
	}

	sums := make(map[int]float64)
	counts := make(map[int]int)
	for _, row := range rows[1:] {
		if len(row) <= dateCol || len(row) <= valueCol {
			continue
		}
		v := strings.TrimSpace(row[valueCol])
		if v == "" || v == "." {
			continue
		}
		value, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		date, err := time.Parse("2006-01-02", strings.TrimSpace(row[dateCol]))
		if err != nil {
			continue
		}
		fy := FiscalYearOf(date)
		sums[fy] += value
		counts[fy]++
	}

	if counts[target] == 0 {
		return nil, fmt.Errorf("GDP deflator table lacks FY %d", target)
	}
	base := sums[target] / float64(counts[target])

	t := &IndexTable{Index: engine.InflationGDP, Target: target, Multipliers: make(map[string]float64, len(sums))}
	for fy, sum := range sums {
		t.Multipliers[strconv.Itoa(fy)] = base / (sum / float64(counts[fy]))
	}
	if n := counts[target]; n < 4 {
		t.Warnings = append(t.Warnings, fmt.Sprintf("GDP deflator FY %d computed from %d quarters", target, n))
	}
	return t, nil
}

// FiscalYearOf returns the federal fiscal year of a date. Fiscal years start
// on October 1, so the fourth calendar quarter belongs to the next year.
func FiscalYearOf(t time.Time) int {
	if t.Month() >= time.October {
		return t.Year() + 1
	}
	return t.Year()
}

// applyInflation adds <col>_adjusted_<index> columns and returns the target
// year used.
func (l *Loader) applyInflation(ctx context.Context, f *frame.Frame, cfg *engine.InflationConfig, w *warningList) (int, error) {
	fyName := cfg.YearColumn()
	fyCol, ok := f.Column(fyName)
	if !ok {
		return 0, inflationError(fmt.Sprintf("fiscal year column %q not found", fyName), nil)
	}

	target := cfg.TargetYear
	if target == 0 {
		target = latestYear(fyCol.Values)
		if target == 0 {
			return 0, inflationError(fmt.Sprintf("no fiscal years in column %q to pick a target year from", fyName), nil)
		}
	}

	index := cfg.Index()
	table, err := l.indexes.Table(ctx, index, target)
	if err != nil {
		return 0, err
	}
	for _, msg := range table.Warnings {
		w.add("%s", msg)
	}

	for _, name := range cfg.Columns {
		col, ok := f.Column(name)
		if !ok {
			w.add("inflation column %q not found", name)
			continue
		}
		out := make([]any, len(col.Values))
		for i, v := range col.Values {
			x, ok := frame.AsFloat(v)
			if !ok {
				continue
			}
			out[i] = table.Adjust(fyCol.Values[i], x)
		}
		_ = f.SetColumn(fmt.Sprintf("%s_adjusted_%s", name, index), out)
	}

	l.logger.Debug().
		Str("index", string(index)).
		Int("target_year", target).
		Strs("columns", cfg.Columns).
		Msg("Applied inflation adjustment")

	return target, nil
}

// latestYear returns the most recent year in a fiscal year column, or zero.
func latestYear(values []any) int {
	latest := 0
	for _, v := range values {
		var year int
		switch x := v.(type) {
		case time.Time:
			year = x.Year()
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
				year = n
			}
		default:
			if f, ok := frame.AsFloat(v); ok {
				year = int(f)
			}
		}
		if year > latest {
			latest = year
		}
	}
	return latest
}
