package dataload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/chartkit/chartkit/pkg/controllers"
	"github.com/chartkit/chartkit/pkg/engine"
	"github.com/chartkit/chartkit/pkg/frame"
)

const budgetCSV = `Fiscal Year,Amount,Launch Date,Notes
2022,"$1,000",2022-03-01,a
2023,"$2,500.50",2022-07-20,b
2024,"$3,000",2023-06-15,c
Totals,"$6,500.50",,
`

func newTestLoader(t *testing.T, fs afero.Fs, opts ...Option) *Loader {
	t.Helper()
	opts = append([]Option{
		WithFs(fs),
		WithHTTPClient(NewHTTPClient(0, zerolog.Nop())),
	}, opts...)
	l, err := NewLoader(opts...)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	return l
}

func boolPtr(b bool) *bool { return &b }
func floatPtr(f float64) *float64 { return &f }

func jan1(year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

func mustGet(t *testing.T, ctx *engine.ResolvedContext, key string) any {
	t.Helper()
	v, ok := ctx.Get(key)
	if !ok {
		t.Fatalf("context has no %q; keys: %v", key, ctx.Keys())
	}
	return v
}

func hasCode(err error, code string) bool {
	var ce *engine.ChartError
	return errors.As(err, &ce) && ce.Code == code
}

func TestLoad_LocalCSV(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/data/budget.csv", []byte(budgetCSV), 0o644)
	l := newTestLoader(t, fs)

	res, err := l.Load(context.Background(),
		engine.SourceLocator{Kind: engine.SourceLocalCSV, Location: "/data/budget.csv"},
		engine.DataSourceConfig{
			Source: "/data/budget.csv",
			Params: &engine.LoadParams{AutoCleanCurrency: boolPtr(true)},
		})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	rctx := res.Context

	f, ok := mustGet(t, rctx, engine.DataKey).(*frame.Frame)
	if !ok {
		t.Fatalf("data entry is not a frame")
	}
	if f.Len() != 3 {
		t.Errorf("Len() = %d, want 3 after dropping the totals row", f.Len())
	}

	tests := []struct {
		key  string
		want any
	}{
		{"Fiscal Year", []any{jan1(2022), jan1(2023), jan1(2024)}},
		{"Amount", []any{1000.0, 2500.5, 3000.0}},
		{"Amount_raw", []any{"$1,000", "$2,500.50", "$3,000"}},
		{"Launch Date_year", []any{int64(2022), int64(2023), int64(2024)}},
		{"Fiscal Year_year", []any{int64(2022), int64(2023), int64(2024)}},
		{"Notes", []any{"a", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, mustGet(t, rctx, tt.key)); diff != "" {
				t.Errorf("%s mismatch (-want +got):\n%s", tt.key, diff)
			}
		})
	}

	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "dropped 1 rows") {
		t.Errorf("Warnings = %v, want one dropped-rows warning", res.Warnings)
	}
}

func TestLoad_Params(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/data/budget.csv", []byte(budgetCSV), 0o644)
	l := newTestLoader(t, fs)

	res, err := l.Load(context.Background(),
		engine.SourceLocator{Kind: engine.SourceLocalCSV, Location: "/data/budget.csv"},
		engine.DataSourceConfig{
			Source: "/data/budget.csv",
			Params: &engine.LoadParams{
				Columns:          []string{"Fiscal Year", "Notes", "Missing"},
				Renames:          map[string]string{"Notes": "Label"},
				Cast:             map[string]string{"Label": "str", "Fiscal Year": "decimal"},
				FiscalYearColumn: &engine.FiscalYearOption{Disabled: true},
			},
		})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	f, _ := mustGet(t, res.Context, engine.DataKey).(*frame.Frame)
	if diff := cmp.Diff([]string{"Fiscal Year", "Label"}, f.Columns()); diff != "" {
		t.Errorf("Columns() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{"2022", "2023", "2024", "Totals"}, mustGet(t, res.Context, "Fiscal Year")); diff != "" {
		t.Errorf("fiscal year column should be untouched (-want +got):\n%s", diff)
	}
	if _, ok := res.Context.Get("Amount"); ok {
		t.Error("filtered column should not be in the context")
	}

	wantWarnings := []string{"Missing", "unknown cast type"}
	if len(res.Warnings) != len(wantWarnings) {
		t.Fatalf("Warnings = %v", res.Warnings)
	}
	for i, want := range wantWarnings {
		if !strings.Contains(res.Warnings[i], want) {
			t.Errorf("Warnings[%d] = %q, want it to mention %q", i, res.Warnings[i], want)
		}
	}
}

func TestLoad_EmptyColumnsKeepsAll(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/data/budget.csv", []byte(budgetCSV), 0o644)
	l := newTestLoader(t, fs)

	res, err := l.Load(context.Background(),
		engine.SourceLocator{Kind: engine.SourceLocalCSV, Location: "/data/budget.csv"},
		engine.DataSourceConfig{
			Source: "/data/budget.csv",
			Params: &engine.LoadParams{
				Columns:          []string{},
				FiscalYearColumn: &engine.FiscalYearOption{Disabled: true},
			},
		})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, ok := res.Context.Get("Amount"); !ok {
		t.Error("all columns should be kept")
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "params.columns is empty") {
		t.Errorf("Warnings = %v, want an empty-columns warning", res.Warnings)
	}
}

func TestLoad_FiscalYearOverride(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/d.csv", []byte("Period,Value\n2020,1\n2021.0,2\n1976 TQ,3\nn/a,4\n"), 0o644)
	l := newTestLoader(t, fs)

	res, err := l.Load(context.Background(),
		engine.SourceLocator{Kind: engine.SourceLocalCSV, Location: "/d.csv"},
		engine.DataSourceConfig{
			Source: "/d.csv",
			Params: &engine.LoadParams{FiscalYearColumn: &engine.FiscalYearOption{Column: "Period"}},
		})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := []any{jan1(2020), jan1(2021), TransitionQuarter}
	if diff := cmp.Diff(want, mustGet(t, res.Context, "Period")); diff != "" {
		t.Errorf("Period mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{int64(1), int64(2), int64(3)}, mustGet(t, res.Context, "Value")); diff != "" {
		t.Errorf("Value mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_RemoteCSV(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/sheet.csv", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, "Year,Cost\n2020,\"$1,200\"\n2021,\"$1,300\"\n2022,\"$1,400\"\n")
	})
	mux.HandleFunc("/missing.csv", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	obs := &countingObserver{}
	l := newTestLoader(t, afero.NewMemMapFs(), WithCacheObserver(obs))
	loc := engine.SourceLocator{Kind: engine.SourceRemoteCSV, Location: srv.URL + "/sheet.csv"}
	cfg := engine.DataSourceConfig{
		Source: loc.Location,
		Params: &engine.LoadParams{CurrencyMultiplier: floatPtr(1000)},
	}

	first, err := l.Load(context.Background(), loc, cfg)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff([]any{1200000.0, 1300000.0, 1400000.0}, mustGet(t, first.Context, "Cost")); diff != "" {
		t.Errorf("Cost mismatch (-want +got):\n%s", diff)
	}
	if first.Cached {
		t.Error("first load should not be cached")
	}

	second, err := l.Load(context.Background(), loc, cfg)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !second.Cached || second.Context != first.Context {
		t.Error("second load should be served from the cache")
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
	if obs.hits != 1 || obs.misses != 1 {
		t.Errorf("observer hits=%d misses=%d, want 1/1", obs.hits, obs.misses)
	}

	t.Run("not found", func(t *testing.T) {
		_, err := l.Load(context.Background(),
			engine.SourceLocator{Kind: engine.SourceRemoteCSV, Location: srv.URL + "/missing.csv"},
			engine.DataSourceConfig{Source: srv.URL + "/missing.csv"})
		if !engine.IsDataSourceError(err) || !hasCode(err, engine.ErrCodeFetchFailed) {
			t.Errorf("expected FETCH_FAILED data source error, got %v", err)
		}
	})
}

func TestLoad_ConcurrentMissesShareOneFetch(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		fmt.Fprint(w, "A\n1\n")
	}))
	defer srv.Close()

	l := newTestLoader(t, afero.NewMemMapFs())
	loc := engine.SourceLocator{Kind: engine.SourceRemoteCSV, Location: srv.URL}

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Load(context.Background(), loc, engine.DataSourceConfig{Source: srv.URL})
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
}

func TestLoad_Errors(t *testing.T) {
	l := newTestLoader(t, afero.NewMemMapFs())

	_, err := l.Load(context.Background(),
		engine.SourceLocator{Kind: engine.SourceLocalCSV, Location: "/nope.csv"},
		engine.DataSourceConfig{Source: "/nope.csv"})
	if !hasCode(err, engine.ErrCodeFileNotFound) {
		t.Errorf("expected FILE_NOT_FOUND, got %v", err)
	}

	_, err = l.Load(context.Background(),
		engine.SourceLocator{Kind: engine.SourceControllerMethod, Location: "budget", Member: "by_year"},
		engine.DataSourceConfig{Source: "budget.by_year"})
	if !hasCode(err, engine.ErrCodeControllerNotFound) {
		t.Errorf("expected CONTROLLER_NOT_FOUND, got %v", err)
	}
}

func TestLoad_Controller(t *testing.T) {
	f, err := frame.FromColumns([]string{"FY", "Budget"}, map[string][]any{
		"FY":     {2023, 2024},
		"Budget": {24.9, 25.4},
	})
	if err != nil {
		t.Fatalf("FromColumns() error = %v", err)
	}

	reg := controllers.NewRegistry()
	_ = reg.Register("budget", &controllers.Controller{
		Name: "BudgetController",
		Methods: map[string]controllers.Method{
			"by_year": func(context.Context) (map[string]any, error) {
				return map[string]any{"data": f, "total": 50.3}, nil
			},
		},
	})

	l := newTestLoader(t, afero.NewMemMapFs(), WithRegistry(reg))
	res, err := l.Load(context.Background(),
		engine.SourceLocator{Kind: engine.SourceControllerMethod, Location: "budget", Member: "by_year"},
		engine.DataSourceConfig{
			Source: "budget.by_year",
			Params: &engine.LoadParams{Renames: map[string]string{"Budget": "Request"}},
		})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := mustGet(t, res.Context, "total"); got != 50.3 {
		t.Errorf("total = %v, want 50.3", got)
	}
	if diff := cmp.Diff([]any{24.9, 25.4}, mustGet(t, res.Context, "Request")); diff != "" {
		t.Errorf("Request mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{jan1(2023), jan1(2024)}, mustGet(t, res.Context, "FY")); diff != "" {
		t.Errorf("FY mismatch (-want +got):\n%s", diff)
	}
	if f.Has("Request") {
		t.Error("the controller's frame must not be modified")
	}
	if keys := res.Context.Keys(); keys[0] != engine.DataKey {
		t.Errorf("Keys()[0] = %q, want data", keys[0])
	}
}

const nnsiCSV = `NASA New Start Inflation Index,,,
,,,
YEAR,2023,2024,2025
FROM 2022,1.05,1.10,1.15
FROM 2023,1.00,1.05,110%
FROM TQ,3.0,3.1,3.2
`

func TestLoad_Inflation(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/idx/nnsi.csv", []byte(nnsiCSV), 0o644)
	_ = afero.WriteFile(fs, "/data/b.csv", []byte("Fiscal Year,Amount\n2022,100\n2023,200\n2024,300\n"), 0o644)

	ix := NewIndexes(NewFetcher(fs, nil))
	ix.SetSource(engine.InflationNNSI, "/idx/nnsi.csv")
	l := newTestLoader(t, fs, WithIndexes(ix))

	res, err := l.Load(context.Background(),
		engine.SourceLocator{Kind: engine.SourceLocalCSV, Location: "/data/b.csv"},
		engine.DataSourceConfig{
			Source:             "/data/b.csv",
			CalculateInflation: &engine.InflationConfig{Columns: []string{"Amount", "Nope"}},
		})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := []any{110.0, 210.0, 300.0}
	got := mustGet(t, res.Context, "Amount_adjusted_nnsi")
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("adjusted mismatch (-want +got):\n%s", diff)
	}
	if got := mustGet(t, res.Context, InflationTargetYearKey); got != 2024 {
		t.Errorf("target year = %v, want 2024", got)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "Nope") {
		t.Errorf("Warnings = %v", res.Warnings)
	}

	t.Run("missing target year column", func(t *testing.T) {
		_, err := l.Load(context.Background(),
			engine.SourceLocator{Kind: engine.SourceLocalCSV, Location: "/data/b.csv"},
			engine.DataSourceConfig{
				Source:             "/data/b.csv",
				CalculateInflation: &engine.InflationConfig{Columns: []string{"Amount"}, TargetYear: 2030},
			})
		if !hasCode(err, engine.ErrCodeInflation) {
			t.Errorf("expected INFLATION_FAILED, got %v", err)
		}
	})
}

func TestNNSITable(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/nnsi.csv", []byte(nnsiCSV), 0o644)
	ix := NewIndexes(NewFetcher(fs, nil))
	ix.SetSource(engine.InflationNNSI, "/nnsi.csv")

	table, err := ix.Table(context.Background(), engine.InflationNNSI, 2025)
	if err != nil {
		t.Fatalf("Table() error = %v", err)
	}

	tests := []struct {
		year any
		want float64
	}{
		{"2022", 11.5},
		{jan1(2023), 11.0},
		{int64(2022), 11.5},
		{TransitionQuarter, 32},
		{"tq", 32},
		{"1999", 10},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.year), func(t *testing.T) {
			got := table.Adjust(tt.year, 10)
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
				t.Errorf("Adjust() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	again, _ := ix.Table(context.Background(), engine.InflationNNSI, 2025)
	if again != table {
		t.Error("tables should be memoized per target year")
	}
}

func TestGDPTable(t *testing.T) {
	rows := [][]string{
		{"observation_date", "GDPDEF"},
		{"2022-10-01", "100"},
		{"2023-01-01", "102"},
		{"2023-04-01", "104"},
		{"2023-07-01", "106"},
		{"2023-10-01", "108"},
		{"2024-01-01", "."},
	}

	table, err := parseGDP(rows, 2024)
	if err != nil {
		t.Fatalf("parseGDP() error = %v", err)
	}
	if diff := cmp.Diff(108.0/103.0, table.Multipliers["2023"], cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("FY2023 multiplier mismatch (-want +got):\n%s", diff)
	}
	if table.Multipliers["2024"] != 1 {
		t.Errorf("target year multiplier = %v, want 1", table.Multipliers["2024"])
	}
	if len(table.Warnings) != 1 {
		t.Errorf("Warnings = %v, want a partial-year warning", table.Warnings)
	}

	if _, err := parseGDP(rows, 2030); err == nil {
		t.Error("expected error for a year outside the series")
	}
}

func TestFiscalYearOf(t *testing.T) {
	tests := []struct {
		date time.Time
		want int
	}{
		{time.Date(2023, time.September, 30, 0, 0, 0, 0, time.UTC), 2023},
		{time.Date(2023, time.October, 1, 0, 0, 0, 0, time.UTC), 2024},
		{time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), 2024},
	}
	for _, tt := range tests {
		if got := FiscalYearOf(tt.date); got != tt.want {
			t.Errorf("FiscalYearOf(%s) = %d, want %d", tt.date.Format("2006-01-02"), got, tt.want)
		}
	}
}

type countingObserver struct {
	mu           sync.Mutex
	hits, misses int
}

func (o *countingObserver) RecordCacheLookup(result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if result == "hit" {
		o.hits++
	} else {
		o.misses++
	}
}
