package preflight

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chartkit/chartkit/pkg/engine"
	"github.com/chartkit/chartkit/pkg/frame"
	"github.com/chartkit/chartkit/pkg/schema"
)

type fakeLoader struct {
	ctx      *engine.ResolvedContext
	warnings []string
	err      error
	calls    int
}

func (f *fakeLoader) Load(_ context.Context, _ engine.SourceLocator, _ engine.DataSourceConfig) (*engine.LoadResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &engine.LoadResult{Context: f.ctx, Warnings: f.warnings}, nil
}

type countingObserver struct {
	ready, notReady int
}

func (o *countingObserver) RecordPreflight(ready bool) {
	if ready {
		o.ready++
	} else {
		o.notReady++
	}
}

func budgetContext(t *testing.T) *engine.ResolvedContext {
	t.Helper()
	f, err := frame.FromColumns([]string{"Year", "Budget"}, map[string][]any{
		"Year":   {int64(2022), int64(2023), int64(2024)},
		"Budget": {24.0, 25.4, 24.9},
	})
	if err != nil {
		t.Fatal(err)
	}
	return engine.NewContextBuilder().
		Set(engine.DataKey, f).
		Set("metadata", map[string]any{"agency": "NASA"}).
		Build()
}

func newTestEngine(loader engine.Loader, opts ...Option) *Engine {
	return NewEngine(loader, schema.NewValidator(schema.NewRegistry()), opts...)
}

func TestPreflight_EmptyDocument(t *testing.T) {
	loader := &fakeLoader{}
	obs := &countingObserver{}
	e := newTestEngine(loader, WithObserver(obs))

	report := e.Preflight(context.Background(), map[string]any{})

	for _, step := range engine.Steps {
		if got := report.StepStatus[step]; got != engine.StatusNotStarted {
			t.Errorf("step %s = %s, want not_started", step, got)
		}
	}
	if diff := cmp.Diff([]string{"/chart/type", "/data/source"}, report.MissingPaths); diff != "" {
		t.Errorf("missing paths mismatch (-want +got):\n%s", diff)
	}
	if report.ReadyForPreview {
		t.Error("empty document should not be ready")
	}
	if loader.calls != 0 {
		t.Errorf("loader called %d times for a document without a source", loader.calls)
	}
	if obs.notReady != 1 || obs.ready != 0 {
		t.Errorf("observer = %+v", obs)
	}
}

func TestPreflight_Complete(t *testing.T) {
	loader := &fakeLoader{ctx: budgetContext(t), warnings: []string{"filter column Region not found"}}
	e := newTestEngine(loader)

	report := e.Preflight(context.Background(), map[string]any{
		"data": map[string]any{"source": "budget.by_year"},
		"chart": map[string]any{
			"type":   "line",
			"output": "budget",
			"title":  "{{metadata.agency}} Budget",
			"x":      "{{data.Year}}",
			"y":      "{{data.Budget}}",
		},
	})

	if len(report.BlockingErrors) > 0 {
		t.Fatalf("unexpected blocking errors: %v", report.BlockingErrors)
	}
	want := map[engine.StepKey]engine.StepStatus{
		engine.StepDataSource:       engine.StatusComplete,
		engine.StepDataBindings:     engine.StatusComplete,
		engine.StepVisualDesign:     engine.StatusNotStarted,
		engine.StepAnnotationOutput: engine.StatusComplete,
	}
	if diff := cmp.Diff(want, report.StepStatus); diff != "" {
		t.Errorf("step status mismatch (-want +got):\n%s", diff)
	}
	if !report.ReadyForPreview {
		t.Error("expected document to be ready for preview")
	}
	if len(report.MissingPaths) != 0 {
		t.Errorf("missing paths = %v", report.MissingPaths)
	}
	if diff := cmp.Diff([]string{"filter column Region not found"}, report.Warnings); diff != "" {
		t.Errorf("warnings mismatch (-want +got):\n%s", diff)
	}
}

func TestPreflight_Blocking(t *testing.T) {
	tests := []struct {
		name      string
		loader    *fakeLoader
		doc       map[string]any
		wantPath  string
		wantStep  engine.StepKey
		wantReady bool
	}{
		{
			name: "load failure",
			loader: &fakeLoader{err: engine.NewDataSourceError("failed to fetch CSV", errors.New("connection refused")).
				WithPath("data.source").
				WithCode(engine.ErrCodeFetchFailed)},
			doc: map[string]any{
				"data":  map[string]any{"source": "https://example.invalid/budget.csv"},
				"chart": map[string]any{"type": "line"},
			},
			wantPath: "/data/source",
			wantStep: engine.StepDataSource,
		},
		{
			name:   "unknown chart type",
			loader: &fakeLoader{},
			doc: map[string]any{
				"chart": map[string]any{"type": "pie3d"},
			},
			wantPath: "/chart/type",
			wantStep: engine.StepDataBindings,
		},
		{
			name:     "chart is not a mapping",
			loader:   &fakeLoader{},
			doc:      map[string]any{"chart": "line"},
			wantPath: "/chart",
			wantStep: engine.StepDataBindings,
		},
		{
			name:   "invalid visual value",
			loader: &fakeLoader{ctx: budgetContext(t)},
			doc: map[string]any{
				"data": map[string]any{"source": "budget.by_year"},
				"chart": map[string]any{
					"type":  "line",
					"x":     "{{data.Year}}",
					"y":     "{{data.Budget}}",
					"alpha": 3.0,
				},
			},
			wantPath:  "/chart/alpha",
			wantStep:  engine.StepVisualDesign,
			wantReady: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := newTestEngine(tt.loader).Preflight(context.Background(), tt.doc)

			found := false
			for _, be := range report.BlockingErrors {
				if be.Path == tt.wantPath {
					found = true
				}
			}
			if !found {
				t.Errorf("no blocking error at %s in %v", tt.wantPath, report.BlockingErrors)
			}
			if got := report.StepStatus[tt.wantStep]; got != engine.StatusError {
				t.Errorf("step %s = %s, want error", tt.wantStep, got)
			}
			if report.ReadyForPreview != tt.wantReady {
				t.Errorf("ReadyForPreview = %v, want %v", report.ReadyForPreview, tt.wantReady)
			}
		})
	}
}

func TestPreflight_InProgress(t *testing.T) {
	t.Run("missing binding", func(t *testing.T) {
		e := newTestEngine(&fakeLoader{ctx: budgetContext(t)})
		report := e.Preflight(context.Background(), map[string]any{
			"data":  map[string]any{"source": "budget.by_year"},
			"chart": map[string]any{"type": "line", "x": "{{data.Year}}"},
		})

		if got := report.StepStatus[engine.StepDataBindings]; got != engine.StatusInProgress {
			t.Errorf("bindings = %s, want in_progress", got)
		}
		if got := report.StepStatus[engine.StepAnnotationOutput]; got != engine.StatusNotStarted {
			t.Errorf("annotation = %s, want not_started", got)
		}
		want := []string{"/chart/output", "/chart/title", "/chart/y"}
		if diff := cmp.Diff(want, report.MissingPaths); diff != "" {
			t.Errorf("missing paths mismatch (-want +got):\n%s", diff)
		}
		if report.ReadyForPreview {
			t.Error("document with a missing binding should not be ready")
		}
	})

	t.Run("unresolved binding", func(t *testing.T) {
		e := newTestEngine(&fakeLoader{ctx: budgetContext(t)})
		report := e.Preflight(context.Background(), map[string]any{
			"data": map[string]any{"source": "budget.by_year"},
			"chart": map[string]any{
				"type":   "line",
				"output": "budget",
				"title":  "Budget",
				"x":      "{{data.Year}}",
				"y":      "{{Missing}}",
			},
		})

		if len(report.BlockingErrors) > 0 {
			t.Fatalf("unexpected blocking errors: %v", report.BlockingErrors)
		}
		if got := report.StepStatus[engine.StepDataBindings]; got != engine.StatusInProgress {
			t.Errorf("bindings = %s, want in_progress", got)
		}
		if diff := cmp.Diff([]string{"/chart/y"}, report.MissingPaths); diff != "" {
			t.Errorf("missing paths mismatch (-want +got):\n%s", diff)
		}
		if report.ReadyForPreview {
			t.Error("document with an unresolved binding should not be ready")
		}
	})

	t.Run("references wait for data", func(t *testing.T) {
		loader := &fakeLoader{}
		report := newTestEngine(loader).Preflight(context.Background(), map[string]any{
			"chart": map[string]any{"type": "line", "x": "{{data.Year}}", "y": "{{data.Budget}}"},
		})

		if len(report.BlockingErrors) > 0 {
			t.Fatalf("unexpected blocking errors: %v", report.BlockingErrors)
		}
		if got := report.StepStatus[engine.StepDataBindings]; got != engine.StatusInProgress {
			t.Errorf("bindings = %s, want in_progress", got)
		}
		want := []string{"/chart/output", "/chart/title", "/data/source"}
		if diff := cmp.Diff(want, report.MissingPaths); diff != "" {
			t.Errorf("missing paths mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestPointer(t *testing.T) {
	tests := map[string]string{
		"":                "",
		"data.source":     "/data/source",
		"chart.color.1":   "/chart/color/1",
		"chart.a/b":       "/chart/a~1b",
		"chart.tilde~key": "/chart/tilde~0key",
	}
	for in, want := range tests {
		if got := Pointer(in); got != want {
			t.Errorf("Pointer(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestProfile(t *testing.T) {
	e := newTestEngine(&fakeLoader{ctx: budgetContext(t), warnings: []string{"skipped empty row"}})

	profile, err := e.Profile(context.Background(), engine.DataSourceConfig{Source: "budget.by_year"})
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}

	want := engine.DataProfile{
		SourceKind: "controller",
		RowCount:   3,
		Columns: []engine.ColumnProfile{
			{Name: "Year", DType: "int64"},
			{Name: "Budget", DType: "float64"},
		},
		SampleRows: []map[string]any{
			{"Year": int64(2022), "Budget": 24.0},
			{"Year": int64(2023), "Budget": 25.4},
			{"Year": int64(2024), "Budget": 24.9},
		},
		Warnings:    []string{"skipped empty row"},
		ContextKeys: []string{"metadata"},
	}
	if diff := cmp.Diff(want, profile); diff != "" {
		t.Errorf("Profile() mismatch (-want +got):\n%s", diff)
	}
}

func TestProfile_NoFrame(t *testing.T) {
	ctx := engine.NewContextBuilder().Set("total", 42.0).Build()
	e := newTestEngine(&fakeLoader{ctx: ctx})

	profile, err := e.Profile(context.Background(), engine.DataSourceConfig{Source: "data/budget.csv"})
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if profile.SourceKind != "csv" || profile.RowCount != 0 {
		t.Errorf("profile = %+v", profile)
	}
	if diff := cmp.Diff([]string{"Resolved source did not return a 'data' frame"}, profile.Warnings); diff != "" {
		t.Errorf("warnings mismatch (-want +got):\n%s", diff)
	}
}

func TestProfile_Errors(t *testing.T) {
	loadErr := engine.NewDataSourceError("CSV file not found", nil).WithCode(engine.ErrCodeFileNotFound)
	e := newTestEngine(&fakeLoader{err: loadErr})

	if _, err := e.Profile(context.Background(), engine.DataSourceConfig{Source: "missing.csv"}); !errors.Is(err, loadErr) {
		t.Errorf("Profile() error = %v, want load error", err)
	}
	if _, err := e.Profile(context.Background(), engine.DataSourceConfig{Source: "  "}); !engine.IsDataSourceError(err) {
		t.Errorf("Profile() of blank source error = %v, want data source error", err)
	}
}
