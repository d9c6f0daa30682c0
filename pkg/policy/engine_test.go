package policy

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/chartkit/chartkit/pkg/engine"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.Nop(), opts...)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return eng
}

func csvInput(chart map[string]any) engine.LintInput {
	return engine.LintInput{
		File:      "costs.yaml",
		ChartType: "bar",
		Chart:     chart,
		Source:    engine.SourceLocator{Kind: engine.SourceLocalCSV, Location: "costs.csv"},
		Series:    1,
	}
}

func TestNewEngine_Builtins(t *testing.T) {
	eng := newTestEngine(t)

	var names []string
	for _, p := range eng.ListPolicies() {
		if !p.Builtin {
			t.Errorf("policy %s is not marked built-in", p.Name)
		}
		names = append(names, p.Name)
	}
	want := []string{"output-naming", "series-count", "source-attribution", "title-length"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("ListPolicies() mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluate_Builtins(t *testing.T) {
	eng := newTestEngine(t)

	tests := []struct {
		name        string
		input       engine.LintInput
		wantAllowed bool
		want        []string // policy:path
	}{
		{
			name:        "clean chart",
			input:       csvInput(map[string]any{"output": "mission_costs", "title": "Mission costs"}),
			wantAllowed: true,
		},
		{
			name:        "output with directory",
			input:       csvInput(map[string]any{"output": "../charts/costs", "title": "Costs"}),
			wantAllowed: false,
			want:        []string{"output-naming:chart.output"},
		},
		{
			name:        "long title",
			input:       csvInput(map[string]any{"output": "costs", "title": strings.Repeat("a", 81)}),
			wantAllowed: true,
			want:        []string{"title-length:chart.title"},
		},
		{
			name: "many series without legend",
			input: engine.LintInput{
				ChartType: "line",
				Chart:     map[string]any{"output": "costs", "title": "Costs", "legend": false},
				Source:    engine.SourceLocator{Kind: engine.SourceLocalCSV},
				Series:    9,
			},
			wantAllowed: true,
			want:        []string{"series-count:chart", "series-count:chart.legend"},
		},
		{
			name: "remote data without attribution",
			input: engine.LintInput{
				ChartType: "bar",
				Chart:     map[string]any{"output": "costs", "title": "Costs"},
				Source:    engine.SourceLocator{Kind: engine.SourceRemoteCSV, Location: "https://example.com/costs.csv"},
				Series:    1,
			},
			wantAllowed: true,
			want:        []string{"source-attribution:chart.source"},
		},
		{
			name: "remote data with attribution",
			input: engine.LintInput{
				ChartType: "bar",
				Chart:     map[string]any{"output": "costs", "title": "Costs", "source": "Source: NASA budget requests"},
				Source:    engine.SourceLocator{Kind: engine.SourceRemoteCSV, Location: "https://example.com/costs.csv"},
				Series:    1,
			},
			wantAllowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := eng.Evaluate(context.Background(), tt.input)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if len(result.Warnings) > 0 {
				t.Fatalf("evaluation warnings: %v", result.Warnings)
			}
			if result.Allowed != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v (violations %+v)", result.Allowed, tt.wantAllowed, result.Violations)
			}
			var got []string
			for _, v := range result.Violations {
				got = append(got, v.Policy+":"+v.Path)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("violations mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEvaluate_ViolationSeverity(t *testing.T) {
	eng := newTestEngine(t)

	result, err := eng.Evaluate(context.Background(), engine.LintInput{
		ChartType: "bar",
		Chart:     map[string]any{"output": "costs", "title": "Costs"},
		Source:    engine.SourceLocator{Kind: engine.SourceControllerMethod, Location: "BudgetController", Member: "by_year"},
		Series:    1,
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(result.Violations) != 1 {
		t.Fatalf("violations = %+v", result.Violations)
	}
	v := result.Violations[0]
	if v.Severity != string(SeverityInfo) {
		t.Errorf("severity = %q, want the policy default", v.Severity)
	}
	if !strings.Contains(v.Message, "controller_method") {
		t.Errorf("message = %q", v.Message)
	}
}

func TestEngine_DisablePolicy(t *testing.T) {
	eng := newTestEngine(t)
	if err := eng.DisablePolicy("output-naming"); err != nil {
		t.Fatalf("DisablePolicy() error = %v", err)
	}

	result, err := eng.Evaluate(context.Background(), csvInput(map[string]any{"output": "a/b", "title": "Costs"}))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !result.Allowed || len(result.Violations) != 0 {
		t.Errorf("disabled policy still reported: %+v", result.Violations)
	}

	if err := eng.EnablePolicy("missing"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

const dpiPolicy = `# Print charts need a usable resolution.
# severity: error
# tags: print, output
package chartkit.custom.dpi

import rego.v1

deny contains violation if {
	input.chart.dpi < 150
	violation := {
		"message": sprintf("dpi %v is too low for print", [input.chart.dpi]),
		"path": "chart.dpi",
	}
}
`

func TestEngine_LoadPolicies(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/policies/print/dpi.rego", []byte(dpiPolicy), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, "/policies/README.md", []byte("docs"), 0o644); err != nil {
		t.Fatal(err)
	}
	eng := newTestEngine(t, WithFs(fs))

	if err := eng.LoadPolicies(context.Background(), []string{"/policies"}); err != nil {
		t.Fatalf("LoadPolicies() error = %v", err)
	}
	p, err := eng.GetPolicy("dpi")
	if err != nil {
		t.Fatalf("GetPolicy() error = %v", err)
	}
	if p.Builtin || p.Severity != SeverityError || p.Source != "/policies/print/dpi.rego" {
		t.Errorf("policy = %+v", p)
	}

	result, err := eng.Evaluate(context.Background(), csvInput(map[string]any{"output": "costs", "title": "Costs", "dpi": 72}))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.Allowed {
		t.Error("error-severity custom violation should disallow")
	}
	if len(result.Violations) != 1 || result.Violations[0].Message != "dpi 72 is too low for print" {
		t.Errorf("violations = %+v", result.Violations)
	}
}

func TestEngine_LoadPolicies_CompileError(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/policies/broken.rego", []byte("package broken\n\ndeny contains x if {"), 0o644); err != nil {
		t.Fatal(err)
	}
	eng := newTestEngine(t, WithFs(fs))

	if err := eng.LoadPolicies(context.Background(), []string{"/policies/broken.rego"}); err == nil {
		t.Fatal("expected compile error")
	}
	if _, err := eng.GetPolicy("broken"); err == nil {
		t.Error("broken policy should not be installed")
	}
	if len(eng.ListPolicies()) != len(BuiltinPolicies()) {
		t.Error("built-in policies should be untouched")
	}
}

func TestEngine_InstallReplacesCustomPolicies(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	first := Policy{Name: "first", Rego: "package first\n\nimport rego.v1\n\ndeny contains \"x\" if false\n", Enabled: true}
	if err := eng.install(ctx, []Policy{first}, false); err != nil {
		t.Fatalf("install() error = %v", err)
	}
	second := Policy{Name: "second", Rego: "package second\n\nimport rego.v1\n\ndeny contains \"x\" if false\n", Enabled: true}
	if err := eng.install(ctx, []Policy{second}, true); err != nil {
		t.Fatalf("install() error = %v", err)
	}

	if _, err := eng.GetPolicy("first"); err == nil {
		t.Error("replaced custom policy is still installed")
	}
	if _, err := eng.GetPolicy("second"); err != nil {
		t.Error("new custom policy is missing")
	}
	if _, err := eng.GetPolicy("output-naming"); err != nil {
		t.Error("built-in policy was dropped")
	}
}
