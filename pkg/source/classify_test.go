package source

import (
	"testing"

	"github.com/chartkit/chartkit/pkg/engine"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want engine.SourceLocator
	}{
		{
			name: "remote https",
			in:   "https://example.com/data.csv",
			want: engine.SourceLocator{Kind: engine.SourceRemoteCSV, Location: "https://example.com/data.csv"},
		},
		{
			name: "remote http with whitespace",
			in:   "  http://example.com/x  ",
			want: engine.SourceLocator{Kind: engine.SourceRemoteCSV, Location: "http://example.com/x"},
		},
		{
			name: "custom controller python path",
			in:   "/ctrl/custom.py:load",
			want: engine.SourceLocator{Kind: engine.SourceCustomControllerFile, Location: "/ctrl/custom.py", Member: "load"},
		},
		{
			name: "custom controller starlark path",
			in:   "controllers/budget.star:by_year",
			want: engine.SourceLocator{Kind: engine.SourceCustomControllerFile, Location: "controllers/budget.star", Member: "by_year"},
		},
		{
			name: "custom controller without method",
			in:   "custom.star",
			want: engine.SourceLocator{Kind: engine.SourceCustomControllerFile, Location: "custom.star"},
		},
		{
			name: "local path",
			in:   "data/budget.csv",
			want: engine.SourceLocator{Kind: engine.SourceLocalCSV, Location: "data/budget.csv"},
		},
		{
			name: "windows path",
			in:   `C:\data\budget.txt`,
			want: engine.SourceLocator{Kind: engine.SourceLocalCSV, Location: `C:\data\budget.txt`},
		},
		{
			name: "bare csv name",
			in:   "budget.csv",
			want: engine.SourceLocator{Kind: engine.SourceLocalCSV, Location: "budget.csv"},
		},
		{
			name: "controller method",
			in:   "nasa_budget_chart.nasa_budget_by_year",
			want: engine.SourceLocator{Kind: engine.SourceControllerMethod, Location: "nasa_budget_chart", Member: "nasa_budget_by_year"},
		},
		{
			name: "dotted module splits on last dot",
			in:   "pkg.budget.by_year",
			want: engine.SourceLocator{Kind: engine.SourceControllerMethod, Location: "pkg.budget", Member: "by_year"},
		},
		{
			name: "bare module",
			in:   "budget",
			want: engine.SourceLocator{Kind: engine.SourceControllerMethod, Location: "budget"},
		},
		{
			name: "csv prefix overrides url detection",
			in:   "CSV:https://example.com/x",
			want: engine.SourceLocator{Kind: engine.SourceLocalCSV, Location: "https://example.com/x"},
		},
		{
			name: "url prefix",
			in:   "url: example.com/x.csv",
			want: engine.SourceLocator{Kind: engine.SourceRemoteCSV, Location: "example.com/x.csv"},
		},
		{
			name: "controller prefix any case",
			in:   "Controller:budget.by_year",
			want: engine.SourceLocator{Kind: engine.SourceControllerMethod, Location: "budget", Member: "by_year"},
		},
		{
			name: "controller prefix with file",
			in:   "controller:ctrl/budget.py:load",
			want: engine.SourceLocator{Kind: engine.SourceCustomControllerFile, Location: "ctrl/budget.py", Member: "load"},
		},
		{
			name: "empty",
			in:   "   ",
			want: engine.SourceLocator{Kind: engine.SourceControllerMethod},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.in)
			if got != tt.want {
				t.Errorf("Classify(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestClassify_CanonicalRoundTrip(t *testing.T) {
	inputs := []string{
		"https://example.com/data.csv",
		"/ctrl/custom.py:load",
		"custom.star",
		"custom.py:",
		"data/budget.csv",
		"budget.csv",
		"budget.by_year",
		"budget",
		"a..",
		"a.py.",
		"csv:https://example.com/x",
		"url:example.com/x.csv",
		`C:\ctrl\x.star:load`,
		"",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			loc := Classify(in)
			again := Classify(loc.String())
			if again != loc {
				t.Errorf("Classify(%q) = %+v, Classify(%q) = %+v", in, loc, loc.String(), again)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"data/budget.csv", false},
		{"budget.by_year", false},
		{"budget", false},
		{"ctrl.star:load", false},
		{"", true},
		{"custom.star", true},
		{"custom.py:", true},
		{".by_year", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			err := Validate(Classify(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil && !engine.IsDataSourceError(err) {
				t.Errorf("expected data source error, got %T", err)
			}
		})
	}
}
