package engine

import (
	"errors"
	"fmt"
	"testing"
)

func TestChartError_Classification(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantConfig  bool
		wantSource  bool
		wantRender  bool
		wantUnresol bool
	}{
		{
			name:       "configuration",
			err:        NewConfigurationError("bad field", nil),
			wantConfig: true,
		},
		{
			name:       "data source wrapped",
			err:        fmt.Errorf("load: %w", NewDataSourceError("missing file", errors.New("no such file"))),
			wantSource: true,
		},
		{
			name:       "rendering",
			err:        NewRenderingError("draw failed", nil),
			wantRender: true,
		},
		{
			name:        "unresolved reference is a configuration error",
			err:         NewUnresolvedReferenceError("chart.y", "{{Foo}}", nil),
			wantConfig:  true,
			wantUnresol: true,
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConfigurationError(tt.err); got != tt.wantConfig {
				t.Errorf("IsConfigurationError() = %v, want %v", got, tt.wantConfig)
			}
			if got := IsDataSourceError(tt.err); got != tt.wantSource {
				t.Errorf("IsDataSourceError() = %v, want %v", got, tt.wantSource)
			}
			if got := IsRenderingError(tt.err); got != tt.wantRender {
				t.Errorf("IsRenderingError() = %v, want %v", got, tt.wantRender)
			}
			if got := IsUnresolvedReference(tt.err); got != tt.wantUnresol {
				t.Errorf("IsUnresolvedReference() = %v, want %v", got, tt.wantUnresol)
			}
		})
	}
}

func TestChartError_Message(t *testing.T) {
	err := NewDataSourceError("failed to read CSV", errors.New("permission denied")).
		WithPath("data.source").
		WithCode(ErrCodeFileNotFound)

	want := "failed to read CSV (path=data.source): permission denied"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	if !errors.Is(err, &ChartError{Kind: KindDataSource, Code: ErrCodeFileNotFound}) {
		t.Error("expected errors.Is to match on kind and code")
	}
}

func TestIssueFromError(t *testing.T) {
	issue := IssueFromError("chart.y", NewUnresolvedReferenceError("", "{{Foo}}", nil))
	if issue.Kind != IssueUnresolved {
		t.Errorf("Kind = %s, want %s", issue.Kind, IssueUnresolved)
	}
	if issue.Path != "chart.y" {
		t.Errorf("Path = %s, want chart.y", issue.Path)
	}
	if issue.Token != "{{Foo}}" {
		t.Errorf("Token = %s, want {{Foo}}", issue.Token)
	}

	back := issue.AsError()
	if !IsUnresolvedReference(back) {
		t.Error("round-tripped issue lost its unresolved reference code")
	}

	plain := IssueFromError("chart", errors.New("boom"))
	if plain.Kind != IssueConfiguration || plain.Message != "boom" {
		t.Errorf("unexpected issue for plain error: %+v", plain)
	}
}

func TestOutcome_Err(t *testing.T) {
	var ok Outcome
	if ok.Err() != nil || !ok.OK() {
		t.Fatal("empty outcome should be OK")
	}

	failed := Outcome{Errors: []ResolutionError{{
		Path:    "data.source",
		Message: "unreachable",
		Kind:    IssueDataSource,
	}}}
	if failed.OK() {
		t.Fatal("outcome with errors should not be OK")
	}
	if !IsDataSourceError(failed.Err()) {
		t.Errorf("expected data source error, got %v", failed.Err())
	}
}
