package engine

import (
	"context"
	"time"
)

// Loader produces a resolved context from a classified data source.
// This is stage 2 of document resolution.
type Loader interface {
	// Load fetches and prepares the data for a document. Failures are
	// DataSourceErrors.
	Load(ctx context.Context, locator SourceLocator, cfg DataSourceConfig) (*LoadResult, error)
}

// LoadResult is a loaded context plus the non-fatal warnings recorded while
// applying load parameters.
type LoadResult struct {
	Context  *ResolvedContext
	Warnings []string

	// Cached is true when the result was served from the loader cache.
	Cached bool
}

// Renderer turns a fully resolved chart configuration into artifacts.
// Drawing and file export live behind this interface.
type Renderer interface {
	// Render produces the artifacts for one chart and returns their paths.
	// Failures should be RenderingErrors.
	Render(ctx context.Context, req RenderRequest) ([]string, error)
}

// RenderRequest is everything a renderer receives for one chart.
type RenderRequest struct {
	// ChartType selects the drawing routine.
	ChartType string

	// Output is the base file name for artifacts.
	Output string

	// Outdir is the directory artifacts are written to.
	Outdir string

	// Config is the resolved, validated chart configuration with no
	// remaining template references.
	Config map[string]any

	// Context is the resolved data context for the document.
	Context *ResolvedContext

	// Headless forces non-interactive rendering.
	Headless bool
}

// PolicyEngine lints resolved chart configurations.
type PolicyEngine interface {
	// Evaluate checks a resolved configuration and returns any violations.
	Evaluate(ctx context.Context, input LintInput) (*PolicyResult, error)
}

// LintInput is the document view handed to lint policies.
type LintInput struct {
	File      string         `json:"file,omitempty"`
	ChartType string         `json:"chart_type"`
	Chart     map[string]any `json:"chart"`
	Source    SourceLocator  `json:"source"`
	Series    int            `json:"series"`
}

// PolicyResult represents the result of policy evaluation.
type PolicyResult struct {
	// Allowed is false when an error-severity violation was found.
	Allowed bool `json:"allowed"`

	// Violations lists all policy violations.
	Violations []PolicyViolation `json:"violations"`

	// Warnings lists policy evaluation problems that do not block.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedAt is when the policy was evaluated.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// PolicyViolation represents a single policy violation.
type PolicyViolation struct {
	Policy   string `json:"policy"`
	Path     string `json:"path,omitempty"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// RunRecorder persists the outcome of batch generation runs.
type RunRecorder interface {
	// RecordRun stores a completed run and its per-file results.
	RecordRun(ctx context.Context, run RunRecord) error
}

// RunRecord summarizes one generate invocation.
type RunRecord struct {
	ID        string
	Paths     []string
	Outdir    string
	Strict    bool
	StartedAt time.Time
	Duration  time.Duration
	Files     []FileRecord
}

// FileRecord is the outcome for one document in a run.
type FileRecord struct {
	File      string
	ChartType string
	Succeeded bool
	Artifacts []string
	Message   string
	Warnings  int
}
