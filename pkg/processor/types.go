package processor

import (
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/chartkit/chartkit/pkg/engine"
	"github.com/chartkit/chartkit/pkg/template"
)

// Document is one parsed chart file.
type Document struct {
	// File is the path the document was read from, if any.
	File string

	// Data is the raw data block, decoded by the loader stage.
	Data any

	// Chart is the chart block with document key order preserved.
	Chart template.Node
}

// Result is the outcome of processing one document.
type Result struct {
	File      string               `json:"file,omitempty"`
	ChartType string               `json:"chart_type,omitempty"`
	Output    string               `json:"output,omitempty"`
	Source    engine.SourceLocator `json:"source"`

	// Config is the resolved and validated chart configuration. It is nil
	// when the document failed.
	Config map[string]any `json:"config,omitempty"`

	// Context is the data context the config was resolved against.
	Context *engine.ResolvedContext `json:"-"`

	Errors     []engine.ResolutionError `json:"errors,omitempty"`
	Warnings   []string                 `json:"warnings,omitempty"`
	Violations []engine.PolicyViolation `json:"violations,omitempty"`
	Artifacts  []string                 `json:"artifacts,omitempty"`

	// Cached is true when the data came from the loader cache.
	Cached   bool          `json:"cached"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the document produced a configuration.
func (r *Result) OK() bool {
	return len(r.Errors) == 0 && r.Config != nil
}

// Err returns all errors of the result combined, or nil.
func (r *Result) Err() error {
	var result *multierror.Error
	for _, issue := range r.Errors {
		result = multierror.Append(result, issue.AsError())
	}
	return result.ErrorOrNil()
}

// Message summarizes the first error for per-file reporting.
func (r *Result) Message() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Error()
}

func (r *Result) fail(issues ...engine.ResolutionError) {
	r.Errors = append(r.Errors, issues...)
	r.Config = nil
}

// BatchResult aggregates the outcomes of a batch, in input order.
type BatchResult struct {
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Results   []*Result `json:"results"`
}

// GenerateOptions control a Generate run.
type GenerateOptions struct {
	// Outdir receives the rendered artifacts.
	Outdir string

	// Strict aborts a document on its first fatal error.
	Strict bool

	// Quiet suppresses per-file progress logging. Errors are still logged.
	Quiet bool
}

// FileError is the failure message of one document in a run.
type FileError struct {
	File    string `json:"file"`
	Message string `json:"message"`
}

// GenerateResult summarizes a Generate run.
type GenerateResult struct {
	RunID     string      `json:"run_id"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Files     []string    `json:"files"`
	Errors    []FileError `json:"errors"`
	Results   []*Result   `json:"-"`
}
