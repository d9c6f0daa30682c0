// Package preflight computes the readiness report an editor shows while a
// chart document is being written, and profiles data sources.
//
// A report is recomputed from scratch on every call. Nothing is persisted
// between calls and problems are reported as data, never as errors.
package preflight

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/chartkit/chartkit/pkg/engine"
	"github.com/chartkit/chartkit/pkg/schema"
	"github.com/chartkit/chartkit/pkg/series"
	"github.com/chartkit/chartkit/pkg/source"
	"github.com/chartkit/chartkit/pkg/template"
)

// Observer receives one call per computed report.
type Observer interface {
	RecordPreflight(ready bool)
}

// Engine computes preflight reports and data profiles.
type Engine struct {
	loader    engine.Loader
	validator *schema.Validator
	observer  Observer
	logger    zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver sets the report observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates a preflight engine.
func NewEngine(loader engine.Loader, validator *schema.Validator, opts ...Option) *Engine {
	e := &Engine{
		loader:    loader,
		validator: validator,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With().Str("component", "preflight").Logger()
	return e
}

// run tracks the state of each workflow step while a report is built.
type run struct {
	report  engine.PreflightReport
	touched map[engine.StepKey]bool
	pending map[engine.StepKey]bool
	missing map[engine.StepKey]bool
	failed  map[engine.StepKey]bool
}

func newRun() *run {
	return &run{
		report: engine.PreflightReport{
			MissingPaths:   []string{},
			BlockingErrors: []engine.BlockingError{},
			Warnings:       []string{},
			StepStatus:     make(map[engine.StepKey]engine.StepStatus, len(engine.Steps)),
		},
		touched: make(map[engine.StepKey]bool),
		pending: make(map[engine.StepKey]bool),
		missing: make(map[engine.StepKey]bool),
		failed:  make(map[engine.StepKey]bool),
	}
}

func (r *run) block(step engine.StepKey, path, message string) {
	r.failed[step] = true
	r.report.BlockingErrors = append(r.report.BlockingErrors, engine.BlockingError{
		Path:    Pointer(path),
		Message: message,
	})
}

func (r *run) miss(step engine.StepKey, path string) {
	r.missing[step] = true
	r.report.MissingPaths = append(r.report.MissingPaths, Pointer(path))
}

func (r *run) status(step engine.StepKey) engine.StepStatus {
	switch {
	case r.failed[step]:
		return engine.StatusError
	case !r.touched[step]:
		return engine.StatusNotStarted
	case r.missing[step] || r.pending[step]:
		return engine.StatusInProgress
	default:
		return engine.StatusComplete
	}
}

// Preflight computes the readiness report of a raw document, a mapping with
// data and chart blocks. It never fails; every problem is part of the report.
func (e *Engine) Preflight(ctx context.Context, doc map[string]any) (report engine.PreflightReport) {
	r := newRun()
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error().Interface("panic", p).Msg("Preflight panicked")
			r.block(engine.StepDataSource, "", fmt.Sprintf("internal error: %v", p))
		}
		report = r.finish()
		if e.observer != nil {
			e.observer.RecordPreflight(report.ReadyForPreview)
		}
	}()

	rc := e.checkData(ctx, doc["data"], r)
	e.checkChart(ctx, doc["chart"], rc, r)
	return
}

// checkData loads the data block and returns the context, or nil when the
// data step is not complete.
func (e *Engine) checkData(ctx context.Context, raw any, r *run) *engine.ResolvedContext {
	step := engine.StepDataSource
	m, isMap := raw.(map[string]any)
	if raw != nil && (!isMap || len(m) > 0) {
		r.touched[step] = true
	}
	if raw == nil || (isMap && isBlank(m["source"])) {
		r.miss(step, "data.source")
		return nil
	}

	cfg, issues := engine.DecodeDataSource(raw)
	if len(issues) > 0 {
		for _, issue := range issues {
			r.block(step, issue.Path, issue.Message)
		}
		return nil
	}

	loc := source.Classify(cfg.Source)
	if err := source.Validate(loc); err != nil {
		r.block(step, "data.source", engine.IssueFromError("data.source", err).Message)
		return nil
	}

	res, err := e.loader.Load(ctx, loc, cfg)
	if err != nil {
		issue := engine.IssueFromError("data.source", err)
		r.block(step, issue.Path, issue.Message)
		return nil
	}
	r.report.Warnings = append(r.report.Warnings, res.Warnings...)
	return res.Context
}

func (e *Engine) checkChart(ctx context.Context, raw any, rc *engine.ResolvedContext, r *run) {
	bindings := engine.StepDataBindings

	chart, ok := raw.(map[string]any)
	if raw != nil && !ok {
		r.touched[bindings] = true
		r.block(bindings, schema.Root, fmt.Sprintf("chart must be a mapping, got %T", raw))
		return
	}

	chartType, _ := chart["type"].(string)
	if chartType == "" {
		if chart["type"] != nil {
			r.touched[bindings] = true
			r.block(bindings, schema.Root+".type", "chart type must be a string")
			return
		}
		for name := range chart {
			r.touched[stepOfName(nil, name)] = true
		}
		r.miss(bindings, schema.Root+".type")
		return
	}
	s, known := e.validator.Registry().Get(chartType)
	if !known {
		r.touched[bindings] = true
		r.block(bindings, schema.Root+".type", fmt.Sprintf("unknown chart type %q", chartType))
		return
	}

	for name, v := range chart {
		if !isBlank(v) {
			r.touched[stepOfName(s, name)] = true
		}
	}

	resolved, deferred := e.resolve(chart, s, rc, r)
	if rc != nil {
		correlated, issues := series.Correlate(resolved, s)
		for _, issue := range issues {
			r.block(stepOf(s, issue.Path), issue.Path, issue.Message)
		}
		if len(issues) == 0 {
			resolved = correlated
		}
	}

	out := e.validator.Validate(ctx, resolved, chartType, false)
	for _, issue := range out.Errors {
		r.block(stepOf(s, issue.Path), issue.Path, issue.Message)
	}
	for _, issue := range out.Degraded {
		if issue.Kind != engine.IssueMissingRequired {
			continue
		}
		step := stepOf(s, issue.Path)
		if deferred[fieldName(issue.Path)] {
			r.pending[step] = true
			continue
		}
		r.miss(step, issue.Path)
	}
}

// resolve substitutes references in chart. Without a context, fields that
// hold references are set aside and reported back as deferred.
func (e *Engine) resolve(chart map[string]any, s *schema.ChartSchema, rc *engine.ResolvedContext, r *run) (map[string]any, map[string]bool) {
	deferred := make(map[string]bool)

	if rc == nil {
		out := make(map[string]any, len(chart))
		for name, v := range chart {
			if !s.IsOpaque(name) && holdsReference(v) {
				deferred[name] = true
				r.pending[stepOfName(s, name)] = true
				continue
			}
			out[name] = v
		}
		return out, deferred
	}

	outcome := template.ResolveValue(chart, rc, template.Options{
		Mode:        template.Lenient,
		Root:        schema.Root,
		Interpolate: s.Interpolates,
		Opaque:      s.IsOpaque,
	})
	for _, issue := range append(outcome.Errors, outcome.Degraded...) {
		deferred[fieldName(issue.Path)] = true
		if issue.Kind == engine.IssueUnresolved {
			r.miss(stepOf(s, issue.Path), issue.Path)
			continue
		}
		r.block(stepOf(s, issue.Path), issue.Path, issue.Message)
	}
	resolved, _ := outcome.Value.(map[string]any)
	if resolved == nil {
		resolved = map[string]any{}
	}
	return resolved, deferred
}

func (r *run) finish() engine.PreflightReport {
	for _, step := range engine.Steps {
		r.report.StepStatus[step] = r.status(step)
	}

	r.report.MissingPaths = dedupe(r.report.MissingPaths)

	bindingsMissing := r.missing[engine.StepDataBindings] || r.pending[engine.StepDataBindings]
	r.report.ReadyForPreview = r.report.StepStatus[engine.StepDataSource] == engine.StatusComplete &&
		r.report.StepStatus[engine.StepDataBindings] != engine.StatusError &&
		!bindingsMissing
	return r.report
}

// Pointer converts a dotted document path to a JSON pointer.
func Pointer(path string) string {
	if path == "" {
		return ""
	}
	var b strings.Builder
	for _, seg := range strings.Split(path, ".") {
		seg = strings.ReplaceAll(seg, "~", "~0")
		seg = strings.ReplaceAll(seg, "/", "~1")
		b.WriteString("/" + seg)
	}
	return b.String()
}

// fieldName returns the chart field a "chart.<field>..." path points into.
func fieldName(path string) string {
	rest, ok := strings.CutPrefix(path, schema.Root+".")
	if !ok {
		return ""
	}
	if i := strings.IndexByte(rest, '.'); i >= 0 {
		return rest[:i]
	}
	return rest
}

func stepOf(s *schema.ChartSchema, path string) engine.StepKey {
	if strings.HasPrefix(path, "data") {
		return engine.StepDataSource
	}
	name := fieldName(path)
	if name == "" {
		return engine.StepDataBindings
	}
	return stepOfName(s, name)
}

func stepOfName(s *schema.ChartSchema, name string) engine.StepKey {
	if name == "type" {
		return engine.StepDataBindings
	}
	if s != nil {
		if f, ok := s.Field(name); ok {
			return f.Step
		}
	}
	return engine.StepVisualDesign
}

func holdsReference(v any) bool {
	switch x := v.(type) {
	case string:
		return template.HasTokens(x)
	case []any:
		for _, item := range x {
			if holdsReference(item) {
				return true
			}
		}
	case map[string]any:
		for _, item := range x {
			if holdsReference(item) {
				return true
			}
		}
	}
	return false
}

func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

func dedupe(paths []string) []string {
	sort.Strings(paths)
	out := paths[:0]
	for i, p := range paths {
		if i == 0 || p != paths[i-1] {
			out = append(out, p)
		}
	}
	return out
}
