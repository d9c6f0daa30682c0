package processor

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chartkit/chartkit/pkg/engine"
	"github.com/chartkit/chartkit/pkg/schema"
	"github.com/chartkit/chartkit/pkg/series"
	"github.com/chartkit/chartkit/pkg/source"
	"github.com/chartkit/chartkit/pkg/template"
)

// Pipeline stage names, used for metrics and spans.
const (
	StageClassify  = "classify"
	StageLoad      = "load"
	StageResolve   = "resolve"
	StageCorrelate = "correlate"
	StageValidate  = "validate"
	StageLint      = "lint"
	StageRender    = "render"
)

// Observer receives processing measurements.
type Observer interface {
	RecordDocument(status string, duration time.Duration)
	RecordStage(stage string, duration time.Duration)
	RecordError(kind, code string)
}

// Processor runs chart documents through the resolution pipeline.
type Processor struct {
	loader      engine.Loader
	validator   *schema.Validator
	policies    engine.PolicyEngine
	renderer    engine.Renderer
	recorder    engine.RunRecorder
	observer    Observer
	fs          afero.Fs
	concurrency int
	colors      bool
	headless    bool
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// Option configures a Processor.
type Option func(*Processor)

// WithPolicyEngine lints every resolved configuration.
func WithPolicyEngine(pe engine.PolicyEngine) Option {
	return func(p *Processor) {
		p.policies = pe
	}
}

// WithRenderer sets the renderer used by Generate. The default writes JSON.
func WithRenderer(r engine.Renderer) Option {
	return func(p *Processor) {
		p.renderer = r
	}
}

// WithRunRecorder persists every Generate run.
func WithRunRecorder(r engine.RunRecorder) Option {
	return func(p *Processor) {
		p.recorder = r
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(p *Processor) {
		p.observer = o
	}
}

// WithFs sets the filesystem documents are read from.
func WithFs(fs afero.Fs) Option {
	return func(p *Processor) {
		p.fs = fs
	}
}

// WithConcurrency limits how many documents of a batch run at once.
func WithConcurrency(n int) Option {
	return func(p *Processor) {
		p.concurrency = n
	}
}

// WithColorResolution replaces palette color names with hex codes after
// validation.
func WithColorResolution(enabled bool) Option {
	return func(p *Processor) {
		p.colors = enabled
	}
}

// WithHeadless is passed through to the renderer.
func WithHeadless(headless bool) Option {
	return func(p *Processor) {
		p.headless = headless
	}
}

// WithLogger sets the processor logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// New creates a processor.
func New(loader engine.Loader, validator *schema.Validator, opts ...Option) *Processor {
	p := &Processor{
		loader:      loader,
		validator:   validator,
		fs:          afero.NewOsFs(),
		concurrency: runtime.GOMAXPROCS(0),
		colors:      true,
		logger:      zerolog.Nop(),
		tracer:      otel.Tracer("github.com/chartkit/chartkit/pkg/processor"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.concurrency < 1 {
		p.concurrency = 1
	}
	if p.renderer == nil {
		p.renderer = NewJSONRenderer(p.fs)
	}
	p.logger = p.logger.With().Str("component", "processor").Logger()
	return p
}

// ProcessDocument resolves one document: classify, load, resolve,
// correlate, validate, then lint. Strict mode stops at the first fatal
// problem. Lenient mode tolerates unresolved references and missing
// required fields and records them as warnings.
func (p *Processor) ProcessDocument(ctx context.Context, doc *Document, strict bool) *Result {
	start := time.Now()
	res := &Result{File: doc.File}

	ctx, span := p.tracer.Start(ctx, "processor.document", trace.WithAttributes(
		attribute.String("file", doc.File),
		attribute.Bool("strict", strict),
	))
	defer func() {
		res.Duration = time.Since(start)
		p.finish(res, span)
	}()

	cfg, loc, ok := p.classify(ctx, doc, res)
	if !ok {
		return res
	}
	rc, ok := p.load(ctx, loc, cfg, res)
	if !ok {
		return res
	}
	res.Context = rc

	s, ok := p.chartSchema(doc.Chart, res)
	if !ok {
		return res
	}
	config, ok := p.resolve(ctx, doc.Chart, rc, s, strict, res)
	if !ok {
		return res
	}
	config, ok = p.correlate(ctx, config, s, res)
	if !ok {
		return res
	}
	config, ok = p.validate(ctx, config, s, strict, res)
	if !ok {
		return res
	}
	if p.colors {
		resolved, err := p.validator.Palette().ResolveColors(config, s)
		if err != nil {
			res.fail(engine.IssueFromError(schema.Root, err))
			return res
		}
		config = resolved
	}
	if !p.lint(ctx, config, s, strict, res) {
		return res
	}

	res.Config = config
	res.Output, _ = config["output"].(string)
	return res
}

// stage times fn and wraps it in a span.
func (p *Processor) stage(ctx context.Context, name string, fn func(ctx context.Context) bool) bool {
	ctx, span := p.tracer.Start(ctx, "processor."+name)
	defer span.End()

	start := time.Now()
	ok := fn(ctx)
	if p.observer != nil {
		p.observer.RecordStage(name, time.Since(start))
	}
	if !ok {
		span.SetStatus(codes.Error, name+" failed")
	}
	return ok
}

func (p *Processor) classify(ctx context.Context, doc *Document, res *Result) (engine.DataSourceConfig, engine.SourceLocator, bool) {
	var cfg engine.DataSourceConfig
	var loc engine.SourceLocator
	ok := p.stage(ctx, StageClassify, func(context.Context) bool {
		var issues []engine.ResolutionError
		cfg, issues = engine.DecodeDataSource(doc.Data)
		if len(issues) > 0 {
			res.fail(issues...)
			return false
		}
		loc = source.Classify(cfg.Source)
		res.Source = loc
		if err := source.Validate(loc); err != nil {
			res.fail(engine.IssueFromError("data.source", err))
			return false
		}
		return true
	})
	return cfg, loc, ok
}

func (p *Processor) load(ctx context.Context, loc engine.SourceLocator, cfg engine.DataSourceConfig, res *Result) (*engine.ResolvedContext, bool) {
	var rc *engine.ResolvedContext
	ok := p.stage(ctx, StageLoad, func(ctx context.Context) bool {
		lr, err := p.loader.Load(ctx, loc, cfg)
		if err != nil {
			res.fail(engine.IssueFromError("data.source", err))
			return false
		}
		rc = lr.Context
		res.Cached = lr.Cached
		res.Warnings = append(res.Warnings, lr.Warnings...)
		return true
	})
	return rc, ok
}

// chartSchema selects the schema named by the literal chart.type field.
func (p *Processor) chartSchema(chart template.Node, res *Result) (*schema.ChartSchema, bool) {
	m, ok := chart.(*template.Mapping)
	if !ok {
		res.fail(engine.ResolutionError{
			Path:    schema.Root,
			Message: "chart must be a mapping",
			Kind:    engine.IssueConfiguration,
			Code:    engine.ErrCodeInvalidDocument,
		})
		return nil, false
	}

	node, _ := m.Get("type")
	lit, _ := node.(*template.Literal)
	var chartType string
	if lit != nil {
		chartType, _ = lit.Value.(string)
	}
	if chartType == "" {
		res.fail(engine.ResolutionError{
			Path:    schema.Root + ".type",
			Message: "chart type is required and must be a literal string",
			Kind:    engine.IssueMissingRequired,
			Code:    engine.ErrCodeMissingRequired,
		})
		return nil, false
	}
	res.ChartType = chartType

	s, ok := p.validator.Registry().Get(chartType)
	if !ok {
		res.fail(engine.ResolutionError{
			Path:    schema.Root + ".type",
			Message: fmt.Sprintf("unknown chart type %q; available types: %v", chartType, p.validator.Registry().Types()),
			Kind:    engine.IssueConfiguration,
			Code:    engine.ErrCodeUnknownChartType,
		})
		return nil, false
	}
	return s, true
}

func (p *Processor) resolve(ctx context.Context, chart template.Node, rc *engine.ResolvedContext, s *schema.ChartSchema, strict bool, res *Result) (map[string]any, bool) {
	mode := template.Lenient
	if strict {
		mode = template.Strict
	}

	var config map[string]any
	ok := p.stage(ctx, StageResolve, func(context.Context) bool {
		out := template.Resolve(chart, rc, template.Options{
			Mode:        mode,
			Root:        schema.Root,
			Interpolate: s.Interpolates,
			Opaque:      s.IsOpaque,
		})
		res.Warnings = append(res.Warnings, out.Warnings...)
		if !out.OK() {
			res.fail(out.Errors...)
			return false
		}
		config, _ = out.Value.(map[string]any)
		if s.SeriesOverrides {
			config = p.expandSeriesOverrides(config, res)
		}
		return true
	})
	return config, ok
}

// expandSeriesOverrides moves series_overrides entries to series_<n> keys.
func (p *Processor) expandSeriesOverrides(config map[string]any, res *Result) map[string]any {
	raw, ok := config["series_overrides"]
	if !ok {
		return config
	}
	delete(config, "series_overrides")

	overrides, ok := raw.(map[string]any)
	if !ok {
		res.Warnings = append(res.Warnings, fmt.Sprintf("series_overrides must be a mapping, got %T; ignored", raw))
		return config
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n, err := strconv.Atoi(k)
		if err != nil || n < 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("series_overrides key %q is not a series index; ignored", k))
			continue
		}
		name := "series_" + strconv.Itoa(n)
		if _, exists := config[name]; exists {
			res.Warnings = append(res.Warnings, fmt.Sprintf("series_overrides replaces %s", name))
		}
		config[name] = overrides[k]
	}
	return config
}

func (p *Processor) correlate(ctx context.Context, config map[string]any, s *schema.ChartSchema, res *Result) (map[string]any, bool) {
	var out map[string]any
	ok := p.stage(ctx, StageCorrelate, func(context.Context) bool {
		correlated, issues := series.Correlate(config, s)
		if len(issues) > 0 {
			res.fail(issues...)
			return false
		}
		out = correlated
		return true
	})
	return out, ok
}

func (p *Processor) validate(ctx context.Context, config map[string]any, s *schema.ChartSchema, strict bool, res *Result) (map[string]any, bool) {
	var out map[string]any
	ok := p.stage(ctx, StageValidate, func(ctx context.Context) bool {
		vout := p.validator.Validate(ctx, config, s.Type, strict)
		res.Warnings = append(res.Warnings, vout.Warnings...)
		if !vout.OK() {
			res.fail(vout.Errors...)
			return false
		}
		out, _ = vout.Value.(map[string]any)
		return true
	})
	return out, ok
}

// lint evaluates policies. Violations are warnings; error severity
// violations fail the document in strict mode.
func (p *Processor) lint(ctx context.Context, config map[string]any, s *schema.ChartSchema, strict bool, res *Result) bool {
	if p.policies == nil {
		return true
	}
	return p.stage(ctx, StageLint, func(ctx context.Context) bool {
		count := 1
		if len(s.Triggers) > 0 {
			count = 0
			for _, name := range s.Triggers {
				count += series.Count(config[name])
			}
		}
		pr, err := p.policies.Evaluate(ctx, engine.LintInput{
			File:      res.File,
			ChartType: s.Type,
			Chart:     config,
			Source:    res.Source,
			Series:    count,
		})
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("policy evaluation failed: %v", err))
			return true
		}
		res.Warnings = append(res.Warnings, pr.Warnings...)
		res.Violations = append(res.Violations, pr.Violations...)

		var blocking []engine.ResolutionError
		for _, v := range pr.Violations {
			res.Warnings = append(res.Warnings, fmt.Sprintf("policy %s: %s", v.Policy, v.Message))
			if strict && !pr.Allowed && (v.Severity == "error" || v.Severity == "critical") {
				blocking = append(blocking, engine.ResolutionError{
					Path:    v.Path,
					Message: fmt.Sprintf("policy %s: %s", v.Policy, v.Message),
					Kind:    engine.IssueConfiguration,
					Code:    engine.ErrCodePolicyViolation,
				})
			}
		}
		if len(blocking) > 0 {
			res.fail(blocking...)
			return false
		}
		return true
	})
}

func (p *Processor) finish(res *Result, span trace.Span) {
	defer span.End()

	status := "succeeded"
	if !res.OK() {
		status = "failed"
		span.SetStatus(codes.Error, res.Message())
		if p.observer != nil {
			for _, issue := range res.Errors {
				p.observer.RecordError(string(issue.Kind), issue.Code)
			}
		}
	}
	span.SetAttributes(
		attribute.String("chart_type", res.ChartType),
		attribute.String("status", status),
		attribute.Int("warnings", len(res.Warnings)),
	)
	if p.observer != nil {
		p.observer.RecordDocument(status, res.Duration)
	}

	event := p.logger.Debug()
	if !res.OK() {
		event = p.logger.Warn().Str("error", res.Message())
	}
	event.Str("file", res.File).
		Str("chart_type", res.ChartType).
		Str("status", status).
		Int("warnings", len(res.Warnings)).
		Bool("cached", res.Cached).
		Dur("duration", res.Duration).
		Msg("Document processed")
}
