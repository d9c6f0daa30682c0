package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/chartkit/chartkit/pkg/engine"
)

// ProcessBatch processes documents concurrently. A failing document never
// aborts the batch; results are returned in input order.
func (p *Processor) ProcessBatch(ctx context.Context, docs []*Document, strict bool) *BatchResult {
	return p.batch(ctx, docs, strict, nil)
}

// after runs in the worker goroutine once a document has been processed.
type after func(ctx context.Context, res *Result)

func (p *Processor) batch(ctx context.Context, docs []*Document, strict bool, then after) *BatchResult {
	results := make([]*Result, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			results[i] = p.safeProcess(gctx, doc, strict, then)
			return nil
		})
	}
	// workers never return errors
	_ = g.Wait()

	out := &BatchResult{Results: results}
	for _, res := range results {
		if res.OK() {
			out.Succeeded++
		} else {
			out.Failed++
		}
	}
	return out
}

// safeProcess turns a panic in one document into a failed result.
func (p *Processor) safeProcess(ctx context.Context, doc *Document, strict bool, then after) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Str("file", doc.File).Msg("Document processing panicked")
			res = &Result{File: doc.File}
			res.fail(engine.ResolutionError{
				Message: fmt.Sprintf("internal error: %v", r),
				Kind:    engine.IssueConfiguration,
			})
		}
	}()

	res = p.ProcessDocument(ctx, doc, strict)
	if then != nil {
		then(ctx, res)
	}
	return res
}

// Generate expands paths into chart documents, processes them and renders
// every document that resolved. Path problems abort the run before any
// document is processed; document failures are reported per file.
func (p *Processor) Generate(ctx context.Context, paths []string, opts GenerateOptions) (*GenerateResult, error) {
	started := time.Now()

	files, err := p.Collect(paths)
	if err != nil {
		return nil, err
	}
	if !opts.Quiet {
		p.logger.Info().Int("files", len(files)).Str("outdir", opts.Outdir).Msg("Processing chart documents")
	}

	// parse failures are reported with the batch, in input order
	docs := make([]*Document, 0, len(files))
	parseErrs := make(map[string]error)
	for _, file := range files {
		doc, err := LoadDocument(p.fs, file)
		if err != nil {
			parseErrs[file] = err
			continue
		}
		docs = append(docs, doc)
	}

	batch := p.batch(ctx, docs, opts.Strict, func(ctx context.Context, res *Result) {
		if res.OK() {
			p.render(ctx, res, opts)
		}
	})

	byFile := make(map[string]*Result, len(batch.Results))
	for _, res := range batch.Results {
		byFile[res.File] = res
	}

	out := &GenerateResult{
		RunID:  uuid.NewString(),
		Files:  []string{},
		Errors: []FileError{},
	}
	for _, file := range files {
		res, ok := byFile[file]
		if !ok {
			res = &Result{File: file}
			res.fail(engine.IssueFromError("", parseErrs[file]))
		}
		out.Results = append(out.Results, res)

		if res.OK() {
			out.Succeeded++
			out.Files = append(out.Files, res.Artifacts...)
			if !opts.Quiet {
				p.logger.Info().Str("file", file).Strs("artifacts", res.Artifacts).Msg("Generated chart")
			}
			continue
		}
		out.Failed++
		out.Errors = append(out.Errors, FileError{File: file, Message: res.Message()})
		p.logger.Error().Str("file", file).Str("error", res.Message()).Msg("Chart generation failed")
	}

	if !opts.Quiet {
		p.logger.Info().
			Int("succeeded", out.Succeeded).
			Int("failed", out.Failed).
			Dur("duration", time.Since(started)).
			Msg("Generation complete")
	}
	p.record(ctx, out, paths, opts, started)
	return out, nil
}

func (p *Processor) render(ctx context.Context, res *Result, opts GenerateOptions) {
	_ = p.stage(ctx, StageRender, func(ctx context.Context) bool {
		artifacts, err := p.renderer.Render(ctx, engine.RenderRequest{
			ChartType: res.ChartType,
			Output:    res.Output,
			Outdir:    opts.Outdir,
			Config:    res.Config,
			Context:   res.Context,
			Headless:  p.headless,
		})
		if err != nil {
			res.fail(engine.IssueFromError("chart", err))
			return false
		}
		res.Artifacts = artifacts
		return true
	})
}

func (p *Processor) record(ctx context.Context, out *GenerateResult, paths []string, opts GenerateOptions, started time.Time) {
	if p.recorder == nil {
		return
	}
	run := engine.RunRecord{
		ID:        out.RunID,
		Paths:     paths,
		Outdir:    opts.Outdir,
		Strict:    opts.Strict,
		StartedAt: started,
		Duration:  time.Since(started),
	}
	for _, res := range out.Results {
		run.Files = append(run.Files, engine.FileRecord{
			File:      res.File,
			ChartType: res.ChartType,
			Succeeded: res.OK(),
			Artifacts: res.Artifacts,
			Message:   res.Message(),
			Warnings:  len(res.Warnings),
		})
	}
	if err := p.recorder.RecordRun(ctx, run); err != nil {
		p.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to record run")
	}
}

// Collect expands files, directories and glob patterns into chart document
// paths. Directories contribute their direct *.yaml and *.yml children.
// Results are de-duplicated and keep the order of the inputs.
func (p *Processor) Collect(paths []string) ([]string, error) {
	var files, problems []string
	seen := make(map[string]bool)
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, raw := range paths {
		path := filepath.Clean(raw)
		if hasMeta(path) {
			matches, err := p.glob(path)
			if err != nil {
				problems = append(problems, fmt.Sprintf("invalid pattern %s: %v", raw, err))
				continue
			}
			if len(matches) == 0 {
				problems = append(problems, "No YAML files match pattern: "+raw)
			}
			for _, m := range matches {
				add(m)
			}
			continue
		}

		info, err := p.fs.Stat(path)
		switch {
		case os.IsNotExist(err):
			problems = append(problems, "Path not found: "+raw)
		case err != nil:
			problems = append(problems, fmt.Sprintf("cannot read %s: %v", raw, err))
		case info.IsDir():
			children, err := p.yamlChildren(path)
			if err != nil {
				problems = append(problems, fmt.Sprintf("cannot list %s: %v", raw, err))
			} else if len(children) == 0 {
				problems = append(problems, "No YAML files found in directory: "+raw)
			}
			for _, c := range children {
				add(c)
			}
		case !isYAML(path):
			problems = append(problems, "Not a YAML file: "+raw)
		default:
			add(path)
		}
	}

	if len(problems) > 0 {
		return nil, engine.NewConfigurationError(strings.Join(problems, "; "), nil).
			WithCode(engine.ErrCodeInvalidDocument)
	}
	if len(files) == 0 {
		return nil, engine.NewConfigurationError("no YAML files found to process", nil).
			WithCode(engine.ErrCodeInvalidDocument)
	}
	return files, nil
}

func (p *Processor) glob(pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(filepath.ToSlash(pattern)) {
		return nil, doublestar.ErrBadPattern
	}
	base, _ := doublestar.SplitPattern(filepath.ToSlash(pattern))
	var matches []string
	err := afero.Walk(p.fs, filepath.FromSlash(base), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || !isYAML(path) {
			return nil
		}
		if ok, _ := doublestar.Match(filepath.ToSlash(pattern), filepath.ToSlash(path)); ok {
			matches = append(matches, path)
		}
		return nil
	})
	sort.Strings(matches)
	return matches, err
}

func (p *Processor) yamlChildren(dir string) ([]string, error) {
	entries, err := afero.ReadDir(p.fs, dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && isYAML(e.Name()) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func hasMeta(path string) bool {
	return strings.ContainsAny(path, "*?[{")
}
