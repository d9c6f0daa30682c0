package dataload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"

	"github.com/chartkit/chartkit/pkg/controllers"
	"github.com/chartkit/chartkit/pkg/engine"
	"github.com/chartkit/chartkit/pkg/frame"
)

// DefaultCacheSize is the number of loaded contexts kept in memory.
const DefaultCacheSize = 64

// CacheObserver is notified of every cache lookup with "hit" or "miss".
type CacheObserver interface {
	RecordCacheLookup(result string)
}

// Loader loads data sources. It is safe for concurrent use.
type Loader struct {
	fs       afero.Fs
	client   *retryablehttp.Client
	registry *controllers.Registry
	indexes  *Indexes
	strategy FiscalYearStrategy

	cacheSize int
	cache     *lru.Cache
	group     singleflight.Group
	observer  CacheObserver

	logger zerolog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithFs sets the filesystem local CSV files are read from.
func WithFs(fs afero.Fs) Option {
	return func(l *Loader) { l.fs = fs }
}

// WithHTTPClient sets the client remote CSV files are fetched with.
func WithHTTPClient(c *retryablehttp.Client) Option {
	return func(l *Loader) { l.client = c }
}

// WithRegistry sets the controller registry.
func WithRegistry(r *controllers.Registry) Option {
	return func(l *Loader) { l.registry = r }
}

// WithIndexes sets the inflation index tables.
func WithIndexes(ix *Indexes) Option {
	return func(l *Loader) { l.indexes = ix }
}

// WithFiscalYearStrategy replaces the fiscal year column detection.
func WithFiscalYearStrategy(s FiscalYearStrategy) Option {
	return func(l *Loader) { l.strategy = s }
}

// WithCacheSize sets the number of cached contexts. Zero disables caching.
func WithCacheSize(n int) Option {
	return func(l *Loader) { l.cacheSize = n }
}

// WithCacheObserver reports cache hits and misses.
func WithCacheObserver(o CacheObserver) Option {
	return func(l *Loader) { l.observer = o }
}

// WithLogger sets the loader logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader creates a loader.
func NewLoader(opts ...Option) (*Loader, error) {
	l := &Loader{
		fs:        afero.NewOsFs(),
		strategy:  DefaultFiscalYearStrategy(),
		cacheSize: DefaultCacheSize,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With().Str("component", "dataload").Logger()

	if l.client == nil {
		l.client = NewHTTPClient(3, l.logger)
	}
	if l.registry == nil {
		l.registry = controllers.NewRegistry(controllers.WithFs(l.fs), controllers.WithLogger(l.logger))
	}
	if l.indexes == nil {
		l.indexes = NewIndexes(l.fetcher())
	}
	if l.cacheSize > 0 {
		cache, err := lru.New(l.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create loader cache: %w", err)
		}
		l.cache = cache
	}
	return l, nil
}

// Registry returns the controller registry used for controller sources.
func (l *Loader) Registry() *controllers.Registry {
	return l.registry
}

// Load loads a data source and applies its parameters.
func (l *Loader) Load(ctx context.Context, loc engine.SourceLocator, cfg engine.DataSourceConfig) (*engine.LoadResult, error) {
	key := l.cacheKey(loc, cfg)

	if l.cache != nil {
		if v, ok := l.cache.Get(key); ok {
			l.observe("hit")
			return cachedCopy(v.(*engine.LoadResult)), nil
		}
	}
	l.observe("miss")

	v, err, shared := l.group.Do(key, func() (any, error) {
		res, err := l.load(ctx, loc, cfg)
		if err != nil {
			return nil, err
		}
		if l.cache != nil {
			l.cache.Add(key, res)
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}

	res := v.(*engine.LoadResult)
	if shared {
		return cachedCopy(res), nil
	}
	return res, nil
}

// Purge drops every cached context.
func (l *Loader) Purge() {
	if l.cache != nil {
		l.cache.Purge()
	}
}

func (l *Loader) observe(result string) {
	if l.observer != nil {
		l.observer.RecordCacheLookup(result)
	}
}

// cachedCopy returns a result sharing the immutable context with a private
// warnings slice.
func cachedCopy(res *engine.LoadResult) *engine.LoadResult {
	return &engine.LoadResult{
		Context:  res.Context,
		Warnings: append([]string(nil), res.Warnings...),
		Cached:   true,
	}
}

// cacheKey digests the locator and parameters. File sources include the
// file's size and modification time so edits invalidate the entry.
func (l *Loader) cacheKey(loc engine.SourceLocator, cfg engine.DataSourceConfig) string {
	key := struct {
		Locator   string                  `json:"locator"`
		Params    *engine.LoadParams      `json:"params,omitempty"`
		Inflation *engine.InflationConfig `json:"inflation,omitempty"`
		Stamp     string                  `json:"stamp,omitempty"`
	}{
		Locator:   loc.String(),
		Params:    cfg.Params,
		Inflation: cfg.CalculateInflation,
	}
	if loc.Kind == engine.SourceLocalCSV || loc.Kind == engine.SourceCustomControllerFile {
		if info, err := l.fs.Stat(loc.Location); err == nil {
			key.Stamp = fmt.Sprintf("%d/%d", info.Size(), info.ModTime().UnixNano())
		}
	}

	data, _ := json.Marshal(key)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (l *Loader) load(ctx context.Context, loc engine.SourceLocator, cfg engine.DataSourceConfig) (*engine.LoadResult, error) {
	start := time.Now()

	var (
		f      *frame.Frame
		values map[string]any
		err    error
	)

	switch loc.Kind {
	case engine.SourceLocalCSV:
		f, err = l.readLocal(loc.Location)
	case engine.SourceRemoteCSV:
		f, err = l.fetchCSV(ctx, loc.Location)
	case engine.SourceControllerMethod, engine.SourceCustomControllerFile:
		values, err = l.registry.Call(ctx, loc)
		if err == nil {
			f, _ = values[engine.DataKey].(*frame.Frame)
			if f != nil {
				f = f.Clone()
			}
		}
	default:
		err = engine.NewDataSourceError(fmt.Sprintf("unsupported data source %q", loc.Location), nil).
			WithPath("data.source")
	}
	if err != nil {
		return nil, err
	}

	params := cfg.Params
	if params == nil {
		params = &engine.LoadParams{}
	}

	var warnings *warningList
	if f != nil {
		warnings = l.applyParams(f, params, loc.Kind == engine.SourceRemoteCSV)
	} else {
		warnings = &warningList{}
		if cfg.Params != nil {
			warnings.add("params ignored: %s returned no data frame", loc)
		}
	}

	var targetYear int
	if cfg.CalculateInflation != nil {
		if f == nil {
			return nil, engine.NewDataSourceError(
				fmt.Sprintf("calculate_inflation requires tabular data, %s returned none", loc), nil).
				WithCode(engine.ErrCodeInflation).
				WithPath("data.calculate_inflation")
		}
		targetYear, err = l.applyInflation(ctx, f, cfg.CalculateInflation, warnings)
		if err != nil {
			return nil, err
		}
	}

	rctx := buildContext(f, values, targetYear)

	l.logger.Debug().
		Str("source", loc.String()).
		Int("keys", rctx.Len()).
		Dur("duration", time.Since(start)).
		Msg("Loaded data source")

	return &engine.LoadResult{
		Context:  rctx,
		Warnings: warnings.strings(),
	}, nil
}

func (l *Loader) readLocal(path string) (*frame.Frame, error) {
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, engine.NewDataSourceError(fmt.Sprintf("failed to read CSV file %s", path), err).
			WithCode(engine.ErrCodeFileNotFound).
			WithPath("data.source")
	}
	return parseCSV(data, path)
}

func parseCSV(data []byte, where string) (*frame.Frame, error) {
	f, err := frame.ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, engine.NewDataSourceError(fmt.Sprintf("failed to parse CSV from %s", where), err).
			WithCode(engine.ErrCodeMalformedCSV).
			WithPath("data.source")
	}
	return f, nil
}

// buildContext assembles the context: controller values first, then the
// frame under "data", one entry per column and a <col>_year entry for date
// columns. Controller values win over derived column entries.
func buildContext(f *frame.Frame, values map[string]any, targetYear int) *engine.ResolvedContext {
	b := engine.NewContextBuilder()

	if f != nil || values[engine.DataKey] != nil {
		b.Set(engine.DataKey, values[engine.DataKey])
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != engine.DataKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.Set(k, values[k])
	}

	if f != nil {
		b.Set(engine.DataKey, f)
		for _, name := range f.Columns() {
			if _, taken := values[name]; taken {
				continue
			}
			col, _ := f.Column(name)
			b.Set(name, col.Values)

			yearKey := name + "_year"
			if _, taken := values[yearKey]; taken || f.Has(yearKey) {
				continue
			}
			if looksLikeDates(col.Values) {
				b.Set(yearKey, roundToYears(col.Values))
			}
		}
	}

	if targetYear != 0 {
		b.Set(InflationTargetYearKey, targetYear)
	}
	return b.Build()
}
