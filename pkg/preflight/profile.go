package preflight

import (
	"context"
	"sort"

	"github.com/chartkit/chartkit/pkg/engine"
	"github.com/chartkit/chartkit/pkg/frame"
	"github.com/chartkit/chartkit/pkg/source"
)

// SampleRows is the number of leading rows included in a data profile.
const SampleRows = 25

// Profile loads a data source and summarizes its primary frame. Load
// failures are returned as errors.
func (e *Engine) Profile(ctx context.Context, cfg engine.DataSourceConfig) (engine.DataProfile, error) {
	loc := source.Classify(cfg.Source)
	if err := source.Validate(loc); err != nil {
		return engine.DataProfile{}, err
	}

	res, err := e.loader.Load(ctx, loc, cfg)
	if err != nil {
		return engine.DataProfile{}, err
	}

	profile := engine.DataProfile{
		SourceKind:  loc.ProfileKind(),
		Columns:     []engine.ColumnProfile{},
		SampleRows:  []map[string]any{},
		Warnings:    append([]string{}, res.Warnings...),
		ContextKeys: []string{},
	}
	for _, key := range res.Context.Keys() {
		if key != engine.DataKey {
			profile.ContextKeys = append(profile.ContextKeys, key)
		}
	}
	sort.Strings(profile.ContextKeys)

	data, _ := res.Context.Data()
	f, ok := data.(*frame.Frame)
	if !ok || f == nil {
		profile.Warnings = append(profile.Warnings, "Resolved source did not return a 'data' frame")
		return profile, nil
	}

	profile.RowCount = f.Len()
	for _, name := range f.Columns() {
		c, _ := f.Column(name)
		profile.Columns = append(profile.Columns, engine.ColumnProfile{Name: name, DType: string(c.DType)})
	}
	profile.SampleRows = f.Head(SampleRows)

	e.logger.Debug().
		Str("source", loc.String()).
		Int("rows", profile.RowCount).
		Int("columns", len(profile.Columns)).
		Msg("Profiled data source")
	return profile, nil
}
