package processor

import (
	"context"
	"encoding/json"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/chartkit/chartkit/pkg/engine"
)

// JSONRenderer writes the resolved configuration to <outdir>/<output>.json.
// It stands in for a drawing backend and is what Generate uses by default.
type JSONRenderer struct {
	fs afero.Fs
}

// NewJSONRenderer creates a renderer writing to fs.
func NewJSONRenderer(fs afero.Fs) *JSONRenderer {
	return &JSONRenderer{fs: fs}
}

type renderedChart struct {
	Type   string         `json:"type"`
	Output string         `json:"output"`
	Config map[string]any `json:"config"`
}

// Render implements engine.Renderer.
func (r *JSONRenderer) Render(_ context.Context, req engine.RenderRequest) ([]string, error) {
	if req.Output == "" {
		return nil, engine.NewRenderingError("chart has no output name", nil).WithPath("chart.output")
	}
	if err := r.fs.MkdirAll(req.Outdir, 0o755); err != nil {
		return nil, engine.NewRenderingError("failed to create output directory", err)
	}

	body, err := json.MarshalIndent(renderedChart{
		Type:   req.ChartType,
		Output: req.Output,
		Config: req.Config,
	}, "", "  ")
	if err != nil {
		return nil, engine.NewRenderingError("failed to encode chart", err)
	}

	path := filepath.Join(req.Outdir, req.Output+".json")
	if err := afero.WriteFile(r.fs, path, append(body, '\n'), 0o644); err != nil {
		return nil, engine.NewRenderingError("failed to write chart", err)
	}
	return []string{path}, nil
}
