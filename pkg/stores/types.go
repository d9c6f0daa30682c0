package stores

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// Run is one recorded generate invocation.
type Run struct {
	ID        string        `json:"id"`
	Paths     []string      `json:"paths"`
	Outdir    string        `json:"outdir"`
	Strict    bool          `json:"strict"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	CreatedAt time.Time     `json:"created_at"`

	// Files is only populated by GetRun.
	Files []*RunFile `json:"files,omitempty"`
}

// RunFile is the outcome of one document within a run.
type RunFile struct {
	RunID     string   `json:"run_id"`
	Position  int      `json:"position"`
	File      string   `json:"file"`
	ChartType string   `json:"chart_type"`
	Succeeded bool     `json:"succeeded"`
	Artifacts []string `json:"artifacts"`
	Message   string   `json:"message,omitempty"`
	Warnings  int      `json:"warnings"`

	// StartedAt is the start of the owning run. Set by FileHistory.
	StartedAt time.Time `json:"started_at,omitzero"`
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	// Since excludes runs started before it when non-zero.
	Since time.Time
	// FailedOnly keeps runs with at least one failed document.
	FailedOnly bool
	Limit      int
	Offset     int
}
