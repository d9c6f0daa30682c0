package policy

import (
	"time"

	"github.com/chartkit/chartkit/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError fails the document in strict mode.
	SeverityError Severity = "error"

	// SeverityCritical fails the document in strict mode.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether violations of this severity make a result
// disallowed.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy is a named Rego module producing lint violations from its deny set.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego module. It must define a deny set.
	Rego string `json:"rego"`

	// Severity is used for violations that do not carry their own.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is evaluated.
	Enabled bool `json:"enabled"`

	// Builtin marks policies shipped with chartkit.
	Builtin bool `json:"builtin"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Source is the file the policy was loaded from.
	Source string `json:"source,omitempty"`

	// LoadedAt is when the policy was read.
	LoadedAt time.Time `json:"loaded_at"`
}

// Input is the document handed to every policy as `input`.
type Input struct {
	File      string               `json:"file,omitempty"`
	ChartType string               `json:"chart_type"`
	Chart     map[string]any       `json:"chart"`
	Source    engine.SourceLocator `json:"source"`
	Series    int                  `json:"series"`
	Context   InputContext         `json:"context"`
}

// InputContext carries evaluation metadata.
type InputContext struct {
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
}
