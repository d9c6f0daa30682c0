package engine

import (
	"errors"
	"fmt"
	"strings"
)

// SourceKind identifies how a data source string is loaded.
type SourceKind string

const (
	// SourceLocalCSV is a CSV file on the local filesystem.
	SourceLocalCSV SourceKind = "local_csv"

	// SourceRemoteCSV is a CSV document fetched over HTTP(S).
	SourceRemoteCSV SourceKind = "remote_csv"

	// SourceControllerMethod is a method on a registered controller module.
	SourceControllerMethod SourceKind = "controller_method"

	// SourceCustomControllerFile is a method on a controller defined in a script file.
	SourceCustomControllerFile SourceKind = "custom_controller_file"
)

// SourceLocator is the classified form of a data source string. It is derived,
// never authored, and is recomputed from the source string on every pass.
type SourceLocator struct {
	Kind     SourceKind `json:"kind"`
	Location string     `json:"location"`
	Member   string     `json:"member,omitempty"`
}

// String returns the canonical prefixed form of the locator. Classifying the
// canonical form yields the same locator.
func (l SourceLocator) String() string {
	switch l.Kind {
	case SourceLocalCSV:
		return "csv:" + l.Location
	case SourceRemoteCSV:
		return "url:" + l.Location
	case SourceCustomControllerFile:
		return "controller:" + l.Location + ":" + l.Member
	case SourceControllerMethod:
		if l.Member == "" && !strings.Contains(l.Location, ".") {
			return "controller:" + l.Location
		}
		return "controller:" + l.Location + "." + l.Member
	default:
		return l.Location
	}
}

// ProfileKind returns the coarse source kind reported by data profiles.
func (l SourceLocator) ProfileKind() string {
	switch l.Kind {
	case SourceLocalCSV:
		return "csv"
	case SourceRemoteCSV:
		return "url"
	default:
		return "controller"
	}
}

// DataSourceConfig is the data block of a chart document.
type DataSourceConfig struct {
	// Source is the raw source string, classified by the source classifier.
	Source string `json:"source" yaml:"source" mapstructure:"source" validate:"required"`

	// Params are applied after the raw data is loaded.
	Params *LoadParams `json:"params,omitempty" yaml:"params,omitempty" mapstructure:"params" validate:"omitempty"`

	// CalculateInflation adds constant-year columns after params are applied.
	CalculateInflation *InflationConfig `json:"calculate_inflation,omitempty" yaml:"calculate_inflation,omitempty" mapstructure:"calculate_inflation" validate:"omitempty"`
}

// LoadParams are the post-load transformations for a data source.
type LoadParams struct {
	// Columns is an allow-list of columns to keep.
	Columns []string `json:"columns,omitempty" yaml:"columns,omitempty" mapstructure:"columns" validate:"omitempty,dive,required"`

	// Cast maps column names to int, float, str or datetime.
	Cast map[string]string `json:"cast,omitempty" yaml:"cast,omitempty" mapstructure:"cast"`

	// Renames maps old column names to new ones.
	Renames map[string]string `json:"renames,omitempty" yaml:"renames,omitempty" mapstructure:"renames" validate:"omitempty,dive,required"`

	// AutoCleanCurrency converts "$1,234" style columns to numbers.
	// Nil means the per-source default: on for remote CSV, off otherwise.
	AutoCleanCurrency *bool `json:"auto_clean_currency,omitempty" yaml:"auto_clean_currency,omitempty" mapstructure:"auto_clean_currency"`

	// CurrencyMultiplier scales cleaned currency values. Defaults to 1.
	CurrencyMultiplier *float64 `json:"currency_multiplier,omitempty" yaml:"currency_multiplier,omitempty" mapstructure:"currency_multiplier" validate:"omitempty,gt=0"`

	// FiscalYearColumn overrides or disables fiscal year detection.
	FiscalYearColumn *FiscalYearOption `json:"fiscal_year_column,omitempty" yaml:"fiscal_year_column,omitempty" mapstructure:"fiscal_year_column"`
}

// FiscalYearOption is either an explicit column name or a disable flag.
// In documents it is written as a string or as false.
type FiscalYearOption struct {
	Column   string `json:"column,omitempty" mapstructure:"column"`
	Disabled bool   `json:"disabled,omitempty" mapstructure:"disabled"`
}

// MarshalJSON writes the option back in its document form.
func (o FiscalYearOption) MarshalJSON() ([]byte, error) {
	if o.Disabled {
		return []byte("false"), nil
	}
	return []byte(fmt.Sprintf("%q", o.Column)), nil
}

// InflationIndex names a price index used for constant-year adjustment.
type InflationIndex string

const (
	InflationNNSI InflationIndex = "nnsi"
	InflationGDP  InflationIndex = "gdp"
)

// InflationConfig describes a constant-year conversion of nominal columns.
type InflationConfig struct {
	// Columns are the nominal columns to adjust.
	Columns []string `json:"columns" yaml:"columns" mapstructure:"columns" validate:"required,min=1,dive,required"`

	// Type is the index: nnsi (default) or gdp.
	Type InflationIndex `json:"type,omitempty" yaml:"type,omitempty" mapstructure:"type" validate:"omitempty,oneof=nnsi gdp"`

	// FiscalYearColumn keys each row to a fiscal year. Defaults to "Fiscal Year".
	FiscalYearColumn string `json:"fiscal_year_column,omitempty" yaml:"fiscal_year_column,omitempty" mapstructure:"fiscal_year_column"`

	// TargetYear is the constant-dollar year. Zero means the most recent
	// year present in the fiscal year column.
	TargetYear int `json:"target_year,omitempty" yaml:"target_year,omitempty" mapstructure:"target_year" validate:"omitempty,gte=1900,lte=2200"`
}

// Index returns the configured index, defaulting to NNSI.
func (c *InflationConfig) Index() InflationIndex {
	if c.Type == "" {
		return InflationNNSI
	}
	return c.Type
}

// YearColumn returns the fiscal year column, defaulting to "Fiscal Year".
func (c *InflationConfig) YearColumn() string {
	if c.FiscalYearColumn == "" {
		return DefaultFiscalYearColumn
	}
	return c.FiscalYearColumn
}

// DefaultFiscalYearColumn is the column inflation adjustment keys on when none is named.
const DefaultFiscalYearColumn = "Fiscal Year"

// IssueKind classifies a single resolution problem.
type IssueKind string

const (
	IssueConfiguration   IssueKind = "configuration"
	IssueUnresolved      IssueKind = "unresolved_reference"
	IssueDataSource      IssueKind = "data_source"
	IssueMissingRequired IssueKind = "missing_required"
	IssueRendering       IssueKind = "rendering"
)

// ResolutionError is one problem found while resolving a document.
type ResolutionError struct {
	Path    string    `json:"path"`
	Message string    `json:"message"`
	Kind    IssueKind `json:"kind"`
	Code    string    `json:"code,omitempty"`
	Token   string    `json:"token,omitempty"`
}

// Error implements the error interface.
func (r ResolutionError) Error() string {
	if r.Path == "" {
		return r.Message
	}
	return fmt.Sprintf("%s: %s", r.Path, r.Message)
}

// AsError converts the issue to a classified engine error.
func (r ResolutionError) AsError() *ChartError {
	kind := KindConfiguration
	switch r.Kind {
	case IssueDataSource:
		kind = KindDataSource
	case IssueRendering:
		kind = KindRendering
	}
	return &ChartError{
		Kind:    kind,
		Code:    r.Code,
		Message: r.Message,
		Path:    r.Path,
		Token:   r.Token,
	}
}

// IssueFromError converts an error into a resolution issue at path.
func IssueFromError(path string, err error) ResolutionError {
	var ce *ChartError
	if !errors.As(err, &ce) {
		return ResolutionError{Path: path, Message: err.Error(), Kind: IssueConfiguration}
	}
	issue := ResolutionError{
		Path:    ce.Path,
		Message: ce.Message,
		Code:    ce.Code,
		Token:   ce.Token,
	}
	if ce.Err != nil {
		issue.Message += ": " + ce.Err.Error()
	}
	if issue.Path == "" {
		issue.Path = path
	}
	switch {
	case ce.Code == ErrCodeUnresolvedReference:
		issue.Kind = IssueUnresolved
	case ce.Code == ErrCodeMissingRequired:
		issue.Kind = IssueMissingRequired
	case ce.Kind == KindDataSource:
		issue.Kind = IssueDataSource
	case ce.Kind == KindRendering:
		issue.Kind = IssueRendering
	default:
		issue.Kind = IssueConfiguration
	}
	return issue
}

// Outcome is the result of a resolution stage: a value, or a non-empty
// list of errors, plus any warnings collected along the way.
type Outcome struct {
	Value    any               `json:"value,omitempty"`
	Errors   []ResolutionError `json:"errors,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`

	// Degraded lists the problems tolerated in lenient mode. Each one is
	// also summarized in Warnings.
	Degraded []ResolutionError `json:"degraded,omitempty"`
}

// Warn records a tolerated problem.
func (o *Outcome) Warn(issue ResolutionError) {
	o.Degraded = append(o.Degraded, issue)
	o.Warnings = append(o.Warnings, issue.Error())
}

// Merge appends the errors and warnings of other.
func (o *Outcome) Merge(other Outcome) {
	o.Errors = append(o.Errors, other.Errors...)
	o.Warnings = append(o.Warnings, other.Warnings...)
	o.Degraded = append(o.Degraded, other.Degraded...)
}

// OK reports whether the outcome carries no errors.
func (o Outcome) OK() bool {
	return len(o.Errors) == 0
}

// Err returns the first error as a classified engine error, or nil.
func (o Outcome) Err() error {
	if len(o.Errors) == 0 {
		return nil
	}
	return o.Errors[0].AsError()
}

// StepKey names a preflight workflow step.
type StepKey string

const (
	StepDataSource       StepKey = "data_source_and_preparation"
	StepDataBindings     StepKey = "data_bindings"
	StepVisualDesign     StepKey = "visual_design"
	StepAnnotationOutput StepKey = "annotation_output"
)

// Steps lists the workflow steps in order.
var Steps = []StepKey{StepDataSource, StepDataBindings, StepVisualDesign, StepAnnotationOutput}

// StepStatus is the readiness of one workflow step.
type StepStatus string

const (
	StatusNotStarted StepStatus = "not_started"
	StatusInProgress StepStatus = "in_progress"
	StatusComplete   StepStatus = "complete"
	StatusError      StepStatus = "error"
)

// BlockingError is an error that prevents a preview from rendering.
type BlockingError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// PreflightReport is the readiness report for one document. It is
// recomputed on every request and never persisted.
type PreflightReport struct {
	ReadyForPreview bool                   `json:"ready_for_preview"`
	MissingPaths    []string               `json:"missing_paths"`
	BlockingErrors  []BlockingError        `json:"blocking_errors"`
	Warnings        []string               `json:"warnings"`
	StepStatus      map[StepKey]StepStatus `json:"step_status"`
}

// ColumnProfile describes one loaded column.
type ColumnProfile struct {
	Name  string `json:"name"`
	DType string `json:"dtype"`
}

// DataProfile summarizes a loaded data source for editors.
type DataProfile struct {
	SourceKind  string           `json:"source_kind"`
	RowCount    int              `json:"row_count"`
	Columns     []ColumnProfile  `json:"columns"`
	SampleRows  []map[string]any `json:"sample_rows"`
	Warnings    []string         `json:"warnings"`
	ContextKeys []string         `json:"context_keys"`
}
