package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a failure for propagation and reporting.
type ErrorKind string

const (
	// KindConfiguration indicates the chart configuration is invalid.
	// Unresolved template references are configuration errors.
	KindConfiguration ErrorKind = "configuration"

	// KindDataSource indicates the data source could not be classified,
	// fetched, parsed, or executed.
	KindDataSource ErrorKind = "data_source"

	// KindRendering indicates the external renderer failed. The resolution
	// engine never raises it itself; it is carried through from renderers.
	KindRendering ErrorKind = "rendering"
)

// ChartError represents a classified error with the document location that caused it.
// nolint:revive // ChartError is intentionally named to distinguish from standard errors
type ChartError struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Path is the dotted configuration path that caused the error, if applicable.
	Path string `json:"path,omitempty"`

	// Token is the raw template token for unresolved references.
	Token string `json:"token,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *ChartError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Path != "" {
		fmt.Fprintf(&b, " (path=%s)", e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ChartError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *ChartError) Is(target error) bool {
	t, ok := target.(*ChartError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(message string, err error) *ChartError {
	return &ChartError{
		Kind:    KindConfiguration,
		Message: message,
		Err:     err,
	}
}

// NewDataSourceError creates a new data source error.
func NewDataSourceError(message string, err error) *ChartError {
	return &ChartError{
		Kind:    KindDataSource,
		Message: message,
		Err:     err,
	}
}

// NewRenderingError creates a new rendering error.
func NewRenderingError(message string, err error) *ChartError {
	return &ChartError{
		Kind:    KindRendering,
		Message: message,
		Err:     err,
	}
}

// NewUnresolvedReferenceError creates the configuration error raised when a
// template token names a path that does not exist in the resolved context.
func NewUnresolvedReferenceError(path, token string, err error) *ChartError {
	return &ChartError{
		Kind:    KindConfiguration,
		Code:    ErrCodeUnresolvedReference,
		Message: fmt.Sprintf("unresolved reference %s", token),
		Path:    path,
		Token:   token,
		Err:     err,
	}
}

// WithPath adds the configuration path to an error.
func (e *ChartError) WithPath(path string) *ChartError {
	e.Path = path
	return e
}

// WithCode adds an error code to an error.
func (e *ChartError) WithCode(code string) *ChartError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *ChartError) WithDetail(key string, value interface{}) *ChartError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsConfigurationError returns true if the error is classified as a configuration error.
func IsConfigurationError(err error) bool {
	var e *ChartError
	if errors.As(err, &e) {
		return e.Kind == KindConfiguration
	}
	return false
}

// IsDataSourceError returns true if the error is classified as a data source error.
func IsDataSourceError(err error) bool {
	var e *ChartError
	if errors.As(err, &e) {
		return e.Kind == KindDataSource
	}
	return false
}

// IsRenderingError returns true if the error is classified as a rendering error.
func IsRenderingError(err error) bool {
	var e *ChartError
	if errors.As(err, &e) {
		return e.Kind == KindRendering
	}
	return false
}

// IsUnresolvedReference returns true if the error reports a template token
// that could not be resolved.
func IsUnresolvedReference(err error) bool {
	var e *ChartError
	if errors.As(err, &e) {
		return e.Code == ErrCodeUnresolvedReference
	}
	return false
}

// KindOf returns the classification of err, or the empty kind for
// errors that were not raised by the engine.
func KindOf(err error) ErrorKind {
	var e *ChartError
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Common error codes.
const (
	ErrCodeUnresolvedReference = "UNRESOLVED_REFERENCE"
	ErrCodeMissingRequired     = "MISSING_REQUIRED"
	ErrCodeInvalidValue        = "INVALID_VALUE"
	ErrCodeUnknownField        = "UNKNOWN_FIELD"
	ErrCodeUnknownChartType    = "UNKNOWN_CHART_TYPE"
	ErrCodeSeriesMismatch      = "SERIES_LENGTH_MISMATCH"
	ErrCodeFormatSpec          = "INVALID_FORMAT_SPEC"
	ErrCodeEmptySource         = "EMPTY_SOURCE"
	ErrCodeFetchFailed         = "FETCH_FAILED"
	ErrCodeFileNotFound        = "FILE_NOT_FOUND"
	ErrCodeMalformedCSV        = "MALFORMED_CSV"
	ErrCodeControllerNotFound  = "CONTROLLER_NOT_FOUND"
	ErrCodeControllerAmbiguous = "CONTROLLER_AMBIGUOUS"
	ErrCodeControllerFailed    = "CONTROLLER_FAILED"
	ErrCodeInvalidReturn       = "INVALID_RETURN"
	ErrCodeInflation           = "INFLATION_FAILED"
	ErrCodePolicyViolation     = "POLICY_VIOLATION"
	ErrCodeInvalidDocument     = "INVALID_DOCUMENT"
)
