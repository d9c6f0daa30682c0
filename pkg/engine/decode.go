package engine

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// DecodeDataSource decodes the raw data block of a document. Problems are
// returned as configuration issues keyed by their path under "data".
func DecodeDataSource(raw any) (DataSourceConfig, []ResolutionError) {
	var cfg DataSourceConfig

	m, ok := raw.(map[string]any)
	if !ok {
		if raw == nil {
			return cfg, []ResolutionError{{
				Path:    "data.source",
				Message: "data source is required",
				Kind:    IssueMissingRequired,
				Code:    ErrCodeMissingRequired,
			}}
		}
		return cfg, []ResolutionError{{
			Path:    "data",
			Message: fmt.Sprintf("data must be a mapping, got %T", raw),
			Kind:    IssueConfiguration,
			Code:    ErrCodeInvalidDocument,
		}}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &cfg,
		ErrorUnused: true,
		DecodeHook:  fiscalYearHook,
	})
	if err != nil {
		return cfg, []ResolutionError{{Path: "data", Message: err.Error(), Kind: IssueConfiguration}}
	}
	if err := decoder.Decode(m); err != nil {
		return cfg, []ResolutionError{{
			Path:    "data",
			Message: err.Error(),
			Kind:    IssueConfiguration,
			Code:    ErrCodeInvalidValue,
		}}
	}
	cfg.Source = strings.TrimSpace(cfg.Source)

	if err := structValidator().Struct(&cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return cfg, []ResolutionError{{Path: "data", Message: err.Error(), Kind: IssueConfiguration}}
		}
		issues := make([]ResolutionError, 0, len(verrs))
		for _, fe := range verrs {
			issues = append(issues, fieldIssue(fe))
		}
		return cfg, issues
	}
	return cfg, nil
}

// fieldIssue maps a validator failure onto a document path.
func fieldIssue(fe validator.FieldError) ResolutionError {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	path := "data." + ns
	if fe.Tag() == "required" && ns == "source" {
		return ResolutionError{
			Path:    path,
			Message: "data source is required",
			Kind:    IssueMissingRequired,
			Code:    ErrCodeMissingRequired,
		}
	}
	msg := fmt.Sprintf("failed %q constraint", fe.Tag())
	if fe.Param() != "" {
		msg = fmt.Sprintf("failed %q constraint (%s)", fe.Tag(), fe.Param())
	}
	return ResolutionError{
		Path:    path,
		Message: msg,
		Kind:    IssueConfiguration,
		Code:    ErrCodeInvalidValue,
	}
}

// fiscalYearHook accepts the document forms of FiscalYearOption:
// a column name, false to disable detection, or true for auto-detection.
func fiscalYearHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(FiscalYearOption{}) {
		return data, nil
	}
	switch v := data.(type) {
	case bool:
		return FiscalYearOption{Disabled: !v}, nil
	case string:
		return FiscalYearOption{Column: strings.TrimSpace(v)}, nil
	case nil:
		return FiscalYearOption{}, nil
	default:
		return data, nil
	}
}
