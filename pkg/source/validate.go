package source

import (
	"github.com/chartkit/chartkit/pkg/engine"
)

// Validate reports locators that cannot be loaded. The returned error is a
// DataSourceError at path data.source.
func Validate(loc engine.SourceLocator) error {
	if loc.Location == "" && loc.Member == "" {
		return sourceError("data source must not be empty")
	}

	switch loc.Kind {
	case engine.SourceCustomControllerFile:
		if loc.Member == "" {
			return sourceError("custom controller source must include a method name: '/path/to/controller.star:method_name'")
		}
	case engine.SourceControllerMethod:
		// a bare module is allowed when it exposes exactly one method
		if loc.Location == "" {
			return sourceError("controller source must be in 'module.method' format (e.g. budget.by_year)")
		}
	case engine.SourceLocalCSV, engine.SourceRemoteCSV:
	default:
		return sourceError("unsupported data source kind " + string(loc.Kind))
	}
	return nil
}

func sourceError(msg string) error {
	return engine.NewDataSourceError(msg, nil).
		WithPath("data.source").
		WithCode(engine.ErrCodeEmptySource)
}
