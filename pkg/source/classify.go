package source

import (
	"strings"

	"github.com/chartkit/chartkit/pkg/engine"
)

// Controller file extensions. Python paths are accepted for compatibility
// with existing documents and are loaded as Starlark.
var controllerExts = []string{".star", ".py"}

// Classify maps a raw source string to a locator. It is pure and total: every
// input yields a locator, and problems such as a missing method name are
// reported by Validate.
//
// Precedence:
//
//  1. csv:, url: and controller: prefixes (any case) select the kind directly
//  2. http:// and https:// are remote CSV
//  3. <path>.star:<method> or <path>.py:<method> is a custom controller file
//  4. anything containing / or \, or ending in .csv, is a local CSV
//  5. <module>.<method>, split on the last dot, is a controller method
func Classify(raw string) engine.SourceLocator {
	s := strings.TrimSpace(raw)

	if rest, ok := cutPrefix(s, "url:"); ok {
		return engine.SourceLocator{Kind: engine.SourceRemoteCSV, Location: rest}
	}
	if rest, ok := cutPrefix(s, "csv:"); ok {
		return engine.SourceLocator{Kind: engine.SourceLocalCSV, Location: rest}
	}
	if rest, ok := cutPrefix(s, "controller:"); ok {
		if loc, ok := controllerFile(rest); ok {
			return loc
		}
		return controllerMethod(rest)
	}

	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return engine.SourceLocator{Kind: engine.SourceRemoteCSV, Location: s}
	}
	if loc, ok := controllerFile(s); ok {
		return loc
	}
	if strings.ContainsAny(s, `/\`) || strings.HasSuffix(s, ".csv") {
		return engine.SourceLocator{Kind: engine.SourceLocalCSV, Location: s}
	}
	return controllerMethod(s)
}

func cutPrefix(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(s[len(prefix):]), true
}

// controllerFile matches "<path>.star:<method>" and a bare "<path>.star".
func controllerFile(s string) (engine.SourceLocator, bool) {
	for _, ext := range controllerExts {
		if strings.Contains(s, ext+":") {
			i := strings.LastIndex(s, ":")
			return engine.SourceLocator{
				Kind:     engine.SourceCustomControllerFile,
				Location: strings.TrimSpace(s[:i]),
				Member:   strings.TrimSpace(s[i+1:]),
			}, true
		}
	}
	for _, ext := range controllerExts {
		if strings.HasSuffix(s, ext) {
			return engine.SourceLocator{Kind: engine.SourceCustomControllerFile, Location: s}, true
		}
	}
	return engine.SourceLocator{}, false
}

func controllerMethod(s string) engine.SourceLocator {
	i := strings.LastIndex(s, ".")
	if i < 0 {
		return engine.SourceLocator{Kind: engine.SourceControllerMethod, Location: s}
	}
	return engine.SourceLocator{
		Kind:     engine.SourceControllerMethod,
		Location: strings.TrimSpace(s[:i]),
		Member:   strings.TrimSpace(s[i+1:]),
	}
}
