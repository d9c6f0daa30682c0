package controllers

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/chartkit/chartkit/pkg/engine"
)

// Method produces the named values a chart document is resolved against.
type Method func(ctx context.Context) (map[string]any, error)

// Controller groups data methods under a name.
type Controller struct {
	Name    string
	Methods map[string]Method
}

// MethodNames returns the sorted method names.
func (c *Controller) MethodNames() []string {
	names := make([]string, 0, len(c.Methods))
	for name := range c.Methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registry maps controller modules to controllers. Modules are registered
// explicitly from Go or discovered as Starlark files in the search
// directories.
type Registry struct {
	mu      sync.RWMutex
	modules map[string][]*Controller
	files   map[string][]*Controller

	fs     afero.Fs
	dirs   []string
	runner *StarlarkRunner
	logger zerolog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithFs sets the filesystem Starlark controllers are read from.
func WithFs(fs afero.Fs) Option {
	return func(r *Registry) { r.fs = fs }
}

// WithSearchDirs sets the directories searched for <module>.star files.
func WithSearchDirs(dirs ...string) Option {
	return func(r *Registry) { r.dirs = append(r.dirs, dirs...) }
}

// WithLogger sets the registry logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		modules: make(map[string][]*Controller),
		files:   make(map[string][]*Controller),
		fs:      afero.NewOsFs(),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With().Str("component", "controllers").Logger()
	r.runner = NewStarlarkRunner(r.fs, r.logger)
	return r
}

// Register adds a controller to a module.
func (r *Registry) Register(module string, c *Controller) error {
	if module == "" || c == nil || c.Name == "" {
		return fmt.Errorf("controller module and name are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.modules[module] {
		if existing.Name == c.Name {
			return fmt.Errorf("controller %s already registered in module %s", c.Name, module)
		}
	}
	r.modules[module] = append(r.modules[module], c)
	return nil
}

// Modules returns the registered module names.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call runs the method a controller locator names and returns its values.
func (r *Registry) Call(ctx context.Context, loc engine.SourceLocator) (map[string]any, error) {
	var (
		controllers []*Controller
		where       string
		err         error
	)

	switch loc.Kind {
	case engine.SourceControllerMethod:
		controllers, where, err = r.module(ctx, loc.Location)
	case engine.SourceCustomControllerFile:
		controllers, err = r.file(ctx, loc.Location)
		where = loc.Location
	default:
		return nil, engine.NewDataSourceError(fmt.Sprintf("%s is not a controller source", loc), nil)
	}
	if err != nil {
		return nil, err
	}

	method, err := Select(controllers, loc.Member, where)
	if err != nil {
		return nil, err
	}

	r.logger.Debug().
		Str("source", loc.String()).
		Msg("Calling controller method")

	return invoke(ctx, method, loc)
}

// Select finds the single controller implementing member. An empty member
// selects the only method of the only single-method controller.
func Select(controllers []*Controller, member, where string) (Method, error) {
	var matches []*Controller
	for _, c := range controllers {
		if member == "" {
			if len(c.Methods) == 1 {
				matches = append(matches, c)
			}
			continue
		}
		if _, ok := c.Methods[member]; ok {
			matches = append(matches, c)
		}
	}

	label := member
	if label == "" {
		label = "(single entry point)"
	}

	switch len(matches) {
	case 0:
		return nil, engine.NewDataSourceError(
			fmt.Sprintf("no controller with method %s found in %s", label, where), nil).
			WithCode(engine.ErrCodeControllerNotFound).
			WithPath("data.source")
	case 1:
		c := matches[0]
		if member == "" {
			return c.Methods[c.MethodNames()[0]], nil
		}
		return c.Methods[member], nil
	default:
		names := make([]string, len(matches))
		for i, c := range matches {
			names[i] = c.Name
		}
		return nil, engine.NewDataSourceError(
			fmt.Sprintf("multiple controllers in %s implement %s: %s", where, label, strings.Join(names, ", ")), nil).
			WithCode(engine.ErrCodeControllerAmbiguous).
			WithPath("data.source")
	}
}

// module returns the controllers of a registered module, falling back to a
// Starlark file in the search directories.
func (r *Registry) module(ctx context.Context, name string) ([]*Controller, string, error) {
	r.mu.RLock()
	registered, ok := r.modules[name]
	r.mu.RUnlock()
	if ok {
		return registered, name, nil
	}

	rel := strings.ReplaceAll(name, ".", string(filepath.Separator)) + ".star"
	for _, dir := range r.dirs {
		path := filepath.Join(dir, rel)
		if exists, _ := afero.Exists(r.fs, path); exists {
			controllers, err := r.file(ctx, path)
			return controllers, path, err
		}
	}

	return nil, name, engine.NewDataSourceError(
		fmt.Sprintf("controller module %s not found", name), nil).
		WithCode(engine.ErrCodeControllerNotFound).
		WithPath("data.source").
		WithDetail("search_dirs", r.dirs)
}

// file loads the controllers defined in a Starlark file. Files are loaded
// once per registry.
func (r *Registry) file(ctx context.Context, path string) ([]*Controller, error) {
	r.mu.RLock()
	cached, ok := r.files[path]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	controllers, err := r.runner.LoadFile(ctx, path)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.files[path] = controllers
	r.mu.Unlock()
	return controllers, nil
}

// invoke calls a method, converting panics and failures to data source errors.
func invoke(ctx context.Context, method Method, loc engine.SourceLocator) (result map[string]any, err error) {
	defer func() {
		if p := recover(); p != nil {
			result = nil
			err = engine.NewDataSourceError(
				fmt.Sprintf("controller %s panicked", loc), fmt.Errorf("%v", p)).
				WithCode(engine.ErrCodeControllerFailed).
				WithPath("data.source")
		}
	}()

	result, err = method(ctx)
	if err != nil {
		if engine.IsDataSourceError(err) {
			return nil, err
		}
		return nil, engine.NewDataSourceError(fmt.Sprintf("controller %s failed", loc), err).
			WithCode(engine.ErrCodeControllerFailed).
			WithPath("data.source")
	}
	if result == nil {
		return nil, engine.NewDataSourceError(
			fmt.Sprintf("controller %s did not return a mapping", loc), nil).
			WithCode(engine.ErrCodeInvalidReturn).
			WithPath("data.source")
	}
	return result, nil
}
