package controllers

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	starjson "go.starlark.net/lib/json"
	starmath "go.starlark.net/lib/math"
	startime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/chartkit/chartkit/pkg/engine"
	"github.com/chartkit/chartkit/pkg/frame"
)

// controllerSuffix marks the top-level structs that are controllers.
const controllerSuffix = "Controller"

// StarlarkRunner loads controllers from Starlark files. A controller is a
// top-level struct whose name ends in "Controller"; each callable field is
// a method:
//
//	def _by_year():
//	    cols = read_csv("budget.csv")
//	    return {"data": cols, "latest": cols["Amount"][-1]}
//
//	BudgetController = struct(by_year = _by_year)
//
// load is a Starlark keyword, so a method named load is declared as load_.
type StarlarkRunner struct {
	fs     afero.Fs
	logger zerolog.Logger
}

// NewStarlarkRunner creates a runner that reads files from fs.
func NewStarlarkRunner(fs afero.Fs, logger zerolog.Logger) *StarlarkRunner {
	return &StarlarkRunner{
		fs:     fs,
		logger: logger,
	}
}

// LoadFile executes a controller file and returns its controllers, sorted
// by name.
func (s *StarlarkRunner) LoadFile(ctx context.Context, path string) ([]*Controller, error) {
	src, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, engine.NewDataSourceError(fmt.Sprintf("failed to read controller file %s", path), err).
			WithCode(engine.ErrCodeFileNotFound).
			WithPath("data.source")
	}

	thread := s.newThread(path)
	stop := s.watch(ctx, thread)
	defer stop()

	globals, err := starlark.ExecFile(thread, path, src, s.predeclared(filepath.Dir(path)))
	if err != nil {
		return nil, engine.NewDataSourceError(fmt.Sprintf("failed to load controller file %s", path), err).
			WithCode(engine.ErrCodeControllerFailed).
			WithPath("data.source")
	}

	names := make([]string, 0, len(globals))
	for name := range globals {
		names = append(names, name)
	}
	sort.Strings(names)

	var controllers []*Controller
	for _, name := range names {
		st, ok := globals[name].(*starlarkstruct.Struct)
		if !ok || !strings.HasSuffix(name, controllerSuffix) {
			continue
		}
		c := &Controller{Name: name, Methods: make(map[string]Method)}
		for _, attr := range st.AttrNames() {
			v, err := st.Attr(attr)
			if err != nil {
				continue
			}
			fn, ok := v.(starlark.Callable)
			if !ok {
				continue
			}
			if attr == "load_" {
				attr = "load"
			}
			c.Methods[attr] = s.method(path, name+"."+attr, fn)
		}
		controllers = append(controllers, c)
	}

	s.logger.Debug().
		Str("file", path).
		Int("controllers", len(controllers)).
		Msg("Loaded controller file")

	return controllers, nil
}

func (s *StarlarkRunner) method(path, name string, fn starlark.Callable) Method {
	return func(ctx context.Context) (map[string]any, error) {
		thread := s.newThread(path)
		stop := s.watch(ctx, thread)
		defer stop()

		start := time.Now()
		v, err := starlark.Call(thread, fn, nil, nil)
		if err != nil {
			return nil, err
		}

		dict, ok := v.(*starlark.Dict)
		if !ok {
			return nil, engine.NewDataSourceError(
				fmt.Sprintf("controller method %s must return a dict, got %s", name, v.Type()), nil).
				WithCode(engine.ErrCodeInvalidReturn).
				WithPath("data.source")
		}

		s.logger.Debug().
			Str("method", name).
			Dur("duration", time.Since(start)).
			Msg("Controller method returned")

		return resultMap(dict)
	}
}

func (s *StarlarkRunner) newThread(path string) *starlark.Thread {
	return &starlark.Thread{
		Name: path,
		Print: func(_ *starlark.Thread, msg string) {
			s.logger.Debug().Str("file", path).Msg(msg)
		},
	}
}

// watch cancels the thread when ctx is done.
func (s *StarlarkRunner) watch(ctx context.Context, thread *starlark.Thread) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()
	return func() { close(done) }
}

func (s *StarlarkRunner) predeclared(dir string) starlark.StringDict {
	return starlark.StringDict{
		"struct":   starlark.NewBuiltin("struct", starlarkstruct.Make),
		"json":     starjson.Module,
		"math":     starmath.Module,
		"time":     startime.Module,
		"read_csv": starlark.NewBuiltin("read_csv", s.readCSV(dir)),
	}
}

// readCSV returns the read_csv builtin: read_csv(path) loads a CSV file,
// relative to the controller file, as a dict of column lists.
func (s *StarlarkRunner) readCSV(dir string) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var path string
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &path); err != nil {
			return nil, err
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}

		data, err := afero.ReadFile(s.fs, path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		f, err := frame.ReadCSV(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", b.Name(), path, err)
		}

		dict := starlark.NewDict(len(f.Columns()))
		for _, name := range f.Columns() {
			col, _ := f.Column(name)
			v, err := toStarlark(col.Values)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(name), v); err != nil {
				return nil, err
			}
		}
		return dict, nil
	}
}
