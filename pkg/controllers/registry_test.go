package controllers

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"

	"github.com/chartkit/chartkit/pkg/engine"
	"github.com/chartkit/chartkit/pkg/frame"
)

func constant(values map[string]any) Method {
	return func(context.Context) (map[string]any, error) {
		return values, nil
	}
}

func hasCode(err error, code string) bool {
	var ce *engine.ChartError
	return errors.As(err, &ce) && ce.Code == code
}

func TestRegistry_Call(t *testing.T) {
	reg := NewRegistry(WithFs(afero.NewMemMapFs()))
	if err := reg.Register("budget", &Controller{
		Name: "BudgetController",
		Methods: map[string]Method{
			"by_year":  constant(map[string]any{"total": 1.0}),
			"by_month": constant(map[string]any{"total": 2.0}),
		},
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := reg.Register("budget", &Controller{
		Name:    "OtherController",
		Methods: map[string]Method{"by_month": constant(nil)},
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := reg.Register("single", &Controller{
		Name:    "OnlyController",
		Methods: map[string]Method{"load": constant(map[string]any{"x": 1})},
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	ctx := context.Background()

	t.Run("unique method", func(t *testing.T) {
		out, err := reg.Call(ctx, engine.SourceLocator{Kind: engine.SourceControllerMethod, Location: "budget", Member: "by_year"})
		if err != nil {
			t.Fatalf("Call() error = %v", err)
		}
		if out["total"] != 1.0 {
			t.Errorf("total = %v, want 1", out["total"])
		}
	})

	t.Run("missing method", func(t *testing.T) {
		_, err := reg.Call(ctx, engine.SourceLocator{Kind: engine.SourceControllerMethod, Location: "budget", Member: "nope"})
		if !engine.IsDataSourceError(err) || !hasCode(err, engine.ErrCodeControllerNotFound) {
			t.Errorf("expected CONTROLLER_NOT_FOUND, got %v", err)
		}
	})

	t.Run("ambiguous method", func(t *testing.T) {
		_, err := reg.Call(ctx, engine.SourceLocator{Kind: engine.SourceControllerMethod, Location: "budget", Member: "by_month"})
		if !hasCode(err, engine.ErrCodeControllerAmbiguous) {
			t.Errorf("expected CONTROLLER_AMBIGUOUS, got %v", err)
		}
	})

	t.Run("bare module with single entry point", func(t *testing.T) {
		out, err := reg.Call(ctx, engine.SourceLocator{Kind: engine.SourceControllerMethod, Location: "single"})
		if err != nil {
			t.Fatalf("Call() error = %v", err)
		}
		if out["x"] != 1 {
			t.Errorf("x = %v, want 1", out["x"])
		}
	})

	t.Run("nil result", func(t *testing.T) {
		r := NewRegistry()
		_ = r.Register("m", &Controller{Name: "C", Methods: map[string]Method{"f": constant(nil)}})
		_, err := r.Call(ctx, engine.SourceLocator{Kind: engine.SourceControllerMethod, Location: "m", Member: "f"})
		if !hasCode(err, engine.ErrCodeInvalidReturn) {
			t.Errorf("expected INVALID_RETURN, got %v", err)
		}
	})

	t.Run("panic is contained", func(t *testing.T) {
		r := NewRegistry()
		_ = r.Register("m", &Controller{Name: "C", Methods: map[string]Method{
			"f": func(context.Context) (map[string]any, error) { panic("boom") },
		}})
		_, err := r.Call(ctx, engine.SourceLocator{Kind: engine.SourceControllerMethod, Location: "m", Member: "f"})
		if !hasCode(err, engine.ErrCodeControllerFailed) {
			t.Errorf("expected CONTROLLER_FAILED, got %v", err)
		}
	})

	t.Run("unknown module", func(t *testing.T) {
		_, err := reg.Call(ctx, engine.SourceLocator{Kind: engine.SourceControllerMethod, Location: "nowhere", Member: "x"})
		if !hasCode(err, engine.ErrCodeControllerNotFound) {
			t.Errorf("expected CONTROLLER_NOT_FOUND, got %v", err)
		}
	})
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	reg := NewRegistry()
	c := &Controller{Name: "C", Methods: map[string]Method{"f": constant(nil)}}
	if err := reg.Register("m", c); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := reg.Register("m", c); err == nil {
		t.Error("expected duplicate registration error")
	}
	if got := reg.Modules(); len(got) != 1 || got[0] != "m" {
		t.Errorf("Modules() = %v", got)
	}
}

const budgetController = `
def _by_year():
    cols = read_csv("budget.csv")
    return {
        "data": cols,
        "latest": cols["Amount"][-1],
        "meta": struct(agency = "NASA", fy = 2024),
    }

def _broken():
    return [1, 2]

BudgetController = struct(by_year = _by_year, broken = _broken)
helper = struct(by_year = _by_year)
`

func TestStarlarkControllers(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/ctrl/budget.star", []byte(budgetController), 0o644)
	_ = afero.WriteFile(fs, "/ctrl/budget.csv", []byte("Fiscal Year,Amount\n2023,25.4\n2024,24.9\n"), 0o644)
	_ = afero.WriteFile(fs, "/ctrl/dup.star", []byte(`
def _fetch():
    return {}
AController = struct(fetch = _fetch)
BController = struct(fetch = _fetch)
`), 0o644)
	_ = afero.WriteFile(fs, "/ctrl/loader.star", []byte(`
def _load():
    return {"ok": True}
SpendingController = struct(load_ = _load)
`), 0o644)
	_ = afero.WriteFile(fs, "/ctrl/bad.star", []byte("x = 1 +\n"), 0o644)

	reg := NewRegistry(WithFs(fs), WithSearchDirs("/ctrl"))
	ctx := context.Background()

	t.Run("custom file", func(t *testing.T) {
		out, err := reg.Call(ctx, engine.SourceLocator{
			Kind:     engine.SourceCustomControllerFile,
			Location: "/ctrl/budget.star",
			Member:   "by_year",
		})
		if err != nil {
			t.Fatalf("Call() error = %v", err)
		}

		f, ok := out["data"].(*frame.Frame)
		if !ok {
			t.Fatalf("data = %T, want *frame.Frame", out["data"])
		}
		if cols := f.Columns(); len(cols) != 2 || cols[0] != "Fiscal Year" {
			t.Errorf("Columns() = %v", cols)
		}
		if out["latest"] != 24.9 {
			t.Errorf("latest = %v, want 24.9", out["latest"])
		}
		meta, ok := out["meta"].(map[string]any)
		if !ok || meta["agency"] != "NASA" || meta["fy"] != int64(2024) {
			t.Errorf("meta = %#v", out["meta"])
		}
	})

	t.Run("module from search dir", func(t *testing.T) {
		out, err := reg.Call(ctx, engine.SourceLocator{Kind: engine.SourceControllerMethod, Location: "budget", Member: "by_year"})
		if err != nil {
			t.Fatalf("Call() error = %v", err)
		}
		if _, ok := out["data"]; !ok {
			t.Error("expected data entry")
		}
	})

	t.Run("non-dict return", func(t *testing.T) {
		_, err := reg.Call(ctx, engine.SourceLocator{Kind: engine.SourceCustomControllerFile, Location: "/ctrl/budget.star", Member: "broken"})
		if !hasCode(err, engine.ErrCodeInvalidReturn) {
			t.Errorf("expected INVALID_RETURN, got %v", err)
		}
	})

	t.Run("ambiguous controllers", func(t *testing.T) {
		_, err := reg.Call(ctx, engine.SourceLocator{Kind: engine.SourceCustomControllerFile, Location: "/ctrl/dup.star", Member: "fetch"})
		if !hasCode(err, engine.ErrCodeControllerAmbiguous) {
			t.Errorf("expected CONTROLLER_AMBIGUOUS, got %v", err)
		}
	})

	t.Run("load method alias", func(t *testing.T) {
		out, err := reg.Call(ctx, engine.SourceLocator{Kind: engine.SourceCustomControllerFile, Location: "/ctrl/loader.star", Member: "load"})
		if err != nil {
			t.Fatalf("Call() error = %v", err)
		}
		if out["ok"] != true {
			t.Errorf("ok = %v, want true", out["ok"])
		}
	})

	t.Run("syntax error", func(t *testing.T) {
		_, err := reg.Call(ctx, engine.SourceLocator{Kind: engine.SourceCustomControllerFile, Location: "/ctrl/bad.star", Member: "x"})
		if !hasCode(err, engine.ErrCodeControllerFailed) {
			t.Errorf("expected CONTROLLER_FAILED, got %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := reg.Call(ctx, engine.SourceLocator{Kind: engine.SourceCustomControllerFile, Location: "/ctrl/none.star", Member: "x"})
		if !hasCode(err, engine.ErrCodeFileNotFound) {
			t.Errorf("expected FILE_NOT_FOUND, got %v", err)
		}
	})
}
