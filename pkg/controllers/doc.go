// Package controllers locates and runs the data methods behind controller
// data sources.
//
// A controller source names a module and a method ("budget.by_year") or a
// script file and a method ("ctrl/budget.star:by_year"). Lookup is explicit:
// the registry holds the controllers of each module, and exactly one of them
// must implement the requested method. Zero or several matches are typed
// data source errors (CONTROLLER_NOT_FOUND, CONTROLLER_AMBIGUOUS).
//
// Go controllers are registered directly:
//
//	reg := controllers.NewRegistry()
//	reg.Register("budget", &controllers.Controller{
//		Name: "BudgetController",
//		Methods: map[string]controllers.Method{
//			"by_year": func(ctx context.Context) (map[string]any, error) {
//				return map[string]any{"data": f, "total": 25.4}, nil
//			},
//		},
//	})
//
// Modules that are not registered are looked up as <module>.star in the
// registry's search directories. Script controllers run in a Starlark
// sandbox with the struct, json, math and time modules plus read_csv.
// Methods take no arguments and must return a dict.
package controllers
