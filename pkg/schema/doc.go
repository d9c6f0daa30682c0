// Package schema declares the chart types chartkit understands and validates
// resolved chart configurations against them.
//
// Each chart type is a ChartSchema: an ordered list of Field declarations
// built from shared field groups (axis, grid, legend, tick format, scale,
// value labels, bar styling, sorting) plus the fields specific to the type.
// A field carries a CUE type expression, an optional default and flags that
// other stages read:
//
//   - Prose fields interpolate tokens embedded in text ("Total: {{sum:,.0f}}").
//   - Opaque fields (matplotlib_config and friends) are passed through as written.
//   - Binding fields take their values from loaded data.
//   - Color fields hold palette names or CSS colors.
//   - Triggers and Correlated name the fields the series correlator checks.
//
// The Registry compiles every schema to a closed CUE definition. The
// Validator fills defaults, reports unknown and missing fields, and unifies
// the remaining typed fields with the definition to check types, ranges and
// enums.
//
//	registry := schema.NewRegistry()
//	validator := schema.NewValidator(registry)
//	outcome := validator.Validate(ctx, resolved, "line", true)
//	if !outcome.OK() {
//	    return outcome.Err()
//	}
package schema
