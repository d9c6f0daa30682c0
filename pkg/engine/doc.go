// Package engine provides the core types and interfaces for the chartkit
// configuration resolution engine.
//
// # Overview
//
// A chart document pairs a data source with a declarative chart
// configuration. Resolution runs in fixed stages:
//
//  1. Classify - map the source string to a SourceLocator (pkg/source)
//  2. Load - fetch the data and build a ResolvedContext (pkg/dataload)
//  3. Resolve - replace {{...}} references in the chart tree (pkg/template)
//  4. Correlate - align per-series styling fields (pkg/series)
//  5. Validate - check the tree against the chart type schema (pkg/schema)
//
// The processor package sequences the stages per document and per batch,
// and the preflight package reports staged readiness for editors.
//
// # Errors
//
// Every failure raised by the engine is a *ChartError classified as a
// configuration, data source or rendering error:
//
//	if engine.IsDataSourceError(err) {
//	    // the document's data could not be loaded
//	}
//
// Issues that do not abort resolution are reported as ResolutionError
// values inside an Outcome, each keyed by the dotted path of the field.
//
// # Resolved Context
//
// A ResolvedContext is immutable once built. Loaders assemble it with a
// ContextBuilder and hand the frozen value to the resolver; cached
// contexts are shared between documents without copying.
package engine
