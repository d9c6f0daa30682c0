// Package source classifies data source strings.
//
// A document's data.source is a single string that may name a local CSV
// file, a remote CSV URL, a method on a registered controller module, or a
// method on a controller defined in a script file:
//
//	loc := source.Classify("budget.by_year")
//	// loc.Kind == engine.SourceControllerMethod
//	// loc.String() == "controller:budget.by_year"
//
// Classification never fails. Locators are recomputed from the source string
// on every pass and are never stored.
package source
