// Package dataload turns a classified data source into a resolved context.
//
// CSV sources are read from the filesystem or fetched over HTTP and parsed
// into a frame. Controller sources are run through a controllers.Registry.
// Load parameters are then applied in a fixed order:
//
//  1. column filter
//  2. renames
//  3. type casts
//  4. currency auto-clean
//  5. fiscal year derivation
//
// followed by inflation adjustment when the document asks for it. The
// resulting context holds the frame under "data" and one entry per column.
//
// Loaded contexts are immutable and cached by a digest of the source and its
// parameters, so concurrent documents naming the same source share one load.
package dataload
