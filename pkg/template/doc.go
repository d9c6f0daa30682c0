// Package template parses and resolves {{...}} references in chart
// configuration trees.
//
// A token names a dotted path into the resolved data context, optionally
// followed by a format spec after the last unescaped colon:
//
//	{{Fiscal Year}}           the column values, native type
//	{{totals.nominal:,.0f}}   a formatted scalar
//	{{as_of:%B %Y}}           a formatted date
//	{{ratio\:pct}}            a key containing a colon
//
// A string is a reference only when it consists entirely of tokens separated
// by commas or whitespace. "{{A}}, {{B}}" resolves to a two-element list.
// Strings mixing tokens with other text are literals, except in fields the
// caller marks as prose through Options.Interpolate, where each token is
// substituted in place:
//
//	opts := template.Options{
//		Mode:        template.Lenient,
//		Root:        "chart",
//		Interpolate: func(path string) bool { return path == "subtitle" },
//	}
//	out := template.Resolve(tree, ctx, opts)
//
// Resolution is idempotent: a tree without tokens resolves to itself.
package template
