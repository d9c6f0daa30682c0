package template

import (
	"regexp"
	"strings"
)

var (
	tokenPattern     = regexp.MustCompile(`\{\{(.+?)\}\}`)
	separatorPattern = regexp.MustCompile(`^[\s,]*$`)
)

// Reference is one parsed {{...}} token.
type Reference struct {
	// Path holds the dotted path segments.
	Path []string

	// FormatSpec is the text after the last unescaped colon.
	FormatSpec string

	// HasFormat is true when the token carried a non-empty format spec.
	HasFormat bool

	// Raw is the token as written, braces included.
	Raw string
}

// Expr returns the dotted path.
func (r Reference) Expr() string {
	return strings.Join(r.Path, ".")
}

// ParseReferences returns the references of a fully templated string: one
// or more tokens separated only by commas and whitespace. Any other text
// around the tokens makes the string a literal, and nil is returned.
func ParseReferences(text string) []Reference {
	s := strings.TrimSpace(text)
	matches := tokenPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return nil
	}
	if matches[0][0] != 0 || matches[len(matches)-1][1] != len(s) {
		return nil
	}

	refs := make([]Reference, 0, len(matches))
	for i, m := range matches {
		if i > 0 && !separatorPattern.MatchString(s[matches[i-1][1]:m[0]]) {
			return nil
		}
		ref, ok := parseToken(s[m[0]:m[1]], s[m[2]:m[3]])
		if !ok {
			return nil
		}
		refs = append(refs, ref)
	}
	return refs
}

// FindEmbedded returns every token in text, including tokens surrounded by
// prose. Empty tokens are skipped.
func FindEmbedded(text string) []Reference {
	var refs []Reference
	for _, m := range tokenPattern.FindAllStringSubmatch(text, -1) {
		if ref, ok := parseToken(m[0], m[1]); ok {
			refs = append(refs, ref)
		}
	}
	return refs
}

// IsReference reports whether text is fully templated.
func IsReference(text string) bool {
	return len(ParseReferences(text)) > 0
}

// HasTokens reports whether text contains any token at all.
func HasTokens(text string) bool {
	return len(FindEmbedded(text)) > 0
}

func parseToken(raw, inner string) (Reference, bool) {
	inner = strings.TrimSpace(inner)
	if inner == "" {
		return Reference{}, false
	}

	expr, spec := inner, ""
	hasSpec := false
	if i := lastUnescapedColon(inner); i >= 0 {
		expr, spec = inner[:i], inner[i+1:]
		hasSpec = true
	}
	expr = unescape(strings.TrimSpace(expr))
	spec = unescape(strings.TrimSpace(spec))

	var path []string
	for _, seg := range strings.Split(expr, ".") {
		if seg = strings.TrimSpace(seg); seg != "" {
			path = append(path, seg)
		}
	}
	if len(path) == 0 {
		return Reference{}, false
	}

	return Reference{
		Path:       path,
		FormatSpec: spec,
		HasFormat:  hasSpec && spec != "",
		Raw:        raw,
	}, true
}

func lastUnescapedColon(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != ':' {
			continue
		}
		if i > 0 && s[i-1] == '\\' {
			continue
		}
		return i
	}
	return -1
}

func unescape(s string) string {
	return strings.ReplaceAll(s, `\:`, ":")
}
