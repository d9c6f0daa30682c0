package schema

import (
	"fmt"
	"strings"

	"github.com/mazznoer/csscolorparser"

	"github.com/chartkit/chartkit/pkg/frame"
)

// Palette maps color names to hex codes.
type Palette map[string]string

// Colors is the accessibility-first palette.
var Colors = Palette{
	"blue":         "#037CC2",
	"purple":       "#643788",
	"orange":       "#FF5D47",
	"light_blue":   "#3696CE",
	"light_purple": "#9C83B4",
	"lunar_dust":   "#8C8C8C",
	"dark_gray":    "#414141",
	"medium_gray":  "#C3C3C3",
	"light_gray":   "#F5F5F5",
}

// BrandColors is the named brand palette.
var BrandColors = Palette{
	"Light Plasma":   "#D8CDE1",
	"Medium Plasma":  "#B19BC3",
	"Plasma Purple":  "#643788",
	"Rocket Flame":   "#FF5D47",
	"Neptune Blue":   "#037CC2",
	"Medium Neptune": "#80BDE0",
	"Light Neptune":  "#BFDEF0",
	"Crater Shadow":  "#414141",
	"Lunar Soil":     "#8C8C8C",
	"Comet Dust":     "#C3C3C3",
	"Slushy Brine":   "#F5F5F5",
	"Black Hole":     "#000000",
	"Polar White":    "#FFFFFF",
}

// DefaultPalette merges the brand colors and Colors. Colors wins when both
// define a name.
func DefaultPalette() Palette {
	p := make(Palette, len(Colors)+len(BrandColors))
	for k, v := range BrandColors {
		p[k] = v
	}
	for k, v := range Colors {
		p[k] = v
	}
	return p
}

// Check reports whether s is a palette name or a CSS color.
func (p Palette) Check(s string) error {
	if _, ok := p[s]; ok {
		return nil
	}
	if _, err := csscolorparser.Parse(s); err != nil {
		return fmt.Errorf("%q is neither a palette color nor a CSS color", s)
	}
	return nil
}

// Resolve maps a palette name to its hex code. Hex codes, template tokens
// and unknown names are returned unchanged.
func (p Palette) Resolve(s string) string {
	if strings.HasPrefix(s, "#") || strings.HasPrefix(s, "{{") {
		return s
	}
	if hex, ok := p[s]; ok {
		return hex
	}
	return s
}

// ResolveColors returns a copy of config with palette names in the color
// fields of s replaced by hex codes.
func (p Palette) ResolveColors(config map[string]any, s *ChartSchema) (map[string]any, error) {
	copied, err := frame.CopyTree(config)
	if err != nil {
		return nil, fmt.Errorf("failed to copy config: %w", err)
	}
	out := copied.(map[string]any)
	for _, name := range s.ColorFields() {
		v, ok := out[name]
		if !ok {
			continue
		}
		out[name] = p.resolveValue(v)
	}
	return out, nil
}

func (p Palette) resolveValue(v any) any {
	switch x := v.(type) {
	case string:
		return p.Resolve(x)
	case []any:
		for i, item := range x {
			x[i] = p.resolveValue(item)
		}
		return x
	case []string:
		for i, item := range x {
			x[i] = p.Resolve(item)
		}
		return x
	}
	return v
}
