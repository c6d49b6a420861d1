package renderer

import (
	"image/color"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

// ParseColor understands #rgb, #rgba, #rrggbb, #rrggbbaa, rgb(), rgba(),
// "transparent" and the SVG color names. Unknown values report ok=false.
func ParseColor(s string) (c color.NRGBA, ok bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "":
		return c, false
	case s == "transparent":
		return color.NRGBA{}, true
	case strings.HasPrefix(s, "#"):
		return parseHex(s[1:])
	case strings.HasPrefix(s, "rgb"):
		return parseRGBFunc(s)
	}
	if named, found := colornames.Map[s]; found {
		return color.NRGBA{R: named.R, G: named.G, B: named.B, A: named.A}, true
	}
	return c, false
}

func parseHex(h string) (color.NRGBA, bool) {
	if len(h) == 3 || len(h) == 4 {
		var b strings.Builder
		for _, r := range h {
			b.WriteRune(r)
			b.WriteRune(r)
		}
		h = b.String()
	}
	if len(h) == 6 {
		h += "ff"
	}
	if len(h) != 8 {
		return color.NRGBA{}, false
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, false
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, true
}

func parseRGBFunc(s string) (color.NRGBA, bool) {
	open, end := strings.IndexByte(s, '('), strings.LastIndexByte(s, ')')
	if open < 0 || end < open {
		return color.NRGBA{}, false
	}
	parts := strings.FieldsFunc(s[open+1:end], func(r rune) bool {
		return r == ',' || r == ' ' || r == '/'
	})
	if len(parts) != 3 && len(parts) != 4 {
		return color.NRGBA{}, false
	}

	var ch [3]uint8
	for i := 0; i < 3; i++ {
		v, ok := parseChannel(parts[i])
		if !ok {
			return color.NRGBA{}, false
		}
		ch[i] = v
	}
	alpha := uint8(255)
	if len(parts) == 4 {
		a, ok := parseAlpha(parts[3])
		if !ok {
			return color.NRGBA{}, false
		}
		alpha = a
	}
	return color.NRGBA{R: ch[0], G: ch[1], B: ch[2], A: alpha}, true
}

func parseChannel(s string) (uint8, bool) {
	if strings.HasSuffix(s, "%") {
		f, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil {
			return 0, false
		}
		return uint8(clamp01(f/100)*255 + 0.5), true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if f < 0 {
		f = 0
	}
	if f > 255 {
		f = 255
	}
	return uint8(f + 0.5), true
}

func parseAlpha(s string) (uint8, bool) {
	scale := 1.0
	if strings.HasSuffix(s, "%") {
		s, scale = strings.TrimSuffix(s, "%"), 100
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return uint8(clamp01(f/scale)*255 + 0.5), true
}

// withOpacity multiplies the alpha channel
func withOpacity(c color.NRGBA, opacity float64) color.NRGBA {
	c.A = uint8(float64(c.A)*clamp01(opacity) + 0.5)
	return c
}
