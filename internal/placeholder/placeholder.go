// Package placeholder resolves {{token}} markers in design fields
package placeholder

import (
	"regexp"
	"sort"
	"strings"
)

// DefaultCoverImage is used when an image source cannot be resolved at all
const DefaultCoverImage = "https://images.unsplash.com/photo-1507525428034-b723cf961d3e?w=1200&q=80"

// Map maps a literal token such as "{{agency_name}}" to its replacement
type Map map[string]string

var tokenPattern = regexp.MustCompile(`\{\{[A-Za-z0-9_]+\}\}`)

// Token wraps a name in placeholder braces
func Token(name string) string {
	return "{{" + name + "}}"
}

// Tokens lists the distinct placeholder tokens in text, in order of first use
func Tokens(text string) []string {
	matches := tokenPattern.FindAllString(text, -1)
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// Clone returns a copy of m
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Merge returns a copy of m with overrides applied. Empty override values
// are skipped so a token never resolves to an empty string.
func (m Map) Merge(overrides Map) Map {
	out := m.Clone()
	for k, v := range overrides {
		if v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// ResolveText replaces every known token in value with its mapped value.
// Matching is literal. Unknown tokens are left as they are.
func ResolveText(value string, m Map) string {
	if value == "" || len(m) == 0 || !strings.Contains(value, "{{") {
		return value
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}

	// single pass: a replacement value is never scanned for further tokens
	return strings.NewReplacer(pairs...).Replace(value)
}

// ResolveImageSource picks the source an image element is drawn from.
// Absolute URLs and data URIs are used as-is and known tokens are looked up.
// Anything else defers to the element's fallback, which is placeholder
// resolved and used unless a token in it stays unresolved. The last resort
// is DefaultCoverImage, so the result is never empty.
func ResolveImageSource(src, fallback string, m Map) string {
	src = strings.TrimSpace(src)
	if src != "" {
		if IsAbsolute(src) {
			return src
		}
		if v, ok := m[src]; ok && v != "" {
			return v
		}
	}

	fallback = strings.TrimSpace(fallback)
	if fallback != "" {
		resolved := strings.TrimSpace(ResolveText(fallback, m))
		if resolved != "" && len(Tokens(resolved)) == 0 {
			return resolved
		}
	}

	return DefaultCoverImage
}

// IsAbsolute reports whether src is a fully-qualified URL or a data URI
func IsAbsolute(src string) bool {
	lower := strings.ToLower(src)
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "data:")
}

// NormalizeImageValue turns raw base64 image data into a PNG data URI.
// Values starting with "http" or "data:" are returned unchanged.
func NormalizeImageValue(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if strings.HasPrefix(v, "http") || strings.HasPrefix(v, "data:") {
		return v
	}
	return "data:image/png;base64," + v
}
