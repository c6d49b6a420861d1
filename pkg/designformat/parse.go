package designformat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/yosuke-furukawa/json5/encoding/json5"
)

// Parse decodes design markup. Attempts run in order and the first one that
// yields a document with an array-valued "pages" field wins:
//
//  1. strict JSON
//  2. strict JSON after escaping raw newlines inside string literals
//  3. relaxed JSON5 (unquoted keys, single quotes, trailing commas)
//
// Within a document, numeric strings are accepted for numeric fields and
// values of any other wrong type are dropped along with non-object
// elements. Parse never panics; it returns nil when every attempt fails.
func Parse(markup string) (design *Design) {
	defer func() {
		if recover() != nil {
			design = nil
		}
	}()

	if strings.TrimSpace(markup) == "" {
		return nil
	}

	if d, err := parseStrict([]byte(markup)); err == nil {
		return d
	}

	repaired := RepairNewlines(markup)
	if d, err := parseStrict([]byte(repaired)); err == nil {
		return d
	}

	if d, err := parseRelaxed([]byte(repaired)); err == nil {
		return d
	}

	return nil
}

// ParseOrDefault parses markup and falls back to a single blank page
func ParseOrDefault(markup string) *Design {
	if d := Parse(markup); d != nil {
		return d
	}
	return Default()
}

// Default returns the design used when no usable markup is available
func Default() *Design {
	return &Design{
		PageSize: CanonicalPageSize,
		Pages: []Page{
			{PageNumber: 1, Elements: []Element{}},
		},
	}
}

// RepairNewlines rewrites raw line breaks found inside quoted string
// literals into their escaped form. Quotes are matched against the
// character that opened the string and backslash escapes are honored.
// Text outside of strings is copied unchanged.
func RepairNewlines(markup string) string {
	var b strings.Builder
	b.Grow(len(markup) + 16)

	var quote byte
	escaped := false
	for i := 0; i < len(markup); i++ {
		c := markup[i]

		if quote == 0 {
			if c == '"' || c == '\'' {
				quote = c
			}
			b.WriteByte(c)
			continue
		}

		switch {
		case escaped:
			escaped = false
			b.WriteByte(c)
		case c == '\\':
			escaped = true
			b.WriteByte(c)
		case c == quote:
			quote = 0
			b.WriteByte(c)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}

func parseStrict(data []byte) (*Design, error) {
	var head struct {
		Pages json.RawMessage `json:"pages"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to parse design: %w", err)
	}
	if !isArray(head.Pages) {
		return nil, fmt.Errorf("design has no pages array")
	}

	var d Design
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse design: %w", err)
	}
	return normalize(&d), nil
}

func parseRelaxed(data []byte) (*Design, error) {
	var raw interface{}
	if err := json5.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse relaxed design: %w", err)
	}

	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("design is not an object")
	}
	if _, ok := obj["pages"].([]interface{}); !ok {
		return nil, fmt.Errorf("design has no pages array")
	}

	// Re-encode as strict JSON so the typed decode (and the custom
	// unmarshalers) only ever see standard syntax.
	strict, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode relaxed design: %w", err)
	}

	var d Design
	if err := json.Unmarshal(strict, &d); err != nil {
		return nil, fmt.Errorf("failed to parse relaxed design: %w", err)
	}
	return normalize(&d), nil
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// normalize keeps the non-empty pages invariant
func normalize(d *Design) *Design {
	if len(d.Pages) == 0 {
		d.Pages = []Page{{PageNumber: 1, Elements: []Element{}}}
	}
	return d
}

// Serialize converts a design to its markup form
func Serialize(d *Design) (string, error) {
	if d == nil {
		return "", fmt.Errorf("design is nil")
	}
	data, err := d.ToJSON()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ParseFile parses a design file from disk, falling back to the default design
func ParseFile(path string) (*Design, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read design file: %w", err)
	}

	return ParseOrDefault(string(data)), nil
}

// ToJSON converts a Design to JSON bytes
func (d *Design) ToJSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// SaveToFile saves a Design to a file
func (d *Design) SaveToFile(path string) error {
	data, err := d.ToJSON()
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
