// Package designformat defines the types for the template design document format
package designformat

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Base page geometry. Every element coordinate is authored in this space
// regardless of the size the page is displayed at.
const (
	BaseWidth  = 595.0
	BaseHeight = 842.0

	// CanonicalPageSize is written on every save
	CanonicalPageSize = "A4"
)

// Element types
const (
	TypeText  = "text"
	TypeImage = "image"
	TypeShape = "shape"
	TypePill  = "pill"
)

// Shape kinds
const (
	ShapeRectangle = "rectangle"
	ShapeLine      = "line"
	ShapePolygon   = "polygon"
	ShapeCircle    = "circle"
)

// Design represents the root structure of a template design
type Design struct {
	Version    string `json:"version,omitempty"`
	PageSize   string `json:"pageSize,omitempty"`
	Background string `json:"background,omitempty"` // page color
	Pages      []Page `json:"pages"`

	// Extra holds authored keys outside the schema, written back on save
	Extra map[string]json.RawMessage `json:"-"`
}

// Page holds the positioned elements of one page
type Page struct {
	PageNumber int       `json:"pageNumber,omitempty"`
	Elements   []Element `json:"elements"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Element represents any positioned design element. Which fields are
// meaningful depends on Type.
type Element struct {
	Type    string   `json:"type"`
	ID      string   `json:"id,omitempty"`
	X       float64  `json:"x"`
	Y       float64  `json:"y"`
	Width   *float64 `json:"width,omitempty"`
	Height  *float64 `json:"height,omitempty"`
	Opacity *float64 `json:"opacity,omitempty"`

	// Text element
	Content       string  `json:"content,omitempty"`
	FontSize      float64 `json:"fontSize,omitempty"`
	FontFamily    string  `json:"fontFamily,omitempty"`
	FontWeight    Flex    `json:"fontWeight,omitempty"`
	Color         string  `json:"color,omitempty"`
	LetterSpacing float64 `json:"letterSpacing,omitempty"`
	LineHeight    float64 `json:"lineHeight,omitempty"`

	// Image element
	Src      string `json:"src,omitempty"`
	Fallback string `json:"fallback,omitempty"`

	// Shape element
	Shape  string  `json:"shape,omitempty"`
	Fill   string  `json:"fill,omitempty"`
	Stroke string  `json:"stroke,omitempty"`
	Points []Point `json:"points,omitempty"`
	Shadow Flex    `json:"shadow,omitempty"`
	Blur   float64 `json:"blur,omitempty"`

	// Shared by image and shape
	BorderRadius float64 `json:"borderRadius,omitempty"`

	// Pill element
	Label  string      `json:"label,omitempty"`
	Value  string      `json:"value,omitempty"`
	Icon   string      `json:"icon,omitempty"`
	Colors *PillColors `json:"colors,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the design leniently. Pages that are not objects
// are skipped rather than failing the document.
func (d *Design) UnmarshalJSON(data []byte) error {
	type plain Design
	var out plain
	raw, extra, err := decodeObject(data, &out, "pages")
	if err != nil {
		return err
	}
	*d = Design(out)
	d.Extra = extra
	d.Pages = decodeEach[Page](raw["pages"])
	return nil
}

func (d Design) MarshalJSON() ([]byte, error) {
	type plain Design
	return encodeObject(plain(d), d.Extra)
}

// UnmarshalJSON decodes the page leniently, skipping elements that are
// not objects.
func (p *Page) UnmarshalJSON(data []byte) error {
	type plain Page
	var out plain
	raw, extra, err := decodeObject(data, &out, "elements")
	if err != nil {
		return err
	}
	*p = Page(out)
	p.Extra = extra
	p.Elements = decodeEach[Element](raw["elements"])
	return nil
}

func (p Page) MarshalJSON() ([]byte, error) {
	type plain Page
	return encodeObject(plain(p), p.Extra)
}

// UnmarshalJSON coerces numeric strings into the numeric fields and keeps
// unknown keys in Extra.
func (e *Element) UnmarshalJSON(data []byte) error {
	type plain Element
	var out plain
	_, extra, err := decodeObject(data, &out)
	if err != nil {
		return err
	}
	*e = Element(out)
	e.Extra = extra
	return nil
}

func (e Element) MarshalJSON() ([]byte, error) {
	type plain Element
	return encodeObject(plain(e), e.Extra)
}

// decodeEach decodes a JSON array item by item, dropping items that fail
func decodeEach[T any](raw json.RawMessage) []T {
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil || items == nil {
		return nil
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// PillColors are the background and text colors of a pill
type PillColors struct {
	BG   string `json:"bg,omitempty"`
	Text string `json:"text,omitempty"`
}

// Point is a polygon vertex in base space. It decodes from either
// {"x":1,"y":2} or [1,2].
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// UnmarshalJSON accepts both the object and the pair form
func (p *Point) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var pair []float64
		if err := json.Unmarshal(data, &pair); err != nil {
			return err
		}
		if len(pair) != 2 {
			return fmt.Errorf("point must have 2 coordinates, got %d", len(pair))
		}
		p.X, p.Y = pair[0], pair[1]
		return nil
	}

	type plain Point
	var obj plain
	if _, _, err := decodeObject(data, &obj); err != nil {
		return err
	}
	*p = Point(obj)
	return nil
}

// Flex is a style value authored either as a string ("bold") or as a
// number (700). It is kept in its textual form.
type Flex string

// UnmarshalJSON stores strings as-is and numbers/booleans by their literal text
func (f *Flex) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = Flex(s)
		return nil
	}
	if trimmed == "true" || trimmed == "false" {
		*f = Flex(trimmed)
		return nil
	}
	if _, err := strconv.ParseFloat(trimmed, 64); err != nil {
		return fmt.Errorf("invalid style value %s", trimmed)
	}
	*f = Flex(trimmed)
	return nil
}

// MarshalJSON writes numeric literals back as numbers
func (f Flex) MarshalJSON() ([]byte, error) {
	s := string(f)
	if s == "true" || s == "false" {
		return []byte(s), nil
	}
	if jsonNumber.MatchString(s) {
		return []byte(s), nil
	}
	return json.Marshal(s)
}

var jsonNumber = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)

// Bold reports whether the value asks for a bold face
func (f Flex) Bold() bool {
	s := strings.ToLower(string(f))
	switch s {
	case "bold", "bolder":
		return true
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n >= 600
	}
	return false
}

// Enabled reports whether a boolean-ish value is set
func (f Flex) Enabled() bool {
	switch strings.ToLower(string(f)) {
	case "", "false", "0", "none":
		return false
	}
	return true
}

// FirstPage returns the page that is rendered and edited, or nil
func (d *Design) FirstPage() *Page {
	if d == nil || len(d.Pages) == 0 {
		return nil
	}
	return &d.Pages[0]
}

// Clone returns a deep copy of the design
func (d *Design) Clone() *Design {
	if d == nil {
		return nil
	}
	out := *d
	out.Extra = copyExtra(d.Extra)
	out.Pages = make([]Page, len(d.Pages))
	for i, p := range d.Pages {
		out.Pages[i] = p
		out.Pages[i].Extra = copyExtra(p.Extra)
		if p.Elements != nil {
			out.Pages[i].Elements = make([]Element, len(p.Elements))
			for j, el := range p.Elements {
				out.Pages[i].Elements[j] = el.Clone()
			}
		}
	}
	return &out
}

// Clone returns a deep copy of the element
func (e Element) Clone() Element {
	out := e
	out.Width = copyFloat(e.Width)
	out.Height = copyFloat(e.Height)
	out.Opacity = copyFloat(e.Opacity)
	out.Extra = copyExtra(e.Extra)
	if e.Points != nil {
		out.Points = append([]Point(nil), e.Points...)
	}
	if e.Colors != nil {
		c := *e.Colors
		out.Colors = &c
	}
	return out
}

// Float returns a pointer to v, for the optional geometry fields
func Float(v float64) *float64 {
	return &v
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
