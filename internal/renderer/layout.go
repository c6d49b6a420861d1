// Package renderer turns a template design into a positioned visual tree
// and draws that tree as HTML or as a raster image
package renderer

import (
	"fmt"
	"math"
	"strings"

	"github.com/dynodocs/template-engine/internal/placeholder"
	"github.com/dynodocs/template-engine/pkg/designformat"
)

// Defaults applied when an element leaves a style unset
const (
	DefaultFontSize   = 16.0
	DefaultTextColor  = "#111827"
	DefaultPillBG     = "#f1f5f9"
	DefaultPillText   = "#0f172a"
	DefaultPillSize   = 12.0
	DefaultShapeFill  = "#e5e7eb"
	DefaultBackground = "#ffffff"
	DefaultShadow     = "0 4px 12px rgba(0,0,0,0.15)"

	// line heights up to this value are multipliers of the font size
	maxRelativeLineHeight = 3.0
)

// Tree is a design laid out at a given display scale
type Tree struct {
	Scale      float64
	Width      float64
	Height     float64
	Background string
	Nodes      []Node
}

// Node is one positioned element. All lengths are display pixels.
type Node struct {
	Index int // position in the page's element list
	ID    string
	Kind  string
	Shape string

	X, Y          float64
	Width, Height float64
	HasWidth      bool
	HasHeight     bool
	Opacity       float64

	// Text and pill
	Text          string
	FontSize      float64
	FontFamily    string
	FontWeight    string
	Bold          bool
	Color         string
	LetterSpacing float64
	LineHeight    float64 // pixels, 0 when unset

	// Image
	Src string

	// Shape
	Fill         string
	Stroke       string
	BorderRadius float64
	Shadow       string
	Blur         float64
	ClipPath     string
	Points       []designformat.Point

	// Pill
	Label      string
	Icon       string
	Background string
}

// Scale returns the uniform display scale for a target width. Content is
// never drawn larger than 1:1.
func Scale(targetWidth float64) float64 {
	if targetWidth <= 0 || math.IsNaN(targetWidth) || math.IsInf(targetWidth, 0) {
		return 1
	}
	return math.Min(1, targetWidth/designformat.BaseWidth)
}

// Layout resolves placeholders and positions the first page of d for
// display at targetWidth. A nil design lays out the default blank page.
func Layout(d *designformat.Design, m placeholder.Map, targetWidth float64) *Tree {
	return LayoutAtScale(d, m, Scale(targetWidth))
}

// LayoutAtScale is Layout with an explicit scale
func LayoutAtScale(d *designformat.Design, m placeholder.Map, scale float64) *Tree {
	if d == nil {
		d = designformat.Default()
	}
	if scale <= 0 {
		scale = 1
	}

	tree := &Tree{
		Scale:      scale,
		Width:      designformat.BaseWidth * scale,
		Height:     designformat.BaseHeight * scale,
		Background: d.Background,
	}
	if tree.Background == "" {
		tree.Background = DefaultBackground
	}

	page := d.FirstPage()
	if page == nil {
		return tree
	}

	tree.Nodes = make([]Node, 0, len(page.Elements))
	for i := range page.Elements {
		node, ok := layoutElement(&page.Elements[i], m, scale)
		if !ok {
			continue
		}
		node.Index = i
		tree.Nodes = append(tree.Nodes, node)
	}

	return tree
}

func layoutElement(el *designformat.Element, m placeholder.Map, s float64) (Node, bool) {
	n := Node{
		ID:      el.ID,
		Kind:    el.Type,
		X:       el.X * s,
		Y:       el.Y * s,
		Opacity: 1,
	}
	if el.Width != nil {
		n.Width, n.HasWidth = *el.Width*s, true
	}
	if el.Height != nil {
		n.Height, n.HasHeight = *el.Height*s, true
	}
	if el.Opacity != nil {
		n.Opacity = clamp01(*el.Opacity)
	}

	switch el.Type {
	case designformat.TypeText:
		n.Text = placeholder.ResolveText(el.Content, m)
		applyFont(&n, el, s, DefaultFontSize)
		n.Color = orDefault(el.Color, DefaultTextColor)

	case designformat.TypeImage:
		n.Src = placeholder.ResolveImageSource(el.Src, el.Fallback, m)
		n.BorderRadius = el.BorderRadius * s

	case designformat.TypeShape:
		layoutShape(&n, el, s)

	case designformat.TypePill:
		n.Label = placeholder.ResolveText(el.Label, m)
		n.Text = placeholder.ResolveText(el.Value, m)
		n.Icon = el.Icon
		applyFont(&n, el, s, DefaultPillSize)
		n.Background, n.Color = DefaultPillBG, DefaultPillText
		if el.Colors != nil {
			n.Background = orDefault(el.Colors.BG, DefaultPillBG)
			n.Color = orDefault(el.Colors.Text, DefaultPillText)
		}

	default:
		return Node{}, false
	}

	return n, true
}

func applyFont(n *Node, el *designformat.Element, s, defaultSize float64) {
	size := el.FontSize
	if size <= 0 {
		size = defaultSize
	}
	n.FontSize = size * s
	n.FontFamily = el.FontFamily
	n.FontWeight = string(el.FontWeight)
	n.Bold = el.FontWeight.Bold()
	n.LetterSpacing = el.LetterSpacing * s

	switch {
	case el.LineHeight <= 0:
	case el.LineHeight <= maxRelativeLineHeight:
		n.LineHeight = el.LineHeight * n.FontSize
	default:
		n.LineHeight = el.LineHeight * s
	}
}

func layoutShape(n *Node, el *designformat.Element, s float64) {
	n.Shape = el.Shape
	if n.Shape == "" {
		n.Shape = designformat.ShapeRectangle
	}
	n.Fill = el.Fill
	n.Stroke = el.Stroke
	n.BorderRadius = el.BorderRadius * s
	n.Blur = el.Blur * s
	if el.Shadow.Enabled() {
		n.Shadow = string(el.Shadow)
		if n.Shadow == "true" {
			n.Shadow = DefaultShadow
		}
	}

	if n.Shape == designformat.ShapeLine && n.Fill == "" && n.Stroke == "" {
		n.Stroke = DefaultTextColor
	}
	if n.Shape != designformat.ShapeLine && n.Fill == "" && n.Stroke == "" {
		n.Fill = DefaultShapeFill
	}

	if n.Shape != designformat.ShapePolygon {
		return
	}

	// Polygons are full-bleed cutouts: the node covers the whole canvas and
	// the points become a clip path relative to it.
	n.X, n.Y = 0, 0
	n.Width, n.Height = designformat.BaseWidth*s, designformat.BaseHeight*s
	n.HasWidth, n.HasHeight = true, true
	n.ClipPath = PolygonClipPath(el.Points)
	n.Points = make([]designformat.Point, len(el.Points))
	for i, p := range el.Points {
		n.Points[i] = designformat.Point{X: p.X * s, Y: p.Y * s}
	}
}

// PolygonClipPath converts base-space points into a CSS polygon() using
// percentages of the page, so it is independent of display scale
func PolygonClipPath(points []designformat.Point) string {
	if len(points) == 0 {
		return ""
	}
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = fmt.Sprintf("%s%% %s%%",
			formatPercent(p.X/designformat.BaseWidth*100),
			formatPercent(p.Y/designformat.BaseHeight*100))
	}
	return "polygon(" + strings.Join(parts, ", ") + ")"
}

func formatPercent(v float64) string {
	s := fmt.Sprintf("%.3f", v)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	if s == "" || s == "-0" {
		return "0"
	}
	return s
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
