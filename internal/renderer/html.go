package renderer

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"github.com/dynodocs/template-engine/pkg/designformat"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>body{margin:0;background:#f3f4f6}.dd-page{position:relative;overflow:hidden;margin:0 auto}.dd-el{position:absolute;box-sizing:border-box}</style>
</head>
<body>
{{template "fragment" .Page}}
</body>
</html>
{{define "fragment"}}<div class="dd-page" style="{{.Style}}">
{{- range .Nodes}}
{{- if eq .Kind "image"}}
<img class="dd-el" data-index="{{.Index}}" src="{{.Src}}" alt="" style="{{.Style}}">
{{- else if eq .Kind "pill"}}
<div class="dd-el dd-pill" data-index="{{.Index}}" style="{{.Style}}">{{if .Icon}}<span class="dd-icon">{{.Icon}}</span> {{end}}{{if .Label}}<span class="dd-label">{{.Label}}:</span> {{end}}<span class="dd-value">{{.Text}}</span></div>
{{- else}}
<div class="dd-el dd-{{.Kind}}" data-index="{{.Index}}" style="{{.Style}}">{{.Text}}</div>
{{- end}}
{{- end}}
</div>{{end}}`))

type htmlPage struct {
	Style template.CSS
	Nodes []htmlNode
}

type htmlNode struct {
	Index int
	Kind  string
	Style template.CSS
	Src   any
	Text  string
	Label string
	Icon  string
}

// RenderHTML renders the tree as a standalone HTML document
func RenderHTML(tree *Tree) ([]byte, error) {
	return RenderHTMLTitled(tree, "Template preview")
}

// RenderHTMLTitled is RenderHTML with a document title
func RenderHTMLTitled(tree *Tree, title string) ([]byte, error) {
	var buf bytes.Buffer
	data := struct {
		Title string
		Page  htmlPage
	}{Title: title, Page: buildPage(tree)}
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render html: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderFragment renders only the page element, for embedding
func RenderFragment(tree *Tree) ([]byte, error) {
	var buf bytes.Buffer
	if err := pageTemplate.ExecuteTemplate(&buf, "fragment", buildPage(tree)); err != nil {
		return nil, fmt.Errorf("failed to render html fragment: %w", err)
	}
	return buf.Bytes(), nil
}

func buildPage(tree *Tree) htmlPage {
	page := htmlPage{
		Style: template.CSS(fmt.Sprintf("width:%spx;height:%spx;background:%s",
			px(tree.Width), px(tree.Height), cssColor(tree.Background, DefaultBackground))),
		Nodes: make([]htmlNode, 0, len(tree.Nodes)),
	}
	for i := range tree.Nodes {
		n := &tree.Nodes[i]
		page.Nodes = append(page.Nodes, htmlNode{
			Index: n.Index,
			Kind:  n.Kind,
			Style: template.CSS(nodeStyle(n)),
			Src:   imageSrc(n.Src),
			Text:  n.Text,
			Label: n.Label,
			Icon:  n.Icon,
		})
	}
	return page
}

func nodeStyle(n *Node) string {
	s := &styleBuilder{}
	s.set("left", px(n.X)+"px")
	s.set("top", px(n.Y)+"px")
	if n.HasWidth {
		s.set("width", px(n.Width)+"px")
	}
	if n.HasHeight {
		s.set("height", px(n.Height)+"px")
	}
	if n.Opacity < 1 {
		s.set("opacity", px(n.Opacity))
	}

	switch n.Kind {
	case designformat.TypeText:
		fontStyle(s, n)
		s.set("color", cssColor(n.Color, DefaultTextColor))
		s.set("white-space", "pre-wrap")

	case designformat.TypeImage:
		s.set("object-fit", "cover")
		if n.BorderRadius > 0 {
			s.set("border-radius", px(n.BorderRadius)+"px")
		}

	case designformat.TypeShape:
		shapeStyle(s, n)

	case designformat.TypePill:
		fontStyle(s, n)
		s.set("display", "inline-flex")
		s.set("align-items", "center")
		s.set("gap", "4px")
		s.set("padding", "4px 12px")
		s.set("border-radius", "9999px")
		s.set("white-space", "nowrap")
		s.set("background", cssColor(n.Background, DefaultPillBG))
		s.set("color", cssColor(n.Color, DefaultPillText))
	}
	return s.String()
}

func fontStyle(s *styleBuilder, n *Node) {
	s.set("font-size", px(n.FontSize)+"px")
	if family := cssFontFamily(n.FontFamily); family != "" {
		s.set("font-family", family)
	}
	if n.Bold {
		s.set("font-weight", "bold")
	} else if w := cssToken(n.FontWeight); w != "" {
		s.set("font-weight", w)
	}
	if n.LetterSpacing != 0 {
		s.set("letter-spacing", px(n.LetterSpacing)+"px")
	}
	if n.LineHeight > 0 {
		s.set("line-height", px(n.LineHeight)+"px")
	}
}

func shapeStyle(s *styleBuilder, n *Node) {
	switch n.Shape {
	case designformat.ShapeLine:
		if !n.HasHeight {
			s.set("height", "1px")
		}
		col := n.Stroke
		if col == "" {
			col = n.Fill
		}
		s.set("background", cssColor(col, DefaultTextColor))
		return
	case designformat.ShapeCircle:
		s.set("border-radius", "50%")
	case designformat.ShapePolygon:
		if n.ClipPath != "" {
			s.set("clip-path", n.ClipPath)
		}
	default:
		if n.BorderRadius > 0 {
			s.set("border-radius", px(n.BorderRadius)+"px")
		}
	}

	if n.Fill != "" {
		s.set("background", cssColor(n.Fill, "transparent"))
	}
	if n.Stroke != "" {
		s.set("border", "1px solid "+cssColor(n.Stroke, "transparent"))
	}
	if n.Shadow != "" {
		if v := cssToken(n.Shadow); v != "" {
			s.set("box-shadow", v)
		}
	}
	if n.Blur > 0 {
		s.set("filter", "blur("+px(n.Blur)+"px)")
	}
}

type styleBuilder struct {
	b strings.Builder
}

func (s *styleBuilder) set(prop, value string) {
	if s.b.Len() > 0 {
		s.b.WriteByte(';')
	}
	s.b.WriteString(prop)
	s.b.WriteByte(':')
	s.b.WriteString(value)
}

func (s *styleBuilder) String() string {
	return s.b.String()
}

func px(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// cssColor re-emits a parsed color so authored text never reaches the
// stylesheet verbatim
func cssColor(value, fallback string) string {
	c, ok := ParseColor(value)
	if !ok {
		if c, ok = ParseColor(fallback); !ok {
			return "transparent"
		}
	}
	return fmt.Sprintf("rgba(%d,%d,%d,%s)", c.R, c.G, c.B, px(float64(c.A)/255))
}

// cssToken allows the characters that appear in weights, shadows and
// similar values and rejects anything else
func cssToken(v string) string {
	v = strings.TrimSpace(v)
	lower := strings.ToLower(v)
	if strings.Contains(lower, "url") || strings.Contains(lower, "expression") {
		return ""
	}
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune(" .,#%()-", r):
		default:
			return ""
		}
	}
	return v
}

func cssFontFamily(v string) string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		name := strings.Trim(strings.TrimSpace(p), `"'`)
		if name == "" || cssToken(name) == "" || strings.ContainsAny(name, "()#%") {
			continue
		}
		if strings.Contains(name, " ") {
			name = "'" + name + "'"
		}
		out = append(out, name)
	}
	return strings.Join(out, ",")
}

func imageSrc(src string) any {
	switch {
	case src == "":
		return ""
	case strings.HasPrefix(src, "data:image/"):
		return template.URL(src)
	default:
		return src
	}
}
