package renderer

import (
	"context"
	"image"
	"image/color"
	"math"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"go.uber.org/zap"

	"github.com/dynodocs/template-engine/pkg/designformat"
)

// System fonts tried when a family has no mapping
var systemFonts = []string{
	"/System/Library/Fonts/Helvetica.ttc",
	"/System/Library/Fonts/Supplemental/Arial.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf",
	"C:\\Windows\\Fonts\\arial.ttf",
}

var systemBoldFonts = []string{
	"/System/Library/Fonts/Supplemental/Arial Bold.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf",
	"/usr/share/fonts/truetype/liberation/LiberationSans-Bold.ttf",
	"C:\\Windows\\Fonts\\arialbd.ttf",
}

var placeholderFill = color.NRGBA{R: 0xe5, G: 0xe7, B: 0xeb, A: 0xff}

// Rasterizer draws a laid out tree into an image
type Rasterizer struct {
	Loader ImageLoader
	Fonts  map[string]string // font family -> font file
	Logger *zap.Logger
}

// NewRasterizer creates a rasterizer that loads images from any source
func NewRasterizer(logger *zap.Logger) *Rasterizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rasterizer{
		Loader: NewSourceLoader(),
		Fonts:  map[string]string{},
		Logger: logger,
	}
}

// RenderPNG draws the tree with the default rasterizer
func RenderPNG(ctx context.Context, tree *Tree) (image.Image, error) {
	return NewRasterizer(nil).Render(ctx, tree)
}

// Render draws every node in order. Asset failures are drawn as placeholder
// boxes; only a cancelled context stops the render.
func (r *Rasterizer) Render(ctx context.Context, tree *Tree) (image.Image, error) {
	w := int(math.Round(tree.Width))
	h := int(math.Round(tree.Height))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dc := gg.NewContext(w, h)
	bg, ok := ParseColor(tree.Background)
	if !ok {
		bg = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	}
	dc.SetColor(bg)
	dc.Clear()

	for i := range tree.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := &tree.Nodes[i]
		switch n.Kind {
		case designformat.TypeText:
			r.drawText(dc, n, tree)
		case designformat.TypeImage:
			r.drawImage(ctx, dc, n, tree)
		case designformat.TypeShape:
			r.drawShape(dc, n)
		case designformat.TypePill:
			r.drawPill(dc, n, tree)
		}
	}

	return dc.Image(), nil
}

func (r *Rasterizer) drawText(dc *gg.Context, n *Node, tree *Tree) {
	r.loadFont(dc, n.FontFamily, n.Bold, n.FontSize)
	dc.SetColor(resolveColor(n.Color, DefaultTextColor, n.Opacity))

	width := n.Width
	if !n.HasWidth || width <= 0 {
		width = tree.Width - n.X
	}
	spacing := 1.2
	if n.LineHeight > 0 && n.FontSize > 0 {
		spacing = n.LineHeight / n.FontSize
	}
	dc.DrawStringWrapped(n.Text, n.X, n.Y, 0, 0, width, spacing, gg.AlignLeft)
}

func (r *Rasterizer) drawImage(ctx context.Context, dc *gg.Context, n *Node, tree *Tree) {
	img, err := r.Loader.Load(ctx, n.Src)
	if err != nil {
		r.Logger.Debug("image unavailable, drawing placeholder",
			zap.Int("element", n.Index), zap.Error(err))
		w, h := n.Width, n.Height
		if !n.HasWidth {
			w = 120 * tree.Scale
		}
		if !n.HasHeight {
			h = 80 * tree.Scale
		}
		dc.DrawRoundedRectangle(n.X, n.Y, w, h, n.BorderRadius)
		dc.SetColor(withOpacity(placeholderFill, n.Opacity))
		dc.Fill()
		return
	}

	w, h := 0, 0
	switch {
	case n.HasWidth || n.HasHeight:
		if n.HasWidth {
			w = int(math.Round(n.Width))
		}
		if n.HasHeight {
			h = int(math.Round(n.Height))
		}
	default:
		w = int(math.Round(float64(img.Bounds().Dx()) * tree.Scale))
	}
	img = fitImage(img, w, h)
	if n.Opacity < 1 {
		img = fade(img, n.Opacity)
	}

	b := img.Bounds()
	if n.BorderRadius > 0 {
		dc.DrawRoundedRectangle(n.X, n.Y, float64(b.Dx()), float64(b.Dy()), n.BorderRadius)
		dc.Clip()
		defer dc.ResetClip()
	}
	dc.DrawImage(img, int(math.Round(n.X)), int(math.Round(n.Y)))
}

func (r *Rasterizer) drawShape(dc *gg.Context, n *Node) {
	switch n.Shape {
	case designformat.ShapeLine:
		thickness := n.Height
		if !n.HasHeight || thickness <= 0 {
			thickness = 1
		}
		col := n.Stroke
		if col == "" {
			col = n.Fill
		}
		dc.DrawRectangle(n.X, n.Y, n.Width, thickness)
		dc.SetColor(resolveColor(col, DefaultTextColor, n.Opacity))
		dc.Fill()
		return

	case designformat.ShapePolygon:
		if len(n.Points) < 3 {
			return
		}
		dc.MoveTo(n.Points[0].X, n.Points[0].Y)
		for _, p := range n.Points[1:] {
			dc.LineTo(p.X, p.Y)
		}
		dc.ClosePath()

	case designformat.ShapeCircle:
		rx, ry := n.Width/2, n.Height/2
		dc.DrawEllipse(n.X+rx, n.Y+ry, rx, ry)

	default:
		dc.DrawRoundedRectangle(n.X, n.Y, n.Width, n.Height, n.BorderRadius)
	}

	fillAndStroke(dc, n)
}

func fillAndStroke(dc *gg.Context, n *Node) {
	hasStroke := n.Stroke != ""
	if c, ok := ParseColor(n.Fill); ok {
		dc.SetColor(withOpacity(c, n.Opacity))
		if hasStroke {
			dc.FillPreserve()
		} else {
			dc.Fill()
		}
	}
	if !hasStroke {
		dc.ClearPath()
		return
	}
	if c, ok := ParseColor(n.Stroke); ok {
		dc.SetColor(withOpacity(c, n.Opacity))
		dc.SetLineWidth(1)
		dc.Stroke()
		return
	}
	dc.ClearPath()
}

func (r *Rasterizer) drawPill(dc *gg.Context, n *Node, tree *Tree) {
	r.loadFont(dc, n.FontFamily, n.Bold, n.FontSize)

	text := n.Text
	if n.Label != "" {
		text = n.Label + ": " + n.Text
	}
	if n.Icon != "" {
		text = n.Icon + " " + text
	}

	padX, padY := 12*tree.Scale, 6*tree.Scale
	tw, th := dc.MeasureString(text)
	w, h := tw+2*padX, th+2*padY
	if n.HasWidth && n.Width > 0 {
		w = n.Width
	}
	if n.HasHeight && n.Height > 0 {
		h = n.Height
	}

	dc.DrawRoundedRectangle(n.X, n.Y, w, h, h/2)
	dc.SetColor(resolveColor(n.Background, DefaultPillBG, n.Opacity))
	dc.Fill()

	dc.SetColor(resolveColor(n.Color, DefaultPillText, n.Opacity))
	dc.DrawStringAnchored(text, n.X+padX, n.Y+h/2, 0, 0.35)
}

// loadFont picks the mapped family, then a system font. When nothing
// loads, gg keeps its built-in face.
func (r *Rasterizer) loadFont(dc *gg.Context, family string, bold bool, size float64) {
	if size <= 0 {
		size = DefaultFontSize
	}
	candidates := make([]string, 0, 8)
	if path, ok := r.Fonts[strings.ToLower(strings.TrimSpace(family))]; ok {
		candidates = append(candidates, path)
	}
	if bold {
		candidates = append(candidates, systemBoldFonts...)
	}
	candidates = append(candidates, systemFonts...)

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := dc.LoadFontFace(path, size); err == nil {
			return
		}
	}
}

func resolveColor(value, fallback string, opacity float64) color.NRGBA {
	c, ok := ParseColor(value)
	if !ok {
		c, _ = ParseColor(fallback)
	}
	return withOpacity(c, opacity)
}

func fade(img image.Image, opacity float64) image.Image {
	out := imaging.Clone(img)
	a := clamp01(opacity)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = uint8(float64(out.Pix[i])*a + 0.5)
	}
	return out
}
