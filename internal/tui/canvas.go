package tui

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/dynodocs/template-engine/internal/renderer"
	"github.com/dynodocs/template-engine/pkg/designformat"
)

// A terminal cell stands for a cellW x cellH block of display pixels.
// Cells are about twice as tall as wide, so this keeps the page aspect.
const (
	cellW = 6.0
	cellH = 12.0

	minCanvasCols = 20
)

var maxCanvasCols = int(math.Floor(designformat.BaseWidth / cellW))

// box is a node projected onto the character grid
type box struct {
	index      int
	kind       string
	label      string
	col, row   int
	cols, rows int
}

// canvasWidth returns the display width in pixels for a grid of cols columns
func canvasWidth(cols int) float64 {
	if cols > maxCanvasCols {
		cols = maxCanvasCols
	}
	if cols < minCanvasCols {
		cols = minCanvasCols
	}
	return float64(cols) * cellW
}

// project maps the hit-testable nodes of tree onto grid cells. Polygons
// cover the whole page and are left out.
func project(tree *renderer.Tree) []box {
	boxes := make([]box, 0, len(tree.Nodes))
	for _, n := range tree.Nodes {
		if n.Kind == designformat.TypeShape && n.Shape == designformat.ShapePolygon {
			continue
		}
		w, h := n.Width, n.Height
		if !n.HasWidth || w <= 0 {
			w = estimateWidth(n)
		}
		if !n.HasHeight || h <= 0 {
			h = estimateHeight(n)
		}
		b := box{
			index: n.Index,
			kind:  n.Kind,
			label: nodeLabel(n),
			col:   int(math.Floor(n.X / cellW)),
			row:   int(math.Floor(n.Y / cellH)),
			cols:  max(1, int(math.Ceil(w/cellW))),
			rows:  max(1, int(math.Ceil(h/cellH))),
		}
		boxes = append(boxes, b)
	}
	return boxes
}

func estimateWidth(n renderer.Node) float64 {
	size := n.FontSize
	if size <= 0 {
		size = renderer.DefaultFontSize * 0.5
	}
	longest := 0
	for _, line := range strings.Split(n.Text+n.Label, "\n") {
		longest = max(longest, utf8.RuneCountInString(line))
	}
	return math.Max(cellW, float64(longest)*size*0.55)
}

func estimateHeight(n renderer.Node) float64 {
	size := n.FontSize
	if size <= 0 {
		size = renderer.DefaultFontSize * 0.5
	}
	lines := strings.Count(n.Text, "\n") + 1
	lh := n.LineHeight
	if lh <= 0 {
		lh = size * 1.2
	}
	return math.Max(cellH, float64(lines)*lh)
}

func nodeLabel(n renderer.Node) string {
	switch n.Kind {
	case designformat.TypeText:
		return strings.ReplaceAll(n.Text, "\n", " ")
	case designformat.TypePill:
		return strings.TrimSpace(n.Label + " " + n.Text)
	case designformat.TypeImage:
		return "[img]"
	case designformat.TypeShape:
		return ""
	}
	return n.Kind
}

// hit returns the element index of the topmost box covering cell (col, row)
func hit(boxes []box, col, row int) (int, bool) {
	for i := len(boxes) - 1; i >= 0; i-- {
		b := boxes[i]
		if col >= b.col && col < b.col+b.cols && row >= b.row && row < b.row+b.rows {
			return b.index, true
		}
	}
	return -1, false
}

// drawCanvas renders the page as a cols x rows grid. Later boxes paint over
// earlier ones; the selected box is highlighted.
func drawCanvas(boxes []box, cols, rows, selected int, dragging bool) string {
	cells := make([][]rune, rows)
	owner := make([][]int, rows)
	for r := range cells {
		cells[r] = []rune(strings.Repeat(" ", cols))
		owner[r] = make([]int, cols)
		for c := range owner[r] {
			owner[r][c] = -1
		}
	}

	for _, b := range boxes {
		label := []rune(b.label)
		fill := ' '
		if b.kind == designformat.TypeShape {
			fill = '░'
		}
		for r := b.row; r < b.row+b.rows && r < rows; r++ {
			if r < 0 {
				continue
			}
			for c := b.col; c < b.col+b.cols && c < cols; c++ {
				if c < 0 {
					continue
				}
				ch := fill
				if r == b.row {
					if k := c - b.col; k < len(label) {
						ch = label[k]
					}
				}
				cells[r][c] = ch
				owner[r][c] = b.index
			}
		}
	}

	var sb strings.Builder
	for r := range cells {
		if r > 0 {
			sb.WriteByte('\n')
		}
		// group runs of cells with the same owner into one styled span
		start := 0
		for c := 1; c <= cols; c++ {
			if c < cols && owner[r][c] == owner[r][start] {
				continue
			}
			sb.WriteString(cellStyle(owner[r][start], selected, dragging).Render(string(cells[r][start:c])))
			start = c
		}
	}
	return sb.String()
}

func cellStyle(owner, selected int, dragging bool) lipgloss.Style {
	switch {
	case owner < 0:
		return PageStyle
	case owner == selected && dragging:
		return DraggingElementStyle
	case owner == selected:
		return SelectedElementStyle
	default:
		return ElementStyle
	}
}
