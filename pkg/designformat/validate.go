package designformat

import (
	"fmt"
)

// Validate checks a Design for structural problems. Rendering never calls
// it; it exists so uploads can be rejected before they are stored.
func Validate(d *Design) error {
	if d == nil {
		return fmt.Errorf("design is required")
	}
	if len(d.Pages) == 0 {
		return fmt.Errorf("at least one page is required")
	}

	for i, page := range d.Pages {
		for j := range page.Elements {
			if err := validateElement(&page.Elements[j]); err != nil {
				return fmt.Errorf("page[%d] element[%d]: %w", i, j, err)
			}
		}
	}

	return nil
}

func validateElement(el *Element) error {
	if el.Width != nil && *el.Width < 0 {
		return fmt.Errorf("width cannot be negative")
	}
	if el.Height != nil && *el.Height < 0 {
		return fmt.Errorf("height cannot be negative")
	}
	if el.Opacity != nil && (*el.Opacity < 0 || *el.Opacity > 1) {
		return fmt.Errorf("opacity must be between 0 and 1")
	}

	switch el.Type {
	case TypeText:
		if el.FontSize < 0 {
			return fmt.Errorf("fontSize cannot be negative")
		}
		return nil
	case TypeImage:
		return nil
	case TypeShape:
		return validateShape(el)
	case TypePill:
		return nil
	case "":
		return fmt.Errorf("element type is required")
	default:
		return fmt.Errorf("unknown element type: %s", el.Type)
	}
}

func validateShape(el *Element) error {
	switch el.Shape {
	case ShapeRectangle, ShapeLine, ShapeCircle, "":
		return nil
	case ShapePolygon:
		if len(el.Points) < 3 {
			return fmt.Errorf("polygon requires at least 3 points, got %d", len(el.Points))
		}
		return nil
	default:
		return fmt.Errorf("invalid shape '%s' (must be rectangle, line, polygon, or circle)", el.Shape)
	}
}
