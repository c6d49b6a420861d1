package editor

import (
	"strconv"
	"strings"

	"github.com/dynodocs/template-engine/pkg/designformat"
)

// Fields are the editable properties of the selected element. Content is
// the raw markup with placeholders unresolved.
type Fields struct {
	Index   int
	Type    string
	Content string
	Color   string
	Width   string
	Height  string
}

// Inspect returns the editable fields of the selection
func (s *Session) Inspect() (Fields, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, err := s.selectedElement()
	if err != nil {
		return Fields{}, false
	}
	f := Fields{Index: s.selected, Type: el.Type}
	switch el.Type {
	case designformat.TypeText:
		f.Content, f.Color = el.Content, el.Color
	case designformat.TypeImage:
		f.Width, f.Height = formatSize(el.Width), formatSize(el.Height)
	}
	return f, true
}

// EditText replaces the content and color of the selected text element
func (s *Session) EditText(content, color string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Saving {
		return ErrSaveInProgress
	}
	el, err := s.selectedElement()
	if err != nil {
		return err
	}
	if el.Type != designformat.TypeText {
		return ErrWrongElement
	}
	if el.Content != content || el.Color != color {
		el.Content, el.Color = content, color
		s.dirty = true
	}
	return nil
}

// EditImageSize sets the size of the selected image element. Each field is
// applied only when it parses as a positive number; anything else keeps
// the previous value.
func (s *Session) EditImageSize(width, height string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Saving {
		return ErrSaveInProgress
	}
	el, err := s.selectedElement()
	if err != nil {
		return err
	}
	if el.Type != designformat.TypeImage {
		return ErrWrongElement
	}
	if v, ok := parseSize(width); ok {
		el.Width = designformat.Float(v)
		s.dirty = true
	}
	if v, ok := parseSize(height); ok {
		el.Height = designformat.Float(v)
		s.dirty = true
	}
	return nil
}

func parseSize(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v <= 0 || v != v || v > 1e6 {
		return 0, false
	}
	return v, true
}

func formatSize(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
