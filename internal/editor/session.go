// Package editor implements an interactive editing session over a template
// design: selection, drag to reposition, inline edits and save.
package editor

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/dynodocs/template-engine/internal/placeholder"
	"github.com/dynodocs/template-engine/internal/renderer"
	"github.com/dynodocs/template-engine/internal/session"
	"github.com/dynodocs/template-engine/pkg/designformat"
)

// State of an editing session
type State int

const (
	Unloaded State = iota
	Parsed
	Idle
	ElementSelected
	Dragging
	Saving
	Closed
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Parsed:
		return "parsed"
	case Idle:
		return "idle"
	case ElementSelected:
		return "element_selected"
	case Dragging:
		return "dragging"
	case Saving:
		return "saving"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	ErrClosed         = errors.New("editor session closed")
	ErrNoSelection    = errors.New("no element selected")
	ErrWrongElement   = errors.New("selected element does not support this edit")
	ErrSaveInProgress = errors.New("save already in progress")
)

// Options configure a session
type Options struct {
	TemplateID     string
	Markup         string
	Saver          Saver
	Session        session.Context
	Provider       placeholder.Provider
	Tracker        *Tracker
	ContainerWidth float64
	Logger         *zap.Logger
}

// Session is one open template. It is driven by a single caller but saves
// complete on another goroutine, so state is guarded.
type Session struct {
	mu sync.Mutex

	templateID string
	saver      Saver
	identity   session.Context
	logger     *zap.Logger

	design       *designformat.Design
	placeholders placeholder.Map
	scale        float64
	state        State
	selected     int
	dirty        bool
	drag         dragState

	notices chan Notice
	tracker *Tracker
	release func()

	ctx    context.Context
	cancel context.CancelFunc
}

// Open parses the markup (falling back to a blank design), resolves the
// placeholder map and returns an idle session. The session lives until
// Close or until ctx is cancelled.
func Open(ctx context.Context, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	identity := opts.Session
	if identity == nil {
		identity = session.Anonymous
	}
	tracker := opts.Tracker
	if tracker == nil {
		tracker = NewTracker()
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		templateID: opts.TemplateID,
		saver:      opts.Saver,
		identity:   identity,
		logger:     logger.With(zap.String("template_id", opts.TemplateID)),
		state:      Unloaded,
		selected:   -1,
		notices:    make(chan Notice, noticeBuffer),
		tracker:    tracker,
		ctx:        sctx,
		cancel:     cancel,
	}

	s.design = designformat.ParseOrDefault(opts.Markup)
	s.state = Parsed

	if opts.Provider != nil {
		s.placeholders = opts.Provider.Placeholders(session.WithContext(sctx, identity))
	}
	s.scale = renderer.Scale(opts.ContainerWidth)
	s.release = tracker.Register(s)
	s.state = Idle

	s.logger.Debug("editor session opened",
		zap.Int("elements", len(s.elements())),
		zap.Float64("scale", s.scale))
	return s
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dirty reports whether there are edits since the last successful save
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Scale returns the current display scale
func (s *Session) Scale() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scale
}

// Resize recomputes the display scale for a new container width
func (s *Session) Resize(containerWidth float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return
	}
	s.scale = renderer.Scale(containerWidth)
}

// Select makes element i the selection. An index outside the first page
// clears the selection, like clicking empty canvas.
func (s *Session) Select(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectLocked(i)
}

func (s *Session) selectLocked(i int) {
	if s.state == Closed || s.state == Saving {
		return
	}
	if i < 0 || i >= len(s.elements()) {
		s.selected = -1
		s.state = Idle
		return
	}
	s.selected = i
	s.state = ElementSelected
}

// ClearSelection deselects
func (s *Session) ClearSelection() {
	s.Select(-1)
}

// Selected returns the selected element index
func (s *Session) Selected() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected, s.selected >= 0
}

// Elements returns the number of elements on the edited page
func (s *Session) Elements() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.elements())
}

// Design returns a deep copy of the current design
func (s *Session) Design() *designformat.Design {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.design.Clone()
}

// Placeholders returns the map used for previews
func (s *Session) Placeholders() placeholder.Map {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.placeholders.Clone()
}

// Tree lays out the current design at the current scale
func (s *Session) Tree() *renderer.Tree {
	s.mu.Lock()
	defer s.mu.Unlock()
	return renderer.LayoutAtScale(s.design, s.placeholders, s.scale)
}

// Close ends the session. It releases drag tracking, cancels in-flight
// saves and closes the notice channel. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return
	}
	s.state = Closed
	s.drag = dragState{}
	release := s.release
	s.release = nil
	close(s.notices)
	s.mu.Unlock()

	s.cancel()
	if release != nil {
		release()
	}
	s.logger.Debug("editor session closed")
}

func (s *Session) elements() []designformat.Element {
	page := s.design.FirstPage()
	if page == nil {
		return nil
	}
	return page.Elements
}

func (s *Session) selectedElement() (*designformat.Element, error) {
	if s.state == Closed {
		return nil, ErrClosed
	}
	els := s.elements()
	if s.selected < 0 || s.selected >= len(els) {
		return nil, ErrNoSelection
	}
	return &els[s.selected], nil
}
