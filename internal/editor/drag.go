package editor

import (
	"math"
	"sync"
)

// PointerListener receives pointer events that are not bound to an element
type PointerListener interface {
	PointerMove(x, y float64)
	PointerUp()
}

// Tracker fans out page-wide pointer events to registered listeners, so a
// drag keeps following the pointer after it leaves the element.
type Tracker struct {
	mu        sync.Mutex
	next      int
	listeners map[int]PointerListener
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{listeners: make(map[int]PointerListener)}
}

// Register adds l and returns the function that removes it
func (t *Tracker) Register(l PointerListener) (release func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.next
	t.next++
	t.listeners[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.listeners, id)
			t.mu.Unlock()
		})
	}
}

// Len returns the number of registered listeners
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.listeners)
}

// Move dispatches a pointer move
func (t *Tracker) Move(x, y float64) {
	for _, l := range t.snapshot() {
		l.PointerMove(x, y)
	}
}

// Up dispatches a pointer release
func (t *Tracker) Up() {
	for _, l := range t.snapshot() {
		l.PointerUp()
	}
}

func (t *Tracker) snapshot() []PointerListener {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]PointerListener, 0, len(t.listeners))
	for _, l := range t.listeners {
		out = append(out, l)
	}
	return out
}

type dragState struct {
	active           bool
	originX, originY float64 // element position, base units
	startX, startY   float64 // pointer position, screen pixels
}

// PointerDown starts dragging element i from screen point (x, y). Pressing
// outside every element clears the selection.
func (s *Session) PointerDown(i int, x, y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selectLocked(i)
	if s.state != ElementSelected {
		return
	}
	el := &s.elements()[i]
	s.drag = dragState{
		active:  true,
		originX: el.X,
		originY: el.Y,
		startX:  x,
		startY:  y,
	}
	s.state = Dragging
}

// PointerMove moves the dragged element by the pointer delta converted to
// base units. Coordinates never go negative. Ignored when not dragging.
func (s *Session) PointerMove(x, y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Dragging || !s.drag.active {
		return
	}
	el, err := s.selectedElement()
	if err != nil {
		return
	}
	scale := s.scale
	if scale <= 0 {
		scale = 1
	}

	el.X = math.Max(0, s.drag.originX+(x-s.drag.startX)/scale)
	el.Y = math.Max(0, s.drag.originY+(y-s.drag.startY)/scale)
	s.dirty = true
}

// PointerUp ends a drag, keeping the element selected
func (s *Session) PointerUp() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Dragging {
		return
	}
	s.drag = dragState{}
	s.state = ElementSelected
}
