// Package selector implements the region-selection interaction: arming an
// overlay, dragging a rectangle and turning the result into a capture request.
package selector

import (
	"math"
	"sync"

	"github.com/menta2k/proofpulse/pkg/types"
)

// State is the overlay interaction state.
type State int

const (
	Idle State = iota
	Armed
	Dragging
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Dragging:
		return "dragging"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Page describes the document the overlay is drawn on.
type Page struct {
	URL              string
	DevicePixelRatio float64
}

// Session is the selection state of one tab. It is safe for concurrent use.
type Session struct {
	mu      sync.Mutex
	tabID   string
	page    Page
	state   State
	anchorX float64
	anchorY float64
	live    types.SelectionRect
	pending bool
}

// NewSession creates an idle session for tabID.
func NewSession(tabID string, page Page) *Session {
	return &Session{tabID: tabID, page: page}
}

// SetPage updates the page URL and device pixel ratio, e.g. after a
// navigation or zoom change.
func (s *Session) SetPage(page Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.page = page
}

// Start arms the overlay. It reports whether the session transitioned;
// a start while armed, dragging or pending is ignored.
func (s *Session) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle || s.pending {
		return false
	}
	s.state = Armed
	return true
}

// PointerDown anchors the selection at (x, y).
func (s *Session) PointerDown(x, y float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Armed {
		return false
	}
	s.anchorX, s.anchorY = x, y
	s.live = s.rectTo(x, y)
	s.state = Dragging
	return true
}

// PointerMove updates the live rectangle while dragging.
func (s *Session) PointerMove(x, y float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Dragging {
		return false
	}
	s.live = s.rectTo(x, y)
	return true
}

// PointerUp finishes the drag at (x, y). A selection narrower or shorter
// than types.MinSelectionSize is discarded and ok is false. Otherwise the
// session becomes pending and the returned request must be forwarded.
func (s *Session) PointerUp(x, y float64) (req types.CaptureRequest, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Dragging {
		return types.CaptureRequest{}, false
	}
	s.live = s.rectTo(x, y)
	s.state = Completed

	rect := s.live
	s.state = Idle
	s.live = types.SelectionRect{}
	if rect.TooSmall() {
		return types.CaptureRequest{}, false
	}

	s.pending = true
	return types.CaptureRequest{TabID: s.tabID, PageURL: s.page.URL, Area: rect}, true
}

// Cancel abandons an armed or in-progress selection without emitting.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Armed && s.state != Dragging {
		return false
	}
	s.state = Idle
	s.live = types.SelectionRect{}
	return true
}

// Claim marks a scan in flight for a selection completed elsewhere, such as
// a page client that draws its own overlay. Any local selection in progress
// is abandoned. It reports false when a scan is already pending.
func (s *Session) Claim() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending {
		return false
	}
	s.state = Idle
	s.live = types.SelectionRect{}
	s.pending = true
	return true
}

// Resolve clears the pending flag once a result or error has arrived.
func (s *Session) Resolve() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = false
}

// State returns the current interaction state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending reports whether a scan is in flight (loading indicator shown).
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Live returns the rectangle being dragged, if any.
func (s *Session) Live() (types.SelectionRect, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live, s.state == Dragging
}

// rectTo normalizes the anchor and (x, y) into a positive rectangle.
func (s *Session) rectTo(x, y float64) types.SelectionRect {
	return types.SelectionRect{
		X:                math.Min(s.anchorX, x),
		Y:                math.Min(s.anchorY, y),
		Width:            math.Abs(x - s.anchorX),
		Height:           math.Abs(y - s.anchorY),
		DevicePixelRatio: s.page.DevicePixelRatio,
	}
}
