package selector

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/proofpulse/pkg/types"
)

var page = Page{URL: "https://example.com/login", DevicePixelRatio: 2}

func TestSelectionLifecycle(t *testing.T) {
	s := NewSession("tab-1", page)
	assert.Equal(t, Idle, s.State())

	require.True(t, s.Start())
	assert.Equal(t, Armed, s.State())

	require.True(t, s.PointerDown(300, 200))
	assert.Equal(t, Dragging, s.State())

	require.True(t, s.PointerMove(100, 250))
	live, dragging := s.Live()
	require.True(t, dragging)
	assert.Equal(t, types.SelectionRect{X: 100, Y: 200, Width: 200, Height: 50, DevicePixelRatio: 2}, live)

	req, ok := s.PointerUp(100, 260)
	require.True(t, ok)
	assert.Equal(t, "tab-1", req.TabID)
	assert.Equal(t, "https://example.com/login", req.PageURL)
	assert.Equal(t, types.SelectionRect{X: 100, Y: 200, Width: 200, Height: 60, DevicePixelRatio: 2}, req.Area)

	assert.Equal(t, Idle, s.State())
	assert.True(t, s.Pending())
	_, dragging = s.Live()
	assert.False(t, dragging)

	s.Resolve()
	assert.False(t, s.Pending())
}

func TestSmallSelectionsAreDiscarded(t *testing.T) {
	tests := []struct {
		name   string
		dx, dy float64
		emit   bool
	}{
		{"click", 0, 0, false},
		{"narrow", 4, 100, false},
		{"short", 100, 4.9, false},
		{"minimum", 5, 5, true},
		{"negative drag", -40, -40, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession("t", page)
			require.True(t, s.Start())
			require.True(t, s.PointerDown(50, 50))
			req, ok := s.PointerUp(50+tt.dx, 50+tt.dy)
			assert.Equal(t, tt.emit, ok)
			assert.Equal(t, tt.emit, s.Pending())
			assert.Equal(t, Idle, s.State())
			if ok {
				assert.GreaterOrEqual(t, req.Area.Width, float64(types.MinSelectionSize))
				assert.GreaterOrEqual(t, req.Area.Height, float64(types.MinSelectionSize))
			}
		})
	}
}

func TestStartIsIdempotent(t *testing.T) {
	s := NewSession("t", page)
	require.True(t, s.Start())

	assert.False(t, s.Start(), "start while armed")
	require.True(t, s.PointerDown(0, 0))
	assert.False(t, s.Start(), "start while dragging")
	assert.Equal(t, Dragging, s.State())

	_, ok := s.PointerUp(40, 40)
	require.True(t, ok)
	assert.False(t, s.Start(), "start while pending")

	s.Resolve()
	assert.True(t, s.Start())
}

func TestClaimHoldsOneScanInFlight(t *testing.T) {
	s := NewSession("t", page)
	require.True(t, s.Start())
	require.True(t, s.PointerDown(0, 0))

	require.True(t, s.Claim())
	assert.True(t, s.Pending())
	assert.Equal(t, Idle, s.State())
	_, dragging := s.Live()
	assert.False(t, dragging)

	assert.False(t, s.Claim(), "second claim while pending")
	assert.False(t, s.Start(), "start while pending")

	s.Resolve()
	assert.True(t, s.Claim())
}

func TestEventsOutOfOrderAreIgnored(t *testing.T) {
	s := NewSession("t", page)
	assert.False(t, s.PointerDown(1, 1))
	assert.False(t, s.PointerMove(1, 1))
	_, ok := s.PointerUp(30, 30)
	assert.False(t, ok)

	require.True(t, s.Start())
	assert.False(t, s.PointerMove(1, 1))
	_, ok = s.PointerUp(30, 30)
	assert.False(t, ok)
}

func TestCancel(t *testing.T) {
	s := NewSession("t", page)
	assert.False(t, s.Cancel())

	require.True(t, s.Start())
	require.True(t, s.PointerDown(0, 0))
	require.True(t, s.Cancel())
	assert.Equal(t, Idle, s.State())
	assert.False(t, s.Pending())
	_, dragging := s.Live()
	assert.False(t, dragging)
}

func TestMissingDPRIsCarriedThrough(t *testing.T) {
	s := NewSession("t", Page{URL: "https://example.com"})
	require.True(t, s.Start())
	require.True(t, s.PointerDown(0, 0))
	req, ok := s.PointerUp(10, 10)
	require.True(t, ok)
	assert.Equal(t, 0.0, req.Area.DevicePixelRatio)
	assert.Equal(t, 1.0, req.Area.Scale())
}

func TestRegistryConcurrentStart(t *testing.T) {
	r := NewRegistry()
	var armed atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Start("tab", page) {
				armed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), armed.Load())
	assert.Equal(t, 1, r.Len())

	s, ok := r.Lookup("tab")
	require.True(t, ok)
	assert.Equal(t, Armed, s.State())
}

func TestRegistrySessionsAreIndependent(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.Start("a", page))
	require.True(t, r.Start("b", page))

	a, _ := r.Lookup("a")
	require.True(t, a.PointerDown(0, 0))
	_, ok := a.PointerUp(20, 20)
	require.True(t, ok)

	b, _ := r.Lookup("b")
	assert.Equal(t, Armed, b.State())
	assert.False(t, b.Pending())

	r.Remove("a")
	_, ok = r.Lookup("a")
	assert.False(t, ok)
}
