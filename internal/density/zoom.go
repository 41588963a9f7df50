package density

import "sslScope/internal/model"

const (
	// InitialTicksToFetch is the number of tick-spacing steps loaded on each
	// side of the active tick for a new chart.
	InitialTicksToFetch = 100
	// ZoomInterval is the number of bars added or removed per zoom step on
	// each side.
	ZoomInterval = 20
)

// ZoomState is the visible [Left, Right) slice of the chart entries.
type ZoomState struct {
	Left  int `json:"left"`
	Right int `json:"right"`
}

// AmountTicks is the number of processed ticks in a full window of n steps
// per side.
func AmountTicks(n int) int {
	return 2*n + 1
}

// Visible returns the entries inside the zoom, clamped to the slice.
func (z ZoomState) Visible(entries []model.ChartEntry) []model.ChartEntry {
	left, right := clamp(z.Left, 0, len(entries)), clamp(z.Right, 0, len(entries))
	if left >= right {
		return nil
	}
	return entries[left:right]
}

// Zoom tracks the zoom state and the fetch size it implies. It is not safe
// for concurrent use.
type Zoom struct {
	state        ZoomState
	ticksToFetch int
	initialTicks int
	step         int
}

func NewZoom(initialTicks, step int) *Zoom {
	if initialTicks <= 0 {
		initialTicks = InitialTicksToFetch
	}
	if step <= 0 {
		step = ZoomInterval
	}
	z := &Zoom{initialTicks: initialTicks, step: step}
	z.Reset()
	return z
}

// Reset returns to the initial window.
func (z *Zoom) Reset() {
	z.ticksToFetch = z.initialTicks
	z.state = ZoomState{Left: 0, Right: AmountTicks(z.ticksToFetch)}
}

func (z *Zoom) State() ZoomState { return z.state }

// TicksToFetch is the number of steps per side the chart needs loaded.
func (z *Zoom) TicksToFetch() int { return z.ticksToFetch }

func (z *Zoom) AtZoomMax() bool {
	return z.state.Left+z.step >= z.state.Right-z.step-1
}

func (z *Zoom) AtZoomMin() bool {
	return z.state.Left-z.step < 0
}

// ZoomIn narrows the view by one step on each side. It reports false when
// already at the maximum zoom.
func (z *Zoom) ZoomIn() bool {
	if z.AtZoomMax() {
		return false
	}
	z.state = ZoomState{Left: z.state.Left + z.step, Right: z.state.Right - z.step}
	return true
}

// ZoomOut widens the view by one step on each side. At the minimum zoom it
// grows the fetch size instead and shows the whole new window; the returned
// value reports that a refetch is needed.
func (z *Zoom) ZoomOut() (widened bool) {
	if z.AtZoomMin() {
		z.ticksToFetch += z.step
		z.state = ZoomState{Left: 0, Right: AmountTicks(z.ticksToFetch)}
		return true
	}
	z.state = ZoomState{Left: z.state.Left - z.step, Right: z.state.Right + z.step}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
