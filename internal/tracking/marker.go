package tracking

import (
	"sync"
	"time"
)

const (
	DefaultAnimationDuration = time.Second
	DefaultFrameInterval     = 50 * time.Millisecond
)

// Frame is one rendered marker position. Final is set on the last frame of
// an animation and on snaps.
type Frame struct {
	Point
	Final bool
}

type MarkerOptions struct {
	AnimationDuration time.Duration
	FrameInterval     time.Duration
}

// Marker smooths a moving position on the consumer side. The first update
// snaps; later ones animate from the currently rendered point. A newer
// update supersedes the animation in flight.
type Marker struct {
	render   func(Frame)
	duration time.Duration
	interval time.Duration

	mu      sync.Mutex
	current *Point
	gen     uint64
	stopped bool
}

// NewMarker calls render for every frame. render runs with the marker's
// lock held and must not call back into the Marker.
func NewMarker(render func(Frame), opts MarkerOptions) *Marker {
	if opts.AnimationDuration <= 0 {
		opts.AnimationDuration = DefaultAnimationDuration
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultFrameInterval
	}
	if opts.FrameInterval > opts.AnimationDuration {
		opts.FrameInterval = opts.AnimationDuration
	}
	return &Marker{
		render:   render,
		duration: opts.AnimationDuration,
		interval: opts.FrameInterval,
	}
}

func (m *Marker) Position() (Point, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Point{}, false
	}
	return *m.current, true
}

func (m *Marker) Update(to Point) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}
	m.gen++

	if m.current == nil {
		m.renderLocked(to, true)
		return
	}

	go m.animate(m.gen, *m.current, to)
}

// Stop ends any animation in flight and ignores later updates.
func (m *Marker) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.gen++
	m.mu.Unlock()
}

func (m *Marker) animate(gen uint64, from, to Point) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	start := time.Now()

	for range ticker.C {
		progress := float64(time.Since(start)) / float64(m.duration)
		final := progress >= 1
		p := to
		if !final {
			p = Lerp(from, to, progress)
		}

		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		m.renderLocked(p, final)
		m.mu.Unlock()

		if final {
			return
		}
	}
}

func (m *Marker) renderLocked(p Point, final bool) {
	m.current = &p
	if m.render != nil {
		m.render(Frame{Point: p, Final: final})
	}
}
