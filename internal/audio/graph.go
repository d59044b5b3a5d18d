package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

var (
	ErrGraphClosed    = errors.New("audio graph closed")
	ErrAlreadyStarted = errors.New("buffer source already started")
)

// SourceEvent records when a source started or stopped on the graph clock.
type SourceEvent struct {
	Source int
	Kind   string // "start" or "stop"
	At     time.Duration
}

// Graph is an off-screen mixing graph owned by one export session. Every
// source feeds the single shared output; the graph clock starts at creation.
type Graph struct {
	mu         sync.Mutex
	sampleRate int
	channels   int
	now        func() time.Time
	origin     time.Time
	sources    []*BufferSource
	rendered   int64
	events     []SourceEvent
	nextID     int
	closed     bool
}

func NewGraph(sampleRate, channels int, now func() time.Time) *Graph {
	if now == nil {
		now = time.Now
	}
	return &Graph{
		sampleRate: sampleRate,
		channels:   channels,
		now:        now,
		origin:     now(),
	}
}

func (g *Graph) SampleRate() int { return g.sampleRate }
func (g *Graph) Channels() int   { return g.channels }

// CurrentTime is the graph clock: time elapsed since the graph was created
// or last anchored.
func (g *Graph) CurrentTime() time.Duration {
	g.mu.Lock()
	origin := g.origin
	g.mu.Unlock()
	return g.now().Sub(origin)
}

// Anchor moves the graph clock origin to at. It must be called before any
// source starts or any output is rendered.
func (g *Graph) Anchor(at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.origin = at
}

// BufferSource is a one-shot player of a decoded buffer.
type BufferSource struct {
	g          *Graph
	id         int
	buf        *Buffer
	gain       float32
	loop       bool
	started    bool
	startFrame int64
	stopFrame  int64 // -1 until Stop
}

func (g *Graph) NewBufferSource(buf *Buffer, gain float64, loop bool) (*BufferSource, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, ErrGraphClosed
	}
	if buf == nil || buf.Frames() == 0 {
		return nil, fmt.Errorf("empty buffer")
	}
	if buf.SampleRate != g.sampleRate {
		return nil, fmt.Errorf("buffer rate %d Hz does not match graph rate %d Hz", buf.SampleRate, g.sampleRate)
	}
	g.nextID++
	src := &BufferSource{g: g, id: g.nextID, buf: buf, gain: float32(gain), loop: loop, stopFrame: -1}
	g.sources = append(g.sources, src)
	return src, nil
}

func (s *BufferSource) ID() int { return s.id }

// Start schedules playback at graph time at (use CurrentTime for "now").
func (s *BufferSource) Start(at time.Duration) error {
	g := s.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrGraphClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.startFrame = durationToFrames(at, g.sampleRate)
	g.events = append(g.events, SourceEvent{Source: s.id, Kind: "start", At: at})
	return nil
}

// Stop ends playback at the current graph time, regardless of how much of
// the buffer is left. Stopping twice is a no-op.
func (s *BufferSource) Stop() {
	g := s.g
	at := g.CurrentTime()
	g.mu.Lock()
	defer g.mu.Unlock()
	if !s.started || s.stopFrame >= 0 {
		return
	}
	s.stopFrame = durationToFrames(at, g.sampleRate)
	if s.stopFrame < s.startFrame {
		s.stopFrame = s.startFrame
	}
	g.events = append(g.events, SourceEvent{Source: s.id, Kind: "stop", At: at})
}

// Render mixes the next len(dst)/channels frames of the output into dst.
func (g *Graph) Render(dst []float32) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := range dst {
		dst[i] = 0
	}
	frames := int64(len(dst) / g.channels)
	from := g.rendered

	live := g.sources[:0]
	for _, s := range g.sources {
		g.mix(s, dst, from, frames)
		if !s.finishedBy(from + frames) {
			live = append(live, s)
		}
	}
	g.sources = live

	for i := range dst {
		dst[i] = clamp(dst[i])
	}
	g.rendered += frames
}

func (g *Graph) mix(s *BufferSource, dst []float32, from, frames int64) {
	if !s.started {
		return
	}
	total := s.buf.Frames()
	for f := int64(0); f < frames; f++ {
		abs := from + f
		if abs < s.startFrame || (s.stopFrame >= 0 && abs >= s.stopFrame) {
			continue
		}
		idx := abs - s.startFrame
		if s.loop {
			idx %= total
		} else if idx >= total {
			break
		}
		for ch := 0; ch < g.channels; ch++ {
			dst[int(f)*g.channels+ch] += s.buf.At(idx, ch) * s.gain
		}
	}
}

func (s *BufferSource) finishedBy(frame int64) bool {
	if !s.started {
		return false
	}
	if s.stopFrame >= 0 && frame >= s.stopFrame {
		return true
	}
	return !s.loop && frame >= s.startFrame+s.buf.Frames()
}

// Stream renders the output in real time into w as f32le until ctx is done
// or the graph is closed. Each tick renders exactly the frames the graph
// clock has advanced by, so the written audio tracks wall-clock time.
func (g *Graph) Stream(ctx context.Context, w io.Writer, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var chunk []float32
	var out []byte
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		g.mu.Lock()
		closed := g.closed
		due := durationToFrames(g.now().Sub(g.origin), g.sampleRate) - g.rendered
		g.mu.Unlock()
		if closed {
			return nil
		}
		if due <= 0 {
			continue
		}

		n := int(due) * g.channels
		if cap(chunk) < n {
			chunk = make([]float32, n)
		}
		chunk = chunk[:n]
		g.Render(chunk)
		out = EncodeF32LE(out[:0], chunk)
		if _, err := w.Write(out); err != nil {
			return fmt.Errorf("write audio: %w", err)
		}
	}
}

func (g *Graph) Events() []SourceEvent {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := make([]SourceEvent, len(g.events))
	copy(cp, g.events)
	return cp
}

// Active reports how many sources are started and not yet stopped or ended.
func (g *Graph) Active() int {
	at := durationToFrames(g.CurrentTime(), g.sampleRate)
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, s := range g.sources {
		if s.started && !s.finishedBy(at) && at >= s.startFrame {
			n++
		}
	}
	return n
}

// Close releases every source. Later calls on the graph fail or no-op.
func (g *Graph) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.sources = nil
}
