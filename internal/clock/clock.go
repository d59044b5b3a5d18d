// Package clock provides the time sources shared by preview and export and
// the per-scene progress clock.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock reads the current time.
type Clock interface {
	Now() time.Time
}

// Frames paces a draw loop at display cadence.
type Frames interface {
	// Next blocks until the next display frame and returns its time.
	Next(ctx context.Context) (time.Time, error)
	Stop()
}

// Display opens frame streams.
type Display interface {
	Frames() Frames
}

// System is wall-clock time with a time.Ticker frame cadence.
type System struct {
	Interval time.Duration
}

func (System) Now() time.Time { return time.Now() }

func (s System) Frames() Frames {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Second / 30
	}
	return &tickerFrames{t: time.NewTicker(interval)}
}

type tickerFrames struct {
	t *time.Ticker
}

func (f *tickerFrames) Next(ctx context.Context) (time.Time, error) {
	select {
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	case now := <-f.t.C:
		return now, nil
	}
}

func (f *tickerFrames) Stop() { f.t.Stop() }

// Manual is a clock that only moves when told to. Every Next on its frame
// streams advances it by Step and returns at once, so timing loops driven
// by it run without sleeping.
type Manual struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

func NewManual(start time.Time, step time.Duration) *Manual {
	return &Manual{now: start, Step: step}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}

func (m *Manual) Frames() Frames { return manualFrames{m} }

type manualFrames struct{ m *Manual }

func (f manualFrames) Next(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	return f.m.Advance(f.m.Step), nil
}

func (manualFrames) Stop() {}

// VisibleDuration is how long a scene stays on screen: the narration length
// plus padding, or the nominal duration when the scene has no narration.
func VisibleDuration(audio time.Duration, hasAudio bool, padding, nominal time.Duration) time.Duration {
	if !hasAudio {
		return nominal
	}
	return audio + padding
}
