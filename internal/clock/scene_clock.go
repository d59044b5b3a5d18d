package clock

import (
	"context"
	"time"

	"github.com/ivlev/storyreel/internal/audio"
)

type EventKind int

const (
	EventProgress EventKind = iota
	EventComplete
	EventError
)

// Event is a progress notification tagged with the subscription token that
// produced it.
type Event struct {
	Token    uint64
	Kind     EventKind
	Progress float64
	Err      error
}

// PositionSource is a narration player the clock can follow.
type PositionSource interface {
	Subscribe(fn func(audio.Event)) audio.Subscription
}

type Mode int

const (
	ModeIdle Mode = iota
	ModeAudio
	ModeFallback
)

// SceneClock reports the active scene's progress in [0,100]. It follows the
// narration track when the scene has audio and otherwise runs a per-frame
// loop over a nominal duration. It owns at most one subscription at a time;
// every method must be called from the owner's goroutine, and events
// delivered through post must be fed back through Handle there.
type SceneClock struct {
	clock   Clock
	display Display
	nominal time.Duration
	post    func(Event)

	mode     Mode
	token    uint64
	progress float64

	anchor time.Time
	sub    audio.Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSceneClock creates an idle clock. post must not block.
func NewSceneClock(c Clock, d Display, nominal time.Duration, post func(Event)) *SceneClock {
	return &SceneClock{clock: c, display: d, nominal: nominal, post: post}
}

func (sc *SceneClock) Mode() Mode        { return sc.mode }
func (sc *SceneClock) Token() uint64     { return sc.token }
func (sc *SceneClock) Progress() float64 { return sc.progress }
func (sc *SceneClock) Running() bool     { return sc.cancel != nil }

// Begin tears down the previous subscription and starts timing a new scene
// at progress 0. A nil src selects fallback mode; the fallback loop starts
// on Resume.
func (sc *SceneClock) Begin(src PositionSource) uint64 {
	sc.teardown()
	sc.progress = 0
	if src == nil {
		sc.mode = ModeFallback
		return sc.token
	}

	sc.mode = ModeAudio
	tok := sc.token
	sc.sub = src.Subscribe(func(ev audio.Event) {
		switch ev.Kind {
		case audio.EventTimeUpdate:
			p := 0.0
			if ev.Duration > 0 {
				p = float64(ev.Position) / float64(ev.Duration) * 100
			}
			sc.post(Event{Token: tok, Kind: EventProgress, Progress: p})
		case audio.EventEnded:
			sc.post(Event{Token: tok, Kind: EventComplete, Progress: 100})
		case audio.EventError:
			sc.post(Event{Token: tok, Kind: EventError, Err: ev.Err})
		}
	})
	return tok
}

// Resume starts the fallback loop from the current progress. The anchor is
// derived from progress so the elapsed fraction survives a pause.
func (sc *SceneClock) Resume() {
	if sc.mode != ModeFallback || sc.cancel != nil {
		return
	}
	sc.token++
	anchor := sc.clock.Now().Add(-time.Duration(sc.progress / 100 * float64(sc.nominal)))
	sc.anchor = anchor

	ctx, cancel := context.WithCancel(context.Background())
	sc.cancel = cancel
	sc.done = make(chan struct{})
	go sc.loop(ctx, sc.token, anchor, sc.done)
}

// Pause stops the fallback loop and freezes progress at the current time.
func (sc *SceneClock) Pause() {
	if sc.mode != ModeFallback || sc.cancel == nil {
		return
	}
	sc.stopLoop()
	sc.token++
	elapsed := sc.clock.Now().Sub(sc.anchor)
	sc.progress = clampProgress(float64(elapsed) / float64(sc.nominal) * 100)
}

// Reset drops any subscription and returns to idle at progress 0.
func (sc *SceneClock) Reset() {
	sc.teardown()
	sc.mode = ModeIdle
	sc.progress = 0
}

// Handle applies an event. Events carrying a stale token are dropped. It
// reports whether the scene completed.
func (sc *SceneClock) Handle(ev Event) (complete bool) {
	if ev.Token != sc.token || sc.mode == ModeIdle {
		return false
	}
	switch ev.Kind {
	case EventProgress:
		sc.progress = clampProgress(ev.Progress)
	case EventComplete:
		sc.progress = 100
		sc.teardown()
		return true
	}
	return false
}

func (sc *SceneClock) teardown() {
	sc.sub.Cancel()
	sc.sub = audio.Subscription{}
	if sc.cancel != nil {
		sc.stopLoop()
	}
	sc.token++
}

// stopLoop cancels the fallback loop and waits for it to exit.
func (sc *SceneClock) stopLoop() {
	sc.cancel()
	<-sc.done
	sc.cancel, sc.done = nil, nil
}

func (sc *SceneClock) loop(ctx context.Context, tok uint64, anchor time.Time, done chan struct{}) {
	defer close(done)
	frames := sc.display.Frames()
	defer frames.Stop()

	for {
		now, err := frames.Next(ctx)
		if err != nil {
			return
		}
		p := float64(now.Sub(anchor)) / float64(sc.nominal) * 100
		if p >= 100 {
			sc.post(Event{Token: tok, Kind: EventComplete, Progress: 100})
			return
		}
		sc.post(Event{Token: tok, Kind: EventProgress, Progress: clampProgress(p)})
	}
}

func clampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
