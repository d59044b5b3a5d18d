package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrNoSource = errors.New("track has no source")

// Decoder turns an audio URI into a PCM buffer.
type Decoder interface {
	LoadAudio(ctx context.Context, uri string) (*Buffer, error)
}

type EventKind int

const (
	EventTimeUpdate EventKind = iota
	EventEnded
	EventError
)

// Event is delivered to track subscribers from the track's pump goroutine.
type Event struct {
	Kind     EventKind
	Position time.Duration
	Duration time.Duration
	Err      error
}

// Subscription is the cancellation token for one Subscribe call.
type Subscription struct {
	t  *Track
	id int
}

// Cancel removes the listener. A delivery already in flight may still
// arrive, so listeners must tolerate one late event.
func (s Subscription) Cancel() {
	if s.t == nil {
		return
	}
	s.t.subMu.Lock()
	delete(s.t.subs, s.id)
	s.t.subMu.Unlock()
}

const (
	pumpInterval   = 20 * time.Millisecond
	updateInterval = 250 * time.Millisecond
)

// Track is a persistent player reused across scenes. Subscribers must not
// block and must not call back into the track.
type Track struct {
	decoder   Decoder
	newOutput OutputFactory

	mu      sync.Mutex
	uri     string
	buf     *Buffer
	pos     int64
	loop    bool
	volume  float32
	playing bool
	out     Output
	stop    context.CancelFunc
	done    chan struct{}

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

func NewTrack(decoder Decoder, newOutput OutputFactory) *Track {
	if newOutput == nil {
		newOutput = Discard
	}
	return &Track{
		decoder:   decoder,
		newOutput: newOutput,
		volume:    1,
		subs:      make(map[int]func(Event)),
	}
}

func (t *Track) SetLoop(loop bool) {
	t.mu.Lock()
	t.loop = loop
	t.mu.Unlock()
}

func (t *Track) SetVolume(v float64) {
	t.mu.Lock()
	t.volume = float32(v)
	t.mu.Unlock()
}

func (t *Track) URI() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.uri
}

// SetSource swaps the track source. An unchanged URI keeps the loaded buffer
// and position. A changed URI stops playback and decodes the new buffer.
func (t *Track) SetSource(ctx context.Context, uri string) error {
	if t.URI() == uri {
		return nil
	}
	t.Pause()

	if uri == "" {
		t.mu.Lock()
		t.uri, t.buf, t.pos = "", nil, 0
		t.mu.Unlock()
		return nil
	}

	buf, err := t.decoder.LoadAudio(ctx, uri)
	if err != nil {
		return err
	}
	t.Load(uri, buf)
	return nil
}

// Load installs an already decoded buffer as the source for uri, stopping
// playback and rewinding.
func (t *Track) Load(uri string, buf *Buffer) {
	t.Pause()
	t.mu.Lock()
	t.uri, t.buf, t.pos = uri, buf, 0
	t.mu.Unlock()
}

func (t *Track) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.Duration()
}

func (t *Track) Position() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.buf == nil {
		return 0
	}
	return framesToDuration(t.pos, t.buf.SampleRate)
}

func (t *Track) Playing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing
}

// Play starts or continues playback from the current position.
func (t *Track) Play() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.buf == nil {
		return ErrNoSource
	}
	if t.playing {
		return nil
	}
	if t.out == nil {
		out, err := t.newOutput(t.buf.SampleRate, t.buf.Channels)
		if err != nil {
			if errors.Is(err, ErrPlaybackBlocked) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrPlaybackBlocked, err)
		}
		t.out = out
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.stop = cancel
	t.done = make(chan struct{})
	t.playing = true
	go t.pump(ctx, t.buf, t.out, t.done)
	return nil
}

// Pause stops the pump and waits for it to exit. The position is kept.
func (t *Track) Pause() {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.playing = false
	t.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
}

func (t *Track) Rewind() {
	t.mu.Lock()
	t.pos = 0
	t.mu.Unlock()
}

func (t *Track) Subscribe(fn func(Event)) Subscription {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	t.nextSub++
	t.subs[t.nextSub] = fn
	return Subscription{t: t, id: t.nextSub}
}

func (t *Track) emit(ev Event) {
	t.subMu.Lock()
	fns := make([]func(Event), 0, len(t.subs))
	for _, fn := range t.subs {
		fns = append(fns, fn)
	}
	t.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (t *Track) Close() error {
	t.Pause()
	t.subMu.Lock()
	t.subs = make(map[int]func(Event))
	t.subMu.Unlock()

	t.mu.Lock()
	out := t.out
	t.out = nil
	t.mu.Unlock()
	if out != nil {
		return out.Close()
	}
	return nil
}

func (t *Track) pump(ctx context.Context, buf *Buffer, out Output, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()

	total := buf.Frames()
	dur := buf.Duration()
	last := time.Now()
	var lastUpdate time.Time
	var chunk []float32

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due := durationToFrames(now.Sub(last), buf.SampleRate)
			if due <= 0 {
				continue
			}
			last = now

			t.mu.Lock()
			from := t.pos
			n := due
			if from+n > total {
				n = total - from
			}
			gain := t.volume
			t.pos += n
			ended := t.pos >= total
			if ended && t.loop {
				t.pos = 0
				ended = false
			}
			if ended {
				t.playing = false
			}
			pos := t.pos
			t.mu.Unlock()

			chunk = chunk[:0]
			for i := from * int64(buf.Channels); i < (from+n)*int64(buf.Channels); i++ {
				chunk = append(chunk, clamp(buf.Samples[i]*gain))
			}
			if len(chunk) > 0 {
				if err := out.Write(chunk); err != nil {
					t.mu.Lock()
					t.playing = false
					t.mu.Unlock()
					t.emit(Event{Kind: EventError, Err: err})
					return
				}
			}

			if ended {
				t.emit(Event{Kind: EventEnded, Position: dur, Duration: dur})
				return
			}
			if now.Sub(lastUpdate) >= updateInterval {
				lastUpdate = now
				t.emit(Event{Kind: EventTimeUpdate, Position: framesToDuration(pos, buf.SampleRate), Duration: dur})
			}
		}
	}
}
