package audio

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

type fakeNow struct{ t time.Time }

func (f *fakeNow) now() time.Time           { return f.t }
func (f *fakeNow) advance(d time.Duration) { f.t = f.t.Add(d) }

func constBuffer(t *testing.T, rate, channels, frames int, v float32) *Buffer {
	t.Helper()
	samples := make([]float32, frames*channels)
	for i := range samples {
		samples[i] = v
	}
	buf, err := NewBuffer(rate, channels, samples)
	if err != nil {
		t.Fatal(err)
	}
	return buf
}

func TestGraphStopCutsSource(t *testing.T) {
	clk := &fakeNow{t: time.Unix(0, 0)}
	g := NewGraph(1000, 1, clk.now)
	defer g.Close()

	src, err := g.NewBufferSource(constBuffer(t, 1000, 1, 500, 0.5), 1, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := src.Start(g.CurrentTime()); err != nil {
		t.Fatal(err)
	}
	clk.advance(300 * time.Millisecond)
	src.Stop()
	src.Stop()

	out := make([]float32, 1000)
	g.Render(out)
	for i, v := range out {
		want := float32(0)
		if i < 300 {
			want = 0.5
		}
		if v != want {
			t.Fatalf("frame %d: got %v, want %v", i, v, want)
		}
	}

	events := g.Events()
	if len(events) != 2 {
		t.Fatalf("Expected start and stop events, got %+v", events)
	}
	if events[0].Kind != "start" || events[0].At != 0 {
		t.Errorf("Unexpected start event %+v", events[0])
	}
	if events[1].Kind != "stop" || events[1].At != 300*time.Millisecond {
		t.Errorf("Unexpected stop event %+v", events[1])
	}
}

func TestGraphMixing(t *testing.T) {
	tests := []struct {
		name     string
		channels int
		bufCh    int
		gains    []float64
		loop     bool
		frames   int
		want     float32
	}{
		{"mono into stereo", 2, 1, []float64{1}, false, 100, 0.5},
		{"clamped sum", 1, 1, []float64{1, 1, 1}, false, 100, 1},
		{"gain", 1, 1, []float64{0.2}, false, 100, 0.1},
		{"loop past end", 1, 1, []float64{1}, true, 400, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := &fakeNow{t: time.Unix(0, 0)}
			g := NewGraph(1000, tt.channels, clk.now)
			defer g.Close()
			for _, gain := range tt.gains {
				src, err := g.NewBufferSource(constBuffer(t, 1000, tt.bufCh, 100, 0.5), gain, tt.loop)
				if err != nil {
					t.Fatal(err)
				}
				if err := src.Start(0); err != nil {
					t.Fatal(err)
				}
			}
			out := make([]float32, tt.frames*tt.channels)
			g.Render(out)
			for i, v := range out {
				if diff := v - tt.want; diff > 1e-6 || diff < -1e-6 {
					t.Fatalf("sample %d: got %v, want %v", i, v, tt.want)
				}
			}
		})
	}
}

func TestGraphNaturalEndIsSilent(t *testing.T) {
	g := NewGraph(1000, 1, (&fakeNow{t: time.Unix(0, 0)}).now)
	src, _ := g.NewBufferSource(constBuffer(t, 1000, 1, 50, 0.5), 1, false)
	src.Start(0)

	out := make([]float32, 100)
	g.Render(out)
	if out[49] != 0.5 || out[50] != 0 {
		t.Errorf("Expected silence after buffer end, got %v %v", out[49], out[50])
	}
	if g.Active() != 0 {
		t.Errorf("Ended source still active")
	}
}

func TestBufferSourceRules(t *testing.T) {
	g := NewGraph(1000, 1, nil)
	if _, err := g.NewBufferSource(constBuffer(t, 44100, 1, 10, 0), 1, false); err == nil {
		t.Error("Expected sample rate mismatch error")
	}
	src, err := g.NewBufferSource(constBuffer(t, 1000, 1, 10, 0), 1, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := src.Start(0); err != nil {
		t.Fatal(err)
	}
	if err := src.Start(0); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Expected ErrAlreadyStarted, got %v", err)
	}
	g.Close()
	if _, err := g.NewBufferSource(constBuffer(t, 1000, 1, 10, 0), 1, false); !errors.Is(err, ErrGraphClosed) {
		t.Errorf("Expected ErrGraphClosed, got %v", err)
	}
}

type cancelWriter struct {
	bytes.Buffer
	cancel context.CancelFunc
}

func (w *cancelWriter) Write(p []byte) (int, error) {
	defer w.cancel()
	return w.Buffer.Write(p)
}

func TestGraphStreamFollowsClock(t *testing.T) {
	clk := &fakeNow{t: time.Unix(0, 0)}
	g := NewGraph(1000, 2, clk.now)
	clk.advance(100 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	w := &cancelWriter{cancel: cancel}
	if err := g.Stream(ctx, w, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	// 100ms at 1kHz stereo, 4 bytes per sample.
	if w.Len() != 100*2*4 {
		t.Errorf("Expected 800 bytes, got %d", w.Len())
	}

	decoded, err := DecodeF32LE(bytes.NewReader(w.Bytes()), 1000, 2)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Duration() != 100*time.Millisecond {
		t.Errorf("Expected 100ms of audio, got %v", decoded.Duration())
	}
}

func TestGraphAnchorMovesOrigin(t *testing.T) {
	clk := &fakeNow{t: time.Unix(0, 0)}
	g := NewGraph(1000, 1, clk.now)
	clk.advance(300 * time.Millisecond)
	g.Anchor(clk.now())
	if got := g.CurrentTime(); got != 0 {
		t.Fatalf("Expected graph time 0 after anchoring, got %v", got)
	}

	clk.advance(40 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	w := &cancelWriter{cancel: cancel}
	if err := g.Stream(ctx, w, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	// Only the 40ms after the anchor are rendered.
	if w.Len() != 40*4 {
		t.Errorf("Expected 160 bytes, got %d", w.Len())
	}
}
