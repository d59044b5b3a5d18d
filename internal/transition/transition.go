// Package transition maps a scene layer to its presentation state for the
// interactive preview. The export path never consults it.
package transition

import (
	"fmt"
	"strings"
	"time"
)

type Effect string

const (
	None  Effect = "none"
	Fade  Effect = "fade"
	Zoom  Effect = "zoom"
	Slide Effect = "slide"
)

func ParseEffect(s string) (Effect, error) {
	switch e := Effect(strings.ToLower(strings.TrimSpace(s))); e {
	case None, Fade, Zoom, Slide:
		return e, nil
	case "":
		return Fade, nil
	}
	return "", fmt.Errorf("unknown transition effect %q (want none, fade, zoom or slide)", s)
}

// Duration is how long the surface animates between two states of e.
func (e Effect) Duration() time.Duration {
	switch e {
	case Fade:
		return 700 * time.Millisecond
	case Zoom:
		return 1000 * time.Millisecond
	case Slide:
		return 500 * time.Millisecond
	}
	return 0
}

// State is the presentation of one layer. OffsetX is in surface widths:
// -1 is fully off-screen to the left, +1 fully off-screen to the right.
type State struct {
	Rendered bool
	Opacity  float64
	Scale    float64
	OffsetX  float64
	Z        int
	Duration time.Duration
}

// Present returns the state of the layer at index while activeIndex is on
// screen. It has no side effects.
func Present(index, activeIndex int, effect Effect) State {
	active := index == activeIndex
	st := State{
		Rendered: true,
		Opacity:  1,
		Scale:    1,
		Duration: effect.Duration(),
	}
	if active {
		st.Z = 1
	}

	switch effect {
	case Fade:
		if !active {
			st.Opacity = 0
		}
	case Zoom:
		if !active {
			st.Opacity = 0
			st.Scale = 1.1
		}
	case Slide:
		switch {
		case index < activeIndex:
			st.OffsetX = -1
		case index > activeIndex:
			st.OffsetX = 1
		}
	default:
		if !active {
			return State{}
		}
	}
	return st
}

// Visible reports whether a layer in this state contributes pixels.
func (s State) Visible() bool {
	return s.Rendered && s.Opacity > 0 && s.OffsetX > -1 && s.OffsetX < 1
}
