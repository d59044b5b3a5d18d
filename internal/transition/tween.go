package transition

// Tween interpolates between two layer states. t is the elapsed fraction of
// the transition and is eased with a cubic in-out curve.
func Tween(from, to State, t float64) State {
	if t <= 0 {
		return merge(from, to)
	}
	if t >= 1 {
		return to
	}
	e := easeInOutCubic(t)
	st := State{
		Rendered: from.Rendered || to.Rendered,
		Opacity:  lerp(from.Opacity, to.Opacity, e),
		Scale:    lerp(scaleOf(from), scaleOf(to), e),
		OffsetX:  lerp(from.OffsetX, to.OffsetX, e),
		Z:        to.Z,
		Duration: to.Duration,
	}
	return st
}

// merge keeps a layer that is about to animate in rendered at its start
// state, so the first frame of the transition is not skipped.
func merge(from, to State) State {
	if !from.Rendered {
		return State{}
	}
	from.Z = to.Z
	from.Duration = to.Duration
	return from
}

func scaleOf(s State) float64 {
	if s.Scale == 0 {
		return 1
	}
	return s.Scale
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - pow(-2*t+2, 3)/2
}

func pow(x float64, n int) float64 {
	result := 1.0
	for i := 0; i < n; i++ {
		result *= x
	}
	return result
}
