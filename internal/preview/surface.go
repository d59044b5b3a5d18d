package preview

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/ivlev/storyreel/internal/clock"
	"github.com/ivlev/storyreel/internal/compositor"
	"github.com/ivlev/storyreel/internal/source"
	"github.com/ivlev/storyreel/internal/system"
	"github.com/ivlev/storyreel/internal/transition"
)

// FrameSource is what the surface reads every frame. *Player implements it.
type FrameSource interface {
	Snapshot() Snapshot
	Visual(i int) (source.Visual, bool)
}

// FrameSink receives every composed frame, e.g. a video.MJPEGSink.
type FrameSink interface {
	WriteFrame(img image.Image) error
}

type layerAnim struct {
	from, to transition.State
	changed  time.Time
	started  bool
}

func (a *layerAnim) at(now time.Time) transition.State {
	if !a.started {
		return a.to
	}
	d := a.to.Duration
	if d <= 0 {
		return a.to
	}
	return transition.Tween(a.from, a.to, float64(now.Sub(a.changed))/float64(d))
}

// retarget starts a new animation from wherever the layer is now.
func (a *layerAnim) retarget(to transition.State, now time.Time) {
	if to == a.to {
		return
	}
	if a.started {
		a.from = a.at(now)
	} else {
		a.from = a.to
	}
	a.to = to
	a.changed = now
	a.started = true
}

type layerCache struct {
	img *image.RGBA
	src image.Image
	err string
}

// Surface composes the layered preview frame from player snapshots.
type Surface struct {
	src    FrameSource
	comp   *compositor.Compositor
	size   image.Point
	scaler draw.Scaler
	sink   FrameSink
	log    *zap.Logger

	anims map[int]*layerAnim
	cache map[int]*layerCache
	back  *image.RGBA

	mu    sync.Mutex
	front *image.RGBA
	drawn int
}

func NewSurface(src FrameSource, comp *compositor.Compositor, size image.Point, sink FrameSink, log *zap.Logger) *Surface {
	if log == nil {
		log = zap.NewNop()
	}
	rect := image.Rectangle{Max: size}
	return &Surface{
		src:    src,
		comp:   comp,
		size:   size,
		scaler: draw.ApproxBiLinear,
		sink:   sink,
		log:    log,
		anims:  make(map[int]*layerAnim),
		cache:  make(map[int]*layerCache),
		back:   image.NewRGBA(rect),
		front:  image.NewRGBA(rect),
	}
}

func (s *Surface) Run(ctx context.Context, display clock.Display) error {
	frames := display.Frames()
	defer frames.Stop()
	for {
		now, err := frames.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if err := s.Draw(now); err != nil {
			return err
		}
	}
}

// Draw composes the frame for now and hands it to the sink.
func (s *Surface) Draw(now time.Time) error {
	snap := s.src.Snapshot()
	dst := s.back
	draw.Draw(dst, dst.Bounds(), image.Black, image.Point{}, draw.Src)

	type layer struct {
		index int
		state transition.State
	}
	var layers []layer
	for i, target := range snap.Layers {
		a, ok := s.anims[i]
		if !ok {
			a = &layerAnim{to: target}
			s.anims[i] = a
		}
		a.retarget(target, now)
		if st := a.at(now); st.Visible() {
			layers = append(layers, layer{i, st})
		}
	}
	sort.SliceStable(layers, func(a, b int) bool { return layers[a].state.Z < layers[b].state.Z })

	keep := make(map[int]bool, len(layers))
	for _, l := range layers {
		keep[l.index] = true
		img, err := s.layerImage(l.index, snap)
		if err != nil {
			return err
		}
		s.blend(dst, img, l.state)
	}
	s.release(keep)

	s.mu.Lock()
	s.back, s.front = s.front, dst
	s.drawn++
	s.mu.Unlock()

	if s.sink != nil {
		if err := s.sink.WriteFrame(dst); err != nil {
			return err
		}
	}
	return nil
}

func (s *Surface) Frame() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := image.NewRGBA(s.front.Bounds())
	copy(out.Pix, s.front.Pix)
	return out
}

func (s *Surface) Drawn() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drawn
}

// layerImage renders the full-frame image of scene i, reusing the previous
// render while its visual frame and error are unchanged.
func (s *Surface) layerImage(i int, snap Snapshot) (*image.RGBA, error) {
	view := snap.Scenes[i]
	var frame image.Image
	if v, ok := s.src.Visual(i); ok {
		frame = v.Frame()
	}

	c, ok := s.cache[i]
	if ok && c.src == frame && c.err == view.Err && frame != nil {
		return c.img, nil
	}
	if !ok {
		c = &layerCache{img: system.GetImage(image.Rectangle{Max: s.size})}
		s.cache[i] = c
	}
	c.src, c.err = frame, view.Err

	if view.Err != "" && frame == nil {
		return c.img, s.comp.RenderError(c.img, view.Err)
	}
	return c.img, s.comp.Render(c.img, frame, view.Narration)
}

func (s *Surface) release(keep map[int]bool) {
	for i, c := range s.cache {
		if !keep[i] {
			system.PutImage(c.img)
			delete(s.cache, i)
		}
	}
}

// blend draws one layer: scaled about the center, shifted by OffsetX
// surface widths and weighted by opacity.
func (s *Surface) blend(dst, img *image.RGBA, st transition.State) {
	b := dst.Bounds()
	scale := st.Scale
	if scale <= 0 {
		scale = 1
	}
	w := int(math.Round(float64(b.Dx()) * scale))
	h := int(math.Round(float64(b.Dy()) * scale))
	x := b.Min.X + (b.Dx()-w)/2 + int(math.Round(st.OffsetX*float64(b.Dx())))
	y := b.Min.Y + (b.Dy()-h)/2
	r := image.Rect(x, y, x+w, y+h)

	var mask image.Image
	if st.Opacity < 1 {
		mask = image.NewUniform(color.Alpha{A: uint8(math.Round(st.Opacity * 255))})
	}
	if w == b.Dx() && h == b.Dy() {
		draw.DrawMask(dst, r, img, img.Bounds().Min, mask, image.Point{}, draw.Over)
		return
	}
	s.scaler.Scale(dst, r, img, img.Bounds(), draw.Over, &draw.Options{DstMask: mask})
}

func (s *Surface) Close() {
	s.release(nil)
}
