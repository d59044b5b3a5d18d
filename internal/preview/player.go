// Package preview runs the interactive preview: a single controller
// goroutine owns the timeline, the scene clock and the playback context,
// and a raster surface renders its snapshots with animated transitions.
package preview

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ivlev/storyreel/internal/audio"
	"github.com/ivlev/storyreel/internal/clock"
	"github.com/ivlev/storyreel/internal/scene"
	"github.com/ivlev/storyreel/internal/source"
	"github.com/ivlev/storyreel/internal/transition"
)

type SceneView struct {
	ID        string
	Narration string
	Status    scene.Status
	HasAudio  bool
	Loaded    bool
	Err       string
}

// Snapshot is an immutable view of the player state.
type Snapshot struct {
	Index    int
	Progress float64
	Playing  bool
	Blocked  bool
	Mode     clock.Mode
	Effect   transition.Effect
	Scenes   []SceneView
	Layers   []transition.State
	Wraps    int
	At       time.Time
}

type Options struct {
	Effect  transition.Effect
	Nominal time.Duration
	Music   string
	// OnChange is called from the controller goroutine after every state
	// change. It must not block.
	OnChange func(Snapshot)
}

type cmdKind int

const (
	cmdPlay cmdKind = iota
	cmdPause
	cmdToggle
	cmdNext
	cmdPrev
	cmdSeek
	cmdReset
)

type command struct {
	kind  cmdKind
	index int
}

type loadKind int

const (
	loadVisual loadKind = iota
	loadAudio
)

type loadResult struct {
	kind   loadKind
	index  int
	gen    uint64
	uri    string
	visual source.Visual
	buf    *audio.Buffer
	err    error
}

// Player is the preview controller. Commands may be sent from any
// goroutine; they are applied in order by Run.
type Player struct {
	tl     *scene.Timeline
	sc     *clock.SceneClock
	pc     *audio.PlaybackContext
	loader source.Loader
	clk    clock.Clock
	opts   Options
	log    *zap.Logger

	box   *clock.Mailbox
	cmds  chan command
	loads chan loadResult

	// controller-only state
	ctx          context.Context
	gen          uint64
	audioReady   bool
	blocked      bool
	wraps        int
	errs         map[int]string
	audioFailed  map[int]bool
	visualFailed map[int]bool
	loading      map[int]bool

	mu      sync.RWMutex
	visuals map[int]source.Visual
	snap    Snapshot
}

func NewPlayer(scenes []scene.Scene, loader source.Loader, pc *audio.PlaybackContext, clk clock.Clock, display clock.Display, opts Options, log *zap.Logger) *Player {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Nominal <= 0 {
		opts.Nominal = 5 * time.Second
	}
	if opts.Effect == "" {
		opts.Effect = transition.Fade
	}
	box := clock.NewMailbox()
	p := &Player{
		tl:      scene.NewTimeline(scenes),
		pc:      pc,
		loader:  loader,
		clk:     clk,
		opts:    opts,
		log:     log,
		box:     box,
		cmds:    make(chan command, 32),
		loads:   make(chan loadResult, 32),
		errs:    make(map[int]string),
		loading: make(map[int]bool),
		visuals: make(map[int]source.Visual),

		audioFailed:  make(map[int]bool),
		visualFailed: make(map[int]bool),
	}
	p.sc = clock.NewSceneClock(clk, display, opts.Nominal, box.Post)
	p.snap = p.buildSnapshot()
	return p
}

func (p *Player) send(c command) {
	p.cmds <- c
}

func (p *Player) Play()      { p.send(command{kind: cmdPlay}) }
func (p *Player) Pause()     { p.send(command{kind: cmdPause}) }
func (p *Player) Toggle()    { p.send(command{kind: cmdToggle}) }
func (p *Player) Next()      { p.send(command{kind: cmdNext}) }
func (p *Player) Prev()      { p.send(command{kind: cmdPrev}) }
func (p *Player) Reset()     { p.send(command{kind: cmdReset}) }
func (p *Player) Seek(i int) { p.send(command{kind: cmdSeek, index: i}) }

func (p *Player) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

func (p *Player) Visual(i int) (source.Visual, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.visuals[i]
	return v, ok
}

// Run is the controller loop. It returns when ctx is done.
func (p *Player) Run(ctx context.Context) error {
	p.ctx = ctx
	defer p.shutdown()

	if p.opts.Music != "" {
		if err := p.pc.SetMusic(ctx, p.opts.Music); err != nil {
			p.log.Warn("background music unavailable", zap.Error(err))
		}
	}
	if !p.tl.Empty() {
		p.enterScene()
	}
	p.publish()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-p.cmds:
			p.apply(c)
		case <-p.box.Ready():
			for _, ev := range p.box.Drain() {
				p.handleClock(ev)
			}
		case res := <-p.loads:
			p.handleLoad(res)
		}
		p.publish()
	}
}

func (p *Player) apply(c command) {
	if p.tl.Empty() {
		return
	}
	switch c.kind {
	case cmdPlay:
		p.play()
	case cmdPause:
		p.pause()
	case cmdToggle:
		if p.tl.Playing() {
			p.pause()
		} else {
			p.play()
		}
	case cmdNext:
		if p.tl.Next() {
			p.enterScene()
		}
	case cmdPrev:
		if p.tl.Prev() {
			p.enterScene()
		}
	case cmdSeek:
		if p.tl.Seek(c.index) {
			p.enterScene()
		}
	case cmdReset:
		p.pause()
		p.tl.Reset()
		p.pc.StopMusic()
		p.enterScene()
	}
}

func (p *Player) play() {
	p.blocked = false
	p.tl.SetPlaying(true)
	if err := p.pc.SyncMusic(true); err != nil {
		p.block(err)
		return
	}
	p.startScene()
}

func (p *Player) pause() {
	p.tl.SetPlaying(false)
	p.stopScene()
	p.pc.SyncMusic(false)
}

// block handles a runtime refusal to play: the master flag drops and the
// user has to start playback again.
func (p *Player) block(err error) {
	p.log.Warn("playback blocked", zap.Error(err))
	p.blocked = true
	p.tl.SetPlaying(false)
	p.stopScene()
	p.pc.SyncMusic(false)
}

// enterScene resets progress for the current index and loads its assets.
func (p *Player) enterScene() {
	p.stopScene()
	p.gen++
	i := p.tl.Index()
	sc, _ := p.tl.Current()

	p.audioReady = false
	if sc.HasAudio() && !p.audioFailed[i] {
		p.sc.Begin(p.pc.Narration)
		if p.pc.Narration.URI() == sc.AudioURI {
			p.pc.Narration.Rewind()
			p.audioReady = true
		} else {
			p.loadAudio(i, sc.AudioURI)
		}
	} else {
		p.sc.Begin(nil)
	}

	p.ensureVisual(i)
	p.ensureVisual(i + 1)
	p.evictVisuals(i)

	if p.tl.Playing() {
		p.startScene()
	}
}

func (p *Player) startScene() {
	i := p.tl.Index()
	if v, ok := p.Visual(i); ok {
		if err := v.Play(p.ctx); err != nil {
			p.log.Warn("loop video did not start", zap.Int("scene", i), zap.Error(err))
		}
	}
	switch p.sc.Mode() {
	case clock.ModeFallback:
		p.sc.Resume()
	case clock.ModeAudio:
		if !p.audioReady {
			return
		}
		if err := p.pc.Narration.Play(); err != nil {
			if errors.Is(err, audio.ErrPlaybackBlocked) {
				p.block(err)
				return
			}
			p.log.Warn("narration failed", zap.Int("scene", i), zap.Error(err))
		}
	}
}

func (p *Player) stopScene() {
	p.pc.Narration.Pause()
	p.sc.Pause()
	if v, ok := p.Visual(p.tl.Index()); ok {
		v.Pause()
	}
}

func (p *Player) handleClock(ev clock.Event) {
	if ev.Kind == clock.EventError && ev.Token == p.sc.Token() {
		p.sceneError(p.tl.Index(), ev.Err)
		return
	}
	if !p.sc.Handle(ev) {
		return
	}

	p.stopScene()
	if wrapped := p.tl.Complete(); wrapped {
		p.wraps++
		p.pc.StopMusic()
	}
	p.enterScene()
}

// sceneError records an inline error and keeps the timeline moving on the
// fallback clock.
func (p *Player) sceneError(i int, err error) {
	p.log.Warn("scene asset failed", zap.Int("scene", i), zap.Error(err))
	p.errs[i] = err.Error()
	if i != p.tl.Index() {
		return
	}
	if p.sc.Mode() == clock.ModeAudio {
		p.pc.Narration.Pause()
		p.sc.Begin(nil)
		if p.tl.Playing() {
			p.sc.Resume()
		}
	}
}

func (p *Player) loadAudio(i int, uri string) {
	gen := p.gen
	ctx := p.ctx
	go func() {
		buf, err := p.loader.LoadAudio(ctx, uri)
		p.deliver(ctx, loadResult{kind: loadAudio, index: i, gen: gen, uri: uri, buf: buf, err: err})
	}()
}

func (p *Player) ensureVisual(i int) {
	sc, ok := p.tl.Scene(i)
	if !ok || !sc.Visual.Present() || p.loading[i] || p.visualFailed[i] {
		return
	}
	if _, ok := p.Visual(i); ok {
		return
	}
	p.loading[i] = true
	ctx := p.ctx
	go func() {
		v, err := p.loader.LoadVisual(ctx, sc.Visual)
		p.deliver(ctx, loadResult{kind: loadVisual, index: i, uri: sc.Visual.URI, visual: v, err: err})
	}()
}

func (p *Player) deliver(ctx context.Context, res loadResult) {
	select {
	case p.loads <- res:
	case <-ctx.Done():
		if res.visual != nil {
			res.visual.Close()
		}
	}
}

// evictVisuals keeps the active scene and its neighbours, the layers a
// transition can show.
func (p *Player) evictVisuals(active int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, v := range p.visuals {
		if i < active-1 || i > active+1 {
			v.Close()
			delete(p.visuals, i)
		}
	}
}

func (p *Player) handleLoad(res loadResult) {
	switch res.kind {
	case loadVisual:
		delete(p.loading, res.index)
		if res.err != nil {
			p.visualFailed[res.index] = true
			p.sceneError(res.index, res.err)
			return
		}
		active := p.tl.Index()
		if res.index < active-1 || res.index > active+1 {
			res.visual.Close()
			return
		}
		p.mu.Lock()
		p.visuals[res.index] = res.visual
		p.mu.Unlock()
		if res.index == active && p.tl.Playing() {
			if err := res.visual.Play(p.ctx); err != nil {
				p.log.Warn("loop video did not start", zap.Int("scene", res.index), zap.Error(err))
			}
		}

	case loadAudio:
		if res.gen != p.gen {
			return
		}
		if res.err != nil {
			p.audioFailed[res.index] = true
			p.sceneError(res.index, res.err)
			return
		}
		p.pc.Narration.Load(res.uri, res.buf)
		p.audioReady = true
		if p.tl.Playing() {
			p.startScene()
		}
	}
}

func (p *Player) buildSnapshot() Snapshot {
	scenes := p.tl.Scenes()
	snap := Snapshot{
		Index:    p.tl.Index(),
		Progress: p.sc.Progress(),
		Playing:  p.tl.Playing(),
		Blocked:  p.blocked,
		Mode:     p.sc.Mode(),
		Effect:   p.opts.Effect,
		Scenes:   make([]SceneView, len(scenes)),
		Layers:   make([]transition.State, len(scenes)),
		Wraps:    p.wraps,
		At:       p.clk.Now(),
	}
	for i, sc := range scenes {
		_, loaded := p.visuals[i]
		snap.Scenes[i] = SceneView{
			ID:        sc.ID,
			Narration: sc.Narration,
			Status:    sc.Status,
			HasAudio:  sc.HasAudio(),
			Loaded:    loaded,
			Err:       p.errs[i],
		}
		snap.Layers[i] = transition.Present(i, snap.Index, p.opts.Effect)
	}
	return snap
}

func (p *Player) publish() {
	p.mu.Lock()
	p.snap = p.buildSnapshot()
	snap := p.snap
	p.mu.Unlock()
	if p.opts.OnChange != nil {
		p.opts.OnChange(snap)
	}
}

func (p *Player) shutdown() {
	p.tl.SetPlaying(false)
	p.stopScene()
	p.sc.Reset()
	p.pc.SyncMusic(false)

	p.mu.Lock()
	defer p.mu.Unlock()
	for i, v := range p.visuals {
		v.Close()
		delete(p.visuals, i)
	}
}
