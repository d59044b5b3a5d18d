package scene

// Timeline is the ordered scene list plus the single active index and the
// master playing flag. It is not safe for concurrent use; the preview player
// owns it from one goroutine.
type Timeline struct {
	scenes  []Scene
	index   int
	playing bool
}

func NewTimeline(scenes []Scene) *Timeline {
	cp := make([]Scene, len(scenes))
	copy(cp, scenes)
	return &Timeline{scenes: cp}
}

func (t *Timeline) Len() int      { return len(t.scenes) }
func (t *Timeline) Index() int    { return t.index }
func (t *Timeline) Playing() bool { return t.playing }
func (t *Timeline) Empty() bool   { return len(t.scenes) == 0 }

func (t *Timeline) SetPlaying(playing bool) {
	t.playing = playing && !t.Empty()
}

// Current returns the active scene; ok is false for an empty timeline.
func (t *Timeline) Current() (Scene, bool) {
	if t.Empty() {
		return Scene{}, false
	}
	return t.scenes[t.index], true
}

func (t *Timeline) Scene(i int) (Scene, bool) {
	if i < 0 || i >= len(t.scenes) {
		return Scene{}, false
	}
	return t.scenes[i], true
}

func (t *Timeline) Scenes() []Scene {
	cp := make([]Scene, len(t.scenes))
	copy(cp, t.scenes)
	return cp
}

// SetScene replaces scene i, as the generation pipeline does when it
// finishes (or fails) producing assets.
func (t *Timeline) SetScene(i int, s Scene) bool {
	if i < 0 || i >= len(t.scenes) {
		return false
	}
	t.scenes[i] = s
	return true
}

// Seek moves to i, clamped into range. It reports whether the index changed.
func (t *Timeline) Seek(i int) bool {
	if t.Empty() {
		return false
	}
	if i < 0 {
		i = 0
	}
	if i > len(t.scenes)-1 {
		i = len(t.scenes) - 1
	}
	changed := i != t.index
	t.index = i
	return changed
}

func (t *Timeline) Next() bool { return t.Seek(t.index + 1) }
func (t *Timeline) Prev() bool { return t.Seek(t.index - 1) }

func (t *Timeline) Reset() {
	t.playing = false
	t.index = 0
}

// Complete applies the scene-complete transition: advance by one, or at the
// last scene stop playback and rewind. wrapped reports the latter.
func (t *Timeline) Complete() (wrapped bool) {
	if t.Empty() {
		return false
	}
	if t.index < len(t.scenes)-1 {
		t.index++
		return false
	}
	t.Reset()
	return true
}
