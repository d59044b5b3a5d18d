package audio

import (
	"context"

	"go.uber.org/zap"
)

// PlaybackContext owns the two preview players: the scene narration track
// and the looping background music track. Create one per preview session
// and Close it when the session ends.
type PlaybackContext struct {
	Narration *Track
	Music     *Track

	log *zap.Logger
}

func NewPlaybackContext(decoder Decoder, newOutput OutputFactory, musicVolume float64, log *zap.Logger) *PlaybackContext {
	if log == nil {
		log = zap.NewNop()
	}
	music := NewTrack(decoder, newOutput)
	music.SetLoop(true)
	music.SetVolume(musicVolume)
	return &PlaybackContext{
		Narration: NewTrack(decoder, newOutput),
		Music:     music,
		log:       log,
	}
}

// SetMusic selects the background music. An empty uri clears it.
func (pc *PlaybackContext) SetMusic(ctx context.Context, uri string) error {
	return pc.Music.SetSource(ctx, uri)
}

// SyncMusic mirrors the master playing flag onto the music track.
func (pc *PlaybackContext) SyncMusic(playing bool) error {
	if pc.Music.URI() == "" {
		return nil
	}
	if !playing {
		pc.Music.Pause()
		return nil
	}
	if err := pc.Music.Play(); err != nil {
		pc.log.Warn("music playback failed", zap.Error(err))
		return err
	}
	return nil
}

// StopMusic pauses and rewinds the music, as at the end of the timeline.
func (pc *PlaybackContext) StopMusic() {
	pc.Music.Pause()
	pc.Music.Rewind()
}

func (pc *PlaybackContext) Close() error {
	err := pc.Narration.Close()
	if merr := pc.Music.Close(); err == nil {
		err = merr
	}
	return err
}
