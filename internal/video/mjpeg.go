package video

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/icza/mjpeg"
)

// MJPEGSink writes frames to a Motion-JPEG AVI file. The preview surface
// uses it to dump what it shows.
type MJPEGSink struct {
	aw      mjpeg.AviWriter
	quality int
	buf     bytes.Buffer
	frames  int
}

func NewMJPEGSink(path string, width, height, fps int) (*MJPEGSink, error) {
	aw, err := mjpeg.New(path, int32(width), int32(height), int32(fps))
	if err != nil {
		return nil, fmt.Errorf("create mjpeg writer: %w", err)
	}
	return &MJPEGSink{aw: aw, quality: 85}, nil
}

func (s *MJPEGSink) WriteFrame(img image.Image) error {
	s.buf.Reset()
	if err := jpeg.Encode(&s.buf, img, &jpeg.Options{Quality: s.quality}); err != nil {
		return fmt.Errorf("encode jpeg frame: %w", err)
	}
	if err := s.aw.AddFrame(s.buf.Bytes()); err != nil {
		return err
	}
	s.frames++
	return nil
}

func (s *MJPEGSink) Frames() int { return s.frames }

func (s *MJPEGSink) Close() error {
	return s.aw.Close()
}
