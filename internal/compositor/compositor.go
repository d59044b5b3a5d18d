// Package compositor builds output frames: a cover-fit visual with an
// optional word-wrapped caption box and QR badge.
package compositor

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"sync"

	"github.com/skip2/go-qrcode"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"github.com/ivlev/storyreel/internal/config"
)

type Options struct {
	SizeRatio     float64
	MinSize       float64
	MaxWidthRatio float64
	BottomRatio   float64
	MinBottom     int
	Scaler        string
	QRURL         string
	// FontData is a TTF/OTF file; nil selects the embedded Go Regular.
	FontData []byte
}

// OptionsFromConfig reads the caption font from disk when one is configured.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	opts := Options{
		SizeRatio:     cfg.Caption.SizeRatio,
		MinSize:       cfg.Caption.MinSize,
		MaxWidthRatio: cfg.Caption.MaxWidthRatio,
		BottomRatio:   cfg.Caption.BottomRatio,
		MinBottom:     cfg.Caption.MinBottom,
		Scaler:        cfg.Video.Scaler,
		QRURL:         cfg.Overlay.QRURL,
	}
	if cfg.Caption.FontPath != "" {
		data, err := os.ReadFile(cfg.Caption.FontPath)
		if err != nil {
			return opts, fmt.Errorf("read caption font: %w", err)
		}
		opts.FontData = data
	}
	return opts, nil
}

var errorBackground = color.RGBA{40, 10, 10, 255}

// Compositor is safe for concurrent use. Renders are serialized since the
// cached opentype faces are not.
type Compositor struct {
	opts   Options
	font   *opentype.Font
	scaler draw.Scaler
	qr     image.Image

	render sync.Mutex

	mu     sync.Mutex
	faces  map[int]font.Face
	badges map[int]*image.RGBA
}

func New(opts Options) (*Compositor, error) {
	if opts.SizeRatio <= 0 {
		opts.SizeRatio = 0.025
	}
	if opts.MinSize <= 0 {
		opts.MinSize = 14
	}
	if opts.MaxWidthRatio <= 0 {
		opts.MaxWidthRatio = 0.9
	}
	if opts.BottomRatio <= 0 {
		opts.BottomRatio = 0.03
	}
	if opts.MinBottom <= 0 {
		opts.MinBottom = 20
	}

	data := opts.FontData
	if data == nil {
		data = goregular.TTF
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse caption font: %w", err)
	}

	c := &Compositor{
		opts:   opts,
		font:   f,
		scaler: scalerFor(opts.Scaler),
		faces:  make(map[int]font.Face),
		badges: make(map[int]*image.RGBA),
	}

	if opts.QRURL != "" {
		q, err := qrcode.New(opts.QRURL, qrcode.Medium)
		if err != nil {
			return nil, fmt.Errorf("encode qr badge: %w", err)
		}
		q.DisableBorder = true
		c.qr = q.Image(256)
	}
	return c, nil
}

func scalerFor(name string) draw.Scaler {
	switch name {
	case "nearest":
		return draw.NearestNeighbor
	case "catmullrom":
		return draw.CatmullRom
	default:
		return draw.ApproxBiLinear
	}
}

func (c *Compositor) FontSize(width int) float64 {
	return math.Max(float64(width)*c.opts.SizeRatio, c.opts.MinSize)
}

func (c *Compositor) Face(size float64) (font.Face, error) {
	key := int(math.Round(size))
	c.mu.Lock()
	defer c.mu.Unlock()
	if face, ok := c.faces[key]; ok {
		return face, nil
	}
	face, err := opentype.NewFace(c.font, &opentype.FaceOptions{
		Size:    float64(key),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, err
	}
	c.faces[key] = face
	return face, nil
}

// Render clears dst, draws visual cover-fit and overlays subtitle. A nil
// visual leaves the frame black.
func (c *Compositor) Render(dst *image.RGBA, visual image.Image, subtitle string) error {
	c.render.Lock()
	defer c.render.Unlock()

	bounds := dst.Bounds()
	draw.Draw(dst, bounds, image.Black, image.Point{}, draw.Src)

	if visual != nil {
		sb := visual.Bounds()
		if sb.Dx() > 0 && sb.Dy() > 0 {
			dr := CoverRect(sb.Dx(), sb.Dy(), bounds.Dx(), bounds.Dy()).Add(bounds.Min)
			c.scaler.Scale(dst, dr, visual, sb, draw.Src, nil)
		}
	}

	if err := c.drawCaption(dst, subtitle); err != nil {
		return err
	}
	c.drawBadge(dst)
	return nil
}

// RenderError draws the inline error state for a scene whose assets failed.
// The message shrinks until its box fits inside the frame.
func (c *Compositor) RenderError(dst *image.RGBA, message string) error {
	c.render.Lock()
	defer c.render.Unlock()

	bounds := dst.Bounds()
	draw.Draw(dst, bounds, image.NewUniform(errorBackground), image.Point{}, draw.Src)

	face, layout, err := c.fitCaption("Scene unavailable: "+message, bounds.Dx(), bounds.Dy(), c.FontSize(bounds.Dx())*1.2)
	if err != nil {
		return err
	}
	// Center the block vertically instead of anchoring it to the bottom.
	shift := (bounds.Dy()-layout.Box.Dy())/2 - layout.Box.Min.Y
	layout = layout.offset(image.Pt(bounds.Min.X, bounds.Min.Y+shift))
	drawCaption(dst, face, layout, color.RGBA{255, 120, 120, 255})
	return nil
}

const minErrorSize = 6

// fitCaption lays text out at the largest size, at most size, whose box
// stays a margin inside a width x height frame. At the smallest size the
// lines that do not fit are dropped.
func (c *Compositor) fitCaption(text string, width, height int, size float64) (font.Face, Caption, error) {
	margin := max(2, height/20)
	for {
		face, err := c.Face(size)
		if err != nil {
			return nil, Caption{}, err
		}
		padX := int(math.Round(0.8 * size))
		wrapAt := min(int(float64(width)*c.opts.MaxWidthRatio), width-2*margin-2*padX)
		lines := Wrap(face, text, max(wrapAt, 1))
		layout := LayoutCaption(face, size, lines, width, height, 0)
		fits := layout.Box.Dx() <= width-2*margin && layout.Box.Dy() <= height-2*margin
		if fits {
			return face, layout, nil
		}
		if size-1 >= minErrorSize {
			size--
			continue
		}

		lineHeight := int(math.Round(1.3 * size))
		padY := int(math.Round(0.5 * size))
		keep := max(1, (height-2*margin-2*padY)/lineHeight)
		if keep < len(lines) {
			lines = lines[:keep]
			lines[keep-1] += "…"
		}
		return face, LayoutCaption(face, size, lines, width, height, 0), nil
	}
}

// CoverRect is the destination rectangle, relative to the target origin,
// that scales a srcW x srcH image to cover dstW x dstH with symmetric
// overflow on the cropped axis.
func CoverRect(srcW, srcH, dstW, dstH int) image.Rectangle {
	ratio := math.Max(float64(dstW)/float64(srcW), float64(dstH)/float64(srcH))
	w := int(math.Ceil(float64(srcW)*ratio - 1e-9))
	h := int(math.Ceil(float64(srcH)*ratio - 1e-9))
	if w < dstW {
		w = dstW
	}
	if h < dstH {
		h = dstH
	}
	x := (dstW - w) / 2
	y := (dstH - h) / 2
	return image.Rect(x, y, x+w, y+h)
}

func (c *Compositor) drawCaption(dst *image.RGBA, subtitle string) error {
	bounds := dst.Bounds()
	size := c.FontSize(bounds.Dx())
	face, err := c.Face(size)
	if err != nil {
		return err
	}
	lines := Wrap(face, subtitle, int(float64(bounds.Dx())*c.opts.MaxWidthRatio))
	if len(lines) == 0 {
		return nil
	}
	bottom := int(math.Max(float64(bounds.Dy())*c.opts.BottomRatio, float64(c.opts.MinBottom)))
	layout := LayoutCaption(face, size, lines, bounds.Dx(), bounds.Dy(), bottom).offset(bounds.Min)
	drawCaption(dst, face, layout, color.White)
	return nil
}

func (c *Compositor) drawBadge(dst *image.RGBA) {
	if c.qr == nil {
		return
	}
	bounds := dst.Bounds()
	size := int(float64(min(bounds.Dx(), bounds.Dy())) * 0.12)
	if size < 16 {
		return
	}

	c.mu.Lock()
	badge, ok := c.badges[size]
	if !ok {
		badge = image.NewRGBA(image.Rect(0, 0, size, size))
		draw.NearestNeighbor.Scale(badge, badge.Bounds(), c.qr, c.qr.Bounds(), draw.Src, nil)
		c.badges[size] = badge
	}
	c.mu.Unlock()

	margin := size / 6
	pad := max(2, size/20)
	r := image.Rect(bounds.Max.X-margin-size, bounds.Min.Y+margin, bounds.Max.X-margin, bounds.Min.Y+margin+size)
	draw.Draw(dst, r.Inset(-pad), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, r, badge, image.Point{}, draw.Src)
}

func (c *Compositor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, face := range c.faces {
		face.Close()
		delete(c.faces, k)
	}
	return nil
}
