package compositor

import (
	"image"
	"image/color"
	"math"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

var boxColor = color.NRGBA{0, 0, 0, 153}

// Wrap breaks text into lines no wider than maxWidth, greedily. Whitespace
// runs collapse to one space. A single word wider than maxWidth gets a line
// of its own and is never truncated.
func Wrap(face font.Face, text string, maxWidth int) []string {
	words := strings.Fields(text)
	var lines []string
	line := ""
	for _, w := range words {
		if line == "" {
			line = w
			continue
		}
		candidate := line + " " + w
		if measure(face, candidate) > maxWidth {
			lines = append(lines, line)
			line = w
			continue
		}
		line = candidate
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}

func measure(face font.Face, s string) int {
	return font.MeasureString(face, s).Ceil()
}

type Line struct {
	Text  string
	Width int
	Dot   image.Point // baseline origin
}

// Caption is the laid-out caption block.
type Caption struct {
	Box      image.Rectangle
	Radius   int
	Shadow   int
	FontSize float64
	Lines    []Line
}

func (c Caption) offset(p image.Point) Caption {
	c.Box = c.Box.Add(p)
	lines := make([]Line, len(c.Lines))
	for i, l := range c.Lines {
		l.Dot = l.Dot.Add(p)
		lines[i] = l
	}
	c.Lines = lines
	return c
}

// LayoutCaption sizes the box around the widest line and anchors its bottom
// edge bottom pixels above the frame bottom. Lines are centered in the box.
func LayoutCaption(face font.Face, fs float64, lines []string, width, height, bottom int) Caption {
	m := face.Metrics()
	lineHeight := int(math.Round(1.3 * fs))
	padX := int(math.Round(0.8 * fs))
	padY := int(math.Round(0.5 * fs))

	widest := 0
	widths := make([]int, len(lines))
	for i, l := range lines {
		widths[i] = measure(face, l)
		widest = max(widest, widths[i])
	}

	boxW := widest + 2*padX
	boxH := len(lines)*lineHeight + 2*padY
	x0 := (width - boxW) / 2
	y1 := height - bottom
	box := image.Rect(x0, y1-boxH, x0+boxW, y1)

	ascent, descent := m.Ascent.Ceil(), m.Descent.Ceil()
	layout := Caption{
		Box:      box,
		Radius:   int(math.Round(fs / 3)),
		Shadow:   max(1, int(math.Round(fs/16))),
		FontSize: fs,
		Lines:    make([]Line, len(lines)),
	}
	center := box.Min.X + boxW/2
	for i, l := range lines {
		top := box.Min.Y + padY + i*lineHeight
		baseline := top + (lineHeight+ascent-descent)/2
		layout.Lines[i] = Line{Text: l, Width: widths[i], Dot: image.Pt(center-widths[i]/2, baseline)}
	}
	return layout
}

func drawCaption(dst *image.RGBA, face font.Face, layout Caption, fg color.Color) {
	mask := roundedMask(layout.Box.Dx(), layout.Box.Dy(), layout.Radius)
	draw.DrawMask(dst, layout.Box, image.NewUniform(boxColor), image.Point{}, mask, image.Point{}, draw.Over)

	shadow := &font.Drawer{Dst: dst, Src: image.NewUniform(color.NRGBA{0, 0, 0, 128}), Face: face}
	text := &font.Drawer{Dst: dst, Src: image.NewUniform(fg), Face: face}
	for _, l := range layout.Lines {
		shadow.Dot = fixed.P(l.Dot.X+layout.Shadow, l.Dot.Y+layout.Shadow)
		shadow.DrawString(l.Text)
		text.Dot = fixed.P(l.Dot.X, l.Dot.Y)
		text.DrawString(l.Text)
	}
}

// roundedMask is an alpha mask of a w x h rectangle with circular corners.
func roundedMask(w, h, r int) *image.Alpha {
	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	r = min(r, w/2, h/2)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if inRounded(x, y, w, h, r) {
				mask.SetAlpha(x, y, color.Alpha{A: 255})
			}
		}
	}
	return mask
}

func inRounded(x, y, w, h, r int) bool {
	cx, cy := x, y
	switch {
	case x < r:
		cx = r
	case x >= w-r:
		cx = w - r - 1
	}
	switch {
	case y < r:
		cy = r
	case y >= h-r:
		cy = h - r - 1
	}
	dx, dy := x-cx, y-cy
	return dx*dx+dy*dy <= r*r
}
