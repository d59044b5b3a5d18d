package source

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strconv"
	"strings"

	"github.com/gen2brain/go-fitz"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Still is a decoded image visual.
type Still struct {
	img image.Image
}

func NewStill(img image.Image) *Still { return &Still{img: img} }

func (s *Still) Size() image.Point          { return s.img.Bounds().Size() }
func (s *Still) Frame() image.Image         { return s.img }
func (s *Still) Play(context.Context) error { return nil }
func (s *Still) Pause()                     {}
func (s *Still) Close() error               { return nil }

func decodeStill(data []byte) (*Still, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("decode image: empty bounds")
	}
	return NewStill(img), nil
}

// pdfRef splits "deck.pdf#page=3" into the path and a zero-based page
// index. A bare .pdf path selects the first page.
func pdfRef(uri string) (path string, page int, ok bool) {
	path, frag, _ := strings.Cut(uri, "#")
	if !strings.HasSuffix(strings.ToLower(path), ".pdf") || isRemote(path) {
		return "", 0, false
	}
	if frag == "" {
		return path, 0, true
	}
	n, err := strconv.Atoi(strings.TrimPrefix(frag, "page="))
	if err != nil || n < 1 {
		return "", 0, false
	}
	return path, n - 1, true
}

func loadPDFPage(path string, page, dpi int) (*Still, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	if page >= doc.NumPage() {
		return nil, fmt.Errorf("pdf %s has %d pages, page %d requested", path, doc.NumPage(), page+1)
	}
	img, err := doc.ImageDPI(page, float64(dpi))
	if err != nil {
		return nil, fmt.Errorf("render pdf page %d: %w", page+1, err)
	}
	return NewStill(img), nil
}
