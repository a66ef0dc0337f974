package render

import (
	"bytes"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/jung-kurt/gofpdf"
	_ "golang.org/x/image/webp"
)

// imageCache keeps normalized image bytes per source path. Entries are
// refreshed when the file's modification time changes, so a template
// background replaced on disk is picked up without a restart.
type imageCache struct {
	mu      sync.Mutex
	maxPx   int
	entries map[string]cachedImage
}

type cachedImage struct {
	modTime time.Time
	png     []byte
}

func newImageCache(maxPx int) *imageCache {
	if maxPx <= 0 {
		maxPx = 2480
	}
	return &imageCache{maxPx: maxPx, entries: map[string]cachedImage{}}
}

// load decodes path (PNG, JPEG, GIF or WebP), shrinks it to the print
// ceiling and re-encodes it as 8-bit NRGBA PNG, which is the one format
// gofpdf accepts from every source.
func (c *imageCache) load(path string) ([]byte, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	e, ok := c.entries[path]
	c.mu.Unlock()
	if ok && e.modTime.Equal(st.ModTime()) {
		return e.png, nil
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	b := img.Bounds()
	if b.Dx() > c.maxPx || b.Dy() > c.maxPx {
		img = imaging.Fit(img, c.maxPx, c.maxPx, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.Clone(img), imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode %s: %w", path, err)
	}
	c.mu.Lock()
	c.entries[path] = cachedImage{modTime: st.ModTime(), png: buf.Bytes()}
	c.mu.Unlock()
	return buf.Bytes(), nil
}

// placeImage registers png under name and draws it. A zero h keeps the
// aspect ratio. gofpdf errors are sticky, so a failure is cleared here
// and the page continues without the image.
func placeImage(pdf *gofpdf.Fpdf, name string, png []byte, x, y, w, h float64) error {
	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	info := pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(png))
	if info == nil || pdf.Err() {
		err := fmt.Errorf("register image %s: %w", name, pdf.Error())
		pdf.ClearError()
		return err
	}
	pdf.ImageOptions(name, x, y, w, h, false, opts, 0, "")
	if pdf.Err() {
		err := pdf.Error()
		pdf.ClearError()
		return err
	}
	return nil
}

// normalizePNG re-encodes raw image bytes as 8-bit PNG. Decoded JPEG and
// WebP images are YCbCr, which png.Encode would write at 16 bits, so
// every image goes through NRGBA first.
func normalizePNG(raw []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.Clone(img), imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
