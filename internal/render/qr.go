package render

import (
	"bytes"
	"image"
	"image/color"
	"net/url"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// Encoder turns content into a square PNG of size pixels.
type Encoder interface {
	Encode(content string, size int) ([]byte, error)
}

// SkipEncoder encodes with github.com/skip2/go-qrcode.
type SkipEncoder struct {
	Level qrcode.RecoveryLevel
}

// Encode implements Encoder.
func (e SkipEncoder) Encode(content string, size int) ([]byte, error) {
	return qrcode.Encode(content, e.Level, size)
}

// QRGenerator builds the verification QR printed on every certificate.
type QRGenerator struct {
	Encoder Encoder
	BaseURL string
	Logger  *zap.Logger
}

// NewQRGenerator returns a generator backed by go-qrcode at Medium
// recovery.
func NewQRGenerator(baseURL string, log *zap.Logger) *QRGenerator {
	return &QRGenerator{Encoder: SkipEncoder{Level: qrcode.Medium}, BaseURL: baseURL, Logger: log}
}

// URL is the public verification address encoded in the QR.
func (g *QRGenerator) URL(dni, code string) string {
	q := url.Values{}
	q.Set("dni", dni)
	q.Set("codigo", code)
	return strings.TrimRight(g.BaseURL, "/") + "/certificados/validar?" + q.Encode()
}

// PNG returns the QR image. degraded is true when the encoder was missing
// or failed and the synthetic pattern was drawn instead; that pattern
// cannot be scanned.
func (g *QRGenerator) PNG(dni, code string, size int) (png []byte, degraded bool, err error) {
	if size <= 0 {
		size = 256
	}
	content := g.URL(dni, code)
	if g.Encoder != nil {
		png, err = g.Encoder.Encode(content, size)
		if err == nil {
			return png, false, nil
		}
	}
	if g.Logger != nil {
		g.Logger.Warn("qr encoder unavailable, drawing non-scannable placeholder",
			zap.String("code", code), zap.Error(err))
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, FallbackPattern(code, size), imaging.PNG); err != nil {
		return nil, true, err
	}
	return buf.Bytes(), true, nil
}

const fallbackModules = 25

// FallbackPattern draws something that looks like a QR code: three
// corner finder blocks plus a pseudo-random fill seeded from code. It is
// NOT decodable by any QR reader and carries no data; it only keeps the
// certificate layout intact when no real encoder is available.
func FallbackPattern(code string, size int) image.Image {
	if size < fallbackModules {
		size = fallbackModules
	}
	grid := make([][]bool, fallbackModules)
	for i := range grid {
		grid[i] = make([]bool, fallbackModules)
	}
	finder := func(ox, oy int) {
		for y := 0; y < 7; y++ {
			for x := 0; x < 7; x++ {
				ring := x == 0 || y == 0 || x == 6 || y == 6
				core := x >= 2 && x <= 4 && y >= 2 && y <= 4
				grid[oy+y][ox+x] = ring || core
			}
		}
	}
	reserved := func(x, y int) bool {
		inTop := y < 8
		inLeft := x < 8
		inRight := x >= fallbackModules-8
		inBottom := y >= fallbackModules-8
		return (inTop && inLeft) || (inTop && inRight) || (inBottom && inLeft)
	}
	finder(0, 0)
	finder(fallbackModules-7, 0)
	finder(0, fallbackModules-7)

	var seed uint32 = 7
	for _, r := range code {
		seed = seed*31 + uint32(r)
	}
	for y := 0; y < fallbackModules; y++ {
		for x := 0; x < fallbackModules; x++ {
			if reserved(x, y) {
				continue
			}
			seed = seed*1664525 + 1013904223
			grid[y][x] = seed>>16&1 == 1
		}
	}

	img := image.NewGray(image.Rect(0, 0, size, size))
	cell := float64(size) / fallbackModules
	for py := 0; py < size; py++ {
		my := int(float64(py) / cell)
		for px := 0; px < size; px++ {
			mx := int(float64(px) / cell)
			c := color.Gray{Y: 255}
			if my < fallbackModules && mx < fallbackModules && grid[my][mx] {
				c = color.Gray{Y: 0}
			}
			img.SetGray(px, py, c)
		}
	}
	return img
}
