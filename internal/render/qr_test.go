package render

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type failingEncoder struct{}

func (failingEncoder) Encode(string, int) ([]byte, error) { return nil, errors.New("no encoder") }

func TestQRGenerator_URL(t *testing.T) {
	g := NewQRGenerator("https://certs.example.edu/", nil)
	assert.Equal(t, "https://certs.example.edu/certificados/validar?codigo=AB12CD&dni=12345678", g.URL("12345678", "AB12CD"))
}

func TestQRGenerator_PrimaryPath(t *testing.T) {
	g := NewQRGenerator("https://certs.example.edu", zaptest.NewLogger(t))
	png, degraded, err := g.PNG("12345678", "AB12CD", 128)
	require.NoError(t, err)
	assert.False(t, degraded)
	img, err := imaging.Decode(bytes.NewReader(png))
	require.NoError(t, err)
	assert.Equal(t, 128, img.Bounds().Dx())
}

func TestQRGenerator_FallbackIsDeterministic(t *testing.T) {
	g := &QRGenerator{Encoder: failingEncoder{}, BaseURL: "https://x", Logger: zaptest.NewLogger(t)}
	a, degraded, err := g.PNG("12345678", "AB12CD", 100)
	require.NoError(t, err)
	assert.True(t, degraded)
	b, _, err := g.PNG("12345678", "AB12CD", 100)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	nilEncoder := &QRGenerator{BaseURL: "https://x"}
	_, degraded, err = nilEncoder.PNG("1", "C", 0)
	require.NoError(t, err)
	assert.True(t, degraded)
}

func TestFallbackPattern_FinderBlocks(t *testing.T) {
	img := FallbackPattern("ZZZZZZ", 250)
	dark := func(x, y int) bool {
		return color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y == 0
	}
	// outer ring of each finder is dark, the gap ring is light
	for _, o := range []image.Point{{0, 0}, {180, 0}, {0, 180}} {
		assert.True(t, dark(o.X+5, o.Y+5))
		assert.False(t, dark(o.X+15, o.Y+15))
		assert.True(t, dark(o.X+35, o.Y+35))
	}
	other := FallbackPattern("AAAAAA", 250)
	assert.NotEqual(t, img, other, "fill depends on the code")
}
