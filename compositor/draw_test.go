package compositor

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"

	"cinematic-studio/types"
)

func TestWrapRunes(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want []string
	}{
		{"short line stays whole", "天下布武", 15, []string{"天下布武"}},
		{"exactly max stays whole", "あいうえお", 5, []string{"あいうえお"}},
		{"long line wraps by rune", "あいうえおかきくけこさしすせそたちつ", 15,
			[]string{"あいうえおかきくけこさしすせそ", "たちつ"}},
		{"ascii wraps the same way", "abcdefgh", 3, []string{"abc", "def", "gh"}},
		{"empty text", "", 15, []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WrapRunes(tt.text, tt.max))
		})
	}
}

func TestCoverRect(t *testing.T) {
	frame := image.Rect(0, 0, 1080, 1920)

	t.Run("portrait source fills exactly", func(t *testing.T) {
		r := CoverRect(frame, image.Rect(0, 0, 540, 960), 1)
		assert.Equal(t, frame, r)
	})

	t.Run("landscape source overflows horizontally", func(t *testing.T) {
		r := CoverRect(frame, image.Rect(0, 0, 1920, 1080), 1)
		assert.InDelta(t, 1920, r.Dy(), 1, "height is the covering axis")
		assert.Greater(t, r.Dx(), 1080)
		// centered crop
		assert.InDelta(t, -r.Min.X, r.Max.X-1080, 1)
	})

	t.Run("zoom magnifies around the center", func(t *testing.T) {
		base := CoverRect(frame, image.Rect(0, 0, 540, 960), 1)
		zoomed := CoverRect(frame, image.Rect(0, 0, 540, 960), 1.1)
		assert.Greater(t, zoomed.Dx(), base.Dx())
		assert.Greater(t, zoomed.Dy(), base.Dy())
		assert.Less(t, zoomed.Min.X, 0)
		assert.Less(t, zoomed.Min.Y, 0)
	})

	t.Run("source never letterboxes", func(t *testing.T) {
		for _, src := range []image.Rectangle{
			image.Rect(0, 0, 100, 700),
			image.Rect(0, 0, 700, 100),
			image.Rect(0, 0, 333, 333),
		} {
			r := CoverRect(frame, src, 1)
			assert.GreaterOrEqual(t, r.Dx(), frame.Dx()-1, "src %v", src)
			assert.GreaterOrEqual(t, r.Dy(), frame.Dy()-1, "src %v", src)
		}
	})
}

func TestDrawTelopPaintsPanel(t *testing.T) {
	s := NewSurface(270, 480, "")
	s.Clear()
	s.DrawTelop("短いテロップ", types.TelopDefault)

	// the panel band sits at 80% height; the background there must no
	// longer be the stage color
	y := int(float64(480) * 0.8)
	found := false
	for x := 0; x < 270; x++ {
		if s.RGBA.RGBAAt(x, y) != colorBackground {
			found = true
			break
		}
	}
	assert.True(t, found, "telop panel painted over the background")
}

func TestDrawTelopEmptyIsNoop(t *testing.T) {
	s := NewSurface(64, 64, "")
	s.Clear()
	before := append([]uint8(nil), s.RGBA.Pix...)
	s.DrawTelop("", types.TelopDefault)
	assert.Equal(t, before, s.RGBA.Pix)
}

func TestClearFillsBackground(t *testing.T) {
	s := NewSurface(32, 32, "")
	s.Clear()
	assert.Equal(t, colorBackground, s.RGBA.RGBAAt(0, 0))
	assert.Equal(t, colorBackground, s.RGBA.RGBAAt(31, 31))
}

func TestLoadFaceFallsBack(t *testing.T) {
	s := NewSurface(32, 32, "/definitely/not/a/font.ttf")
	assert.NotNil(t, s.face)
}
