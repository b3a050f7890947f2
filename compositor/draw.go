package compositor

import (
	"image"
	"image/color"
	"math"
	"os"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"cinematic-studio/types"
)

var (
	colorBackground   = color.RGBA{0x05, 0x05, 0x05, 0xff}
	colorTitle        = color.RGBA{0xf5, 0x9e, 0x0b, 0xff} // amber
	colorText         = color.RGBA{0xff, 0xff, 0xff, 0xff}
	colorPanelDefault = color.RGBA{0x00, 0x00, 0x00, 0xd9}
	colorPanelAlert   = color.RGBA{0xdc, 0x00, 0x00, 0xf2}
	colorDim          = color.RGBA{0x00, 0x00, 0x00, 0xc0}
)

const telopWrapRunes = 15

// Surface is the fixed-resolution canvas one playback session draws on.
type Surface struct {
	RGBA *image.RGBA
	face font.Face
}

// NewSurface creates a canvas. fontPath points at a TTF/OTF for telop
// glyphs (Japanese text needs one); when empty or unreadable the
// builtin bitmap face is used and scaled up.
func NewSurface(w, h int, fontPath string) *Surface {
	return &Surface{
		RGBA: image.NewRGBA(image.Rect(0, 0, w, h)),
		face: loadFace(fontPath),
	}
}

func loadFace(path string) font.Face {
	if path == "" {
		return basicfont.Face7x13
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return basicfont.Face7x13
	}
	f, err := opentype.Parse(raw)
	if err != nil {
		return basicfont.Face7x13
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: 64, DPI: 72})
	if err != nil {
		return basicfont.Face7x13
	}
	return face
}

// Clear fills the whole frame with the stage background.
func (s *Surface) Clear() {
	b := s.RGBA.Bounds()
	xdraw.Draw(s.RGBA, b, image.NewUniform(colorBackground), image.Point{}, xdraw.Src)
}

// DrawCover draws src filling the frame: scale to cover, center-crop
// the longer axis. zoom > 1 magnifies around the center (slow pan/zoom
// for stills); pass 1 for video frames.
func (s *Surface) DrawCover(src image.Image, zoom float64) {
	b := s.RGBA.Bounds()
	sb := src.Bounds()
	if sb.Dx() == 0 || sb.Dy() == 0 {
		return
	}
	scale := math.Max(
		float64(b.Dx())/float64(sb.Dx()),
		float64(b.Dy())/float64(sb.Dy()),
	) * zoom
	dw := int(float64(sb.Dx()) * scale)
	dh := int(float64(sb.Dy()) * scale)
	dx := (b.Dx() - dw) / 2
	dy := (b.Dy() - dh) / 2
	dr := image.Rect(dx, dy, dx+dw, dy+dh)
	xdraw.ApproxBiLinear.Scale(s.RGBA, dr, src, sb, xdraw.Src, nil)
}

// CoverRect returns the destination rectangle DrawCover uses; split out
// so the geometry is testable.
func CoverRect(frame image.Rectangle, src image.Rectangle, zoom float64) image.Rectangle {
	scale := math.Max(
		float64(frame.Dx())/float64(src.Dx()),
		float64(frame.Dy())/float64(src.Dy()),
	) * zoom
	dw := int(float64(src.Dx()) * scale)
	dh := int(float64(src.Dy()) * scale)
	dx := (frame.Dx() - dw) / 2
	dy := (frame.Dy() - dh) / 2
	return image.Rect(dx, dy, dx+dw, dy+dh)
}

// DrawBackdrop draws a blurred, darkened rendition of src behind the
// intro card. The blur is a downscale/upscale pass.
func (s *Surface) DrawBackdrop(src image.Image) {
	b := s.RGBA.Bounds()
	small := image.NewRGBA(image.Rect(0, 0, b.Dx()/16, b.Dy()/16))
	xdraw.ApproxBiLinear.Scale(small, small.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	xdraw.ApproxBiLinear.Scale(s.RGBA, b, small, small.Bounds(), xdraw.Src, nil)
	xdraw.Draw(s.RGBA, b, image.NewUniform(colorDim), image.Point{}, xdraw.Over)
}

// DrawIntroCard renders the subject title over whatever backdrop is
// already on the frame.
func (s *Surface) DrawIntroCard(subject string) {
	b := s.RGBA.Bounds()
	cx := b.Dx() / 2
	s.drawTextScaled(subject, 130, colorTitle, cx, b.Dy()/2-120)
	s.drawTextScaled("の実は。。。", 70, colorText, cx, b.Dy()/2+100)
}

// DrawTelop draws the caption as opaque panels with word-wrapped
// text; highlight style uses the alert color.
func (s *Surface) DrawTelop(text string, style types.TelopStyle) {
	if text == "" {
		return
	}
	panel := colorPanelDefault
	if style == types.TelopHighlight {
		panel = colorPanelAlert
	}

	b := s.RGBA.Bounds()
	baseY := int(float64(b.Dy()) * 0.8)
	for i, line := range WrapRunes(text, telopWrapRunes) {
		lw := s.scaledWidth(line, 64)
		x0 := (b.Dx() - lw - 80) / 2
		y0 := baseY - 60 + i*105
		xdraw.Draw(s.RGBA, image.Rect(x0, y0, x0+lw+80, y0+110), image.NewUniform(panel), image.Point{}, xdraw.Over)
		s.drawTextScaled(line, 64, colorText, b.Dx()/2, y0+55)
	}
}

// WrapRunes splits text into lines of at most max runes. Telops are
// frequently Japanese, so wrapping is by rune count, not spaces.
func WrapRunes(text string, max int) []string {
	runes := []rune(text)
	if len(runes) <= max {
		return []string{text}
	}
	var lines []string
	for len(runes) > 0 {
		n := max
		if n > len(runes) {
			n = len(runes)
		}
		lines = append(lines, string(runes[:n]))
		runes = runes[n:]
	}
	return lines
}

// drawTextScaled renders text centered on cx with the glyph box scaled
// to the target pixel height, so the small builtin face still fills the
// portrait frame.
func (s *Surface) drawTextScaled(text string, targetH int, col color.Color, cx, cy int) {
	w, h := s.textBounds(text)
	if w == 0 || h == 0 {
		return
	}
	tmp := image.NewRGBA(image.Rect(0, 0, w, h))
	d := font.Drawer{
		Dst:  tmp,
		Src:  image.NewUniform(col),
		Face: s.face,
		Dot:  fixed.P(0, s.face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)

	scale := float64(targetH) / float64(h)
	dw := int(float64(w) * scale)
	dr := image.Rect(cx-dw/2, cy-targetH/2, cx-dw/2+dw, cy-targetH/2+targetH)
	xdraw.ApproxBiLinear.Scale(s.RGBA, dr, tmp, tmp.Bounds(), xdraw.Over, nil)
}

func (s *Surface) scaledWidth(text string, targetH int) int {
	w, h := s.textBounds(text)
	if h == 0 {
		return 0
	}
	return int(float64(w) * float64(targetH) / float64(h))
}

func (s *Surface) textBounds(text string) (int, int) {
	d := font.Drawer{Face: s.face}
	w := d.MeasureString(text).Ceil()
	m := s.face.Metrics()
	return w, (m.Ascent + m.Descent).Ceil()
}
