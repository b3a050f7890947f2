package compositor

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
)

// MediaSource hands the playback loop the visual for a scene at a
// moment of scene-local time.
type MediaSource interface {
	// Frame returns the visual for scene i at t seconds into the
	// scene, and whether that visual is motion video (true) or a
	// still (false). A nil image means the scene has nothing to show.
	Frame(i int, t float64) (image.Image, bool)
	// Backdrop is the first scene's still, used behind the intro.
	Backdrop() image.Image
}

// Media is the file-backed MediaSource: decoded stills per scene plus
// pre-extracted frame sequences for motion-video scenes.
type Media struct {
	stills map[int]image.Image
	frames map[int][]string
	fps    int

	cacheScene int
	cacheIdx   int
	cacheImg   image.Image
}

// NewMedia builds a Media source. frames maps scene index to an ordered
// list of frame image files extracted at the playback fps.
func NewMedia(stills map[int]image.Image, frames map[int][]string, fps int) *Media {
	return &Media{stills: stills, frames: frames, fps: fps, cacheScene: -1, cacheIdx: -1}
}

// LoadStill decodes a generated scene image from disk.
func LoadStill(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func (m *Media) Frame(i int, t float64) (image.Image, bool) {
	if seq := m.frames[i]; len(seq) > 0 {
		idx := int(t * float64(m.fps))
		if idx >= len(seq) {
			idx = len(seq) - 1
		}
		if m.cacheScene == i && m.cacheIdx == idx {
			return m.cacheImg, true
		}
		img, err := LoadStill(seq[idx])
		if err != nil {
			return m.stills[i], false
		}
		m.cacheScene, m.cacheIdx, m.cacheImg = i, idx, img
		return img, true
	}
	return m.stills[i], false
}

func (m *Media) Backdrop() image.Image {
	if img, ok := m.stills[0]; ok {
		return img
	}
	return nil
}
