// Package audiomix assembles the session audio: looping background
// music at fixed attenuation under per-scene narration clips, mixed on
// one mono s16le timeline and finalized as a WAV.
package audiomix

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// Mixer owns one export attempt's audio timeline. It is not safe for
// concurrent use; one playback loop feeds it.
type Mixer struct {
	sampleRate int
	gain       float64
	bgm        []int16
	timeline   []int16
}

// NewMixer creates a mixer. bgm may be nil when no music could be
// loaded; gain attenuates the music bed (narration stays at unity).
func NewMixer(sampleRate int, bgm []int16, gain float64) *Mixer {
	return &Mixer{sampleRate: sampleRate, gain: gain, bgm: bgm}
}

// AddClip mixes a narration clip into the timeline starting at the
// given offset in seconds and returns the offset at which it ends.
func (m *Mixer) AddClip(pcm []int16, at float64) float64 {
	start := int(at * float64(m.sampleRate))
	end := start + len(pcm)
	if end > len(m.timeline) {
		m.timeline = append(m.timeline, make([]int16, end-len(m.timeline))...)
	}
	for i, s := range pcm {
		m.timeline[start+i] = clamp(int32(m.timeline[start+i]) + int32(s))
	}
	return float64(end) / float64(m.sampleRate)
}

// MixDown extends the timeline to total seconds and lays the attenuated
// music loop under everything. It returns the final mono samples.
func (m *Mixer) MixDown(total float64) []int16 {
	n := int(total * float64(m.sampleRate))
	if n < len(m.timeline) {
		n = len(m.timeline)
	}
	out := make([]int16, n)
	copy(out, m.timeline)
	if len(m.bgm) > 0 {
		for i := 0; i < n; i++ {
			bed := float64(m.bgm[i%len(m.bgm)]) * m.gain
			out[i] = clamp(int32(out[i]) + int32(bed))
		}
	}
	return out
}

// Duration reports the current end of the timeline in seconds.
func (m *Mixer) Duration() float64 {
	return float64(len(m.timeline)) / float64(m.sampleRate)
}

func clamp(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// WriteWAV wraps mono s16le samples in a standard 44-byte RIFF header.
func WriteWAV(w io.Writer, pcm []int16, sampleRate int) error {
	dataLen := len(pcm) * 2
	var header [44]byte
	copy(header[0:], "RIFF")
	binary.LittleEndian.PutUint32(header[4:], uint32(36+dataLen))
	copy(header[8:], "WAVE")
	copy(header[12:], "fmt ")
	binary.LittleEndian.PutUint32(header[16:], 16)
	binary.LittleEndian.PutUint16(header[20:], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:], 1) // mono
	binary.LittleEndian.PutUint32(header[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(header[32:], 2)
	binary.LittleEndian.PutUint16(header[34:], 16)
	copy(header[36:], "data")
	binary.LittleEndian.PutUint32(header[40:], uint32(dataLen))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	buf := make([]byte, dataLen)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	_, err := w.Write(buf)
	return err
}

// BytesToPCM reinterprets raw little-endian bytes as mono samples.
func BytesToPCM(raw []byte) []int16 {
	pcm := make([]int16, len(raw)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return pcm
}

// LoadPCM reads a raw s16le file produced by the narration generator.
func LoadPCM(path string) ([]int16, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load pcm: %w", err)
	}
	return BytesToPCM(raw), nil
}
