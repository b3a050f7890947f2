package audiomix

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddClipReturnsEndOffset(t *testing.T) {
	m := NewMixer(1000, nil, 0)

	end := m.AddClip(make([]int16, 500), 0)
	assert.Equal(t, 0.5, end)

	end = m.AddClip(make([]int16, 250), 2)
	assert.Equal(t, 2.25, end)
	assert.Equal(t, 2.25, m.Duration(), "timeline grows to the last clip end")
}

func TestAddClipMixesAdditively(t *testing.T) {
	m := NewMixer(10, nil, 0)
	m.AddClip([]int16{100, 100, 100}, 0)
	m.AddClip([]int16{50, 50}, 0.1) // overlaps samples 1 and 2

	out := m.MixDown(0.3)
	assert.Equal(t, []int16{100, 150, 150}, out)
}

func TestAddClipClampsOverflow(t *testing.T) {
	m := NewMixer(10, nil, 0)
	m.AddClip([]int16{math.MaxInt16}, 0)
	m.AddClip([]int16{math.MaxInt16}, 0)

	out := m.MixDown(0.1)
	assert.Equal(t, int16(math.MaxInt16), out[0])
}

func TestMixDownLaysLoopedBed(t *testing.T) {
	bgm := []int16{1000, -1000}
	m := NewMixer(4, bgm, 0.5)
	m.AddClip([]int16{100}, 0)

	out := m.MixDown(1) // 4 samples, bed loops twice
	assert.Equal(t, []int16{600, -500, 500, -500}, out)
}

func TestMixDownWithoutBed(t *testing.T) {
	m := NewMixer(4, nil, 0.15)
	m.AddClip([]int16{7, 7}, 0)

	out := m.MixDown(1)
	assert.Equal(t, []int16{7, 7, 0, 0}, out, "silence pads to the total duration")
}

func TestMixDownNeverTruncatesTimeline(t *testing.T) {
	m := NewMixer(10, nil, 0)
	m.AddClip(make([]int16, 20), 0) // 2s of clip
	out := m.MixDown(1)             // shorter than the timeline
	assert.Len(t, out, 20)
}

func TestWriteWAVHeader(t *testing.T) {
	var buf bytes.Buffer
	pcm := []int16{0, 256, -256}
	require.NoError(t, WriteWAV(&buf, pcm, 24000))

	raw := buf.Bytes()
	require.Len(t, raw, 44+6)

	assert.Equal(t, "RIFF", string(raw[0:4]))
	assert.Equal(t, "WAVE", string(raw[8:12]))
	assert.Equal(t, "fmt ", string(raw[12:16]))
	assert.Equal(t, "data", string(raw[36:40]))

	assert.Equal(t, uint32(36+6), binary.LittleEndian.Uint32(raw[4:]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(raw[20:]), "PCM format")
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(raw[22:]), "mono")
	assert.Equal(t, uint32(24000), binary.LittleEndian.Uint32(raw[24:]))
	assert.Equal(t, uint32(48000), binary.LittleEndian.Uint32(raw[28:]), "byte rate")
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(raw[34:]), "bit depth")
	assert.Equal(t, uint32(6), binary.LittleEndian.Uint32(raw[40:]))

	assert.Equal(t, pcm, BytesToPCM(raw[44:]))
}

func TestBytesToPCMRoundTrip(t *testing.T) {
	raw := []byte{0x00, 0x00, 0xFF, 0x7F, 0x00, 0x80}
	pcm := BytesToPCM(raw)
	assert.Equal(t, []int16{0, math.MaxInt16, math.MinInt16}, pcm)
}

func TestLoadPCM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.pcm")
	require.NoError(t, os.WriteFile(path, []byte{0x01, 0x00, 0x02, 0x00}, 0644))

	pcm, err := LoadPCM(path)
	require.NoError(t, err)
	assert.Equal(t, []int16{1, 2}, pcm)

	_, err = LoadPCM(filepath.Join(t.TempDir(), "missing.pcm"))
	assert.Error(t, err)
}
