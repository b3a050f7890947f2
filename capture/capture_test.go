package capture

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinematic-studio/config"
	"cinematic-studio/types"
)

type fakeRecorder struct {
	frames    int
	chunks    [][]byte
	stopped   bool
	discarded bool
	stopErr   error
}

func (r *fakeRecorder) WriteFrame(*image.RGBA) error {
	r.frames++
	r.chunks = append(r.chunks, []byte{byte(r.frames)})
	return nil
}

func (r *fakeRecorder) Stop() ([][]byte, error) {
	r.stopped = true
	if r.stopErr != nil {
		return nil, r.stopErr
	}
	return r.chunks, nil
}

func (r *fakeRecorder) Discard() { r.discarded = true }

type fakeEncoder struct {
	rec          *fakeRecorder
	startErr     error
	transcodeErr error
	transcoded   bool
	extracted    []string
	bgm          []byte
}

func (e *fakeEncoder) StartRecorder(context.Context, int, int, int) (Recorder, error) {
	if e.startErr != nil {
		return nil, e.startErr
	}
	e.rec = &fakeRecorder{}
	return e.rec, nil
}

func (e *fakeEncoder) ExtractFrames(_ context.Context, _ string, dir string, _ int) ([]string, error) {
	return e.extracted, nil
}

func (e *fakeEncoder) DecodeAudio(context.Context, string, int) ([]byte, error) {
	if e.bgm == nil {
		return nil, fmt.Errorf("no decoder")
	}
	return e.bgm, nil
}

func (e *fakeEncoder) Transcode(_ context.Context, _, _, outPath string) error {
	if e.transcodeErr != nil {
		return e.transcodeErr
	}
	e.transcoded = true
	return os.WriteFile(outPath, []byte("mp4"), 0644)
}

// writeAssets creates a decodable still and a short narration clip and
// returns a storyboard whose scenes reference them.
func writeAssets(t *testing.T, dir string, scenes int) *types.Storyboard {
	t.Helper()

	imgPath := filepath.Join(dir, "still.png")
	f, err := os.Create(imgPath)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 9, 16))))
	require.NoError(t, f.Close())

	pcmPath := filepath.Join(dir, "clip.pcm")
	// 0.05s of silence at the session rate
	require.NoError(t, os.WriteFile(pcmPath, make([]byte, sessionSampleRate/10), 0644))

	sb := &types.Storyboard{Title: "t", Subject: "subject", BGMStyle: types.BGMEpic}
	for i := 0; i < scenes; i++ {
		sb.Scenes = append(sb.Scenes, types.Scene{
			Telop:      "テロップ",
			TelopStyle: types.TelopDefault,
			Image:      imgPath,
			Visual:     &types.Visual{Kind: types.VisualImage, Ref: imgPath},
			Audio:      &types.AudioRef{Ref: pcmPath, SampleRate: sessionSampleRate, Duration: 0.05},
			Duration:   0.05,
		})
	}
	return sb
}

func fastConfig() *config.Config {
	cfg := config.Default()
	cfg.Render.Width = 54
	cfg.Render.Height = 96
	cfg.Render.FPS = 10
	cfg.Render.IntroSec = 0.2
	cfg.Render.SettleGapSec = 0.1
	cfg.Render.BGM = map[string]string{} // no bed by default
	return cfg
}

func TestNewSessionRejectsIncompleteScenes(t *testing.T) {
	dir := t.TempDir()
	sb := writeAssets(t, dir, 2)
	sb.Scenes[1].Audio = nil

	_, err := NewSession(fastConfig(), &fakeEncoder{}, sb, dir, "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCaptureFailed)
	assert.Contains(t, err.Error(), "scene 1")
}

func TestExportProducesTranscodedResult(t *testing.T) {
	dir := t.TempDir()
	sb := writeAssets(t, dir, 2)
	enc := &fakeEncoder{}

	var phases []Phase
	s, err := NewSession(fastConfig(), enc, sb, dir, "", func(p Phase) { phases = append(phases, p) })
	require.NoError(t, err)

	res, err := s.Export(context.Background())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "final_video.mp4"), res.Path)
	assert.Equal(t, "mp4", res.Container)
	assert.True(t, res.Transcoded)
	assert.Greater(t, res.Duration, 0.0)
	assert.Equal(t, []Phase{PhaseRecording, PhaseTranscoding, PhaseDone}, phases)

	// intermediate recording is the concatenated chunk stream
	raw, err := os.ReadFile(filepath.Join(dir, "capture.webm"))
	require.NoError(t, err)
	assert.Len(t, raw, enc.rec.frames, "one byte per frame from the fake recorder")

	_, err = os.Stat(filepath.Join(dir, "audio_mix.wav"))
	assert.NoError(t, err)

	assert.True(t, enc.rec.stopped)
	assert.False(t, enc.rec.discarded, "clean export never discards")
}

func TestExportFallsBackToIntermediateOnTranscodeFailure(t *testing.T) {
	dir := t.TempDir()
	sb := writeAssets(t, dir, 1)
	enc := &fakeEncoder{transcodeErr: fmt.Errorf("no h264")}

	s, err := NewSession(fastConfig(), enc, sb, dir, "", nil)
	require.NoError(t, err)

	res, err := s.Export(context.Background())
	require.NoError(t, err, "transcode failure degrades, never aborts")

	assert.Equal(t, filepath.Join(dir, "capture.webm"), res.Path)
	assert.Equal(t, "webm", res.Container)
	assert.False(t, res.Transcoded)

	raw, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
}

func TestExportDiscardsRecorderOnPlaybackError(t *testing.T) {
	dir := t.TempDir()
	sb := writeAssets(t, dir, 1)
	sb.Scenes[0].Audio.Ref = filepath.Join(dir, "missing.pcm")
	enc := &fakeEncoder{}

	s, err := NewSession(fastConfig(), enc, sb, dir, "", nil)
	require.NoError(t, err)

	_, err = s.Export(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCaptureFailed)
	assert.True(t, enc.rec.discarded, "aborted session abandons the recording")
	assert.False(t, enc.rec.stopped)
}

func TestExportStartErrorSurfaces(t *testing.T) {
	dir := t.TempDir()
	sb := writeAssets(t, dir, 1)
	enc := &fakeEncoder{startErr: fmt.Errorf("ffmpeg not found")}

	s, err := NewSession(fastConfig(), enc, sb, dir, "", nil)
	require.NoError(t, err)

	_, err = s.Export(context.Background())
	assert.ErrorIs(t, err, ErrCaptureFailed)
}

func TestExportCancelledContext(t *testing.T) {
	dir := t.TempDir()
	sb := writeAssets(t, dir, 1)
	enc := &fakeEncoder{}

	s, err := NewSession(fastConfig(), enc, sb, dir, "", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Export(ctx)
	require.Error(t, err)
	assert.True(t, enc.rec.discarded)
}

func TestLoadBGMDegradesToSilence(t *testing.T) {
	dir := t.TempDir()
	sb := writeAssets(t, dir, 1)
	sb.BGMStyle = types.BGMEpic

	cfg := fastConfig()
	cfg.Render.BGM = map[string]string{"epic": "https://example.com/bed.mp3"}
	enc := &fakeEncoder{} // DecodeAudio fails

	s, err := NewSession(cfg, enc, sb, dir, "", nil)
	require.NoError(t, err)
	assert.Nil(t, s.loadBGM(context.Background()))

	enc.bgm = []byte{0x01, 0x00, 0x02, 0x00}
	assert.Len(t, s.loadBGM(context.Background()), 2)
}

func TestLoadBGMPrefersCustomRef(t *testing.T) {
	dir := t.TempDir()
	sb := writeAssets(t, dir, 1)
	sb.CustomBGMRef = filepath.Join(dir, "custom.mp3")

	enc := &fakeEncoder{bgm: make([]byte, 4)}
	s, err := NewSession(fastConfig(), enc, sb, dir, "", nil)
	require.NoError(t, err)
	assert.Len(t, s.loadBGM(context.Background()), 2)
}
