// Package capture records the composited playback into one standalone
// video file: a streaming recorder accumulates encoded chunks while the
// playback loop runs, the chunks become an intermediate recording, and
// a transcode pass turns it into the final MP4. If transcoding fails
// the intermediate recording is emitted instead so the user is never
// left with nothing.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"

	"cinematic-studio/audiomix"
	"cinematic-studio/compositor"
	"cinematic-studio/config"
	"cinematic-studio/types"
)

// Phase is the coarse progress the export reports; the embedded
// transcoder exposes no reliable fine-grained progress.
type Phase string

const (
	PhaseRecording   Phase = "recording"
	PhaseTranscoding Phase = "transcoding"
	PhaseDone        Phase = "done"
)

var (
	ErrCaptureFailed   = errors.New("capture failed")
	ErrTranscodeFailed = errors.New("transcode failed")
)

const sessionSampleRate = 24000

// Result is the finished export artifact.
type Result struct {
	Path string
	// Container is "mp4" for the transcoded artifact, or the
	// intermediate "webm" when transcoding was unavailable.
	Container  string
	Transcoded bool
	Duration   float64
}

// Session owns one export attempt: the audio graph, the recorder and
// the intermediate chunks. Construct a fresh Session per attempt; a
// Session is single-use and releases its resources on every exit path.
type Session struct {
	cfg      *config.Config
	enc      Encoder
	sb       *types.Storyboard
	outDir   string
	fontPath string
	progress func(Phase)
}

// NewSession validates the storyboard is fully assetted and prepares an
// export attempt.
func NewSession(cfg *config.Config, enc Encoder, sb *types.Storyboard, outDir, fontPath string, progress func(Phase)) (*Session, error) {
	for i := range sb.Scenes {
		if !sb.Scenes[i].AssetComplete() {
			return nil, fmt.Errorf("%w: scene %d is not asset-complete", ErrCaptureFailed, i)
		}
	}
	if progress == nil {
		progress = func(Phase) {}
	}
	return &Session{cfg: cfg, enc: enc, sb: sb, outDir: outDir, fontPath: fontPath, progress: progress}, nil
}

// Export runs the full protocol: prepare media, start the recorder,
// drive playback to completion, stop the recorder, concatenate chunks,
// transcode, emit. The recorder is started before playback and stopped
// only after the last scene's narration has ended.
func (s *Session) Export(ctx context.Context) (*Result, error) {
	media, err := s.prepareMedia(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	mixer := audiomix.NewMixer(sessionSampleRate, s.loadBGM(ctx), s.cfg.Render.BGMGain)
	timeline := &narrationTimeline{sb: s.sb, mixer: mixer}

	rec, err := s.enc.StartRecorder(ctx, s.cfg.Render.Width, s.cfg.Render.Height, s.cfg.Render.FPS)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	stopped := false
	defer func() {
		if !stopped {
			rec.Discard()
		}
	}()
	s.progress(PhaseRecording)

	player := compositor.NewPlayer(s.sb, s.cfg.Render, frameSink{rec}, timeline, media, s.fontPath)
	total, err := player.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: playback: %v", ErrCaptureFailed, err)
	}

	chunks, err := rec.Stop()
	stopped = true
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	intermediate := bytes.Join(chunks, nil)
	if len(intermediate) == 0 {
		return nil, fmt.Errorf("%w: recorder produced no data", ErrCaptureFailed)
	}

	capturePath := filepath.Join(s.outDir, "capture.webm")
	if err := os.WriteFile(capturePath, intermediate, 0644); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	wavPath := filepath.Join(s.outDir, "audio_mix.wav")
	if err := s.writeMix(wavPath, mixer, total); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	s.progress(PhaseTranscoding)
	finalPath := filepath.Join(s.outDir, "final_video.mp4")
	if err := s.enc.Transcode(ctx, capturePath, wavPath, finalPath); err != nil {
		// Degrade, never abort: the untranscoded recording still plays
		// in some players.
		log.Printf("[capture] ⚠️  Transcode failed (%v) — emitting intermediate recording (reduced compatibility)", err)
		s.progress(PhaseDone)
		return &Result{Path: capturePath, Container: "webm", Transcoded: false, Duration: total}, nil
	}

	s.progress(PhaseDone)
	log.Printf("[capture] ✅ Final video ready: %s (%.1fs)", finalPath, total)
	return &Result{Path: finalPath, Container: "mp4", Transcoded: true, Duration: total}, nil
}

// prepareMedia decodes stills and pre-extracts motion-clip frames so
// the playback loop stays single-threaded and deterministic.
func (s *Session) prepareMedia(ctx context.Context) (compositor.MediaSource, error) {
	stills := make(map[int]image.Image)
	frames := make(map[int][]string)
	for i := range s.sb.Scenes {
		scene := s.sb.Scenes[i]
		if scene.Image != "" {
			img, err := compositor.LoadStill(scene.Image)
			if err != nil {
				return nil, err
			}
			stills[i] = img
		}
		if scene.Visual.Kind == types.VisualVideo {
			dir := filepath.Join(s.outDir, fmt.Sprintf("frames_%03d", i))
			seq, err := s.enc.ExtractFrames(ctx, scene.Visual.Ref, dir, s.cfg.Render.FPS)
			if err != nil {
				return nil, err
			}
			frames[i] = seq
		} else if stills[i] == nil && scene.Visual.Ref != "" {
			img, err := compositor.LoadStill(scene.Visual.Ref)
			if err != nil {
				return nil, err
			}
			stills[i] = img
		}
	}
	return compositor.NewMedia(stills, frames, s.cfg.Render.FPS), nil
}

// loadBGM resolves and decodes the music bed; a missing bed degrades to
// narration-only audio rather than failing the export.
func (s *Session) loadBGM(ctx context.Context) []int16 {
	src := s.sb.CustomBGMRef
	if src == "" {
		src = s.cfg.Render.BGM[string(s.sb.BGMStyle)]
	}
	if src == "" {
		return nil
	}
	raw, err := s.enc.DecodeAudio(ctx, src, sessionSampleRate)
	if err != nil {
		log.Printf("[capture] ⚠️  BGM load failed (%v) — continuing without music", err)
		return nil
	}
	return audiomix.BytesToPCM(raw)
}

func (s *Session) writeMix(path string, mixer *audiomix.Mixer, total float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return audiomix.WriteWAV(f, mixer.MixDown(total), sessionSampleRate)
}

// frameSink adapts the recorder to the compositor's sink.
type frameSink struct{ rec Recorder }

func (f frameSink) WriteFrame(img *image.RGBA) error { return f.rec.WriteFrame(img) }

// narrationTimeline mixes each scene's narration clip at its playback
// offset; the returned end offset is the completion signal the
// compositor awaits before advancing.
type narrationTimeline struct {
	sb    *types.Storyboard
	mixer *audiomix.Mixer
}

func (n *narrationTimeline) StartClip(i int, at float64) (float64, error) {
	audio := n.sb.Scenes[i].Audio
	if audio == nil {
		return 0, fmt.Errorf("scene %d has no narration clip", i)
	}
	pcm, err := audiomix.LoadPCM(audio.Ref)
	if err != nil {
		return 0, err
	}
	return n.mixer.AddClip(pcm, at), nil
}
