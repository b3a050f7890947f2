package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"

	"cinematic-studio/config"
)

// Recorder consumes a live frame stream and accumulates encoded chunks
// until stopped. Discard abandons an in-progress recording without
// finalizing it.
type Recorder interface {
	WriteFrame(img *image.RGBA) error
	Stop() ([][]byte, error)
	Discard()
}

// Encoder isolates the external encoding processes so the session
// logic is testable without media binaries.
type Encoder interface {
	StartRecorder(ctx context.Context, w, h, fps int) (Recorder, error)
	ExtractFrames(ctx context.Context, videoPath, dir string, fps int) ([]string, error)
	DecodeAudio(ctx context.Context, src string, sampleRate int) ([]byte, error)
	Transcode(ctx context.Context, videoPath, audioPath, outPath string) error
}

// FFmpeg is the Encoder backed by the ffmpeg binary.
type FFmpeg struct {
	Bin string
	cfg config.CaptureConfig
}

// NewFFmpeg creates the production encoder.
func NewFFmpeg(cfg config.CaptureConfig) *FFmpeg {
	return &FFmpeg{Bin: "ffmpeg", cfg: cfg}
}

// StartRecorder spawns an encode process reading raw RGBA frames from
// stdin and streaming a Matroska/VP9 recording to stdout; the chunks
// read from stdout are the accumulated recording.
func (f *FFmpeg) StartRecorder(ctx context.Context, w, h, fps int) (Recorder, error) {
	cmd := exec.CommandContext(ctx, f.Bin, "-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", w, h),
		"-r", fmt.Sprintf("%d", fps),
		"-i", "-",
		"-c:v", "libvpx-vp9",
		"-b:v", f.cfg.VideoBitrate,
		"-deadline", "realtime",
		"-cpu-used", "8",
		"-f", "webm",
		"pipe:1",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start recorder: %w", err)
	}

	r := &ffmpegRecorder{cmd: cmd, stdin: stdin, readDone: make(chan struct{})}
	go r.readChunks(stdout)
	return r, nil
}

type ffmpegRecorder struct {
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	mu       sync.Mutex
	chunks   [][]byte
	readDone chan struct{}
	stopped  bool
}

func (r *ffmpegRecorder) readChunks(stdout io.Reader) {
	defer close(r.readDone)
	for {
		buf := make([]byte, 64*1024)
		n, err := stdout.Read(buf)
		if n > 0 {
			r.mu.Lock()
			r.chunks = append(r.chunks, buf[:n])
			r.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

func (r *ffmpegRecorder) WriteFrame(img *image.RGBA) error {
	_, err := r.stdin.Write(img.Pix)
	return err
}

func (r *ffmpegRecorder) Stop() ([][]byte, error) {
	r.stopped = true
	_ = r.stdin.Close()
	<-r.readDone
	if err := r.cmd.Wait(); err != nil {
		return nil, fmt.Errorf("recorder exit: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chunks, nil
}

func (r *ffmpegRecorder) Discard() {
	if r.stopped {
		return
	}
	_ = r.stdin.Close()
	_ = r.cmd.Process.Kill()
	<-r.readDone
	_ = r.cmd.Wait()
}

// ExtractFrames decodes a motion clip into an ordered PNG frame
// sequence at the playback frame rate.
func (f *FFmpeg) ExtractFrames(ctx context.Context, videoPath, dir string, fps int) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, f.Bin, "-y",
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=%d", fps),
		filepath.Join(dir, "frame_%05d.png"),
	)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("extract frames: %w", err)
	}
	frames, err := filepath.Glob(filepath.Join(dir, "frame_*.png"))
	if err != nil {
		return nil, err
	}
	sort.Strings(frames)
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames extracted from %s", videoPath)
	}
	return frames, nil
}

// DecodeAudio resamples any audio source (file or URL) to raw mono
// s16le PCM at the session rate.
func (f *FFmpeg) DecodeAudio(ctx context.Context, src string, sampleRate int) ([]byte, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, f.Bin,
		"-i", src,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"pipe:1",
	)
	cmd.Stdout = &out
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("decode audio %s: %w", src, err)
	}
	return out.Bytes(), nil
}

// Transcode muxes the intermediate recording and the mixed audio into
// the final widely-playable MP4: H.264 video, AAC audio, fast-start
// metadata placement.
func (f *FFmpeg) Transcode(ctx context.Context, videoPath, audioPath, outPath string) error {
	cmd := exec.CommandContext(ctx, f.Bin, "-y",
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "libx264",
		"-preset", f.cfg.Preset,
		"-crf", fmt.Sprintf("%d", f.cfg.CRF),
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "128k",
		"-shortest",
		"-movflags", "+faststart",
		outPath,
	)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg transcode: %w", err)
	}
	return nil
}
