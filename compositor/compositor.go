// Package compositor plays an assembled storyboard on a fixed
// portrait canvas: an intro card, then each scene's visual with its
// burned-in telop, advanced by the end of that scene's narration clip
// plus a settling gap. The loop is a single goroutine driving media
// time frame by frame; the capture layer consumes every frame it
// emits.
package compositor

import (
	"context"
	"fmt"
	"image"
	"log"
	"math"

	"cinematic-studio/config"
	"cinematic-studio/types"
)

// FrameSink receives every composited frame in playback order.
type FrameSink interface {
	WriteFrame(img *image.RGBA) error
}

// AudioTimeline schedules narration clips on the shared media clock.
// StartClip mixes scene i's narration at the given offset and returns
// the offset at which the clip ends — the completion signal the loop
// awaits before activating the next scene.
type AudioTimeline interface {
	StartClip(i int, at float64) (endsAt float64, err error)
}

// Player runs one playback pass over a fully assetted storyboard.
type Player struct {
	sb    *types.Storyboard
	cfg   config.RenderConfig
	sink  FrameSink
	audio AudioTimeline
	media MediaSource
	surf  *Surface
}

// NewPlayer wires a playback session. fontPath may be empty (builtin
// face fallback).
func NewPlayer(sb *types.Storyboard, cfg config.RenderConfig, sink FrameSink, audio AudioTimeline, media MediaSource, fontPath string) *Player {
	return &Player{
		sb:    sb,
		cfg:   cfg,
		sink:  sink,
		audio: audio,
		media: media,
		surf:  NewSurface(cfg.Width, cfg.Height, fontPath),
	}
}

// Run drives the full timeline and returns its total duration in
// seconds. Cancelling ctx stops the loop at the next frame boundary
// without emitting another frame.
func (p *Player) Run(ctx context.Context) (float64, error) {
	dt := 1.0 / float64(p.cfg.FPS)
	t := 0.0

	// Intro: subject title over the blurred first-scene backdrop.
	for ; t < p.cfg.IntroSec; t += dt {
		if err := ctx.Err(); err != nil {
			return t, err
		}
		p.surf.Clear()
		if bg := p.media.Backdrop(); bg != nil {
			p.surf.DrawBackdrop(bg)
		}
		p.surf.DrawIntroCard(p.sb.Subject)
		if err := p.sink.WriteFrame(p.surf.RGBA); err != nil {
			return t, fmt.Errorf("intro frame: %w", err)
		}
	}

	for i := range p.sb.Scenes {
		endsAt, err := p.audio.StartClip(i, t)
		if err != nil {
			return t, fmt.Errorf("scene %d narration: %w", i, err)
		}
		sceneEnd := endsAt + p.cfg.SettleGapSec
		start := t

		log.Printf("[compose] Scene %d/%d: %.1fs → %.1fs", i+1, len(p.sb.Scenes), start, sceneEnd)
		for ; t < sceneEnd; t += dt {
			if err := ctx.Err(); err != nil {
				return t, err
			}
			p.drawScene(i, t-start)
			if err := p.sink.WriteFrame(p.surf.RGBA); err != nil {
				return t, fmt.Errorf("scene %d frame: %w", i, err)
			}
		}
	}
	return t, nil
}

func (p *Player) drawScene(i int, local float64) {
	p.surf.Clear()
	img, isVideo := p.media.Frame(i, local)
	if img != nil {
		zoom := 1.0
		if !isVideo {
			zoom = stillZoom(local)
		}
		p.surf.DrawCover(img, zoom)
	}
	scene := p.sb.Scenes[i]
	p.surf.DrawTelop(scene.Telop, scene.TelopStyle)
}

// stillZoom is the slow sinusoidal pan/zoom applied to stills for
// visual interest.
func stillZoom(t float64) float64 {
	return 1.05 + 0.05*math.Sin(t/20)
}

// TotalDuration predicts the timeline length for a storyboard given
// the render config: intro plus each narration duration plus the
// settling gap.
func TotalDuration(sb *types.Storyboard, cfg config.RenderConfig) float64 {
	total := cfg.IntroSec
	for i := range sb.Scenes {
		d := sb.Scenes[i].Duration
		if d == 0 && sb.Scenes[i].Audio != nil {
			d = sb.Scenes[i].Audio.Duration
		}
		total += d + cfg.SettleGapSec
	}
	return total
}
