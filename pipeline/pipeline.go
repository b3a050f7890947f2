// Package pipeline drives a storyboard from "no assets" to "fully
// assetted": per-scene generation in a fixed field-group order, bounded
// backoff on rate limits, tier-gated motion video with graceful
// fallback, and resume that never redoes finished work.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"cinematic-studio/config"
	"cinematic-studio/gen"
	"cinematic-studio/types"
)

// RunState is the overall outcome of one production pass.
type RunState int

const (
	Idle RunState = iota
	Running
	Succeeded
	Failed
	PartiallyFailed
)

func (s RunState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case PartiallyFailed:
		return "partially_failed"
	default:
		return "unknown"
	}
}

// Producer is the production state machine for one storyboard.
type Producer struct {
	gen         gen.Generator
	board       *Board
	tier        types.Tier
	backoffBase time.Duration
	maxAttempts int

	// sleep is swapped out by tests; the default honors cancellation.
	sleep func(context.Context, time.Duration) error
}

// New creates a Producer over a board. cfg supplies the backoff policy.
func New(g gen.Generator, board *Board, tier types.Tier, cfg config.GenConfig) *Producer {
	return &Producer{
		gen:         g,
		board:       board,
		tier:        tier,
		backoffBase: time.Duration(cfg.BackoffBaseSec * float64(time.Second)),
		maxAttempts: cfg.MaxAttempts,
		sleep:       sleepCtx,
	}
}

// Run iterates scenes in order. Scenes already asset-complete are
// skipped entirely; otherwise missing field-groups are generated and
// committed one at a time so partial progress survives a later failure.
// On an unrecoverable error the run stops at that scene (it does not
// skip ahead) and the returned error carries the scene index.
func (p *Producer) Run(ctx context.Context) (RunState, error) {
	scenes := p.board.Snapshot().Scenes
	for i := range scenes {
		scene := p.board.Snapshot().Scenes[i]
		if scene.AssetComplete() {
			log.Printf("[produce] Scene %d/%d already complete — skipping", i+1, len(scenes))
			continue
		}

		log.Printf("[produce] Scene %d/%d: generating assets...", i+1, len(scenes))
		if err := p.produceScene(ctx, i); err != nil {
			_ = p.board.SetError(i, err.Error())
			return p.resultState(), fmt.Errorf("scene %d: %w", i, err)
		}
		log.Printf("[produce] ✅ Scene %d complete", i+1)
	}
	return Succeeded, nil
}

// produceScene fills the missing field-groups of scene i. The still and
// the narration are independent and may run in parallel; motion video
// is derived from the still and never starts before it exists.
func (p *Producer) produceScene(ctx context.Context, i int) error {
	snap := p.board.Snapshot()
	scene := snap.Scenes[i]
	style := snap.VisualStyle

	g, gctx := errgroup.WithContext(ctx)
	if scene.Image == "" {
		g.Go(func() error {
			var ref string
			err := p.withBackoff(gctx, func() error {
				var e error
				ref, e = p.gen.Image(gctx, scene.ImagePrompt, style)
				return e
			})
			if err != nil {
				return fmt.Errorf("image: %w", err)
			}
			return p.board.SetImage(i, ref)
		})
	}
	if scene.Audio == nil {
		g.Go(func() error {
			var audio types.AudioRef
			err := p.withBackoff(gctx, func() error {
				var e error
				audio, e = p.gen.Narration(gctx, scene.Narration)
				return e
			})
			if err != nil {
				return fmt.Errorf("narration: %w", err)
			}
			return p.board.SetAudio(i, audio)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	scene = p.board.Snapshot().Scenes[i]
	if scene.Visual != nil {
		return nil
	}

	still := types.Visual{Kind: types.VisualImage, Ref: scene.Image}
	if p.tier == types.TierConstrained {
		// Constrained tier never requests motion video.
		return p.board.SetVisual(i, still)
	}

	var ref string
	err := p.withBackoff(ctx, func() error {
		var e error
		ref, e = p.gen.MotionVideo(ctx, scene.Image, scene.MotionPrompt)
		return e
	})
	if err != nil {
		if gen.IsKind(err, gen.AuthRequired) {
			return fmt.Errorf("video: %w", err)
		}
		// Visual continuity matters more than motion: reuse the still.
		log.Printf("[produce] ⚠️  Scene %d motion video failed (%v) — reusing still image", i+1, err)
		return p.board.SetVisual(i, still)
	}
	return p.board.SetVisual(i, types.Visual{Kind: types.VisualVideo, Ref: ref})
}

// withBackoff retries fn on RateLimited with the base delay doubling
// per attempt, up to maxAttempts total calls. Every other failure kind
// returns immediately for the caller's policy to handle.
func (p *Producer) withBackoff(ctx context.Context, fn func() error) error {
	delay := p.backoffBase
	var err error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !gen.IsKind(err, gen.RateLimited) || attempt == p.maxAttempts {
			return err
		}
		log.Printf("[produce] Rate limited (attempt %d/%d) — backing off %s", attempt, p.maxAttempts, delay)
		if serr := p.sleep(ctx, delay); serr != nil {
			return serr
		}
		delay *= 2
	}
	return err
}

func (p *Producer) resultState() RunState {
	complete := 0
	scenes := p.board.Snapshot().Scenes
	for i := range scenes {
		if scenes[i].AssetComplete() {
			complete++
		}
	}
	switch complete {
	case len(scenes):
		return Succeeded
	case 0:
		return Failed
	default:
		return PartiallyFailed
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
