// Package gen is the uniform facade over the generative backends that
// produce storyboard text, scene images, narration audio and motion
// video. Every call is independently fallible and returns errors
// classified into the kinds upstream policy reacts to.
package gen

import (
	"context"
	"errors"
	"fmt"

	"cinematic-studio/types"
)

// Kind classifies a generation failure for retry/fallback policy.
type Kind int

const (
	// RateLimited means quota/backoff-eligible; retry with delay.
	RateLimited Kind = iota
	// AuthRequired means the credential is missing or rejected; not
	// retryable without user action.
	AuthRequired
	// GenerationFailed is a content or service error, retryable a
	// bounded number of times.
	GenerationFailed
	// Unavailable is a hard failure; fall back rather than retry.
	Unavailable
)

func (k Kind) String() string {
	switch k {
	case RateLimited:
		return "rate_limited"
	case AuthRequired:
		return "auth_required"
	case Unavailable:
		return "unavailable"
	default:
		return "generation_failed"
	}
}

// Error is a classified generation failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err carries the given classification.
func IsKind(err error, k Kind) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Kind == k
}

// Generator requests assets from the external backends. Calls may
// suspend for seconds to tens of seconds; MotionVideo polls a
// long-running job until completion.
type Generator interface {
	Storyboard(ctx context.Context, topic string, style types.VisualStyle, sceneCount, sceneDurationSec int, tier types.Tier) (*types.Storyboard, error)
	Image(ctx context.Context, prompt string, style types.VisualStyle) (string, error)
	Narration(ctx context.Context, text string) (types.AudioRef, error)
	MotionVideo(ctx context.Context, imageRef, motionPrompt string) (string, error)
}
