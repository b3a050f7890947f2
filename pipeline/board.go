package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"cinematic-studio/types"
)

// Board owns the storyboard's mutable scene list. Every mutation
// replaces a whole field-group, persists the board to disk and
// publishes a deep-copied snapshot, so observers never see a
// half-written scene and an interrupted run resumes from the file.
type Board struct {
	mu    sync.Mutex
	board *types.Storyboard
	path  string
	subs  []func(*types.Storyboard)
}

// NewBoard wraps a freshly generated storyboard and persists it
// immediately so even a run that dies before the first asset resumes.
func NewBoard(sb *types.Storyboard, path string) (*Board, error) {
	b := &Board{board: sb.Snapshot(), path: path}
	if err := b.save(); err != nil {
		return nil, err
	}
	return b, nil
}

// LoadBoard restores the board persisted by an earlier run.
func LoadBoard(path string) (*Board, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load storyboard: %w", err)
	}
	var sb types.Storyboard
	if err := json.Unmarshal(data, &sb); err != nil {
		return nil, fmt.Errorf("parse storyboard: %w", err)
	}
	return &Board{board: &sb, path: path}, nil
}

// Snapshot returns an immutable copy of the current storyboard.
func (b *Board) Snapshot() *types.Storyboard {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.board.Snapshot()
}

// Subscribe registers an observer called with a fresh snapshot after
// every committed mutation.
func (b *Board) Subscribe(fn func(*types.Storyboard)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

func (b *Board) commit(i int, mutate func(*types.Scene)) error {
	b.mu.Lock()
	if i < 0 || i >= len(b.board.Scenes) {
		b.mu.Unlock()
		return fmt.Errorf("scene %d out of range", i)
	}
	mutate(&b.board.Scenes[i])
	err := b.save()
	snap := b.board.Snapshot()
	subs := b.subs
	b.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
	return err
}

// SetImage commits the generated still for scene i.
func (b *Board) SetImage(i int, ref string) error {
	return b.commit(i, func(s *types.Scene) {
		s.Image = ref
		s.LastError = ""
	})
}

// SetAudio commits the narration clip for scene i.
func (b *Board) SetAudio(i int, audio types.AudioRef) error {
	return b.commit(i, func(s *types.Scene) {
		a := audio
		s.Audio = &a
		s.Duration = audio.Duration
		s.LastError = ""
	})
}

// SetVisual commits the playable visual for scene i.
func (b *Board) SetVisual(i int, v types.Visual) error {
	return b.commit(i, func(s *types.Scene) {
		vv := v
		s.Visual = &vv
		s.LastError = ""
	})
}

// SetError records why scene i stalled so resumption is precise.
func (b *Board) SetError(i int, msg string) error {
	return b.commit(i, func(s *types.Scene) {
		s.LastError = msg
	})
}

func (b *Board) save() error {
	data, err := json.MarshalIndent(b.board, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(b.path, data, 0644)
}
