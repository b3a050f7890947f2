package types

// BGMStyle selects the background music bed for the whole film.
type BGMStyle string

const (
	BGMEpic     BGMStyle = "epic"
	BGMSad      BGMStyle = "sad"
	BGMPeaceful BGMStyle = "peaceful"
	BGMSuspense BGMStyle = "suspense"
)

// VisualStyle steers image generation for every scene.
type VisualStyle string

const (
	StyleRealistic    VisualStyle = "realistic"
	StyleIllustration VisualStyle = "illustration"
)

// Tier gates motion-video generation. Under TierConstrained the still
// image is always reused as the playable visual.
type Tier string

const (
	TierConstrained Tier = "constrained"
	TierFull        Tier = "full"
)

// TelopStyle picks the caption panel color.
type TelopStyle string

const (
	TelopDefault   TelopStyle = "default"
	TelopHighlight TelopStyle = "highlight"
)

// Visibility is the publishing privacy setting.
type Visibility string

const (
	VisibilityPrivate  Visibility = "private"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPublic   Visibility = "public"
)

// VisualKind tags the playable visual variant of a scene.
type VisualKind string

const (
	VisualImage VisualKind = "image"
	VisualVideo VisualKind = "video"
)

// Visual is the playable visual of a scene: either the generated still
// or a motion clip derived from it. Exactly one variant, never both.
type Visual struct {
	Kind VisualKind `json:"kind"`
	Ref  string     `json:"ref"`
}

// AudioRef points at a generated narration clip: raw little-endian
// 16-bit mono PCM on disk.
type AudioRef struct {
	Ref        string  `json:"ref"`
	SampleRate int     `json:"sample_rate"`
	Duration   float64 `json:"duration"`
}

// Scene is one narrated segment of the film. Text fields are written
// once by storyboard generation; asset fields are filled in by the
// production pipeline one field-group at a time.
type Scene struct {
	TimeRange    string     `json:"time_range"`
	Narration    string     `json:"narration"`
	ImagePrompt  string     `json:"image_prompt"`
	MotionPrompt string     `json:"motion_prompt"`
	Telop        string     `json:"telop"`
	TelopStyle   TelopStyle `json:"telop_style"`
	Image        string     `json:"image_ref,omitempty"`
	Visual       *Visual    `json:"visual,omitempty"`
	Audio        *AudioRef  `json:"audio,omitempty"`
	Duration     float64    `json:"duration,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

// AssetComplete reports whether the scene holds everything playback
// needs: a playable visual and a narration clip.
func (s *Scene) AssetComplete() bool {
	return s.Visual != nil && s.Audio != nil
}

// Storyboard is the ordered scene sequence plus film-level metadata.
// Created once per topic; only its Scenes are mutated afterwards.
type Storyboard struct {
	Title        string      `json:"title"`
	Subject      string      `json:"subject"`
	BGMStyle     BGMStyle    `json:"bgm_style"`
	VisualStyle  VisualStyle `json:"visual_style"`
	CustomBGMRef string      `json:"custom_bgm_ref,omitempty"`
	Scenes       []Scene     `json:"scenes"`
}

// Snapshot returns a deep copy so observers never see a scene while it
// is being written.
func (b *Storyboard) Snapshot() *Storyboard {
	cp := *b
	cp.Scenes = make([]Scene, len(b.Scenes))
	for i, s := range b.Scenes {
		sc := s
		if s.Visual != nil {
			v := *s.Visual
			sc.Visual = &v
		}
		if s.Audio != nil {
			a := *s.Audio
			sc.Audio = &a
		}
		cp.Scenes[i] = sc
	}
	return &cp
}

// FilmMetadata is the publishing boundary payload. Tags are
// comma-separated.
type FilmMetadata struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Tags        string     `json:"tags"`
	Visibility  Visibility `json:"visibility"`
}
