package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Film    FilmConfig    `yaml:"film"`
	Gen     GenConfig     `yaml:"generation"`
	Render  RenderConfig  `yaml:"render"`
	Capture CaptureConfig `yaml:"capture"`
	Upload  UploadConfig  `yaml:"upload"`
	Paths   PathsConfig   `yaml:"paths"`
}

type FilmConfig struct {
	SceneCount       int `yaml:"scene_count"`
	SceneDurationSec int `yaml:"scene_duration_sec"`
}

type GenConfig struct {
	BackoffBaseSec      float64 `yaml:"backoff_base_sec"`
	MaxAttempts         int     `yaml:"max_attempts"`
	VideoPollSec        float64 `yaml:"video_poll_sec"`
	VideoPollTimeoutSec float64 `yaml:"video_poll_timeout_sec"`
}

type RenderConfig struct {
	Width        int                `yaml:"width"`
	Height       int                `yaml:"height"`
	FPS          int                `yaml:"fps"`
	IntroSec     float64            `yaml:"intro_sec"`
	SettleGapSec float64            `yaml:"settle_gap_sec"`
	BGMGain      float64            `yaml:"bgm_gain"`
	BGM          map[string]string  `yaml:"bgm"`
}

type CaptureConfig struct {
	VideoBitrate string `yaml:"video_bitrate"`
	CRF          int    `yaml:"crf"`
	Preset       string `yaml:"preset"`
}

type UploadConfig struct {
	Visibility        string `yaml:"visibility"`
	CategoryID        string `yaml:"category_id"`
	NotifySubscribers bool   `yaml:"notify_subscribers"`
}

type PathsConfig struct {
	Output string `yaml:"output"`
	Logs   string `yaml:"logs"`
}

// Load reads config.yaml, applies defaults and validates bounds.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a Config usable without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Film.SceneCount == 0 {
		c.Film.SceneCount = 5
	}
	if c.Film.SceneDurationSec == 0 {
		c.Film.SceneDurationSec = 10
	}
	if c.Gen.BackoffBaseSec == 0 {
		c.Gen.BackoffBaseSec = 5
	}
	if c.Gen.MaxAttempts == 0 {
		c.Gen.MaxAttempts = 3
	}
	if c.Gen.VideoPollSec == 0 {
		c.Gen.VideoPollSec = 10
	}
	if c.Gen.VideoPollTimeoutSec == 0 {
		c.Gen.VideoPollTimeoutSec = 600
	}
	if c.Render.Width == 0 {
		c.Render.Width = 1080
	}
	if c.Render.Height == 0 {
		c.Render.Height = 1920
	}
	if c.Render.FPS == 0 {
		c.Render.FPS = 30
	}
	if c.Render.IntroSec == 0 {
		c.Render.IntroSec = 3.5
	}
	if c.Render.SettleGapSec == 0 {
		c.Render.SettleGapSec = 0.8
	}
	if c.Render.BGMGain == 0 {
		c.Render.BGMGain = 0.15
	}
	if c.Render.BGM == nil {
		c.Render.BGM = map[string]string{
			"epic":     "https://cdn.pixabay.com/audio/2023/12/04/audio_92425f3898.mp3",
			"sad":      "https://cdn.pixabay.com/audio/2023/11/24/audio_349d970e7e.mp3",
			"peaceful": "https://cdn.pixabay.com/audio/2024/01/16/audio_034a74797a.mp3",
			"suspense": "https://cdn.pixabay.com/audio/2024/02/06/audio_40914619d0.mp3",
		}
	}
	if c.Capture.VideoBitrate == "" {
		c.Capture.VideoBitrate = "8M"
	}
	if c.Capture.CRF == 0 {
		c.Capture.CRF = 22
	}
	if c.Capture.Preset == "" {
		c.Capture.Preset = "ultrafast"
	}
	if c.Upload.Visibility == "" {
		c.Upload.Visibility = "private"
	}
	if c.Upload.CategoryID == "" {
		c.Upload.CategoryID = "22"
	}
	if c.Paths.Output == "" {
		c.Paths.Output = "output"
	}
	if c.Paths.Logs == "" {
		c.Paths.Logs = "logs"
	}
}

// Validate enforces the bounded ranges the settings surface exposes.
func (c *Config) Validate() error {
	if c.Film.SceneCount < 3 || c.Film.SceneCount > 10 {
		return fmt.Errorf("film.scene_count %d out of range [3,10]", c.Film.SceneCount)
	}
	if c.Film.SceneDurationSec < 5 || c.Film.SceneDurationSec > 20 {
		return fmt.Errorf("film.scene_duration_sec %d out of range [5,20]", c.Film.SceneDurationSec)
	}
	if c.Gen.MaxAttempts < 1 {
		return fmt.Errorf("generation.max_attempts must be >= 1")
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 || c.Render.FPS <= 0 {
		return fmt.Errorf("render dimensions and fps must be positive")
	}
	if c.Render.BGMGain < 0 || c.Render.BGMGain > 1 {
		return fmt.Errorf("render.bgm_gain %.2f out of range [0,1]", c.Render.BGMGain)
	}
	return nil
}
