package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"cinematic-studio/capture"
	"cinematic-studio/config"
	"cinematic-studio/gen"
	"cinematic-studio/pipeline"
	"cinematic-studio/types"
	"cinematic-studio/upload"
)

type runState struct {
	RunID       string `json:"run_id"`
	Topic       string `json:"topic"`
	Tier        string `json:"tier"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at,omitempty"`
	State       string `json:"state"`
	VideoFile   string `json:"video_file,omitempty"`
	YouTubeID   string `json:"youtube_id,omitempty"`
	YouTubeURL  string `json:"youtube_url,omitempty"`
	Error       string `json:"error,omitempty"`
}

func main() {
	// Load .env (local dev only — CI uses Secrets)
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", "config.yaml", "path to config.yaml")
		tierFlag   = flag.String("tier", "constrained", "generation tier: constrained or full")
		styleFlag  = flag.String("style", "realistic", "visual style: realistic or illustration")
		scenes     = flag.Int("scenes", 0, "scene count override (3-10)")
		seconds    = flag.Int("seconds", 0, "per-scene duration override (5-20)")
		resumeID   = flag.String("resume", "", "resume an earlier run by its ID")
		doUpload   = flag.Bool("upload", false, "upload the finished film to YouTube")
		fontPath   = flag.String("font", "", "path to a TTF/OTF font for Japanese telops")
		bgmRef     = flag.String("bgm", "", "custom background music file (overrides the style bed)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = config.Default()
	}
	if *scenes != 0 {
		cfg.Film.SceneCount = *scenes
	}
	if *seconds != 0 {
		cfg.Film.SceneDurationSec = *seconds
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	tier := types.Tier(*tierFlag)
	if tier != types.TierConstrained && tier != types.TierFull {
		log.Fatalf("Unknown tier %q (want constrained or full)", *tierFlag)
	}

	topic := flag.Arg(0)
	if topic == "" && *resumeID == "" {
		log.Fatal("Usage: cinematic-studio [flags] <topic>  (or -resume <run-id>)")
	}

	for _, dir := range []string{cfg.Paths.Output, cfg.Paths.Logs} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create dir %s: %v", dir, err)
		}
	}

	runID := *resumeID
	if runID == "" {
		runID = uuid.NewString()[:8]
	}
	runDir := filepath.Join(cfg.Paths.Output, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		log.Fatalf("Failed to create run dir: %v", err)
	}
	boardPath := filepath.Join(runDir, "storyboard.json")

	log.Printf("🎬 Cinematic Studio starting — Run ID: %s (tier: %s)", runID, tier)
	log.Printf("📁 Output dir: %s", runDir)

	ctx := context.Background()
	state := &runState{
		RunID:     runID,
		Topic:     topic,
		Tier:      string(tier),
		StartedAt: time.Now().UTC().Format(time.RFC3339),
		State:     pipeline.Running.String(),
	}
	defer func() {
		state.CompletedAt = time.Now().UTC().Format(time.RFC3339)
		saveJSON(filepath.Join(runDir, "run_state.json"), state)
		if state.Error != "" {
			log.Printf("❌ Run failed: %s", state.Error)
			os.Exit(1)
		}
		log.Printf("✅ Run complete! Video: %s", state.VideoFile)
	}()

	client := gen.NewClient(os.Getenv("GEMINI_API_KEY"), runDir,
		time.Duration(cfg.Gen.VideoPollSec*float64(time.Second)),
		time.Duration(cfg.Gen.VideoPollTimeoutSec*float64(time.Second)))

	// ─────────────────────────────────────────────
	// STAGE 1: Storyboard
	// ─────────────────────────────────────────────
	log.Println("\n━━━ STAGE 1: Storyboard ━━━")
	var board *pipeline.Board
	if *resumeID != "" {
		board, err = pipeline.LoadBoard(boardPath)
		if err != nil {
			state.Error = fmt.Sprintf("Stage 1 Resume: %v", err)
			return
		}
		log.Printf("[main] Resuming run %s: %q, %d scenes", runID, board.Snapshot().Title, len(board.Snapshot().Scenes))
	} else {
		sb, err := client.Storyboard(ctx, topic, types.VisualStyle(*styleFlag), cfg.Film.SceneCount, cfg.Film.SceneDurationSec, tier)
		if err != nil {
			state.Error = fmt.Sprintf("Stage 1 Storyboard: %v", err)
			return
		}
		sb.CustomBGMRef = *bgmRef
		board, err = pipeline.NewBoard(sb, boardPath)
		if err != nil {
			state.Error = fmt.Sprintf("Stage 1 Persist: %v", err)
			return
		}
	}

	// ─────────────────────────────────────────────
	// STAGE 2: Asset Production
	// ─────────────────────────────────────────────
	log.Println("\n━━━ STAGE 2: Asset Production ━━━")
	producer := pipeline.New(client, board, tier, cfg.Gen)
	runResult, err := producer.Run(ctx)
	state.State = runResult.String()
	if err != nil {
		if gen.IsKind(err, gen.AuthRequired) {
			log.Printf("🔑 Generation needs a valid API key — set GEMINI_API_KEY and resume with: -resume %s", runID)
		} else {
			log.Printf("💾 Partial progress saved — resume with: -resume %s", runID)
		}
		state.Error = fmt.Sprintf("Stage 2 Production (%s): %v", runResult, err)
		return
	}

	// ─────────────────────────────────────────────
	// STAGE 3: Compose & Capture
	// ─────────────────────────────────────────────
	log.Println("\n━━━ STAGE 3: Compose & Capture ━━━")
	enc := capture.NewFFmpeg(cfg.Capture)
	session, err := capture.NewSession(cfg, enc, board.Snapshot(), runDir, *fontPath, func(p capture.Phase) {
		log.Printf("[main] Export phase: %s", p)
	})
	if err != nil {
		state.Error = fmt.Sprintf("Stage 3 Capture init: %v", err)
		return
	}
	result, err := session.Export(ctx)
	if err != nil {
		state.Error = fmt.Sprintf("Stage 3 Capture: %v", err)
		return
	}
	state.VideoFile = result.Path
	if !result.Transcoded {
		log.Printf("⚠️  Emitted untranscoded %s recording — playback compatibility is reduced", result.Container)
	}

	// ─────────────────────────────────────────────
	// STAGE 4: Upload
	// ─────────────────────────────────────────────
	if !*doUpload {
		log.Println("\n[main] Upload skipped (pass -upload to publish)")
		state.State = pipeline.Succeeded.String()
		return
	}
	log.Println("\n━━━ STAGE 4: YouTube Upload ━━━")
	if !result.Transcoded {
		state.Error = "Stage 4 Upload: refusing to upload untranscoded recording"
		return
	}
	httpClient, err := upload.OAuthClient(ctx)
	if err != nil {
		state.Error = fmt.Sprintf("Stage 4 Auth: %v", err)
		return
	}
	uploader := upload.New(httpClient, cfg.Upload.CategoryID)
	meta := upload.DefaultMetadata(board.Snapshot(), types.Visibility(cfg.Upload.Visibility))
	videoID, videoURL, err := uploader.Upload(ctx, result.Path, meta)
	if err != nil {
		state.Error = fmt.Sprintf("Stage 4 Upload: %v", err)
		return
	}
	state.YouTubeID = videoID
	state.YouTubeURL = videoURL
	state.State = pipeline.Succeeded.String()
	_ = upload.LogUpload(videoID, videoURL, result.Path, cfg.Paths.Logs, meta)
}

func saveJSON(path string, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Printf("Warning: could not marshal JSON for %s: %v", path, err)
		return
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Printf("Warning: could not save %s: %v", path, err)
	}
}
