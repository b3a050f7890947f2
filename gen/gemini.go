package gen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"cinematic-studio/types"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"

	modelStoryboardFull        = "gemini-3-pro-preview"
	modelStoryboardConstrained = "gemini-3-flash-preview"
	modelImage                 = "gemini-2.5-flash-image"
	modelTTS                   = "gemini-2.5-flash-preview-tts"
	modelVideo                 = "veo-3.0-generate-preview"

	// Narration clips arrive as raw 16-bit mono PCM at this rate.
	NarrationSampleRate = 24000
)

// Client talks to the Gemini REST API and satisfies Generator.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	outDir     string

	pollInterval time.Duration
	pollTimeout  time.Duration

	// seq numbers asset files; image and narration calls for one scene
	// may run concurrently.
	seq atomic.Int64
}

// NewClient creates a Gemini-backed Generator writing asset files under
// outDir.
func NewClient(apiKey, outDir string, pollInterval, pollTimeout time.Duration) *Client {
	return &Client{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		httpClient:   &http.Client{Timeout: 120 * time.Second},
		outDir:       outDir,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
	}
}

// wire structures, minimal subset of the generateContent contract

type genRequest struct {
	Contents         []genContent   `json:"contents"`
	GenerationConfig *genConfig     `json:"generationConfig,omitempty"`
}

type genContent struct {
	Parts []genPart `json:"parts"`
}

type genPart struct {
	Text       string         `json:"text,omitempty"`
	InlineData *genInlineData `json:"inlineData,omitempty"`
}

type genInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type genConfig struct {
	ResponseMimeType   string          `json:"responseMimeType,omitempty"`
	ResponseSchema     json.RawMessage `json:"responseSchema,omitempty"`
	ResponseModalities []string        `json:"responseModalities,omitempty"`
	ImageConfig        *imageConfig    `json:"imageConfig,omitempty"`
	SpeechConfig       *speechConfig   `json:"speechConfig,omitempty"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio"`
}

type speechConfig struct {
	VoiceConfig struct {
		PrebuiltVoiceConfig struct {
			VoiceName string `json:"voiceName"`
		} `json:"prebuiltVoiceConfig"`
	} `json:"voiceConfig"`
}

type genResponse struct {
	Candidates []struct {
		Content genContent `json:"content"`
	} `json:"candidates"`
}

// storyboard response schema: keeps the model's JSON shape fixed so the
// parse below never guesses.
var storyboardSchema = json.RawMessage(`{
  "type": "OBJECT",
  "properties": {
    "title": {"type": "STRING"},
    "subject": {"type": "STRING"},
    "bgm_style": {"type": "STRING", "enum": ["epic", "sad", "peaceful", "suspense"]},
    "scenes": {
      "type": "ARRAY",
      "items": {
        "type": "OBJECT",
        "properties": {
          "time_range": {"type": "STRING"},
          "narration": {"type": "STRING"},
          "image_prompt": {"type": "STRING"},
          "motion_prompt": {"type": "STRING"},
          "telop": {"type": "STRING"},
          "telop_style": {"type": "STRING", "enum": ["default", "highlight"]}
        }
      }
    }
  }
}`)

// Storyboard asks the director model for a complete scene breakdown.
func (c *Client) Storyboard(ctx context.Context, topic string, style types.VisualStyle, sceneCount, sceneDurationSec int, tier types.Tier) (*types.Storyboard, error) {
	model := modelStoryboardConstrained
	if tier == types.TierFull {
		model = modelStoryboardFull
	}

	total := sceneCount * sceneDurationSec
	prompt := fmt.Sprintf(`歴史的な出来事「%s」について、感動的なショート動画脚本を作成してください。

制約事項:
1. 全体で%dつのシーンで構成すること。
2. 各シーンの長さは約%d秒とし、合計で%d秒程度の構成にすること。
3. 歴史的に正確でありつつ、視聴者の感情に訴えかけるナレーションを日本語で作成すること。
4. 各シーンに、画面に表示する印象的な短いテロップと、詳細な画像生成用英語プロンプト、映像の動きを指示する英語のmotion_promptを含めること。`,
		topic, sceneCount, sceneDurationSec, total)

	req := genRequest{
		Contents: []genContent{{Parts: []genPart{{Text: prompt}}}},
		GenerationConfig: &genConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   storyboardSchema,
		},
	}

	resp, err := c.generate(ctx, "storyboard", model, ":generateContent", req)
	if err != nil {
		return nil, err
	}
	text := firstText(resp)
	if text == "" {
		return nil, &Error{Kind: GenerationFailed, Op: "storyboard", Err: fmt.Errorf("model returned no text part")}
	}

	var sb types.Storyboard
	if err := json.Unmarshal([]byte(cleanJSON(text)), &sb); err != nil {
		return nil, &Error{Kind: GenerationFailed, Op: "storyboard", Err: fmt.Errorf("parse storyboard JSON: %w", err)}
	}
	if len(sb.Scenes) == 0 {
		return nil, &Error{Kind: GenerationFailed, Op: "storyboard", Err: fmt.Errorf("storyboard has no scenes")}
	}
	sb.VisualStyle = style
	if sb.Subject == "" {
		sb.Subject = topic
	}
	if sb.BGMStyle == "" {
		sb.BGMStyle = types.BGMEpic
	}
	log.Printf("[gen] Storyboard ready: %q, %d scenes (~%ds)", sb.Title, len(sb.Scenes), total)
	return &sb, nil
}

// Image generates a 9:16 still for one scene and saves it as PNG.
func (c *Client) Image(ctx context.Context, prompt string, style types.VisualStyle) (string, error) {
	req := genRequest{
		Contents: []genContent{{Parts: []genPart{{
			Text: fmt.Sprintf("%s, cinematic, historical accurate, highly detailed, %s", prompt, style),
		}}}},
		GenerationConfig: &genConfig{
			ImageConfig: &imageConfig{AspectRatio: "9:16"},
		},
	}

	resp, err := c.generate(ctx, "image", modelImage, ":generateContent", req)
	if err != nil {
		return "", err
	}
	data := firstInlineData(resp)
	if data == "" {
		return "", &Error{Kind: GenerationFailed, Op: "image", Err: fmt.Errorf("model returned no image payload")}
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil || len(raw) < 100 {
		return "", &Error{Kind: GenerationFailed, Op: "image", Err: fmt.Errorf("undecodable image payload")}
	}

	outFile := filepath.Join(c.outDir, fmt.Sprintf("scene_image_%03d.png", c.nextSeq()))
	if err := os.WriteFile(outFile, raw, 0644); err != nil {
		return "", fmt.Errorf("save image: %w", err)
	}
	return outFile, nil
}

// Narration synthesizes the narration text to 24 kHz mono s16le PCM.
func (c *Client) Narration(ctx context.Context, text string) (types.AudioRef, error) {
	req := genRequest{
		Contents: []genContent{{Parts: []genPart{{Text: text}}}},
		GenerationConfig: &genConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig:       kore(),
		},
	}

	resp, err := c.generate(ctx, "narration", modelTTS, ":generateContent", req)
	if err != nil {
		return types.AudioRef{}, err
	}
	data := firstInlineData(resp)
	if data == "" {
		return types.AudioRef{}, &Error{Kind: GenerationFailed, Op: "narration", Err: fmt.Errorf("model returned no audio payload")}
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil || len(raw) < 2 {
		return types.AudioRef{}, &Error{Kind: GenerationFailed, Op: "narration", Err: fmt.Errorf("undecodable audio payload")}
	}

	outFile := filepath.Join(c.outDir, fmt.Sprintf("narration_%03d.pcm", c.nextSeq()))
	if err := os.WriteFile(outFile, raw, 0644); err != nil {
		return types.AudioRef{}, fmt.Errorf("save narration: %w", err)
	}
	return types.AudioRef{
		Ref:        outFile,
		SampleRate: NarrationSampleRate,
		Duration:   PCMDuration(len(raw), NarrationSampleRate),
	}, nil
}

// MotionVideo derives a motion clip from a generated still. The backend
// runs it as a long-running job which is polled until completion.
func (c *Client) MotionVideo(ctx context.Context, imageRef, motionPrompt string) (string, error) {
	imgBytes, err := os.ReadFile(imageRef)
	if err != nil {
		return "", &Error{Kind: GenerationFailed, Op: "video", Err: fmt.Errorf("read source image: %w", err)}
	}

	body := map[string]any{
		"instances": []map[string]any{{
			"prompt": motionPrompt,
			"image": map[string]string{
				"bytesBase64Encoded": base64.StdEncoding.EncodeToString(imgBytes),
				"mimeType":           "image/png",
			},
		}},
	}
	var started struct {
		Name string `json:"name"`
	}
	if err := c.post(ctx, "video", "/v1beta/models/"+modelVideo+":predictLongRunning", body, &started); err != nil {
		return "", err
	}
	if started.Name == "" {
		return "", &Error{Kind: GenerationFailed, Op: "video", Err: fmt.Errorf("backend returned no operation name")}
	}

	uri, err := c.pollVideoOperation(ctx, started.Name)
	if err != nil {
		return "", err
	}

	outFile := filepath.Join(c.outDir, fmt.Sprintf("scene_video_%03d.mp4", c.nextSeq()))
	if err := c.download(ctx, uri, outFile); err != nil {
		return "", err
	}
	return outFile, nil
}

func (c *Client) pollVideoOperation(ctx context.Context, name string) (string, error) {
	deadline := time.Now().Add(c.pollTimeout)
	for {
		var op struct {
			Done     bool `json:"done"`
			Response struct {
				GenerateVideoResponse struct {
					GeneratedSamples []struct {
						Video struct {
							URI string `json:"uri"`
						} `json:"video"`
					} `json:"generatedSamples"`
				} `json:"generateVideoResponse"`
			} `json:"response"`
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := c.get(ctx, "video", "/v1beta/"+name, &op); err != nil {
			return "", err
		}
		if op.Done {
			if op.Error != nil {
				return "", &Error{Kind: GenerationFailed, Op: "video", Err: fmt.Errorf("job failed: %s", op.Error.Message)}
			}
			samples := op.Response.GenerateVideoResponse.GeneratedSamples
			if len(samples) == 0 || samples[0].Video.URI == "" {
				return "", &Error{Kind: GenerationFailed, Op: "video", Err: fmt.Errorf("job finished without a video")}
			}
			return samples[0].Video.URI, nil
		}
		if time.Now().After(deadline) {
			return "", &Error{Kind: Unavailable, Op: "video", Err: fmt.Errorf("job still running after %s", c.pollTimeout)}
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

func (c *Client) download(ctx context.Context, uri, outFile string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: Unavailable, Op: "video", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return classify("video", resp.StatusCode, "download failed")
	}
	f, err := os.Create(outFile)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("save video: %w", err)
	}
	return nil
}

func (c *Client) generate(ctx context.Context, op, model, verb string, req genRequest) (*genResponse, error) {
	var resp genResponse
	if err := c.post(ctx, op, "/v1beta/models/"+model+verb, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, op, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	return c.do(op, req, out)
}

func (c *Client) get(ctx context.Context, op, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(op, req, out)
}

func (c *Client) do(op string, req *http.Request, out any) error {
	if c.apiKey == "" {
		return &Error{Kind: AuthRequired, Op: op, Err: fmt.Errorf("GEMINI_API_KEY not set")}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: Unavailable, Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: Unavailable, Op: op, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return classify(op, resp.StatusCode, string(respBytes))
	}
	if err := json.Unmarshal(respBytes, out); err != nil {
		return &Error{Kind: GenerationFailed, Op: op, Err: fmt.Errorf("parse response: %w", err)}
	}
	return nil
}

// classify maps a raw backend failure onto the error taxonomy.
func classify(op string, status int, body string) error {
	msg := strings.TrimSpace(body)
	if len(msg) > 200 {
		msg = msg[:200]
	}
	err := fmt.Errorf("HTTP %d: %s", status, msg)
	switch {
	case status == http.StatusTooManyRequests,
		strings.Contains(body, "RESOURCE_EXHAUSTED"),
		strings.Contains(body, "quota"):
		return &Error{Kind: RateLimited, Op: op, Err: err}
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return &Error{Kind: AuthRequired, Op: op, Err: err}
	case status >= 500:
		return &Error{Kind: Unavailable, Op: op, Err: err}
	default:
		return &Error{Kind: GenerationFailed, Op: op, Err: err}
	}
}

// PCMDuration returns the playback length of raw s16le mono PCM.
func PCMDuration(byteLen, sampleRate int) float64 {
	return float64(byteLen/2) / float64(sampleRate)
}

func (c *Client) nextSeq() int {
	return int(c.seq.Add(1))
}

func kore() *speechConfig {
	sc := &speechConfig{}
	sc.VoiceConfig.PrebuiltVoiceConfig.VoiceName = "Kore"
	return sc
}

func firstText(resp *genResponse) string {
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.Text != "" {
				return p.Text
			}
		}
	}
	return ""
}

func firstInlineData(resp *genResponse) string {
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				return p.InlineData.Data
			}
		}
	}
	return ""
}

// cleanJSON strips markdown fences if the model wraps its response.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
