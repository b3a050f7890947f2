// Package upload publishes a finished film to YouTube with the
// two-step resumable protocol: an authenticated session-init request
// sized to the exact asset, then the byte transfer to the returned
// session URL. Failures are surfaced verbatim for user-initiated
// retry; resumable-upload recovery belongs to the service, not here.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/youtube/v3"

	"cinematic-studio/types"
)

const defaultInitURL = "https://www.googleapis.com/upload/youtube/v3/videos?uploadType=resumable&part=snippet,status"

// Kind classifies a publishing failure. None are retried locally.
type Kind int

const (
	// AuthDenied: the user cancelled or the credential was rejected.
	AuthDenied Kind = iota
	// SessionInitFailed: the backend rejected the metadata/session.
	SessionInitFailed
	// TransferFailed: the byte stream was rejected or interrupted.
	TransferFailed
)

func (k Kind) String() string {
	switch k {
	case AuthDenied:
		return "auth_denied"
	case SessionInitFailed:
		return "session_init_failed"
	default:
		return "transfer_failed"
	}
}

// Error is a classified publishing failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("upload: %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err carries the given classification.
func IsKind(err error, k Kind) bool {
	var ue *Error
	return errors.As(err, &ue) && ue.Kind == k
}

// Uploader performs the two-step resumable upload.
type Uploader struct {
	client     *http.Client
	initURL    string
	categoryID string
}

// New creates an Uploader over an authenticated HTTP client.
func New(client *http.Client, categoryID string) *Uploader {
	return &Uploader{client: client, initURL: defaultInitURL, categoryID: categoryID}
}

// OAuthClient builds the env-credential OAuth2 client
// (YOUTUBE_CLIENT_ID / YOUTUBE_CLIENT_SECRET / YOUTUBE_REFRESH_TOKEN).
func OAuthClient(ctx context.Context) (*http.Client, error) {
	clientID := os.Getenv("YOUTUBE_CLIENT_ID")
	clientSecret := os.Getenv("YOUTUBE_CLIENT_SECRET")
	refreshToken := os.Getenv("YOUTUBE_REFRESH_TOKEN")
	if clientID == "" || clientSecret == "" || refreshToken == "" {
		return nil, &Error{Kind: AuthDenied, Err: fmt.Errorf("YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET or YOUTUBE_REFRESH_TOKEN not set")}
	}

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope},
	}
	token := &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(-time.Hour), // force refresh
	}
	return oauth2.NewClient(ctx, conf.TokenSource(ctx, token)), nil
}

// Upload publishes the asset: session init sized to the exact byte
// length and declared content type, then the byte transfer. Returns
// the video ID and watch URL.
func (u *Uploader) Upload(ctx context.Context, videoPath string, meta types.FilmMetadata) (string, string, error) {
	f, err := os.Open(videoPath)
	if err != nil {
		return "", "", &Error{Kind: TransferFailed, Err: fmt.Errorf("open asset: %w", err)}
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return "", "", &Error{Kind: TransferFailed, Err: err}
	}

	log.Printf("[upload] Uploading %q (%.1f MB)...", meta.Title, float64(fi.Size())/1024/1024)

	sessionURL, err := u.initSession(ctx, meta, fi.Size())
	if err != nil {
		return "", "", err
	}

	videoID, err := u.transfer(ctx, sessionURL, f, fi.Size())
	if err != nil {
		return "", "", err
	}

	watchURL := fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
	log.Printf("[upload] ✅ Uploaded: %s", watchURL)
	return videoID, watchURL, nil
}

// initSession exchanges metadata for the upload session URL.
func (u *Uploader) initSession(ctx context.Context, meta types.FilmMetadata, size int64) (string, error) {
	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       meta.Title,
			Description: meta.Description,
			Tags:        splitTags(meta.Tags),
			CategoryId:  u.categoryID,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           string(meta.Visibility),
			SelfDeclaredMadeForKids: false,
		},
	}
	body, err := json.Marshal(video)
	if err != nil {
		return "", &Error{Kind: SessionInitFailed, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.initURL, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Kind: SessionInitFailed, Err: err}
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Upload-Content-Length", fmt.Sprintf("%d", size))
	req.Header.Set("X-Upload-Content-Type", "video/mp4")

	resp, err := u.client.Do(req)
	if err != nil {
		return "", &Error{Kind: SessionInitFailed, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", &Error{Kind: AuthDenied, Err: fmt.Errorf("session init: %s", respError(resp))}
	case resp.StatusCode != http.StatusOK:
		return "", &Error{Kind: SessionInitFailed, Err: fmt.Errorf("session init: %s", respError(resp))}
	}

	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", &Error{Kind: SessionInitFailed, Err: fmt.Errorf("no upload URL in session response")}
	}
	return loc, nil
}

// transfer streams the asset bytes to the session URL.
func (u *Uploader) transfer(ctx context.Context, sessionURL string, r io.Reader, size int64) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURL, r)
	if err != nil {
		return "", &Error{Kind: TransferFailed, Err: err}
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "video/mp4")

	resp, err := u.client.Do(req)
	if err != nil {
		return "", &Error{Kind: TransferFailed, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &Error{Kind: TransferFailed, Err: fmt.Errorf("transfer: %s", respError(resp))}
	}

	var uploaded struct {
		Id string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", &Error{Kind: TransferFailed, Err: fmt.Errorf("parse upload response: %w", err)}
	}
	return uploaded.Id, nil
}

// DefaultMetadata pre-fills the publish form from the storyboard.
func DefaultMetadata(sb *types.Storyboard, visibility types.Visibility) types.FilmMetadata {
	subject := strings.ReplaceAll(sb.Subject, " ", "")
	return types.FilmMetadata{
		Title:       fmt.Sprintf("%sの驚きの真実", sb.Subject),
		Description: fmt.Sprintf("歴史の教科書には載らない%sの物語。#%s #歴史 #AI #ショート動画", sb.Subject, subject),
		Tags:        fmt.Sprintf("%s, 歴史, 雑学", sb.Subject),
		Visibility:  visibility,
	}
}

// LogUpload saves the upload result next to the other run artifacts.
func LogUpload(videoID, videoURL, videoFile, outDir string, meta types.FilmMetadata) error {
	entry := map[string]any{
		"video_id":    videoID,
		"video_url":   videoURL,
		"title":       meta.Title,
		"visibility":  meta.Visibility,
		"uploaded_at": time.Now().UTC().Format(time.RFC3339),
		"video_file":  videoFile,
	}
	data, _ := json.MarshalIndent(entry, "", "  ")
	logFile := fmt.Sprintf("%s/upload_%s.json", outDir, time.Now().Format("20060102_150405"))
	if err := os.WriteFile(logFile, data, 0644); err != nil {
		return err
	}
	log.Printf("[upload] Upload log saved: %s", logFile)
	return nil
}

func splitTags(tags string) []string {
	var out []string
	for _, t := range strings.Split(tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func respError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", resp.StatusCode, apiErr.Error.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", resp.StatusCode, resp.Status)
}
