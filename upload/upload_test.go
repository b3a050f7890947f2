package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/youtube/v3"

	"cinematic-studio/types"
)

func testVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "final_video.mp4")
	require.NoError(t, os.WriteFile(path, []byte("fake mp4 payload"), 0644))
	return path
}

func testMeta() types.FilmMetadata {
	return types.FilmMetadata{
		Title:       "織田信長の驚きの真実",
		Description: "desc",
		Tags:        "織田信長, 歴史, 雑学",
		Visibility:  types.VisibilityPrivate,
	}
}

func TestUploadTwoStep(t *testing.T) {
	var initReq *http.Request
	var initBody youtube.Video
	var putBody []byte

	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/init", func(w http.ResponseWriter, r *http.Request) {
		initReq = r
		require.NoError(t, json.NewDecoder(r.Body).Decode(&initBody))
		w.Header().Set("Location", srvURL+"/session-abc")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/session-abc", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		putBody, _ = io.ReadAll(r.Body)
		fmt.Fprint(w, `{"id":"vid123"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	srvURL = srv.URL

	u := New(srv.Client(), "22")
	u.initURL = srv.URL + "/init"

	videoID, videoURL, err := u.Upload(context.Background(), testVideo(t), testMeta())
	require.NoError(t, err)

	assert.Equal(t, "vid123", videoID)
	assert.Equal(t, "https://www.youtube.com/watch?v=vid123", videoURL)

	// session init declared the exact payload
	assert.Equal(t, "16", initReq.Header.Get("X-Upload-Content-Length"))
	assert.Equal(t, "video/mp4", initReq.Header.Get("X-Upload-Content-Type"))
	assert.Equal(t, "織田信長の驚きの真実", initBody.Snippet.Title)
	assert.Equal(t, []string{"織田信長", "歴史", "雑学"}, initBody.Snippet.Tags)
	assert.Equal(t, "22", initBody.Snippet.CategoryId)
	assert.Equal(t, "private", initBody.Status.PrivacyStatus)

	assert.Equal(t, []byte("fake mp4 payload"), putBody)
}

func TestUploadAuthDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"insufficient scope"}}`, http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	u := New(srv.Client(), "22")
	u.initURL = srv.URL

	_, _, err := u.Upload(context.Background(), testVideo(t), testMeta())
	require.Error(t, err)
	assert.True(t, IsKind(err, AuthDenied))
	assert.Contains(t, err.Error(), "insufficient scope")
}

func TestUploadSessionInitFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	u := New(srv.Client(), "22")
	u.initURL = srv.URL

	_, _, err := u.Upload(context.Background(), testVideo(t), testMeta())
	assert.True(t, IsKind(err, SessionInitFailed))
}

func TestUploadMissingLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	u := New(srv.Client(), "22")
	u.initURL = srv.URL

	_, _, err := u.Upload(context.Background(), testVideo(t), testMeta())
	assert.True(t, IsKind(err, SessionInitFailed))
}

func TestUploadTransferFailed(t *testing.T) {
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/init", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", srvURL+"/session")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "stream reset", http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	srvURL = srv.URL

	u := New(srv.Client(), "22")
	u.initURL = srv.URL + "/init"

	_, _, err := u.Upload(context.Background(), testVideo(t), testMeta())
	assert.True(t, IsKind(err, TransferFailed))
}

func TestUploadMissingFile(t *testing.T) {
	u := New(http.DefaultClient, "22")
	_, _, err := u.Upload(context.Background(), "/does/not/exist.mp4", testMeta())
	assert.True(t, IsKind(err, TransferFailed))
}

func TestOAuthClientRequiresCredentials(t *testing.T) {
	t.Setenv("YOUTUBE_CLIENT_ID", "")
	t.Setenv("YOUTUBE_CLIENT_SECRET", "")
	t.Setenv("YOUTUBE_REFRESH_TOKEN", "")

	_, err := OAuthClient(context.Background())
	require.Error(t, err)
	assert.True(t, IsKind(err, AuthDenied))
}

func TestDefaultMetadata(t *testing.T) {
	sb := &types.Storyboard{Subject: "織田信長"}
	meta := DefaultMetadata(sb, types.VisibilityUnlisted)

	assert.Equal(t, "織田信長の驚きの真実", meta.Title)
	assert.Contains(t, meta.Description, "織田信長")
	assert.Equal(t, "織田信長, 歴史, 雑学", meta.Tags)
	assert.Equal(t, types.VisibilityUnlisted, meta.Visibility)
}

func TestSplitTags(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitTags("a, b ,c"))
	assert.Equal(t, []string{"solo"}, splitTags("solo"))
	assert.Nil(t, splitTags(" , ,"))
}

func TestLogUpload(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, LogUpload("vid123", "https://youtu.be/vid123", "final.mp4", dir, testMeta()))

	matches, err := filepath.Glob(filepath.Join(dir, "upload_*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	var entry map[string]any
	raw, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &entry))
	assert.Equal(t, "vid123", entry["video_id"])
	assert.Equal(t, "織田信長の驚きの真実", entry["title"])
}
