package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"github.com/scenesolver/scenesolver/pkg/nn"
	"github.com/scenesolver/scenesolver/pkg/nn/nntest"
	"github.com/scenesolver/scenesolver/server/config"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*Server
	http   *httptest.Server
	script *nntest.Script
}

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) *testServer {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		DB:             dbh.MakeSqliteConfig(filepath.Join(root, "history.sqlite")),
		TempPath:       filepath.Join(root, "temp"),
		PreviewStorage: config.StorageConfig{Filesystem: &config.StorageConfigFS{Root: filepath.Join(root, "previews")}},
	}
	if mutate != nil {
		mutate(cfg)
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	script := &nntest.Script{
		Default: nntest.Frame{
			Scene:      nn.SceneNormal,
			Caption:    "a man holding a gun in a store",
			Detections: []nn.ObjectDetection{nntest.Detect(nn.EvidenceGun, 0.91, 4, 4, 20, 20)},
		},
	}
	s, err := NewServer(logs.NewTestingLog(t), cfg, nntest.Services(script, &nntest.Summarizer{}))
	require.NoError(t, err)
	ts := &testServer{
		Server: s,
		http:   httptest.NewServer(s.Handler()),
		script: script,
	}
	t.Cleanup(func() {
		ts.http.Close()
		s.Shutdown()
		require.NoError(t, <-s.ShutdownComplete)
	})
	return ts
}

func makePNG(t *testing.T) []byte {
	buf := bytes.Buffer{}
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 32, 32))))
	return buf.Bytes()
}

// post uploads content as the 'media' field. If field is empty, the form has no file at all.
func (ts *testServer) post(t *testing.T, field, filename, contentType string, content []byte) (int, map[string]any) {
	t.Helper()
	body := bytes.Buffer{}
	mw := multipart.NewWriter(&body)
	if field != "" {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%v"; filename="%v"`, field, filename))
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		part.Write(content)
	} else {
		mw.WriteField("comment", "nothing here")
	}
	require.NoError(t, mw.Close())
	resp, err := http.Post(ts.http.URL+"/api/analyze", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode, decode(t, resp.Body)
}

func (ts *testServer) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(ts.http.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func decode(t *testing.T, r io.Reader) map[string]any {
	m := map[string]any{}
	require.NoError(t, json.NewDecoder(r).Decode(&m))
	return m
}

func TestPing(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, body := ts.get(t, "/api/ping")
	require.Equal(t, 200, resp.StatusCode)
	require.Contains(t, string(body), `"time":`)
}

func TestAnalyzeImage(t *testing.T) {
	ts := newTestServer(t, nil)
	code, res := ts.post(t, "media", "shop.png", "image/png", makePNG(t))
	require.Equal(t, 200, code, res)
	require.Equal(t, "a man holding a gun in a store", res["quickCaption"])
	require.Equal(t, "The image has been classified as 'robbery'. Key objects detected include: gun.", res["fullStory"])
	require.Equal(t, []any{map[string]any{"keyword": "Robbery", "match": float64(95)}}, res["sceneKeywords"])
	require.Equal(t, []any{map[string]any{"object": "gun", "match": float64(91), "box": []any{float64(4), float64(4), float64(20), float64(20)}}}, res["foundObjects"])
	require.Equal(t, "gun", res["evidence"])
	id := int64(res["id"].(float64))
	require.NotZero(t, id)

	resp, body := ts.get(t, fmt.Sprintf("/api/analyses/%v", id))
	require.Equal(t, 200, resp.StatusCode)
	rec := decode(t, bytes.NewReader(body))
	require.Equal(t, "robbery", rec["finalLabel"])
	require.Equal(t, "image", rec["mediaKind"])
	require.Equal(t, "shop.png", rec["filename"])
	require.NotEmpty(t, rec["preview"])
	require.Equal(t, "a man holding a gun in a store", rec["result"].(map[string]any)["quickCaption"])

	resp, body = ts.get(t, fmt.Sprintf("/api/analyses/%v/preview", id))
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	img, err := png.Decode(bytes.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, 32, img.Bounds().Dx())

	resp, body = ts.get(t, "/api/analyses")
	require.Equal(t, 200, resp.StatusCode)
	list := []map[string]any{}
	require.NoError(t, json.Unmarshal(body, &list))
	require.Equal(t, 1, len(list))

	resp, _ = ts.get(t, "/api/analyses/999")
	require.Equal(t, 404, resp.StatusCode)
	resp, _ = ts.get(t, "/api/analyses?label=parade")
	require.Equal(t, 400, resp.StatusCode)
}

func TestAnalyzeRejects(t *testing.T) {
	ts := newTestServer(t, nil)

	code, res := ts.post(t, "", "", "", nil)
	require.Equal(t, 400, code)
	require.NotEmpty(t, res["error"])

	code, res = ts.post(t, "media", "empty.jpg", "image/jpeg", nil)
	require.Equal(t, 400, code)
	require.NotEmpty(t, res["error"])

	code, res = ts.post(t, "media", "notes.txt", "text/plain", []byte("hello"))
	require.Equal(t, 415, code)
	require.Contains(t, res["error"], "text/plain")

	// Rejected uploads never reach the models
	require.Empty(t, ts.script.CaptionTokens())
}

func TestAnalyzeFailureIsGeneric(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.script.Default.Err = errors.New("CUDA out of memory at 0xdeadbeef")
	code, res := ts.post(t, "media", "x.jpg", "image/jpeg", []byte("jpeg"))
	require.Equal(t, 500, code)
	require.Equal(t, map[string]any{"error": internalErrorMessage}, res)

	// An unreadable video is also a generic failure, and leaves no scratch files behind
	ts.script.Default.Err = nil
	code, res = ts.post(t, "media", "clip.mp4", "video/mp4", []byte("this is not a video"))
	require.Equal(t, 500, code)
	require.Equal(t, internalErrorMessage, res["error"])
	require.Equal(t, 0, ts.tempFiles.Count())
}

func TestAnalyzeRateLimit(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimitPerMinute = 1
	})
	code, _ := ts.post(t, "media", "a.png", "image/png", makePNG(t))
	require.Equal(t, 200, code)

	body := bytes.Buffer{}
	mw := multipart.NewWriter(&body)
	mw.Close()
	resp, err := http.Post(ts.http.URL+"/api/analyze", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	errResp := map[string]string{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	require.Contains(t, errResp["error"], "Too many requests")
}

func TestHistoryIsPurged(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.MaxHistory = 2
	})
	for i := 0; i < 4; i++ {
		code, _ := ts.post(t, "media", "a.png", "image/png", makePNG(t))
		require.Equal(t, 200, code)
	}
	_, body := ts.get(t, "/api/analyses")
	list := []map[string]any{}
	require.NoError(t, json.Unmarshal(body, &list))
	require.Equal(t, 2, len(list))
}
