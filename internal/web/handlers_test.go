package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/steno/internal/config"
	"github.com/hpungsan/steno/internal/db"
	"github.com/hpungsan/steno/internal/media"
	"github.com/hpungsan/steno/internal/render"
)

// fileEngine writes a placeholder output instead of running ffmpeg.
type fileEngine struct{}

func (fileEngine) Render(ctx context.Context, comp render.Composition, progress render.ProgressFunc) error {
	progress(50)
	return os.WriteFile(comp.OutputPath, []byte("rendered"), 0600)
}

type testEnv struct {
	handler http.Handler
	orch    *render.Orchestrator
}

func setupTest(t *testing.T) *testEnv {
	t.Helper()
	return setupTestEngine(t, fileEngine{})
}

func setupTestEngine(t *testing.T, engine render.Engine) *testEnv {
	t.Helper()
	root := t.TempDir()
	database, err := db.Init(root)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	store, err := media.Init(root)
	require.NoError(t, err)

	orch := render.NewOrchestrator(nil, store, engine, render.DefaultOptions(), nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = orch.Shutdown(ctx)
	})

	srv := NewServer(Deps{
		DB:      database,
		Videos:  store,
		Renders: orch,
		Config:  config.DefaultConfig(),
		Version: "test",
	})
	return &testEnv{handler: srv.Handler, orch: orch}
}

func (e *testEnv) do(t *testing.T, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) uploadVideo(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "clip.mp4")
	require.NoError(t, err)
	_, err = part.Write([]byte("not really a video"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := e.do(t, http.MethodPost, "/videos", &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var out struct {
		VideoID string `json:"videoId"`
	}
	decodeBody(t, w, &out)
	require.NotEmpty(t, out.VideoID)
	return out.VideoID
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst), w.Body.String())
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Status  int    `json:"status"`
	} `json:"error"`
}

func requireError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	var body errorBody
	decodeBody(t, w, &body)
	require.Equal(t, code, body.Error.Code)
	require.Equal(t, status, body.Error.Status)
}

const captionsJSON = `[
	{"id":"a","text":"Hello world","start":0,"end":1.5,
	 "words":[{"text":"Hello","start":0,"end":0.7},{"text":"world","start":0.7,"end":1.5}]},
	{"id":"b","text":"Again","start":1,"end":2}
]`

func TestHealth(t *testing.T) {
	env := setupTest(t)

	w := env.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var out map[string]any
	decodeBody(t, w, &out)
	require.Equal(t, "ok", out["status"])
	require.Equal(t, "test", out["version"])
	require.Contains(t, out, "uptime")
	require.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestVideos_UploadGetDelete(t *testing.T) {
	env := setupTest(t)
	videoID := env.uploadVideo(t)

	w := env.do(t, http.MethodGet, "/videos/"+videoID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "not really a video", w.Body.String())

	w = env.do(t, http.MethodDelete, "/videos/"+videoID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var out map[string]string
	decodeBody(t, w, &out)
	require.Equal(t, map[string]string{"status": "deleted", "videoId": videoID}, out)

	requireError(t, env.do(t, http.MethodGet, "/videos/"+videoID, nil, ""), http.StatusNotFound, "NOT_FOUND")
}

func TestVideos_UploadRejectsUnknownFormat(t *testing.T) {
	env := setupTest(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, _ = part.Write([]byte("text"))
	require.NoError(t, mw.Close())

	requireError(t, env.do(t, http.MethodPost, "/videos", &buf, mw.FormDataContentType()), http.StatusBadRequest, "INVALID_REQUEST")
	requireError(t, env.do(t, http.MethodPost, "/videos", strings.NewReader("{}"), "application/json"), http.StatusBadRequest, "INVALID_REQUEST")
}

func TestRender_Lifecycle(t *testing.T) {
	env := setupTest(t)
	videoID := env.uploadVideo(t)

	body := `{"videoId":"` + videoID + `","captions":` + captionsJSON + `,"aspectRatio":"9:16","quality":90}`
	w := env.do(t, http.MethodPost, "/render", strings.NewReader(body), "application/json")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var submitted render.SubmitOutput
	decodeBody(t, w, &submitted)
	require.NotEmpty(t, submitted.JobID)
	require.Equal(t, render.StatusPending, submitted.Status)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := env.orch.Wait(ctx, submitted.JobID)
	require.NoError(t, err)

	w = env.do(t, http.MethodGet, "/render/"+submitted.JobID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var status render.StatusOutput
	decodeBody(t, w, &status)
	require.Equal(t, render.StatusComplete, status.Status)
	require.Equal(t, 100, status.Progress)
	require.Equal(t, "/renders/"+submitted.JobID+media.OutputExt, status.OutputURL)

	w = env.do(t, http.MethodGet, status.OutputURL, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "rendered", w.Body.String())

	// Cancelling a finished job leaves it unchanged.
	w = env.do(t, http.MethodDelete, "/render/"+submitted.JobID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var cancelled render.CancelOutput
	decodeBody(t, w, &cancelled)
	require.False(t, cancelled.Cancelled)
	require.Equal(t, string(render.StatusComplete), cancelled.Status)

	w = env.do(t, http.MethodGet, "/render", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Jobs []render.Snapshot `json:"jobs"`
	}
	decodeBody(t, w, &list)
	require.Len(t, list.Jobs, 1)
	require.Equal(t, "9:16", list.Jobs[0].AspectRatio)
}

// stallingEngine leaves a partial output and a stray overlay behind, then
// blocks until the job is cancelled.
type stallingEngine struct {
	started chan string
}

func (e stallingEngine) Render(ctx context.Context, comp render.Composition, progress render.ProgressFunc) error {
	if err := os.WriteFile(comp.OutputPath, []byte("partial"), 0600); err != nil {
		return err
	}
	overlay := strings.TrimSuffix(comp.OutputPath, media.OutputExt) + ".ass"
	if err := os.WriteFile(overlay, []byte("[Script Info]"), 0600); err != nil {
		return err
	}
	e.started <- comp.JobID
	<-ctx.Done()
	return ctx.Err()
}

func TestRender_OutputOnlyServedWhenComplete(t *testing.T) {
	engine := stallingEngine{started: make(chan string, 1)}
	env := setupTestEngine(t, engine)
	videoID := env.uploadVideo(t)

	body := `{"videoId":"` + videoID + `","captions":` + captionsJSON + `}`
	w := env.do(t, http.MethodPost, "/render", strings.NewReader(body), "application/json")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var submitted render.SubmitOutput
	decodeBody(t, w, &submitted)

	select {
	case jobID := <-engine.started:
		require.Equal(t, submitted.JobID, jobID)
	case <-time.After(5 * time.Second):
		t.Fatal("engine never started")
	}
	status, err := env.orch.Status(submitted.JobID)
	require.NoError(t, err)
	require.Equal(t, render.StatusRendering, status.Status)

	requireError(t, env.do(t, http.MethodGet, "/renders/"+submitted.JobID+media.OutputExt, nil, ""), http.StatusNotFound, "NOT_FOUND")
	requireError(t, env.do(t, http.MethodGet, "/renders/"+submitted.JobID+".ass", nil, ""), http.StatusNotFound, "NOT_FOUND")

	w = env.do(t, http.MethodDelete, "/render/"+submitted.JobID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = env.orch.Wait(ctx, submitted.JobID)
	require.NoError(t, err)

	requireError(t, env.do(t, http.MethodGet, "/renders/"+submitted.JobID+media.OutputExt, nil, ""), http.StatusNotFound, "NOT_FOUND")
}

func TestRender_DocumentBody(t *testing.T) {
	env := setupTest(t)
	videoID := env.uploadVideo(t)

	body := `{"videoId":"` + videoID + `","captions":{"captions":` + captionsJSON + `,"settings":{"color":"#00FF00"}}}`
	w := env.do(t, http.MethodPost, "/render", strings.NewReader(body), "application/json")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestRender_Errors(t *testing.T) {
	env := setupTest(t)
	videoID := env.uploadVideo(t)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"malformed json", `{"videoId":`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"missing captions", `{"videoId":"` + videoID + `"}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"empty captions", `{"videoId":"` + videoID + `","captions":[]}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"missing video id", `{"captions":` + captionsJSON + `}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"bad aspect ratio", `{"videoId":"` + videoID + `","captions":` + captionsJSON + `,"aspectRatio":"2:1"}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"quality out of range", `{"videoId":"` + videoID + `","captions":` + captionsJSON + `,"quality":101}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown video", `{"videoId":"6f1c2d9a-0000-4000-8000-000000000000","captions":` + captionsJSON + `}`, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/render", strings.NewReader(tc.body), "application/json")
			requireError(t, w, tc.status, tc.code)
		})
	}

	requireError(t, env.do(t, http.MethodGet, "/render/missing", nil, ""), http.StatusNotFound, "NOT_FOUND")
	requireError(t, env.do(t, http.MethodDelete, "/render/missing", nil, ""), http.StatusNotFound, "NOT_FOUND")
	requireError(t, env.do(t, http.MethodGet, "/renders/missing.mp4", nil, ""), http.StatusNotFound, "NOT_FOUND")
}

func TestDocuments_Session(t *testing.T) {
	env := setupTest(t)

	w := env.do(t, http.MethodPut, "/documents/vid-1", strings.NewReader(captionsJSON), "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/documents/vid-1/tracks", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var tracksOut struct {
		Lanes     map[string]int `json:"lanes"`
		LaneCount int            `json:"lane_count"`
	}
	decodeBody(t, w, &tracksOut)
	require.Equal(t, 2, tracksOut.LaneCount)
	require.Equal(t, map[string]int{"a": 0, "b": 1}, tracksOut.Lanes)

	w = env.do(t, http.MethodPatch, "/documents/vid-1/captions/b", strings.NewReader(`{"start":1.5,"end":2.5}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var patched struct {
		Revision int64 `json:"revision"`
	}
	decodeBody(t, w, &patched)
	require.Equal(t, int64(2), patched.Revision)

	w = env.do(t, http.MethodGet, "/documents/vid-1/tracks", nil, "")
	decodeBody(t, w, &tracksOut)
	require.Equal(t, 1, tracksOut.LaneCount)

	w = env.do(t, http.MethodGet, "/documents/vid-1/preview?frame=15&fps=30", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var preview struct {
		Captions []struct {
			CaptionID string `json:"captionId"`
		} `json:"captions"`
	}
	decodeBody(t, w, &preview)
	require.Len(t, preview.Captions, 1)

	w = env.do(t, http.MethodPost, "/documents/vid-1/stylize?theme=bold", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/documents", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Items []struct {
			VideoID  string `json:"video_id"`
			Revision int64  `json:"revision"`
		} `json:"items"`
	}
	decodeBody(t, w, &list)
	require.Len(t, list.Items, 1)
	require.Equal(t, int64(3), list.Items[0].Revision)

	w = env.do(t, http.MethodDelete, "/documents/vid-1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	requireError(t, env.do(t, http.MethodGet, "/documents/vid-1", nil, ""), http.StatusNotFound, "NOT_FOUND")
}

func TestDocuments_YAMLAndConflict(t *testing.T) {
	env := setupTest(t)

	yamlDoc := "captions:\n  - id: a\n    text: Hi\n    start: 0\n    end: 1\n"
	w := env.do(t, http.MethodPut, "/documents/vid-2", strings.NewReader(yamlDoc), "application/yaml")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPut, "/documents/vid-2?expected_revision=7", strings.NewReader(yamlDoc), "application/yaml")
	requireError(t, w, http.StatusConflict, "CONFLICT")

	requireError(t, env.do(t, http.MethodPost, "/documents/vid-2/stylize?theme=neon", nil, ""), http.StatusBadRequest, "INVALID_REQUEST")
	requireError(t, env.do(t, http.MethodGet, "/documents/vid-2/preview?frame=abc", nil, ""), http.StatusBadRequest, "INVALID_REQUEST")
	requireError(t, env.do(t, http.MethodGet, "/documents/vid-2/tracks?epsilon=-1", nil, ""), http.StatusBadRequest, "INVALID_REQUEST")
	requireError(t, env.do(t, http.MethodPatch, "/documents/vid-2/captions/zz", strings.NewReader(`{"text":"x"}`), "application/json"), http.StatusNotFound, "NOT_FOUND")
}

func TestCORS(t *testing.T) {
	env := setupTest(t)

	req := httptest.NewRequest(http.MethodOptions, "/render", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	require.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
