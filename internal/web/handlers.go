package web

import (
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hpungsan/steno/internal/captions"
	"github.com/hpungsan/steno/internal/config"
	"github.com/hpungsan/steno/internal/errors"
	"github.com/hpungsan/steno/internal/logging"
	"github.com/hpungsan/steno/internal/media"
	"github.com/hpungsan/steno/internal/ops"
	"github.com/hpungsan/steno/internal/render"
)

// maxUploadBytes bounds a single video upload.
const maxUploadBytes = 4 << 30

// Handlers contains the HTTP route handlers.
type Handlers struct {
	db      *sql.DB
	videos  VideoStore
	renders Renderer
	cfg     *config.Config
	logger  *slog.Logger
	version string
	started time.Time
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        h.version,
		"uptime":         time.Since(h.started).Round(time.Second).String(),
		"pollIntervalMs": h.cfg.PollInterval.Std().Milliseconds(),
	})
}

// renderRequest is the POST /render body. Captions is either a full caption
// document or a bare array of captions.
type renderRequest struct {
	VideoID     string          `json:"videoId"`
	Captions    json.RawMessage `json:"captions"`
	AspectRatio string          `json:"aspectRatio"`
	Quality     *int            `json:"quality"`
}

// HandleSubmitRender handles POST /render.
func (h *Handlers) HandleSubmitRender(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		renderError(w, h.logger, err)
		return
	}
	if len(req.Captions) == 0 || string(req.Captions) == "null" {
		renderError(w, h.logger, errors.NewInvalidRequest("captions is required"))
		return
	}
	doc, err := captions.Parse(req.Captions, ".json")
	if err != nil {
		renderError(w, h.logger, err)
		return
	}

	out, err := h.renders.Submit(r.Context(), render.SubmitInput{
		VideoID:     req.VideoID,
		Document:    doc,
		AspectRatio: req.AspectRatio,
		Quality:     req.Quality,
	})
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	renderJSON(w, http.StatusCreated, out)
}

// HandleListRenders handles GET /render.
func (h *Handlers) HandleListRenders(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]any{"jobs": h.renders.List()})
}

// HandleRenderStatus handles GET /render/{jobId}.
func (h *Handlers) HandleRenderStatus(w http.ResponseWriter, r *http.Request) {
	out, err := h.renders.Status(r.PathValue("jobId"))
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleCancelRender handles DELETE /render/{jobId}.
func (h *Handlers) HandleCancelRender(w http.ResponseWriter, r *http.Request) {
	out, err := h.renders.Cancel(r.PathValue("jobId"))
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleRenderOutput handles GET /renders/{file}. Only the output of a
// complete job is served; anything else is NOT_FOUND.
func (h *Handlers) HandleRenderOutput(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("file")
	if filepath.Ext(name) != media.OutputExt {
		renderError(w, h.logger, errors.NewNotFound("render", name))
		return
	}
	status, err := h.renders.Status(strings.TrimSuffix(name, media.OutputExt))
	if err != nil || status.Status != render.StatusComplete || filepath.Base(status.OutputRef) != name {
		renderError(w, h.logger, errors.NewNotFound("render", name))
		return
	}
	path, err := h.videos.OutputFile(name)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	http.ServeFile(w, r, path)
}

// HandleUploadVideo handles POST /videos (multipart field "file").
func (h *Handlers) HandleUploadVideo(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		renderError(w, h.logger, errors.NewInvalidRequestf("multipart field \"file\" is required: %v", err))
		return
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	res, err := h.videos.Save(file, header.Filename)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	h.logger.Info("video uploaded",
		logging.String(logging.FieldVideoID, res.VideoID),
		slog.Int64("bytes", res.Size),
	)
	renderJSON(w, http.StatusCreated, map[string]any{
		"videoId": res.VideoID,
		"size":    res.Size,
	})
}

// HandleGetVideo handles GET /videos/{videoId}.
func (h *Handlers) HandleGetVideo(w http.ResponseWriter, r *http.Request) {
	path, err := h.videos.Resolve(r.PathValue("videoId"))
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	http.ServeFile(w, r, path)
}

// HandleDeleteVideo handles DELETE /videos/{videoId}.
func (h *Handlers) HandleDeleteVideo(w http.ResponseWriter, r *http.Request) {
	videoID := r.PathValue("videoId")
	if err := h.videos.Delete(videoID); err != nil {
		renderError(w, h.logger, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"status": "deleted", "videoId": videoID})
}

// HandleListDocuments handles GET /documents.
func (h *Handlers) HandleListDocuments(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", ops.DefaultListLimit)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	out, err := ops.ListDocuments(r.Context(), h.db, ops.ListInput{Limit: limit, Offset: offset})
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandlePutDocument handles PUT /documents/{videoId}. The body is a JSON or
// YAML caption document, chosen by Content-Type.
func (h *Handlers) HandlePutDocument(w http.ResponseWriter, r *http.Request) {
	expected, err := int64Param(r, "expected_revision")
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		renderError(w, h.logger, errors.NewInvalidRequestf("read body: %v", err))
		return
	}
	doc, err := captions.Parse(data, bodyFormat(r))
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	out, err := ops.PutDocument(r.Context(), h.db, ops.PutInput{
		VideoID:          r.PathValue("videoId"),
		Document:         doc,
		ExpectedRevision: expected,
	})
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleGetDocument handles GET /documents/{videoId}.
func (h *Handlers) HandleGetDocument(w http.ResponseWriter, r *http.Request) {
	out, err := ops.GetDocument(r.Context(), h.db, ops.GetInput{VideoID: r.PathValue("videoId")})
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleDeleteDocument handles DELETE /documents/{videoId}.
func (h *Handlers) HandleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	out, err := ops.DeleteDocument(r.Context(), h.db, ops.DeleteInput{VideoID: r.PathValue("videoId")})
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// patchCaptionRequest is the PATCH body. Absent fields are left unchanged.
type patchCaptionRequest struct {
	Text             *string             `json:"text"`
	Start            *float64            `json:"start"`
	End              *float64            `json:"end"`
	Words            *[]captions.Word    `json:"words"`
	Emphasis         *[]string           `json:"emphasis"`
	Style            *captions.Style     `json:"style"`
	Animation        *captions.Animation `json:"animation"`
	Position         *captions.Position  `json:"position"`
	MaxCharsPerLine  *int                `json:"maxCharsPerLine"`
	ExpectedRevision *int64              `json:"expectedRevision"`
}

// HandlePatchCaption handles PATCH /documents/{videoId}/captions/{captionId}.
func (h *Handlers) HandlePatchCaption(w http.ResponseWriter, r *http.Request) {
	var req patchCaptionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		renderError(w, h.logger, err)
		return
	}
	out, err := ops.PatchCaption(r.Context(), h.db, ops.PatchInput{
		VideoID:          r.PathValue("videoId"),
		CaptionID:        r.PathValue("captionId"),
		Text:             req.Text,
		Start:            req.Start,
		End:              req.End,
		Words:            req.Words,
		Emphasis:         req.Emphasis,
		Style:            req.Style,
		Animation:        req.Animation,
		Position:         req.Position,
		MaxCharsPerLine:  req.MaxCharsPerLine,
		ExpectedRevision: req.ExpectedRevision,
	})
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleTracks handles GET /documents/{videoId}/tracks?epsilon=.
func (h *Handlers) HandleTracks(w http.ResponseWriter, r *http.Request) {
	input := ops.TracksInput{VideoID: r.PathValue("videoId")}
	if raw := r.URL.Query().Get("epsilon"); raw != "" {
		eps, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			renderError(w, h.logger, errors.NewInvalidRequestf("epsilon must be a number: %q", raw))
			return
		}
		input.Epsilon = &eps
	}
	out, err := ops.Tracks(r.Context(), h.db, input)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandlePreview handles GET /documents/{videoId}/preview?frame=&fps=&caption_id=.
func (h *Handlers) HandlePreview(w http.ResponseWriter, r *http.Request) {
	frame, err := intParam(r, "frame", 0)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	fps, err := intParam(r, "fps", h.cfg.FPS)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	out, err := ops.Preview(r.Context(), h.db, ops.PreviewInput{
		VideoID:   r.PathValue("videoId"),
		Frame:     frame,
		FPS:       fps,
		CaptionID: r.URL.Query().Get("caption_id"),
	})
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleStylize handles POST /documents/{videoId}/stylize?theme=.
func (h *Handlers) HandleStylize(w http.ResponseWriter, r *http.Request) {
	vary, err := boolParam(r, "vary_animations")
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	emphasize, err := boolParam(r, "emphasize_keywords")
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	expected, err := int64Param(r, "expected_revision")
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	out, err := ops.Stylize(r.Context(), h.db, ops.StylizeInput{
		VideoID:           r.PathValue("videoId"),
		Theme:             r.URL.Query().Get("theme"),
		VaryAnimations:    vary,
		EmphasizeKeywords: emphasize,
		ExpectedRevision:  expected,
	})
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// bodyFormat maps the request Content-Type to a caption document extension.
func bodyFormat(r *http.Request) string {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.Contains(mediaType, "yaml") {
		return ".yaml"
	}
	return ".json"
}

// intParam parses an integer query parameter, returning def when absent.
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewInvalidRequestf("%s must be an integer: %q", name, raw)
	}
	return v, nil
}

func int64Param(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errors.NewInvalidRequestf("%s must be an integer: %q", name, raw)
	}
	return &v, nil
}

func boolParam(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, errors.NewInvalidRequestf("%s must be true or false: %q", name, raw)
	}
	return &v, nil
}
