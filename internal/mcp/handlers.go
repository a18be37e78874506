package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/steno/internal/animation"
	"github.com/hpungsan/steno/internal/captions"
	"github.com/hpungsan/steno/internal/config"
	"github.com/hpungsan/steno/internal/errors"
	"github.com/hpungsan/steno/internal/ops"
	"github.com/hpungsan/steno/internal/render"
	"github.com/hpungsan/steno/internal/tracks"
)

// Renderer is the render job surface exposed as tools.
type Renderer interface {
	Submit(ctx context.Context, input render.SubmitInput) (*render.SubmitOutput, error)
	Status(id string) (*render.StatusOutput, error)
	Cancel(id string) (*render.CancelOutput, error)
	List() []render.Snapshot
}

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db         *sql.DB
	renders    Renderer
	cfg        *config.Config
	exportsDir string
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, renders Renderer, cfg *config.Config) *Handlers {
	return &Handlers{
		db:         db,
		renders:    renders,
		cfg:        cfg,
		exportsDir: filepath.Join(cfg.StorageDir, "exports"),
	}
}

// Request types for each tool

// InlineCaptions carries a caption list and optional settings given
// directly in tool arguments.
type InlineCaptions struct {
	Captions json.RawMessage `json:"captions,omitempty"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

func (in InlineCaptions) present() bool {
	return len(in.Captions) > 0 && string(in.Captions) != "null"
}

// document assembles and validates the inline caption document.
func (in InlineCaptions) document() (*captions.Document, error) {
	if !in.present() {
		return nil, errors.NewInvalidRequest("captions is required")
	}
	raw := map[string]json.RawMessage{"captions": in.Captions}
	if len(in.Settings) > 0 && string(in.Settings) != "null" {
		raw["settings"] = in.Settings
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return captions.Parse(data, ".json")
}

// RenderSubmitRequest represents the arguments for render_submit.
type RenderSubmitRequest struct {
	InlineCaptions
	VideoID         string `json:"video_id"`
	DocumentVideoID string `json:"document_video_id,omitempty"`
	AspectRatio     string `json:"aspect_ratio,omitempty"`
	Quality         *int   `json:"quality,omitempty"`
}

// JobRequest represents the arguments for render_status and render_cancel.
type JobRequest struct {
	JobID string `json:"job_id"`
}

// TracksAssignRequest represents the arguments for tracks_assign.
type TracksAssignRequest struct {
	InlineCaptions
	VideoID string   `json:"video_id,omitempty"`
	Epsilon *float64 `json:"epsilon,omitempty"`
}

// AnimationStateRequest represents the arguments for animation_state.
type AnimationStateRequest struct {
	InlineCaptions
	VideoID   string `json:"video_id,omitempty"`
	Frame     int    `json:"frame"`
	FPS       int    `json:"fps,omitempty"`
	CaptionID string `json:"caption_id,omitempty"`
}

// DocumentPutRequest represents the arguments for document_put.
type DocumentPutRequest struct {
	InlineCaptions
	VideoID          string `json:"video_id"`
	ExpectedRevision *int64 `json:"expected_revision,omitempty"`
}

// DocumentRequest represents the arguments for document_get and document_delete.
type DocumentRequest struct {
	VideoID string `json:"video_id"`
}

// DocumentListRequest represents the arguments for document_list.
type DocumentListRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// DocumentPatchRequest represents the arguments for document_patch_caption.
type DocumentPatchRequest struct {
	VideoID          string              `json:"video_id"`
	CaptionID        string              `json:"caption_id"`
	Text             *string             `json:"text,omitempty"`
	Start            *float64            `json:"start,omitempty"`
	End              *float64            `json:"end,omitempty"`
	Words            *[]captions.Word    `json:"words,omitempty"`
	Emphasis         *[]string           `json:"emphasis,omitempty"`
	Style            *captions.Style     `json:"style,omitempty"`
	Animation        *captions.Animation `json:"animation,omitempty"`
	Position         *captions.Position  `json:"position,omitempty"`
	MaxCharsPerLine  *int                `json:"max_chars_per_line,omitempty"`
	ExpectedRevision *int64              `json:"expected_revision,omitempty"`
}

// DocumentStylizeRequest represents the arguments for document_stylize.
type DocumentStylizeRequest struct {
	VideoID           string `json:"video_id"`
	Theme             string `json:"theme,omitempty"`
	VaryAnimations    *bool  `json:"vary_animations,omitempty"`
	EmphasizeKeywords *bool  `json:"emphasize_keywords,omitempty"`
	ExpectedRevision  *int64 `json:"expected_revision,omitempty"`
}

// DocumentExportRequest represents the arguments for document_export.
type DocumentExportRequest struct {
	VideoID string `json:"video_id"`
	Path    string `json:"path,omitempty"`
}

// DocumentImportRequest represents the arguments for document_import.
type DocumentImportRequest struct {
	VideoID string `json:"video_id"`
	Path    string `json:"path"`
	Replace bool   `json:"replace,omitempty"`
}

// TracksAssignOutput is the tracks_assign result for inline captions.
type TracksAssignOutput struct {
	Epsilon   float64           `json:"epsilon"`
	Lanes     tracks.Assignment `json:"lanes"`
	LaneCount int               `json:"lane_count"`
	Rows      [][]string        `json:"rows"`
}

// AnimationStateOutput is the animation_state result for inline captions.
type AnimationStateOutput struct {
	Frame    int                      `json:"frame"`
	FPS      int                      `json:"fps"`
	Time     float64                  `json:"time"`
	Captions []animation.CaptionFrame `json:"captions"`
}

// Handler implementations

// HandleRenderSubmit handles the render_submit tool call.
func (h *Handlers) HandleRenderSubmit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RenderSubmitRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	var doc *captions.Document
	if input.DocumentVideoID != "" {
		stored, err := ops.GetDocument(ctx, h.db, ops.GetInput{VideoID: input.DocumentVideoID})
		if err != nil {
			return errorResult(err), nil
		}
		doc = stored.Document
	} else if doc, err = input.document(); err != nil {
		return errorResult(err), nil
	}

	result, err := h.renders.Submit(ctx, render.SubmitInput{
		VideoID:     input.VideoID,
		Document:    doc,
		AspectRatio: input.AspectRatio,
		Quality:     input.Quality,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleRenderStatus handles the render_status tool call.
func (h *Handlers) HandleRenderStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[JobRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := h.renders.Status(input.JobID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleRenderCancel handles the render_cancel tool call.
func (h *Handlers) HandleRenderCancel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[JobRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := h.renders.Cancel(input.JobID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleRenderList handles the render_list tool call.
func (h *Handlers) HandleRenderList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(map[string]any{"jobs": h.renders.List()})
}

// HandleTracksAssign handles the tracks_assign tool call.
func (h *Handlers) HandleTracksAssign(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TracksAssignRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	if !input.present() {
		result, err := ops.Tracks(ctx, h.db, ops.TracksInput{VideoID: input.VideoID, Epsilon: input.Epsilon})
		if err != nil {
			return errorResult(err), nil
		}
		return successResult(result)
	}

	epsilon := tracks.DefaultEpsilon
	if input.Epsilon != nil {
		if *input.Epsilon < 0 {
			return errorResult(errors.NewInvalidRequest("epsilon must be >= 0")), nil
		}
		epsilon = *input.Epsilon
	}
	doc, err := input.document()
	if err != nil {
		return errorResult(err), nil
	}
	layout := tracks.LayoutDocument(doc, epsilon)
	return successResult(TracksAssignOutput{
		Epsilon:   epsilon,
		Lanes:     layout.Lanes,
		LaneCount: layout.LaneCount,
		Rows:      layout.Rows,
	})
}

// HandleAnimationState handles the animation_state tool call.
func (h *Handlers) HandleAnimationState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AnimationStateRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	if !input.present() {
		result, err := ops.Preview(ctx, h.db, ops.PreviewInput{
			VideoID:   input.VideoID,
			Frame:     input.Frame,
			FPS:       input.FPS,
			CaptionID: input.CaptionID,
		})
		if err != nil {
			return errorResult(err), nil
		}
		return successResult(result)
	}

	if input.Frame < 0 {
		return errorResult(errors.NewInvalidRequest("frame must be >= 0")), nil
	}
	fps := input.FPS
	if fps == 0 {
		fps = ops.DefaultPreviewFPS
	}
	if fps < 0 {
		return errorResult(errors.NewInvalidRequest("fps must be > 0")), nil
	}
	doc, err := input.document()
	if err != nil {
		return errorResult(err), nil
	}
	if input.CaptionID != "" {
		if _, ok := doc.Caption(input.CaptionID); !ok {
			return errorResult(errors.NewNotFound("caption", input.CaptionID)), nil
		}
	}

	frames := []animation.CaptionFrame{}
	for _, cf := range animation.Sample(doc, input.Frame, fps) {
		if input.CaptionID == "" || cf.CaptionID == input.CaptionID {
			frames = append(frames, cf)
		}
	}
	return successResult(AnimationStateOutput{
		Frame:    input.Frame,
		FPS:      fps,
		Time:     float64(input.Frame) / float64(fps),
		Captions: frames,
	})
}

// HandleDocumentPut handles the document_put tool call.
func (h *Handlers) HandleDocumentPut(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DocumentPutRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	doc, err := input.document()
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.PutDocument(ctx, h.db, ops.PutInput{
		VideoID:          input.VideoID,
		Document:         doc,
		ExpectedRevision: input.ExpectedRevision,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDocumentGet handles the document_get tool call.
func (h *Handlers) HandleDocumentGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DocumentRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.GetDocument(ctx, h.db, ops.GetInput{VideoID: input.VideoID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDocumentList handles the document_list tool call.
func (h *Handlers) HandleDocumentList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DocumentListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.ListDocuments(ctx, h.db, ops.ListInput{Limit: input.Limit, Offset: input.Offset})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDocumentDelete handles the document_delete tool call.
func (h *Handlers) HandleDocumentDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DocumentRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.DeleteDocument(ctx, h.db, ops.DeleteInput{VideoID: input.VideoID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDocumentPatch handles the document_patch_caption tool call.
func (h *Handlers) HandleDocumentPatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DocumentPatchRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.PatchCaption(ctx, h.db, ops.PatchInput{
		VideoID:          input.VideoID,
		CaptionID:        input.CaptionID,
		Text:             input.Text,
		Start:            input.Start,
		End:              input.End,
		Words:            input.Words,
		Emphasis:         input.Emphasis,
		Style:            input.Style,
		Animation:        input.Animation,
		Position:         input.Position,
		MaxCharsPerLine:  input.MaxCharsPerLine,
		ExpectedRevision: input.ExpectedRevision,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDocumentStylize handles the document_stylize tool call.
func (h *Handlers) HandleDocumentStylize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DocumentStylizeRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.Stylize(ctx, h.db, ops.StylizeInput{
		VideoID:           input.VideoID,
		Theme:             input.Theme,
		VaryAnimations:    input.VaryAnimations,
		EmphasizeKeywords: input.EmphasizeKeywords,
		ExpectedRevision:  input.ExpectedRevision,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDocumentExport handles the document_export tool call.
func (h *Handlers) HandleDocumentExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DocumentExportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.Export(ctx, h.db, h.exportsDir, ops.ExportInput{VideoID: input.VideoID, Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDocumentImport handles the document_import tool call.
func (h *Handlers) HandleDocumentImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DocumentImportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.Import(ctx, h.db, []string{h.exportsDir}, ops.ImportInput{
		VideoID: input.VideoID,
		Path:    input.Path,
		Replace: input.Replace,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	sErr := errors.As(err)
	errorObj := map[string]any{
		"code":    sErr.Code,
		"message": sErr.Message,
		"status":  sErr.Status,
	}
	if sErr.Code == errors.ErrInternal {
		errorObj["message"] = "an internal error occurred"
	} else if sErr.Details != nil {
		errorObj["details"] = sErr.Details
	}

	content, _ := json.Marshal(map[string]any{"error": errorObj})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result with JSON content.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
