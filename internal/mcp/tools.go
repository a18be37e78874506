package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/steno/internal/captions"
	"github.com/hpungsan/steno/internal/render"
)

var captionsSchema = map[string]any{"type": "object"}

var renderSubmitToolDef = mcp.NewTool("render_submit",
	mcp.WithDescription("Queue a render of an uploaded video with animated captions. Returns a job id to poll with render_status."),
	mcp.WithString("video_id", mcp.Required(), mcp.Description("Id of an uploaded video")),
	mcp.WithArray("captions", mcp.Description("Captions to burn in. Either this or document_video_id is required."), mcp.Items(captionsSchema)),
	mcp.WithObject("settings", mcp.Description("Optional document settings for inline captions")),
	mcp.WithString("document_video_id", mcp.Description("Render the stored caption document of this video instead of inline captions")),
	mcp.WithString("aspect_ratio", mcp.Description("Output aspect ratio (default 16:9)"), mcp.Enum(render.AspectRatioNames()...)),
	mcp.WithNumber("quality", mcp.Description("Quality 0-100 (default 80)"), mcp.Min(0), mcp.Max(100)),
)

var renderStatusToolDef = mcp.NewTool("render_status",
	mcp.WithDescription("Get the status, progress and output URL of a render job."),
	mcp.WithString("job_id", mcp.Required()),
)

var renderCancelToolDef = mcp.NewTool("render_cancel",
	mcp.WithDescription("Cancel a pending or rendering job. Finished jobs are left unchanged."),
	mcp.WithString("job_id", mcp.Required()),
)

var renderListToolDef = mcp.NewTool("render_list",
	mcp.WithDescription("List known render jobs, oldest first."),
)

var tracksAssignToolDef = mcp.NewTool("tracks_assign",
	mcp.WithDescription("Assign captions to the fewest non-overlapping lanes. Pass inline captions or the video_id of a stored document."),
	mcp.WithArray("captions", mcp.Items(captionsSchema)),
	mcp.WithString("video_id"),
	mcp.WithNumber("epsilon", mcp.Description("Overlap tolerance in seconds (default 0.05)"), mcp.Min(0)),
)

var animationStateToolDef = mcp.NewTool("animation_state",
	mcp.WithDescription("Compute the visual state of every caption visible at a frame. Pass inline captions or the video_id of a stored document."),
	mcp.WithArray("captions", mcp.Items(captionsSchema)),
	mcp.WithObject("settings"),
	mcp.WithString("video_id"),
	mcp.WithNumber("frame", mcp.Required(), mcp.Min(0)),
	mcp.WithNumber("fps", mcp.Description("Frames per second (default 30)")),
	mcp.WithString("caption_id", mcp.Description("Restrict the result to one caption")),
)

var documentPutToolDef = mcp.NewTool("document_put",
	mcp.WithDescription("Create or replace the caption document of a video."),
	mcp.WithString("video_id", mcp.Required()),
	mcp.WithArray("captions", mcp.Required(), mcp.Items(captionsSchema)),
	mcp.WithObject("settings"),
	mcp.WithNumber("expected_revision", mcp.Description("Fail with CONFLICT unless the stored revision matches (0 = must not exist)")),
)

var documentGetToolDef = mcp.NewTool("document_get",
	mcp.WithDescription("Fetch the caption document of a video."),
	mcp.WithString("video_id", mcp.Required()),
)

var documentListToolDef = mcp.NewTool("document_list",
	mcp.WithDescription("List stored caption documents, most recently updated first."),
	mcp.WithNumber("limit", mcp.Description("Max items (default 20, max 100)")),
	mcp.WithNumber("offset"),
)

var documentDeleteToolDef = mcp.NewTool("document_delete",
	mcp.WithDescription("Delete the caption document of a video."),
	mcp.WithString("video_id", mcp.Required()),
)

var documentPatchToolDef = mcp.NewTool("document_patch_caption",
	mcp.WithDescription("Edit one caption of a stored document. Absent fields are unchanged."),
	mcp.WithString("video_id", mcp.Required()),
	mcp.WithString("caption_id", mcp.Required()),
	mcp.WithString("text"),
	mcp.WithNumber("start"),
	mcp.WithNumber("end"),
	mcp.WithArray("words", mcp.Items(map[string]any{"type": "object"})),
	mcp.WithArray("emphasis", mcp.WithStringItems()),
	mcp.WithString("style", mcp.Enum(string(captions.StyleNormal), string(captions.StyleBold), string(captions.StyleItalic), string(captions.StyleHighlight))),
	mcp.WithString("animation", mcp.Enum(
		string(captions.AnimationNone), string(captions.AnimationFadeIn), string(captions.AnimationScaleIn),
		string(captions.AnimationWordByWord), string(captions.AnimationTypewriter),
	)),
	mcp.WithString("position", mcp.Description("Preset name such as bottom-center")),
	mcp.WithNumber("max_chars_per_line"),
	mcp.WithNumber("expected_revision"),
)

var documentStylizeToolDef = mcp.NewTool("document_stylize",
	mcp.WithDescription("Assign styles, animations and emphasis to a stored document, optionally applying a theme."),
	mcp.WithString("video_id", mcp.Required()),
	mcp.WithString("theme", mcp.Enum(captions.ThemeNames...)),
	mcp.WithBoolean("vary_animations"),
	mcp.WithBoolean("emphasize_keywords"),
	mcp.WithNumber("expected_revision"),
)

var documentExportToolDef = mcp.NewTool("document_export",
	mcp.WithDescription("Write a stored document to a .json or .yaml file in the exports directory."),
	mcp.WithString("video_id", mcp.Required()),
	mcp.WithString("path", mcp.Description("Target file; defaults to a timestamped file in the exports directory")),
)

var documentImportToolDef = mcp.NewTool("document_import",
	mcp.WithDescription("Load a .json or .yaml caption document from the exports directory."),
	mcp.WithString("video_id", mcp.Required()),
	mcp.WithString("path", mcp.Required()),
	mcp.WithBoolean("replace", mcp.Description("Overwrite an existing document")),
)
