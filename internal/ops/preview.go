package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/steno/internal/animation"
	"github.com/hpungsan/steno/internal/db"
	"github.com/hpungsan/steno/internal/errors"
)

// PreviewInput contains parameters for the Preview operation.
type PreviewInput struct {
	VideoID string
	Frame   int
	FPS     int // default: 30
	// CaptionID restricts the preview to one caption.
	CaptionID string
}

// PreviewOutput contains the result of the Preview operation.
type PreviewOutput struct {
	VideoID  string                   `json:"video_id"`
	Revision int64                    `json:"revision"`
	Frame    int                      `json:"frame"`
	FPS      int                      `json:"fps"`
	Time     float64                  `json:"time"`
	Captions []animation.CaptionFrame `json:"captions"`
}

// Preview samples the animation state of every caption visible at a frame.
func Preview(ctx context.Context, database *sql.DB, input PreviewInput) (*PreviewOutput, error) {
	videoID, err := requireVideoID(input.VideoID)
	if err != nil {
		return nil, err
	}
	if input.Frame < 0 {
		return nil, errors.NewInvalidRequest("frame must be >= 0")
	}
	fps := input.FPS
	if fps == 0 {
		fps = DefaultPreviewFPS
	}
	if fps < 0 {
		return nil, errors.NewInvalidRequest("fps must be > 0")
	}

	rec, err := db.Get(ctx, database, videoID)
	if err != nil {
		return nil, err
	}
	doc := rec.Document
	doc.ApplyDefaults()

	if input.CaptionID != "" {
		if _, ok := doc.Caption(input.CaptionID); !ok {
			return nil, errors.NewNotFound("caption", input.CaptionID)
		}
	}

	frames := []animation.CaptionFrame{}
	for _, cf := range animation.Sample(doc, input.Frame, fps) {
		if input.CaptionID != "" && cf.CaptionID != input.CaptionID {
			continue
		}
		frames = append(frames, cf)
	}

	return &PreviewOutput{
		VideoID:  videoID,
		Revision: rec.Revision,
		Frame:    input.Frame,
		FPS:      fps,
		Time:     float64(input.Frame) / float64(fps),
		Captions: frames,
	}, nil
}
