package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/steno/internal/captions"
	"github.com/hpungsan/steno/internal/db"
)

// GetInput contains parameters for the GetDocument operation.
type GetInput struct {
	VideoID string
}

// GetOutput contains the result of the GetDocument operation.
type GetOutput struct {
	VideoID   string             `json:"video_id"`
	Revision  int64              `json:"revision"`
	Document  *captions.Document `json:"document"`
	CreatedAt int64              `json:"created_at"`
	UpdatedAt int64              `json:"updated_at"`
}

// GetDocument returns the stored caption document of a video.
func GetDocument(ctx context.Context, database *sql.DB, input GetInput) (*GetOutput, error) {
	videoID, err := requireVideoID(input.VideoID)
	if err != nil {
		return nil, err
	}

	rec, err := db.Get(ctx, database, videoID)
	if err != nil {
		return nil, err
	}
	rec.Document.ApplyDefaults()

	return &GetOutput{
		VideoID:   rec.VideoID,
		Revision:  rec.Revision,
		Document:  rec.Document,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}
