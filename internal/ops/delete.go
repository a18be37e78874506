package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/steno/internal/db"
)

// DeleteInput contains parameters for the DeleteDocument operation.
type DeleteInput struct {
	VideoID string
}

// DeleteOutput contains the result of the DeleteDocument operation.
type DeleteOutput struct {
	Deleted bool   `json:"deleted"`
	VideoID string `json:"video_id"`
}

// DeleteDocument removes the caption document of a video.
func DeleteDocument(ctx context.Context, database *sql.DB, input DeleteInput) (*DeleteOutput, error) {
	videoID, err := requireVideoID(input.VideoID)
	if err != nil {
		return nil, err
	}

	if err := db.Delete(ctx, database, videoID); err != nil {
		return nil, err
	}

	return &DeleteOutput{
		Deleted: true,
		VideoID: videoID,
	}, nil
}
