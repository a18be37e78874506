package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/steno/internal/db"
	"github.com/hpungsan/steno/internal/errors"
	"github.com/hpungsan/steno/internal/tracks"
)

// TracksInput contains parameters for the Tracks operation.
type TracksInput struct {
	VideoID string
	// Epsilon overrides the overlap tolerance in seconds (nil = default).
	Epsilon *float64
}

// TracksOutput contains the result of the Tracks operation.
type TracksOutput struct {
	VideoID  string  `json:"video_id"`
	Revision int64   `json:"revision"`
	Epsilon  float64 `json:"epsilon"`

	Lanes     tracks.Assignment `json:"lanes"`
	LaneCount int               `json:"lane_count"`
	// Rows lists caption ids per lane in start order.
	Rows [][]string `json:"rows"`
}

// Tracks recomputes the lane layout of a stored document.
func Tracks(ctx context.Context, database *sql.DB, input TracksInput) (*TracksOutput, error) {
	videoID, err := requireVideoID(input.VideoID)
	if err != nil {
		return nil, err
	}
	epsilon := tracks.DefaultEpsilon
	if input.Epsilon != nil {
		if *input.Epsilon < 0 {
			return nil, errors.NewInvalidRequest("epsilon must be >= 0")
		}
		epsilon = *input.Epsilon
	}

	rec, err := db.Get(ctx, database, videoID)
	if err != nil {
		return nil, err
	}

	layout := tracks.LayoutDocument(rec.Document, epsilon)
	return &TracksOutput{
		VideoID:   videoID,
		Revision:  rec.Revision,
		Epsilon:   epsilon,
		Lanes:     layout.Lanes,
		LaneCount: layout.LaneCount,
		Rows:      layout.Rows,
	}, nil
}
