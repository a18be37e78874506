package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/steno/internal/captions"
	"github.com/hpungsan/steno/internal/db"
	"github.com/hpungsan/steno/internal/errors"
)

// PutInput contains parameters for the PutDocument operation.
type PutInput struct {
	VideoID  string
	Document *captions.Document

	// ExpectedRevision guards against lost updates when set.
	ExpectedRevision *int64
}

// PutOutput contains the result of the PutDocument operation.
type PutOutput struct {
	VideoID  string `json:"video_id"`
	Revision int64  `json:"revision"`
	Captions int    `json:"captions"`
}

// PutDocument replaces the whole caption document of a video.
func PutDocument(ctx context.Context, database *sql.DB, input PutInput) (*PutOutput, error) {
	videoID, err := requireVideoID(input.VideoID)
	if err != nil {
		return nil, err
	}
	if input.Document == nil {
		return nil, errors.NewInvalidRequest("document is required")
	}

	doc := input.Document.Clone()
	doc.ApplyDefaults()
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	rec, err := db.Save(ctx, database, videoID, doc, input.ExpectedRevision)
	if err != nil {
		return nil, err
	}

	return &PutOutput{
		VideoID:  rec.VideoID,
		Revision: rec.Revision,
		Captions: len(doc.Captions),
	}, nil
}
