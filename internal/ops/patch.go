package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/steno/internal/captions"
	"github.com/hpungsan/steno/internal/db"
	"github.com/hpungsan/steno/internal/errors"
)

// PatchInput contains parameters for the PatchCaption operation.
type PatchInput struct {
	VideoID   string
	CaptionID string

	// Editable fields (nil = don't change)
	Text            *string
	Start           *float64
	End             *float64
	Words           *[]captions.Word
	Emphasis        *[]string
	Style           *captions.Style
	Animation       *captions.Animation
	Position        *captions.Position
	MaxCharsPerLine *int

	ExpectedRevision *int64
}

// PatchOutput contains the result of the PatchCaption operation.
type PatchOutput struct {
	VideoID  string           `json:"video_id"`
	Revision int64            `json:"revision"`
	Caption  captions.Caption `json:"caption"`
}

// PatchCaption edits one caption of a stored document. When the text
// changes without new words, word timings are spread evenly over the
// caption. The whole document is revalidated before it is saved.
func PatchCaption(ctx context.Context, database *sql.DB, input PatchInput) (*PatchOutput, error) {
	videoID, err := requireVideoID(input.VideoID)
	if err != nil {
		return nil, err
	}
	captionID := strings.TrimSpace(input.CaptionID)
	if captionID == "" {
		return nil, errors.NewInvalidRequest("caption_id is required")
	}
	if input.Text == nil && input.Start == nil && input.End == nil && input.Words == nil &&
		input.Emphasis == nil && input.Style == nil && input.Animation == nil &&
		input.Position == nil && input.MaxCharsPerLine == nil {
		return nil, errors.NewInvalidRequest("at least one editable field must be provided")
	}

	rec, err := db.Get(ctx, database, videoID)
	if err != nil {
		return nil, err
	}
	doc := rec.Document
	doc.ApplyDefaults()

	c, ok := doc.Caption(captionID)
	if !ok {
		return nil, errors.NewNotFound("caption", captionID)
	}

	if input.Start != nil {
		c.Start = *input.Start
	}
	if input.End != nil {
		c.End = *input.End
	}
	if input.Text != nil {
		c.Text = *input.Text
		if input.Words == nil {
			c.Words = captions.SpreadWords(c.Text, c.Start, c.End)
		}
	}
	if input.Words != nil {
		c.Words = *input.Words
	}
	if input.Emphasis != nil {
		c.Emphasis = *input.Emphasis
	}
	if input.Style != nil {
		c.Style = *input.Style
	}
	if input.Animation != nil {
		c.Animation = *input.Animation
	}
	if input.Position != nil {
		c.Position = *input.Position
	}
	if input.MaxCharsPerLine != nil {
		if *input.MaxCharsPerLine <= 0 {
			c.MaxCharsPerLine = nil
		} else {
			v := *input.MaxCharsPerLine
			c.MaxCharsPerLine = &v
		}
	}

	doc.ApplyDefaults()
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	// Without an explicit expectation, guard against edits made since the read.
	expected := input.ExpectedRevision
	if expected == nil {
		expected = &rec.Revision
	}
	saved, err := db.Save(ctx, database, videoID, doc, expected)
	if err != nil {
		return nil, err
	}

	patched, _ := doc.Caption(captionID)
	return &PatchOutput{
		VideoID:  videoID,
		Revision: saved.Revision,
		Caption:  *patched,
	}, nil
}
