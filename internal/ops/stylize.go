package ops

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hpungsan/steno/internal/captions"
	"github.com/hpungsan/steno/internal/db"
	"github.com/hpungsan/steno/internal/errors"
)

// StylizeInput contains parameters for the Stylize operation.
type StylizeInput struct {
	VideoID string
	// Theme replaces the document settings when set.
	Theme string

	VaryAnimations    *bool // default: true
	EmphasizeKeywords *bool // default: true

	ExpectedRevision *int64
}

// StylizeOutput contains the result of the Stylize operation.
type StylizeOutput struct {
	VideoID  string             `json:"video_id"`
	Revision int64              `json:"revision"`
	Document *captions.Document `json:"document"`
}

// Stylize applies automatic emphasis, animation and style selection, and
// optionally a theme, to a stored document and saves the result.
func Stylize(ctx context.Context, database *sql.DB, input StylizeInput) (*StylizeOutput, error) {
	videoID, err := requireVideoID(input.VideoID)
	if err != nil {
		return nil, err
	}
	theme := strings.TrimSpace(input.Theme)
	if theme != "" {
		if _, ok := captions.ThemeSettings(theme); !ok {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown theme %q (want one of %s)", theme, strings.Join(captions.ThemeNames, ", ")))
		}
	}

	rec, err := db.Get(ctx, database, videoID)
	if err != nil {
		return nil, err
	}
	doc := rec.Document
	doc.ApplyDefaults()

	doc = captions.Stylize(doc, captions.StylizeOptions{
		VaryAnimations:    boolOr(input.VaryAnimations, true),
		EmphasizeKeywords: boolOr(input.EmphasizeKeywords, true),
	})
	if theme != "" {
		doc = captions.ApplyTheme(doc, theme)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	expected := input.ExpectedRevision
	if expected == nil {
		expected = &rec.Revision
	}
	saved, err := db.Save(ctx, database, videoID, doc, expected)
	if err != nil {
		return nil, err
	}

	return &StylizeOutput{
		VideoID:  videoID,
		Revision: saved.Revision,
		Document: doc,
	}, nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
