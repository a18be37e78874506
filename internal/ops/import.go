package ops

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"path/filepath"

	"github.com/hpungsan/steno/internal/captions"
	"github.com/hpungsan/steno/internal/db"
	"github.com/hpungsan/steno/internal/errors"
)

// MaxImportBytes bounds the size of an imported document file.
const MaxImportBytes = 16 << 20

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	VideoID string
	Path    string // required
	// Replace overwrites an existing document instead of failing with CONFLICT.
	Replace bool
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	VideoID  string `json:"video_id"`
	Revision int64  `json:"revision"`
	Captions int    `json:"captions"`
}

// Import reads a .json or .yaml caption document from one of allowedDirs
// and stores it as the document of a video.
func Import(ctx context.Context, database *sql.DB, allowedDirs []string, input ImportInput) (*ImportOutput, error) {
	videoID, err := requireVideoID(input.VideoID)
	if err != nil {
		return nil, err
	}
	if err := ValidatePath(input.Path, PathCheckRead, allowedDirs); err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(filepath.Clean(input.Path))
	if err != nil {
		if errors.As(err) != nil {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxImportBytes+1))
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to read import file: %w", err))
	}
	if len(data) > MaxImportBytes {
		return nil, errors.NewInvalidRequestf("import file exceeds %d bytes", MaxImportBytes)
	}

	doc, err := captions.Parse(data, filepath.Ext(input.Path))
	if err != nil {
		return nil, err
	}

	var expected *int64
	if !input.Replace {
		zero := int64(0)
		expected = &zero
	}
	rec, err := db.Save(ctx, database, videoID, doc, expected)
	if err != nil {
		return nil, err
	}

	return &ImportOutput{
		VideoID:  videoID,
		Revision: rec.Revision,
		Captions: len(doc.Captions),
	}, nil
}
