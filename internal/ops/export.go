package ops

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hpungsan/steno/internal/captions"
	"github.com/hpungsan/steno/internal/db"
	"github.com/hpungsan/steno/internal/errors"
)

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	VideoID string
	Path    string // optional, default: <exports>/<video_id>-<timestamp>.json
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	VideoID    string `json:"video_id"`
	Path       string `json:"path"`
	Revision   int64  `json:"revision"`
	Captions   int    `json:"captions"`
	ExportedAt int64  `json:"exported_at"`
}

// Export writes a stored document to a .json or .yaml file inside
// exportsDir. Existing files are replaced atomically.
func Export(ctx context.Context, database *sql.DB, exportsDir string, input ExportInput) (*ExportOutput, error) {
	videoID, err := requireVideoID(input.VideoID)
	if err != nil {
		return nil, err
	}
	now := time.Now()

	exportPath := input.Path
	if exportPath == "" {
		name := fmt.Sprintf("%s-%s.json", SanitizeForFilename(videoID), now.Format("2006-01-02T150405"))
		exportPath = filepath.Join(exportsDir, name)
	}
	if err := os.MkdirAll(exportsDir, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}
	if err := ValidatePath(exportPath, PathCheckWrite, []string{exportsDir}); err != nil {
		return nil, err
	}

	rec, err := db.Get(ctx, database, videoID)
	if err != nil {
		return nil, err
	}
	rec.Document.ApplyDefaults()

	data, err := encodeDocument(rec.Document, filepath.Ext(exportPath))
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	// Write to a temp file, then rename, so a failed export keeps the old file.
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(data); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	// Close before rename (required on Windows).
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInvalidRequest("export path is a symlink")
	}
	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return &ExportOutput{
		VideoID:    videoID,
		Path:       exportPath,
		Revision:   rec.Revision,
		Captions:   len(rec.Document.Captions),
		ExportedAt: now.Unix(),
	}, nil
}

// encodeDocument renders doc as YAML for .yaml/.yml and indented JSON otherwise.
func encodeDocument(doc *captions.Document, ext string) ([]byte, error) {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return yaml.Marshal(doc)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
