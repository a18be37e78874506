package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/steno/internal/captions"
	"github.com/hpungsan/steno/internal/errors"
)

// Record is a stored caption document with its revision metadata.
type Record struct {
	VideoID   string
	Revision  int64
	Document  *captions.Document
	CreatedAt int64
	UpdatedAt int64
}

// Summary describes a stored document without its body.
type Summary struct {
	VideoID      string  `json:"video_id"`
	Revision     int64   `json:"revision"`
	CaptionCount int     `json:"caption_count"`
	Duration     float64 `json:"duration"`
	CreatedAt    int64   `json:"created_at"`
	UpdatedAt    int64   `json:"updated_at"`
}

// Save writes doc as the document of videoID and bumps its revision.
// When expectedRevision is set it must match the stored revision (0 for a
// document that does not exist yet), otherwise a CONFLICT error is returned.
func Save(ctx context.Context, db *sql.DB, videoID string, doc *captions.Document, expectedRevision *int64) (*Record, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	current, createdAt, err := currentRevision(ctx, db, videoID)
	if err != nil {
		return nil, err
	}
	if expectedRevision != nil && *expectedRevision != current {
		return nil, errors.NewConflict(fmt.Sprintf("revision mismatch: expected %d, current %d", *expectedRevision, current))
	}

	now := time.Now().Unix()
	rec := &Record{
		VideoID:   videoID,
		Revision:  current + 1,
		Document:  doc,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if current == 0 {
		_, err := db.ExecContext(ctx, `
			INSERT INTO documents (video_id, revision, body_json, caption_count, duration, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, videoID, rec.Revision, string(body), len(doc.Captions), doc.LastEnd(), now, now)
		if err != nil {
			if isUniqueConstraintError(err) {
				return nil, errors.NewConflict("document was created concurrently")
			}
			return nil, errors.NewInternal(err)
		}
		return rec, nil
	}

	// The revision guard turns a lost update into a conflict.
	result, err := db.ExecContext(ctx, `
		UPDATE documents
		SET revision = ?, body_json = ?, caption_count = ?, duration = ?, updated_at = ?
		WHERE video_id = ? AND revision = ?
	`, rec.Revision, string(body), len(doc.Captions), doc.LastEnd(), now, videoID, current)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return nil, errors.NewConflict("document was modified concurrently")
	}

	rec.CreatedAt = createdAt
	return rec, nil
}

// currentRevision returns the stored revision of videoID, or 0 when absent.
func currentRevision(ctx context.Context, db *sql.DB, videoID string) (revision, createdAt int64, err error) {
	err = db.QueryRowContext(ctx, `SELECT revision, created_at FROM documents WHERE video_id = ?`, videoID).Scan(&revision, &createdAt)
	if err == sql.ErrNoRows {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, errors.NewInternal(err)
	}
	return revision, createdAt, nil
}

// Get retrieves the document of videoID.
func Get(ctx context.Context, db *sql.DB, videoID string) (*Record, error) {
	var (
		rec  Record
		body string
	)
	err := db.QueryRowContext(ctx, `
		SELECT video_id, revision, body_json, created_at, updated_at
		FROM documents
		WHERE video_id = ?
	`, videoID).Scan(&rec.VideoID, &rec.Revision, &body, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("document", videoID)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	var doc captions.Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("decode document %s: %w", videoID, err))
	}
	rec.Document = &doc
	return &rec, nil
}

// Delete removes the document of videoID.
func Delete(ctx context.Context, db *sql.DB, videoID string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM documents WHERE video_id = ?`, videoID)
	if err != nil {
		return errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound("document", videoID)
	}
	return nil
}

// List returns document summaries ordered by updated_at DESC, plus the
// total number of stored documents.
func List(ctx context.Context, db *sql.DB, limit, offset int) ([]Summary, int, error) {
	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT video_id, revision, caption_count, duration, created_at, updated_at
		FROM documents
		ORDER BY updated_at DESC, video_id ASC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	items := []Summary{}
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.VideoID, &s.Revision, &s.CaptionCount, &s.Duration, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return items, total, nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite reports primary key collisions as "UNIQUE constraint failed: ..."
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
