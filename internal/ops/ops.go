// Package ops implements the caption document session operations shared by
// the HTTP API, the MCP server and the CLI. Each operation takes an Input
// struct and returns an Output struct or a *errors.StenoError.
package ops

import (
	"strings"

	"github.com/hpungsan/steno/internal/errors"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// DefaultPreviewFPS is used by Preview when no frame rate is given.
const DefaultPreviewFPS = 30

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// requireVideoID trims and checks the document address.
func requireVideoID(videoID string) (string, error) {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return "", errors.NewInvalidRequest("video_id is required")
	}
	return videoID, nil
}
