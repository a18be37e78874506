package captions

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/hpungsan/steno/internal/errors"
)

// Load reads a caption document from a .json, .yaml or .yml file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read caption document: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes a caption document. ext selects the format (".yaml"/".yml"
// for YAML, anything else JSON). A bare JSON array of captions is accepted.
// Defaults are filled in and the result is validated. Decode and validation
// failures are INVALID_REQUEST errors.
func Parse(data []byte, ext string) (*Document, error) {
	var doc Document
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, errors.NewInvalidRequestf("parse YAML caption document: %v", err)
		}
	default:
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			if err := json.Unmarshal(trimmed, &doc.Captions); err != nil {
				return nil, errors.NewInvalidRequestf("parse JSON captions: %v", err)
			}
		} else if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, errors.NewInvalidRequestf("parse JSON caption document: %v", err)
		}
	}
	doc.ApplyDefaults()
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// NewCaptionID returns a new ULID for a caption.
func NewCaptionID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
