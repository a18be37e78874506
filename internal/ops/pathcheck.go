package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/steno/internal/errors"
)

// PathCheckMode indicates whether the path check is for reading or writing.
type PathCheckMode int

const (
	PathCheckRead  PathCheckMode = iota // for import (read file)
	PathCheckWrite                      // for export (write file)
)

// documentExts are the file formats accepted by Import and Export.
var documentExts = map[string]bool{".json": true, ".yaml": true, ".yml": true}

// ValidatePath checks a document import/export path. The file must be
// directly inside one of allowedDirs (no subdirectories), have a .json,
// .yaml or .yml extension, and must not be a symlink.
//
// Requiring files to sit directly in an allowed directory leaves no
// intermediate component to swap for a symlink between validation and
// open; O_NOFOLLOW covers the final component.
func ValidatePath(path string, mode PathCheckMode, allowedDirs []string) error {
	if path == "" {
		return errors.NewInvalidRequest("path is required")
	}
	// Reject ".." before cleaning so "exports/../x.json" cannot slip through.
	if containsTraversal(path) {
		return errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}

	cleaned := filepath.Clean(path)
	if !documentExts[strings.ToLower(filepath.Ext(cleaned))] {
		return errors.NewInvalidRequest("path must have .json, .yaml or .yml extension")
	}

	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}

	dirs, err := resolveAllowedDirs(allowedDirs)
	if err != nil {
		return err
	}
	// No subdirectories: an intermediate component could otherwise be swapped
	// for a symlink between this check and the open (TOCTOU).
	parentDir := filepath.Dir(absPath)
	if !isDirectlyInAllowedDir(parentDir, dirs) {
		return errors.NewInvalidRequest(
			fmt.Sprintf("file must be directly in an allowed directory (no subdirectories); allowed: %v", dirs))
	}

	// The allowed directories are resolved, so a symlinked parent here means
	// the path reached them through a link.
	if info, err := os.Lstat(parentDir); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("parent directory must not be a symlink")
	}

	if mode == PathCheckRead {
		if _, err := os.Stat(absPath); os.IsNotExist(err) {
			return errors.NewNotFound("file", path)
		}
	}

	// O_NOFOLLOW at open time rejects this too; checking here gives a
	// clearer error for both reads and writes.
	if info, err := os.Lstat(absPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("path must not be a symlink")
	}

	return nil
}

// resolveAllowedDirs returns allowedDirs as absolute, cleaned paths with
// symlinked entries resolved to their targets.
func resolveAllowedDirs(allowedDirs []string) ([]string, error) {
	result := make([]string, 0, len(allowedDirs))
	for _, d := range allowedDirs {
		if d == "" {
			continue
		}
		abs, err := filepath.Abs(filepath.Clean(d))
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid allowed path: %v", err))
		}
		if info, err := os.Lstat(abs); err == nil && info.Mode()&os.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(abs)
			if err != nil {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot resolve symlink in allowed path: %v", err))
			}
			abs = resolved
		}
		result = append(result, abs)
	}
	return result, nil
}

// isDirectlyInAllowedDir checks if parentDir exactly matches one of the allowed directories.
func isDirectlyInAllowedDir(parentDir string, allowedDirs []string) bool {
	parentDir = filepath.Clean(parentDir)
	for _, dir := range allowedDirs {
		if parentDir == filepath.Clean(dir) {
			return true
		}
	}
	return false
}

// containsTraversal checks if path contains ".." directory traversal.
func containsTraversal(path string) bool {
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if part == ".." {
			return true
		}
	}
	// User input may use forward slashes on any platform.
	if filepath.Separator != '/' {
		for _, part := range strings.Split(path, "/") {
			if part == ".." {
				return true
			}
		}
	}
	return false
}

// SanitizeForFilename makes s safe to embed in a file name.
func SanitizeForFilename(s string) string {
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, "\\", "-")
	// Embedded ".." could still read as traversal once joined.
	s = strings.ReplaceAll(s, "..", "-")

	// Drop control characters; printable unicode is kept.

	var result strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			result.WriteRune(r)
		}
	}
	s = result.String()

	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")

	if s == "" {
		s = "unnamed"
	}
	return s
}
