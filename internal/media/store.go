// Package media manages uploaded source videos and rendered outputs on disk.
package media

import (
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/hpungsan/steno/internal/errors"
)

// Extensions are the accepted video container extensions, probed in order
// when resolving a video id.
var Extensions = []string{".mp4", ".mov", ".avi", ".mkv", ".webm", ".m4v"}

// OutputExt is the extension of rendered outputs.
const OutputExt = ".mp4"

const lockFile = "steno.lock"

// Store holds videos under <root>/videos and outputs under <root>/renders.
type Store struct {
	Root       string
	VideosDir  string
	RendersDir string

	lock *flock.Flock
}

// Init creates the storage layout under root.
func Init(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	s := &Store{
		Root:       abs,
		VideosDir:  filepath.Join(abs, "videos"),
		RendersDir: filepath.Join(abs, "renders"),
		lock:       flock.New(filepath.Join(abs, lockFile)),
	}
	for _, dir := range []string{s.VideosDir, s.RendersDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return s, nil
}

// Lock takes an exclusive lock on the storage directory. Job state lives in
// memory, so only one server process may own a storage directory.
func (s *Store) Lock() error {
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire storage lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("storage directory %s is in use by another steno process", s.Root)
	}
	return nil
}

// Unlock releases the storage lock.
func (s *Store) Unlock() error {
	return s.lock.Unlock()
}

// ValidExtension reports whether filename has an accepted video extension.
func ValidExtension(filename string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range Extensions {
		if e == ext {
			return ext, true
		}
	}
	return "", false
}

// SaveResult describes a stored upload.
type SaveResult struct {
	VideoID string `json:"videoId"`
	Path    string `json:"path"`
	Size    int64  `json:"size"`
}

// Save copies r into a new video file and returns its generated id.
func (s *Store) Save(r io.Reader, filename string) (*SaveResult, error) {
	ext, ok := ValidExtension(filename)
	if !ok {
		return nil, errors.NewInvalidRequestf("unsupported video format %q; allowed: %s",
			filepath.Ext(filename), strings.Join(Extensions, ", "))
	}

	id := uuid.NewString()
	path := filepath.Join(s.VideosDir, id+ext)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("create video file: %w", err))
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, errors.NewInternal(fmt.Errorf("write video file: %w", err))
	}
	return &SaveResult{VideoID: id, Path: path, Size: n}, nil
}

// Resolve returns the path of the video with the given id.
func (s *Store) Resolve(videoID string) (string, error) {
	if !validID(videoID) {
		return "", errors.NewNotFound("video", videoID)
	}
	for _, ext := range Extensions {
		path := filepath.Join(s.VideosDir, videoID+ext)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, nil
		}
	}
	return "", errors.NewNotFound("video", videoID)
}

// Delete removes the video with the given id.
func (s *Store) Delete(videoID string) error {
	path, err := s.Resolve(videoID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return errors.NewInternal(fmt.Errorf("delete video: %w", err))
	}
	return nil
}

// OutputPath returns the output file for a render job.
func (s *Store) OutputPath(jobID string) string {
	return filepath.Join(s.RendersDir, jobID+OutputExt)
}

// OutputFile resolves a requested output filename inside the renders
// directory. Names containing path separators are rejected.
func (s *Store) OutputFile(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", errors.NewNotFound("render", name)
	}
	path := filepath.Join(s.RendersDir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", errors.NewNotFound("render", name)
	}
	return path, nil
}

// RemoveOutput deletes a render output. A missing file is not an error.
func (s *Store) RemoveOutput(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// validID rejects ids that could escape the videos directory.
func validID(id string) bool {
	return id != "" && id == filepath.Base(id) && !strings.ContainsAny(id, `/\`) && !strings.HasPrefix(id, ".")
}
