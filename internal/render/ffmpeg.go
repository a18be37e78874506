package render

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/steno/internal/logging"
)

// FFmpegEngine burns an animated caption overlay into the source video.
type FFmpegEngine struct {
	path      string
	runner    commandRunner
	logger    *slog.Logger
	// tempDir holds the overlay; it is kept out of the served renders directory.
	tempDir   string
	writeFile func(name string, data []byte, perm os.FileMode) error
	removeAll func(path string) error
}

// NewFFmpegEngine returns an engine that runs the ffmpeg binary at path.
func NewFFmpegEngine(path string, logger *slog.Logger) *FFmpegEngine {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpegEngine{
		path:      path,
		runner:    execRunner{},
		logger:    logging.NewComponentLogger(logger, "ffmpeg"),
		writeFile: os.WriteFile,
		removeAll: os.RemoveAll,
	}
}

// Render writes the overlay into a private temp directory, then encodes. Progress is
// read from ffmpeg's -progress stream concurrently with the process.
func (e *FFmpegEngine) Render(ctx context.Context, comp Composition, progress ProgressFunc) error {
	var overlay bytes.Buffer
	if err := writeASS(&overlay, comp); err != nil {
		return fmt.Errorf("build caption overlay: %w", err)
	}
	dir, err := os.MkdirTemp(e.tempDir, "steno-overlay-")
	if err != nil {
		return fmt.Errorf("create overlay directory: %w", err)
	}
	defer func() {
		if err := e.removeAll(dir); err != nil {
			e.logger.Warn("failed to remove caption overlay", logging.String("path", dir), logging.Error(err))
		}
	}()
	subPath := filepath.Join(dir, comp.JobID+".ass")
	if err := e.writeFile(subPath, overlay.Bytes(), 0600); err != nil {
		return fmt.Errorf("write caption overlay: %w", err)
	}

	args := buildFFmpegArgs(comp, subPath)
	e.logger.Debug("running ffmpeg", logging.String(logging.FieldJobID, comp.JobID), slog.Any("args", args))

	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stderr, err := e.runner.Run(gctx, pw, e.path, args...)
		_ = pw.Close()
		if err != nil {
			if detail := lastLine(stderr); detail != "" {
				return fmt.Errorf("ffmpeg: %w: %s", err, detail)
			}
			return fmt.Errorf("ffmpeg: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return parseProgress(pr, comp.DurationFrames, progress)
	})
	return g.Wait()
}

// buildFFmpegArgs assembles the encode command for comp.
func buildFFmpegArgs(comp Composition, subPath string) []string {
	w, h := comp.Width, comp.Height
	filter := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black,setsar=1,ass=%s",
		w, h, w, h, escapeFilterPath(subPath))
	return []string{
		"-y",
		"-hide_banner",
		"-nostats",
		"-loglevel", "error",
		"-i", comp.VideoPath,
		"-vf", filter,
		"-r", strconv.Itoa(comp.FPS),
		"-t", strconv.Itoa(comp.DurationSeconds),
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", strconv.Itoa(comp.CRF),
		"-pix_fmt", "yuv420p",
		"-threads", strconv.Itoa(comp.Threads),
		"-c:a", "aac",
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		comp.OutputPath,
	}
}

// parseProgress reads ffmpeg -progress key=value lines until EOF.
func parseProgress(r io.Reader, totalFrames int, progress ProgressFunc) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok || progress == nil {
			continue
		}
		switch key {
		case "frame":
			frame, err := strconv.Atoi(value)
			if err != nil || totalFrames <= 0 {
				continue
			}
			progress(float64(frame) / float64(totalFrames) * 100)
		case "progress":
			if value == "end" {
				progress(100)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		// Keep draining so the writer never blocks.
		_, _ = io.Copy(io.Discard, r)
		return fmt.Errorf("read ffmpeg progress: %w", err)
	}
	return nil
}

// escapeFilterPath quotes a path for use as a filter option value.
func escapeFilterPath(p string) string {
	return strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`, `,`, `\,`).Replace(p)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
