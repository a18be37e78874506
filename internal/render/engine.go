package render

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"os/exec"
)

// ProgressFunc receives render progress in percent.
type ProgressFunc func(percent float64)

// Engine renders a composition to its output path. Implementations must
// return promptly once ctx is cancelled.
type Engine interface {
	Render(ctx context.Context, comp Composition, progress ProgressFunc) error
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, stdout io.Writer, name string, args ...string) (stderr string, err error)
}

// execRunner executes commands via os/exec. The process is killed when ctx
// is cancelled.
type execRunner struct{}

// Run executes one command, streaming stdout and capturing stderr.
func (execRunner) Run(ctx context.Context, stdout io.Writer, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil && ctx.Err() != nil {
		err = stderrors.Join(ctx.Err(), err)
	}
	return stderr.String(), err
}
