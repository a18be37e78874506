package render

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/hpungsan/steno/internal/captions"
)

// Status is the lifecycle state of a render job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRendering Status = "rendering"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// isValidTransition enforces the job state machine edges. No state is
// revisited.
func isValidTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusRendering || to == StatusError
	case StatusRendering:
		return to == StatusComplete || to == StatusError
	default:
		return false
	}
}

// Job is a render request and its mutable execution state. Immutable fields
// are set at creation; everything else is guarded by mu.
type Job struct {
	ID          string
	VideoID     string
	VideoPath   string
	Document    *captions.Document // snapshot, never shared with the caller
	AspectRatio string
	Quality     int
	CreatedAt   time.Time

	mu         sync.Mutex
	status     Status
	progress   int
	outputPath string
	errMsg     string
	updatedAt  time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func newJob(id string, now time.Time) *Job {
	return &Job{
		ID:        id,
		CreatedAt: now,
		status:    StatusPending,
		updatedAt: now,
		done:      make(chan struct{}),
	}
}

// Snapshot is a point-in-time view of a job.
type Snapshot struct {
	ID          string    `json:"jobId"`
	Status      Status    `json:"status"`
	Progress    int       `json:"progress"`
	VideoID     string    `json:"videoId"`
	AspectRatio string    `json:"aspectRatio"`
	Quality     int       `json:"quality"`
	OutputPath  string    `json:"outputPath,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Snapshot returns the current state of the job.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Snapshot{
		ID:          j.ID,
		Status:      j.status,
		Progress:    j.progress,
		VideoID:     j.VideoID,
		AspectRatio: j.AspectRatio,
		Quality:     j.Quality,
		OutputPath:  j.outputPath,
		Error:       j.errMsg,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.updatedAt,
	}
}

// Done is closed when the job's execution task returns.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// attach records the task handle.
func (j *Job) attach(cancel context.CancelFunc) {
	j.mu.Lock()
	j.cancel = cancel
	j.mu.Unlock()
}

// abort cancels the execution task without changing state.
func (j *Job) abort() {
	j.mu.Lock()
	cancel := j.cancel
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// transition moves the job to status if the edge is allowed.
func (j *Job) transition(to Status, now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(to, now)
}

func (j *Job) transitionLocked(to Status, now time.Time) bool {
	if !isValidTransition(j.status, to) {
		return false
	}
	j.status = to
	j.updatedAt = now
	return true
}

// setProgress records engine progress. Values are clamped to [0,99] while
// rendering and never decrease; 100 is reserved for completion.
func (j *Job) setProgress(percent float64, now time.Time) {
	if math.IsNaN(percent) {
		return
	}
	p := int(math.Floor(percent))
	if p < 0 {
		p = 0
	}
	if p > 99 {
		p = 99
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusRendering || p <= j.progress {
		return
	}
	j.progress = p
	j.updatedAt = now
}

// complete marks a rendering job as done with its output.
func (j *Job) complete(outputPath string, now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.transitionLocked(StatusComplete, now) {
		return false
	}
	j.progress = 100
	j.outputPath = outputPath
	return true
}

// fail marks a non-terminal job as failed. A job already in a terminal
// state, including one cancelled by a client, is left unchanged.
func (j *Job) fail(msg string, now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.transitionLocked(StatusError, now) {
		return false
	}
	j.errMsg = msg
	return true
}
