// Package render runs caption render jobs in the background and tracks their
// progress.
package render

import (
	"context"
	"crypto/rand"
	stderrors "errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/semaphore"

	"github.com/hpungsan/steno/internal/captions"
	"github.com/hpungsan/steno/internal/errors"
	"github.com/hpungsan/steno/internal/logging"
)

// Media resolves source videos and output locations.
type Media interface {
	Resolve(videoID string) (string, error)
	OutputPath(jobID string) string
	RemoveOutput(path string) error
}

// Options configures an Orchestrator.
type Options struct {
	FPS           int
	MinCRF        int
	MaxCRF        int
	Threads       int
	MaxConcurrent int
	RetentionTTL  time.Duration
	// OutputURLPrefix is joined with the output file name for OutputURL.
	OutputURLPrefix string
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		FPS:             30,
		MinCRF:          18,
		MaxCRF:          40,
		Threads:         1,
		MaxConcurrent:   2,
		RetentionTTL:    24 * time.Hour,
		OutputURLPrefix: "/renders/",
	}
}

// Orchestrator owns the render job lifecycle.
type Orchestrator struct {
	store  Store
	media  Media
	engine Engine
	opts   Options
	logger *slog.Logger
	slots  *semaphore.Weighted
	now    func() time.Time

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	// mu orders task starts against Shutdown so wg.Add never races wg.Wait.
	mu     sync.Mutex
	closed bool
}

// ErrShuttingDown is returned by Submit after Shutdown has begun.
var ErrShuttingDown = stderrors.New("render orchestrator is shutting down")

// NewOrchestrator wires an orchestrator. A nil store gets a MemoryStore.
func NewOrchestrator(store Store, media Media, engine Engine, opts Options, logger *slog.Logger) *Orchestrator {
	if store == nil {
		store = NewMemoryStore()
	}
	if opts.FPS <= 0 {
		opts.FPS = DefaultOptions().FPS
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.Threads <= 0 {
		opts.Threads = 1
	}
	if opts.MinCRF == 0 && opts.MaxCRF == 0 {
		opts.MinCRF, opts.MaxCRF = DefaultOptions().MinCRF, DefaultOptions().MaxCRF
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Orchestrator{
		store:  store,
		media:  media,
		engine: engine,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "render"),
		slots:  semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		now:    time.Now,
		ctx:    ctx,
		stop:   stop,
	}
}

// SubmitInput is a render request.
type SubmitInput struct {
	VideoID     string
	Document    *captions.Document
	AspectRatio string
	Quality     *int
}

// SubmitOutput is returned once the job is queued.
type SubmitOutput struct {
	JobID  string `json:"jobId"`
	Status Status `json:"status"`
}

// Submit validates the request, records a pending job and starts its
// execution task. It never waits for rendering.
func (o *Orchestrator) Submit(ctx context.Context, input SubmitInput) (*SubmitOutput, error) {
	if input.VideoID == "" {
		return nil, errors.NewInvalidRequest("videoId is required")
	}
	if input.Document == nil || len(input.Document.Captions) == 0 {
		return nil, errors.NewInvalidRequest("captions must not be empty")
	}
	doc := input.Document.Clone()
	doc.ApplyDefaults()
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	aspect, _, err := ParseAspectRatio(input.AspectRatio)
	if err != nil {
		return nil, err
	}
	quality := DefaultQuality
	if input.Quality != nil {
		quality = *input.Quality
	}
	if quality < 0 || quality > 100 {
		return nil, errors.NewInvalidRequestf("quality must be between 0 and 100, got %d", quality)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	videoPath, err := o.media.Resolve(input.VideoID)
	if err != nil {
		return nil, err
	}

	job := newJob(newJobID(), o.now())
	job.VideoID = input.VideoID
	job.VideoPath = videoPath
	job.Document = doc
	job.AspectRatio = aspect
	job.Quality = quality

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, errors.NewInternal(ErrShuttingDown)
	}
	o.store.Put(job)
	o.start(job)
	o.mu.Unlock()

	o.logger.Info("render job submitted",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldVideoID, job.VideoID),
		logging.String("aspect_ratio", aspect),
		logging.Int("quality", quality),
		logging.Int("captions", len(doc.Captions)),
	)
	return &SubmitOutput{JobID: job.ID, Status: StatusPending}, nil
}

// start launches the single execution task for job. Callers hold o.mu.
func (o *Orchestrator) start(job *Job) {
	ctx, cancel := context.WithCancel(o.ctx)
	job.attach(cancel)
	o.wg.Add(1)
	go o.run(ctx, cancel, job)
}

func (o *Orchestrator) run(ctx context.Context, cancel context.CancelFunc, job *Job) {
	defer o.wg.Done()
	defer close(job.done)
	defer cancel()
	log := o.logger.With(logging.String(logging.FieldJobID, job.ID))

	defer func() {
		if r := recover(); r != nil {
			if job.fail(fmt.Sprintf("render panicked: %v", r), o.now()) {
				log.Error("render job panicked", slog.Any("panic", r))
			}
		}
	}()

	if err := o.slots.Acquire(ctx, 1); err != nil {
		if job.fail("render aborted before start", o.now()) {
			log.Warn("render job aborted while waiting for a slot", logging.Error(err))
		}
		return
	}
	defer o.slots.Release(1)

	if !job.transition(StatusRendering, o.now()) {
		// Cancelled while pending.
		return
	}
	log.Info("render job started")

	comp := newComposition(job, o.media.OutputPath(job.ID), o.opts)
	started := o.now()
	err := o.engine.Render(ctx, comp, func(percent float64) {
		job.setProgress(percent, o.now())
	})
	if err != nil {
		renderErr := errors.NewRenderFailed(err)
		if job.fail(renderErr.Message, o.now()) {
			log.Error("render job failed", logging.Error(err))
		} else {
			log.Info("render job ended after cancellation", logging.Error(err))
		}
		if rmErr := o.media.RemoveOutput(comp.OutputPath); rmErr != nil {
			log.Warn("failed to remove partial output", logging.Error(rmErr))
		}
		return
	}

	if !job.complete(comp.OutputPath, o.now()) {
		log.Info("render finished for a cancelled job; discarding output")
		if rmErr := o.media.RemoveOutput(comp.OutputPath); rmErr != nil {
			log.Warn("failed to remove discarded output", logging.Error(rmErr))
		}
		return
	}
	log.Info("render job complete",
		logging.String("output", comp.OutputPath),
		logging.Duration("elapsed", o.now().Sub(started)),
	)
}

// StatusOutput is the client view of a job.
type StatusOutput struct {
	JobID     string `json:"jobId"`
	Status    Status `json:"status"`
	Progress  int    `json:"progress"`
	Error     string `json:"error,omitempty"`
	OutputRef string `json:"outputRef,omitempty"`
	OutputURL string `json:"outputUrl,omitempty"`
}

// Status returns the current state of a job.
func (o *Orchestrator) Status(id string) (*StatusOutput, error) {
	job, ok := o.store.Get(id)
	if !ok {
		return nil, errors.NewNotFound("job", id)
	}
	return o.statusOf(job.Snapshot()), nil
}

func (o *Orchestrator) statusOf(snap Snapshot) *StatusOutput {
	out := &StatusOutput{
		JobID:    snap.ID,
		Status:   snap.Status,
		Progress: snap.Progress,
		Error:    snap.Error,
	}
	if snap.Status == StatusComplete {
		out.OutputRef = snap.OutputPath
		out.OutputURL = o.opts.OutputURLPrefix + filepath.Base(snap.OutputPath)
	}
	return out
}

// List returns snapshots of all known jobs.
func (o *Orchestrator) List() []Snapshot {
	jobs := o.store.List()
	out := make([]Snapshot, len(jobs))
	for i, job := range jobs {
		out[i] = job.Snapshot()
	}
	return out
}

// CancelOutput reports the outcome of a cancellation request.
type CancelOutput struct {
	JobID string `json:"jobId"`
	// Status is "cancelled" when this request cancelled the job, otherwise
	// the job's unchanged terminal status.
	Status    string `json:"status"`
	Cancelled bool   `json:"cancelled"`
}

// Cancel moves a pending or rendering job to error with the cancelled
// message and stops its execution task. Terminal jobs are left unchanged.
func (o *Orchestrator) Cancel(id string) (*CancelOutput, error) {
	job, ok := o.store.Get(id)
	if !ok {
		return nil, errors.NewNotFound("job", id)
	}
	if !job.fail(errors.CancelledMessage, o.now()) {
		return &CancelOutput{JobID: id, Status: string(job.Snapshot().Status)}, nil
	}
	job.abort()
	o.logger.Info("render job cancelled", logging.String(logging.FieldJobID, id))
	return &CancelOutput{JobID: id, Status: errors.CancelledMessage, Cancelled: true}, nil
}

// Wait blocks until the job's execution task returns or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context, id string) (*StatusOutput, error) {
	job, ok := o.store.Get(id)
	if !ok {
		return nil, errors.NewNotFound("job", id)
	}
	select {
	case <-job.Done():
		return o.statusOf(job.Snapshot()), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown cancels all running tasks and waits for them to return.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.stop()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newJobID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
