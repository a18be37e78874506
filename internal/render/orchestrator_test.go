package render

import (
	"context"
	stderrors "errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/steno/internal/captions"
	"github.com/hpungsan/steno/internal/errors"
	"github.com/hpungsan/steno/internal/logging"
)

type fakeMedia struct {
	dir       string
	videos    map[string]string
	removeErr error

	mu      sync.Mutex
	removed []string
}

func newFakeMedia(t *testing.T) *fakeMedia {
	t.Helper()
	return &fakeMedia{
		dir:    t.TempDir(),
		videos: map[string]string{"vid-1": "/videos/vid-1.mp4"},
	}
}

func (m *fakeMedia) Resolve(id string) (string, error) {
	if p, ok := m.videos[id]; ok {
		return p, nil
	}
	return "", errors.NewNotFound("video", id)
}

func (m *fakeMedia) OutputPath(jobID string) string {
	return filepath.Join(m.dir, jobID+".mp4")
}

func (m *fakeMedia) RemoveOutput(path string) error {
	m.mu.Lock()
	m.removed = append(m.removed, path)
	m.mu.Unlock()
	if m.removeErr != nil {
		return m.removeErr
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// engineFunc adapts a function to Engine.
type engineFunc func(ctx context.Context, comp Composition, progress ProgressFunc) error

func (f engineFunc) Render(ctx context.Context, comp Composition, progress ProgressFunc) error {
	return f(ctx, comp, progress)
}

// writeOutput is an engine that succeeds by creating the output file.
func writeOutput(_ context.Context, comp Composition, progress ProgressFunc) error {
	progress(50)
	return os.WriteFile(comp.OutputPath, []byte("mp4"), 0600)
}

func testDoc(ends ...float64) *captions.Document {
	doc := &captions.Document{}
	start := 0.0
	for i, end := range ends {
		doc.Captions = append(doc.Captions, captions.Caption{
			ID: string(rune('a' + i)), Text: "word", Start: start, End: end,
			Words: []captions.Word{{Text: "word", Start: start, End: end, FontSizeMultiplier: 1}},
		})
		start = end
	}
	return doc
}

func newTestOrchestrator(t *testing.T, engine Engine, mutate func(*Options)) (*Orchestrator, *fakeMedia) {
	t.Helper()
	media := newFakeMedia(t)
	opts := DefaultOptions()
	if mutate != nil {
		mutate(&opts)
	}
	o := NewOrchestrator(NewMemoryStore(), media, engine, opts, logging.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.Shutdown(ctx)
	})
	return o, media
}

func waitDone(t *testing.T, o *Orchestrator, id string) *StatusOutput {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := o.Wait(ctx, id)
	require.NoError(t, err)
	return st
}

func intPtr(v int) *int { return &v }

func TestSubmit_Validation(t *testing.T) {
	o, _ := newTestOrchestrator(t, engineFunc(writeOutput), nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		input SubmitInput
		code  errors.ErrorCode
	}{
		{"missing video", SubmitInput{Document: testDoc(1)}, errors.ErrInvalidRequest},
		{"nil document", SubmitInput{VideoID: "vid-1"}, errors.ErrInvalidRequest},
		{"empty captions", SubmitInput{VideoID: "vid-1", Document: &captions.Document{}}, errors.ErrInvalidRequest},
		{"bad aspect", SubmitInput{VideoID: "vid-1", Document: testDoc(1), AspectRatio: "21:9"}, errors.ErrInvalidRequest},
		{"quality too high", SubmitInput{VideoID: "vid-1", Document: testDoc(1), Quality: intPtr(101)}, errors.ErrInvalidRequest},
		{"invalid caption", SubmitInput{VideoID: "vid-1", Document: &captions.Document{Captions: []captions.Caption{{ID: "x", Start: 2, End: 1}}}}, errors.ErrInvalidRequest},
		{"unknown video", SubmitInput{VideoID: "nope", Document: testDoc(1)}, errors.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.Submit(ctx, tt.input)
			require.Error(t, err)
			require.True(t, errors.Is(err, tt.code), "got %v, want %s", err, tt.code)
		})
	}
	require.Empty(t, o.List())
}

func TestSubmit_CompletesWithDerivedComposition(t *testing.T) {
	var got Composition
	engine := engineFunc(func(ctx context.Context, comp Composition, progress ProgressFunc) error {
		got = comp
		return writeOutput(ctx, comp, progress)
	})
	o, media := newTestOrchestrator(t, engine, nil)

	doc := testDoc(3.0, 6.5, 9.4)
	out, err := o.Submit(context.Background(), SubmitInput{
		VideoID: "vid-1", Document: doc, AspectRatio: "9:16", Quality: intPtr(80),
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, out.Status)
	require.Len(t, out.JobID, 26)

	st := waitDone(t, o, out.JobID)
	require.Equal(t, StatusComplete, st.Status)
	require.Equal(t, 100, st.Progress)
	require.Equal(t, media.OutputPath(out.JobID), st.OutputRef)
	require.Equal(t, "/renders/"+out.JobID+".mp4", st.OutputURL)
	require.Empty(t, st.Error)

	require.Equal(t, 11, got.DurationSeconds)
	require.Equal(t, 330, got.DurationFrames)
	require.Equal(t, 1080, got.Width)
	require.Equal(t, 1920, got.Height)
	require.Equal(t, 22, got.CRF)
	require.Equal(t, "/videos/vid-1.mp4", got.VideoPath)

	// The job holds a snapshot: edits after submit do not reach it.
	doc.Captions[0].Text = "edited"
	require.Equal(t, "word", got.Document.Captions[0].Text)
}

func TestSubmit_DoesNotBlockOnRender(t *testing.T) {
	release := make(chan struct{})
	engine := engineFunc(func(ctx context.Context, comp Composition, progress ProgressFunc) error {
		<-release
		return nil
	})
	o, _ := newTestOrchestrator(t, engine, nil)

	out, err := o.Submit(context.Background(), SubmitInput{VideoID: "vid-1", Document: testDoc(1)})
	require.NoError(t, err)
	require.Equal(t, StatusPending, out.Status)

	st, err := o.Status(out.JobID)
	require.NoError(t, err)
	require.Contains(t, []Status{StatusPending, StatusRendering}, st.Status)
	require.Empty(t, st.OutputURL)

	close(release)
	require.Equal(t, StatusComplete, waitDone(t, o, out.JobID).Status)
}

func TestProgress_MonotonicAndClamped(t *testing.T) {
	var o *Orchestrator
	var seen []int
	var jobID string
	ready := make(chan struct{})
	engine := engineFunc(func(ctx context.Context, comp Composition, progress ProgressFunc) error {
		<-ready
		for _, p := range []float64{10, 50, 30, 120, math.NaN(), -5, 75} {
			progress(p)
			st, err := o.Status(jobID)
			if err != nil {
				return err
			}
			seen = append(seen, st.Progress)
		}
		return nil
	})
	o, _ = newTestOrchestrator(t, engine, nil)

	out, err := o.Submit(context.Background(), SubmitInput{VideoID: "vid-1", Document: testDoc(1)})
	require.NoError(t, err)
	jobID = out.JobID
	close(ready)

	st := waitDone(t, o, jobID)
	require.Equal(t, []int{10, 50, 50, 99, 99, 99, 99}, seen)
	require.Equal(t, 100, st.Progress)
}

func TestEngineFailure_RecordedOnJob(t *testing.T) {
	engine := engineFunc(func(ctx context.Context, comp Composition, progress ProgressFunc) error {
		progress(40)
		_ = os.WriteFile(comp.OutputPath, []byte("partial"), 0600)
		return stderrors.New("encoder exploded")
	})
	o, media := newTestOrchestrator(t, engine, nil)

	out, err := o.Submit(context.Background(), SubmitInput{VideoID: "vid-1", Document: testDoc(1)})
	require.NoError(t, err)

	st := waitDone(t, o, out.JobID)
	require.Equal(t, StatusError, st.Status)
	require.Contains(t, st.Error, "encoder exploded")
	require.NotEqual(t, 100, st.Progress)
	require.Empty(t, st.OutputURL)
	require.NoFileExists(t, media.OutputPath(out.JobID))
}

func TestEnginePanic_RecordedOnJob(t *testing.T) {
	engine := engineFunc(func(ctx context.Context, comp Composition, progress ProgressFunc) error {
		panic("boom")
	})
	o, _ := newTestOrchestrator(t, engine, nil)

	out, err := o.Submit(context.Background(), SubmitInput{VideoID: "vid-1", Document: testDoc(1)})
	require.NoError(t, err)

	st := waitDone(t, o, out.JobID)
	require.Equal(t, StatusError, st.Status)
	require.Contains(t, st.Error, "boom")
}

func TestCancel_StopsRunningRender(t *testing.T) {
	started := make(chan struct{})
	engine := engineFunc(func(ctx context.Context, comp Composition, progress ProgressFunc) error {
		progress(20)
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	o, _ := newTestOrchestrator(t, engine, nil)

	out, err := o.Submit(context.Background(), SubmitInput{VideoID: "vid-1", Document: testDoc(1)})
	require.NoError(t, err)
	<-started

	res, err := o.Cancel(out.JobID)
	require.NoError(t, err)
	require.True(t, res.Cancelled)
	require.Equal(t, "cancelled", res.Status)

	st := waitDone(t, o, out.JobID)
	require.Equal(t, StatusError, st.Status)
	require.Equal(t, errors.CancelledMessage, st.Error)
	require.Equal(t, 20, st.Progress)
}

func TestCancel_LateSuccessDoesNotOverwrite(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	engine := engineFunc(func(ctx context.Context, comp Composition, progress ProgressFunc) error {
		close(started)
		<-release
		progress(90)
		return os.WriteFile(comp.OutputPath, []byte("mp4"), 0600)
	})
	o, media := newTestOrchestrator(t, engine, nil)

	out, err := o.Submit(context.Background(), SubmitInput{VideoID: "vid-1", Document: testDoc(1)})
	require.NoError(t, err)
	<-started

	_, err = o.Cancel(out.JobID)
	require.NoError(t, err)
	close(release)

	st := waitDone(t, o, out.JobID)
	require.Equal(t, StatusError, st.Status)
	require.Equal(t, errors.CancelledMessage, st.Error)
	require.Empty(t, st.OutputRef)
	require.NoFileExists(t, media.OutputPath(out.JobID))
}

func TestCancel_TerminalAndUnknown(t *testing.T) {
	o, _ := newTestOrchestrator(t, engineFunc(writeOutput), nil)

	out, err := o.Submit(context.Background(), SubmitInput{VideoID: "vid-1", Document: testDoc(1)})
	require.NoError(t, err)
	waitDone(t, o, out.JobID)

	res, err := o.Cancel(out.JobID)
	require.NoError(t, err)
	require.False(t, res.Cancelled)
	require.Equal(t, string(StatusComplete), res.Status)

	st, err := o.Status(out.JobID)
	require.NoError(t, err)
	require.Equal(t, StatusComplete, st.Status)

	_, err = o.Cancel("missing")
	require.True(t, errors.Is(err, errors.ErrNotFound))
	_, err = o.Status("missing")
	require.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestConcurrencyLimit_QueuedJobsStayPending(t *testing.T) {
	started := make(chan string, 2)
	release := make(chan struct{})
	engine := engineFunc(func(ctx context.Context, comp Composition, progress ProgressFunc) error {
		started <- comp.JobID
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	o, _ := newTestOrchestrator(t, engine, func(opts *Options) { opts.MaxConcurrent = 1 })

	first, err := o.Submit(context.Background(), SubmitInput{VideoID: "vid-1", Document: testDoc(1)})
	require.NoError(t, err)
	require.Equal(t, first.JobID, <-started)

	second, err := o.Submit(context.Background(), SubmitInput{VideoID: "vid-1", Document: testDoc(1)})
	require.NoError(t, err)

	st, err := o.Status(second.JobID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, st.Status)

	res, err := o.Cancel(second.JobID)
	require.NoError(t, err)
	require.True(t, res.Cancelled)
	require.Equal(t, StatusError, waitDone(t, o, second.JobID).Status)

	close(release)
	require.Equal(t, StatusComplete, waitDone(t, o, first.JobID).Status)
	select {
	case id := <-started:
		t.Fatalf("engine ran for cancelled pending job %s", id)
	default:
	}
}

func TestSweep_RemovesExpiredJobs(t *testing.T) {
	o, media := newTestOrchestrator(t, engineFunc(writeOutput), nil)
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	o.now = func() time.Time { return t0 }
	old, err := o.Submit(context.Background(), SubmitInput{VideoID: "vid-1", Document: testDoc(1)})
	require.NoError(t, err)
	waitDone(t, o, old.JobID)

	o.now = func() time.Time { return t0.Add(23 * time.Hour) }
	fresh, err := o.Submit(context.Background(), SubmitInput{VideoID: "vid-1", Document: testDoc(1)})
	require.NoError(t, err)
	waitDone(t, o, fresh.JobID)

	require.FileExists(t, media.OutputPath(old.JobID))
	require.Equal(t, 0, o.Sweep(t0.Add(24*time.Hour)), "age equal to TTL is kept")

	removed := o.Sweep(t0.Add(24*time.Hour + time.Second))
	require.Equal(t, 1, removed)

	_, err = o.Status(old.JobID)
	require.True(t, errors.Is(err, errors.ErrNotFound))
	require.NoFileExists(t, media.OutputPath(old.JobID))

	st, err := o.Status(fresh.JobID)
	require.NoError(t, err)
	require.Equal(t, StatusComplete, st.Status)
	require.FileExists(t, media.OutputPath(fresh.JobID))
}

func TestSweep_FileErrorsAreSkipped(t *testing.T) {
	o, media := newTestOrchestrator(t, engineFunc(writeOutput), nil)
	media.removeErr = stderrors.New("permission denied")
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return t0 }

	var ids []string
	for i := 0; i < 2; i++ {
		out, err := o.Submit(context.Background(), SubmitInput{VideoID: "vid-1", Document: testDoc(1)})
		require.NoError(t, err)
		waitDone(t, o, out.JobID)
		ids = append(ids, out.JobID)
	}

	require.Equal(t, 2, o.Sweep(t0.Add(48*time.Hour)))
	for _, id := range ids {
		_, err := o.Status(id)
		require.True(t, errors.Is(err, errors.ErrNotFound))
	}
}

func TestRunSweeper_StopsOnContext(t *testing.T) {
	o, _ := newTestOrchestrator(t, engineFunc(writeOutput), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		o.RunSweeper(ctx, 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunSweeper did not stop")
	}
}

func TestShutdown_CancelsRunningJobs(t *testing.T) {
	started := make(chan struct{})
	engine := engineFunc(func(ctx context.Context, comp Composition, progress ProgressFunc) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	o, _ := newTestOrchestrator(t, engine, nil)

	out, err := o.Submit(context.Background(), SubmitInput{VideoID: "vid-1", Document: testDoc(1)})
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Shutdown(ctx))

	st, err := o.Status(out.JobID)
	require.NoError(t, err)
	require.Equal(t, StatusError, st.Status)
}

func TestSubmit_RejectedAfterShutdown(t *testing.T) {
	o, _ := newTestOrchestrator(t, engineFunc(func(ctx context.Context, comp Composition, progress ProgressFunc) error {
		return nil
	}), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Shutdown(ctx))

	_, err := o.Submit(context.Background(), SubmitInput{VideoID: "vid-1", Document: testDoc(1)})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrShuttingDown)
	require.Empty(t, o.List(), "no job should be recorded")
}

func TestQualityToCRF(t *testing.T) {
	tests := []struct {
		quality, want int
	}{
		{0, 40},
		{100, 18},
		{50, 29},
		{80, 22},
		{-10, 40},
		{250, 18},
	}
	for _, tt := range tests {
		if got := QualityToCRF(tt.quality, 18, 40); got != tt.want {
			t.Errorf("QualityToCRF(%d) = %d, want %d", tt.quality, got, tt.want)
		}
	}
}

func TestDurationSeconds(t *testing.T) {
	require.Equal(t, 11, DurationSeconds(testDoc(3, 6, 9.4)))
	require.Equal(t, 11, DurationSeconds(testDoc(10)))
}

func TestIsValidTransition(t *testing.T) {
	require.True(t, isValidTransition(StatusPending, StatusRendering))
	require.True(t, isValidTransition(StatusPending, StatusError))
	require.True(t, isValidTransition(StatusRendering, StatusComplete))
	require.True(t, isValidTransition(StatusRendering, StatusError))
	require.False(t, isValidTransition(StatusPending, StatusComplete))
	require.False(t, isValidTransition(StatusRendering, StatusPending))
	require.False(t, isValidTransition(StatusComplete, StatusError))
	require.False(t, isValidTransition(StatusError, StatusRendering))
}
