package render

import (
	"context"
	"time"

	"github.com/hpungsan/steno/internal/logging"
)

// Sweep deletes every job created more than the retention TTL before now,
// along with its output file. File errors are logged and skipped. Returns
// the number of jobs removed.
func (o *Orchestrator) Sweep(now time.Time) int {
	if o.opts.RetentionTTL <= 0 {
		return 0
	}
	removed := 0
	for _, job := range o.store.List() {
		if now.Sub(job.CreatedAt) <= o.opts.RetentionTTL {
			continue
		}
		o.store.Delete(job.ID)
		job.abort()

		output := job.Snapshot().OutputPath
		if output == "" {
			output = o.media.OutputPath(job.ID)
		}
		if err := o.media.RemoveOutput(output); err != nil {
			o.logger.Warn("failed to remove expired output",
				logging.String(logging.FieldJobID, job.ID),
				logging.String("output", output),
				logging.Error(err),
			)
		}
		removed++
	}
	if removed > 0 {
		o.logger.Info("expired render jobs removed", logging.Int("count", removed))
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (o *Orchestrator) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Sweep(o.now())
		}
	}
}
