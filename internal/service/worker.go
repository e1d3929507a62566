package service

import (
	"context"
	"time"

	appErrors "github.com/hexamarkco/kifersaude-sub002/internal/errors"
	"github.com/hexamarkco/kifersaude-sub002/internal/logger"
)

// Job names accepted by the worker.
const (
	JobProcessScheduled = "process_scheduled"
	JobProcessCampaigns = "process_campaigns"
)

// Worker runs batch jobs one at a time, so overlapping ticks never run
// the same batch concurrently inside one process.
type Worker struct {
	Scheduler     *SchedulerService
	Campaigns     *CampaignService
	ScheduleLimit int
	CampaignLimit int
	Jobs          <-chan string
	Log           *logger.Logger
	Now           func() time.Time
}

func NewWorker(scheduler *SchedulerService, campaigns *CampaignService, jobs <-chan string, log *logger.Logger) *Worker {
	return &Worker{
		Scheduler: scheduler,
		Campaigns: campaigns,
		Jobs:      jobs,
		Log:       log,
	}
}

func (w *Worker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// Run executes one job by name and returns how many records it handled.
func (w *Worker) Run(ctx context.Context, job string) (int, error) {
	started := time.Now()
	switch job {
	case JobProcessScheduled:
		results, err := w.Scheduler.ProcessDue(ctx, w.now(), w.ScheduleLimit)
		if err != nil {
			return len(results), err
		}
		w.Log.Info("Processed scheduled messages", "count", len(results), "took", time.Since(started))
		return len(results), nil
	case JobProcessCampaigns:
		results, err := w.Campaigns.ProcessPendingTargets(ctx, w.now(), w.CampaignLimit)
		if err != nil {
			return len(results), err
		}
		w.Log.Info("Processed campaign targets", "count", len(results), "took", time.Since(started))
		return len(results), nil
	default:
		return 0, appErrors.NewValidation("job", "unknown job "+job)
	}
}

// Start consumes Jobs until the channel closes or ctx is done.
func (w *Worker) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-w.Jobs:
			if !ok {
				return
			}
			if _, err := w.Run(ctx, job); err != nil {
				w.Log.Error("Job failed", "job", job, "error", err)
			}
		}
	}
}
