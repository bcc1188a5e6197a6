package scan

import (
	"context"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

// ScanJobArgs is the durable payload for one monitor scan. Keyword and
// location ride along so the worker never re-reads the monitor to submit.
type ScanJobArgs struct {
	MonitorID uuid.UUID `json:"monitor_id"`
	UserID    uuid.UUID `json:"user_id"`
	Keyword   string    `json:"keyword"`
	Location  string    `json:"location"`
}

func (ScanJobArgs) Kind() string { return "monitor_scan" }

// Worker is the River adapter around Runner. All orchestration and
// compensation lives in Runner; the worker only bridges the queue API.
type Worker struct {
	river.WorkerDefaults[ScanJobArgs]
	runner *Runner
}

func NewWorker(runner *Runner) *Worker {
	return &Worker{runner: runner}
}

func (w *Worker) Work(ctx context.Context, job *river.Job[ScanJobArgs]) error {
	return w.runner.Run(ctx, job.Args)
}
