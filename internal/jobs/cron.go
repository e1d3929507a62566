// Package jobs fires the periodic batch jobs from inside the server process.
package jobs

import (
	"fmt"

	"github.com/robfig/cron"

	"github.com/hexamarkco/kifersaude-sub002/internal/logger"
)

// Ticker pushes job names onto a worker channel on a cron schedule.
type Ticker struct {
	cron *cron.Cron
	jobs chan<- string
	log  *logger.Logger
}

// NewTicker registers every name under spec. Spec uses the six-field
// format with seconds, e.g. "0 * * * * *" for every minute.
func NewTicker(spec string, jobs chan<- string, log *logger.Logger, names ...string) (*Ticker, error) {
	t := &Ticker{cron: cron.New(), jobs: jobs, log: log}
	for _, name := range names {
		name := name
		if err := t.cron.AddFunc(spec, func() { t.Enqueue(name) }); err != nil {
			return nil, fmt.Errorf("schedule %s with %q: %w", name, spec, err)
		}
	}
	return t, nil
}

// Enqueue hands name to the worker without blocking. A tick that finds the
// previous run of the same job still queued is dropped.
func (t *Ticker) Enqueue(name string) bool {
	select {
	case t.jobs <- name:
		return true
	default:
		t.log.Warn("Job queue full; dropping tick", "job", name)
		return false
	}
}

func (t *Ticker) Start() {
	t.cron.Start()
}

func (t *Ticker) Stop() {
	t.cron.Stop()
}
