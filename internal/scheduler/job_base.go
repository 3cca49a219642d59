package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultJobTimeout bounds a single job run
const DefaultJobTimeout = 2 * time.Minute

// JobBase carries the logger and timeout shared by all jobs.
// Jobs embed it and get SetLogger and SetTimeout for free.
type JobBase struct {
	log     zerolog.Logger
	timeout time.Duration
}

// SetLogger sets the logger for the job
func (j *JobBase) SetLogger(log zerolog.Logger) {
	j.log = log
}

// SetTimeout overrides the run timeout
func (j *JobBase) SetTimeout(d time.Duration) {
	j.timeout = d
}

// runContext returns a context bounded by the job timeout
func (j *JobBase) runContext() (context.Context, context.CancelFunc) {
	timeout := j.timeout
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	return context.WithTimeout(context.Background(), timeout)
}
