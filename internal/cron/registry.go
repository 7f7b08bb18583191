package cron

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// Job is one reconciliation pass run by the cron worker each cycle.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry is the ordered job list. Job names label metrics and log lines,
// so they must be unique and non-blank.
type Registry struct {
	jobs []Job
	seen map[string]bool
}

// NewRegistry registers jobs and drops any Register rejects. Use Register
// directly when the rejection matters.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{}
	_ = r.Register(jobs...)
	return r
}

// Register appends jobs in order. Nil jobs are skipped. Every rejected job is
// reported in the combined error; the accepted ones stay registered.
func (r *Registry) Register(jobs ...Job) error {
	if r.seen == nil {
		r.seen = map[string]bool{}
	}
	var errs error
	for _, job := range jobs {
		if job == nil {
			continue
		}
		name := strings.TrimSpace(job.Name())
		switch {
		case name == "":
			errs = multierr.Append(errs, fmt.Errorf("cron job %T has no name", job))
		case r.seen[name]:
			errs = multierr.Append(errs, fmt.Errorf("cron job %q already registered", name))
		default:
			r.seen[name] = true
			r.jobs = append(r.jobs, job)
		}
	}
	return errs
}

func (r *Registry) Jobs() []Job {
	return append([]Job(nil), r.jobs...)
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.jobs))
	for i, job := range r.jobs {
		names[i] = job.Name()
	}
	return names
}
