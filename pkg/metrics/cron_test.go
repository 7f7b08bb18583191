package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestCronJobMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)

	m.ObserveRun("settlement-followups", 250*time.Millisecond, nil)
	m.ObserveRun("settlement-followups", 10*time.Millisecond, errors.New("boom"))
	m.ObserveRun("", time.Millisecond, nil)
	m.IncSkipped()
	m.IncSkipped()

	job := "settlement-followups"
	assert.Equal(t, 1.0, counterValue(t, reg, "cron_job_runs_total", map[string]string{"job": job, "outcome": "success"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "cron_job_runs_total", map[string]string{"job": job, "outcome": "failure"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "cron_job_runs_total", map[string]string{"job": "unknown"}))
	assert.Equal(t, 2.0, counterValue(t, reg, "cron_cycles_skipped_total", nil))

	h := series(t, reg, "cron_job_duration_seconds", map[string]string{"job": job}).GetHistogram()
	assert.Equal(t, uint64(2), h.GetSampleCount())
	assert.InDelta(t, 0.26, h.GetSampleSum(), 1e-9)
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.ObserveRun("job", time.Second, nil)
	m.IncSkipped()

	NewCronJobMetrics(nil).ObserveRun("", time.Second, errors.New("x"))
}
