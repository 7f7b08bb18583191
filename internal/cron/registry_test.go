package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryPreservesOrder(t *testing.T) {
	followUps := &stubJob{name: "settlement-followups"}
	retention := &stubJob{name: "outbox-retention"}
	registry := NewRegistry()
	require.NoError(t, registry.Register(followUps, nil, retention))

	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	assert.Same(t, followUps, jobs[0])
	assert.Equal(t, []string{"settlement-followups", "outbox-retention"}, registry.Names())

	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0])
}

func TestRegistryReportsEveryRejectedJob(t *testing.T) {
	registry := NewRegistry(&stubJob{name: "outbox-retention"})

	err := registry.Register(
		&stubJob{name: "outbox-retention"},
		&stubJob{name: "  "},
		&stubJob{name: "settlement-followups"},
	)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Equal(t, []string{"outbox-retention", "settlement-followups"}, registry.Names())
}
