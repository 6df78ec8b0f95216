package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countJob struct {
	name  string
	runs  atomic.Int64
	block chan struct{}
}

func (j *countJob) Name() string {
	return j.name
}

func (j *countJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		<-j.block
	}
	return nil
}

func TestAddJob(t *testing.T) {
	s := NewCronScheduler()
	require.NoError(t, s.AddJob(&countJob{name: "sync_po_dump"}, "*/5 * * * *"))
	require.NoError(t, s.AddJob(&countJob{name: "mirror_po_dump"}, "@hourly"))
	require.NoError(t, s.AddJob(&countJob{name: "index_po_dump"}, "  "))
	require.Error(t, s.AddJob(&countJob{name: "sync_po_dump"}, "@daily"))
	require.Error(t, s.AddJob(&countJob{name: "bad"}, "not a cron spec"))
	require.Equal(t, []string{"mirror_po_dump", "sync_po_dump"}, s.Jobs())
}

func TestWrapSkipsOverlappingRuns(t *testing.T) {
	s := NewCronScheduler()
	job := &countJob{name: "index_notes", block: make(chan struct{})}
	run := s.wrap(job, "@every 1s")

	done := make(chan struct{})
	go func() {
		run()
		close(done)
	}()
	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	run()
	require.Equal(t, int64(1), job.runs.Load())

	close(job.block)
	<-done
	job.block = nil
	run()
	require.Equal(t, int64(2), job.runs.Load())
}
