package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
	runs int
	err  error
}

func (j *stubJob) Name() string        { return j.name }
func (j *stubJob) Description() string { return "stub job" }
func (j *stubJob) Run(ctx context.Context) error {
	j.runs++
	return j.err
}

func TestIntervalSchedule_Next(t *testing.T) {
	s := NewIntervalSchedule(15 * time.Minute)
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, base.Add(15*time.Minute), s.Next(base))
	assert.Equal(t, "@every 15m0s", s.String())
}

func TestDailySchedule_Next(t *testing.T) {
	s := NewDailySchedule(0, 10)

	t.Run("before the slot runs same day", func(t *testing.T) {
		at := time.Date(2026, 3, 10, 0, 5, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2026, 3, 10, 0, 10, 0, 0, time.UTC), s.Next(at))
	})

	t.Run("after the slot rolls to next day", func(t *testing.T) {
		at := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2026, 3, 11, 0, 10, 0, 0, time.UTC), s.Next(at))
	})

	t.Run("exactly at the slot rolls to next day", func(t *testing.T) {
		at := time.Date(2026, 3, 10, 0, 10, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2026, 3, 11, 0, 10, 0, 0, time.UTC), s.Next(at))
	})
}

func TestScheduler_RegisterRejectsDuplicates(t *testing.T) {
	s := NewScheduler(Config{})
	job := &stubJob{name: "sweep"}

	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))
	assert.ErrorIs(t, s.Register(job, NewIntervalSchedule(time.Hour)), ErrJobAlreadyExists)

	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Hour)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&stubJob{name: "other"}, nil), ErrNilSchedule)
}

func TestScheduler_RunNow(t *testing.T) {
	s := NewScheduler(Config{})
	job := &stubJob{name: "sweep"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "sweep")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, job.runs)

	_, err = s.RunNow(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestScheduler_RunNowRecordsFailure(t *testing.T) {
	s := NewScheduler(Config{})
	job := &stubJob{name: "sweep", err: errors.New("boom")}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "sweep")
	require.Error(t, err)
	assert.False(t, result.Success)

	snapshot := s.GetMetrics().Snapshot()
	assert.Equal(t, int64(1), snapshot.TotalExecutions)
	assert.Equal(t, int64(1), snapshot.TotalFailures)
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(Config{})
	require.NoError(t, s.Register(&stubJob{name: "sweep"}, NewIntervalSchedule(time.Hour)))

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}
