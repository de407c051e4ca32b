package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type stubSweeper struct {
	swept  int64
	err    error
	cutoff time.Time
	calls  int
}

func (s *stubSweeper) SweepExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.calls++
	s.cutoff = cutoff
	return s.swept, s.err
}

type stubInvalidator struct {
	bumps int
}

func (s *stubInvalidator) Bump(context.Context) error {
	s.bumps++
	return nil
}

func TestExpirySweepBumpsCacheWhenRowsClosed(t *testing.T) {
	sweeper := &stubSweeper{swept: 3}
	inval := &stubInvalidator{}
	job := NewExpirySweepJob(sweeper, inval, nil, nil)
	now := time.Date(2026, 4, 1, 3, 15, 0, 0, time.UTC)
	job.WithClock(func() time.Time { return now })

	task, err := NewExpirySweepTask("")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Equal(t, 1, sweeper.calls)
	require.Equal(t, now, sweeper.cutoff)
	require.Equal(t, 1, inval.bumps)
}

func TestExpirySweepSkipsBumpWhenNothingSwept(t *testing.T) {
	sweeper := &stubSweeper{swept: 0}
	inval := &stubInvalidator{}
	job := NewExpirySweepJob(sweeper, inval, nil, nil)

	task, err := NewExpirySweepTask("")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Zero(t, inval.bumps)
}

func TestExpirySweepHonoursExplicitCutoff(t *testing.T) {
	sweeper := &stubSweeper{swept: 1}
	job := NewExpirySweepJob(sweeper, &stubInvalidator{}, nil, nil)

	task, err := NewExpirySweepTask("2026-02-01T00:00:00Z")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), sweeper.cutoff)
}

func TestExpirySweepRejectsMalformedCutoff(t *testing.T) {
	job := NewExpirySweepJob(&stubSweeper{}, nil, nil, nil)
	task, err := NewExpirySweepTask("not-a-time")
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)
}

func TestExpirySweepPropagatesSweeperError(t *testing.T) {
	boom := errors.New("db down")
	job := NewExpirySweepJob(&stubSweeper{err: boom}, nil, nil, nil)
	task, err := NewExpirySweepTask("")
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), boom)
}
