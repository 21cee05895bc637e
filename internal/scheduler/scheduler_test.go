package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)

	s, err := New(30 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "@every 30m0s", s.spec)
}

func TestJobsRunOnScheduleAndSurviveFailures(t *testing.T) {
	s, err := New(time.Second)
	require.NoError(t, err)

	var ok, failed atomic.Int32
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, "ok", func(context.Context) error {
		ok.Add(1)
		return nil
	}))
	require.NoError(t, s.Add(ctx, "failing", func(context.Context) error {
		failed.Add(1)
		return errors.New("spreadsheet down")
	}))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return ok.Load() >= 2 && failed.Load() >= 2
	}, 5*time.Second, 50*time.Millisecond)
}

func TestCancelledContextSkipsRuns(t *testing.T) {
	s, err := New(time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var runs atomic.Int32
	require.NoError(t, s.Add(ctx, "refresh", func(context.Context) error {
		runs.Add(1)
		return nil
	}))

	s.Start()
	time.Sleep(1500 * time.Millisecond)
	<-s.Stop().Done()

	assert.Zero(t, runs.Load())
}
