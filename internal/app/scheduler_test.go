package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestScheduler_RunsTaskImmediatelyAndOnTicker(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler(zap.NewNop(), Task{
		Name:     "count",
		Interval: 5 * time.Millisecond,
		Run: func(context.Context) error {
			runs.Add(1)
			return errors.New("ignored")
		},
	})

	s.Start(context.Background())
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, time.Millisecond)
	s.Stop()

	stopped := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, runs.Load())
}

func TestScheduler_SkipsNonPositiveInterval(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler(zap.NewNop(), Task{
		Name:     "broken",
		Interval: 0,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	assert.NotPanics(t, func() { s.Start(context.Background()) })
	s.Stop()
	assert.Zero(t, runs.Load())
}
