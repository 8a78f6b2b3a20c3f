package scheduler

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/switchboard/errors"
	"github.com/c360/switchboard/metric"
)

func TestNewTicker_Validation(t *testing.T) {
	noop := func(context.Context) error { return nil }

	_, err := NewTicker("ttl", 0, noop)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = NewTicker("ttl", time.Second, nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	tk, err := NewTicker("ttl", time.Second, noop)
	require.NoError(t, err)
	assert.True(t, tk.LastRun().IsZero())
}

func TestTicker_RunsPeriodically(t *testing.T) {
	var calls atomic.Int64
	tk, err := NewTicker("ttl", 10*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, tk.Start(context.Background()))
	defer tk.Stop(time.Second)

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, tk.Health().IsHealthy())
	assert.False(t, tk.LastRun().IsZero())
}

func TestTicker_StartTwice(t *testing.T) {
	tk, err := NewTicker("ttl", time.Hour, func(context.Context) error { return nil })
	require.NoError(t, err)

	require.NoError(t, tk.Start(context.Background()))
	defer tk.Stop(time.Second)

	err = tk.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAlreadyStarted)
}

func TestTicker_SkipsWhileBusy(t *testing.T) {
	release := make(chan struct{})
	var started atomic.Int64

	registry := metric.NewMetricsRegistry()
	tk, err := NewTicker("ttl", 5*time.Millisecond, func(ctx context.Context) error {
		started.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}, WithMetrics(registry))
	require.NoError(t, err)

	require.NoError(t, tk.Start(context.Background()))

	assert.Eventually(t, func() bool { return tk.Stats().Skipped >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), started.Load(), "overlapping runs must not start")

	close(release)
	require.NoError(t, tk.Stop(time.Second))

	skipped := testutil.ToFloat64(registry.CoreMetrics().Ticks.WithLabelValues("ttl", ResultSkipped))
	assert.GreaterOrEqual(t, skipped, 3.0)
}

func TestTicker_RunOnceCountsFailuresAndPanics(t *testing.T) {
	var mode atomic.Int32
	tk, err := NewTicker("reload", time.Hour, func(context.Context) error {
		switch mode.Load() {
		case 1:
			return stderrors.New("boom")
		case 2:
			panic("kaboom")
		}
		return nil
	})
	require.NoError(t, err)

	tk.RunOnce(context.Background())
	mode.Store(1)
	tk.RunOnce(context.Background())
	mode.Store(2)
	assert.NotPanics(t, func() { tk.RunOnce(context.Background()) })

	stats := tk.Stats()
	assert.Equal(t, int64(1), stats.Runs)
	assert.Equal(t, int64(2), stats.Failed)
	assert.Contains(t, stats.LastError, "kaboom")

	mode.Store(0)
	tk.RunOnce(context.Background())
	assert.Empty(t, tk.Stats().LastError)
}

func TestTicker_Health(t *testing.T) {
	var fail atomic.Bool
	tk, err := NewTicker("ttl", time.Hour, func(context.Context) error {
		if fail.Load() {
			return stderrors.New("tick failed")
		}
		return nil
	})
	require.NoError(t, err)

	assert.True(t, tk.Health().IsUnhealthy(), "stopped ticker")

	require.NoError(t, tk.Start(context.Background()))
	defer tk.Stop(time.Second)
	assert.True(t, tk.Health().IsHealthy())

	fail.Store(true)
	tk.RunOnce(context.Background())
	status := tk.Health()
	assert.True(t, status.IsDegraded())
	require.NotNil(t, status.Metrics)
	assert.Equal(t, int64(1), status.Metrics.ErrorCount)
}

func TestTicker_StopIsIdempotent(t *testing.T) {
	tk, err := NewTicker("ttl", time.Hour, func(context.Context) error { return nil })
	require.NoError(t, err)

	assert.NoError(t, tk.Stop(time.Second))
	require.NoError(t, tk.Start(context.Background()))
	assert.NoError(t, tk.Stop(time.Second))
	assert.NoError(t, tk.Stop(time.Second))

	// Can be started again after a stop
	require.NoError(t, tk.Start(context.Background()))
	assert.NoError(t, tk.Stop(time.Second))
}
