package ticker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

// runAsync 在后台启动 start，返回其结果通道。
func runAsync(ctx context.Context, start func(context.Context) error) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- start(ctx)
	}()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return")
		return nil
	}
}

func TestNewDefaultsInterval(t *testing.T) {
	tk := New(10*time.Millisecond, func(time.Time) {})
	assert.Equal(t, 10*time.Millisecond, tk.Interval())
	assert.False(t, tk.IsRunning())

	assert.Equal(t, time.Second, New(0, nil).Interval())
	assert.Equal(t, time.Second, New(-time.Second, nil).Interval())
}

func TestSweepTickerRunsUntilCancel(t *testing.T) {
	var sweeps atomic.Int64
	tk := New(5*time.Millisecond, func(time.Time) { sweeps.Inc() })

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, tk.Start)

	require.Eventually(t, func() bool { return sweeps.Load() >= 3 }, time.Second, time.Millisecond)
	assert.True(t, tk.IsRunning())

	cancel()
	assert.ErrorIs(t, waitDone(t, done), context.Canceled)
	assert.False(t, tk.IsRunning())
	assert.EqualValues(t, sweeps.Load(), tk.Ticks())
}

func TestTickerStopEndsStart(t *testing.T) {
	tk := New(5*time.Millisecond, func(time.Time) {})
	done := runAsync(context.Background(), tk.Start)

	require.Eventually(t, tk.IsRunning, time.Second, time.Millisecond)
	tk.Stop()
	tk.Stop()
	assert.NoError(t, waitDone(t, done))
	assert.False(t, tk.IsRunning())
}

func TestTickerSecondStartReturnsImmediately(t *testing.T) {
	tk := New(time.Hour, func(time.Time) {})
	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, tk.Start)
	require.Eventually(t, tk.IsRunning, time.Second, time.Millisecond)

	assert.NoError(t, tk.Start(ctx))

	cancel()
	assert.ErrorIs(t, waitDone(t, done), context.Canceled)
}

func TestTickerStopBeforeStart(t *testing.T) {
	assert.NotPanics(t, func() {
		New(time.Second, nil).Stop()
		NewMulti().Stop()
	})
}

func TestTickerImmediate(t *testing.T) {
	fired := make(chan time.Time, 1)
	tk := New(time.Hour, func(now time.Time) {
		select {
		case fired <- now:
		default:
		}
	}, WithImmediate())

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, tk.Start)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("immediate tick not fired")
	}

	cancel()
	assert.ErrorIs(t, waitDone(t, done), context.Canceled)
	assert.EqualValues(t, 1, tk.Ticks())
}

func TestTickerHandlerRunsSerially(t *testing.T) {
	var active atomic.Int32
	var overlap atomic.Bool
	tk := New(time.Millisecond, func(time.Time) {
		if active.Inc() > 1 {
			overlap.Store(true)
		}
		time.Sleep(3 * time.Millisecond)
		active.Dec()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_ = tk.Start(ctx)

	assert.False(t, overlap.Load())
	assert.NotZero(t, tk.Ticks())
}

func TestMultiTickerDrivesSweepAndLogSync(t *testing.T) {
	var sweeps, syncs atomic.Int64
	mt := NewMulti()
	mt.Add("sweep", 2*time.Millisecond, func(time.Time) { sweeps.Inc() })
	mt.Add("logsync", 10*time.Millisecond, func(time.Time) { syncs.Inc() }, WithImmediate())

	require.NotNil(t, mt.Get("sweep"))
	assert.Nil(t, mt.Get("missing"))

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, mt.Start)

	require.Eventually(t, func() bool {
		return sweeps.Load() >= 5 && syncs.Load() >= 2
	}, 2*time.Second, time.Millisecond)

	assert.NoError(t, mt.Start(ctx))

	cancel()
	assert.ErrorIs(t, waitDone(t, done), context.Canceled)
	assert.False(t, mt.Get("sweep").IsRunning())
}

func TestMultiTickerStopEndsStart(t *testing.T) {
	mt := NewMulti()
	mt.Add("sweep", 5*time.Millisecond, func(time.Time) {})
	done := runAsync(context.Background(), mt.Start)

	require.Eventually(t, func() bool { return mt.Get("sweep").IsRunning() }, time.Second, time.Millisecond)
	mt.Stop()
	assert.NoError(t, waitDone(t, done))
}

func TestMultiTickerRemove(t *testing.T) {
	mt := NewMulti()
	mt.Add("sweep", time.Second, nil)
	mt.Add("logsync", time.Second, nil)

	mt.Remove("sweep")
	mt.Remove("missing")

	assert.Equal(t, []string{"logsync"}, mt.Names())
	assert.Nil(t, mt.Get("sweep"))
}

func TestMultiTickerNamesSorted(t *testing.T) {
	mt := NewMulti()
	mt.Add("sweep", time.Second, nil)
	mt.Add("logsync", time.Second, nil)
	mt.Add("sweep", 2*time.Second, nil)

	assert.Equal(t, []string{"logsync", "sweep"}, mt.Names())
	assert.Equal(t, 2*time.Second, mt.Get("sweep").Interval())
}
