package common

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallelMap_PreservesOrder(t *testing.T) {
	items := []int{5, 1, 4, 2, 3}

	out, err := ParallelMap(context.Background(), items, ParallelOptions{Workers: 3}, func(ctx context.Context, n int) (int, error) {
		// Later items finish first.
		time.Sleep(time.Duration(n) * time.Millisecond)
		return n * 10, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{50, 10, 40, 20, 30}, out)
}

func TestParallelMap_RespectsWorkerLimit(t *testing.T) {
	var running, peak int32
	items := make([]int, 20)

	_, err := ParallelMap(context.Background(), items, ParallelOptions{Workers: 2}, func(ctx context.Context, _ int) (struct{}, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return struct{}{}, nil
	})

	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestParallelMap_RetriesThenSucceeds(t *testing.T) {
	var calls int32

	out, err := ParallelMap(context.Background(), []string{"a"}, ParallelOptions{Workers: 1, Retries: 2}, func(ctx context.Context, s string) (string, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return "", errors.New("flaky")
		}
		return s + "!", nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"a!"}, out)
	assert.Equal(t, int32(3), calls)
}

func TestParallelMap_FailurePropagates(t *testing.T) {
	boom := errors.New("boom")

	_, err := ParallelMap(context.Background(), []int{0, 1, 2}, ParallelOptions{Workers: 2, Retries: 1}, func(ctx context.Context, n int) (int, error) {
		if n == 1 {
			return 0, boom
		}
		return n, nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var itemErr *ItemError
	require.ErrorAs(t, err, &itemErr)
	assert.Equal(t, 1, itemErr.Index)
}

func TestParallelMap_PerAttemptTimeout(t *testing.T) {
	_, err := ParallelMap(context.Background(), []int{1}, ParallelOptions{Workers: 1, Timeout: 10 * time.Millisecond}, func(ctx context.Context, n int) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetry_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls int

	_, err := Retry(ctx, 5, 0, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("unreachable")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}
