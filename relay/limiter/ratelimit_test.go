package limiter

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCheckAndRecordWindow(t *testing.T) {
	base := time.Now()
	current := base
	r := NewRateLimiter()
	r.now = func() time.Time { return current }

	for i := 0; i < 3; i++ {
		require.False(t, r.CheckAndRecord("acc", 3))
	}
	require.True(t, r.CheckAndRecord("acc", 3), "fourth request within window must be rejected")

	// after the window slides past the first request, one slot frees up
	current = base.Add(61 * time.Second)
	require.False(t, r.CheckAndRecord("acc", 3))
}

func TestCheckAndRecordUnlimited(t *testing.T) {
	r := NewRateLimiter()
	for i := 0; i < 1000; i++ {
		require.False(t, r.CheckAndRecord("acc", 0))
	}
	require.False(t, r.IsLimited("acc", -1))
}

func TestIsLimitedDoesNotConsume(t *testing.T) {
	r := NewRateLimiter()
	require.False(t, r.CheckAndRecord("acc", 2))
	require.False(t, r.IsLimited("acc", 2))
	require.False(t, r.IsLimited("acc", 2))
	require.False(t, r.CheckAndRecord("acc", 2))
	require.True(t, r.IsLimited("acc", 2))
}

func TestCheckAndRecordConcurrent(t *testing.T) {
	r := NewRateLimiter()
	const limit = 10
	const callers = 100

	var admitted atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if !r.CheckAndRecord("acc", limit) {
				admitted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.EqualValues(t, limit, admitted.Load(), "exactly limit callers may be admitted")
}

func TestClear(t *testing.T) {
	r := NewRateLimiter()
	require.False(t, r.CheckAndRecord("acc", 1))
	require.True(t, r.CheckAndRecord("acc", 1))
	r.Clear("acc")
	require.False(t, r.CheckAndRecord("acc", 1))
}
