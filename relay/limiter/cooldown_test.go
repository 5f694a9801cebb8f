package limiter

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCooldownBackoffProgression(t *testing.T) {
	base := time.Now()
	m := NewCooldownManager()
	m.now = func() time.Time { return base }

	expected := []int{15, 30, 60, 120, 240, 300, 300}
	for i, want := range expected {
		m.Set("acc", "upstream 500", 0)
		entry, ok := m.Get("acc")
		require.True(t, ok)
		assert.Equal(t, i+1, entry.Failures)
		assert.Equal(t, time.Duration(want)*time.Second, entry.Until.Sub(base), "failure %d", i+1)
	}
}

func TestCooldownRetryAfterOverride(t *testing.T) {
	base := time.Now()
	m := NewCooldownManager()
	m.now = func() time.Time { return base }

	m.Set("acc", "rate limited", 30)
	entry, ok := m.Get("acc")
	require.True(t, ok)
	assert.Equal(t, 1, entry.Failures)
	assert.Equal(t, 30*time.Second, entry.Until.Sub(base))
	assert.Equal(t, "rate limited", entry.Reason)
}

func TestIsOnCooldownLazyPrune(t *testing.T) {
	base := time.Now()
	current := base
	m := NewCooldownManager()
	m.now = func() time.Time { return current }

	m.Set("acc", "err", 10)
	require.True(t, m.IsOnCooldown("acc"))

	current = base.Add(11 * time.Second)
	require.False(t, m.IsOnCooldown("acc"))
	_, ok := m.Get("acc")
	assert.False(t, ok, "expired entry must be pruned")
}

func TestClearResetsFailures(t *testing.T) {
	base := time.Now()
	m := NewCooldownManager()
	m.now = func() time.Time { return base }

	m.Set("acc", "err", 0)
	m.Set("acc", "err", 0)
	m.Clear("acc")
	m.Set("acc", "err", 0)
	entry, _ := m.Get("acc")
	assert.Equal(t, 1, entry.Failures)
	assert.Equal(t, 15*time.Second, entry.Until.Sub(base))
}

func TestSortByCooldown(t *testing.T) {
	base := time.Now()
	m := NewCooldownManager()
	m.now = func() time.Time { return base }

	// c cools down later than b; a and d are healthy
	m.Set("b", "err", 20)
	m.Set("c", "err", 40)

	got := m.SortByCooldown([]string{"a", "b", "c", "d"})
	assert.Equal(t, []string{"a", "d", "b", "c"}, got)
}

func TestSortByCooldownExpiredTreatedHealthy(t *testing.T) {
	base := time.Now()
	current := base
	m := NewCooldownManager()
	m.now = func() time.Time { return current }

	m.Set("a", "err", 5)
	current = base.Add(6 * time.Second)

	got := m.SortByCooldown([]string{"b", "a"})
	assert.Equal(t, []string{"b", "a"}, got, "expired-but-unpruned entries count as healthy")
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 30, ParseRetryAfter("30"))
	assert.Equal(t, 0, ParseRetryAfter(fmt.Sprintf("%d", 0)))
	assert.Equal(t, 60, ParseRetryAfter("not-a-number"))
	assert.Equal(t, 60, ParseRetryAfter(""))

	future := time.Now().Add(90 * time.Second).UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT")
	got := ParseRetryAfter(future)
	assert.InDelta(t, 90, got, 2)

	past := time.Now().Add(-90 * time.Second).UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT")
	assert.Equal(t, 0, ParseRetryAfter(past))
}
