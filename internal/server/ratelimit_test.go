package server

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newLimiter(perMinute, perHour, perDay int, dataPerDay int64) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(perMinute, perHour, perDay, dataPerDay)
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiter_NoLimits(t *testing.T) {
	rl, _ := newLimiter(0, 0, 0, 0)
	for range 100 {
		require.NoError(t, rl.CheckRateLimit("client", 100))
	}
	usage := rl.GetUsage("client")
	assert.Equal(t, 100, usage.RequestsToday)
	assert.Equal(t, int64(10000), usage.DataToday)
}

func TestRateLimiter_Windows(t *testing.T) {
	tests := []struct {
		name      string
		perMinute int
		perHour   int
		wantType  string
		wantLimit int
		window    time.Duration
	}{
		{"minute", 2, 0, "minute", 2, time.Minute},
		{"hour", 0, 3, "hour", 3, time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl, clock := newLimiter(tt.perMinute, tt.perHour, 0, 0)
			for range tt.wantLimit {
				require.NoError(t, rl.CheckRateLimit("client", 0))
				clock.advance(time.Second)
			}

			err := rl.CheckRateLimit("client", 0)
			var rateErr *RateLimitError
			require.True(t, errors.As(err, &rateErr))
			assert.Equal(t, tt.wantType, rateErr.Type)
			assert.Equal(t, tt.wantLimit, rateErr.Limit)
			assert.Equal(t, tt.window-time.Duration(tt.wantLimit)*time.Second, rateErr.RetryAfter)

			clock.advance(tt.window)
			assert.NoError(t, rl.CheckRateLimit("client", 0))
		})
	}
}

// Steady traffic must not keep a window open forever.
func TestRateLimiter_WindowRollsUnderSteadyTraffic(t *testing.T) {
	rl, clock := newLimiter(3, 0, 0, 0)
	allowed := 0
	for range 120 {
		if rl.CheckRateLimit("client", 0) == nil {
			allowed++
		}
		clock.advance(time.Second)
	}
	assert.Equal(t, 6, allowed)
}

func TestRateLimiter_DailyQuotas(t *testing.T) {
	t.Run("requests", func(t *testing.T) {
		rl, clock := newLimiter(0, 0, 2, 0)
		require.NoError(t, rl.CheckRateLimit("client", 0))
		require.NoError(t, rl.CheckRateLimit("client", 0))

		err := rl.CheckRateLimit("client", 0)
		var quotaErr *QuotaExceededError
		require.True(t, errors.As(err, &quotaErr))
		assert.Equal(t, "requests", quotaErr.Type)
		assert.Equal(t, int64(2), quotaErr.Used)
		assert.Equal(t, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), quotaErr.Resets)

		clock.advance(12 * time.Hour)
		assert.NoError(t, rl.CheckRateLimit("client", 0))
	})

	t.Run("data", func(t *testing.T) {
		rl, _ := newLimiter(0, 0, 0, 1000)
		require.NoError(t, rl.CheckRateLimit("client", 600))

		err := rl.CheckRateLimit("client", 500)
		var quotaErr *QuotaExceededError
		require.True(t, errors.As(err, &quotaErr))
		assert.Equal(t, "data", quotaErr.Type)
		assert.Equal(t, int64(600), quotaErr.Used)

		assert.NoError(t, rl.CheckRateLimit("client", 400))
	})
}

func TestRateLimiter_RejectedRequestsAreNotCounted(t *testing.T) {
	rl, _ := newLimiter(1, 0, 0, 0)
	require.NoError(t, rl.CheckRateLimit("client", 10))
	for range 5 {
		require.Error(t, rl.CheckRateLimit("client", 10))
	}
	usage := rl.GetUsage("client")
	assert.Equal(t, 1, usage.RequestsThisMinute)
	assert.Equal(t, int64(10), usage.DataToday)
}

func TestRateLimiter_ClientsAreIndependent(t *testing.T) {
	rl, _ := newLimiter(1, 0, 0, 0)
	require.NoError(t, rl.CheckRateLimit("a", 0))
	require.Error(t, rl.CheckRateLimit("a", 0))
	require.NoError(t, rl.CheckRateLimit("b", 0))
	assert.Equal(t, ClientUsage{}, rl.GetUsage("unknown"))
}

func TestRateLimitErrors_Error(t *testing.T) {
	err := &RateLimitError{Type: "minute", Limit: 10, RetryAfter: 30 * time.Second}
	assert.Equal(t, "rate limit exceeded for minute (limit: 10, retry after: 30s)", err.Error())

	q := &QuotaExceededError{Type: "data", Limit: 1000, Used: 1500, Resets: time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, "quota exceeded for data (used: 1500, limit: 1000, resets: 2026-10-15T00:00:00Z)", q.Error())
}

func BenchmarkRateLimiter_CheckRateLimit(b *testing.B) {
	rl := NewRateLimiter(0, 0, 0, 0)
	for b.Loop() {
		_ = rl.CheckRateLimit("client", 1024)
	}
}
