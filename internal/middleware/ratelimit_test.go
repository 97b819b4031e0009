package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_slidingWindow(t *testing.T) {
	rl := NewMemoryLimiter(time.Minute, 2)
	defer rl.Close()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, "ip:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := rl.Allow(ctx, "ip:1.2.3.4")
	assert.False(t, ok, "third request inside the window is rejected")

	ok, _ = rl.Allow(ctx, "ip:5.6.7.8")
	assert.True(t, ok, "keys are independent")

	now = now.Add(time.Minute + time.Second)
	ok, _ = rl.Allow(ctx, "ip:1.2.3.4")
	assert.True(t, ok, "window slides")
}

func TestMemoryLimiter_sweep(t *testing.T) {
	rl := NewMemoryLimiter(time.Minute, 5)
	defer rl.Close()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	_, _ = rl.Allow(context.Background(), "a")
	now = now.Add(2 * time.Minute)
	_, _ = rl.Allow(context.Background(), "b")
	rl.sweep()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.requests, "a")
	assert.Contains(t, rl.requests, "b")
}

func newRedisLimiterForTest(t *testing.T, maxReqs int) (*miniredis.Miniredis, *RedisLimiter) {
	t.Helper()
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return m, NewRedisLimiter(client, "rl_test", time.Minute, maxReqs)
}

func TestRedisLimiter_allowDenyAndSlide(t *testing.T) {
	m, limiter := newRedisLimiterForTest(t, 2)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx, "ip:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok)
		now = now.Add(time.Second)
	}
	ok, err := limiter.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok)

	members, err := m.ZMembers("rl_test:ip:1.2.3.4")
	require.NoError(t, err)
	assert.Len(t, members, 2, "rejected requests are not recorded")

	now = now.Add(time.Minute)
	ok, err = limiter.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLimiter_errors(t *testing.T) {
	limiter := NewRedisLimiter(nil, "", time.Minute, 1)
	_, err := limiter.Allow(context.Background(), "k")
	require.Error(t, err)

	badClient := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 20 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = badClient.Close() })
	limiter = NewRedisLimiter(badClient, "", time.Minute, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = limiter.Allow(ctx, "k")
	require.Error(t, err)
}

type stubLimiter struct {
	allowed bool
	err     error
}

func (s stubLimiter) Allow(context.Context, string) (bool, error) { return s.allowed, s.err }

func TestRateLimitMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	cases := []struct {
		name    string
		limiter Limiter
		want    int
	}{
		{"allowed", stubLimiter{allowed: true}, http.StatusNoContent},
		{"rejected", stubLimiter{allowed: false}, http.StatusTooManyRequests},
		{"backend down fails open", stubLimiter{err: errors.New("redis down")}, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := RateLimitMiddleware(tc.limiter, GetIPKey, logger)(next)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/recovery/email/request", nil))
			assert.Equal(t, tc.want, rec.Code)

			if tc.want == http.StatusTooManyRequests {
				var body map[string]string
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, "rate_limited", body["error"])
				assert.NotEmpty(t, body["message"])
			}
		})
	}
}

func TestGetIPKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.7:5123"
	assert.Equal(t, "ip:10.0.0.7", GetIPKey(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "ip:10.0.0.7", GetIPKey(r), "forwarding headers do not change the key")

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "198.51.100.4"
	assert.Equal(t, "ip:198.51.100.4", GetIPKey(r))
}
