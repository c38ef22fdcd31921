package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/internal/domain"
	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return log
}

func newTestGuard(t *testing.T, limit int, window time.Duration) *AbuseGuard {
	t.Helper()
	return NewAbuseGuard(domain.AbuseGuardConfig{Limit: limit, Window: window}, testLogger(t))
}

func TestAbuseGuardAllowsUpToLimit(t *testing.T) {
	guard := newTestGuard(t, 100, time.Minute)

	for i := 1; i <= 100; i++ {
		assert.True(t, guard.Check("203.0.113.9"), "request %d should be allowed", i)
	}
	for i := 101; i <= 105; i++ {
		assert.False(t, guard.Check("203.0.113.9"), "request %d should be rejected", i)
	}
	assert.True(t, guard.IsBlocked("203.0.113.9"))
}

func TestAbuseGuardTracksClientsIndependently(t *testing.T) {
	guard := newTestGuard(t, 3, time.Minute)

	for i := 0; i < 4; i++ {
		guard.Check("client-a")
	}
	assert.True(t, guard.IsBlocked("client-a"))

	assert.True(t, guard.Check("client-b"))
	assert.False(t, guard.IsBlocked("client-b"))
}

func TestAbuseGuardWindowRolloverClearsBlock(t *testing.T) {
	guard := newTestGuard(t, 2, time.Minute)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	guard.now = func() time.Time { return now }

	assert.True(t, guard.Check("client"))
	assert.True(t, guard.Check("client"))
	assert.False(t, guard.Check("client"))
	assert.True(t, guard.IsBlocked("client"))

	// Still inside the window: stays blocked.
	now = now.Add(30 * time.Second)
	assert.False(t, guard.Check("client"))

	// Past the original window start: fresh window, block cleared.
	now = now.Add(31 * time.Second)
	assert.True(t, guard.Check("client"))
	assert.False(t, guard.IsBlocked("client"))
}

func TestAbuseGuardUnblockKeyedToOriginalWindowStart(t *testing.T) {
	guard := newTestGuard(t, 2, time.Minute)

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := start
	guard.now = func() time.Time { return now }

	assert.True(t, guard.Check("client"))

	// Block fires near the end of the window.
	now = start.Add(55 * time.Second)
	assert.True(t, guard.Check("client"))
	assert.False(t, guard.Check("client"))
	assert.True(t, guard.IsBlocked("client"))

	// Only 10s after blocking, but past the original window start: the
	// client unblocks because expiry is tied to windowStart, not to the
	// moment the block fired.
	now = start.Add(65 * time.Second)
	assert.True(t, guard.Check("client"))
}

func TestAbuseGuardReaperDeletesExpiredRecords(t *testing.T) {
	guard := newTestGuard(t, 2, time.Minute)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	guard.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		guard.Check("blocked-client")
	}
	guard.Check("quiet-client")

	require.True(t, guard.IsBlocked("blocked-client"))

	// The reaper removes both records once their windows elapse,
	// blocked or not.
	now = now.Add(61 * time.Second)
	guard.reap()

	assert.False(t, guard.IsBlocked("blocked-client"))
	stats := guard.GetStats()
	assert.Equal(t, 0, stats["tracked_clients"])
	assert.Equal(t, 0, stats["blocked_clients"])
}

func TestAbuseGuardReaperKeepsLiveRecords(t *testing.T) {
	guard := newTestGuard(t, 10, time.Minute)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	guard.now = func() time.Time { return now }

	guard.Check("old-client")
	now = now.Add(45 * time.Second)
	guard.Check("new-client")

	now = now.Add(20 * time.Second) // old at 65s, new at 20s
	guard.reap()

	stats := guard.GetStats()
	assert.Equal(t, 1, stats["tracked_clients"])
}

func TestAbuseGuardHandlerBlocksOverLimit(t *testing.T) {
	guard := newTestGuard(t, 2, time.Minute)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := guard.Handler()(next)

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/anything", nil)
		req.RemoteAddr = "198.51.100.7:52001"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusForbidden, http.StatusForbidden}, codes)
}

func TestClientIPExtraction(t *testing.T) {
	cases := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "192.0.2.1:51000",
			want:       "192.0.2.1",
		},
		{
			name:       "x-forwarded-for single",
			remoteAddr: "10.0.0.1:51000",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5"},
			want:       "203.0.113.5",
		},
		{
			name:       "x-forwarded-for chain takes first",
			remoteAddr: "10.0.0.1:51000",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.2, 10.0.0.3"},
			want:       "203.0.113.5",
		},
		{
			name:       "x-real-ip",
			remoteAddr: "10.0.0.1:51000",
			headers:    map[string]string{"X-Real-IP": "203.0.113.9"},
			want:       "203.0.113.9",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, clientIP(req))
		})
	}
}

func TestAbuseGuardConcurrentChecks(t *testing.T) {
	guard := newTestGuard(t, 1000, time.Minute)

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		g := g
		go func() {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 50; i++ {
				guard.Check(fmt.Sprintf("client-%d", g))
			}
		}()
	}
	for g := 0; g < 8; g++ {
		<-done
	}

	stats := guard.GetStats()
	assert.Equal(t, 8, stats["tracked_clients"])
	assert.Equal(t, 0, stats["blocked_clients"])
}
