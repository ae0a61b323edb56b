package sampling

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/segtrace/internal/header"
	"github.com/GriffinCanCode/segtrace/internal/infrastructure/resilience"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

const sampleAll = `{"version": 2, "default": {"fixed_target": 0, "rate": 1}}`

func rulesServer(t *testing.T, status *atomic.Int32, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, RulesPath, r.URL.Path)
		payload, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(payload), "client_id")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(int(status.Load()))
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteStrategyFallsBackBeforeFetch(t *testing.T) {
	s := NewRemoteStrategy(RemoteConfig{Endpoint: "http://127.0.0.1:1"})
	assert.False(t, s.Fresh())
	assert.Equal(t, header.NotSampled, s.ShouldTrace(Input{}).Decision)
}

func TestRemoteStrategyRefresh(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := rulesServer(t, &status, sampleAll)

	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	s := NewRemoteStrategy(RemoteConfig{
		Endpoint: srv.URL + "/",
		TTL:      time.Minute,
		Now:      clock.Now,
		Local:    []LocalOption{WithRandom(always)},
	})
	assert.Equal(t, srv.URL, s.Endpoint())

	require.NoError(t, s.Refresh(context.Background()))
	assert.True(t, s.Fresh())
	assert.Equal(t, header.Sampled, s.ShouldTrace(Input{}).Decision)

	clock.Advance(2 * time.Minute)
	assert.False(t, s.Fresh())
	assert.Equal(t, header.NotSampled, s.ShouldTrace(Input{}).Decision, "stale rules fall back")
}

func TestRemoteStrategyServiceError(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusInternalServerError)
	srv := rulesServer(t, &status, `{}`)

	s := NewRemoteStrategy(RemoteConfig{
		Endpoint: srv.URL,
		Fallback: AlwaysStrategy{},
	})

	err := s.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrSamplingUnavailable)
	assert.Equal(t, header.Sampled, s.ShouldTrace(Input{}).Decision, "custom fallback used")
}

func TestRemoteStrategyInvalidRules(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := rulesServer(t, &status, `{"version": 2}`)

	s := NewRemoteStrategy(RemoteConfig{Endpoint: srv.URL})
	assert.ErrorIs(t, s.Refresh(context.Background()), ErrInvalidRules)
	assert.False(t, s.Fresh())
}

func TestRemoteStrategyBreakerOpens(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusServiceUnavailable)
	srv := rulesServer(t, &status, `{}`)

	breaker := resilience.New("sampling", resilience.Settings{
		Cooldown: time.Hour,
		Trip:     func(c resilience.Counts) bool { return c.ConsecutiveFailures >= 1 },
	})
	s := NewRemoteStrategy(RemoteConfig{Endpoint: srv.URL, Breaker: breaker})

	require.Error(t, s.Refresh(context.Background()))
	require.Equal(t, resilience.StateOpen, breaker.State())

	status.Store(http.StatusOK)
	err := s.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrSamplingUnavailable)
	assert.ErrorContains(t, err, "circuit breaker is open")
}

func TestRemoteStrategyRunStopsOnCancel(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := rulesServer(t, &status, sampleAll)

	s := NewRemoteStrategy(RemoteConfig{Endpoint: srv.URL, Interval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, s.Fresh, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
