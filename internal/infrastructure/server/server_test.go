package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/segtrace/internal/entity"
	"github.com/GriffinCanCode/segtrace/internal/header"
	"github.com/GriffinCanCode/segtrace/internal/infrastructure/config"
	"github.com/GriffinCanCode/segtrace/internal/infrastructure/logging"
	"github.com/GriffinCanCode/segtrace/internal/infrastructure/monitoring"
)

// testServer builds a server whose segments are written to an observed log.
func testServer(t *testing.T, configure ...func(*config.Config)) (*Server, *observer.ObservedLogs) {
	t.Helper()
	cfg := config.Default()
	cfg.Emitter.Kind = config.EmitterLog
	cfg.Recorder.ServiceName = "orders-api"
	for _, fn := range configure {
		fn(cfg)
	}

	core, logs := observer.New(zap.InfoLevel)
	s, err := newServer(cfg, &logging.Logger{Logger: zap.New(core)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s, logs
}

func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

// segments decodes every emitted document from the log.
func segments(t *testing.T, logs *observer.ObservedLogs) []entity.Document {
	t.Helper()
	var docs []entity.Document
	for _, e := range logs.All() {
		if !strings.HasPrefix(e.Message, "segment completed") {
			continue
		}
		raw, ok := e.ContextMap()["document"].(string)
		require.True(t, ok)
		var doc entity.Document
		require.NoError(t, sonic.UnmarshalString(raw, &doc))
		docs = append(docs, doc)
	}
	return docs
}

func subsegmentNames(doc entity.Document) []string {
	var names []string
	for _, sub := range doc.Subsegments {
		names = append(names, sub.Name)
		names = append(names, subsegmentNames(sub)...)
	}
	return names
}

func TestOrdersAreTraced(t *testing.T) {
	s, logs := testServer(t)

	w := do(s, http.MethodPost, "/orders", `{"item":"widget","quantity":2}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(s, http.MethodGet, "/orders/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "widget")

	docs := segments(t, logs)
	require.Len(t, docs, 2)
	assert.Equal(t, "orders-api", docs[0].Name)
	assert.Contains(t, subsegmentNames(docs[0]), "orders@memory")
	assert.Equal(t, []string{"load-order", "orders@memory"}, subsegmentNames(docs[1]))
	assert.False(t, docs[1].Error || docs[1].Fault)
}

func TestMissingOrderIsClientError(t *testing.T) {
	s, logs := testServer(t)

	w := do(s, http.MethodGet, "/orders/404", "")
	require.Equal(t, http.StatusNotFound, w.Code)

	docs := segments(t, logs)
	require.Len(t, docs, 1)
	assert.True(t, docs[0].Error)
	assert.False(t, docs[0].Fault)
}

func TestProxyPropagatesTrace(t *testing.T) {
	received := make(chan string, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.Header.Get(header.Key)
		_, _ = w.Write([]byte("pong"))
	}))
	defer upstream.Close()

	s, logs := testServer(t)
	w := do(s, http.MethodGet, "/proxy?url="+url.QueryEscape(upstream.URL+"/ping"), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())

	sent, ok := header.Parse(<-received)
	require.True(t, ok)

	docs := segments(t, logs)
	require.Len(t, docs, 1)
	assert.Equal(t, docs[0].TraceID, sent.RootTraceID)
	require.Len(t, docs[0].Subsegments, 1)
	assert.Equal(t, docs[0].Subsegments[0].ID, sent.ParentID)
	assert.Equal(t, entity.NamespaceRemote, docs[0].Subsegments[0].Namespace)
}

func TestProxyRequiresURL(t *testing.T) {
	s, _ := testServer(t)
	w := do(s, http.MethodGet, "/proxy", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimitRecordedAsThrottle(t *testing.T) {
	s, logs := testServer(t, func(cfg *config.Config) {
		cfg.Server.RateLimitRPS = 1
		cfg.Server.RateLimitBurst = 1
	})

	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(s, http.MethodGet, "/health", "").Code)

	docs := segments(t, logs)
	require.Len(t, docs, 2)
	assert.True(t, docs[1].Throttle)
	assert.True(t, docs[1].Error)
}

func TestCORSExposesTraceHeader(t *testing.T) {
	s, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), header.Key)
}

func TestTracingCanBeSwitchedOff(t *testing.T) {
	s, logs := testServer(t, func(cfg *config.Config) {
		cfg.Instrument.TraceHTTP = false
	})

	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/", "").Code)
	assert.Empty(t, segments(t, logs))
}

func TestStatsAndMetrics(t *testing.T) {
	s, _ := testServer(t)
	do(s, http.MethodGet, "/health", "")

	w := do(s, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var snap monitoring.Snapshot
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, int64(1), snap.SegmentsEmitted)

	w = do(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "segtrace_segments_begun_total")
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestNewServerRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Emitter.Kind = config.EmitterHTTP

	_, err := newServer(cfg, logging.Nop())
	assert.Error(t, err)
}

func TestShutdownBeforeRun(t *testing.T) {
	s, _ := testServer(t, func(cfg *config.Config) {
		cfg.Server.Host = "127.0.0.1"
		cfg.Server.Port = "0"
	})
	require.NoError(t, s.Shutdown(context.Background()))

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run kept serving after Shutdown")
	}
	assert.NoError(t, s.Shutdown(context.Background()), "repeated shutdown")
}
