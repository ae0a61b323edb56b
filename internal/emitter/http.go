package emitter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/segtrace/internal/entity"
	"github.com/GriffinCanCode/segtrace/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/segtrace/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/segtrace/internal/shared/id"
)

// BatchHeader carries the batch id of a collector upload.
const BatchHeader = "X-Segtrace-Batch-Id"

// HTTPConfig configures an HTTPEmitter.
type HTTPConfig struct {
	// URL receives POSTed batches.
	URL string
	// Timeout bounds one upload including retries.
	Timeout time.Duration
	// RetryMax is the retry count for 5xx and connection errors.
	RetryMax int
	// RateLimit caps uploads per second. Zero means unlimited.
	RateLimit float64
	// Breaker guards the collector. A default breaker is created when nil.
	Breaker *resilience.Breaker
}

type batch struct {
	Documents []string `json:"TraceSegmentDocuments"`
}

// HTTPEmitter uploads gzip-compressed batches to a collector endpoint.
type HTTPEmitter struct {
	cfg     HTTPConfig
	opts    options
	client  *retryablehttp.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	closed  atomic.Bool
}

// NewHTTPEmitter creates an emitter posting to cfg.URL.
func NewHTTPEmitter(cfg HTTPConfig, opts ...Option) *HTTPEmitter {
	o := buildOptions(opts)
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = retryLogger{o.logger.Sugar()}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, int(cfg.RateLimit)))
	}

	breaker := cfg.Breaker
	if breaker == nil {
		breaker = resilience.New("collector", resilience.Settings{
			Cooldown: 30 * time.Second,
			Trip:     func(c resilience.Counts) bool { return c.ConsecutiveFailures >= 5 },
			OnStateChange: func(name string, from, to resilience.State) {
				o.logger.Warn("Collector circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
	}

	return &HTTPEmitter{
		cfg:     cfg,
		opts:    o,
		client:  client,
		limiter: limiter,
		breaker: breaker,
	}
}

// Send uploads docs as a single batch.
func (h *HTTPEmitter) Send(docs ...entity.Document) error {
	if h.closed.Load() {
		return ErrEmitterClosed
	}
	if len(docs) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.Timeout)
	defer cancel()

	timer := monitoring.NewTimer(h.opts.metrics, "http")
	err := h.upload(ctx, docs)
	timer.Stop(err)
	return err
}

func (h *HTTPEmitter) upload(ctx context.Context, docs []entity.Document) error {
	body, err := encodeBatch(docs)
	if err != nil {
		return err
	}

	if err := h.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	batchID := id.NewBatchID()
	return h.breaker.Execute(func() error {
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, h.cfg.URL, body)
		if err != nil {
			return fmt.Errorf("build collector request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Content-Encoding", "gzip")
		req.Header.Set(BatchHeader, batchID)

		resp, err := h.client.Do(req)
		if err != nil {
			return fmt.Errorf("post batch %s: %w", batchID, err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= http.StatusMultipleChoices {
			return fmt.Errorf("post batch %s: collector returned %d", batchID, resp.StatusCode)
		}
		h.opts.logger.Debug("Uploaded segment batch",
			zap.String("batch_id", batchID),
			zap.Int("documents", len(docs)))
		return nil
	})
}

func encodeBatch(docs []entity.Document) ([]byte, error) {
	b := batch{Documents: make([]string, 0, len(docs))}
	for _, doc := range docs {
		raw, err := doc.Marshal()
		if err != nil {
			return nil, fmt.Errorf("encode document %s: %w", doc.ID, err)
		}
		b.Documents = append(b.Documents, string(raw))
	}
	payload, err := sonic.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(payload); err != nil {
		return nil, fmt.Errorf("compress batch: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress batch: %w", err)
	}
	return buf.Bytes(), nil
}

// Close stops further uploads and releases idle connections.
func (h *HTTPEmitter) Close() error {
	if h.closed.Swap(true) {
		return nil
	}
	h.client.HTTPClient.CloseIdleConnections()
	return nil
}

// retryLogger routes retryablehttp's leveled logging into zap.
type retryLogger struct {
	s *zap.SugaredLogger
}

func (l retryLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l retryLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l retryLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l retryLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
