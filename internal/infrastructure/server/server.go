package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/GriffinCanCode/segtrace/internal/infrastructure/config"
	"github.com/GriffinCanCode/segtrace/internal/infrastructure/logging"
	"github.com/GriffinCanCode/segtrace/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/segtrace/internal/instrument/ginmw"
	"github.com/GriffinCanCode/segtrace/internal/instrument/grpctrace"
	"github.com/GriffinCanCode/segtrace/internal/instrument/httpout"
	"github.com/GriffinCanCode/segtrace/internal/instrument/sqltrace"
	"github.com/GriffinCanCode/segtrace/internal/recorder"
)

// Server is the traced demo service.
type Server struct {
	router   *gin.Engine
	http     *http.Server
	grpc     *grpc.Server
	rec      *recorder.Recorder
	client   *resty.Client
	orders   *orderStore
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
	registry *prometheus.Registry
	stop     chan struct{}

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return newServer(cfg, logger)
}

func newServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Info("Initializing segtrace demo server",
		zap.String("service", cfg.Recorder.ServiceName),
		zap.String("emitter", cfg.Emitter.Kind),
		zap.String("context_missing", cfg.Recorder.ContextMissing.String()),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)

	rec, err := recorder.FromConfig(cfg, logger.Logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create recorder: %w", err)
	}

	s := &Server{
		rec:      rec,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
		registry: registry,
		stop:     make(chan struct{}),
		client:   resty.New().SetTimeout(10 * time.Second),
		orders:   newOrderStore(),
	}
	if cfg.Instrument.TraceHTTP {
		s.client = httpout.Resty(rec, s.client)
	}
	if cfg.Instrument.TraceSQL {
		s.orders.sql = sqltrace.New(rec, cfg.Instrument.CollectSQLQueries)
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(monitoring.Middleware(metrics))
	if cfg.Instrument.TraceHTTP {
		s.router.Use(ginmw.Middleware(rec, ginmw.FixedNamer(cfg.Recorder.ServiceName)))
	}
	s.router.Use(CORS(DefaultCORSConfig()))
	if cfg.Server.RateLimitRPS > 0 {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.Server.RateLimitRPS),
			zap.Int("burst", cfg.Server.RateLimitBurst),
		)
		s.router.Use(RateLimit(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst))
	}
	s.routes()

	s.http = &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Server.GRPCPort != "" {
		var opts []grpc.ServerOption
		if cfg.Instrument.TraceGRPC {
			opts = append(opts,
				grpc.ChainUnaryInterceptor(grpctrace.UnaryServerInterceptor(rec)),
				grpc.ChainStreamInterceptor(grpctrace.StreamServerInterceptor(rec)),
			)
		}
		s.grpc = grpc.NewServer(opts...)
		checker := health.NewServer()
		checker.SetServingStatus(cfg.Recorder.ServiceName, healthpb.HealthCheckResponse_SERVING)
		healthpb.RegisterHealthServer(s.grpc, checker)
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

func (s *Server) routes() {
	s.router.GET("/", s.root)
	s.router.GET("/health", s.health)
	s.router.GET("/orders/:id", s.getOrder)
	s.router.POST("/orders", s.createOrder)
	s.router.GET("/proxy", s.proxy)
	s.router.GET("/stats", s.stats)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Recorder returns the server's recorder.
func (s *Server) Recorder() *recorder.Recorder {
	return s.rec
}

// Run serves HTTP, and gRPC when configured, until Shutdown is called.
func (s *Server) Run(ctx context.Context) error {
	s.rec.Start(ctx)
	go s.metrics.RunUptime(s.stop)

	if s.grpc != nil {
		addr := s.config.Server.Host + ":" + s.config.Server.GRPCPort
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
		s.logger.Info("Starting gRPC server", zap.String("addr", addr))
		go func() {
			if err := s.grpc.Serve(lis); err != nil {
				s.logger.Error("gRPC server stopped", zap.Error(err))
			}
		}()
	}

	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and drains queued segments. It may be
// called before Run, in which case Run returns at once; later calls return
// the first call's result.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() { s.shutdownErr = s.shutdown(ctx) })
	return s.shutdownErr
}

func (s *Server) shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop HTTP server: %w", err))
	}
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
	close(s.stop)

	if err := s.rec.Drain(s.config.Emitter.DrainTimeout); err != nil {
		s.logger.Error("Failed to drain segments", zap.Error(err))
		errs = append(errs, fmt.Errorf("failed to drain segments: %w", err))
	}

	_ = s.logger.Sync()
	return errors.Join(errs...)
}
