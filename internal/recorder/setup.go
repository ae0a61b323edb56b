package recorder

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/segtrace/internal/emitter"
	"github.com/GriffinCanCode/segtrace/internal/infrastructure/config"
	"github.com/GriffinCanCode/segtrace/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/segtrace/internal/sampling"
)

// FromConfig builds a recorder with the configured emitter and sampling
// source. Call Start to begin background polling and Drain on shutdown.
func FromConfig(cfg *config.Config, logger *zap.Logger, metrics *monitoring.Metrics) (*Recorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := Options{
		ServiceName: cfg.Recorder.ServiceName,
		Origin:      cfg.Recorder.Origin,
		Policy:      cfg.Recorder.ContextMissing,
		Disabled:    cfg.Recorder.Disabled,
		Streaming:   DefaultStreaming{MaxSubsegments: cfg.Recorder.StreamingThreshold},
		Logger:      logger,
		Metrics:     metrics,
	}
	if cfg.Recorder.Disabled {
		opts.Emitter = emitter.Discard{}
		return New(opts), nil
	}

	em, err := newEmitter(cfg.Emitter, logger, metrics)
	if err != nil {
		return nil, err
	}
	opts.Emitter = em

	strategy, err := newStrategy(cfg.Sampling, logger)
	if err != nil {
		_ = em.Close()
		return nil, err
	}
	opts.Sampling = strategy

	return New(opts), nil
}

func newEmitter(cfg config.EmitterConfig, logger *zap.Logger, metrics *monitoring.Metrics) (emitter.Emitter, error) {
	eopts := []emitter.Option{emitter.WithLogger(logger), emitter.WithMetrics(metrics)}

	var transport emitter.Emitter
	switch cfg.Kind {
	case config.EmitterNone:
		return emitter.Discard{}, nil
	case config.EmitterLog:
		return emitter.NewLogEmitter(logger), nil
	case config.EmitterHTTP:
		transport = emitter.NewHTTPEmitter(emitter.HTTPConfig{
			URL:       cfg.CollectorURL,
			RateLimit: cfg.CollectorRPS,
			RetryMax:  2,
		}, eopts...)
	case config.EmitterUDP, "":
		udp, err := emitter.NewUDPEmitter(cfg.DaemonAddress, eopts...)
		if err != nil {
			return nil, err
		}
		transport = udp
	default:
		return nil, fmt.Errorf("unknown emitter %q", cfg.Kind)
	}
	return emitter.NewAsyncEmitter(transport, cfg.QueueSize, eopts...), nil
}

func newStrategy(cfg config.SamplingConfig, logger *zap.Logger) (sampling.Strategy, error) {
	local := sampling.NewDefaultLocalStrategy()
	if cfg.RulesFile != "" {
		manifest, err := sampling.LoadRulesFile(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		if local, err = sampling.NewLocalStrategy(manifest); err != nil {
			return nil, err
		}
	}
	if cfg.Endpoint == "" {
		return local, nil
	}
	return sampling.NewRemoteStrategy(sampling.RemoteConfig{
		Endpoint: cfg.Endpoint,
		Interval: cfg.PollInterval,
		Fallback: local,
		Logger:   logger,
	}), nil
}

// Start runs background work, currently remote rule polling, until ctx ends.
func (r *Recorder) Start(ctx context.Context) {
	if poller, ok := r.sampling.(interface{ Run(context.Context) }); ok && !r.disabled {
		go poller.Run(ctx)
	}
}

// IsSamplingCall reports whether an outbound URL targets the sampling
// service, whose calls must not be traced.
func (r *Recorder) IsSamplingCall(rawURL string) bool {
	remote, ok := r.sampling.(interface{ Endpoint() string })
	if !ok || remote.Endpoint() == "" {
		return false
	}
	return strings.HasPrefix(rawURL, remote.Endpoint())
}
