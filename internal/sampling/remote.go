package sampling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/segtrace/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/segtrace/internal/shared/id"
)

// RulesPath is appended to the sampling service endpoint.
const RulesPath = "/GetSamplingRules"

// ErrSamplingUnavailable is returned by Refresh when the service cannot be
// reached or answers with an error.
var ErrSamplingUnavailable = errors.New("sampling service unavailable")

// RemoteConfig configures a RemoteStrategy.
type RemoteConfig struct {
	// Endpoint is the sampling service base URL.
	Endpoint string
	// Interval between polls in Run.
	Interval time.Duration
	// TTL is how long fetched rules stay authoritative.
	TTL time.Duration
	// Fallback decides while no fresh rules are held. Defaults to
	// NotSampledStrategy.
	Fallback Strategy
	Client   *resty.Client
	Breaker  *resilience.Breaker
	Logger   *zap.Logger
	Now      func() time.Time
	// Local options for the strategy built from fetched rules.
	Local []LocalOption
}

type rulesRequest struct {
	ClientID string `json:"client_id"`
}

// RemoteStrategy decides with rules fetched from a sampling service and falls
// back while they are missing or stale.
type RemoteStrategy struct {
	cfg      RemoteConfig
	clientID string

	active    atomic.Pointer[LocalStrategy]
	fetchedAt atomic.Int64
}

// NewRemoteStrategy creates a strategy for cfg.Endpoint. No request is made
// until Refresh or Run.
func NewRemoteStrategy(cfg RemoteConfig) *RemoteStrategy {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * cfg.Interval
	}
	if cfg.Fallback == nil {
		cfg.Fallback = NotSampledStrategy{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Breaker == nil {
		cfg.Breaker = resilience.New("sampling", resilience.Settings{
			Cooldown: cfg.Interval,
			Trip:     func(c resilience.Counts) bool { return c.ConsecutiveFailures >= 3 },
		})
	}
	if cfg.Client == nil {
		cfg.Client = resty.New().
			SetTimeout(5 * time.Second).
			SetHeader("User-Agent", "segtrace-sampler/1.0")
	}
	cfg.Client.JSONMarshal = sonic.Marshal
	cfg.Client.JSONUnmarshal = sonic.Unmarshal
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")

	return &RemoteStrategy{
		cfg:      cfg,
		clientID: id.Default().ClientID(),
	}
}

// Endpoint returns the sampling service base URL. Outbound instrumentation
// uses it to avoid tracing the strategy's own calls.
func (s *RemoteStrategy) Endpoint() string {
	return s.cfg.Endpoint
}

// ShouldTrace uses the fetched rules while fresh, otherwise the fallback.
func (s *RemoteStrategy) ShouldTrace(in Input) Response {
	if local := s.active.Load(); local != nil && s.Fresh() {
		return local.ShouldTrace(in)
	}
	return s.cfg.Fallback.ShouldTrace(in)
}

// Fresh reports whether rules were fetched within the TTL.
func (s *RemoteStrategy) Fresh() bool {
	at := s.fetchedAt.Load()
	if at == 0 {
		return false
	}
	return s.cfg.Now().Sub(time.Unix(0, at)) < s.cfg.TTL
}

// Refresh fetches the rule set once.
func (s *RemoteStrategy) Refresh(ctx context.Context) error {
	var manifest Manifest
	err := s.cfg.Breaker.Execute(func() error {
		resp, err := s.cfg.Client.R().
			SetContext(ctx).
			SetBody(rulesRequest{ClientID: s.clientID}).
			SetResult(&manifest).
			Post(s.cfg.Endpoint + RulesPath)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSamplingUnavailable, err)
		}
		if resp.IsError() {
			return fmt.Errorf("%w: status %d", ErrSamplingUnavailable, resp.StatusCode())
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
			return fmt.Errorf("%w: %v", ErrSamplingUnavailable, err)
		}
		return err
	}

	if local := s.active.Load(); local != nil {
		if err := local.SetManifest(&manifest); err != nil {
			return err
		}
	} else {
		local, err := NewLocalStrategy(&manifest, s.cfg.Local...)
		if err != nil {
			return err
		}
		s.active.Store(local)
	}
	s.fetchedAt.Store(s.cfg.Now().UnixNano())
	return nil
}

// Run polls until ctx is done. Failures are logged and the previous rules are
// kept until they expire.
func (s *RemoteStrategy) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
			s.cfg.Logger.Warn("Sampling rules refresh failed",
				zap.String("endpoint", s.cfg.Endpoint),
				zap.Bool("fresh", s.Fresh()),
				zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
