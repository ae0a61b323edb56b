package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/GriffinCanCode/segtrace/internal/tracectx"
)

// Emitter kinds accepted by EmitterConfig.Kind.
const (
	EmitterUDP  = "udp"
	EmitterHTTP = "http"
	EmitterLog  = "log"
	EmitterNone = "none"
)

// Config holds all recorder and demo server configuration.
type Config struct {
	Server     ServerConfig
	Recorder   RecorderConfig
	Sampling   SamplingConfig
	Emitter    EmitterConfig
	Instrument InstrumentConfig
	Logging    LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string `envconfig:"PORT" default:"8000"`
	Host           string `envconfig:"HOST" default:"0.0.0.0"`
	GRPCPort       string `envconfig:"GRPC_PORT"`
	RateLimitRPS   int    `envconfig:"RATE_LIMIT_RPS" default:"0"`
	RateLimitBurst int    `envconfig:"RATE_LIMIT_BURST" default:"20"`
}

// RecorderConfig holds segment lifecycle settings.
type RecorderConfig struct {
	ServiceName        string          `envconfig:"SEGTRACE_SERVICE_NAME" default:"DefaultService"`
	Origin             string          `envconfig:"SEGTRACE_ORIGIN"`
	ContextMissing     tracectx.Policy `envconfig:"SEGTRACE_CONTEXT_MISSING" default:"LOG_ERROR"`
	Disabled           bool            `envconfig:"SEGTRACE_DISABLED" default:"false"`
	StreamingThreshold int             `envconfig:"SEGTRACE_STREAMING_THRESHOLD" default:"100"`
}

// SamplingConfig selects the sampling source. A remote endpoint wins over a
// rules file; with neither, the built-in default rule applies.
type SamplingConfig struct {
	RulesFile    string        `envconfig:"SEGTRACE_SAMPLING_RULES"`
	Endpoint     string        `envconfig:"SEGTRACE_SAMPLING_ENDPOINT"`
	PollInterval time.Duration `envconfig:"SEGTRACE_SAMPLING_INTERVAL" default:"5m"`
}

// EmitterConfig selects and tunes the document transport.
type EmitterConfig struct {
	Kind          string        `envconfig:"SEGTRACE_EMITTER" default:"udp"`
	DaemonAddress string        `envconfig:"SEGTRACE_DAEMON_ADDRESS" default:"127.0.0.1:2000"`
	CollectorURL  string        `envconfig:"SEGTRACE_COLLECTOR_URL"`
	CollectorRPS  float64       `envconfig:"SEGTRACE_COLLECTOR_RPS" default:"0"`
	QueueSize     int           `envconfig:"SEGTRACE_QUEUE_SIZE" default:"1000"`
	DrainTimeout  time.Duration `envconfig:"SEGTRACE_DRAIN_TIMEOUT" default:"5s"`
}

// InstrumentConfig toggles the adapters.
type InstrumentConfig struct {
	TraceHTTP         bool `envconfig:"SEGTRACE_TRACE_HTTP" default:"true"`
	TraceSQL          bool `envconfig:"SEGTRACE_TRACE_SQL" default:"true"`
	TraceGRPC         bool `envconfig:"SEGTRACE_TRACE_GRPC" default:"true"`
	CollectSQLQueries bool `envconfig:"SEGTRACE_COLLECT_SQL_QUERIES" default:"false"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects combinations the recorder cannot start with.
func (c *Config) Validate() error {
	switch c.Emitter.Kind {
	case EmitterUDP, EmitterLog, EmitterNone:
	case EmitterHTTP:
		if c.Emitter.CollectorURL == "" {
			return fmt.Errorf("invalid config: emitter %q needs SEGTRACE_COLLECTOR_URL", EmitterHTTP)
		}
	default:
		return fmt.Errorf("invalid config: unknown emitter %q", c.Emitter.Kind)
	}
	if c.Recorder.StreamingThreshold < 0 {
		return fmt.Errorf("invalid config: streaming threshold %d", c.Recorder.StreamingThreshold)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8000",
			Host:           "0.0.0.0",
			RateLimitBurst: 20,
		},
		Recorder: RecorderConfig{
			ServiceName:        "DefaultService",
			ContextMissing:     tracectx.DefaultPolicy,
			StreamingThreshold: 100,
		},
		Sampling: SamplingConfig{
			PollInterval: 5 * time.Minute,
		},
		Emitter: EmitterConfig{
			Kind:          EmitterUDP,
			DaemonAddress: "127.0.0.1:2000",
			QueueSize:     1000,
			DrainTimeout:  5 * time.Second,
		},
		Instrument: InstrumentConfig{
			TraceHTTP: true,
			TraceSQL:  true,
			TraceGRPC: true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}
