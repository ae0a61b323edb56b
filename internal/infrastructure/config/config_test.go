package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/segtrace/internal/tracectx"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	// Recorder config
	assert.Equal(t, "DefaultService", cfg.Recorder.ServiceName)
	assert.Equal(t, tracectx.LogOnly, cfg.Recorder.ContextMissing)
	assert.False(t, cfg.Recorder.Disabled)
	assert.Equal(t, 100, cfg.Recorder.StreamingThreshold)

	// Emitter config
	assert.Equal(t, EmitterUDP, cfg.Emitter.Kind)
	assert.Equal(t, "127.0.0.1:2000", cfg.Emitter.DaemonAddress)
	assert.Equal(t, 1000, cfg.Emitter.QueueSize)

	// Instrument config
	assert.True(t, cfg.Instrument.TraceHTTP)
	assert.True(t, cfg.Instrument.TraceSQL)
	assert.False(t, cfg.Instrument.CollectSQLQueries)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	require.NoError(t, cfg.Validate())
}

func TestLoadMatchesDefault(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                         "9000",
		"SEGTRACE_SERVICE_NAME":        "checkout",
		"SEGTRACE_CONTEXT_MISSING":     "RUNTIME_ERROR",
		"SEGTRACE_DISABLED":            "true",
		"SEGTRACE_STREAMING_THRESHOLD": "20",
		"SEGTRACE_SAMPLING_RULES":      "/etc/segtrace/rules.yaml",
		"SEGTRACE_SAMPLING_INTERVAL":   "30s",
		"SEGTRACE_EMITTER":             "http",
		"SEGTRACE_COLLECTOR_URL":       "http://collector:4318/segments",
		"SEGTRACE_COLLECTOR_RPS":       "2.5",
		"SEGTRACE_COLLECT_SQL_QUERIES": "true",
		"LOG_DEV":                      "true",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "checkout", cfg.Recorder.ServiceName)
	assert.Equal(t, tracectx.Strict, cfg.Recorder.ContextMissing)
	assert.True(t, cfg.Recorder.Disabled)
	assert.Equal(t, 20, cfg.Recorder.StreamingThreshold)
	assert.Equal(t, "/etc/segtrace/rules.yaml", cfg.Sampling.RulesFile)
	assert.Equal(t, 30*time.Second, cfg.Sampling.PollInterval)
	assert.Equal(t, EmitterHTTP, cfg.Emitter.Kind)
	assert.InDelta(t, 2.5, cfg.Emitter.CollectorRPS, 1e-9)
	assert.True(t, cfg.Instrument.CollectSQLQueries)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown policy", map[string]string{"SEGTRACE_CONTEXT_MISSING": "PANIC"}},
		{"unknown emitter", map[string]string{"SEGTRACE_EMITTER": "kafka"}},
		{"http without url", map[string]string{"SEGTRACE_EMITTER": "http"}},
		{"negative threshold", map[string]string{"SEGTRACE_STREAMING_THRESHOLD": "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)

			// LoadOrDefault never fails.
			assert.Equal(t, Default(), LoadOrDefault())
		})
	}
}

func TestServerConfig(t *testing.T) {
	tests := []struct {
		name     string
		port     string
		host     string
		wantPort string
		wantHost string
	}{
		{"default values", "", "", "8000", "0.0.0.0"},
		{"custom port", "9000", "", "9000", "0.0.0.0"},
		{"custom host", "", "localhost", "8000", "localhost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("PORT")
			os.Unsetenv("HOST")
			if tt.port != "" {
				t.Setenv("PORT", tt.port)
			}
			if tt.host != "" {
				t.Setenv("HOST", tt.host)
			}

			cfg := LoadOrDefault()

			assert.Equal(t, tt.wantPort, cfg.Server.Port)
			assert.Equal(t, tt.wantHost, cfg.Server.Host)
		})
	}
}
