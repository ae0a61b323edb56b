package sampling

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/segtrace/internal/header"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func never() float64  { return 0.999 }
func always() float64 { return 0 }

func TestDecide(t *testing.T) {
	in := Input{Host: "example.com", Path: "/", Method: "GET"}

	tests := []struct {
		name     string
		strategy Strategy
		incoming header.SampleDecision
		want     header.SampleDecision
	}{
		{"upstream sampled is kept", NotSampledStrategy{}, header.Sampled, header.Sampled},
		{"upstream not sampled is kept", AlwaysStrategy{}, header.NotSampled, header.NotSampled},
		{"unknown asks strategy", AlwaysStrategy{}, header.Unknown, header.Sampled},
		{"requested asks strategy", NotSampledStrategy{}, header.Requested, header.NotSampled},
		{"nil strategy drops", nil, header.Unknown, header.NotSampled},
		{
			"unresolved strategy answer is coerced",
			StrategyFunc(func(Input) Response { return Response{Decision: header.Requested} }),
			header.Unknown,
			header.NotSampled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := header.TraceHeader{RootTraceID: header.NewTraceID(), Sampled: tt.incoming}
			got := Decide(tt.strategy, h, in)
			assert.Equal(t, tt.want, got.Decision)
		})
	}
}

func TestRuleMatching(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		in   Input
		want bool
	}{
		{"empty matches all", Rule{}, Input{Host: "a", Path: "/x", Method: "PUT"}, true},
		{"single star stays in segment", Rule{URLPath: "/api/*"}, Input{Path: "/api/users"}, true},
		{"single star does not cross", Rule{URLPath: "/api/*"}, Input{Path: "/api/users/1"}, false},
		{"double star crosses", Rule{URLPath: "/api/**"}, Input{Path: "/api/users/1"}, true},
		{"method case insensitive", Rule{HTTPMethod: "post"}, Input{Method: "POST"}, true},
		{"method mismatch", Rule{HTTPMethod: "GET"}, Input{Method: "POST"}, false},
		{"host case insensitive", Rule{Host: "*.Example.com"}, Input{Host: "api.example.COM"}, true},
		{"host mismatch", Rule{Host: "*.example.com"}, Input{Host: "example.org"}, false},
		{"mixed case host literal", Rule{Host: "API.Example.com"}, Input{Host: "api.EXAMPLE.com:8080"}, false},
		{"mixed case host", Rule{Host: "API.Example.com"}, Input{Host: "api.EXAMPLE.com"}, true},
		{"path case sensitive", Rule{URLPath: "/API/*"}, Input{Path: "/api/users"}, false},
		{"service name", Rule{ServiceName: "checkout*"}, Input{SegmentName: "checkout-api"}, true},
		{"service type", Rule{ServiceType: "AWS::EC2::*"}, Input{Origin: "AWS::EC2::Instance"}, true},
		{"service type needs origin", Rule{ServiceType: "AWS::EC2::*"}, Input{}, false},
	}

	for i := range tests {
		tt := &tests[i]
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rule.Matches(tt.in))
		})
	}
}

func TestReservoirLimitPerSecond(t *testing.T) {
	var r reservoir
	now := time.Unix(1_700_000_000, 0)

	assert.True(t, r.take(now, 2))
	assert.True(t, r.take(now, 2))
	assert.False(t, r.take(now, 2))

	assert.True(t, r.take(now.Add(time.Second), 2), "new second refills")
	assert.False(t, r.take(now, 0), "zero quota never admits")
}

func TestReservoirConcurrent(t *testing.T) {
	var r reservoir
	now := time.Unix(1_700_000_000, 0)

	const quota = 10
	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.take(now, quota) {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(quota), admitted.Load())
}

func TestLocalStrategyDefault(t *testing.T) {
	s := NewDefaultLocalStrategy(WithClock(fixedClock(time.Unix(100, 0))), WithRandom(never))

	first := s.ShouldTrace(Input{Path: "/"})
	second := s.ShouldTrace(Input{Path: "/"})

	assert.Equal(t, header.Sampled, first.Decision, "reservoir admits first request")
	assert.Equal(t, DefaultRuleName, first.RuleName)
	assert.Equal(t, header.NotSampled, second.Decision)

	stats := s.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, int64(2), stats[0].Matched)
	assert.Equal(t, int64(1), stats[0].Borrowed)
}

func TestLocalStrategyRuleOrder(t *testing.T) {
	m := &Manifest{
		Version: 2,
		Default: &RuleSpec{FixedTarget: 0, Rate: 0},
		Rules: []RuleSpec{
			{Description: "broad", URLPath: "/api/**", Rate: 0},
			{Description: "narrow", URLPath: "/api/health", HTTPMethod: "GET", Rate: 1},
			{Description: "urgent", Priority: -1, Host: "admin.*", Rate: 1},
		},
	}
	s, err := NewLocalStrategy(m, WithRandom(always))
	require.NoError(t, err)

	names := make([]string, 0, 4)
	for _, r := range s.Rules() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"urgent", "narrow", "broad", DefaultRuleName}, names)

	resp := s.ShouldTrace(Input{Path: "/api/health", Method: "get"})
	assert.Equal(t, "narrow", resp.RuleName)
	assert.Equal(t, header.Sampled, resp.Decision)

	resp = s.ShouldTrace(Input{Path: "/api/users", Method: "GET"})
	assert.Equal(t, "broad", resp.RuleName)
	assert.Equal(t, header.NotSampled, resp.Decision)

	resp = s.ShouldTrace(Input{Path: "/other"})
	assert.Equal(t, DefaultRuleName, resp.RuleName)
}

func TestLocalStrategyRate(t *testing.T) {
	m := &Manifest{Version: 2, Default: &RuleSpec{Rate: 0.5}}

	hit, err := NewLocalStrategy(m, WithRandom(func() float64 { return 0.49 }))
	require.NoError(t, err)
	assert.Equal(t, header.Sampled, hit.ShouldTrace(Input{}).Decision)

	miss, err := NewLocalStrategy(m, WithRandom(func() float64 { return 0.5 }))
	require.NoError(t, err)
	assert.Equal(t, header.NotSampled, miss.ShouldTrace(Input{}).Decision)
}

func TestLocalStrategySwap(t *testing.T) {
	s, err := NewLocalStrategy(&Manifest{Version: 2, Default: &RuleSpec{}}, WithRandom(never))
	require.NoError(t, err)
	assert.Equal(t, header.NotSampled, s.ShouldTrace(Input{}).Decision)

	require.NoError(t, s.SetManifest(&Manifest{Version: 2, Default: &RuleSpec{Rate: 1}}))
	s.roll = always
	assert.Equal(t, header.Sampled, s.ShouldTrace(Input{}).Decision)

	err = s.SetManifest(&Manifest{Version: 3, Default: &RuleSpec{}})
	assert.ErrorIs(t, err, ErrInvalidRules)
	assert.Equal(t, header.Sampled, s.ShouldTrace(Input{}).Decision, "invalid swap keeps previous rules")
}

const jsonRules = `{
  "version": 2,
  "rules": [
    {"description": "health", "host": "*", "http_method": "GET", "url_path": "/health", "fixed_target": 0, "rate": 0}
  ],
  "default": {"fixed_target": 1, "rate": 0.1}
}`

const yamlRules = `version: 2
rules:
  - description: health
    host: "*"
    http_method: GET
    url_path: /health
    fixed_target: 0
    rate: 0
default:
  fixed_target: 1
  rate: 0.1
`

const tomlRules = `version = 2

[default]
fixed_target = 1
rate = 0.1

[[rules]]
description = "health"
host = "*"
http_method = "GET"
url_path = "/health"
fixed_target = 0
rate = 0.0
`

func TestParseRulesFormats(t *testing.T) {
	tests := []struct {
		format Format
		data   string
	}{
		{FormatJSON, jsonRules},
		{FormatYAML, yamlRules},
		{FormatTOML, tomlRules},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			m, err := ParseRules([]byte(tt.data), tt.format)
			require.NoError(t, err)
			assert.Equal(t, 2, m.Version)
			require.NotNil(t, m.Default)
			assert.Equal(t, int64(1), m.Default.FixedTarget)
			assert.InDelta(t, 0.1, m.Default.Rate, 1e-9)
			require.Len(t, m.Rules, 1)
			assert.Equal(t, "health", m.Rules[0].Description)
			assert.Equal(t, "/health", m.Rules[0].URLPath)
		})
	}
}

func TestParseRulesInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed", `{"version": `},
		{"bad version", `{"version": 7, "default": {"fixed_target": 1, "rate": 0.1}}`},
		{"missing default", `{"version": 2}`},
		{"rate above one", `{"version": 2, "default": {"fixed_target": 1, "rate": 1.5}}`},
		{"negative target", `{"version": 2, "default": {"fixed_target": 1, "rate": 0.1}, "rules": [{"fixed_target": -1, "rate": 0}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRules([]byte(tt.data), FormatJSON)
			assert.ErrorIs(t, err, ErrInvalidRules)
		})
	}

	_, err := ParseRules([]byte(jsonRules), Format("xml"))
	assert.ErrorIs(t, err, ErrInvalidRules)
}

func TestLoadRulesFile(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"rules.json": jsonRules,
		"rules.yml":  yamlRules,
		"rules.toml": tomlRules,
	}
	for name, data := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

		m, err := LoadRulesFile(path)
		require.NoError(t, err, name)
		assert.Len(t, m.Rules, 1, name)
	}

	_, err := LoadRulesFile(filepath.Join(dir, "rules.ini"))
	assert.ErrorIs(t, err, ErrInvalidRules)

	_, err = LoadRulesFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
