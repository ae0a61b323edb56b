package sampling

import (
	"math/rand/v2"
	"sort"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/segtrace/internal/header"
)

// LocalStrategy evaluates an in-memory rule set. The rule set can be swapped
// while decisions are being made.
type LocalStrategy struct {
	rules atomic.Pointer[[]*Rule]
	now   func() time.Time
	roll  func() float64
}

// LocalOption configures a LocalStrategy.
type LocalOption func(*LocalStrategy)

// WithClock overrides the time source used by reservoirs.
func WithClock(now func() time.Time) LocalOption {
	return func(s *LocalStrategy) { s.now = now }
}

// WithRandom overrides the [0,1) source used for fixed-rate sampling.
func WithRandom(roll func() float64) LocalOption {
	return func(s *LocalStrategy) { s.roll = roll }
}

// NewLocalStrategy builds a strategy from m.
func NewLocalStrategy(m *Manifest, opts ...LocalOption) (*LocalStrategy, error) {
	s := &LocalStrategy{
		now:  time.Now,
		roll: rand.Float64,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.SetManifest(m); err != nil {
		return nil, err
	}
	return s, nil
}

// NewDefaultLocalStrategy samples one request per second plus 5% of the rest.
func NewDefaultLocalStrategy(opts ...LocalOption) *LocalStrategy {
	s, err := NewLocalStrategy(DefaultManifest(), opts...)
	if err != nil {
		// DefaultManifest is always valid.
		panic(err)
	}
	return s
}

// SetManifest validates m and atomically replaces the rule set. Rules are
// ordered by priority, then by specificity, then by their position in m;
// the default rule is always last.
func (s *LocalStrategy) SetManifest(m *Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}

	rules := make([]*Rule, 0, len(m.Rules)+1)
	for _, spec := range m.Rules {
		rules = append(rules, spec.rule())
	}
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].specificity() > rules[j].specificity()
	})

	def := m.Default.rule()
	def.Name = DefaultRuleName
	def.Host, def.HTTPMethod, def.URLPath, def.ServiceName, def.ServiceType = "", "", "", "", ""
	rules = append(rules, def)

	s.rules.Store(&rules)
	return nil
}

// Rules returns the active rules in evaluation order.
func (s *LocalStrategy) Rules() []*Rule {
	return *s.rules.Load()
}

// ShouldTrace returns the decision of the first matching rule.
func (s *LocalStrategy) ShouldTrace(in Input) Response {
	rules := *s.rules.Load()
	now := s.now()
	for _, r := range rules {
		if !r.Matches(in) {
			continue
		}
		decision := header.NotSampled
		if r.sample(now, s.roll) {
			decision = header.Sampled
		}
		return Response{RuleName: r.Name, Decision: decision}
	}
	// Unreachable with a validated manifest: the default rule matches all.
	return Response{Decision: header.NotSampled}
}

// Stats returns per-rule counters in evaluation order.
func (s *LocalStrategy) Stats() []RuleStats {
	rules := s.Rules()
	out := make([]RuleStats, len(rules))
	for i, r := range rules {
		out[i] = r.Stats()
	}
	return out
}
