package sampling

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Rule matches requests by host, path, method, service name and origin, and
// samples matching requests with a per-second reservoir followed by a fixed
// rate.
type Rule struct {
	Name        string
	Priority    int
	Host        string
	HTTPMethod  string
	URLPath     string
	ServiceName string
	ServiceType string
	FixedTarget int64
	Rate        float64

	reservoir reservoir
	matched   atomic.Int64
	sampled   atomic.Int64
	borrowed  atomic.Int64
}

// RuleStats are the counters of one rule since it was loaded.
type RuleStats struct {
	Name     string
	Matched  int64
	Sampled  int64
	Borrowed int64
}

// Matches reports whether in falls under r. Empty patterns match anything.
// Host and path use doublestar globs: * stays within one path segment and
// ** crosses segments. Hosts compare case-insensitively, paths do not.
func (r *Rule) Matches(in Input) bool {
	return globMatch(strings.ToLower(r.Host), strings.ToLower(in.Host)) &&
		globMatch(r.URLPath, in.Path) &&
		methodMatch(r.HTTPMethod, in.Method) &&
		globMatch(r.ServiceName, in.SegmentName) &&
		globMatch(r.ServiceType, in.Origin)
}

// specificity counts literal characters across all patterns.
func (r *Rule) specificity() int {
	n := 0
	for _, p := range []string{r.Host, r.HTTPMethod, r.URLPath, r.ServiceName, r.ServiceType} {
		for _, c := range p {
			switch c {
			case '*', '?', '[', ']', '{', '}', ',':
			default:
				n++
			}
		}
	}
	return n
}

// Stats snapshots the rule counters.
func (r *Rule) Stats() RuleStats {
	return RuleStats{
		Name:     r.Name,
		Matched:  r.matched.Load(),
		Sampled:  r.sampled.Load(),
		Borrowed: r.borrowed.Load(),
	}
}

// sample applies reservoir then rate. roll returns a value in [0,1).
func (r *Rule) sample(now time.Time, roll func() float64) bool {
	r.matched.Add(1)
	if r.reservoir.take(now, r.FixedTarget) {
		r.borrowed.Add(1)
		r.sampled.Add(1)
		return true
	}
	if r.Rate > 0 && roll() < r.Rate {
		r.sampled.Add(1)
		return true
	}
	return false
}

func globMatch(pattern, value string) bool {
	if pattern == "" || pattern == "*" || pattern == "**" {
		return true
	}
	ok, err := doublestar.Match(pattern, value)
	return err == nil && ok
}

func methodMatch(pattern, method string) bool {
	return pattern == "" || pattern == "*" || strings.EqualFold(pattern, method)
}

// reservoir admits up to quota requests per wall-clock second. The current
// second and the count share one word so a single CAS updates both.
type reservoir struct {
	state atomic.Uint64
}

func (r *reservoir) take(now time.Time, quota int64) bool {
	if quota <= 0 {
		return false
	}
	sec := uint64(uint32(now.Unix()))
	for {
		old := r.state.Load()
		count := old & 0xffffffff
		if old>>32 != sec {
			count = 0
		}
		if int64(count) >= quota {
			return false
		}
		if r.state.CompareAndSwap(old, sec<<32|(count+1)) {
			return true
		}
	}
}
