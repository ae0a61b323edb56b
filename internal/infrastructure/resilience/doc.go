/*
Package resilience guards the recorder's outbound calls with a circuit breaker.

The HTTP emitter and the remote sampling strategy both talk to services that
may be down. Tracing must degrade quietly in that case, so calls go through a
Breaker that fails fast once the remote side keeps failing.

# Usage

	breaker := resilience.New("sampling", resilience.Settings{
		Probes:   1,
		Cooldown: 30 * time.Second,
		Trip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
	})

	err := breaker.Execute(func() error {
		return fetchRules(ctx)
	})

# States

	Closed --[trip]-> Open --[cooldown]-> Half-Open --[probes succeed]-> Closed
	                                          |
	                                       [failure]
	                                          v
	                                         Open
*/
package resilience
