/*
Package sampling decides which requests are traced.

A Strategy turns request attributes into a Sampled or NotSampled decision.
Decide applies a strategy only when the inbound trace header has not already
decided.

LocalStrategy evaluates rules in order: lowest priority value first, then the
most specific patterns, then file order, with the Default rule last. Each rule
admits a fixed number of requests per second through a reservoir and samples
a fixed fraction of the remainder.

Rule files may be JSON, YAML or TOML:

	version: 2
	rules:
	  - description: health checks
	    url_path: /health
	    http_method: GET
	    fixed_target: 0
	    rate: 0
	default:
	  fixed_target: 1
	  rate: 0.05

RemoteStrategy polls a sampling service for the same document and falls back
to another strategy, NotSampledStrategy unless configured, while it holds no
fresh rules.
*/
package sampling
