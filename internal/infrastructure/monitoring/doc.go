/*
Package monitoring exposes recorder health as Prometheus metrics.

# Overview

The recorder counts segments begun, emitted, streamed and dropped, and how
often an operation found no entity in the trace context. Emitters report
transport latency and errors, and the async emitter reports its backlog.

# Usage

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)

	rec := recorder.New(recorder.Options{Metrics: metrics})

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

Tests register against prometheus.NewRegistry() so repeated construction does
not collide on metric names.
*/
package monitoring
