/*
Package ginmw traces inbound HTTP requests served by gin.

Each request becomes a segment. The incoming X-Amzn-Trace-Id header supplies
the trace and parent ids and, when resolved, the sampling decision; otherwise
the recorder's sampling strategy decides. Handlers find the segment in
c.Request.Context() and can add subsegments with the recorder:

	router.Use(ginmw.Middleware(rec, ginmw.HostNamer{Fallback: "orders"}))

	router.GET("/orders/:id", func(c *gin.Context) {
		err := rec.Capture(c.Request.Context(), "load-order", loadOrder)
		...
	})

The response status is mapped to error, throttle and fault flags, and errors
attached with c.Error are recorded as exceptions.
*/
package ginmw
