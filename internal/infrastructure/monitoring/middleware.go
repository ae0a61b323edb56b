package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for request metrics
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		c.Next()

		// Route template keeps label cardinality bounded.
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// Timer measures one emitter transport call
type Timer struct {
	start   time.Time
	metrics *Metrics
	emitter string
}

// NewTimer starts timing a call on the named emitter
func NewTimer(metrics *Metrics, emitter string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		emitter: emitter,
	}
}

// Stop records the duration and outcome
func (t *Timer) Stop(err error) {
	t.metrics.RecordEmit(t.emitter, time.Since(t.start), err)
}
