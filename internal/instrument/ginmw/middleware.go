package ginmw

import (
	"fmt"
	"net"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/segtrace/internal/header"
	"github.com/GriffinCanCode/segtrace/internal/recorder"
	"github.com/GriffinCanCode/segtrace/internal/sampling"
)

const forwardedFor = "X-Forwarded-For"

// Middleware traces each request as a segment. The segment is placed in the
// request context, so handlers reach it through c.Request.Context(). A nil
// namer names segments after the recorder's service name.
func Middleware(rec *recorder.Recorder, namer SegmentNamer) gin.HandlerFunc {
	if namer == nil {
		namer = FixedNamer(rec.ServiceName())
	}

	return func(c *gin.Context) {
		if !rec.Enabled() {
			c.Next()
			return
		}

		h := rec.ExtractHeader(c.GetHeader(header.Key))
		requested := h.Sampled == header.Requested
		name := namer.SegmentName(c.Request)

		resp := rec.Decide(h, sampling.Input{
			Host:        hostOnly(c.Request.Host),
			Path:        c.Request.URL.Path,
			Method:      c.Request.Method,
			SegmentName: name,
			Origin:      rec.Origin(),
		})

		ctx, seg, err := rec.BeginSegment(c.Request.Context(), name, h.RootTraceID, h.ParentID, resp, rec.Now())
		if err != nil || seg == nil {
			c.Next()
			return
		}
		_ = rec.AddHTTPInformation(ctx, "request", requestAttributes(c))
		_ = rec.AddAWSInformation(ctx, "xray", map[string]any{"auto_instrumentation": true})

		if requested {
			h.Sampled = resp.Decision
			c.Header(header.Key, h.String())
		}

		c.Request = c.Request.WithContext(ctx)

		defer func() {
			if p := recover(); p != nil {
				_ = rec.AddException(ctx, fmt.Errorf("panic: %v", p))
				_ = rec.MarkFault(ctx)
				rec.EndEntity(seg)
				panic(p)
			}

			status := c.Writer.Status()
			response := map[string]any{"status": status}
			if size := c.Writer.Size(); size >= 0 {
				response["content_length"] = size
			}
			_ = rec.AddHTTPInformation(ctx, "response", response)
			_ = rec.MarkErrorFromStatus(ctx, status)

			for _, ginErr := range c.Errors {
				_ = rec.AddException(ctx, ginErr.Err)
			}
			rec.EndEntity(seg)
		}()

		c.Next()
	}
}

func requestAttributes(c *gin.Context) map[string]any {
	r := c.Request
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	attrs := map[string]any{
		"url":    scheme + "://" + r.Host + r.URL.RequestURI(),
		"method": r.Method,
	}

	if xff := r.Header.Get(forwardedFor); xff != "" {
		hops := strings.Split(xff, ",")
		attrs["client_ip"] = hostOnly(strings.TrimSpace(hops[0]))
		if len(hops) > 1 {
			attrs["x_forwarded_for"] = true
		}
	} else {
		attrs["client_ip"] = hostOnly(r.RemoteAddr)
	}

	if ua := r.UserAgent(); ua != "" {
		attrs["user_agent"] = ua
	}
	return attrs
}

func hostOnly(hostport string) string {
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	return hostport
}
