package httpout

import (
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/GriffinCanCode/segtrace/internal/entity"
	"github.com/GriffinCanCode/segtrace/internal/header"
	"github.com/GriffinCanCode/segtrace/internal/recorder"
)

// Transport traces outbound requests as subsegments of the entity in the
// request context and propagates the trace header downstream.
type Transport struct {
	rec  *recorder.Recorder
	base http.RoundTripper
}

// NewTransport wraps base, or http.DefaultTransport when base is nil.
func NewTransport(rec *recorder.Recorder, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{rec: rec, base: base}
}

// RoundTrip implements http.RoundTripper. Calls to the sampling service are
// passed through untraced.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.rec.Enabled() || t.rec.IsSamplingCall(req.URL.String()) {
		return t.base.RoundTrip(req)
	}

	ctx, sub, err := t.rec.BeginSubsegment(req.Context(), req.URL.Hostname())
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return t.base.RoundTrip(req)
	}
	defer t.rec.EndEntity(sub)

	sub.SetNamespace(entity.NamespaceRemote)
	_ = sub.AddAnnotation(entity.NamespaceHTTP, "request", map[string]any{
		"url":    req.URL.String(),
		"method": req.Method,
	})

	out := req.Clone(ctx)
	if h, ok := t.rec.HeaderFor(ctx); ok {
		out.Header.Set(header.Key, h.String())
	}

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		sub.AddException(err)
		return nil, err
	}

	response := map[string]any{"status": resp.StatusCode}
	if resp.ContentLength >= 0 {
		response["content_length"] = resp.ContentLength
	}
	_ = sub.AddAnnotation(entity.NamespaceHTTP, "response", response)
	sub.MarkFromStatus(resp.StatusCode)
	return resp, nil
}

// Client returns a copy of base whose transport is traced.
func Client(rec *recorder.Recorder, base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	c := *base
	c.Transport = NewTransport(rec, base.Transport)
	return &c
}

// Resty installs the traced transport on a resty client. Requests must carry
// the traced context through SetContext.
func Resty(rec *recorder.Recorder, client *resty.Client) *resty.Client {
	if client == nil {
		client = resty.New()
	}
	return client.SetTransport(NewTransport(rec, client.GetClient().Transport))
}
