package logger

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Transport stamps every outgoing request with X-Request-ID and logs it
// once the response (or error) comes back.
type Transport struct {
	Base http.RoundTripper
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()

	ctx, reqID := EnsureRequestID(r.Context())
	r = r.Clone(ctx)
	if r.Header.Get("X-Request-ID") == "" {
		r.Header.Set("X-Request-ID", reqID)
	}

	resp, err := t.base().RoundTrip(r)

	log := FromCtx(ctx).With(
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Duration("duration_ms", time.Since(start)),
	)
	if err != nil {
		log.Warn("outgoing request failed", zap.Error(err))
		return nil, err
	}

	log.Info("outgoing request", zap.Int("status", resp.StatusCode))
	return resp, nil
}
