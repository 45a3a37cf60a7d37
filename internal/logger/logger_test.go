package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func swapLogger(t *testing.T, l *zap.Logger) {
	t.Helper()
	mu.RLock()
	original := log
	mu.RUnlock()
	Set(l)
	t.Cleanup(func() { Set(original) })
}

func TestInit(t *testing.T) {
	swapLogger(t, nil)

	t.Run("Production", func(t *testing.T) {
		Init("production")
		assert.NotNil(t, L())
	})

	t.Run("Development", func(t *testing.T) {
		Init("development")
		assert.NotNil(t, L())
	})

	t.Run("Test", func(t *testing.T) {
		Init("test")
		assert.False(t, L().Core().Enabled(zapcore.ErrorLevel))
	})
}

func TestL(t *testing.T) {
	swapLogger(t, nil)
	t.Setenv("APP_ENV", "test")

	// Force lazy initialization
	l := L()
	assert.NotNil(t, l)
}

func TestContextFunctions(t *testing.T) {
	ctx := context.Background()
	reqID := "test-request-id-123"

	t.Run("WithRequestID", func(t *testing.T) {
		newCtx := WithRequestID(ctx, reqID)
		assert.Equal(t, reqID, newCtx.Value(requestIDKey))
	})

	t.Run("RequestIDFrom", func(t *testing.T) {
		assert.Equal(t, reqID, RequestIDFrom(WithRequestID(ctx, reqID)))
		assert.Equal(t, "", RequestIDFrom(ctx))
	})

	t.Run("EnsureRequestID keeps existing", func(t *testing.T) {
		withID := WithRequestID(ctx, reqID)
		got, id := EnsureRequestID(withID)
		assert.Equal(t, reqID, id)
		assert.Equal(t, withID, got)
	})

	t.Run("EnsureRequestID generates", func(t *testing.T) {
		got, id := EnsureRequestID(ctx)
		assert.NotEmpty(t, id)
		assert.Equal(t, id, RequestIDFrom(got))
	})
}

func TestFromCtx(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	swapLogger(t, zap.New(core))

	t.Run("WithRequestID", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-abc-123")

		FromCtx(ctx).Info("test message with id")

		logs := observed.TakeAll()
		require.Len(t, logs, 1)
		assert.Equal(t, "test message with id", logs[0].Message)
		assert.Equal(t, "req-abc-123", logs[0].ContextMap()["request_id"])
	})

	t.Run("WithoutRequestID", func(t *testing.T) {
		FromCtx(context.Background()).Info("test message without id")

		logs := observed.TakeAll()
		require.Len(t, logs, 1)
		_, ok := logs[0].ContextMap()["request_id"]
		assert.False(t, ok)
	})
}

func TestSync(t *testing.T) {
	assert.NotPanics(t, func() {
		Sync()
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestTransport(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	swapLogger(t, zap.New(core))

	t.Run("Generates ID when missing", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		client := &http.Client{Transport: &Transport{}}
		resp, err := client.Get(srv.URL + "/orders/")
		require.NoError(t, err)
		resp.Body.Close()

		logs := observed.TakeAll()
		require.Len(t, logs, 1)
		assert.Equal(t, "outgoing request", logs[0].Message)
		assert.Equal(t, "/orders/", logs[0].ContextMap()["path"])
		assert.EqualValues(t, http.StatusNoContent, logs[0].ContextMap()["status"])
	})

	t.Run("Preserves existing ID", func(t *testing.T) {
		var seen string
		tr := &Transport{Base: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			seen = r.Header.Get("X-Request-ID")
			return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
		})}

		req := httptest.NewRequest(http.MethodGet, "http://example.test/x", nil)
		req = req.WithContext(WithRequestID(req.Context(), "test-id-123"))
		req.RequestURI = ""

		_, err := tr.RoundTrip(req)
		require.NoError(t, err)
		assert.Equal(t, "test-id-123", seen)
		observed.TakeAll()
	})

	t.Run("Logs failures", func(t *testing.T) {
		tr := &Transport{Base: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		})}

		req, _ := http.NewRequest(http.MethodPost, "http://example.test/orders/", nil)
		_, err := tr.RoundTrip(req)
		assert.Error(t, err)

		logs := observed.TakeAll()
		require.Len(t, logs, 1)
		assert.Equal(t, "outgoing request failed", logs[0].Message)
	})
}
