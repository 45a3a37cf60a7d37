package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront-core/internal/auth"
	"storefront-core/internal/logger"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const (
	defaultTimeout      = 15 * time.Second
	breakerFailures     = 5
	breakerOpenDuration = 30 * time.Second
)

// TokenSource yields the bearer token for each request. An empty token
// sends the request unauthenticated.
type TokenSource func(ctx context.Context) (string, error)

type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

// NewClient builds a client for the API rooted at baseURL. Requests go
// through the logging transport and a circuit breaker that opens after
// consecutive transport or 5xx failures.
func NewClient(baseURL string, tokens TokenSource) (*Client, error) {
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("storefront: invalid base url: %w", err)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: &logger.Transport{},
		},
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:    "storefront",
			Timeout: breakerOpenDuration,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= breakerFailures
			},
			IsSuccessful: isSuccessful,
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.L().Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
	}, nil
}

// isSuccessful counts only transport and server errors against the breaker.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return !apiErr.Temporary()
	}
	return errors.Is(err, context.Canceled)
}

// DeliveryOrders lists the orders assigned to a delivery partner, newest first.
func (c *Client) DeliveryOrders(ctx context.Context, deliveryGuyID string) ([]Order, error) {
	query := orderQuery{CreatedAt: -1}
	if deliveryGuyID != "" {
		query.Filters = &orderFilters{AssignedTo: deliveryGuyID}
	}
	return c.listOrders(ctx, query)
}

// UserOrders lists the orders placed by a customer, newest first.
func (c *Client) UserOrders(ctx context.Context, userID string) ([]Order, error) {
	query := orderQuery{CreatedAt: -1}
	if userID != "" {
		query.Filters = &orderFilters{UserID: userID}
	}
	return c.listOrders(ctx, query)
}

func (c *Client) listOrders(ctx context.Context, query orderQuery) ([]Order, error) {
	var env ordersEnvelope
	if err := c.do(ctx, http.MethodPost, "/orders/", query, &env); err != nil {
		return nil, err
	}
	if env.Data.Orders == nil {
		return []Order{}, nil
	}
	return env.Data.Orders, nil
}

// ProcessOrder places an order for req.UserID.
func (c *Client) ProcessOrder(ctx context.Context, req ProcessOrderRequest) (*PaymentDetails, error) {
	if req.UserID == "" {
		return nil, ErrMissingUserID
	}

	var env processEnvelope
	if err := c.do(ctx, http.MethodPost, "/orders/process/"+url.PathEscape(req.UserID), req, &env); err != nil {
		return nil, err
	}

	details := &PaymentDetails{Raw: env.Data}
	if len(env.Data) > 0 && env.Data[0] == '{' {
		if err := json.Unmarshal(env.Data, details); err != nil {
			logger.FromCtx(ctx).Warn("unexpected payment details", zap.Error(err))
		}
	}
	return details, nil
}

// UpdateOrderStatus changes an order's status, optionally reporting where
// the courier was when it changed.
func (c *Client) UpdateOrderStatus(ctx context.Context, update StatusUpdate) error {
	if update.OrderID == "" {
		return ErrMissingOrderID
	}

	body := map[string]any{"newStatus": update.NewStatus}
	if update.DeliveryGuyID != "" {
		body["deliveryGuyId"] = update.DeliveryGuyID
	}
	if update.Location != nil {
		body["latitude"] = update.Location.Latitude
		body["longitude"] = update.Location.Longitude
	}

	return c.do(ctx, http.MethodPut, "/orders/"+url.PathEscape(update.OrderID), body, nil)
}

// VerifyPayment settles a gateway payment. A non-success verdict is
// returned in the result, not as an error.
func (c *Client) VerifyPayment(ctx context.Context, v PaymentVerification) (*VerificationResult, error) {
	q := url.Values{}
	q.Set("UID", v.UID)
	q.Set("PRN", v.PRN)
	if v.BID != "" {
		q.Set("BID", v.BID)
	}

	var res VerificationResult
	if err := c.do(ctx, http.MethodPost, "/orders/verify?"+q.Encode(), v.Order, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	log := logger.FromCtx(ctx).With(zap.String("method", method), zap.String("path", path))

	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			log.Error("Failed to marshal request", zap.Error(err))
			return err
		}
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		log.Warn("storefront circuit open", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return err
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		log.Error("Failed decoding response", zap.Error(err))
		return fmt.Errorf("storefront: decode response: %w", err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.tokens != nil {
		token, err := c.tokens(ctx)
		if err != nil {
			return nil, fmt.Errorf("storefront: access token: %w", err)
		}
		auth.SetBearer(req.Header, token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("storefront: read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	apiErr := &APIError{Status: resp.StatusCode, Message: errorMessage(body)}
	logger.FromCtx(ctx).Warn("storefront returned non-success status",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.ByteString("response", body),
	)
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, apiErr)
	}
	return nil, apiErr
}

func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(body))
}
