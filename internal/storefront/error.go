package storefront

import (
	"errors"
	"fmt"
)

var (
	ErrMissingBaseURL = errors.New("storefront: base url is required")
	ErrMissingUserID  = errors.New("storefront: user id is required")
	ErrMissingOrderID = errors.New("storefront: order id is required")
	ErrUnauthorized   = errors.New("storefront: unauthorized")
	ErrUnavailable    = errors.New("storefront: backend unavailable")

	ErrMissingProductID = errors.New("storefront: product id is required")
	ErrProductNotFound  = errors.New("storefront: product not found")
	ErrUnknownSort      = errors.New("storefront: unknown sort option")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("storefront: status %d", e.Status)
	}
	return fmt.Sprintf("storefront: status %d: %s", e.Status, e.Message)
}

// Temporary reports whether retrying the request may succeed.
func (e *APIError) Temporary() bool {
	return e.Status >= 500 || e.Status == 429
}
