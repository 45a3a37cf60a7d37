package checkout

import "errors"

var (
	ErrCartEmpty          = errors.New("cart is empty")
	ErrMissingUser        = errors.New("user id is required")
	ErrMissingAddress     = errors.New("delivery address is required")
	ErrUnknownPaymentType = errors.New("unknown payment type")
	ErrPaymentDeclined    = errors.New("payment was not confirmed")
)
