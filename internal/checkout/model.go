package checkout

import "storefront-core/internal/storefront"

type PlaceOrderInput struct {
	UserID            string
	DeliveryAddressID string
	PaymentType       string
}

// Result of placing an order. Completed is true when nothing is left to do
// on the client; otherwise Payment carries the gateway form.
type Result struct {
	Completed bool                       `json:"completed"`
	OrderID   string                     `json:"orderId,omitempty"`
	Payment   *storefront.PaymentDetails `json:"payment,omitempty"`
}

// Confirmation is the gateway redirect that settles a pending payment.
type Confirmation struct {
	UID string
	PRN string
	BID string
}
