package storefront

import (
	"encoding/json"

	"storefront-core/internal/cart"
)

// Order statuses as reported by the backend.
const (
	StatusProcessing     = "processing"
	StatusOutForDelivery = "outfordelivery"
	StatusDelivered      = "delivered"
	StatusCancelled      = "cancelled"
)

// Payment types accepted by order processing.
const (
	PaymentCash    = "cash"
	PaymentFonepay = "fonepay"
)

type Order struct {
	ID                string           `json:"_id"`
	Status            string           `json:"status"`
	PaymentType       string           `json:"paymentType,omitempty"`
	AssignedTo        string           `json:"assignedTo,omitempty"`
	UserID            string           `json:"userId,omitempty"`
	DeliveryAddressID string           `json:"deliveryAddressId,omitempty"`
	TotalPrice        float64          `json:"totalPrice,omitempty"`
	Items             []cart.OrderItem `json:"items,omitempty"`
}

// OutForDelivery reports whether the courier's position should be shared.
func (o Order) OutForDelivery() bool {
	return o.Status == StatusOutForDelivery
}

type orderFilters struct {
	AssignedTo string `json:"assignedTo,omitempty"`
	UserID     string `json:"userId,omitempty"`
}

type orderQuery struct {
	CreatedAt int           `json:"createdAt"`
	Filters   *orderFilters `json:"filters,omitempty"`
}

type ordersEnvelope struct {
	Data struct {
		Orders []Order `json:"orders"`
	} `json:"data"`
}

type ProcessOrderRequest struct {
	UserID            string           `json:"-"`
	Items             []cart.OrderItem `json:"items"`
	PaymentType       string           `json:"paymentType"`
	DeliveryAddressID string           `json:"deliveryAddressId"`
}

// PaymentDetails is what order processing returns. For gateway payments it
// carries the form to post to the gateway.
type PaymentDetails struct {
	OrderID     string            `json:"orderId,omitempty"`
	ProcessURL  string            `json:"processUrl,omitempty"`
	PaymentData map[string]string `json:"paymentData,omitempty"`
	Raw         json.RawMessage   `json:"-"`
}

type processEnvelope struct {
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type StatusUpdate struct {
	OrderID       string    `json:"-"`
	NewStatus     string    `json:"newStatus"`
	DeliveryGuyID string    `json:"deliveryGuyId,omitempty"`
	Location      *Location `json:"-"`
}

// PaymentVerification is the gateway callback plus the order it settles.
type PaymentVerification struct {
	UID   string
	PRN   string
	BID   string
	Order VerifiedOrder
}

type VerifiedOrder struct {
	OrderID           string           `json:"orderId"`
	UserID            string           `json:"userId"`
	Items             []cart.OrderItem `json:"items"`
	DeliveryAddressID string           `json:"deliveryAddressId"`
	PaymentType       string           `json:"paymentType"`
}

type VerificationResult struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// Succeeded mirrors the backend convention of message == "success".
func (r VerificationResult) Succeeded() bool {
	return r.Message == "success"
}
