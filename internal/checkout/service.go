package checkout

import (
	"context"
	"fmt"

	"storefront-core/internal/cart"
	"storefront-core/internal/logger"
	"storefront-core/internal/storefront"

	"go.uber.org/zap"
)

// Orders is the part of the storefront API checkout needs.
type Orders interface {
	ProcessOrder(ctx context.Context, req storefront.ProcessOrderRequest) (*storefront.PaymentDetails, error)
	VerifyPayment(ctx context.Context, v storefront.PaymentVerification) (*storefront.VerificationResult, error)
}

type Service interface {
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*Result, error)
	ConfirmPayment(ctx context.Context, pending *Result, input PlaceOrderInput, c Confirmation) error
}

type service struct {
	cart   cart.Service
	orders Orders
}

func NewService(c cart.Service, orders Orders) Service {
	return &service{cart: c, orders: orders}
}

// PlaceOrder submits the current cart. Cash orders are final and clear the
// cart; gateway orders keep it until ConfirmPayment succeeds.
func (s *service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*Result, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "PlaceOrder"),
		zap.String("user_id", input.UserID),
		zap.String("payment_type", input.PaymentType),
	)

	if err := validate(input); err != nil {
		log.Warn("invalid checkout input", zap.Error(err))
		return nil, err
	}

	state := s.cart.State()
	if len(state.Items) == 0 {
		log.Warn("checkout with empty cart")
		return nil, ErrCartEmpty
	}

	details, err := s.orders.ProcessOrder(ctx, storefront.ProcessOrderRequest{
		UserID:            input.UserID,
		Items:             cart.ToOrderItems(state.Items),
		PaymentType:       input.PaymentType,
		DeliveryAddressID: input.DeliveryAddressID,
	})
	if err != nil {
		log.Error("failed to process order", zap.Error(err))
		return nil, fmt.Errorf("process order: %w", err)
	}

	res := &Result{Payment: details}
	if details != nil {
		res.OrderID = details.OrderID
	}

	if input.PaymentType == storefront.PaymentCash {
		s.cart.ReplaceAll(ctx, nil)
		res.Completed = true
		log.Info("cash order placed", zap.String("order_id", res.OrderID))
		return res, nil
	}

	log.Info("order awaiting payment", zap.String("order_id", res.OrderID))
	return res, nil
}

// ConfirmPayment verifies a pending gateway payment and clears the cart
// when the backend accepts it.
func (s *service) ConfirmPayment(ctx context.Context, pending *Result, input PlaceOrderInput, c Confirmation) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "ConfirmPayment"),
		zap.String("user_id", input.UserID),
	)

	orderID := ""
	if pending != nil {
		orderID = pending.OrderID
	}

	res, err := s.orders.VerifyPayment(ctx, storefront.PaymentVerification{
		UID: c.UID,
		PRN: c.PRN,
		BID: c.BID,
		Order: storefront.VerifiedOrder{
			OrderID:           orderID,
			UserID:            input.UserID,
			Items:             cart.ToOrderItems(s.cart.State().Items),
			DeliveryAddressID: input.DeliveryAddressID,
			PaymentType:       input.PaymentType,
		},
	})
	if err != nil {
		log.Error("payment verification failed", zap.Error(err))
		return fmt.Errorf("verify payment: %w", err)
	}

	if !res.Succeeded() {
		reason := res.Message
		if reason == "" {
			reason = res.Error
		}
		log.Warn("payment declined", zap.String("order_id", orderID), zap.String("reason", reason))
		return fmt.Errorf("%w: %s", ErrPaymentDeclined, reason)
	}

	s.cart.ReplaceAll(ctx, nil)
	if pending != nil {
		pending.Completed = true
	}
	log.Info("payment confirmed", zap.String("order_id", orderID))
	return nil
}

func validate(input PlaceOrderInput) error {
	if input.UserID == "" {
		return ErrMissingUser
	}
	if input.DeliveryAddressID == "" {
		return ErrMissingAddress
	}
	switch input.PaymentType {
	case storefront.PaymentCash, storefront.PaymentFonepay:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPaymentType, input.PaymentType)
	}
}
