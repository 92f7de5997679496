package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78/webhook"

	domain "github.com/indo-cafe/api/internal/domain"
	"github.com/indo-cafe/api/internal/payments"
)

const paymentCurrency = "IDR"

var (
	// ErrPaymentInvalidInput signals the caller provided invalid data.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentNotPayable indicates the order cannot accept a payment.
	ErrPaymentNotPayable = errors.New("payment: order not payable")
	// ErrPaymentSignature indicates webhook signature verification failed.
	ErrPaymentSignature = errors.New("payment: invalid webhook signature")
)

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Manager       *payments.Manager
	Orders        OrderService
	WebhookSecret string
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	manager       *payments.Manager
	orders        OrderService
	webhookSecret string
	clock         func() time.Time
	logger        func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Manager == nil {
		return nil, errors.New("payment service: payments manager is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("payment service: order service is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentService{
		manager:       deps.Manager,
		orders:        deps.Orders,
		webhookSecret: strings.TrimSpace(deps.WebhookSecret),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreatePaymentSession opens a hosted PSP checkout for an unpaid order.
func (s *paymentService) CreatePaymentSession(ctx context.Context, cmd CreatePaymentSessionCommand) (PaymentSession, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return PaymentSession{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}

	order, err := s.orders.GetOrder(ctx, OrderReadCommand{
		OrderID:     orderID,
		RequestedBy: cmd.UserID,
	})
	if err != nil {
		return PaymentSession{}, err
	}
	if order.Status == domain.OrderStatusCancelled {
		return PaymentSession{}, fmt.Errorf("%w: order is cancelled", ErrPaymentNotPayable)
	}
	if order.PaymentStatus != domain.PaymentStatusUnpaid {
		return PaymentSession{}, fmt.Errorf("%w: payment status is %s", ErrPaymentNotPayable, order.PaymentStatus)
	}

	items := make([]payments.CheckoutLineItem, 0, len(order.Items))
	for _, line := range order.Items {
		items = append(items, payments.CheckoutLineItem{
			Name:     line.Name,
			SKU:      line.MenuItemID,
			Quantity: int64(line.Quantity),
			Amount:   line.UnitPrice,
			Currency: paymentCurrency,
		})
	}

	session, err := s.manager.CreateCheckoutSession(ctx,
		payments.PaymentContext{Currency: paymentCurrency},
		payments.CheckoutSessionRequest{
			Amount:         order.TotalPrice,
			Currency:       paymentCurrency,
			CustomerID:     order.UserID,
			SuccessURL:     strings.TrimSpace(cmd.SuccessURL),
			CancelURL:      strings.TrimSpace(cmd.CancelURL),
			IdempotencyKey: "order-" + order.ID,
			Metadata: map[string]string{
				"orderId":     order.ID,
				"orderNumber": order.OrderNumber,
			},
			Items: items,
		})
	if err != nil {
		return PaymentSession{}, err
	}

	s.logger(ctx, "payment.session.created", map[string]any{
		"order":    order.ID,
		"session":  session.ID,
		"provider": session.Provider,
	})

	return PaymentSession{
		SessionID:   session.ID,
		RedirectURL: session.RedirectURL,
		ExpiresAt:   session.ExpiresAt,
	}, nil
}

// HandleWebhookEvent verifies the PSP signature and maps payment events onto
// the order's payment status. Unknown event types are acknowledged and
// dropped so the PSP does not retry them forever.
func (s *paymentService) HandleWebhookEvent(ctx context.Context, cmd PaymentWebhookCommand) error {
	if len(cmd.Payload) == 0 {
		return fmt.Errorf("%w: payload is required", ErrPaymentInvalidInput)
	}
	if s.webhookSecret != "" {
		if _, err := webhook.ConstructEvent(cmd.Payload, cmd.Signature, s.webhookSecret); err != nil {
			return fmt.Errorf("%w: %v", ErrPaymentSignature, err)
		}
	}

	var envelope struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID       string            `json:"id"`
				Metadata map[string]string `json:"metadata"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(cmd.Payload, &envelope); err != nil {
		return fmt.Errorf("%w: decode payload: %v", ErrPaymentInvalidInput, err)
	}

	eventType := envelope.Type
	if eventType == "" {
		eventType = strings.TrimSpace(cmd.EventType)
	}
	orderID := strings.TrimSpace(envelope.Data.Object.Metadata["orderId"])
	if orderID == "" {
		s.logger(ctx, "payment.webhook.unmatched", map[string]any{
			"event": envelope.ID,
			"type":  eventType,
		})
		return nil
	}

	var target domain.PaymentStatus
	switch eventType {
	case "checkout.session.completed", "payment_intent.succeeded":
		target = domain.PaymentStatusPaid
	case "charge.refunded":
		target = domain.PaymentStatusRefunded
	default:
		s.logger(ctx, "payment.webhook.ignored", map[string]any{
			"event": envelope.ID,
			"type":  eventType,
		})
		return nil
	}

	_, err := s.orders.UpdatePaymentStatus(ctx, PaymentStatusCommand{
		OrderID:      orderID,
		TargetStatus: target,
		ActorID:      "psp:" + strings.TrimSpace(cmd.Provider),
		Reference:    envelope.Data.Object.ID,
	})
	if err != nil {
		// Replays of an already applied event are fine.
		if errors.Is(err, ErrOrderInvalidState) {
			s.logger(ctx, "payment.webhook.replayed", map[string]any{
				"event": envelope.ID,
				"order": orderID,
			})
			return nil
		}
		return err
	}

	s.logger(ctx, "payment.webhook.applied", map[string]any{
		"event":  envelope.ID,
		"order":  orderID,
		"status": string(target),
	})
	return nil
}
