package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/indo-cafe/api/internal/services"
)

func newWebhookRouter(payments services.PaymentService) chi.Router {
	router := chi.NewRouter()
	handlers := NewWebhookHandlers(payments)
	router.Route("/webhooks", handlers.Routes)
	return router
}

func TestStripeWebhookEndpoint(t *testing.T) {
	var received services.PaymentWebhookCommand
	payments := &stubPaymentService{
		webhookFn: func(_ context.Context, cmd services.PaymentWebhookCommand) error {
			received = cmd
			return nil
		},
	}
	router := newWebhookRouter(payments)

	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if received.Provider != "stripe" || received.Signature != "t=1,v1=abc" {
		t.Fatalf("unexpected command %+v", received)
	}
	if !bytes.Equal(received.Payload, payload) {
		t.Fatal("payload must be passed through untouched")
	}
	if !strings.Contains(rr.Body.String(), "received") {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}

func TestStripeWebhookEndpointBadSignature(t *testing.T) {
	payments := &stubPaymentService{
		webhookFn: func(context.Context, services.PaymentWebhookCommand) error {
			return services.ErrPaymentSignature
		},
	}
	router := newWebhookRouter(payments)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/stripe", bytes.NewReader([]byte(`{}`)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "invalid_signature") {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}

func TestStripeWebhookEndpointWithoutPayments(t *testing.T) {
	router := newWebhookRouter(nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/stripe", bytes.NewReader([]byte(`{}`)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
