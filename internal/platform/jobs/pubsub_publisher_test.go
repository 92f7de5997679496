package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/indo-cafe/api/internal/services"
)

func newTestTopic(t *testing.T, name string) (*pubsub.Topic, *pstest.Server) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, name)
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	return topic, srv
}

func TestPubSubOrderPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	topic, srv := newTestTopic(t, "order-events")

	publisher, err := NewPubSubOrderPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubOrderPublisher: %v", err)
	}

	occurredAt := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	event := services.OrderEvent{
		Type:          "order.created",
		OrderID:       "ord_test",
		OrderNumber:   "IC-20250506-1234",
		UserID:        "user-1",
		Status:        "pending",
		PaymentStatus: "unpaid",
		TotalPrice:    55000,
		OccurredAt:    occurredAt,
	}

	if err := publisher.PublishOrderEvent(ctx, event); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.OrderEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderID != event.OrderID || payload.OrderNumber != event.OrderNumber {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["orderNumber"]; attr != "IC-20250506-1234" {
		t.Fatalf("expected order number attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["type"]; attr != "order.created" {
		t.Fatalf("expected type attribute, got %q", attr)
	}
}

func TestPubSubStockPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	topic, srv := newTestTopic(t, "stock-events")

	publisher, err := NewPubSubStockPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubStockPublisher: %v", err)
	}

	event := services.StockEvent{
		Type:       "stock.reserved",
		MenuItemID: "menu_test",
		Delta:      -2,
		Remaining:  8,
		OrderID:    "ord_test",
		OccurredAt: time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC),
	}

	if err := publisher.PublishStockEvent(ctx, event); err != nil {
		t.Fatalf("PublishStockEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.StockEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.MenuItemID != event.MenuItemID || payload.Remaining != 8 {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["menuItemId"]; attr != "menu_test" {
		t.Fatalf("expected menu item attribute, got %q", attr)
	}
}

func TestNewPubSubOrderPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubOrderPublisher(nil); err == nil {
		t.Fatal("expected error for nil topic")
	}
	if _, err := NewPubSubStockPublisher(nil); err == nil {
		t.Fatal("expected error for nil topic")
	}
}
