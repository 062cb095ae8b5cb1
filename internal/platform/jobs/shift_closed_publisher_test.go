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

	"github.com/partshub/api/internal/services"
)

func newTestTopic(t *testing.T, ordered bool) (*pstest.Server, *pubsub.Topic) {
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

	topic, err := client.CreateTopic(ctx, "shift-closed")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	topic.EnableMessageOrdering = ordered
	t.Cleanup(topic.Stop)
	return srv, topic
}

func TestShiftClosedPublisherPublishesEvent(t *testing.T) {
	srv, topic := newTestTopic(t, false)
	publisher, err := NewShiftClosedPublisher(topic)
	if err != nil {
		t.Fatalf("NewShiftClosedPublisher: %v", err)
	}

	event := services.ShiftClosedEvent{
		ClosingID:    "cls_01",
		Date:         "2025-06-02",
		ExpectedCash: "1200.5",
		ActualCash:   "1195",
		Variance:     "-5.5",
		Status:       "shortage",
		ClosedBy:     "Rina",
		ClosedAt:     time.Date(2025, time.June, 2, 22, 5, 0, 0, time.UTC),
	}
	id, err := publisher.PublishShiftClosed(context.Background(), event)
	if err != nil {
		t.Fatalf("PublishShiftClosed: %v", err)
	}
	if id == "" {
		t.Fatal("expected message id")
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	var payload services.ShiftClosedEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Variance != "-5.5" || payload.Status != "shortage" || !payload.ClosedAt.Equal(event.ClosedAt) {
		t.Fatalf("unexpected payload %#v", payload)
	}
	attrs := messages[0].Attributes
	if attrs["eventType"] != "shift.closed" || attrs["date"] != "2025-06-02" || attrs["closingId"] != "cls_01" {
		t.Fatalf("unexpected attributes %v", attrs)
	}
	if messages[0].OrderingKey != "" {
		t.Fatalf("expected no ordering key when ordering disabled, got %q", messages[0].OrderingKey)
	}
}

func TestShiftClosedPublisherUsesDateAsOrderingKey(t *testing.T) {
	srv, topic := newTestTopic(t, true)
	publisher, err := NewShiftClosedPublisher(topic)
	if err != nil {
		t.Fatalf("NewShiftClosedPublisher: %v", err)
	}
	if _, err := publisher.PublishShiftClosed(context.Background(), services.ShiftClosedEvent{ClosingID: "cls_02", Date: "2025-06-03"}); err != nil {
		t.Fatalf("PublishShiftClosed: %v", err)
	}
	messages := srv.Messages()
	if len(messages) != 1 || messages[0].OrderingKey != "2025-06-03" {
		t.Fatalf("expected ordering key 2025-06-03, got %#v", messages)
	}
}

func TestNewShiftClosedPublisherRequiresTopic(t *testing.T) {
	if _, err := NewShiftClosedPublisher(nil); err == nil {
		t.Fatal("expected error for nil topic")
	}
}
