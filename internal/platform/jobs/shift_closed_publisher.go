// Package jobs publishes domain events to Cloud Pub/Sub.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/partshub/api/internal/services"
)

const eventTypeShiftClosed = "shift.closed"

// ShiftClosedPublisher publishes closing events to a Pub/Sub topic. Messages are ordered by
// business date so consumers replay a day's events in sequence.
type ShiftClosedPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.ClosingEventPublisher = (*ShiftClosedPublisher)(nil)

// NewShiftClosedPublisher constructs a Pub/Sub backed closing event publisher.
func NewShiftClosedPublisher(topic *pubsub.Topic) (*ShiftClosedPublisher, error) {
	if topic == nil {
		return nil, errors.New("shift closed publisher: topic is required")
	}
	return &ShiftClosedPublisher{topic: topic, marshal: json.Marshal}, nil
}

// PublishShiftClosed sends the event and waits for the server-assigned message ID.
func (p *ShiftClosedPublisher) PublishShiftClosed(ctx context.Context, event services.ShiftClosedEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("shift closed publisher: not initialised")
	}
	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal shift closed event: %w", err)
	}

	attrs := map[string]string{"eventType": eventTypeShiftClosed}
	setAttr(attrs, "closingId", event.ClosingID)
	setAttr(attrs, "date", event.Date)
	setAttr(attrs, "status", event.Status)

	msg := &pubsub.Message{Data: data, Attributes: attrs}
	if p.topic.EnableMessageOrdering {
		msg.OrderingKey = event.Date
	}
	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		if msg.OrderingKey != "" {
			p.topic.ResumePublish(msg.OrderingKey)
		}
		return "", fmt.Errorf("publish shift closed event: %w", err)
	}
	return id, nil
}

// Stop flushes pending messages.
func (p *ShiftClosedPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
