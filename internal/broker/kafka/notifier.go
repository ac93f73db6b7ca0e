package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/BearBump/ShipBox/internal/broker/messages"
	"github.com/BearBump/ShipBox/internal/models"
)

type publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// StatusNotifier publishes shipment state changes keyed by order id, so all
// changes of one order land on the same partition.
type StatusNotifier struct {
	p     publisher
	topic string
	now   func() time.Time
}

func NewStatusNotifier(p publisher, topic string) *StatusNotifier {
	if topic == "" {
		topic = messages.TopicShipmentStatusChanged
	}
	return &StatusNotifier{p: p, topic: topic, now: time.Now}
}

func (n *StatusNotifier) Publish(ctx context.Context, orderID string, status models.ShipmentState, snap models.TrackingSnapshot) error {
	msg := messages.ShipmentStatusChanged{
		MessageID:    uuid.NewString(),
		OrderID:      orderID,
		TrackingCode: snap.TrackingCode,
		Status:       string(status),
		Location:     snap.Location,
		OccurredAt:   n.now().UTC(),
		LastEvent:    toMessageEvent(snap.LastEvent),
	}
	for _, e := range snap.Events {
		msg.Events = append(msg.Events, toMessageEvent(e))
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal status change")
	}
	return n.p.Publish(ctx, n.topic, []byte(orderID), b)
}

func toMessageEvent(e models.TrackingEvent) messages.TrackingEvent {
	return messages.TrackingEvent{
		Code:        e.Code,
		Description: e.Description,
		Location:    e.Location,
		EventTime:   e.EventTime.UTC(),
	}
}
