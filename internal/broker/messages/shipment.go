package messages

import "time"

const (
	TopicShipmentStatusChanged = "shipment.status_changed"
	TopicOrderPlaced           = "order.placed"
)

// ShipmentStatusChanged is published whenever reconciliation moves an order
// to a new shipment state. Consumers dedupe on MessageID.
type ShipmentStatusChanged struct {
	MessageID    string    `json:"message_id"`
	OrderID      string    `json:"order_id"`
	TrackingCode string    `json:"tracking_code"`
	Status       string    `json:"status"`
	Location     string    `json:"location,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`

	LastEvent TrackingEvent   `json:"last_event"`
	Events    []TrackingEvent `json:"events,omitempty"`
}

type TrackingEvent struct {
	Code        string    `json:"code"`
	Description string    `json:"description"`
	Location    string    `json:"location,omitempty"`
	EventTime   time.Time `json:"event_time"`
}

// OrderPlaced asks the engine to create the carrier label for an order.
type OrderPlaced struct {
	OrderID string `json:"order_id"`
}
