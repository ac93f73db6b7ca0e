package models

import "time"

// ShipmentState is derived from the newest tracking event only.
type ShipmentState string

const (
	ShipmentStateProcessing     ShipmentState = "PROCESSING"
	ShipmentStateShipped        ShipmentState = "SHIPPED"
	ShipmentStateInTransit      ShipmentState = "IN_TRANSIT"
	ShipmentStateOutForDelivery ShipmentState = "OUT_FOR_DELIVERY"
	ShipmentStateDelivered      ShipmentState = "DELIVERED"
)

func (s ShipmentState) OrderStatus() OrderStatus {
	return OrderStatus(s)
}

// TrackingEvent rows are append-only. (OrderID, EventTime, Description) is the
// natural dedup key.
type TrackingEvent struct {
	ID          uint64
	OrderID     string
	Code        string
	Type        string
	Location    string
	Description string
	EventTime   time.Time
	CreatedAt   time.Time
}

func (e TrackingEvent) DedupKey() string {
	return e.OrderID + "|" + e.EventTime.UTC().Format(time.RFC3339Nano) + "|" + e.Description
}

// TrackingSnapshot is what status change notifications carry.
type TrackingSnapshot struct {
	TrackingCode string
	Status       ShipmentState
	Location     string
	LastEvent    TrackingEvent
	// Events of the current carrier answer, newest first.
	Events []TrackingEvent
}
