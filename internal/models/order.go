package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "PENDING"
	OrderStatusPaid           OrderStatus = "PAID"
	OrderStatusLabelCreated   OrderStatus = "LABEL_CREATED"
	OrderStatusProcessing     OrderStatus = "PROCESSING"
	OrderStatusShipped        OrderStatus = "SHIPPED"
	OrderStatusInTransit      OrderStatus = "IN_TRANSIT"
	OrderStatusOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	OrderStatusDelivered      OrderStatus = "DELIVERED"
	OrderStatusCanceled       OrderStatus = "CANCELED"
)

// Closed statuses are never reconciled again.
func (s OrderStatus) Closed() bool {
	return s == OrderStatusDelivered || s == OrderStatusCanceled
}

// Order is the slice of the order record the fulfillment engine reads and writes.
type Order struct {
	ID     string
	Status OrderStatus

	CustomerName     string
	CustomerDocument string
	CustomerPhone    string
	CustomerEmail    string

	// ShippingAddress holds the historical free-text address; ShippingFields
	// is set when the storefront captured discrete fields.
	ShippingAddress string
	ShippingFields  *StructuredAddress

	WeightKg      float64
	DeclaredValue decimal.Decimal
	ServiceCode   string

	TrackingCode      string
	PostageValue      decimal.Decimal
	EstimatedDelivery *time.Time
	CurrentLocation   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LabelResult is what a successful label creation yields.
type LabelResult struct {
	OrderID           string
	TrackingCode      string
	PostageValue      decimal.Decimal
	EstimatedDelivery *time.Time
}
