package carrier

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Client is the contract of the postal carrier integration.
type Client interface {
	// CreateLabel registers a shipment. It is not idempotent and is never
	// retried by implementations.
	CreateLabel(ctx context.Context, payload *LabelPayload) (*LabelResponse, error)

	GetTracking(ctx context.Context, code string) (*TrackingResult, error)
	// GetTrackingBatch queries every code concurrently. A failing code only
	// appears in the error map; the rest of the batch is unaffected.
	GetTrackingBatch(ctx context.Context, codes []string) (map[string]*TrackingResult, map[string]error)

	LookupPostalCode(ctx context.Context, postalCode string) (*PostalCodeInfo, error)
	LookupPostalCodes(ctx context.Context, postalCodes []string) ([]PostalCodeInfo, error)

	GetPrice(ctx context.Context, req PriceRequest) (*PriceResult, error)
	GetDeliveryTime(ctx context.Context, req DeliveryTimeRequest) (*DeliveryTimeResult, error)
}

type LabelResponse struct {
	ID           string `json:"id"`
	TrackingCode string `json:"codigoObjeto"`
}

type TrackingEvent struct {
	Code        string
	Type        string
	Description string
	Location    string
	Time        time.Time
}

type TrackingResult struct {
	Code   string
	Events []TrackingEvent
	// Message is the carrier note for unknown or invalid objects.
	Message string
}

type PostalCodeInfo struct {
	PostalCode   string `json:"cep"`
	Street       string `json:"logradouro"`
	Neighborhood string `json:"bairro"`
	City         string `json:"localidade"`
	State        string `json:"uf"`
}

type PriceRequest struct {
	ServiceCode   string
	OriginPostal  string
	DestPostal    string
	WeightGrams   int
	FormatCode    string
	Length        int
	Width         int
	Height        int
	DeclaredValue decimal.Decimal
}

// PriceResult carries the carrier-side error text in Error; callers must
// discard results where it is set.
type PriceResult struct {
	ServiceCode string
	Price       decimal.Decimal
	Error       string
}

type DeliveryTimeRequest struct {
	ServiceCode  string
	OriginPostal string
	DestPostal   string
}

type DeliveryTimeResult struct {
	ServiceCode string
	Days        int
	Deadline    *time.Time
	Error       string
}
