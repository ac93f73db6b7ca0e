package models

import "github.com/shopspring/decimal"

type RateTier string

const (
	RateTierLive              RateTier = "LIVE"
	RateTierCache             RateTier = "CACHE"
	RateTierDistanceHeuristic RateTier = "DISTANCE_HEURISTIC"
	RateTierFlatHeuristic     RateTier = "FLAT_HEURISTIC"
)

type RateQuote struct {
	ServiceCode  string          `json:"service_code"`
	ServiceName  string          `json:"service_name"`
	Price        decimal.Decimal `json:"price"`
	LeadTimeDays int             `json:"lead_time_days"`
	IsEstimated  bool            `json:"is_estimated"`
	SourceTier   RateTier        `json:"source_tier"`
	Message      string          `json:"message,omitempty"`
}
