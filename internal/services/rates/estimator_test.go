package rates

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/BearBump/ShipBox/internal/cache/memcache"
	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/models"
)

type stubQuoter struct {
	price    func(ctx context.Context, req carrier.PriceRequest) (*carrier.PriceResult, error)
	deadline func(ctx context.Context, req carrier.DeliveryTimeRequest) (*carrier.DeliveryTimeResult, error)
	lookup   func(ctx context.Context, postal string) (*carrier.PostalCodeInfo, error)

	priceCalls atomic.Int32
}

func (s *stubQuoter) GetPrice(ctx context.Context, req carrier.PriceRequest) (*carrier.PriceResult, error) {
	s.priceCalls.Add(1)
	return s.price(ctx, req)
}

func (s *stubQuoter) GetDeliveryTime(ctx context.Context, req carrier.DeliveryTimeRequest) (*carrier.DeliveryTimeResult, error) {
	if s.deadline == nil {
		return nil, carrier.NetworkError("deadline", context.DeadlineExceeded)
	}
	return s.deadline(ctx, req)
}

func (s *stubQuoter) LookupPostalCode(ctx context.Context, postal string) (*carrier.PostalCodeInfo, error) {
	if s.lookup == nil {
		return nil, carrier.NetworkError("lookup postal code", context.DeadlineExceeded)
	}
	return s.lookup(ctx, postal)
}

func fixedPrices(prices map[string]string) func(context.Context, carrier.PriceRequest) (*carrier.PriceResult, error) {
	return func(_ context.Context, req carrier.PriceRequest) (*carrier.PriceResult, error) {
		return &carrier.PriceResult{ServiceCode: req.ServiceCode, Price: decimal.RequireFromString(prices[req.ServiceCode])}, nil
	}
}

func blockUntilDone(ctx context.Context, _ carrier.PriceRequest) (*carrier.PriceResult, error) {
	<-ctx.Done()
	return nil, carrier.NetworkError("price", ctx.Err())
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestEstimate_LiveThenCache(t *testing.T) {
	q := &stubQuoter{
		price: fixedPrices(map[string]string{"03298": "23.45", "03220": "41.90"}),
		deadline: func(_ context.Context, req carrier.DeliveryTimeRequest) (*carrier.DeliveryTimeResult, error) {
			return &carrier.DeliveryTimeResult{ServiceCode: req.ServiceCode, Days: map[string]int{"03298": 6, "03220": 2}[req.ServiceCode]}, nil
		},
	}
	c := memcache.New()
	est := New(q, c, Config{}, nil)

	quotes := est.Estimate(context.Background(), "01310-100", "80010-000", 1.2, dec("150"))
	require.Len(t, quotes, 2)
	require.Equal(t, "03298", quotes[0].ServiceCode)
	require.Equal(t, "PAC", quotes[0].ServiceName)
	require.True(t, quotes[0].Price.Equal(dec("23.45")))
	require.Equal(t, 6, quotes[0].LeadTimeDays)
	require.Equal(t, models.RateTierLive, quotes[0].SourceTier)
	require.Equal(t, "03220", quotes[1].ServiceCode)
	require.Equal(t, 2, quotes[1].LeadTimeDays)
	require.False(t, quotes[1].IsEstimated)
	require.Equal(t, 1, c.Len())

	again := est.Estimate(context.Background(), "01310100", "80010000", 1.2, dec("150.00"))
	require.Len(t, again, 2)
	for _, qt := range again {
		require.Equal(t, models.RateTierCache, qt.SourceTier)
	}
	require.True(t, again[0].Price.Equal(dec("23.45")))
	require.EqualValues(t, 2, q.priceCalls.Load(), "cache hit must not reach the carrier")
}

func TestEstimate_LiveSendsPackageAndWeight(t *testing.T) {
	var got carrier.PriceRequest
	q := &stubQuoter{price: func(_ context.Context, req carrier.PriceRequest) (*carrier.PriceResult, error) {
		if req.ServiceCode == "03298" {
			got = req
		}
		return &carrier.PriceResult{ServiceCode: req.ServiceCode, Price: dec("10")}, nil
	}}
	cfg := Config{}
	cfg.Packaging.FormatCode = "2"
	cfg.Packaging.Height, cfg.Packaging.Width, cfg.Packaging.Length = 10, 15, 20
	est := New(q, nil, cfg, nil)

	quotes := est.Estimate(context.Background(), "01310-100", "20040-002", 0.05, decimal.Zero)
	require.Len(t, quotes, 2)
	require.Equal(t, 300, got.WeightGrams)
	require.Equal(t, "01310100", got.OriginPostal)
	require.Equal(t, "20040002", got.DestPostal)
	require.Equal(t, 20, got.Length)
	require.Equal(t, 8, quotes[0].LeadTimeDays, "missing deadline falls back to the flat lead time")
}

func TestEstimate_CarrierErrorFlagDropsEntry(t *testing.T) {
	q := &stubQuoter{price: func(_ context.Context, req carrier.PriceRequest) (*carrier.PriceResult, error) {
		if req.ServiceCode == "03220" {
			return &carrier.PriceResult{ServiceCode: req.ServiceCode, Error: "Serviço indisponível para o trecho"}, nil
		}
		return &carrier.PriceResult{ServiceCode: req.ServiceCode, Price: dec("19.80")}, nil
	}}
	quotes := New(q, nil, Config{}, nil).Estimate(context.Background(), "01310100", "69005010", 2, decimal.Zero)
	require.Len(t, quotes, 1)
	require.Equal(t, "03298", quotes[0].ServiceCode)
	require.Equal(t, models.RateTierLive, quotes[0].SourceTier)
}

func TestEstimate_BothServicesTimeOut(t *testing.T) {
	q := &stubQuoter{price: blockUntilDone}
	c := memcache.New()
	est := New(q, c, Config{LiveTimeout: 20 * time.Millisecond}, nil)

	start := time.Now()
	quotes := est.Estimate(context.Background(), "01310-100", "80010-000", 1, dec("100"))
	require.Less(t, time.Since(start), 2*time.Second)

	require.NotEmpty(t, quotes)
	for _, qt := range quotes {
		require.True(t, qt.IsEstimated)
		require.Equal(t, models.RateTierDistanceHeuristic, qt.SourceTier)
		require.NotEmpty(t, qt.Message)
	}
	// SP -> PR crosses one region: 12 * 1.7 + 2% of 100
	require.Equal(t, "22.40", quotes[0].Price.StringFixed(2))
	require.Equal(t, 10, quotes[0].LeadTimeDays)
	require.Equal(t, "38.72", quotes[1].Price.StringFixed(2))
	require.Equal(t, 3, quotes[1].LeadTimeDays)
	require.Equal(t, 1, c.Len(), "heuristic results are cached too")
}

func TestEstimate_DistanceLookupsAreBounded(t *testing.T) {
	var lookups atomic.Int32
	q := &stubQuoter{
		price: blockUntilDone,
		lookup: func(ctx context.Context, _ string) (*carrier.PostalCodeInfo, error) {
			lookups.Add(1)
			<-ctx.Done()
			return nil, carrier.NetworkError("lookup postal code", ctx.Err())
		},
	}
	est := New(q, nil, Config{LiveTimeout: 20 * time.Millisecond, LookupTimeout: 50 * time.Millisecond}, nil)

	start := time.Now()
	quotes := est.Estimate(context.Background(), "01310-100", "80010-000", 1, dec("100"))
	require.Less(t, time.Since(start), time.Second)
	require.Equal(t, int32(2), lookups.Load())

	// both states came from the CEP range table
	require.Len(t, quotes, 2)
	require.Equal(t, models.RateTierDistanceHeuristic, quotes[0].SourceTier)
	require.Equal(t, "22.40", quotes[0].Price.StringFixed(2))
}

func TestEstimate_DistanceUsesCarrierState(t *testing.T) {
	q := &stubQuoter{
		price: func(context.Context, carrier.PriceRequest) (*carrier.PriceResult, error) {
			return nil, carrier.FromStatus("price", 503, "")
		},
		lookup: func(_ context.Context, postal string) (*carrier.PostalCodeInfo, error) {
			return &carrier.PostalCodeInfo{PostalCode: postal, State: "SP"}, nil
		},
	}
	quotes := New(q, nil, Config{}, nil).Estimate(context.Background(), "01310100", "99999999", 0.5, decimal.Zero)
	require.Len(t, quotes, 2)
	require.Equal(t, "8.50", quotes[0].Price.StringFixed(2))
	require.Equal(t, 6, quotes[0].LeadTimeDays)
	require.Equal(t, 2, quotes[1].LeadTimeDays)
}

func TestEstimate_FlatWhenDistanceFails(t *testing.T) {
	q := &stubQuoter{price: blockUntilDone}
	quotes := New(q, nil, Config{LiveTimeout: 10 * time.Millisecond}, nil).
		Estimate(context.Background(), "01310100", "80010000", 0, decimal.Zero)
	require.Len(t, quotes, 2)
	require.Equal(t, models.RateTierFlatHeuristic, quotes[0].SourceTier)
	require.Equal(t, "12.90", quotes[0].Price.StringFixed(2))
	require.Equal(t, 8, quotes[0].LeadTimeDays)
	require.Equal(t, "23.22", quotes[1].Price.StringFixed(2))
	require.Equal(t, 3, quotes[1].LeadTimeDays)
	require.True(t, quotes[1].IsEstimated)
}

func TestEstimate_NoCarrier(t *testing.T) {
	quotes := New(nil, nil, Config{}, nil).Estimate(context.Background(), "x", "y", 3, decimal.Zero)
	require.Len(t, quotes, 2)
	require.Equal(t, models.RateTierDistanceHeuristic, quotes[0].SourceTier)
}

type tierCounter map[string]int

func (t tierCounter) RecordRateTier(tier string) { t[tier]++ }

func TestEstimate_RecordsTier(t *testing.T) {
	q := &stubQuoter{price: fixedPrices(map[string]string{"03298": "1", "03220": "2"})}
	m := tierCounter{}
	est := New(q, memcache.New(), Config{}, nil).WithMetrics(m)
	est.Estimate(context.Background(), "01310100", "80010000", 1, decimal.Zero)
	est.Estimate(context.Background(), "01310100", "80010000", 1, decimal.Zero)
	require.Equal(t, tierCounter{"LIVE": 1, "CACHE": 1}, m)
}

func TestStateFromRange(t *testing.T) {
	cases := map[string]string{
		"01310-100": "SP",
		"20040-002": "RJ",
		"30130-010": "MG",
		"70040-010": "DF",
		"74000-000": "GO",
		"69900-000": "AC",
		"88010-000": "SC",
		"90010-000": "RS",
	}
	for cep, want := range cases {
		got, ok := stateFromRange(cep)
		require.True(t, ok, cep)
		require.Equal(t, want, got, cep)
	}
	_, ok := stateFromRange("1234")
	require.False(t, ok)
	_, ok = stateFromRange("00000-000")
	require.False(t, ok)
}

func TestDistanceMultiplier(t *testing.T) {
	require.Equal(t, 1.0, distanceMultiplier("SP", "SP"))
	require.Equal(t, 1.3, distanceMultiplier("SP", "RJ"))
	require.Equal(t, 1.7, distanceMultiplier("SP", "PR"))
	require.Equal(t, 2.2, distanceMultiplier("RS", "AM"))
	require.Equal(t, distanceMultiplier("BA", "RS"), distanceMultiplier("RS", "BA"))
}
