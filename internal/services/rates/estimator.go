// Package rates estimates shipping price and lead time through an ordered
// fallback chain: cache, live carrier quote, distance heuristic and a flat
// table that always answers.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BearBump/ShipBox/internal/cache"
	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/label"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/BearBump/ShipBox/internal/textnorm"
)

const (
	DefaultCacheTTL      = 30 * time.Minute
	DefaultLiveTimeout   = 10 * time.Second
	DefaultLookupTimeout = 3 * time.Second
)

// Quoter is the part of the carrier client the estimator needs.
type Quoter interface {
	GetPrice(ctx context.Context, req carrier.PriceRequest) (*carrier.PriceResult, error)
	GetDeliveryTime(ctx context.Context, req carrier.DeliveryTimeRequest) (*carrier.DeliveryTimeResult, error)
	LookupPostalCode(ctx context.Context, postalCode string) (*carrier.PostalCodeInfo, error)
}

type Metrics interface {
	RecordRateTier(tier string)
}

// ServiceLevel is one supported shipping option.
type ServiceLevel struct {
	Code    string
	Name    string
	Express bool
}

func DefaultServices() []ServiceLevel {
	return []ServiceLevel{
		{Code: "03298", Name: "PAC"},
		{Code: "03220", Name: "SEDEX", Express: true},
	}
}

type Config struct {
	Services    []ServiceLevel
	Packaging   label.Packaging
	CacheTTL    time.Duration
	LiveTimeout time.Duration
	// LookupTimeout bounds both CEP lookups of the distance tier together.
	LookupTimeout time.Duration
}

type Estimator struct {
	quoter  Quoter
	cache   cache.BytesCache
	cfg     Config
	metrics Metrics
	log     *zap.Logger
}

func New(quoter Quoter, c cache.BytesCache, cfg Config, log *zap.Logger) *Estimator {
	if log == nil {
		log = zap.NewNop()
	}
	if len(cfg.Services) == 0 {
		cfg.Services = DefaultServices()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.LiveTimeout <= 0 {
		cfg.LiveTimeout = DefaultLiveTimeout
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}
	return &Estimator{quoter: quoter, cache: c, cfg: cfg, log: log}
}

func (e *Estimator) WithMetrics(m Metrics) *Estimator {
	e.metrics = m
	return e
}

type query struct {
	origin, dest  string
	weightKg      float64
	declaredValue decimal.Decimal
}

func (q query) cacheKey() string {
	return fmt.Sprintf("rates:%s:%s:%.3f:%s", q.origin, q.dest, q.weightKg, q.declaredValue.StringFixed(2))
}

type tier struct {
	name  models.RateTier
	quote func(ctx context.Context, q query) ([]models.RateQuote, error)
}

func (e *Estimator) tiers() []tier {
	return []tier{
		{name: models.RateTierLive, quote: e.live},
		{name: models.RateTierDistanceHeuristic, quote: e.distance},
		{name: models.RateTierFlatHeuristic, quote: e.flat},
	}
}

// Estimate returns at least one quote per call. Carrier failures and
// timeouts only move the lookup down the chain.
func (e *Estimator) Estimate(ctx context.Context, origin, dest string, weightKg float64, declaredValue decimal.Decimal) []models.RateQuote {
	q := query{
		origin:        textnorm.Digits(origin),
		dest:          textnorm.Digits(dest),
		weightKg:      weightKg,
		declaredValue: declaredValue,
	}
	log := e.log.With(zap.String("origin", q.origin), zap.String("destination", q.dest))

	if quotes, ok := e.fromCache(ctx, q); ok {
		e.record(models.RateTierCache)
		return quotes
	}

	for _, t := range e.tiers() {
		quotes, err := t.quote(ctx, q)
		if err != nil {
			log.Warn("rate tier failed", zap.String("tier", string(t.name)), zap.Error(err))
			continue
		}
		if len(quotes) == 0 {
			log.Warn("rate tier returned no options", zap.String("tier", string(t.name)))
			continue
		}
		e.store(ctx, q, quotes)
		e.record(t.name)
		return quotes
	}
	// flat never fails; reached only with no services configured
	return nil
}

func (e *Estimator) fromCache(ctx context.Context, q query) ([]models.RateQuote, bool) {
	if e.cache == nil {
		return nil, false
	}
	raw, ok, err := e.cache.Get(ctx, q.cacheKey())
	if err != nil {
		e.log.Warn("rate cache read", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var quotes []models.RateQuote
	if err := json.Unmarshal(raw, &quotes); err != nil || len(quotes) == 0 {
		return nil, false
	}
	for i := range quotes {
		quotes[i].SourceTier = models.RateTierCache
	}
	return quotes, true
}

func (e *Estimator) store(ctx context.Context, q query, quotes []models.RateQuote) {
	if e.cache == nil {
		return
	}
	raw, err := json.Marshal(quotes)
	if err != nil {
		return
	}
	if err := e.cache.Set(ctx, q.cacheKey(), raw, e.cfg.CacheTTL); err != nil {
		e.log.Warn("rate cache write", zap.Error(err))
	}
}

func (e *Estimator) record(t models.RateTier) {
	if e.metrics != nil {
		e.metrics.RecordRateTier(string(t))
	}
}

// live asks the carrier for price and deadline of every service at once,
// bounded by LiveTimeout overall.
func (e *Estimator) live(ctx context.Context, q query) ([]models.RateQuote, error) {
	if e.quoter == nil {
		return nil, errors.New("no carrier configured")
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.LiveTimeout)
	defer cancel()

	grams := label.ShipmentRequest{WeightKg: q.weightKg}.WeightGrams()
	prices := make([]*carrier.PriceResult, len(e.cfg.Services))
	deadlines := make([]*carrier.DeliveryTimeResult, len(e.cfg.Services))
	var (
		mu      sync.Mutex
		lastErr error
	)
	keep := func(err error) {
		mu.Lock()
		lastErr = err
		mu.Unlock()
	}

	var g errgroup.Group
	for i, svc := range e.cfg.Services {
		g.Go(func() error {
			res, err := e.quoter.GetPrice(ctx, carrier.PriceRequest{
				ServiceCode:   svc.Code,
				OriginPostal:  q.origin,
				DestPostal:    q.dest,
				WeightGrams:   grams,
				FormatCode:    e.cfg.Packaging.FormatCode,
				Length:        e.cfg.Packaging.Length,
				Width:         e.cfg.Packaging.Width,
				Height:        e.cfg.Packaging.Height,
				DeclaredValue: q.declaredValue,
			})
			if err != nil {
				keep(errors.Wrapf(err, "price %s", svc.Code))
				return nil
			}
			prices[i] = res
			return nil
		})
		g.Go(func() error {
			res, err := e.quoter.GetDeliveryTime(ctx, carrier.DeliveryTimeRequest{
				ServiceCode:  svc.Code,
				OriginPostal: q.origin,
				DestPostal:   q.dest,
			})
			if err != nil {
				keep(errors.Wrapf(err, "deadline %s", svc.Code))
				return nil
			}
			deadlines[i] = res
			return nil
		})
	}
	_ = g.Wait()

	var quotes []models.RateQuote
	for i, svc := range e.cfg.Services {
		p := prices[i]
		if p == nil {
			continue
		}
		if p.Error != "" {
			e.log.Warn("carrier refused price", zap.String("service", svc.Code), zap.String("carrier_error", p.Error))
			continue
		}
		days := flatLeadTime(svc)
		if d := deadlines[i]; d != nil && d.Error == "" && d.Days > 0 {
			days = d.Days
		}
		quotes = append(quotes, models.RateQuote{
			ServiceCode:  svc.Code,
			ServiceName:  svc.Name,
			Price:        p.Price.Round(2),
			LeadTimeDays: days,
			SourceTier:   models.RateTierLive,
		})
	}
	if len(quotes) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return quotes, nil
}

var (
	distancePerKg  = decimal.NewFromInt(12)
	distanceMin    = decimal.RequireFromString("8.50")
	valueSurcharge = decimal.RequireFromString("0.02")
	flatPerKg      = decimal.NewFromInt(15)
	flatMin        = decimal.RequireFromString("12.90")
	expressFactor  = decimal.RequireFromString("1.8")
)

// resolveState never fails: carrier lookup, then CEP range, then the default.
func (e *Estimator) resolveState(ctx context.Context, postal string) string {
	if e.quoter != nil {
		info, err := e.quoter.LookupPostalCode(ctx, postal)
		if err == nil && info != nil && len(info.State) == 2 {
			return info.State
		}
		if err != nil {
			e.log.Debug("postal code lookup failed", zap.String("postal_code", postal), zap.Error(err))
		}
	}
	if st, ok := stateFromRange(postal); ok {
		return st
	}
	return fallbackState
}

// resolveStates looks both CEPs up concurrently under LookupTimeout.
func (e *Estimator) resolveStates(ctx context.Context, origin, dest string) (string, string) {
	lctx, cancel := context.WithTimeout(ctx, e.cfg.LookupTimeout)
	defer cancel()

	var from, to string
	g, gctx := errgroup.WithContext(lctx)
	g.Go(func() error {
		from = e.resolveState(gctx, origin)
		return nil
	})
	g.Go(func() error {
		to = e.resolveState(gctx, dest)
		return nil
	})
	_ = g.Wait()
	return from, to
}

func (e *Estimator) distance(ctx context.Context, q query) ([]models.RateQuote, error) {
	if math.IsNaN(q.weightKg) || q.weightKg <= 0 {
		return nil, errors.Errorf("invalid weight %v", q.weightKg)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	from, to := e.resolveStates(ctx, q.origin, q.dest)
	mult := distanceMultiplier(from, to)

	base := decimal.Max(decimal.NewFromFloat(q.weightKg).Mul(distancePerKg), distanceMin).
		Mul(decimal.NewFromFloat(mult))
	surcharge := q.declaredValue.Mul(valueSurcharge)
	if surcharge.IsNegative() {
		surcharge = decimal.Zero
	}

	quotes := make([]models.RateQuote, 0, len(e.cfg.Services))
	for _, svc := range e.cfg.Services {
		price := base
		lo, hi, baseDays := 3, 15, 6.0
		if svc.Express {
			price = price.Mul(expressFactor)
			lo, hi, baseDays = 1, 7, 2.0
		}
		days := min(max(int(math.Round(baseDays*mult)), lo), hi)
		quotes = append(quotes, models.RateQuote{
			ServiceCode:  svc.Code,
			ServiceName:  svc.Name,
			Price:        price.Add(surcharge).Round(2),
			LeadTimeDays: days,
			IsEstimated:  true,
			SourceTier:   models.RateTierDistanceHeuristic,
			Message:      fmt.Sprintf("estimated from distance %s to %s; carrier quote unavailable", from, to),
		})
	}
	return quotes, nil
}

func flatLeadTime(svc ServiceLevel) int {
	if svc.Express {
		return 3
	}
	return 8
}

func (e *Estimator) flat(_ context.Context, q query) ([]models.RateQuote, error) {
	w := q.weightKg
	if math.IsNaN(w) || w < 0 {
		w = 0
	}
	base := decimal.Max(decimal.NewFromFloat(w).Mul(flatPerKg), flatMin)
	quotes := make([]models.RateQuote, 0, len(e.cfg.Services))
	for _, svc := range e.cfg.Services {
		price := base
		if svc.Express {
			price = price.Mul(expressFactor)
		}
		quotes = append(quotes, models.RateQuote{
			ServiceCode:  svc.Code,
			ServiceName:  svc.Name,
			Price:        price.Round(2),
			LeadTimeDays: flatLeadTime(svc),
			IsEstimated:  true,
			SourceTier:   models.RateTierFlatHeuristic,
			Message:      "flat estimate; carrier quote unavailable",
		})
	}
	return quotes, nil
}
