// Package fulfillment turns a paid order into a carrier label: address
// normalization, payload validation, the carrier call and persistence of the
// tracking code. A label is created at most once per order.
package fulfillment

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BearBump/ShipBox/internal/address"
	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/keylock"
	"github.com/BearBump/ShipBox/internal/label"
	"github.com/BearBump/ShipBox/internal/models"
)

var (
	ErrLabelAlreadyCreated = errors.New("label already created for order")
	ErrOrderCanceled       = errors.New("order is canceled")
)

type Repository interface {
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	// SaveLabel must refuse to overwrite an existing tracking code.
	SaveLabel(ctx context.Context, res models.LabelResult, status models.OrderStatus) error
}

type Carrier interface {
	CreateLabel(ctx context.Context, payload *carrier.LabelPayload) (*carrier.LabelResponse, error)
	GetPrice(ctx context.Context, req carrier.PriceRequest) (*carrier.PriceResult, error)
	GetDeliveryTime(ctx context.Context, req carrier.DeliveryTimeRequest) (*carrier.DeliveryTimeResult, error)
}

type Metrics interface {
	RecordLabel(result string)
}

type Config struct {
	// Origin is the fixed sender address printed on every label.
	Origin         models.StructuredAddress
	DefaultService string
	Packaging      label.Packaging
	// QuoteTimeout bounds the best-effort postage and deadline lookup.
	QuoteTimeout time.Duration
}

type Service struct {
	repo       Repository
	carrier    Carrier
	normalizer *address.Normalizer
	builder    *label.Builder
	cfg        Config
	locks      *keylock.Mutex
	metrics    Metrics
	log        *zap.Logger
}

func New(repo Repository, c Carrier, builder *label.Builder, cfg Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = 10 * time.Second
	}
	return &Service{
		repo:       repo,
		carrier:    c,
		normalizer: address.New(),
		builder:    builder,
		cfg:        cfg,
		locks:      keylock.New(),
		log:        log,
	}
}

func (s *Service) WithMetrics(m Metrics) *Service {
	s.metrics = m
	return s
}

// CreateLabel registers the order's shipment with the carrier and stores the
// tracking code. Validation failures are returned as label.ValidationErrors
// before any network call.
func (s *Service) CreateLabel(ctx context.Context, orderID string) (*models.LabelResult, error) {
	if orderID == "" {
		return nil, errors.New("order id is required")
	}
	unlock := s.locks.Lock(orderID)
	defer unlock()

	log := s.log.With(zap.String("order_id", orderID))

	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if o.TrackingCode != "" {
		s.record("duplicate")
		return nil, ErrLabelAlreadyCreated
	}
	if o.Status == models.OrderStatusCanceled {
		return nil, ErrOrderCanceled
	}

	dest := s.destination(o, log)
	service := o.ServiceCode
	if service == "" {
		service = s.cfg.DefaultService
	}
	req := label.ShipmentRequest{
		OrderID:       o.ID,
		Origin:        s.cfg.Origin,
		Destination:   dest,
		WeightKg:      o.WeightKg,
		DeclaredValue: o.DeclaredValue,
		ServiceCode:   service,
	}
	payload, err := s.builder.Build(req)
	if err != nil {
		s.record("invalid")
		log.Warn("label request rejected before carrier call", zap.Error(err))
		return nil, err
	}

	resp, err := s.carrier.CreateLabel(ctx, payload)
	if err != nil {
		s.record("carrier_error")
		return nil, errors.Wrap(err, "create carrier label")
	}

	res := models.LabelResult{OrderID: o.ID, TrackingCode: resp.TrackingCode}
	s.quote(ctx, req, &res, log)

	if err := s.repo.SaveLabel(ctx, res, models.OrderStatusLabelCreated); err != nil {
		// the carrier already holds this label; keep the code in the log for recovery
		log.Error("label created but not persisted",
			zap.String("tracking_code", res.TrackingCode), zap.Error(err))
		s.record("persist_error")
		return nil, errors.Wrap(err, "save label")
	}

	s.record("created")
	log.Info("label created", zap.String("tracking_code", res.TrackingCode))
	return &res, nil
}

// destination prefers the discrete storefront fields and falls back to the
// free-text line. Customer contact data fills what the address lacks.
func (s *Service) destination(o *models.Order, log *zap.Logger) models.StructuredAddress {
	in := address.FromText(o.ShippingAddress)
	if o.ShippingFields != nil {
		in.Partial = o.ShippingFields
	}
	res := s.normalizer.Parse(in, o.CustomerName)
	if res.Degraded() {
		log.Warn("address parsed with low confidence",
			zap.String("strategy", res.Strategy), zap.Strings("degradations", res.Degradations))
	}

	a := res.Address
	if a.Document == "" {
		a.Document = o.CustomerDocument
	}
	if a.Phone == "" {
		a.Phone = o.CustomerPhone
	}
	if a.Email == "" {
		a.Email = o.CustomerEmail
	}
	return a
}

// quote fills postage and ETA. Failures leave the fields empty.
func (s *Service) quote(ctx context.Context, req label.ShipmentRequest, res *models.LabelResult, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QuoteTimeout)
	defer cancel()

	origin := req.Origin.PostalCode
	dest := req.Destination.PostalCode
	var g errgroup.Group
	g.Go(func() error {
		p, err := s.carrier.GetPrice(ctx, carrier.PriceRequest{
			ServiceCode:   req.ServiceCode,
			OriginPostal:  origin,
			DestPostal:    dest,
			WeightGrams:   req.WeightGrams(),
			FormatCode:    s.cfg.Packaging.FormatCode,
			Length:        s.cfg.Packaging.Length,
			Width:         s.cfg.Packaging.Width,
			Height:        s.cfg.Packaging.Height,
			DeclaredValue: req.DeclaredValue,
		})
		switch {
		case err != nil:
			log.Warn("postage lookup failed", zap.Error(err))
		case p.Error != "":
			log.Warn("postage lookup refused", zap.String("carrier_error", p.Error))
		default:
			res.PostageValue = p.Price
		}
		return nil
	})
	g.Go(func() error {
		d, err := s.carrier.GetDeliveryTime(ctx, carrier.DeliveryTimeRequest{
			ServiceCode:  req.ServiceCode,
			OriginPostal: origin,
			DestPostal:   dest,
		})
		switch {
		case err != nil:
			log.Warn("delivery time lookup failed", zap.Error(err))
		case d.Error != "":
			log.Warn("delivery time lookup refused", zap.String("carrier_error", d.Error))
		case d.Deadline != nil:
			eta := d.Deadline.UTC()
			res.EstimatedDelivery = &eta
		case d.Days > 0:
			eta := time.Now().UTC().AddDate(0, 0, d.Days).Truncate(24 * time.Hour)
			res.EstimatedDelivery = &eta
		}
		return nil
	})
	_ = g.Wait()
}

func (s *Service) record(result string) {
	if s.metrics != nil {
		s.metrics.RecordLabel(result)
	}
}
