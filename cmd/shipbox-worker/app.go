package main

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BearBump/ShipBox/config"
	"github.com/BearBump/ShipBox/internal/broker/kafka"
	"github.com/BearBump/ShipBox/internal/cache"
	"github.com/BearBump/ShipBox/internal/cache/memcache"
	"github.com/BearBump/ShipBox/internal/cache/rediscache"
	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/integrations/carrier/correios"
	"github.com/BearBump/ShipBox/internal/integrations/carrier/fake"
	"github.com/BearBump/ShipBox/internal/label"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/BearBump/ShipBox/internal/services/fulfillment"
	"github.com/BearBump/ShipBox/internal/services/rates"
	"github.com/BearBump/ShipBox/internal/services/reconciler"
	"github.com/BearBump/ShipBox/internal/storage/pgorders"
	"github.com/BearBump/ShipBox/internal/telemetry"
)

// Storage is everything the worker needs from persistence.
type Storage interface {
	reconciler.Repository
	fulfillment.Repository
	Ping(ctx context.Context) error
}

type publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type orderConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
	Close() error
}

type workerFactories struct {
	newStorage       func(ctx context.Context, cfg *config.Config) (Storage, func(), error)
	newCache         func(cfg *config.Config) (cache.BytesCache, func())
	newRateLimiter   func(cfg *config.Config) (reconciler.RateLimiter, func())
	newProducer      func(cfg *config.Config) (publisher, func())
	newConsumer      func(cfg *config.Config) orderConsumer
	newCarrierClient func(cfg *config.Config, c cache.BytesCache, m *telemetry.Metrics, log *zap.Logger) (carrier.Client, error)
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(ctx context.Context, cfg *config.Config) (Storage, func(), error) {
			st, err := pgorders.New(ctx, cfg.Database.ConnString())
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newCache: func(cfg *config.Config) (cache.BytesCache, func()) {
			if cfg.Redis.Disabled() {
				return memcache.New(), func() {}
			}
			rc := rediscache.New(cfg.Redis.Addr())
			return rc, func() { _ = rc.Close() }
		},
		newRateLimiter: func(cfg *config.Config) (reconciler.RateLimiter, func()) {
			if cfg.Redis.Disabled() || cfg.Reconciler.CarrierBatchesPerMinute <= 0 {
				return nil, func() {}
			}
			rl := rediscache.NewRateLimiter(cfg.Redis.Addr())
			return rl, func() { _ = rl.Close() }
		},
		newProducer: func(cfg *config.Config) (publisher, func()) {
			if cfg.Kafka.Disabled() {
				return nil, func() {}
			}
			p := kafka.NewProducer(cfg.Kafka.Brokers())
			return p, func() { _ = p.Close() }
		},
		newConsumer: func(cfg *config.Config) orderConsumer {
			if cfg.Kafka.Disabled() {
				return nil
			}
			return kafka.NewConsumer(cfg.Kafka.Brokers(), cfg.Kafka.OrderPlacedTopicName, cfg.Kafka.ConsumerGroup)
		},
		newCarrierClient: newCarrierClient,
	}
}

func newCarrierClient(cfg *config.Config, c cache.BytesCache, m *telemetry.Metrics, log *zap.Logger) (carrier.Client, error) {
	switch cfg.Carrier.Mode {
	case "fake":
		return fake.New(), nil
	case "correios":
	default:
		return nil, errors.Errorf("unknown carrier mode %q", cfg.Carrier.Mode)
	}
	if cfg.Carrier.ClientID == "" || cfg.Carrier.ClientSecret == "" {
		return nil, errors.New("carrier client id and secret are required")
	}

	ccfg := correios.Config{
		Environment:      correios.Environment(cfg.Carrier.Environment),
		BaseURL:          cfg.Carrier.BaseURL,
		ClientID:         cfg.Carrier.ClientID,
		ClientSecret:     cfg.Carrier.ClientSecret,
		PostageCard:      cfg.Carrier.PostageCard,
		Timeout:          time.Duration(cfg.Carrier.TimeoutSeconds) * time.Second,
		LabelTimeout:     time.Duration(cfg.Carrier.LabelTimeoutSeconds) * time.Second,
		MaxRetries:       uint64(cfg.Carrier.MaxRetries),
		BatchConcurrency: cfg.Carrier.BatchConcurrency,
	}
	httpc := &http.Client{}
	auth := correios.NewAuthenticator(ccfg, correios.NewCacheTokenStore(c, ""), httpc, log).WithObserver(m)
	return correios.New(ccfg, auth, httpc, log).WithObserver(m), nil
}

// components is the wired engine. Close releases everything that was opened.
type components struct {
	cfg      *config.Config
	log      *zap.Logger
	registry *prometheus.Registry
	metrics  *telemetry.Metrics

	store       Storage
	carrier     carrier.Client
	reconciler  *reconciler.Reconciler
	fulfillment *fulfillment.Service
	rates       *rates.Estimator
	consumer    orderConsumer

	closers []func()
}

func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// buildComponents wires the engine. Storage is skipped when withStorage is
// false, which is enough for rate estimation.
func buildComponents(ctx context.Context, cfg *config.Config, f workerFactories, log *zap.Logger, withStorage bool) (_ *components, err error) {
	reg := prometheus.NewRegistry()
	c := &components{cfg: cfg, log: log, registry: reg, metrics: telemetry.NewMetrics(reg)}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	bc, closeCache := f.newCache(cfg)
	c.closers = append(c.closers, closeCache)

	if c.carrier, err = f.newCarrierClient(cfg, bc, c.metrics, log); err != nil {
		return nil, err
	}

	services := []rates.ServiceLevel{
		{Code: cfg.Carrier.PACServiceCode, Name: "PAC"},
		{Code: cfg.Carrier.SEDEXServiceCode, Name: "SEDEX", Express: true},
	}
	packaging := label.Packaging{
		FormatCode: cfg.Packaging.FormatCode,
		Height:     cfg.Packaging.HeightCm,
		Width:      cfg.Packaging.WidthCm,
		Length:     cfg.Packaging.LengthCm,
	}
	c.rates = rates.New(c.carrier, bc, rates.Config{
		Services:      services,
		Packaging:     packaging,
		CacheTTL:      time.Duration(cfg.Rates.CacheTTLSeconds) * time.Second,
		LiveTimeout:   time.Duration(cfg.Rates.LiveTimeoutSeconds) * time.Second,
		LookupTimeout: time.Duration(cfg.Rates.LookupTimeoutSeconds) * time.Second,
	}, log.Named("rates")).WithMetrics(c.metrics)

	if !withStorage {
		return c, nil
	}

	store, closeStore, err := f.newStorage(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "open storage")
	}
	if closeStore != nil {
		c.closers = append(c.closers, closeStore)
	}
	c.store = store

	var notifier reconciler.Notifier
	if p, closeProducer := f.newProducer(cfg); p != nil {
		c.closers = append(c.closers, closeProducer)
		notifier = kafka.NewStatusNotifier(p, cfg.Kafka.StatusChangedTopicName)
	}

	c.reconciler = reconciler.New(store, c.carrier, notifier, log.Named("reconciler")).
		WithSettings(cfg.Reconciler.Interval(), cfg.Reconciler.BatchSize).
		WithMetrics(c.metrics)
	if rl, closeRL := f.newRateLimiter(cfg); rl != nil {
		c.closers = append(c.closers, closeRL)
		c.reconciler.WithRateLimit(rl, cfg.Reconciler.CarrierBatchesPerMinute)
	}

	builder := label.NewBuilder(label.Config{
		Packaging:          packaging,
		ContentDescription: cfg.Packaging.ContentDescription,
		Services:           []string{cfg.Carrier.PACServiceCode, cfg.Carrier.SEDEXServiceCode},
	})
	c.fulfillment = fulfillment.New(store, c.carrier, builder, fulfillment.Config{
		Origin:         originAddress(cfg.Origin),
		DefaultService: cfg.Carrier.DefaultService,
		Packaging:      packaging,
	}, log.Named("fulfillment")).WithMetrics(c.metrics)

	if cons := f.newConsumer(cfg); cons != nil {
		c.consumer = cons
		c.closers = append(c.closers, func() { _ = cons.Close() })
	}
	return c, nil
}

func originAddress(o config.OriginConfig) models.StructuredAddress {
	return models.StructuredAddress{
		RecipientName: o.Name,
		Street:        o.Street,
		Number:        o.Number,
		Complement:    o.Complement,
		Neighborhood:  o.Neighborhood,
		City:          o.City,
		State:         o.State,
		PostalCode:    o.PostalCode,
		Document:      o.Document,
		Phone:         o.Phone,
		Email:         o.Email,
	}
}

// RunWorker runs the reconciler, the order consumer and the HTTP surface
// until ctx is done or one of them fails.
func RunWorker(ctx context.Context, cfg *config.Config, f workerFactories, log *zap.Logger) error {
	c, err := buildComponents(ctx, cfg, f, log, true)
	if err != nil {
		return err
	}
	defer c.Close()

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Reconciler.IsEnabled() {
		g.Go(func() error {
			return c.reconciler.Run(gctx)
		})
	}
	if c.consumer != nil {
		g.Go(func() error {
			return c.consumer.Consume(gctx, c.fulfillment.OrderPlacedHandler(gctx))
		})
	}
	g.Go(func() error {
		return runWorkerHTTPServer(gctx, workerHTTPOpts{
			httpAddr:    cfg.ShipBox.HTTPAddr,
			swaggerPath: cfg.ShipBox.SwaggerPath,
			c:           c,
		})
	})

	log.Info("shipbox worker started",
		zap.String("http_addr", cfg.ShipBox.HTTPAddr),
		zap.Bool("reconciler", cfg.Reconciler.IsEnabled()),
		zap.Bool("consumer", c.consumer != nil))
	err = g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
