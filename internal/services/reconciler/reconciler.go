// Package reconciler runs the recurring tracking reconciliation job: it pulls
// carrier events for every open shipment, persists the new ones, derives the
// shipment state and notifies about changes.
package reconciler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/keylock"
	"github.com/BearBump/ShipBox/internal/models"
)

var (
	ErrCycleInProgress = errors.New("reconciliation cycle already running")
	ErrNoTrackingCode  = errors.New("order has no tracking code")
)

type Repository interface {
	// ListOpenShipments returns orders with a tracking code whose status is
	// neither DELIVERED nor CANCELED.
	ListOpenShipments(ctx context.Context) ([]*models.Order, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	// LastTrackingEvent returns nil when the order has no events yet.
	LastTrackingEvent(ctx context.Context, orderID string) (*models.TrackingEvent, error)
	// InsertTrackingEvents skips events whose dedup key already exists and
	// returns how many rows were written.
	InsertTrackingEvents(ctx context.Context, events []models.TrackingEvent) (int, error)
	UpdateShipmentStatus(ctx context.Context, orderID string, status models.OrderStatus, location string) error
	ListTrackingEvents(ctx context.Context, orderID string) ([]models.TrackingEvent, error)
}

type Tracker interface {
	GetTrackingBatch(ctx context.Context, codes []string) (map[string]*carrier.TrackingResult, map[string]error)
}

// Notifier receives state changes. Delivery is fire-and-forget.
type Notifier interface {
	Publish(ctx context.Context, orderID string, status models.ShipmentState, snap models.TrackingSnapshot) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Metrics interface {
	RecordCycle(result string)
	RecordOrder(result string)
	RecordEventsInserted(n int)
}

type JobState string

const (
	JobStopped JobState = "STOPPED"
	JobRunning JobState = "RUNNING"
	JobError   JobState = "ERROR"
)

type OrderError struct {
	OrderID      string `json:"orderId"`
	TrackingCode string `json:"trackingCode"`
	Error        string `json:"error"`
}

type RunStats struct {
	StartedAt       time.Time    `json:"startedAt"`
	FinishedAt      time.Time    `json:"finishedAt"`
	OrdersProcessed int          `json:"ordersProcessed"`
	OrdersUpdated   int          `json:"ordersUpdated"`
	EventsInserted  int          `json:"eventsInserted"`
	Errors          []OrderError `json:"errors,omitempty"`
	// CycleError is set when the cycle itself failed.
	CycleError string `json:"cycleError,omitempty"`
}

type Status struct {
	State         JobState   `json:"state"`
	Interval      string     `json:"interval"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	NextRunAt     *time.Time `json:"nextRunAt,omitempty"`
	LastTriggerAt *time.Time `json:"lastTriggerAt,omitempty"`
	InFlight      bool       `json:"inFlight"`
	LastRun       *RunStats  `json:"lastRun,omitempty"`
	TotalCycles   int64      `json:"totalCycles"`
	TotalOrders   int64      `json:"totalOrders"`
	TotalUpdated  int64      `json:"totalUpdated"`
	TotalErrors   int64      `json:"totalErrors"`
}

type Reconciler struct {
	repo     Repository
	tracker  Tracker
	notifier Notifier
	rl       RateLimiter
	metrics  Metrics
	log      *zap.Logger

	interval      time.Duration
	batchSize     int
	batchesPerMin int64
	throttleWait  time.Duration
	now           func() time.Time

	locks     *keylock.Mutex
	triggerCh chan struct{}

	inFlight     atomic.Bool
	totalCycles  atomic.Int64
	totalOrders  atomic.Int64
	totalUpdated atomic.Int64
	totalErrors  atomic.Int64

	mu            sync.Mutex
	state         JobState
	startedAt     *time.Time
	nextRunAt     *time.Time
	lastTriggerAt *time.Time
	lastRun       *RunStats
	cancel        context.CancelFunc
	done          chan struct{}
}

func New(repo Repository, tracker Tracker, notifier Notifier, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		repo:         repo,
		tracker:      tracker,
		notifier:     notifier,
		log:          log,
		interval:     60 * time.Minute,
		batchSize:    50,
		throttleWait: time.Second,
		now:          time.Now,
		locks:        keylock.New(),
		triggerCh:    make(chan struct{}, 1),
		state:        JobStopped,
	}
}

func (r *Reconciler) WithSettings(interval time.Duration, batchSize int) *Reconciler {
	if interval > 0 {
		r.interval = interval
	}
	if batchSize > 0 {
		r.batchSize = batchSize
	}
	return r
}

// WithRateLimit caps carrier batch queries per minute across processes.
func (r *Reconciler) WithRateLimit(rl RateLimiter, batchesPerMinute int) *Reconciler {
	r.rl = rl
	r.batchesPerMin = int64(batchesPerMinute)
	return r
}

func (r *Reconciler) WithMetrics(m Metrics) *Reconciler {
	r.metrics = m
	return r
}

// Trigger requests an immediate cycle (best-effort, non-blocking).
func (r *Reconciler) Trigger() {
	now := r.now().UTC()
	r.mu.Lock()
	r.lastTriggerAt = &now
	r.mu.Unlock()
	select {
	case r.triggerCh <- struct{}{}:
	default:
	}
}

// Run executes a cycle immediately and then one per interval until ctx is
// done. Ticks arriving while a cycle is still running are dropped.
func (r *Reconciler) Run(ctx context.Context) error {
	started := r.now().UTC()
	r.mu.Lock()
	r.state = JobRunning
	r.startedAt = &started
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.state = JobStopped
		r.nextRunAt = nil
		r.mu.Unlock()
	}()

	r.log.Info("reconciler started", zap.Duration("interval", r.interval), zap.Int("batch_size", r.batchSize))
	r.cycle(ctx)

	t := time.NewTicker(r.interval)
	defer t.Stop()
	r.scheduleNext()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopped")
			return ctx.Err()
		case <-t.C:
			r.cycle(ctx)
			r.scheduleNext()
		case <-r.triggerCh:
			r.cycle(ctx)
		}
	}
}

// Start runs the job in the background; Stop cancels it.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		_ = r.Run(ctx)
	}(r.done)
}

// Stop clears the timer and waits for the loop to exit. In-flight carrier
// calls see a canceled context.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *Reconciler) scheduleNext() {
	next := r.now().UTC().Add(r.interval)
	r.mu.Lock()
	r.nextRunAt = &next
	r.mu.Unlock()
}

func (r *Reconciler) Status() Status {
	r.mu.Lock()
	st := Status{
		State:         r.state,
		Interval:      r.interval.String(),
		StartedAt:     r.startedAt,
		NextRunAt:     r.nextRunAt,
		LastTriggerAt: r.lastTriggerAt,
	}
	if r.lastRun != nil {
		cp := *r.lastRun
		cp.Errors = append([]OrderError(nil), r.lastRun.Errors...)
		st.LastRun = &cp
	}
	r.mu.Unlock()
	st.InFlight = r.inFlight.Load()
	st.TotalCycles = r.totalCycles.Load()
	st.TotalOrders = r.totalOrders.Load()
	st.TotalUpdated = r.totalUpdated.Load()
	st.TotalErrors = r.totalErrors.Load()
	return st
}

func (r *Reconciler) cycle(ctx context.Context) {
	if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, ErrCycleInProgress) && ctx.Err() == nil {
		r.log.Error("reconciliation cycle failed", zap.Error(err))
	}
}

// RunOnce performs a single reconciliation cycle. Per-order failures are
// collected in the stats; only cycle-level failures are returned.
func (r *Reconciler) RunOnce(ctx context.Context) (*RunStats, error) {
	if !r.inFlight.CompareAndSwap(false, true) {
		r.log.Warn("skipping overlapping reconciliation cycle")
		return nil, ErrCycleInProgress
	}
	defer r.inFlight.Store(false)

	stats := &RunStats{StartedAt: r.now().UTC()}
	err := r.runCycle(ctx, stats)
	stats.FinishedAt = r.now().UTC()
	r.finish(ctx, stats, err)
	return stats, err
}

func (r *Reconciler) runCycle(ctx context.Context, stats *RunStats) error {
	orders, err := r.repo.ListOpenShipments(ctx)
	if err != nil {
		return errors.Wrap(err, "list open shipments")
	}

	byCode := make(map[string][]*models.Order)
	var codes []string
	for _, o := range orders {
		code := normalizeCode(o.TrackingCode)
		if code == "" {
			continue
		}
		if _, seen := byCode[code]; !seen {
			codes = append(codes, code)
		}
		byCode[code] = append(byCode[code], o)
	}

	for start := 0; start < len(codes); start += r.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk := codes[start:min(start+r.batchSize, len(codes))]
		if err := r.throttle(ctx); err != nil {
			return err
		}

		results, errs := r.tracker.GetTrackingBatch(ctx, chunk)
		for _, code := range chunk {
			for _, o := range byCode[code] {
				stats.OrdersProcessed++
				err := errs[code]
				var outcome orderOutcome
				if err == nil {
					outcome, err = r.reconcileOrder(ctx, o, results[code])
				}
				if err != nil {
					stats.Errors = append(stats.Errors, OrderError{OrderID: o.ID, TrackingCode: code, Error: err.Error()})
					r.recordOrder("error")
					r.log.Warn("order reconciliation failed",
						zap.String("order_id", o.ID), zap.String("tracking_code", code), zap.Error(err))
					continue
				}
				stats.EventsInserted += outcome.inserted
				if outcome.updated {
					stats.OrdersUpdated++
					r.recordOrder("updated")
				} else {
					r.recordOrder("unchanged")
				}
			}
		}
	}
	return nil
}

func (r *Reconciler) finish(ctx context.Context, stats *RunStats, err error) {
	r.totalCycles.Add(1)
	r.totalOrders.Add(int64(stats.OrdersProcessed))
	r.totalUpdated.Add(int64(stats.OrdersUpdated))
	r.totalErrors.Add(int64(len(stats.Errors)))

	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case err != nil && ctx.Err() == nil:
		stats.CycleError = err.Error()
		if r.state != JobStopped {
			r.state = JobError
		}
	case r.state == JobError:
		r.state = JobRunning
	}
	r.lastRun = stats

	result := "ok"
	if stats.CycleError != "" {
		result = "error"
	}
	if r.metrics != nil {
		r.metrics.RecordCycle(result)
		r.metrics.RecordEventsInserted(stats.EventsInserted)
	}
	r.log.Info("reconciliation cycle finished",
		zap.Int("orders", stats.OrdersProcessed),
		zap.Int("updated", stats.OrdersUpdated),
		zap.Int("events_inserted", stats.EventsInserted),
		zap.Int("errors", len(stats.Errors)),
		zap.Duration("took", stats.FinishedAt.Sub(stats.StartedAt)))
}

// throttle waits while the shared per-minute budget is exhausted.
func (r *Reconciler) throttle(ctx context.Context) error {
	if r.rl == nil || r.batchesPerMin <= 0 {
		return nil
	}
	for {
		key := fmt.Sprintf("rl:carrier:tracking:%s", r.now().UTC().Format("200601021504"))
		allowed, n, err := r.rl.Allow(ctx, key, r.batchesPerMin, 70*time.Second)
		if err != nil {
			// limiter outage must not stop reconciliation
			r.log.Warn("rate limiter unavailable", zap.Error(err))
			return nil
		}
		if allowed {
			return nil
		}
		r.log.Warn("carrier rate limit reached, waiting", zap.Int64("count", n))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.throttleWait):
		}
	}
}

func (r *Reconciler) recordOrder(result string) {
	if r.metrics != nil {
		r.metrics.RecordOrder(result)
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
