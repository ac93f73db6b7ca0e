package reconciler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"

	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/models"
)

// memRepo mimics the unique (order_id, event_time, description) index.
type memRepo struct {
	mu      sync.Mutex
	orders  map[string]*models.Order
	events  map[string][]models.TrackingEvent
	keys    map[string]struct{}
	listErr error
	lists   int
}

func newMemRepo(orders ...*models.Order) *memRepo {
	r := &memRepo{
		orders: make(map[string]*models.Order),
		events: make(map[string][]models.TrackingEvent),
		keys:   make(map[string]struct{}),
	}
	for _, o := range orders {
		r.orders[o.ID] = o
	}
	return r
}

func (r *memRepo) ListOpenShipments(ctx context.Context) ([]*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists++
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*models.Order
	for _, o := range r.orders {
		if o.TrackingCode != "" && !o.Status.Closed() {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, errors.New("order not found")
	}
	cp := *o
	return &cp, nil
}

func (r *memRepo) LastTrackingEvent(ctx context.Context, id string) (*models.TrackingEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last *models.TrackingEvent
	for i, e := range r.events[id] {
		if last == nil || e.EventTime.After(last.EventTime) {
			last = &r.events[id][i]
		}
	}
	if last == nil {
		return nil, nil
	}
	cp := *last
	return &cp, nil
}

func (r *memRepo) InsertTrackingEvents(ctx context.Context, events []models.TrackingEvent) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range events {
		if _, ok := r.keys[e.DedupKey()]; ok {
			continue
		}
		r.keys[e.DedupKey()] = struct{}{}
		r.events[e.OrderID] = append(r.events[e.OrderID], e)
		n++
	}
	return n, nil
}

func (r *memRepo) UpdateShipmentStatus(ctx context.Context, id string, status models.OrderStatus, location string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return errors.New("order not found")
	}
	o.Status = status
	o.CurrentLocation = location
	return nil
}

func (r *memRepo) ListTrackingEvents(ctx context.Context, id string) ([]models.TrackingEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]models.TrackingEvent(nil), r.events[id]...)
	sort.Slice(out, func(i, j int) bool { return out[i].EventTime.After(out[j].EventTime) })
	return out, nil
}

func (r *memRepo) rowCount(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events[id])
}

func (r *memRepo) order(id string) models.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.orders[id]
}

type fakeTracker struct {
	mu      sync.Mutex
	results map[string]*carrier.TrackingResult
	errs    map[string]error
	calls   [][]string
	block   chan struct{}
}

func (f *fakeTracker) set(code string, events ...carrier.TrackingEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.results == nil {
		f.results = make(map[string]*carrier.TrackingResult)
	}
	f.results[code] = &carrier.TrackingResult{Code: code, Events: events}
}

func (f *fakeTracker) GetTrackingBatch(ctx context.Context, codes []string) (map[string]*carrier.TrackingResult, map[string]error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), codes...))
	out := make(map[string]*carrier.TrackingResult)
	errs := make(map[string]error)
	for _, c := range codes {
		if err := f.errs[c]; err != nil {
			out[c] = nil
			errs[c] = err
			continue
		}
		out[c] = f.results[c]
	}
	return out, errs
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Publish(ctx context.Context, orderID string, status models.ShipmentState, snap models.TrackingSnapshot) error {
	args := m.Called(ctx, orderID, status, snap)
	return args.Error(0)
}

type stubLimiter struct {
	mu      sync.Mutex
	allowAt int
	calls   int
}

func (s *stubLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.calls >= s.allowAt, int64(s.calls), nil
}

func ev(code, desc string, at time.Time) carrier.TrackingEvent {
	return carrier.TrackingEvent{Code: code, Description: desc, Location: "Curitiba - PR", Time: at}
}
