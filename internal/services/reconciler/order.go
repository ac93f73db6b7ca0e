package reconciler

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/models"
)

type orderOutcome struct {
	updated  bool
	inserted int
	state    models.ShipmentState
}

// ForceResult is the outcome of a manual single-order reconciliation.
type ForceResult struct {
	OrderID        string                 `json:"orderId"`
	TrackingCode   string                 `json:"trackingCode"`
	Status         models.OrderStatus     `json:"status"`
	Updated        bool                   `json:"updated"`
	EventsInserted int                    `json:"eventsInserted"`
	Events         []models.TrackingEvent `json:"events"`
}

// ForceUpdate reconciles one order synchronously, outside the timer. It
// shares the per-order lock with the periodic job.
func (r *Reconciler) ForceUpdate(ctx context.Context, orderID string) (*ForceResult, error) {
	o, err := r.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	code := normalizeCode(o.TrackingCode)
	if code == "" {
		return nil, ErrNoTrackingCode
	}

	results, errs := r.tracker.GetTrackingBatch(ctx, []string{code})
	if err := errs[code]; err != nil {
		return nil, err
	}
	outcome, err := r.reconcileOrder(ctx, o, results[code])
	if err != nil {
		return nil, err
	}

	res := &ForceResult{
		OrderID:        o.ID,
		TrackingCode:   code,
		Status:         o.Status,
		Updated:        outcome.updated,
		EventsInserted: outcome.inserted,
	}
	if outcome.updated {
		res.Status = outcome.state.OrderStatus()
	}
	if res.Events, err = r.repo.ListTrackingEvents(ctx, o.ID); err != nil {
		return nil, errors.Wrap(err, "list tracking events")
	}
	return res, nil
}

// reconcileOrder applies one carrier answer to one order.
func (r *Reconciler) reconcileOrder(ctx context.Context, o *models.Order, res *carrier.TrackingResult) (orderOutcome, error) {
	unlock := r.locks.Lock(o.ID)
	defer unlock()

	if res == nil || len(res.Events) == 0 {
		return orderOutcome{}, nil
	}
	events := toModelEvents(o.ID, res.Events)
	newest := events[0]

	last, err := r.repo.LastTrackingEvent(ctx, o.ID)
	if err != nil {
		return orderOutcome{}, errors.Wrap(err, "last tracking event")
	}
	if last != nil && !newest.EventTime.After(last.EventTime) {
		return orderOutcome{}, nil
	}

	inserted, err := r.repo.InsertTrackingEvents(ctx, events)
	if err != nil {
		return orderOutcome{}, errors.Wrap(err, "insert tracking events")
	}

	state := DeriveState(newest.Code, newest.Description)
	if err := r.repo.UpdateShipmentStatus(ctx, o.ID, state.OrderStatus(), newest.Location); err != nil {
		return orderOutcome{}, errors.Wrap(err, "update shipment status")
	}

	if r.notifier != nil {
		snap := models.TrackingSnapshot{
			TrackingCode: normalizeCode(o.TrackingCode),
			Status:       state,
			Location:     newest.Location,
			LastEvent:    newest,
			Events:       events,
		}
		if err := r.notifier.Publish(ctx, o.ID, state, snap); err != nil {
			r.log.Warn("publish status change", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	return orderOutcome{updated: true, inserted: inserted, state: state}, nil
}

// toModelEvents converts carrier events, drops duplicates within the answer
// and sorts them newest first.
func toModelEvents(orderID string, in []carrier.TrackingEvent) []models.TrackingEvent {
	out := make([]models.TrackingEvent, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, e := range in {
		ev := models.TrackingEvent{
			OrderID:     orderID,
			Code:        e.Code,
			Type:        e.Type,
			Location:    e.Location,
			Description: e.Description,
			EventTime:   e.Time.UTC(),
		}
		k := ev.DedupKey()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EventTime.After(out[j].EventTime) })
	return out
}
