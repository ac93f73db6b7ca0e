package pgorders

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/BearBump/ShipBox/internal/models"
)

// LastTrackingEvent returns nil, nil when the order has no events yet.
func (s *Storage) LastTrackingEvent(ctx context.Context, orderID string) (*models.TrackingEvent, error) {
	var e models.TrackingEvent
	err := s.db.QueryRow(ctx, `
SELECT id, order_id, code, type, location, description, event_time, created_at
FROM tracking_events
WHERE order_id = $1
ORDER BY event_time DESC, id DESC
LIMIT 1
`, orderID).Scan(&e.ID, &e.OrderID, &e.Code, &e.Type, &e.Location, &e.Description, &e.EventTime, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select last event")
	}
	e.EventTime = e.EventTime.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

func (s *Storage) ListTrackingEvents(ctx context.Context, orderID string) ([]models.TrackingEvent, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, order_id, code, type, location, description, event_time, created_at
FROM tracking_events
WHERE order_id = $1
ORDER BY event_time DESC, id DESC
`, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

	var out []models.TrackingEvent
	for rows.Next() {
		var e models.TrackingEvent
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Code, &e.Type, &e.Location, &e.Description, &e.EventTime, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		e.EventTime = e.EventTime.UTC()
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// InsertTrackingEvents writes the events in one transaction and skips the
// ones already stored under the dedup key. It returns the number of new rows.
func (s *Storage) InsertTrackingEvents(ctx context.Context, events []models.TrackingEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inserted := 0
	for _, e := range events {
		tag, err := tx.Exec(ctx, `
INSERT INTO tracking_events (
  order_id, code, type, location, description, event_time, created_at
)
VALUES ($1,$2,$3,$4,$5,$6, now())
ON CONFLICT (order_id, event_time, description) DO NOTHING
`, e.OrderID, e.Code, e.Type, e.Location, e.Description, e.EventTime.UTC())
		if err != nil {
			return 0, errors.Wrap(err, "insert tracking event")
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "commit tx")
	}
	return inserted, nil
}
