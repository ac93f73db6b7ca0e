package pgorders

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/BearBump/ShipBox/internal/models"
)

const orderColumns = `
  id, status,
  customer_name, customer_document, customer_phone, customer_email,
  shipping_address, shipping_fields,
  weight_kg, declared_value::text, service_code,
  tracking_code, postage_value::text, estimated_delivery, current_location,
  created_at, updated_at`

// UpsertOrder inserts or refreshes the order fields owned by the storefront.
// Fulfillment columns (tracking code, postage, location) are left untouched.
// Once a label exists the status belongs to fulfillment too; only a
// cancellation still overrides it.
func (s *Storage) UpsertOrder(ctx context.Context, o *models.Order) error {
	var fields []byte
	if o.ShippingFields != nil {
		b, err := json.Marshal(o.ShippingFields)
		if err != nil {
			return errors.Wrap(err, "marshal shipping fields")
		}
		fields = b
	}
	status := o.Status
	if status == "" {
		status = models.OrderStatusPending
	}

	_, err := s.db.Exec(ctx, `
INSERT INTO orders (
  id, status, customer_name, customer_document, customer_phone, customer_email,
  shipping_address, shipping_fields, weight_kg, declared_value, service_code,
  created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::numeric,$11, now(), now())
ON CONFLICT (id) DO UPDATE SET
  status = CASE
    WHEN orders.tracking_code <> '' AND EXCLUDED.status <> 'CANCELED' THEN orders.status
    ELSE EXCLUDED.status
  END,
  customer_name = EXCLUDED.customer_name,
  customer_document = EXCLUDED.customer_document,
  customer_phone = EXCLUDED.customer_phone,
  customer_email = EXCLUDED.customer_email,
  shipping_address = EXCLUDED.shipping_address,
  shipping_fields = EXCLUDED.shipping_fields,
  weight_kg = EXCLUDED.weight_kg,
  declared_value = EXCLUDED.declared_value,
  service_code = EXCLUDED.service_code,
  updated_at = now()
`, o.ID, status, o.CustomerName, o.CustomerDocument, o.CustomerPhone, o.CustomerEmail,
		o.ShippingAddress, fields, o.WeightKg, o.DeclaredValue.String(), o.ServiceCode)
	return errors.Wrap(err, "upsert order")
}

func (s *Storage) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	row := s.db.QueryRow(ctx, `SELECT`+orderColumns+` FROM orders WHERE id = $1`, orderID)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select order")
	}
	return o, nil
}

// ListOpenShipments returns orders with a tracking code that are neither
// delivered nor canceled, oldest first.
func (s *Storage) ListOpenShipments(ctx context.Context) ([]*models.Order, error) {
	rows, err := s.db.Query(ctx, `
SELECT`+orderColumns+`
FROM orders
WHERE tracking_code <> ''
  AND status NOT IN ($1, $2)
ORDER BY created_at ASC, id ASC
`, models.OrderStatusDelivered, models.OrderStatusCanceled)
	if err != nil {
		return nil, errors.Wrap(err, "select open shipments")
	}
	defer rows.Close()

	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		out = append(out, o)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) UpdateShipmentStatus(ctx context.Context, orderID string, status models.OrderStatus, location string) error {
	tag, err := s.db.Exec(ctx, `
UPDATE orders
SET status = $2, current_location = $3, updated_at = now()
WHERE id = $1
`, orderID, status, location)
	if err != nil {
		return errors.Wrap(err, "update shipment status")
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// SaveLabel stores the label outcome only if no tracking code was persisted
// before, so a label is never recorded twice for one order.
func (s *Storage) SaveLabel(ctx context.Context, res models.LabelResult, status models.OrderStatus) error {
	var postage *string
	if !res.PostageValue.IsZero() {
		v := res.PostageValue.StringFixed(2)
		postage = &v
	}
	tag, err := s.db.Exec(ctx, `
UPDATE orders
SET
  tracking_code = $2,
  postage_value = $3::numeric,
  estimated_delivery = $4,
  status = $5,
  updated_at = now()
WHERE id = $1 AND tracking_code = ''
`, res.OrderID, res.TrackingCode, postage, res.EstimatedDelivery, status)
	if err != nil {
		return errors.Wrap(err, "save label")
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, res.OrderID).Scan(&exists); err != nil {
		return errors.Wrap(err, "check order")
	}
	if !exists {
		return ErrOrderNotFound
	}
	return ErrTrackingCodeSet
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var (
		o        models.Order
		fields   []byte
		declared string
		postage  *string
		eta      *time.Time
	)
	if err := row.Scan(
		&o.ID, &o.Status,
		&o.CustomerName, &o.CustomerDocument, &o.CustomerPhone, &o.CustomerEmail,
		&o.ShippingAddress, &fields,
		&o.WeightKg, &declared, &o.ServiceCode,
		&o.TrackingCode, &postage, &eta, &o.CurrentLocation,
		&o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		var a models.StructuredAddress
		if err := json.Unmarshal(fields, &a); err != nil {
			return nil, errors.Wrap(err, "decode shipping fields")
		}
		o.ShippingFields = &a
	}
	var err error
	if o.DeclaredValue, err = decimal.NewFromString(declared); err != nil {
		return nil, errors.Wrap(err, "parse declared value")
	}
	if postage != nil {
		if o.PostageValue, err = decimal.NewFromString(*postage); err != nil {
			return nil, errors.Wrap(err, "parse postage value")
		}
	}
	if eta != nil {
		t := eta.UTC()
		o.EstimatedDelivery = &t
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}
