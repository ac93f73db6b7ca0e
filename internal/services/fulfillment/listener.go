package fulfillment

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/BearBump/ShipBox/internal/broker/messages"
	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/label"
)

// HandleOrderPlaced creates the label for a placed order. Outcomes that a
// redelivery cannot change (invalid data, label already created, canceled
// order, a non-retryable carrier rejection) are logged and acknowledged;
// anything else is returned so the message stays uncommitted.
func (s *Service) HandleOrderPlaced(ctx context.Context, msg messages.OrderPlaced) error {
	log := s.log.With(zap.String("order_id", msg.OrderID))
	if msg.OrderID == "" {
		log.Warn("order placed message without order id")
		return nil
	}

	res, err := s.CreateLabel(ctx, msg.OrderID)
	var (
		verrs label.ValidationErrors
		cerr  *carrier.Error
	)
	switch {
	case err == nil:
		log.Debug("order placed handled", zap.String("tracking_code", res.TrackingCode))
		return nil
	case errors.As(err, &verrs):
		log.Warn("order needs manual review before labeling", zap.Strings("fields", verrs.Fields()))
		return nil
	case errors.Is(err, ErrLabelAlreadyCreated), errors.Is(err, ErrOrderCanceled):
		log.Info("order placed message skipped", zap.Error(err))
		return nil
	case errors.As(err, &cerr) && !cerr.Retryable:
		log.Error("carrier refused label, order needs manual review",
			zap.Int("status", cerr.StatusCode), zap.Error(err))
		return nil
	default:
		return err
	}
}

// OrderPlacedHandler adapts HandleOrderPlaced to the raw consumer callback.
func (s *Service) OrderPlacedHandler(ctx context.Context) func(key, value []byte) error {
	return func(key, value []byte) error {
		var msg messages.OrderPlaced
		if err := json.Unmarshal(value, &msg); err != nil {
			s.log.Warn("skip malformed order placed message", zap.ByteString("key", key), zap.Error(err))
			return nil
		}
		if msg.OrderID == "" {
			msg.OrderID = string(key)
		}
		return s.HandleOrderPlaced(ctx, msg)
	}
}
