package fulfillment

import (
	"context"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"

	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/models"
)

func (s *ServiceSuite) TestHandleOrderPlaced_AcknowledgesFinalOutcomes() {
	handler := s.svc.OrderPlacedHandler(context.Background())

	done := paidOrder()
	done.TrackingCode = "AA1BR"
	s.repo.On("GetOrder", mock.Anything, "ord-1").Return(done, nil).Once()
	s.Require().NoError(handler([]byte("ord-1"), []byte(`{"order_id":"ord-1"}`)))

	bad := paidOrder()
	bad.ID = "ord-2"
	bad.CustomerDocument = "1"
	s.repo.On("GetOrder", mock.Anything, "ord-2").Return(bad, nil).Once()
	s.Require().NoError(handler([]byte("ord-2"), []byte(`{"order_id":"ord-2"}`)))

	s.Require().NoError(handler(nil, []byte(`not json`)))
	s.Require().NoError(handler(nil, []byte(`{}`)))

	s.carrier.AssertNotCalled(s.T(), "CreateLabel", mock.Anything, mock.Anything)
	s.repo.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestHandleOrderPlaced_KeyFallback() {
	o := paidOrder()
	o.Status = models.OrderStatusCanceled
	s.repo.On("GetOrder", mock.Anything, "ord-1").Return(o, nil).Once()
	s.Require().NoError(s.svc.OrderPlacedHandler(context.Background())([]byte("ord-1"), []byte(`{}`)))
	s.repo.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestHandleOrderPlaced_TransientErrorIsReturned() {
	s.repo.On("GetOrder", mock.Anything, "ord-1").Return(paidOrder(), nil).Once()
	s.carrier.On("CreateLabel", mock.Anything, mock.Anything).
		Return(nil, carrier.FromStatus("create label", 503, "")).Once()

	err := s.svc.OrderPlacedHandler(context.Background())(nil, []byte(`{"order_id":"ord-1"}`))
	s.Require().ErrorIs(err, carrier.ErrUnavailable)

	want := errors.New("db down")
	s.repo.On("GetOrder", mock.Anything, "ord-9").Return(nil, want).Once()
	s.Require().ErrorIs(s.svc.OrderPlacedHandler(context.Background())(nil, []byte(`{"order_id":"ord-9"}`)), want)
}

func (s *ServiceSuite) TestHandleOrderPlaced_CarrierRejectionIsAcknowledged() {
	handler := s.svc.OrderPlacedHandler(context.Background())
	for _, status := range []int{400, 401, 403, 422} {
		s.repo.On("GetOrder", mock.Anything, "ord-1").Return(paidOrder(), nil).Once()
		s.carrier.On("CreateLabel", mock.Anything, mock.Anything).
			Return(nil, carrier.FromStatus("create label", status, "rejected")).Once()

		s.Require().NoError(handler(nil, []byte(`{"order_id":"ord-1"}`)), "status %d", status)
	}
	s.Require().Equal(4, s.metrics.m["carrier_error"])
	s.repo.AssertNotCalled(s.T(), "SaveLabel", mock.Anything, mock.Anything, mock.Anything)
	s.carrier.AssertExpectations(s.T())
}
