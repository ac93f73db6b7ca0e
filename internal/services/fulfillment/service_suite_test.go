package fulfillment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/label"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/BearBump/ShipBox/internal/services/fulfillment/mocks"
)

var origin = models.StructuredAddress{
	RecipientName: "Loja Exemplo",
	Street:        "Avenida Paulista",
	Number:        "1000",
	Neighborhood:  "Bela Vista",
	City:          "São Paulo",
	State:         "SP",
	PostalCode:    "01310-100",
	Document:      "12.345.678/0001-95",
	Phone:         "(11) 3333-4444",
}

func paidOrder() *models.Order {
	return &models.Order{
		ID:               "ord-1",
		Status:           models.OrderStatusPaid,
		CustomerName:     "Maria Souza",
		CustomerDocument: "123.456.789-09",
		CustomerPhone:    "41987654321",
		ShippingAddress:  "Rua das Flores, 123, Centro, Curitiba - PR, 80010-000",
		WeightKg:         0.05,
		DeclaredValue:    decimal.RequireFromString("99.90"),
	}
}

type labelCounter struct {
	mu sync.Mutex
	m  map[string]int
}

func (c *labelCounter) RecordLabel(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[result]++
}

type ServiceSuite struct {
	suite.Suite

	repo    *mocks.MockRepository
	carrier *mocks.MockCarrier
	metrics *labelCounter
	svc     *Service
}

func (s *ServiceSuite) SetupTest() {
	s.repo = &mocks.MockRepository{}
	s.carrier = &mocks.MockCarrier{}
	s.metrics = &labelCounter{m: map[string]int{}}
	builder := label.NewBuilder(label.Config{
		Packaging:          label.Packaging{FormatCode: "2", Height: 10, Width: 15, Length: 20},
		ContentDescription: "Mercadorias diversas",
		Services:           []string{"03298", "03220"},
	})
	s.svc = New(s.repo, s.carrier, builder, Config{
		Origin:         origin,
		DefaultService: "03298",
		Packaging:      label.Packaging{FormatCode: "2", Height: 10, Width: 15, Length: 20},
	}, nil).WithMetrics(s.metrics)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) TestCreateLabel_OK() {
	eta := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	s.repo.On("GetOrder", mock.Anything, "ord-1").Return(paidOrder(), nil).Once()
	s.carrier.On("CreateLabel", mock.Anything, mock.MatchedBy(func(p *carrier.LabelPayload) bool {
		return p.ServiceCode == "03298" &&
			p.WeightGrams == "300" &&
			p.Recipient.Name == "Maria Souza" &&
			p.Recipient.Address.Street == "das Flores" &&
			p.Recipient.Address.PostalCode == "80010000" &&
			p.Recipient.Document == "12345678909" &&
			p.Recipient.MobileArea == "41" &&
			p.Sender.Address.City == "São Paulo"
	})).Return(&carrier.LabelResponse{ID: "PP1", TrackingCode: "AA123456789BR"}, nil).Once()
	s.carrier.On("GetPrice", mock.Anything, mock.MatchedBy(func(r carrier.PriceRequest) bool {
		return r.WeightGrams == 300 && r.FormatCode == "2" && r.DeclaredValue.Equal(decimal.RequireFromString("99.90"))
	})).Return(&carrier.PriceResult{ServiceCode: "03298", Price: decimal.RequireFromString("23.45")}, nil).Once()
	s.carrier.On("GetDeliveryTime", mock.Anything, mock.Anything).
		Return(&carrier.DeliveryTimeResult{ServiceCode: "03298", Days: 8, Deadline: &eta}, nil).Once()
	s.repo.On("SaveLabel", mock.Anything, mock.MatchedBy(func(r models.LabelResult) bool {
		return r.OrderID == "ord-1" && r.TrackingCode == "AA123456789BR" &&
			r.PostageValue.Equal(decimal.RequireFromString("23.45")) &&
			r.EstimatedDelivery != nil && r.EstimatedDelivery.Equal(eta)
	}), models.OrderStatusLabelCreated).Return(nil).Once()

	res, err := s.svc.CreateLabel(context.Background(), "ord-1")
	s.Require().NoError(err)
	s.Require().Equal("AA123456789BR", res.TrackingCode)
	s.Require().Equal(1, s.metrics.m["created"])
	s.repo.AssertExpectations(s.T())
	s.carrier.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestCreateLabel_AlreadyCreated() {
	o := paidOrder()
	o.TrackingCode = "AA1BR"
	s.repo.On("GetOrder", mock.Anything, "ord-1").Return(o, nil).Once()

	_, err := s.svc.CreateLabel(context.Background(), "ord-1")
	s.Require().ErrorIs(err, ErrLabelAlreadyCreated)
	s.carrier.AssertNotCalled(s.T(), "CreateLabel", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestCreateLabel_ValidationStopsBeforeNetwork() {
	o := paidOrder()
	o.CustomerDocument = "123456789"
	o.ShippingAddress = "Rua das Flores, 123, Centro, Curitiba - PR, 8001-000"
	s.repo.On("GetOrder", mock.Anything, "ord-1").Return(o, nil).Once()

	_, err := s.svc.CreateLabel(context.Background(), "ord-1")
	var verrs label.ValidationErrors
	s.Require().True(errors.As(err, &verrs))
	s.Require().Contains(verrs.Fields(), "destination.document")
	s.Require().Contains(verrs.Fields(), "destination.postal_code")
	s.Require().Equal(1, s.metrics.m["invalid"])
	s.carrier.AssertNotCalled(s.T(), "CreateLabel", mock.Anything, mock.Anything)
	s.repo.AssertNotCalled(s.T(), "SaveLabel", mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestCreateLabel_CarrierRejects() {
	s.repo.On("GetOrder", mock.Anything, "ord-1").Return(paidOrder(), nil).Once()
	s.carrier.On("CreateLabel", mock.Anything, mock.Anything).
		Return(nil, carrier.FromStatus("create label", 422, "CEP de destino não atendido")).Once()

	_, err := s.svc.CreateLabel(context.Background(), "ord-1")
	s.Require().ErrorIs(err, carrier.ErrBusinessRule)
	s.Require().Contains(err.Error(), "CEP de destino não atendido")
	s.repo.AssertNotCalled(s.T(), "SaveLabel", mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestCreateLabel_QuoteFailuresAreNotFatal() {
	s.repo.On("GetOrder", mock.Anything, "ord-1").Return(paidOrder(), nil).Once()
	s.carrier.On("CreateLabel", mock.Anything, mock.Anything).
		Return(&carrier.LabelResponse{TrackingCode: "AA2BR"}, nil).Once()
	s.carrier.On("GetPrice", mock.Anything, mock.Anything).
		Return(nil, carrier.NetworkError("price", context.DeadlineExceeded)).Once()
	s.carrier.On("GetDeliveryTime", mock.Anything, mock.Anything).
		Return(&carrier.DeliveryTimeResult{Error: "Serviço indisponível"}, nil).Once()
	s.repo.On("SaveLabel", mock.Anything, mock.MatchedBy(func(r models.LabelResult) bool {
		return r.TrackingCode == "AA2BR" && r.PostageValue.IsZero() && r.EstimatedDelivery == nil
	}), models.OrderStatusLabelCreated).Return(nil).Once()

	res, err := s.svc.CreateLabel(context.Background(), "ord-1")
	s.Require().NoError(err)
	s.Require().Equal("AA2BR", res.TrackingCode)
	s.repo.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestCreateLabel_PersistFailure() {
	s.repo.On("GetOrder", mock.Anything, "ord-1").Return(paidOrder(), nil).Once()
	s.carrier.On("CreateLabel", mock.Anything, mock.Anything).
		Return(&carrier.LabelResponse{TrackingCode: "AA3BR"}, nil).Once()
	s.carrier.On("GetPrice", mock.Anything, mock.Anything).Return(&carrier.PriceResult{}, nil)
	s.carrier.On("GetDeliveryTime", mock.Anything, mock.Anything).Return(&carrier.DeliveryTimeResult{}, nil)
	want := errors.New("db down")
	s.repo.On("SaveLabel", mock.Anything, mock.Anything, mock.Anything).Return(want).Once()

	_, err := s.svc.CreateLabel(context.Background(), "ord-1")
	s.Require().ErrorIs(err, want)
	s.Require().Equal(1, s.metrics.m["persist_error"])
}

func (s *ServiceSuite) TestCreateLabel_StructuredFieldsAndServiceOverride() {
	o := paidOrder()
	o.ServiceCode = "03220"
	o.ShippingAddress = ""
	o.ShippingFields = &models.StructuredAddress{
		Street: "Av. Sete de Setembro", Number: "2775", Neighborhood: "Rebouças",
		City: "Curitiba", State: "pr", PostalCode: "80230010",
	}
	s.repo.On("GetOrder", mock.Anything, "ord-1").Return(o, nil).Once()
	s.carrier.On("CreateLabel", mock.Anything, mock.MatchedBy(func(p *carrier.LabelPayload) bool {
		return p.ServiceCode == "03220" &&
			p.Recipient.Address.Street == "Sete de Setembro" &&
			p.Recipient.Address.State == "PR"
	})).Return(&carrier.LabelResponse{TrackingCode: "SX1BR"}, nil).Once()
	s.carrier.On("GetPrice", mock.Anything, mock.Anything).Return(&carrier.PriceResult{Price: decimal.NewFromInt(40)}, nil)
	s.carrier.On("GetDeliveryTime", mock.Anything, mock.Anything).Return(&carrier.DeliveryTimeResult{Days: 2}, nil)
	s.repo.On("SaveLabel", mock.Anything, mock.MatchedBy(func(r models.LabelResult) bool {
		return r.EstimatedDelivery != nil && r.EstimatedDelivery.After(time.Now())
	}), models.OrderStatusLabelCreated).Return(nil).Once()

	_, err := s.svc.CreateLabel(context.Background(), "ord-1")
	s.Require().NoError(err)
	s.carrier.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestCreateLabel_CanceledAndMissing() {
	o := paidOrder()
	o.Status = models.OrderStatusCanceled
	s.repo.On("GetOrder", mock.Anything, "ord-1").Return(o, nil).Once()
	_, err := s.svc.CreateLabel(context.Background(), "ord-1")
	s.Require().ErrorIs(err, ErrOrderCanceled)

	want := errors.New("order not found")
	s.repo.On("GetOrder", mock.Anything, "nope").Return(nil, want).Once()
	_, err = s.svc.CreateLabel(context.Background(), "nope")
	s.Require().ErrorIs(err, want)

	_, err = s.svc.CreateLabel(context.Background(), "")
	s.Require().Error(err)
}
