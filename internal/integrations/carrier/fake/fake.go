package fake

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/textnorm"
)

// Client is an offline carrier for local runs. Every answer is a pure
// function of its input, so repeated tracking queries return the same
// events and exercise deduplication.
//
// Tracking codes starting with "ER" are unknown to the carrier, codes
// starting with "TO" time out.
type Client struct {
	now func() time.Time
}

func New() *Client { return &Client{now: time.Now} }

var _ carrier.Client = (*Client)(nil)

func hash(parts ...string) uint32 {
	h := fnv.New32a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte("|"))
	}
	return h.Sum32()
}

func (c *Client) CreateLabel(ctx context.Context, p *carrier.LabelPayload) (*carrier.LabelResponse, error) {
	if p == nil {
		return nil, carrier.FromStatus("create label", 400, "empty payload")
	}
	v := hash(p.Recipient.Document, p.Recipient.Address.PostalCode, p.Observation, p.ServiceCode)
	return &carrier.LabelResponse{
		ID:           fmt.Sprintf("PP%010d", v),
		TrackingCode: fmt.Sprintf("AA%09dBR", v%1_000_000_000),
	}, nil
}

var stages = []carrier.TrackingEvent{
	{Code: "PO", Type: "01", Description: "Objeto postado", Location: "São Paulo - SP"},
	{Code: "RO", Type: "01", Description: "Objeto encaminhado", Location: "Cajamar - SP"},
	{Code: "DO", Type: "01", Description: "Objeto em trânsito - por favor aguarde", Location: "Curitiba - PR"},
	{Code: "OEC", Type: "01", Description: "Objeto saiu para entrega ao destinatário", Location: "Curitiba - PR"},
	{Code: "BDE", Type: "01", Description: "Objeto entregue ao destinatário", Location: "Curitiba - PR"},
}

func (c *Client) GetTracking(ctx context.Context, code string) (*carrier.TrackingResult, error) {
	switch {
	case strings.HasPrefix(code, "ER"):
		return &carrier.TrackingResult{Code: code, Message: "SRO-019: Objeto inválido"}, nil
	case strings.HasPrefix(code, "TO"):
		return nil, carrier.NetworkError("get tracking", context.DeadlineExceeded)
	}

	v := hash(code)
	base := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC).Add(time.Duration(v%720) * time.Hour)
	n := int(v%uint32(len(stages))) + 1

	res := &carrier.TrackingResult{Code: code}
	// newest first, like the carrier
	for i := n - 1; i >= 0; i-- {
		ev := stages[i]
		ev.Time = base.Add(time.Duration(i) * 26 * time.Hour)
		res.Events = append(res.Events, ev)
	}
	return res, nil
}

func (c *Client) GetTrackingBatch(ctx context.Context, codes []string) (map[string]*carrier.TrackingResult, map[string]error) {
	out := make(map[string]*carrier.TrackingResult, len(codes))
	errs := make(map[string]error)
	for _, code := range codes {
		res, err := c.GetTracking(ctx, code)
		if err != nil {
			errs[code] = err
			out[code] = nil
			continue
		}
		out[code] = res
	}
	return out, errs
}

// First CEP digit to a representative state.
var regionStates = [10]string{"SP", "SP", "RJ", "MG", "BA", "PE", "CE", "DF", "PR", "RS"}

func (c *Client) LookupPostalCode(ctx context.Context, postalCode string) (*carrier.PostalCodeInfo, error) {
	d := textnorm.Digits(postalCode)
	if len(d) != 8 {
		return nil, carrier.FromStatus("lookup postal code", 400, "CEP inválido")
	}
	return &carrier.PostalCodeInfo{
		PostalCode: d,
		City:       "Cidade " + d[:3],
		State:      regionStates[d[0]-'0'],
	}, nil
}

func (c *Client) LookupPostalCodes(ctx context.Context, postalCodes []string) ([]carrier.PostalCodeInfo, error) {
	out := make([]carrier.PostalCodeInfo, 0, len(postalCodes))
	for _, p := range postalCodes {
		info, err := c.LookupPostalCode(ctx, p)
		if err != nil {
			continue
		}
		out = append(out, *info)
	}
	return out, nil
}

func (c *Client) GetPrice(ctx context.Context, req carrier.PriceRequest) (*carrier.PriceResult, error) {
	grams := decimal.NewFromInt(int64(req.WeightGrams))
	perKg := decimal.RequireFromString("14.20")
	if req.ServiceCode == "03220" {
		perKg = decimal.RequireFromString("25.60")
	}
	price := grams.Div(decimal.NewFromInt(1000)).Mul(perKg).Add(decimal.RequireFromString("9.90"))
	return &carrier.PriceResult{ServiceCode: req.ServiceCode, Price: price.Round(2)}, nil
}

func (c *Client) GetDeliveryTime(ctx context.Context, req carrier.DeliveryTimeRequest) (*carrier.DeliveryTimeResult, error) {
	days := 7
	if req.ServiceCode == "03220" {
		days = 2
	}
	deadline := c.now().UTC().AddDate(0, 0, days).Truncate(24 * time.Hour)
	return &carrier.DeliveryTimeResult{ServiceCode: req.ServiceCode, Days: days, Deadline: &deadline}, nil
}
