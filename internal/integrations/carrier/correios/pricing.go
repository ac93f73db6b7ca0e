package correios

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/textnorm"
)

const (
	pathPrice        = "/preco/v1/nacional/"
	pathDeliveryTime = "/prazo/v1/nacional/"
)

type priceResponse struct {
	CoProduto string `json:"coProduto"`
	PcFinal   string `json:"pcFinal"`
	TxErro    string `json:"txErro"`
}

type deliveryTimeResponse struct {
	CoProduto    string `json:"coProduto"`
	PrazoEntrega int    `json:"prazoEntrega"`
	DataMaxima   string `json:"dataMaxima"`
	TxErro       string `json:"txErro"`
}

func (c *Client) GetPrice(ctx context.Context, r carrier.PriceRequest) (*carrier.PriceResult, error) {
	q := url.Values{}
	q.Set("cepOrigem", textnorm.Digits(r.OriginPostal))
	q.Set("cepDestino", textnorm.Digits(r.DestPostal))
	q.Set("psObjeto", strconv.Itoa(r.WeightGrams))
	q.Set("tpObjeto", r.FormatCode)
	q.Set("comprimento", strconv.Itoa(r.Length))
	q.Set("largura", strconv.Itoa(r.Width))
	q.Set("altura", strconv.Itoa(r.Height))
	if r.DeclaredValue.IsPositive() {
		q.Set("servicosAdicionais", carrier.ServiceDeclaredValue)
		q.Set("vlDeclarado", r.DeclaredValue.StringFixed(2))
	}

	var resp priceResponse
	err := c.retry(ctx, "get price", func() error {
		return c.call(ctx, "get price", c.timeout, request{
			method: http.MethodGet,
			path:   pathPrice + url.PathEscape(r.ServiceCode),
			query:  q,
		}, &resp)
	})
	if err != nil {
		return nil, err
	}

	out := &carrier.PriceResult{ServiceCode: r.ServiceCode, Error: strings.TrimSpace(resp.TxErro)}
	if out.Error != "" {
		return out, nil
	}
	price, err := parseMoney(resp.PcFinal)
	if err != nil {
		return nil, errors.Wrap(err, "get price: parse pcFinal")
	}
	out.Price = price
	return out, nil
}

func (c *Client) GetDeliveryTime(ctx context.Context, r carrier.DeliveryTimeRequest) (*carrier.DeliveryTimeResult, error) {
	q := url.Values{}
	q.Set("cepOrigem", textnorm.Digits(r.OriginPostal))
	q.Set("cepDestino", textnorm.Digits(r.DestPostal))

	var resp deliveryTimeResponse
	err := c.retry(ctx, "get delivery time", func() error {
		return c.call(ctx, "get delivery time", c.timeout, request{
			method: http.MethodGet,
			path:   pathDeliveryTime + url.PathEscape(r.ServiceCode),
			query:  q,
		}, &resp)
	})
	if err != nil {
		return nil, err
	}

	out := &carrier.DeliveryTimeResult{
		ServiceCode: r.ServiceCode,
		Days:        resp.PrazoEntrega,
		Error:       strings.TrimSpace(resp.TxErro),
	}
	if t, ok := parseCarrierTime(resp.DataMaxima, ""); ok {
		out.Deadline = &t
	}
	return out, nil
}

// parseMoney reads "1.234,56" or "1234.56".
func parseMoney(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	return decimal.NewFromString(s)
}
