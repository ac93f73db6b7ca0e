package correios

import (
	"context"
	"net/http"
	"net/url"

	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/textnorm"
)

const pathPostalCodes = "/cep/v2/enderecos"

func (c *Client) LookupPostalCode(ctx context.Context, postalCode string) (*carrier.PostalCodeInfo, error) {
	cep := textnorm.Digits(postalCode)
	if len(cep) != 8 {
		return nil, &carrier.Error{Op: "lookup postal code", Kind: carrier.ErrPayloadRejected, Message: "postal code must have 8 digits"}
	}
	var out carrier.PostalCodeInfo
	err := c.retry(ctx, "lookup postal code", func() error {
		return c.call(ctx, "lookup postal code", c.timeout, request{
			method: http.MethodGet,
			path:   pathPostalCodes + "/" + cep,
		}, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// LookupPostalCodes resolves several codes in one request. Unknown codes are
// simply absent from the result.
func (c *Client) LookupPostalCodes(ctx context.Context, postalCodes []string) ([]carrier.PostalCodeInfo, error) {
	q := url.Values{}
	for _, p := range postalCodes {
		if d := textnorm.Digits(p); len(d) == 8 {
			q.Add("cep", d)
		}
	}
	if len(q) == 0 {
		return nil, nil
	}
	var out struct {
		Itens []carrier.PostalCodeInfo `json:"itens"`
	}
	err := c.retry(ctx, "lookup postal codes", func() error {
		return c.call(ctx, "lookup postal codes", c.timeout, request{
			method: http.MethodGet,
			path:   pathPostalCodes,
			query:  q,
		}, &out)
	})
	if err != nil {
		return nil, err
	}
	return out.Itens, nil
}
