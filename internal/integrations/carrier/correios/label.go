package correios

import (
	"context"
	"net/http"

	"github.com/BearBump/ShipBox/internal/integrations/carrier"
)

const pathPrePostings = "/prepostagem/v1/prepostagens"

// CreateLabel registers a pre-posting. It is never retried: a timed out
// request may still have created the label.
func (c *Client) CreateLabel(ctx context.Context, p *carrier.LabelPayload) (*carrier.LabelResponse, error) {
	var out carrier.LabelResponse
	err := c.call(ctx, "create label", c.labelTimeout, request{
		method: http.MethodPost,
		path:   pathPrePostings,
		body:   p,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.TrackingCode == "" {
		return nil, &carrier.Error{
			Op:      "create label",
			Kind:    carrier.ErrPayloadRejected,
			Message: "response has no tracking code",
		}
	}
	return &out, nil
}
