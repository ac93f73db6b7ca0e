package fake

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/BearBump/ShipBox/internal/integrations/carrier"
)

func TestClient_GetTracking_Deterministic(t *testing.T) {
	c := New()
	a, err := c.GetTracking(context.Background(), "AA123456789BR")
	require.NoError(t, err)
	b, err := c.GetTracking(context.Background(), "AA123456789BR")
	require.NoError(t, err)

	require.Equal(t, a, b)
	require.NotEmpty(t, a.Events)
	for i := 1; i < len(a.Events); i++ {
		require.True(t, a.Events[i-1].Time.After(a.Events[i].Time))
	}
}

func TestClient_GetTrackingBatch_IsolatesFailures(t *testing.T) {
	c := New()
	res, errs := c.GetTrackingBatch(context.Background(), []string{"AA1BR", "TO2BR", "ER3BR"})

	require.Len(t, res, 3)
	require.NotNil(t, res["AA1BR"])
	require.Nil(t, res["TO2BR"])
	require.True(t, errors.Is(errs["TO2BR"], carrier.ErrNetwork))
	require.NotEmpty(t, res["ER3BR"].Message)
	require.Empty(t, res["ER3BR"].Events)
}

func TestClient_LookupPostalCode(t *testing.T) {
	c := New()
	info, err := c.LookupPostalCode(context.Background(), "80010-000")
	require.NoError(t, err)
	require.Equal(t, "PR", info.State)

	_, err = c.LookupPostalCode(context.Background(), "123")
	require.True(t, errors.Is(err, carrier.ErrPayloadRejected))
}

func TestClient_CreateLabel(t *testing.T) {
	p := &carrier.LabelPayload{ServiceCode: "03298"}
	p.Recipient.Document = "12345678909"
	res, err := New().CreateLabel(context.Background(), p)
	require.NoError(t, err)
	require.Regexp(t, `^AA\d{9}BR$`, res.TrackingCode)
}
