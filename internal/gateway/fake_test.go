package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeGatewaySessionLifecycle(t *testing.T) {
	ctx := context.Background()
	gw := NewFakeGateway()

	created, err := gw.CreateCheckoutSession(ctx, CheckoutRequest{
		AmountCents:   500,
		CustomerEmail: "hr@acme.test",
		Metadata:      map[string]string{"packageId": "pkg-1"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(created.ID, "cs_test_"))
	assert.True(t, strings.HasSuffix(created.URL, created.ID))

	session, err := gw.RetrieveSession(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, session.Paid)
	assert.Equal(t, int64(500), session.AmountTotal)

	gw.MarkPaid(created.ID, "pi_1")
	session, err = gw.RetrieveSession(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, session.Paid)
	assert.Equal(t, "pi_1", session.PaymentIntentID)

	_, err = gw.RetrieveSession(ctx, "cs_missing")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
	assert.False(t, errors.Is(err, ErrUnavailable))

	gw.Err = errors.New("down")
	_, err = gw.CreateCheckoutSession(ctx, CheckoutRequest{})
	assert.Error(t, err)
}
