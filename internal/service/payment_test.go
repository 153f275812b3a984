package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/rongwang/assetverse-server/internal/gateway"
	"github.com/rongwang/assetverse-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var trackingIDPattern = regexp.MustCompile(`^TXN-[0-9a-z]+-[0-9a-f]{12}$`)

func newTestReconciler(f *fixture, gw gateway.PaymentGateway) *PaymentReconciler {
	return NewPaymentReconciler(f.repo, gw, PaymentOptions{
		SiteDomain:     "https://assetverse.test",
		GatewayTimeout: time.Second,
	}, zap.NewNop())
}

// recordingGateway captures the last checkout request
type recordingGateway struct {
	*gateway.FakeGateway
	last gateway.CheckoutRequest
}

func (g *recordingGateway) CreateCheckoutSession(ctx context.Context, req gateway.CheckoutRequest) (*gateway.Session, error) {
	g.last = req
	return g.FakeGateway.CreateCheckoutSession(ctx, req)
}

func TestNewTrackingID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id, err := NewTrackingID()
		require.NoError(t, err)
		assert.Regexp(t, trackingIDPattern, id)
		assert.False(t, seen[id], "duplicate tracking id %s", id)
		seen[id] = true
	}
}

func TestCreateCheckout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	pkg := f.pkg(t, "Standard", "8.50", 10)
	gw := &recordingGateway{FakeGateway: gateway.NewFakeGateway()}
	p := newTestReconciler(f, gw)

	url, err := p.CreateCheckout(ctx, f.hr.Email, pkg.ID)
	require.NoError(t, err)
	assert.Contains(t, url, "https://checkout.example.test/cs_test_")

	assert.Equal(t, int64(850), gw.last.AmountCents)
	assert.Equal(t, "usd", gw.last.Currency)
	assert.Equal(t, "Subscription: Standard", gw.last.ProductName)
	assert.Equal(t, "Pay 8.50$ to get this Standard package", gw.last.Description)
	assert.Equal(t, "https://assetverse.test/dashboard/payment-success?session_id={CHECKOUT_SESSION_ID}", gw.last.SuccessURL)
	assert.Equal(t, pkg.ID, gw.last.Metadata["packageId"])
	assert.Equal(t, f.hr.Email, gw.last.Metadata["hrEmail"])

	_, err = p.CreateCheckout(ctx, f.hr.Email, "missing")
	assert.Equal(t, KindNotFound, KindOf(err))

	gw.Err = errors.New("connection refused")
	_, err = p.CreateCheckout(ctx, f.hr.Email, pkg.ID)
	assert.True(t, errors.Is(err, ErrUpstreamUnavailable))
}

func TestFinalize(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*fixture, *gateway.FakeGateway, *PaymentReconciler, *models.Package) {
		f := newFixture(t, 5)
		pkg := f.pkg(t, "Premium", "15", 20)
		gw := gateway.NewFakeGateway()
		return f, gw, newTestReconciler(f, gw), pkg
	}

	t.Run("MissingSessionID", func(t *testing.T) {
		_, _, p, _ := setup(t)
		_, err := p.Finalize(ctx, "  ", "hr@acme.test")
		assert.Equal(t, KindValidation, KindOf(err))
	})

	t.Run("UnpaidIsPending", func(t *testing.T) {
		f, gw, p, pkg := setup(t)
		gw.AddSession(gateway.Session{ID: "cs_1", Metadata: map[string]string{"packageId": pkg.ID, "hrEmail": f.hr.Email}})

		receipt, err := p.Finalize(ctx, "cs_1", f.hr.Email)
		require.NoError(t, err)
		assert.Equal(t, ReceiptPending, receipt.Status)

		payments, err := f.repo.ListPayments(ctx, f.hr.Email)
		require.NoError(t, err)
		assert.Empty(t, payments)
	})

	t.Run("PaidUpgradesOnce", func(t *testing.T) {
		f, gw, p, pkg := setup(t)
		gw.AddSession(gateway.Session{
			ID:              "cs_2",
			Paid:            true,
			PaymentIntentID: "pi_2",
			Metadata:        map[string]string{"packageId": pkg.ID, "hrEmail": f.hr.Email},
		})

		receipt, err := p.Finalize(ctx, "cs_2", f.hr.Email)
		require.NoError(t, err)
		assert.Equal(t, ReceiptPaid, receipt.Status)
		assert.Equal(t, "pi_2", receipt.TransactionID)
		assert.Regexp(t, trackingIDPattern, receipt.TrackingID)
		assert.False(t, receipt.AlreadyProcessed)

		user, err := f.repo.GetUserByEmail(ctx, f.hr.Email)
		require.NoError(t, err)
		assert.Equal(t, 20, user.PackageLimit)
		assert.Equal(t, "Premium", user.Subscription)

		again, err := p.Finalize(ctx, "cs_2", f.hr.Email)
		require.NoError(t, err)
		assert.True(t, again.AlreadyProcessed)
		assert.Equal(t, receipt.TrackingID, again.TrackingID)

		payments, err := f.repo.ListPayments(ctx, f.hr.Email)
		require.NoError(t, err)
		require.Len(t, payments, 1)
		assert.True(t, payments[0].Amount.Equal(pkg.Price))
	})

	t.Run("SessionIDFallback", func(t *testing.T) {
		f, gw, p, pkg := setup(t)
		gw.AddSession(gateway.Session{ID: "cs_3", Paid: true, CustomerEmail: f.hr.Email, Metadata: map[string]string{"packageId": pkg.ID}})

		receipt, err := p.Finalize(ctx, "cs_3", f.hr.Email)
		require.NoError(t, err)
		assert.Equal(t, "cs_3", receipt.TransactionID)
	})

	t.Run("OtherOwner", func(t *testing.T) {
		_, gw, p, pkg := setup(t)
		gw.AddSession(gateway.Session{ID: "cs_4", Paid: true, Metadata: map[string]string{"packageId": pkg.ID, "hrEmail": "someone@else.test"}})

		_, err := p.Finalize(ctx, "cs_4", "hr@acme.test")
		assert.Equal(t, KindForbidden, KindOf(err))
	})

	t.Run("GatewayDown", func(t *testing.T) {
		_, gw, p, _ := setup(t)
		gw.Err = gateway.ErrUnavailable

		_, err := p.Finalize(ctx, "cs_5", "hr@acme.test")
		assert.True(t, errors.Is(err, ErrUpstreamUnavailable))
	})

	t.Run("UnknownSession", func(t *testing.T) {
		_, _, p, _ := setup(t)

		_, err := p.Finalize(ctx, "cs_bogus", "hr@acme.test")
		assert.Equal(t, KindNotFound, KindOf(err))
		assert.False(t, errors.Is(err, ErrUpstreamUnavailable))
	})

	t.Run("ConcurrentVerification", func(t *testing.T) {
		f, gw, p, pkg := setup(t)
		gw.AddSession(gateway.Session{ID: "cs_6", Paid: true, PaymentIntentID: "pi_6", Metadata: map[string]string{"packageId": pkg.ID, "hrEmail": f.hr.Email}})

		var wg sync.WaitGroup
		receipts := make([]*Receipt, 8)
		errs := make([]error, 8)
		for i := range receipts {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				receipts[i], errs[i] = p.Finalize(ctx, "cs_6", f.hr.Email)
			}(i)
		}
		wg.Wait()

		fresh := 0
		for i := range receipts {
			require.NoError(t, errs[i])
			if !receipts[i].AlreadyProcessed {
				fresh++
			}
			assert.Equal(t, receipts[0].TrackingID, receipts[i].TrackingID)
		}
		assert.Equal(t, 1, fresh)
	})
}
