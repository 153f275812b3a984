package api_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/rongwang/assetverse-server/internal/api/testutils"
	"github.com/rongwang/assetverse-server/internal/gateway"
	"github.com/rongwang/assetverse-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckoutAndVerifyPayment(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	testCtx.CreateUser(t, "hr@acme.test", models.RoleHR, "Acme", 0)
	pkg := testCtx.CreatePackage(t, "Standard", "8", 10)
	hrToken := testCtx.Token(t, "hr@acme.test")

	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/payments/checkout-session",
		models.CheckoutSessionRequest{PackageID: pkg.ID}, testutils.AuthHeaders(hrToken))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var checkout models.CheckoutSessionResponse
	testutils.DecodeJSON(t, w, &checkout)
	require.NotEmpty(t, checkout.URL)
	sessionID := checkout.URL[strings.LastIndex(checkout.URL, "/")+1:]

	t.Run("UnpaidSessionIsPending", func(t *testing.T) {
		w := testutils.PerformRequest(testCtx.Router, http.MethodPatch,
			"/api/payments/verify?session_id="+sessionID, nil, testutils.AuthHeaders(hrToken))
		require.Equal(t, http.StatusOK, w.Code)

		var receipt models.PaymentReceiptResponse
		testutils.DecodeJSON(t, w, &receipt)
		assert.False(t, receipt.Success)
		assert.Equal(t, "pending", receipt.PaymentStatus)

		user, err := testCtx.Service.LookupUser(context.Background(), "hr@acme.test")
		require.NoError(t, err)
		assert.Equal(t, 0, user.PackageLimit)
	})

	testCtx.Gateway.MarkPaid(sessionID, "pi_123")

	t.Run("PaidSessionUpgradesPackage", func(t *testing.T) {
		w := testutils.PerformRequest(testCtx.Router, http.MethodPatch,
			"/api/payments/verify?session_id="+sessionID, nil, testutils.AuthHeaders(hrToken))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var receipt models.PaymentReceiptResponse
		testutils.DecodeJSON(t, w, &receipt)
		assert.True(t, receipt.Success)
		assert.False(t, receipt.AlreadyProcessed)
		assert.Equal(t, "pi_123", receipt.TransactionID)
		assert.Regexp(t, `^TXN-[0-9a-z]+-[0-9a-f]{12}$`, receipt.TrackingID)
		assert.Equal(t, 10, receipt.PackageLimit)

		user, err := testCtx.Service.LookupUser(context.Background(), "hr@acme.test")
		require.NoError(t, err)
		assert.Equal(t, 10, user.PackageLimit)
		assert.Equal(t, "Standard", user.Subscription)
	})

	t.Run("SecondVerifyIsIdempotent", func(t *testing.T) {
		w := testutils.PerformRequest(testCtx.Router, http.MethodPatch,
			"/api/payments/verify?session_id="+sessionID, nil, testutils.AuthHeaders(hrToken))
		require.Equal(t, http.StatusOK, w.Code)

		var receipt models.PaymentReceiptResponse
		testutils.DecodeJSON(t, w, &receipt)
		assert.True(t, receipt.AlreadyProcessed)

		w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/payments", nil, testutils.AuthHeaders(hrToken))
		var payments models.ListResponse[models.Payment]
		testutils.DecodeJSON(t, w, &payments)
		require.Len(t, payments.Items, 1)
		assert.Equal(t, "8", payments.Items[0].Amount.String())
	})

	t.Run("OtherHRCannotClaimSession", func(t *testing.T) {
		testCtx.CreateUser(t, "other@beta.test", models.RoleHR, "Beta", 0)
		w := testutils.PerformRequest(testCtx.Router, http.MethodPatch,
			"/api/payments/verify?session_id="+sessionID, nil,
			testutils.AuthHeaders(testCtx.Token(t, "other@beta.test")))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("UnknownPackage", func(t *testing.T) {
		w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/payments/checkout-session",
			models.CheckoutSessionRequest{PackageID: "missing"}, testutils.AuthHeaders(hrToken))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestConcurrentPaymentVerification(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	testCtx.CreateUser(t, "hr@acme.test", models.RoleHR, "Acme", 0)
	pkg := testCtx.CreatePackage(t, "Premium", "15", 20)
	hrToken := testCtx.Token(t, "hr@acme.test")

	testCtx.Gateway.AddSession(gateway.Session{
		ID:              "cs_concurrent",
		Paid:            true,
		PaymentIntentID: "pi_concurrent",
		Metadata:        map[string]string{"packageId": pkg.ID, "hrEmail": "hr@acme.test"},
	})

	const callers = 8
	receipts := make(chan models.PaymentReceiptResponse, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := testutils.PerformRequest(testCtx.Router, http.MethodPatch,
				"/api/payments/verify?session_id=cs_concurrent", nil, testutils.AuthHeaders(hrToken))
			assert.Equal(t, http.StatusOK, w.Code)

			var receipt models.PaymentReceiptResponse
			testutils.DecodeJSON(t, w, &receipt)
			receipts <- receipt
		}()
	}
	wg.Wait()
	close(receipts)

	fresh := 0
	trackingIDs := map[string]struct{}{}
	for r := range receipts {
		assert.True(t, r.Success)
		if !r.AlreadyProcessed {
			fresh++
		}
		trackingIDs[r.TrackingID] = struct{}{}
	}
	assert.Equal(t, 1, fresh, "Exactly one caller records the payment")
	assert.Len(t, trackingIDs, 1, "Every caller sees the same tracking id")

	payments, err := testCtx.Service.ListPayments(context.Background(), "hr@acme.test")
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestVerifyPaymentGatewayDown(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	testCtx.CreateUser(t, "hr@acme.test", models.RoleHR, "Acme", 0)
	testCtx.Gateway.Err = errors.New("connection refused")

	w := testutils.PerformRequest(testCtx.Router, http.MethodPatch,
		"/api/payments/verify?session_id=cs_any", nil, testutils.AuthHeaders(testCtx.Token(t, "hr@acme.test")))
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodPatch,
		"/api/payments/verify", nil, testutils.AuthHeaders(testCtx.Token(t, "hr@acme.test")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifyPaymentUnknownSession(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	testCtx.CreateUser(t, "hr@acme.test", models.RoleHR, "Acme", 0)

	w := testutils.PerformRequest(testCtx.Router, http.MethodPatch,
		"/api/payments/verify?session_id=cs_bogus", nil, testutils.AuthHeaders(testCtx.Token(t, "hr@acme.test")))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Checkout session not found")

	user, err := testCtx.Repository.GetUserByEmail(context.Background(), "hr@acme.test")
	require.NoError(t, err)
	assert.Equal(t, 0, user.PackageLimit)
}
