package gateway

import (
	"context"
	"errors"
)

// ErrUnavailable wraps every failure talking to the payment provider
var ErrUnavailable = errors.New("payment gateway unavailable")

// ErrSessionNotFound means the provider has no checkout session with the given id
var ErrSessionNotFound = errors.New("checkout session not found")

// CheckoutRequest describes a one-off hosted checkout for a package
type CheckoutRequest struct {
	ProductName   string
	Description   string
	AmountCents   int64
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// Session is the provider's view of a checkout session
type Session struct {
	ID              string
	URL             string
	Paid            bool
	PaymentIntentID string
	CustomerEmail   string
	AmountTotal     int64
	Metadata        map[string]string
}

// PaymentGateway creates hosted checkout sessions and reports their payment state
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*Session, error)
	RetrieveSession(ctx context.Context, sessionID string) (*Session, error)
}
