package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// FakeGateway is an in-process PaymentGateway for tests and local development.
// Sessions start unpaid; MarkPaid flips them.
type FakeGateway struct {
	mu       sync.Mutex
	sessions map[string]*Session
	// Err, when set, is returned from every call
	Err error
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{sessions: map[string]*Session{}}
}

func (f *FakeGateway) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}

	id := "cs_test_" + uuid.NewString()
	s := &Session{
		ID:            id,
		URL:           fmt.Sprintf("https://checkout.example.test/%s", id),
		CustomerEmail: req.CustomerEmail,
		AmountTotal:   req.AmountCents,
		Metadata:      req.Metadata,
	}
	f.sessions[id] = s
	out := *s
	return &out, nil
}

func (f *FakeGateway) RetrieveSession(_ context.Context, sessionID string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}

	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	out := *s
	return &out, nil
}

// MarkPaid records a successful payment for the session under paymentIntentID
func (f *FakeGateway) MarkPaid(sessionID, paymentIntentID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[sessionID]; ok {
		s.Paid = true
		s.PaymentIntentID = paymentIntentID
	}
}

// AddSession registers a session directly, bypassing CreateCheckoutSession
func (f *FakeGateway) AddSession(s Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = &s
}
