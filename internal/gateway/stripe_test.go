package gateway

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v76"
)

func TestRetrieveErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		notFound bool
	}{
		{
			name:     "resource missing",
			err:      &stripe.Error{Code: stripe.ErrorCodeResourceMissing, Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: http.StatusNotFound},
			notFound: true,
		},
		{
			name:     "malformed id",
			err:      &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: http.StatusBadRequest},
			notFound: true,
		},
		{
			name: "provider error",
			err:  &stripe.Error{Type: stripe.ErrorTypeAPI, HTTPStatusCode: http.StatusInternalServerError},
		},
		{
			name: "network failure",
			err:  errors.New("dial tcp: connection refused"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := retrieveError("cs_x", tt.err)
			assert.Equal(t, tt.notFound, errors.Is(err, ErrSessionNotFound))
			assert.Equal(t, !tt.notFound, errors.Is(err, ErrUnavailable))
		})
	}
}
