package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRedirect(t *testing.T) {
	allowed := []string{"checkout.stripe.com", "pay.nivo.app"}

	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{
			name: "allow-listed host passes",
			raw:  "https://checkout.stripe.com/c/pay/cs_test_123",
		},
		{
			name: "second allow-listed host passes",
			raw:  "https://pay.nivo.app/session/abc",
		},
		{
			name: "host comparison is case-insensitive",
			raw:  "https://Checkout.Stripe.Com/c/pay/cs_test_123",
		},
		{
			name:    "unknown host rejected",
			raw:     "https://evil.example.com/pay",
			wantErr: ErrUntrustedRedirect,
		},
		{
			name:    "subdomain suffix trick rejected",
			raw:     "https://checkout.stripe.com.evil.io/pay",
			wantErr: ErrUntrustedRedirect,
		},
		{
			name:    "plain http rejected",
			raw:     "http://checkout.stripe.com/c/pay/cs_test_123",
			wantErr: ErrMalformedRedirect,
		},
		{
			name:    "relative url rejected",
			raw:     "/c/pay/cs_test_123",
			wantErr: ErrMalformedRedirect,
		},
		{
			name:    "garbage rejected",
			raw:     "://not-a-url",
			wantErr: ErrMalformedRedirect,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRedirect(tt.raw, allowed)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateRedirect_EmptyAllowList(t *testing.T) {
	err := ValidateRedirect("https://checkout.stripe.com/c/pay/x", nil)
	assert.ErrorIs(t, err, ErrUntrustedRedirect)
}
