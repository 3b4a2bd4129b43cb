package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nivo-app/nivo-hub/internal/domain/billing"
	"github.com/nivo-app/nivo-hub/internal/domain/shared"
)

func newTestClient(t *testing.T, serverURL string, allowedHosts []string) *Client {
	t.Helper()

	config := DefaultClientConfig()
	config.BaseURL = serverURL
	config.APIKey = "sk_test_123"
	config.AllowedRedirectHosts = allowedHosts
	config.RetryConfig.MaxRetries = 1
	config.RetryConfig.InitialBackoff = time.Millisecond

	client, err := NewClient(config)
	require.NoError(t, err)
	return client
}

func TestCreateCheckoutSession(t *testing.T) {
	var gotAuth, gotMode, gotReference string

	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotAuth = r.Header.Get("Authorization")
		gotMode = r.PostFormValue("mode")
		gotReference = r.PostFormValue("client_reference_id")

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"id": "cs_test_abc",
			"url": "https://%s/c/pay/cs_test_abc",
			"customer": "cus_900",
			"expires_at": 1756684800
		}`, "checkout.stripe.com")
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, []string{"checkout.stripe.com"})
	client.httpClient = server.Client()

	session, err := client.CreateCheckoutSession(context.Background(), billing.CheckoutRequest{
		UserID:     "u1",
		PriceID:    "price_pro_monthly",
		SuccessURL: "https://nivo.app/billing/success",
		CancelURL:  "https://nivo.app/billing/cancel",
		Reference:  "ref-42",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk_test_123", gotAuth)
	assert.Equal(t, "subscription", gotMode)
	assert.Equal(t, "u1", gotReference)

	assert.Equal(t, "cs_test_abc", session.SessionID)
	assert.Equal(t, "cus_900", session.CustomerID)
	assert.Contains(t, session.RedirectURL, "checkout.stripe.com")
	assert.False(t, session.ExpiresAt.IsZero())
}

func TestCreateCheckoutSession_UntrustedRedirect(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": "cs_test_evil", "url": "https://evil.example.com/pay", "customer": "cus_1"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, []string{"checkout.stripe.com"})
	client.httpClient = server.Client()

	_, err := client.CreateCheckoutSession(context.Background(), billing.CheckoutRequest{
		UserID:  "u1",
		PriceID: "price_pro_monthly",
	})
	require.Error(t, err)
	assert.True(t, shared.IsExternalService(err))
}

func TestCreateCheckoutSession_APIError(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": {"type": "invalid_request_error", "message": "No such price"}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, []string{"checkout.stripe.com"})
	client.httpClient = server.Client()

	_, err := client.CreateCheckoutSession(context.Background(), billing.CheckoutRequest{
		UserID:  "u1",
		PriceID: "price_missing",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No such price")
	assert.True(t, shared.IsExternalService(err))
}

func TestCreateCheckoutSession_RetriesServerErrors(t *testing.T) {
	var calls int
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": "cs_ok", "url": "https://checkout.stripe.com/c/pay/cs_ok", "customer": "cus_1"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, []string{"checkout.stripe.com"})
	client.httpClient = server.Client()

	session, err := client.CreateCheckoutSession(context.Background(), billing.CheckoutRequest{
		UserID:  "u1",
		PriceID: "price_pro_monthly",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "cs_ok", session.SessionID)
}

func signPayload(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_1","type":"customer.subscription.updated"}`)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("valid signature passes", func(t *testing.T) {
		header := signPayload(secret, now.Unix(), payload)
		assert.NoError(t, VerifySignature(payload, header, secret, 0, now))
	})

	t.Run("wrong secret fails", func(t *testing.T) {
		header := signPayload("whsec_other", now.Unix(), payload)
		assert.ErrorIs(t, VerifySignature(payload, header, secret, 0, now), ErrInvalidSignature)
	})

	t.Run("tampered payload fails", func(t *testing.T) {
		header := signPayload(secret, now.Unix(), payload)
		tampered := []byte(`{"id":"evt_1","type":"customer.subscription.deleted"}`)
		assert.ErrorIs(t, VerifySignature(tampered, header, secret, 0, now), ErrInvalidSignature)
	})

	t.Run("old timestamp fails", func(t *testing.T) {
		header := signPayload(secret, now.Add(-10*time.Minute).Unix(), payload)
		assert.ErrorIs(t, VerifySignature(payload, header, secret, 0, now), ErrSignatureExpired)
	})

	t.Run("malformed header fails", func(t *testing.T) {
		assert.ErrorIs(t, VerifySignature(payload, "garbage", secret, 0, now), ErrMalformedSignature)
		assert.ErrorIs(t, VerifySignature(payload, "", secret, 0, now), ErrMalformedSignature)
		assert.ErrorIs(t, VerifySignature(payload, "t=abc,v1=00", secret, 0, now), ErrMalformedSignature)
	})
}

func TestParseWebhookEvent_SubscriptionUpdated(t *testing.T) {
	payload := []byte(`{
		"id": "evt_100",
		"type": "customer.subscription.updated",
		"created": 1756684800,
		"data": {
			"object": {
				"id": "sub_555",
				"customer": "cus_900",
				"status": "active",
				"current_period_end": 1759363200
			}
		}
	}`)

	event, err := ParseWebhookEvent(payload)
	require.NoError(t, err)

	assert.Equal(t, "evt_100", event.ID)
	assert.Equal(t, billing.EventSubscriptionUpdated, event.Kind)
	assert.Equal(t, "cus_900", event.CustomerID)
	assert.Equal(t, "sub_555", event.SubscriptionID)
	assert.Equal(t, "active", event.Status)
	require.NotNil(t, event.CurrentPeriodEnd)
	assert.Equal(t, time.Unix(1759363200, 0).UTC(), *event.CurrentPeriodEnd)
}

func TestParseWebhookEvent_CheckoutCompleted(t *testing.T) {
	payload := []byte(`{
		"id": "evt_200",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_test_abc",
				"customer": "cus_900",
				"subscription": "sub_555",
				"client_reference_id": "u1"
			}
		}
	}`)

	event, err := ParseWebhookEvent(payload)
	require.NoError(t, err)

	assert.Equal(t, billing.EventCheckoutCompleted, event.Kind)
	assert.Equal(t, "sub_555", event.SubscriptionID)
	assert.Equal(t, "u1", event.ClientReference)
	assert.Nil(t, event.CurrentPeriodEnd)
}

func TestParseWebhookEvent_SubscriptionDeleted(t *testing.T) {
	payload := []byte(`{
		"id": "evt_300",
		"type": "customer.subscription.deleted",
		"data": {
			"object": {
				"id": "sub_555",
				"customer": "cus_900",
				"status": "canceled"
			}
		}
	}`)

	event, err := ParseWebhookEvent(payload)
	require.NoError(t, err)

	assert.Equal(t, billing.EventSubscriptionDeleted, event.Kind)
	assert.Equal(t, "sub_555", event.SubscriptionID)
	assert.Equal(t, "canceled", event.Status)
}

func TestParseWebhookEvent_Malformed(t *testing.T) {
	_, err := ParseWebhookEvent([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParseWebhookEvent([]byte(`{"data": {}}`))
	assert.Error(t, err)
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold:   3,
		SuccessThreshold:   1,
		Timeout:            time.Minute,
		HalfOpenMaxRetries: 1,
	})

	for i := 0; i < 3; i++ {
		assert.NoError(t, cb.Allow())
		cb.RecordFailure()
	}

	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestRetryConfig_BackoffGrowsAndCaps(t *testing.T) {
	config := RetryConfig{
		MaxRetries:        5,
		InitialBackoff:    time.Second,
		MaxBackoff:        4 * time.Second,
		BackoffMultiplier: 2.0,
	}

	assert.Equal(t, time.Second, config.CalculateBackoff(0))
	assert.Equal(t, 2*time.Second, config.CalculateBackoff(1))
	assert.Equal(t, 4*time.Second, config.CalculateBackoff(2))
	assert.Equal(t, 4*time.Second, config.CalculateBackoff(10))
}
