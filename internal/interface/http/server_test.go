package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nivo-app/nivo-hub/internal/application/command"
	"github.com/nivo-app/nivo-hub/internal/application/query"
	"github.com/nivo-app/nivo-hub/internal/domain/shared"
	"github.com/nivo-app/nivo-hub/internal/domain/subscription"
	"github.com/nivo-app/nivo-hub/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type fakeSubscriptionRepo struct {
	mu      sync.Mutex
	records map[string]*subscription.Record
	getErr  error
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{records: make(map[string]*subscription.Record)}
}

func (r *fakeSubscriptionRepo) Create(ctx context.Context, record *subscription.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.UserID] = record
	return nil
}

func (r *fakeSubscriptionRepo) GetByUserID(ctx context.Context, userID string) (*subscription.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	if record, ok := r.records[userID]; ok {
		return record, nil
	}
	return nil, shared.WrapError("subscription", "GetByUserID", shared.ErrNotFound,
		"no record for user", subscription.ErrRecordNotFound)
}

func (r *fakeSubscriptionRepo) GetByCustomerID(ctx context.Context, customerID string) (*subscription.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range r.records {
		if record.CustomerID == customerID {
			return record, nil
		}
	}
	return nil, shared.WrapError("subscription", "GetByCustomerID", shared.ErrNotFound,
		"no record for customer", subscription.ErrRecordNotFound)
}

func (r *fakeSubscriptionRepo) Update(ctx context.Context, record *subscription.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.UserID] = record
	return nil
}

func (r *fakeSubscriptionRepo) FindLapsed(ctx context.Context, cutoff time.Time) ([]*subscription.Record, error) {
	return nil, nil
}

type fakeDeduper struct {
	mu        sync.Mutex
	seen      map[string]bool
	callCount int
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{seen: make(map[string]bool)}
}

func (d *fakeDeduper) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callCount++
	if d.seen[eventID] {
		return false, nil
	}
	d.seen[eventID] = true
	return true, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TEST SETUP
// ══════════════════════════════════════════════════════════════════════════════

const testWebhookSecret = "whsec_test_secret"

func newTestServer(subRepo *fakeSubscriptionRepo, deduper *fakeDeduper) *Server {
	config := DefaultConfig()
	config.WebhookSecret = testWebhookSecret
	config.RateLimitPerMinute = 0

	deps := Dependencies{
		GetCatalogHandler:        query.NewGetCatalogHandler(),
		GetAccessStatusHandler:   query.NewGetAccessStatusHandler(subRepo, nil),
		GetRankProfileHandler:    query.NewGetRankProfileHandler(subRepo, nil),
		ApplyBillingEventHandler: command.NewApplyBillingEventHandler(subRepo, nil, nil, nil),
		WebhookDeduper:           deduper,
		HealthChecker:            handlers.NewNoopHealthChecker(),
	}

	return NewServer(config, deps)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func doRequest(s *Server, method, path string, body string, header map[string]string) (*httptest.ResponseRecorder, envelope) {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	for k, v := range header {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func signWebhookPayload(payload string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts.Unix(), payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & CATALOG
// ══════════════════════════════════════════════════════════════════════════════

func TestServer_Health(t *testing.T) {
	s := newTestServer(newFakeSubscriptionRepo(), newFakeDeduper())

	rec, env := doRequest(s, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
}

func TestServer_Catalog(t *testing.T) {
	s := newTestServer(newFakeSubscriptionRepo(), newFakeDeduper())

	rec, env := doRequest(s, http.MethodGet, "/api/v1/catalog", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)

	var catalog struct {
		Programs []struct {
			Tier string `json:"tier"`
		} `json:"programs"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &catalog))
	assert.Len(t, catalog.Programs, 3)
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCESS STATUS
// ══════════════════════════════════════════════════════════════════════════════

func TestServer_AccessStatus_NoRecordIsFree(t *testing.T) {
	s := newTestServer(newFakeSubscriptionRepo(), newFakeDeduper())

	rec, env := doRequest(s, http.MethodGet, "/api/v1/users/u1/access", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var dto struct {
		Level      string `json:"level"`
		IsElevated bool   `json:"is_elevated"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &dto))
	assert.Equal(t, "free", dto.Level)
	assert.False(t, dto.IsElevated)
}

func TestServer_AccessStatus_ProUser(t *testing.T) {
	repo := newFakeSubscriptionRepo()
	record, err := subscription.NewRecord(subscription.NewRecordParams{
		ID:         "rec-1",
		UserID:     "u1",
		Status:     subscription.StatusFree,
		CustomerID: "cus_1",
	})
	require.NoError(t, err)

	periodEnd := time.Now().UTC().Add(20 * 24 * time.Hour)
	require.NoError(t, record.ApplyBillingUpdate(subscription.StatusPro, "sub_1", &periodEnd, time.Now().UTC()))
	require.NoError(t, repo.Create(context.Background(), record))

	s := newTestServer(repo, newFakeDeduper())

	rec, env := doRequest(s, http.MethodGet, "/api/v1/users/u1/access", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var dto struct {
		Level           string `json:"level"`
		IsElevated      bool   `json:"is_elevated"`
		DaysUntilExpiry *int   `json:"days_until_expiry"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &dto))
	assert.Equal(t, "pro", dto.Level)
	assert.True(t, dto.IsElevated)
	require.NotNil(t, dto.DaysUntilExpiry)
	assert.Equal(t, 20, *dto.DaysUntilExpiry)
}

func TestServer_AccessStatus_StoreFailureIs503(t *testing.T) {
	repo := newFakeSubscriptionRepo()
	repo.getErr = fmt.Errorf("connection refused")

	s := newTestServer(repo, newFakeDeduper())

	rec, env := doRequest(s, http.MethodGet, "/api/v1/users/u1/access", "", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "service_unavailable", env.Error.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// BILLING WEBHOOK
// ══════════════════════════════════════════════════════════════════════════════

const checkoutCompletedPayload = `{
	"id": "evt_100",
	"type": "checkout.session.completed",
	"created": 1756632000,
	"data": {"object": {
		"id": "cs_1",
		"customer": "cus_42",
		"subscription": "sub_42",
		"client_reference_id": "u1"
	}}
}`

func TestServer_BillingWebhook_AppliesEvent(t *testing.T) {
	repo := newFakeSubscriptionRepo()
	s := newTestServer(repo, newFakeDeduper())

	sig := signWebhookPayload(checkoutCompletedPayload, time.Now())
	rec, env := doRequest(s, http.MethodPost, "/webhook/billing", checkoutCompletedPayload,
		map[string]string{"Stripe-Signature": sig})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	record, err := repo.GetByUserID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPro, record.Status)
	assert.Equal(t, "cus_42", record.CustomerID)
}

func TestServer_BillingWebhook_DuplicateIsSkipped(t *testing.T) {
	repo := newFakeSubscriptionRepo()
	deduper := newFakeDeduper()
	s := newTestServer(repo, deduper)

	sig := signWebhookPayload(checkoutCompletedPayload, time.Now())
	headers := map[string]string{"Stripe-Signature": sig}

	rec, _ := doRequest(s, http.MethodPost, "/webhook/billing", checkoutCompletedPayload, headers)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := doRequest(s, http.MethodPost, "/webhook/billing", checkoutCompletedPayload, headers)
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, "duplicate", status["status"])
	assert.Equal(t, 2, deduper.callCount)
}

func TestServer_BillingWebhook_RejectsBadSignature(t *testing.T) {
	repo := newFakeSubscriptionRepo()
	s := newTestServer(repo, newFakeDeduper())

	rec, env := doRequest(s, http.MethodPost, "/webhook/billing", checkoutCompletedPayload,
		map[string]string{"Stripe-Signature": "t=1,v1=deadbeef"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_signature", env.Error.Code)

	_, err := repo.GetByUserID(context.Background(), "u1")
	assert.True(t, shared.IsNotFound(err))
}

func TestServer_BillingWebhook_RejectsMissingSignature(t *testing.T) {
	s := newTestServer(newFakeSubscriptionRepo(), newFakeDeduper())

	rec, _ := doRequest(s, http.MethodPost, "/webhook/billing", checkoutCompletedPayload, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN & INFRASTRUCTURE
// ══════════════════════════════════════════════════════════════════════════════

func TestServer_AdminStatsRequiresAPIKey(t *testing.T) {
	hash, err := handlers.HashKey("topsecret")
	require.NoError(t, err)

	config := DefaultConfig()
	config.RateLimitPerMinute = 0
	config.APIKeyHashes = []string{hash}

	s := NewServer(config, Dependencies{HealthChecker: handlers.NewNoopHealthChecker()})

	rec, _ := doRequest(s, http.MethodGet, "/admin/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = doRequest(s, http.MethodGet, "/admin/stats", "",
		map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env := doRequest(s, http.MethodGet, "/admin/stats", "",
		map[string]string{"X-API-Key": "topsecret"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))

	// Other clients are unaffected.
	assert.True(t, rl.Allow("5.6.7.8"))
}

func TestHTTPStatusFromError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", shared.WrapError("q", "Op", shared.ErrValidation, "bad", nil), http.StatusBadRequest},
		{"not found", shared.WrapError("q", "Op", shared.ErrNotFound, "missing", nil), http.StatusNotFound},
		{"forbidden", shared.WrapError("c", "Op", shared.ErrForbidden, "locked", nil), http.StatusForbidden},
		{"already processed", shared.WrapError("c", "Op", shared.ErrAlreadyProcessed, "done", nil), http.StatusConflict},
		{"external", shared.WrapError("q", "Op", shared.ErrExternalService, "down", nil), http.StatusServiceUnavailable},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, _ := httpStatusFromError(tc.err)
			assert.Equal(t, tc.status, status)
		})
	}
}
