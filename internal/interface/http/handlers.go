package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/nivo-app/nivo-hub/internal/application/command"
	"github.com/nivo-app/nivo-hub/internal/application/query"
	"github.com/nivo-app/nivo-hub/internal/domain/shared"
	"github.com/nivo-app/nivo-hub/internal/infrastructure/external/stripe"
	"github.com/nivo-app/nivo-hub/pkg/logger"
)

// maxWebhookBodySize bounds billing webhook payloads.
const maxWebhookBodySize = 1 << 20

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":        "Nivo Hub API",
		"version":     "v1",
		"description": "REST API for the Nivo wellness program core",
		"endpoints": map[string]string{
			"health":   "/health",
			"catalog":  "/api/v1/catalog",
			"access":   "/api/v1/users/{id}/access",
			"rank":     "/api/v1/users/{id}/rank",
			"today":    "/api/v1/users/{id}/today",
			"progress": "/api/v1/users/{id}/progress",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"uptime": s.Uptime().String(),
	})
}

// handleReady handles the readiness probe endpoint.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSONError(w, http.StatusServiceUnavailable, "not_ready", status.Message)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleAdminStats handles GET /admin/stats (API key protected).
func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": s.Uptime().Seconds(),
		"running":        s.IsRunning(),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// handleGetCatalog handles GET /api/v1/catalog
func (s *Server) handleGetCatalog(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetCatalogHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Catalog handler not configured")
		return
	}

	result, err := s.deps.GetCatalogHandler.Handle(r.Context())
	if err != nil {
		s.writeHandlerError(w, r, err, "failed to get catalog")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// USER HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetAccessStatus handles GET /api/v1/users/{id}/access
func (s *Server) handleGetAccessStatus(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID is required")
		return
	}

	if s.deps.GetAccessStatusHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Access handler not configured")
		return
	}

	result, err := s.deps.GetAccessStatusHandler.Handle(r.Context(), query.GetAccessStatusQuery{
		UserID: userID,
	})
	if err != nil {
		s.writeHandlerError(w, r, err, "failed to get access status")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetRankProfile handles GET /api/v1/users/{id}/rank
func (s *Server) handleGetRankProfile(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID is required")
		return
	}

	if s.deps.GetRankProfileHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Rank handler not configured")
		return
	}

	result, err := s.deps.GetRankProfileHandler.Handle(r.Context(), query.GetRankProfileQuery{
		UserID: userID,
	})
	if err != nil {
		s.writeHandlerError(w, r, err, "failed to get rank profile")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetTodaySession handles GET /api/v1/users/{id}/today?tier=...
func (s *Server) handleGetTodaySession(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID is required")
		return
	}

	tier := r.URL.Query().Get("tier")
	if tier == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "tier query parameter is required")
		return
	}

	if s.deps.GetTodaySessionHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Today handler not configured")
		return
	}

	result, err := s.deps.GetTodaySessionHandler.Handle(r.Context(), query.GetTodaySessionQuery{
		UserID: userID,
		Tier:   tier,
	})
	if err != nil {
		s.writeHandlerError(w, r, err, "failed to get today session")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetProgressOverview handles GET /api/v1/users/{id}/progress
func (s *Server) handleGetProgressOverview(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID is required")
		return
	}

	if s.deps.GetProgressOverviewHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Progress handler not configured")
		return
	}

	result, err := s.deps.GetProgressOverviewHandler.Handle(r.Context(), query.GetProgressOverviewQuery{
		UserID: userID,
	})
	if err != nil {
		s.writeHandlerError(w, r, err, "failed to get progress overview")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// CHECKOUT HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// checkoutRequest is the JSON body of POST /api/v1/checkout.
type checkoutRequest struct {
	UserID     string `json:"user_id"`
	PriceID    string `json:"price_id,omitempty"`
	SuccessURL string `json:"success_url,omitempty"`
	CancelURL  string `json:"cancel_url,omitempty"`
}

// handleStartCheckout handles POST /api/v1/checkout
func (s *Server) handleStartCheckout(w http.ResponseWriter, r *http.Request) {
	if s.deps.StartCheckoutHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Checkout handler not configured")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	cmd := command.StartCheckoutCommand{
		UserID:     req.UserID,
		PriceID:    req.PriceID,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	}
	if cmd.PriceID == "" {
		cmd.PriceID = s.config.DefaultPriceID
	}
	if cmd.SuccessURL == "" {
		cmd.SuccessURL = s.config.CheckoutSuccessURL
	}
	if cmd.CancelURL == "" {
		cmd.CancelURL = s.config.CheckoutCancelURL
	}

	result, err := s.deps.StartCheckoutHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeHandlerError(w, r, err, "failed to start checkout")
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETION HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// completionRequest is the JSON body of POST /api/v1/users/{id}/complete.
type completionRequest struct {
	Tier string `json:"tier"`
}

// handleRecordCompletion handles POST /api/v1/users/{id}/complete
func (s *Server) handleRecordCompletion(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID is required")
		return
	}

	if s.deps.RecordDailyCompletionHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Completion handler not configured")
		return
	}

	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	result, err := s.deps.RecordDailyCompletionHandler.Handle(r.Context(), command.RecordDailyCompletionCommand{
		UserID: userID,
		Tier:   req.Tier,
	})
	if err != nil {
		s.writeHandlerError(w, r, err, "failed to record completion")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// BILLING WEBHOOK HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// handleBillingWebhook handles POST /webhook/billing
//
// Signature verification happens before anything touches the payload.
// A duplicate delivery is acknowledged with 200 and skipped; a failure
// after dedup returns 500 so the provider redelivers, and the periodic
// reconciliation job covers anything lost beyond that.
func (s *Server) handleBillingWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Failed to read request body")
		return
	}
	defer r.Body.Close()

	sigHeader := r.Header.Get("Stripe-Signature")
	if err := stripe.VerifySignature(body, sigHeader, s.config.WebhookSecret, s.config.WebhookTolerance, time.Now().UTC()); err != nil {
		s.logger.Warn("webhook signature rejected",
			logger.Err(err),
			logger.String("ip", getClientIP(r)),
		)
		writeJSONError(w, http.StatusUnauthorized, "invalid_signature", "Webhook signature verification failed")
		return
	}

	event, err := stripe.ParseWebhookEvent(body)
	if err != nil {
		s.logger.Error("failed to parse webhook payload", logger.Err(err))
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid webhook payload")
		return
	}

	if s.deps.WebhookDeduper != nil {
		fresh, err := s.deps.WebhookDeduper.MarkProcessed(r.Context(), event.ID)
		if err != nil {
			s.logger.Error("webhook dedup check failed", logger.Err(err), logger.EventID(event.ID))
			writeJSONError(w, http.StatusInternalServerError, "internal_error", "Dedup check failed")
			return
		}
		if !fresh {
			s.logger.Info("duplicate webhook skipped", logger.EventID(event.ID))
			writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
			return
		}
	}

	if s.deps.ApplyBillingEventHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Billing handler not configured")
		return
	}

	result, err := s.deps.ApplyBillingEventHandler.Handle(r.Context(), command.ApplyBillingEventCommand{
		Event: event,
	})
	if err != nil {
		s.logger.Error("failed to apply billing event",
			logger.Err(err),
			logger.EventID(event.ID),
			logger.String("kind", string(event.Kind)),
		)
		s.writeHandlerError(w, r, err, "failed to apply billing event")
		return
	}

	s.logger.Info("billing event applied",
		logger.EventID(event.ID),
		logger.String("kind", string(event.Kind)),
		logger.UserID(result.UserID),
		logger.String("old_status", string(result.OldStatus)),
		logger.String("new_status", string(result.NewStatus)),
	)

	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeHandlerError maps an application error to an HTTP status and logs it.
func (s *Server) writeHandlerError(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	status, code := httpStatusFromError(err)

	if status >= 500 {
		s.logger.Error(logMsg, logger.Err(err), logger.String("path", r.URL.Path))
	} else {
		s.logger.Debug(logMsg, logger.Err(err), logger.String("path", r.URL.Path))
	}

	writeJSONError(w, status, code, err.Error())
}

// httpStatusFromError maps domain error kinds to HTTP statuses.
func httpStatusFromError(err error) (int, string) {
	switch {
	case shared.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case shared.IsAlreadyExists(err):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, shared.ErrAlreadyProcessed):
		return http.StatusConflict, "already_processed"
	case errors.Is(err, shared.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, shared.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case shared.IsExternalService(err):
		return http.StatusServiceUnavailable, "service_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
