// Package command contains write operations (CQRS - Commands).
// Commands are responsible for changing the state of the system.
package command

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nivo-app/nivo-hub/internal/domain/billing"
	"github.com/nivo-app/nivo-hub/internal/domain/shared"
	"github.com/nivo-app/nivo-hub/internal/domain/subscription"
)

// ══════════════════════════════════════════════════════════════════════════════
// START CHECKOUT COMMAND
// Creates a hosted checkout session with the billing provider and returns
// the redirect URL. The actual subscription state change happens later,
// when the provider's webhook confirms payment.
// ══════════════════════════════════════════════════════════════════════════════

// StartCheckoutCommand contains the data needed to start a checkout.
type StartCheckoutCommand struct {
	// UserID is the internal ID of the user starting a checkout.
	// Empty means guest checkout: no subscription lookup is performed and
	// the record is created later by the first webhook.
	UserID string

	// PriceID is the provider's price identifier for the plan.
	PriceID string

	// SuccessURL is where the provider returns the user after payment.
	SuccessURL string

	// CancelURL is where the provider returns the user on cancel.
	CancelURL string
}

// Validate validates the command.
func (c StartCheckoutCommand) Validate() error {
	if c.PriceID == "" {
		return errors.New("start_checkout: price_id is required")
	}
	if c.SuccessURL == "" || c.CancelURL == "" {
		return errors.New("start_checkout: success_url and cancel_url are required")
	}
	return nil
}

// StartCheckoutResult contains the result of starting a checkout.
type StartCheckoutResult struct {
	// RedirectURL is the hosted checkout page to send the user to.
	// Already validated against the redirect allow-list.
	RedirectURL string

	// SessionID is the provider's checkout session ID.
	SessionID string

	// Reference is our internal ID for this checkout attempt.
	Reference string

	// ExpiresAt is when the checkout session expires.
	ExpiresAt time.Time
}

// StartCheckoutHandler handles the StartCheckoutCommand.
type StartCheckoutHandler struct {
	checkoutService  billing.CheckoutService
	subscriptionRepo subscription.Repository
	eventBus         shared.EventBus
}

// NewStartCheckoutHandler creates a new StartCheckoutHandler.
func NewStartCheckoutHandler(
	checkoutService billing.CheckoutService,
	subscriptionRepo subscription.Repository,
	eventBus shared.EventBus,
) *StartCheckoutHandler {
	return &StartCheckoutHandler{
		checkoutService:  checkoutService,
		subscriptionRepo: subscriptionRepo,
		eventBus:         eventBus,
	}
}

// Handle executes the start checkout command.
func (h *StartCheckoutHandler) Handle(ctx context.Context, cmd StartCheckoutCommand) (*StartCheckoutResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("command", "StartCheckout", shared.ErrValidation, err.Error(), err)
	}

	// A user with an active elevated subscription has nothing to buy.
	// Guests have no identity to look up; their record is created when the
	// first webhook arrives with the checkout reference.
	var record *subscription.Record
	if cmd.UserID != "" {
		var err error
		record, err = h.subscriptionRepo.GetByUserID(ctx, cmd.UserID)
		if err != nil && !shared.IsNotFound(err) {
			return nil, shared.WrapError("command", "StartCheckout", shared.ErrExternalService,
				"subscription lookup failed", err)
		}
		if record != nil && subscription.DeriveAccess(record, time.Now().UTC()).IsElevated {
			return nil, shared.WrapError("command", "StartCheckout", shared.ErrInvalidState,
				"subscription is already active", nil)
		}
	}

	reference := uuid.New().String()

	session, err := h.checkoutService.CreateCheckoutSession(ctx, billing.CheckoutRequest{
		UserID:     cmd.UserID,
		PriceID:    cmd.PriceID,
		SuccessURL: cmd.SuccessURL,
		CancelURL:  cmd.CancelURL,
		Reference:  reference,
	})
	if err != nil {
		return nil, shared.WrapError("command", "StartCheckout", shared.ErrExternalService,
			"billing provider rejected checkout", err)
	}

	// Ensure a record exists so later webhooks always have a row to update.
	if cmd.UserID != "" && record == nil {
		newRecord, err := subscription.NewRecord(subscription.NewRecordParams{
			ID:         uuid.New().String(),
			UserID:     cmd.UserID,
			Status:     subscription.StatusFree,
			CustomerID: session.CustomerID,
		})
		if err != nil {
			return nil, shared.WrapError("command", "StartCheckout", shared.ErrValidation,
				"cannot create subscription record", err)
		}
		if err := h.subscriptionRepo.Create(ctx, newRecord); err != nil && !shared.IsAlreadyExists(err) {
			return nil, shared.WrapError("command", "StartCheckout", shared.ErrExternalService,
				"cannot persist subscription record", err)
		}
	}

	if h.eventBus != nil {
		subjectID := cmd.UserID
		if subjectID == "" {
			subjectID = reference
		}
		_ = h.eventBus.Publish(ctx, shared.NewBaseEvent(shared.EventCheckoutStarted, subjectID))
	}

	return &StartCheckoutResult{
		RedirectURL: session.RedirectURL,
		SessionID:   session.SessionID,
		Reference:   reference,
		ExpiresAt:   session.ExpiresAt,
	}, nil
}
