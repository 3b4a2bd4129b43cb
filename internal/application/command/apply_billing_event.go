package command

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nivo-app/nivo-hub/internal/domain/billing"
	"github.com/nivo-app/nivo-hub/internal/domain/progression"
	"github.com/nivo-app/nivo-hub/internal/domain/shared"
	"github.com/nivo-app/nivo-hub/internal/domain/subscription"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLY BILLING EVENT COMMAND
// Applies a verified webhook event from the billing provider to the local
// subscription record. This is the only write path for subscription state:
// the core never decides a user is paid on its own, it mirrors the provider.
// ══════════════════════════════════════════════════════════════════════════════

// ApplyBillingEventCommand contains a verified webhook event.
type ApplyBillingEventCommand struct {
	// Event is the normalized webhook event. Signature verification
	// happens at the transport layer before this command is built.
	Event billing.WebhookEvent
}

// Validate validates the command.
func (c ApplyBillingEventCommand) Validate() error {
	if c.Event.ID == "" {
		return errors.New("apply_billing_event: event id is required")
	}
	if c.Event.Kind == "" {
		return errors.New("apply_billing_event: event kind is required")
	}
	if c.Event.CustomerID == "" && c.Event.ClientReference == "" {
		return errors.New("apply_billing_event: customer_id or client_reference is required")
	}
	return nil
}

// ApplyBillingEventResult contains the result of applying a billing event.
type ApplyBillingEventResult struct {
	// UserID is the affected user.
	UserID string

	// OldStatus is the subscription status before the event.
	OldStatus subscription.Status

	// NewStatus is the subscription status after the event.
	NewStatus subscription.Status

	// AccessChanged indicates the elevated/free boundary was crossed.
	AccessChanged bool

	// AppliedAt is when the event was applied.
	AppliedAt time.Time
}

// ApplyBillingEventHandler handles the ApplyBillingEventCommand.
type ApplyBillingEventHandler struct {
	subscriptionRepo  subscription.Repository
	subscriptionCache subscription.Cache
	progressionRepo   progression.Repository
	eventBus          shared.EventBus
}

// NewApplyBillingEventHandler creates a new ApplyBillingEventHandler.
func NewApplyBillingEventHandler(
	subscriptionRepo subscription.Repository,
	subscriptionCache subscription.Cache,
	progressionRepo progression.Repository,
	eventBus shared.EventBus,
) *ApplyBillingEventHandler {
	return &ApplyBillingEventHandler{
		subscriptionRepo:  subscriptionRepo,
		subscriptionCache: subscriptionCache,
		progressionRepo:   progressionRepo,
		eventBus:          eventBus,
	}
}

// Handle executes the apply billing event command.
func (h *ApplyBillingEventHandler) Handle(ctx context.Context, cmd ApplyBillingEventCommand) (*ApplyBillingEventResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("command", "ApplyBillingEvent", shared.ErrValidation, err.Error(), err)
	}

	event := cmd.Event
	now := event.ReceivedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	record, err := h.findRecord(ctx, event)
	if err != nil {
		return nil, err
	}

	oldStatus := record.Status
	wasElevated := oldStatus.IsElevated()

	newStatus, err := mapProviderStatus(event)
	if err != nil {
		return nil, shared.WrapError("command", "ApplyBillingEvent", shared.ErrValidation,
			"unmappable provider status", err)
	}

	if event.CustomerID != "" && record.CustomerID == "" {
		record.CustomerID = event.CustomerID
	}

	if err := record.ApplyBillingUpdate(newStatus, event.SubscriptionID, event.CurrentPeriodEnd, now); err != nil {
		return nil, shared.WrapError("command", "ApplyBillingEvent", shared.ErrValidation,
			"cannot apply billing update", err)
	}

	if err := h.subscriptionRepo.Update(ctx, record); err != nil {
		return nil, shared.WrapError("command", "ApplyBillingEvent", shared.ErrExternalService,
			"cannot persist subscription record", err)
	}

	// Stale snapshots would keep serving the old access level.
	if h.subscriptionCache != nil {
		_ = h.subscriptionCache.Invalidate(ctx, record.UserID)
	}

	isElevated := newStatus.IsElevated()
	accessChanged := wasElevated != isElevated

	if accessChanged && h.progressionRepo != nil {
		// Up: open paid programs. Down: close them, progress stays.
		if err := h.progressionRepo.SetUnlockedForUser(ctx, record.UserID, isElevated); err != nil {
			return nil, shared.WrapError("command", "ApplyBillingEvent", shared.ErrExternalService,
				"cannot update program locks", err)
		}
	}

	h.publish(ctx, record.UserID, oldStatus, newStatus)

	return &ApplyBillingEventResult{
		UserID:        record.UserID,
		OldStatus:     oldStatus,
		NewStatus:     newStatus,
		AccessChanged: accessChanged,
		AppliedAt:     now,
	}, nil
}

// findRecord locates the subscription record for a webhook event:
// by provider customer ID first, then by the client reference we set
// at checkout (the user ID). A first-payment event for a user without
// a record creates one.
func (h *ApplyBillingEventHandler) findRecord(ctx context.Context, event billing.WebhookEvent) (*subscription.Record, error) {
	if event.CustomerID != "" {
		record, err := h.subscriptionRepo.GetByCustomerID(ctx, event.CustomerID)
		if err == nil {
			return record, nil
		}
		if !shared.IsNotFound(err) {
			return nil, shared.WrapError("command", "ApplyBillingEvent", shared.ErrExternalService,
				"subscription lookup failed", err)
		}
	}

	if event.ClientReference == "" {
		return nil, shared.WrapError("command", "ApplyBillingEvent", shared.ErrNotFound,
			"no subscription record for customer "+event.CustomerID, subscription.ErrRecordNotFound)
	}

	record, err := h.subscriptionRepo.GetByUserID(ctx, event.ClientReference)
	if err == nil {
		return record, nil
	}
	if !shared.IsNotFound(err) {
		return nil, shared.WrapError("command", "ApplyBillingEvent", shared.ErrExternalService,
			"subscription lookup failed", err)
	}

	record, err = subscription.NewRecord(subscription.NewRecordParams{
		ID:         uuid.New().String(),
		UserID:     event.ClientReference,
		Status:     subscription.StatusFree,
		CustomerID: event.CustomerID,
	})
	if err != nil {
		return nil, shared.WrapError("command", "ApplyBillingEvent", shared.ErrValidation,
			"cannot create subscription record", err)
	}
	if err := h.subscriptionRepo.Create(ctx, record); err != nil {
		return nil, shared.WrapError("command", "ApplyBillingEvent", shared.ErrExternalService,
			"cannot persist subscription record", err)
	}
	return record, nil
}

// mapProviderStatus converts the provider's event and status strings
// into our subscription status.
func mapProviderStatus(event billing.WebhookEvent) (subscription.Status, error) {
	switch event.Kind {
	case billing.EventSubscriptionDeleted:
		return subscription.StatusCanceled, nil
	case billing.EventPaymentFailed:
		return subscription.StatusPastDue, nil
	}

	switch event.Status {
	case "active":
		return subscription.StatusPro, nil
	case "trialing":
		return subscription.StatusTrialing, nil
	case "past_due":
		return subscription.StatusPastDue, nil
	case "canceled", "unpaid", "incomplete_expired":
		return subscription.StatusCanceled, nil
	case "":
		// Checkout completion without an explicit status means active.
		if event.Kind == billing.EventCheckoutCompleted {
			return subscription.StatusPro, nil
		}
	}

	return "", errors.New("unknown provider status: " + event.Status)
}

// publish emits the domain event matching the transition.
func (h *ApplyBillingEventHandler) publish(ctx context.Context, userID string, oldStatus, newStatus subscription.Status) {
	if h.eventBus == nil {
		return
	}

	eventType := shared.EventSubscriptionUpdated
	switch {
	case !oldStatus.IsElevated() && newStatus.IsElevated():
		eventType = shared.EventSubscriptionRenewed
	case oldStatus.IsElevated() && newStatus == subscription.StatusCanceled:
		eventType = shared.EventSubscriptionCanceled
	case oldStatus.IsElevated() && !newStatus.IsElevated():
		eventType = shared.EventSubscriptionLapsed
	}

	_ = h.eventBus.Publish(ctx, shared.SubscriptionUpdatedEvent{
		BaseEvent: shared.NewBaseEvent(eventType, userID),
		UserID:    userID,
		OldStatus: string(oldStatus),
		NewStatus: string(newStatus),
	})
}
