// Package shared contains common domain types, errors, and events
// that are used across all domain packages.
package shared

import (
	"context"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - each event represents something significant
// that happened in the domain.
const (
	// Subscription events
	EventCheckoutStarted      EventType = "subscription.checkout_started"
	EventSubscriptionUpdated  EventType = "subscription.updated"
	EventSubscriptionLapsed   EventType = "subscription.lapsed"
	EventSubscriptionRenewed  EventType = "subscription.renewed"
	EventSubscriptionCanceled EventType = "subscription.canceled"

	// Progression events
	EventDayCompleted  EventType = "progression.day_completed"
	EventStreakUpdated EventType = "progression.streak_updated"
	EventStreakBroken  EventType = "progression.streak_broken"
	EventProgramDone   EventType = "progression.program_done"

	// Rank events
	EventRankAdvanced EventType = "rank.advanced"

	// System events
	EventReconcileCompleted EventType = "system.reconcile_completed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string
}

// EventHandler processes a single domain event.
type EventHandler func(ctx context.Context, event Event) error

// EventBus dispatches domain events to subscribed handlers.
type EventBus interface {
	// Publish delivers the event to all subscribed handlers.
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a handler for a specific event type.
	Subscribe(eventType EventType, handler EventHandler) error
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
	}
}

// SubscriptionUpdatedEvent is emitted when a billing event changes a
// subscription row (status or period end).
type SubscriptionUpdatedEvent struct {
	BaseEvent
	UserID    string `json:"user_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

// DayCompletedEvent is emitted when a user completes the current day's session.
type DayCompletedEvent struct {
	BaseEvent
	UserID    string `json:"user_id"`
	ProgramID string `json:"program_id"`
	Day       int    `json:"day"`
	Streak    int    `json:"streak"`
}

// StreakBrokenEvent is emitted when a reconciliation pass resets a streak.
type StreakBrokenEvent struct {
	BaseEvent
	UserID     string `json:"user_id"`
	ProgramID  string `json:"program_id"`
	LostStreak int    `json:"lost_streak"`
}
