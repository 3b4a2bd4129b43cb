// Package jobs contains implementations of scheduled jobs for Nivo Hub.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nivo-app/nivo-hub/internal/domain/shared"
	"github.com/nivo-app/nivo-hub/internal/domain/subscription"
	"github.com/nivo-app/nivo-hub/pkg/circuitbreaker"
	"github.com/nivo-app/nivo-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE SUBSCRIPTIONS JOB
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileSubscriptionsJob finds subscription records whose paid period has
// ended while the status still grants elevated access, and downgrades them.
//
// Webhooks from the billing provider are the normal write path; this job is
// the safety net for deliveries that never arrived. A user whose renewal
// invoice failed on a day the webhook endpoint was down must still lose
// access once the paid period runs out.
type ReconcileSubscriptionsJob struct {
	subscriptionRepo subscription.Repository
	progressionRepo  progressionLocker
	cache            subscription.Cache
	eventBus         shared.EventBus
	logger           *slog.Logger
	config           ReconcileConfig

	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker

	lastRunStats atomic.Value // *ReconcileStats
}

// progressionLocker is the slice of the progression repository this job needs.
type progressionLocker interface {
	SetUnlockedForUser(ctx context.Context, userID string, unlocked bool) error
}

// ReconcileConfig contains configuration for the reconciliation job.
type ReconcileConfig struct {
	// GracePeriod delays the downgrade after the period end, leaving room
	// for a renewal webhook that is merely late.
	GracePeriod time.Duration

	// Timeout is the maximum duration for one reconciliation pass.
	Timeout time.Duration
}

// DefaultReconcileConfig returns sensible defaults.
func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		GracePeriod: 6 * time.Hour,
		Timeout:     5 * time.Minute,
	}
}

// ReconcileStats contains statistics from a reconciliation pass.
type ReconcileStats struct {
	StartedAt        time.Time
	CompletedAt      time.Time
	Duration         time.Duration
	LapsedFound      int
	Downgraded       int
	CacheInvalidated int
	Errors           []error
}

// NewReconcileSubscriptionsJob creates a new reconciliation job.
func NewReconcileSubscriptionsJob(
	subscriptionRepo subscription.Repository,
	progressionRepo progressionLocker,
	cache subscription.Cache,
	eventBus shared.EventBus,
	logger *slog.Logger,
	config ReconcileConfig,
) *ReconcileSubscriptionsJob {
	if logger == nil {
		logger = slog.Default()
	}

	j := &ReconcileSubscriptionsJob{
		subscriptionRepo: subscriptionRepo,
		progressionRepo:  progressionRepo,
		cache:            cache,
		eventBus:         eventBus,
		logger:           logger,
		config:           config,
		retrier: retry.New(
			retry.WithMaxAttempts(3),
			retry.WithInitialDelay(50*time.Millisecond),
			retry.WithMaxDelay(time.Second),
			retry.WithRetryIf(func(err error) bool {
				// Transport failures are worth retrying; domain outcomes are not.
				return !shared.IsNotFound(err) && !shared.IsValidation(err)
			}),
		),
	}
	j.breaker = circuitbreaker.DatabaseBreaker(func(name string, from, to circuitbreaker.State) {
		logger.Warn("circuit breaker state changed",
			"breaker", name,
			"from", from.String(),
			"to", to.String(),
		)
	})

	return j
}

// Name returns the job name.
func (j *ReconcileSubscriptionsJob) Name() string {
	return "reconcile_subscriptions"
}

// Description returns a human-readable description.
func (j *ReconcileSubscriptionsJob) Description() string {
	return "Downgrades subscriptions whose paid period ended without a webhook"
}

// Run executes one reconciliation pass.
func (j *ReconcileSubscriptionsJob) Run(ctx context.Context) error {
	startedAt := time.Now().UTC()
	stats := &ReconcileStats{
		StartedAt: startedAt,
		Errors:    make([]error, 0),
	}

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	cutoff := startedAt.Add(-j.config.GracePeriod)

	lapsed, err := j.subscriptionRepo.FindLapsed(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to find lapsed subscriptions: %w", err)
	}
	stats.LapsedFound = len(lapsed)

	for _, record := range lapsed {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := j.downgrade(ctx, record, startedAt, stats); err != nil {
			stats.Errors = append(stats.Errors, err)
			j.logger.Error("failed to downgrade lapsed subscription",
				"user_id", record.UserID,
				"error", err,
			)
		}
	}

	stats.CompletedAt = time.Now().UTC()
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastRunStats.Store(stats)

	j.logger.Info("reconcile_subscriptions completed",
		"duration", stats.Duration.String(),
		"lapsed_found", stats.LapsedFound,
		"downgraded", stats.Downgraded,
		"errors", len(stats.Errors),
	)

	return nil
}

// downgrade moves one lapsed record to past_due and revokes paid access.
func (j *ReconcileSubscriptionsJob) downgrade(
	ctx context.Context,
	record *subscription.Record,
	now time.Time,
	stats *ReconcileStats,
) error {
	oldStatus := record.Status

	if err := record.ApplyBillingUpdate(subscription.StatusPastDue, "", record.CurrentPeriodEnd, now); err != nil {
		return err
	}

	err := j.breaker.Execute(ctx, func(ctx context.Context) error {
		return j.retrier.Do(ctx, func(ctx context.Context) error {
			return j.subscriptionRepo.Update(ctx, record)
		})
	})
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	stats.Downgraded++

	if j.cache != nil {
		if err := j.cache.Invalidate(ctx, record.UserID); err != nil {
			j.logger.Warn("failed to invalidate subscription cache",
				"user_id", record.UserID,
				"error", err,
			)
		} else {
			stats.CacheInvalidated++
		}
	}

	if err := j.progressionRepo.SetUnlockedForUser(ctx, record.UserID, false); err != nil {
		j.logger.Warn("failed to lock paid programs",
			"user_id", record.UserID,
			"error", err,
		)
	}

	event := shared.SubscriptionUpdatedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventSubscriptionLapsed, record.UserID),
		UserID:    record.UserID,
		OldStatus: string(oldStatus),
		NewStatus: string(record.Status),
	}
	if err := j.eventBus.Publish(ctx, event); err != nil {
		j.logger.Warn("failed to publish lapse event",
			"user_id", record.UserID,
			"error", err,
		)
	}

	j.logger.Info("subscription downgraded",
		"user_id", record.UserID,
		"old_status", string(oldStatus),
	)

	return nil
}

// LastRunStats returns statistics from the last reconciliation pass.
func (j *ReconcileSubscriptionsJob) LastRunStats() *ReconcileStats {
	stats := j.lastRunStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*ReconcileStats)
}
