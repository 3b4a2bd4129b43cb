package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nivo-app/nivo-hub/internal/domain/progression"
	"github.com/nivo-app/nivo-hub/internal/domain/shared"
	"github.com/nivo-app/nivo-hub/pkg/retry"
	"github.com/nivo-app/nivo-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH STREAKS JOB
// ══════════════════════════════════════════════════════════════════════════════

// RefreshStreaksJob resets streaks that were broken by a missed day.
//
// Streaks are only mutated on writes: completing a session extends or
// restarts one, and nothing else touches it. A user who stops opening the
// app would keep a stale "active" streak forever, so this job sweeps all
// non-zero streaks shortly after the UTC day boundary and zeroes the ones
// where yesterday passed without a completion.
type RefreshStreaksJob struct {
	progressionRepo progression.Repository
	eventBus        shared.EventBus
	logger          *slog.Logger
	config          RefreshStreaksConfig

	retrier *retry.Retrier

	lastRunStats atomic.Value // *RefreshStreaksStats
}

// RefreshStreaksConfig contains configuration for the streak refresh job.
type RefreshStreaksConfig struct {
	// Timeout is the maximum duration for one sweep.
	Timeout time.Duration
}

// DefaultRefreshStreaksConfig returns sensible defaults.
func DefaultRefreshStreaksConfig() RefreshStreaksConfig {
	return RefreshStreaksConfig{
		Timeout: 2 * time.Minute,
	}
}

// RefreshStreaksStats contains statistics from a sweep.
type RefreshStreaksStats struct {
	StartedAt     time.Time
	CompletedAt   time.Time
	Duration      time.Duration
	ActiveStreaks int
	BrokenStreaks int
	DaysLostTotal int
	Errors        []error
}

// NewRefreshStreaksJob creates a new streak refresh job.
func NewRefreshStreaksJob(
	progressionRepo progression.Repository,
	eventBus shared.EventBus,
	logger *slog.Logger,
	config RefreshStreaksConfig,
) *RefreshStreaksJob {
	if logger == nil {
		logger = slog.Default()
	}

	return &RefreshStreaksJob{
		progressionRepo: progressionRepo,
		eventBus:        eventBus,
		logger:          logger,
		config:          config,
		retrier: retry.New(
			retry.WithMaxAttempts(3),
			retry.WithInitialDelay(50*time.Millisecond),
			retry.WithMaxDelay(time.Second),
			retry.WithRetryIf(func(err error) bool {
				return !shared.IsNotFound(err)
			}),
		),
	}
}

// Name returns the job name.
func (j *RefreshStreaksJob) Name() string {
	return "refresh_streaks"
}

// Description returns a human-readable description.
func (j *RefreshStreaksJob) Description() string {
	return "Resets streaks broken by a missed day"
}

// Run executes one streak sweep.
func (j *RefreshStreaksJob) Run(ctx context.Context) error {
	startedAt := timeutil.Now()
	stats := &RefreshStreaksStats{
		StartedAt: startedAt,
		Errors:    make([]error, 0),
	}

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	active, err := j.progressionRepo.FindActiveStreaks(ctx)
	if err != nil {
		return fmt.Errorf("failed to find active streaks: %w", err)
	}
	stats.ActiveStreaks = len(active)

	for _, prog := range active {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !prog.IsStreakBroken(startedAt) {
			continue
		}

		if err := j.resetStreak(ctx, prog, stats); err != nil {
			stats.Errors = append(stats.Errors, err)
			j.logger.Error("failed to reset broken streak",
				"user_id", prog.UserID,
				"program_id", string(prog.ProgramID),
				"error", err,
			)
		}
	}

	stats.CompletedAt = timeutil.Now()
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastRunStats.Store(stats)

	j.logger.Info("refresh_streaks completed",
		"duration", stats.Duration.String(),
		"active_streaks", stats.ActiveStreaks,
		"broken_streaks", stats.BrokenStreaks,
		"days_lost_total", stats.DaysLostTotal,
	)

	return nil
}

// resetStreak zeroes one broken streak and announces the loss.
func (j *RefreshStreaksJob) resetStreak(
	ctx context.Context,
	prog *progression.Progression,
	stats *RefreshStreaksStats,
) error {
	lost := prog.ResetStreak()

	err := j.retrier.Do(ctx, func(ctx context.Context) error {
		return j.progressionRepo.Update(ctx, prog)
	})
	if err != nil {
		return fmt.Errorf("update progression: %w", err)
	}

	stats.BrokenStreaks++
	stats.DaysLostTotal += lost

	event := shared.StreakBrokenEvent{
		BaseEvent:  shared.NewBaseEvent(shared.EventStreakBroken, prog.UserID),
		UserID:     prog.UserID,
		ProgramID:  string(prog.ProgramID),
		LostStreak: lost,
	}
	if err := j.eventBus.Publish(ctx, event); err != nil {
		j.logger.Warn("failed to publish streak broken event",
			"user_id", prog.UserID,
			"error", err,
		)
	}

	j.logger.Info("streak reset",
		"user_id", prog.UserID,
		"program_id", string(prog.ProgramID),
		"lost_days", lost,
		"last_completed", timeutil.FormatDateStr(prog.LastCompletedAt),
	)

	return nil
}

// LastRunStats returns statistics from the last sweep.
func (j *RefreshStreaksJob) LastRunStats() *RefreshStreaksStats {
	stats := j.lastRunStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*RefreshStreaksStats)
}
