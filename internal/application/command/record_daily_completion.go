package command

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nivo-app/nivo-hub/internal/domain/catalog"
	"github.com/nivo-app/nivo-hub/internal/domain/progression"
	"github.com/nivo-app/nivo-hub/internal/domain/shared"
	"github.com/nivo-app/nivo-hub/internal/domain/subscription"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD DAILY COMPLETION COMMAND
// Marks the current day's session as done, advances the program day and
// updates the streak. One completion per UTC day per program.
// ══════════════════════════════════════════════════════════════════════════════

// RecordDailyCompletionCommand contains the data to record a completion.
type RecordDailyCompletionCommand struct {
	// UserID is the internal ID of the user.
	UserID string

	// Tier is the program being completed.
	Tier string

	// CompletedAt is when the session finished (defaults to now if zero).
	CompletedAt time.Time
}

// Validate validates the command.
func (c RecordDailyCompletionCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("record_daily_completion: user_id is required")
	}
	if !catalog.Tier(c.Tier).IsValid() {
		return errors.New("record_daily_completion: unknown tier: " + c.Tier)
	}
	return nil
}

// RecordDailyCompletionResult contains the result of a completion.
type RecordDailyCompletionResult struct {
	// CompletedDay is the day that was just completed.
	CompletedDay int

	// NextDay is the day the user advances to.
	NextDay int

	// CurrentStreak is the streak after this completion.
	CurrentStreak int

	// BestStreak is the best streak on record.
	BestStreak int

	// ProgramFinished indicates the whole program is now done.
	ProgramFinished bool

	// RecordedAt is when the completion was recorded.
	RecordedAt time.Time
}

// RecordDailyCompletionHandler handles the RecordDailyCompletionCommand.
type RecordDailyCompletionHandler struct {
	progressionRepo  progression.Repository
	subscriptionRepo subscription.Repository
	eventBus         shared.EventBus
}

// NewRecordDailyCompletionHandler creates a new RecordDailyCompletionHandler.
func NewRecordDailyCompletionHandler(
	progressionRepo progression.Repository,
	subscriptionRepo subscription.Repository,
	eventBus shared.EventBus,
) *RecordDailyCompletionHandler {
	return &RecordDailyCompletionHandler{
		progressionRepo:  progressionRepo,
		subscriptionRepo: subscriptionRepo,
		eventBus:         eventBus,
	}
}

// Handle executes the record daily completion command.
func (h *RecordDailyCompletionHandler) Handle(ctx context.Context, cmd RecordDailyCompletionCommand) (*RecordDailyCompletionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("command", "RecordDailyCompletion", shared.ErrValidation, err.Error(), err)
	}

	completedAt := cmd.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}

	tier := catalog.Tier(cmd.Tier)

	prog, created, err := h.getOrCreate(ctx, cmd.UserID, tier, completedAt)
	if err != nil {
		return nil, err
	}

	completedDay, err := prog.CompleteDay(completedAt)
	if err != nil {
		switch {
		case errors.Is(err, progression.ErrLocked):
			return nil, shared.WrapError("command", "RecordDailyCompletion", shared.ErrForbidden,
				"program requires an active subscription", err)
		case errors.Is(err, progression.ErrAlreadyCompletedToday):
			return nil, shared.WrapError("command", "RecordDailyCompletion", shared.ErrAlreadyProcessed,
				"today's session is already completed", err)
		case errors.Is(err, progression.ErrProgramFinished):
			return nil, shared.WrapError("command", "RecordDailyCompletion", shared.ErrInvalidState,
				"program is already finished", err)
		default:
			return nil, shared.WrapError("command", "RecordDailyCompletion", shared.ErrInvalidState,
				"cannot complete day", err)
		}
	}

	if created {
		err = h.progressionRepo.Create(ctx, prog)
	} else {
		err = h.progressionRepo.Update(ctx, prog)
	}
	if err != nil {
		return nil, shared.WrapError("command", "RecordDailyCompletion", shared.ErrExternalService,
			"cannot persist progression", err)
	}

	if h.eventBus != nil {
		_ = h.eventBus.Publish(ctx, shared.DayCompletedEvent{
			BaseEvent: shared.NewBaseEvent(shared.EventDayCompleted, cmd.UserID),
			UserID:    cmd.UserID,
			ProgramID: string(tier),
			Day:       completedDay,
			Streak:    prog.CurrentStreak,
		})
	}

	return &RecordDailyCompletionResult{
		CompletedDay:    completedDay,
		NextDay:         prog.CurrentDay,
		CurrentStreak:   prog.CurrentStreak,
		BestStreak:      prog.BestStreak,
		ProgramFinished: prog.IsFinished(),
		RecordedAt:      completedAt,
	}, nil
}

// getOrCreate loads the user's progression or starts one at day 1.
// A new progression's lock state comes from the current access level.
func (h *RecordDailyCompletionHandler) getOrCreate(ctx context.Context, userID string, tier catalog.Tier, now time.Time) (*progression.Progression, bool, error) {
	prog, err := h.progressionRepo.Get(ctx, userID, tier)
	if err == nil {
		return prog, false, nil
	}
	if !shared.IsNotFound(err) {
		return nil, false, shared.WrapError("command", "RecordDailyCompletion", shared.ErrExternalService,
			"progression lookup failed", err)
	}

	unlocked := true
	if tier.RequiresElevatedAccess() {
		record, err := h.subscriptionRepo.GetByUserID(ctx, userID)
		if err != nil {
			if !shared.IsNotFound(err) {
				return nil, false, shared.WrapError("command", "RecordDailyCompletion", shared.ErrExternalService,
					"subscription lookup failed", err)
			}
			unlocked = false
		} else {
			unlocked = subscription.DeriveAccess(record, now).IsElevated
		}
	}

	prog, err = progression.NewProgression(uuid.New().String(), userID, tier, unlocked)
	if err != nil {
		return nil, false, shared.WrapError("command", "RecordDailyCompletion", shared.ErrValidation,
			"cannot create progression", err)
	}
	return prog, true, nil
}
