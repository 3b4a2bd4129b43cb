package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nivo-app/nivo-hub/internal/domain/catalog"
	"github.com/nivo-app/nivo-hub/internal/domain/progression"
	"github.com/nivo-app/nivo-hub/internal/domain/shared"
	"github.com/nivo-app/nivo-hub/internal/domain/subscription"
)

// ──────────────────────────────────────────────────────────────────────────────
// Fakes
// ──────────────────────────────────────────────────────────────────────────────

type fakeSubscriptionRepo struct {
	lapsed    []*subscription.Record
	updated   []*subscription.Record
	updateErr error
	findErr   error
}

func (f *fakeSubscriptionRepo) Create(ctx context.Context, record *subscription.Record) error {
	return nil
}

func (f *fakeSubscriptionRepo) GetByUserID(ctx context.Context, userID string) (*subscription.Record, error) {
	return nil, shared.WrapError("subscription", "GetByUserID", shared.ErrNotFound,
		"no record", subscription.ErrRecordNotFound)
}

func (f *fakeSubscriptionRepo) GetByCustomerID(ctx context.Context, customerID string) (*subscription.Record, error) {
	return nil, shared.WrapError("subscription", "GetByCustomerID", shared.ErrNotFound,
		"no record", subscription.ErrRecordNotFound)
}

func (f *fakeSubscriptionRepo) Update(ctx context.Context, record *subscription.Record) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated = append(f.updated, record)
	return nil
}

func (f *fakeSubscriptionRepo) FindLapsed(ctx context.Context, cutoff time.Time) ([]*subscription.Record, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.lapsed, nil
}

type fakeProgressionRepo struct {
	active      []*progression.Progression
	updated     []*progression.Progression
	unlockCalls map[string]bool
}

func newFakeProgressionRepo() *fakeProgressionRepo {
	return &fakeProgressionRepo{unlockCalls: make(map[string]bool)}
}

func (f *fakeProgressionRepo) Create(ctx context.Context, p *progression.Progression) error {
	return nil
}

func (f *fakeProgressionRepo) Get(ctx context.Context, userID string, programID catalog.Tier) (*progression.Progression, error) {
	return nil, shared.WrapError("progression", "Get", shared.ErrNotFound,
		"no progression", progression.ErrProgressionNotFound)
}

func (f *fakeProgressionRepo) GetAllByUser(ctx context.Context, userID string) ([]*progression.Progression, error) {
	return nil, nil
}

func (f *fakeProgressionRepo) Update(ctx context.Context, p *progression.Progression) error {
	f.updated = append(f.updated, p)
	return nil
}

func (f *fakeProgressionRepo) FindActiveStreaks(ctx context.Context) ([]*progression.Progression, error) {
	return f.active, nil
}

func (f *fakeProgressionRepo) SetUnlockedForUser(ctx context.Context, userID string, unlocked bool) error {
	f.unlockCalls[userID] = unlocked
	return nil
}

func (f *fakeProgressionRepo) TopStreaks(ctx context.Context, limit int) ([]*progression.Progression, error) {
	return nil, nil
}

type fakeCache struct {
	invalidated []string
}

func (f *fakeCache) Get(ctx context.Context, userID string) (*subscription.Record, error) {
	return nil, shared.WrapError("cache", "Get", shared.ErrNotFound, "miss", nil)
}

func (f *fakeCache) Set(ctx context.Context, record *subscription.Record, ttl time.Duration) error {
	return nil
}

func (f *fakeCache) Invalidate(ctx context.Context, userID string) error {
	f.invalidated = append(f.invalidated, userID)
	return nil
}

type fakeEventBus struct {
	events []shared.Event
}

func (f *fakeEventBus) Publish(ctx context.Context, event shared.Event) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Reconcile subscriptions
// ──────────────────────────────────────────────────────────────────────────────

func lapsedRecord(userID string, periodEnd time.Time) *subscription.Record {
	started := periodEnd.AddDate(0, -1, 0)
	return &subscription.Record{
		ID:               "rec-" + userID,
		UserID:           userID,
		Status:           subscription.StatusPro,
		CustomerID:       "cus_" + userID,
		CurrentPeriodEnd: &periodEnd,
		StartedAt:        &started,
	}
}

func TestReconcileSubscriptions_DowngradesLapsed(t *testing.T) {
	periodEnd := time.Now().UTC().Add(-48 * time.Hour)
	repo := &fakeSubscriptionRepo{
		lapsed: []*subscription.Record{lapsedRecord("u1", periodEnd)},
	}
	progs := newFakeProgressionRepo()
	cache := &fakeCache{}
	bus := &fakeEventBus{}

	job := NewReconcileSubscriptionsJob(repo, progs, cache, bus, nil, DefaultReconcileConfig())
	require.NoError(t, job.Run(context.Background()))

	require.Len(t, repo.updated, 1)
	assert.Equal(t, subscription.StatusPastDue, repo.updated[0].Status)

	// StartedAt survives the downgrade, tenure keeps accruing history.
	assert.NotNil(t, repo.updated[0].StartedAt)

	assert.Equal(t, []string{"u1"}, cache.invalidated)

	locked, ok := progs.unlockCalls["u1"]
	require.True(t, ok)
	assert.False(t, locked)

	require.Len(t, bus.events, 1)
	assert.Equal(t, shared.EventSubscriptionLapsed, bus.events[0].EventType())

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.LapsedFound)
	assert.Equal(t, 1, stats.Downgraded)
	assert.Empty(t, stats.Errors)
}

func TestReconcileSubscriptions_NoLapsedIsNoop(t *testing.T) {
	repo := &fakeSubscriptionRepo{}
	progs := newFakeProgressionRepo()
	bus := &fakeEventBus{}

	job := NewReconcileSubscriptionsJob(repo, progs, &fakeCache{}, bus, nil, DefaultReconcileConfig())
	require.NoError(t, job.Run(context.Background()))

	assert.Empty(t, repo.updated)
	assert.Empty(t, bus.events)
}

func TestReconcileSubscriptions_FindFailureAborts(t *testing.T) {
	repo := &fakeSubscriptionRepo{findErr: errors.New("connection refused")}
	job := NewReconcileSubscriptionsJob(repo, newFakeProgressionRepo(), &fakeCache{}, &fakeEventBus{}, nil, DefaultReconcileConfig())

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lapsed")
}

// ──────────────────────────────────────────────────────────────────────────────
// Refresh streaks
// ──────────────────────────────────────────────────────────────────────────────

func activeProgression(userID string, streak int, lastCompleted time.Time) *progression.Progression {
	return &progression.Progression{
		ID:              "prog-" + userID,
		UserID:          userID,
		ProgramID:       catalog.TierSystemReboot,
		CurrentDay:      streak + 1,
		Unlocked:        true,
		CurrentStreak:   streak,
		BestStreak:      streak,
		LastCompletedAt: lastCompleted,
	}
}

func TestRefreshStreaks_ResetsBrokenStreak(t *testing.T) {
	now := time.Now().UTC()
	repo := newFakeProgressionRepo()
	repo.active = []*progression.Progression{
		activeProgression("gone", 5, now.AddDate(0, 0, -3)),
		activeProgression("active", 4, now.AddDate(0, 0, -1)),
	}
	bus := &fakeEventBus{}

	job := NewRefreshStreaksJob(repo, bus, nil, DefaultRefreshStreaksConfig())
	require.NoError(t, job.Run(context.Background()))

	require.Len(t, repo.updated, 1)
	assert.Equal(t, "gone", repo.updated[0].UserID)
	assert.Equal(t, 0, repo.updated[0].CurrentStreak)
	assert.Equal(t, 5, repo.updated[0].BestStreak)

	require.Len(t, bus.events, 1)
	broken, ok := bus.events[0].(shared.StreakBrokenEvent)
	require.True(t, ok)
	assert.Equal(t, "gone", broken.UserID)
	assert.Equal(t, 5, broken.LostStreak)

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.ActiveStreaks)
	assert.Equal(t, 1, stats.BrokenStreaks)
	assert.Equal(t, 5, stats.DaysLostTotal)
}

func TestRefreshStreaks_YesterdayCompletionSurvives(t *testing.T) {
	now := time.Now().UTC()
	repo := newFakeProgressionRepo()
	repo.active = []*progression.Progression{
		activeProgression("u1", 7, now.AddDate(0, 0, -1)),
	}
	bus := &fakeEventBus{}

	job := NewRefreshStreaksJob(repo, bus, nil, DefaultRefreshStreaksConfig())
	require.NoError(t, job.Run(context.Background()))

	assert.Empty(t, repo.updated)
	assert.Empty(t, bus.events)
}
