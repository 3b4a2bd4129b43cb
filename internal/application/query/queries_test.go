package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nivo-app/nivo-hub/internal/domain/catalog"
	"github.com/nivo-app/nivo-hub/internal/domain/progression"
	"github.com/nivo-app/nivo-hub/internal/domain/rank"
	"github.com/nivo-app/nivo-hub/internal/domain/shared"
	"github.com/nivo-app/nivo-hub/internal/domain/subscription"
)

// ─────────────────────────────────────────────────────────────────────────────
// In-memory fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeSubscriptionRepo struct {
	records map[string]*subscription.Record
	failErr error
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{records: make(map[string]*subscription.Record)}
}

func (f *fakeSubscriptionRepo) Create(_ context.Context, record *subscription.Record) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.records[record.UserID] = record.Clone()
	return nil
}

func (f *fakeSubscriptionRepo) GetByUserID(_ context.Context, userID string) (*subscription.Record, error) {
	if f.failErr != nil {
		return nil, f.failErr
	}
	record, ok := f.records[userID]
	if !ok {
		return nil, shared.WrapError("subscription", "GetByUserID", shared.ErrNotFound,
			"record not found", subscription.ErrRecordNotFound)
	}
	return record.Clone(), nil
}

func (f *fakeSubscriptionRepo) GetByCustomerID(_ context.Context, customerID string) (*subscription.Record, error) {
	if f.failErr != nil {
		return nil, f.failErr
	}
	for _, record := range f.records {
		if record.CustomerID == customerID {
			return record.Clone(), nil
		}
	}
	return nil, shared.WrapError("subscription", "GetByCustomerID", shared.ErrNotFound,
		"record not found", subscription.ErrRecordNotFound)
}

func (f *fakeSubscriptionRepo) Update(_ context.Context, record *subscription.Record) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.records[record.UserID] = record.Clone()
	return nil
}

func (f *fakeSubscriptionRepo) FindLapsed(_ context.Context, cutoff time.Time) ([]*subscription.Record, error) {
	var out []*subscription.Record
	for _, record := range f.records {
		if record.Status.IsElevated() && record.CurrentPeriodEnd != nil && record.CurrentPeriodEnd.Before(cutoff) {
			out = append(out, record.Clone())
		}
	}
	return out, nil
}

type fakeProgressionRepo struct {
	items   map[string]*progression.Progression
	failErr error
}

func newFakeProgressionRepo() *fakeProgressionRepo {
	return &fakeProgressionRepo{items: make(map[string]*progression.Progression)}
}

func progKey(userID string, programID catalog.Tier) string {
	return userID + "/" + string(programID)
}

func (f *fakeProgressionRepo) Create(_ context.Context, p *progression.Progression) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.items[progKey(p.UserID, p.ProgramID)] = p
	return nil
}

func (f *fakeProgressionRepo) Get(_ context.Context, userID string, programID catalog.Tier) (*progression.Progression, error) {
	if f.failErr != nil {
		return nil, f.failErr
	}
	p, ok := f.items[progKey(userID, programID)]
	if !ok {
		return nil, shared.WrapError("progression", "Get", shared.ErrNotFound,
			"progression not found", progression.ErrProgressionNotFound)
	}
	return p, nil
}

func (f *fakeProgressionRepo) GetAllByUser(_ context.Context, userID string) ([]*progression.Progression, error) {
	if f.failErr != nil {
		return nil, f.failErr
	}
	var out []*progression.Progression
	for _, p := range f.items {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProgressionRepo) Update(_ context.Context, p *progression.Progression) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.items[progKey(p.UserID, p.ProgramID)] = p
	return nil
}

func (f *fakeProgressionRepo) FindActiveStreaks(_ context.Context) ([]*progression.Progression, error) {
	var out []*progression.Progression
	for _, p := range f.items {
		if p.CurrentStreak > 0 {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProgressionRepo) SetUnlockedForUser(_ context.Context, userID string, unlocked bool) error {
	for _, p := range f.items {
		if p.UserID != userID {
			continue
		}
		if unlocked {
			p.Unlock()
		} else if p.ProgramID.RequiresElevatedAccess() {
			p.Lock()
		}
	}
	return nil
}

func (f *fakeProgressionRepo) TopStreaks(_ context.Context, limit int) ([]*progression.Progression, error) {
	all, _ := f.FindActiveStreaks(context.Background())
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func proRecord(t *testing.T, userID string, periodEnd time.Time, startedAt time.Time) *subscription.Record {
	t.Helper()
	record, err := subscription.NewRecord(subscription.NewRecordParams{
		ID:     "rec-" + userID,
		UserID: userID,
		Status: subscription.StatusPro,
	})
	require.NoError(t, err)
	record.CurrentPeriodEnd = &periodEnd
	record.StartedAt = &startedAt
	return record
}

// ─────────────────────────────────────────────────────────────────────────────
// GetAccessStatus
// ─────────────────────────────────────────────────────────────────────────────

func TestGetAccessStatus_NoRecordIsConfirmedFree(t *testing.T) {
	handler := NewGetAccessStatusHandler(newFakeSubscriptionRepo(), nil)

	dto, err := handler.Handle(context.Background(), GetAccessStatusQuery{UserID: "u1"})

	require.NoError(t, err)
	assert.Equal(t, "free", dto.Level)
	assert.Equal(t, "free", dto.Status)
	assert.False(t, dto.IsElevated)
	assert.Nil(t, dto.DaysUntilExpiry)
}

func TestGetAccessStatus_ProRecord(t *testing.T) {
	repo := newFakeSubscriptionRepo()
	now := time.Now().UTC()
	record := proRecord(t, "u1", now.Add(72*time.Hour), now.AddDate(0, -3, 0))
	require.NoError(t, repo.Create(context.Background(), record))

	handler := NewGetAccessStatusHandler(repo, nil)
	dto, err := handler.Handle(context.Background(), GetAccessStatusQuery{UserID: "u1"})

	require.NoError(t, err)
	assert.Equal(t, "pro", dto.Level)
	assert.True(t, dto.IsElevated)
	require.NotNil(t, dto.DaysUntilExpiry)
	assert.Equal(t, 3, *dto.DaysUntilExpiry)
	require.NotNil(t, dto.ExpiresAt)
}

func TestGetAccessStatus_StoreFailureIsNotFree(t *testing.T) {
	repo := newFakeSubscriptionRepo()
	repo.failErr = errors.New("connection refused")

	handler := NewGetAccessStatusHandler(repo, nil)
	dto, err := handler.Handle(context.Background(), GetAccessStatusQuery{UserID: "u1"})

	require.Error(t, err)
	assert.Nil(t, dto)
	assert.True(t, shared.IsExternalService(err))
	assert.False(t, shared.IsNotFound(err))
}

func TestGetAccessStatus_EmptyUserID(t *testing.T) {
	handler := NewGetAccessStatusHandler(newFakeSubscriptionRepo(), nil)

	_, err := handler.Handle(context.Background(), GetAccessStatusQuery{})

	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

// ─────────────────────────────────────────────────────────────────────────────
// GetRankProfile
// ─────────────────────────────────────────────────────────────────────────────

func TestGetRankProfile_NoSubscription(t *testing.T) {
	handler := NewGetRankProfileHandler(newFakeSubscriptionRepo(), nil)

	dto, err := handler.Handle(context.Background(), GetRankProfileQuery{UserID: "u1"})

	require.NoError(t, err)
	assert.Equal(t, 0, dto.TenureMonths)
	assert.Equal(t, rank.DefaultTable[0].ID, dto.Current.ID)
	require.NotNil(t, dto.Next)
	assert.Nil(t, dto.MemberSince)
}

func TestGetRankProfile_WithTenure(t *testing.T) {
	repo := newFakeSubscriptionRepo()
	now := time.Now().UTC()
	// 8 календарных месяцев стажа; первое число, чтобы избежать
	// нормализации коротких месяцев.
	year, month, _ := now.Date()
	started := time.Date(year, month-8, 1, 0, 0, 0, 0, time.UTC)
	record := proRecord(t, "u1", now.Add(24*time.Hour), started)
	require.NoError(t, repo.Create(context.Background(), record))

	handler := NewGetRankProfileHandler(repo, nil)
	dto, err := handler.Handle(context.Background(), GetRankProfileQuery{UserID: "u1"})

	require.NoError(t, err)
	assert.Equal(t, 8, dto.TenureMonths)
	assert.Equal(t, "optimizer", dto.Current.ID)
	require.NotNil(t, dto.Next)
	assert.Equal(t, "architect", dto.Next.ID)
	assert.Equal(t, 4, dto.MonthsToNext)
	assert.InDelta(t, 2.0/6.0, dto.Progress, 0.001)
	require.NotNil(t, dto.MemberSince)
}

func TestGetRankProfile_StoreFailure(t *testing.T) {
	repo := newFakeSubscriptionRepo()
	repo.failErr = errors.New("timeout")

	handler := NewGetRankProfileHandler(repo, nil)
	_, err := handler.Handle(context.Background(), GetRankProfileQuery{UserID: "u1"})

	require.Error(t, err)
	assert.True(t, shared.IsExternalService(err))
}

// ─────────────────────────────────────────────────────────────────────────────
// GetTodaySession
// ─────────────────────────────────────────────────────────────────────────────

func TestGetTodaySession_FreeTierNoProgression(t *testing.T) {
	handler := NewGetTodaySessionHandler(newFakeProgressionRepo(), newFakeSubscriptionRepo())

	dto, err := handler.Handle(context.Background(), GetTodaySessionQuery{
		UserID: "u1",
		Tier:   string(catalog.TierRapidPatch),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, dto.CurrentDay)
	assert.Equal(t, 7, dto.TotalDays)
	assert.False(t, dto.Locked)
	assert.Equal(t, 1, dto.Session.Day)
	assert.False(t, dto.Session.IsFallback)
	assert.Contains(t, dto.PhaseLabel, "Phase 1")
}

func TestGetTodaySession_PaidTierLockedWithoutSubscription(t *testing.T) {
	handler := NewGetTodaySessionHandler(newFakeProgressionRepo(), newFakeSubscriptionRepo())

	dto, err := handler.Handle(context.Background(), GetTodaySessionQuery{
		UserID: "u1",
		Tier:   string(catalog.TierArchitectMode),
	})

	require.NoError(t, err)
	assert.True(t, dto.Locked)
	// Карточка дня остаётся как тизер под paywall, платный контент вырезан.
	assert.NotEmpty(t, dto.Session.Title)
	assert.Empty(t, dto.Session.ClinicalGoal)
	assert.Empty(t, dto.Session.AudioCue)
	assert.Empty(t, dto.Session.Rationale)
	assert.Empty(t, dto.Session.Steps)
}

func TestGetTodaySession_PaidTierUnlockedForPro(t *testing.T) {
	subRepo := newFakeSubscriptionRepo()
	now := time.Now().UTC()
	require.NoError(t, subRepo.Create(context.Background(),
		proRecord(t, "u1", now.Add(24*time.Hour), now.AddDate(0, -1, 0))))

	handler := NewGetTodaySessionHandler(newFakeProgressionRepo(), subRepo)
	dto, err := handler.Handle(context.Background(), GetTodaySessionQuery{
		UserID: "u1",
		Tier:   string(catalog.TierSystemReboot),
	})

	require.NoError(t, err)
	assert.False(t, dto.Locked)
	assert.NotEmpty(t, dto.Session.Steps)
}

func TestGetTodaySession_FallbackSessionAndSentinelPhase(t *testing.T) {
	progRepo := newFakeProgressionRepo()
	p, err := progression.NewProgression("p1", "u1", catalog.TierArchitectMode, true)
	require.NoError(t, err)
	p.CurrentDay = 63 // вне всех фаз, сессии на день нет
	require.NoError(t, progRepo.Create(context.Background(), p))

	subRepo := newFakeSubscriptionRepo()
	now := time.Now().UTC()
	require.NoError(t, subRepo.Create(context.Background(),
		proRecord(t, "u1", now.Add(24*time.Hour), now.AddDate(0, -2, 0))))

	handler := NewGetTodaySessionHandler(progRepo, subRepo)
	dto, err := handler.Handle(context.Background(), GetTodaySessionQuery{
		UserID: "u1",
		Tier:   string(catalog.TierArchitectMode),
	})

	require.NoError(t, err)
	assert.Equal(t, catalog.FallbackPhaseLabel, dto.PhaseLabel)
	assert.Equal(t, 1, dto.Session.Day)
	assert.True(t, dto.Session.IsFallback)
}

func TestGetTodaySession_UnknownTier(t *testing.T) {
	handler := NewGetTodaySessionHandler(newFakeProgressionRepo(), newFakeSubscriptionRepo())

	_, err := handler.Handle(context.Background(), GetTodaySessionQuery{
		UserID: "u1",
		Tier:   "DEEP_FREEZE",
	})

	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

// ─────────────────────────────────────────────────────────────────────────────
// GetProgressOverview
// ─────────────────────────────────────────────────────────────────────────────

func TestGetProgressOverview(t *testing.T) {
	progRepo := newFakeProgressionRepo()

	p1, err := progression.NewProgression("p1", "u1", catalog.TierRapidPatch, true)
	require.NoError(t, err)
	p1.CurrentDay = 5
	p1.CurrentStreak = 4
	p1.BestStreak = 4
	require.NoError(t, progRepo.Create(context.Background(), p1))

	p2, err := progression.NewProgression("p2", "u1", catalog.TierSystemReboot, true)
	require.NoError(t, err)
	p2.CurrentDay = 2
	p2.CurrentStreak = 1
	p2.BestStreak = 6
	require.NoError(t, progRepo.Create(context.Background(), p2))

	handler := NewGetProgressOverviewHandler(progRepo)
	dto, err := handler.Handle(context.Background(), GetProgressOverviewQuery{UserID: "u1"})

	require.NoError(t, err)
	assert.Len(t, dto.Programs, 2)
	assert.Equal(t, 4, dto.CurrentStreak)
	assert.Equal(t, 6, dto.BestStreak)

	for _, program := range dto.Programs {
		if program.Tier == string(catalog.TierRapidPatch) {
			assert.InDelta(t, 4.0/7.0, program.PercentComplete, 0.001)
			assert.False(t, program.Finished)
		}
	}
}

func TestGetProgressOverview_Empty(t *testing.T) {
	handler := NewGetProgressOverviewHandler(newFakeProgressionRepo())

	dto, err := handler.Handle(context.Background(), GetProgressOverviewQuery{UserID: "nobody"})

	require.NoError(t, err)
	assert.Empty(t, dto.Programs)
	assert.Equal(t, 0, dto.CurrentStreak)
}

// ─────────────────────────────────────────────────────────────────────────────
// GetCatalog
// ─────────────────────────────────────────────────────────────────────────────

func TestGetCatalog(t *testing.T) {
	handler := NewGetCatalogHandler()

	dto, err := handler.Handle(context.Background())

	require.NoError(t, err)
	require.Len(t, dto.Programs, 3)
	assert.Equal(t, string(catalog.TierRapidPatch), dto.Programs[0].Tier)
	assert.False(t, dto.Programs[0].RequiresPro)
	assert.True(t, dto.Programs[2].RequiresPro)
	assert.Equal(t, 66, dto.Programs[2].TotalDays)
	assert.NotEmpty(t, dto.Programs[0].SessionDays)
}
