package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nivo-app/nivo-hub/internal/domain/catalog"
)

func newTestProgression(t *testing.T) *Progression {
	t.Helper()
	p, err := NewProgression("p-1", "u-1", catalog.TierRapidPatch, true)
	require.NoError(t, err)
	return p
}

func TestNewProgression_Validation(t *testing.T) {
	_, err := NewProgression("", "u", catalog.TierRapidPatch, true)
	assert.Error(t, err)

	_, err = NewProgression("p", "", catalog.TierRapidPatch, true)
	assert.Error(t, err)

	_, err = NewProgression("p", "u", catalog.Tier("NOPE"), true)
	assert.ErrorIs(t, err, catalog.ErrUnknownTier)

	p, err := NewProgression("p", "u", catalog.TierSystemReboot, false)
	require.NoError(t, err)
	assert.Equal(t, 1, p.CurrentDay)
	assert.False(t, p.Unlocked)
}

func TestCompleteDay_AdvancesAndBuildsStreak(t *testing.T) {
	p := newTestProgression(t)
	day1 := time.Date(2026, 4, 1, 18, 30, 0, 0, time.UTC)

	completed, err := p.CompleteDay(day1)
	require.NoError(t, err)
	assert.Equal(t, 1, completed)
	assert.Equal(t, 2, p.CurrentDay)
	assert.Equal(t, 1, p.CurrentStreak)

	// Повторное завершение в тот же день отклоняется.
	_, err = p.CompleteDay(day1.Add(2 * time.Hour))
	assert.ErrorIs(t, err, ErrAlreadyCompletedToday)

	// Следующий день продолжает серию.
	completed, err = p.CompleteDay(day1.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, completed)
	assert.Equal(t, 2, p.CurrentStreak)
	assert.Equal(t, 2, p.BestStreak)
}

func TestCompleteDay_GapResetsStreak(t *testing.T) {
	p := newTestProgression(t)
	day1 := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	_, err := p.CompleteDay(day1)
	require.NoError(t, err)
	_, err = p.CompleteDay(day1.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Equal(t, 2, p.CurrentStreak)

	// Пропуск двух дней сбрасывает серию на единицу, но BestStreak остаётся.
	_, err = p.CompleteDay(day1.AddDate(0, 0, 4))
	require.NoError(t, err)
	assert.Equal(t, 1, p.CurrentStreak)
	assert.Equal(t, 2, p.BestStreak)
}

func TestCompleteDay_LockedAndFinished(t *testing.T) {
	p := newTestProgression(t)
	p.Lock()

	_, err := p.CompleteDay(time.Now().UTC())
	assert.ErrorIs(t, err, ErrLocked)

	p.Unlock()
	day := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	total := catalog.MustGet(catalog.TierRapidPatch).TotalDays
	for i := 0; i < total; i++ {
		_, err = p.CompleteDay(day.AddDate(0, 0, i))
		require.NoError(t, err)
	}

	assert.True(t, p.IsFinished())
	_, err = p.CompleteDay(day.AddDate(0, 0, total))
	assert.ErrorIs(t, err, ErrProgramFinished)
}

func TestIsStreakBroken(t *testing.T) {
	p := newTestProgression(t)
	now := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

	// Без активности серия не считается сломанной.
	assert.False(t, p.IsStreakBroken(now))

	_, err := p.CompleteDay(now.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.False(t, p.IsStreakBroken(now), "yesterday's activity keeps the streak")

	p2 := newTestProgression(t)
	_, err = p2.CompleteDay(now.AddDate(0, 0, -3))
	require.NoError(t, err)
	assert.True(t, p2.IsStreakBroken(now))

	lost := p2.ResetStreak()
	assert.Equal(t, 1, lost)
	assert.Equal(t, 0, p2.CurrentStreak)
	assert.False(t, p2.IsStreakBroken(now))
}
