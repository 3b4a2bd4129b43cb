package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveAccess_StatusMapping(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		status   Status
		elevated bool
		level    AccessLevel
	}{
		{StatusFree, false, AccessFree},
		{StatusPastDue, false, AccessFree},
		{StatusCanceled, false, AccessFree},
		{StatusPro, true, AccessPro},
		{StatusTrialing, true, AccessPro},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			state := DeriveAccess(&Record{UserID: "u1", Status: tt.status}, now)
			assert.Equal(t, tt.elevated, state.IsElevated)
			assert.Equal(t, tt.level, state.AccessLevel)
			assert.Nil(t, state.DaysUntilExpiry)
		})
	}
}

func TestDeriveAccess_NilRecordIsFree(t *testing.T) {
	state := DeriveAccess(nil, time.Now().UTC())

	assert.Equal(t, StatusFree, state.Status)
	assert.False(t, state.IsElevated)
	assert.Equal(t, AccessFree, state.AccessLevel)
	assert.Nil(t, state.DaysUntilExpiry)
}

func TestDeriveAccess_DaysUntilExpiry(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("three days ahead", func(t *testing.T) {
		end := now.Add(72 * time.Hour)
		state := DeriveAccess(&Record{Status: StatusTrialing, CurrentPeriodEnd: &end}, now)

		require.NotNil(t, state.DaysUntilExpiry)
		assert.Equal(t, 3, *state.DaysUntilExpiry)
		assert.True(t, state.IsElevated)
	})

	t.Run("partial day rounds up", func(t *testing.T) {
		end := now.Add(time.Hour)
		state := DeriveAccess(&Record{Status: StatusPro, CurrentPeriodEnd: &end}, now)

		require.NotNil(t, state.DaysUntilExpiry)
		assert.Equal(t, 1, *state.DaysUntilExpiry)
	})

	t.Run("period end in the past clamps to zero", func(t *testing.T) {
		end := now.Add(-48 * time.Hour)
		state := DeriveAccess(&Record{Status: StatusPro, CurrentPeriodEnd: &end}, now)

		require.NotNil(t, state.DaysUntilExpiry)
		assert.Equal(t, 0, *state.DaysUntilExpiry)
	})
}

func TestRecord_ApplyBillingUpdate(t *testing.T) {
	rec, err := NewRecord(NewRecordParams{
		ID:     "rec-1",
		UserID: "u1",
		Status: StatusFree,
	})
	require.NoError(t, err)
	require.Nil(t, rec.StartedAt)

	at := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	end := at.AddDate(0, 1, 0)
	require.NoError(t, rec.ApplyBillingUpdate(StatusPro, "sub_123", &end, at))

	assert.Equal(t, StatusPro, rec.Status)
	assert.Equal(t, "sub_123", rec.SubscriptionID)
	require.NotNil(t, rec.StartedAt)
	assert.Equal(t, at, *rec.StartedAt)

	// Повторный переход не сдвигает StartedAt.
	later := at.AddDate(0, 2, 0)
	require.NoError(t, rec.ApplyBillingUpdate(StatusPro, "", &end, later))
	assert.Equal(t, at, *rec.StartedAt)

	// Невалидный статус отклоняется.
	assert.ErrorIs(t, rec.ApplyBillingUpdate(Status("lifetime"), "", nil, later), ErrInvalidStatus)
}

func TestRecord_IsLapsed(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.True(t, (&Record{Status: StatusPro, CurrentPeriodEnd: &past}).IsLapsed(now))
	assert.False(t, (&Record{Status: StatusPro, CurrentPeriodEnd: &future}).IsLapsed(now))
	assert.False(t, (&Record{Status: StatusCanceled, CurrentPeriodEnd: &past}).IsLapsed(now))
	assert.False(t, (&Record{Status: StatusPro}).IsLapsed(now))
}

func TestNewRecord_Validation(t *testing.T) {
	_, err := NewRecord(NewRecordParams{ID: "r", UserID: "", Status: StatusFree})
	assert.ErrorIs(t, err, ErrEmptyUserID)

	_, err = NewRecord(NewRecordParams{ID: "r", UserID: "u", Status: Status("vip")})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}
