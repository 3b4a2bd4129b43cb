package rank

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable(t *testing.T) Table {
	t.Helper()
	table := Table{
		{ID: "a", Name: "A", MonthsRequired: 0},
		{ID: "b", Name: "B", MonthsRequired: 6},
		{ID: "c", Name: "C", MonthsRequired: 12},
	}
	require.NoError(t, table.Validate())
	return table
}

func TestTenureMonths_CalendarArithmetic(t *testing.T) {
	tests := []struct {
		name   string
		start  time.Time
		now    time.Time
		months int
	}{
		{
			// День месяца игнорируется: один календарный день даёт полный месяц.
			name:   "jan 31 to feb 1",
			start:  time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
			now:    time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
			months: 1,
		},
		{
			name:   "same month",
			start:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			now:    time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
			months: 0,
		},
		{
			name:   "across year boundary",
			start:  time.Date(2025, 11, 15, 0, 0, 0, 0, time.UTC),
			now:    time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC),
			months: 3,
		},
		{
			name:   "future start clamps to zero",
			start:  time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
			now:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			months: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.months, TenureMonths(tt.start, tt.now))
		})
	}
}

func TestCompute_NilStartIsLowestRank(t *testing.T) {
	table := testTable(t)
	state := Compute(table, nil, time.Now().UTC())

	assert.Equal(t, 0, state.TenureMonths)
	assert.Equal(t, "a", state.Current.ID)
	require.NotNil(t, state.Next)
	assert.Equal(t, "b", state.Next.ID)
	assert.Equal(t, 6, state.MonthsToNext)
	assert.Equal(t, 0.0, state.Progress)
}

func TestCompute_EightMonthsIn(t *testing.T) {
	table := testTable(t)
	now := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	start := now.AddDate(0, -8, 0)

	state := Compute(table, &start, now)

	assert.Equal(t, 8, state.TenureMonths)
	assert.Equal(t, "b", state.Current.ID)
	require.NotNil(t, state.Next)
	assert.Equal(t, "c", state.Next.ID)
	assert.Equal(t, 4, state.MonthsToNext)
	assert.InDelta(t, (8.0-6.0)/(12.0-6.0), state.Progress, 1e-9)
}

func TestCompute_ExactlyAtThreshold(t *testing.T) {
	table := testTable(t)
	now := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	start := now.AddDate(0, -6, 0)

	state := Compute(table, &start, now)

	assert.Equal(t, "b", state.Current.ID)
	assert.Equal(t, 0.0, state.Progress)
	assert.Equal(t, 6, state.MonthsToNext)
}

func TestCompute_MaxRank(t *testing.T) {
	table := testTable(t)
	now := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	start := now.AddDate(0, -40, 0)

	state := Compute(table, &start, now)

	assert.Equal(t, "c", state.Current.ID)
	assert.Nil(t, state.Next)
	assert.Equal(t, 0, state.MonthsToNext)
	assert.Equal(t, 1.0, state.Progress)
}

func TestCompute_DuplicateThresholdsDoNotPanic(t *testing.T) {
	// Пороги-дубликаты структурно не запрещены: прогресс не должен
	// делиться на ноль ни при каком стаже.
	table := Table{
		{ID: "a", MonthsRequired: 0},
		{ID: "b", MonthsRequired: 6},
		{ID: "b2", MonthsRequired: 6},
		{ID: "c", MonthsRequired: 12},
	}

	now := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	for months := 0; months <= 15; months++ {
		start := now.AddDate(0, -months, 0)
		state := Compute(table, &start, now)

		assert.GreaterOrEqual(t, state.Progress, 0.0, "tenure %d", months)
		assert.LessOrEqual(t, state.Progress, 1.0, "tenure %d", months)
	}

	// На общем пороге побеждает последний подходящий дубликат.
	start := now.AddDate(0, -6, 0)
	state := Compute(table, &start, now)
	assert.Equal(t, "b2", state.Current.ID)
}

func TestTable_Validate(t *testing.T) {
	assert.Error(t, Table{}.Validate())
	assert.Error(t, Table{{ID: "a", MonthsRequired: 3}}.Validate())
	assert.Error(t, Table{
		{ID: "a", MonthsRequired: 0},
		{ID: "a", MonthsRequired: 6},
	}.Validate())
	assert.Error(t, Table{
		{ID: "a", MonthsRequired: 0},
		{ID: "b", MonthsRequired: 9},
		{ID: "c", MonthsRequired: 6},
	}.Validate())
	assert.NoError(t, DefaultTable.Validate())
}
