package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AllProgramsValid(t *testing.T) {
	programs := All()
	require.Len(t, programs, 3)

	for _, p := range programs {
		assert.NoError(t, p.Validate())
		assert.NotEmpty(t, p.Sessions, "program %s must define at least day 1", p.ID)
		assert.Equal(t, 1, p.Sessions[0].Day, "first session of %s must be day 1", p.ID)
	}
}

func TestGet_UnknownTier(t *testing.T) {
	_, err := Get(Tier("PLACEBO_MODE"))
	assert.ErrorIs(t, err, ErrUnknownTier)
}

func TestResolvePhaseLabel(t *testing.T) {
	tests := []struct {
		name  string
		day   int
		tier  Tier
		label string
	}{
		{"first day of first phase", 1, TierRapidPatch, "Phase 1: Stabilize"},
		{"last day of first phase", 3, TierRapidPatch, "Phase 1: Stabilize"},
		{"first day of second phase", 4, TierRapidPatch, "Phase 2: Rebuild"},
		{"middle phase of long program", 30, TierArchitectMode, "Phase 2: Framing"},
		{"day outside all phases", 65, TierArchitectMode, FallbackPhaseLabel},
		{"day zero", 0, TierSystemReboot, FallbackPhaseLabel},
		{"negative day", -3, TierRapidPatch, FallbackPhaseLabel},
		{"day far past program end", 9999, TierRapidPatch, FallbackPhaseLabel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, err := ResolvePhaseLabel(tt.day, tt.tier)
			require.NoError(t, err)
			assert.Equal(t, tt.label, label)
		})
	}
}

func TestResolveSession_ExactMatch(t *testing.T) {
	session, err := ResolveSession(3, TierRapidPatch)
	require.NoError(t, err)
	assert.Equal(t, 3, session.Day)
	assert.Equal(t, "Interrupt Protocol", session.Title)
}

func TestResolveSession_FallsBackToDayOne(t *testing.T) {
	// День 4 в RAPID_PATCH не заполнен - ожидаем первую сессию.
	session, err := ResolveSession(4, TierRapidPatch)
	require.NoError(t, err)
	assert.Equal(t, 1, session.Day)
	assert.Equal(t, "Pressure Release", session.Title)

	// Out-of-range день ведёт себя так же.
	session, err = ResolveSession(500, TierSystemReboot)
	require.NoError(t, err)
	assert.Equal(t, 1, session.Day)
}

func TestResolveSession_EveryPopulatedDayRoundTrips(t *testing.T) {
	for _, p := range All() {
		for _, want := range p.Sessions {
			got, err := ResolveSession(want.Day, p.ID)
			require.NoError(t, err)
			assert.Equal(t, want.Day, got.Day, "program %s day %d", p.ID, want.Day)
		}
	}
}

func TestTier_RequiresElevatedAccess(t *testing.T) {
	assert.False(t, TierRapidPatch.RequiresElevatedAccess())
	assert.True(t, TierSystemReboot.RequiresElevatedAccess())
	assert.True(t, TierArchitectMode.RequiresElevatedAccess())
}
