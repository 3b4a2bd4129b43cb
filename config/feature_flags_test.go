package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureFlags_Defaults(t *testing.T) {
	ff := LoadFeatureFlags()

	assert.True(t, ff.IsEnabled(FeatureBillingCheckout, nil))
	assert.True(t, ff.IsEnabled(FeatureBillingReconcile, nil))
	assert.True(t, ff.IsEnabled(FeatureStreakSweep, nil))
	assert.False(t, ff.IsEnabled(FeatureExperimentalRankBoost, nil))
	assert.False(t, ff.IsEnabled("does.not.exist", nil))
}

func TestFeatureFlags_UserOverrideWins(t *testing.T) {
	ff := LoadFeatureFlags()
	ctx := &FeatureContext{UserID: "u1"}

	assert.False(t, ff.IsEnabled(FeatureExperimentalRankBoost, ctx))

	ff.SetUserOverride("u1", FeatureExperimentalRankBoost, true)
	assert.True(t, ff.IsEnabled(FeatureExperimentalRankBoost, ctx))
	assert.False(t, ff.IsEnabled(FeatureExperimentalRankBoost, &FeatureContext{UserID: "u2"}))

	ff.ClearUserOverrides("u1")
	assert.False(t, ff.IsEnabled(FeatureExperimentalRankBoost, ctx))
}

func TestFeatureFlags_RolloutIsConsistentPerUser(t *testing.T) {
	ff := LoadFeatureFlags()
	require.NoError(t, ff.EnableFeature(FeatureExperimentalRankBoost))
	require.NoError(t, ff.SetRolloutPercent(FeatureExperimentalRankBoost, 50))

	ctx := &FeatureContext{UserID: "user-assigned-bucket"}
	first := ff.IsEnabled(FeatureExperimentalRankBoost, ctx)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ff.IsEnabled(FeatureExperimentalRankBoost, ctx))
	}
}

func TestFeatureFlags_SetRolloutPercentValidation(t *testing.T) {
	ff := LoadFeatureFlags()

	assert.Error(t, ff.SetRolloutPercent(FeatureBillingCheckout, -1))
	assert.Error(t, ff.SetRolloutPercent(FeatureBillingCheckout, 101))
	assert.Error(t, ff.SetRolloutPercent("does.not.exist", 50))
	assert.NoError(t, ff.SetRolloutPercent(FeatureBillingCheckout, 100))
}

func TestFeatureFlags_EnvironmentOverride(t *testing.T) {
	t.Setenv("FEATURE_BILLING_CHECKOUT", "false")
	t.Setenv("FEATURE_EXPERIMENTAL_RANK_BOOST", "true")

	ff := LoadFeatureFlags()

	assert.False(t, ff.IsEnabled(FeatureBillingCheckout, nil))
	assert.True(t, ff.IsEnabled(FeatureExperimentalRankBoost, nil))
}

func TestFeatureFlags_EnvironmentPercentRollout(t *testing.T) {
	t.Setenv("FEATURE_EXPERIMENTAL_RANK_BOOST", "100")

	ff := LoadFeatureFlags()

	assert.True(t, ff.IsEnabled(FeatureExperimentalRankBoost, nil))
	assert.True(t, ff.IsEnabled(FeatureExperimentalRankBoost, &FeatureContext{UserID: "anyone"}))
}

func TestConfig_ValidateProductionRequirements(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("BILLING_API_KEY", "")
	t.Setenv("BILLING_WEBHOOK_SECRET", "")
	t.Setenv("DB_PASSWORD", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BILLING_API_KEY")
}

func TestConfig_LoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "nivo-hub", cfg.App.Name)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.NotNil(t, cfg.Features)
}
