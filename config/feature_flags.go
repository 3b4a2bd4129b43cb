package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeatureFlags manages runtime feature toggles.
type FeatureFlags struct {
	mu sync.RWMutex

	// Core features
	features map[string]*Feature

	// Override rules (for testing/debugging)
	userOverrides map[string]map[string]bool // userID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100)
	// Users are assigned based on hash of their ID
	RolloutPercent int

	// Tier targeting (e.g., "RAPID_PATCH", "ARCHITECT_MODE")
	// Empty means all tiers
	TargetTiers []string

	// Time-based activation
	EnabledFrom  *time.Time
	EnabledUntil *time.Time
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	UserID string // internal user ID
	Tier   string // program tier the check concerns
}

// Predefined feature flag names.
const (
	// === Billing Features ===
	FeatureBillingCheckout     = "billing.checkout"      // Hosted checkout endpoint
	FeatureBillingReconcile    = "billing.reconcile"     // Lapsed subscription sweep
	FeatureBillingWebhookDedup = "billing.webhook_dedup" // Webhook idempotency guard

	// === Program Features ===
	FeatureProgramArchitectMode = "program.architect_mode" // 66-day flagship program

	// === Streak Features ===
	FeatureStreakEvents = "streak.events" // Publish streak domain events
	FeatureStreakSweep  = "streak.sweep"  // Nightly broken-streak sweep

	// === Experimental Features ===
	FeatureExperimentalRankBoost = "experimental.rank_boost" // Accelerated tenure experiments
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature),
		userOverrides: make(map[string]map[string]bool),
	}

	ff.initializeDefaults()
	ff.loadFromEnvironment()

	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	// Billing features - enabled by default, the app cannot monetize
	// without them
	ff.features[FeatureBillingCheckout] = &Feature{
		Name:           FeatureBillingCheckout,
		Description:    "Hosted checkout session endpoint",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureBillingReconcile] = &Feature{
		Name:           FeatureBillingReconcile,
		Description:    "Background reconciliation of lapsed subscriptions",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureBillingWebhookDedup] = &Feature{
		Name:           FeatureBillingWebhookDedup,
		Description:    "Webhook event idempotency guard",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Program features
	ff.features[FeatureProgramArchitectMode] = &Feature{
		Name:           FeatureProgramArchitectMode,
		Description:    "66-day ARCHITECT_MODE program",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Streak features
	ff.features[FeatureStreakEvents] = &Feature{
		Name:           FeatureStreakEvents,
		Description:    "Publish day-completed and streak-broken events",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureStreakSweep] = &Feature{
		Name:           FeatureStreakSweep,
		Description:    "Nightly sweep resetting broken streaks",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Experimental features - disabled by default
	ff.features[FeatureExperimentalRankBoost] = &Feature{
		Name:           FeatureExperimentalRankBoost,
		Description:    "Accelerated tenure experiments",
		Enabled:        false,
		RolloutPercent: 0,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_BILLING_CHECKOUT=true
// Example: FEATURE_STREAK_EVENTS=50 (50% rollout)
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		envKey := featureNameToEnvKey(name)
		val := os.Getenv(envKey)
		if val == "" {
			continue
		}

		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			if b {
				feature.RolloutPercent = 100
			} else {
				feature.RolloutPercent = 0
			}
			continue
		}

		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "billing.checkout" -> "FEATURE_BILLING_CHECKOUT"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	// Check user overrides first
	if ctx != nil && ctx.UserID != "" {
		if userOverrides, ok := ff.userOverrides[ctx.UserID]; ok {
			if enabled, ok := userOverrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}

	if !feature.Enabled {
		return false
	}

	// Time-based activation
	now := time.Now()
	if feature.EnabledFrom != nil && now.Before(*feature.EnabledFrom) {
		return false
	}
	if feature.EnabledUntil != nil && now.After(*feature.EnabledUntil) {
		return false
	}

	// Tier targeting
	if len(feature.TargetTiers) > 0 && ctx != nil && ctx.Tier != "" {
		tierMatch := false
		for _, t := range feature.TargetTiers {
			if t == ctx.Tier {
				tierMatch = true
				break
			}
		}
		if !tierMatch {
			return false
		}
	}

	// Rollout percentage
	if feature.RolloutPercent < 100 && ctx != nil && ctx.UserID != "" {
		return ff.isInRollout(ctx.UserID, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// isInRollout determines if a user is in the rollout percentage.
// Uses consistent hashing so users stay in their bucket.
func (ff *FeatureFlags) isInRollout(userID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(userID))
	bucket := int(h.Sum32() % 100)

	return bucket < percent
}

// SetUserOverride sets a feature override for a specific user.
// Useful for testing and debugging.
func (ff *FeatureFlags) SetUserOverride(userID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.userOverrides[userID]; !ok {
		ff.userOverrides[userID] = make(map[string]bool)
	}
	ff.userOverrides[userID][featureName] = enabled
}

// ClearUserOverrides removes all overrides for a user.
func (ff *FeatureFlags) ClearUserOverrides(userID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.userOverrides, userID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
// Thread-safe for live updates.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}

	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0

	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]*Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]*Feature, len(ff.features))
	for k, v := range ff.features {
		featureCopy := *v
		result[k] = &featureCopy
	}
	return result
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
