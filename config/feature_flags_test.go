package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFeatureFlags_Defaults(t *testing.T) {
	ff := LoadFeatureFlags()

	ctx := &FeatureContext{LearnerID: "ln-1"}
	assert.True(t, ff.IsEnabled(FeaturePathCollectivePrior, ctx))
	assert.True(t, ff.IsEnabled(FeatureOrchestrationCelebrate, ctx))
	assert.False(t, ff.IsEnabled(FeatureExperimentalProfileFeedback, ctx))
	assert.False(t, ff.IsEnabled("does.not_exist", ctx))
}

func TestFeatureFlags_EnvOverrides(t *testing.T) {
	t.Setenv("FEATURE_ORCHESTRATION_BREAKS", "false")
	t.Setenv("FEATURE_EXPERIMENTAL_ANALYTICS", "true")
	t.Setenv("FEATURE_ORCHESTRATION_PEER_EXAMPLE", "25")

	ff := LoadFeatureFlags()
	ctx := &FeatureContext{LearnerID: "ln-1"}

	assert.False(t, ff.IsEnabled(FeatureOrchestrationBreaks, ctx))
	assert.True(t, ff.IsEnabled(FeatureExperimentalAnalytics, ctx))

	features := ff.GetAllFeatures()
	assert.Equal(t, 25, features[FeatureOrchestrationPeerExample].RolloutPercent)
}

func TestFeatureFlags_RolloutIsConsistentPerLearner(t *testing.T) {
	ff := LoadFeatureFlags()
	require.NoError(t, ff.SetRolloutPercent(FeatureOrchestrationCelebrate, 50))

	ctx := &FeatureContext{LearnerID: "ln-42"}
	first := ff.IsEnabled(FeatureOrchestrationCelebrate, ctx)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, ff.IsEnabled(FeatureOrchestrationCelebrate, ctx))
	}
}

func TestFeatureFlags_RolloutSplitsPopulation(t *testing.T) {
	ff := LoadFeatureFlags()
	require.NoError(t, ff.SetRolloutPercent(FeatureOrchestrationCelebrate, 50))

	enabled := 0
	for i := 0; i < 200; i++ {
		ctx := &FeatureContext{LearnerID: "learner-" + string(rune('a'+i%26)) + string(rune('0'+i/26))}
		if ff.IsEnabled(FeatureOrchestrationCelebrate, ctx) {
			enabled++
		}
	}

	// fnv bucketing is uniform enough that a 50% rollout never collapses
	// to all-on or all-off.
	assert.Greater(t, enabled, 0)
	assert.Less(t, enabled, 200)
}

func TestFeatureFlags_LearnerOverrideWinsOverRollout(t *testing.T) {
	ff := LoadFeatureFlags()
	require.NoError(t, ff.DisableFeature(FeatureOrchestrationSlowdown))

	ctx := &FeatureContext{LearnerID: "ln-1"}
	assert.False(t, ff.IsEnabled(FeatureOrchestrationSlowdown, ctx))

	ff.SetLearnerOverride("ln-1", FeatureOrchestrationSlowdown, true)
	assert.True(t, ff.IsEnabled(FeatureOrchestrationSlowdown, ctx))

	ff.ClearLearnerOverrides("ln-1")
	assert.False(t, ff.IsEnabled(FeatureOrchestrationSlowdown, ctx))
}

func TestFeatureFlags_AdminSeesEverything(t *testing.T) {
	ff := LoadFeatureFlags()

	ctx := &FeatureContext{LearnerID: "op-1", IsAdmin: true}
	assert.True(t, ff.IsEnabled(FeatureExperimentalProfileFeedback, ctx))
}

func TestFeatureFlags_SetRolloutPercentValidation(t *testing.T) {
	ff := LoadFeatureFlags()

	assert.ErrorIs(t, ff.SetRolloutPercent("does.not_exist", 10), ErrFeatureNotFound)
	assert.ErrorIs(t, ff.SetRolloutPercent(FeaturePathAcceleration, 101), ErrInvalidRolloutPercent)
}

func TestFeatureFlags_GetVariantIsStable(t *testing.T) {
	ff := LoadFeatureFlags()

	ff.mu.Lock()
	ff.features[FeatureOrchestrationCelebrate].Variants = []string{"confetti", "plain"}
	ff.mu.Unlock()

	ctx := &FeatureContext{LearnerID: "ln-7"}
	first := ff.GetVariant(FeatureOrchestrationCelebrate, ctx)
	require.Contains(t, []string{"confetti", "plain"}, first)

	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ff.GetVariant(FeatureOrchestrationCelebrate, ctx))
	}
}
