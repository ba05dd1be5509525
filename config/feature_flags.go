package config

import (
	"errors"
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	ErrFeatureNotFound       = errors.New("feature not found")
	ErrInvalidRolloutPercent = errors.New("rollout percent must be 0-100")
)

// Feature flag names. The adaptive engine intervenes in real learning
// sessions, so every behavior-changing capability ships behind one of these:
// a rollout that degrades recommendations must be reversible without a deploy.
const (
	// Adaptive path signals.
	FeaturePathCollectivePrior = "path.collective_prior" // blend emergent prerequisites into scores
	FeaturePathAcceleration    = "path.acceleration"     // suggest skipping well-mastered nodes
	FeaturePathPeerSuccess     = "path.peer_success"     // weight optimal-path membership

	// Orchestration interventions.
	FeatureOrchestrationSlowdown    = "orchestration.slowdown"     // pace-down proposals on sustained struggle
	FeatureOrchestrationRemedial    = "orchestration.remedial"     // remedial material proposals
	FeatureOrchestrationPeerExample = "orchestration.peer_example" // peer solution proposals
	FeatureOrchestrationBreaks      = "orchestration.breaks"       // break suggestions on long activity
	FeatureOrchestrationCelebrate   = "orchestration.celebrate"    // streak celebrations

	// Collective mining outputs.
	FeatureCollectiveStrugglePoints = "collective.struggle_points" // publish population struggle points
	FeatureCollectiveOptimalPaths   = "collective.optimal_paths"   // publish optimal path sequences

	// Experiments, off by default.
	FeatureExperimentalProfileFeedback = "experimental.profile_feedback" // learn from accepted/dismissed decisions
	FeatureExperimentalAnalytics       = "experimental.analytics"        // advanced analytics surface
)

// defaultFeatures is the shipped flag table. Peer-example proposals are the
// most intrusive intervention and start at a partial rollout.
var defaultFeatures = []Feature{
	{Name: FeaturePathCollectivePrior, Description: "Blend emergent prerequisites into traversability", Enabled: true, RolloutPercent: 100},
	{Name: FeaturePathAcceleration, Description: "Recommend skipping well-mastered nodes", Enabled: true, RolloutPercent: 100},
	{Name: FeaturePathPeerSuccess, Description: "Weight membership in successful peer paths", Enabled: true, RolloutPercent: 100},
	{Name: FeatureOrchestrationSlowdown, Description: "Propose slowing down on sustained struggle", Enabled: true, RolloutPercent: 100},
	{Name: FeatureOrchestrationRemedial, Description: "Propose remedial material on hint reliance", Enabled: true, RolloutPercent: 100},
	{Name: FeatureOrchestrationPeerExample, Description: "Propose peer solutions after failed runs", Enabled: true, RolloutPercent: 50},
	{Name: FeatureOrchestrationBreaks, Description: "Suggest breaks on long continuous activity", Enabled: true, RolloutPercent: 100},
	{Name: FeatureOrchestrationCelebrate, Description: "Celebrate correct-answer streaks", Enabled: true, RolloutPercent: 100},
	{Name: FeatureCollectiveStrugglePoints, Description: "Publish population struggle points", Enabled: true, RolloutPercent: 100},
	{Name: FeatureCollectiveOptimalPaths, Description: "Publish optimal path sequences", Enabled: true, RolloutPercent: 100},
	{Name: FeatureExperimentalProfileFeedback, Description: "Adjust profiles from decision feedback"},
	{Name: FeatureExperimentalAnalytics, Description: "Advanced analytics surface"},
}

// Feature is one toggle with its rollout and targeting rules.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// RolloutPercent (0-100) gates learners by a stable hash of their ID.
	RolloutPercent int

	// TargetCohorts restricts the feature to named cohorts; empty means all.
	TargetCohorts []string

	// Activation window; nil bounds are open.
	EnabledFrom  *time.Time
	EnabledUntil *time.Time

	// Variants, when set, split enabled learners into experiment arms.
	Variants []string
}

// FeatureContext identifies who is asking.
type FeatureContext struct {
	LearnerID string
	Cohort    string
	IsAdmin   bool
}

// FeatureFlags evaluates toggles with gradual rollout, cohort targeting and
// per-learner overrides.
type FeatureFlags struct {
	mu               sync.RWMutex
	features         map[string]*Feature
	learnerOverrides map[string]map[string]bool
}

// LoadFeatureFlags builds the shipped table and applies env overrides of the
// form FEATURE_<NAME>=true|false|<percent>, with dots mapped to underscores
// (FEATURE_ORCHESTRATION_PEER_EXAMPLE=25 sets a 25% rollout).
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:         make(map[string]*Feature, len(defaultFeatures)),
		learnerOverrides: make(map[string]map[string]bool),
	}
	for i := range defaultFeatures {
		f := defaultFeatures[i]
		applyEnvOverride(&f)
		ff.features[f.Name] = &f
	}
	return ff
}

func applyEnvOverride(f *Feature) {
	key := "FEATURE_" + strings.ReplaceAll(strings.ToUpper(f.Name), ".", "_")
	val := os.Getenv(key)
	if val == "" {
		return
	}
	if b, err := strconv.ParseBool(val); err == nil {
		f.Enabled = b
		f.RolloutPercent = 0
		if b {
			f.RolloutPercent = 100
		}
		return
	}
	if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
		f.Enabled = p > 0
		f.RolloutPercent = p
	}
}

// IsEnabled evaluates a feature for the given context. Unknown features are
// always off.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()
	return ff.isEnabledLocked(featureName, ctx)
}

func (ff *FeatureFlags) isEnabledLocked(featureName string, ctx *FeatureContext) bool {
	// Per-learner overrides beat everything, including disabled features.
	if ctx != nil && ctx.LearnerID != "" {
		if enabled, ok := ff.learnerOverrides[ctx.LearnerID][featureName]; ok {
			return enabled
		}
	}

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}
	if ctx != nil && ctx.IsAdmin {
		return true
	}
	if !feature.Enabled || !feature.activeNow(time.Now()) {
		return false
	}
	if !feature.cohortMatches(ctx) {
		return false
	}
	if feature.RolloutPercent < 100 && ctx != nil && ctx.LearnerID != "" {
		return stableBucket(featureName, ctx.LearnerID) < feature.RolloutPercent
	}
	return feature.RolloutPercent > 0
}

func (f *Feature) activeNow(now time.Time) bool {
	if f.EnabledFrom != nil && now.Before(*f.EnabledFrom) {
		return false
	}
	if f.EnabledUntil != nil && now.After(*f.EnabledUntil) {
		return false
	}
	return true
}

func (f *Feature) cohortMatches(ctx *FeatureContext) bool {
	if len(f.TargetCohorts) == 0 || ctx == nil || ctx.Cohort == "" {
		return true
	}
	for _, c := range f.TargetCohorts {
		if c == ctx.Cohort {
			return true
		}
	}
	return false
}

// stableBucket maps (seed, id) onto 0-99 so a learner keeps their bucket
// across evaluations and restarts.
func stableBucket(seed, id string) int {
	h := fnv.New32a()
	h.Write([]byte(seed))
	h.Write([]byte(id))
	return int(h.Sum32() % 100)
}

// GetVariant assigns an experiment arm, or "" when the feature is off or has
// no variants. Assignment is stable per learner.
func (ff *FeatureFlags) GetVariant(featureName string, ctx *FeatureContext) string {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, ok := ff.features[featureName]
	if !ok || ctx == nil || len(feature.Variants) == 0 {
		return ""
	}
	if !ff.isEnabledLocked(featureName, ctx) {
		return ""
	}

	h := fnv.New32a()
	h.Write([]byte(featureName + "_variant"))
	h.Write([]byte(ctx.LearnerID))
	return feature.Variants[int(h.Sum32()%uint32(len(feature.Variants)))]
}

// SetLearnerOverride pins a feature on or off for one learner.
func (ff *FeatureFlags) SetLearnerOverride(learnerID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.learnerOverrides[learnerID] == nil {
		ff.learnerOverrides[learnerID] = make(map[string]bool)
	}
	ff.learnerOverrides[learnerID][featureName] = enabled
}

// ClearLearnerOverrides drops every pin for a learner.
func (ff *FeatureFlags) ClearLearnerOverrides(learnerID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.learnerOverrides, learnerID)
}

// SetRolloutPercent adjusts a live rollout; 0 disables, 100 fully enables.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	feature.RolloutPercent = percent
	feature.Enabled = percent > 0
	return nil
}

// EnableFeature turns a feature fully on.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature turns a feature fully off.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a snapshot of the table for the insights surface.
func (ff *FeatureFlags) GetAllFeatures() map[string]*Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	out := make(map[string]*Feature, len(ff.features))
	for name, f := range ff.features {
		cp := *f
		out[name] = &cp
	}
	return out
}

// InterventionsEnabled reports whether any orchestration intervention can fire.
func (ff *FeatureFlags) InterventionsEnabled(ctx *FeatureContext) bool {
	return ff.IsEnabled(FeatureOrchestrationSlowdown, ctx) ||
		ff.IsEnabled(FeatureOrchestrationRemedial, ctx) ||
		ff.IsEnabled(FeatureOrchestrationPeerExample, ctx) ||
		ff.IsEnabled(FeatureOrchestrationBreaks, ctx)
}

// CollectiveSignalsEnabled reports whether collective mining outputs are consumed.
func (ff *FeatureFlags) CollectiveSignalsEnabled(ctx *FeatureContext) bool {
	return ff.IsEnabled(FeaturePathCollectivePrior, ctx) ||
		ff.IsEnabled(FeatureCollectiveStrugglePoints, ctx) ||
		ff.IsEnabled(FeatureCollectiveOptimalPaths, ctx)
}
