package buffer

import "time"

// MetricSample is one observation of encode throughput and segment flow for
// a streaming session.
type MetricSample struct {
	SpeedMultiplier   float64
	FPS               float64
	SegmentsGenerated int
	SegmentsConsumed  int
	Timestamp         time.Time
}

// Tier names a buffering posture.
type Tier string

const (
	TierAggressive   Tier = "aggressive"
	TierBalanced     Tier = "balanced"
	TierConservative Tier = "conservative"
)

// Action is the pacing decision for the next segment request.
type Action string

const (
	ActionWait     Action = "wait"
	ActionPrefetch Action = "prefetch"
	ActionContinue Action = "continue"
)

// Strategy describes how aggressively segment delivery may proceed. Always
// derived fresh from current metric history, never persisted.
type Strategy struct {
	MinSegments    int    `json:"minSegments"`
	TargetSegments int    `json:"targetSegments"`
	MaxSegments    int    `json:"maxSegments"`
	Tier           Tier   `json:"tier"`
	Rationale      string `json:"rationale"`
}

// StatusReport is a monitoring snapshot of one session's buffering state.
type StatusReport struct {
	AverageSpeed      string   `json:"averageSpeed"`
	BufferAvailable   int      `json:"bufferAvailable"`
	Strategy          Strategy `json:"strategy"`
	IsCritical        bool     `json:"isCritical"`
	RecommendedAction Action   `json:"recommendedAction"`
	SampleCount       int      `json:"sampleCount"`
}

// Thresholds are the named tunables behind tier selection. The cutoffs are
// inherited heuristics with no stated derivation, so they stay configurable
// rather than hard-coded.
type Thresholds struct {
	// AggressiveSpeed is the average speed multiplier at or above which
	// delivery may run aggressively.
	AggressiveSpeed float64
	// ConservativeSpeed is the average speed multiplier below which
	// delivery is throttled conservatively.
	ConservativeSpeed float64
	// AverageWindow is how many recent samples feed the speed average.
	AverageWindow int
	// SlowdownWindow is how many consecutive strictly decreasing samples
	// count as a slowdown.
	SlowdownWindow int
	// SampleCapacity bounds the per-session metric history.
	SampleCapacity int
}

// DefaultThresholds returns the stock tunables.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AggressiveSpeed:   4.0,
		ConservativeSpeed: 2.0,
		AverageWindow:     5,
		SlowdownWindow:    3,
		SampleCapacity:    20,
	}
}

func (t Thresholds) normalized() Thresholds {
	defaults := DefaultThresholds()
	if t.AggressiveSpeed <= 0 {
		t.AggressiveSpeed = defaults.AggressiveSpeed
	}
	if t.ConservativeSpeed <= 0 || t.ConservativeSpeed >= t.AggressiveSpeed {
		t.ConservativeSpeed = defaults.ConservativeSpeed
	}
	if t.AverageWindow <= 0 {
		t.AverageWindow = defaults.AverageWindow
	}
	if t.SlowdownWindow < 2 {
		t.SlowdownWindow = defaults.SlowdownWindow
	}
	if t.SampleCapacity <= 0 {
		t.SampleCapacity = defaults.SampleCapacity
	}
	return t
}
