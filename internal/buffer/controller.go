package buffer

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Tier strategy shapes. Min/target/max segment counts per tier.
var (
	aggressiveStrategy   = Strategy{MinSegments: 2, TargetSegments: 3, MaxSegments: 5, Tier: TierAggressive}
	balancedStrategy     = Strategy{MinSegments: 3, TargetSegments: 5, MaxSegments: 8, Tier: TierBalanced}
	conservativeStrategy = Strategy{MinSegments: 5, TargetSegments: 10, MaxSegments: 15, Tier: TierConservative}
)

// Throttle hints in milliseconds for the next speculative segment request.
const (
	delayFast   = 0
	delayMedium = 500 * time.Millisecond
	delaySlow   = 1000 * time.Millisecond
)

// Controller computes buffering decisions for one streaming session.
type Controller struct {
	mu         sync.RWMutex
	thresholds Thresholds
	samples    []MetricSample
}

// NewController returns a controller with the given tunables. Zero or
// inconsistent threshold fields fall back to defaults.
func NewController(thresholds Thresholds) *Controller {
	t := thresholds.normalized()
	return &Controller{
		thresholds: t,
		samples:    make([]MetricSample, 0, t.SampleCapacity),
	}
}

// Record appends a metric sample, evicting the oldest past capacity. A zero
// timestamp is stamped with the current time.
func (c *Controller) Record(sample MetricSample) {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, sample)
	if excess := len(c.samples) - c.thresholds.SampleCapacity; excess > 0 {
		c.samples = append(c.samples[:0], c.samples[excess:]...)
	}
}

// AverageSpeed returns the mean speed multiplier of the most recent
// AverageWindow samples, all available when fewer, 0 when none. The window
// is recency-weighted because throughput shifts quickly with scene
// complexity.
func (c *Controller) AverageSpeed() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.averageSpeedLocked()
}

func (c *Controller) averageSpeedLocked() float64 {
	if len(c.samples) == 0 {
		return 0
	}
	window := c.thresholds.AverageWindow
	start := len(c.samples) - window
	if start < 0 {
		start = 0
	}
	var sum float64
	count := 0
	for _, sample := range c.samples[start:] {
		speed := sample.SpeedMultiplier
		if math.IsNaN(speed) || math.IsInf(speed, 0) {
			continue
		}
		sum += speed
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// IsSlowingDown reports whether speed is strictly decreasing across the
// last SlowdownWindow samples. Fewer samples than the window means false.
func (c *Controller) IsSlowingDown() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isSlowingDownLocked()
}

func (c *Controller) isSlowingDownLocked() bool {
	window := c.thresholds.SlowdownWindow
	if len(c.samples) < window {
		return false
	}
	recent := c.samples[len(c.samples)-window:]
	for i := 1; i < len(recent); i++ {
		if recent[i].SpeedMultiplier >= recent[i-1].SpeedMultiplier {
			return false
		}
	}
	return true
}

// BufferAvailable returns generated minus consumed segments from the latest
// sample, clamped to zero.
func (c *Controller) BufferAvailable() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bufferAvailableLocked()
}

func (c *Controller) bufferAvailableLocked() int {
	if len(c.samples) == 0 {
		return 0
	}
	latest := c.samples[len(c.samples)-1]
	available := latest.SegmentsGenerated - latest.SegmentsConsumed
	if available < 0 {
		return 0
	}
	return available
}

// CurrentStrategy derives the buffering strategy from the rolling history.
// Evaluation order matters: a slowdown overrides an otherwise mid or high
// speed reading.
func (c *Controller) CurrentStrategy() Strategy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.strategyLocked()
}

func (c *Controller) strategyLocked() Strategy {
	avg := c.averageSpeedLocked()
	slowing := c.isSlowingDownLocked()
	t := c.thresholds

	switch {
	case avg >= t.AggressiveSpeed && !slowing:
		s := aggressiveStrategy
		s.Rationale = fmt.Sprintf("encode running at %.2fx, well ahead of playback; minimal buffer needed", avg)
		return s
	case avg >= t.ConservativeSpeed && avg < t.AggressiveSpeed && !slowing:
		s := balancedStrategy
		s.Rationale = fmt.Sprintf("encode running at %.2fx; moderate buffer keeps playback smooth", avg)
		return s
	case avg < t.ConservativeSpeed || slowing:
		s := conservativeStrategy
		if slowing {
			s.Rationale = fmt.Sprintf("encode speed dropping (now %.2fx); building a deep buffer before it falls behind", avg)
		} else {
			s.Rationale = fmt.Sprintf("encode running at only %.2fx; deep buffer needed to avoid stalls", avg)
		}
		return s
	default:
		// Unreachable with well-formed inputs; guards NaN readings.
		s := balancedStrategy
		s.Rationale = "throughput data inconclusive; using balanced defaults"
		return s
	}
}

// IsBufferCritical reports whether available segments sit below the current
// strategy's minimum.
func (c *Controller) IsBufferCritical() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bufferAvailableLocked() < c.strategyLocked().MinSegments
}

// RecommendedAction paces the next segment request: wait below the minimum,
// prefetch at or past the target, continue otherwise.
func (c *Controller) RecommendedAction() Action {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.recommendedActionLocked()
}

func (c *Controller) recommendedActionLocked() Action {
	available := c.bufferAvailableLocked()
	strategy := c.strategyLocked()
	switch {
	case available < strategy.MinSegments:
		return ActionWait
	case available >= strategy.TargetSegments:
		return ActionPrefetch
	default:
		return ActionContinue
	}
}

// RecommendedDelay is the throttle hint before the next speculative segment
// request, keeping clients from polling faster than the encoder can
// satisfy.
func (c *Controller) RecommendedDelay() time.Duration {
	avg := c.AverageSpeed()
	switch {
	case avg >= c.thresholds.AggressiveSpeed:
		return delayFast
	case avg < c.thresholds.ConservativeSpeed:
		return delaySlow
	default:
		return delayMedium
	}
}

// Report snapshots the session's buffering state for monitoring and the
// status endpoints.
func (c *Controller) Report() StatusReport {
	c.mu.RLock()
	defer c.mu.RUnlock()

	strategy := c.strategyLocked()
	available := c.bufferAvailableLocked()
	return StatusReport{
		AverageSpeed:      fmt.Sprintf("%.2fx", c.averageSpeedLocked()),
		BufferAvailable:   available,
		Strategy:          strategy,
		IsCritical:        available < strategy.MinSegments,
		RecommendedAction: c.recommendedActionLocked(),
		SampleCount:       len(c.samples),
	}
}

// Reset clears the metric history, used on session restart such as a seek
// beyond the encoded region.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = c.samples[:0]
}
