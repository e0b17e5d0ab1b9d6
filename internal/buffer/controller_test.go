package buffer_test

import (
	"fmt"
	"math"
	"testing"
	"time"

	"reelstream/internal/buffer"
)

func newController() *buffer.Controller {
	return buffer.NewController(buffer.DefaultThresholds())
}

func recordSpeeds(c *buffer.Controller, speeds ...float64) {
	for _, speed := range speeds {
		c.Record(buffer.MetricSample{SpeedMultiplier: speed})
	}
}

func TestAverageSpeedUsesRecentWindow(t *testing.T) {
	c := newController()
	if got := c.AverageSpeed(); got != 0 {
		t.Fatalf("expected 0 with no samples, got %v", got)
	}

	recordSpeeds(c, 2, 3)
	if got := c.AverageSpeed(); got != 2.5 {
		t.Fatalf("expected 2.5 for samples [2,3], got %v", got)
	}

	c.Reset()
	recordSpeeds(c, 10, 1, 2, 3, 4, 5)
	// Six samples recorded; only the last five are averaged.
	if got := c.AverageSpeed(); got != 3 {
		t.Fatalf("expected 3 for last-five window, got %v", got)
	}
}

func TestRecordEvictsOldestPastCapacity(t *testing.T) {
	c := newController()
	for i := 0; i < 25; i++ {
		c.Record(buffer.MetricSample{
			SpeedMultiplier:   1,
			SegmentsGenerated: i,
			Timestamp:         time.Now(),
		})
	}
	report := c.Report()
	if report.SampleCount != 20 {
		t.Fatalf("expected capacity of 20 samples, got %d", report.SampleCount)
	}
	// The latest sample survives eviction.
	if report.BufferAvailable != 24 {
		t.Fatalf("expected latest sample to drive availability, got %d", report.BufferAvailable)
	}
}

func TestIsSlowingDown(t *testing.T) {
	cases := []struct {
		speeds []float64
		want   bool
	}{
		{[]float64{2.0, 3.0, 4.0}, false},
		{[]float64{4.0, 3.0, 2.0}, true},
		{[]float64{4.0, 2.0, 3.0}, false},
		{[]float64{3.0, 3.0, 2.0}, false},
		{[]float64{4.0, 3.0}, false},
		{nil, false},
		{[]float64{9.0, 9.0, 4.0, 3.0, 2.0}, true},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%v", tc.speeds), func(t *testing.T) {
			c := newController()
			recordSpeeds(c, tc.speeds...)
			if got := c.IsSlowingDown(); got != tc.want {
				t.Fatalf("IsSlowingDown(%v) = %v, want %v", tc.speeds, got, tc.want)
			}
		})
	}
}

func TestBufferAvailableClampsAtZero(t *testing.T) {
	c := newController()
	if got := c.BufferAvailable(); got != 0 {
		t.Fatalf("expected 0 with no samples, got %d", got)
	}

	c.Record(buffer.MetricSample{SegmentsGenerated: 8, SegmentsConsumed: 3})
	if got := c.BufferAvailable(); got != 5 {
		t.Fatalf("expected 5 available, got %d", got)
	}

	c.Record(buffer.MetricSample{SegmentsGenerated: 2, SegmentsConsumed: 6})
	if got := c.BufferAvailable(); got != 0 {
		t.Fatalf("expected clamp to 0, got %d", got)
	}
}

func TestStrategyTiers(t *testing.T) {
	cases := []struct {
		name    string
		speeds  []float64
		tier    buffer.Tier
		min     int
		target  int
		maximum int
	}{
		{"aggressive", []float64{5, 5, 5, 5, 5}, buffer.TierAggressive, 2, 3, 5},
		{"balanced", []float64{3, 3, 3}, buffer.TierBalanced, 3, 5, 8},
		{"conservative slow", []float64{1, 1, 1}, buffer.TierConservative, 5, 10, 15},
		{"slowdown overrides midrange", []float64{4, 3, 2}, buffer.TierConservative, 5, 10, 15},
		{"slowdown overrides high speed", []float64{9, 8, 7}, buffer.TierConservative, 5, 10, 15},
		{"empty history", nil, buffer.TierConservative, 5, 10, 15},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newController()
			recordSpeeds(c, tc.speeds...)
			strategy := c.CurrentStrategy()
			if strategy.Tier != tc.tier {
				t.Fatalf("expected tier %s, got %s (%s)", tc.tier, strategy.Tier, strategy.Rationale)
			}
			if strategy.MinSegments != tc.min || strategy.TargetSegments != tc.target || strategy.MaxSegments != tc.maximum {
				t.Fatalf("unexpected shape for %s: %+v", tc.tier, strategy)
			}
			if strategy.Rationale == "" {
				t.Fatal("expected a rationale on every strategy")
			}
		})
	}
}

func TestNaNSpeedDegradesInsteadOfPanicking(t *testing.T) {
	c := newController()
	recordSpeeds(c, math.NaN(), math.NaN())
	strategy := c.CurrentStrategy()
	if strategy.Tier != buffer.TierConservative {
		t.Fatalf("expected conservative degradation for NaN input, got %s", strategy.Tier)
	}
	if got := c.AverageSpeed(); got != 0 {
		t.Fatalf("expected NaN samples excluded from average, got %v", got)
	}
}

func TestIsBufferCriticalTracksStrategyMinimum(t *testing.T) {
	c := newController()
	// Balanced tier: minimum 3.
	for i := 0; i < 3; i++ {
		c.Record(buffer.MetricSample{SpeedMultiplier: 3, SegmentsGenerated: 10, SegmentsConsumed: 8})
	}
	if !c.IsBufferCritical() {
		t.Fatal("expected critical with 2 available below minimum 3")
	}

	c.Record(buffer.MetricSample{SpeedMultiplier: 3, SegmentsGenerated: 12, SegmentsConsumed: 8})
	if c.IsBufferCritical() {
		t.Fatal("expected not critical with 4 available above minimum 3")
	}
}

func TestRecommendedAction(t *testing.T) {
	c := newController()
	// Balanced tier: min 3, target 5.
	record := func(available int) {
		c.Record(buffer.MetricSample{SpeedMultiplier: 3, SegmentsGenerated: available, SegmentsConsumed: 0})
	}

	record(1)
	if got := c.RecommendedAction(); got != buffer.ActionWait {
		t.Fatalf("expected wait below minimum, got %s", got)
	}
	record(4)
	if got := c.RecommendedAction(); got != buffer.ActionContinue {
		t.Fatalf("expected continue between min and target, got %s", got)
	}
	record(6)
	if got := c.RecommendedAction(); got != buffer.ActionPrefetch {
		t.Fatalf("expected prefetch at or past target, got %s", got)
	}
}

func TestRecommendedDelay(t *testing.T) {
	cases := []struct {
		speeds []float64
		want   time.Duration
	}{
		{[]float64{5, 5, 5}, 0},
		{[]float64{3, 3, 3}, 500 * time.Millisecond},
		{[]float64{1, 1, 1}, time.Second},
		{nil, time.Second},
	}
	for _, tc := range cases {
		c := newController()
		recordSpeeds(c, tc.speeds...)
		if got := c.RecommendedDelay(); got != tc.want {
			t.Fatalf("RecommendedDelay(%v) = %v, want %v", tc.speeds, got, tc.want)
		}
	}
}

func TestResetClearsHistory(t *testing.T) {
	c := newController()
	recordSpeeds(c, 5, 5, 5)
	c.Reset()
	if got := c.AverageSpeed(); got != 0 {
		t.Fatalf("expected 0 after reset, got %v", got)
	}
	if report := c.Report(); report.SampleCount != 0 {
		t.Fatalf("expected empty history after reset, got %d samples", report.SampleCount)
	}
}

func TestReportSnapshot(t *testing.T) {
	c := newController()
	recordSpeeds(c, 5, 5, 5, 5, 5)
	c.Record(buffer.MetricSample{SpeedMultiplier: 5, SegmentsGenerated: 10, SegmentsConsumed: 4})

	report := c.Report()
	if report.AverageSpeed != "5.00x" {
		t.Fatalf("expected formatted average, got %q", report.AverageSpeed)
	}
	if report.Strategy.Tier != buffer.TierAggressive {
		t.Fatalf("expected aggressive tier, got %s", report.Strategy.Tier)
	}
	if report.BufferAvailable != 6 || report.IsCritical {
		t.Fatalf("unexpected availability: %+v", report)
	}
	if report.RecommendedAction != buffer.ActionPrefetch {
		t.Fatalf("expected prefetch with 6 available against target 3, got %s", report.RecommendedAction)
	}
}
