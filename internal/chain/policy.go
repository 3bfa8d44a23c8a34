package chain

import (
	"fmt"
	"math"
)

// SizingMethod selects how buffer sizes are derived from chain durations.
type SizingMethod string

const (
	// RootSumSquare sizes a buffer as sqrt(sum((d_i * f)^2)).
	RootSumSquare SizingMethod = "rss"
	// HalfChain sizes a buffer as f * sum(d_i).
	HalfChain SizingMethod = "half"
)

// Policy holds the tunable constants of the analysis.
type Policy struct {
	// Method is the buffer sizing method. Default: RootSumSquare.
	Method SizingMethod

	// DurationFraction is the share of each task duration treated as
	// safety removed from the estimate. Default: 0.5.
	DurationFraction float64

	// MaxLevelingIterations caps resource leveling rounds. When reached,
	// the analysis proceeds with the last schedule and records a
	// ResourceLevelingDidNotConverge warning. Default: 25.
	MaxLevelingIterations int
}

// DefaultPolicy returns the stock CCPM policy: root-sum-square over
// half-durations.
func DefaultPolicy() Policy {
	return Policy{
		Method:                RootSumSquare,
		DurationFraction:      0.5,
		MaxLevelingIterations: 25,
	}
}

// Validate reports the first invalid field.
func (p Policy) Validate() error {
	switch p.Method {
	case RootSumSquare, HalfChain:
	default:
		return fmt.Errorf("unknown sizing method %q", p.Method)
	}
	if p.DurationFraction < 0 || p.DurationFraction > 1 {
		return fmt.Errorf("duration fraction must be between 0 and 1, got %v", p.DurationFraction)
	}
	if p.MaxLevelingIterations < 1 {
		return fmt.Errorf("max leveling iterations must be positive, got %d", p.MaxLevelingIterations)
	}
	return nil
}

// Size returns the buffer for a chain with the given task durations,
// rounded to the nearest whole minute. An empty or all-zero chain
// yields 0.
func (p Policy) Size(durations []int) int {
	switch p.Method {
	case HalfChain:
		sum := 0
		for _, d := range durations {
			sum += d
		}
		return int(math.Round(p.DurationFraction * float64(sum)))
	default:
		var sq float64
		for _, d := range durations {
			x := float64(d) * p.DurationFraction
			sq += x * x
		}
		return int(math.Round(math.Sqrt(sq)))
	}
}
