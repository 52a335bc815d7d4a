// Package confidence holds the pure scoring functions for memory
// retention: exponential time decay, diminishing-return reinforcement,
// symmetric penalties, and the prune predicate. It keeps no state of its
// own; callers pass in and get back a memory's Confidence sub-record.
package confidence

import (
	"math"
	"time"

	"github.com/mnemo-dev/mnemo/internal/domain"
)

const (
	// DefaultDecayRate is applied per day since last access when a memory
	// carries no rate of its own.
	DefaultDecayRate = 0.05

	// ReinforcementFactor scales an incoming signal before it closes the
	// gap between current confidence and 1.0.
	ReinforcementFactor = 1.0

	// RetrievalSignal is the weak reinforcement applied to every memory a
	// retrieval actually returns.
	RetrievalSignal = 0.05

	// ExtractionSignal is applied when the extractor re-observes a fact it
	// already stored.
	ExtractionSignal = 0.2

	// FeedbackSignal is the strong signal for explicit positive or
	// negative feedback.
	FeedbackSignal = 0.3
)

// New returns the confidence sub-record for a freshly created memory.
func New(initial float64, now time.Time) domain.Confidence {
	c := domain.Confidence{
		Current:        initial,
		Created:        initial,
		LastAccessedAt: now,
		DecayRate:      DefaultDecayRate,
	}
	return c.Clamp()
}

// Decay applies exponential decay for the time elapsed since the memory
// was last accessed or last decayed, whichever is later:
// current' = current * exp(-rate * days). DecayedAt records the anchor so
// a persisted decay is never applied twice over the same span, and
// LastAccessedAt is left alone so staleness checks still see real access
// time. Reinforcement slows decay: the effective rate is divided by
// log(reinforcements + 2).
func Decay(c domain.Confidence, now time.Time) domain.Confidence {
	anchor := c.LastAccessedAt
	if c.DecayedAt.After(anchor) {
		anchor = c.DecayedAt
	}
	days := now.Sub(anchor).Hours() / 24
	if days <= 0 {
		return c.Clamp()
	}

	rate := c.DecayRate
	if rate <= 0 {
		rate = DefaultDecayRate
	}
	rate /= math.Log(float64(c.Reinforcements) + 2)

	c.Current *= math.Exp(-rate * days)
	c.DecayedAt = now
	return c.Clamp()
}

// Reinforce raises confidence with diminishing returns as it approaches
// 1.0, bumps the reinforcement count, and marks the memory accessed.
// signal is expected in [0,1]; negative signals are ignored.
func Reinforce(c domain.Confidence, now time.Time, signal float64) domain.Confidence {
	if signal < 0 {
		signal = 0
	}
	if signal > 1 {
		signal = 1
	}

	c.Current += (1 - c.Current) * signal * ReinforcementFactor
	c.Reinforcements++
	c.LastAccessedAt = now
	return c.Clamp()
}

// Penalize is the counterpart of Reinforce for explicit negative
// feedback: a plain subtraction clamped at zero. It marks the memory
// accessed so the penalty is not immediately compounded by decay.
func Penalize(c domain.Confidence, now time.Time, signal float64) domain.Confidence {
	if signal < 0 {
		signal = 0
	}
	if signal > 1 {
		signal = 1
	}

	c.Current -= signal
	c.LastAccessedAt = now
	return c.Clamp()
}

// ShouldPrune reports whether a memory is both below the prune threshold
// and past the grace period since last access. The grace period keeps
// freshly created, not-yet-reinforced memories alive.
func ShouldPrune(c domain.Confidence, now time.Time, threshold float64, grace time.Duration) bool {
	return c.Current < threshold && now.Sub(c.LastAccessedAt) > grace
}
