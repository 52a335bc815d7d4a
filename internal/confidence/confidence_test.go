package confidence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-dev/mnemo/internal/domain"
)

func TestReinforceDiminishingReturns(t *testing.T) {
	now := time.Now()
	c := New(0.5, now)

	c = Reinforce(c, now, 0.3)
	assert.InDelta(t, 0.65, c.Current, 1e-9)
	assert.Equal(t, 1, c.Reinforcements)
	assert.Equal(t, now, c.LastAccessedAt)

	// A second identical signal closes less of the remaining gap.
	c2 := Reinforce(c, now, 0.3)
	assert.InDelta(t, 0.755, c2.Current, 1e-9)
	assert.Less(t, c2.Current-c.Current, c.Current-0.5)
}

func TestReinforceMonotoneAndClamped(t *testing.T) {
	now := time.Now()
	c := New(0.9, now)

	for i := 0; i < 100; i++ {
		next := Reinforce(c, now, 1.0)
		require.GreaterOrEqual(t, next.Current, c.Current)
		require.LessOrEqual(t, next.Current, 1.0)
		c = next
	}
	assert.InDelta(t, 1.0, c.Current, 1e-9)
}

func TestDecayIdempotentForSameNow(t *testing.T) {
	start := time.Now().Add(-10 * 24 * time.Hour)
	now := time.Now()

	c := New(0.8, start)
	once := Decay(c, now)
	twice := Decay(once, now)

	assert.Equal(t, once, twice, "decay must not update last accessed time")
	assert.Less(t, once.Current, c.Current)
}

func TestDecaySpansNeverOverlap(t *testing.T) {
	start := time.Now().Add(-20 * 24 * time.Hour)
	mid := time.Now().Add(-10 * 24 * time.Hour)
	now := time.Now()

	c := New(0.8, start)

	// Decaying in two steps must equal decaying the whole span at once.
	stepped := Decay(Decay(c, mid), now)
	direct := Decay(c, now)
	assert.InDelta(t, direct.Current, stepped.Current, 1e-9)
}

func TestDecayNeverNegativeTime(t *testing.T) {
	now := time.Now()
	c := New(0.7, now.Add(time.Hour)) // accessed "in the future"

	got := Decay(c, now)
	assert.Equal(t, 0.7, got.Current)
}

func TestReinforcementSlowsDecay(t *testing.T) {
	last := time.Now().Add(-30 * 24 * time.Hour)
	now := time.Now()

	fresh := New(0.8, last)
	seasoned := New(0.8, last)
	seasoned.Reinforcements = 10

	assert.Greater(t, Decay(seasoned, now).Current, Decay(fresh, now).Current)
}

func TestPenalizeClampsAtZero(t *testing.T) {
	now := time.Now()
	c := New(0.2, now)

	c = Penalize(c, now, 0.3)
	assert.Equal(t, 0.0, c.Current)

	c = Penalize(c, now, 0.3)
	assert.Equal(t, 0.0, c.Current)
}

func TestBoundsHoldUnderMixedSequences(t *testing.T) {
	now := time.Now()
	c := New(0.5, now)

	ops := []func(domain.Confidence) domain.Confidence{
		func(c domain.Confidence) domain.Confidence { return Reinforce(c, now, 0.9) },
		func(c domain.Confidence) domain.Confidence { return Penalize(c, now, 0.7) },
		func(c domain.Confidence) domain.Confidence { return Decay(c, now.Add(100*24*time.Hour)) },
		func(c domain.Confidence) domain.Confidence { return Reinforce(c, now, 0.05) },
		func(c domain.Confidence) domain.Confidence { return Penalize(c, now, 1.0) },
	}
	for i := 0; i < 50; i++ {
		c = ops[i%len(ops)](c)
		require.GreaterOrEqual(t, c.Current, 0.0)
		require.LessOrEqual(t, c.Current, 1.0)
		require.GreaterOrEqual(t, c.Reinforcements, 0)
	}
}

func TestShouldPrune(t *testing.T) {
	now := time.Now()
	grace := 7 * 24 * time.Hour

	tests := []struct {
		name     string
		current  float64
		accessed time.Time
		want     bool
	}{
		{"low and stale", 0.01, now.Add(-30 * 24 * time.Hour), true},
		{"low but fresh", 0.01, now.Add(-time.Hour), false},
		{"healthy and stale", 0.6, now.Add(-30 * 24 * time.Hour), false},
		{"exactly at threshold", 0.05, now.Add(-30 * 24 * time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := domain.Confidence{Current: tt.current, LastAccessedAt: tt.accessed, DecayRate: DefaultDecayRate}
			assert.Equal(t, tt.want, ShouldPrune(c, now, 0.05, grace))
		})
	}
}
