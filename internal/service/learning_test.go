package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mnemo-dev/mnemo/internal/domain"
	"github.com/mnemo-dev/mnemo/internal/embedding"
	"github.com/mnemo-dev/mnemo/internal/store"
)

func TestFeedbackPositive(t *testing.T) {
	e := newTestEngine(t, embedding.ProviderMock)
	ctx := context.Background()

	m := e.mustCreate(t, domain.MemoryTypeSemantic, domain.SourceInteraction, "prefers short standup meetings")

	after, err := e.learner.Feedback(ctx, m.ID, OutcomePositive)
	require.NoError(t, err)

	// 0.6 + (1 - 0.6) * 0.3
	assert.InDelta(t, 0.72, after.Confidence.Current, 1e-9)
	assert.Equal(t, 1, after.Confidence.Reinforcements)
}

func TestFeedbackNegative(t *testing.T) {
	e := newTestEngine(t, embedding.ProviderMock)
	ctx := context.Background()

	m := e.mustCreate(t, domain.MemoryTypeSemantic, domain.SourceInteraction, "prefers short standup meetings")

	after, err := e.learner.Feedback(ctx, m.ID, OutcomeNegative)
	require.NoError(t, err)

	assert.InDelta(t, 0.3, after.Confidence.Current, 1e-9)
	assert.Equal(t, 0, after.Confidence.Reinforcements)
}

func TestFeedbackValidation(t *testing.T) {
	e := newTestEngine(t, embedding.ProviderMock)
	ctx := context.Background()

	m := e.mustCreate(t, domain.MemoryTypeSemantic, domain.SourceInteraction, "some fact")

	_, err := e.learner.Feedback(ctx, m.ID, "meh")
	assert.Error(t, err)

	_, err = e.learner.Feedback(ctx, uuid.New(), OutcomePositive)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFeedbackPublishesEvents(t *testing.T) {
	e := newTestEngine(t, embedding.ProviderMock)
	ctx := context.Background()

	m := e.mustCreate(t, domain.MemoryTypeSemantic, domain.SourceInteraction, "some fact")

	_, err := e.learner.Feedback(ctx, m.ID, OutcomePositive)
	require.NoError(t, err)
	_, err = e.learner.Feedback(ctx, m.ID, OutcomeNegative)
	require.NoError(t, err)

	seen := map[EventType]bool{}
	for len(e.bus.Events()) > 0 {
		seen[(<-e.bus.Events()).Type] = true
	}
	assert.True(t, seen[EventCreated])
	assert.True(t, seen[EventReinforced])
	assert.True(t, seen[EventPenalized])
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := NewBus(1, zap.NewNop())

	bus.Publish(EventCreated, uuid.New())
	bus.Publish(EventCreated, uuid.New())
	bus.Publish(EventCreated, uuid.New())

	assert.Equal(t, int64(2), bus.Dropped())
	assert.Len(t, bus.Events(), 1)
}
