package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-dev/mnemo/internal/domain"
	"github.com/mnemo-dev/mnemo/internal/embedding"
)

func TestExtractClassifiesByRule(t *testing.T) {
	e := newTestEngine(t, embedding.ProviderMock)

	result, err := e.extractor.Extract(context.Background(), "sess-1", []domain.Turn{
		{Role: "user", Content: "I prefer dark mode in every editor. Always run the linter before committing. Yesterday we deployed the billing service."},
	})
	require.NoError(t, err)
	require.Len(t, result.Created, 3)

	byType := map[domain.MemoryType]int{}
	for _, m := range result.Created {
		byType[m.Type]++
		assert.Equal(t, "sess-1", m.SessionID)
		assert.Equal(t, domain.SourceInteraction, m.Source)
	}
	assert.Equal(t, 1, byType[domain.MemoryTypeSemantic])
	assert.Equal(t, 1, byType[domain.MemoryTypeProcedural])
	assert.Equal(t, 1, byType[domain.MemoryTypeEpisodic])
}

func TestExtractIgnoresChatterAndAssistantTurns(t *testing.T) {
	e := newTestEngine(t, embedding.ProviderMock)

	result, err := e.extractor.Extract(context.Background(), "sess-1", []domain.Turn{
		{Role: "assistant", Content: "I prefer to answer in bullet points."},
		{Role: "user", Content: "ok thanks. sounds good to me."},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Created)
	assert.Empty(t, result.Reinforced)
}

func TestExtractDedupReinforces(t *testing.T) {
	e := newTestEngine(t, embedding.ProviderMock)
	ctx := context.Background()

	turns := []domain.Turn{{Role: "user", Content: "Always run the linter before committing."}}

	first, err := e.extractor.Extract(ctx, "sess-1", turns)
	require.NoError(t, err)
	require.Len(t, first.Created, 1)

	second, err := e.extractor.Extract(ctx, "sess-2", turns)
	require.NoError(t, err)
	assert.Empty(t, second.Created)
	require.Len(t, second.Reinforced, 1)
	assert.Equal(t, first.Created[0].ID, second.Reinforced[0].ID)
	assert.Equal(t, 1, second.Reinforced[0].Confidence.Reinforcements)
	assert.Greater(t, second.Reinforced[0].Confidence.Current, first.Created[0].Confidence.Current)
	assert.Len(t, e.store.All(ctx), 1)
}

func TestExtractCorrectionSupersedes(t *testing.T) {
	e := newTestEngine(t, embedding.ProviderMock)
	ctx := context.Background()

	first, err := e.extractor.Extract(ctx, "sess-1", []domain.Turn{
		{Role: "user", Content: "Use npm install for dependencies."},
	})
	require.NoError(t, err)
	require.Len(t, first.Created, 1)
	old := first.Created[0]

	second, err := e.extractor.Extract(ctx, "sess-1", []domain.Turn{
		{Role: "user", Content: "Actually, use bun install for dependencies."},
	})
	require.NoError(t, err)
	require.Len(t, second.Created, 1)
	replacement := second.Created[0]

	assert.Equal(t, domain.MemoryTypeProcedural, replacement.Type)
	assert.True(t, e.graph.IsSuperseded(ctx, old.ID), "corrected memory should be tombstoned")
	assert.False(t, e.graph.IsSuperseded(ctx, replacement.ID))
	assert.Equal(t, []uuid.UUID{replacement.ID}, e.graph.Supersessors(ctx, old.ID))
}

func TestExtractCorrectionWithoutBackendStillCreates(t *testing.T) {
	e := newTestEngine(t, embedding.ProviderNone)
	ctx := context.Background()

	_, err := e.extractor.Extract(ctx, "sess-1", []domain.Turn{
		{Role: "user", Content: "Use npm install for dependencies."},
	})
	require.NoError(t, err)

	result, err := e.extractor.Extract(ctx, "sess-1", []domain.Turn{
		{Role: "user", Content: "Actually, use bun install for dependencies."},
	})
	require.NoError(t, err)
	require.Len(t, result.Created, 1)

	// No embeddings means no supersedes edge, but the correction is kept.
	assert.Empty(t, e.store.AllEdges(ctx))
}

func TestExtractMultipleTurns(t *testing.T) {
	e := newTestEngine(t, embedding.ProviderMock)

	result, err := e.extractor.Extract(context.Background(), "sess-9", []domain.Turn{
		{Role: "user", Content: "My name is Ada."},
		{Role: "assistant", Content: "Nice to meet you, Ada."},
		{Role: "user", Content: "Never force-push to the main branch."},
	})
	require.NoError(t, err)
	assert.Len(t, result.Created, 2)
}
