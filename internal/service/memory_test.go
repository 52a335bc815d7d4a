package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mnemo-dev/mnemo/internal/confidence"
	"github.com/mnemo-dev/mnemo/internal/domain"
	"github.com/mnemo-dev/mnemo/internal/embedding"
	"github.com/mnemo-dev/mnemo/internal/store"
)

func TestCreateInitializesConfidenceAndEmbeds(t *testing.T) {
	e := newTestEngine(t, embedding.ProviderMock)

	m := e.mustCreate(t, domain.MemoryTypeSemantic, domain.SourceExplicit, "prefers tabs over spaces")

	assert.InDelta(t, 0.9, m.Confidence.Current, 1e-9)
	assert.Equal(t, 0, m.Confidence.Reinforcements)
	assert.Len(t, m.Embedding, testDim)
	assert.True(t, e.vectors.Has(m.ID))
}

func TestCreateWithoutBackendIsTextOnly(t *testing.T) {
	e := newTestEngine(t, embedding.ProviderNone)

	m := e.mustCreate(t, domain.MemoryTypeSemantic, domain.SourceExplicit, "prefers tabs over spaces")

	assert.Empty(t, m.Embedding)
	assert.False(t, e.vectors.Has(m.ID))
	assert.Equal(t, 0, e.vectors.Len())
}

func TestCreateOrReinforceDedup(t *testing.T) {
	e := newTestEngine(t, embedding.ProviderMock)
	ctx := context.Background()

	first, created, err := e.memories.CreateOrReinforce(ctx, &domain.Memory{
		Type:    domain.MemoryTypeProcedural,
		Source:  domain.SourceInteraction,
		Content: "use bun install for dependencies",
	}, confidence.ExtractionSignal)
	require.NoError(t, err)
	assert.False(t, created)

	// Same content modulo case and punctuation hits the same hash.
	second, reinforced, err := e.memories.CreateOrReinforce(ctx, &domain.Memory{
		Type:    domain.MemoryTypeProcedural,
		Source:  domain.SourceInteraction,
		Content: "Use BUN install, for dependencies!",
	}, confidence.ExtractionSignal)
	require.NoError(t, err)
	assert.True(t, reinforced)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, second.Confidence.Reinforcements)
	assert.Greater(t, second.Confidence.Current, first.Confidence.Current)
	assert.Len(t, e.store.All(ctx), 1)
}

func TestUpdateContentReembeds(t *testing.T) {
	e := newTestEngine(t, embedding.ProviderMock)
	ctx := context.Background()

	m := e.mustCreate(t, domain.MemoryTypeSemantic, domain.SourceExplicit, "works at the berlin office")
	original := append([]float32(nil), m.Embedding...)

	content := "works at the amsterdam office"
	updated, err := e.memories.Update(ctx, m.ID, domain.MemoryPatch{Content: &content})
	require.NoError(t, err)

	assert.Equal(t, content, updated.Content)
	assert.Len(t, updated.Embedding, testDim)
	assert.NotEqual(t, original, updated.Embedding)
	assert.True(t, e.vectors.Has(m.ID))
}

func TestDeleteRemovesVector(t *testing.T) {
	e := newTestEngine(t, embedding.ProviderMock)
	ctx := context.Background()

	m := e.mustCreate(t, domain.MemoryTypeSemantic, domain.SourceExplicit, "temporary note")
	require.True(t, e.vectors.Has(m.ID))

	require.NoError(t, e.memories.Delete(ctx, m.ID))
	assert.False(t, e.vectors.Has(m.ID))
	_, err := e.memories.Get(ctx, m.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRebuildVectorIndex(t *testing.T) {
	e := newTestEngine(t, embedding.ProviderMock)
	ctx := context.Background()

	e.mustCreate(t, domain.MemoryTypeSemantic, domain.SourceExplicit, "first fact")
	e.mustCreate(t, domain.MemoryTypeSemantic, domain.SourceExplicit, "second fact")

	fresh := NewVectorIndex(testDim, e.store)
	e.vectors = fresh
	rebuilt := NewMemoryService(e.store, fresh, embedding.NewMockClient(testDim), e.bus, zap.NewNop())
	require.NoError(t, rebuilt.RebuildVectorIndex(ctx))
	assert.Equal(t, 2, fresh.Len())
}
