package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-dev/mnemo/internal/domain"
	"github.com/mnemo-dev/mnemo/internal/embedding"
)

func TestRetrieveRanksRelevantFirst(t *testing.T) {
	e := newTestEngine(t, embedding.ProviderMock)
	ctx := context.Background()

	target := e.mustCreate(t, domain.MemoryTypeProcedural, domain.SourceExplicit, "use bun install for dependencies")
	e.mustCreate(t, domain.MemoryTypeEpisodic, domain.SourceInteraction, "the sky was clear over the office roof")

	results, err := e.retriever.Retrieve(ctx, "how should I install dependencies", RetrieveOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, target.ID, results[0].ID)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestRetrieveRejectsEmptyQuery(t *testing.T) {
	e := newTestEngine(t, embedding.ProviderMock)

	_, err := e.retriever.Retrieve(context.Background(), "   ", RetrieveOptions{})
	assert.Error(t, err)
}

func TestRetrieveExcludesSuperseded(t *testing.T) {
	e := newTestEngine(t, embedding.ProviderMock)
	ctx := context.Background()

	old := e.mustCreate(t, domain.MemoryTypeProcedural, domain.SourceExplicit, "use npm install for dependencies")
	current := e.mustCreate(t, domain.MemoryTypeProcedural, domain.SourceExplicit, "use bun install for dependencies")
	_, err := e.graph.Link(ctx, domain.Relationship{FromID: old.ID, ToID: current.ID, Kind: domain.RelationSupersedes})
	require.NoError(t, err)

	results, err := e.retriever.Retrieve(ctx, "how should I install dependencies", RetrieveOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.NotEqual(t, old.ID, r.ID, "superseded memory must not be retrieved")
	}
	assert.Equal(t, current.ID, results[0].ID)
}

func TestRetrieveExpandsRelatedMemories(t *testing.T) {
	e := newTestEngine(t, embedding.ProviderMock)
	ctx := context.Background()

	seed := e.mustCreate(t, domain.MemoryTypeProcedural, domain.SourceExplicit, "use bun install for dependencies")
	related := e.mustCreate(t, domain.MemoryTypeSemantic, domain.SourceExplicit, "the lockfile must never be edited by hand")
	_, err := e.graph.Link(ctx, domain.Relationship{FromID: seed.ID, ToID: related.ID, Kind: domain.RelationExtends})
	require.NoError(t, err)

	results, err := e.retriever.Retrieve(ctx, "how should I install dependencies", RetrieveOptions{})
	require.NoError(t, err)

	var found *domain.MemoryWithScore
	for i := range results {
		if results[i].ID == related.ID {
			found = &results[i]
		}
	}
	require.NotNil(t, found, "graph neighbor should ride along with the seed")
	assert.Greater(t, found.Similarity, 0.0)
	assert.LessOrEqual(t, found.Similarity, graphExpansionSimilarity+1e-9)
}

func TestRetrieveAppliesWeakReinforcement(t *testing.T) {
	e := newTestEngine(t, embedding.ProviderMock)
	ctx := context.Background()

	m := e.mustCreate(t, domain.MemoryTypeSemantic, domain.SourceInteraction, "prefers short standup meetings")
	before := m.Confidence.Current

	results, err := e.retriever.Retrieve(ctx, "what does the user prefer for meetings", RetrieveOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	after, err := e.memories.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Greater(t, after.Confidence.Current, before)
	assert.Equal(t, 1, after.Confidence.Reinforcements)
	assert.Equal(t, after.Confidence.Current, results[0].Confidence.Current,
		"returned memory should carry the post-reinforcement confidence")
}

func TestRetrieveTextFallback(t *testing.T) {
	e := newTestEngine(t, embedding.ProviderNone)
	ctx := context.Background()

	m := e.mustCreate(t, domain.MemoryTypeProcedural, domain.SourceExplicit, "use bun install for dependencies")

	results, err := e.retriever.Retrieve(ctx, "install dependencies", RetrieveOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, m.ID, results[0].ID)
	assert.InDelta(t, textFallbackSimilarity, results[0].Similarity, 1e-9)
}

func TestRetrieveTieBreakPrefersSemantic(t *testing.T) {
	e := newTestEngine(t, embedding.ProviderNone)
	ctx := context.Background()

	// Same content under both types: identical fallback similarity and
	// identical initial confidence, so only the type tie-break decides.
	episodic := e.mustCreate(t, domain.MemoryTypeEpisodic, domain.SourceExplicit, "the deploy needs a fresh auth token")
	semantic := e.mustCreate(t, domain.MemoryTypeSemantic, domain.SourceExplicit, "the deploy needs a fresh auth token")

	results, err := e.retriever.Retrieve(ctx, "deploy auth token", RetrieveOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, semantic.ID, results[0].ID)
	assert.Equal(t, episodic.ID, results[1].ID)
}

func TestRetrieveTypeFilter(t *testing.T) {
	e := newTestEngine(t, embedding.ProviderMock)
	ctx := context.Background()

	e.mustCreate(t, domain.MemoryTypeProcedural, domain.SourceExplicit, "run the linter before every commit")
	semantic := e.mustCreate(t, domain.MemoryTypeSemantic, domain.SourceExplicit, "the linter config lives in the repo root")

	results, err := e.retriever.Retrieve(ctx, "tell me about the linter", RetrieveOptions{
		Types: []domain.MemoryType{domain.MemoryTypeSemantic},
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, domain.MemoryTypeSemantic, r.Type)
	}
	assert.Equal(t, semantic.ID, results[0].ID)
}

func TestRetrieveLimit(t *testing.T) {
	e := newTestEngine(t, embedding.ProviderMock)
	ctx := context.Background()

	contents := []string{
		"the deploy pipeline runs on push to main",
		"the deploy pipeline needs a signed tag",
		"the deploy pipeline notifies the release channel",
	}
	for _, c := range contents {
		e.mustCreate(t, domain.MemoryTypeSemantic, domain.SourceExplicit, c)
	}

	results, err := e.retriever.Retrieve(ctx, "how does the deploy pipeline work", RetrieveOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestInjectMemoriesRendersBoundedBlock(t *testing.T) {
	e := newTestEngine(t, embedding.ProviderMock)
	ctx := context.Background()

	e.mustCreate(t, domain.MemoryTypeProcedural, domain.SourceExplicit, "use bun install for dependencies")

	result, err := e.retriever.InjectMemories(ctx, "how do I install dependencies", RetrieveOptions{})
	require.NoError(t, err)
	assert.Contains(t, result.Context, "use bun install for dependencies")
	assert.Contains(t, result.Context, "Relevant memories:")
	assert.LessOrEqual(t, len(result.Context), maxContextChars)
	assert.NotEmpty(t, result.Memories)
	assert.GreaterOrEqual(t, result.QueryTimeMs, int64(0))
}

func TestInjectMemoriesEmptyCorpus(t *testing.T) {
	e := newTestEngine(t, embedding.ProviderMock)

	result, err := e.retriever.InjectMemories(context.Background(), "anything at all", RetrieveOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Context)
	assert.Empty(t, result.Memories)
}

func TestInjectMemoriesWithoutBackend(t *testing.T) {
	e := newTestEngine(t, embedding.ProviderNone)
	ctx := context.Background()

	e.mustCreate(t, domain.MemoryTypeSemantic, domain.SourceExplicit, "prefers concise answers")

	result, err := e.retriever.InjectMemories(ctx, "what answers does the user prefer", RetrieveOptions{})
	require.NoError(t, err, "absent embedding backend must not fail injection")
	assert.Contains(t, result.Context, "prefers concise answers")
}
