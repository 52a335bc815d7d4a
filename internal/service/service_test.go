package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mnemo-dev/mnemo/internal/domain"
	"github.com/mnemo-dev/mnemo/internal/embedding"
	"github.com/mnemo-dev/mnemo/internal/graph"
	"github.com/mnemo-dev/mnemo/internal/store"
	"github.com/mnemo-dev/mnemo/internal/vector"
)

const testDim = 256

// engine wires every service against one temp-dir store, matching the
// composition used by the server.
type engine struct {
	store      *store.Store
	vectors    *vector.Index
	graph      *graph.Graph
	bus        *Bus
	memories   *MemoryService
	retriever  *Retriever
	extractor  *Extractor
	abstractor *Abstractor
	learner    *Learner
	scheduler  *Scheduler
}

func newTestEngine(t *testing.T, provider string) *engine {
	t.Helper()
	logger := zap.NewNop()

	s, err := store.Open(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	emb, err := embedding.NewClient(embedding.Config{Provider: provider, Dim: testDim})
	require.NoError(t, err)

	ix := NewVectorIndex(testDim, s)
	g := graph.New(s)
	bus := NewBus(256, logger)
	memories := NewMemoryService(s, ix, emb, bus, logger)
	abstractor := NewAbstractor(s, memories, g, bus, logger)

	return &engine{
		store:      s,
		vectors:    ix,
		graph:      g,
		bus:        bus,
		memories:   memories,
		retriever:  NewRetriever(s, g, ix, emb, logger),
		extractor:  NewExtractor(memories, g, ix, emb, logger),
		abstractor: abstractor,
		learner:    NewLearner(memories, bus, logger),
		scheduler: NewScheduler(s, memories, abstractor, bus, SchedulerConfig{
			PruneThreshold: 0.2,
			PruneGrace:     14 * 24 * time.Hour,
		}, logger),
	}
}

func (e *engine) mustCreate(t *testing.T, memType domain.MemoryType, source domain.MemorySource, content string) *domain.Memory {
	t.Helper()
	m, err := e.memories.Create(context.Background(), &domain.Memory{
		Type:    memType,
		Source:  source,
		Title:   content,
		Content: content,
	})
	require.NoError(t, err)
	return m
}
