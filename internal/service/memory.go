// Package service implements the engine's behavior on top of the store,
// graph, vector index, and embedding backend: memory lifecycle,
// extraction, retrieval, abstraction, feedback, and the periodic sweep.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mnemo-dev/mnemo/internal/confidence"
	"github.com/mnemo-dev/mnemo/internal/domain"
	"github.com/mnemo-dev/mnemo/internal/embedding"
	"github.com/mnemo-dev/mnemo/internal/store"
	"github.com/mnemo-dev/mnemo/internal/vector"
)

// MemoryService owns the memory lifecycle. Every write that touches
// content goes through here so the embedding and the vector index never
// drift from the stored record.
type MemoryService struct {
	store    *store.Store
	vectors  *vector.Index
	embedder embedding.Client
	bus      *Bus
	logger   *zap.Logger
}

func NewMemoryService(s *store.Store, ix *vector.Index, emb embedding.Client, bus *Bus, logger *zap.Logger) *MemoryService {
	return &MemoryService{store: s, vectors: ix, embedder: emb, bus: bus, logger: logger}
}

// RebuildVectorIndex loads every stored embedding into the index.
// Called once on startup.
func (s *MemoryService) RebuildVectorIndex(ctx context.Context) error {
	count := 0
	for _, m := range s.store.All(ctx) {
		if len(m.Embedding) == 0 {
			continue
		}
		if err := s.vectors.Upsert(m.ID, m.Embedding); err != nil {
			s.logger.Warn("skipping stored embedding with bad dimension",
				zap.String("memory_id", m.ID.String()),
				zap.Error(err))
			continue
		}
		count++
	}
	s.logger.Info("vector index rebuilt", zap.Int("vectors", count))
	return nil
}

// Create stores a new memory, then embeds and indexes it. An unavailable
// embedding backend downgrades the memory to text-search-only rather
// than failing the create. A duplicate surfaces as store.ErrDuplicate so
// callers can choose to reinforce instead.
func (s *MemoryService) Create(ctx context.Context, m *domain.Memory) (*domain.Memory, error) {
	if m.Confidence == (domain.Confidence{}) {
		m.Confidence = confidence.New(m.Source.InitialConfidence(), time.Now().UTC())
	}
	if err := s.store.Create(ctx, m); err != nil {
		return nil, err
	}
	s.embed(ctx, m.ID, m.Content)
	s.bus.Publish(EventCreated, m.ID)
	return s.store.Get(ctx, m.ID)
}

// CreateOrReinforce applies the dedup law: content already present for
// the same type reinforces the existing memory instead of duplicating
// it. The bool reports whether an existing memory was reinforced.
func (s *MemoryService) CreateOrReinforce(ctx context.Context, m *domain.Memory, signal float64) (*domain.Memory, bool, error) {
	created, err := s.Create(ctx, m)
	if err == nil {
		return created, false, nil
	}
	if !errors.Is(err, store.ErrDuplicate) {
		return nil, false, err
	}

	existing, err := s.store.FindByHash(ctx, m.Type, store.HashContent(m.Content))
	if err != nil {
		return nil, false, fmt.Errorf("resolve duplicate: %w", err)
	}
	reinforced, err := s.Reinforce(ctx, existing.ID, signal)
	if err != nil {
		return nil, false, err
	}
	return reinforced, true, nil
}

func (s *MemoryService) Get(ctx context.Context, id uuid.UUID) (*domain.Memory, error) {
	return s.store.Get(ctx, id)
}

// Update applies a patch. A content change re-embeds the memory; until
// the new embedding lands the stale vector is dropped from the index.
func (s *MemoryService) Update(ctx context.Context, id uuid.UUID, patch domain.MemoryPatch) (*domain.Memory, error) {
	updated, err := s.store.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if patch.Content != nil {
		s.vectors.Remove(id)
		s.embed(ctx, id, updated.Content)
		return s.store.Get(ctx, id)
	}
	return updated, nil
}

// Delete removes the memory, its edges, and its vector.
func (s *MemoryService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.vectors.Remove(id)
	return nil
}

// Reinforce strengthens a memory by the given signal.
func (s *MemoryService) Reinforce(ctx context.Context, id uuid.UUID, signal float64) (*domain.Memory, error) {
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c := confidence.Reinforce(m.Confidence, time.Now().UTC(), signal)
	if err := s.store.UpdateConfidence(ctx, id, c); err != nil {
		return nil, err
	}
	m.Confidence = c
	return m, nil
}

// Penalize weakens a memory by the given signal.
func (s *MemoryService) Penalize(ctx context.Context, id uuid.UUID, signal float64) (*domain.Memory, error) {
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c := confidence.Penalize(m.Confidence, time.Now().UTC(), signal)
	if err := s.store.UpdateConfidence(ctx, id, c); err != nil {
		return nil, err
	}
	m.Confidence = c
	return m, nil
}

// SearchText is the non-vector search surface.
func (s *MemoryService) SearchText(ctx context.Context, query string, limit int, tags ...string) []domain.Memory {
	return s.store.SearchText(ctx, query, limit, tags...)
}

// embed computes and indexes the embedding for a memory, tolerating an
// absent backend.
func (s *MemoryService) embed(ctx context.Context, id uuid.UUID, content string) {
	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		if errors.Is(err, embedding.ErrUnavailable) {
			s.logger.Debug("embedding backend unavailable, memory is text-search only",
				zap.String("memory_id", id.String()))
		} else {
			s.logger.Warn("embedding failed",
				zap.String("memory_id", id.String()),
				zap.Error(err))
		}
		return
	}
	if err := s.store.SetEmbedding(ctx, id, vec); err != nil {
		s.logger.Warn("persist embedding failed",
			zap.String("memory_id", id.String()),
			zap.Error(err))
		return
	}
	if err := s.vectors.Upsert(id, vec); err != nil {
		s.logger.Warn("index embedding failed",
			zap.String("memory_id", id.String()),
			zap.Error(err))
	}
}

// NewVectorIndex builds the engine's vector index with similarity ties
// broken by current confidence from the store.
func NewVectorIndex(dim int, s *store.Store) *vector.Index {
	return vector.NewIndex(dim, func(id uuid.UUID) float64 {
		m, err := s.Get(context.Background(), id)
		if err != nil {
			return 0
		}
		return m.Confidence.Current
	})
}
