package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mnemo-dev/mnemo/internal/domain"
)

type edgeManifest struct {
	Version int                   `json:"version"`
	Edges   []domain.Relationship `json:"edges"`
}

func (s *Store) loadEdges() error {
	data, err := os.ReadFile(filepath.Join(s.dir, edgesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var manifest edgeManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		s.logger.Warn("unreadable edge list, starting empty", zap.Error(err))
		return nil
	}

	// Drop edges whose endpoints no longer resolve; a crash between a
	// record delete and the edge rewrite can leave strays behind.
	kept := manifest.Edges[:0]
	for _, e := range manifest.Edges {
		if _, ok := s.memories[e.FromID]; !ok {
			continue
		}
		if _, ok := s.memories[e.ToID]; !ok {
			continue
		}
		kept = append(kept, e)
	}
	s.edges = kept
	return nil
}

func (s *Store) writeEdgesLocked() error {
	return writeJSONAtomic(filepath.Join(s.dir, edgesFile), edgeManifest{Version: 1, Edges: s.edges})
}

// AddEdge persists a relationship. Duplicate (from, to, kind) triples
// fail with ErrDuplicate; endpoint and self-loop validation is the
// graph layer's job, missing endpoints surface as ErrNotFound here.
func (s *Store) AddEdge(ctx context.Context, rel domain.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.memories[rel.FromID]; !ok {
		return ErrNotFound
	}
	if _, ok := s.memories[rel.ToID]; !ok {
		return ErrNotFound
	}
	for _, e := range s.edges {
		if e.FromID == rel.FromID && e.ToID == rel.ToID && e.Kind == rel.Kind {
			return ErrDuplicate
		}
	}

	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = time.Now().UTC()
	}
	s.edges = append(s.edges, rel)
	return s.writeEdgesLocked()
}

// RemoveEdge revokes one relationship, or returns ErrNotFound.
func (s *Store) RemoveEdge(ctx context.Context, from, to uuid.UUID, kind domain.RelationKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.edges {
		if e.FromID == from && e.ToID == to && e.Kind == kind {
			s.edges = append(s.edges[:i], s.edges[i+1:]...)
			return s.writeEdgesLocked()
		}
	}
	return ErrNotFound
}

// removeEdgesForLocked drops every edge incident to id. Caller holds mu.
func (s *Store) removeEdgesForLocked(id uuid.UUID) error {
	kept := s.edges[:0]
	removed := false
	for _, e := range s.edges {
		if e.FromID == id || e.ToID == id {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	s.edges = kept
	if !removed {
		return nil
	}
	return s.writeEdgesLocked()
}

// EdgesFrom returns outgoing edges of a memory, optionally filtered by kind.
func (s *Store) EdgesFrom(ctx context.Context, id uuid.UUID, kinds ...domain.RelationKind) []domain.Relationship {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Relationship
	for _, e := range s.edges {
		if e.FromID == id && kindMatches(e.Kind, kinds) {
			out = append(out, e)
		}
	}
	return out
}

// EdgesTo returns incoming edges of a memory, optionally filtered by kind.
func (s *Store) EdgesTo(ctx context.Context, id uuid.UUID, kinds ...domain.RelationKind) []domain.Relationship {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Relationship
	for _, e := range s.edges {
		if e.ToID == id && kindMatches(e.Kind, kinds) {
			out = append(out, e)
		}
	}
	return out
}

// AllEdges returns a copy of the full edge list.
func (s *Store) AllEdges(ctx context.Context) []domain.Relationship {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Relationship(nil), s.edges...)
}

func kindMatches(k domain.RelationKind, kinds []domain.RelationKind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}
