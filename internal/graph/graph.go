// Package graph layers typed relationship semantics on top of the edge
// set persisted by the store: link validation, neighbor listing, bounded
// BFS expansion, and the supersedes tombstone rule used by retrieval.
package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mnemo-dev/mnemo/internal/domain"
	"github.com/mnemo-dev/mnemo/internal/store"
)

// ErrValidation marks a structurally invalid link request.
var ErrValidation = errors.New("invalid relationship")

// DefaultExpandHops bounds retrieval-time expansion to direct neighbors.
const DefaultExpandHops = 1

// Graph reads and writes relationships through the store so that edges
// and memories share one lock and one persistence root.
type Graph struct {
	store *store.Store
}

func New(s *store.Store) *Graph {
	return &Graph{store: s}
}

// Link creates a typed edge between two existing memories. Self-loops
// and unknown kinds are rejected. A strength of exactly 0 means unset
// and defaults to 1; pass a small positive value for a deliberately
// weak edge. Out-of-range values are clamped to [0, 1].
func (g *Graph) Link(ctx context.Context, rel domain.Relationship) (domain.Relationship, error) {
	if !domain.ValidRelationKind(string(rel.Kind)) {
		return domain.Relationship{}, fmt.Errorf("%w: unknown kind %q", ErrValidation, rel.Kind)
	}
	if rel.FromID == rel.ToID {
		return domain.Relationship{}, fmt.Errorf("%w: a memory cannot relate to itself", ErrValidation)
	}
	if rel.Strength == 0 {
		rel.Strength = 1
	}
	if rel.Strength < 0 {
		rel.Strength = 0
	}
	if rel.Strength > 1 {
		rel.Strength = 1
	}
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = time.Now().UTC()
	}

	if err := g.store.AddEdge(ctx, rel); err != nil {
		return domain.Relationship{}, err
	}
	return rel, nil
}

// Unlink removes one edge.
func (g *Graph) Unlink(ctx context.Context, fromID, toID uuid.UUID, kind domain.RelationKind) error {
	return g.store.RemoveEdge(ctx, fromID, toID, kind)
}

// Neighbors returns every edge touching the memory, optionally filtered
// by kind. Outgoing reports edge direction relative to the given ID.
func (g *Graph) Neighbors(ctx context.Context, id uuid.UUID, kinds ...domain.RelationKind) []domain.Neighbor {
	neighbors := []domain.Neighbor{}
	for _, e := range g.store.EdgesFrom(ctx, id, kinds...) {
		neighbors = append(neighbors, domain.Neighbor{
			MemoryID: e.ToID,
			Kind:     e.Kind,
			Strength: e.Strength,
			Outgoing: true,
		})
	}
	for _, e := range g.store.EdgesTo(ctx, id, kinds...) {
		neighbors = append(neighbors, domain.Neighbor{
			MemoryID: e.FromID,
			Kind:     e.Kind,
			Strength: e.Strength,
			Outgoing: false,
		})
	}
	return neighbors
}

// Expand runs a breadth-first walk from the seed set across edges of
// the given kinds, up to maxHops away. It returns hop distance per
// discovered memory, excluding the seeds themselves. Edges are walked
// in both directions.
func (g *Graph) Expand(ctx context.Context, seeds []uuid.UUID, maxHops int, kinds ...domain.RelationKind) map[uuid.UUID]int {
	if maxHops <= 0 {
		maxHops = DefaultExpandHops
	}

	visited := make(map[uuid.UUID]bool, len(seeds))
	frontier := make([]uuid.UUID, 0, len(seeds))
	for _, id := range seeds {
		if !visited[id] {
			visited[id] = true
			frontier = append(frontier, id)
		}
	}

	found := make(map[uuid.UUID]int)
	for hop := 1; hop <= maxHops && len(frontier) > 0; hop++ {
		next := []uuid.UUID{}
		for _, id := range frontier {
			for _, n := range g.Neighbors(ctx, id, kinds...) {
				if visited[n.MemoryID] {
					continue
				}
				visited[n.MemoryID] = true
				found[n.MemoryID] = hop
				next = append(next, n.MemoryID)
			}
		}
		frontier = next
	}
	return found
}

// IsSuperseded reports whether the memory has an outgoing supersedes
// edge, which tombstones it: it stays stored but is excluded from
// retrieval results in favor of its replacement. Edges are cascaded on
// delete, so any surviving edge points at a live replacement.
func (g *Graph) IsSuperseded(ctx context.Context, id uuid.UUID) bool {
	return len(g.store.EdgesFrom(ctx, id, domain.RelationSupersedes)) > 0
}

// Supersessors returns the IDs of the memories that replace this one.
func (g *Graph) Supersessors(ctx context.Context, id uuid.UUID) []uuid.UUID {
	edges := g.store.EdgesFrom(ctx, id, domain.RelationSupersedes)
	ids := make([]uuid.UUID, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, e.ToID)
	}
	return ids
}
