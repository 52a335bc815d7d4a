// Package vector implements an in-memory cosine-similarity index over
// memory embeddings. The index is rebuilt from the store on startup and
// kept in sync by the services that create, embed, and prune memories.
package vector

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Hit is a single index match.
type Hit struct {
	ID         uuid.UUID
	Similarity float64
}

type entry struct {
	vec  []float32
	norm float64
}

// Index holds normalized embeddings keyed by memory ID. The confidence
// callback breaks similarity ties in favor of better-trusted memories
// without the index duplicating confidence state.
type Index struct {
	dim    int
	confFn func(uuid.UUID) float64

	mu      sync.RWMutex
	entries map[uuid.UUID]entry
}

// NewIndex creates an empty index for vectors of the given dimension.
// confFn may be nil, in which case ties keep insertion-independent
// ordering by ID.
func NewIndex(dim int, confFn func(uuid.UUID) float64) *Index {
	return &Index{
		dim:     dim,
		confFn:  confFn,
		entries: make(map[uuid.UUID]entry),
	}
}

func (ix *Index) Dim() int { return ix.dim }

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Upsert adds or replaces the vector for a memory.
func (ix *Index) Upsert(id uuid.UUID, vec []float32) error {
	if len(vec) != ix.dim {
		return fmt.Errorf("vector dimension %d does not match index dimension %d", len(vec), ix.dim)
	}

	stored := make([]float32, len(vec))
	copy(stored, vec)

	var norm float64
	for _, v := range stored {
		norm += float64(v) * float64(v)
	}

	ix.mu.Lock()
	ix.entries[id] = entry{vec: stored, norm: math.Sqrt(norm)}
	ix.mu.Unlock()
	return nil
}

// Remove drops a memory from the index. Removing an absent ID is a no-op.
func (ix *Index) Remove(id uuid.UUID) {
	ix.mu.Lock()
	delete(ix.entries, id)
	ix.mu.Unlock()
}

// Has reports whether the index holds a vector for the memory.
func (ix *Index) Has(id uuid.UUID) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.entries[id]
	return ok
}

// Search returns up to k hits with cosine similarity of at least minSim,
// ordered by similarity descending. A zero query or zero stored vector
// scores 0 rather than producing NaN.
func (ix *Index) Search(query []float32, k int, minSim float64) ([]Hit, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), ix.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	var qnorm float64
	for _, v := range query {
		qnorm += float64(v) * float64(v)
	}
	qnorm = math.Sqrt(qnorm)

	ix.mu.RLock()
	hits := make([]Hit, 0, len(ix.entries))
	for id, e := range ix.entries {
		sim := 0.0
		if qnorm > 0 && e.norm > 0 {
			var dot float64
			for i, v := range e.vec {
				dot += float64(v) * float64(query[i])
			}
			sim = dot / (qnorm * e.norm)
		}
		if sim >= minSim {
			hits = append(hits, Hit{ID: id, Similarity: sim})
		}
	}
	ix.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		if ix.confFn != nil {
			ci, cj := ix.confFn(hits[i].ID), ix.confFn(hits[j].ID)
			if ci != cj {
				return ci > cj
			}
		}
		return hits[i].ID.String() < hits[j].ID.String()
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}
