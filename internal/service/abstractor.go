package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/mnemo-dev/mnemo/internal/confidence"
	"github.com/mnemo-dev/mnemo/internal/domain"
	"github.com/mnemo-dev/mnemo/internal/graph"
	"github.com/mnemo-dev/mnemo/internal/store"
)

const (
	// DefaultClusterSimilarity is the centroid similarity a memory must
	// reach to join a cluster.
	DefaultClusterSimilarity = 0.8

	// MinClusterSize discards singleton clusters; any pair of mutually
	// similar memories is already a pattern worth keeping.
	MinClusterSize = 2
)

// Cluster is a group of mutually similar memories of one type.
type Cluster struct {
	Members  []domain.Memory
	Centroid []float32
}

// Abstractor generalizes clusters of similar memories into a single
// semantic abstraction, linked back to its members with extends edges.
type Abstractor struct {
	store    *store.Store
	memories *MemoryService
	graph    *graph.Graph
	bus      *Bus
	logger   *zap.Logger

	similarity float64
	minSize    int
}

func NewAbstractor(s *store.Store, memories *MemoryService, g *graph.Graph, bus *Bus, logger *zap.Logger) *Abstractor {
	return &Abstractor{
		store:      s,
		memories:   memories,
		graph:      g,
		bus:        bus,
		logger:     logger,
		similarity: DefaultClusterSimilarity,
		minSize:    MinClusterSize,
	}
}

// SetSimilarity overrides the cluster admission threshold.
func (a *Abstractor) SetSimilarity(threshold float64) {
	a.similarity = threshold
}

// SetMinClusterSize overrides the smallest cluster worth abstracting.
func (a *Abstractor) SetMinClusterSize(n int) {
	a.minSize = n
}

// FindClusters greedily groups embedded memories of one type around
// moving centroids. Memories already folded into an abstraction and
// memories without embeddings are skipped, and clusters below the
// minimum size are discarded. Iteration order is pinned so repeated
// sweeps over the same corpus produce the same clusters.
func (a *Abstractor) FindClusters(ctx context.Context, t domain.MemoryType) []Cluster {
	candidates := []domain.Memory{}
	for _, m := range a.store.All(ctx) {
		if m.Type != t || len(m.Embedding) == 0 || m.Source == domain.SourceAbstraction {
			continue
		}
		if a.alreadyAbstracted(ctx, m) {
			continue
		}
		candidates = append(candidates, m)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		}
		return candidates[i].ID.String() < candidates[j].ID.String()
	})

	assigned := make(map[int]bool, len(candidates))
	clusters := []Cluster{}
	for i, seed := range candidates {
		if assigned[i] {
			continue
		}
		cluster := Cluster{Members: []domain.Memory{seed}, Centroid: append([]float32(nil), seed.Embedding...)}
		assigned[i] = true

		for j := i + 1; j < len(candidates); j++ {
			if assigned[j] {
				continue
			}
			if cosineSimilarity(cluster.Centroid, candidates[j].Embedding) >= a.similarity {
				cluster.Members = append(cluster.Members, candidates[j])
				cluster.Centroid = averageVectors(cluster.Centroid, candidates[j].Embedding)
				assigned[j] = true
			}
		}

		if len(cluster.Members) >= a.minSize {
			clusters = append(clusters, cluster)
		}
	}
	return clusters
}

// Abstract folds one cluster into a semantic abstraction memory. The
// cluster's most reinforced member donates the content, prefixed with
// the pattern marker so the abstraction never hash-collides with the
// member it summarizes. The abstraction starts at the members' mean
// confidence, and each member gets an extends edge to the new memory.
func (a *Abstractor) Abstract(ctx context.Context, cluster Cluster) (*domain.Memory, error) {
	rep := representative(cluster.Members)

	abstraction := &domain.Memory{
		Type:    domain.MemoryTypeSemantic,
		Source:  domain.SourceAbstraction,
		Title:   "Pattern: " + rep.Title,
		Content: "Pattern: " + rep.Content,
		Tags:    rep.Tags,
	}
	created, err := a.memories.Create(ctx, abstraction)
	if err != nil {
		return nil, err
	}

	var mean float64
	for _, m := range cluster.Members {
		mean += m.Confidence.Current
	}
	mean /= float64(len(cluster.Members))
	c := confidence.New(mean, time.Now().UTC())
	if err := a.store.UpdateConfidence(ctx, created.ID, c); err != nil {
		return nil, err
	}
	created.Confidence = c

	for _, m := range cluster.Members {
		_, err := a.graph.Link(ctx, domain.Relationship{
			FromID: m.ID,
			ToID:   created.ID,
			Kind:   domain.RelationExtends,
		})
		if err != nil && !errors.Is(err, store.ErrDuplicate) {
			a.logger.Warn("abstraction link failed",
				zap.String("member_id", m.ID.String()),
				zap.Error(err))
		}
	}

	a.bus.Publish(EventAbstracted, created.ID)
	a.logger.Info("abstraction created",
		zap.String("memory_id", created.ID.String()),
		zap.Int("members", len(cluster.Members)))
	return created, nil
}

// Run sweeps one memory type: cluster, then abstract each cluster. A
// cluster whose merged content already exists is skipped, not an error.
func (a *Abstractor) Run(ctx context.Context, t domain.MemoryType) (int, error) {
	created := 0
	for _, cluster := range a.FindClusters(ctx, t) {
		if _, err := a.Abstract(ctx, cluster); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				continue
			}
			return created, err
		}
		created++
	}
	return created, nil
}

// alreadyAbstracted reports whether the memory already extends an
// abstraction, which keeps repeated sweeps from re-clustering it.
func (a *Abstractor) alreadyAbstracted(ctx context.Context, m domain.Memory) bool {
	for _, n := range a.graph.Neighbors(ctx, m.ID, domain.RelationExtends) {
		if !n.Outgoing {
			continue
		}
		target, err := a.store.Get(ctx, n.MemoryID)
		if err == nil && target.Source == domain.SourceAbstraction {
			return true
		}
	}
	return false
}

// representative picks the member whose content the abstraction keeps:
// most reinforced, then most confident, then oldest, then smallest ID.
func representative(members []domain.Memory) domain.Memory {
	rep := members[0]
	for _, m := range members[1:] {
		switch {
		case m.Confidence.Reinforcements != rep.Confidence.Reinforcements:
			if m.Confidence.Reinforcements > rep.Confidence.Reinforcements {
				rep = m
			}
		case m.Confidence.Current != rep.Confidence.Current:
			if m.Confidence.Current > rep.Confidence.Current {
				rep = m
			}
		case !m.CreatedAt.Equal(rep.CreatedAt):
			if m.CreatedAt.Before(rep.CreatedAt) {
				rep = m
			}
		default:
			if m.ID.String() < rep.ID.String() {
				rep = m
			}
		}
	}
	return rep
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func averageVectors(a, b []float32) []float32 {
	out := make([]float32, len(a))
	for i := range a {
		out[i] = (a[i] + b[i]) / 2
	}
	return out
}
