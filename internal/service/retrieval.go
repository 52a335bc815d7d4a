package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mnemo-dev/mnemo/internal/confidence"
	"github.com/mnemo-dev/mnemo/internal/domain"
	"github.com/mnemo-dev/mnemo/internal/embedding"
	"github.com/mnemo-dev/mnemo/internal/graph"
	"github.com/mnemo-dev/mnemo/internal/store"
	"github.com/mnemo-dev/mnemo/internal/vector"
)

const (
	defaultTopK = 10

	// candidateMultiplier widens the vector search so graph expansion
	// and tombstone filtering still leave enough to rank.
	candidateMultiplier = 3

	// minSimilarity drops vector hits with almost no semantic overlap.
	minSimilarity = 0.1

	// textFallbackSimilarity stands in for cosine similarity when the
	// embedding backend is unavailable and candidates come from text
	// search instead.
	textFallbackSimilarity = 0.5

	// graphExpansionSimilarity is the stand-in similarity for memories
	// pulled in through the relationship graph rather than the query.
	graphExpansionSimilarity = 0.25
)

// RetrieveOptions narrows a retrieval request. SessionID only tags
// the request log; it does not filter.
type RetrieveOptions struct {
	Limit     int
	Types     []domain.MemoryType
	Tags      []string
	SessionID string
}

// InjectResult is the agent-facing retrieval payload: a bounded prompt
// block plus the memories behind it.
type InjectResult struct {
	Context     string                   `json:"context"`
	Memories    []domain.MemoryWithScore `json:"memories"`
	QueryTimeMs int64                    `json:"query_time_ms"`
}

// Retriever composes vector search, graph expansion, tombstone
// filtering, and confidence-weighted ranking into one query path.
type Retriever struct {
	store    *store.Store
	graph    *graph.Graph
	vectors  *vector.Index
	embedder embedding.Client
	logger   *zap.Logger
}

func NewRetriever(s *store.Store, g *graph.Graph, ix *vector.Index, emb embedding.Client, logger *zap.Logger) *Retriever {
	return &Retriever{store: s, graph: g, vectors: ix, embedder: emb, logger: logger}
}

// Retrieve returns the top memories for a query, ranked by similarity
// times confidence. Returned memories receive a weak retrieval
// reinforcement, so repeatedly useful memories resist decay. An
// unavailable embedding backend degrades to text search rather than
// failing.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts RetrieveOptions) ([]domain.MemoryWithScore, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultTopK
	}

	candidates, err := r.collect(ctx, query, limit*candidateMultiplier)
	if err != nil {
		return nil, err
	}

	// Pull in direct relatives of the seed set. Contradicts and
	// supersedes edges are navigational, not associative, so expansion
	// follows only extends and reinforces.
	seeds := make([]uuid.UUID, 0, len(candidates))
	for id := range candidates {
		seeds = append(seeds, id)
	}
	for id := range r.graph.Expand(ctx, seeds, graph.DefaultExpandHops, domain.RelationExtends, domain.RelationReinforces) {
		if _, ok := candidates[id]; !ok {
			candidates[id] = graphExpansionSimilarity
		}
	}

	now := time.Now().UTC()
	results := make([]domain.MemoryWithScore, 0, len(candidates))
	for id, sim := range candidates {
		if r.graph.IsSuperseded(ctx, id) {
			continue
		}
		m, err := r.store.Get(ctx, id)
		if err != nil {
			continue
		}
		if !matchesOptions(m, opts) {
			continue
		}
		results = append(results, domain.MemoryWithScore{
			Memory:     *m,
			Similarity: sim,
			Score:      sim * m.Confidence.Current,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Confidence.Current != results[j].Confidence.Current {
			return results[i].Confidence.Current > results[j].Confidence.Current
		}
		if ri, rj := typeRank(results[i].Type), typeRank(results[j].Type); ri != rj {
			return ri < rj
		}
		return results[i].ID.String() < results[j].ID.String()
	})
	if len(results) > limit {
		results = results[:limit]
	}

	// Being retrieved is itself weak evidence of usefulness.
	for i := range results {
		c := confidence.Reinforce(results[i].Confidence, now, confidence.RetrievalSignal)
		if err := r.store.UpdateConfidence(ctx, results[i].ID, c); err != nil {
			r.logger.Warn("retrieval reinforcement failed",
				zap.String("memory_id", results[i].ID.String()),
				zap.Error(err))
			continue
		}
		results[i].Confidence = c
	}

	return results, nil
}

// typeRank orders memory types when score and confidence tie, which is
// routine under text fallback where every candidate scores alike.
// Distilled knowledge ranks ahead of raw episodes, so an abstraction
// outranks the members it was distilled from.
func typeRank(t domain.MemoryType) int {
	switch t {
	case domain.MemoryTypeSemantic:
		return 0
	case domain.MemoryTypeProcedural:
		return 1
	default:
		return 2
	}
}

// collect gathers scored candidates from the vector index, falling back
// to text search when no embedding backend is usable.
func (r *Retriever) collect(ctx context.Context, query string, k int) (map[uuid.UUID]float64, error) {
	candidates := make(map[uuid.UUID]float64)

	vec, err := r.embedder.Embed(ctx, query)
	switch {
	case err == nil:
		hits, err := r.vectors.Search(vec, k, minSimilarity)
		if err != nil {
			return nil, fmt.Errorf("vector search: %w", err)
		}
		for _, h := range hits {
			candidates[h.ID] = h.Similarity
		}
		if len(hits) > 0 {
			return candidates, nil
		}
		// An indexed corpus with no hits means nothing relevant; an
		// empty index means nothing embedded yet, so fall through.
		if r.vectors.Len() > 0 {
			return candidates, nil
		}

	case errors.Is(err, embedding.ErrUnavailable):
		r.logger.Debug("embedding unavailable, using text fallback")

	default:
		return nil, fmt.Errorf("embed query: %w", err)
	}

	for _, m := range r.store.SearchText(ctx, query, k) {
		candidates[m.ID] = textFallbackSimilarity
	}
	return candidates, nil
}

// InjectMemories runs retrieval and renders a bounded context block
// ready to splice into an agent prompt. It never fails on an absent
// embedding backend and returns an empty block when nothing matches.
func (r *Retriever) InjectMemories(ctx context.Context, query string, opts RetrieveOptions) (*InjectResult, error) {
	start := time.Now()

	memories, err := r.Retrieve(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("memories injected",
		zap.String("session_id", opts.SessionID),
		zap.Int("count", len(memories)),
		zap.Duration("elapsed", time.Since(start)))

	return &InjectResult{
		Context:     renderContextBlock(memories),
		Memories:    memories,
		QueryTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// maxContextChars bounds the rendered block so injection cannot crowd
// out the prompt it is feeding.
const maxContextChars = 2000

func renderContextBlock(memories []domain.MemoryWithScore) string {
	if len(memories) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Relevant memories:\n")
	for _, m := range memories {
		line := fmt.Sprintf("- [%s, confidence %.2f] %s\n", m.Type, m.Confidence.Current, m.Content)
		if b.Len()+len(line) > maxContextChars {
			break
		}
		b.WriteString(line)
	}
	return b.String()
}

func matchesOptions(m *domain.Memory, opts RetrieveOptions) bool {
	if len(opts.Types) > 0 {
		found := false
		for _, t := range opts.Types {
			if m.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(opts.Tags) > 0 {
		for _, want := range opts.Tags {
			found := false
			for _, tag := range m.Tags {
				if strings.EqualFold(tag, want) {
					found = true
					break
				}
			}
			if found {
				return true
			}
		}
		return false
	}
	return true
}
