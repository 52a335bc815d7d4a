package service

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mnemo-dev/mnemo/internal/confidence"
	"github.com/mnemo-dev/mnemo/internal/domain"
	"github.com/mnemo-dev/mnemo/internal/embedding"
	"github.com/mnemo-dev/mnemo/internal/graph"
	"github.com/mnemo-dev/mnemo/internal/store"
	"github.com/mnemo-dev/mnemo/internal/vector"
)

// Extraction rule thresholds.
const (
	// supersedeSimilarity is how close an existing memory must be to a
	// correction before the correction supersedes it.
	supersedeSimilarity = 0.6

	// reinforceEdgeSimilarity links a fresh extraction to its nearest
	// existing neighbor with a reinforces edge.
	reinforceEdgeSimilarity = 0.75
)

// ExtractionResult reports what a conversation pass produced.
type ExtractionResult struct {
	Created    []domain.Memory `json:"created"`
	Reinforced []domain.Memory `json:"reinforced"`
}

type extractRule struct {
	name    string
	pattern *regexp.Regexp
	memType domain.MemoryType
	source  domain.MemorySource
}

// Rules are ordered: the first match classifies the sentence. Corrections
// are handled separately before these run.
var extractRules = []extractRule{
	{
		name:    "preference",
		pattern: regexp.MustCompile(`(?i)\b(i prefer|i like|i love|i hate|i dislike|i always|i never|i want|i use|my name is|call me|i work|i am a|i'm a)\b`),
		memType: domain.MemoryTypeSemantic,
		source:  domain.SourceInteraction,
	},
	{
		name:    "instruction",
		pattern: regexp.MustCompile(`(?i)^(always|never|use|run|install|make sure|remember to|don't|do not|avoid|prefer)\b`),
		memType: domain.MemoryTypeProcedural,
		source:  domain.SourceInteraction,
	},
	{
		name:    "event",
		pattern: regexp.MustCompile(`(?i)\b(yesterday|today|this morning|last week|last month|we decided|we agreed|we deployed|we shipped|we migrated|it happened)\b`),
		memType: domain.MemoryTypeEpisodic,
		source:  domain.SourceInteraction,
	},
}

var correctionPattern = regexp.MustCompile(`(?i)^(actually|no,|wait,|correction:?|that's wrong|that is wrong|i meant|scratch that)[,:\s]*`)

// Extractor mines conversation turns for durable memories using pattern
// rules. Extraction is conservative: a sentence matching no rule leaves
// no memory behind.
type Extractor struct {
	memories *MemoryService
	graph    *graph.Graph
	vectors  *vector.Index
	embedder embedding.Client
	logger   *zap.Logger
}

func NewExtractor(memories *MemoryService, g *graph.Graph, ix *vector.Index, emb embedding.Client, logger *zap.Logger) *Extractor {
	return &Extractor{memories: memories, graph: g, vectors: ix, embedder: emb, logger: logger}
}

// Extract scans user turns sentence by sentence. Matched sentences
// become memories under the dedup law: repeated content reinforces the
// existing memory instead of duplicating it. Corrections supersede the
// closest existing memory when one is near enough in embedding space.
func (e *Extractor) Extract(ctx context.Context, sessionID string, turns []domain.Turn) (*ExtractionResult, error) {
	result := &ExtractionResult{Created: []domain.Memory{}, Reinforced: []domain.Memory{}}

	for _, turn := range turns {
		if !strings.EqualFold(turn.Role, "user") {
			continue
		}
		for _, sentence := range splitSentences(turn.Content) {
			e.extractSentence(ctx, sessionID, sentence, result)
		}
	}

	e.logger.Info("extraction pass complete",
		zap.String("session_id", sessionID),
		zap.Int("turns", len(turns)),
		zap.Int("created", len(result.Created)),
		zap.Int("reinforced", len(result.Reinforced)))
	return result, nil
}

func (e *Extractor) extractSentence(ctx context.Context, sessionID, sentence string, result *ExtractionResult) {
	correction := false
	if loc := correctionPattern.FindStringIndex(sentence); loc != nil {
		correction = true
		sentence = strings.TrimSpace(sentence[loc[1]:])
	}
	if sentence == "" {
		return
	}

	matched := e.classify(sentence)
	if matched == nil && !correction {
		return
	}
	memType := domain.MemoryTypeSemantic
	source := domain.SourceInteraction
	if matched != nil {
		memType = matched.memType
		source = matched.source
	}

	// Resolve the nearest existing memory before creating, so a
	// correction can supersede it afterwards.
	nearest, nearestSim := e.nearest(ctx, sentence)

	m := &domain.Memory{
		Type:      memType,
		Source:    source,
		Title:     titleFor(sentence),
		Content:   sentence,
		SessionID: sessionID,
	}
	saved, reinforced, err := e.memories.CreateOrReinforce(ctx, m, confidence.ExtractionSignal)
	if err != nil {
		e.logger.Warn("extraction create failed", zap.Error(err))
		return
	}
	if reinforced {
		result.Reinforced = append(result.Reinforced, *saved)
		return
	}
	result.Created = append(result.Created, *saved)

	if nearest == uuid.Nil || nearest == saved.ID {
		return
	}
	switch {
	case correction && nearestSim >= supersedeSimilarity:
		e.link(ctx, domain.Relationship{FromID: nearest, ToID: saved.ID, Kind: domain.RelationSupersedes})
	case nearestSim >= reinforceEdgeSimilarity:
		e.link(ctx, domain.Relationship{FromID: saved.ID, ToID: nearest, Kind: domain.RelationReinforces, Strength: nearestSim})
	}
}

func (e *Extractor) classify(sentence string) *extractRule {
	for i := range extractRules {
		if extractRules[i].pattern.MatchString(sentence) {
			return &extractRules[i]
		}
	}
	return nil
}

// nearest finds the closest indexed memory to the sentence, or uuid.Nil
// when the backend is unavailable or nothing is close.
func (e *Extractor) nearest(ctx context.Context, sentence string) (uuid.UUID, float64) {
	vec, err := e.embedder.Embed(ctx, sentence)
	if err != nil {
		return uuid.Nil, 0
	}
	hits, err := e.vectors.Search(vec, 1, supersedeSimilarity)
	if err != nil || len(hits) == 0 {
		return uuid.Nil, 0
	}
	return hits[0].ID, hits[0].Similarity
}

func (e *Extractor) link(ctx context.Context, rel domain.Relationship) {
	if _, err := e.graph.Link(ctx, rel); err != nil && !errors.Is(err, store.ErrDuplicate) {
		e.logger.Warn("extraction link failed",
			zap.String("kind", string(rel.Kind)),
			zap.Error(err))
	}
}

var sentenceSplit = regexp.MustCompile(`[.!?\n]+`)

func splitSentences(text string) []string {
	parts := sentenceSplit.Split(text, -1)
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if len(p) >= 3 {
			sentences = append(sentences, p)
		}
	}
	return sentences
}

const titleWords = 8

func titleFor(sentence string) string {
	words := strings.Fields(sentence)
	if len(words) > titleWords {
		words = words[:titleWords]
	}
	return strings.Join(words, " ")
}
