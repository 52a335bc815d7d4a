package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mnemo-dev/mnemo/internal/domain"
)

// HashContent returns the dedup hash of a memory's content after
// normalization (lowercase, punctuation stripped, whitespace collapsed),
// so trivially reworded repeats of the same fact collide.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(NormalizeContent(content)))
	return hex.EncodeToString(sum[:])
}

// NormalizeContent canonicalizes text for dedup hashing.
func NormalizeContent(content string) string {
	var b strings.Builder
	b.Grow(len(content))
	lastSpace := true
	for _, r := range strings.ToLower(content) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func hashKey(t domain.MemoryType, contentHash string) string {
	return string(t) + "|" + contentHash
}

// Create persists a new memory. It fails with ErrDuplicate when a memory
// of the same type and normalized content already exists; callers convert
// that into a reinforcement of the existing record.
func (s *Store) Create(ctx context.Context, m *domain.Memory) error {
	if m.Content == "" {
		return fmt.Errorf("content is required")
	}
	if !domain.ValidMemoryType(string(m.Type)) {
		return fmt.Errorf("invalid memory type %q", m.Type)
	}
	if !domain.ValidMemorySource(string(m.Source)) {
		return fmt.Errorf("invalid memory source %q", m.Source)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ContentHash == "" {
		m.ContentHash = HashContent(m.Content)
	}
	if existing, ok := s.byHash[hashKey(m.Type, m.ContentHash)]; ok {
		return fmt.Errorf("%w: memory %s has identical content", ErrDuplicate, existing)
	}

	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	if m.Confidence.LastAccessedAt.IsZero() {
		m.Confidence.LastAccessedAt = now
	}
	m.Confidence = m.Confidence.Clamp()

	stored := cloneMemory(m)
	if err := s.writeRecord(stored); err != nil {
		return err
	}
	s.memories[stored.ID] = stored
	s.byHash[hashKey(stored.Type, stored.ContentHash)] = stored.ID
	return s.writeIndex()
}

// Get returns a copy of the memory, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*domain.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.memories[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMemory(m), nil
}

// FindByHash looks up a memory by type and content hash.
func (s *Store) FindByHash(ctx context.Context, t domain.MemoryType, contentHash string) (*domain.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[hashKey(t, contentHash)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMemory(s.memories[id]), nil
}

// Update applies a partial edit. A content change recomputes the dedup
// hash and drops the now-stale embedding.
func (s *Store) Update(ctx context.Context, id uuid.UUID, patch domain.MemoryPatch) (*domain.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memories[id]
	if !ok {
		return nil, ErrNotFound
	}

	next := cloneMemory(m)
	if patch.Title != nil {
		next.Title = *patch.Title
	}
	if patch.Content != nil && *patch.Content != next.Content {
		newHash := HashContent(*patch.Content)
		if other, ok := s.byHash[hashKey(next.Type, newHash)]; ok && other != id {
			return nil, fmt.Errorf("%w: memory %s has identical content", ErrDuplicate, other)
		}
		delete(s.byHash, hashKey(next.Type, next.ContentHash))
		next.Content = *patch.Content
		next.ContentHash = newHash
		next.Embedding = nil
		s.byHash[hashKey(next.Type, newHash)] = id
	}
	if patch.Tags != nil {
		next.Tags = append([]string(nil), patch.Tags...)
	}
	next.UpdatedAt = time.Now().UTC()

	if err := s.writeRecord(next); err != nil {
		return nil, err
	}
	s.memories[id] = next
	if err := s.writeIndex(); err != nil {
		return nil, err
	}
	return cloneMemory(next), nil
}

// UpdateConfidence replaces the confidence sub-record atomically.
func (s *Store) UpdateConfidence(ctx context.Context, id uuid.UUID, c domain.Confidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memories[id]
	if !ok {
		return ErrNotFound
	}

	next := cloneMemory(m)
	next.Confidence = c.Clamp()
	next.UpdatedAt = time.Now().UTC()

	if err := s.writeRecord(next); err != nil {
		return err
	}
	s.memories[id] = next
	return s.writeIndex()
}

// SetEmbedding stores the computed embedding for a memory.
func (s *Store) SetEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memories[id]
	if !ok {
		return ErrNotFound
	}

	next := cloneMemory(m)
	next.Embedding = append([]float32(nil), embedding...)
	next.UpdatedAt = time.Now().UTC()

	if err := s.writeRecord(next); err != nil {
		return err
	}
	s.memories[id] = next
	return s.writeIndex()
}

// Delete removes the memory and cascades deletion of every incident edge.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memories[id]
	if !ok {
		return ErrNotFound
	}

	if err := s.removeEdgesForLocked(id); err != nil {
		return err
	}
	if err := os.Remove(s.recordPath(id)); err != nil {
		return err
	}
	delete(s.memories, id)
	delete(s.byHash, hashKey(m.Type, m.ContentHash))
	return s.writeIndex()
}

// All returns copies of every memory.
func (s *Store) All(ctx context.Context) []domain.Memory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Memory, 0, len(s.memories))
	for _, m := range s.memories {
		out = append(out, *cloneMemory(m))
	}
	return out
}

// CountByType returns how many memories exist of the given type.
func (s *Store) CountByType(ctx context.Context, t domain.MemoryType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, m := range s.memories {
		if m.Type == t {
			n++
		}
	}
	return n
}

// SearchText is the embedding-free retrieval path: a case-insensitive
// substring or all-tokens match over title and content, ordered by
// confidence descending, then recency of update.
func (s *Store) SearchText(ctx context.Context, query string, limit int, tags ...string) []domain.Memory {
	if limit <= 0 {
		limit = 10
	}
	q := strings.ToLower(strings.TrimSpace(query))
	tokens := strings.Fields(q)

	s.mu.RLock()
	var matches []domain.Memory
	for _, m := range s.memories {
		if len(tags) > 0 && !hasAnyTag(m.Tags, tags) {
			continue
		}
		hay := strings.ToLower(m.Title + " " + m.Content)
		if q != "" && !strings.Contains(hay, q) && !containsAll(hay, tokens) {
			continue
		}
		matches = append(matches, *cloneMemory(m))
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Confidence.Current != matches[j].Confidence.Current {
			return matches[i].Confidence.Current > matches[j].Confidence.Current
		}
		return matches[i].UpdatedAt.After(matches[j].UpdatedAt)
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func containsAll(hay string, tokens []string) bool {
	if len(tokens) == 0 {
		return false
	}
	for _, tok := range tokens {
		if !strings.Contains(hay, tok) {
			return false
		}
	}
	return true
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}

func cloneMemory(m *domain.Memory) *domain.Memory {
	c := *m
	if m.Embedding != nil {
		c.Embedding = append([]float32(nil), m.Embedding...)
	}
	if m.Tags != nil {
		c.Tags = append([]string(nil), m.Tags...)
	}
	return &c
}
