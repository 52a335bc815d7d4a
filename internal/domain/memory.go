package domain

import (
	"time"

	"github.com/google/uuid"
)

type MemoryType string

const (
	MemoryTypeEpisodic   MemoryType = "episodic"
	MemoryTypeSemantic   MemoryType = "semantic"
	MemoryTypeProcedural MemoryType = "procedural"
)

func ValidMemoryType(t string) bool {
	switch MemoryType(t) {
	case MemoryTypeEpisodic, MemoryTypeSemantic, MemoryTypeProcedural:
		return true
	}
	return false
}

func MemoryTypes() []MemoryType {
	return []MemoryType{MemoryTypeEpisodic, MemoryTypeSemantic, MemoryTypeProcedural}
}

type MemorySource string

const (
	SourceInteraction MemorySource = "interaction"
	SourceExplicit    MemorySource = "explicit"
	SourceInferred    MemorySource = "inferred"
	SourceAgent       MemorySource = "agent"
	SourceAbstraction MemorySource = "abstraction"
)

func ValidMemorySource(s string) bool {
	switch MemorySource(s) {
	case SourceInteraction, SourceExplicit, SourceInferred, SourceAgent, SourceAbstraction:
		return true
	}
	return false
}

// InitialConfidence maps provenance to a starting confidence: explicit
// statements are trusted more than inferred ones.
func (s MemorySource) InitialConfidence() float64 {
	switch s {
	case SourceExplicit:
		return 0.9
	case SourceAgent:
		return 0.7
	case SourceInteraction:
		return 0.6
	case SourceInferred:
		return 0.4
	case SourceAbstraction:
		return 0.5
	default:
		return 0.5
	}
}

// Confidence is the decaying, reinforceable retention score of a memory.
// Current is clamped to [0,1] after every mutation.
type Confidence struct {
	Current        float64   `json:"current"`
	Created        float64   `json:"created"`
	Reinforcements int       `json:"reinforcements"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	DecayedAt      time.Time `json:"decayed_at,omitempty"`
	DecayRate      float64   `json:"decay_rate"`
}

// Clamp returns a copy with Current forced into [0,1] and Reinforcements
// forced non-negative.
func (c Confidence) Clamp() Confidence {
	if c.Current < 0 {
		c.Current = 0
	}
	if c.Current > 1 {
		c.Current = 1
	}
	if c.Reinforcements < 0 {
		c.Reinforcements = 0
	}
	return c
}

type Memory struct {
	ID          uuid.UUID    `json:"id"`
	Type        MemoryType   `json:"type"`
	Source      MemorySource `json:"source"`
	Title       string       `json:"title"`
	Content     string       `json:"content"`
	ContentHash string       `json:"content_hash"`
	Embedding   []float32    `json:"embedding,omitempty"`
	Confidence  Confidence   `json:"confidence"`
	Tags        []string     `json:"tags,omitempty"`
	SessionID   string       `json:"session_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// MemoryPatch is a partial update. Nil fields are left untouched.
// Type and Source are fixed at creation and cannot be patched.
type MemoryPatch struct {
	Title   *string  `json:"title,omitempty"`
	Content *string  `json:"content,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// MemoryWithScore pairs a memory with a retrieval score.
type MemoryWithScore struct {
	Memory
	Similarity float64 `json:"similarity"`
	Score      float64 `json:"score"`
}

// Turn is one message of a conversation handed to the extractor.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
