package domain

import (
	"time"

	"github.com/google/uuid"
)

type RelationKind string

const (
	RelationReinforces  RelationKind = "reinforces"
	RelationContradicts RelationKind = "contradicts"
	RelationExtends     RelationKind = "extends"
	RelationSupersedes  RelationKind = "supersedes"
)

func ValidRelationKind(k string) bool {
	switch RelationKind(k) {
	case RelationReinforces, RelationContradicts, RelationExtends, RelationSupersedes:
		return true
	}
	return false
}

// Relationship is a directed, typed edge between two memories. A
// supersedes edge marks its source memory as superseded by its target:
// the source is excluded from retrieval ranking while the edge exists.
type Relationship struct {
	FromID    uuid.UUID    `json:"from_id"`
	ToID      uuid.UUID    `json:"to_id"`
	Kind      RelationKind `json:"kind"`
	Strength  float64      `json:"strength"`
	CreatedAt time.Time    `json:"created_at"`
}

// Neighbor is one step of a graph traversal seen from a given memory.
type Neighbor struct {
	MemoryID uuid.UUID    `json:"memory_id"`
	Kind     RelationKind `json:"kind"`
	Strength float64      `json:"strength"`
	Outgoing bool         `json:"outgoing"`
}
