package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mnemo-dev/mnemo/internal/domain"
	"github.com/mnemo-dev/mnemo/internal/graph"
	"github.com/mnemo-dev/mnemo/internal/store"
)

type RelationshipHandler struct {
	graph *graph.Graph
}

func NewRelationshipHandler(g *graph.Graph) *RelationshipHandler {
	return &RelationshipHandler{graph: g}
}

type relationshipRequest struct {
	FromID   string  `json:"from_id"`
	ToID     string  `json:"to_id"`
	Kind     string  `json:"kind"`
	Strength float64 `json:"strength,omitempty"`
}

func (req relationshipRequest) parse() (domain.Relationship, string) {
	from, err := uuid.Parse(req.FromID)
	if err != nil {
		return domain.Relationship{}, "invalid from_id"
	}
	to, err := uuid.Parse(req.ToID)
	if err != nil {
		return domain.Relationship{}, "invalid to_id"
	}
	return domain.Relationship{
		FromID:   from,
		ToID:     to,
		Kind:     domain.RelationKind(req.Kind),
		Strength: req.Strength,
	}, ""
}

func (h *RelationshipHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req relationshipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rel, bad := req.parse()
	if bad != "" {
		writeError(w, http.StatusBadRequest, bad)
		return
	}

	created, err := h.graph.Link(r.Context(), rel)
	if err != nil {
		switch {
		case errors.Is(err, graph.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "memory not found")
		case errors.Is(err, store.ErrDuplicate):
			writeError(w, http.StatusConflict, "relationship already exists")
		default:
			writeError(w, http.StatusInternalServerError, "failed to create relationship")
		}
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *RelationshipHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req relationshipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rel, bad := req.parse()
	if bad != "" {
		writeError(w, http.StatusBadRequest, bad)
		return
	}

	if err := h.graph.Unlink(r.Context(), rel.FromID, rel.ToID, rel.Kind); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "relationship not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete relationship")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RelationshipHandler) ListForMemory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}

	var kinds []domain.RelationKind
	if raw := r.URL.Query().Get("kind"); raw != "" {
		if !domain.ValidRelationKind(raw) {
			writeError(w, http.StatusBadRequest, "invalid relationship kind")
			return
		}
		kinds = append(kinds, domain.RelationKind(raw))
	}

	neighbors := h.graph.Neighbors(r.Context(), id, kinds...)
	writeJSON(w, http.StatusOK, map[string]any{
		"neighbors":  neighbors,
		"count":      len(neighbors),
		"superseded": h.graph.IsSuperseded(r.Context(), id),
	})
}
