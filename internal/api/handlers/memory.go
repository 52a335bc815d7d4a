package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mnemo-dev/mnemo/internal/confidence"
	"github.com/mnemo-dev/mnemo/internal/domain"
	"github.com/mnemo-dev/mnemo/internal/service"
	"github.com/mnemo-dev/mnemo/internal/store"
)

type MemoryHandler struct {
	svc *service.MemoryService
}

func NewMemoryHandler(svc *service.MemoryService) *MemoryHandler {
	return &MemoryHandler{svc: svc}
}

type createMemoryRequest struct {
	Type      string   `json:"type"`
	Source    string   `json:"source,omitempty"`
	Title     string   `json:"title,omitempty"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
}

type createMemoryResponse struct {
	*domain.Memory
	Reinforced bool `json:"reinforced"`
}

func (h *MemoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Source == "" {
		req.Source = string(domain.SourceExplicit)
	}

	memory := &domain.Memory{
		Type:      domain.MemoryType(req.Type),
		Source:    domain.MemorySource(req.Source),
		Title:     req.Title,
		Content:   req.Content,
		Tags:      req.Tags,
		SessionID: req.SessionID,
	}

	saved, reinforced, err := h.svc.CreateOrReinforce(r.Context(), memory, confidence.ExtractionSignal)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	status := http.StatusCreated
	if reinforced {
		status = http.StatusOK
	}
	writeJSON(w, status, createMemoryResponse{Memory: saved, Reinforced: reinforced})
}

func (h *MemoryHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}

	memory, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "memory not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load memory")
		return
	}
	writeJSON(w, http.StatusOK, memory)
}

func (h *MemoryHandler) Patch(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}

	var patch domain.MemoryPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	memory, err := h.svc.Update(r.Context(), id, patch)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "memory not found")
		case errors.Is(err, store.ErrDuplicate):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to update memory")
		}
		return
	}
	writeJSON(w, http.StatusOK, memory)
}

func (h *MemoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "memory not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete memory")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MemoryHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	var tags []string
	if raw := r.URL.Query().Get("tags"); raw != "" {
		tags = strings.Split(raw, ",")
	}

	results := h.svc.SearchText(r.Context(), query, limit, tags...)
	writeJSON(w, http.StatusOK, map[string]any{
		"memories": results,
		"count":    len(results),
	})
}
