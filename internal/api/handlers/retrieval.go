package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/mnemo-dev/mnemo/internal/domain"
	"github.com/mnemo-dev/mnemo/internal/service"
)

type RetrievalHandler struct {
	retriever *service.Retriever
	extractor *service.Extractor
}

func NewRetrievalHandler(retriever *service.Retriever, extractor *service.Extractor) *RetrievalHandler {
	return &RetrievalHandler{retriever: retriever, extractor: extractor}
}

type retrieveRequest struct {
	Query     string   `json:"query"`
	Limit     int      `json:"limit,omitempty"`
	Types     []string `json:"types,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
}

func (req retrieveRequest) options() (service.RetrieveOptions, string) {
	opts := service.RetrieveOptions{Limit: req.Limit, Tags: req.Tags, SessionID: req.SessionID}
	for _, t := range req.Types {
		if !domain.ValidMemoryType(t) {
			return opts, "invalid memory type " + t
		}
		opts.Types = append(opts.Types, domain.MemoryType(t))
	}
	return opts, ""
}

func (h *RetrievalHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	opts, badType := req.options()
	if badType != "" {
		writeError(w, http.StatusBadRequest, badType)
		return
	}

	results, err := h.retriever.Retrieve(r.Context(), req.Query, opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"memories": results,
		"count":    len(results),
	})
}

func (h *RetrievalHandler) Inject(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	opts, badType := req.options()
	if badType != "" {
		writeError(w, http.StatusBadRequest, badType)
		return
	}

	result, err := h.retriever.InjectMemories(r.Context(), req.Query, opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type extractRequest struct {
	SessionID string        `json:"session_id,omitempty"`
	Turns     []domain.Turn `json:"turns"`
}

func (h *RetrievalHandler) Extract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Turns) == 0 {
		writeError(w, http.StatusBadRequest, "turns must not be empty")
		return
	}

	result, err := h.extractor.Extract(r.Context(), req.SessionID, req.Turns)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "extraction failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
