package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/mnemo-dev/mnemo/internal/service"
	"github.com/mnemo-dev/mnemo/internal/store"
)

type FeedbackHandler struct {
	learner *service.Learner
}

func NewFeedbackHandler(learner *service.Learner) *FeedbackHandler {
	return &FeedbackHandler{learner: learner}
}

type feedbackRequest struct {
	MemoryID string `json:"memory_id"`
	Outcome  string `json:"outcome"`
}

func (h *FeedbackHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := uuid.Parse(req.MemoryID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory_id")
		return
	}

	memory, err := h.learner.Feedback(r.Context(), id, req.Outcome)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "memory not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, memory)
}
