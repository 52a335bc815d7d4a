package handlers

import (
	"net/http"

	"github.com/mnemo-dev/mnemo/internal/service"
)

type MaintenanceHandler struct {
	scheduler *service.Scheduler
}

func NewMaintenanceHandler(scheduler *service.Scheduler) *MaintenanceHandler {
	return &MaintenanceHandler{scheduler: scheduler}
}

// Sweep triggers one maintenance pass outside the periodic schedule.
func (h *MaintenanceHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	result := h.scheduler.RunSweep(r.Context())
	writeJSON(w, http.StatusOK, result)
}
