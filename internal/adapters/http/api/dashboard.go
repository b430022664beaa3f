package api

import (
	"net/http"

	"github.com/okian/dropwatch/pkg/logger"
)

// DashboardHandler serves the aggregate views over the intervention log.
type DashboardHandler struct {
	deps AnalyticsDependencies
	log  logger.Logger
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(deps AnalyticsDependencies, log logger.Logger) *DashboardHandler {
	return &DashboardHandler{deps: deps, log: log}
}

// HandleValidation handles GET /validation-metrics requests.
// An empty log yields a message-only body with status 200.
func (h *DashboardHandler) HandleValidation(w http.ResponseWriter, r *http.Request) {
	const op = "api.HandleValidation"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	sum, err := h.deps.ValidationMetrics(r.Context())
	if err != nil {
		writeInternal(w, r, h.log, op, "store_error", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// HandleDashboard handles GET /dashboard requests.
func (h *DashboardHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.HandleDashboard"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	sum, err := h.deps.Dashboard(r.Context())
	if err != nil {
		writeInternal(w, r, h.log, op, "store_error", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
