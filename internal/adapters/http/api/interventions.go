package api

import (
	"errors"
	"net/http"

	"github.com/okian/dropwatch/internal/adapters/repository"
	"github.com/okian/dropwatch/pkg/logger"
)

// Response messages for the intervention log endpoints.
const (
	msgInterventionLogged = "Intervention logged successfully"
	msgOutcomeUpdated     = "Outcome updated successfully"
	msgStoreNotFound      = "No intervention data found"
	msgRecordNotFound     = "Record not found"
)

type logInterventionResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// InterventionsHandler serves the intervention log.
type InterventionsHandler struct {
	deps InterventionDependencies
	log  logger.Logger
}

// NewInterventionsHandler creates a new interventions handler.
func NewInterventionsHandler(deps InterventionDependencies, log logger.Logger) *InterventionsHandler {
	return &InterventionsHandler{deps: deps, log: log}
}

// HandleLog handles POST /log-intervention requests.
func (h *InterventionsHandler) HandleLog(w http.ResponseWriter, r *http.Request) {
	const op = "api.HandleLog"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	fv, risk, taken, err := decodeIntervention(w, r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", errors.New(validationMessage(err)))
		return
	}
	ts, err := h.deps.LogIntervention(r.Context(), fv, risk, taken)
	if err != nil {
		writeInternal(w, r, h.log, op, "store_error", err)
		return
	}
	writeJSON(w, http.StatusOK, logInterventionResponse{Message: msgInterventionLogged, Timestamp: ts})
}

// HandleUpdateOutcome handles POST /update-outcome requests.
func (h *InterventionsHandler) HandleUpdateOutcome(w http.ResponseWriter, r *http.Request) {
	const op = "api.HandleUpdateOutcome"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	ts, outcome, err := decodeOutcome(w, r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", errors.New(validationMessage(err)))
		return
	}
	err = h.deps.UpdateOutcome(r.Context(), ts, outcome)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, messageResponse{Message: msgOutcomeUpdated})
		return
	case errors.Is(err, repository.ErrStoreNotFound):
		writeError(w, http.StatusNotFound, "not_found", errors.New(msgStoreNotFound))
	case errors.Is(err, repository.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "not_found", errors.New(msgRecordNotFound))
	default:
		writeInternal(w, r, h.log.With(logger.String("timestamp", ts)), op, "store_error", err)
		return
	}
	requestLogger(h.log, r).Info(r.Context(), "outcome target missing",
		logger.String("timestamp", ts), logger.Error(Wrap(op, err)))
}

// HandleList handles GET /interventions requests.
func (h *InterventionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.HandleList"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	recs, err := h.deps.Interventions(r.Context())
	if err != nil {
		writeInternal(w, r, h.log, op, "store_error", err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}
