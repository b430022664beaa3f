package api

import (
	"errors"
	"net/http"

	"github.com/okian/dropwatch/pkg/logger"
)

// PredictHandler scores a single feature vector.
type PredictHandler struct {
	deps PredictDependencies
	log  logger.Logger
}

// NewPredictHandler creates a new predict handler.
func NewPredictHandler(deps PredictDependencies, log logger.Logger) *PredictHandler {
	return &PredictHandler{deps: deps, log: log}
}

// HandlePredict handles POST /predict requests.
func (h *PredictHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	const op = "api.HandlePredict"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	fv, err := decodeFeatures(w, r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", errors.New(validationMessage(err)))
		return
	}
	res, err := h.deps.Predict(r.Context(), fv)
	if err != nil {
		writeInternal(w, r, h.log, op, "scoring_error", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
