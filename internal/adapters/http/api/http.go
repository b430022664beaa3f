// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/dropwatch/internal/domain/model"
	"github.com/okian/dropwatch/internal/domain/types"
	"github.com/okian/dropwatch/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	PredictDependencies
	InterventionDependencies
	AnalyticsDependencies
}

// PredictDependencies scores feature vectors.
type PredictDependencies interface {
	Predict(ctx context.Context, fv model.FeatureVector) (types.RiskAssessment, error)
}

// InterventionDependencies reads and writes the intervention log.
type InterventionDependencies interface {
	LogIntervention(ctx context.Context, fv model.FeatureVector, riskLevel, intervention string) (string, error)
	UpdateOutcome(ctx context.Context, timestamp, outcome string) error
	Interventions(ctx context.Context) ([]model.InterventionRecord, error)
}

// AnalyticsDependencies aggregates the log.
type AnalyticsDependencies interface {
	ValidationMetrics(ctx context.Context) (types.ValidationSummary, error)
	Dashboard(ctx context.Context) (types.DashboardSummary, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	rootHandler          *RootHandler
	healthHandler        *HealthHandler
	statsHandler         *StatsHandler
	predictHandler       *PredictHandler
	interventionsHandler *InterventionsHandler
	dashboardHandler     *DashboardHandler
	log                  logger.Logger
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithLogger sets the logger handed to every handler.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.rootHandler = NewRootHandler()
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.predictHandler = NewPredictHandler(deps, s.log)
	s.interventionsHandler = NewInterventionsHandler(deps, s.log)
	s.dashboardHandler = NewDashboardHandler(deps, s.log)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.HandleFunc("/{$}", MetricsMiddleware(s.rootHandler.HandleRoot, "root"))
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/predict", MetricsMiddleware(s.predictHandler.HandlePredict, "predict"))
	mux.HandleFunc("/log-intervention", MetricsMiddleware(s.interventionsHandler.HandleLog, "log_intervention"))
	mux.HandleFunc("/update-outcome", MetricsMiddleware(s.interventionsHandler.HandleUpdateOutcome, "update_outcome"))
	mux.HandleFunc("/interventions", MetricsMiddleware(s.interventionsHandler.HandleList, "interventions"))
	mux.HandleFunc("/validation-metrics", MetricsMiddleware(s.dashboardHandler.HandleValidation, "validation_metrics"))
	mux.HandleFunc("/dashboard", MetricsMiddleware(s.dashboardHandler.HandleDashboard, "dashboard"))
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// requestLogger scopes log to the request ID set by RequestIDMiddleware.
func requestLogger(log logger.Logger, r *http.Request) logger.Logger {
	if id := RequestID(r.Context()); id != "" {
		return log.With(logger.String("request_id", id))
	}
	return log
}

// writeInternal logs a dependency failure under op and answers 500. The
// client sees the cause without the op chain.
func writeInternal(w http.ResponseWriter, r *http.Request, log logger.Logger, op, code string, err error) {
	requestLogger(log, r).Error(r.Context(), "request failed", logger.Error(WrapKind(op, ErrInternal, err)))
	writeError(w, http.StatusInternalServerError, code, err)
}
