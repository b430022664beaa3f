// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	repository "github.com/okian/dropwatch/internal/adapters/repository"
	"github.com/okian/dropwatch/internal/domain/analytics"
	"github.com/okian/dropwatch/internal/domain/model"
	"github.com/okian/dropwatch/internal/domain/types"
	"github.com/okian/dropwatch/pkg/logger"
	"github.com/okian/dropwatch/pkg/metrics"
)

// ErrNotConfigured is returned by Start when a required dependency is missing.
var ErrNotConfigured = errors.New("service not configured")

// Scorer produces a risk assessment for one feature vector.
type Scorer interface {
	Score(ctx context.Context, fv model.FeatureVector) (types.RiskAssessment, error)
}

// Service implements the API dependencies for the dropout risk system.
type Service struct {
	mu sync.RWMutex

	// Core components
	scorer Scorer
	store  repository.Store

	// Configuration
	backend          string
	clock            func() time.Time
	timestampRetries int

	// Timestamp issuer state
	tsMu       sync.Mutex
	lastIssued time.Time

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithScorer sets the risk scorer. The scorer must be safe for concurrent use.
func WithScorer(sc Scorer) Option {
	return func(s *Service) {
		if sc != nil {
			s.scorer = sc
		}
	}
}

// WithStore sets the intervention log store.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithBackendName labels the store in logs and stats.
func WithBackendName(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.backend = name
		}
	}
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.clock = now
		}
	}
}

// WithTimestampRetries sets how often an append is retried when the store
// rejects a timestamp as already used.
func WithTimestampRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.timestampRetries = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		backend:          repository.DriverMemory,
		clock:            time.Now,
		timestampRetries: 3,
		logger:           logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start checks the wiring. It is idempotent.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.scorer == nil {
		return fmt.Errorf("%w: scorer", ErrNotConfigured)
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
		s.backend = repository.DriverMemory
		s.logger.Warn(ctx, "no store configured, using memory store")
	}

	s.started = true
	s.logger.Info(ctx, "dropout service started", logger.String("store", s.backend))
	return nil
}

// Stop closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(context.Background(), "closing store", logger.Error(err))
	}
	s.started = false
	s.logger.Info(context.Background(), "dropout service stopped")
}

// Predict scores a feature vector. Nothing is persisted.
func (s *Service) Predict(ctx context.Context, fv model.FeatureVector) (types.RiskAssessment, error) {
	start := time.Now()
	res, err := s.scorer.Score(ctx, fv)
	if err != nil {
		metrics.RecordScoringError()
		s.logger.Error(ctx, "scoring failed", logger.Error(err))
		return types.RiskAssessment{}, err
	}
	metrics.RecordPrediction(string(res.RiskLevel), float64(time.Since(start).Microseconds())/1000)
	s.logger.Debug(ctx, "prediction",
		logger.Float64("percentage", res.DropoutRiskPercentage),
		logger.String("risk_level", string(res.RiskLevel)),
	)
	return res, nil
}

// LogIntervention appends a record with a freshly issued timestamp and an
// empty outcome, and returns the timestamp.
func (s *Service) LogIntervention(ctx context.Context, fv model.FeatureVector, riskLevel, intervention string) (string, error) {
	rec := model.InterventionRecord{
		FeatureVector:     fv,
		RiskLevel:         riskLevel,
		InterventionTaken: intervention,
	}

	var err error
	for attempt := 0; attempt <= s.timestampRetries; attempt++ {
		rec.Timestamp = s.nextTimestamp()
		err = s.store.Append(ctx, rec)
		if !errors.Is(err, repository.ErrDuplicateTimestamp) {
			break
		}
		s.logger.Warn(ctx, "timestamp already used, reissuing",
			logger.String("timestamp", rec.Timestamp), logger.Int("attempt", attempt+1))
	}
	if err != nil {
		return "", fmt.Errorf("log intervention: %w", err)
	}

	metrics.RecordInterventionLogged()
	s.logger.Info(ctx, "intervention logged",
		logger.String("timestamp", rec.Timestamp),
		logger.String("risk_level", riskLevel),
		logger.String("intervention", intervention),
	)
	return rec.Timestamp, nil
}

// UpdateOutcome records the outcome of a previously logged intervention.
func (s *Service) UpdateOutcome(ctx context.Context, timestamp, outcome string) error {
	err := s.store.UpdateOutcome(ctx, timestamp, outcome)
	switch {
	case err == nil:
		metrics.RecordOutcomeUpdate("updated")
		s.logger.Info(ctx, "outcome updated", logger.String("timestamp", timestamp), logger.String("outcome", outcome))
		return nil
	case errors.Is(err, repository.ErrStoreNotFound):
		metrics.RecordOutcomeUpdate("store_not_found")
	case errors.Is(err, repository.ErrRecordNotFound):
		metrics.RecordOutcomeUpdate("record_not_found")
	default:
		metrics.RecordOutcomeUpdate("error")
	}
	return err
}

// Interventions returns the whole log in append order.
func (s *Service) Interventions(ctx context.Context) ([]model.InterventionRecord, error) {
	return s.store.All(ctx)
}

// ValidationMetrics compares predicted tiers with recorded outcomes.
func (s *Service) ValidationMetrics(ctx context.Context) (types.ValidationSummary, error) {
	recs, err := s.store.All(ctx)
	if err != nil {
		return types.ValidationSummary{}, err
	}
	return analytics.Validation(recs), nil
}

// Dashboard returns frequency tables over the log.
func (s *Service) Dashboard(ctx context.Context) (types.DashboardSummary, error) {
	recs, err := s.store.All(ctx)
	if err != nil {
		return types.DashboardSummary{}, err
	}
	return analytics.Dashboard(recs), nil
}

// RefreshStoreMetrics publishes record gauges from the current log.
func (s *Service) RefreshStoreMetrics(ctx context.Context) error {
	recs, err := s.store.All(ctx)
	if err != nil {
		return err
	}
	completed := 0
	byRisk := make(map[string]int)
	for _, r := range recs {
		byRisk[r.RiskLevel]++
		if r.Completed() {
			completed++
		}
	}
	metrics.UpdateStoreSnapshot(len(recs), completed, byRisk)
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]any{
		"started": s.started,
		"store":   s.backend,
	}
}

// nextTimestamp issues strictly increasing timestamps at microsecond
// resolution, even when the clock stalls or steps back.
func (s *Service) nextTimestamp() string {
	s.tsMu.Lock()
	defer s.tsMu.Unlock()

	now := s.clock().UTC().Truncate(time.Microsecond)
	if !now.After(s.lastIssued) {
		now = s.lastIssued.Add(time.Microsecond)
	}
	s.lastIssued = now
	return model.FormatTimestamp(now)
}
