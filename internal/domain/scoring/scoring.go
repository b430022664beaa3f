// Package scoring turns a student feature vector into a dropout risk
// assessment, and trains the classifier behind it.
package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/okian/dropwatch/internal/domain/model"
	"github.com/okian/dropwatch/internal/domain/types"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

// Default tier thresholds, in percent.
const (
	DefaultLowThreshold  = 30.0
	DefaultHighThreshold = 60.0

	topFactorCount = 3
	positiveClass  = 1
)

// Classifier is the predict_proba contract: N rows of features in, N rows
// of [P(stay), P(dropout)] out.
type Classifier interface {
	PredictProba(ctx context.Context, x [][]float64) ([][]float64, error)
}

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithThresholds overrides the tier cut points. Ignored unless
// 0 <= low < high <= 100.
func WithThresholds(low, high float64) Option {
	return func(s *Scorer) {
		if low >= 0 && low < high && high <= 100 {
			s.lowThreshold = low
			s.highThreshold = high
		}
	}
}

// Scorer wraps a classifier. It holds no mutable state after construction
// and is safe for concurrent use.
type Scorer struct {
	classifier    Classifier
	lowThreshold  float64
	highThreshold float64
}

// NewScorer creates a Scorer around an already loaded classifier.
func NewScorer(c Classifier, opts ...Option) *Scorer {
	s := &Scorer{
		classifier:    c,
		lowThreshold:  DefaultLowThreshold,
		highThreshold: DefaultHighThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score computes the dropout percentage, its tier and the top risk factors.
func (s *Scorer) Score(ctx context.Context, fv model.FeatureVector) (types.RiskAssessment, error) {
	x := fv.Values()

	probs, err := s.classifier.PredictProba(ctx, [][]float64{x})
	if err != nil {
		return types.RiskAssessment{}, fmt.Errorf("%w: %w", ErrScoring, err)
	}
	if len(probs) != 1 || len(probs[0]) <= positiveClass {
		return types.RiskAssessment{}, fmt.Errorf("%w: unexpected probability shape", ErrScoring)
	}
	p := probs[0][positiveClass]
	if math.IsNaN(p) || p < 0 || p > 1 {
		return types.RiskAssessment{}, fmt.Errorf("%w: probability %v out of range", ErrScoring, p)
	}

	pct := Percentage(p)
	return types.RiskAssessment{
		DropoutRiskPercentage: pct,
		RiskLevel:             s.Tier(pct),
		TopRiskFactors:        TopFactors(x),
	}, nil
}

// Tier maps a percentage onto Low / Medium / High using half-open intervals.
func (s *Scorer) Tier(pct float64) types.RiskLevel {
	switch {
	case pct < s.lowThreshold:
		return types.RiskLow
	case pct < s.highThreshold:
		return types.RiskMedium
	default:
		return types.RiskHigh
	}
}

// Percentage converts a probability to a percentage with two decimals,
// rounding half to even.
func Percentage(p float64) float64 {
	return Round2(p * 100)
}

// Round2 rounds to two decimals, half to even.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).RoundBank(2).InexactFloat64()
}

// TopFactors is a heuristic proxy, not a feature importance: it ranks each
// raw value by its absolute distance from the mean of all six raw values
// (units are mixed on purpose) and returns the three most distant feature
// names, least distant first. Ties keep vector order.
func TopFactors(values []float64) []string {
	mean := stat.Mean(values, nil)

	idx := make([]int, len(values))
	dist := make([]float64, len(values))
	for i, v := range values {
		idx[i] = i
		dist[i] = math.Abs(v - mean)
	}
	sort.SliceStable(idx, func(a, b int) bool { return dist[idx[a]] < dist[idx[b]] })

	start := len(idx) - topFactorCount
	if start < 0 {
		start = 0
	}
	out := make([]string, 0, topFactorCount)
	for _, i := range idx[start:] {
		out = append(out, model.FeatureNames[i])
	}
	return out
}
