package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/dropwatch/internal/domain/model"
	"gonum.org/v1/gonum/floats"
)

// StandardScaler centres each feature on its training mean and divides by
// its population standard deviation.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Metadata describes how an artifact was produced.
type Metadata struct {
	TrainedAt    time.Time `json:"trained_at"`
	TrainSamples int       `json:"train_samples"`
	TestSamples  int       `json:"test_samples"`
	TestAccuracy float64   `json:"test_accuracy"`
	C            float64   `json:"c"`
	Iterations   int       `json:"iterations"`
}

// Pipeline is a scale-then-classify model: a StandardScaler followed by a
// binary logistic regression. It is the serialized model artifact.
type Pipeline struct {
	FeatureNames []string       `json:"feature_names"`
	Scaler       StandardScaler `json:"scaler"`
	Coefficients []float64      `json:"coefficients"`
	Intercept    float64        `json:"intercept"`
	Classes      []int          `json:"classes"`
	Metadata     Metadata       `json:"metadata"`
}

// LoadPipeline reads and validates a JSON model artifact.
func LoadPipeline(path string) (*Pipeline, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}
	var p Pipeline
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrInvalidModel, path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Save writes the artifact as indented JSON, replacing path atomically.
func (p *Pipeline) Save(path string) error {
	if err := p.Validate(); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure model dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(raw, '\n'), 0o644); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace model: %w", err)
	}
	return nil
}

// Validate checks that all parameter vectors agree on the feature count.
func (p *Pipeline) Validate() error {
	n := model.NumFeatures
	switch {
	case len(p.Coefficients) != n:
		return fmt.Errorf("%w: %d coefficients, want %d", ErrInvalidModel, len(p.Coefficients), n)
	case len(p.Scaler.Mean) != n || len(p.Scaler.Scale) != n:
		return fmt.Errorf("%w: scaler expects %d/%d features, want %d", ErrInvalidModel, len(p.Scaler.Mean), len(p.Scaler.Scale), n)
	case len(p.FeatureNames) != 0 && len(p.FeatureNames) != n:
		return fmt.Errorf("%w: %d feature names, want %d", ErrInvalidModel, len(p.FeatureNames), n)
	case len(p.Classes) != 0 && len(p.Classes) != 2:
		return fmt.Errorf("%w: binary classifier required, got %d classes", ErrInvalidModel, len(p.Classes))
	}
	for i, s := range p.Scaler.Scale {
		if s == 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Errorf("%w: scale[%d] = %v", ErrInvalidModel, i, s)
		}
	}
	if !allFinite(p.Coefficients) || !allFinite(p.Scaler.Mean) || math.IsNaN(p.Intercept) || math.IsInf(p.Intercept, 0) {
		return fmt.Errorf("%w: non-finite parameters", ErrInvalidModel)
	}
	return nil
}

// PredictProba implements Classifier.
func (p *Pipeline) PredictProba(ctx context.Context, x [][]float64) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float64, len(x))
	z := make([]float64, len(p.Coefficients))
	for i, row := range x {
		if len(row) != len(p.Coefficients) {
			return nil, fmt.Errorf("row %d has %d features, model expects %d", i, len(row), len(p.Coefficients))
		}
		p.transform(z, row)
		pos := sigmoid(floats.Dot(p.Coefficients, z) + p.Intercept)
		out[i] = []float64{1 - pos, pos}
	}
	return out, nil
}

// transform writes the standardized row into dst.
func (p *Pipeline) transform(dst, row []float64) {
	for j, v := range row {
		dst[j] = (v - p.Scaler.Mean[j]) / p.Scaler.Scale[j]
	}
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
