package scoring

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/okian/dropwatch/internal/domain/model"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// Training defaults.
const (
	DefaultC             = 1.0
	DefaultMaxIterations = 100
	DefaultTestFraction  = 0.2
	DefaultSeed          = 42
)

// TrainOption configures Train and Fit.
type TrainOption func(*trainConfig)

type trainConfig struct {
	c             float64
	maxIterations int
	testFraction  float64
	seed          int64
	now           func() time.Time
}

// WithC sets the inverse regularisation strength.
func WithC(c float64) TrainOption {
	return func(t *trainConfig) {
		if c > 0 {
			t.c = c
		}
	}
}

// WithMaxIterations caps the optimiser's major iterations.
func WithMaxIterations(n int) TrainOption {
	return func(t *trainConfig) {
		if n > 0 {
			t.maxIterations = n
		}
	}
}

// WithTestFraction sets the share of samples held out for evaluation.
func WithTestFraction(f float64) TrainOption {
	return func(t *trainConfig) { t.testFraction = f }
}

// WithSeed sets the shuffle seed for the train/test split.
func WithSeed(seed int64) TrainOption {
	return func(t *trainConfig) { t.seed = seed }
}

// WithTrainClock overrides the clock stamped into metadata.
func WithTrainClock(now func() time.Time) TrainOption {
	return func(t *trainConfig) {
		if now != nil {
			t.now = now
		}
	}
}

func newTrainConfig(opts []TrainOption) trainConfig {
	cfg := trainConfig{
		c:             DefaultC,
		maxIterations: DefaultMaxIterations,
		testFraction:  DefaultTestFraction,
		seed:          DefaultSeed,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Train splits ds, fits a pipeline on the training part and reports its
// accuracy on the held out part.
func Train(ctx context.Context, ds Dataset, opts ...TrainOption) (*Pipeline, error) {
	cfg := newTrainConfig(opts)
	train, test, err := Split(ds, cfg.testFraction, cfg.seed)
	if err != nil {
		return nil, err
	}
	p, err := Fit(ctx, train, opts...)
	if err != nil {
		return nil, err
	}
	acc, err := Accuracy(ctx, p, test)
	if err != nil {
		return nil, err
	}
	p.Metadata.TestSamples = test.Len()
	p.Metadata.TestAccuracy = acc
	return p, nil
}

// Fit standardizes the features and fits an L2-regularised logistic
// regression by minimising 0.5*|w|^2 + C*sum(logloss) with L-BFGS. The
// intercept is not penalised.
func Fit(ctx context.Context, ds Dataset, opts ...TrainOption) (*Pipeline, error) {
	cfg := newTrainConfig(opts)
	n := ds.Len()
	if n == 0 || len(ds.X) != n {
		return nil, fmt.Errorf("%w: no samples", ErrDataset)
	}
	if !hasBothClasses(ds.Y) {
		return nil, fmt.Errorf("%w: both classes are required", ErrDataset)
	}

	scaler := fitScaler(ds.X)
	p := &Pipeline{
		FeatureNames: append([]string(nil), model.FeatureNames[:]...),
		Scaler:       scaler,
		Classes:      []int{0, 1},
	}
	p.Coefficients = make([]float64, model.NumFeatures)

	z := make([][]float64, n)
	for i, row := range ds.X {
		z[i] = make([]float64, model.NumFeatures)
		p.transform(z[i], row)
	}

	obj := logisticObjective{x: z, y: ds.Y, c: cfg.c}
	problem := optimize.Problem{
		Func: obj.value,
		Grad: obj.gradient,
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}
	settings := &optimize.Settings{
		MajorIterations:   cfg.maxIterations,
		GradientThreshold: 1e-6,
	}

	theta0 := make([]float64, model.NumFeatures+1)
	res, err := optimize.Minimize(problem, theta0, settings, &optimize.LBFGS{})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// An iteration cap or a stalled line search still leaves a usable
	// solution, as long as it is finite.
	if res == nil || !allFinite(res.X) {
		return nil, fmt.Errorf("%w: optimiser failed: %v", ErrDataset, err)
	}

	copy(p.Coefficients, res.X[:model.NumFeatures])
	p.Intercept = res.X[model.NumFeatures]
	p.Metadata = Metadata{
		TrainedAt:    cfg.now().UTC(),
		TrainSamples: n,
		C:            cfg.c,
		Iterations:   res.Stats.MajorIterations,
	}
	return p, nil
}

// Accuracy is the share of samples whose predicted class matches the label.
func Accuracy(ctx context.Context, c Classifier, ds Dataset) (float64, error) {
	if ds.Len() == 0 {
		return 0, fmt.Errorf("%w: no samples", ErrDataset)
	}
	probs, err := c.PredictProba(ctx, ds.X)
	if err != nil {
		return 0, err
	}
	hits := 0
	for i, row := range probs {
		pred := 0
		if row[positiveClass] > 0.5 {
			pred = 1
		}
		if pred == ds.Y[i] {
			hits++
		}
	}
	return float64(hits) / float64(ds.Len()), nil
}

func fitScaler(x [][]float64) StandardScaler {
	s := StandardScaler{
		Mean:  make([]float64, model.NumFeatures),
		Scale: make([]float64, model.NumFeatures),
	}
	col := make([]float64, len(x))
	for j := range model.NumFeatures {
		for i, row := range x {
			col[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Mean[j], s.Scale[j] = mean, std
	}
	return s
}

func hasBothClasses(y []int) bool {
	var seen [2]bool
	for _, v := range y {
		if v == 0 || v == 1 {
			seen[v] = true
		}
	}
	return seen[0] && seen[1]
}

// logisticObjective works on theta = [w..., b].
type logisticObjective struct {
	x [][]float64
	y []int
	c float64
}

func (o logisticObjective) value(theta []float64) float64 {
	w, b := theta[:len(theta)-1], theta[len(theta)-1]
	loss := 0.0
	for i, row := range o.x {
		m := floats.Dot(w, row) + b
		loss += softplus(m) - float64(o.y[i])*m
	}
	return 0.5*floats.Dot(w, w) + o.c*loss
}

func (o logisticObjective) gradient(grad, theta []float64) {
	nw := len(theta) - 1
	w, b := theta[:nw], theta[nw]
	copy(grad[:nw], w)
	grad[nw] = 0
	for i, row := range o.x {
		r := o.c * (sigmoid(floats.Dot(w, row)+b) - float64(o.y[i]))
		floats.AddScaled(grad[:nw], r, row)
		grad[nw] += r
	}
}

// softplus is log(1+e^m) without overflow.
func softplus(m float64) float64 {
	if m > 0 {
		return m + math.Log1p(math.Exp(-m))
	}
	return math.Log1p(math.Exp(m))
}
