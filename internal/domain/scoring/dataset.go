package scoring

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"strconv"

	"github.com/okian/dropwatch/internal/domain/model"
)

// LabelColumn is the dataset column holding the 0/1 dropout label.
const LabelColumn = "dropout"

// Dataset is a labelled feature matrix. Rows of X follow model.ColumnNames.
type Dataset struct {
	X [][]float64
	Y []int
}

// Len returns the number of samples.
func (d Dataset) Len() int { return len(d.Y) }

// ReadDatasetFile reads a training CSV from disk.
func ReadDatasetFile(path string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return ReadDataset(f)
}

// ReadDataset parses a CSV with a header row. Columns are located by name,
// so extra columns and any column order are accepted.
func ReadDataset(r io.Reader) (Dataset, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return Dataset{}, fmt.Errorf("%w: read header: %w", ErrDataset, err)
	}

	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[h] = i
	}
	cols := make([]int, model.NumFeatures)
	for j, name := range model.ColumnNames {
		i, ok := pos[name]
		if !ok {
			return Dataset{}, fmt.Errorf("%w: missing column %q", ErrDataset, name)
		}
		cols[j] = i
	}
	labelCol, ok := pos[LabelColumn]
	if !ok {
		return Dataset{}, fmt.Errorf("%w: missing column %q", ErrDataset, LabelColumn)
	}

	var ds Dataset
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Dataset{}, fmt.Errorf("%w: line %d: %w", ErrDataset, line, err)
		}
		x := make([]float64, model.NumFeatures)
		for j, c := range cols {
			v, err := strconv.ParseFloat(row[c], 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return Dataset{}, fmt.Errorf("%w: line %d: bad %s value %q", ErrDataset, line, model.ColumnNames[j], row[c])
			}
			x[j] = v
		}
		y, err := strconv.Atoi(row[labelCol])
		if err != nil || (y != 0 && y != 1) {
			return Dataset{}, fmt.Errorf("%w: line %d: label must be 0 or 1, got %q", ErrDataset, line, row[labelCol])
		}
		ds.X = append(ds.X, x)
		ds.Y = append(ds.Y, y)
	}
	if ds.Len() == 0 {
		return Dataset{}, fmt.Errorf("%w: no samples", ErrDataset)
	}
	return ds, nil
}

// WriteDataset writes ds as CSV with a header row.
func WriteDataset(w io.Writer, ds Dataset) error {
	cw := csv.NewWriter(w)
	header := append(model.ColumnNames[:], LabelColumn)
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for i, x := range ds.X {
		for j, v := range x {
			row[j] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		row[model.NumFeatures] = strconv.Itoa(ds.Y[i])
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Split shuffles with a fixed seed and holds out ceil(testFraction*n)
// samples for evaluation.
func Split(ds Dataset, testFraction float64, seed int64) (train, test Dataset, err error) {
	n := ds.Len()
	if testFraction <= 0 || testFraction >= 1 {
		return Dataset{}, Dataset{}, fmt.Errorf("%w: test fraction %v outside (0,1)", ErrDataset, testFraction)
	}
	nTest := int(math.Ceil(testFraction * float64(n)))
	if nTest < 1 || nTest >= n {
		return Dataset{}, Dataset{}, fmt.Errorf("%w: %d samples cannot be split %v", ErrDataset, n, testFraction)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	for k, i := range perm {
		dst := &train
		if k < nTest {
			dst = &test
		}
		dst.X = append(dst.X, ds.X[i])
		dst.Y = append(dst.Y, ds.Y[i])
	}
	return train, test, nil
}

// Generate produces n synthetic students. The label is drawn from a latent
// logistic model in which low attendance, low marks, financial trouble and
// backlogs raise the dropout odds.
func Generate(n int, seed int64) Dataset {
	rng := rand.New(rand.NewSource(seed))
	ds := Dataset{X: make([][]float64, n), Y: make([]int, n)}
	for i := range n {
		attendance := clamp(rng.NormFloat64()*15+75, 20, 100)
		marks := clamp(rng.NormFloat64()*15+65, 0, 100)
		quiz := clamp(rng.NormFloat64()*2+6.5, 0, 10)
		logins := clamp(math.Round(rng.NormFloat64()*5+15), 0, 40)
		financial := 0.0
		if rng.Float64() < 0.25 {
			financial = 1
		}
		backlogs := float64(poisson(rng, 0.8))

		z := -0.06*(attendance-75) - 0.04*(marks-65) - 0.25*(quiz-6.5) -
			0.08*(logins-15) + 1.1*financial + 0.7*backlogs - 1.2
		label := 0
		if rng.Float64() < sigmoid(z) {
			label = 1
		}

		ds.X[i] = []float64{
			math.Round(attendance*10) / 10,
			math.Round(marks*10) / 10,
			math.Round(quiz*10) / 10,
			logins,
			financial,
			backlogs,
		}
		ds.Y[i] = label
	}
	return ds
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// poisson draws with Knuth's method; fine for the small means used here.
func poisson(rng *rand.Rand, lambda float64) int {
	l := math.Exp(-lambda)
	k, p := 0, 1.0
	for {
		p *= rng.Float64()
		if p <= l {
			return k
		}
		k++
	}
}
