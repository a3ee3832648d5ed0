package model

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/refset/telco-churn-scoring/internal/dataset"
	"github.com/refset/telco-churn-scoring/internal/schema"
)

// Config controls a training run.
type Config struct {
	TestFraction float64
	Seed         int64
	Epochs       int
	LearningRate float64
	L2           float64
	Threshold    float64
}

// DefaultConfig mirrors the baseline model: an 80/20 stratified split and a
// 0.5 decision threshold.
func DefaultConfig() Config {
	return Config{
		TestFraction: 0.2,
		Seed:         42,
		Epochs:       500,
		LearningRate: 0.1,
		L2:           1e-4,
		Threshold:    0.5,
	}
}

// ErrNoTrainingData is returned when nothing is left to fit on.
var ErrNoTrainingData = errors.New("no training data")

// Inputs splits the registry's model inputs present in the table into
// numeric and categorical columns.
func Inputs(reg *schema.Registry, t *dataset.Table) (numeric, categorical []string) {
	for _, name := range reg.ModelInputs() {
		if !t.HasColumn(name) {
			continue
		}
		col, _ := reg.Lookup(name)
		if col.Numeric() {
			numeric = append(numeric, name)
		} else {
			categorical = append(categorical, name)
		}
	}
	return numeric, categorical
}

// Labels reads the binary churn flag of every row.
func Labels(t *dataset.Table) ([]float64, error) {
	if !t.HasColumn(schema.ColChurnFlag) {
		return nil, fmt.Errorf("feature table has no %s column", schema.ColChurnFlag)
	}
	y := make([]float64, t.Len())
	for i, r := range t.Rows {
		f, ok := r.Get(schema.ColChurnFlag).Float()
		if !ok || (f != 0 && f != 1) {
			return nil, fmt.Errorf("customer %s: %s must be 0 or 1", schema.RowID(r, i), schema.ColChurnFlag)
		}
		y[i] = f
	}
	return y, nil
}

// Train splits the feature table, fits a classifier on the training part and
// evaluates it on the held-out part.
func Train(ctx context.Context, reg *schema.Registry, t *dataset.Table, cfg Config) (*LogisticRegression, *Metrics, error) {
	y, err := Labels(t)
	if err != nil {
		return nil, nil, err
	}
	numeric, categorical := Inputs(reg, t)

	trainIdx, testIdx := Split(y, cfg.TestFraction, cfg.Seed)
	trainRows, trainY := pick(t.Rows, y, trainIdx)
	testRows, testY := pick(t.Rows, y, testIdx)

	clf, err := Fit(ctx, trainRows, trainY, numeric, categorical, cfg)
	if err != nil {
		return nil, nil, err
	}

	metrics, err := Evaluate(clf, testRows, testY, cfg.Threshold)
	if err != nil {
		return nil, nil, err
	}
	metrics.NTrain = len(trainRows)
	metrics.NumericCols = numeric
	metrics.CategoricalCols = categorical
	metrics.FeaturesUsed = clf.Features()
	metrics.ModelVersion = clf.Version()
	return clf, metrics, nil
}

// Split returns stratified train and test indices. Each class contributes
// round(fraction * classSize) rows to the test set.
func Split(labels []float64, fraction float64, seed int64) (train, test []int) {
	rng := rand.New(rand.NewSource(seed))
	byClass := map[float64][]int{}
	for i, l := range labels {
		byClass[l] = append(byClass[l], i)
	}

	classes := make([]float64, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Float64s(classes)

	for _, c := range classes {
		idx := byClass[c]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		n := int(fraction*float64(len(idx)) + 0.5)
		test = append(test, idx[:n]...)
		train = append(train, idx[n:]...)
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test
}

// Fit estimates imputation, scaling and encoding statistics on rows and then
// fits balanced, L2-regularized logistic regression by gradient descent.
func Fit(ctx context.Context, rows []dataset.Row, y []float64, numeric, categorical []string, cfg Config) (*LogisticRegression, error) {
	if len(rows) == 0 {
		return nil, ErrNoTrainingData
	}
	if len(rows) != len(y) {
		return nil, fmt.Errorf("%d rows but %d labels", len(rows), len(y))
	}

	art := Artifact{
		Version:     uuid.NewString(),
		TrainedAt:   time.Now().UTC(),
		Numeric:     append([]string(nil), numeric...),
		Categorical: append([]string(nil), categorical...),
	}

	for _, name := range numeric {
		vals := present(rows, name)
		med := median(vals)
		imputed := make([]float64, len(rows))
		for i, r := range rows {
			imputed[i] = med
			if f, ok := r.Get(name).Float(); ok {
				imputed[i] = f
			}
		}
		mean := stat.Mean(imputed, nil)
		scale := stat.StdDev(imputed, nil)
		if scale == 0 || len(imputed) < 2 {
			scale = 1
		}
		art.Medians = append(art.Medians, med)
		art.Means = append(art.Means, mean)
		art.Scales = append(art.Scales, scale)
	}

	for _, name := range categorical {
		mode, cats := categories(rows, name)
		art.Modes = append(art.Modes, mode)
		art.Categories = append(art.Categories, cats)
	}

	width := len(numeric)
	for _, c := range art.Categories {
		width += len(c)
	}
	art.Weights = make([]float64, width)

	m, err := FromArtifact(art)
	if err != nil {
		return nil, err
	}

	xs := make([][]float64, len(rows))
	for i, r := range rows {
		if xs[i], err = m.encode(r); err != nil {
			return nil, fmt.Errorf("customer %s: %w", schema.RowID(r, i), err)
		}
	}

	sampleWeights := balancedWeights(y)
	n := float64(len(rows))
	grad := make([]float64, width)
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := range grad {
			grad[j] = 0
		}
		var gradBias float64
		for i, x := range xs {
			residual := sampleWeights[i] * (sigmoid(floats.Dot(art.Weights, x)+art.Bias) - y[i])
			floats.AddScaled(grad, residual, x)
			gradBias += residual
		}
		floats.Scale(1/n, grad)
		floats.AddScaled(grad, cfg.L2, art.Weights)
		floats.AddScaled(art.Weights, -cfg.LearningRate, grad)
		art.Bias -= cfg.LearningRate * gradBias / n
	}

	m.art = art
	return m, nil
}

// balancedWeights weights each sample by n / (classes * classCount).
func balancedWeights(y []float64) []float64 {
	counts := map[float64]float64{}
	for _, l := range y {
		counts[l]++
	}
	n, k := float64(len(y)), float64(len(counts))
	w := make([]float64, len(y))
	for i, l := range y {
		w[i] = n / (k * counts[l])
	}
	return w
}

func present(rows []dataset.Row, name string) []float64 {
	var out []float64
	for _, r := range rows {
		if f, ok := r.Get(name).Float(); ok {
			out = append(out, f)
		}
	}
	return out
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

// categories returns the most frequent value (ties go to the smallest) and
// the sorted distinct values. Missing values are left out of both.
func categories(rows []dataset.Row, name string) (string, []string) {
	counts := map[string]int{}
	for _, r := range rows {
		if v := r.Get(name); !v.IsMissing() {
			counts[v.Text()]++
		}
	}

	distinct := make([]string, 0, len(counts))
	for v := range counts {
		distinct = append(distinct, v)
	}
	sort.Strings(distinct)

	mode := ""
	for _, v := range distinct {
		if mode == "" || counts[v] > counts[mode] {
			mode = v
		}
	}
	return mode, distinct
}

func pick(rows []dataset.Row, y []float64, idx []int) ([]dataset.Row, []float64) {
	r := make([]dataset.Row, len(idx))
	l := make([]float64, len(idx))
	for i, j := range idx {
		r[i], l[i] = rows[j], y[j]
	}
	return r, l
}
