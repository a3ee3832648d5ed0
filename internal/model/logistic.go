// Package model trains and serves the churn classifier: a logistic
// regression over median/mode-imputed inputs, with numeric inputs
// standardized and categorical inputs one-hot encoded.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/refset/telco-churn-scoring/internal/dataset"
)

// Artifact is the persisted form of a fitted classifier.
type Artifact struct {
	Version     string     `json:"version"`
	TrainedAt   time.Time  `json:"trained_at"`
	Numeric     []string   `json:"numeric"`
	Categorical []string   `json:"categorical"`
	Medians     []float64  `json:"medians"`
	Means       []float64  `json:"means"`
	Scales      []float64  `json:"scales"`
	Modes       []string   `json:"modes"`
	Categories  [][]string `json:"categories"`
	Weights     []float64  `json:"weights"`
	Bias        float64    `json:"bias"`
}

// LogisticRegression is an immutable fitted classifier.
type LogisticRegression struct {
	art      Artifact
	features []string
	offsets  []int
	catIndex []map[string]int
	width    int
}

// FromArtifact validates an artifact and prepares it for scoring.
func FromArtifact(a Artifact) (*LogisticRegression, error) {
	n, c := len(a.Numeric), len(a.Categorical)
	if len(a.Medians) != n || len(a.Means) != n || len(a.Scales) != n {
		return nil, fmt.Errorf("artifact %s: numeric statistics do not match %d numeric columns", a.Version, n)
	}
	if len(a.Modes) != c || len(a.Categories) != c {
		return nil, fmt.Errorf("artifact %s: categorical statistics do not match %d categorical columns", a.Version, c)
	}

	m := &LogisticRegression{
		art:      a,
		features: append(append([]string(nil), a.Numeric...), a.Categorical...),
		offsets:  make([]int, c),
		catIndex: make([]map[string]int, c),
		width:    n,
	}
	for i, cats := range a.Categories {
		m.offsets[i] = m.width
		m.catIndex[i] = make(map[string]int, len(cats))
		for j, v := range cats {
			m.catIndex[i][v] = j
		}
		m.width += len(cats)
	}
	if len(a.Weights) != m.width {
		return nil, fmt.Errorf("artifact %s: %d weights for %d encoded inputs", a.Version, len(a.Weights), m.width)
	}
	return m, nil
}

// Decode reads a JSON artifact.
func Decode(data []byte) (*LogisticRegression, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode model artifact: %w", err)
	}
	return FromArtifact(a)
}

// Encode writes the JSON artifact.
func (m *LogisticRegression) Encode() ([]byte, error) {
	return json.MarshalIndent(m.art, "", "  ")
}

// Version identifies the fit that produced the classifier.
func (m *LogisticRegression) Version() string { return m.art.Version }

// Features lists numeric then categorical input columns.
func (m *LogisticRegression) Features() []string {
	return append([]string(nil), m.features...)
}

// PredictProbability returns P(churn) for the row. Missing inputs are imputed;
// categories unseen during fitting encode to all zeros.
func (m *LogisticRegression) PredictProbability(row dataset.Row) (float64, error) {
	x, err := m.encode(row)
	if err != nil {
		return 0, err
	}
	return sigmoid(floats.Dot(m.art.Weights, x) + m.art.Bias), nil
}

func (m *LogisticRegression) encode(row dataset.Row) ([]float64, error) {
	x := make([]float64, m.width)
	for i, name := range m.art.Numeric {
		v, ok := row[name]
		if !ok {
			return nil, fmt.Errorf("missing input %s", name)
		}
		f, isNum := v.Float()
		switch {
		case v.IsMissing():
			f = m.art.Medians[i]
		case !isNum:
			return nil, fmt.Errorf("input %s: expected a number, got %q", name, v.Text())
		}
		x[i] = (f - m.art.Means[i]) / m.art.Scales[i]
	}

	for i, name := range m.art.Categorical {
		v, ok := row[name]
		if !ok {
			return nil, fmt.Errorf("missing input %s", name)
		}
		s := v.Text()
		if v.IsMissing() {
			s = m.art.Modes[i]
		}
		if j, known := m.catIndex[i][s]; known {
			x[m.offsets[i]+j] = 1
		}
	}
	return x, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
