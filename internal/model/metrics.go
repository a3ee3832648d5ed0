package model

import (
	"fmt"
	"sort"

	"github.com/refset/telco-churn-scoring/internal/dataset"
)

// Metrics is the evaluation report written next to a trained model.
type Metrics struct {
	ModelVersion    string    `json:"model_version"`
	ROCAUC          float64   `json:"roc_auc"`
	Accuracy        float64   `json:"accuracy"`
	Precision       float64   `json:"precision"`
	Recall          float64   `json:"recall"`
	F1              float64   `json:"f1"`
	ConfusionMatrix [2][2]int `json:"confusion_matrix"`
	NTrain          int       `json:"n_train"`
	NTest           int       `json:"n_test"`
	FeaturesUsed    []string  `json:"features_used"`
	CategoricalCols []string  `json:"categorical_cols"`
	NumericCols     []string  `json:"numeric_cols"`
	Threshold       float64   `json:"threshold"`
}

// Evaluate scores rows and compares them with the labels. The confusion
// matrix is laid out [[tn, fp], [fn, tp]].
func Evaluate(clf *LogisticRegression, rows []dataset.Row, y []float64, threshold float64) (*Metrics, error) {
	m := &Metrics{NTest: len(rows), Threshold: threshold}
	if len(rows) == 0 {
		return m, nil
	}

	probs := make([]float64, len(rows))
	for i, r := range rows {
		p, err := clf.PredictProbability(r)
		if err != nil {
			return nil, fmt.Errorf("evaluate row %d: %w", i, err)
		}
		probs[i] = p

		actual, predicted := 0, 0
		if y[i] == 1 {
			actual = 1
		}
		if p >= threshold {
			predicted = 1
		}
		m.ConfusionMatrix[actual][predicted]++
	}

	tn, fp := float64(m.ConfusionMatrix[0][0]), float64(m.ConfusionMatrix[0][1])
	fn, tp := float64(m.ConfusionMatrix[1][0]), float64(m.ConfusionMatrix[1][1])
	m.Accuracy = (tp + tn) / float64(len(rows))
	m.Precision = ratio(tp, tp+fp)
	m.Recall = ratio(tp, tp+fn)
	m.F1 = ratio(2*m.Precision*m.Recall, m.Precision+m.Recall)
	m.ROCAUC = ROCAUC(probs, y)
	return m, nil
}

// ROCAUC computes the area under the ROC curve from ranks, averaging tied
// scores. It returns 0 when only one class is present.
func ROCAUC(scores, y []float64) float64 {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	ranks := make([]float64, len(scores))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && scores[idx[j+1]] == scores[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}

	var pos, neg, rankSum float64
	for i, l := range y {
		if l == 1 {
			pos++
			rankSum += ranks[i]
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0
	}
	return (rankSum - pos*(pos+1)/2) / (pos * neg)
}

func ratio(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
