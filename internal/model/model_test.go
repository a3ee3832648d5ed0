package model

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refset/telco-churn-scoring/internal/dataset"
	"github.com/refset/telco-churn-scoring/internal/schema"
)

// separable builds customers whose churn is decided by monthly charge, with
// the contract type agreeing.
func separable(n int) *dataset.Table {
	t := dataset.NewTable(schema.ColCustomerID, schema.ColMonthlyCharges, schema.ColContract, schema.ColChurn, schema.ColChurnFlag)
	for i := 0; i < n; i++ {
		monthly := 20 + float64(i)*80/float64(n-1)
		contract, label, flag := "Two year", schema.No, 0
		if monthly > 60 {
			contract, label, flag = schema.MonthToMonth, schema.Yes, 1
		}
		t.Append(dataset.Row{
			schema.ColCustomerID:     dataset.String(fmt.Sprintf("C%03d", i)),
			schema.ColMonthlyCharges: dataset.Number(monthly),
			schema.ColContract:       dataset.String(contract),
			schema.ColChurn:          dataset.String(label),
			schema.ColChurnFlag:      dataset.Int(flag),
		})
	}
	return t
}

func sampleRow(monthly dataset.Value, contract dataset.Value) dataset.Row {
	return dataset.Row{schema.ColMonthlyCharges: monthly, schema.ColContract: contract}
}

func fitSeparable(t *testing.T) *LogisticRegression {
	t.Helper()
	tbl := separable(40)
	y, err := Labels(tbl)
	require.NoError(t, err)

	clf, err := Fit(context.Background(), tbl.Rows, y,
		[]string{schema.ColMonthlyCharges}, []string{schema.ColContract}, DefaultConfig())
	require.NoError(t, err)
	return clf
}

func TestFit_LearnsSeparableData(t *testing.T) {
	clf := fitSeparable(t)

	high, err := clf.PredictProbability(sampleRow(dataset.Number(100), dataset.String(schema.MonthToMonth)))
	require.NoError(t, err)
	low, err := clf.PredictProbability(sampleRow(dataset.Number(20), dataset.String("Two year")))
	require.NoError(t, err)

	assert.Greater(t, high, 0.5)
	assert.Less(t, low, 0.5)
	assert.Equal(t, []string{schema.ColMonthlyCharges, schema.ColContract}, clf.Features())
	assert.NotEmpty(t, clf.Version())
}

func TestPredict_ImputesAndIgnoresUnknownCategories(t *testing.T) {
	clf := fitSeparable(t)

	p, err := clf.PredictProbability(sampleRow(dataset.Missing(), dataset.Missing()))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, p, 0.0)
	assert.LessOrEqual(t, p, 1.0)

	_, err = clf.PredictProbability(sampleRow(dataset.Number(50), dataset.String("Weekly")))
	assert.NoError(t, err)

	_, err = clf.PredictProbability(dataset.Row{schema.ColContract: dataset.String("One year")})
	assert.ErrorContains(t, err, schema.ColMonthlyCharges)

	_, err = clf.PredictProbability(sampleRow(dataset.String("lots"), dataset.String("One year")))
	assert.ErrorContains(t, err, "expected a number")
}

func TestEncodeDecode_SameProbabilities(t *testing.T) {
	clf := fitSeparable(t)

	data, err := clf.Encode()
	require.NoError(t, err)
	back, err := Decode(data)
	require.NoError(t, err)

	row := sampleRow(dataset.Number(64.5), dataset.String(schema.MonthToMonth))
	want, _ := clf.PredictProbability(row)
	got, err := back.PredictProbability(row)
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1e-12)
	assert.Equal(t, clf.Version(), back.Version())
}

func TestFromArtifact_Validates(t *testing.T) {
	_, err := FromArtifact(Artifact{Numeric: []string{"a"}})
	assert.Error(t, err)

	_, err = FromArtifact(Artifact{Categorical: []string{"c"}, Modes: []string{"x"}, Categories: [][]string{{"x", "y"}}, Weights: []float64{1}})
	assert.ErrorContains(t, err, "weights")

	_, err = Decode([]byte("{"))
	assert.Error(t, err)
}

func TestFit_Errors(t *testing.T) {
	_, err := Fit(context.Background(), nil, nil, nil, nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNoTrainingData)

	_, err = Fit(context.Background(), []dataset.Row{{}}, []float64{1, 0}, nil, nil, DefaultConfig())
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tbl := separable(10)
	y, _ := Labels(tbl)
	_, err = Fit(ctx, tbl.Rows, y, []string{schema.ColMonthlyCharges}, nil, DefaultConfig())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSplit_Stratified(t *testing.T) {
	y := make([]float64, 50)
	for i := 0; i < 10; i++ {
		y[i] = 1
	}

	train, test := Split(y, 0.2, 42)
	assert.Len(t, test, 10)
	assert.Len(t, train, 40)

	pos := 0
	for _, i := range test {
		pos += int(y[i])
	}
	assert.Equal(t, 2, pos)

	train2, test2 := Split(y, 0.2, 42)
	assert.Equal(t, train, train2)
	assert.Equal(t, test, test2)
}

func TestROCAUC(t *testing.T) {
	assert.InDelta(t, 0.75, ROCAUC([]float64{0.1, 0.4, 0.35, 0.8}, []float64{0, 0, 1, 1}), 1e-12)
	assert.InDelta(t, 0.5, ROCAUC([]float64{0.5, 0.5}, []float64{0, 1}), 1e-12)
	assert.Equal(t, 0.0, ROCAUC([]float64{0.2}, []float64{1}))
}

func TestTrain_EndToEnd(t *testing.T) {
	reg := schema.Telco()
	tbl := separable(60)

	clf, metrics, err := Train(context.Background(), reg, tbl, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{schema.ColMonthlyCharges}, metrics.NumericCols)
	assert.Equal(t, []string{schema.ColContract}, metrics.CategoricalCols)
	assert.NotContains(t, clf.Features(), schema.ColCustomerID)
	assert.NotContains(t, clf.Features(), schema.ColChurnFlag)
	assert.Equal(t, 48, metrics.NTrain)
	assert.Equal(t, 12, metrics.NTest)
	assert.Greater(t, metrics.ROCAUC, 0.9)
	assert.Equal(t, clf.Version(), metrics.ModelVersion)

	cm := metrics.ConfusionMatrix
	assert.Equal(t, metrics.NTest, cm[0][0]+cm[0][1]+cm[1][0]+cm[1][1])
}

func TestLabels_Invalid(t *testing.T) {
	_, err := Labels(dataset.NewTable(schema.ColCustomerID))
	assert.Error(t, err)

	tbl := dataset.NewTable(schema.ColChurnFlag)
	tbl.Append(dataset.Row{schema.ColChurnFlag: dataset.Int(2)})
	_, err = Labels(tbl)
	assert.Error(t, err)
}
