package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refset/telco-churn-scoring/internal/dataset"
	"github.com/refset/telco-churn-scoring/internal/schema"
)

// monthlyClassifier scores a row as MonthlyCharges/200 and fails if a label
// column reaches it.
type monthlyClassifier struct{}

func (monthlyClassifier) Features() []string {
	return []string{schema.ColTenure, schema.ColMonthlyCharges}
}

func (monthlyClassifier) PredictProbability(row dataset.Row) (float64, error) {
	if row.Has(schema.ColChurn) || row.Has(schema.ColChurnFlag) {
		return 0, errors.New("label leaked into inference")
	}
	m, _ := row.Get(schema.ColMonthlyCharges).Float()
	return m / 200, nil
}

type constClassifier float64

func (constClassifier) Features() []string { return nil }
func (c constClassifier) PredictProbability(dataset.Row) (float64, error) {
	return float64(c), nil
}

func row(id string, monthly float64) dataset.Row {
	return dataset.Row{
		schema.ColCustomerID:     dataset.String(id),
		schema.ColTenure:         dataset.Int(12),
		schema.ColMonthlyCharges: dataset.Number(monthly),
	}
}

func TestScoreOne(t *testing.T) {
	e := NewEngine(monthlyClassifier{}, schema.Telco(), 1)

	p, err := e.ScoreOne(context.Background(), row("A", 100))
	require.NoError(t, err)
	assert.Equal(t, 0.5, p)
}

func TestScoreOne_StripsLabels(t *testing.T) {
	e := NewEngine(monthlyClassifier{}, schema.Telco(), 1)

	r := row("A", 50)
	r[schema.ColChurn] = dataset.String(schema.Yes)
	r[schema.ColChurnFlag] = dataset.Int(1)

	p, err := e.ScoreOne(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, 0.25, p)
	assert.True(t, r.Has(schema.ColChurnFlag), "caller row must not be modified")
}

func TestScoreOne_ModelNotLoaded(t *testing.T) {
	e := NewEngine(nil, schema.Telco(), 4)

	_, err := e.ScoreOne(context.Background(), row("A", 1))
	assert.ErrorIs(t, err, ErrModelNotLoaded)

	_, err = e.ScoreBatch(context.Background(), []dataset.Row{row("A", 1)})
	assert.ErrorIs(t, err, ErrModelNotLoaded)

	var nilEngine *Engine
	assert.False(t, nilEngine.Loaded())
}

func TestScoreOne_SchemaMismatch(t *testing.T) {
	e := NewEngine(monthlyClassifier{}, schema.Telco(), 1)

	r := row("C-9", 10)
	delete(r, schema.ColTenure)

	_, err := e.ScoreOne(context.Background(), r)
	require.ErrorIs(t, err, ErrSchemaMismatch)

	var sm *SchemaMismatchError
	require.ErrorAs(t, err, &sm)
	assert.Equal(t, "C-9", sm.RowID)
	assert.Equal(t, []string{schema.ColTenure}, sm.Missing)
}

func TestScoreOne_RejectsOutOfRangeProbability(t *testing.T) {
	for _, p := range []float64{-0.1, 1.5, math.NaN()} {
		e := NewEngine(constClassifier(p), schema.Telco(), 1)
		_, err := e.ScoreOne(context.Background(), row("A", 1))
		assert.Error(t, err, "p=%v", p)
	}
}

func TestScoreBatch_OrderIndependentOfWorkers(t *testing.T) {
	var rows []dataset.Row
	for i := 0; i < 257; i++ {
		rows = append(rows, row(fmt.Sprintf("C%d", i), float64(i%200)))
	}

	serial, err := NewEngine(monthlyClassifier{}, schema.Telco(), 1).ScoreBatch(context.Background(), rows)
	require.NoError(t, err)

	for _, workers := range []int{2, 8, 64} {
		parallel, err := NewEngine(monthlyClassifier{}, schema.Telco(), workers).ScoreBatch(context.Background(), rows)
		require.NoError(t, err)
		assert.Equal(t, serial, parallel, "workers=%d", workers)
	}
	assert.Equal(t, float64(5)/200, serial[5])
}

func TestScoreBatch_PartialFailure(t *testing.T) {
	bad := row("BAD", 10)
	delete(bad, schema.ColMonthlyCharges)
	rows := []dataset.Row{row("A", 20), bad, row("B", 40)}

	out, err := NewEngine(monthlyClassifier{}, schema.Telco(), 2).ScoreBatch(context.Background(), rows)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
	assert.ErrorContains(t, err, "BAD")

	require.Len(t, out, 3)
	assert.Equal(t, 0.1, out[0])
	assert.True(t, math.IsNaN(out[1]))
	assert.Equal(t, 0.2, out[2])
}

func TestScoreBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(monthlyClassifier{}, schema.Telco(), 2).ScoreBatch(ctx, []dataset.Row{row("A", 1)})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = NewEngine(monthlyClassifier{}, schema.Telco(), 2).ScoreOne(ctx, row("A", 1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScoreBatch_Empty(t *testing.T) {
	out, err := NewEngine(monthlyClassifier{}, schema.Telco(), 4).ScoreBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
