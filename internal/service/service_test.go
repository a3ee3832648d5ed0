package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refset/telco-churn-scoring/internal/dataset"
	"github.com/refset/telco-churn-scoring/internal/model"
	"github.com/refset/telco-churn-scoring/internal/risk"
	"github.com/refset/telco-churn-scoring/internal/schema"
	"github.com/refset/telco-churn-scoring/internal/scoring"
	"github.com/refset/telco-churn-scoring/internal/storage"
)

var names = Names{Model: "models/model.json", Features: "processed/features.csv"}

// monthlyClassifier scores a row as MonthlyCharges/200.
type monthlyClassifier struct{}

func (monthlyClassifier) Features() []string { return []string{schema.ColMonthlyCharges} }

func (monthlyClassifier) PredictProbability(row dataset.Row) (float64, error) {
	m, _ := row.Get(schema.ColMonthlyCharges).Float()
	return m / 200, nil
}

func template() dataset.Row {
	return dataset.Row{
		schema.ColCustomerID:        dataset.String("T-1"),
		schema.ColContract:          dataset.String(schema.MonthToMonth),
		schema.ColMonthlyCharges:    dataset.Number(50),
		schema.ColAnnualizedRevenue: dataset.Number(600),
	}
}

// constantModel returns an artifact that always predicts sigmoid(bias).
func constantModel(t *testing.T, version string, bias float64) []byte {
	t.Helper()
	m, err := model.FromArtifact(model.Artifact{
		Version: version,
		Numeric: []string{schema.ColMonthlyCharges},
		Medians: []float64{0},
		Means:   []float64{0},
		Scales:  []float64{1},
		Weights: []float64{0},
		Bias:    bias,
	})
	require.NoError(t, err)
	data, err := m.Encode()
	require.NoError(t, err)
	return data
}

func seededStore(t *testing.T) *storage.FileStore {
	t.Helper()
	ctx := context.Background()
	store := storage.NewFileStore(t.TempDir())

	features := dataset.NewTable(schema.ColCustomerID, schema.ColMonthlyCharges, schema.ColChurnFlag)
	features.Append(dataset.Row{
		schema.ColCustomerID:     dataset.String("7590-VHVEG"),
		schema.ColMonthlyCharges: dataset.Number(29.85),
		schema.ColChurnFlag:      dataset.Int(0),
	})
	require.NoError(t, storage.SaveTable(ctx, store, names.Features, features))
	require.NoError(t, store.Save(ctx, names.Model, constantModel(t, "v1", 0)))
	return store
}

func TestPredict_NotLoaded(t *testing.T) {
	svc := New(schema.Telco(), nil, names, 1, nil)

	assert.False(t, svc.Ready())
	_, err := svc.Predict(context.Background(), nil)
	assert.ErrorIs(t, err, scoring.ErrModelNotLoaded)
}

func TestPredict(t *testing.T) {
	svc := New(schema.Telco(), nil, names, 1, nil)
	svc.Use(monthlyClassifier{}, template(), "test")

	p, err := svc.Predict(context.Background(), map[string]dataset.Value{
		schema.ColMonthlyCharges: dataset.Number(160),
		"NotAColumn":             dataset.String("x"),
		schema.ColChurn:          dataset.String(schema.Yes),
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.8, p.ChurnProbability, 1e-12)
	assert.Equal(t, risk.High, p.RiskSegment)
	assert.InDelta(t, 0.8*160*12, p.RevenueAtRisk, 1e-9)
	assert.Equal(t, []string{schema.ColChurn, "NotAColumn"}, p.IgnoredFields)
	assert.Equal(t, "test", p.ModelVersion)
}

func TestPredict_EmptyOverridesScoresTemplate(t *testing.T) {
	svc := New(schema.Telco(), nil, names, 1, nil)
	svc.Use(monthlyClassifier{}, template(), "test")

	p, err := svc.Predict(context.Background(), nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, p.ChurnProbability, 1e-12)
	assert.Equal(t, risk.Low, p.RiskSegment)
	assert.Empty(t, p.IgnoredFields)
}

func TestPredict_InvalidOverride(t *testing.T) {
	svc := New(schema.Telco(), nil, names, 1, nil)
	svc.Use(monthlyClassifier{}, template(), "test")

	_, err := svc.Predict(context.Background(), map[string]dataset.Value{
		schema.ColContract: dataset.String("Lifetime"),
	})
	assert.ErrorIs(t, err, schema.ErrInvalidOverride)
}

func TestLoad(t *testing.T) {
	store := seededStore(t)
	svc := New(schema.Telco(), store, names, 2, nil)

	require.NoError(t, svc.Load(context.Background()))
	assert.True(t, svc.Ready())
	assert.Equal(t, "v1", svc.Version())
	assert.False(t, svc.LoadedAt().IsZero())

	p, err := svc.Predict(context.Background(), map[string]dataset.Value{
		schema.ColMonthlyCharges: dataset.Number(100),
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p.ChurnProbability, 1e-12)
	assert.Equal(t, risk.Medium, p.RiskSegment)
	assert.InDelta(t, 600.0, p.RevenueAtRisk, 1e-9)
}

func TestLoad_MissingArtifacts(t *testing.T) {
	store := storage.NewFileStore(t.TempDir())
	svc := New(schema.Telco(), store, names, 1, nil)

	err := svc.Load(context.Background())
	assert.ErrorIs(t, err, scoring.ErrModelNotLoaded)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.False(t, svc.Ready())
}

func TestReload_SwapsModel(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	svc := New(schema.Telco(), store, names, 1, nil)
	require.NoError(t, svc.Load(ctx))

	require.NoError(t, store.Save(ctx, names.Model, constantModel(t, "v2", 3)))
	version, err := svc.Reload(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", version)

	p, err := svc.Predict(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, risk.High, p.RiskSegment)
}

func TestReload_FailureKeepsCurrent(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	svc := New(schema.Telco(), store, names, 1, nil)
	require.NoError(t, svc.Load(ctx))

	require.NoError(t, store.Save(ctx, names.Model, []byte("{not json")))
	version, err := svc.Reload(ctx)
	assert.ErrorIs(t, err, scoring.ErrModelNotLoaded)
	assert.Equal(t, "v1", version)
	assert.Equal(t, "v1", svc.Version())
}

func TestScoreTable(t *testing.T) {
	svc := New(schema.Telco(), nil, names, 3, nil)
	svc.Use(monthlyClassifier{}, template(), "test")

	features := dataset.NewTable(schema.ColCustomerID, schema.ColMonthlyCharges, schema.ColAnnualizedRevenue)
	features.Append(dataset.Row{
		schema.ColCustomerID:        dataset.String("A"),
		schema.ColMonthlyCharges:    dataset.Number(100),
		schema.ColAnnualizedRevenue: dataset.Number(1200),
	})
	features.Append(dataset.Row{schema.ColCustomerID: dataset.String("B")})
	features.Append(dataset.Row{
		schema.ColCustomerID:        dataset.String("C"),
		schema.ColMonthlyCharges:    dataset.Number(20),
		schema.ColAnnualizedRevenue: dataset.Number(240),
	})

	scored, err := svc.ScoreTable(context.Background(), features)
	require.NoError(t, err)
	assert.Equal(t, 1, scored.Skipped)
	assert.ErrorIs(t, scored.Err, scoring.ErrSchemaMismatch)
	require.Len(t, scored.Customers, 2)

	a, c := scored.Customers[0], scored.Customers[1]
	assert.Equal(t, "A", a.CustomerID)
	assert.Equal(t, risk.Medium, a.RiskSegment)
	assert.InDelta(t, 600.0, a.RevenueAtRisk, 1e-9)
	assert.Equal(t, 1200.0, a.AnnualizedRevenue)
	assert.Equal(t, "C", c.CustomerID)
	assert.Equal(t, risk.VeryLow, c.RiskSegment)

	export := ExportTable(scored.Customers)
	assert.Equal(t, ExportColumns, export.Columns)
	assert.Equal(t, 2, export.Len())
	assert.Equal(t, "Medium Risk", export.Rows[0].Get(ColRiskSegment).Text())
}

func TestScoreTable_NothingScored(t *testing.T) {
	svc := New(schema.Telco(), nil, names, 1, nil)
	svc.Use(monthlyClassifier{}, template(), "test")

	features := dataset.NewTable(schema.ColCustomerID)
	features.Append(dataset.Row{schema.ColCustomerID: dataset.String("A")})

	_, err := svc.ScoreTable(context.Background(), features)
	assert.True(t, errors.Is(err, scoring.ErrSchemaMismatch))
}

func TestPredict_NonFiniteOverride(t *testing.T) {
	svc := New(schema.Telco(), nil, names, 1, nil)
	svc.Use(monthlyClassifier{}, template(), "test")

	for _, v := range []string{"Inf", "-Infinity", "NaN"} {
		_, err := svc.Predict(context.Background(), map[string]dataset.Value{
			schema.ColMonthlyCharges: dataset.String(v),
		})
		assert.ErrorIs(t, err, schema.ErrInvalidOverride, v)
	}
}
