package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refset/telco-churn-scoring/internal/dataset"
	"github.com/refset/telco-churn-scoring/internal/schema"
)

func TestFileStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())

	require.NoError(t, s.Save(ctx, "models/model.json", []byte(`{"v":1}`)))
	require.NoError(t, s.Save(ctx, "models/model.json", []byte(`{"v":2}`)))

	body, err := s.Load(ctx, "models/model.json")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(body))

	entries, err := os.ReadDir(filepath.Join(s.Root(), "models"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestFileStore_NotFound(t *testing.T) {
	_, err := NewFileStore(t.TempDir()).Load(context.Background(), "processed/features.csv")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_RejectsEscapingNames(t *testing.T) {
	s := NewFileStore(t.TempDir())
	for _, name := range []string{"", "../secret", "/etc/passwd", "a/../../b"} {
		assert.Error(t, s.Save(context.Background(), name, nil), name)
	}
}

func TestTableRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())

	tbl := dataset.NewTable(schema.ColCustomerID, schema.ColTenureBucket, schema.ColMonthlyCharges)
	tbl.Append(dataset.Row{
		schema.ColCustomerID:     dataset.String("A"),
		schema.ColTenureBucket:   dataset.String("0"),
		schema.ColMonthlyCharges: dataset.Number(29.85),
	})
	require.NoError(t, SaveTable(ctx, s, "processed/features.csv", tbl))

	back, err := LoadTable(ctx, s, "processed/features.csv", schema.Telco())
	require.NoError(t, err)
	require.Equal(t, 1, back.Len())
	assert.True(t, back.Rows[0].Equal(tbl.Rows[0]))
	assert.True(t, back.Rows[0].Get(schema.ColTenureBucket).Equal(dataset.String("0")), "categorical stays a string")
}

func TestJSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())

	require.NoError(t, SaveJSON(ctx, s, "reports/metrics.json", map[string]float64{"roc_auc": 0.84}))

	var got map[string]float64
	require.NoError(t, LoadJSON(ctx, s, "reports/metrics.json", &got))
	assert.Equal(t, 0.84, got["roc_auc"])

	assert.ErrorIs(t, LoadJSON(ctx, s, "reports/none.json", &got), ErrNotFound)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("CHURN_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("CHURN_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	s, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(ctx, "test/blob", []byte("one")))
	require.NoError(t, s.Save(ctx, "test/blob", []byte("two")))

	body, err := s.Load(ctx, "test/blob")
	require.NoError(t, err)
	assert.Equal(t, "two", string(body))

	_, err = s.Load(ctx, "test/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
