package materialize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refset/telco-churn-scoring/internal/dataset"
	"github.com/refset/telco-churn-scoring/internal/schema"
)

func template() dataset.Row {
	return dataset.Row{
		schema.ColCustomerID:     dataset.String("7590-VHVEG"),
		schema.ColTenure:         dataset.Int(1),
		schema.ColTenureBucket:   dataset.String("1-12"),
		schema.ColMonthlyCharges: dataset.Number(29.85),
		schema.ColContract:       dataset.String(schema.MonthToMonth),
	}
}

func TestMaterialize_EmptyOverridesIsIdentity(t *testing.T) {
	tpl := template()
	p, err := schema.Telco().Partition(nil)
	require.NoError(t, err)

	assert.True(t, tpl.Equal(Materialize(tpl, p)))
}

func TestMaterialize_UnknownKeysIgnored(t *testing.T) {
	reg := schema.Telco()
	tpl := template()

	p, err := reg.Partition(map[string]dataset.Value{
		"NotAColumn":             dataset.Int(5),
		schema.ColMonthlyCharges: dataset.Int(90),
	})
	require.NoError(t, err)

	row := Materialize(tpl, p)
	assert.True(t, row.Get(schema.ColMonthlyCharges).Equal(dataset.Int(90)))
	assert.False(t, row.Has("NotAColumn"))
	assert.Len(t, row, len(tpl))
	assert.Equal(t, []string{"NotAColumn"}, p.Ignored)
}

func TestMaterialize_DoesNotMutateTemplate(t *testing.T) {
	tpl := template()
	p := schema.Partial{Values: map[string]dataset.Value{schema.ColContract: dataset.String("Two year")}}

	row := Materialize(tpl, p)
	assert.Equal(t, "Two year", row.Get(schema.ColContract).Text())
	assert.Equal(t, schema.MonthToMonth, tpl.Get(schema.ColContract).Text())
}

func TestMaterialize_SkipsRegisteredColumnsAbsentFromTemplate(t *testing.T) {
	tpl := template()
	p := schema.Partial{Values: map[string]dataset.Value{schema.ColTotalCharges: dataset.Int(100)}}

	row := Materialize(tpl, p)
	assert.False(t, row.Has(schema.ColTotalCharges))
	assert.True(t, tpl.Equal(row))
}

func TestMaterialize_DerivedColumnsAreStale(t *testing.T) {
	p := schema.Partial{Values: map[string]dataset.Value{schema.ColTenure: dataset.Int(70)}}

	row := Materialize(template(), p)
	assert.True(t, row.Get(schema.ColTenure).Equal(dataset.Int(70)))
	assert.Equal(t, "1-12", row.Get(schema.ColTenureBucket).Text())
}

func TestTemplate(t *testing.T) {
	reg := schema.Telco()
	tbl := dataset.NewTable(schema.ColCustomerID, schema.ColChurn, schema.ColChurnFlag)
	tbl.Append(dataset.Row{
		schema.ColCustomerID: dataset.String("A"),
		schema.ColChurn:      dataset.String(schema.No),
		schema.ColChurnFlag:  dataset.Int(0),
	})
	tbl.Append(dataset.Row{schema.ColCustomerID: dataset.String("B")})

	tpl, err := Template(reg, tbl)
	require.NoError(t, err)
	assert.Equal(t, "A", tpl.Get(schema.ColCustomerID).Text())
	assert.False(t, tpl.Has(schema.ColChurn))
	assert.False(t, tpl.Has(schema.ColChurnFlag))
	assert.True(t, tbl.Rows[0].Has(schema.ColChurn), "feature table must not change")

	_, err = Template(reg, dataset.NewTable())
	assert.ErrorIs(t, err, ErrEmptyFeatureTable)
}
