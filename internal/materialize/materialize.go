// Package materialize completes partial scoring requests from a template row.
package materialize

import (
	"errors"

	"github.com/refset/telco-churn-scoring/internal/dataset"
	"github.com/refset/telco-churn-scoring/internal/schema"
)

// ErrEmptyFeatureTable is returned when no template can be drawn.
var ErrEmptyFeatureTable = errors.New("feature table has no rows")

// Template takes the first row of the feature table, without label columns,
// as the skeleton for partial requests.
func Template(reg *schema.Registry, featureTable *dataset.Table) (dataset.Row, error) {
	if featureTable.Len() == 0 {
		return nil, ErrEmptyFeatureTable
	}
	return featureTable.Rows[0].Without(reg.LabelColumns()...), nil
}

// Materialize returns a copy of template with the partial's values applied.
// Keys the template does not carry are skipped, so the result always has
// exactly the template's columns. Engineered columns are not recomputed: an
// override of tenure leaves TenureBucket as the template had it.
func Materialize(template dataset.Row, partial schema.Partial) dataset.Row {
	row := template.Clone()
	for name, v := range partial.Values {
		if row.Has(name) {
			row[name] = v
		}
	}
	return row
}
