// Package features derives the engineered attributes of the churn feature
// table from a clean customer table.
package features

import (
	"errors"
	"fmt"

	"github.com/refset/telco-churn-scoring/internal/dataset"
	"github.com/refset/telco-churn-scoring/internal/schema"
)

// ErrTenureOutOfRange marks a tenure that is missing or outside [0,120]
// months. Such rows are not clamped into a bucket.
var ErrTenureOutOfRange = errors.New("tenure outside [0,120]")

// ExcludedRow is a clean row left out of the feature table.
type ExcludedRow struct {
	RowID string
	Err   error
}

func (e *ExcludedRow) Error() string {
	return fmt.Sprintf("customer %s: %v", e.RowID, e.Err)
}

func (e *ExcludedRow) Unwrap() error { return e.Err }

// Result is the outcome of one feature build.
type Result struct {
	Table *dataset.Table
	// Excluded holds rows whose tenure could not be bucketed.
	Excluded []*ExcludedRow
}

var required = []string{
	schema.ColTenure,
	schema.ColMonthlyCharges,
	schema.ColTotalCharges,
	schema.ColContract,
	schema.ColPaymentMethod,
	schema.ColPaperlessBilling,
	schema.ColInternetService,
}

// Builder appends the registry's derived columns to clean tables.
type Builder struct {
	registry *schema.Registry
}

// New creates a Builder.
func New(registry *schema.Registry) *Builder {
	return &Builder{registry: registry}
}

// Build returns a new table holding every clean column plus the derived ones.
// Rows that cannot be derived are excluded and reported in the Result; only
// missing columns fail the build. It is a pure function of its input.
func (b *Builder) Build(clean *dataset.Table) (*Result, error) {
	need := append(append([]string(nil), required...), schema.AddOns...)
	if missing := b.registry.MissingColumns(clean, need); len(missing) > 0 {
		return nil, fmt.Errorf("clean table is missing columns %v", missing)
	}

	out := dataset.NewTable(clean.Columns...)
	for _, c := range b.registry.DerivedColumns() {
		out.AddColumn(c)
	}

	res := &Result{Table: out}
	for i, src := range clean.Rows {
		row, err := b.derive(src)
		if err != nil {
			res.Excluded = append(res.Excluded, &ExcludedRow{RowID: schema.RowID(src, i), Err: err})
			continue
		}
		out.Append(row)
	}
	return res, nil
}

func (b *Builder) derive(src dataset.Row) (dataset.Row, error) {
	row := src.Clone()

	tenure, ok := row.Get(schema.ColTenure).Float()
	if !ok {
		return nil, fmt.Errorf("%w: tenure is missing", ErrTenureOutOfRange)
	}
	bucket, err := TenureBucket(tenure)
	if err != nil {
		return nil, err
	}
	row[schema.ColTenureBucket] = dataset.String(bucket)

	row[schema.ColIsMonthToMonth] = flag(equals(row, schema.ColContract, schema.MonthToMonth))
	row[schema.ColIsElectronicCheck] = flag(equals(row, schema.ColPaymentMethod, schema.ElectronicCheck))
	row[schema.ColIsPaperlessBilling] = flag(equals(row, schema.ColPaperlessBilling, schema.Yes))
	internet := row.Get(schema.ColInternetService)
	row[schema.ColHasInternet] = flag(!internet.IsMissing() && !internet.Equal(dataset.String(schema.NoInternet)))
	row[schema.ColHasFiber] = flag(internet.Equal(dataset.String(schema.FiberOptic)))

	count := 0
	for _, a := range schema.AddOns {
		v := b.registry.Resolve(row, a)
		row[a] = v
		subscribed := v.Equal(dataset.String(schema.Yes))
		if subscribed {
			count++
		}
		row[schema.AddOnIndicator(a)] = flag(subscribed)
	}
	row[schema.ColAddonCount] = dataset.Int(count)

	monthly := row.Get(schema.ColMonthlyCharges)
	row[schema.ColTenureSafe] = dataset.Number(tenure)
	row[schema.ColAvgMonthlyCharge] = monthly
	if tenure == 0 {
		row[schema.ColTenureSafe] = dataset.Missing()
	} else if total, ok := row.Get(schema.ColTotalCharges).Float(); ok {
		row[schema.ColAvgMonthlyCharge] = dataset.Number(total / tenure)
	}

	row[schema.ColAnnualizedRevenue] = dataset.Missing()
	if m, ok := monthly.Float(); ok {
		row[schema.ColAnnualizedRevenue] = dataset.Number(m * 12)
	}

	return row, nil
}

// TenureBucket places a tenure in months into its bucket. Bucket i covers
// the half-open interval (TenureEdges[i], TenureEdges[i+1]].
func TenureBucket(tenure float64) (string, error) {
	if tenure < 0 || tenure > 120 {
		return "", fmt.Errorf("%w: %v", ErrTenureOutOfRange, tenure)
	}
	edges := schema.TenureEdges
	for i, label := range schema.TenureBuckets {
		if tenure > edges[i] && tenure <= edges[i+1] {
			return label, nil
		}
	}
	return "", fmt.Errorf("%w: %v", ErrTenureOutOfRange, tenure)
}

// BaseColumns is the customer base export handed to BI tooling.
var BaseColumns = []string{
	schema.ColCustomerID, schema.ColChurn, schema.ColChurnFlag, schema.ColTenure, schema.ColTenureBucket,
	schema.ColContract, schema.ColInternetService, schema.ColPaymentMethod, schema.ColPaperlessBilling,
	schema.ColMonthlyCharges, schema.ColTotalCharges, schema.ColAnnualizedRevenue,
	schema.ColAddonCount, schema.ColIsMonthToMonth, schema.ColIsElectronicCheck, schema.ColHasFiber,
}

// BaseProjection selects the customer base export columns the table has.
func BaseProjection(featureTable *dataset.Table) *dataset.Table {
	return featureTable.Select(BaseColumns...)
}

func equals(row dataset.Row, column, want string) bool {
	return row.Get(column).Equal(dataset.String(want))
}

func flag(b bool) dataset.Value {
	if b {
		return dataset.Int(1)
	}
	return dataset.Int(0)
}
