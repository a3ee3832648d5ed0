// Package clean normalizes a raw customer extract into the clean table the
// feature builder consumes.
package clean

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/refset/telco-churn-scoring/internal/dataset"
	"github.com/refset/telco-churn-scoring/internal/schema"
)

// ErrLabelMapping is matched by every LabelMappingError.
var ErrLabelMapping = errors.New("unrecognized churn label")

// LabelMappingError reports a churn label that is neither Yes nor No.
type LabelMappingError struct {
	RowID string
	Value dataset.Value
}

func (e *LabelMappingError) Error() string {
	return fmt.Sprintf("customer %s: unrecognized churn label %s", e.RowID, e.Value)
}

func (e *LabelMappingError) Is(target error) bool {
	return target == ErrLabelMapping
}

// Result is the outcome of one cleaning pass.
type Result struct {
	Table *dataset.Table
	// Dropped counts rows excluded because TotalCharges could not be determined.
	Dropped int
	// Coerced counts, per column, values that failed numeric coercion and
	// became missing.
	Coerced map[string]int
	// Rejected holds rows excluded for an unmappable churn label.
	Rejected []*LabelMappingError
}

// Cleaner applies the registry's raw column types to a raw extract.
type Cleaner struct {
	registry *schema.Registry
}

// New creates a Cleaner.
func New(registry *schema.Registry) *Cleaner {
	return &Cleaner{registry: registry}
}

var labelFlags = map[string]int{schema.Yes: 1, schema.No: 0}

// Clean trims column names, coerces numeric columns, drops rows without a
// total charge and binarizes the churn label. raw is not modified.
func (c *Cleaner) Clean(raw *dataset.Table) (*Result, error) {
	columns, rename, err := normalizeColumns(raw.Columns)
	if err != nil {
		return nil, err
	}

	out := dataset.NewTable(columns...)
	if !out.HasColumn(schema.ColTotalCharges) {
		return nil, fmt.Errorf("raw table has no %s column", schema.ColTotalCharges)
	}
	labelled := out.HasColumn(schema.ColChurn)
	if labelled {
		out.AddColumn(schema.ColChurnFlag)
	}

	var numeric []string
	for _, name := range columns {
		if col, ok := c.registry.Lookup(name); ok && col.Numeric() && col.Role == schema.RoleRaw {
			numeric = append(numeric, name)
		}
	}

	res := &Result{Table: out, Coerced: make(map[string]int)}
	for i, src := range raw.Rows {
		row := make(dataset.Row, len(columns)+1)
		for k, v := range src {
			row[rename[k]] = v
		}

		for _, name := range numeric {
			v, ok := toNumber(row.Get(name))
			if !ok {
				res.Coerced[name]++
			}
			row[name] = v
		}

		if row.Get(schema.ColTotalCharges).IsMissing() {
			res.Dropped++
			continue
		}

		if labelled {
			label := row.Get(schema.ColChurn)
			s, _ := label.Str()
			flag, ok := labelFlags[s]
			if !ok {
				res.Rejected = append(res.Rejected, &LabelMappingError{RowID: schema.RowID(row, i), Value: label})
				continue
			}
			row[schema.ColChurnFlag] = dataset.Int(flag)
		}

		out.Append(row)
	}

	return res, nil
}

func normalizeColumns(columns []string) ([]string, map[string]string, error) {
	out := make([]string, len(columns))
	rename := make(map[string]string, len(columns))
	seen := make(map[string]bool, len(columns))
	for i, c := range columns {
		name := strings.TrimSpace(c)
		if seen[name] {
			return nil, nil, fmt.Errorf("column %q appears twice after trimming", name)
		}
		seen[name] = true
		out[i] = name
		rename[c] = name
	}
	return out, rename, nil
}

// toNumber coerces v to a number. A value that is present but not numeric
// becomes missing and reports false.
func toNumber(v dataset.Value) (dataset.Value, bool) {
	if v.IsMissing() {
		return v, true
	}
	if f, ok := v.Float(); ok {
		if math.IsInf(f, 0) {
			return dataset.Missing(), false
		}
		return v, true
	}
	s, _ := v.Str()
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return dataset.Missing(), false
	}
	return dataset.Number(f), true
}
