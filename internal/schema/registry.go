// Package schema is the single source of truth for the customer feature table:
// which columns exist, in which order, of which kind, and what value stands in
// when one is absent.
package schema

import (
	"fmt"

	"github.com/refset/telco-churn-scoring/internal/dataset"
)

// Role classifies what a column is used for.
type Role uint8

const (
	RoleID Role = iota
	RoleRaw
	RoleLabel
	RoleDerived
)

// Column describes one column of the feature table.
type Column struct {
	Name string
	Kind dataset.Kind
	Role Role
	// Enum, when set, is the closed set of allowed categorical values.
	Enum []string
	// Default stands in for a missing value. The zero Value means no default.
	Default dataset.Value
}

// Numeric reports whether the column holds numbers.
func (c Column) Numeric() bool { return c.Kind == dataset.KindNumber }

// Allows reports whether v is an acceptable categorical value for the column.
func (c Column) Allows(v string) bool {
	if len(c.Enum) == 0 {
		return true
	}
	for _, e := range c.Enum {
		if e == v {
			return true
		}
	}
	return false
}

// Registry is an ordered, immutable set of columns.
type Registry struct {
	columns []Column
	index   map[string]int
}

// New builds a registry. Column names must be unique.
func New(columns ...Column) (*Registry, error) {
	r := &Registry{
		columns: append([]Column(nil), columns...),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range r.columns {
		if c.Name == "" {
			return nil, fmt.Errorf("column %d has no name", i)
		}
		if _, dup := r.index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		r.index[c.Name] = i
	}
	return r, nil
}

// Telco returns the canonical registry of the telco churn feature table.
func Telco() *Registry {
	num := func(name string, role Role) Column {
		return Column{Name: name, Kind: dataset.KindNumber, Role: role}
	}
	cat := func(name string, role Role, enum []string) Column {
		return Column{Name: name, Kind: dataset.KindString, Role: role, Enum: enum}
	}

	cols := []Column{
		cat(ColCustomerID, RoleID, nil),
		cat(ColGender, RoleRaw, genders),
		num(ColSeniorCitizen, RoleRaw),
		cat(ColPartner, RoleRaw, yesNo),
		cat(ColDependents, RoleRaw, yesNo),
		num(ColTenure, RoleRaw),
		cat(ColPhoneService, RoleRaw, yesNo),
		cat(ColMultipleLines, RoleRaw, multipleLines),
		cat(ColInternetService, RoleRaw, internetService),
	}
	for _, a := range AddOns {
		c := cat(a, RoleRaw, addOnValues)
		c.Default = dataset.String(No)
		cols = append(cols, c)
	}
	monthly := num(ColMonthlyCharges, RoleRaw)
	monthly.Default = dataset.Int(0)
	cols = append(cols,
		cat(ColContract, RoleRaw, contracts),
		cat(ColPaperlessBilling, RoleRaw, yesNo),
		cat(ColPaymentMethod, RoleRaw, paymentMethods),
		monthly,
		num(ColTotalCharges, RoleRaw),
		cat(ColChurn, RoleLabel, yesNo),
		num(ColChurnFlag, RoleLabel),
		cat(ColTenureBucket, RoleDerived, TenureBuckets),
		num(ColIsMonthToMonth, RoleDerived),
		num(ColIsElectronicCheck, RoleDerived),
		num(ColIsPaperlessBilling, RoleDerived),
		num(ColHasInternet, RoleDerived),
		num(ColHasFiber, RoleDerived),
	)
	for _, a := range AddOns {
		cols = append(cols, num(AddOnIndicator(a), RoleDerived))
	}
	cols = append(cols,
		num(ColAddonCount, RoleDerived),
		num(ColTenureSafe, RoleDerived),
		num(ColAvgMonthlyCharge, RoleDerived),
		num(ColAnnualizedRevenue, RoleDerived),
	)

	r, err := New(cols...)
	if err != nil {
		panic(err)
	}
	return r
}

// Names returns every column name in order.
func (r *Registry) Names() []string {
	return r.names(func(Column) bool { return true })
}

// Lookup finds a column by name.
func (r *Registry) Lookup(name string) (Column, bool) {
	i, ok := r.index[name]
	if !ok {
		return Column{}, false
	}
	return r.columns[i], true
}

// KindOf implements dataset.Typer.
func (r *Registry) KindOf(name string) dataset.Kind {
	c, ok := r.Lookup(name)
	if !ok {
		return dataset.KindMissing
	}
	return c.Kind
}

// IsLabel reports whether name is a target column.
func (r *Registry) IsLabel(name string) bool {
	c, ok := r.Lookup(name)
	return ok && c.Role == RoleLabel
}

// LabelColumns lists the target columns.
func (r *Registry) LabelColumns() []string {
	return r.names(func(c Column) bool { return c.Role == RoleLabel })
}

// FeatureColumns lists every column a scoring row carries: all columns minus
// the labels.
func (r *Registry) FeatureColumns() []string {
	return r.names(func(c Column) bool { return c.Role != RoleLabel })
}

// ModelInputs lists the columns a classifier is fit on: features minus the
// customer identifier.
func (r *Registry) ModelInputs() []string {
	return r.names(func(c Column) bool { return c.Role == RoleRaw || c.Role == RoleDerived })
}

// DerivedColumns lists the engineered columns in the order the builder adds them.
func (r *Registry) DerivedColumns() []string {
	return r.names(func(c Column) bool { return c.Role == RoleDerived })
}

// Default returns the registered fallback for a missing value in name, or a
// missing value when the column has none.
func (r *Registry) Default(name string) dataset.Value {
	c, ok := r.Lookup(name)
	if !ok {
		return dataset.Missing()
	}
	return c.Default
}

// Resolve returns row[name], substituting the column default when missing.
func (r *Registry) Resolve(row dataset.Row, name string) dataset.Value {
	v := row.Get(name)
	if v.IsMissing() {
		return r.Default(name)
	}
	return v
}

// MissingColumns lists registry columns in want that the table header lacks.
func (r *Registry) MissingColumns(t *dataset.Table, want []string) []string {
	var missing []string
	for _, c := range want {
		if !t.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	return missing
}

func (r *Registry) names(keep func(Column) bool) []string {
	out := make([]string, 0, len(r.columns))
	for _, c := range r.columns {
		if keep(c) {
			out = append(out, c.Name)
		}
	}
	return out
}

// RowID identifies a row in messages: its customer id, or its 1-based
// position when the id is missing.
func RowID(row dataset.Row, index int) string {
	if id := row.Get(ColCustomerID); !id.IsMissing() {
		return id.Text()
	}
	return fmt.Sprintf("row %d", index+1)
}
