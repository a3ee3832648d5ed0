package dataset

// Row maps column names to values.
type Row map[string]Value

// Get returns the value for name, or missing when the column is absent.
func (r Row) Get(name string) Value {
	return r[name]
}

// Has reports whether the row carries the column at all.
func (r Row) Has(name string) bool {
	_, ok := r[name]
	return ok
}

// Clone returns an independent copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Equal reports whether both rows have the same column set and values.
func (r Row) Equal(o Row) bool {
	if len(r) != len(o) {
		return false
	}
	for k, v := range r {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Without returns a copy of the row with the named columns removed.
func (r Row) Without(names ...string) Row {
	out := r.Clone()
	for _, n := range names {
		delete(out, n)
	}
	return out
}

// Table is an ordered set of columns and the rows carrying them.
type Table struct {
	Columns []string
	Rows    []Row
}

// NewTable creates an empty table with the given column order.
func NewTable(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

func (t *Table) Len() int { return len(t.Rows) }

// HasColumn reports whether the column is part of the table header.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// AddColumn appends name to the header if it is not present yet.
func (t *Table) AddColumn(name string) {
	if !t.HasColumn(name) {
		t.Columns = append(t.Columns, name)
	}
}

// Append adds a row. The row is stored as is.
func (t *Table) Append(r Row) {
	t.Rows = append(t.Rows, r)
}

// Clone deep-copies the table.
func (t *Table) Clone() *Table {
	out := &Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([]Row, len(t.Rows)),
	}
	for i, r := range t.Rows {
		out.Rows[i] = r.Clone()
	}
	return out
}

// Select projects the table onto the given columns, skipping those the table
// does not have.
func (t *Table) Select(columns ...string) *Table {
	var keep []string
	for _, c := range columns {
		if t.HasColumn(c) {
			keep = append(keep, c)
		}
	}

	out := NewTable(keep...)
	for _, r := range t.Rows {
		nr := make(Row, len(keep))
		for _, c := range keep {
			nr[c] = r.Get(c)
		}
		out.Append(nr)
	}
	return out
}

// Column returns every value of one column in row order.
func (t *Table) Column(name string) []Value {
	out := make([]Value, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Get(name)
	}
	return out
}
