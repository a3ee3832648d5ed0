package schema

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/refset/telco-churn-scoring/internal/dataset"
)

// ErrInvalidOverride is matched by every InvalidOverrideError.
var ErrInvalidOverride = errors.New("invalid override")

// InvalidOverrideError reports a known column given a value it cannot hold.
type InvalidOverrideError struct {
	Column string
	Value  dataset.Value
	Reason string
}

func (e *InvalidOverrideError) Error() string {
	return fmt.Sprintf("invalid value %s for %s: %s", e.Value, e.Column, e.Reason)
}

func (e *InvalidOverrideError) Is(target error) bool {
	return target == ErrInvalidOverride
}

// Partial is a user-supplied partial record checked against the registry.
// Values only holds registered, label-free columns coerced to their kind.
// Ignored lists the keys that name no scoring column; they are dropped on
// purpose so clients may send fields this version does not know.
type Partial struct {
	Values  map[string]dataset.Value
	Ignored []string
}

// Partition validates overrides against the registry.
func (r *Registry) Partition(overrides map[string]dataset.Value) (Partial, error) {
	p := Partial{Values: make(map[string]dataset.Value, len(overrides))}

	for name, v := range overrides {
		col, ok := r.Lookup(name)
		if !ok || col.Role == RoleLabel {
			p.Ignored = append(p.Ignored, name)
			continue
		}
		cv, err := coerce(col, v)
		if err != nil {
			return Partial{}, err
		}
		p.Values[name] = cv
	}

	sort.Strings(p.Ignored)
	return p, nil
}

func coerce(col Column, v dataset.Value) (dataset.Value, error) {
	if v.IsMissing() {
		return v, nil
	}

	if col.Numeric() {
		f, ok := v.Float()
		if !ok {
			s, _ := v.Str()
			parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return dataset.Value{}, &InvalidOverrideError{Column: col.Name, Value: v, Reason: "expected a number"}
			}
			f = parsed
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return dataset.Value{}, &InvalidOverrideError{Column: col.Name, Value: v, Reason: "expected a finite number"}
		}
		return dataset.Number(f), nil
	}

	s, ok := v.Str()
	if !ok {
		s = v.Text()
	}
	if !col.Allows(s) {
		return dataset.Value{}, &InvalidOverrideError{
			Column: col.Name,
			Value:  v,
			Reason: fmt.Sprintf("expected one of %s", strings.Join(col.Enum, ", ")),
		}
	}
	return dataset.String(s), nil
}
