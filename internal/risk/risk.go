// Package risk turns a churn probability into the business view of it: a risk
// segment and the annual revenue expected to be lost.
package risk

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/refset/telco-churn-scoring/internal/dataset"
	"github.com/refset/telco-churn-scoring/internal/schema"
)

// Segment is a risk tier.
type Segment string

const (
	High    Segment = "High Risk"
	Medium  Segment = "Medium Risk"
	Low     Segment = "Low Risk"
	VeryLow Segment = "Very Low Risk"
)

// Thresholds are the lower bounds of High, Medium and Low.
const (
	HighThreshold   = 0.75
	MediumThreshold = 0.50
	LowThreshold    = 0.25
)

// Segments lists the tiers from most to least risky.
var Segments = []Segment{High, Medium, Low, VeryLow}

func (s Segment) String() string { return string(s) }

// SegmentOf maps a probability to its tier. Each threshold belongs to the
// tier it opens.
func SegmentOf(p float64) Segment {
	switch {
	case p >= HighThreshold:
		return High
	case p >= MediumThreshold:
		return Medium
	case p >= LowThreshold:
		return Low
	default:
		return VeryLow
	}
}

var monthsPerYear = decimal.NewFromInt(12)

// RevenueAtRisk is p × monthlyCharge × 12. A zero, negative or non-finite
// monthly charge yields 0, as does a non-finite p.
func RevenueAtRisk(p, monthlyCharge float64) float64 {
	if !finite(p) || !finite(monthlyCharge) || monthlyCharge <= 0 {
		return 0
	}
	v, _ := decimal.NewFromFloat(p).
		Mul(decimal.NewFromFloat(monthlyCharge)).
		Mul(monthsPerYear).
		Float64()
	return v
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// MonthlyCharge reads the monthly charge of a row, applying the registry
// default when it is missing or not a number.
func MonthlyCharge(reg *schema.Registry, row dataset.Row) float64 {
	if f, ok := reg.Resolve(row, schema.ColMonthlyCharges).Float(); ok {
		return f
	}
	return 0
}

// Assessment is the business reading of one probability.
type Assessment struct {
	Segment       Segment
	RevenueAtRisk float64
}

// Assess segments p and prices it against the row's monthly charge.
func Assess(reg *schema.Registry, p float64, row dataset.Row) Assessment {
	return Assessment{
		Segment:       SegmentOf(p),
		RevenueAtRisk: RevenueAtRisk(p, MonthlyCharge(reg, row)),
	}
}
