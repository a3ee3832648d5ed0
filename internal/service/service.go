// Package service holds the serving state shared by the HTTP handlers and the
// batch scorer: one classifier and one template row, swapped atomically.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/refset/telco-churn-scoring/internal/dataset"
	"github.com/refset/telco-churn-scoring/internal/materialize"
	"github.com/refset/telco-churn-scoring/internal/model"
	"github.com/refset/telco-churn-scoring/internal/risk"
	"github.com/refset/telco-churn-scoring/internal/schema"
	"github.com/refset/telco-churn-scoring/internal/scoring"
	"github.com/refset/telco-churn-scoring/internal/storage"
)

// Names locates the serving artifacts in the store.
type Names struct {
	Model    string
	Features string
}

type snapshot struct {
	engine   *scoring.Engine
	template dataset.Row
	version  string
	loadedAt time.Time
}

// Service is safe for concurrent use. Requests read one snapshot for their
// whole lifetime, so a reload never mixes two models in one answer.
type Service struct {
	registry *schema.Registry
	store    storage.Store
	names    Names
	workers  int
	log      *zap.Logger

	current atomic.Pointer[snapshot]
}

func New(registry *schema.Registry, store storage.Store, names Names, workers int, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		registry: registry,
		store:    store,
		names:    names,
		workers:  workers,
		log:      log,
	}
}

// Load reads the model and the feature table and installs them. Any failure
// wraps scoring.ErrModelNotLoaded and leaves the current snapshot in place.
func (s *Service) Load(ctx context.Context) error {
	data, err := s.store.Load(ctx, s.names.Model)
	if err != nil {
		return fmt.Errorf("%w: %w", scoring.ErrModelNotLoaded, err)
	}
	clf, err := model.Decode(data)
	if err != nil {
		return fmt.Errorf("%w: %w", scoring.ErrModelNotLoaded, err)
	}
	features, err := storage.LoadTable(ctx, s.store, s.names.Features, s.registry)
	if err != nil {
		return fmt.Errorf("%w: %w", scoring.ErrModelNotLoaded, err)
	}
	template, err := materialize.Template(s.registry, features)
	if err != nil {
		return fmt.Errorf("%w: %w", scoring.ErrModelNotLoaded, err)
	}
	s.Use(clf, template, clf.Version())
	return nil
}

// Reload is Load with logging of the version change.
func (s *Service) Reload(ctx context.Context) (string, error) {
	previous := s.Version()
	if err := s.Load(ctx); err != nil {
		s.log.Error("reload failed", zap.String("model_version", previous), zap.Error(err))
		return previous, err
	}
	version := s.Version()
	s.log.Info("model reloaded",
		zap.String("previous_version", previous),
		zap.String("model_version", version))
	return version, nil
}

// Use installs an already built classifier and template row.
func (s *Service) Use(clf scoring.Classifier, template dataset.Row, version string) {
	s.current.Store(&snapshot{
		engine:   scoring.NewEngine(clf, s.registry, s.workers),
		template: template.Clone(),
		version:  version,
		loadedAt: time.Now().UTC(),
	})
}

// Ready reports whether a model is installed.
func (s *Service) Ready() bool {
	return s.current.Load() != nil
}

// Version returns the installed model version, or "" before the first load.
func (s *Service) Version() string {
	if snap := s.current.Load(); snap != nil {
		return snap.version
	}
	return ""
}

// LoadedAt returns when the current snapshot was installed.
func (s *Service) LoadedAt() time.Time {
	if snap := s.current.Load(); snap != nil {
		return snap.loadedAt
	}
	return time.Time{}
}

// Prediction is the answer to one online scoring request.
type Prediction struct {
	ChurnProbability float64      `json:"churn_probability"`
	RiskSegment      risk.Segment `json:"risk_segment"`
	RevenueAtRisk    float64      `json:"revenue_at_risk"`
	IgnoredFields    []string     `json:"ignored_fields,omitempty"`
	ModelVersion     string       `json:"model_version"`
}

// Predict scores the template row with overrides applied. Keys that are not
// feature columns are ignored and reported back.
func (s *Service) Predict(ctx context.Context, overrides map[string]dataset.Value) (*Prediction, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, scoring.ErrModelNotLoaded
	}
	partial, err := s.registry.Partition(overrides)
	if err != nil {
		return nil, err
	}
	row := materialize.Materialize(snap.template, partial)
	p, err := snap.engine.ScoreOne(ctx, row)
	if err != nil {
		return nil, err
	}
	a := risk.Assess(s.registry, p, row)
	return &Prediction{
		ChurnProbability: p,
		RiskSegment:      a.Segment,
		RevenueAtRisk:    a.RevenueAtRisk,
		IgnoredFields:    partial.Ignored,
		ModelVersion:     snap.version,
	}, nil
}

// ScoredCustomer is one row of the scoring export.
type ScoredCustomer struct {
	CustomerID        string
	ChurnProbability  float64
	RiskSegment       risk.Segment
	MonthlyCharges    float64
	AnnualizedRevenue float64
	RevenueAtRisk     float64
}

// Scored is the outcome of a batch run.
type Scored struct {
	Customers    []ScoredCustomer
	ModelVersion string
	// Skipped counts rows that could not be scored; Err joins their errors.
	Skipped int
	Err     error
}

// ScoreTable scores every feature row. Rows that fail are left out and
// reported in the result; it only returns an error when nothing could be
// scored or ctx was cancelled.
func (s *Service) ScoreTable(ctx context.Context, features *dataset.Table) (*Scored, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, scoring.ErrModelNotLoaded
	}
	probs, err := snap.engine.ScoreBatch(ctx, features.Rows)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	out := &Scored{
		Customers:    make([]ScoredCustomer, 0, len(probs)),
		ModelVersion: snap.version,
		Err:          err,
	}
	for i, p := range probs {
		if math.IsNaN(p) {
			out.Skipped++
			continue
		}
		row := features.Rows[i]
		a := risk.Assess(s.registry, p, row)
		annual, _ := s.registry.Resolve(row, schema.ColAnnualizedRevenue).Float()
		out.Customers = append(out.Customers, ScoredCustomer{
			CustomerID:        schema.RowID(row, i),
			ChurnProbability:  p,
			RiskSegment:       a.Segment,
			MonthlyCharges:    risk.MonthlyCharge(s.registry, row),
			AnnualizedRevenue: annual,
			RevenueAtRisk:     a.RevenueAtRisk,
		})
	}
	if len(out.Customers) == 0 && out.Skipped > 0 {
		return nil, errors.Join(fmt.Errorf("no rows scored out of %d", out.Skipped), err)
	}
	return out, nil
}

// Column names of the scoring export.
const (
	ColChurnProbability = "ChurnProbability"
	ColRiskSegment      = "RiskSegment"
	ColRevenueAtRisk    = "RevenueAtRisk"
)

// ExportColumns is the column order of the scoring export.
var ExportColumns = []string{
	schema.ColCustomerID,
	ColChurnProbability,
	ColRiskSegment,
	schema.ColMonthlyCharges,
	schema.ColAnnualizedRevenue,
	ColRevenueAtRisk,
}

// ExportTable lays scored customers out as the BI scoring table.
func ExportTable(customers []ScoredCustomer) *dataset.Table {
	t := dataset.NewTable(ExportColumns...)
	for _, c := range customers {
		t.Append(dataset.Row{
			schema.ColCustomerID:        dataset.String(c.CustomerID),
			ColChurnProbability:         dataset.Number(c.ChurnProbability),
			ColRiskSegment:              dataset.String(string(c.RiskSegment)),
			schema.ColMonthlyCharges:    dataset.Number(c.MonthlyCharges),
			schema.ColAnnualizedRevenue: dataset.Number(c.AnnualizedRevenue),
			ColRevenueAtRisk:            dataset.Number(c.RevenueAtRisk),
		})
	}
	return t
}
