// Package pipeline runs the offline stages: ingest, clean, features, train and
// score. Each stage reads its input from the artifact store and writes its
// output back, so stages can be run one at a time.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/refset/telco-churn-scoring/internal/clean"
	"github.com/refset/telco-churn-scoring/internal/config"
	"github.com/refset/telco-churn-scoring/internal/features"
	"github.com/refset/telco-churn-scoring/internal/ingest"
	"github.com/refset/telco-churn-scoring/internal/kafka"
	"github.com/refset/telco-churn-scoring/internal/metrics"
	"github.com/refset/telco-churn-scoring/internal/model"
	"github.com/refset/telco-churn-scoring/internal/schema"
	"github.com/refset/telco-churn-scoring/internal/service"
	"github.com/refset/telco-churn-scoring/internal/storage"
)

// ScorePublisher receives batch scores. *kafka.Producer implements it.
type ScorePublisher interface {
	SendScores(ctx context.Context, events []kafka.ScoreEvent) error
}

// ScoreWarehouse mirrors batch scores. *warehouse.Writer implements it.
type ScoreWarehouse interface {
	Write(ctx context.Context, version string, scoredAt time.Time, customers []service.ScoredCustomer) error
}

// Pipeline orchestrates the offline flow from raw extract to scoring table.
type Pipeline struct {
	cfg      *config.Config
	registry *schema.Registry
	store    storage.Store
	log      *zap.Logger

	metrics   *metrics.Metrics
	publisher ScorePublisher
	warehouse ScoreWarehouse
	now       func() time.Time
}

type Option func(*Pipeline)

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithPublisher(pub ScorePublisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

func WithWarehouse(w ScoreWarehouse) Option {
	return func(p *Pipeline) { p.warehouse = w }
}

// New creates a pipeline over store.
func New(cfg *config.Config, store storage.Store, log *zap.Logger, opts ...Option) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pipeline{
		cfg:      cfg,
		registry: schema.Telco(),
		store:    store,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Registry returns the schema the pipeline runs against.
func (p *Pipeline) Registry() *schema.Registry { return p.registry }

// Ingest downloads the raw extract.
func (p *Pipeline) Ingest(ctx context.Context) error {
	c := ingest.NewClient(p.cfg.Ingest.URL, p.cfg.Ingest.Timeout, p.log)
	if _, err := c.Download(ctx, p.store, p.cfg.Artifacts.Raw); err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	return nil
}

// Clean reads the raw extract and writes the clean table.
func (p *Pipeline) Clean(ctx context.Context) (*clean.Result, error) {
	raw, err := storage.LoadTable(ctx, p.store, p.cfg.Artifacts.Raw, nil)
	if err != nil {
		return nil, fmt.Errorf("clean: %w", err)
	}
	res, err := clean.New(p.registry).Clean(raw)
	if err != nil {
		return nil, fmt.Errorf("clean: %w", err)
	}

	for column, n := range res.Coerced {
		p.log.Warn("values failed numeric coercion", zap.String("column", column), zap.Int("count", n))
	}
	for _, r := range res.Rejected {
		p.log.Warn("row rejected", zap.String("customer_id", r.RowID), zap.Error(r))
	}
	p.log.Info("cleaned raw extract",
		zap.Int("raw_rows", raw.Len()),
		zap.Int("kept", res.Table.Len()),
		zap.Int("dropped", res.Dropped),
		zap.Int("rejected", len(res.Rejected)))
	if p.metrics != nil {
		p.metrics.ObserveClean(res.Table.Len(), res.Dropped, len(res.Rejected))
	}

	if err := storage.SaveTable(ctx, p.store, p.cfg.Artifacts.Clean, res.Table); err != nil {
		return nil, fmt.Errorf("clean: %w", err)
	}
	return res, nil
}

// Features reads the clean table and writes the feature table and the
// customer base export. Rows the builder excludes are logged and left out.
func (p *Pipeline) Features(ctx context.Context) (*features.Result, error) {
	cleaned, err := storage.LoadTable(ctx, p.store, p.cfg.Artifacts.Clean, p.registry)
	if err != nil {
		return nil, fmt.Errorf("features: %w", err)
	}
	res, err := features.New(p.registry).Build(cleaned)
	if err != nil {
		return nil, fmt.Errorf("features: %w", err)
	}
	for _, ex := range res.Excluded {
		p.log.Warn("excluded from feature table",
			zap.String("customer_id", ex.RowID),
			zap.Error(ex.Err))
	}

	ft := res.Table
	if err := storage.SaveTable(ctx, p.store, p.cfg.Artifacts.Features, ft); err != nil {
		return nil, fmt.Errorf("features: %w", err)
	}
	if err := storage.SaveTable(ctx, p.store, p.cfg.Artifacts.CustomerBase, features.BaseProjection(ft)); err != nil {
		return nil, fmt.Errorf("features: %w", err)
	}
	p.log.Info("built feature table",
		zap.Int("rows", ft.Len()),
		zap.Int("columns", len(ft.Columns)),
		zap.Int("excluded", len(res.Excluded)))
	return res, nil
}

// Train fits a classifier on the feature table and writes the model and its
// evaluation report.
func (p *Pipeline) Train(ctx context.Context) (*model.Metrics, error) {
	ft, err := storage.LoadTable(ctx, p.store, p.cfg.Artifacts.Features, p.registry)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	tc := p.cfg.Training
	clf, m, err := model.Train(ctx, p.registry, ft, model.Config{
		TestFraction: tc.TestFraction,
		Seed:         tc.Seed,
		Epochs:       tc.Epochs,
		LearningRate: tc.LearningRate,
		L2:           tc.L2,
		Threshold:    tc.Threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	data, err := clf.Encode()
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	if err := p.store.Save(ctx, p.cfg.Artifacts.Model, data); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	if err := storage.SaveJSON(ctx, p.store, p.cfg.Artifacts.Metrics, m); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	p.log.Info("trained model",
		zap.String("model_version", m.ModelVersion),
		zap.Float64("roc_auc", m.ROCAUC),
		zap.Float64("accuracy", m.Accuracy),
		zap.Float64("recall", m.Recall),
		zap.Int("n_train", m.NTrain),
		zap.Int("n_test", m.NTest))
	return m, nil
}

// Score applies the stored model to the feature table, writes the scoring
// export and forwards it to the configured sinks.
func (p *Pipeline) Score(ctx context.Context) (*service.Scored, error) {
	svc := service.New(p.registry, p.store, service.Names{
		Model:    p.cfg.Artifacts.Model,
		Features: p.cfg.Artifacts.Features,
	}, p.cfg.Scoring.Workers, p.log)
	if err := svc.Load(ctx); err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}
	ft, err := storage.LoadTable(ctx, p.store, p.cfg.Artifacts.Features, p.registry)
	if err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}

	scored, err := svc.ScoreTable(ctx, ft)
	if err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}
	if scored.Skipped > 0 {
		p.log.Warn("rows skipped during scoring", zap.Int("count", scored.Skipped), zap.Error(scored.Err))
	}
	if p.metrics != nil {
		p.metrics.ObserveBatch(len(scored.Customers), scored.Skipped)
	}

	if err := storage.SaveTable(ctx, p.store, p.cfg.Artifacts.Scoring, service.ExportTable(scored.Customers)); err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}
	p.log.Info("scored customers",
		zap.String("model_version", scored.ModelVersion),
		zap.Int("scored", len(scored.Customers)),
		zap.Int("skipped", scored.Skipped))

	scoredAt := p.now()
	if p.publisher != nil {
		if err := p.publisher.SendScores(ctx, scoreEvents(scored, scoredAt)); err != nil {
			return scored, fmt.Errorf("score: publish: %w", err)
		}
	}
	if p.warehouse != nil {
		if err := p.warehouse.Write(ctx, scored.ModelVersion, scoredAt, scored.Customers); err != nil {
			return scored, fmt.Errorf("score: warehouse: %w", err)
		}
	}
	return scored, nil
}

// Run executes clean, features, train and score in order.
func (p *Pipeline) Run(ctx context.Context) error {
	start := time.Now()
	if _, err := p.Clean(ctx); err != nil {
		return err
	}
	if _, err := p.Features(ctx); err != nil {
		return err
	}
	if _, err := p.Train(ctx); err != nil {
		return err
	}
	if _, err := p.Score(ctx); err != nil {
		return err
	}
	p.log.Info("pipeline complete", zap.Duration("elapsed", time.Since(start)))
	return nil
}

func scoreEvents(scored *service.Scored, at time.Time) []kafka.ScoreEvent {
	events := make([]kafka.ScoreEvent, len(scored.Customers))
	for i, c := range scored.Customers {
		events[i] = kafka.ScoreEvent{
			CustomerID:        c.CustomerID,
			ChurnProbability:  c.ChurnProbability,
			RiskSegment:       string(c.RiskSegment),
			MonthlyCharges:    c.MonthlyCharges,
			AnnualizedRevenue: c.AnnualizedRevenue,
			RevenueAtRisk:     c.RevenueAtRisk,
			ModelVersion:      scored.ModelVersion,
			ScoredAt:          at,
		}
	}
	return events
}
