// Package warehouse mirrors the scoring table into the churn_predictions
// table of a Postgres-compatible warehouse.
package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/refset/telco-churn-scoring/internal/service"
)

// chunkSize bounds the statements queued in one pgx.Batch.
const chunkSize = 1000

const schemaSQL = `
CREATE TABLE IF NOT EXISTS churn_predictions (
	customer_id        text PRIMARY KEY,
	churn_score        double precision NOT NULL,
	risk_level         text NOT NULL,
	monthly_charges    double precision NOT NULL,
	annualized_revenue double precision NOT NULL,
	revenue_at_risk    double precision NOT NULL,
	model_version      text NOT NULL,
	scored_at          timestamptz NOT NULL
)`

const upsertSQL = `
INSERT INTO churn_predictions (
	customer_id, churn_score, risk_level, monthly_charges,
	annualized_revenue, revenue_at_risk, model_version, scored_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (customer_id) DO UPDATE SET
	churn_score        = EXCLUDED.churn_score,
	risk_level         = EXCLUDED.risk_level,
	monthly_charges    = EXCLUDED.monthly_charges,
	annualized_revenue = EXCLUDED.annualized_revenue,
	revenue_at_risk    = EXCLUDED.revenue_at_risk,
	model_version      = EXCLUDED.model_version,
	scored_at          = EXCLUDED.scored_at`

type batcher interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Writer upserts scored customers.
type Writer struct {
	db   batcher
	pool *pgxpool.Pool
	log  *zap.Logger
}

// NewWriter wraps an existing pool.
func NewWriter(pool *pgxpool.Pool, log *zap.Logger) *Writer {
	w := newWriter(pool, log)
	w.pool = pool
	return w
}

func newWriter(db batcher, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{db: db, log: log}
}

// Open connects to connString and creates the table if needed.
func Open(ctx context.Context, connString string, log *zap.Logger) (*Writer, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect to warehouse: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping warehouse: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create churn_predictions: %w", err)
	}
	return NewWriter(pool, log), nil
}

// Close releases the pool.
func (w *Writer) Close() {
	if w.pool != nil {
		w.pool.Close()
	}
}

// Write upserts every customer, one batch per chunk.
func (w *Writer) Write(ctx context.Context, version string, scoredAt time.Time, customers []service.ScoredCustomer) error {
	for start := 0; start < len(customers); start += chunkSize {
		end := min(start+chunkSize, len(customers))
		b := buildBatch(version, scoredAt, customers[start:end])
		if err := w.db.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("upsert churn_predictions rows %d-%d: %w", start, end-1, err)
		}
	}
	w.log.Info("loaded churn predictions into warehouse",
		zap.Int("count", len(customers)),
		zap.String("model_version", version))
	return nil
}

func buildBatch(version string, scoredAt time.Time, customers []service.ScoredCustomer) *pgx.Batch {
	b := &pgx.Batch{}
	for _, c := range customers {
		b.Queue(upsertSQL, upsertArgs(version, scoredAt, c)...)
	}
	return b
}

// upsertArgs orders c's fields as the upsertSQL placeholders expect them.
func upsertArgs(version string, scoredAt time.Time, c service.ScoredCustomer) []any {
	return []any{
		c.CustomerID,
		c.ChurnProbability,
		string(c.RiskSegment),
		c.MonthlyCharges,
		c.AnnualizedRevenue,
		c.RevenueAtRisk,
		version,
		scoredAt,
	}
}
