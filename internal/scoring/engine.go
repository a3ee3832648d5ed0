// Package scoring applies a trained classifier to feature rows.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/refset/telco-churn-scoring/internal/dataset"
	"github.com/refset/telco-churn-scoring/internal/schema"
)

var (
	// ErrModelNotLoaded is returned when no classifier is available.
	ErrModelNotLoaded = errors.New("model not loaded")
	// ErrSchemaMismatch is matched by every SchemaMismatchError.
	ErrSchemaMismatch = errors.New("schema mismatch")
)

// SchemaMismatchError reports a row lacking columns the classifier was fit on.
type SchemaMismatchError struct {
	RowID   string
	Missing []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("customer %s: missing columns %s", e.RowID, strings.Join(e.Missing, ", "))
}

func (e *SchemaMismatchError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

// Classifier maps a feature row to a churn probability.
type Classifier interface {
	// Features lists the columns the classifier was fit on.
	Features() []string
	PredictProbability(row dataset.Row) (float64, error)
}

// Engine scores rows against one classifier. It holds no mutable state and is
// safe for concurrent use.
type Engine struct {
	classifier Classifier
	labels     []string
	workers    int
}

// NewEngine creates an engine. A nil classifier yields an engine that fails
// every call with ErrModelNotLoaded.
func NewEngine(classifier Classifier, registry *schema.Registry, workers int) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		classifier: classifier,
		labels:     registry.LabelColumns(),
		workers:    workers,
	}
}

// Loaded reports whether the engine has a classifier.
func (e *Engine) Loaded() bool {
	return e != nil && e.classifier != nil
}

// ScoreOne returns the churn probability of a single row.
func (e *Engine) ScoreOne(ctx context.Context, row dataset.Row) (float64, error) {
	if !e.Loaded() {
		return 0, ErrModelNotLoaded
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return e.score(row, 0)
}

// ScoreBatch scores every row. Output order follows input order whatever the
// worker count. A row that cannot be scored gets NaN and its error is joined
// into the returned error; the other rows are still scored.
func (e *Engine) ScoreBatch(ctx context.Context, rows []dataset.Row) ([]float64, error) {
	if !e.Loaded() {
		return nil, ErrModelNotLoaded
	}

	out := make([]float64, len(rows))
	errs := make([]error, len(rows))

	workers := e.workers
	if len(rows) < workers {
		workers = len(rows)
	}

	work := make(chan int, len(rows))
	for i := range rows {
		work <- i
	}
	close(work)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				if err := ctx.Err(); err != nil {
					out[i], errs[i] = math.NaN(), err
					continue
				}
				p, err := e.score(rows[i], i)
				if err != nil {
					p = math.NaN()
				}
				out[i], errs[i] = p, err
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, errors.Join(errs...)
}

func (e *Engine) score(row dataset.Row, index int) (float64, error) {
	for _, l := range e.labels {
		if row.Has(l) {
			row = row.Without(e.labels...)
			break
		}
	}

	var missing []string
	for _, c := range e.classifier.Features() {
		if !row.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return 0, &SchemaMismatchError{RowID: schema.RowID(row, index), Missing: missing}
	}

	p, err := e.classifier.PredictProbability(row)
	if err != nil {
		return 0, fmt.Errorf("customer %s: %w", schema.RowID(row, index), err)
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("customer %s: classifier returned %v outside [0,1]", schema.RowID(row, index), p)
	}
	return p, nil
}
