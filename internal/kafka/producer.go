// Package kafka publishes churn scores and online predictions.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// batchSize bounds the messages handed to one WriteMessages call.
const batchSize = 500

// ScoreEvent is one row of a batch scoring run, keyed by customer id.
type ScoreEvent struct {
	CustomerID        string    `json:"customer_id"`
	ChurnProbability  float64   `json:"churn_probability"`
	RiskSegment       string    `json:"risk_segment"`
	MonthlyCharges    float64   `json:"monthly_charges"`
	AnnualizedRevenue float64   `json:"annualized_revenue"`
	RevenueAtRisk     float64   `json:"revenue_at_risk"`
	ModelVersion      string    `json:"model_version"`
	ScoredAt          time.Time `json:"scored_at"`
}

// PredictionEvent records one online prediction, keyed by request id.
type PredictionEvent struct {
	RequestID        string          `json:"request_id"`
	Overrides        json.RawMessage `json:"overrides,omitempty"`
	IgnoredFields    []string        `json:"ignored_fields,omitempty"`
	ChurnProbability float64         `json:"churn_probability"`
	RiskSegment      string          `json:"risk_segment"`
	RevenueAtRisk    float64         `json:"revenue_at_risk"`
	ModelVersion     string          `json:"model_version"`
	PredictedAt      time.Time       `json:"predicted_at"`
}

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer sends events to Kafka.
type Producer struct {
	scoresWriter      writer
	predictionsWriter writer
	log               *zap.Logger
}

// NewProducer creates a producer with one writer per topic. Prediction
// writes are asynchronous; failures are logged by the writer.
func NewProducer(brokers []string, scoresTopic, predictionsTopic string, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	return newProducer(
		&kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    scoresTopic,
			Balancer: &kafka.LeastBytes{},
		},
		&kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    predictionsTopic,
			Balancer: &kafka.Hash{},
			Async:    true,
			Completion: func(msgs []kafka.Message, err error) {
				if err != nil {
					log.Warn("prediction events lost", zap.Int("count", len(msgs)), zap.Error(err))
				}
			},
		},
		log,
	)
}

func newProducer(scores, predictions writer, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Producer{scoresWriter: scores, predictionsWriter: predictions, log: log}
}

// SendScores publishes a scoring run in batches.
func (p *Producer) SendScores(ctx context.Context, events []ScoreEvent) error {
	msgs := make([]kafka.Message, 0, batchSize)
	sent := 0
	flush := func() error {
		if len(msgs) == 0 {
			return nil
		}
		if err := p.scoresWriter.WriteMessages(ctx, msgs...); err != nil {
			return fmt.Errorf("write scores after %d sent: %w", sent, err)
		}
		sent += len(msgs)
		msgs = msgs[:0]
		return nil
	}

	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode score %s: %w", e.CustomerID, err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(e.CustomerID), Value: data})
		if len(msgs) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	p.log.Info("sent scores to kafka", zap.Int("count", sent))
	return nil
}

// SendPrediction publishes one online prediction.
func (p *Producer) SendPrediction(ctx context.Context, e PredictionEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode prediction %s: %w", e.RequestID, err)
	}
	msg := kafka.Message{Key: []byte(e.RequestID), Value: data}
	if err := p.predictionsWriter.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write prediction %s: %w", e.RequestID, err)
	}

	p.log.Debug("sent prediction to kafka", zap.String("request_id", e.RequestID))
	return nil
}

// Close closes both writers.
func (p *Producer) Close() error {
	return errors.Join(p.scoresWriter.Close(), p.predictionsWriter.Close())
}
