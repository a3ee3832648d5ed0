package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/refset/telco-churn-scoring/internal/dataset"
	"github.com/refset/telco-churn-scoring/internal/kafka"
)

const maxBodyBytes = 1 << 20

// PredictionPublisher records online predictions. *kafka.Producer
// implements it.
type PredictionPublisher interface {
	SendPrediction(ctx context.Context, e kafka.PredictionEvent) error
}

type predictRequest struct {
	Data map[string]dataset.Value `json:"data"`
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, "ok")
}

func (h *Handler) readyz(w http.ResponseWriter, _ *http.Request) {
	if !h.service.Ready() {
		writeError(w, http.StatusServiceUnavailable, "MODEL_NOT_LOADED", "model not loaded")
		return
	}
	writeData(w, map[string]any{
		"model_version": h.service.Version(),
		"loaded_at":     h.service.LoadedAt(),
	})
}

func (h *Handler) predict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req predictRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.metrics.PredictionFailed("invalid_body")
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	pred, err := h.service.Predict(r.Context(), req.Data)
	if err != nil {
		code := writeDomainError(w, err)
		if code == "INTERNAL_ERROR" {
			h.log.Error("prediction failed", zap.String("request_id", requestIDFromContext(r.Context())), zap.Error(err))
		}
		h.metrics.PredictionFailed(code)
		return
	}
	h.metrics.ObservePrediction(string(pred.RiskSegment), time.Since(start))

	if h.publisher != nil {
		overrides, _ := json.Marshal(req.Data)
		event := kafka.PredictionEvent{
			RequestID:        requestIDFromContext(r.Context()),
			Overrides:        overrides,
			IgnoredFields:    pred.IgnoredFields,
			ChurnProbability: pred.ChurnProbability,
			RiskSegment:      string(pred.RiskSegment),
			RevenueAtRisk:    pred.RevenueAtRisk,
			ModelVersion:     pred.ModelVersion,
			PredictedAt:      start.UTC(),
		}
		if err := h.publisher.SendPrediction(r.Context(), event); err != nil {
			h.log.Warn("publish prediction", zap.String("request_id", event.RequestID), zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, pred)
}

func (h *Handler) reload(w http.ResponseWriter, r *http.Request) {
	version, err := h.service.Reload(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "RELOAD_FAILED", err.Error())
		return
	}
	h.metrics.ModelLoaded(version, h.service.LoadedAt())
	writeData(w, map[string]any{
		"model_version": version,
		"loaded_at":     h.service.LoadedAt(),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}
