package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"spendwise/internal/amqp"
	"spendwise/internal/classifier"
	"spendwise/internal/core"
)

// Trainer is the part of the model service the worker drives.
type Trainer interface {
	Retrain(ctx context.Context) (core.RetrainResult, error)
	Metrics(ctx context.Context) core.ModelMetrics
}

// RetrainWorker turns retrain requests into training runs.
type RetrainWorker struct {
	trainer Trainer
	logger  *slog.Logger

	mu          sync.Mutex
	lastStarted time.Time
	now         func() time.Time
}

func NewRetrainWorker(trainer Trainer, logger *slog.Logger) *RetrainWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrainWorker{trainer: trainer, logger: logger, now: time.Now}
}

// HandleRetrainRequest retrains unless a run that started after the request
// was published has already covered it. Unusable training data is permanent
// and acknowledged; any other failure is returned so the message is retried.
func (w *RetrainWorker) HandleRetrainRequest(ctx context.Context, msg *amqp.RetrainRequestMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.lastStarted.IsZero() && msg.Timestamp.Before(w.lastStarted) {
		w.logger.InfoContext(ctx, "Retrain request already covered, skipping",
			"message_id", msg.ID,
			"requested_at", msg.Timestamp,
			"last_started", w.lastStarted)
		return nil
	}

	w.logger.InfoContext(ctx, "Processing retrain request",
		"message_id", msg.ID,
		"reason", msg.Reason,
		"requested_by", msg.RequestedBy)

	return w.retrain(ctx, msg.ID)
}

// StartupCheck trains a first model when none is stored yet, so a freshly
// deployed worker does not wait for a request.
func (w *RetrainWorker) StartupCheck(ctx context.Context) error {
	if m := w.trainer.Metrics(ctx); m.HasModel {
		w.logger.InfoContext(ctx, "Model present on startup", "num_labels", m.NumLabels)
		return nil
	}

	w.logger.InfoContext(ctx, "No model found on startup, training one")
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.retrain(ctx, "startup")
}

func (w *RetrainWorker) retrain(ctx context.Context, requestID string) error {
	w.lastStarted = w.now()

	res, err := w.trainer.Retrain(ctx)
	if err != nil {
		var insufficient *classifier.InsufficientDataError
		if errors.As(err, &insufficient) {
			w.logger.WarnContext(ctx, "Not enough labeled data to retrain",
				"request", requestID,
				"detail", insufficient.Error())
			return nil
		}
		if errors.Is(err, classifier.ErrEmptyVocabulary) {
			w.logger.WarnContext(ctx, "Labeled data has no usable text, not retraining",
				"request", requestID)
			return nil
		}
		return fmt.Errorf("retrain: %w", err)
	}

	attrs := []any{
		"request", requestID,
		"rows", res.TrainedOnRows,
		"classes", len(res.Classes),
	}
	if res.Accuracy != nil {
		attrs = append(attrs, "accuracy", *res.Accuracy)
	}
	w.logger.InfoContext(ctx, "Retrain completed", attrs...)
	return nil
}
