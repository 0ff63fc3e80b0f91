package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"spendwise/internal/classifier"
	applog "spendwise/internal/log"
)

const readinessTimeout = 5 * time.Second

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	items, status, detail := s.decodePredictRequest(w, r)
	if status != 0 {
		applog.FromContext(ctx).WarnContext(ctx, "Rejected predict request",
			applog.FieldStatusCode, status,
			applog.FieldError, detail)
		writeError(w, status, detail)
		return
	}

	preds, err := s.models.Predict(ctx, items)
	if err != nil {
		applog.NewStructuredLogger(applog.FromContext(ctx)).LogError(ctx, "Prediction failed", err,
			applog.OpPredict, nil)
		writeError(w, http.StatusInternalServerError, "Prediction failed")
		return
	}
	writeJSON(w, http.StatusOK, preds)
}

func (s *Server) handleRetrain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := s.models.Retrain(ctx)
	if err != nil {
		var insufficient *classifier.InsufficientDataError
		if errors.As(err, &insufficient) || errors.Is(err, classifier.ErrEmptyVocabulary) {
			applog.FromContext(ctx).InfoContext(ctx, "Retrain refused", applog.FieldError, err.Error())
			writeError(w, http.StatusBadRequest, userFacingRetrainError(err))
			return
		}
		applog.NewStructuredLogger(applog.FromContext(ctx)).LogError(ctx, "Retrain failed", err,
			applog.OpRetrain, nil)
		writeError(w, http.StatusInternalServerError, "Retrain failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// userFacingRetrainError unwraps to the classifier's own message, dropping
// service-level context that only matters in logs.
func userFacingRetrainError(err error) string {
	var insufficient *classifier.InsufficientDataError
	if errors.As(err, &insufficient) {
		return insufficient.Error()
	}
	return classifier.ErrEmptyVocabulary.Error()
}

func (s *Server) handleModelMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.models.Metrics(r.Context()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady reports not_ready when the category directory cannot be read.
// A missing model is not a readiness failure.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status, httpStatus := "ready", http.StatusOK
	checks := map[string]any{}

	if _, err := s.directory.ListCategories(ctx); err != nil {
		checks["category_directory"] = fmt.Sprintf("failed: %v", err)
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
		applog.FromContext(ctx).WarnContext(ctx, "Readiness check failed", applog.FieldError, err.Error())
	} else {
		checks["category_directory"] = "ok"
	}

	metrics := s.models.Metrics(ctx)
	checks["model"] = map[string]any{"has_model": metrics.HasModel, "num_labels": metrics.NumLabels}
	checks["rate_limiter"] = map[string]any{"active_clients": s.rateLimiter.ActiveClients()}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics exposes process counters in Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	traceMetrics := s.tracer.GetMetrics()
	limitMetrics := s.rateLimiter.GetMetrics()
	securityMetrics := s.detector.GetMetrics()
	model := s.models.Metrics(r.Context())

	hasModel := 0
	if model.HasModel {
		hasModel = 1
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_request_duration_avg_ms", "gauge", "Average request duration in milliseconds", traceMetrics.AverageResponseTime.Milliseconds())
	metric("rate_limit_allowed_total", "counter", "Requests admitted by the rate limiter", limitMetrics.AllowedRequests)
	metric("rate_limit_rejected_total", "counter", "Requests rejected by the rate limiter", limitMetrics.RejectedRequests)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", limitMetrics.ActiveClients)
	metric("suspicious_requests_total", "counter", "Requests matching a known attack pattern", securityMetrics.SuspiciousRequests)
	metric("model_loaded", "gauge", "Whether a trained model is available", hasModel)
	metric("model_labels", "gauge", "Number of categories the model predicts", model.NumLabels)
	metric("uptime_seconds", "gauge", "Process uptime in seconds", int64(time.Since(s.started).Seconds()))
}
