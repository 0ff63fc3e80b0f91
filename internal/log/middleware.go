package log

import (
	"context"
	"log/slog"
	"net/http"
)

type ContextKey string

const LoggerContextKey ContextKey = "logger"

// NewContext returns ctx carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext returns the request logger, or one built on slog's default.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default().With(FieldComponent, "unknown"),
		root:      slog.Default(),
		component: "unknown",
	}
}

// Middleware puts a component-scoped logger into every request context,
// tagged with the request id when extractRequestID finds one.
func Middleware(logger *Logger, component string, extractRequestID func(*http.Request) string) func(http.Handler) http.Handler {
	scoped := logger.WithComponent(component)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := scoped
			if extractRequestID != nil {
				if id := extractRequestID(r); id != "" {
					l = l.With(FieldRequestID, id)
				}
			}
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), l)))
		})
	}
}

// StructuredLogger emits the module's standard events.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

// LogPrediction records one predict call.
func (sl *StructuredLogger) LogPrediction(ctx context.Context, batchSize int, fallback bool) {
	sl.logger.DebugContext(ctx, "Predictions served",
		FieldOperation, OpPredict,
		FieldBatchSize, batchSize,
		FieldFallback, fallback)
}

// LogRetrain records a finished training run.
func (sl *StructuredLogger) LogRetrain(ctx context.Context, rows, numLabels int, accuracy *float64) {
	fields := NewFields().
		WithRetrain(rows, numLabels, accuracy).
		WithOperation(OpRetrain)
	sl.logger.InfoContext(ctx, "Model retrained", fields.ToSlice()...)
}

// LogError logs err with the given operation and extra fields.
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	sl.logger.ErrorContext(ctx, msg, fields.WithError(err).WithOperation(operation).ToSlice()...)
}
