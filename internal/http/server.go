// Package http serves the classifier over a small JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"spendwise/internal/core"
	applog "spendwise/internal/log"
	"spendwise/internal/middleware/ratelimit"
	"spendwise/internal/middleware/security"
	"spendwise/internal/middleware/trace"
	"spendwise/internal/ports"
)

// ModelAPI is the part of services.ModelService the server depends on.
type ModelAPI interface {
	Predict(ctx context.Context, inputs []core.ClassificationInput) ([]core.Prediction, error)
	Retrain(ctx context.Context) (core.RetrainResult, error)
	Metrics(ctx context.Context) core.ModelMetrics
}

type Options struct {
	AllowedOrigins     []string
	RateLimitPerMinute int
	// TrustedProxies are extra CIDRs allowed to set X-Forwarded-For.
	TrustedProxies []string
	Logger         *applog.Logger
}

type Server struct {
	http.Server

	models    ModelAPI
	directory ports.CategoryDirectory
	validate  *validator.Validate
	logger    *applog.Logger
	started   time.Time

	detector    *security.Detector
	rateLimiter *ratelimit.Limiter
	tracer      *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware. The readiness probe pings directory.
func NewServer(addr string, models ModelAPI, directory ports.CategoryDirectory, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", applog.FieldError, err)
		}
	}
	s := &Server{
		models:      models,
		directory:   directory,
		validate:    newValidator(),
		logger:      logger,
		started:     time.Now(),
		detector:    detector,
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		tracer:      trace.NewMiddleware(logger, detector.ExtractClientIP),
	}

	mux := http.NewServeMux()
	mux.Handle("/model/predict", allow(http.MethodPost, s.handlePredict))
	mux.Handle("/model/retrain", allow(http.MethodPost, s.handleRetrain))
	mux.Handle("/model/metrics", allow(http.MethodGet, s.handleModelMetrics))
	mux.Handle("/healthz", allow(http.MethodGet, s.handleHealth))
	mux.Handle("/readyz", allow(http.MethodGet, s.handleReady))
	mux.Handle("/metrics", allow(http.MethodGet, s.handleMetrics))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})

	limit := s.rateLimiter.Middleware(detector.ExtractClientIP, ratelimit.OnlyMethods(http.MethodPost),
		func(w http.ResponseWriter, r *http.Request) {
			applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).Warn("Rate limit exceeded",
				applog.FieldClientIP, detector.ExtractClientIP(r),
				applog.FieldPath, r.URL.Path)
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
		})

	var handler http.Handler = mux
	handler = limit(handler)
	handler = corsMiddleware(opts.AllowedOrigins)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig(), detector).Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// retraining runs inside the request
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}
	return s
}

// allow answers other methods with 405 and an Allow header.
func allow(method string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
			return
		}
		h(w, r)
	})
}

// Shutdown stops background goroutines and drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
