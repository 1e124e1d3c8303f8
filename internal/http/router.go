package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/atmo/internal/observability"
	"github.com/kjstillabower/atmo/internal/traffic"
)

// RouterConfig holds the transport settings for NewRouter. A nil Limiter
// disables rate limiting; a zero RequestTimeout disables the deadline.
type RouterConfig struct {
	Limiter        *rate.Limiter
	Tracker        *traffic.Tracker
	RequestTimeout time.Duration
}

// NewRouter wires the routes:
//
//	GET  /conditions          current snapshot
//	POST /conditions/locate   re-run location resolution
//	GET  /conditions/search   manual place search (?q=)
//	GET  /health
//	GET  /metrics
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(NotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(MethodNotAllowed)
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	conditions := router.PathPrefix("/conditions").Subrouter()
	conditions.MethodNotAllowedHandler = router.MethodNotAllowedHandler
	conditions.Use(RateLimitMiddleware(cfg.Limiter, cfg.Tracker))
	if cfg.RequestTimeout > 0 {
		conditions.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	conditions.HandleFunc("", h.GetConditions).Methods(http.MethodGet)
	conditions.HandleFunc("/locate", h.PostLocate).Methods(http.MethodPost)
	conditions.HandleFunc("/search", h.SearchConditions).Methods(http.MethodGet)
	return router
}
