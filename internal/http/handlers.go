package http

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/atmo/internal/circuitbreaker"
	"github.com/kjstillabower/atmo/internal/lifecycle"
	"github.com/kjstillabower/atmo/internal/locate"
	"github.com/kjstillabower/atmo/internal/service"
	"github.com/kjstillabower/atmo/internal/traffic"
	"github.com/kjstillabower/atmo/internal/validation"
)

// Search query bounds in runes.
const (
	minQueryLen = 2
	maxQueryLen = 100
)

// Conditions is the part of the service the handlers use.
type Conditions interface {
	Current(ctx context.Context, req service.Request) service.Snapshot
	Refresh(ctx context.Context, req service.Request) service.Snapshot
	SetupRequired() bool
	Started() bool
}

// HealthConfig holds thresholds for the health handler. Zero values disable a check.
type HealthConfig struct {
	DegradedWindow     time.Duration
	DegradedErrorPct   int
	DegradedMinSamples int
	OverloadWindow     time.Duration
	OverloadDenials    int
	// BreakerState, when set, reports the upstream circuit breaker.
	BreakerState func() circuitbreaker.State
	// CachePing, when set, is called to check cache reachability.
	CachePing func(ctx context.Context) error
	Version   string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	conditions       Conditions
	tracker          *traffic.Tracker
	healthConfig     *HealthConfig
	logger           *zap.Logger
	trustedProxies   []netip.Prefix
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. tracker and healthConfig may be nil.
func NewHandler(conditions Conditions, tracker *traffic.Tracker, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		conditions:   conditions,
		tracker:      tracker,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// TrustProxies sets the peers allowed to report the client address through
// X-Forwarded-For. Without any, the header is ignored.
func (h *Handler) TrustProxies(prefixes []netip.Prefix) {
	h.trustedProxies = prefixes
}

// GetConditions handles GET /conditions. The first call after startup runs
// the acquisition pipeline; later calls return the current slot.
func (h *Handler) GetConditions(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.conditions.Current(r.Context(), req))
}

// PostLocate handles POST /conditions/locate: skip the cache and re-run location resolution.
func (h *Handler) PostLocate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}
	req.Force = true
	writeJSON(w, http.StatusOK, h.conditions.Refresh(r.Context(), req))
}

// SearchConditions handles GET /conditions/search?q=.
func (h *Handler) SearchConditions(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}
	q, err := validation.ValidateQuery(r.URL.Query().Get("q"), minQueryLen, maxQueryLen)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	req.Query = q
	writeJSON(w, http.StatusOK, h.conditions.Refresh(r.Context(), req))
}

// parseRequest reads the forwarded geolocation result and display options.
// Writes a 400 and returns false on invalid input.
func (h *Handler) parseRequest(w http.ResponseWriter, r *http.Request) (service.Request, bool) {
	q := r.URL.Query()

	coords, err := validation.ParseCoordinates(q.Get("lat"), q.Get("lon"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
		return service.Request{}, false
	}
	tz, err := validation.ValidateTimezone(q.Get("tz"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_TIMEZONE", err.Error())
		return service.Request{}, false
	}

	hint := locate.Hint{
		Coordinates: coords,
		ClientIP:    h.clientIP(r),
		Timezone:    tz,
	}
	if coords == nil {
		hint.GeoError = locate.ParseGeoError(q.Get("geo"))
	}
	return service.Request{
		Hint:         hint,
		HighContrast: strings.EqualFold(q.Get("contrast"), "high"),
	}, true
}

// clientIP returns the peer address. The first X-Forwarded-For hop replaces it
// only when the peer is a trusted proxy.
func (h *Handler) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil {
		return ""
	}
	peer = peer.Unmap()

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" && h.trusted(peer) {
		first, _, _ := strings.Cut(fwd, ",")
		if ip, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return ip.Unmap().String()
		}
	}
	return peer.String()
}

func (h *Handler) trusted(peer netip.Addr) bool {
	for _, p := range h.trustedProxies {
		if p.Contains(peer) {
			return true
		}
	}
	return false
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"weatherSource": "healthy"}
	if result.reason == "breaker_open" || result.reason == "error_rate_breach" {
		checks["weatherSource"] = "unhealthy"
	}
	if result.reason == "setup_required" {
		checks["weatherSource"] = "unconfigured"
	}
	if !h.conditions.Started() {
		checks["reading"] = "pending"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if err := h.healthConfig.CachePing(r.Context()); err == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	version := "dev"
	if h.healthConfig != nil && h.healthConfig.Version != "" {
		version = h.healthConfig.Version
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   "atmo",
		"version":   version,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > setup-required > starting > breaker open > overloaded > degraded > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	// Retrying cannot fix a missing credential, so this outranks everything transient.
	if h.conditions.SetupRequired() {
		return healthResult{"setup-required", http.StatusServiceUnavailable, "setup_required"}
	}
	if lifecycle.Current() == lifecycle.Starting {
		return healthResult{"starting", http.StatusOK, "startup"}
	}
	cfg := h.healthConfig
	if cfg == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if cfg.BreakerState != nil && cfg.BreakerState() == circuitbreaker.StateOpen {
		return healthResult{"degraded", http.StatusServiceUnavailable, "breaker_open"}
	}
	if h.tracker != nil && cfg.OverloadWindow > 0 && cfg.OverloadDenials > 0 {
		if h.tracker.DenialCount(cfg.OverloadWindow) >= cfg.OverloadDenials {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	if h.tracker != nil && cfg.DegradedWindow > 0 && cfg.DegradedErrorPct > 0 {
		if h.tracker.Degraded(cfg.DegradedWindow, float64(cfg.DegradedErrorPct)/100, cfg.DegradedMinSamples) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v, ok := r.Context().Value("correlation_id").(string); ok {
		corrID = v
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// NotFound answers unknown routes in the standard error format.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "NOT_FOUND", "no such route")
}

// MethodNotAllowed answers known routes hit with the wrong method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}
