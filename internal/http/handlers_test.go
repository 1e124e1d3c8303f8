package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/atmo/internal/circuitbreaker"
	"github.com/kjstillabower/atmo/internal/lifecycle"
	"github.com/kjstillabower/atmo/internal/models"
	"github.com/kjstillabower/atmo/internal/service"
	"github.com/kjstillabower/atmo/internal/traffic"
)

type mockConditions struct {
	mu        sync.Mutex
	snap      service.Snapshot
	setup     bool
	notReady  bool
	lastReq   service.Request
	currents  int
	refreshes int
}

func (m *mockConditions) Current(ctx context.Context, req service.Request) service.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currents++
	m.lastReq = req
	return m.snap
}

func (m *mockConditions) Refresh(ctx context.Context, req service.Request) service.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes++
	m.lastReq = req
	return m.snap
}

func (m *mockConditions) SetupRequired() bool { return m.setup }

func (m *mockConditions) Started() bool { return !m.notReady }

func (m *mockConditions) last() service.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReq
}

func sampleSnapshot() service.Snapshot {
	return service.Snapshot{
		Reading:     models.WeatherReading{Temperature: 21.6, Condition: models.ConditionClear, LocationLabel: "Paris, France"},
		Condition:   models.ConditionClear,
		Temperature: "22°",
	}
}

func serving(t *testing.T) {
	t.Helper()
	lifecycle.Reset()
	lifecycle.SetPhase(lifecycle.Serving)
	t.Cleanup(lifecycle.Reset)
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body struct {
		Error map[string]string `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

// TestHandler_GetConditions_Success verifies the snapshot is returned and the
// forwarded position, client IP and contrast mode reach the service.
func TestHandler_GetConditions_Success(t *testing.T) {
	conds := &mockConditions{snap: sampleSnapshot()}
	handler := NewHandler(conds, nil, nil, zap.NewNop())
	handler.TrustProxies([]netip.Prefix{netip.MustParsePrefix("192.0.2.0/24")})

	req := httptest.NewRequest("GET", "/conditions?lat=48.8566&lon=2.3522&tz=Europe/Paris&contrast=high", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	w := httptest.NewRecorder()

	handler.GetConditions(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got service.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Reading.LocationLabel != "Paris, France" || got.Temperature != "22°" {
		t.Errorf("response = %+v", got)
	}

	sent := conds.last()
	if sent.Hint.Coordinates == nil || sent.Hint.Coordinates.Latitude != 48.8566 {
		t.Errorf("Hint.Coordinates = %v, want 48.8566,2.3522", sent.Hint.Coordinates)
	}
	if sent.Hint.ClientIP != "203.0.113.9" {
		t.Errorf("ClientIP = %q, want 203.0.113.9", sent.Hint.ClientIP)
	}
	if sent.Hint.Timezone != "Europe/Paris" {
		t.Errorf("Timezone = %q", sent.Hint.Timezone)
	}
	if !sent.HighContrast || sent.Force {
		t.Errorf("HighContrast = %v, Force = %v", sent.HighContrast, sent.Force)
	}
}

func TestHandler_GetConditions_GeoMarker(t *testing.T) {
	tests := []struct {
		marker string
		want   error
	}{
		{"denied", models.ErrLocationDenied},
		{"timeout", models.ErrLocationTimeout},
		{"unsupported", models.ErrLocationUnsupported},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.marker, func(t *testing.T) {
			conds := &mockConditions{}
			handler := NewHandler(conds, nil, nil, nil)

			w := httptest.NewRecorder()
			handler.GetConditions(w, httptest.NewRequest("GET", "/conditions?geo="+tt.marker, nil))

			got := conds.last().Hint
			if got.Coordinates != nil {
				t.Errorf("Coordinates = %v, want nil", got.Coordinates)
			}
			if !errors.Is(got.GeoError, tt.want) || (tt.want == nil && got.GeoError != nil) {
				t.Errorf("GeoError = %v, want %v", got.GeoError, tt.want)
			}
		})
	}
}

func TestHandler_GetConditions_InvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantCode string
	}{
		{"lat only", "/conditions?lat=10", "INVALID_COORDINATES"},
		{"not a number", "/conditions?lat=north&lon=2", "INVALID_COORDINATES"},
		{"out of range", "/conditions?lat=91&lon=2", "INVALID_COORDINATES"},
		{"bad zone", "/conditions?tz=Mars/Olympus", "INVALID_TIMEZONE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conds := &mockConditions{}
			handler := NewHandler(conds, nil, nil, nil)

			req := httptest.NewRequest("GET", tt.url, nil)
			req = req.WithContext(context.WithValue(req.Context(), "correlation_id", "test-correlation-id"))
			w := httptest.NewRecorder()
			handler.GetConditions(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			body := decodeError(t, w)
			if body["code"] != tt.wantCode {
				t.Errorf("code = %q, want %q", body["code"], tt.wantCode)
			}
			if body["requestId"] != "test-correlation-id" {
				t.Errorf("requestId = %q", body["requestId"])
			}
			if conds.currents != 0 {
				t.Error("service called on invalid input")
			}
		})
	}
}

func TestHandler_PostLocate_Forces(t *testing.T) {
	conds := &mockConditions{snap: sampleSnapshot()}
	handler := NewHandler(conds, nil, nil, nil)

	w := httptest.NewRecorder()
	handler.PostLocate(w, httptest.NewRequest("POST", "/conditions/locate?geo=denied", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if conds.refreshes != 1 || !conds.last().Force {
		t.Errorf("refreshes = %d, Force = %v", conds.refreshes, conds.last().Force)
	}
}

func TestHandler_SearchConditions(t *testing.T) {
	conds := &mockConditions{snap: sampleSnapshot()}
	handler := NewHandler(conds, nil, nil, nil)

	w := httptest.NewRecorder()
	handler.SearchConditions(w, httptest.NewRequest("GET", "/conditions/search?q=++San+Sebasti%C3%A1n,+Spain", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := conds.last().Query; got != "San Sebastián, Spain" {
		t.Errorf("Query = %q, want San Sebastián, Spain", got)
	}
}

func TestHandler_SearchConditions_InvalidQuery(t *testing.T) {
	for _, q := range []string{"", "+++", "x", "Paris%3Cscript%3E"} {
		conds := &mockConditions{}
		handler := NewHandler(conds, nil, nil, nil)

		w := httptest.NewRecorder()
		handler.SearchConditions(w, httptest.NewRequest("GET", "/conditions/search?q="+q, nil))

		if w.Code != http.StatusBadRequest {
			t.Errorf("q=%q status = %d, want 400", q, w.Code)
			continue
		}
		if body := decodeError(t, w); body["code"] != "INVALID_QUERY" {
			t.Errorf("q=%q code = %q", q, body["code"])
		}
		if conds.refreshes != 0 {
			t.Errorf("q=%q reached the service", q)
		}
	}
}

func TestClientIP(t *testing.T) {
	proxies := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8"), netip.MustParsePrefix("2001:db8:ff::/48")}
	tests := []struct {
		name       string
		trusted    []netip.Prefix
		forwarded  string
		remoteAddr string
		want       string
	}{
		{"trusted proxy forwards first hop", proxies, "198.51.100.7, 10.0.0.2", "10.0.0.2:5000", "198.51.100.7"},
		{"trusted ipv6 proxy", proxies, "203.0.113.5", "[2001:db8:ff::9]:443", "203.0.113.5"},
		{"trusted mapped ipv4 peer", proxies, "203.0.113.6", "[::ffff:10.1.2.3]:80", "203.0.113.6"},
		{"untrusted peer ignores header", proxies, "198.51.100.7", "192.0.2.4:1234", "192.0.2.4"},
		{"no proxies configured", nil, "198.51.100.7", "10.0.0.2:5000", "10.0.0.2"},
		{"garbage forwarded", proxies, "unknown", "10.0.0.2:1234", "10.0.0.2"},
		{"remote only", nil, "", "[2001:db8::1]:443", "2001:db8::1"},
		{"no port", nil, "", "192.0.2.5", "192.0.2.5"},
		{"unparseable", proxies, "198.51.100.7", "pipe", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&mockConditions{}, nil, nil, nil)
			h.TrustProxies(tt.trusted)
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := h.clientIP(r); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestHandler_GetConditions_SpoofedForwardedFor verifies a direct client cannot
// pick the address used for place lookup.
func TestHandler_GetConditions_SpoofedForwardedFor(t *testing.T) {
	conds := &mockConditions{snap: sampleSnapshot()}
	handler := NewHandler(conds, nil, nil, nil)

	req := httptest.NewRequest("GET", "/conditions", nil)
	req.RemoteAddr = "198.51.100.20:40000"
	req.Header.Set("X-Forwarded-For", "8.8.8.8")
	handler.GetConditions(httptest.NewRecorder(), req)

	if got := conds.last().Hint.ClientIP; got != "198.51.100.20" {
		t.Errorf("ClientIP = %q, want the peer address", got)
	}
}

func healthOf(t *testing.T, h *Handler) (int, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	h.GetHealth(w, httptest.NewRequest("GET", "/health", nil))
	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	return w.Code, body
}

func TestHandler_GetHealth(t *testing.T) {
	serving(t)
	handler := NewHandler(&mockConditions{}, nil, nil, nil)

	code, body := healthOf(t, handler)
	if code != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("health = %d %v, want 200 healthy", code, body["status"])
	}
	if body["service"] != "atmo" {
		t.Errorf("service = %v", body["service"])
	}
	checks, _ := body["checks"].(map[string]interface{})
	if checks["weatherSource"] != "healthy" {
		t.Errorf("checks = %v", checks)
	}
}

func TestHandler_GetHealth_States(t *testing.T) {
	breakerOpen := func() circuitbreaker.State { return circuitbreaker.StateOpen }

	tests := []struct {
		name       string
		phase      lifecycle.Phase
		conds      *mockConditions
		cfg        *HealthConfig
		record     func(tr *traffic.Tracker)
		wantCode   int
		wantStatus string
	}{
		{
			name:       "starting",
			phase:      lifecycle.Starting,
			conds:      &mockConditions{notReady: true},
			wantCode:   http.StatusOK,
			wantStatus: "starting",
		},
		{
			name:       "shutting down wins over setup",
			phase:      lifecycle.ShuttingDown,
			conds:      &mockConditions{setup: true},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "shutting-down",
		},
		{
			name:       "setup required",
			phase:      lifecycle.Serving,
			conds:      &mockConditions{setup: true},
			cfg:        &HealthConfig{BreakerState: breakerOpen},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "setup-required",
		},
		{
			name:       "breaker open",
			phase:      lifecycle.Serving,
			conds:      &mockConditions{},
			cfg:        &HealthConfig{BreakerState: breakerOpen},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "degraded",
		},
		{
			name:  "overloaded",
			phase: lifecycle.Serving,
			conds: &mockConditions{},
			cfg:   &HealthConfig{OverloadWindow: time.Minute, OverloadDenials: 3},
			record: func(tr *traffic.Tracker) {
				for i := 0; i < 3; i++ {
					tr.RecordDenied()
				}
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "overloaded",
		},
		{
			name:  "error rate",
			phase: lifecycle.Serving,
			conds: &mockConditions{},
			cfg:   &HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 50, DegradedMinSamples: 2},
			record: func(tr *traffic.Tracker) {
				tr.RecordSuccess()
				tr.RecordFailure()
				tr.RecordFailure()
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "degraded",
		},
		{
			name:  "below min samples",
			phase: lifecycle.Serving,
			conds: &mockConditions{},
			cfg:   &HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 50, DegradedMinSamples: 5},
			record: func(tr *traffic.Tracker) {
				tr.RecordFailure()
			},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lifecycle.Reset()
			t.Cleanup(lifecycle.Reset)
			lifecycle.SetPhase(tt.phase)

			tracker := traffic.NewTracker()
			if tt.record != nil {
				tt.record(tracker)
			}
			handler := NewHandler(tt.conds, tracker, tt.cfg, nil)

			code, body := healthOf(t, handler)
			if code != tt.wantCode || body["status"] != tt.wantStatus {
				t.Errorf("health = %d %v, want %d %s", code, body["status"], tt.wantCode, tt.wantStatus)
			}
		})
	}
}

func TestHandler_GetHealth_CachePing(t *testing.T) {
	serving(t)
	handler := NewHandler(&mockConditions{}, nil, &HealthConfig{
		CachePing: func(context.Context) error { return errors.New("dial tcp: connection refused") },
		Version:   "1.2.3",
	}, nil)

	_, body := healthOf(t, handler)
	checks, _ := body["checks"].(map[string]interface{})
	if checks["cache"] != "unhealthy" {
		t.Errorf("checks[cache] = %v, want unhealthy", checks["cache"])
	}
	if body["version"] != "1.2.3" {
		t.Errorf("version = %v", body["version"])
	}
}

// TestHandler_GetHealth_LogsTransition verifies a single log line per status change.
func TestHandler_GetHealth_LogsTransition(t *testing.T) {
	serving(t)
	core, logs := observer.New(zap.DebugLevel)
	conds := &mockConditions{}
	handler := NewHandler(conds, nil, nil, zap.New(core))

	healthOf(t, handler)
	if logs.Len() != 0 {
		t.Fatalf("first call logged %d entries, want 0", logs.Len())
	}

	conds.setup = true
	healthOf(t, handler)
	healthOf(t, handler)

	entries := logs.FilterMessage("health status transition").All()
	if len(entries) != 1 {
		t.Fatalf("transition logs = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["previous_status"] != "healthy" || fields["current_status"] != "setup-required" || fields["reason"] != "setup_required" {
		t.Errorf("transition fields = %v", fields)
	}
}
