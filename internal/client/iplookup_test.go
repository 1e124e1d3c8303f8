package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kjstillabower/atmo/internal/models"
)

func TestIPLookup_FindPlace(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"ip":"203.0.113.9","city":"Paris","region":"Île-de-France","country_name":"France"}`))
	}))
	defer server.Close()

	l := NewIPLookup(server.URL+"/", server.Client())
	got, err := l.FindPlace(context.Background(), "203.0.113.9", "")
	if err != nil {
		t.Fatalf("FindPlace() error = %v", err)
	}
	if got != "Paris, France" {
		t.Errorf("FindPlace() = %q, want Paris, France", got)
	}
	if gotPath != "/203.0.113.9/json/" {
		t.Errorf("path = %q, want /203.0.113.9/json/", gotPath)
	}
}

// TestIPLookup_LookupURL verifies non-public client addresses fall back to the
// caller's own address.
func TestIPLookup_LookupURL(t *testing.T) {
	l := NewIPLookup("https://ipapi.example", nil)
	tests := []struct {
		ip   string
		want string
	}{
		{"", "https://ipapi.example/json/"},
		{"127.0.0.1", "https://ipapi.example/json/"},
		{"10.0.0.4", "https://ipapi.example/json/"},
		{"::1", "https://ipapi.example/json/"},
		{"garbage", "https://ipapi.example/json/"},
		{"8.8.8.8", "https://ipapi.example/8.8.8.8/json/"},
	}
	for _, tt := range tests {
		if got := l.lookupURL(tt.ip); got != tt.want {
			t.Errorf("lookupURL(%q) = %q, want %q", tt.ip, got, tt.want)
		}
	}
}

func TestIPLookup_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"rate limited status", http.StatusTooManyRequests, `{}`, models.ErrUpstreamQuotaExceeded},
		{"rate limited body", http.StatusOK, `{"error":true,"reason":"RateLimited"}`, models.ErrUpstreamQuotaExceeded},
		{"reserved address", http.StatusOK, `{"error":true,"reason":"Reserved IP Address"}`, models.ErrLocationNotFound},
		{"empty place", http.StatusOK, `{"ip":"1.2.3.4"}`, models.ErrLocationNotFound},
		{"malformed", http.StatusOK, `<html>`, models.ErrUpstreamMalformed},
		{"server error", http.StatusServiceUnavailable, ``, models.ErrNetworkUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewIPLookup(server.URL, nil).FindPlace(context.Background(), "", "")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("FindPlace() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestIPLookup_CityOnly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"city":"Monaco"}`))
	}))
	defer server.Close()

	got, err := NewIPLookup(server.URL, nil).FindPlace(context.Background(), "", "")
	if err != nil || got != "Monaco" {
		t.Errorf("FindPlace() = %q, %v", got, err)
	}
}
