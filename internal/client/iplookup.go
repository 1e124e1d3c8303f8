package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kjstillabower/atmo/internal/models"
	"github.com/kjstillabower/atmo/internal/observability"
)

// IPLookup resolves an approximate "City, Country" from an IP address using an
// ipapi-style JSON service. The lookup sets no deadline of its own; it relies
// on the caller's context and the HTTP client's defaults.
type IPLookup struct {
	baseURL string
	client  *http.Client
}

// NewIPLookup builds a lookup against baseURL (e.g. "https://ipapi.co").
// A nil httpClient uses http.DefaultClient.
func NewIPLookup(baseURL string, httpClient *http.Client) *IPLookup {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &IPLookup{baseURL: strings.TrimRight(baseURL, "/"), client: httpClient}
}

type ipLookupResponse struct {
	City        string `json:"city"`
	CountryName string `json:"country_name"`
	Error       bool   `json:"error"`
	Reason      string `json:"reason"`
}

// FindPlace returns "City, Country" for clientIP. Private, loopback or empty
// addresses look up the caller's own public address instead. The timezone is
// not used by this finder.
func (l *IPLookup) FindPlace(ctx context.Context, clientIP, _ string) (string, error) {
	start := time.Now()

	req, err := buildRequest(ctx, l.lookupURL(clientIP), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		observability.ObserveUpstream(UpstreamIPLookup, "error", time.Since(start).Seconds())
		return "", fmt.Errorf("%w: ip lookup: %w", models.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	observability.ObserveUpstream(UpstreamIPLookup, observability.StatusLabel(resp.StatusCode), time.Since(start).Seconds())

	if err := handleErrorResponse(resp); err != nil {
		return "", err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response body: %w", models.ErrNetworkUnavailable, err)
	}
	var out ipLookupResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: parse ip lookup: %w", models.ErrUpstreamMalformed, err)
	}
	if out.Error {
		if strings.Contains(strings.ToLower(out.Reason), "ratelimit") {
			return "", fmt.Errorf("%w: %s", models.ErrUpstreamQuotaExceeded, out.Reason)
		}
		return "", fmt.Errorf("%w: %s", models.ErrLocationNotFound, out.Reason)
	}

	city := strings.TrimSpace(out.City)
	country := strings.TrimSpace(out.CountryName)
	switch {
	case city != "" && country != "":
		return city + ", " + country, nil
	case city != "":
		return city, nil
	case country != "":
		return country, nil
	}
	return "", fmt.Errorf("%w: ip lookup returned no place", models.ErrLocationNotFound)
}

func (l *IPLookup) lookupURL(clientIP string) string {
	if ip := net.ParseIP(strings.TrimSpace(clientIP)); ip != nil && isPublic(ip) {
		return l.baseURL + "/" + ip.String() + "/json/"
	}
	return l.baseURL + "/json/"
}

func isPublic(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast())
}
