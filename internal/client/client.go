package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/atmo/internal/models"
	"github.com/kjstillabower/atmo/internal/observability"
)

// Upstream labels used in metrics.
const (
	UpstreamWeather   = "weather"
	UpstreamGeocoding = "geocoding"
	UpstreamIPLookup  = "ip_lookup"
)

const currentFields = "temperature_2m,relative_humidity_2m,is_day,precipitation,weather_code,wind_speed_10m"

// Forecast is the current-conditions slice of an Open-Meteo forecast.
// Sunrise and Sunset are the upstream local ISO timestamps ("2026-06-01T05:48").
type Forecast struct {
	Temperature      float64
	Humidity         float64
	Precipitation    float64
	WindSpeed        float64
	WeatherCode      int
	IsDay            *bool
	Sunrise          string
	Sunset           string
	Timezone         string
	UTCOffsetSeconds int
}

// Place is the top geocoding candidate for a name.
type Place struct {
	Name      string
	Admin1    string
	Country   string
	Latitude  float64
	Longitude float64
	Timezone  string
}

// Label renders "City, Country", or just the name when the country is unknown.
func (p Place) Label() string {
	if p.Country == "" {
		return p.Name
	}
	return p.Name + ", " + p.Country
}

// Coordinates returns the place position.
func (p Place) Coordinates() models.Coordinates {
	return models.Coordinates{Latitude: p.Latitude, Longitude: p.Longitude}
}

// OpenMeteoClient talks to the Open-Meteo forecast and geocoding endpoints.
// It never retries; every call is one HTTP request.
type OpenMeteoClient struct {
	forecastURL  string
	geocodingURL string
	timeout      time.Duration
	client       *http.Client
}

func NewOpenMeteoClient(forecastURL, geocodingURL string, timeout time.Duration) *OpenMeteoClient {
	return &OpenMeteoClient{
		forecastURL:  forecastURL,
		geocodingURL: geocodingURL,
		timeout:      timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type forecastResponse struct {
	Timezone         string `json:"timezone"`
	UTCOffsetSeconds int    `json:"utc_offset_seconds"`
	Current          *struct {
		Temperature   *float64 `json:"temperature_2m"`
		Humidity      float64  `json:"relative_humidity_2m"`
		IsDay         *int     `json:"is_day"`
		Precipitation float64  `json:"precipitation"`
		WeatherCode   *int     `json:"weather_code"`
		WindSpeed     float64  `json:"wind_speed_10m"`
	} `json:"current"`
	Daily struct {
		Sunrise []string `json:"sunrise"`
		Sunset  []string `json:"sunset"`
	} `json:"daily"`
}

type geocodingResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Admin1    string  `json:"admin1"`
		Country   string  `json:"country"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Timezone  string  `json:"timezone"`
	} `json:"results"`
}

// Forecast fetches current conditions and today's sunrise/sunset at c.
func (c *OpenMeteoClient) Forecast(ctx context.Context, at models.Coordinates) (Forecast, error) {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(at.Latitude, 'f', 4, 64))
	params.Set("longitude", strconv.FormatFloat(at.Longitude, 'f', 4, 64))
	params.Set("current", currentFields)
	params.Set("daily", "sunrise,sunset")
	params.Set("timezone", "auto")
	params.Set("forecast_days", "1")

	var resp forecastResponse
	if err := c.getJSON(ctx, UpstreamWeather, c.forecastURL, params, &resp); err != nil {
		return Forecast{}, err
	}
	if resp.Current == nil || resp.Current.Temperature == nil || resp.Current.WeatherCode == nil {
		return Forecast{}, fmt.Errorf("%w: forecast missing current conditions", models.ErrUpstreamMalformed)
	}

	f := Forecast{
		Temperature:      *resp.Current.Temperature,
		Humidity:         resp.Current.Humidity,
		Precipitation:    resp.Current.Precipitation,
		WindSpeed:        resp.Current.WindSpeed,
		WeatherCode:      *resp.Current.WeatherCode,
		Timezone:         resp.Timezone,
		UTCOffsetSeconds: resp.UTCOffsetSeconds,
	}
	if resp.Current.IsDay != nil {
		isDay := *resp.Current.IsDay == 1
		f.IsDay = &isDay
	}
	if len(resp.Daily.Sunrise) > 0 {
		f.Sunrise = resp.Daily.Sunrise[0]
	}
	if len(resp.Daily.Sunset) > 0 {
		f.Sunset = resp.Daily.Sunset[0]
	}
	return f, nil
}

// Geocode returns the top candidate for name. ErrLocationNotFound when there is none.
func (c *OpenMeteoClient) Geocode(ctx context.Context, name string) (Place, error) {
	params := url.Values{}
	params.Set("name", strings.TrimSpace(name))
	params.Set("count", "1")
	params.Set("language", "en")
	params.Set("format", "json")

	var resp geocodingResponse
	if err := c.getJSON(ctx, UpstreamGeocoding, c.geocodingURL, params, &resp); err != nil {
		return Place{}, err
	}
	if len(resp.Results) == 0 {
		return Place{}, fmt.Errorf("%w: %q", models.ErrLocationNotFound, name)
	}
	r := resp.Results[0]
	return Place{
		Name:      r.Name,
		Admin1:    r.Admin1,
		Country:   r.Country,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Timezone:  r.Timezone,
	}, nil
}

func (c *OpenMeteoClient) getJSON(ctx context.Context, upstream, rawURL string, params url.Values, out interface{}) error {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := buildRequest(reqCtx, rawURL, params)
	if err != nil {
		observability.ObserveUpstream(upstream, "error", time.Since(start).Seconds())
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.ObserveUpstream(upstream, "error", time.Since(start).Seconds())
		return fmt.Errorf("%w: %s request: %w", models.ErrNetworkUnavailable, upstream, err)
	}
	defer resp.Body.Close()

	observability.ObserveUpstream(upstream, observability.StatusLabel(resp.StatusCode), time.Since(start).Seconds())

	if err := handleErrorResponse(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response body: %w", models.ErrNetworkUnavailable, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: parse response: %w", models.ErrUpstreamMalformed, err)
	}
	return nil
}

func buildRequest(ctx context.Context, rawURL string, params url.Values) (*http.Request, error) {
	baseURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	if params != nil {
		baseURL.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

// errorBody is the error envelope shared by Open-Meteo and ipapi.
type errorBody struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

func handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	reason := ""
	if raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil {
			reason = eb.Reason
		}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP 429 %s", models.ErrUpstreamQuotaExceeded, reason)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: HTTP 404", models.ErrLocationNotFound)
	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: HTTP 400 %s", models.ErrUpstreamMalformed, reason)
	}
	return fmt.Errorf("%w: HTTP %d", models.ErrNetworkUnavailable, resp.StatusCode)
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}
