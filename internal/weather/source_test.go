package weather

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kjstillabower/atmo/internal/circuitbreaker"
	"github.com/kjstillabower/atmo/internal/client"
	"github.com/kjstillabower/atmo/internal/generative"
	"github.com/kjstillabower/atmo/internal/models"
)

type mockForecaster struct {
	forecast     client.Forecast
	forecastErr  error
	place        client.Place
	geocodeErr   error
	geocoded     []string
	forecastedAt []models.Coordinates
}

func (m *mockForecaster) Forecast(ctx context.Context, at models.Coordinates) (client.Forecast, error) {
	m.forecastedAt = append(m.forecastedAt, at)
	return m.forecast, m.forecastErr
}

func (m *mockForecaster) Geocode(ctx context.Context, name string) (client.Place, error) {
	m.geocoded = append(m.geocoded, name)
	return m.place, m.geocodeErr
}

type mockLabeler struct {
	label string
	err   error
}

func (m mockLabeler) Label(context.Context, models.Coordinates) (string, error) {
	return m.label, m.err
}

func boolPtr(b bool) *bool { return &b }

func parisForecast() client.Forecast {
	return client.Forecast{
		Temperature:      21.4,
		Humidity:         40,
		WindSpeed:        8.3,
		WeatherCode:      2,
		IsDay:            boolPtr(true),
		Sunrise:          "2026-06-01T05:48",
		Sunset:           "2026-06-01T21:47",
		Timezone:         "Europe/Paris",
		UTCOffsetSeconds: 7200,
	}
}

func newTestAPISource(f *mockForecaster, l Labeler, now time.Time) *APISource {
	s := NewAPISource(f, l, nil)
	s.now = func() time.Time { return now }
	return s
}

// TestAPISource_Fetch_NamedPlace verifies a text-only descriptor is geocoded to
// its top candidate before the forecast call.
func TestAPISource_Fetch_NamedPlace(t *testing.T) {
	f := &mockForecaster{
		forecast: parisForecast(),
		place:    client.Place{Name: "Paris", Country: "France", Latitude: 48.85, Longitude: 2.35},
	}
	noonParis := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC) // 12:00 CEST
	s := newTestAPISource(f, nil, noonParis)

	res, err := s.Fetch(context.Background(), models.NamedPlace("Paris"))
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	r := res.Reading
	if r.LocationLabel != "Paris, France" {
		t.Errorf("LocationLabel = %q", r.LocationLabel)
	}
	if r.Condition != models.ConditionCloudy {
		t.Errorf("Condition = %q, want cloudy", r.Condition)
	}
	if r.Sunrise != "05:48" || r.Sunset != "21:47" {
		t.Errorf("Sunrise/Sunset = %q/%q", r.Sunrise, r.Sunset)
	}
	if r.WeatherCode == nil || *r.WeatherCode != 2 {
		t.Errorf("WeatherCode = %v", r.WeatherCode)
	}
	if r.Source != models.SourceAPI || !r.FetchedAt.Equal(noonParis) {
		t.Errorf("Source = %q FetchedAt = %v", r.Source, r.FetchedAt)
	}
	if len(f.geocoded) != 1 || f.geocoded[0] != "Paris" {
		t.Errorf("geocoded = %v", f.geocoded)
	}
	if f.forecastedAt[0].Latitude != 48.85 {
		t.Errorf("forecast at %v", f.forecastedAt[0])
	}
}

// TestAPISource_Fetch_NightFromSunTimes verifies day/night comes from the
// location's sunrise/sunset rather than the upstream flag.
func TestAPISource_Fetch_NightFromSunTimes(t *testing.T) {
	f := &mockForecaster{forecast: parisForecast()}
	f.forecast.IsDay = boolPtr(true)                           // stale upstream flag
	lateParis := time.Date(2026, 6, 1, 21, 30, 0, 0, time.UTC) // 23:30 CEST
	s := newTestAPISource(f, nil, lateParis)

	res, err := s.Fetch(context.Background(), models.AtCoordinates(48.85, 2.35))
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.Reading.Condition != models.ConditionNight {
		t.Errorf("Condition = %q, want night", res.Reading.Condition)
	}
}

func TestAPISource_Fetch_IsDayFallback(t *testing.T) {
	f := &mockForecaster{forecast: parisForecast()}
	f.forecast.Sunrise, f.forecast.Sunset = "", ""
	f.forecast.IsDay = boolPtr(false)
	s := newTestAPISource(f, nil, time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC))

	res, _ := s.Fetch(context.Background(), models.AtCoordinates(48.85, 2.35))
	if res.Reading.Condition != models.ConditionNight {
		t.Errorf("Condition = %q, want night from is_day=0", res.Reading.Condition)
	}
}

func TestAPISource_Fetch_CoordinateLabels(t *testing.T) {
	tests := []struct {
		name    string
		labeler Labeler
		want    string
	}{
		{"no labeler formats coordinates", nil, "48.85°N, 2.35°E"},
		{"labeler names the place", mockLabeler{label: "Paris, France"}, "Paris, France"},
		{"labeler failure uses sentinel", mockLabeler{err: models.ErrUpstreamQuotaExceeded}, models.PlaceholderLabel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &mockForecaster{forecast: parisForecast()}
			s := newTestAPISource(f, tt.labeler, time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC))
			res, err := s.Fetch(context.Background(), models.AtCoordinates(48.85, 2.35))
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if res.Reading.LocationLabel != tt.want {
				t.Errorf("LocationLabel = %q, want %q", res.Reading.LocationLabel, tt.want)
			}
		})
	}
}

func TestAPISource_Fetch_LabelerMissingKeyFails(t *testing.T) {
	f := &mockForecaster{forecast: parisForecast()}
	l := mockLabeler{err: fmt.Errorf("%w: HTTP 401", models.ErrConfigurationMissing)}
	s := newTestAPISource(f, l, time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC))

	res, err := s.Fetch(context.Background(), models.AtCoordinates(48.85, 2.35))
	if !errors.Is(err, models.ErrConfigurationMissing) {
		t.Fatalf("Fetch() error = %v, want configuration missing", err)
	}
	if res.Reading.LocationLabel != "" {
		t.Errorf("LocationLabel = %q, want no reading", res.Reading.LocationLabel)
	}
}

func TestAPISource_Fetch_Errors(t *testing.T) {
	s := newTestAPISource(&mockForecaster{geocodeErr: models.ErrLocationNotFound}, nil, time.Now())
	if _, err := s.Fetch(context.Background(), models.NamedPlace("Atlantis")); !errors.Is(err, models.ErrLocationNotFound) {
		t.Errorf("geocode miss error = %v", err)
	}

	s = newTestAPISource(&mockForecaster{forecastErr: fmt.Errorf("%w: HTTP 502", models.ErrNetworkUnavailable)}, nil, time.Now())
	if _, err := s.Fetch(context.Background(), models.AtCoordinates(1, 1)); !errors.Is(err, models.ErrNetworkUnavailable) {
		t.Errorf("forecast failure error = %v", err)
	}

	if _, err := s.Fetch(context.Background(), models.Descriptor{}); !errors.Is(err, models.ErrLocationNotFound) {
		t.Errorf("empty descriptor error = %v", err)
	}
}

func TestNewSource(t *testing.T) {
	f := &mockForecaster{forecast: parisForecast()}
	withKey := generative.NewClient(generative.Config{APIKey: "sk-test"})

	src, err := NewSource(Options{Strategy: "API", OpenMeteo: f})
	if err != nil {
		t.Fatalf("NewSource(api) error = %v", err)
	}
	if api, ok := src.(*APISource); !ok || api.labeler != nil {
		t.Errorf("NewSource(api) = %T, want *APISource without labeler", src)
	}

	src, _ = NewSource(Options{Strategy: StrategyAPI, OpenMeteo: f, Generative: withKey, LabelCoordinates: true})
	if api := src.(*APISource); api.labeler == nil {
		t.Error("expected labeler when a configured model client is supplied")
	}

	src, _ = NewSource(Options{Strategy: StrategyAPI, OpenMeteo: f, Generative: generative.NewClient(generative.Config{}), LabelCoordinates: true})
	if api := src.(*APISource); api.labeler != nil {
		t.Error("labeler attached without an API key")
	}

	src, err = NewSource(Options{Strategy: StrategyGenerative, Generative: withKey})
	if err != nil {
		t.Fatalf("NewSource(generative) error = %v", err)
	}
	if _, ok := src.(*generative.Source); !ok {
		t.Errorf("NewSource(generative) = %T", src)
	}

	src, _ = NewSource(Options{Strategy: StrategyAPI, OpenMeteo: f, Breaker: circuitbreaker.New(circuitbreaker.Config{})})
	if _, ok := src.(*Breaker); !ok {
		t.Errorf("NewSource with breaker = %T, want *Breaker", src)
	}

	for _, bad := range []Options{
		{Strategy: "crystal-ball"},
		{Strategy: StrategyAPI},
		{Strategy: StrategyGenerative},
	} {
		if _, err := NewSource(bad); err == nil {
			t.Errorf("NewSource(%+v) error = nil", bad)
		}
	}
}
