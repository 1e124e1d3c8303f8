package generative

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kjstillabower/atmo/internal/condition"
	"github.com/kjstillabower/atmo/internal/models"
)

type jsonSchema struct {
	name   string
	schema map[string]any
}

var readingSchema = &jsonSchema{
	name: "weather_reading",
	schema: map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required": []string{
			"temperature", "condition", "locationLabel", "windSpeed",
			"humidity", "precipitation", "sunrise", "sunset", "timezone",
		},
		"properties": map[string]any{
			"temperature":   map[string]any{"type": "number", "description": "Air temperature in degrees Celsius"},
			"condition":     map[string]any{"type": "string", "enum": []string{"clear", "cloudy", "rainy", "night", "hazy"}},
			"locationLabel": map[string]any{"type": "string", "description": "City, Country"},
			"windSpeed":     map[string]any{"type": "number", "description": "km/h"},
			"humidity":      map[string]any{"type": "number", "description": "Relative humidity percent"},
			"precipitation": map[string]any{"type": "number", "description": "mm in the last hour"},
			"sunrise":       map[string]any{"type": "string", "description": "Local HH:MM, empty if unknown"},
			"sunset":        map[string]any{"type": "string", "description": "Local HH:MM, empty if unknown"},
			"timezone":      map[string]any{"type": "string", "description": "IANA zone, empty if unknown"},
		},
	},
}

const readingSystemPrompt = `You report current weather conditions. Search the web for live observations.
Reply with a single JSON object and nothing else, using these keys:
temperature (number, Celsius), condition (one of clear, cloudy, rainy, night, hazy),
locationLabel ("City, Country"), windSpeed (number, km/h), humidity (number, percent),
precipitation (number, mm), sunrise and sunset (local "HH:MM"), timezone (IANA name).`

type generatedReading struct {
	Temperature   *float64 `json:"temperature"`
	Condition     string   `json:"condition"`
	LocationLabel string   `json:"locationLabel"`
	WindSpeed     float64  `json:"windSpeed"`
	Humidity      float64  `json:"humidity"`
	Precipitation float64  `json:"precipitation"`
	Sunrise       string   `json:"sunrise"`
	Sunset        string   `json:"sunset"`
	Timezone      string   `json:"timezone"`
}

// Source fetches readings by prompting the model. It implements the same
// Fetch contract as the deterministic API source.
type Source struct {
	client *Client
	now    func() time.Time
}

func NewSource(client *Client) *Source {
	return &Source{client: client, now: time.Now}
}

// Fetch asks the model for current conditions at d.
func (s *Source) Fetch(ctx context.Context, d models.Descriptor) (models.FetchResult, error) {
	if !d.Valid() {
		return models.FetchResult{}, fmt.Errorf("%w: empty location descriptor", models.ErrLocationNotFound)
	}

	c, err := s.client.complete(ctx, completionRequest{
		system:    readingSystemPrompt,
		user:      readingPrompt(d),
		schema:    readingSchema,
		webSearch: true,
	})
	if err != nil {
		return models.FetchResult{}, fmt.Errorf("generative fetch %s: %w", d, err)
	}

	reading, err := ParseReading(c.content, d)
	if err != nil {
		return models.FetchResult{}, err
	}
	reading.FetchedAt = s.now()
	return models.FetchResult{Reading: reading, Citations: c.citations}, nil
}

func readingPrompt(d models.Descriptor) string {
	var b strings.Builder
	b.WriteString("What is the weather right now at ")
	if d.HasCoordinates() {
		fmt.Fprintf(&b, "latitude %.4f, longitude %.4f", d.Coordinates.Latitude, d.Coordinates.Longitude)
		if d.Name != "" {
			fmt.Fprintf(&b, " (%s)", d.Name)
		}
	} else {
		b.WriteString(d.Name)
	}
	b.WriteString("? Use night as the condition only if the sun has set there.")
	return b.String()
}

// ParseReading is the single parser for model output. It accepts bare JSON or
// JSON embedded in prose and validates every field.
func ParseReading(content string, d models.Descriptor) (models.WeatherReading, error) {
	raw, err := ExtractJSON(content)
	if err != nil {
		return models.WeatherReading{}, err
	}

	var g generatedReading
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return models.WeatherReading{}, fmt.Errorf("%w: decode model JSON: %w", models.ErrUpstreamMalformed, err)
	}
	if g.Temperature == nil {
		return models.WeatherReading{}, fmt.Errorf("%w: model JSON missing temperature", models.ErrUpstreamMalformed)
	}

	label := strings.TrimSpace(g.LocationLabel)
	if label == "" {
		label = d.Name
	}
	if label == "" && d.HasCoordinates() {
		label = d.Coordinates.Label()
	}

	r := models.WeatherReading{
		Temperature:   *g.Temperature,
		Condition:     condition.Parse(g.Condition),
		LocationLabel: label,
		WindSpeed:     g.WindSpeed,
		Humidity:      g.Humidity,
		Precipitation: g.Precipitation,
		Sunrise:       condition.NormalizeClock(g.Sunrise),
		Sunset:        condition.NormalizeClock(g.Sunset),
		Source:        models.SourceGenerative,
	}
	if tz := strings.TrimSpace(g.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err == nil {
			r.Timezone = tz
		}
	}
	return r.Normalize(), nil
}
