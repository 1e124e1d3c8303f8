package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // readings carry IANA zones; embed so lookups work on minimal hosts
)

// Condition is the coarse sky state that drives theme selection.
type Condition string

const (
	ConditionClear  Condition = "clear"
	ConditionCloudy Condition = "cloudy"
	ConditionRainy  Condition = "rainy"
	ConditionNight  Condition = "night"
	ConditionHazy   Condition = "hazy"
)

// Conditions lists every valid condition in display order.
var Conditions = []Condition{ConditionClear, ConditionCloudy, ConditionRainy, ConditionNight, ConditionHazy}

// Valid reports whether c is one of the five known conditions.
func (c Condition) Valid() bool {
	switch c {
	case ConditionClear, ConditionCloudy, ConditionRainy, ConditionNight, ConditionHazy:
		return true
	}
	return false
}

// Reading sources.
const (
	SourceAPI         = "api"
	SourceGenerative  = "generative"
	SourcePlaceholder = "placeholder"
)

// PlaceholderLabel marks a location that could not be resolved. Cached entries
// carrying it are never reused.
const PlaceholderLabel = "Current Location"

// WeatherReading is a normalized snapshot of the weather at one place.
type WeatherReading struct {
	Temperature      float64   `json:"temperature"`
	Condition        Condition `json:"condition"`
	LocationLabel    string    `json:"locationLabel"`
	WindSpeed        float64   `json:"windSpeed"`
	Humidity         float64   `json:"humidity"`
	Precipitation    float64   `json:"precipitation"`
	Sunrise          string    `json:"sunrise,omitempty"`
	Sunset           string    `json:"sunset,omitempty"`
	Timezone         string    `json:"timezone,omitempty"`
	UTCOffsetSeconds int       `json:"utcOffsetSeconds,omitempty"`
	WeatherCode      *int      `json:"weatherCode,omitempty"`
	Source           string    `json:"source,omitempty"`
	FetchedAt        time.Time `json:"fetchedAt"`
}

// Normalize clamps the measured fields into their valid ranges and replaces an
// unknown condition with clear.
func (r WeatherReading) Normalize() WeatherReading {
	if r.WindSpeed < 0 {
		r.WindSpeed = 0
	}
	if r.Precipitation < 0 {
		r.Precipitation = 0
	}
	if r.Humidity < 0 {
		r.Humidity = 0
	}
	if r.Humidity > 100 {
		r.Humidity = 100
	}
	if !r.Condition.Valid() {
		r.Condition = ConditionClear
	}
	r.LocationLabel = strings.TrimSpace(r.LocationLabel)
	if r.LocationLabel == "" {
		r.LocationLabel = PlaceholderLabel
	}
	return r
}

// Location returns the time zone of the reading's location. Falls back to a
// fixed offset zone when the IANA name is missing or unknown.
func (r WeatherReading) Location() *time.Location {
	if r.Timezone != "" {
		if loc, err := time.LoadLocation(r.Timezone); err == nil {
			return loc
		}
	}
	if r.UTCOffsetSeconds != 0 {
		return time.FixedZone("", r.UTCOffsetSeconds)
	}
	return time.UTC
}

// HasPlaceholderLabel reports whether the label is the unresolved-location sentinel.
func (r WeatherReading) HasPlaceholderLabel() bool {
	return strings.EqualFold(strings.TrimSpace(r.LocationLabel), PlaceholderLabel)
}

// Placeholder returns the static reading shown when nothing better exists.
func Placeholder() WeatherReading {
	return WeatherReading{
		Temperature:   18,
		Condition:     ConditionCloudy,
		LocationLabel: PlaceholderLabel,
		WindSpeed:     6,
		Humidity:      55,
		Precipitation: 0,
		Sunrise:       "06:30",
		Sunset:        "19:30",
		Source:        SourcePlaceholder,
	}
}

// Coordinates is a latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the pair is within WGS84 bounds.
func (c Coordinates) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

func (c Coordinates) String() string {
	return strconv.FormatFloat(c.Latitude, 'f', 4, 64) + "," + strconv.FormatFloat(c.Longitude, 'f', 4, 64)
}

// Label formats the pair for display, e.g. "48.86°N, 2.35°E".
func (c Coordinates) Label() string {
	ns, ew := "N", "E"
	lat, lon := c.Latitude, c.Longitude
	if lat < 0 {
		ns, lat = "S", -lat
	}
	if lon < 0 {
		ew, lon = "W", -lon
	}
	return fmt.Sprintf("%.2f°%s, %.2f°%s", lat, ns, lon, ew)
}

// Descriptor identifies where to fetch weather for: coordinates, a place name, or both.
type Descriptor struct {
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Name        string       `json:"name,omitempty"`
}

// Valid reports whether at least one of coordinates or name is present.
func (d Descriptor) Valid() bool {
	if d.Coordinates != nil && d.Coordinates.Valid() {
		return true
	}
	return strings.TrimSpace(d.Name) != ""
}

// HasCoordinates reports whether the descriptor carries a usable coordinate pair.
func (d Descriptor) HasCoordinates() bool {
	return d.Coordinates != nil && d.Coordinates.Valid()
}

func (d Descriptor) String() string {
	if d.HasCoordinates() {
		return d.Coordinates.String()
	}
	return strings.TrimSpace(d.Name)
}

// NamedPlace builds a text-only descriptor.
func NamedPlace(name string) Descriptor {
	return Descriptor{Name: strings.TrimSpace(name)}
}

// AtCoordinates builds a coordinate descriptor.
func AtCoordinates(lat, lon float64) Descriptor {
	return Descriptor{Coordinates: &Coordinates{Latitude: lat, Longitude: lon}}
}

// Citation is a web source that informed a generative answer.
type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// FetchResult is one acquired reading plus the web sources that grounded it, if any.
type FetchResult struct {
	Reading   WeatherReading
	Citations []Citation
}
