package models

import (
	"testing"
	"time"
)

func TestCondition_Valid(t *testing.T) {
	for _, c := range Conditions {
		if !c.Valid() {
			t.Errorf("%q.Valid() = false", c)
		}
	}
	for _, c := range []Condition{"", "stormy", "Clear"} {
		if c.Valid() {
			t.Errorf("%q.Valid() = true", c)
		}
	}
}

func TestWeatherReading_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   WeatherReading
		want WeatherReading
	}{
		{
			name: "clamps measurements",
			in:   WeatherReading{WindSpeed: -3, Precipitation: -0.1, Humidity: 140, Condition: ConditionRainy, LocationLabel: "Oslo"},
			want: WeatherReading{WindSpeed: 0, Precipitation: 0, Humidity: 100, Condition: ConditionRainy, LocationLabel: "Oslo"},
		},
		{
			name: "negative humidity",
			in:   WeatherReading{Humidity: -5, Condition: ConditionCloudy, LocationLabel: "Oslo"},
			want: WeatherReading{Humidity: 0, Condition: ConditionCloudy, LocationLabel: "Oslo"},
		},
		{
			name: "unknown condition becomes clear",
			in:   WeatherReading{Condition: "sleet", LocationLabel: "Oslo"},
			want: WeatherReading{Condition: ConditionClear, LocationLabel: "Oslo"},
		},
		{
			name: "blank label becomes placeholder",
			in:   WeatherReading{Condition: ConditionHazy, LocationLabel: "   "},
			want: WeatherReading{Condition: ConditionHazy, LocationLabel: PlaceholderLabel},
		},
		{
			name: "negative temperature kept",
			in:   WeatherReading{Temperature: -12.5, Condition: ConditionNight, LocationLabel: " Tromsø "},
			want: WeatherReading{Temperature: -12.5, Condition: ConditionNight, LocationLabel: "Tromsø"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Normalize()
			if got.Temperature != tt.want.Temperature || got.WindSpeed != tt.want.WindSpeed ||
				got.Precipitation != tt.want.Precipitation || got.Humidity != tt.want.Humidity ||
				got.Condition != tt.want.Condition || got.LocationLabel != tt.want.LocationLabel {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestWeatherReading_Location(t *testing.T) {
	tests := []struct {
		name       string
		r          WeatherReading
		wantOffset int
	}{
		{"iana zone", WeatherReading{Timezone: "Asia/Tokyo"}, 9 * 3600},
		{"unknown zone uses offset", WeatherReading{Timezone: "Mars/Olympus", UTCOffsetSeconds: -3 * 3600}, -3 * 3600},
		{"offset only", WeatherReading{UTCOffsetSeconds: 5*3600 + 1800}, 5*3600 + 1800},
		{"nothing", WeatherReading{}, 0},
	}
	at := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, offset := at.In(tt.r.Location()).Zone()
			if offset != tt.wantOffset {
				t.Errorf("offset = %d, want %d", offset, tt.wantOffset)
			}
		})
	}
}

func TestWeatherReading_HasPlaceholderLabel(t *testing.T) {
	for label, want := range map[string]bool{
		PlaceholderLabel:     true,
		" current location ": true,
		"Paris, France":      false,
		"":                   false,
	} {
		if got := (WeatherReading{LocationLabel: label}).HasPlaceholderLabel(); got != want {
			t.Errorf("HasPlaceholderLabel(%q) = %v, want %v", label, got, want)
		}
	}
}

func TestPlaceholder(t *testing.T) {
	p := Placeholder()
	if !p.HasPlaceholderLabel() || p.Source != SourcePlaceholder {
		t.Errorf("Placeholder() = %+v", p)
	}
	if p.Normalize() != p {
		t.Error("Placeholder() is not already normalized")
	}
}

func TestDescriptor(t *testing.T) {
	tests := []struct {
		name      string
		d         Descriptor
		valid     bool
		hasCoords bool
		str       string
	}{
		{"named", NamedPlace("  Lisbon "), true, false, "Lisbon"},
		{"coordinates", AtCoordinates(38.7223, -9.1393), true, true, "38.7223,-9.1393"},
		{"both prefers coordinates", Descriptor{Coordinates: &Coordinates{Latitude: 1, Longitude: 2}, Name: "Somewhere"}, true, true, "1.0000,2.0000"},
		{"out of range coordinates with name", Descriptor{Coordinates: &Coordinates{Latitude: 91}, Name: "Pole"}, true, false, "Pole"},
		{"empty", Descriptor{}, false, false, ""},
		{"blank name", NamedPlace("  "), false, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.d.Valid(); got != tt.valid {
				t.Errorf("Valid() = %v, want %v", got, tt.valid)
			}
			if got := tt.d.HasCoordinates(); got != tt.hasCoords {
				t.Errorf("HasCoordinates() = %v, want %v", got, tt.hasCoords)
			}
			if got := tt.d.String(); got != tt.str {
				t.Errorf("String() = %q, want %q", got, tt.str)
			}
		})
	}
}

func TestCoordinates_Label(t *testing.T) {
	tests := []struct {
		c    Coordinates
		want string
	}{
		{Coordinates{Latitude: 48.8566, Longitude: 2.3522}, "48.86°N, 2.35°E"},
		{Coordinates{Latitude: -33.8688, Longitude: 151.2093}, "33.87°S, 151.21°E"},
		{Coordinates{Latitude: 40.7128, Longitude: -74.006}, "40.71°N, 74.01°W"},
	}
	for _, tt := range tests {
		if got := tt.c.Label(); got != tt.want {
			t.Errorf("Label(%v) = %q, want %q", tt.c, got, tt.want)
		}
	}
}

func TestCoordinates_Valid(t *testing.T) {
	for _, c := range []Coordinates{{90, 180}, {-90, -180}, {0, 0}} {
		if !c.Valid() {
			t.Errorf("%v.Valid() = false", c)
		}
	}
	for _, c := range []Coordinates{{90.01, 0}, {0, -180.5}} {
		if c.Valid() {
			t.Errorf("%v.Valid() = true", c)
		}
	}
}
