package generative

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/atmo/internal/models"
)

func TestPlaceFinder_FindPlace(t *testing.T) {
	f := &fakeChat{content: "\"Paris, France.\"\nBased on the timezone."}
	p := NewPlaceFinder(newFakeClient(t, f, Config{WebSearch: true}))

	got, err := p.FindPlace(context.Background(), "203.0.113.9", "Europe/Paris")
	require.NoError(t, err)
	assert.Equal(t, "Paris, France", got)
}

func TestPlaceFinder_Unknown(t *testing.T) {
	f := &fakeChat{content: "unknown"}
	p := NewPlaceFinder(newFakeClient(t, f, Config{}))

	_, err := p.FindPlace(context.Background(), "", "")
	assert.ErrorIs(t, err, models.ErrLocationNotFound)
}

func TestLabeler_Label(t *testing.T) {
	f := &fakeChat{content: "Lyon, France"}
	l := NewLabeler(newFakeClient(t, f, Config{WebSearch: true}))

	got, err := l.Label(context.Background(), models.Coordinates{Latitude: 45.76, Longitude: 4.84})
	require.NoError(t, err)
	assert.Equal(t, "Lyon, France", got)
	assert.NotContains(t, f.lastRequest(), "web_search_options", "reverse geocoding never searches")
}

func TestCleanPlace(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{"Paris, France", "Paris, France", nil},
		{"  **Tokyo, Japan**  ", "Tokyo, Japan", nil},
		{"", "", models.ErrLocationNotFound},
		{"Unknown.", "", models.ErrLocationNotFound},
		{`{"city":"Paris"}`, "", models.ErrUpstreamMalformed},
		{"I believe the user is most likely somewhere in the greater metropolitan area of a large city", "", models.ErrUpstreamMalformed},
	}
	for _, tt := range tests {
		got, err := cleanPlace(tt.in)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("cleanPlace(%q) error = %v, want %v", tt.in, err, tt.wantErr)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("cleanPlace(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}
