package generative

import (
	"context"
	"fmt"
	"strings"

	"github.com/kjstillabower/atmo/internal/models"
)

const maxPlaceLen = 80

const placeSystemPrompt = `You estimate where a user is. Reply with only "City, Country" on one line.
If you cannot tell, reply with the single word unknown.`

// PlaceFinder estimates the user's city from their IP address and timezone.
type PlaceFinder struct {
	client *Client
}

func NewPlaceFinder(client *Client) *PlaceFinder {
	return &PlaceFinder{client: client}
}

// FindPlace returns a short "City, Country" for the request origin.
func (p *PlaceFinder) FindPlace(ctx context.Context, clientIP, timezone string) (string, error) {
	var b strings.Builder
	b.WriteString("Where is this user most likely located?")
	if clientIP != "" {
		fmt.Fprintf(&b, " Public IP address: %s.", clientIP)
	}
	if timezone != "" {
		fmt.Fprintf(&b, " Browser timezone: %s.", timezone)
	}

	c, err := p.client.complete(ctx, completionRequest{
		system:    placeSystemPrompt,
		user:      b.String(),
		webSearch: clientIP != "",
	})
	if err != nil {
		return "", fmt.Errorf("generative place lookup: %w", err)
	}
	return cleanPlace(c.content)
}

// Labeler turns coordinates into a display label.
type Labeler struct {
	client *Client
}

func NewLabeler(client *Client) *Labeler {
	return &Labeler{client: client}
}

// Label returns "City, Country" for the given coordinates.
func (l *Labeler) Label(ctx context.Context, at models.Coordinates) (string, error) {
	c, err := l.client.complete(ctx, completionRequest{
		system: placeSystemPrompt,
		user:   fmt.Sprintf("Which city is at latitude %.4f, longitude %.4f?", at.Latitude, at.Longitude),
	})
	if err != nil {
		return "", fmt.Errorf("generative reverse geocode: %w", err)
	}
	return cleanPlace(c.content)
}

// cleanPlace keeps the first line, strips quotes and trailing punctuation, and
// rejects answers that are not a plausible place name.
func cleanPlace(s string) (string, error) {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	line = strings.Trim(strings.TrimSpace(line), "\"'`*.")
	line = strings.TrimSpace(line)
	switch {
	case line == "", strings.EqualFold(line, "unknown"):
		return "", fmt.Errorf("%w: model could not place the user", models.ErrLocationNotFound)
	case len(line) > maxPlaceLen, strings.ContainsAny(line, "{}"):
		return "", fmt.Errorf("%w: implausible place %q", models.ErrUpstreamMalformed, line)
	}
	return line, nil
}
