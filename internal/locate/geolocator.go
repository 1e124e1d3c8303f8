package locate

import (
	"context"
	"fmt"

	"github.com/kjstillabower/atmo/internal/models"
)

// RequestGeolocator uses the position the client forwarded with its request.
type RequestGeolocator struct{}

func (RequestGeolocator) Locate(ctx context.Context, hint Hint) (models.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return models.Coordinates{}, err
	}
	if hint.GeoError != nil {
		return models.Coordinates{}, hint.GeoError
	}
	if hint.Coordinates == nil {
		return models.Coordinates{}, fmt.Errorf("%w: client sent no position", models.ErrLocationUnsupported)
	}
	return *hint.Coordinates, nil
}

// FixedGeolocator always answers with configured coordinates.
// Used where there is no client to ask, such as the terminal renderer.
type FixedGeolocator struct {
	At models.Coordinates
}

func (g FixedGeolocator) Locate(ctx context.Context, _ Hint) (models.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return models.Coordinates{}, err
	}
	return g.At, nil
}

// ParseGeoError maps the client's geolocation failure marker to a sentinel.
// Unknown markers and "" return nil.
func ParseGeoError(marker string) error {
	switch marker {
	case "denied":
		return models.ErrLocationDenied
	case "timeout":
		return models.ErrLocationTimeout
	case "unsupported", "unavailable":
		return models.ErrLocationUnsupported
	}
	return nil
}
