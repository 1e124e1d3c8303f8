// Package validation checks untrusted request input before it reaches the service.
package validation

import (
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/kjstillabower/atmo/internal/models"
)

var (
	// ErrQueryEmpty is returned when the search text is empty after trim.
	ErrQueryEmpty = errors.New("search query is required")
	// ErrQueryTooShort is returned when the search text is below the minimum length.
	ErrQueryTooShort = errors.New("search query too short")
	// ErrQueryTooLong is returned when the search text exceeds the maximum length.
	ErrQueryTooLong = errors.New("search query too long")
	// ErrQueryInvalidChars is returned when the search text contains disallowed characters.
	ErrQueryInvalidChars = errors.New("search query contains invalid characters")

	ErrCoordinatesIncomplete = errors.New("lat and lon must be given together")
	ErrCoordinatesInvalid    = errors.New("coordinates are not valid decimal degrees")
	ErrTimezoneInvalid       = errors.New("unknown time zone")
)

// ValidateQuery trims the input, collapses runs of whitespace, enforces length
// bounds (minLen, maxLen in runes) and restricts it to characters that occur in
// place names: letters, digits, space, comma, hyphen, period and apostrophe.
func ValidateQuery(input string, minLen, maxLen int) (string, error) {
	s := strings.Join(strings.Fields(input), " ")
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrQueryEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrQueryTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrQueryTooLong
	}
	for _, c := range r {
		if !isPlaceRune(c) {
			return "", ErrQueryInvalidChars
		}
	}
	return s, nil
}

func isPlaceRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.Is(unicode.Mn, r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'', '’':
		return true
	}
	return false
}

// ParseCoordinates parses client-forwarded latitude and longitude. Both empty
// returns (nil, nil): the client sent no position.
func ParseCoordinates(lat, lon string) (*models.Coordinates, error) {
	lat, lon = strings.TrimSpace(lat), strings.TrimSpace(lon)
	if lat == "" && lon == "" {
		return nil, nil
	}
	if lat == "" || lon == "" {
		return nil, ErrCoordinatesIncomplete
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return nil, ErrCoordinatesInvalid
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return nil, ErrCoordinatesInvalid
	}
	c := models.Coordinates{Latitude: la, Longitude: lo}
	if !c.Valid() {
		return nil, ErrCoordinatesInvalid
	}
	return &c, nil
}

// ValidateTimezone accepts "" or a loadable IANA zone name.
func ValidateTimezone(tz string) (string, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return "", nil
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return "", ErrTimezoneInvalid
	}
	return tz, nil
}
