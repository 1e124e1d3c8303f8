// Package condition maps upstream weather payloads onto the five display conditions.
package condition

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/atmo/internal/models"
)

// Classify maps a WMO weather code to a condition. Night always wins when it is
// not daytime. Codes outside the known vocabulary resolve to rainy.
func Classify(code int, isDaytime bool) models.Condition {
	if !isDaytime {
		return models.ConditionNight
	}
	switch {
	case code == 0 || code == 1:
		return models.ConditionClear
	case code == 2 || code == 3:
		return models.ConditionCloudy
	case code == 45 || code == 48:
		return models.ConditionHazy
	default:
		return models.ConditionRainy
	}
}

// Parse validates a condition asserted by an upstream model, substituting clear
// for anything unrecognized.
func Parse(s string) models.Condition {
	c := models.Condition(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return models.ConditionClear
	}
	return c
}

// IsDaytime reports whether now falls in [sunrise, sunset). sunrise and sunset
// are "HH:MM" local times; now must already be in the location's zone.
// ok is false when either time is missing or the window is empty.
func IsDaytime(sunrise, sunset string, now time.Time) (daytime, ok bool) {
	rise, okRise := minuteOfDay(sunrise)
	set, okSet := minuteOfDay(sunset)
	if !okRise || !okSet || set <= rise {
		return false, false
	}
	m := now.Hour()*60 + now.Minute()
	return m >= rise && m < set, true
}

// AtTime returns the condition to display for r at instant now. Day/night is
// recomputed from the reading's sunrise and sunset in its own time zone and
// night overrides whatever the upstream reported. A stored night reading seen
// in daylight is reclassified from its code, or shown as clear.
func AtTime(r models.WeatherReading, now time.Time) models.Condition {
	stored := r.Condition
	if !stored.Valid() {
		stored = models.ConditionClear
	}
	day, ok := IsDaytime(r.Sunrise, r.Sunset, now.In(r.Location()))
	if !ok {
		return stored
	}
	if !day {
		return models.ConditionNight
	}
	if stored == models.ConditionNight {
		if r.WeatherCode != nil {
			return Classify(*r.WeatherCode, true)
		}
		return models.ConditionClear
	}
	return stored
}

// ClockTime extracts "HH:MM" from an ISO-8601 local timestamp such as
// "2024-05-01T06:12". Returns "" when no time component is present.
func ClockTime(iso string) string {
	i := strings.IndexByte(iso, 'T')
	if i < 0 || len(iso) < i+6 {
		return ""
	}
	hm := iso[i+1 : i+6]
	if _, ok := minuteOfDay(hm); !ok {
		return ""
	}
	return hm
}

func minuteOfDay(hm string) (int, bool) {
	hm = strings.TrimSpace(hm)
	h, m, found := strings.Cut(hm, ":")
	if !found {
		return 0, false
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	if len(m) > 2 {
		m = m[:2]
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, false
	}
	return hour*60 + minute, true
}

// NormalizeClock accepts "HH:MM", "H:MM", "6:12 AM" or an ISO local timestamp
// and returns zero-padded "HH:MM". Returns "" when s is not a time of day.
func NormalizeClock(s string) string {
	s = strings.TrimSpace(s)
	if strings.IndexByte(s, 'T') >= 0 {
		return ClockTime(s)
	}
	upper := strings.ToUpper(s)
	meridiem := ""
	for _, suffix := range []string{"AM", "PM"} {
		if strings.HasSuffix(upper, suffix) {
			meridiem = suffix
			s = strings.TrimSpace(s[:len(s)-2])
			break
		}
	}
	mins, ok := minuteOfDay(s)
	if !ok {
		return ""
	}
	if meridiem != "" {
		hour := mins / 60
		if hour < 1 || hour > 12 {
			return ""
		}
		hour %= 12
		if meridiem == "PM" {
			hour += 12
		}
		mins = hour*60 + mins%60
	}
	return fmt.Sprintf("%02d:%02d", mins/60, mins%60)
}
