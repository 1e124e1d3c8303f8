// Package theme maps conditions to visual themes and renders the terminal card.
package theme

import (
	"math"
	"strconv"

	"github.com/kjstillabower/atmo/internal/models"
)

// Theme is the visual treatment for one condition.
type Theme struct {
	Name         string           `json:"name"`
	Condition    models.Condition `json:"condition"`
	Gradient     [2]string        `json:"gradient"`
	Accent       string           `json:"accent"`
	Animation    string           `json:"animation"`
	HighContrast bool             `json:"highContrast"`
}

var themes = map[models.Condition]Theme{
	models.ConditionClear: {
		Name:      "Clear Sky",
		Gradient:  [2]string{"#4FACFE", "#00F2FE"},
		Accent:    "#FFD166",
		Animation: "sun-pulse",
	},
	models.ConditionCloudy: {
		Name:      "Overcast",
		Gradient:  [2]string{"#8E9EAB", "#EEF2F3"},
		Accent:    "#5C6B7A",
		Animation: "cloud-drift",
	},
	models.ConditionRainy: {
		Name:      "Rainfall",
		Gradient:  [2]string{"#3A6073", "#16222A"},
		Accent:    "#7FDBFF",
		Animation: "rain",
	},
	models.ConditionNight: {
		Name:      "Night",
		Gradient:  [2]string{"#0F2027", "#2C5364"},
		Accent:    "#C3B1E1",
		Animation: "stars",
	},
	models.ConditionHazy: {
		Name:      "Haze",
		Gradient:  [2]string{"#D7D2CC", "#A39E99"},
		Accent:    "#E0A458",
		Animation: "haze",
	},
}

// For returns the theme for c. Unknown conditions get the clear theme.
// The high-contrast variant drops gradients and motion but keeps the accent.
func For(c models.Condition, highContrast bool) Theme {
	if !c.Valid() {
		c = models.ConditionClear
	}
	t := themes[c]
	t.Condition = c
	if highContrast {
		t.HighContrast = true
		t.Gradient = [2]string{"#000000", "#000000"}
		t.Animation = "none"
		if c == models.ConditionCloudy || c == models.ConditionHazy {
			t.Accent = "#FFFFFF"
		}
	}
	return t
}

// FormatTemperature rounds to whole degrees, e.g. 21.6 -> "22°".
func FormatTemperature(celsius float64) string {
	v := math.Round(celsius)
	if v == 0 {
		v = 0 // avoid "-0°"
	}
	return strconv.FormatFloat(v, 'f', 0, 64) + "°"
}
