package theme

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/kjstillabower/atmo/internal/models"
	"github.com/kjstillabower/atmo/internal/tennis"
)

const cardWidth = 44

// Card is everything the terminal renderer shows.
type Card struct {
	Label         string
	Reading       models.WeatherReading
	Condition     models.Condition
	Theme         Theme
	Verdict       tennis.Verdict
	Status        string
	SetupRequired bool
	Placeholder   bool
	Citations     []models.Citation
	// LocalTime is now in the reading's time zone.
	LocalTime time.Time
}

// RenderOptions controls terminal output.
type RenderOptions struct {
	Color bool
}

var accentAttrs = map[models.Condition][]color.Attribute{
	models.ConditionClear:  {color.FgHiYellow, color.Bold},
	models.ConditionCloudy: {color.FgHiWhite, color.Bold},
	models.ConditionRainy:  {color.FgHiBlue, color.Bold},
	models.ConditionNight:  {color.FgHiMagenta, color.Bold},
	models.ConditionHazy:   {color.FgYellow, color.Bold},
}

// Render writes the card to w in one write.
func Render(w io.Writer, c Card, opts RenderOptions) error {
	accent := painter(opts.Color, accentAttrs[c.Condition]...)
	dim := painter(opts.Color, color.Faint)
	warn := painter(opts.Color, color.FgHiRed, color.Bold)

	var b strings.Builder
	r := c.Reading

	clock := c.LocalTime.Format("15:04:05")
	pad := cardWidth - len([]rune(c.Label)) - len(clock)
	if pad < 1 {
		pad = 1
	}
	fmt.Fprintf(&b, "%s%s%s\n", accent.Sprint(c.Label), strings.Repeat(" ", pad), dim.Sprint(clock))
	b.WriteString(dim.Sprint(strings.Repeat("─", cardWidth)) + "\n")

	fmt.Fprintf(&b, "%s  %s\n", accent.Sprint(FormatTemperature(r.Temperature)), c.Theme.Name)
	fmt.Fprintf(&b, "Wind %.0f km/h · Humidity %.0f%% · Rain %.1f mm\n", r.WindSpeed, r.Humidity, r.Precipitation)
	if r.Sunrise != "" && r.Sunset != "" {
		fmt.Fprintf(&b, "Sunrise %s · Sunset %s\n", r.Sunrise, r.Sunset)
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "Tennis  %s · %s  %s\n", tierName(c.Verdict.Tier), c.Verdict.Status, syncBar(c.Verdict.Sync))
	b.WriteString(dim.Sprint(c.Verdict.Advice) + "\n")

	if c.SetupRequired {
		b.WriteString("\n" + warn.Sprint("Setup required") + "  " + c.Status + "\n")
	} else if c.Status != "" {
		b.WriteString("\n" + warn.Sprint("!") + " " + c.Status + "\n")
	}

	if len(c.Citations) > 0 {
		b.WriteString("\n" + dim.Sprint("Sources") + "\n")
		for _, cit := range c.Citations {
			title := cit.Title
			if title == "" {
				title = cit.URL
			}
			fmt.Fprintf(&b, "  %s %s\n", title, dim.Sprint(cit.URL))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func painter(enabled bool, attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if enabled {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

// syncBar draws the sync score as ten cells, e.g. "▰▰▰▰▰▰▰▰▱▱ 80".
func syncBar(sync int) string {
	if sync < 0 {
		sync = 0
	}
	if sync > 100 {
		sync = 100
	}
	filled := sync / 10
	return strings.Repeat("▰", filled) + strings.Repeat("▱", 10-filled) + fmt.Sprintf(" %d", sync)
}

func tierName(t tennis.Tier) string {
	s := string(t)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
