package service

import (
	"time"

	"github.com/kjstillabower/atmo/internal/client"
	"github.com/kjstillabower/atmo/internal/condition"
	"github.com/kjstillabower/atmo/internal/models"
	"github.com/kjstillabower/atmo/internal/tennis"
	"github.com/kjstillabower/atmo/internal/theme"
)

// Snapshot is the renderable view of the slot at one instant. Condition,
// verdict and theme are derived on every call and never stored.
type Snapshot struct {
	Reading       models.WeatherReading `json:"reading"`
	Condition     models.Condition      `json:"condition"`
	Temperature   string                `json:"temperature"`
	Verdict       tennis.Verdict        `json:"tennis"`
	Theme         theme.Theme           `json:"theme"`
	Citations     []models.Citation     `json:"citations,omitempty"`
	Status        string                `json:"status,omitempty"`
	StatusKind    client.ErrorKind      `json:"statusKind,omitempty"`
	SetupRequired bool                  `json:"setupRequired"`
	Placeholder   bool                  `json:"placeholder"`
	FromCache     bool                  `json:"fromCache"`
	Generation    uint64                `json:"generation"`
	UpdatedAt     time.Time             `json:"updatedAt"`
	LocalTime     time.Time             `json:"localTime"`
}

// View derives a snapshot from the committed slot at the current time. Before
// the first refresh it shows the placeholder.
func (s *ConditionsService) View(highContrast bool) Snapshot {
	s.mu.RLock()
	cur := s.slot
	s.mu.RUnlock()

	if !cur.hasReading {
		cur.reading = models.Placeholder()
		cur.placeholder = true
	}

	now := s.now()
	cond := condition.AtTime(cur.reading, now)
	return Snapshot{
		Reading:       cur.reading,
		Condition:     cond,
		Temperature:   theme.FormatTemperature(cur.reading.Temperature),
		Verdict:       tennis.Evaluate(cur.reading),
		Theme:         theme.For(cond, highContrast),
		Citations:     cur.citations,
		Status:        cur.status,
		StatusKind:    cur.kind,
		SetupRequired: cur.setupRequired,
		Placeholder:   cur.placeholder,
		FromCache:     cur.fromCache,
		Generation:    cur.generation,
		UpdatedAt:     cur.updatedAt,
		LocalTime:     now.In(cur.reading.Location()),
	}
}

// Card adapts the snapshot for the terminal renderer.
func (s Snapshot) Card() theme.Card {
	return theme.Card{
		Label:         s.Reading.LocationLabel,
		Reading:       s.Reading,
		Condition:     s.Condition,
		Theme:         s.Theme,
		Verdict:       s.Verdict,
		Status:        s.Status,
		SetupRequired: s.SetupRequired,
		Placeholder:   s.Placeholder,
		Citations:     s.Citations,
		LocalTime:     s.LocalTime,
	}
}
