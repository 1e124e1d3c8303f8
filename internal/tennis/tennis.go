// Package tennis derives a playability verdict from a weather reading.
package tennis

import "github.com/kjstillabower/atmo/internal/models"

// Tier is the ordinal playability bucket.
type Tier string

const (
	TierPoor        Tier = "poor"
	TierChallenging Tier = "challenging"
	TierFair        Tier = "fair"
	TierPlayable    Tier = "playable"
	TierPerfect     Tier = "perfect"
)

// Thresholds. Precipitation above zero always dominates.
const (
	WindLimitKmh    = 25.0
	ColdLimitC      = 10.0
	HeatLimitC      = 35.0
	IdealMinC       = 18.0
	IdealMaxC       = 24.0
	IdealMaxWindKmh = 10.0
)

// Verdict is recomputed on every render and never persisted.
type Verdict struct {
	Tier   Tier   `json:"tier"`
	Status string `json:"status"`
	Advice string `json:"advice"`
	Sync   int    `json:"sync"`
}

var verdicts = map[Tier]Verdict{
	TierPoor: {
		Tier:   TierPoor,
		Status: "Courts Wet",
		Advice: "Rain on the surface. Courts are likely wet, so skip play for now.",
		Sync:   20,
	},
	TierChallenging: {
		Tier:   TierChallenging,
		Status: "Too Windy",
		Advice: "Gusty conditions. Shorten the swing and aim for bigger margins.",
		Sync:   40,
	},
	TierFair: {
		Tier:   TierFair,
		Status: "Extreme Temps",
		Advice: "Playable, but keep sessions short and hydrate between games.",
		Sync:   50,
	},
	TierPlayable: {
		Tier:   TierPlayable,
		Status: "Good To Play",
		Advice: "Solid conditions. Warm up properly and enjoy the session.",
		Sync:   80,
	},
	TierPerfect: {
		Tier:   TierPerfect,
		Status: "Elite Conditions",
		Advice: "Ideal baseline conditions. Calm air and a perfect temperature.",
		Sync:   100,
	},
}

// Evaluate returns the verdict for r. Rules are checked top to bottom and the
// first match wins.
func Evaluate(r models.WeatherReading) Verdict {
	switch {
	case r.Precipitation > 0:
		return verdicts[TierPoor]
	case r.WindSpeed > WindLimitKmh:
		return verdicts[TierChallenging]
	case r.Temperature < ColdLimitC || r.Temperature > HeatLimitC:
		return verdicts[TierFair]
	case r.Temperature >= IdealMinC && r.Temperature <= IdealMaxC && r.WindSpeed < IdealMaxWindKmh:
		return verdicts[TierPerfect]
	default:
		return verdicts[TierPlayable]
	}
}

// SyncFor returns the fixed progress percentage of a tier, or 0 if unknown.
func SyncFor(t Tier) int {
	return verdicts[t].Sync
}
