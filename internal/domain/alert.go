package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Weather severity values as published by CAP-style feeds. Severity is kept
// as a free-form string on WeatherAlert because feeds are inconsistent about
// casing; rule matching is case-insensitive.
const (
	SeverityMinor    = "minor"
	SeverityModerate = "moderate"
	SeveritySevere   = "severe"
	SeverityExtreme  = "extreme"
	SeverityUnknown  = "unknown"
)

// EOC activation states. Values contain spaces, matching the wording
// published on LDMG status pages.
const (
	EOCInactive    = "inactive"
	EOCAlert       = "alert"
	EOCLeanForward = "lean forward"
	EOCStandUp     = "stand up"
	EOCStandDown   = "stand down"
)

// WeatherAlert is a single active warning from the weather feed.
// Immutable once constructed.
type WeatherAlert struct {
	Event       string    `json:"event"`
	Headline    string    `json:"headline"`
	Description string    `json:"description,omitempty"`
	Severity    string    `json:"severity"`
	Urgency     string    `json:"urgency,omitempty"`
	Areas       string    `json:"areas"`
	Onset       time.Time `json:"onset,omitzero"`
	Expires     time.Time `json:"expires,omitzero"`
	Source      string    `json:"source"`
}

// WeatherSnapshot holds all currently active weather alerts, keyed by the
// feed-assigned alert ID. A new snapshot fully supersedes the old one.
type WeatherSnapshot map[string]WeatherAlert

// EOCSiteState is the observed status of one monitored EOC site.
type EOCSiteState struct {
	State       string    `json:"state"`
	Activated   bool      `json:"activated"`
	LastCheck   time.Time `json:"last_check"`
	LastChange  time.Time `json:"last_change,omitzero"`
	Description string    `json:"description,omitempty"`
}

// EOCSnapshot holds the state of every monitored EOC site, keyed by site
// identifier. Replaced wholesale per poll, like WeatherSnapshot.
type EOCSnapshot map[string]EOCSiteState

// AlertLevel is the engine's output level. The ordering of the constants is
// the priority order and is fixed.
type AlertLevel int

const (
	LevelNone AlertLevel = iota
	LevelAdvisory
	LevelWatch
	LevelWarning
	LevelEmergency
)

var levelNames = map[AlertLevel]string{
	LevelNone:      "none",
	LevelAdvisory:  "advisory",
	LevelWatch:     "watch",
	LevelWarning:   "warning",
	LevelEmergency: "emergency",
}

func (l AlertLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "none"
}

// ParseAlertLevel parses a level name, case-insensitively.
func ParseAlertLevel(s string) (AlertLevel, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for level, n := range levelNames {
		if n == name {
			return level, nil
		}
	}
	return LevelNone, fmt.Errorf("unknown alert level %q", s)
}

// MarshalJSON encodes the level as its name.
func (l AlertLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a level name.
func (l *AlertLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	level, err := ParseAlertLevel(s)
	if err != nil {
		return err
	}
	*l = level
	return nil
}

// LevelsDescending returns the triggerable levels from highest to lowest
// priority. LevelNone is synthetic and never listed.
func LevelsDescending() []AlertLevel {
	return []AlertLevel{LevelEmergency, LevelWarning, LevelWatch, LevelAdvisory}
}

// LocalAlertState is the engine's committed output. Exactly one instance is
// current at any time; it is replaced whole on transition, never mutated
// field by field.
type LocalAlertState struct {
	Active      bool       `json:"active"`
	Level       AlertLevel `json:"level"`
	Reason      string     `json:"reason"`
	TriggeredBy []string   `json:"triggered_by"`
	Timestamp   time.Time  `json:"timestamp"`
}

// Transition describes a change of the committed (active, level) pair.
type Transition struct {
	Old LocalAlertState `json:"old"`
	New LocalAlertState `json:"new"`
}
