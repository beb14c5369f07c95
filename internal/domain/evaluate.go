package domain

import (
	"sort"
	"strings"
)

// EvaluateConditions reports whether a condition set matches the given
// snapshot pair. Pure and deterministic; an empty rule list always evaluates
// false under both operators.
func EvaluateConditions(set ConditionSet, weather WeatherSnapshot, eoc EOCSnapshot) bool {
	if len(set.Rules) == 0 {
		return false
	}

	for _, rule := range set.Rules {
		var matched bool
		switch rule.Kind {
		case KindWeather:
			matched = matchWeatherRule(rule, weather)
		case KindEOC:
			matched = matchEOCRule(rule, eoc)
		}

		if set.Operator == OpAnd {
			if !matched {
				return false
			}
		} else if matched {
			return true
		}
	}
	return set.Operator == OpAnd
}

// matchWeatherRule reports whether at least one alert satisfies both the
// event and severity match of a weather rule.
func matchWeatherRule(rule ConditionRule, weather WeatherSnapshot) bool {
	targetEvent := strings.ToLower(rule.EventMatch)
	targetSeverity := strings.ToLower(rule.SeverityMatch)

	for _, alert := range weather {
		event := strings.ToLower(alert.Event)
		severity := strings.ToLower(alert.Severity)

		eventOK := targetEvent == MatchAny || strings.Contains(event, targetEvent)
		severityOK := targetSeverity == MatchAny || targetSeverity == severity
		if eventOK && severityOK {
			return true
		}
	}
	return false
}

// matchEOCRule reports whether any activated site is in the rule's target
// state.
func matchEOCRule(rule ConditionRule, eoc EOCSnapshot) bool {
	target := strings.ToLower(rule.StateMatch)

	for _, site := range eoc {
		if site.Activated && strings.ToLower(site.State) == target {
			return true
		}
	}
	return false
}

// Classification is the outcome of walking the level table against a
// snapshot pair.
type Classification struct {
	Level   AlertLevel
	Reasons []string
}

// Classify evaluates the level table from the highest priority level down
// and returns the first level that triggers, together with the reason
// strings contributed by that level's matched sides. If no level triggers
// the result is (LevelNone, nil).
func Classify(weather WeatherSnapshot, eoc EOCSnapshot, table LevelTable) Classification {
	for _, level := range LevelsDescending() {
		rule, ok := table[level]
		if !ok {
			continue
		}

		weatherMatch := EvaluateConditions(rule.Weather, weather, eoc)
		eocMatch := EvaluateConditions(rule.EOC, weather, eoc)

		var triggered bool
		if rule.Combine == OpAnd {
			triggered = weatherMatch && eocMatch
		} else {
			triggered = weatherMatch || eocMatch
		}
		if !triggered {
			continue
		}

		var reasons []string
		if weatherMatch {
			reasons = append(reasons, weatherReasons(weather)...)
		}
		if eocMatch {
			reasons = append(reasons, eocReasons(eoc)...)
		}
		return Classification{Level: level, Reasons: reasons}
	}
	return Classification{Level: LevelNone}
}

// ReasonString joins reasons into the committed state's reason text.
func ReasonString(reasons []string) string {
	if len(reasons) == 0 {
		return "No active alerts"
	}
	return strings.Join(reasons, ", ")
}

// weatherReasons lists "Weather: <event>" for every alert in the snapshot,
// with the event truncated to its warning type and de-duplicated. Snapshot
// keys are sorted so the output is deterministic.
func weatherReasons(weather WeatherSnapshot) []string {
	ids := make([]string, 0, len(weather))
	for id := range weather {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	seen := make(map[string]bool, len(ids))
	var reasons []string
	for _, id := range ids {
		short := shortEventName(weather[id].Event)
		if short == "" || seen[short] {
			continue
		}
		seen[short] = true
		reasons = append(reasons, "Weather: "+short)
	}
	return reasons
}

// eocReasons lists "LDMG: <STATE>" for every activated site, de-duplicated,
// in sorted site order.
func eocReasons(eoc EOCSnapshot) []string {
	sites := make([]string, 0, len(eoc))
	for site := range eoc {
		sites = append(sites, site)
	}
	sort.Strings(sites)

	seen := make(map[string]bool, len(sites))
	var reasons []string
	for _, site := range sites {
		state := eoc[site]
		if !state.Activated {
			continue
		}
		reason := "LDMG: " + strings.ToUpper(state.State)
		if seen[reason] {
			continue
		}
		seen[reason] = true
		reasons = append(reasons, reason)
	}
	return reasons
}

// shortEventName truncates a warning title to its warning type by cutting at
// the first " for " and then " - ". BOM titles append area lists after these
// delimiters.
func shortEventName(event string) string {
	short, _, _ := strings.Cut(event, " for ")
	short, _, _ = strings.Cut(short, " - ")
	return strings.TrimSpace(short)
}
