package domain

import (
	"encoding/json"
	"fmt"
)

// Operator joins the rules of a condition set, or the two condition sets of
// a level rule.
type Operator string

const (
	OpAnd Operator = "and"
	OpOr  Operator = "or"
)

// RuleKind distinguishes the two condition rule variants.
type RuleKind int

const (
	// KindWeather matches against the weather snapshot.
	KindWeather RuleKind = iota
	// KindEOC matches against the EOC snapshot.
	KindEOC
)

// MatchAny is the wildcard for weather event and severity matching.
const MatchAny = "any"

// ConditionRule is a tagged variant: a weather rule uses EventMatch and
// SeverityMatch, an EOC rule uses StateMatch. All matching is
// case-insensitive; EventMatch is a substring match, the others are exact.
type ConditionRule struct {
	Kind          RuleKind
	EventMatch    string
	SeverityMatch string
	StateMatch    string
}

// WeatherRule builds a weather condition rule. Pass MatchAny to either field
// to match any event type or severity.
func WeatherRule(eventMatch, severityMatch string) ConditionRule {
	return ConditionRule{Kind: KindWeather, EventMatch: eventMatch, SeverityMatch: severityMatch}
}

// EOCRule builds an EOC condition rule matching activated sites in the given
// state.
func EOCRule(stateMatch string) ConditionRule {
	return ConditionRule{Kind: KindEOC, StateMatch: stateMatch}
}

// ConditionSet combines rules with a single operator. An empty rule list
// never matches, regardless of operator.
type ConditionSet struct {
	Operator Operator
	Rules    []ConditionRule
}

// LevelRule decides whether one alert level triggers: the weather and EOC
// condition sets are evaluated independently and combined with Combine.
type LevelRule struct {
	Weather ConditionSet
	EOC     ConditionSet
	Combine Operator
}

// LevelTable maps each triggerable alert level to its rule. Read-only to the
// engine; replaced whole on reload.
type LevelTable map[AlertLevel]LevelRule

// Wire shapes for the JSON rule-table format used by the configuration file
// and the reload endpoint. Rules are distinguished by which keys they carry:
// weather rules have "type"/"severity", EOC rules have "state".

type conditionRuleJSON struct {
	Type     *string `json:"type,omitempty"`
	Severity *string `json:"severity,omitempty"`
	State    *string `json:"state,omitempty"`
}

type conditionSetJSON struct {
	Operator string              `json:"operator"`
	Rules    []conditionRuleJSON `json:"rules"`
}

type levelRuleJSON struct {
	WeatherConditions conditionSetJSON `json:"weather_conditions"`
	EOCConditions     conditionSetJSON `json:"eoc_conditions"`
	ConditionLogic    string           `json:"condition_logic"`
}

// ParseLevelTable decodes a JSON rule table. Unknown level names are an
// error; malformed operators and unrecognizable rules degrade per the
// normalization rules rather than failing, so a partially wrong table still
// evaluates.
func ParseLevelTable(data []byte) (LevelTable, error) {
	var raw map[string]levelRuleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse level table: %w", err)
	}

	table := make(LevelTable, len(raw))
	for name, lr := range raw {
		level, err := ParseAlertLevel(name)
		if err != nil {
			return nil, fmt.Errorf("parse level table: %w", err)
		}
		if level == LevelNone {
			return nil, fmt.Errorf("parse level table: level %q cannot carry a rule", name)
		}
		table[level] = LevelRule{
			Weather: decodeConditionSet(lr.WeatherConditions),
			EOC:     decodeConditionSet(lr.EOCConditions),
			Combine: normalizeOperator(lr.ConditionLogic),
		}
	}
	return table.Normalize(), nil
}

func decodeConditionSet(cs conditionSetJSON) ConditionSet {
	out := ConditionSet{Operator: normalizeOperator(cs.Operator)}
	for _, r := range cs.Rules {
		switch {
		case r.State != nil:
			out.Rules = append(out.Rules, EOCRule(*r.State))
		case r.Severity != nil || r.Type != nil:
			rule := WeatherRule(MatchAny, MatchAny)
			if r.Type != nil {
				rule.EventMatch = *r.Type
			}
			if r.Severity != nil {
				rule.SeverityMatch = *r.Severity
			}
			out.Rules = append(out.Rules, rule)
		default:
			// Neither variant's keys present: the rule is unrecognizable
			// and dropped.
		}
	}
	return out
}

// MarshalJSON renders the table in the wire format accepted by
// ParseLevelTable.
func (t LevelTable) MarshalJSON() ([]byte, error) {
	raw := make(map[string]levelRuleJSON, len(t))
	for level, lr := range t {
		raw[level.String()] = levelRuleJSON{
			WeatherConditions: encodeConditionSet(lr.Weather),
			EOCConditions:     encodeConditionSet(lr.EOC),
			ConditionLogic:    string(lr.Combine),
		}
	}
	return json.Marshal(raw)
}

func encodeConditionSet(cs ConditionSet) conditionSetJSON {
	out := conditionSetJSON{Operator: string(cs.Operator), Rules: []conditionRuleJSON{}}
	for _, r := range cs.Rules {
		r := r
		switch r.Kind {
		case KindWeather:
			out.Rules = append(out.Rules, conditionRuleJSON{Type: &r.EventMatch, Severity: &r.SeverityMatch})
		case KindEOC:
			out.Rules = append(out.Rules, conditionRuleJSON{State: &r.StateMatch})
		}
	}
	return out
}

// Normalize returns a copy of the table with invalid operators replaced by
// OR and nil rule lists replaced by empty ones, so evaluation never has to
// handle malformed entries.
func (t LevelTable) Normalize() LevelTable {
	out := make(LevelTable, len(t))
	for level, lr := range t {
		lr.Weather = normalizeConditionSet(lr.Weather)
		lr.EOC = normalizeConditionSet(lr.EOC)
		lr.Combine = normalizeOperator(string(lr.Combine))
		out[level] = lr
	}
	return out
}

func normalizeConditionSet(cs ConditionSet) ConditionSet {
	cs.Operator = normalizeOperator(string(cs.Operator))
	if cs.Rules == nil {
		cs.Rules = []ConditionRule{}
	}
	return cs
}

func normalizeOperator(s string) Operator {
	if Operator(s) == OpAnd {
		return OpAnd
	}
	return OpOr
}

// DefaultLevelTable returns the built-in rule table:
//
//   - advisory: any minor warning, or EOC at "alert" or "stand down"
//   - watch: any moderate warning, or EOC at "lean forward"
//   - warning: any severe warning (no EOC trigger)
//   - emergency: any extreme warning, any tropical cyclone warning, or EOC
//     at "stand up"
func DefaultLevelTable() LevelTable {
	return LevelTable{
		LevelAdvisory: {
			Weather: ConditionSet{Operator: OpOr, Rules: []ConditionRule{
				WeatherRule(MatchAny, SeverityMinor),
			}},
			EOC: ConditionSet{Operator: OpOr, Rules: []ConditionRule{
				EOCRule(EOCAlert),
				EOCRule(EOCStandDown),
			}},
			Combine: OpOr,
		},
		LevelWatch: {
			Weather: ConditionSet{Operator: OpOr, Rules: []ConditionRule{
				WeatherRule(MatchAny, SeverityModerate),
			}},
			EOC: ConditionSet{Operator: OpOr, Rules: []ConditionRule{
				EOCRule(EOCLeanForward),
			}},
			Combine: OpOr,
		},
		LevelWarning: {
			Weather: ConditionSet{Operator: OpOr, Rules: []ConditionRule{
				WeatherRule(MatchAny, SeveritySevere),
			}},
			EOC:     ConditionSet{Operator: OpOr, Rules: []ConditionRule{}},
			Combine: OpOr,
		},
		LevelEmergency: {
			Weather: ConditionSet{Operator: OpOr, Rules: []ConditionRule{
				WeatherRule(MatchAny, SeverityExtreme),
				WeatherRule("Tropical Cyclone Warning", MatchAny),
			}},
			EOC: ConditionSet{Operator: OpOr, Rules: []ConditionRule{
				EOCRule(EOCStandUp),
			}},
			Combine: OpOr,
		},
	}
}
