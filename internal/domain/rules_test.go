package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevelTable(t *testing.T) {
	raw := `{
		"warning": {
			"weather_conditions": {
				"operator": "or",
				"rules": [
					{"type": "any", "severity": "severe"},
					{"type": "Flood Warning"}
				]
			},
			"eoc_conditions": {
				"operator": "and",
				"rules": [{"state": "stand up"}]
			},
			"condition_logic": "or"
		}
	}`

	table, err := ParseLevelTable([]byte(raw))
	require.NoError(t, err)
	require.Contains(t, table, LevelWarning)

	rule := table[LevelWarning]
	assert.Equal(t, OpOr, rule.Combine)
	assert.Equal(t, OpOr, rule.Weather.Operator)
	assert.Equal(t, OpAnd, rule.EOC.Operator)
	require.Len(t, rule.Weather.Rules, 2)
	assert.Equal(t, WeatherRule(MatchAny, SeveritySevere), rule.Weather.Rules[0])
	require.Len(t, rule.EOC.Rules, 1)
	assert.Equal(t, EOCRule(EOCStandUp), rule.EOC.Rules[0])
}

func TestParseLevelTable_MissingSeverityDefaultsToAny(t *testing.T) {
	raw := `{"advisory": {"weather_conditions": {"operator": "or", "rules": [{"type": "Flood Warning"}]}}}`

	table, err := ParseLevelTable([]byte(raw))
	require.NoError(t, err)
	require.Len(t, table[LevelAdvisory].Weather.Rules, 1)
	assert.Equal(t, WeatherRule("Flood Warning", MatchAny), table[LevelAdvisory].Weather.Rules[0])
}

func TestParseLevelTable_UnknownLevelFails(t *testing.T) {
	_, err := ParseLevelTable([]byte(`{"catastrophe": {}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catastrophe")
}

func TestParseLevelTable_NoneCannotCarryRules(t *testing.T) {
	_, err := ParseLevelTable([]byte(`{"none": {}}`))
	require.Error(t, err)
}

func TestParseLevelTable_MalformedJSONFails(t *testing.T) {
	_, err := ParseLevelTable([]byte(`{"warning": `))
	require.Error(t, err)
}

func TestParseLevelTable_UnrecognizableRuleDropped(t *testing.T) {
	raw := `{"watch": {"weather_conditions": {"operator": "or", "rules": [{"foo": "bar"}, {"severity": "moderate"}]}}}`

	table, err := ParseLevelTable([]byte(raw))
	require.NoError(t, err)
	require.Len(t, table[LevelWatch].Weather.Rules, 1)
	assert.Equal(t, WeatherRule(MatchAny, SeverityModerate), table[LevelWatch].Weather.Rules[0])
}

func TestParseLevelTable_InvalidOperatorFallsBackToOr(t *testing.T) {
	raw := `{"watch": {"weather_conditions": {"operator": "xor", "rules": [{"severity": "moderate"}]}, "condition_logic": "nand"}}`

	table, err := ParseLevelTable([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, OpOr, table[LevelWatch].Weather.Operator)
	assert.Equal(t, OpOr, table[LevelWatch].Combine)
}

func TestLevelTable_MarshalRoundTrip(t *testing.T) {
	original := DefaultLevelTable()

	data, err := json.Marshal(original)
	require.NoError(t, err)

	parsed, err := ParseLevelTable(data)
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
}

func TestNormalize_RepairsMalformedEntries(t *testing.T) {
	table := LevelTable{
		LevelWatch: {
			Weather: ConditionSet{Operator: "maybe"},
			EOC:     ConditionSet{Operator: OpAnd, Rules: nil},
			Combine: "",
		},
	}

	normalized := table.Normalize()
	rule := normalized[LevelWatch]
	assert.Equal(t, OpOr, rule.Weather.Operator)
	assert.Equal(t, OpAnd, rule.EOC.Operator)
	assert.Equal(t, OpOr, rule.Combine)
	assert.NotNil(t, rule.Weather.Rules)
	assert.NotNil(t, rule.EOC.Rules)
}

func TestDefaultLevelTable_CoversAllTriggerableLevels(t *testing.T) {
	table := DefaultLevelTable()
	for _, level := range LevelsDescending() {
		assert.Contains(t, table, level)
	}
	assert.NotContains(t, table, LevelNone)
}
