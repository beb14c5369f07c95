package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAlertLevel(t *testing.T) {
	cases := []struct {
		in   string
		want AlertLevel
	}{
		{"none", LevelNone},
		{"advisory", LevelAdvisory},
		{"watch", LevelWatch},
		{"warning", LevelWarning},
		{"emergency", LevelEmergency},
		{"EMERGENCY", LevelEmergency},
		{"  Watch ", LevelWatch},
	}
	for _, tc := range cases {
		got, err := ParseAlertLevel(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := ParseAlertLevel("catastrophe")
	require.Error(t, err)
}

func TestAlertLevel_Ordering(t *testing.T) {
	assert.True(t, LevelNone < LevelAdvisory)
	assert.True(t, LevelAdvisory < LevelWatch)
	assert.True(t, LevelWatch < LevelWarning)
	assert.True(t, LevelWarning < LevelEmergency)
}

func TestLevelsDescending(t *testing.T) {
	assert.Equal(t, []AlertLevel{LevelEmergency, LevelWarning, LevelWatch, LevelAdvisory}, LevelsDescending())
}

func TestAlertLevel_JSON(t *testing.T) {
	data, err := json.Marshal(LevelWarning)
	require.NoError(t, err)
	assert.Equal(t, `"warning"`, string(data))

	var level AlertLevel
	require.NoError(t, json.Unmarshal([]byte(`"emergency"`), &level))
	assert.Equal(t, LevelEmergency, level)

	require.Error(t, json.Unmarshal([]byte(`"catastrophe"`), &level))
	require.Error(t, json.Unmarshal([]byte(`7`), &level))
}

func TestAlertLevel_StringUnknownValue(t *testing.T) {
	assert.Equal(t, "none", AlertLevel(42).String())
}
