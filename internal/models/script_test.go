package models_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinegenius-server/internal/models"
	"cinegenius-server/internal/schemas"
)

func multiSceneAnalysis() models.ScriptAnalysis {
	return models.ScriptAnalysis{
		Title:   "Night Shift",
		Logline: "A nurse uncovers a secret.",
		Scenes: []models.Scene{
			{SceneNumber: 3, Setting: "EXT. PARKING LOT", TimeOfDay: "DAWN", Summary: "Ann leaves.", Characters: []string{"Ann"}, Locations: "Parking lot", Pages: "1/8"},
			{SceneNumber: 1, Setting: "INT. HOSPITAL", TimeOfDay: "NIGHT", Summary: "Ann meets Dr. Li.", Characters: []string{"Ann", "Dr. Li"}, Locations: "Hospital", Pages: "1 1/8"},
			{SceneNumber: 2, Setting: "INT. MORGUE", TimeOfDay: "NIGHT", Summary: "A body is missing.", Characters: []string{"Dr. Li", "Guard"}, Locations: "Morgue", Pages: "2"},
		},
		Characters: []models.Character{
			{Name: "Ann", Description: "A tired nurse", Scenes: []int{1, 3}},
			{Name: "Dr. Li", Description: "Surgeon", Scenes: []int{1, 2}},
			{Name: "Guard", Description: "Night guard"},
		},
	}
}

func TestScriptAnalysis_WireRoundTrip(t *testing.T) {
	original := multiSceneAnalysis()

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var parsed models.ScriptAnalysis
	require.NoError(t, json.Unmarshal(data, &parsed))

	// Сцены сохраняют порядок, персонажи совпадают как множество
	assert.Equal(t, original.Scenes, parsed.Scenes)
	assert.ElementsMatch(t, original.Characters, parsed.Characters)
	assert.Equal(t, original.Title, parsed.Title)
	assert.Equal(t, original.Logline, parsed.Logline)
}

func TestScriptAnalysis_WireEncodingMatchesSchema(t *testing.T) {
	data, err := json.Marshal(multiSceneAnalysis())
	require.NoError(t, err)

	decoded, err := schemas.Decode(data)
	require.NoError(t, err)
	assert.NoError(t, schemas.Check(decoded, schemas.MustLookup(models.TaskParseScript).Schema))
}
