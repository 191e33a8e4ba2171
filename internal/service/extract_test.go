package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinegenius-server/internal/models"
)

const analysisJSON = `{
  "title": "Night Shift",
  "logline": "A nurse uncovers a secret.",
  "scenes": [
    {"sceneNumber": 1, "setting": "INT. HOSPITAL", "timeOfDay": "NIGHT", "summary": "Ann arrives.", "characters": ["Ann"], "locations": "Hospital", "pages": "1 1/8"}
  ],
  "characters": [{"name": "Ann", "description": "A tired nurse"}]
}`

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n[1,2]\n```":         `[1,2]`,
		"```json{\"a\":1}```":     `{"a":1}`,
		"  {\"a\":1}  ":           `{"a":1}`,
		"```{\"a\":1}\n```":       `{"a":1}`,
	}
	for in, want := range cases {
		got := stripFences(in)
		assert.Equal(t, want, got, "input %q", in)
		assert.Equal(t, got, stripFences(got), "stripping must be idempotent for %q", in)
	}
}

func TestExtract_FencedAndPlainAreEqual(t *testing.T) {
	plain, err := Extract[models.ScriptAnalysis](analysisJSON, models.TaskParseScript)
	require.NoError(t, err)
	fenced, err := Extract[models.ScriptAnalysis]("```json\n"+analysisJSON+"\n```", models.TaskParseScript)
	require.NoError(t, err)

	assert.Equal(t, plain, fenced)
	assert.Equal(t, "Night Shift", plain.Title)
	assert.Equal(t, "1 1/8", plain.Scenes[0].Pages)
}

func TestExtract_Empty(t *testing.T) {
	for _, raw := range []string{"", "   \n", "```json\n```"} {
		_, err := Extract[models.ScriptAnalysis](raw, models.TaskParseScript)
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrEmptyOutput)
		assert.Equal(t, "Received an empty response from the AI for script analysis.", models.UserMessage(err))
	}
}

func TestExtract_Malformed(t *testing.T) {
	t.Run("invalid json", func(t *testing.T) {
		_, err := Extract[[]models.Shot]("[{\"shotNumber\": 1,", models.TaskGenerateShotList)
		assert.ErrorIs(t, err, models.ErrMalformedOutput)
		assert.Equal(t, "The AI returned an invalid format for the shot list.", models.UserMessage(err))

		var te *models.TaskError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, "[{\"shotNumber\": 1,", te.Raw)
	})

	t.Run("missing required field", func(t *testing.T) {
		raw := `[{"shotNumber": 1, "shotType": "Wide", "lens": "24mm"}]`
		_, err := Extract[[]models.Shot](raw, models.TaskGenerateShotList)
		assert.ErrorIs(t, err, models.ErrMalformedOutput)
		assert.Contains(t, err.Error(), "[0].description: required property missing")
	})

	t.Run("wrong root type", func(t *testing.T) {
		_, err := Extract[models.ProductionBible](`[]`, models.TaskGenerateSceneProductionGuide)
		assert.ErrorIs(t, err, models.ErrMalformedOutput)
		assert.Equal(t, "The AI returned an invalid format for the scene production guide.", models.UserMessage(err))
	})
}

func TestExtract_EmptyContinuityIsValid(t *testing.T) {
	report, err := Extract[models.ContinuityAnalysis](
		`{"characterContinuity": [], "costumeContinuity": [], "editingContinuity": []}`,
		models.TaskGenerateContinuityReport)
	require.NoError(t, err)
	assert.True(t, report.IsEmpty())
}

func TestExtract_NoSemanticChecks(t *testing.T) {
	// Повторяющиеся номера кадров не проверяются
	raw := `[{"shotNumber": 1, "shotType": "Wide", "lens": "24mm", "description": "a"},
	         {"shotNumber": 1, "shotType": "Close", "lens": "85mm", "description": "b"}]`
	shots, err := Extract[[]models.Shot](raw, models.TaskGenerateShotList)
	require.NoError(t, err)
	assert.Len(t, shots, 2)
}
