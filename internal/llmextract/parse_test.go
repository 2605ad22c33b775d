package llmextract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tutordex/core/internal/model"
	"github.com/tutordex/core/internal/pipeline"
)

func TestParseRecord_HappyPath(t *testing.T) {
	content := `{
  "assignment_code": "A123",
  "academic_display_text": "Sec 3 Math",
  "learning_mode": "Online",
  "addresses": ["Bukit Timah"],
  "postal_codes": ["123456"],
  "nearest_mrt": [],
  "lesson_schedule": ["2x/week"],
  "start_date": null,
  "rate": {"min": 40, "max": 60, "raw_text": "$40-60/hr"},
  "additional_remarks": null,
  "tutor_types": ["full_time"]
}`
	a, raw, err := parseRecord(content)
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	require.Equal(t, "A123", a.AssignmentCode)
	require.Equal(t, model.LearningModeOnline, a.LearningMode)
	require.Equal(t, []string{"123456"}, a.PostalCodes)
	require.NotNil(t, a.Rate.Min)
	require.Equal(t, 40.0, *a.Rate.Min)
}

func TestParseRecord_StripsSurroundingProse(t *testing.T) {
	content := "Here is the record:\n```json\n{\"academic_display_text\": \"Math tuition\", \"rate\": {}}\n```\nThanks."
	a, _, err := parseRecord(content)
	require.NoError(t, err)
	require.Equal(t, "Math tuition", a.AcademicDisplayText)
}

func TestParseRecord_RepairsTrailingComma(t *testing.T) {
	content := `{"academic_display_text": "Math tuition", "addresses": ["A", "B",], "rate": {},}`
	a, _, err := parseRecord(content)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, a.Addresses)
}

func TestParseRecord_NoObjectIsInvalidJSON(t *testing.T) {
	_, _, err := parseRecord("no json here at all")
	se, ok := pipeline.AsStageError(err)
	require.True(t, ok)
	require.Equal(t, pipeline.CodeLLMInvalidJSON, se.Code)
}

func TestParseRecord_BraceInsideStringDoesNotDesync(t *testing.T) {
	content := `{"academic_display_text": "weird { brace } in text", "rate": {}}`
	a, _, err := parseRecord(content)
	require.NoError(t, err)
	require.Equal(t, "weird { brace } in text", a.AcademicDisplayText)
}

func TestParseRecord_UnterminatedObjectIsInvalidJSON(t *testing.T) {
	_, _, err := parseRecord(`{"academic_display_text": "oops"`)
	se, ok := pipeline.AsStageError(err)
	require.True(t, ok)
	require.Equal(t, pipeline.CodeLLMInvalidJSON, se.Code)
}
