package enrich

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildSignals_PrefersAcademicDisplayText(t *testing.T) {
	sig := BuildSignals("Sec 3 Math, full timer preferred $40-50/hr", "raw normalized fallback", "raw fallback")
	require.Equal(t, "academic_display_text", sig.Source)
	require.Contains(t, sig.Subjects, "math")
	require.Contains(t, sig.Levels, "sec 3")
}

func TestBuildSignals_FallsBackToNormalizedThenRaw(t *testing.T) {
	sig := BuildSignals("", "Pri 5 Science needed", "")
	require.Equal(t, "normalized_text", sig.Source)

	sig2 := BuildSignals("", "", "Pri 6 English needed")
	require.Equal(t, "raw_text", sig2.Source)
}

func TestBuildSignals_AssociatesRateWithNearestTutorType(t *testing.T) {
	sig := BuildSignals("Looking for a full timer, rate $40-50/hr", "", "")
	require.Len(t, sig.TutorTypes, 1)
	rb := sig.TutorTypes[0]
	require.Equal(t, "full-timer", rb.TutorType)
	require.NotNil(t, rb.Min)
	require.NotNil(t, rb.Max)
	require.Equal(t, 40.0, *rb.Min)
	require.Equal(t, 50.0, *rb.Max)
}

func TestBuildSignals_FreeStandingTutorTypeWithoutRate(t *testing.T) {
	sig := BuildSignals("MOE teacher preferred, rate to be discussed", "", "")
	require.NotEmpty(t, sig.TutorTypes)
	require.Equal(t, "moe-exmoe", sig.TutorTypes[0].TutorType)
	require.Nil(t, sig.TutorTypes[0].Min)
}

func TestBuildSignals_NoTutorTypeMentionYieldsEmpty(t *testing.T) {
	sig := BuildSignals("Sec 2 Chemistry tuition needed urgently", "", "")
	require.Empty(t, sig.TutorTypes)
}
