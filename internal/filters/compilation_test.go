package filters

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectCompilation_ThreeBlocksTriggers(t *testing.T) {
	text := `Subject: Math
Rate: $40
Address: Bukit Timah 123456

Subject: English
Rate: $35
Address: Yishun 234567

Subject: Science
Rate: $45
Address: Tampines 345678`

	res := DetectCompilation(text, DefaultCompilationThresholds)
	require.True(t, res.IsCompilation)
	require.Equal(t, 3, res.PostalHits)
	require.GreaterOrEqual(t, res.BlockCount, 2)
}

func TestDetectCompilation_SingleAssignmentDoesNotTrigger(t *testing.T) {
	text := `Level and Subject(s): Secondary 3 Math
Location/Area: Bukit Batok 650123
Hourly Rate: $45/hr
Job ID: ABC123`

	res := DetectCompilation(text, DefaultCompilationThresholds)
	require.False(t, res.IsCompilation)
}

func TestConfirmCompilation_DropsHallucinatedIdentifiers(t *testing.T) {
	text := "Job A123 details... Job B456 details..."
	pattern := regexp.MustCompile(`^[A-Za-z]{1,4}\d{3,8}[A-Za-z]?$`)
	verified, ok := ConfirmCompilation(text, []string{"A123", "B456", "ZZZ999"}, pattern)
	require.True(t, ok)
	require.ElementsMatch(t, []string{"A123", "B456"}, verified)
}

func TestConfirmCompilation_NoneVerifiedDowngrades(t *testing.T) {
	text := "no identifiers in here at all"
	_, ok := ConfirmCompilation(text, []string{"Q999"}, nil)
	require.False(t, ok)
}

func TestOrderAndSplit_ProducesReadingOrderSegments(t *testing.T) {
	text := "intro noise B456 second job details A123 first job details"
	ordered := OrderVerifiedIdentifiers(text, []string{"A123", "B456"})
	require.Equal(t, []string{"B456", "A123"}, ordered)

	segments := SplitCompilationMessage(text, ordered)
	require.Len(t, segments, 2)
	require.Equal(t, "B456", segments[0].Identifier)
	require.Contains(t, segments[0].Text, "second job details")
	require.Equal(t, "A123", segments[1].Identifier)
	require.Contains(t, segments[1].Text, "first job details")
}
