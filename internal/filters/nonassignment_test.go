package filters

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsNonAssignment_StatusOnly(t *testing.T) {
	cases := []string{"ASSIGNMENT CLOSED", "Assignment Taken", "FILLED", "EXPIRED", "aSsiGnMenT cLoSeD"}
	for _, text := range cases {
		res := IsNonAssignment(text)
		require.True(t, res.IsNonAssignment, text)
		require.Equal(t, MessageStatusOnly, res.MessageType, text)
	}
}

func TestIsNonAssignment_StatusWordNotTriggeredWithContent(t *testing.T) {
	text := `
🔻 Level and Subject(s): Primary 5 Math
🔻 Location/Area: Jurong West
🔻 Hourly Rate: $40/hr
Assignment Status: CLOSED
`
	res := IsNonAssignment(text)
	require.False(t, res.IsNonAssignment)
}

func TestIsNonAssignment_Redirect(t *testing.T) {
	res := IsNonAssignment("👇 Assignment 11320 has been reposted below.")
	require.True(t, res.IsNonAssignment)
	require.Equal(t, MessageRedirect, res.MessageType)
	require.True(t, strings.Contains(strings.ToLower(res.Details), "repost"))

	res = IsNonAssignment("See message above for details")
	require.True(t, res.IsNonAssignment)
	require.Equal(t, MessageRedirect, res.MessageType)
}

func TestIsNonAssignment_Administrative(t *testing.T) {
	text := `🔥 Calling All Tutors!

There are many Tuition job opportunities. Apply now!

✅ Primary 5 English OR Science @ Kingsford Waterbay
✅ Primary 3 English @ 40+ Chai Chee Street
✅ Primary 6 English @ 720+ Jurong West
`
	res := IsNonAssignment(text)
	require.True(t, res.IsNonAssignment)
	require.Equal(t, MessageAdministrative, res.MessageType)
}

func TestIsNonAssignment_ValidAssignmentsNotFiltered(t *testing.T) {
	texts := []string{
		`Looking for Online Tutor to teach Economics (EC1002)- Online Tuition

🔻 Level and Subject(s):   Economics (EC1002)
🔻 Location/Area: Online Tuition

🔻 Hourly Rate: Kindly quote best rate
🔻 Lesson Per Week: Once a week, 1.5 hours per session
🔻 Student's Gender: Female (M)
🔻 Time: Kindly state your "Detailed" Available time slots from Monday to Sunday.

Job ID: NT29838
`,
		`🔻 Level and Subject(s): Primary 5 English
🔻 Location/Area: Near closed-loop MRT station
🔻 Hourly Rate: $40/hr

Status: OPEN
Job ID: XYZ789
`,
	}
	for _, text := range texts {
		res := IsNonAssignment(text)
		require.False(t, res.IsNonAssignment, text)
	}
}

func TestIsNonAssignment_EdgeCases(t *testing.T) {
	require.False(t, IsNonAssignment("").IsNonAssignment)
	require.False(t, IsNonAssignment("   \n\n   \t\t   ").IsNonAssignment)
	require.False(t, IsNonAssignment("OK").IsNonAssignment)
}
