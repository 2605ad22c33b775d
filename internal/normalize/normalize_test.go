package normalize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestText_DashNormalization(t *testing.T) {
	require.Equal(t, "a-b - c - d - e", Text("a–b — c − d ‒ e"))
}

func TestText_TokenSplitting(t *testing.T) {
	require.Equal(t, "sec 3 jc 2 p 6 k 2 year 1 s 3 j 1", Text("sec3 jc2 p6 k2 year1 s3 j1"))
}

func TestText_TimePunctuationWithAmPm(t *testing.T) {
	require.Equal(t, "Thu 7:30pm and 11:45AM", Text("Thu 7.30pm and 11.45AM"))
}

func TestText_TimeRangeLeftSideDotOnlyWhenAmPmOnRight(t *testing.T) {
	require.Equal(t, "Available 2:30-5:30pm", Text("Available 2.30-5.30pm"))
}

func TestText_WhitespaceCollapse(t *testing.T) {
	require.Equal(t, "a b c\n\nd", Text("a\t\tb   c\n\n\n\nd"))
}

func TestText_Idempotent(t *testing.T) {
	samples := []string{
		"a–b — c − d ‒ e",
		"sec3 jc2 p6 k2 year1 s3 j1",
		"Thu 7.30pm and 11.45AM",
		"Available 2.30-5.30pm",
		"a\t\tb   c\n\n\n\nd",
		"",
		"plain text with no transforms",
	}
	for _, s := range samples {
		once := Text(s)
		twice := Text(once)
		require.Equal(t, once, twice, "Text must be idempotent for %q", s)
	}
}
