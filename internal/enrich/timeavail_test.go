package enrich

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tutordex/core/internal/normalize"
)

var timeSlotRE = regexp.MustCompile(`^\d{2}:\d{2}-\d{2}:\d{2}$`)

func TestExtractTimeAvailability_ExplicitDaySingleTime(t *testing.T) {
	norm := normalize.Text("Timing: TUESDAY AT 7PM")
	ta, _ := ExtractTimeAvailability("Timing: TUESDAY AT 7PM", norm)
	require.Equal(t, []string{"19:00-19:00"}, ta.Explicit[time.Tuesday])
	require.Empty(t, ta.Estimated[time.Tuesday])
}

func TestExtractTimeAvailability_EstimatedAfterTimeMultiDays(t *testing.T) {
	raw := "Preferably Tuesday or Thursday after 3pm"
	norm := normalize.Text(raw)
	ta, _ := ExtractTimeAvailability(raw, norm)
	require.Equal(t, []string{"15:00-23:00"}, ta.Estimated[time.Tuesday])
	require.Equal(t, []string{"15:00-23:00"}, ta.Estimated[time.Thursday])
}

func TestExtractTimeAvailability_FromTimeWithDotNormalization(t *testing.T) {
	raw := "Saturdays, from 11.45am"
	norm := normalize.Text(raw)
	ta, _ := ExtractTimeAvailability(raw, norm)
	require.Equal(t, []string{"11:45-23:00"}, ta.Estimated[time.Saturday])
}

func TestExtractTimeAvailability_WeekdaysPolicyFlexibleNoteAndBeforeRule(t *testing.T) {
	raw := "Weekdays at 730pm / Saturday flexible / No Sunday before 3pm"
	norm := normalize.Text(raw)
	ta, meta := ExtractTimeAvailability(raw, norm)

	for _, d := range []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday} {
		require.Equal(t, []string{"19:30-19:30"}, ta.Estimated[d])
		require.Empty(t, ta.Explicit[d])
	}

	require.Empty(t, ta.Explicit[time.Saturday])
	require.Empty(t, ta.Estimated[time.Saturday])
	require.NotNil(t, ta.Note)
	require.Contains(t, *ta.Note, "flexible")

	require.Equal(t, []string{"08:00-15:00"}, ta.Estimated[time.Sunday])
	require.Contains(t, meta.ParseWarnings, "negation_detected_near_time")
}

func TestExtractTimeAvailability_TBCNoteOnly(t *testing.T) {
	raw := "Days and time: tbc"
	norm := normalize.Text(raw)
	ta, _ := ExtractTimeAvailability(raw, norm)
	for _, d := range weekOrder {
		require.Empty(t, ta.Explicit[d])
		require.Empty(t, ta.Estimated[d])
	}
	require.NotNil(t, ta.Note)
	require.Contains(t, *ta.Note, "tbc")
}

func TestExtractTimeAvailability_DayListWithSingleRelativeTimeAppliesToAll(t *testing.T) {
	raw := "Timing: MONDAY / THURSDAY / FRIDAY - AFTER 4PM"
	norm := normalize.Text(raw)
	ta, _ := ExtractTimeAvailability(raw, norm)
	for _, d := range []time.Weekday{time.Monday, time.Thursday, time.Friday} {
		require.Equal(t, []string{"16:00-23:00"}, ta.Estimated[d])
	}
}

func TestExtractTimeAvailability_DayListThenNextLineTimeCarryOver(t *testing.T) {
	raw := "Timing:\nMonday / Thursday / Friday\nAfter 4pm"
	norm := normalize.Text(raw)
	ta, meta := ExtractTimeAvailability(raw, norm)
	for _, d := range []time.Weekday{time.Monday, time.Thursday, time.Friday} {
		require.Equal(t, []string{"16:00-23:00"}, ta.Estimated[d])
	}
	require.Contains(t, meta.RulesFired, "carry_days_to_next_line")
}

func TestExtractTimeAvailability_OutputShapeAndFormatProperty(t *testing.T) {
	cases := []string{
		"Timing: Tue 7pm",
		"Available weekdays",
		"Preferably Thurs after 3pm",
		"Saturday morning",
	}
	for _, raw := range cases {
		norm := normalize.Text(raw)
		ta, _ := ExtractTimeAvailability(raw, norm)
		for _, d := range weekOrder {
			for _, slot := range ta.Explicit[d] {
				require.True(t, timeSlotRE.MatchString(slot), "bad explicit slot: %q", slot)
			}
			for _, slot := range ta.Estimated[d] {
				require.True(t, timeSlotRE.MatchString(slot), "bad estimated slot: %q", slot)
			}
		}
	}
}
