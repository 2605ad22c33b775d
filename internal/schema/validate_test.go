package schema

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tutordex/core/internal/model"
)

func TestValidate_PassesWithScheduleAndAddress(t *testing.T) {
	a := &model.Assignment{
		LessonSchedule: []string{"2x/week, 1.5hr"},
		Addresses:      []string{"Bukit Timah Road"},
	}
	ok, errs := Validate(a)
	require.True(t, ok)
	require.Empty(t, errs)
}

func TestValidate_FailsWithNoSchedule(t *testing.T) {
	a := &model.Assignment{
		Addresses: []string{"Bukit Timah Road"},
	}
	ok, errs := Validate(a)
	require.False(t, ok)
	require.Len(t, errs, 1)
}

func TestValidate_FailsWithNoLocationWhenNotOnline(t *testing.T) {
	a := &model.Assignment{
		LessonSchedule: []string{"2x/week"},
		LearningMode:   model.LearningModeFaceToFace,
	}
	ok, errs := Validate(a)
	require.False(t, ok)
	require.Len(t, errs, 1)
}

func TestValidate_OnlineDoesNotRequireLocation(t *testing.T) {
	a := &model.Assignment{
		LessonSchedule: []string{"2x/week"},
		LearningMode:   model.LearningModeOnline,
	}
	ok, errs := Validate(a)
	require.True(t, ok)
	require.Empty(t, errs)
}

func TestValidate_TimeAvailabilitySatisfiesSchedule(t *testing.T) {
	ta := model.NewTimeAvailability()
	ta.Explicit[1] = []string{"15:00-16:00"} // Monday has index 1 per time.Weekday
	a := &model.Assignment{
		TimeAvailability: ta,
		PostalCodes:      []string{"123456"},
	}
	ok, errs := Validate(a)
	require.True(t, ok)
	require.Empty(t, errs)
}

func TestValidate_ReportsBothMissingSignals(t *testing.T) {
	a := &model.Assignment{}
	ok, errs := Validate(a)
	require.False(t, ok)
	require.Len(t, errs, 2)
}
