package enrich

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tutordex/core/internal/model"
)

func ptr(f float64) *float64 { return &f }

func TestHardValidate_DropsInvalidTimeEntries(t *testing.T) {
	a := &model.Assignment{TimeAvailability: model.NewTimeAvailability()}
	a.TimeAvailability.Explicit[time.Monday] = []string{"9:00-10:00", "09:00–10:00", "25:00-26:00"}

	violations := HardValidate(a, "Mon 9am", HardValidateEnforce)
	require.Equal(t, []string{"09:00-10:00"}, a.TimeAvailability.Explicit[time.Monday])
	found := false
	for _, v := range violations {
		if v.Code == "TIME" {
			found = true
		}
	}
	require.True(t, found)
}

func TestHardValidate_RateQuoteLikeForcesNullMinMax(t *testing.T) {
	a := &model.Assignment{Rate: model.Rate{Min: ptr(40), Max: ptr(60), RawText: "pls quote"}}
	violations := HardValidate(a, "Rate: pls quote", HardValidateEnforce)
	require.Nil(t, a.Rate.Min)
	require.Nil(t, a.Rate.Max)
	found := false
	for _, v := range violations {
		if v.Code == "RATE" {
			found = true
		}
	}
	require.True(t, found)
}

func TestHardValidate_AdditionalRemarksRequiresMarkerAndSupport(t *testing.T) {
	remark := "Tutor to commit 6 months"
	a := &model.Assignment{AdditionalRemarks: &remark}
	HardValidate(a, "No marker here", HardValidateEnforce)
	require.Nil(t, a.AdditionalRemarks)
}

func TestHardValidate_ReportModeDoesNotMutate(t *testing.T) {
	a := &model.Assignment{Rate: model.Rate{Min: ptr(40), Max: ptr(60), RawText: "pls quote"}}
	violations := HardValidate(a, "Rate: pls quote", HardValidateReport)
	require.NotNil(t, a.Rate.Min)
	require.NotEmpty(t, violations)
}

func TestHardValidate_OffModeSkipsEntirely(t *testing.T) {
	a := &model.Assignment{Rate: model.Rate{Min: ptr(40), Max: ptr(60), RawText: "pls quote"}}
	violations := HardValidate(a, "Rate: pls quote", HardValidateOff)
	require.Nil(t, violations)
}
