// Package schema implements the post-enrichment, pre-persistence gate: a
// record must carry at least one schedule shape and, unless the learning
// mode is online, at least one location signal.
package schema

import (
	"fmt"

	"github.com/tutordex/core/internal/model"
)

// Validate returns (ok, errors). A non-empty errors slice always implies
// ok == false; errors are human-readable and safe to embed in a triage
// message.
func Validate(a *model.Assignment) (bool, []string) {
	var errs []string

	if !hasSchedule(a) {
		errs = append(errs, "no schedule-carrying shape: lesson_schedule, start_date, and time_availability are all empty")
	}

	if a.LearningMode != model.LearningModeOnline && !hasLocation(a) {
		errs = append(errs, "no location signal for a non-online assignment: address, postal_code, and postal_code_estimated are all empty")
	}

	if len(errs) > 0 {
		return false, errs
	}
	return true, nil
}

func hasSchedule(a *model.Assignment) bool {
	if len(a.LessonSchedule) > 0 {
		return true
	}
	if a.StartDate != nil {
		return true
	}
	for _, slots := range a.TimeAvailability.Explicit {
		if len(slots) > 0 {
			return true
		}
	}
	for _, slots := range a.TimeAvailability.Estimated {
		if len(slots) > 0 {
			return true
		}
	}
	return false
}

func hasLocation(a *model.Assignment) bool {
	return len(a.Addresses) > 0 || len(a.PostalCodes) > 0 || len(a.PostalCodesEstimated) > 0
}

// Err renders a failed validation as a single error for callers that want
// Go error-style propagation (e.g. the worker's terminal-failed path).
func Err(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return fmt.Errorf("schema validation failed: %s", errs[0])
	}
	return fmt.Errorf("schema validation failed (%d reasons): %s", len(errs), errs[0])
}
