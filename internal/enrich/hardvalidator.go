package enrich

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tutordex/core/internal/model"
)

// HardValidateMode controls whether HardValidate mutates the record it
// checks.
type HardValidateMode string

const (
	HardValidateOff     HardValidateMode = "off"
	HardValidateReport  HardValidateMode = "report"
	HardValidateEnforce HardValidateMode = "enforce"
)

// Violation records one field that failed a hard-validator invariant.
type Violation struct {
	Path    string
	Code    string
	Message string
}

var timeSlotShapeRE = regexp.MustCompile(`^\d{2}:\d{2}-\d{2}:\d{2}$`)

// validateTimeSlot returns the cleaned slot and an error code, following
// the same dash-normalization and clock/order checks the enricher's own
// time parser would have produced.
func validateTimeSlot(slot string) (string, string) {
	s := strings.TrimSpace(slot)
	if s == "" {
		return "", "empty_slot"
	}
	s = dashReplacerHard.Replace(s)
	s = regexp.MustCompile(`\s*-\s*`).ReplaceAllString(s, "-")

	if !timeSlotShapeRE.MatchString(s) {
		return "", "format"
	}
	parts := strings.SplitN(s, "-", 2)
	start := strings.SplitN(parts[0], ":", 2)
	end := strings.SplitN(parts[1], ":", 2)
	sh, _ := strconv.Atoi(start[0])
	sm, _ := strconv.Atoi(start[1])
	eh, _ := strconv.Atoi(end[0])
	em, _ := strconv.Atoi(end[1])
	if sh > 23 || eh > 23 || sm > 59 || em > 59 {
		return "", "clock"
	}
	if sh > eh || (sh == eh && sm > em) {
		return "", "start_after_end"
	}
	return s, ""
}

var dashReplacerHard = strings.NewReplacer("–", "-", "—", "-", "−", "-", "‒", "-")

// HardValidate enforces types and invariants over a, per mode. It returns
// the violations found; in HardValidateEnforce mode a is mutated in place
// to drop or null the unsupported values.
func HardValidate(a *model.Assignment, rawText string, mode HardValidateMode) []Violation {
	var violations []Violation
	if mode == HardValidateOff {
		return nil
	}
	enforce := mode == HardValidateEnforce

	for _, section := range []struct {
		name string
		dm   model.DayMap
	}{{"time_availability.explicit", a.TimeAvailability.Explicit}, {"time_availability.estimated", a.TimeAvailability.Estimated}} {
		for day, slots := range section.dm {
			var cleaned []string
			for i, slot := range slots {
				c, errCode := validateTimeSlot(slot)
				if errCode != "" {
					violations = append(violations, Violation{
						Path: fmt.Sprintf("%s.%v[%d]", section.name, day, i), Code: "TIME",
						Message: fmt.Sprintf("invalid time slot (%s): %q", errCode, slot),
					})
					continue
				}
				cleaned = append(cleaned, c)
			}
			if enforce {
				section.dm[day] = cleaned
			}
		}
	}

	if a.Rate.Min != nil || a.Rate.Max != nil {
		if strings.TrimSpace(a.Rate.RawText) == "" {
			violations = append(violations, Violation{Path: "rate", Code: "RATE", Message: "min/max present but raw_text is empty"})
			if enforce {
				a.Rate.Min, a.Rate.Max = nil, nil
			}
		}
	}
	if rateIsQuoteLike(a.Rate.RawText) {
		if a.Rate.Min != nil || a.Rate.Max != nil {
			violations = append(violations, Violation{Path: "rate", Code: "RATE", Message: "quote-like raw_text; forcing min/max null"})
			if enforce {
				a.Rate.Min, a.Rate.Max = nil, nil
			}
		}
	}
	if a.Rate.Min != nil && a.Rate.Max != nil && *a.Rate.Min > *a.Rate.Max {
		violations = append(violations, Violation{Path: "rate", Code: "RATE", Message: "min > max; forcing both null"})
		if enforce {
			a.Rate.Min, a.Rate.Max = nil, nil
		}
	}

	if a.AdditionalRemarks != nil {
		remark := strings.TrimSpace(*a.AdditionalRemarks)
		if remark != "" {
			if !hasRemarksMarker(rawText) {
				violations = append(violations, Violation{Path: "additional_remarks", Code: "SUPPORT", Message: "no remarks marker in raw text; forcing null"})
				if enforce {
					a.AdditionalRemarks = nil
				}
			} else if !substringSupported(rawText, remark) {
				violations = append(violations, Violation{Path: "additional_remarks", Code: "SUPPORT", Message: "not supported by raw text; forcing null"})
				if enforce {
					a.AdditionalRemarks = nil
				}
			}
		}
	}

	for i, rb := range a.RateBreakdown {
		if rb.Min != nil && rb.Max != nil && *rb.Min > *rb.Max {
			violations = append(violations, Violation{Path: fmt.Sprintf("rate_breakdown[%d]", i), Code: "RATE", Message: "min>max; forcing null"})
			if enforce {
				a.RateBreakdown[i].Min, a.RateBreakdown[i].Max = nil, nil
			}
		}
		if rb.Confidence < 0 || rb.Confidence > 1 {
			violations = append(violations, Violation{Path: fmt.Sprintf("rate_breakdown[%d].confidence", i), Code: "RANGE", Message: "expected 0.0-1.0"})
			if enforce {
				a.RateBreakdown[i].Confidence = 0
			}
		}
	}

	return violations
}
