package llmextract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tutordex/core/internal/model"
	"github.com/tutordex/core/internal/pipeline"
)

// trailingCommaRE matches a comma followed by optional whitespace and a
// closing brace or bracket, the most common malformed-JSON artifact from
// chat models asked to produce strict JSON.
var trailingCommaRE = regexp.MustCompile(`,(\s*[}\]])`)

// wireRecord is the on-the-wire shape the system prompt pins; it is decoded
// then mapped onto model.Assignment so the extractor's JSON contract stays
// independent of the canonical struct's internal field names.
type wireRecord struct {
	AssignmentCode      *string  `json:"assignment_code"`
	AcademicDisplayText string   `json:"academic_display_text"`
	LearningMode        *string  `json:"learning_mode"`
	Addresses           []string `json:"addresses"`
	PostalCodes         []string `json:"postal_codes"`
	NearestMRT          []string `json:"nearest_mrt"`
	LessonSchedule      []string `json:"lesson_schedule"`
	StartDate           *string  `json:"start_date"`
	Rate                struct {
		Min     *float64 `json:"min"`
		Max     *float64 `json:"max"`
		RawText *string  `json:"raw_text"`
	} `json:"rate"`
	AdditionalRemarks *string  `json:"additional_remarks"`
	TutorTypes        []string `json:"tutor_types"`
}

// parseRecord extracts the outermost {...} from content, repairs trailing
// commas, and decodes it into an Assignment. Any deviation is classified
// into the llm_invalid_json/llm_bad_response taxonomy.
func parseRecord(content string) (model.Assignment, []byte, error) {
	body, err := extractOutermostObject(content)
	if err != nil {
		return model.Assignment{}, nil, pipeline.NewStageError(pipeline.CodeLLMInvalidJSON, err)
	}
	repaired := trailingCommaRE.ReplaceAll(body, []byte("$1"))

	var wire wireRecord
	if err := json.Unmarshal(repaired, &wire); err != nil {
		return model.Assignment{}, repaired, pipeline.NewStageError(pipeline.CodeLLMInvalidJSON, fmt.Errorf("decode record: %w", err))
	}

	a := model.Assignment{
		AcademicDisplayText: wire.AcademicDisplayText,
		Addresses:           wire.Addresses,
		PostalCodes:         wire.PostalCodes,
		NearestMRT:          wire.NearestMRT,
		LessonSchedule:      wire.LessonSchedule,
		TutorTypes:          wire.TutorTypes,
		Rate: model.Rate{
			Min: wire.Rate.Min,
			Max: wire.Rate.Max,
		},
	}
	if wire.AssignmentCode != nil {
		a.AssignmentCode = strings.TrimSpace(*wire.AssignmentCode)
	}
	if wire.AdditionalRemarks != nil {
		a.AdditionalRemarks = wire.AdditionalRemarks
	}
	if wire.Rate.RawText != nil {
		a.Rate.RawText = *wire.Rate.RawText
	}
	if wire.LearningMode != nil {
		if mode, ok := parseLearningMode(*wire.LearningMode); ok {
			a.LearningMode = mode
		}
	}
	if wire.StartDate != nil {
		if d, ok := parseStartDate(*wire.StartDate); ok {
			a.StartDate = &d
		}
	}

	return a, repaired, nil
}

// startDateLayouts are ISO dates plus a couple of common agency shorthand
// forms, tried in order; the system prompt does not pin a date format.
var startDateLayouts = []string{"2006-01-02", "2-Jan-2006", "2 Jan 2006", "Jan 2, 2006"}

func parseStartDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range startDateLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

func parseLearningMode(raw string) (model.LearningMode, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "online":
		return model.LearningModeOnline, true
	case "face-to-face", "face to face", "f2f":
		return model.LearningModeFaceToFace, true
	case "hybrid":
		return model.LearningModeHybrid, true
	default:
		return model.LearningModeNone, false
	}
}

// extractOutermostObject returns the substring spanning the first '{' to
// its matching closing '}', tolerating braces nested inside string
// literals (so a postal code or address string containing '{' can't
// desync the scan).
func extractOutermostObject(s string) ([]byte, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return []byte(s[start : i+1]), nil
			}
		}
	}
	return nil, fmt.Errorf("unterminated JSON object in response")
}
