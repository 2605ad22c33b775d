package enrich

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tutordex/core/internal/model"
	"github.com/tutordex/core/internal/taxonomy"
)

// Signals is the deterministic matching metadata computed from academic
// display/normalized/raw text, stored alongside the canonical record for
// debugging and downstream search.
type Signals struct {
	Source     string // which text field was used: academic_display_text|normalized_text|raw_text
	TextChars  int
	Subjects   []string
	Levels     []string
	TutorTypes []model.RateBreakdown // canonical + confidence, min/max/currency/unit when a rate was nearby
}

var rateTokenRE = regexp.MustCompile(`(?i)(\$?)\s*(\d+(?:[.,]\d+)?)\s*(?:[-–—]\s*(\d+(?:[.,]\d+)?))?\s*(/h|/hr|hr|per hour|p/h|p\.h)?`)

var tutorTypeTokenRE = regexp.MustCompile(`[A-Za-z0-9\-/]+`)

var subjectKeywords = []string{
	"math", "mathematics", "e.math", "a.math", "english", "chinese", "mother tongue", "higher chinese",
	"malay", "tamil", "science", "physics", "chemistry", "biology", "combined science", "geography",
	"history", "social studies", "literature", "economics", "accounting", "computing",
}

var levelKeywords = []string{
	"pri 1", "pri 2", "pri 3", "pri 4", "pri 5", "pri 6",
	"primary 1", "primary 2", "primary 3", "primary 4", "primary 5", "primary 6",
	"sec 1", "sec 2", "sec 3", "sec 4", "sec 5",
	"secondary 1", "secondary 2", "secondary 3", "secondary 4", "secondary 5",
	"jc1", "jc2", "j1", "j2", "poly", "university", "pre-school", "k1", "k2",
}

// BuildSignals parses subjects/levels/tutor-types/rate-breakdown from the
// best-available text: academic display text preferentially, then
// normalized text, then raw text.
func BuildSignals(academicDisplayText, normalizedText, rawText string) Signals {
	source := "raw_text"
	text := rawText
	switch {
	case strings.TrimSpace(academicDisplayText) != "":
		source = "academic_display_text"
		text = academicDisplayText
	case strings.TrimSpace(normalizedText) != "":
		source = "normalized_text"
		text = normalizedText
	}

	sig := Signals{Source: source, TextChars: len([]rune(text))}
	lower := strings.ToLower(text)

	for _, kw := range subjectKeywords {
		if strings.Contains(lower, kw) {
			sig.Subjects = appendUnique(sig.Subjects, kw)
		}
	}
	for _, kw := range levelKeywords {
		if strings.Contains(lower, kw) {
			sig.Levels = appendUnique(sig.Levels, kw)
		}
	}

	sig.TutorTypes = extractTutorTypeRates(text)
	return sig
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// extractTutorTypeRates finds rate-like spans and associates each with a
// tutor-type alias in the 40 characters on either side of it: the first
// phrase, scanning that window from its start, that matches an alias exactly
// or by token (fuzzy and substring matches are ignored). That phrase is not
// necessarily the one closest to the rate. It then separately records
// free-standing tutor-type mentions, matched the same way, that had no
// nearby rate.
func extractTutorTypeRates(s string) []model.RateBreakdown {
	seen := map[string]*model.RateBreakdown{}
	var order []string

	for _, loc := range rateTokenRE.FindAllStringSubmatchIndex(s, -1) {
		prefix := groupOrEmpty(s, loc, 1)
		minStr := groupOrEmpty(s, loc, 2)
		maxStr := groupOrEmpty(s, loc, 3)
		unit := groupOrEmpty(s, loc, 4)
		if prefix == "" && unit == "" && maxStr == "" {
			continue
		}
		minN, okMin := parseNumber(minStr)
		maxN, okMax := parseNumber(maxStr)
		if !okMin && !okMax {
			continue
		}
		if okMin && !okMax {
			maxN = minN
			okMax = true
		}

		wStart, wEnd := loc[0]-40, loc[1]+40
		if wStart < 0 {
			wStart = 0
		}
		if wEnd > len(s) {
			wEnd = len(s)
		}
		window := s[wStart:wEnd]

		canon := findNearbyTutorType(window)
		if canon == "" || canon == "unknown" {
			continue
		}

		currency := ""
		if prefix == "$" {
			currency = "$"
		}
		unitLabel := ""
		if unit != "" {
			unitLabel = "hour"
		}
		entry := &model.RateBreakdown{
			TutorType:  canon,
			Currency:   currency,
			Unit:       unitLabel,
			Confidence: 0.9,
		}
		if okMin {
			v := minN
			entry.Min = &v
		}
		if okMax {
			v := maxN
			entry.Max = &v
		}
		if _, ok := seen[canon]; !ok {
			order = append(order, canon)
		}
		seen[canon] = entry
	}

	// Free-standing tutor-type mentions without a nearby rate.
	words := tutorTypeTokenRE.FindAllString(s, -1)
	for i := range words {
		end := i + 4
		if end > len(words) {
			end = len(words)
		}
		for j := i; j < end; j++ {
			phrase := strings.Join(words[i:j+1], " ")
			canon, _, conf := taxonomy.NormalizeLabel(phrase)
			if canon != "" && canon != "unknown" && conf >= 0.9 {
				if _, ok := seen[canon]; !ok {
					seen[canon] = &model.RateBreakdown{TutorType: canon, Confidence: 0.6}
					order = append(order, canon)
				}
				break
			}
		}
	}

	out := make([]model.RateBreakdown, 0, len(order))
	for _, canon := range order {
		out = append(out, *seen[canon])
	}
	return out
}

func findNearbyTutorType(window string) string {
	words := tutorTypeTokenRE.FindAllString(window, -1)
	for i := range words {
		end := i + 3
		if end > len(words) {
			end = len(words)
		}
		for j := i; j < end; j++ {
			phrase := strings.Join(words[i:j+1], " ")
			canon, _, conf := taxonomy.NormalizeLabel(phrase)
			if canon != "" && canon != "unknown" && conf >= 0.9 {
				return canon
			}
		}
	}
	return ""
}

func groupOrEmpty(s string, loc []int, groupIdx int) string {
	if 2*groupIdx+1 >= len(loc) || loc[2*groupIdx] < 0 {
		return ""
	}
	return s[loc[2*groupIdx]:loc[2*groupIdx+1]]
}

func parseNumber(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
