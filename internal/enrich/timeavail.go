package enrich

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tutordex/core/internal/model"
)

// weekOrder lists weekdays Monday-first, matching how tuition posts are
// normally phrased ("Mon-Fri", "weekdays"), independent of time.Weekday's
// Sunday-first zero value.
var weekOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

var dayIndex = func() map[time.Weekday]int {
	m := make(map[time.Weekday]int, 7)
	for i, d := range weekOrder {
		m[d] = i
	}
	return m
}()

var dayTokenRE = regexp.MustCompile(`(?i)\b(mon(?:day)?s?|tue(?:s|sday)?s?|wed(?:s|nesday)?s?|thu(?:rs|rsday)?s?|fri(?:day)?s?|sat(?:urday)?s?|sun(?:day)?s?)\b`)
var dayRangeRE = regexp.MustCompile(`(?i)\b(mon(?:day)?s?|tue(?:s|sday)?s?|wed(?:s|nesday)?s?|thu(?:rs|rsday)?s?|fri(?:day)?s?|sat(?:urday)?s?|sun(?:day)?s?)\s*(?:-|to)\s*(mon(?:day)?s?|tue(?:s|sday)?s?|wed(?:s|nesday)?s?|thu(?:rs|rsday)?s?|fri(?:day)?s?|sat(?:urday)?s?|sun(?:day)?s?)\b`)

var weekdaysRE = regexp.MustCompile(`(?i)\bweekdays?\b`)
var weekendsRE = regexp.MustCompile(`(?i)\bweekends?\b`)
var allDaysRE = regexp.MustCompile(`(?i)\b(daily|every\s*day|everyday|all\s+days)\b`)

var timeRangeAmpmAmpmRE = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*([ap]m)\s*(?:-|to)\s*(\d{1,2})(?::(\d{2}))?\s*([ap]m)\b`)
var timeRangeAmpmRE = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*([ap]m)\s*(?:-|to)\s*(\d{1,2})(?::(\d{2}))?\b`)
var timeRange24hRE = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\s*(?:-|to)\s*(\d{1,2}):(\d{2})\b`)
var timeRangeCompactAmpmRE = regexp.MustCompile(`(?i)\b(\d{3,4})\s*([ap]m)\s*(?:-|to)\s*(\d{3,4})\s*([ap]m)\b`)
var timeRangeCompactRE = regexp.MustCompile(`\b(\d{3,4})\s*(?:-|to)\s*(\d{3,4})\b`)

var relativeRE = regexp.MustCompile(`(?i)\b(after|from|before)\s+(\d{1,2}(?::\d{2})?\s*[ap]m|\d{3,4}\s*[ap]m|\d{1,2}:\d{2}|\d{3,4})\b`)
var fuzzyRE = regexp.MustCompile(`(?i)\b(morning|afternoon|evening|night)\b`)
var noteHintRE = regexp.MustCompile(`(?i)\b(tbc|to be confirmed|flexible|tutor to propose|to be discussed)\b`)
var negationNearTimeRE = regexp.MustCompile(`(?i)\b(no|not|exclude|except)\b`)
var timingHeaderRE = regexp.MustCompile(`(?i)\b(timing|available|availability|avail|preferably|preferred)\b`)
var singleTimeRE = regexp.MustCompile(`(?i)\b(\d{1,2}(?::\d{2})?\s*[ap]m|\d{3,4}\s*[ap]m|\d{1,2}:\d{2}|\d{3,4})\b`)
// clauseSplitRE finds a "/" or "|" clause separator flanked by whitespace.
// The Python original used lookaround to match the separator alone
// ((?<=\s)/(?=\s)), which RE2 can't express, so here the flanking whitespace
// is captured instead of asserted: splitClauses uses the group 2 submatch
// (the separator itself) as the split point, the same capture-and-reemit
// trick timeRangeLeftRE uses in internal/normalize, so the whitespace on
// either side stays attached to its clause exactly as it would with a real
// lookaround.
var clauseSplitRE = regexp.MustCompile(`(\s)(/|\|)(\s)`)

var fixedFuzzyWindows = map[string]string{
	"morning":   "08:00-12:00",
	"afternoon": "12:00-17:00",
	"evening":   "16:00-21:00",
	"night":     "19:00-23:00",
}

// MatchedSpan is one evidence record for the time parser's debugging meta.
type MatchedSpan struct {
	Type      string
	Days      []time.Weekday
	Substring string
	StartIdx  int
	EndIdx    int
	Window    string
}

// TimeAvailabilityMeta carries evidence spans and fired/warned rule names,
// mirroring the Python extractor's debugging payload.
type TimeAvailabilityMeta struct {
	MatchedSpans  []MatchedSpan
	RulesFired    []string
	ParseWarnings []string
}

func canonDay(tok string) (time.Weekday, bool) {
	t := strings.ToLower(strings.TrimSpace(tok))
	t = strings.TrimSuffix(t, "s")
	switch {
	case strings.HasPrefix(t, "mon"):
		return time.Monday, true
	case strings.HasPrefix(t, "tue"):
		return time.Tuesday, true
	case strings.HasPrefix(t, "wed"):
		return time.Wednesday, true
	case strings.HasPrefix(t, "thu"):
		return time.Thursday, true
	case strings.HasPrefix(t, "fri"):
		return time.Friday, true
	case strings.HasPrefix(t, "sat"):
		return time.Saturday, true
	case strings.HasPrefix(t, "sun"):
		return time.Sunday, true
	default:
		return 0, false
	}
}

func expandRange(a, b string) []time.Weekday {
	da, ok1 := canonDay(a)
	db, ok2 := canonDay(b)
	if !ok1 || !ok2 {
		return nil
	}
	ia, ib := dayIndex[da], dayIndex[db]
	if ia > ib {
		return nil // wrap-around ranges are ambiguous; refuse
	}
	return append([]time.Weekday(nil), weekOrder[ia:ib+1]...)
}

type dayInfo struct {
	days   []time.Weekday
	broad  bool
	ranged bool
}

func containsDay(days []time.Weekday, d time.Weekday) bool {
	for _, x := range days {
		if x == d {
			return true
		}
	}
	return false
}

func extractDays(line string) dayInfo {
	var days []time.Weekday
	broad := false
	ranged := false

	if allDaysRE.MatchString(line) {
		broad = true
		days = append(days, weekOrder...)
	}
	if weekdaysRE.MatchString(line) {
		broad = true
		for _, d := range weekOrder[:5] {
			if !containsDay(days, d) {
				days = append(days, d)
			}
		}
	}
	if weekendsRE.MatchString(line) {
		broad = true
		for _, d := range weekOrder[5:] {
			if !containsDay(days, d) {
				days = append(days, d)
			}
		}
	}

	for _, m := range dayRangeRE.FindAllStringSubmatch(line, -1) {
		expanded := expandRange(m[1], m[2])
		if expanded != nil {
			ranged = true
			for _, d := range expanded {
				if !containsDay(days, d) {
					days = append(days, d)
				}
			}
		}
	}

	for _, m := range dayTokenRE.FindAllStringSubmatch(line, -1) {
		if d, ok := canonDay(m[1]); ok && !containsDay(days, d) {
			days = append(days, d)
		}
	}

	sort.Slice(days, func(i, j int) bool { return dayIndex[days[i]] < dayIndex[days[j]] })
	return dayInfo{days: days, broad: broad, ranged: ranged}
}

// parseClockTime parses a single time token: "7pm", "7:30pm", "19:30",
// "730pm", "1930".
func parseClockTime(token string) (hh, mm int, ok bool) {
	s := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(token), " ", ""))
	if s == "" {
		return 0, 0, false
	}

	if m := regexp.MustCompile(`^(\d{1,2}):(\d{2})$`).FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		mi, _ := strconv.Atoi(m[2])
		if h <= 23 && mi <= 59 {
			return h, mi, true
		}
		return 0, 0, false
	}

	if m := regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?([ap]m)$`).FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		mi := 0
		if m[2] != "" {
			mi, _ = strconv.Atoi(m[2])
		}
		if h < 1 || h > 12 || mi > 59 {
			return 0, 0, false
		}
		return to24h(h, mi, m[3]), mi, true
	}

	if m := regexp.MustCompile(`^(\d{3,4})([ap]m)?$`).FindStringSubmatch(s); m != nil {
		digits, ap := m[1], m[2]
		var h, mi int
		if len(digits) == 3 {
			h, _ = strconv.Atoi(digits[:1])
			mi, _ = strconv.Atoi(digits[1:])
		} else {
			h, _ = strconv.Atoi(digits[:2])
			mi, _ = strconv.Atoi(digits[2:])
		}
		if h > 23 || mi > 59 {
			return 0, 0, false
		}
		if ap == "" {
			return h, mi, true
		}
		if h < 1 || h > 12 {
			return 0, 0, false
		}
		return to24h(h, mi, ap), mi, true
	}

	return 0, 0, false
}

func to24h(h, mi int, ap string) int {
	if ap == "am" {
		if h == 12 {
			return 0
		}
		return h
	}
	if h == 12 {
		return 12
	}
	return h + 12
}

func hhmm(h, m int) string { return fmt.Sprintf("%02d:%02d", h, m) }

func toWindow(sh, sm, eh, em int) string { return hhmm(sh, sm) + "-" + hhmm(eh, em) }

type timeEvent struct {
	kind     string // explicit_range|explicit_single|relative_after|relative_before|fuzzy|note
	window   string
	start    int
	end      int
	evidence string
}

func spanOverlaps(covered [][2]int, s, e int) bool {
	for _, c := range covered {
		if !(e <= c[0] || s >= c[1]) {
			return true
		}
	}
	return false
}

func eventsInLine(s string) []timeEvent {
	var out []timeEvent
	var covered [][2]int
	mark := func(a, b int) { covered = append(covered, [2]int{a, b}) }

	type rangeRule struct {
		re   *regexp.Regexp
		kind string
	}
	for _, rr := range []rangeRule{
		{timeRangeAmpmAmpmRE, "ampm_ampm"},
		{timeRangeCompactAmpmRE, "compact_ampm"},
		{timeRange24hRE, "24h"},
		{timeRangeAmpmRE, "ampm_tail"},
		{timeRangeCompactRE, "compact"},
	} {
		for _, loc := range rr.re.FindAllStringSubmatchIndex(s, -1) {
			start, end := loc[0], loc[1]
			if spanOverlaps(covered, start, end) {
				continue
			}
			groups := make([]string, len(loc)/2)
			for i := range groups {
				if loc[2*i] < 0 {
					groups[i] = ""
					continue
				}
				groups[i] = s[loc[2*i]:loc[2*i+1]]
			}
			window, ok := rangeWindow(rr.kind, groups)
			if !ok {
				continue
			}
			out = append(out, timeEvent{kind: "explicit_range", window: window, start: start, end: end, evidence: s[start:end]})
			mark(start, end)
		}
	}

	for _, loc := range relativeRE.FindAllStringSubmatchIndex(s, -1) {
		start, end := loc[0], loc[1]
		if spanOverlaps(covered, start, end) {
			continue
		}
		kw := strings.ToLower(s[loc[2]:loc[3]])
		tokStr := s[loc[4]:loc[5]]
		h, m, ok := parseClockTime(tokStr)
		if !ok {
			continue
		}
		var window string
		var kind string
		switch kw {
		case "after", "from":
			window = toWindow(h, m, 23, 0)
			kind = "relative_after"
		case "before":
			window = toWindow(8, 0, h, m)
			kind = "relative_before"
		default:
			continue
		}
		out = append(out, timeEvent{kind: kind, window: window, start: start, end: end, evidence: s[start:end]})
		mark(start, end)
	}

	for _, loc := range fuzzyRE.FindAllStringSubmatchIndex(s, -1) {
		start, end := loc[0], loc[1]
		if spanOverlaps(covered, start, end) {
			continue
		}
		word := strings.ToLower(s[loc[2]:loc[3]])
		window, ok := fixedFuzzyWindows[word]
		if !ok {
			continue
		}
		out = append(out, timeEvent{kind: "fuzzy", window: window, start: start, end: end, evidence: s[start:end]})
		mark(start, end)
	}

	for _, loc := range noteHintRE.FindAllStringIndex(s, -1) {
		start, end := loc[0], loc[1]
		if spanOverlaps(covered, start, end) {
			continue
		}
		out = append(out, timeEvent{kind: "note", start: start, end: end, evidence: s[start:end]})
		mark(start, end)
	}

	for _, loc := range singleTimeRE.FindAllStringIndex(s, -1) {
		start, end := loc[0], loc[1]
		if spanOverlaps(covered, start, end) {
			continue
		}
		h, m, ok := parseClockTime(s[start:end])
		if !ok {
			continue
		}
		out = append(out, timeEvent{kind: "explicit_single", window: toWindow(h, m, h, m), start: start, end: end, evidence: s[start:end]})
		mark(start, end)
	}

	return out
}

func rangeWindow(kind string, g []string) (string, bool) {
	switch kind {
	case "ampm_ampm":
		sh, sm, ok1 := parseClockTime(g[1] + ":" + orZero(g[2]) + g[3])
		eh, em, ok2 := parseClockTime(g[4] + ":" + orZero(g[5]) + g[6])
		if !ok1 || !ok2 {
			return "", false
		}
		return toWindow(sh, sm, eh, em), true
	case "ampm_tail":
		sh, sm, ok1 := parseClockTime(g[1] + ":" + orZero(g[2]) + g[3])
		eh, em, ok2 := parseClockTime(g[4] + ":" + orZero(g[5]) + g[3])
		if !ok1 || !ok2 {
			return "", false
		}
		return toWindow(sh, sm, eh, em), true
	case "24h":
		sh, sm, ok1 := parseClockTime(g[1] + ":" + g[2])
		eh, em, ok2 := parseClockTime(g[3] + ":" + g[4])
		if !ok1 || !ok2 {
			return "", false
		}
		return toWindow(sh, sm, eh, em), true
	case "compact_ampm":
		sh, sm, ok1 := parseClockTime(g[1] + g[2])
		eh, em, ok2 := parseClockTime(g[3] + g[4])
		if !ok1 || !ok2 {
			return "", false
		}
		return toWindow(sh, sm, eh, em), true
	case "compact":
		sh, sm, ok1 := parseClockTime(g[1])
		eh, em, ok2 := parseClockTime(g[2])
		if !ok1 || !ok2 {
			return "", false
		}
		return toWindow(sh, sm, eh, em), true
	}
	return "", false
}

func orZero(s string) string {
	if s == "" {
		return "00"
	}
	return s
}

func dedupeAppend(target []string, value string) []string {
	v := strings.TrimSpace(value)
	if v == "" {
		return target
	}
	for _, x := range target {
		if x == v {
			return target
		}
	}
	return append(target, v)
}

func splitClauses(line string) [][2]int {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	var out [][2]int
	last := 0
	for _, loc := range clauseSplitRE.FindAllStringSubmatchIndex(line, -1) {
		sepStart, sepEnd := loc[4], loc[5]
		if strings.TrimSpace(line[last:sepStart]) != "" {
			out = append(out, [2]int{last, sepStart})
		}
		last = sepEnd
	}
	if strings.TrimSpace(line[last:]) != "" {
		out = append(out, [2]int{last, len(line)})
	}
	if out == nil {
		out = [][2]int{{0, len(line)}}
	}
	return out
}

// ExtractTimeAvailability deterministically parses weekly time availability
// from normalized_text, overwriting whatever the LLM produced when enabled.
func ExtractTimeAvailability(rawText, normalizedText string) (model.TimeAvailability, TimeAvailabilityMeta) {
	out := model.NewTimeAvailability()
	meta := TimeAvailabilityMeta{}

	if strings.TrimSpace(normalizedText) == "" {
		return out, meta
	}

	rulesFired := map[string]bool{}
	parseWarnings := map[string]bool{}
	var noteCandidates [][2]int

	var pendingDays []time.Weekday
	pendingHint := false

	offset := 0
	lines := strings.Split(normalizedText, "\n")
	for _, line := range lines {
		lineStart := offset
		offset += len(line) + 1
		if strings.TrimSpace(line) == "" {
			continue
		}

		headerHint := timingHeaderRE.MatchString(line)
		lineDayInfo := extractDays(line)
		lineEvents := eventsInLine(line)
		var lineWindows []timeEvent
		for _, ev := range lineEvents {
			if ev.window != "" {
				lineWindows = append(lineWindows, ev)
			}
		}

		if len(pendingDays) > 0 && pendingHint && len(lineDayInfo.days) == 0 && len(lineWindows) > 0 {
			for _, ev := range lineWindows {
				estimatedKind := ev.kind == "relative_after" || ev.kind == "relative_before" || ev.kind == "fuzzy"
				typ := "explicit"
				if estimatedKind {
					typ = "estimated"
				}
				for _, d := range pendingDays {
					if estimatedKind {
						out.Estimated[d] = dedupeAppend(out.Estimated[d], ev.window)
					} else {
						out.Explicit[d] = dedupeAppend(out.Explicit[d], ev.window)
					}
				}
				s0, s1 := lineStart+ev.start, lineStart+ev.end
				meta.MatchedSpans = append(meta.MatchedSpans, MatchedSpan{Type: typ, Days: append([]time.Weekday(nil), pendingDays...), Substring: normalizedText[s0:s1], StartIdx: s0, EndIdx: s1, Window: ev.window})
			}
			rulesFired["carry_days_to_next_line"] = true
			pendingDays = nil
			pendingHint = false
		}

		for _, cl := range splitClauses(line) {
			clauseStart := lineStart + cl[0]
			clause := line[cl[0]:cl[1]]
			dInfo := extractDays(clause)
			events := eventsInLine(clause)
			var windowsInClause []timeEvent
			for _, ev := range events {
				if ev.window != "" {
					windowsInClause = append(windowsInClause, ev)
				}
			}

			for _, ev := range events {
				if ev.kind != "note" {
					continue
				}
				s0, s1 := clauseStart+ev.start, clauseStart+ev.end
				noteCandidates = append(noteCandidates, [2]int{s0, s1})
				meta.MatchedSpans = append(meta.MatchedSpans, MatchedSpan{Type: "note", Days: dInfo.days, Substring: normalizedText[s0:s1], StartIdx: s0, EndIdx: s1})
				rulesFired["note_hint"] = true
			}

			if len(dInfo.days) == 0 {
				continue
			}

			if negationNearTimeRE.MatchString(clause) {
				for _, ev := range events {
					if ev.window != "" {
						parseWarnings["negation_detected_near_time"] = true
						break
					}
				}
			}

			if dInfo.broad && len(windowsInClause) == 0 {
				full := "08:00-23:00"
				for _, d := range dInfo.days {
					out.Estimated[d] = dedupeAppend(out.Estimated[d], full)
				}
				kwLoc := weekdaysRE.FindStringIndex(clause)
				if kwLoc == nil {
					kwLoc = weekendsRE.FindStringIndex(clause)
				}
				if kwLoc != nil {
					s0, s1 := clauseStart+kwLoc[0], clauseStart+kwLoc[1]
					meta.MatchedSpans = append(meta.MatchedSpans, MatchedSpan{Type: "estimated", Days: dInfo.days, Substring: normalizedText[s0:s1], StartIdx: s0, EndIdx: s1, Window: full})
				}
				rulesFired["fixed_weekday_weekend_range"] = true
			}

			for _, ev := range events {
				if ev.window == "" {
					continue
				}
				estimatedKind := ev.kind == "relative_after" || ev.kind == "relative_before" || ev.kind == "fuzzy"
				if dInfo.broad || dInfo.ranged {
					estimatedKind = true
				}
				typ := "explicit"
				if estimatedKind {
					typ = "estimated"
				}

				switch ev.kind {
				case "explicit_range":
					rulesFired["explicit_range"] = true
				case "explicit_single":
					rulesFired["explicit_single_start_equals_end"] = true
				case "relative_after", "relative_before":
					rulesFired["relative_time_rule"] = true
				case "fuzzy":
					rulesFired["fixed_fuzzy_range"] = true
				}

				for _, d := range dInfo.days {
					if estimatedKind {
						out.Estimated[d] = dedupeAppend(out.Estimated[d], ev.window)
					} else {
						out.Explicit[d] = dedupeAppend(out.Explicit[d], ev.window)
					}
				}

				s0, s1 := clauseStart+ev.start, clauseStart+ev.end
				meta.MatchedSpans = append(meta.MatchedSpans, MatchedSpan{Type: typ, Days: dInfo.days, Substring: normalizedText[s0:s1], StartIdx: s0, EndIdx: s1, Window: ev.window})
			}
		}

		// A line with multiple days and exactly one window applies that
		// window to every day listed on the line (fixes clause-splitting
		// from attaching it to only the last day).
		if len(lineDayInfo.days) > 0 && len(lineWindows) == 1 {
			ev := lineWindows[0]
			estimatedKind := ev.kind == "relative_after" || ev.kind == "relative_before" || ev.kind == "fuzzy"
			if lineDayInfo.broad || lineDayInfo.ranged {
				estimatedKind = true
			}
			needs := false
			for _, d := range lineDayInfo.days {
				existing := out.Explicit[d]
				if estimatedKind {
					existing = out.Estimated[d]
				}
				found := false
				for _, w := range existing {
					if w == ev.window {
						found = true
						break
					}
				}
				if !found {
					needs = true
					break
				}
			}
			if needs {
				typ := "explicit"
				if estimatedKind {
					typ = "estimated"
				}
				for _, d := range lineDayInfo.days {
					if estimatedKind {
						out.Estimated[d] = dedupeAppend(out.Estimated[d], ev.window)
					} else {
						out.Explicit[d] = dedupeAppend(out.Explicit[d], ev.window)
					}
				}
				s0, s1 := lineStart+ev.start, lineStart+ev.end
				meta.MatchedSpans = append(meta.MatchedSpans, MatchedSpan{Type: typ, Days: append([]time.Weekday(nil), lineDayInfo.days...), Substring: normalizedText[s0:s1], StartIdx: s0, EndIdx: s1, Window: ev.window})
				rulesFired["single_time_applies_to_all_days_in_line"] = true
			}
		}

		switch {
		case len(lineDayInfo.days) > 0 && len(lineWindows) == 0:
			pendingDays = lineDayInfo.days
			pendingHint = pendingHint || headerHint
		case len(lineWindows) > 0:
			pendingDays = nil
			pendingHint = false
		case headerHint && len(lineDayInfo.days) == 0:
			pendingHint = true
		}
	}

	if weekdaysRE.MatchString(normalizedText) {
		rulesFired["weekdays_keyword_seen"] = true
	}
	if weekendsRE.MatchString(normalizedText) {
		rulesFired["weekends_keyword_seen"] = true
	}

	if len(noteCandidates) > 0 {
		sort.Slice(noteCandidates, func(i, j int) bool {
			if noteCandidates[i][0] != noteCandidates[j][0] {
				return noteCandidates[i][0] < noteCandidates[j][0]
			}
			return noteCandidates[i][1] < noteCandidates[j][1]
		})
		s0, s1 := noteCandidates[0][0], noteCandidates[0][1]
		note := strings.TrimSpace(normalizedText[s0:s1])
		if note != "" {
			out.Note = &note
		}
	}

	meta.RulesFired = sortedKeys(rulesFired)
	meta.ParseWarnings = sortedKeys(parseWarnings)

	return out, meta
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
