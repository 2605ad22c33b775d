package enrich

import (
	"regexp"
	"strings"
)

var wsRE = regexp.MustCompile(`\s+`)

var remarksMarkerRE = regexp.MustCompile(`(?im)^\s*(remarks|remark|notes|note|additional\s+requirement|additional\s+requirements|comment|comments)\s*:`)

// normalizeWSForMatch collapses whitespace runs and lowercases, the
// substring-matching normalization support_checks.py uses throughout.
func normalizeWSForMatch(s string) string {
	return strings.ToLower(strings.TrimSpace(wsRE.ReplaceAllString(s, " ")))
}

// hasRemarksMarker reports whether rawText contains a line-leading
// remarks/notes/comment label.
func hasRemarksMarker(rawText string) bool {
	return remarksMarkerRE.MatchString(rawText)
}

// substringSupported reports whether value, whitespace-folded, is a
// substring of rawText, whitespace-folded. An empty value is trivially
// supported.
func substringSupported(rawText, value string) bool {
	needle := normalizeWSForMatch(value)
	if needle == "" {
		return true
	}
	return strings.Contains(normalizeWSForMatch(rawText), needle)
}

var quoteStrongMarkers = []string{
	"tutor to quote", "please quote", "pls quote", "market rate", "mkt rate", "quote", "tbc",
}

// rateIsQuoteLike reports whether rateRawText reads as a request for a
// quote rather than a stated figure.
func rateIsQuoteLike(rateRawText string) bool {
	s := normalizeWSForMatch(rateRawText)
	if s == "" {
		return false
	}
	for _, m := range quoteStrongMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	if strings.Contains(s, "negotiable") &&
		(strings.Contains(s, "rate") || strings.Contains(s, "$") || strings.Contains(s, "per hour") || strings.Contains(s, "/hr") || strings.Contains(s, "p/h")) {
		return true
	}
	return false
}
