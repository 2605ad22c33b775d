// Package filters implements the pre-LLM classification gates: the
// non-assignment detector, the compilation detector, and the
// forward/reply/deleted/empty guard (spec §4.5). All three are pure
// functions operating on normalized text, conservative by design: when in
// doubt, let the message through to the LLM rather than drop it.
package filters

import (
	"regexp"
	"strings"
)

// MessageType classifies a detected non-assignment message.
type MessageType string

const (
	MessageStatusOnly     MessageType = "status_only"
	MessageRedirect       MessageType = "redirect"
	MessageAdministrative MessageType = "administrative"
)

// NonAssignmentResult is the outcome of IsNonAssignment.
type NonAssignmentResult struct {
	IsNonAssignment bool
	MessageType     MessageType
	Details         string
}

var statusPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*assignment\s+(closed|taken|filled|expired)\s*$`),
	regexp.MustCompile(`(?i)^\s*(closed|taken|filled|expired)\s*$`),
	regexp.MustCompile(`(?i)^\s*status\s*:\s*(closed|taken|filled|expired)\s*$`),
}

var redirectPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)has\s+been\s+reposted\s+(below|above)`),
	regexp.MustCompile(`(?i)reposted\s+(below|above)`),
	regexp.MustCompile(`(?i)see\s+(above|below|message\s+above|message\s+below)`),
	regexp.MustCompile(`(?i)refer\s+to\s+(above|below|previous|next)\s+(message|post)`),
	regexp.MustCompile(`(?i)assignment\s+\d+\s+has\s+been\s+reposted`),
}

var adminPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)calling\s+all\s+tutors`),
	regexp.MustCompile(`(?i)new\s+job\s+opportunities`),
	regexp.MustCompile(`(?i)many\s+(tuition\s+)?job\s+opportunities`),
	regexp.MustCompile(`(?i)important\s+announcement`),
	regexp.MustCompile(`(?i)agency\s+(will\s+be\s+)?(closed|opening)`),
}

// assignmentMarkers are substrings that suggest this is a real assignment,
// not an administrative/status message.
var assignmentMarkers = []string{
	"job id:",
	"job code:",
	"assignment code:",
	"hourly rate:",
	"lesson per week:",
	"student's gender:",
	"time:",
	"location/area:",
	"level and subject",
}

func countAssignmentMarkers(textLower string) int {
	count := 0
	for _, m := range assignmentMarkers {
		if strings.Contains(textLower, m) {
			count++
		}
	}
	return count
}

// isVeryShort mirrors the Python heuristic: fewer than 3 non-empty lines,
// or fewer than 50 characters.
func isVeryShort(text string) bool {
	lines := 0
	for _, ln := range strings.Split(text, "\n") {
		if strings.TrimSpace(ln) != "" {
			lines++
		}
	}
	return lines < 3 || len(strings.TrimSpace(text)) < 50
}

func detectStatusOnly(text string) (bool, string) {
	trimmed := strings.TrimSpace(text)
	if !isVeryShort(trimmed) {
		return false, ""
	}
	if countAssignmentMarkers(strings.ToLower(trimmed)) >= 2 {
		return false, ""
	}
	for _, p := range statusPatterns {
		if p.MatchString(trimmed) {
			return true, "status-only message detected: " + p.String()
		}
	}
	return false, ""
}

func detectRedirect(text string) (bool, string) {
	trimmed := strings.TrimSpace(text)
	if !isVeryShort(trimmed) {
		return false, ""
	}
	if countAssignmentMarkers(strings.ToLower(trimmed)) >= 3 {
		return false, ""
	}
	for _, p := range redirectPatterns {
		if p.MatchString(trimmed) {
			return true, "redirect message detected: " + p.String()
		}
	}
	return false, ""
}

func detectAdministrative(text string) (bool, string) {
	lower := strings.ToLower(text)
	for _, p := range adminPatterns {
		if !p.MatchString(text) {
			continue
		}
		applyCount := strings.Count(lower, "apply now")
		bulletCount := strings.Count(lower, "✅") + strings.Count(lower, "•")
		if (applyCount >= 3 || bulletCount >= 5) && countAssignmentMarkers(lower) < 3 {
			return true, "promotional list message: " + p.String()
		}
		if countAssignmentMarkers(lower) < 3 {
			return true, "administrative message: " + p.String()
		}
	}
	return false, ""
}

// IsNonAssignment detects status-only, redirect, and administrative
// messages that should be filtered before LLM extraction. Messages with 3+
// assignment markers are never classified as non-assignment.
func IsNonAssignment(text string) NonAssignmentResult {
	normalized := strings.TrimSpace(text)
	if normalized == "" {
		return NonAssignmentResult{}
	}
	if ok, details := detectStatusOnly(normalized); ok {
		return NonAssignmentResult{IsNonAssignment: true, MessageType: MessageStatusOnly, Details: details}
	}
	if ok, details := detectRedirect(normalized); ok {
		return NonAssignmentResult{IsNonAssignment: true, MessageType: MessageRedirect, Details: details}
	}
	if ok, details := detectAdministrative(normalized); ok {
		return NonAssignmentResult{IsNonAssignment: true, MessageType: MessageAdministrative, Details: details}
	}
	return NonAssignmentResult{}
}
