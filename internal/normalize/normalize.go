// Package normalize implements the pure raw-to-canonical text transform
// applied before filtering and extraction (spec §4.4). It is deliberately
// conservative: mechanical substitutions only, no paraphrasing or
// inference, and idempotent (normalizing twice equals normalizing once).
package normalize

import (
	"regexp"
	"strings"
)

var dashReplacer = strings.NewReplacer(
	"–", "-", // en dash
	"—", "-", // em dash
	"−", "-", // minus sign
	"‒", "-", // figure dash
)

var (
	spaceRE          = regexp.MustCompile(`[ \t]+`)
	blankLinesRE     = regexp.MustCompile(`\n{3,}`)
	tokenSplitRE     = regexp.MustCompile(`(?i)\b(sec|s|jc|j|p|k|year)(\d{1,2})\b`)
	timeDotAmPmRE    = regexp.MustCompile(`(?i)\b(\d{1,2})\.(\d{2})\s*([ap]m)\b`)
	timeRangeLeftRE  = regexp.MustCompile(`(?i)\b(\d{1,2})\.(\d{2})(\s*-\s*\d{1,2}\.\d{2}\s*[ap]m\b)`)
)

// Text deterministically normalizes raw assignment text: CRLF folding,
// unicode dash folding to ASCII "-", "7.30pm" -> "7:30pm", "2.30-5.30pm" ->
// "2:30-5:30pm", academic-token splitting ("sec3" -> "sec 3" for
// {sec,s,jc,j,p,k,year} followed by 1-2 digits), intra-line whitespace
// collapse, and blank-line-run collapse (3+ newlines -> 2).
func Text(raw string) string {
	s := raw
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = dashReplacer.Replace(s)

	// Time punctuation before token splitting, so dash normalization is
	// already stable for the range pattern's lookahead-equivalent.
	s = timeRangeLeftRE.ReplaceAllString(s, "$1:$2$3")
	s = timeDotAmPmRE.ReplaceAllString(s, "$1:$2$3")

	s = tokenSplitRE.ReplaceAllString(s, "$1 $2")

	s = strings.ReplaceAll(s, "\t", " ")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRE.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = blankLinesRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
