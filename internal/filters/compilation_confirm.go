package filters

import (
	"regexp"
	"sort"
	"strings"
)

// IdentifierExtractor asks an LLM (or any other source) to enumerate
// candidate identifiers for a compilation-flagged message. The Worker
// supplies the concrete implementation (internal/llmextract); filters stays
// free of any LLM dependency.
type IdentifierExtractor func(text string) ([]string, error)

// ConfirmCompilation verifies each LLM-proposed identifier is actually a
// substring of the raw text (and matches the configured identifier
// grammar), discarding hallucinated candidates. A message with zero
// verified identifiers is downgraded to non-compilation.
func ConfirmCompilation(text string, candidates []string, identifierPattern *regexp.Regexp) (verified []string, ok bool) {
	seen := map[string]bool{}
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		if !strings.Contains(text, c) {
			continue
		}
		if identifierPattern != nil && !identifierPattern.MatchString(c) {
			continue
		}
		seen[c] = true
		verified = append(verified, c)
	}
	return verified, len(verified) > 0
}

// OrderVerifiedIdentifiers sorts verified identifiers by the position of
// their first occurrence in the raw text, so segments come out in reading
// order regardless of the order the LLM returned them.
func OrderVerifiedIdentifiers(text string, verified []string) []string {
	type posID struct {
		id  string
		pos int
	}
	ordered := make([]posID, 0, len(verified))
	for _, id := range verified {
		ordered = append(ordered, posID{id: id, pos: strings.Index(text, id)})
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].pos < ordered[j].pos })
	out := make([]string, len(ordered))
	for i, p := range ordered {
		out[i] = p.id
	}
	return out
}

// Segment is one (identifier, text) slice of a compilation message.
type Segment struct {
	Identifier string
	Text       string
}

// SplitCompilationMessage cuts raw text into one segment per ordered
// identifier: each segment runs from its identifier's position to the next
// identifier's position (or end of text).
func SplitCompilationMessage(text string, orderedIdentifiers []string) []Segment {
	if len(orderedIdentifiers) == 0 {
		return nil
	}
	positions := make([]int, len(orderedIdentifiers))
	for i, id := range orderedIdentifiers {
		positions[i] = strings.Index(text, id)
	}
	segments := make([]Segment, 0, len(orderedIdentifiers))
	for i, id := range orderedIdentifiers {
		start := positions[i]
		end := len(text)
		if i+1 < len(positions) {
			end = positions[i+1]
		}
		if start < 0 || start >= end {
			continue
		}
		segments = append(segments, Segment{Identifier: id, Text: strings.TrimSpace(text[start:end])})
	}
	return segments
}
