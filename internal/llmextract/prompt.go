package llmextract

import "fmt"

// systemPrompt pins the extractor's output schema to the Assignment fields
// enumerated in the data model. channelHint, when non-empty, gives the
// model the channel's display title as weak disambiguating context (e.g. a
// "Primary Tutors SG" channel biases toward primary-level subjects).
func systemPrompt(channelHint string) string {
	base := `You extract structured tuition assignment data from a single raw message.
Respond with exactly one JSON object and nothing else: no markdown fences, no commentary.

Schema (all keys required; use null or empty list/string when a field is absent):
{
  "assignment_code": string|null,
  "academic_display_text": string,
  "learning_mode": "Online"|"Face-to-Face"|"Hybrid"|null,
  "addresses": [string],
  "postal_codes": [string],
  "nearest_mrt": [string],
  "lesson_schedule": [string],
  "start_date": string|null,
  "rate": {"min": number|null, "max": number|null, "raw_text": string|null},
  "additional_remarks": string|null,
  "tutor_types": [string]
}

Rules:
- additional_remarks must be a verbatim substring of the raw message, and only populated when the
  message contains an explicit remarks/notes/comments marker.
- rate.raw_text must quote the exact rate phrase from the message; if the phrasing is a request for
  a quote ("tutor to quote", "market rate", "tbc", "negotiable") leave min and max null.
- postal_codes are 6-digit Singapore postal codes found in the message text.
- Do not invent values that are not supported by the message text.`
	if channelHint != "" {
		return base + fmt.Sprintf("\n\nChannel context (weak hint only, do not override message content): %s", channelHint)
	}
	return base
}
