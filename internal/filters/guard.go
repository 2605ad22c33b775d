package filters

import "regexp"

// GuardAction tells the Worker which non-standard path a raw message takes
// before normalize/LLM/enrich ever runs.
type GuardAction int

const (
	// GuardProceed means the message is a standard candidate for the rest
	// of the pipeline.
	GuardProceed GuardAction = iota
	// GuardBumpByCode means a forward carrying an assignment code was
	// found; the Worker should bump the existing assignment and skip
	// extraction.
	GuardBumpByCode
	// GuardSkipForwardNoCode means a forward carried no recognizable code;
	// the message is skipped with reason forwarded_no_code.
	GuardSkipForwardNoCode
	// GuardBumpByReply means a reply should bump its parent assignment via
	// (channel_ref, reply_to_msg_id).
	GuardBumpByReply
	// GuardCloseDeleted means a deletion tombstone should transition the
	// target assignment to CLOSED.
	GuardCloseDeleted
	// GuardSkipEmpty means the text is empty and the job is skipped with
	// reason empty_text.
	GuardSkipEmpty
)

// GuardResult is the guard's decision plus any code it extracted.
type GuardResult struct {
	Action        GuardAction
	AssignmentCode string
}

// DefaultAssignmentCodePattern mirrors the default compilation identifier
// grammar (Open Question c): a short alpha prefix followed by 3-8 digits
// and an optional trailing letter, the shape agencies use for job codes.
var DefaultAssignmentCodePattern = regexp.MustCompile(`[A-Za-z]{1,4}\d{3,8}[A-Za-z]?`)

// GuardInput is the subset of a raw message the guard needs.
type GuardInput struct {
	Text         string
	IsForward    bool
	IsReply      bool
	ReplyToMsgID string
	DeletedAt    bool
}

// Evaluate runs the forward/reply/deleted/empty guard ahead of the
// non-assignment and compilation detectors. codePattern identifies an
// assignment code in forwarded text; pass nil to use
// DefaultAssignmentCodePattern.
func Evaluate(in GuardInput, codePattern *regexp.Regexp) GuardResult {
	if codePattern == nil {
		codePattern = DefaultAssignmentCodePattern
	}
	if in.DeletedAt {
		return GuardResult{Action: GuardCloseDeleted}
	}
	if in.Text == "" {
		return GuardResult{Action: GuardSkipEmpty}
	}
	if in.IsForward {
		if code := codePattern.FindString(in.Text); code != "" {
			return GuardResult{Action: GuardBumpByCode, AssignmentCode: code}
		}
		return GuardResult{Action: GuardSkipForwardNoCode}
	}
	if in.IsReply && in.ReplyToMsgID != "" {
		return GuardResult{Action: GuardBumpByReply}
	}
	return GuardResult{Action: GuardProceed}
}
