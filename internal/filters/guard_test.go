package filters

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluate_DeletedTakesPriority(t *testing.T) {
	res := Evaluate(GuardInput{Text: "anything", DeletedAt: true}, nil)
	require.Equal(t, GuardCloseDeleted, res.Action)
}

func TestEvaluate_EmptyText(t *testing.T) {
	res := Evaluate(GuardInput{Text: ""}, nil)
	require.Equal(t, GuardSkipEmpty, res.Action)
}

func TestEvaluate_ForwardWithCode(t *testing.T) {
	res := Evaluate(GuardInput{Text: "Reposting A123 assignment", IsForward: true}, nil)
	require.Equal(t, GuardBumpByCode, res.Action)
	require.Equal(t, "A123", res.AssignmentCode)
}

func TestEvaluate_ForwardWithoutCode(t *testing.T) {
	res := Evaluate(GuardInput{Text: "Reposting without identifiers", IsForward: true}, nil)
	require.Equal(t, GuardSkipForwardNoCode, res.Action)
}

func TestEvaluate_Reply(t *testing.T) {
	res := Evaluate(GuardInput{Text: "same assignment", IsReply: true, ReplyToMsgID: "42"}, nil)
	require.Equal(t, GuardBumpByReply, res.Action)
}

func TestEvaluate_StandardMessageProceeds(t *testing.T) {
	res := Evaluate(GuardInput{Text: "a regular assignment post"}, nil)
	require.Equal(t, GuardProceed, res.Action)
}
