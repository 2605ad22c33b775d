// Package pipeline defines the error taxonomy shared by every ingestion
// stage, from the collector through the persister.
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Code identifies the kind of failure a stage produced. Values are the
// taxonomy names used in metrics and in error_json.
type Code string

const (
	CodeConfig             Code = "config"
	CodeSourceRateLimited  Code = "source_rate_limited"
	CodeSourceTransient    Code = "source_transient"
	CodeRawMissing         Code = "raw_missing"
	CodeEmptyText          Code = "empty_text"
	CodeForwarded          Code = "forwarded"
	CodeReply              Code = "reply"
	CodeDeleted            Code = "deleted"
	CodeCompilation        Code = "compilation"
	CodeNonAssignment      Code = "non_assignment"
	CodeLLMTimeout         Code = "llm_timeout"
	CodeLLMConnection      Code = "llm_connection"
	CodeLLMInvalidJSON     Code = "llm_invalid_json"
	CodeLLMBadResponse     Code = "llm_bad_response"
	CodeLLMCircuitOpen     Code = "llm_circuit_open"
	CodeLLMError           Code = "llm_error"
	CodeValidationFailed   Code = "validation_failed"
	CodePersistFailed      Code = "persist_failed"
	CodeUnhandledException Code = "unhandled_exception"
)

// retriable reports whether a fresh attempt at the same stage might succeed.
var retriable = map[Code]bool{
	CodeSourceRateLimited: true,
	CodeSourceTransient:   true,
	CodeLLMTimeout:        true,
	CodeLLMConnection:     true,
	CodePersistFailed:     true,
}

// StageError wraps an underlying error with a taxonomy code and carries
// enough detail to populate error_json and triage reports without losing
// the original cause.
type StageError struct {
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	Retriable bool   `json:"retriable"`
	// MaxAttempts is set when retries were exhausted; the original Code and
	// Message are preserved alongside it so the terminal cause is never lost.
	MaxAttempts bool  `json:"max_attempts,omitempty"`
	cause       error `json:"-"`
}

// NewStageError builds a StageError for code, wrapping cause (cause may be
// nil for pure classification outcomes like skips).
func NewStageError(code Code, cause error) *StageError {
	se := &StageError{
		Code:      code,
		Retriable: retriable[code],
		cause:     cause,
	}
	if cause != nil {
		se.Message = cause.Error()
	} else {
		se.Message = string(code)
	}
	return se
}

// Exhausted marks the error as terminal after attempts were exhausted,
// preserving the original code and message.
func (e *StageError) Exhausted() *StageError {
	clone := *e
	clone.MaxAttempts = true
	clone.Retriable = false
	return &clone
}

func (e *StageError) Error() string {
	if e.MaxAttempts {
		return fmt.Sprintf("%s: %s (max_attempts)", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StageError) Unwrap() error { return e.cause }

// JSON renders the error for storage in the extraction job's error_json
// column. Truncation of very long messages is the caller's responsibility
// (see Truncate).
func (e *StageError) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Truncate caps Message at n runes, used for unhandled_exception payloads
// where the underlying message may be a full stack trace.
func (e *StageError) Truncate(n int) *StageError {
	r := []rune(e.Message)
	if len(r) <= n {
		return e
	}
	clone := *e
	clone.Message = string(r[:n]) + "...(truncated)"
	return &clone
}

// AsStageError extracts a *StageError from err, if present anywhere in its
// unwrap chain.
func AsStageError(err error) (*StageError, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsRetriable reports whether err (if a StageError) should be retried.
func IsRetriable(err error) bool {
	se, ok := AsStageError(err)
	return ok && se.Retriable
}
