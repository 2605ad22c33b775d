package model

import "time"

// ExtractionStatus is the lifecycle status of an extraction job row.
type ExtractionStatus string

const (
	ExtractionPending    ExtractionStatus = "pending"
	ExtractionProcessing ExtractionStatus = "processing"
	ExtractionOK         ExtractionStatus = "ok"
	ExtractionFailed     ExtractionStatus = "failed"
	ExtractionSkipped    ExtractionStatus = "skipped"
)

// ExtractionMeta carries the mutable bookkeeping fields stored in the
// extraction row's meta column: timing, prompt fingerprint, filter reasons,
// persist result, broadcast result, and the attempt counter. It is modeled
// as a typed field rather than a raw map so the reset-to-pending path can't
// silently drop the attempt count.
type ExtractionMeta struct {
	Attempt        int            `json:"attempt"`
	RequeuedAt     *time.Time     `json:"requeued_at,omitempty"`
	FilterReason   string         `json:"filter_reason,omitempty"`
	PromptFP       string         `json:"prompt_fingerprint,omitempty"`
	StageTimingsMS map[string]int `json:"stage_timings_ms,omitempty"`
	PersistResult  string         `json:"persist_result,omitempty"`
	BroadcastOK    *bool          `json:"broadcast_ok,omitempty"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// ExtractionJob is the work-queue row keyed by (PipelineVersion, RawID).
type ExtractionJob struct {
	PipelineVersion string
	RawID           int64
	ChannelRef      string
	MessageID       string
	Status          ExtractionStatus
	Meta            ExtractionMeta
	CanonicalJSON   []byte
	LLMModel        string
	ErrorJSON       []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
