// Package model defines the canonical record types shared across the
// ingestion pipeline: raw messages, channels, ingestion runs, extraction
// jobs, and assignments.
package model

import "time"

// RawMessage is every observed message from a source channel, keyed by
// (ChannelRef, MessageID).
type RawMessage struct {
	ChannelRef    string
	ChannelID     int64
	MessageID     string
	MessageDate   time.Time
	EditDate      *time.Time
	IsForward     bool
	IsReply       bool
	ReplyToMsgID  string
	Text          string
	Entities      []byte // opaque JSON
	SenderID      int64
	ViewCount     int64
	ForwardCount  int64
	ReplyCount    int64
	DeletedAt     *time.Time
	LastSeen      time.Time
	SourceObject  []byte // full source payload, preserved for replay
}

// Key returns the natural uniqueness key for this row.
func (m RawMessage) Key() (string, string) { return m.ChannelRef, m.MessageID }

// Channel is upserted metadata for a source channel.
type Channel struct {
	ChannelRef   string
	NumericID    int64
	DisplayTitle string
}

// RunType enumerates the kinds of ingestion runs tracked for observability
// and resume.
type RunType string

const (
	RunBackfill RunType = "backfill"
	RunTail     RunType = "tail"
	RunCatchup  RunType = "recovery_catchup"
	RunEnqueue  RunType = "enqueue"
)

// RunStatus is the lifecycle status of an ingestion run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunOK        RunStatus = "ok"
	RunError     RunStatus = "error"
	RunCancelled RunStatus = "cancelled"
)

// IngestionRun tracks one backfill/tail/catchup/enqueue invocation.
type IngestionRun struct {
	RunID      int64
	RunType    RunType
	Status     RunStatus
	StartedAt  time.Time
	FinishedAt *time.Time
	Channels   []string
	Meta       map[string]any
}

// RunProgress is per-(run, channel) counters used for observability and
// resume.
type RunProgress struct {
	RunID           int64
	ChannelRef      string
	Scanned         int64
	Inserted        int64
	Updated         int64
	Errors          int64
	LastMessageID   string
	LastMessageDate *time.Time
}
