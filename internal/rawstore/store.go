// Package rawstore is the append-mostly store of every observed message,
// plus channel metadata, ingestion runs, and per-run progress.
package rawstore

import (
	"context"
	"time"

	"github.com/tutordex/core/internal/model"
)

// BatchResult reports how many rows were attempted vs. actually written.
// PostgREST-style upsert APIs don't distinguish insert from update, so this
// is the only signal the caller gets back.
type BatchResult struct {
	Attempted int
	Written   int
}

// Cursor is the latest known (message_date, message_id) for a channel, used
// to seed backfill/recovery windows.
type Cursor struct {
	ISO       time.Time
	MessageID string
	Found     bool
}

// Store is the Raw Store's operation set (spec §4.1).
type Store interface {
	UpsertChannel(ctx context.Context, ch model.Channel) error
	UpsertMessagesBatch(ctx context.Context, rows []model.RawMessage) (BatchResult, error)
	MarkDeleted(ctx context.Context, channelRef string, messageIDs []string) (int, error)
	CreateRun(ctx context.Context, run model.IngestionRun) (int64, error)
	FinishRun(ctx context.Context, runID int64, status model.RunStatus) error
	UpsertProgress(ctx context.Context, p model.RunProgress) error
	GetLatestCursor(ctx context.Context, channelRef string) (Cursor, error)
	// GetByID loads a single raw message by its store-assigned row id, the
	// lookup the Extraction Worker performs after Queue.Claim hands it a job
	// carrying only (raw_id, channel_ref, message_id).
	GetByID(ctx context.Context, rawID int64) (model.RawMessage, bool, error)
	// GetRuns backs the `collector status` CLI command: filter by run id or
	// run type (mutually preferred, RunID wins if both are set), newest
	// first, capped at filter.Limit (0 means a small default).
	GetRuns(ctx context.Context, filter RunFilter) ([]model.IngestionRun, error)
}

// RunFilter narrows GetRuns. A zero value returns the most recent runs of
// any type.
type RunFilter struct {
	RunID   int64
	RunType model.RunType
	Limit   int
}

// validRow reports whether a raw message row has the minimum fields the
// store requires; rows missing any are dropped and counted against the
// batch's attempted-but-not-written count.
func validRow(m model.RawMessage) bool {
	return m.ChannelRef != "" && m.MessageID != "" && !m.MessageDate.IsZero() && len(m.SourceObject) > 0
}
