// Package queue brokers between collection and extraction: the extractions
// table keyed by (pipeline_version, raw_id), with claim-with-skip-locked,
// enqueue-or-upsert, and a stale-row requeue sweeper (spec §4.2).
package queue

import (
	"context"

	"github.com/tutordex/core/internal/model"
)

// Queue is the Work Queue's RPC set.
type Queue interface {
	// Enqueue upserts (pipeline_version, raw_id) rows to pending. When force
	// is false, rows already in ok/failed/skipped are left untouched; when
	// true they are reset to pending with attempt incremented.
	Enqueue(ctx context.Context, pipelineVersion string, raws []RawRef, force bool) (int, error)
	// Claim atomically selects up to limit pending rows and flips them to
	// processing.
	Claim(ctx context.Context, pipelineVersion string, limit int) ([]model.ExtractionJob, error)
	// RequeueStale returns processing rows older than olderThanSeconds to
	// pending, incrementing attempt and stamping requeued_at.
	RequeueStale(ctx context.Context, pipelineVersion string, olderThanSeconds int) (int, error)
	// UpdateStatus transitions job to a terminal or pending status, writing
	// canonical_json/error_json/meta as appropriate.
	UpdateStatus(ctx context.Context, job model.ExtractionJob) error
	// Backlog reports the count of pending+processing rows for a pipeline
	// version, used by Recovery's low-watermark check.
	Backlog(ctx context.Context, pipelineVersion string) (int, error)
}

// RawRef identifies a raw row to enqueue by its natural key.
type RawRef struct {
	RawID      int64
	ChannelRef string
	MessageID  string
}
