// Package collector drives the Raw Store from a source.Client: backfill
// over a historical window, tail live updates, and a supervisor that runs
// both tail and recovery catchup together (spec §4.3).
package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/tutordex/core/internal/archive"
	"github.com/tutordex/core/internal/model"
	"github.com/tutordex/core/internal/observability"
	"github.com/tutordex/core/internal/queue"
	"github.com/tutordex/core/internal/rawstore"
	"github.com/tutordex/core/internal/source"
)

// Collector wires a source.Client to the Raw Store and Work Queue.
type Collector struct {
	Client          source.Client
	Store           rawstore.Store
	Queue           queue.Queue
	PipelineVersion string
	BatchSize       int
	MessageCap      int // 0 = unbounded
	Heartbeat       *Heartbeat

	// Archiver durably copies each raw message's original payload to object
	// storage, independent of the Raw Store. Nil disables archiving.
	Archiver archive.Archiver

	// ForceEnqueue bypasses the enqueue dedup/pipeline-version check so
	// every scanned row is re-queued even if already processed. Used by
	// `collector backfill --force-enqueue` and `collector enqueue`.
	ForceEnqueue bool
}

// archiveRows best-effort archives rows after they've landed in the Raw
// Store; a failed archive write is logged, never fatal to ingestion.
func (c *Collector) archiveRows(ctx context.Context, rows []model.RawMessage) {
	if c.Archiver == nil {
		return
	}
	log := observability.LoggerWithTrace(ctx)
	for _, r := range rows {
		if err := c.Archiver.Put(ctx, r.ChannelRef, r.MessageID, r); err != nil {
			log.Warn().Err(err).Str("channel", r.ChannelRef).Str("message_id", r.MessageID).Msg("collector: archive write failed")
		}
	}
}

func (c *Collector) batchSize() int {
	if c.BatchSize < 20 {
		return 200
	}
	if c.BatchSize > 1000 {
		return 1000
	}
	return c.BatchSize
}

// Backfill iterates channelRefs newest-to-oldest within [since, until],
// upserting each batch and enqueueing (force=c.ForceEnqueue) on success.
// With MessageCap set, at most MessageCap rows are written per channel.
func (c *Collector) Backfill(ctx context.Context, channelRefs []string, since, until time.Time) error {
	log := observability.LoggerWithTrace(ctx)
	for _, ref := range channelRefs {
		run := model.IngestionRun{
			RunType:   model.RunBackfill,
			Status:    model.RunRunning,
			StartedAt: time.Now().UTC(),
			Channels:  []string{ref},
		}
		runID, err := c.Store.CreateRun(ctx, run)
		if err != nil {
			return fmt.Errorf("collector: create backfill run for %q: %w", ref, err)
		}

		info, err := c.Client.ResolveChannel(ctx, ref)
		if err != nil {
			_ = c.Store.FinishRun(ctx, runID, model.RunError)
			return fmt.Errorf("collector: resolve channel %q: %w", ref, err)
		}
		if err := c.Store.UpsertChannel(ctx, model.Channel{ChannelRef: info.ChannelRef, NumericID: info.NumericID, DisplayTitle: info.DisplayTitle}); err != nil {
			_ = c.Store.FinishRun(ctx, runID, model.RunError)
			return fmt.Errorf("collector: upsert channel %q: %w", ref, err)
		}

		progress := model.RunProgress{RunID: runID, ChannelRef: ref}
		seen := 0
		status := model.RunOK

		err = c.Client.Backfill(ctx, ref, since, until, c.batchSize(), func(batch []source.RawUpdate) error {
			if c.MessageCap > 0 && seen+len(batch) > c.MessageCap {
				batch = batch[:c.MessageCap-seen]
			}
			rows := make([]model.RawMessage, 0, len(batch))
			for _, u := range batch {
				rows = append(rows, toRaw(ref, info.NumericID, u))
			}
			res, err := c.Store.UpsertMessagesBatch(ctx, rows)
			if err != nil {
				return fmt.Errorf("upsert batch: %w", err)
			}
			progress.Scanned += int64(res.Attempted)
			progress.Inserted += int64(res.Written)
			c.archiveRows(ctx, rows)

			raws := make([]queue.RawRef, 0, len(rows))
			for _, r := range rows {
				raws = append(raws, queue.RawRef{ChannelRef: r.ChannelRef, MessageID: r.MessageID})
			}
			if _, err := c.Queue.Enqueue(ctx, c.PipelineVersion, raws, c.ForceEnqueue); err != nil {
				return fmt.Errorf("enqueue batch: %w", err)
			}

			if len(rows) > 0 {
				last := rows[len(rows)-1]
				progress.LastMessageID = last.MessageID
				d := last.MessageDate
				progress.LastMessageDate = &d
			}
			if err := c.Store.UpsertProgress(ctx, progress); err != nil {
				log.Warn().Err(err).Str("channel", ref).Msg("collector: progress update failed")
			}
			if c.Heartbeat != nil {
				c.Heartbeat.Tick(ref, "backfill")
			}

			seen += len(rows)
			if c.MessageCap > 0 && seen >= c.MessageCap {
				return errCapReached
			}
			return nil
		})
		if err != nil && err != errCapReached {
			status = model.RunError
			log.Error().Err(err).Str("channel", ref).Msg("collector: backfill failed")
		}
		if finErr := c.Store.FinishRun(ctx, runID, status); finErr != nil {
			log.Warn().Err(finErr).Int64("run_id", runID).Msg("collector: finish run failed")
		}
		if err != nil && err != errCapReached {
			return err
		}
	}
	return nil
}

var errCapReached = fmt.Errorf("collector: message cap reached")

func toRaw(channelRef string, channelID int64, u source.RawUpdate) model.RawMessage {
	return model.RawMessage{
		ChannelRef:   channelRef,
		ChannelID:    channelID,
		MessageID:    u.MessageID,
		MessageDate:  u.MessageDate,
		EditDate:     u.EditDate,
		IsForward:    u.IsForward,
		IsReply:      u.IsReply,
		ReplyToMsgID: u.ReplyToMsgID,
		Text:         u.Text,
		Entities:     u.Entities,
		SenderID:     u.SenderID,
		ViewCount:    u.ViewCount,
		ForwardCount: u.ForwardCount,
		ReplyCount:   u.ReplyCount,
		LastSeen:     time.Now().UTC(),
		SourceObject: u.SourceObject,
	}
}
