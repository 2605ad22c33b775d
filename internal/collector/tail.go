package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/tutordex/core/internal/model"
	"github.com/tutordex/core/internal/observability"
	"github.com/tutordex/core/internal/queue"
	"github.com/tutordex/core/internal/source"
)

// Tail subscribes to live new/edit/delete events and writes them through.
// All handlers are fail-soft: an error is logged and counted, the
// subscription itself is never aborted.
func (c *Collector) Tail(ctx context.Context, channelRefs []string) error {
	log := observability.LoggerWithTrace(ctx)
	run := model.IngestionRun{
		RunType:   model.RunTail,
		Status:    model.RunRunning,
		StartedAt: time.Now().UTC(),
		Channels:  channelRefs,
	}
	runID, err := c.Store.CreateRun(ctx, run)
	if err != nil {
		return fmt.Errorf("collector: create tail run: %w", err)
	}

	err = c.Client.Subscribe(ctx, channelRefs, func(ctx context.Context, u source.Update) error {
		switch u.Kind {
		case source.UpdateNew, source.UpdateEdit:
			force := u.Kind == source.UpdateEdit
			row := toRaw(u.ChannelRef, 0, u.Message)
			if _, err := c.Store.UpsertMessagesBatch(ctx, []model.RawMessage{row}); err != nil {
				log.Warn().Err(err).Str("channel", u.ChannelRef).Msg("collector: tail upsert failed")
				return nil
			}
			c.archiveRows(ctx, []model.RawMessage{row})
			if _, err := c.Queue.Enqueue(ctx, c.PipelineVersion, []queue.RawRef{{ChannelRef: row.ChannelRef, MessageID: row.MessageID}}, force); err != nil {
				log.Warn().Err(err).Str("channel", u.ChannelRef).Msg("collector: tail enqueue failed")
			}
		case source.UpdateDelete:
			if _, err := c.Store.MarkDeleted(ctx, u.ChannelRef, u.DeletedIDs); err != nil {
				log.Warn().Err(err).Str("channel", u.ChannelRef).Msg("collector: tail delete failed")
			}
		}
		if c.Heartbeat != nil {
			c.Heartbeat.Tick(u.ChannelRef, "tail")
		}
		return nil
	})

	status := model.RunOK
	if err != nil && ctx.Err() == nil {
		status = model.RunError
	} else if ctx.Err() != nil {
		status = model.RunCancelled
	}
	if finErr := c.Store.FinishRun(context.Background(), runID, status); finErr != nil {
		log.Warn().Err(finErr).Int64("run_id", runID).Msg("collector: finish tail run failed")
	}
	return err
}
