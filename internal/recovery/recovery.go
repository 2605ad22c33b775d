// Package recovery implements the catchup loop: on startup, resume or seed
// a per-channel cursor from a checkpoint, then replay bounded windows
// through the Collector's backfill routine until every channel reaches a
// target lag behind now, throttled by queue backlog (spec §4.9).
//
// Ported from original_source/TutorDexAggregator/recovery/catchup.py's
// run_catchup_until_target, generalized from Telegram-specific session
// wiring to the source.Client/collector.Collector abstractions the rest of
// this module already uses.
package recovery

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tutordex/core/internal/collector"
	"github.com/tutordex/core/internal/queue"
	"github.com/tutordex/core/internal/rawstore"
	"github.com/tutordex/core/internal/retry"
)

// Config mirrors config.RecoveryConfig's fields as plain values so this
// package doesn't import internal/config (kept free of a dependency on the
// env-parsing layer; main wires the two together).
type Config struct {
	TargetLag         time.Duration
	Overlap           time.Duration
	ChunkHours        time.Duration
	QueueLowWatermark int
	MaxAttempts       int
	BaseBackoff       time.Duration
	CheckInterval     time.Duration
	DefaultLookback   time.Duration
	PipelineVersion   string
}

// Loop drives channels toward Config.TargetLag behind now, resuming from a
// Checkpointer-backed State across restarts. It satisfies
// collector.Catchup so collector.Live can run it alongside Tail.
type Loop struct {
	Collector    *collector.Collector
	Store        rawstore.Store
	Queue        queue.Queue
	Checkpointer Checkpointer
	Channels     []string
	Config       Config
}

var _ collector.Catchup = (*Loop)(nil)

// Run resumes or builds catchup state, then replays bounded windows until
// every channel's cursor reaches the target, persisting progress after
// every window so a restart resumes instead of re-scanning from scratch.
func (l *Loop) Run(ctx context.Context) error {
	if len(l.Channels) == 0 {
		return nil
	}

	state, err := l.loadOrInit(ctx)
	if err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		backlog, err := l.Queue.Backlog(ctx, l.Config.PipelineVersion)
		if err != nil {
			log.Warn().Err(err).Msg("recovery: backlog check failed, proceeding anyway")
		} else if backlog > l.Config.QueueLowWatermark {
			log.Info().Int("backlog", backlog).Int("low_watermark", l.Config.QueueLowWatermark).Msg("recovery: queue above low watermark, waiting")
			if err := retry.Sleep(ctx, l.Config.CheckInterval); err != nil {
				return err
			}
			continue
		}

		anyProgress := false
		for _, ch := range l.Channels {
			cursor, ok := state.Cursors[ch]
			if !ok {
				cursor = state.TargetISO.Add(-7 * 24 * time.Hour)
			}
			if !cursor.Before(state.TargetISO) {
				continue
			}

			until := cursor.Add(l.Config.ChunkHours)
			if until.After(state.TargetISO) {
				until = state.TargetISO
			}
			since := cursor
			if l.Config.Overlap > 0 {
				since = cursor.Add(-l.Config.Overlap)
			}

			if err := l.backfillWithRetry(ctx, ch, since, until); err != nil {
				state.Errors = append(state.Errors, err.Error())
				_ = l.Checkpointer.Save(ctx, state)
				return err
			}

			state.Cursors[ch] = until
			anyProgress = true
			if err := l.Checkpointer.Save(ctx, state); err != nil {
				log.Warn().Err(err).Str("channel", ch).Msg("recovery: checkpoint save failed")
			}
		}

		if !anyProgress {
			break
		}

		if err := retry.Sleep(ctx, l.Config.CheckInterval); err != nil {
			return err
		}
	}

	state.Status = "ok"
	return l.Checkpointer.Save(ctx, state)
}

func (l *Loop) backfillWithRetry(ctx context.Context, channel string, since, until time.Time) error {
	backoff := retry.New(l.Config.BaseBackoff, 5*time.Minute)
	maxAttempts := l.Config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := l.Collector.Backfill(ctx, []string{channel}, since, until)
		if err == nil {
			return nil
		}
		lastErr = err
		log.Warn().Err(err).Str("channel", channel).Int("attempt", attempt).Int("max_attempts", maxAttempts).Msg("recovery: backfill attempt failed")
		if attempt >= maxAttempts {
			break
		}
		if sleepErr := retry.Sleep(ctx, backoff.Next(attempt)); sleepErr != nil {
			return sleepErr
		}
	}
	return lastErr
}

func (l *Loop) loadOrInit(ctx context.Context) (State, error) {
	existing, found, err := l.Checkpointer.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("recovery: checkpoint load failed, rebuilding state")
	}
	if found && existing.Status == "running" && existing.Cursors != nil {
		return existing, nil
	}

	now := time.Now().UTC()
	target := now.Add(-l.Config.TargetLag)
	cursors := make(map[string]time.Time, len(l.Channels))
	for _, ch := range l.Channels {
		c, err := l.Store.GetLatestCursor(ctx, ch)
		if err == nil && c.Found {
			cursors[ch] = c.ISO
			continue
		}
		cursors[ch] = now.Add(-l.Config.DefaultLookback)
	}

	state := State{
		Version:    1,
		CreatedAt:  now,
		TargetISO:  target,
		Cursors:    cursors,
		Status:     "running",
		LastUpdate: now,
	}
	if err := l.Checkpointer.Save(ctx, state); err != nil {
		return state, err
	}
	return state, nil
}
