package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/tutordex/core/internal/queue"
)

func runCollectorBackfill(args []string) error {
	fs := flag.NewFlagSet("collector backfill", flag.ContinueOnError)
	channels := fs.String("channels", "", "comma-separated channel refs")
	since := fs.String("since", "", "window start (RFC3339 or YYYY-MM-DD)")
	until := fs.String("until", "", "window end (RFC3339 or YYYY-MM-DD)")
	maxMessages := fs.Int("max-messages", 0, "cap on messages scanned per channel (0 = unbounded)")
	forceEnqueue := fs.Bool("force-enqueue", false, "re-enqueue every scanned row even if already processed")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	refs, err := parseChannels(*channels)
	if err != nil {
		return err
	}
	sinceT, err := parseTimestamp(*since)
	if err != nil {
		return err
	}
	untilT, err := parseTimestamp(*until)
	if err != nil {
		return err
	}

	cfg, ctx, cancel, err := loadEnv()
	if err != nil {
		return err
	}
	defer cancel()

	store, closeStore, err := openRawStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	q := queue.NewPostgresQueue(pool)

	client := buildSourceClient(cfg)
	defer client.Close()

	col, err := buildCollector(ctx, client, store, q, cfg)
	if err != nil {
		return err
	}
	col.MessageCap = *maxMessages
	col.ForceEnqueue = *forceEnqueue

	return runWithSource(ctx, client, func(ctx context.Context) error {
		return col.Backfill(ctx, refs, sinceT, untilT)
	})
}
