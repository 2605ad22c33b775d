package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/tutordex/core/internal/queue"
)

// runCollectorEnqueue re-scans a channel/window and re-queues every row it
// sees. --force (off by default) sets ForceEnqueue so already-processed rows
// are re-queued too, supporting a "reprocess this window under the current
// pipeline_version" workflow; without it, rows already in ok/failed/skipped
// are left untouched.
func runCollectorEnqueue(args []string) error {
	fs := flag.NewFlagSet("collector enqueue", flag.ContinueOnError)
	channels := fs.String("channels", "", "comma-separated channel refs")
	since := fs.String("since", "", "window start (RFC3339 or YYYY-MM-DD)")
	until := fs.String("until", "", "window end (RFC3339 or YYYY-MM-DD)")
	force := fs.Bool("force", false, "re-enqueue rows even if already processed under this pipeline_version")
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
	col.ForceEnqueue = *force

	return runWithSource(ctx, client, func(ctx context.Context) error {
		return col.Backfill(ctx, refs, sinceT, untilT)
	})
}
