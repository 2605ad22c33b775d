package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/tutordex/core/internal/queue"
	"github.com/tutordex/core/internal/rawstore"
)

// runReprocessRecent re-queues raw rows from the last D days + H hours
// straight off the Raw Store, bypassing the source client entirely: the
// rows and their channel_ref/message_id are already known, so there is
// nothing for a source.Client round trip to add. force=true so rows already
// marked ok/failed under the current pipeline_version are re-claimed.
func runReprocessRecent(args []string) error {
	fs := flag.NewFlagSet("reprocess-recent", flag.ContinueOnError)
	days := fs.Int("days", 0, "lookback window, days component")
	hours := fs.Int("hours", 0, "lookback window, hours component")
	channels := fs.String("channels", "", "optional comma-separated channel refs to restrict to")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *days == 0 && *hours == 0 {
		return fmt.Errorf("%w: at least one of --days/--hours must be non-zero", errUsage)
	}

	var refs []string
	if *channels != "" {
		var err error
		refs, err = parseChannels(*channels)
		if err != nil {
			return err
		}
	}

	cfg, ctx, cancel, err := loadEnv()
	if err != nil {
		return err
	}
	defer cancel()

	rawStore, closeRawStore, err := openRawStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRawStore()

	pg, ok := rawStore.(*rawstore.PostgresStore)
	if !ok {
		return fmt.Errorf("reprocess-recent requires the Postgres raw store (got the JSONL fallback, which has no date-range read path)")
	}

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	q := queue.NewPostgresQueue(pool)

	lookback := time.Duration(*days)*24*time.Hour + time.Duration(*hours)*time.Hour
	since := time.Now().UTC().Add(-lookback)

	rows, err := pg.ListSince(ctx, since, refs)
	if err != nil {
		return fmt.Errorf("reprocess-recent: list since %s: %w", since.Format(time.RFC3339), err)
	}
	if len(rows) == 0 {
		fmt.Println("reprocess-recent: no rows found in window")
		return nil
	}

	raws := make([]queue.RawRef, 0, len(rows))
	for _, r := range rows {
		raws = append(raws, queue.RawRef{RawID: r.RawID, ChannelRef: r.Message.ChannelRef, MessageID: r.Message.MessageID})
	}
	n, err := q.Enqueue(ctx, cfg.PipelineVersion, raws, true)
	if err != nil {
		return fmt.Errorf("reprocess-recent: enqueue: %w", err)
	}
	fmt.Printf("reprocess-recent: re-queued %d of %d rows since %s\n", n, len(rows), since.Format(time.RFC3339))
	return nil
}
