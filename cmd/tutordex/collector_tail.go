package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/tutordex/core/internal/queue"
)

func runCollectorTail(args []string) error {
	fs := flag.NewFlagSet("collector tail", flag.ContinueOnError)
	channels := fs.String("channels", "", "comma-separated channel refs")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	refs, err := parseChannels(*channels)
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

	return runWithSource(ctx, client, func(ctx context.Context) error {
		return col.Tail(ctx, refs)
	})
}
