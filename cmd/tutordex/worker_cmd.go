package main

import (
	"flag"
	"fmt"

	"github.com/tutordex/core/internal/persist"
	"github.com/tutordex/core/internal/queue"
)

// runWorker is long-running and entirely env-driven, per the CLI surface;
// it takes no flags of its own.
func runWorker(args []string) error {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
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

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	q := queue.NewPostgresQueue(pool)
	store := persist.NewPostgresStore(pool)
	llm := buildLLMClient(cfg)

	geocoder, err := buildGeocoder(ctx, cfg)
	if err != nil {
		return err
	}

	wcfg, err := buildWorkerConfig(cfg)
	if err != nil {
		return err
	}

	w, err := buildWorker(ctx, q, rawStore, store, llm, geocoder, cfg, wcfg)
	if err != nil {
		return err
	}

	return w.Run(ctx)
}
