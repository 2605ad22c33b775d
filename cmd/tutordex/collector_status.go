package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/tutordex/core/internal/config"
	"github.com/tutordex/core/internal/model"
	"github.com/tutordex/core/internal/rawstore"
)

func runCollectorStatus(args []string) error {
	fs := flag.NewFlagSet("collector status", flag.ContinueOnError)
	runID := fs.Int64("run-id", 0, "show a single run by id")
	runType := fs.String("run-type", "", "filter runs by type (backfill|tail|recovery_catchup|enqueue)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *runID != 0 && *runType != "" {
		return fmt.Errorf("%w: --run-id and --run-type are mutually exclusive", errUsage)
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

	filter := rawstore.RunFilter{RunID: *runID, RunType: model.RunType(*runType), Limit: 20}
	runs, err := store.GetRuns(ctx, filter)
	if err != nil {
		return fmt.Errorf("collector status: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
	}
	for _, r := range runs {
		finished := "running"
		if r.FinishedAt != nil {
			finished = r.FinishedAt.Format("2006-01-02T15:04:05Z07:00")
		}
		fmt.Printf("run_id=%d type=%s status=%s started=%s finished=%s channels=%v\n",
			r.RunID, r.RunType, r.Status, r.StartedAt.Format("2006-01-02T15:04:05Z07:00"), finished, r.Channels)
	}

	reportArchiveStatus(ctx, cfg)
	return nil
}

// archivePinger is satisfied by *archive.ObjectStoreArchiver; kept as a
// local interface so buildArchiver's return type stays the narrow
// archive.Archiver (Put/Get only) everywhere else.
type archivePinger interface {
	Ping(ctx context.Context) error
}

func reportArchiveStatus(ctx context.Context, cfg config.Config) {
	archiver, err := buildArchiver(ctx, cfg)
	if err != nil {
		fmt.Printf("archive: unreachable (%v)\n", err)
		return
	}
	if archiver == nil {
		return
	}
	p, ok := archiver.(archivePinger)
	if !ok {
		return
	}
	if err := p.Ping(ctx); err != nil {
		fmt.Printf("archive: unreachable (%v)\n", err)
		return
	}
	fmt.Println("archive: ok")
}
