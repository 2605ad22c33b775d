// Command tutordex runs the ingestion/extraction pipeline: a collector that
// pulls source channel updates into the Raw Store, a worker that drives
// queued rows through filtering/extraction/enrichment into Persisted
// Assignments, and a handful of operational subcommands layered over the
// same stores.
//
// Usage:
//
//	tutordex collector backfill --channels c1,c2 --since 2026-01-01 --until 2026-01-02 [--max-messages N] [--force-enqueue]
//	tutordex collector tail --channels c1,c2
//	tutordex collector live --channels c1,c2
//	tutordex collector enqueue --channels c1,c2 --since ... --until ... [--force]
//	tutordex collector status [--run-id N | --run-type T]
//	tutordex worker
//	tutordex reprocess-recent --days D --hours H
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
)

// errUsage marks an argument-parsing or configuration failure, distinct from
// a runtime failure: it exits 2 instead of 1.
var errUsage = errors.New("usage")

func main() {
	err := run(os.Args[1:])
	if err == nil {
		return
	}
	if errors.Is(err, errUsage) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log.Fatal().Err(err).Msg("tutordex")
}

func run(args []string) error {
	if len(args) == 0 {
		return usageErr()
	}

	switch args[0] {
	case "collector":
		if len(args) < 2 {
			return usageErr()
		}
		switch args[1] {
		case "backfill":
			return runCollectorBackfill(args[2:])
		case "tail":
			return runCollectorTail(args[2:])
		case "live":
			return runCollectorLive(args[2:])
		case "enqueue":
			return runCollectorEnqueue(args[2:])
		case "status":
			return runCollectorStatus(args[2:])
		default:
			return usageErr()
		}
	case "worker":
		return runWorker(args[1:])
	case "reprocess-recent":
		return runReprocessRecent(args[1:])
	default:
		return usageErr()
	}
}

func usageErr() error {
	return fmt.Errorf("%w: tutordex <collector backfill|collector tail|collector live|collector enqueue|collector status|worker|reprocess-recent> [flags]", errUsage)
}
