package collector

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/tutordex/core/internal/observability"
)

// Catchup is the subset of recovery.Loop the live supervisor needs, kept as
// an interface here to avoid an import cycle (recovery depends on
// collector for its bounded-backfill reuse).
type Catchup interface {
	Run(ctx context.Context) error
}

// Live runs Tail and the Recovery Catchup loop concurrently; either
// returning ends both (errgroup cancels the shared context).
func (c *Collector) Live(ctx context.Context, channelRefs []string, catchup Catchup) error {
	log := observability.LoggerWithTrace(ctx)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := c.Tail(gctx, channelRefs)
		if err != nil {
			log.Error().Err(err).Msg("collector: tail exited")
		}
		return err
	})

	if catchup != nil {
		g.Go(func() error {
			err := catchup.Run(gctx)
			if err != nil {
				log.Error().Err(err).Msg("collector: recovery catchup exited")
			}
			return err
		})
	}

	return g.Wait()
}
