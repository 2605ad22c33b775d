package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tutordex/core/internal/enrich"
	"github.com/tutordex/core/internal/llmextract"
	"github.com/tutordex/core/internal/metrics"
	"github.com/tutordex/core/internal/model"
	"github.com/tutordex/core/internal/persist"
	"github.com/tutordex/core/internal/queue"
	"github.com/tutordex/core/internal/rawstore"
)

// Worker claims rows from the Work Queue and drives each one through the
// extraction pipeline. One Worker serves one pipeline version; running two
// pipeline versions side by side means running two Workers.
type Worker struct {
	Queue       queue.Queue
	RawStore    rawstore.Store
	Persist     persist.Store
	LLM         llmClient
	Geocoder    enrich.Geocoder
	Broadcaster Broadcaster
	DMs         DMNotifier

	// Metrics records per-job outcomes and stage timings. Defaults to a
	// no-op sink so callers that don't care about metrics never nil-check it.
	Metrics metrics.Sink

	// AgencyRef identifies the deployment's own agency namespace; every
	// persisted assignment's external_id is scoped under it.
	AgencyRef string

	Config Config
}

// llmClient is the narrow slice of *llmextract.Client the pipeline depends
// on. *llmextract.Client satisfies this directly; worker_test.go supplies a
// stub so pipeline tests don't need a live breaker/HTTP client.
type llmClient interface {
	Extract(ctx context.Context, text, channelHint, correlationID string) (*llmextract.Result, error)
}

func New(q queue.Queue, rawStore rawstore.Store, store persist.Store, llm *llmextract.Client, geocoder enrich.Geocoder, agencyRef string, cfg Config) *Worker {
	w := &Worker{
		Queue:       q,
		RawStore:    rawStore,
		Persist:     store,
		LLM:         llm,
		Geocoder:    geocoder,
		Broadcaster: noopFanout{},
		DMs:         noopFanout{},
		Metrics:     metrics.NoopSink{},
		AgencyRef:   agencyRef,
		Config:      cfg,
	}
	return w
}

// Run claims batches in a loop and fans each batch out across
// Config.workerCount() goroutines until ctx is cancelled (or, in oneshot
// mode, until MaxJobs have been processed or the queue runs dry).
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	jobs := make(chan model.ExtractionJob, w.Config.claimBatchSize())
	processed := make(chan struct{}, w.Config.claimBatchSize())

	for i := 0; i < w.Config.workerCount(); i++ {
		g.Go(func() error {
			for job := range jobs {
				w.processJob(ctx, job)
				select {
				case processed <- struct{}{}:
				default:
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(jobs)
		return w.claimLoop(ctx, jobs)
	})

	g.Go(func() error {
		return w.staleRequeueLoop(ctx)
	})

	return g.Wait()
}

func (w *Worker) claimLoop(ctx context.Context, jobs chan<- model.ExtractionJob) error {
	total := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		batch, err := w.Queue.Claim(ctx, w.Config.PipelineVersion, w.Config.claimBatchSize())
		if err != nil {
			log.Error().Err(err).Msg("worker: claim failed")
			if !sleepCtx(ctx, w.Config.idleSleep()) {
				return ctx.Err()
			}
			continue
		}
		if len(batch) == 0 {
			if w.Config.Oneshot {
				return nil
			}
			if !sleepCtx(ctx, w.Config.idleSleep()) {
				return ctx.Err()
			}
			continue
		}
		for _, job := range batch {
			select {
			case jobs <- job:
			case <-ctx.Done():
				return ctx.Err()
			}
			total++
			if w.Config.Oneshot && w.Config.MaxJobs > 0 && total >= w.Config.MaxJobs {
				return nil
			}
		}
	}
}

// staleRequeueLoop periodically resets rows stuck in "processing" (a worker
// crashed mid-job) back to pending so another claim can pick them up.
func (w *Worker) staleRequeueLoop(ctx context.Context) error {
	if w.Config.Oneshot {
		return nil
	}
	ticker := time.NewTicker(w.Config.staleAfter() / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := w.Queue.RequeueStale(ctx, w.Config.PipelineVersion, int(w.Config.staleAfter().Seconds()))
			if err != nil {
				log.Warn().Err(err).Msg("worker: requeue stale failed")
				continue
			}
			if n > 0 {
				log.Info().Int("count", n).Msg("worker: requeued stale jobs")
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (w *Worker) finish(ctx context.Context, original, updated model.ExtractionJob, timings map[string]int) {
	updated.Meta.StageTimingsMS = timings
	updated.LLMModel = original.LLMModel
	if err := w.Queue.UpdateStatus(ctx, updated); err != nil {
		log.Error().Err(err).
			Str("channel_ref", updated.ChannelRef).
			Str("message_id", updated.MessageID).
			Str("status", string(updated.Status)).
			Msg("worker: update status failed")
	}
	metrics.LoggingRecordJob(ctx, w.Metrics, metrics.JobEvent{
		PipelineVersion: w.Config.PipelineVersion,
		ChannelRef:      updated.ChannelRef,
		MessageID:       updated.MessageID,
		Status:          updated.Status,
		Attempt:         updated.Meta.Attempt,
		FilterReason:    updated.Meta.FilterReason,
		PersistResult:   updated.Meta.PersistResult,
		StageTimingsMS:  timings,
	})
}

func marshalAssignment(a model.Assignment) ([]byte, error) {
	return json.Marshal(a)
}

func marshalStrings(reasons []string) ([]byte, error) {
	if len(reasons) == 0 {
		return nil, nil
	}
	return json.Marshal(reasons)
}
