package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tutordex/core/internal/filters"
	"github.com/tutordex/core/internal/model"
	"github.com/tutordex/core/internal/persist"
	"github.com/tutordex/core/internal/pipeline"
)

// processJob runs one claimed row through the guard, the non-assignment and
// compilation detectors, and then either the bump shortcuts or the standard
// (or compilation-split) extraction sub-pipeline, finishing with a single
// Queue.UpdateStatus call.
func (w *Worker) processJob(ctx context.Context, job model.ExtractionJob) {
	start := time.Now()
	job.Meta.Attempt++

	raw, found, err := w.RawStore.GetByID(ctx, job.RawID)
	if err != nil {
		w.finish(ctx, job, terminalFailure(job, pipeline.NewStageError(pipeline.CodeRawMissing, err)), nil)
		return
	}
	if !found {
		w.finish(ctx, job, terminalFailure(job, pipeline.NewStageError(pipeline.CodeRawMissing, fmt.Errorf("raw_id %d not found", job.RawID))), nil)
		return
	}

	src := persist.Source{
		AgencyRef: w.AgencyRef,
		ChannelID: raw.ChannelID,
		MessageID: raw.MessageID,
		LastSeen:  raw.LastSeen,
	}

	guardResult := filters.Evaluate(filters.GuardInput{
		Text:         raw.Text,
		IsForward:    raw.IsForward,
		IsReply:      raw.IsReply,
		ReplyToMsgID: raw.ReplyToMsgID,
		DeletedAt:    raw.DeletedAt != nil,
	}, w.Config.AssignmentCodePattern)

	timings := map[string]int{}

	switch guardResult.Action {
	case filters.GuardSkipEmpty:
		w.finish(ctx, job, skip(job, "empty_text"), timings)
		return
	case filters.GuardSkipForwardNoCode:
		w.finish(ctx, job, skip(job, "forwarded_no_code"), timings)
		return
	case filters.GuardBumpByCode:
		res := persist.Persist(ctx, w.Persist, model.Assignment{AssignmentCode: guardResult.AssignmentCode}, src)
		w.finish(ctx, job, fromPersistResult(job, res), timings)
		return
	case filters.GuardBumpByReply:
		replySrc := src
		replySrc.MessageID = raw.ReplyToMsgID
		res := persist.Persist(ctx, w.Persist, model.Assignment{}, replySrc)
		w.finish(ctx, job, fromPersistResult(job, res), timings)
		return
	case filters.GuardCloseDeleted:
		deleteSrc := src
		deleteSrc.DeletedEvent = true
		res := persist.Persist(ctx, w.Persist, model.Assignment{}, deleteSrc)
		w.finish(ctx, job, fromPersistResult(job, res), timings)
		return
	}

	if nr := (filters.IsNonAssignment(raw.Text)); nr.IsNonAssignment {
		w.finish(ctx, job, skip(job, string(nr.MessageType)+": "+nr.Details), timings)
		return
	}

	compilation := filters.DetectCompilation(raw.Text, w.Config.CompilationThresholds)
	if compilation.IsCompilation {
		if segments, ok := w.confirmAndSplit(ctx, raw.Text, job.ChannelRef+":"+job.MessageID); ok {
			w.processCompilation(ctx, job, src, segments, timings)
			return
		}
		// Downgraded: no verified identifier, fall through to the standard
		// single-message path.
	}

	llmStart := time.Now()
	res, err := w.runStandardPipeline(ctx, raw.Text, job.ChannelRef, job.ChannelRef+":"+job.MessageID)
	timings["llm"] = int(time.Since(llmStart).Milliseconds())
	if err != nil {
		w.finish(ctx, job, classifyStageFailure(job, err, w.Config.maxAttempts()), timings)
		return
	}

	persistStart := time.Now()
	pres := persist.Persist(ctx, w.Persist, res.Assignment, src)
	timings["persist"] = int(time.Since(persistStart).Milliseconds())
	timings["total"] = int(time.Since(start).Milliseconds())

	if !pres.OK {
		w.finish(ctx, job, classifyStageFailure(job, pipeline.NewStageError(pipeline.CodePersistFailed, fmt.Errorf("%s", pres.Error)), w.Config.maxAttempts()), timings)
		return
	}

	if pres.Action == persist.ActionInserted {
		w.fanOut(ctx, res.Assignment)
	}

	canonical, _ := marshalAssignment(res.Assignment)
	job.CanonicalJSON = canonical
	job.Status = model.ExtractionOK
	job.Meta.PersistResult = string(pres.Action)
	job.Meta.FilterReason = ""
	job.ErrorJSON = nil
	if summary := violationSummary(res.Violations); summary != "" {
		if job.Meta.Extra == nil {
			job.Meta.Extra = map[string]any{}
		}
		job.Meta.Extra["hard_validator"] = summary
	}
	w.finish(ctx, job, job, timings)
}

// confirmAndSplit asks the compilation-confirm gate to verify candidate
// identifiers (scanned directly from the raw text with the configured
// identifier pattern, rather than a second LLM round trip — the same
// pattern already has to match for DetectCompilation's code-mention count
// to have fired) and, if at least one survives, splits the message in
// reading order.
func (w *Worker) confirmAndSplit(ctx context.Context, text, correlationID string) ([]filters.Segment, bool) {
	pattern := w.Config.IdentifierPattern
	if pattern == nil {
		pattern = w.Config.AssignmentCodePattern
	}
	if pattern == nil {
		return nil, false
	}
	candidates := pattern.FindAllString(text, -1)
	verified, ok := filters.ConfirmCompilation(text, candidates, pattern)
	if !ok {
		log.Debug().Str("correlation_id", correlationID).Msg("worker: compilation flagged but no identifier verified, downgrading")
		return nil, false
	}
	ordered := filters.OrderVerifiedIdentifiers(text, verified)
	return filters.SplitCompilationMessage(text, ordered), true
}

// processCompilation runs the standard sub-pipeline once per segment,
// persisting each independently, and rolls the per-segment outcomes up into
// one job result per spec §4.10: any retriable segment with attempts left
// returns the whole job to pending; otherwise the job is ok iff every
// segment succeeded.
func (w *Worker) processCompilation(ctx context.Context, job model.ExtractionJob, src persist.Source, segments []filters.Segment, timings map[string]int) {
	var failures []string
	anyRetriable := false

	for _, seg := range segments {
		res, err := w.runStandardPipeline(ctx, seg.Text, job.ChannelRef, job.ChannelRef+":"+job.MessageID+":"+seg.Identifier)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", seg.Identifier, err))
			if pipeline.IsRetriable(err) {
				anyRetriable = true
			}
			continue
		}
		segSrc := src
		segSrc.MessageID = job.MessageID + ":" + seg.Identifier
		pres := persist.Persist(ctx, w.Persist, res.Assignment, segSrc)
		if !pres.OK {
			failures = append(failures, fmt.Sprintf("%s: persist: %s", seg.Identifier, pres.Error))
			continue
		}
		if pres.Action == persist.ActionInserted {
			w.fanOut(ctx, res.Assignment)
		}
	}

	if len(failures) == 0 {
		job.Status = model.ExtractionOK
		job.Meta.PersistResult = "compilation_ok"
		job.ErrorJSON = nil
		w.finish(ctx, job, job, timings)
		return
	}

	if anyRetriable && job.Meta.Attempt < w.Config.maxAttempts() {
		job.Status = model.ExtractionPending
		job.ErrorJSON = joinErrorJSON(failures)
		w.finish(ctx, job, job, timings)
		return
	}

	job.Status = model.ExtractionFailed
	job.ErrorJSON = joinErrorJSON(failures)
	w.finish(ctx, job, job, timings)
}

func (w *Worker) fanOut(ctx context.Context, a model.Assignment) {
	if w.Config.EnableBroadcast {
		if err := w.Broadcaster.Broadcast(ctx, a); err != nil {
			log.Warn().Err(err).Str("external_id", a.ExternalID).Msg("worker: broadcast failed")
		}
	}
	if w.Config.EnableDMs {
		if err := w.DMs.NotifyDM(ctx, a); err != nil {
			log.Warn().Err(err).Str("external_id", a.ExternalID).Msg("worker: dm notify failed")
		}
	}
}

func skip(job model.ExtractionJob, reason string) model.ExtractionJob {
	job.Status = model.ExtractionSkipped
	job.Meta.FilterReason = reason
	job.ErrorJSON = nil
	return job
}

func fromPersistResult(job model.ExtractionJob, res persist.Result) model.ExtractionJob {
	if !res.OK {
		job.Status = model.ExtractionFailed
		job.ErrorJSON = joinErrorJSON([]string{res.Error})
		return job
	}
	job.Status = model.ExtractionOK
	job.Meta.PersistResult = string(res.Action)
	job.ErrorJSON = nil
	return job
}

func terminalFailure(job model.ExtractionJob, err error) model.ExtractionJob {
	job.Status = model.ExtractionFailed
	job.ErrorJSON = joinErrorJSON([]string{err.Error()})
	return job
}

// classifyStageFailure decides pending-vs-failed for a single-message
// stage error: retriable errors with attempts remaining go back to pending,
// everything else is terminal with the max_attempts marker set once
// attempts are actually exhausted.
func classifyStageFailure(job model.ExtractionJob, err error, maxAttempts int) model.ExtractionJob {
	if pipeline.IsRetriable(err) && job.Meta.Attempt < maxAttempts {
		job.Status = model.ExtractionPending
		job.ErrorJSON = joinErrorJSON([]string{err.Error()})
		return job
	}
	if se, ok := pipeline.AsStageError(err); ok && job.Meta.Attempt >= maxAttempts {
		err = se.Exhausted()
	}
	job.Status = model.ExtractionFailed
	job.ErrorJSON = joinErrorJSON([]string{err.Error()})
	return job
}

func joinErrorJSON(reasons []string) []byte {
	b, _ := marshalStrings(reasons)
	return b
}
