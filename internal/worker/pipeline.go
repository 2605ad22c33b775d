package worker

import (
	"context"
	"fmt"

	"github.com/tutordex/core/internal/enrich"
	"github.com/tutordex/core/internal/model"
	"github.com/tutordex/core/internal/normalize"
	"github.com/tutordex/core/internal/pipeline"
	"github.com/tutordex/core/internal/schema"
	"github.com/tutordex/core/internal/taxonomy"
)

// stageResult carries everything the caller needs to finish a job: the
// extracted/enriched record, the hard-validator's findings, and the
// subjects/levels found by the deterministic signals (stage timings are kept
// by the caller).
type stageResult struct {
	Assignment model.Assignment
	Violations []enrich.Violation
	Subjects   []string
	Levels     []string
}

// runStandardPipeline is the normalize → LLM extract → enrich → schema
// validate chain shared by a standalone message and by each segment of a
// split compilation message.
func (w *Worker) runStandardPipeline(ctx context.Context, rawText, channelHint, correlationID string) (stageResult, error) {
	var out stageResult

	normalized := normalize.Text(rawText)
	llmText := rawText
	if w.Config.UseNormalizedTextForLLM {
		llmText = normalized
	}

	result, err := w.LLM.Extract(ctx, llmText, channelHint, correlationID)
	if err != nil {
		return out, err
	}
	a := result.Assignment

	enrich.FillPostalCodes(ctx, &a, rawText, w.geocoderOrNil())

	if w.Config.UseDeterministicTime {
		ta, _ := enrich.ExtractTimeAvailability(rawText, normalized)
		a.TimeAvailability = ta
	}

	a.TutorTypes = normalizeTutorTypes(a.TutorTypes)

	if w.Config.EnableDeterministicSignals {
		sig := enrich.BuildSignals(a.AcademicDisplayText, normalized, rawText)
		out.Subjects = sig.Subjects
		out.Levels = sig.Levels
		if len(a.RateBreakdown) == 0 && len(sig.TutorTypes) > 0 {
			a.RateBreakdown = sig.TutorTypes
		}
		for _, rb := range sig.TutorTypes {
			a.TutorTypes = appendUniqueString(a.TutorTypes, rb.TutorType)
		}
	}

	out.Violations = enrich.HardValidate(&a, rawText, w.Config.HardValidateMode)

	if ok, errs := schema.Validate(&a); !ok {
		out.Assignment = a
		return out, pipeline.NewStageError(pipeline.CodeValidationFailed, schema.Err(errs))
	}

	out.Assignment = a
	return out, nil
}

func (w *Worker) geocoderOrNil() enrich.Geocoder {
	if !w.Config.EnablePostalCodeEstimated {
		return nil
	}
	return w.Geocoder
}

// normalizeTutorTypes maps every raw label the extractor produced onto its
// canonical taxonomy key (e.g. "full-timer"), dropping labels the cascade can't match
// at all (confidence 0) rather than persisting an unrecognizable string.
func normalizeTutorTypes(raw []string) []string {
	var out []string
	for _, label := range raw {
		canonical, _, confidence := taxonomy.NormalizeLabel(label)
		if confidence <= 0 {
			continue
		}
		out = appendUniqueString(out, canonical)
	}
	return out
}

func appendUniqueString(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func violationSummary(violations []enrich.Violation) string {
	if len(violations) == 0 {
		return ""
	}
	return fmt.Sprintf("%d hard-validator violation(s), first: %s", len(violations), violations[0].Message)
}
