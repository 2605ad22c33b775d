// Package persist implements the assignment upsert: compute external_id,
// look up (agency_ref, external_id), insert on miss or merge-without-
// overwriting-non-null on hit, and drive status changes through the state
// machine (spec §4.11).
package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/tutordex/core/internal/model"
)

// Action distinguishes an insert from a merge-on-hit, the one bit the
// Extraction Worker needs to decide whether to fan out a broadcast/DM.
type Action string

const (
	ActionInserted Action = "inserted"
	ActionUpdated  Action = "updated"
)

// Result is the outcome of a persist call.
type Result struct {
	OK         bool
	Action     Action
	StatusCode model.Status
	Error      string
}

// Source carries the raw-message provenance a payload is persisted from,
// needed to compute external_id and last_seen.
type Source struct {
	AgencyRef    string
	ChannelID    int64
	MessageID    string
	MessageLink  string
	CID          string
	LastSeen     time.Time
	DeletedEvent bool
}

// Store is the assignment table's operation set. PostgresStore is the
// production implementation; tests use an in-memory fake.
type Store interface {
	// FindByExternalID returns the current row and true if one exists for
	// (agencyRef, externalID).
	FindByExternalID(ctx context.Context, agencyRef, externalID string) (model.Assignment, bool, error)
	// Insert writes a new row.
	Insert(ctx context.Context, a model.Assignment) error
	// MergeUpdate writes a row that Persist has already merged: non-null
	// incoming fields laid over the existing row, bump_count incremented and
	// last_seen advanced to max(current, new). The store writes bump_count
	// and last_seen as given and does not recompute them.
	MergeUpdate(ctx context.Context, a model.Assignment) error
	// UpdateStatus transitions a row's status directly (used by
	// markAssignmentClosed), bypassing the merge path.
	UpdateStatus(ctx context.Context, agencyRef, externalID string, status model.Status) error
}

// ExternalID computes the assignment's natural key: assignment_code if the
// extractor found one, else a Telegram-composite fallback, else the
// message link, else the raw row's cid. Exactly one of these is always
// available for a message that reached the Persister.
func ExternalID(a model.Assignment, src Source) string {
	if a.AssignmentCode != "" {
		return a.AssignmentCode
	}
	if src.ChannelID != 0 && src.MessageID != "" {
		return fmt.Sprintf("tg:%d:%s", src.ChannelID, src.MessageID)
	}
	if src.MessageLink != "" {
		return src.MessageLink
	}
	return src.CID
}

// Persist is the Worker's single call into this package: compute
// external_id, look up the existing row, and either insert (miss) or merge
// (hit), with deleted-source events routed to markAssignmentClosed
// instead. All status changes are validated through the state machine in
// ModeEnforce, matching the Persister's always-enforce contract.
func Persist(ctx context.Context, store Store, a model.Assignment, src Source) Result {
	a.ExternalID = ExternalID(a, src)
	if a.AgencyRef == "" {
		a.AgencyRef = src.AgencyRef
	}

	if src.DeletedEvent {
		return markAssignmentClosed(ctx, store, a.AgencyRef, a.ExternalID)
	}

	existing, found, err := store.FindByExternalID(ctx, a.AgencyRef, a.ExternalID)
	if err != nil {
		return Result{OK: false, Error: fmt.Sprintf("lookup failed: %v", err)}
	}

	if !found {
		a.Status = model.StatusPending
		status, err := Transition(a.Status, model.StatusOpen, ModeEnforce)
		if err != nil {
			return Result{OK: false, Error: err.Error()}
		}
		a.Status = status
		a.BumpCount = 0
		if a.LastSeen.IsZero() {
			a.LastSeen = src.LastSeen
		}
		if err := store.Insert(ctx, a); err != nil {
			return Result{OK: false, Error: fmt.Sprintf("insert failed: %v", err)}
		}
		return Result{OK: true, Action: ActionInserted, StatusCode: a.Status}
	}

	merged := existing
	mergeNonNull(&merged, a)
	if src.LastSeen.After(merged.LastSeen) {
		merged.LastSeen = src.LastSeen
	}
	merged.BumpCount = existing.BumpCount + 1
	merged.AgencyRef = a.AgencyRef
	merged.ExternalID = a.ExternalID

	if !CanTransition(existing.Status, merged.Status) {
		merged.Status = existing.Status
	}

	if err := store.MergeUpdate(ctx, merged); err != nil {
		return Result{OK: false, Error: fmt.Sprintf("merge update failed: %v", err)}
	}
	return Result{OK: true, Action: ActionUpdated, StatusCode: merged.Status}
}

// markAssignmentClosed transitions an assignment to CLOSED on a
// deleted-source event. A missing row is not an error: a delete for a
// message the Persister never saw (e.g. dropped by a filter) is a no-op.
func markAssignmentClosed(ctx context.Context, store Store, agencyRef, externalID string) Result {
	existing, found, err := store.FindByExternalID(ctx, agencyRef, externalID)
	if err != nil {
		return Result{OK: false, Error: fmt.Sprintf("lookup failed: %v", err)}
	}
	if !found {
		return Result{OK: true, Action: ActionUpdated, StatusCode: model.StatusDeleted}
	}
	status, err := Transition(existing.Status, model.StatusClosed, ModeEnforce)
	if err != nil {
		return Result{OK: false, Error: err.Error()}
	}
	if err := store.UpdateStatus(ctx, agencyRef, externalID, status); err != nil {
		return Result{OK: false, Error: fmt.Sprintf("update status failed: %v", err)}
	}
	return Result{OK: true, Action: ActionUpdated, StatusCode: status}
}

// mergeNonNull writes incoming's non-null/non-empty fields onto existing,
// leaving existing's value in place wherever incoming is empty — the Go
// mirror of the SQL layer's COALESCE($new, field) merge.
func mergeNonNull(existing *model.Assignment, incoming model.Assignment) {
	if incoming.AssignmentCode != "" {
		existing.AssignmentCode = incoming.AssignmentCode
	}
	if incoming.AcademicDisplayText != "" {
		existing.AcademicDisplayText = incoming.AcademicDisplayText
	}
	if incoming.LearningMode != model.LearningModeNone {
		existing.LearningMode = incoming.LearningMode
	}
	if len(incoming.Addresses) > 0 {
		existing.Addresses = incoming.Addresses
	}
	if len(incoming.PostalCodes) > 0 {
		existing.PostalCodes = incoming.PostalCodes
	}
	if len(incoming.PostalCodesEstimated) > 0 {
		existing.PostalCodesEstimated = incoming.PostalCodesEstimated
	}
	if len(incoming.NearestMRT) > 0 {
		existing.NearestMRT = incoming.NearestMRT
	}
	if len(incoming.LessonSchedule) > 0 {
		existing.LessonSchedule = incoming.LessonSchedule
	}
	if incoming.StartDate != nil {
		existing.StartDate = incoming.StartDate
	}
	if hasAnyTimeSlot(incoming.TimeAvailability) {
		existing.TimeAvailability = incoming.TimeAvailability
	}
	if incoming.Rate.Min != nil {
		existing.Rate.Min = incoming.Rate.Min
	}
	if incoming.Rate.Max != nil {
		existing.Rate.Max = incoming.Rate.Max
	}
	if incoming.Rate.RawText != "" {
		existing.Rate.RawText = incoming.Rate.RawText
	}
	if incoming.AdditionalRemarks != nil {
		existing.AdditionalRemarks = incoming.AdditionalRemarks
	}
	if len(incoming.TutorTypes) > 0 {
		existing.TutorTypes = incoming.TutorTypes
	}
	if len(incoming.RateBreakdown) > 0 {
		existing.RateBreakdown = incoming.RateBreakdown
	}
	if incoming.FreshnessTier != "" {
		existing.FreshnessTier = incoming.FreshnessTier
	}
}

func hasAnyTimeSlot(ta model.TimeAvailability) bool {
	for _, slots := range ta.Explicit {
		if len(slots) > 0 {
			return true
		}
	}
	for _, slots := range ta.Estimated {
		if len(slots) > 0 {
			return true
		}
	}
	return ta.Note != nil
}
