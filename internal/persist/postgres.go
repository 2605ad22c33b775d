package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tutordex/core/internal/model"
)

// PostgresStore is a pgx-backed Store. Lookup and insert are separate
// statements (FindByExternalID, then Insert); Insert uses ON CONFLICT DO
// NOTHING, so when two callers insert the same (agency_ref, external_id)
// concurrently the second insert is dropped without an error and its
// payload is not merged.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Init creates the assignments table if it does not already exist.
func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS assignments (
	agency_ref TEXT NOT NULL,
	external_id TEXT NOT NULL,
	assignment_code TEXT NOT NULL DEFAULT '',
	academic_display_text TEXT NOT NULL DEFAULT '',
	learning_mode TEXT NOT NULL DEFAULT '',
	addresses JSONB NOT NULL DEFAULT '[]',
	postal_codes JSONB NOT NULL DEFAULT '[]',
	postal_codes_estimated JSONB NOT NULL DEFAULT '[]',
	nearest_mrt JSONB NOT NULL DEFAULT '[]',
	lesson_schedule JSONB NOT NULL DEFAULT '[]',
	start_date TIMESTAMPTZ,
	time_availability JSONB NOT NULL DEFAULT '{}',
	rate_min DOUBLE PRECISION,
	rate_max DOUBLE PRECISION,
	rate_raw_text TEXT NOT NULL DEFAULT '',
	additional_remarks TEXT,
	tutor_types JSONB NOT NULL DEFAULT '[]',
	rate_breakdown JSONB NOT NULL DEFAULT '[]',
	status TEXT NOT NULL DEFAULT 'pending',
	freshness_tier TEXT NOT NULL DEFAULT '',
	last_seen TIMESTAMPTZ NOT NULL DEFAULT now(),
	bump_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (agency_ref, external_id)
);
CREATE INDEX IF NOT EXISTS idx_assignments_status ON assignments (agency_ref, status);
`)
	if err != nil {
		return fmt.Errorf("persist: init schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByExternalID(ctx context.Context, agencyRef, externalID string) (model.Assignment, bool, error) {
	row := s.pool.QueryRow(ctx, selectColumns+`
FROM assignments WHERE agency_ref = $1 AND external_id = $2
`, agencyRef, externalID)
	a, err := scanAssignment(row)
	if err != nil {
		if isNoRows(err) {
			return model.Assignment{}, false, nil
		}
		return model.Assignment{}, false, fmt.Errorf("persist: find by external id: %w", err)
	}
	return a, true, nil
}

func (s *PostgresStore) Insert(ctx context.Context, a model.Assignment) error {
	addresses, _ := json.Marshal(a.Addresses)
	postal, _ := json.Marshal(a.PostalCodes)
	postalEst, _ := json.Marshal(a.PostalCodesEstimated)
	mrt, _ := json.Marshal(a.NearestMRT)
	schedule, _ := json.Marshal(a.LessonSchedule)
	avail, _ := json.Marshal(a.TimeAvailability)
	tutorTypes, _ := json.Marshal(a.TutorTypes)
	breakdown, _ := json.Marshal(a.RateBreakdown)

	_, err := s.pool.Exec(ctx, `
INSERT INTO assignments (
	agency_ref, external_id, assignment_code, academic_display_text, learning_mode,
	addresses, postal_codes, postal_codes_estimated, nearest_mrt, lesson_schedule,
	start_date, time_availability, rate_min, rate_max, rate_raw_text,
	additional_remarks, tutor_types, rate_breakdown, status, freshness_tier,
	last_seen, bump_count
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22
)
ON CONFLICT (agency_ref, external_id) DO NOTHING
`,
		a.AgencyRef, a.ExternalID, a.AssignmentCode, a.AcademicDisplayText, string(a.LearningMode),
		addresses, postal, postalEst, mrt, schedule,
		a.StartDate, avail, a.Rate.Min, a.Rate.Max, a.Rate.RawText,
		a.AdditionalRemarks, tutorTypes, breakdown, string(a.Status), a.FreshnessTier,
		a.LastSeen, a.BumpCount,
	)
	if err != nil {
		return fmt.Errorf("persist: insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) MergeUpdate(ctx context.Context, a model.Assignment) error {
	addresses, _ := json.Marshal(a.Addresses)
	postal, _ := json.Marshal(a.PostalCodes)
	postalEst, _ := json.Marshal(a.PostalCodesEstimated)
	mrt, _ := json.Marshal(a.NearestMRT)
	schedule, _ := json.Marshal(a.LessonSchedule)
	avail, _ := json.Marshal(a.TimeAvailability)
	tutorTypes, _ := json.Marshal(a.TutorTypes)
	breakdown, _ := json.Marshal(a.RateBreakdown)

	_, err := s.pool.Exec(ctx, `
UPDATE assignments SET
	assignment_code = COALESCE(NULLIF($3, ''), assignment_code),
	academic_display_text = COALESCE(NULLIF($4, ''), academic_display_text),
	learning_mode = COALESCE(NULLIF($5, ''), learning_mode),
	addresses = $6, postal_codes = $7, postal_codes_estimated = $8, nearest_mrt = $9, lesson_schedule = $10,
	start_date = COALESCE($11, start_date),
	time_availability = $12,
	rate_min = COALESCE($13, rate_min),
	rate_max = COALESCE($14, rate_max),
	rate_raw_text = COALESCE(NULLIF($15, ''), rate_raw_text),
	additional_remarks = COALESCE($16, additional_remarks),
	tutor_types = $17, rate_breakdown = $18,
	status = $19, freshness_tier = COALESCE(NULLIF($20, ''), freshness_tier),
	last_seen = $21, bump_count = $22
WHERE agency_ref = $1 AND external_id = $2
`,
		a.AgencyRef, a.ExternalID, a.AssignmentCode, a.AcademicDisplayText, string(a.LearningMode),
		addresses, postal, postalEst, mrt, schedule,
		a.StartDate, avail, a.Rate.Min, a.Rate.Max, a.Rate.RawText,
		a.AdditionalRemarks, tutorTypes, breakdown, string(a.Status), a.FreshnessTier,
		a.LastSeen, a.BumpCount,
	)
	if err != nil {
		return fmt.Errorf("persist: merge update: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, agencyRef, externalID string, status model.Status) error {
	_, err := s.pool.Exec(ctx, `
UPDATE assignments SET status = $3 WHERE agency_ref = $1 AND external_id = $2
`, agencyRef, externalID, string(status))
	if err != nil {
		return fmt.Errorf("persist: update status: %w", err)
	}
	return nil
}

const selectColumns = `
SELECT agency_ref, external_id, assignment_code, academic_display_text, learning_mode,
	addresses, postal_codes, postal_codes_estimated, nearest_mrt, lesson_schedule,
	start_date, time_availability, rate_min, rate_max, rate_raw_text,
	additional_remarks, tutor_types, rate_breakdown, status, freshness_tier,
	last_seen, bump_count
`

type scanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row scanner) (model.Assignment, error) {
	var a model.Assignment
	var learningMode, status string
	var addresses, postal, postalEst, mrt, schedule, avail, tutorTypes, breakdown []byte
	var startDate *time.Time

	err := row.Scan(
		&a.AgencyRef, &a.ExternalID, &a.AssignmentCode, &a.AcademicDisplayText, &learningMode,
		&addresses, &postal, &postalEst, &mrt, &schedule,
		&startDate, &avail, &a.Rate.Min, &a.Rate.Max, &a.Rate.RawText,
		&a.AdditionalRemarks, &tutorTypes, &breakdown, &status, &a.FreshnessTier,
		&a.LastSeen, &a.BumpCount,
	)
	if err != nil {
		return a, err
	}

	a.LearningMode = model.LearningMode(learningMode)
	a.Status = model.Status(status)
	a.StartDate = startDate
	_ = json.Unmarshal(addresses, &a.Addresses)
	_ = json.Unmarshal(postal, &a.PostalCodes)
	_ = json.Unmarshal(postalEst, &a.PostalCodesEstimated)
	_ = json.Unmarshal(mrt, &a.NearestMRT)
	_ = json.Unmarshal(schedule, &a.LessonSchedule)
	_ = json.Unmarshal(tutorTypes, &a.TutorTypes)
	_ = json.Unmarshal(breakdown, &a.RateBreakdown)
	if len(avail) > 0 {
		_ = json.Unmarshal(avail, &a.TimeAvailability)
	}
	return a, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
