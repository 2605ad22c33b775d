package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tutordex/core/internal/model"
)

// fakeRow is a minimal scanner over a fixed column set, used to exercise
// scanJob without a live database.
type fakeRow struct {
	cols []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.cols) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		switch v := d.(type) {
		case *string:
			*v = r.cols[i].(string)
		case *int64:
			*v = r.cols[i].(int64)
		case *model.ExtractionStatus:
			*v = r.cols[i].(model.ExtractionStatus)
		case *[]byte:
			if r.cols[i] == nil {
				*v = nil
			} else {
				*v = r.cols[i].([]byte)
			}
		case *time.Time:
			*v = r.cols[i].(time.Time)
		default:
			return errors.New("unsupported dest type in fakeRow")
		}
	}
	return nil
}

func TestScanJob_UnmarshalsMeta(t *testing.T) {
	now := time.Now()
	row := fakeRow{cols: []any{
		"v1", int64(42), "c1", "m1", model.ExtractionOK,
		[]byte(`{"attempt":2,"filter_reason":"none"}`),
		[]byte(`{"foo":"bar"}`),
		"gpt-4",
		[]byte(nil),
		now, now,
	}}

	job, err := scanJob(row)
	require.NoError(t, err)
	require.Equal(t, "v1", job.PipelineVersion)
	require.Equal(t, int64(42), job.RawID)
	require.Equal(t, model.ExtractionOK, job.Status)
	require.Equal(t, 2, job.Meta.Attempt)
	require.Equal(t, "none", job.Meta.FilterReason)
	require.Equal(t, []byte(`{"foo":"bar"}`), job.CanonicalJSON)
	require.Nil(t, job.ErrorJSON)
}

func TestScanJob_PropagatesScanError(t *testing.T) {
	_, err := scanJob(fakeRow{err: errors.New("boom")})
	require.Error(t, err)
}

func TestNullableJSON(t *testing.T) {
	require.Nil(t, nullableJSON(nil))
	require.Nil(t, nullableJSON([]byte{}))
	require.Equal(t, []byte(`{"a":1}`), nullableJSON([]byte(`{"a":1}`)))
}
