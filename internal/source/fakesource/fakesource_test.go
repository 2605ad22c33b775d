package fakesource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tutordex/core/internal/model"
	"github.com/tutordex/core/internal/source"
)

func TestBackfill_OrdersNewestFirstAndStopsAtSince(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []model.RawMessage{
		{ChannelRef: "c1", MessageID: "1", MessageDate: base.Add(-3 * time.Hour), Text: "oldest"},
		{ChannelRef: "c1", MessageID: "2", MessageDate: base.Add(-1 * time.Hour), Text: "newest"},
		{ChannelRef: "c1", MessageID: "3", MessageDate: base.Add(-2 * time.Hour), Text: "middle"},
	}
	client := New([]source.ChannelInfo{{ChannelRef: "c1", NumericID: 1}}, rows)

	var seen []string
	err := client.Backfill(context.Background(), "c1", base.Add(-150*time.Minute), base, 100, func(batch []source.RawUpdate) error {
		for _, u := range batch {
			seen = append(seen, u.MessageID)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"2", "3"}, seen) // "1" is older than since, excluded
}

func TestResolveChannel_UnknownErrors(t *testing.T) {
	client := New(nil, nil)
	_, err := client.ResolveChannel(context.Background(), "nope")
	require.Error(t, err)
}

func TestSubscribe_BlocksUntilCancelled(t *testing.T) {
	client := New(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := client.Subscribe(ctx, nil, func(ctx context.Context, u source.Update) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}
