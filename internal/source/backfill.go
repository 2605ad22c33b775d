package source

import (
	"context"
	"fmt"
	"time"

	"github.com/gotd/td/tg"
)

// Backfill walks a channel's history newest-to-oldest via
// messages.getHistory, paging with offset_id until since is crossed or the
// channel's start is reached.
func (c *GotdClient) Backfill(ctx context.Context, channelRef string, since, until time.Time, batchSize int, yield func(batch []RawUpdate) error) error {
	if batchSize < 20 {
		batchSize = 20
	}
	if batchSize > 1000 {
		batchSize = 1000
	}

	info, err := c.ResolveChannel(ctx, channelRef)
	if err != nil {
		return err
	}
	inputChannel := &tg.InputPeerChannel{ChannelID: info.NumericID}

	var offsetID int
	for {
		var history tg.MessagesMessagesClass
		err := c.withFloodWait(ctx, func() error {
			var err error
			history, err = c.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
				Peer:     inputChannel,
				OffsetID: offsetID,
				Limit:    batchSize,
			})
			return err
		})
		if err != nil {
			return fmt.Errorf("source: backfill getHistory %q: %w", channelRef, err)
		}

		var rawMessages []tg.MessageClass
		switch h := history.(type) {
		case *tg.MessagesMessages:
			rawMessages = h.Messages
		case *tg.MessagesMessagesSlice:
			rawMessages = h.Messages
		case *tg.MessagesChannelMessages:
			rawMessages = h.Messages
		default:
			return fmt.Errorf("source: backfill %q: unexpected history type %T", channelRef, history)
		}
		if len(rawMessages) == 0 {
			return nil
		}

		batch := make([]RawUpdate, 0, len(rawMessages))
		oldestInBatch := until
		for _, m := range rawMessages {
			msg, ok := m.(*tg.Message)
			if !ok {
				continue
			}
			msgDate := time.Unix(int64(msg.Date), 0).UTC()
			offsetID = msg.ID
			if msgDate.After(until) {
				continue
			}
			if msgDate.Before(since) {
				if len(batch) > 0 {
					if err := yield(batch); err != nil {
						return err
					}
				}
				return nil
			}
			batch = append(batch, toRawUpdate(msg))
			oldestInBatch = msgDate
		}

		if len(batch) > 0 {
			if err := yield(batch); err != nil {
				return err
			}
		}
		if oldestInBatch.Before(since) || len(rawMessages) < batchSize {
			return nil
		}
	}
}
