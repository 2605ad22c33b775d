// Package fakesource implements source.Client by replaying rows already
// written to the Raw Store, never touching the network. It backs unit
// tests (spec §4.3).
package fakesource

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tutordex/core/internal/model"
	"github.com/tutordex/core/internal/source"
)

// Client is an in-memory, deterministic source.Client.
type Client struct {
	channels map[string]source.ChannelInfo
	messages map[string][]model.RawMessage // channelRef -> messages, any order
}

// New builds a Client seeded with channel metadata and raw messages, as
// would be read back from the Raw Store.
func New(channels []source.ChannelInfo, messages []model.RawMessage) *Client {
	c := &Client{
		channels: make(map[string]source.ChannelInfo, len(channels)),
		messages: make(map[string][]model.RawMessage),
	}
	for _, ch := range channels {
		c.channels[ch.ChannelRef] = ch
	}
	for _, m := range messages {
		c.messages[m.ChannelRef] = append(c.messages[m.ChannelRef], m)
	}
	return c
}

func (c *Client) ResolveChannel(ctx context.Context, channelRef string) (source.ChannelInfo, error) {
	if info, ok := c.channels[channelRef]; ok {
		return info, nil
	}
	return source.ChannelInfo{}, fmt.Errorf("fakesource: unknown channel %q", channelRef)
}

func (c *Client) Backfill(ctx context.Context, channelRef string, since, until time.Time, batchSize int, yield func(batch []source.RawUpdate) error) error {
	rows := append([]model.RawMessage(nil), c.messages[channelRef]...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].MessageDate.After(rows[j].MessageDate) })

	if batchSize < 20 {
		batchSize = 20
	}
	if batchSize > 1000 {
		batchSize = 1000
	}

	var batch []source.RawUpdate
	for _, m := range rows {
		if m.MessageDate.After(until) {
			continue
		}
		if m.MessageDate.Before(since) {
			break
		}
		batch = append(batch, toRawUpdate(m))
		if len(batch) >= batchSize {
			if err := yield(batch); err != nil {
				return err
			}
			batch = nil
		}
	}
	if len(batch) > 0 {
		return yield(batch)
	}
	return nil
}

// Subscribe never produces live events; it blocks until ctx is cancelled
// and returns ctx.Err().
func (c *Client) Subscribe(ctx context.Context, channelRefs []string, handler source.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (c *Client) Close() error { return nil }

func toRawUpdate(m model.RawMessage) source.RawUpdate {
	return source.RawUpdate{
		MessageID:    m.MessageID,
		MessageDate:  m.MessageDate,
		EditDate:     m.EditDate,
		IsForward:    m.IsForward,
		IsReply:      m.IsReply,
		ReplyToMsgID: m.ReplyToMsgID,
		Text:         m.Text,
		Entities:     m.Entities,
		SenderID:     m.SenderID,
		ViewCount:    m.ViewCount,
		ForwardCount: m.ForwardCount,
		ReplyCount:   m.ReplyCount,
		SourceObject: m.SourceObject,
	}
}
