package source

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/tutordex/core/internal/observability"
	"github.com/tutordex/core/internal/retry"
)

// GotdClient is the production source.Client, backed by an authenticated
// gotd/td MTProto session. Dispatch shape (dispatcher -> typed handlers)
// and flood-wait handling follow the reference userbot's
// UpdateNewChannelMessage/UpdateEditChannelMessage/UpdateDeleteChannelMessages
// wiring.
type GotdClient struct {
	client     *telegram.Client
	api        *tg.Client
	dispatcher tg.UpdateDispatcher
	maxWait    time.Duration
}

// GotdConfig carries the auth material needed to open a session.
type GotdConfig struct {
	AppID          int
	AppHash        string
	SessionStorage session.Storage
	MaxFloodWait   time.Duration
}

// NewGotdClient constructs a client around a fresh dispatcher; Run must be
// called before ResolveChannel/Backfill/Subscribe can be used.
func NewGotdClient(cfg GotdConfig) *GotdClient {
	dispatcher := tg.NewUpdateDispatcher()
	maxWait := cfg.MaxFloodWait
	if maxWait <= 0 {
		maxWait = 5 * time.Minute
	}
	client := telegram.NewClient(cfg.AppID, cfg.AppHash, telegram.Options{
		SessionStorage: cfg.SessionStorage,
		UpdateHandler:  dispatcher,
	})
	return &GotdClient{
		client:     client,
		api:        client.API(),
		dispatcher: dispatcher,
		maxWait:    maxWait,
	}
}

// Run opens the underlying connection and blocks until ctx is cancelled,
// invoking ready once the connection is authenticated. Callers run this in
// its own goroutine and use ResolveChannel/Backfill/Subscribe concurrently.
func (c *GotdClient) Run(ctx context.Context, ready func(ctx context.Context) error) error {
	return c.client.Run(ctx, func(ctx context.Context) error {
		if ready != nil {
			return ready(ctx)
		}
		return nil
	})
}

func (c *GotdClient) Close() error {
	return nil
}

// withFloodWait retries fn, honoring a server-specified FLOOD_WAIT duration
// with a small jitter, capped at maxWait. Non-flood errors are returned
// immediately.
func (c *GotdClient) withFloodWait(ctx context.Context, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		wait, ok := tgerr.AsFloodWait(err)
		if !ok {
			return err
		}
		wait = retry.ServerHinted(wait, c.maxWait)
		observability.LoggerWithTrace(ctx).Warn().
			Dur("wait", wait).Int("attempt", attempt).Msg("source: flood wait")
		if err := retry.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (c *GotdClient) ResolveChannel(ctx context.Context, channelRef string) (ChannelInfo, error) {
	var info ChannelInfo
	err := c.withFloodWait(ctx, func() error {
		resolved, err := c.client.API().ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: channelRef})
		if err != nil {
			return fmt.Errorf("source: resolve %q: %w", channelRef, err)
		}
		for _, ch := range resolved.Chats {
			if full, ok := ch.(*tg.Channel); ok {
				info = ChannelInfo{ChannelRef: channelRef, NumericID: full.ID, DisplayTitle: full.Title}
				return nil
			}
		}
		return fmt.Errorf("source: %q did not resolve to a channel", channelRef)
	})
	return info, err
}

// Backfill is implemented in backfill.go to keep this file focused on
// session/dispatch plumbing.

func (c *GotdClient) Subscribe(ctx context.Context, channelRefs []string, handler Handler) error {
	wanted := make(map[string]bool, len(channelRefs))
	for _, r := range channelRefs {
		wanted[r] = true
	}

	c.dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		msg, ok := u.Message.(*tg.Message)
		if !ok {
			return nil
		}
		ref := channelRefFromPeer(e, msg.PeerID)
		if ref == "" || (len(wanted) > 0 && !wanted[ref]) {
			return nil
		}
		update := Update{Kind: UpdateNew, ChannelRef: ref, Message: toRawUpdate(msg)}
		if err := handler(ctx, update); err != nil {
			observability.LoggerWithTrace(ctx).Warn().Err(err).Str("channel", ref).Msg("source: new-message handler failed")
		}
		return nil
	})

	c.dispatcher.OnEditChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateEditChannelMessage) error {
		msg, ok := u.Message.(*tg.Message)
		if !ok {
			return nil
		}
		ref := channelRefFromPeer(e, msg.PeerID)
		if ref == "" || (len(wanted) > 0 && !wanted[ref]) {
			return nil
		}
		update := Update{Kind: UpdateEdit, ChannelRef: ref, Message: toRawUpdate(msg)}
		if err := handler(ctx, update); err != nil {
			observability.LoggerWithTrace(ctx).Warn().Err(err).Str("channel", ref).Msg("source: edit-message handler failed")
		}
		return nil
	})

	c.dispatcher.OnDeleteChannelMessages(func(ctx context.Context, e tg.Entities, u *tg.UpdateDeleteChannelMessages) error {
		ref := channelRefFromChannelID(e, u.ChannelID)
		if ref == "" || (len(wanted) > 0 && !wanted[ref]) {
			return nil
		}
		ids := make([]string, 0, len(u.Messages))
		for _, id := range u.Messages {
			ids = append(ids, fmt.Sprintf("%d", id))
		}
		update := Update{Kind: UpdateDelete, ChannelRef: ref, DeletedIDs: ids}
		if err := handler(ctx, update); err != nil {
			observability.LoggerWithTrace(ctx).Warn().Err(err).Str("channel", ref).Msg("source: delete handler failed")
		}
		return nil
	})

	<-ctx.Done()
	return ctx.Err()
}

func channelRefFromPeer(e tg.Entities, peer tg.PeerClass) string {
	channelPeer, ok := peer.(*tg.PeerChannel)
	if !ok {
		return ""
	}
	return channelRefFromChannelID(e, channelPeer.ChannelID)
}

func channelRefFromChannelID(e tg.Entities, channelID int64) string {
	ch, ok := e.Channels[channelID]
	if !ok {
		return ""
	}
	if ch.Username != "" {
		return ch.Username
	}
	return fmt.Sprintf("%d", ch.ID)
}

func toRawUpdate(msg *tg.Message) RawUpdate {
	var editDate *time.Time
	if msg.EditDate != 0 {
		t := time.Unix(int64(msg.EditDate), 0).UTC()
		editDate = &t
	}
	replyTo := ""
	isReply := false
	if reply, ok := msg.GetReplyTo(); ok {
		if h, ok := reply.(*tg.MessageReplyHeader); ok {
			replyTo = fmt.Sprintf("%d", h.ReplyToMsgID)
			isReply = true
		}
	}
	source, err := json.Marshal(msg)
	if err != nil {
		source = []byte(`{}`)
	}
	return RawUpdate{
		MessageID:    fmt.Sprintf("%d", msg.ID),
		MessageDate:  time.Unix(int64(msg.Date), 0).UTC(),
		EditDate:     editDate,
		IsForward:    !msg.Out && msg.FwdFrom != nil,
		IsReply:      isReply,
		ReplyToMsgID: replyTo,
		Text:         msg.Message,
		SenderID:     peerID(msg.FromID),
		ViewCount:    int64(msg.Views),
		ForwardCount: int64(msg.Forwards),
		SourceObject: source,
	}
}

func peerID(p tg.PeerClass) int64 {
	switch v := p.(type) {
	case *tg.PeerUser:
		return v.UserID
	case *tg.PeerChat:
		return v.ChatID
	case *tg.PeerChannel:
		return v.ChannelID
	default:
		return 0
	}
}
