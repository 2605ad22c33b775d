// Package source abstracts the Telegram-adjacent channel client the
// Collector reads from: backfill iteration, live update subscription, and
// channel metadata resolution (spec §4.3). A real implementation wraps
// gotd/td's MTProto client; fakesource backs tests with an in-memory set of
// channels and messages instead of touching the network.
package source

import (
	"context"
	"time"
)

// Update is one live event handed to a Subscriber.
type Update struct {
	Kind       UpdateKind
	ChannelRef string
	Message    RawUpdate
	DeletedIDs []string // populated only for UpdateDelete
}

type UpdateKind int

const (
	UpdateNew UpdateKind = iota
	UpdateEdit
	UpdateDelete
)

// RawUpdate is the subset of a source message the Collector needs to build
// a model.RawMessage; it mirrors the fields gotd/td's tg.Message exposes.
type RawUpdate struct {
	MessageID    string
	MessageDate  time.Time
	EditDate     *time.Time
	IsForward    bool
	IsReply      bool
	ReplyToMsgID string
	Text         string
	Entities     []byte
	SenderID     int64
	ViewCount    int64
	ForwardCount int64
	ReplyCount   int64
	SourceObject []byte
}

// ChannelInfo is resolved channel metadata.
type ChannelInfo struct {
	ChannelRef   string
	NumericID    int64
	DisplayTitle string
}

// Handler receives live updates. Implementations must be fail-soft: a
// returned error is logged and counted but never aborts the subscription.
type Handler func(ctx context.Context, u Update) error

// Client is the Collector's source-channel abstraction.
type Client interface {
	// ResolveChannel returns metadata for a channel reference, resolving
	// usernames/invite links to a stable numeric id as needed.
	ResolveChannel(ctx context.Context, channelRef string) (ChannelInfo, error)

	// Backfill iterates a channel's history newest-to-oldest within
	// [since, until], invoking yield per batch (size clamped by the
	// caller). Iteration stops when since is crossed, the channel's history
	// runs out, or yield returns an error; no message cap is applied at this
	// level.
	Backfill(ctx context.Context, channelRef string, since, until time.Time, batchSize int, yield func(batch []RawUpdate) error) error

	// Subscribe registers handler for live new/edit/delete events on the
	// given channels and blocks until ctx is cancelled or an
	// unrecoverable transport error occurs.
	Subscribe(ctx context.Context, channelRefs []string, handler Handler) error

	// Close releases any underlying session/connection.
	Close() error
}
