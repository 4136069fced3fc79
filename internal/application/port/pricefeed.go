package port

import (
	"context"
	"time"

	"coinfeed/internal/domain"
)

// Update is one decoded streaming message.
type Update struct {
	Type       string // "ticker"
	Quote      domain.PriceQuote
	ReceivedAt int64 // unix ms
}

// Decoder turns a raw streaming payload into an Update.
type Decoder interface {
	Decode(raw []byte) (Update, error)
}

// MessageHandler consumes one raw payload. A returned error is reported to
// the feed's error sink; the connection stays open.
type MessageHandler func(raw []byte) error

// FeedState is the lifecycle state of a streaming connection.
type FeedState int

const (
	StateDisconnected FeedState = iota
	StateConnecting
	StateOpen
	StateClosedPendingRetry
	StateClosedExhausted
)

func (s FeedState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosedPendingRetry:
		return "closed_pending_retry"
	case StateClosedExhausted:
		return "closed_exhausted"
	default:
		return "unknown"
	}
}

type FeedEventKind int

const (
	EventConnecting FeedEventKind = iota + 1
	EventOpen
	EventSubscribed
	EventSubscribeFailed
	EventError
	EventClosed
	EventRetryScheduled
	EventRetriesExhausted
	EventDisconnected
)

func (k FeedEventKind) String() string {
	switch k {
	case EventConnecting:
		return "connecting"
	case EventOpen:
		return "open"
	case EventSubscribed:
		return "subscribed"
	case EventSubscribeFailed:
		return "subscribe_failed"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	case EventRetryScheduled:
		return "retry_scheduled"
	case EventRetriesExhausted:
		return "retries_exhausted"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// FeedEvent is emitted on every lifecycle transition.
type FeedEvent struct {
	Kind    FeedEventKind
	State   FeedState
	Attempt int           // retry number for EventRetryScheduled
	Delay   time.Duration // scheduled delay for EventRetryScheduled
	Codes   int           // subscribed codes for EventSubscribed
	Err     error
}

// PriceFeed is a managed streaming connection.
type PriceFeed interface {
	Open(ctx context.Context, handle MessageHandler) error
	Send(msg []byte) error
	Close() error
	State() FeedState
	Events() <-chan FeedEvent
}

// CodeLister yields the market codes to subscribe to when a connection opens.
type CodeLister interface {
	TradableCodes(ctx context.Context) ([]domain.MarketKey, error)
}
