package eventbus

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"coinfeed/internal/application/port"
	"coinfeed/internal/domain"
	"coinfeed/internal/infrastructure/metrics"
)

// TopicPrefix is the event name shared by producers and row consumers.
const TopicPrefix = "coinPriceUpdated"

// Topic returns the per-instrument topic, "<prefix>-<base>-<quote>".
func Topic(key domain.MarketKey) string {
	return TopicFor(key.Base(), key.Quote())
}

// TopicFor builds the topic from the base symbol and quote currency.
func TopicFor(base, quote string) string {
	return TopicPrefix + "-" + base + "-" + quote
}

// Handler receives one payload. A returned error is logged and counted;
// it never stops delivery to the remaining handlers.
type Handler[T any] func(payload T) error

// Subscription is the registration token returned by Subscribe.
type Subscription[T any] struct {
	id      uint64
	topic   string
	handler Handler[T]
	bus     *Bus[T]
}

func (s *Subscription[T]) Topic() string { return s.topic }

// Unsubscribe removes the subscription from its bus. Calling it twice is a no-op.
func (s *Subscription[T]) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.Unsubscribe(s.topic, s)
}

// Bus is an in-process publish/subscribe registry keyed by topic.
//
// Handler lists are copy-on-write: Publish works on the slice it read under
// the lock, so handlers may subscribe or unsubscribe while a publish is in
// progress. Delivery within one topic follows registration order.
type Bus[T any] struct {
	mu     sync.RWMutex
	topics map[string][]*Subscription[T]
	nextID atomic.Uint64
}

func New[T any]() *Bus[T] {
	return &Bus[T]{topics: make(map[string][]*Subscription[T])}
}

// Subscribe registers h on topic and returns its token.
func (b *Bus[T]) Subscribe(topic string, h Handler[T]) *Subscription[T] {
	sub := &Subscription[T]{
		id:      b.nextID.Add(1),
		topic:   topic,
		handler: h,
		bus:     b,
	}

	b.mu.Lock()
	cur := b.topics[topic]
	next := make([]*Subscription[T], len(cur), len(cur)+1)
	copy(next, cur)
	b.topics[topic] = append(next, sub)
	b.mu.Unlock()

	log.Debug().Str("topic", topic).Uint64("sub", sub.id).Msg("bus subscribe")
	return sub
}

// Unsubscribe removes sub from topic. Unknown subscriptions are ignored.
func (b *Bus[T]) Unsubscribe(topic string, sub *Subscription[T]) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	cur := b.topics[topic]
	idx := -1
	for i, s := range cur {
		if s.id == sub.id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	if len(cur) == 1 {
		delete(b.topics, topic)
		return
	}
	next := make([]*Subscription[T], 0, len(cur)-1)
	next = append(next, cur[:idx]...)
	next = append(next, cur[idx+1:]...)
	b.topics[topic] = next
}

// Publish delivers payload to every handler currently subscribed to topic
// and returns how many of them succeeded.
func (b *Bus[T]) Publish(topic string, payload T) int {
	b.mu.RLock()
	subs := b.topics[topic]
	b.mu.RUnlock()

	delivered := 0
	for _, sub := range subs {
		if err := deliver(sub.handler, payload); err != nil {
			metrics.BusHandlerFailures.Inc()
			log.Error().Err(err).Str("topic", topic).Uint64("sub", sub.id).Msg("bus handler failed")
			continue
		}
		delivered++
	}
	if delivered > 0 {
		metrics.BusDeliveries.Add(float64(delivered))
	}
	return delivered
}

// HandlerCount returns the number of handlers on topic.
func (b *Bus[T]) HandlerCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Topics lists topics with at least one handler.
func (b *Bus[T]) Topics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.topics))
	for t := range b.topics {
		out = append(out, t)
	}
	return out
}

func deliver[T any](h Handler[T], payload T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(payload)
}

// QuoteBus adapts a quote bus to port.QuoteBus, routing by instrument topic.
type QuoteBus struct {
	bus *Bus[domain.PriceQuote]
}

func NewQuoteBus(b *Bus[domain.PriceQuote]) *QuoteBus {
	return &QuoteBus{bus: b}
}

func (q *QuoteBus) PublishQuote(quote domain.PriceQuote) int {
	return q.bus.Publish(Topic(quote.Market), quote)
}

func (q *QuoteBus) SubscribeMarket(key domain.MarketKey, h func(domain.PriceQuote) error) func() {
	return q.bus.Subscribe(Topic(key), h).Unsubscribe
}

var _ port.QuoteBus = (*QuoteBus)(nil)
