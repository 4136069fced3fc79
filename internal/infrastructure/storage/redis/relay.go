package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"coinfeed/internal/application/port"
	"coinfeed/internal/domain"
	"coinfeed/internal/infrastructure/eventbus"
	"coinfeed/internal/infrastructure/metrics"
)

var (
	ErrRelayBacklog = errors.New("redis relay queue full")
	ErrRelayClosed  = errors.New("redis relay closed")
)

const writeTimeout = 2 * time.Second

// Relay mirrors bus quotes into Redis for consumers outside the process:
//
//	HSET  <prefix>:latest <market> <json>   (expires after ttl)
//	PUBLISH <prefix>:<topic> <json>
//	XADD  <stream> MAXLEN ~ <n> ...         (when a stream is configured)
//
// RelayQuote only enqueues; a single worker goroutine does the round trips so
// a slow server never stalls the caller.
type Relay struct {
	rdb       redis.UniversalClient
	prefix    string
	ttl       time.Duration
	keyLatest string
	stream    string
	streamMax int64

	send   func(ctx context.Context, q domain.PriceQuote) error
	queue  chan domain.PriceQuote
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

type Options struct {
	Prefix    string
	TTL       time.Duration
	Stream    string
	StreamMax int64
	Buffer    int
}

// writer is the subset of redis.Pipeliner the relay writes through.
type writer interface {
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

type reader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func New(rdb redis.UniversalClient, opts Options) *Relay {
	return newRelay(rdb, opts, nil)
}

func newRelay(rdb redis.UniversalClient, opts Options, send func(context.Context, domain.PriceQuote) error) *Relay {
	prefix := strings.TrimSpace(opts.Prefix)
	if prefix == "" {
		prefix = "coinfeed"
	}
	if opts.StreamMax <= 0 {
		opts.StreamMax = 10000
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 1024
	}
	r := &Relay{
		rdb:       rdb,
		prefix:    prefix,
		ttl:       opts.TTL,
		keyLatest: prefix + ":latest",
		stream:    strings.TrimSpace(opts.Stream),
		streamMax: opts.StreamMax,
		queue:     make(chan domain.PriceQuote, opts.Buffer),
		done:      make(chan struct{}),
	}
	r.send = send
	if r.send == nil {
		r.send = r.flush
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	go r.run()
	return r
}

// Channel is the pub/sub channel quotes for key are published on.
func (r *Relay) Channel(key domain.MarketKey) string {
	return r.prefix + ":" + eventbus.Topic(key)
}

// RelayQuote queues q for the worker. It never blocks: a full queue drops the
// quote and returns ErrRelayBacklog.
func (r *Relay) RelayQuote(ctx context.Context, q domain.PriceQuote) error {
	if r.ctx.Err() != nil {
		return ErrRelayClosed
	}
	select {
	case r.queue <- q:
		return nil
	default:
		metrics.RelayDropped.Inc()
		return ErrRelayBacklog
	}
}

func (r *Relay) run() {
	defer close(r.done)
	for {
		select {
		case <-r.ctx.Done():
			return
		case q := <-r.queue:
			ctx, cancel := context.WithTimeout(r.ctx, writeTimeout)
			err := r.send(ctx, q)
			cancel()
			if err != nil {
				log.Warn().Err(err).Str("market", string(q.Market)).Msg("redis relay write failed")
			}
		}
	}
}

// flush writes one quote in a single pipeline.
func (r *Relay) flush(ctx context.Context, q domain.PriceQuote) error {
	_, err := r.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		return r.write(ctx, p, q)
	})
	if err != nil {
		metrics.RelayErrors.Inc()
	}
	return err
}

func (r *Relay) write(ctx context.Context, w writer, q domain.PriceQuote) error {
	if q.Market == "" || q.TradePrice.IsZero() {
		return nil
	}
	b, err := json.Marshal(q)
	if err != nil {
		return err
	}

	w.HSet(ctx, r.keyLatest, string(q.Market), string(b))
	if r.ttl > 0 {
		w.Expire(ctx, r.keyLatest, r.ttl)
	}
	w.Publish(ctx, r.Channel(q.Market), string(b))
	if r.stream != "" {
		w.XAdd(ctx, &redis.XAddArgs{
			Stream: r.stream,
			MaxLen: r.streamMax,
			Approx: true,
			Values: map[string]any{
				"market":  string(q.Market),
				"payload": string(b),
			},
		})
	}
	return nil
}

// Latest reads the last relayed quote of every market.
func (r *Relay) Latest(ctx context.Context) (map[domain.MarketKey]domain.PriceQuote, error) {
	return r.latest(ctx, r.rdb)
}

func (r *Relay) latest(ctx context.Context, rd reader) (map[domain.MarketKey]domain.PriceQuote, error) {
	raw, err := rd.HGetAll(ctx, r.keyLatest).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[domain.MarketKey]domain.PriceQuote, len(raw))
	for market, payload := range raw {
		var q domain.PriceQuote
		if err := json.Unmarshal([]byte(payload), &q); err != nil {
			log.Debug().Err(err).Str("market", market).Msg("skipping unreadable latest quote")
			continue
		}
		out[domain.MarketKey(market)] = q
	}
	return out, nil
}

// Close stops the worker, dropping queued quotes, and closes the client.
func (r *Relay) Close() error {
	var err error
	r.once.Do(func() {
		r.cancel()
		<-r.done
		if r.rdb != nil {
			err = r.rdb.Close()
		}
	})
	return err
}

var _ port.QuoteRelay = (*Relay)(nil)
