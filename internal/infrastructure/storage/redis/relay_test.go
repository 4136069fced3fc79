package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"coinfeed/internal/domain"
)

type call struct {
	op   string
	key  string
	args []any
}

type fakeWriter struct {
	calls []call
}

func (f *fakeWriter) HSet(ctx context.Context, key string, values ...any) *redis.IntCmd {
	f.calls = append(f.calls, call{op: "hset", key: key, args: values})
	return redis.NewIntCmd(ctx)
}

func (f *fakeWriter) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.calls = append(f.calls, call{op: "expire", key: key, args: []any{expiration}})
	return redis.NewBoolCmd(ctx)
}

func (f *fakeWriter) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	f.calls = append(f.calls, call{op: "publish", key: channel, args: []any{message}})
	return redis.NewIntCmd(ctx)
}

func (f *fakeWriter) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.calls = append(f.calls, call{op: "xadd", key: a.Stream, args: []any{a.Values}})
	return redis.NewStringCmd(ctx)
}

func btcQuote() domain.PriceQuote {
	return domain.PriceQuote{
		Market:           "KRW-BTC",
		TradePrice:       decimal.NewFromInt(95000000),
		SignedChangeRate: decimal.RequireFromString("0.0105"),
		Timestamp:        1700000000000,
	}
}

func TestRelayWrite(t *testing.T) {
	r := New(nil, Options{Prefix: "feed", TTL: time.Minute, Stream: "feed:quotes"})
	defer r.Close()
	w := &fakeWriter{}

	if err := r.write(context.Background(), w, btcQuote()); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if len(w.calls) != 4 {
		t.Fatalf("calls = %+v, want hset, expire, publish, xadd", w.calls)
	}
	hset := w.calls[0]
	if hset.op != "hset" || hset.key != "feed:latest" || hset.args[0] != "KRW-BTC" {
		t.Errorf("hset = %+v", hset)
	}
	var stored domain.PriceQuote
	if err := json.Unmarshal([]byte(hset.args[1].(string)), &stored); err != nil {
		t.Fatalf("stored payload: %v", err)
	}
	if stored.Market != "KRW-BTC" || !stored.TradePrice.Equal(decimal.NewFromInt(95000000)) {
		t.Errorf("stored = %+v", stored)
	}
	if w.calls[1].op != "expire" || w.calls[1].args[0] != time.Minute {
		t.Errorf("expire = %+v", w.calls[1])
	}
	if w.calls[2].op != "publish" || w.calls[2].key != "feed:coinPriceUpdated-BTC-KRW" {
		t.Errorf("publish = %+v", w.calls[2])
	}
	if w.calls[3].op != "xadd" || w.calls[3].key != "feed:quotes" {
		t.Errorf("xadd = %+v", w.calls[3])
	}
}

func TestRelayWriteMinimal(t *testing.T) {
	r := New(nil, Options{})
	defer r.Close()
	w := &fakeWriter{}
	if err := r.write(context.Background(), w, btcQuote()); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if len(w.calls) != 2 || w.calls[0].key != "coinfeed:latest" || w.calls[1].op != "publish" {
		t.Errorf("calls = %+v, want hset and publish only", w.calls)
	}
}

func TestRelaySkipsEmptyQuotes(t *testing.T) {
	r := New(nil, Options{})
	defer r.Close()
	w := &fakeWriter{}
	_ = r.write(context.Background(), w, domain.PriceQuote{Market: "KRW-BTC"})
	_ = r.write(context.Background(), w, domain.PriceQuote{TradePrice: decimal.NewFromInt(1)})
	if len(w.calls) != 0 {
		t.Errorf("calls = %+v, want none", w.calls)
	}
}

func TestRelayFlushReportsConnectionErrors(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	r := New(rdb, Options{})
	defer r.Close()

	if err := r.flush(context.Background(), btcQuote()); err == nil {
		t.Fatal("expected an error from an unreachable server")
	}
	// the caller side only enqueues
	if err := r.RelayQuote(context.Background(), btcQuote()); err != nil {
		t.Errorf("RelayQuote = %v, want nil", err)
	}
}

func TestRelayQuoteDoesNotBlockOnSlowServer(t *testing.T) {
	started := make(chan domain.PriceQuote, 1)
	release := make(chan struct{})
	send := func(ctx context.Context, q domain.PriceQuote) error {
		started <- q
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}
	r := newRelay(nil, Options{Buffer: 1}, send)
	defer r.Close()
	ctx := context.Background()

	if err := r.RelayQuote(ctx, btcQuote()); err != nil {
		t.Fatalf("first quote: %v", err)
	}
	<-started

	if err := r.RelayQuote(ctx, btcQuote()); err != nil {
		t.Fatalf("queued quote: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- r.RelayQuote(ctx, btcQuote()) }()
	select {
	case err := <-done:
		if !errors.Is(err, ErrRelayBacklog) {
			t.Errorf("err = %v, want ErrRelayBacklog", err)
		}
	case <-time.After(time.Second):
		t.Fatal("RelayQuote blocked behind a slow write")
	}
	close(release)
}

func TestRelayQuoteAfterClose(t *testing.T) {
	r := New(nil, Options{})
	_ = r.Close()
	if err := r.RelayQuote(context.Background(), btcQuote()); !errors.Is(err, ErrRelayClosed) {
		t.Errorf("err = %v, want ErrRelayClosed", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

type fakeReader struct {
	key  string
	vals map[string]string
}

func (f *fakeReader) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	f.key = key
	return redis.NewMapStringStringResult(f.vals, nil)
}

func TestRelayLatest(t *testing.T) {
	r := New(nil, Options{Prefix: "feed"})
	defer r.Close()

	b, _ := json.Marshal(btcQuote())
	rd := &fakeReader{vals: map[string]string{
		"KRW-BTC": string(b),
		"KRW-ETH": "not json",
	}}

	got, err := r.latest(context.Background(), rd)
	if err != nil {
		t.Fatalf("latest failed: %v", err)
	}
	if rd.key != "feed:latest" {
		t.Errorf("read key = %q", rd.key)
	}
	if len(got) != 1 {
		t.Fatalf("got %d quotes, want 1: %+v", len(got), got)
	}
	q := got["KRW-BTC"]
	if !q.TradePrice.Equal(decimal.NewFromInt(95000000)) || q.Timestamp != 1700000000000 {
		t.Errorf("KRW-BTC = %+v", q)
	}
}
