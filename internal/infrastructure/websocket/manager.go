package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"coinfeed/internal/application/port"
	"coinfeed/internal/domain"
	"coinfeed/internal/infrastructure/exchange/upbit"
	"coinfeed/internal/infrastructure/metrics"
)

var (
	ErrNotOpen     = errors.New("feed is not open")
	ErrAlreadyOpen = errors.New("feed already open")
	ErrNilHandler  = errors.New("nil message handler")

	ErrNoCodeLister = errors.New("no code lister configured")
)

// Config configures the feed connection manager.
type Config struct {
	URL         string
	MaxRetries  int // <= 0 disables automatic reconnects
	BatchLimit  int // max codes per subscribe message
	Ticket      string
	Type        string
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	EventBuffer int
}

// DefaultConfig returns the Upbit streaming defaults.
func DefaultConfig() Config {
	return Config{
		URL:         upbit.DefaultWsURL,
		MaxRetries:  5,
		BatchLimit:  50,
		Type:        upbit.TickerType,
		BaseDelay:   time.Second,
		MaxDelay:    5 * time.Second,
		EventBuffer: 64,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.URL == "" {
		c.URL = d.URL
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = d.BatchLimit
	}
	if c.Type == "" {
		c.Type = d.Type
	}
	if c.Ticket == "" {
		c.Ticket = uuid.NewString()
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = d.EventBuffer
	}
	return c
}

// LinearBackOff yields Base*n capped at Max for the nth call.
type LinearBackOff struct {
	Base time.Duration
	Max  time.Duration
	n    int
}

func (b *LinearBackOff) NextBackOff() time.Duration {
	b.n++
	d := b.Base * time.Duration(b.n)
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

func (b *LinearBackOff) Reset() { b.n = 0 }

// Timer is the part of *time.Timer the manager needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. Implementations must not call f synchronously.
type AfterFunc func(d time.Duration, f func()) Timer

// ErrorSink receives errors returned (or panics raised) by the message handler.
type ErrorSink func(err error)

// SubscribeBuilder encodes the subscribe request sent on open.
type SubscribeBuilder func(ticket, typ string, codes []domain.MarketKey) ([]byte, error)

type Option func(*Manager)

func WithAfterFunc(f AfterFunc) Option {
	return func(m *Manager) {
		if f != nil {
			m.after = f
		}
	}
}

func WithErrorSink(s ErrorSink) Option {
	return func(m *Manager) {
		if s != nil {
			m.sink = s
		}
	}
}

func WithSubscribeBuilder(b SubscribeBuilder) Option {
	return func(m *Manager) {
		if b != nil {
			m.build = b
		}
	}
}

// WithBackOff replaces the retry policy. The policy decides exhaustion by
// returning backoff.Stop.
func WithBackOff(b backoff.BackOff) Option {
	return func(m *Manager) {
		if b != nil {
			m.policy = b
		}
	}
}

// Manager owns one streaming connection: connect, subscribe on open, deliver
// messages and reconnect with a capped linear delay until retries run out.
//
// All state lives behind mu. Every connection attempt gets a generation
// number; callbacks carrying an older generation are dropped. dispatchMu is
// read-held for the whole of a handler call so Close can wait it out.
type Manager struct {
	cfg    Config
	dialer Dialer
	codes  port.CodeLister
	after  AfterFunc
	sink   ErrorSink
	build  SubscribeBuilder
	events chan port.FeedEvent

	dispatchMu sync.RWMutex

	mu      sync.Mutex
	state   port.FeedState
	gen     uint64
	retries int
	policy  backoff.BackOff
	conn    Conn
	timer   Timer
	handler port.MessageHandler
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewManager(cfg Config, dialer Dialer, codes port.CodeLister, opts ...Option) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		cfg:    cfg,
		dialer: dialer,
		codes:  codes,
		after: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		sink:   defaultErrorSink,
		build:  upbit.BuildSubscribe,
		events: make(chan port.FeedEvent, cfg.EventBuffer),
		state:  port.StateDisconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.policy == nil {
		m.policy = newRetryPolicy(cfg)
	}
	return m
}

func newRetryPolicy(cfg Config) backoff.BackOff {
	if cfg.MaxRetries <= 0 {
		return &backoff.StopBackOff{}
	}
	return backoff.WithMaxRetries(&LinearBackOff{Base: cfg.BaseDelay, Max: cfg.MaxDelay}, uint64(cfg.MaxRetries))
}

func defaultErrorSink(err error) {
	metrics.FeedMessages.WithLabelValues("handler_error").Inc()
	log.Warn().Err(err).Msg("feed message handling failed")
}

// Open starts connecting. It is valid from Disconnected, and from
// ClosedExhausted as an explicit restart.
func (m *Manager) Open(ctx context.Context, handle port.MessageHandler) error {
	if handle == nil {
		return ErrNilHandler
	}

	m.mu.Lock()
	if m.state != port.StateDisconnected && m.state != port.StateClosedExhausted {
		st := m.state
		m.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrAlreadyOpen, st)
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.handler = handle
	m.retries = 0
	m.policy.Reset()
	m.gen++
	gen := m.gen
	m.setState(port.StateConnecting)
	m.emit(port.FeedEvent{Kind: port.EventConnecting})
	m.mu.Unlock()

	log.Info().Str("url", m.cfg.URL).Int("max_retries", m.cfg.MaxRetries).Msg("feed opening")
	go m.connect(gen)
	return nil
}

// Send writes msg on the live connection.
func (m *Manager) Send(msg []byte) error {
	m.mu.Lock()
	if m.state != port.StateOpen || m.conn == nil {
		st := m.state
		m.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrNotOpen, st)
	}
	conn := m.conn
	m.mu.Unlock()
	return conn.Send(msg)
}

// Close cancels any pending reconnect, closes the live transport and moves to
// Disconnected. It waits for a running message handler to return, so it must
// not be called from inside the handler. No callback is started after Close
// returns. Idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.state == port.StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	m.gen++
	conn, timer, cancel := m.conn, m.timer, m.cancel
	m.conn, m.timer, m.cancel, m.handler = nil, nil, nil, nil
	m.setState(port.StateDisconnected)
	m.emit(port.FeedEvent{Kind: port.EventDisconnected})
	m.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if cancel != nil {
		cancel()
	}
	var err error
	if conn != nil {
		err = conn.Close()
	}
	// wait for a handler that passed the generation check
	m.dispatchMu.Lock()
	m.dispatchMu.Unlock()
	log.Info().Msg("feed closed")
	return err
}

func (m *Manager) State() port.FeedState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Retries returns the number of reconnects scheduled since the last open.
func (m *Manager) Retries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retries
}

// Events reports lifecycle transitions. When the buffer is full, ordinary
// events are dropped; EventRetriesExhausted and EventDisconnected evict the
// oldest buffered event instead. The channel is never closed.
func (m *Manager) Events() <-chan port.FeedEvent {
	return m.events
}

func (m *Manager) connect(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	ctx := m.ctx
	m.mu.Unlock()

	conn, err := m.dialer.Dial(ctx, m.cfg.URL, Handlers{
		OnMessage: func(raw []byte) { m.handleMessage(gen, raw) },
		OnError:   func(err error) { m.handleError(gen, err) },
		OnClose:   func(err error) { m.handleClose(gen, err) },
	})
	if err != nil {
		metrics.FeedConnects.WithLabelValues("failed").Inc()
		m.handleError(gen, err)
		m.handleClose(gen, err)
		return
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	m.setState(port.StateOpen)
	m.emit(port.FeedEvent{Kind: port.EventOpen})
	m.mu.Unlock()

	metrics.FeedConnects.WithLabelValues("ok").Inc()
	log.Info().Str("url", m.cfg.URL).Msg("feed connected")
	m.subscribe(ctx, gen, conn)
}

func (m *Manager) subscribe(ctx context.Context, gen uint64, conn Conn) {
	var codes []domain.MarketKey
	err := ErrNoCodeLister
	if m.codes != nil {
		codes, err = m.codes.TradableCodes(ctx)
	}
	if err == nil && len(codes) > m.cfg.BatchLimit {
		codes = codes[:m.cfg.BatchLimit]
	}
	var msg []byte
	if err == nil {
		msg, err = m.build(m.cfg.Ticket, m.cfg.Type, codes)
	}
	if err == nil {
		err = m.sendOn(gen, conn, msg)
	}

	if err != nil {
		if errors.Is(err, ErrNotOpen) {
			return
		}
		log.Error().Err(err).Msg("feed subscribe failed")
		m.mu.Lock()
		if gen == m.gen {
			m.emit(port.FeedEvent{Kind: port.EventSubscribeFailed, State: m.state, Err: err})
		}
		m.mu.Unlock()
		_ = conn.Close()
		m.handleClose(gen, err)
		return
	}

	// the connection only counts as established once the subscription is out
	m.mu.Lock()
	if gen == m.gen {
		m.retries = 0
		m.policy.Reset()
		m.emit(port.FeedEvent{Kind: port.EventSubscribed, Codes: len(codes)})
	}
	m.mu.Unlock()
	log.Info().Int("codes", len(codes)).Str("type", m.cfg.Type).Msg("feed subscribed")
}

func (m *Manager) sendOn(gen uint64, conn Conn, msg []byte) error {
	m.mu.Lock()
	live := gen == m.gen && m.state == port.StateOpen
	m.mu.Unlock()
	if !live {
		return ErrNotOpen
	}
	return conn.Send(msg)
}

func (m *Manager) handleMessage(gen uint64, raw []byte) {
	m.dispatchMu.RLock()
	defer m.dispatchMu.RUnlock()

	m.mu.Lock()
	if gen != m.gen || m.state != port.StateOpen {
		m.mu.Unlock()
		return
	}
	h := m.handler
	m.mu.Unlock()

	if err := m.dispatch(h, raw); err != nil {
		m.sink(err)
		return
	}
	metrics.FeedMessages.WithLabelValues("ok").Inc()
}

func (m *Manager) dispatch(h port.MessageHandler, raw []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("message handler panic: %v", r)
		}
	}()
	return h(raw)
}

func (m *Manager) handleError(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.emit(port.FeedEvent{Kind: port.EventError, Err: err})
	m.mu.Unlock()

	metrics.FeedTransportErrors.Inc()
	log.Warn().Err(err).Msg("feed transport error")
}

func (m *Manager) handleClose(gen uint64, cause error) {
	m.mu.Lock()
	if gen != m.gen || (m.state != port.StateOpen && m.state != port.StateConnecting) {
		m.mu.Unlock()
		return
	}
	m.gen++
	m.conn = nil
	m.emit(port.FeedEvent{Kind: port.EventClosed, Err: cause})

	delay := m.policy.NextBackOff()
	if delay == backoff.Stop {
		m.setState(port.StateClosedExhausted)
		m.emit(port.FeedEvent{Kind: port.EventRetriesExhausted, Attempt: m.retries, Err: cause})
		retries := m.retries
		m.mu.Unlock()

		metrics.FeedRetriesExhausted.Inc()
		log.Error().Int("retries", retries).Msg("feed retries exhausted")
		return
	}

	m.retries++
	attempt := m.retries
	next := m.gen
	m.setState(port.StateClosedPendingRetry)
	m.timer = m.after(delay, func() { m.reconnect(next) })
	m.emit(port.FeedEvent{Kind: port.EventRetryScheduled, Attempt: attempt, Delay: delay, Err: cause})
	m.mu.Unlock()

	metrics.ReconnectDelay.Observe(delay.Seconds())
	log.Warn().Err(cause).Int("attempt", attempt).Dur("delay", delay).Msg("feed closed, reconnect scheduled")
}

func (m *Manager) reconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != port.StateClosedPendingRetry {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.gen++
	next := m.gen
	m.setState(port.StateConnecting)
	m.emit(port.FeedEvent{Kind: port.EventConnecting, Attempt: m.retries})
	m.mu.Unlock()

	m.connect(next)
}

// setState and emit require mu.
func (m *Manager) setState(s port.FeedState) {
	m.state = s
	metrics.FeedState.Set(float64(s))
}

func (m *Manager) emit(ev port.FeedEvent) {
	ev.State = m.state
	select {
	case m.events <- ev:
		return
	default:
	}
	if !terminal(ev.Kind) {
		return
	}
	// every send happens under mu, so one receive makes room
	select {
	case <-m.events:
	default:
	}
	select {
	case m.events <- ev:
	default:
	}
}

func terminal(k port.FeedEventKind) bool {
	return k == port.EventRetriesExhausted || k == port.EventDisconnected
}

var _ port.PriceFeed = (*Manager)(nil)
