package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"coinfeed/internal/application/port"
	"coinfeed/internal/application/service"
	"coinfeed/internal/domain"
)

type ServiceDeps struct {
	Catalog Catalog
	Feed    port.PriceFeed
	Bus     port.QuoteBus
	Decoder port.Decoder
	Relay   port.QuoteRelay
	Sink    port.Sink
	Format  *Formatter

	PrintEvery        time.Duration // 0 disables the periodic board
	ReopenOnExhausted bool
	ReopenDelay       time.Duration
}

type Service struct {
	deps    ServiceDeps
	st      *State
	fmt     *Formatter
	changed chan domain.MarketKey
}

func NewService(deps ServiceDeps) *Service {
	if deps.Relay == nil {
		deps.Relay = NewNoopRelay()
	}
	if deps.Format == nil {
		deps.Format = NewFormatter(true)
	}
	if deps.ReopenDelay <= 0 {
		deps.ReopenDelay = 30 * time.Second
	}
	return &Service{
		deps:    deps,
		st:      NewState(),
		fmt:     deps.Format,
		changed: make(chan domain.MarketKey, 1024),
	}
}

func (s *Service) State() *State { return s.st }

// Run seeds the rows from the catalog, opens the feed and renders updates
// until ctx is done or the feed gives up.
func (s *Service) Run(ctx context.Context) error {
	if s.deps.Feed == nil {
		return ErrNoFeed
	}

	s.seed(ctx)

	rows := SubscribeRows(s.deps.Bus, s.st, s.notify)
	defer rows.Close()

	relays := s.subscribeRelay(ctx)
	defer func() {
		for _, unsub := range relays {
			unsub()
		}
	}()

	if n, err := s.deps.Catalog.PublishSnapshot(ctx, s.deps.Bus); err != nil {
		log.Warn().Err(err).Msg("price snapshot unavailable")
	} else {
		log.Info().Int("quotes", n).Msg("price snapshot published")
	}
	_ = s.deps.Sink.WriteSnapshot(time.Now(), s.fmt.RenderBoard(s.st.Rows()))

	if err := s.deps.Feed.Open(ctx, s.HandleMessage); err != nil {
		return err
	}
	defer s.deps.Feed.Close()

	var snap <-chan time.Time
	if s.deps.PrintEvery > 0 {
		t := time.NewTicker(s.deps.PrintEvery)
		defer t.Stop()
		snap = t.C
	}
	var reopen <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			_ = s.deps.Sink.NewLine()
			return ctx.Err()

		case now := <-snap:
			_ = s.deps.Sink.WriteSnapshot(now, s.fmt.RenderBoard(s.st.Rows()))

		case key := <-s.changed:
			if r, ok := s.st.Row(key); ok {
				_ = s.deps.Sink.WriteLive(s.fmt.RenderLive(r))
			}

		case ev := <-s.deps.Feed.Events():
			switch ev.Kind {
			case port.EventRetriesExhausted:
				if !s.deps.ReopenOnExhausted {
					_ = s.deps.Sink.WriteNotice("feed disconnected: retries exhausted")
					return ErrFeedExhausted
				}
				_ = s.deps.Sink.WriteNotice("feed disconnected: reopening in " + s.deps.ReopenDelay.String())
				reopen = time.After(s.deps.ReopenDelay)
			case port.EventSubscribed:
				log.Debug().Int("codes", ev.Codes).Msg("feed live")
			}

		case <-reopen:
			reopen = nil
			if err := s.deps.Feed.Open(ctx, s.HandleMessage); err != nil {
				log.Error().Err(err).Msg("feed reopen failed")
				return err
			}
		}
	}
}

// HandleMessage decodes one streaming payload and publishes its quote.
// Frames without a quote, such as status keepalives, are skipped.
func (s *Service) HandleMessage(raw []byte) error {
	u, err := s.deps.Decoder.Decode(raw)
	if err != nil {
		return err
	}
	if u.Quote.Market == "" {
		return nil
	}
	s.deps.Bus.PublishQuote(u.Quote)
	return nil
}

func (s *Service) seed(ctx context.Context) {
	records, err := s.deps.Catalog.LoadCatalog(ctx)
	if err == nil {
		s.st.Seed(service.FilterByQuote(records, s.deps.Catalog.Quote()))
		return
	}

	log.Warn().Err(err).Msg("catalog unavailable, rows start without data")
	_ = s.deps.Sink.WriteNotice("catalog unavailable: no data yet")
	codes, cerr := s.deps.Catalog.TradableCodes(ctx)
	if cerr != nil {
		log.Warn().Err(cerr).Msg("tradable codes unavailable")
		return
	}
	s.st.SeedCodes(codes)
}

func (s *Service) notify(key domain.MarketKey) {
	select {
	case s.changed <- key:
	default:
	}
}

func (s *Service) subscribeRelay(ctx context.Context) []func() {
	keys := s.st.Keys()
	out := make([]func(), 0, len(keys))
	for _, k := range keys {
		out = append(out, s.deps.Bus.SubscribeMarket(k, func(q domain.PriceQuote) error {
			return s.deps.Relay.RelayQuote(ctx, q)
		}))
	}
	return out
}
