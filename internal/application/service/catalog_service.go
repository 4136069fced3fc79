package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"coinfeed/internal/application/port"
	"coinfeed/internal/domain"
)

var (
	ErrNoQuotes      = errors.New("no price quotes")
	ErrNoInstruments = errors.New("no instruments")
)

// DefaultQuoteCurrencies is the snapshot scope used when none is configured.
var DefaultQuoteCurrencies = []string{"KRW", "BTC"}

type CatalogConfig struct {
	QuoteCurrencies []string // scope of the ticker snapshot
	Quote           string   // selected quote currency for display and subscription
}

// CatalogService builds the instrument+price listing and the subscription set.
type CatalogService struct {
	src    port.MarketSource
	quotes []string
	quote  string
}

func NewCatalogService(src port.MarketSource, cfg CatalogConfig) *CatalogService {
	quotes := cfg.QuoteCurrencies
	if len(quotes) == 0 {
		quotes = DefaultQuoteCurrencies
	}
	quote := strings.ToUpper(strings.TrimSpace(cfg.Quote))
	if quote == "" {
		quote = "KRW"
	}
	return &CatalogService{src: src, quotes: quotes, quote: quote}
}

func (s *CatalogService) Quote() string { return s.quote }

// LoadCatalog fetches instruments and quotes concurrently and joins them.
// On failure the result is an empty, non-nil slice together with an error
// wrapping ErrNoInstruments or ErrNoQuotes.
func (s *CatalogService) LoadCatalog(ctx context.Context) ([]domain.CombinedRecord, error) {
	var (
		instruments []domain.Instrument
		quotes      []domain.PriceQuote
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		instruments, err = s.src.MarketAll(gctx)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrNoInstruments, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		quotes, err = s.src.TickerAll(gctx, s.quotes)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrNoQuotes, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Warn().Err(err).Msg("catalog load failed")
		return []domain.CombinedRecord{}, err
	}

	if len(instruments) == 0 {
		return []domain.CombinedRecord{}, ErrNoInstruments
	}
	if len(quotes) == 0 {
		return []domain.CombinedRecord{}, ErrNoQuotes
	}

	out := Join(instruments, quotes)
	log.Info().
		Int("instruments", len(instruments)).
		Int("quotes", len(quotes)).
		Int("records", len(out)).
		Msg("catalog loaded")
	return out, nil
}

// Join merges instruments with quotes by market key. Output follows instrument
// order; every quote is consumed at most once and the first match wins.
// Instruments without a quote are dropped, and a key repeated in the listing
// is joined only once.
func Join(instruments []domain.Instrument, quotes []domain.PriceQuote) []domain.CombinedRecord {
	remaining := make([]domain.PriceQuote, len(quotes))
	copy(remaining, quotes)

	out := make([]domain.CombinedRecord, 0, min(len(instruments), len(quotes)))
	joined := make(map[domain.MarketKey]struct{}, len(instruments))
	for _, ins := range instruments {
		if _, ok := joined[ins.Market]; ok {
			continue
		}
		for j, q := range remaining {
			if q.Market != ins.Market {
				continue
			}
			out = append(out, domain.CombinedRecord{Instrument: ins, PriceQuote: q})
			joined[ins.Market] = struct{}{}
			remaining = append(remaining[:j], remaining[j+1:]...)
			break
		}
	}
	return out
}

// ListTradableCodes returns the listed market keys whose quote currency is
// quote, in listing order.
func (s *CatalogService) ListTradableCodes(ctx context.Context, quote string) ([]domain.MarketKey, error) {
	instruments, err := s.src.MarketAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tradable codes: %w", err)
	}
	codes := make([]domain.MarketKey, 0, len(instruments))
	for _, ins := range instruments {
		if ins.Market.HasQuote(quote) {
			codes = append(codes, ins.Market)
		}
	}
	return codes, nil
}

// TradableCodes lists codes for the configured quote currency.
func (s *CatalogService) TradableCodes(ctx context.Context) ([]domain.MarketKey, error) {
	return s.ListTradableCodes(ctx, s.quote)
}

// PublishSnapshot fetches the current ticker snapshot and publishes every
// quote on its instrument topic. It returns the number of quotes published.
func (s *CatalogService) PublishSnapshot(ctx context.Context, pub port.QuotePublisher) (int, error) {
	quotes, err := s.src.TickerAll(ctx, s.quotes)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNoQuotes, err)
	}
	n := 0
	for _, q := range quotes {
		if _, _, ok := domain.ParseMarketKey(string(q.Market)); !ok {
			continue
		}
		pub.PublishQuote(q)
		n++
	}
	return n, nil
}

// FilterByQuote keeps the records quoted in quote, preserving order.
func FilterByQuote(records []domain.CombinedRecord, quote string) []domain.CombinedRecord {
	out := make([]domain.CombinedRecord, 0, len(records))
	for _, r := range records {
		if r.Key().HasQuote(quote) {
			out = append(out, r)
		}
	}
	return out
}

var _ port.CodeLister = (*CatalogService)(nil)
