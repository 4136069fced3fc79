package port

import (
	"context"

	"coinfeed/internal/domain"
)

// MarketSource is the exchange REST surface used to build the catalog.
type MarketSource interface {
	// MarketAll returns every listed instrument in listing order.
	MarketAll(ctx context.Context) ([]domain.Instrument, error)
	// TickerAll returns the price snapshot for the given quote currencies.
	TickerAll(ctx context.Context, quoteCurrencies []string) ([]domain.PriceQuote, error)
}

// QuoteRelay forwards bus quotes to consumers outside the process.
// RelayQuote is called on the feed's read path and must not block on I/O.
type QuoteRelay interface {
	RelayQuote(ctx context.Context, q domain.PriceQuote) error
	Close() error
}

// QuotePublisher fans a quote out to the consumers of its instrument.
type QuotePublisher interface {
	PublishQuote(q domain.PriceQuote) int
}

// QuoteBus routes quotes per instrument.
type QuoteBus interface {
	QuotePublisher
	// SubscribeMarket registers h for key and returns its unsubscribe func.
	SubscribeMarket(key domain.MarketKey, h func(domain.PriceQuote) error) (unsubscribe func())
}
