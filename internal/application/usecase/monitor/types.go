package monitor

import (
	"context"
	"errors"

	"coinfeed/internal/application/port"
	"coinfeed/internal/domain"
)

var (
	ErrNoFeed        = errors.New("no price feed configured")
	ErrFeedExhausted = errors.New("price feed gave up reconnecting")
)

// Catalog is what the monitor needs from the catalog service.
type Catalog interface {
	LoadCatalog(ctx context.Context) ([]domain.CombinedRecord, error)
	TradableCodes(ctx context.Context) ([]domain.MarketKey, error)
	PublishSnapshot(ctx context.Context, pub port.QuotePublisher) (int, error)
	Quote() string
}
