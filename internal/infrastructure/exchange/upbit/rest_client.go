package upbit

import (
	"context"
	"fmt"
	"strings"

	"coinfeed/internal/application/port"
	"coinfeed/internal/domain"
	"coinfeed/internal/infrastructure/httpclient"
)

const (
	marketAllPath = "/market/all"
	tickerAllPath = "/ticker/all"
)

// RESTClient serves the catalog endpoints of the Upbit quotation API.
type RESTClient struct {
	http *httpclient.Client
}

func NewRESTClient(c *httpclient.Client) *RESTClient {
	return &RESTClient{http: c}
}

// MarketAll fetches GET /market/all.
func (c *RESTClient) MarketAll(ctx context.Context) ([]domain.Instrument, error) {
	var out []domain.Instrument
	if err := c.http.Get(ctx, marketAllPath, &out); err != nil {
		return nil, fmt.Errorf("upbit market/all: %w", err)
	}
	return out, nil
}

// TickerAll fetches GET /ticker/all?quoteCurrencies=<csv>.
func (c *RESTClient) TickerAll(ctx context.Context, quoteCurrencies []string) ([]domain.PriceQuote, error) {
	var out []domain.PriceQuote
	if err := c.http.Get(ctx, tickerAllEndpoint(quoteCurrencies), &out); err != nil {
		return nil, fmt.Errorf("upbit ticker/all: %w", err)
	}
	return out, nil
}

func tickerAllEndpoint(quotes []string) string {
	clean := make([]string, 0, len(quotes))
	for _, q := range quotes {
		q = strings.ToUpper(strings.TrimSpace(q))
		if q != "" {
			clean = append(clean, q)
		}
	}
	if len(clean) == 0 {
		return tickerAllPath
	}
	return tickerAllPath + "?quoteCurrencies=" + strings.Join(clean, ",")
}

var _ port.MarketSource = (*RESTClient)(nil)
