package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MarketSeparator joins the quote and base codes of a market key.
const MarketSeparator = "-"

// MarketKey identifies a tradable pair, quote first: "KRW-BTC".
type MarketKey string

// NewMarketKey builds a key from a quote currency and a base symbol.
func NewMarketKey(quote, base string) MarketKey {
	q := strings.ToUpper(strings.TrimSpace(quote))
	b := strings.ToUpper(strings.TrimSpace(base))
	return MarketKey(q + MarketSeparator + b)
}

// ParseMarketKey splits a key on the first separator.
// ok is false when either side is empty.
func ParseMarketKey(s string) (quote, base string, ok bool) {
	q, b, found := strings.Cut(strings.TrimSpace(s), MarketSeparator)
	if !found || q == "" || b == "" {
		return "", "", false
	}
	return q, b, true
}

func (k MarketKey) String() string { return string(k) }

// Quote returns the quote currency ("KRW" for "KRW-BTC").
func (k MarketKey) Quote() string {
	q, _, _ := ParseMarketKey(string(k))
	return q
}

// Base returns the base symbol ("BTC" for "KRW-BTC").
func (k MarketKey) Base() string {
	_, b, _ := ParseMarketKey(string(k))
	return b
}

// HasQuote reports whether the key is quoted in the given currency.
func (k MarketKey) HasQuote(quote string) bool {
	return strings.EqualFold(k.Quote(), strings.TrimSpace(quote))
}

// Instrument is one entry of the exchange listing.
type Instrument struct {
	Market        MarketKey `json:"market"`
	KoreanName    string    `json:"korean_name"`
	EnglishName   string    `json:"english_name"`
	MarketWarning string    `json:"market_warning,omitempty"`
}

// PriceQuote is the latest ticker snapshot for one market.
// A newer quote replaces an older one as a whole.
type PriceQuote struct {
	Market            MarketKey       `json:"market"`
	TradePrice        decimal.Decimal `json:"trade_price"`
	SignedChangePrice decimal.Decimal `json:"signed_change_price"`
	SignedChangeRate  decimal.Decimal `json:"signed_change_rate"`
	AccTradePrice24h  decimal.Decimal `json:"acc_trade_price_24h"`
	Timestamp         int64           `json:"timestamp"`
}

// CombinedRecord is an instrument joined with its quote on market key.
type CombinedRecord struct {
	Instrument
	PriceQuote
}

// Key returns the market key shared by both halves of the record.
func (r CombinedRecord) Key() MarketKey { return r.Instrument.Market }

// Symbol returns the base symbol of the record's market.
func (r CombinedRecord) Symbol() string { return r.Instrument.Market.Base() }
