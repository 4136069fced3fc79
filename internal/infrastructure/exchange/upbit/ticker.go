package upbit

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"coinfeed/internal/application/port"
	"coinfeed/internal/domain"
	"coinfeed/internal/infrastructure/pricefeed"
)

const TickerType = "ticker"

var errMissingCode = errors.New("ticker without code")

// tickerMsg accepts both the DEFAULT and the SIMPLE field names.
type tickerMsg struct {
	Code              string          `json:"code"`
	TradePrice        decimal.Decimal `json:"trade_price"`
	SignedChangePrice decimal.Decimal `json:"signed_change_price"`
	SignedChangeRate  decimal.Decimal `json:"signed_change_rate"`
	AccTradePrice24h  decimal.Decimal `json:"acc_trade_price_24h"`
	Timestamp         int64           `json:"timestamp"`

	Cd  string          `json:"cd"`
	Tp  decimal.Decimal `json:"tp"`
	Scp decimal.Decimal `json:"scp"`
	Scr decimal.Decimal `json:"scr"`
	Atp decimal.Decimal `json:"atp24h"`
	Tms int64           `json:"tms"`
}

// TickerDecoder decodes streaming ticker frames into quotes.
type TickerDecoder struct {
	now func() time.Time
}

func NewTickerDecoder() *TickerDecoder {
	return &TickerDecoder{now: time.Now}
}

func (d *TickerDecoder) Decode(raw []byte) (port.Update, error) {
	var m tickerMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		return port.Update{}, pricefeed.NewDecodeError(TickerType, raw, err)
	}

	q := domain.PriceQuote{
		Market:            domain.MarketKey(m.Code),
		TradePrice:        m.TradePrice,
		SignedChangePrice: m.SignedChangePrice,
		SignedChangeRate:  m.SignedChangeRate,
		AccTradePrice24h:  m.AccTradePrice24h,
		Timestamp:         m.Timestamp,
	}
	if m.Code == "" && m.Cd != "" {
		q = domain.PriceQuote{
			Market:            domain.MarketKey(m.Cd),
			TradePrice:        m.Tp,
			SignedChangePrice: m.Scp,
			SignedChangeRate:  m.Scr,
			AccTradePrice24h:  m.Atp,
			Timestamp:         m.Tms,
		}
	}
	if _, _, ok := domain.ParseMarketKey(string(q.Market)); !ok {
		return port.Update{}, pricefeed.NewDecodeError(TickerType, raw, errMissingCode)
	}

	return port.Update{
		Type:       TickerType,
		Quote:      q,
		ReceivedAt: d.now().UnixMilli(),
	}, nil
}

// RegisterDecoders installs the Upbit streaming decoders on reg.
func RegisterDecoders(reg *pricefeed.Registry) {
	reg.Register(TickerType, NewTickerDecoder())
}

var _ port.Decoder = (*TickerDecoder)(nil)
