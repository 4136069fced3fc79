package domain

// Direction represents the trade price movement between two quotes
type Direction int

const (
	DirectionSame Direction = 0
	DirectionUp   Direction = +1
	DirectionDown Direction = -1
)

// PriceState holds the last good quote of one market and how it moved
type PriceState struct {
	Quote     PriceQuote
	HasValue  bool
	Direction Direction
}

// Update replaces the held quote with q.
// It returns false when q carries no price or does not change the display.
func (ps *PriceState) Update(q PriceQuote) bool {
	if q.TradePrice.IsZero() {
		return false
	}
	if !ps.HasValue {
		ps.Quote = q
		ps.HasValue = true
		ps.Direction = DirectionSame
		return true
	}

	prev := ps.Quote
	ps.Quote = q
	switch q.TradePrice.Cmp(prev.TradePrice) {
	case 1:
		ps.Direction = DirectionUp
	case -1:
		ps.Direction = DirectionDown
	default:
		ps.Direction = DirectionSame
	}
	return !sameDisplay(prev, q)
}

func sameDisplay(a, b PriceQuote) bool {
	return a.TradePrice.Equal(b.TradePrice) &&
		a.SignedChangePrice.Equal(b.SignedChangePrice) &&
		a.SignedChangeRate.Equal(b.SignedChangeRate) &&
		a.AccTradePrice24h.Equal(b.AccTradePrice24h)
}
