package monitor

import (
	"fmt"

	"coinfeed/internal/application/port"
	"coinfeed/internal/domain"
)

// RowConsumer keeps one row in sync with its instrument's quotes.
type RowConsumer struct {
	key         domain.MarketKey
	st          *State
	notify      func(domain.MarketKey)
	unsubscribe func()
}

func NewRowConsumer(bus port.QuoteBus, st *State, key domain.MarketKey, notify func(domain.MarketKey)) *RowConsumer {
	r := &RowConsumer{key: key, st: st, notify: notify}
	r.unsubscribe = bus.SubscribeMarket(key, r.OnQuote)
	return r
}

func (r *RowConsumer) OnQuote(q domain.PriceQuote) error {
	if q.Market != r.key {
		return fmt.Errorf("row %s got quote for %s", r.key, q.Market)
	}
	if r.st.Apply(q) && r.notify != nil {
		r.notify(r.key)
	}
	return nil
}

func (r *RowConsumer) Close() {
	if r.unsubscribe != nil {
		r.unsubscribe()
		r.unsubscribe = nil
	}
}

type Rows []*RowConsumer

// SubscribeRows attaches a consumer to every row in st.
func SubscribeRows(bus port.QuoteBus, st *State, notify func(domain.MarketKey)) Rows {
	keys := st.Keys()
	rows := make(Rows, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, NewRowConsumer(bus, st, k, notify))
	}
	return rows
}

func (rs Rows) Close() {
	for _, r := range rs {
		r.Close()
	}
}
