package monitor

import (
	"sync"

	"coinfeed/internal/domain"
)

// Row is the display state of one instrument.
type Row struct {
	Market domain.MarketKey
	Name   string
	domain.PriceState
}

func (r Row) Symbol() string { return r.Market.Base() }

// State holds every display row in catalog order.
type State struct {
	mu sync.Mutex

	order []domain.MarketKey
	rows  map[domain.MarketKey]*Row
}

func NewState() *State {
	return &State{rows: make(map[domain.MarketKey]*Row)}
}

// Seed adds a row per record, starting from the record's quote.
func (s *State) Seed(records []domain.CombinedRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		r := s.add(rec.Key(), displayName(rec.Instrument))
		if r != nil {
			r.Update(rec.PriceQuote)
		}
	}
}

// SeedCodes adds rows with no data yet.
func (s *State) SeedCodes(codes []domain.MarketKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range codes {
		s.add(k, k.Base())
	}
}

func (s *State) add(key domain.MarketKey, name string) *Row {
	if key == "" {
		return nil
	}
	if _, ok := s.rows[key]; ok {
		return nil
	}
	r := &Row{Market: key, Name: name}
	s.rows[key] = r
	s.order = append(s.order, key)
	return r
}

func displayName(ins domain.Instrument) string {
	switch {
	case ins.KoreanName != "":
		return ins.KoreanName
	case ins.EnglishName != "":
		return ins.EnglishName
	default:
		return ins.Market.Base()
	}
}

func (s *State) Keys() []domain.MarketKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.MarketKey(nil), s.order...)
}

// Apply stores q on its row and reports whether the row's display changed.
// Quotes for unknown instruments are ignored.
func (s *State) Apply(q domain.PriceQuote) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.rows[q.Market]
	if r == nil {
		return false
	}
	return r.Update(q)
}

func (s *State) Row(key domain.MarketKey) (Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.rows[key]
	if r == nil {
		return Row{}, false
	}
	return *r, true
}

// Rows returns a copy of every row in order.
func (s *State) Rows() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Row, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, *s.rows[k])
	}
	return out
}
