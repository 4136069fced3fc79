package upbit

import (
	"encoding/json"
	"errors"

	"coinfeed/internal/domain"
)

const DefaultWsURL = "wss://api.upbit.com/websocket/v1"

var ErrNoCodes = errors.New("subscribe request without codes")

type ticketField struct {
	Ticket string `json:"ticket"`
}

type typeField struct {
	Type  string             `json:"type"`
	Codes []domain.MarketKey `json:"codes"`
}

// BuildSubscribe encodes [{"ticket": ticket}, {"type": typ, "codes": codes}].
// Callers apply the batch limit before calling.
func BuildSubscribe(ticket, typ string, codes []domain.MarketKey) ([]byte, error) {
	if len(codes) == 0 {
		return nil, ErrNoCodes
	}
	if typ == "" {
		typ = TickerType
	}
	return json.Marshal([]any{
		ticketField{Ticket: ticket},
		typeField{Type: typ, Codes: codes},
	})
}
