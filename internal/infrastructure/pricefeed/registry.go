package pricefeed

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"coinfeed/internal/application/port"
)

// StatusType marks keepalive updates that carry no quote.
const StatusType = "status"

var (
	ErrMalformed   = errors.New("malformed payload")
	ErrUnknownType = errors.New("unknown message type")
	ErrServerError = errors.New("server error message")
)

// DecodeError is the typed result of a payload that could not be decoded.
type DecodeError struct {
	Type string
	Err  error
	Raw  string // truncated payload for logs
}

func (e *DecodeError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("decode %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("decode: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// NewDecodeError wraps err with a bounded copy of raw.
func NewDecodeError(msgType string, raw []byte, err error) *DecodeError {
	const maxRaw = 256
	s := string(raw)
	if len(s) > maxRaw {
		s = s[:maxRaw] + "..."
	}
	return &DecodeError{Type: msgType, Err: err, Raw: s}
}

// Registry maps message types ("ticker", "orderbook", ...) to decoders and
// dispatches raw payloads on their "type" field.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]port.Decoder
}

func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]port.Decoder)}
}

// Register adds a decoder for msgType, replacing any previous one.
func (r *Registry) Register(msgType string, d port.Decoder) {
	msgType = strings.ToLower(strings.TrimSpace(msgType))
	if d == nil || msgType == "" {
		log.Warn().Str("type", msgType).Msg("invalid decoder registration")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.decoders[msgType]; exists {
		log.Warn().Str("type", msgType).Msg("decoder already registered, overwriting")
	}
	r.decoders[msgType] = d
	log.Debug().Str("type", msgType).Msg("decoder registered")
}

func (r *Registry) Get(msgType string) (port.Decoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.decoders[strings.ToLower(msgType)]
	return d, ok
}

// Decode routes raw to the decoder registered for its "type" field.
func (r *Registry) Decode(raw []byte) (port.Update, error) {
	var head struct {
		Type   string `json:"type"`
		Ty     string `json:"ty"` // SIMPLE format
		Status string `json:"status"`
		Err    *struct {
			Name    string `json:"name"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return port.Update{}, NewDecodeError("", raw, fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	if head.Err != nil {
		return port.Update{}, NewDecodeError("error", raw, fmt.Errorf("%w: %s %s", ErrServerError, head.Err.Name, head.Err.Message))
	}
	msgType := head.Type
	if msgType == "" && head.Status != "" {
		// keepalive answer, e.g. {"status":"UP"}
		return port.Update{Type: StatusType}, nil
	}
	if msgType == "" {
		msgType = head.Ty
	}
	d, ok := r.Get(msgType)
	if !ok {
		return port.Update{}, NewDecodeError(msgType, raw, ErrUnknownType)
	}
	return d.Decode(raw)
}

var _ port.Decoder = (*Registry)(nil)
