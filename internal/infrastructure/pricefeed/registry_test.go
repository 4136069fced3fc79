package pricefeed

import (
	"errors"
	"testing"

	"coinfeed/internal/application/port"
)

type stubDecoder struct {
	calls int
}

func (d *stubDecoder) Decode(raw []byte) (port.Update, error) {
	d.calls++
	return port.Update{Type: "ticker"}, nil
}

func TestRegistryDispatchesOnType(t *testing.T) {
	reg := NewRegistry()
	ticker := &stubDecoder{}
	reg.Register("ticker", ticker)

	u, err := reg.Decode([]byte(`{"type":"ticker","code":"KRW-BTC"}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if u.Type != "ticker" || ticker.calls != 1 {
		t.Errorf("update = %+v, calls = %d", u, ticker.calls)
	}

	if _, err := reg.Decode([]byte(`{"ty":"ticker","cd":"KRW-BTC"}`)); err != nil {
		t.Fatalf("SIMPLE format Decode failed: %v", err)
	}
	if ticker.calls != 2 {
		t.Errorf("calls = %d, want 2", ticker.calls)
	}
}

func TestRegistryDecodeErrors(t *testing.T) {
	reg := NewRegistry()
	reg.Register("ticker", &stubDecoder{})

	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"malformed", `{not json`, ErrMalformed},
		{"unknown type", `{"type":"orderbook"}`, ErrUnknownType},
		{"no type", `{"code":"KRW-BTC"}`, ErrUnknownType},
		{"server error", `{"error":{"name":"INVALID_PARAM","message":"bad codes"}}`, ErrServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Decode([]byte(tt.raw))
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("expected *DecodeError, got %T", err)
			}
			if de.Raw == "" {
				t.Error("DecodeError should keep the payload")
			}
		})
	}
}

func TestRegistryStatusMessage(t *testing.T) {
	u, err := NewRegistry().Decode([]byte(`{"status":"UP"}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if u.Type != StatusType {
		t.Errorf("Type = %q, want %q", u.Type, StatusType)
	}
}

func TestRegistryIgnoresNilDecoder(t *testing.T) {
	reg := NewRegistry()
	reg.Register("ticker", nil)
	if _, ok := reg.Get("ticker"); ok {
		t.Error("nil decoder must not be registered")
	}
}

func TestNewDecodeErrorTruncates(t *testing.T) {
	raw := make([]byte, 1000)
	for i := range raw {
		raw[i] = 'x'
	}
	de := NewDecodeError("ticker", raw, ErrMalformed)
	if len(de.Raw) > 300 {
		t.Errorf("Raw length = %d, want truncated", len(de.Raw))
	}
}
