package hyperliquid

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func sampleAction() orderAction {
	return orderAction{
		Type: "order",
		Orders: []orderWire{{
			Asset:   1,
			IsBuy:   true,
			LimitPx: "102.3",
			Size:    "4.8876",
			Type:    orderType{Limit: &limitType{Tif: "Ioc"}},
		}},
		Grouping: "na",
	}
}

func TestSigningPayload_IsMsgpack(t *testing.T) {
	payload, err := signingPayload(sampleAction())
	if err != nil {
		t.Fatalf("signingPayload() error = %v", err)
	}

	// A three-field action encodes as a msgpack fixmap with "type" as
	// its first key. JSON bytes here would produce a digest the
	// exchange never reproduces.
	if payload[0] != 0x83 {
		t.Errorf("payload[0] = %#x, want 0x83 (fixmap, 3 entries)", payload[0])
	}
	if !bytes.Contains(payload[:8], []byte("type")) {
		t.Errorf("payload %x does not open with the type key", payload[:8])
	}
	var js map[string]any
	if err := json.Unmarshal(payload, &js); err == nil {
		t.Error("payload decoded as JSON; action hash must be over msgpack bytes")
	}
}

func TestSigningPayload_RoundTrip(t *testing.T) {
	action := sampleAction()
	payload, err := signingPayload(action)
	if err != nil {
		t.Fatalf("signingPayload() error = %v", err)
	}

	var decoded orderAction
	if err := msgpack.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("msgpack.Unmarshal() error = %v", err)
	}
	if decoded.Type != "order" || decoded.Grouping != "na" {
		t.Errorf("decoded = %+v, want type=order grouping=na", decoded)
	}
	if len(decoded.Orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(decoded.Orders))
	}
	o := decoded.Orders[0]
	if o.Asset != 1 || !o.IsBuy || o.LimitPx != "102.3" || o.Size != "4.8876" {
		t.Errorf("order = %+v", o)
	}
	if o.Type.Limit == nil || o.Type.Limit.Tif != "Ioc" {
		t.Errorf("order type = %+v, want Ioc limit", o.Type)
	}
}

func TestFormatPx(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{102.300000, "102.3"},
		{97425, "97425"},
		{0.0512345678, "0.051235"},
	}
	for _, tt := range tests {
		if got := formatPx(tt.in); got != tt.want {
			t.Errorf("formatPx(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
