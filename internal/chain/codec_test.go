package chain

import (
	"reflect"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []any{
		"oracle",
		map[string]any{"get_pair_info": map[string]any{}},
		map[string]any{"swap_tokens": map[string]any{"expected_return": "123456"}},
		[]any{"a", float64(2), true},
	}
	for _, in := range cases {
		encoded, err := EncodeJSONToB64(in)
		if err != nil {
			t.Fatalf("encode %v: %v", in, err)
		}
		var out any
		if err := DecodeB64ToJSON(encoded, &out); err != nil {
			t.Fatalf("decode %v: %v", in, err)
		}
		if !reflect.DeepEqual(in, out) {
			t.Errorf("round trip mismatch: in %#v, out %#v", in, out)
		}
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	var out any
	if err := DecodeB64ToJSON("not base64!!!", &out); err == nil {
		t.Error("expected error for invalid base64")
	}
	// Valid base64, invalid JSON inside.
	if err := DecodeB64ToJSON("bm90IGpzb24=", &out); err == nil {
		t.Error("expected error for non-JSON payload")
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(ErrInvalidResponse) {
		t.Error("sentinel should classify as transient")
	}
	if !IsTransient(errString("rpc failure: invalid json response from node")) {
		t.Error("substring match should classify as transient")
	}
	if IsTransient(errString("connection refused")) {
		t.Error("unrelated error should not classify as transient")
	}
	if IsTransient(nil) {
		t.Error("nil error should not classify as transient")
	}
}

type errString string

func (e errString) Error() string { return string(e) }
