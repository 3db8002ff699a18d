// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/endpoint"
)

type sampleRequest struct {
	Cmd  string         `cbor:"cmd"`
	Args map[string]any `cbor:"args"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleRequest{
		Cmd:  "set-overlay",
		Args: map[string]any{"visible": true, "opacity": int64(80), "name": "lap-timer"},
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleRequest
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if !reflect.DeepEqual(decoded, original) {
		t.Errorf("roundtrip mismatch: got %#v, want %#v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	message := map[string]any{"b": 2, "a": 1, "c": []any{"x", "y"}}

	first, err := Marshal(message)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	second, err := Marshal(message)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestUntypedDecodingUsesStringMapsAndInt64(t *testing.T) {
	data, err := Marshal(map[string]any{
		"value":  1,
		"delta":  -3,
		"nested": map[string]any{"ok": true},
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	top, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("expected map[string]any, got %T", decoded)
	}
	if value, ok := top["value"].(int64); !ok || value != 1 {
		t.Errorf("value = %#v, want int64(1)", top["value"])
	}
	if delta, ok := top["delta"].(int64); !ok || delta != -3 {
		t.Errorf("delta = %#v, want int64(-3)", top["delta"])
	}
	if _, ok := top["nested"].(map[string]any); !ok {
		t.Errorf("nested = %T, want map[string]any", top["nested"])
	}
}

func TestUnmarshalRejectsTrailingBytes(t *testing.T) {
	first, _ := Marshal("one")
	second, _ := Marshal("two")

	var decoded string
	if err := Unmarshal(append(first, second...), &decoded); err == nil {
		t.Fatal("expected an error for two concatenated items")
	}
}

func TestTextMarshalerEncodesAsString(t *testing.T) {
	data, err := Marshal(map[string]any{"endpoint": endpoint.Loopback(5555)})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	diagnostic, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(diagnostic, `"tcp://127.0.0.1:5555"`) {
		t.Errorf("expected endpoint as text string, got %s", diagnostic)
	}

	var decoded struct {
		Endpoint endpoint.Endpoint `cbor:"endpoint"`
	}
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Endpoint != endpoint.Loopback(5555) {
		t.Errorf("decoded endpoint = %+v", decoded.Endpoint)
	}
}
