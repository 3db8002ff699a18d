// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the CBOR configuration shared by every IPC message in
// this repository: control channel requests and responses, and bus
// payloads produced with PublishValue.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2) so the same
// logical value always produces the same bytes. Decoding into untyped
// targets yields map[string]any for maps and int64 for integers, which
// is what request handlers and test assertions expect to see. Unknown
// struct fields are ignored so either side may add fields first.
//
//	frame, err := codec.Marshal(request)
//	err = codec.Unmarshal(frame, &response)
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// Endpoints and other TextMarshalers travel as CBOR text strings.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Command arguments and responses are decoded into any-typed
		// maps. The CBOR default of map[interface{}]interface{} does
		// not round-trip through handlers written against string keys.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		// Positive integers would otherwise decode as uint64 and
		// negative ones as int64; one integer type keeps comparisons
		// in handlers simple.
		IntDec:          cbor.IntDecConvertSigned,
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes one CBOR data item into v. Trailing bytes are an
// error: every frame carries exactly one item.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// RawMessage is an encoded CBOR value whose decoding is deferred.
type RawMessage = cbor.RawMessage

// Diagnose returns the CBOR diagnostic notation (RFC 8949 §8) for data.
// Operator tools use it to print opaque payloads.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
