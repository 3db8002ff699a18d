// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"errors"
	"testing"
)

func TestResponseErr(t *testing.T) {
	tests := []struct {
		name     string
		response Response
		sentinel error
	}{
		{"success", Response{"ok": true}, nil},
		{"server error", Response{KeyError: "boom"}, ErrRemote},
		{"timeout", errorResponse(KindTimeout, "no reply"), ErrTimeout},
		{"transport", errorResponse(KindTransport, "refused"), ErrTransport},
		{"protocol", errorResponse(KindProtocol, "bad frame"), ErrProtocol},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.response.Err()
			if test.sentinel == nil {
				if err != nil {
					t.Fatalf("Err() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, test.sentinel) {
				t.Fatalf("Err() = %v, want %v", err, test.sentinel)
			}
		})
	}
}

func TestResponseErrorMessageNonString(t *testing.T) {
	message, failed := Response{KeyError: 42}.ErrorMessage()
	if !failed || message != "42" {
		t.Errorf("ErrorMessage() = %q, %v", message, failed)
	}
}

func TestResponseString(t *testing.T) {
	got := Response{"source": "capture", "reply": ReplyPong}.String()
	want := "{reply: __pong__, source: capture}"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
