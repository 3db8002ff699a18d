// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"log/slog"

	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/codec"
)

// Message is one bus message as it travels on the wire.
type Message struct {
	Topic   string
	Payload []byte
}

// Decode unmarshals a CBOR payload into v.
func (m Message) Decode(v any) error {
	return codec.Unmarshal(m.Payload, v)
}

func loggerOrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}
