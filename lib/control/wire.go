// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"fmt"
	"sort"
	"strings"
)

// Reserved commands and their replies.
const (
	CommandPing      = "__ping__"
	CommandTerminate = "__terminate__"

	ReplyPong         = "__pong__"
	ReplyTerminateAck = "__terminate_ack__"
)

// Response keys with fixed meaning.
const (
	KeyError  = "error"
	KeyReply  = "reply"
	KeySource = "source"

	// KeyErrorKind is set only on responses the client synthesizes;
	// servers send bare {error: string}.
	KeyErrorKind = "error_kind"
)

// Request is the wire form of a command.
type Request struct {
	Cmd  string         `cbor:"cmd"`
	Args map[string]any `cbor:"args,omitempty"`
}

// Response is a decoded response map. A response carrying the "error"
// key is a failure; anything else is the handler's result.
type Response map[string]any

// ErrorMessage returns the error string and true if the response is a
// failure.
func (r Response) ErrorMessage() (string, bool) {
	value, ok := r[KeyError]
	if !ok {
		return "", false
	}
	if message, isString := value.(string); isString {
		return message, true
	}
	return fmt.Sprint(value), true
}

// Err returns nil for a successful response, otherwise an *Error whose
// Kind says where the failure happened.
func (r Response) Err() error {
	message, failed := r.ErrorMessage()
	if !failed {
		return nil
	}
	kind := KindRemote
	if value, ok := r[KeyErrorKind].(string); ok {
		kind = ErrorKind(value)
	}
	return &Error{Kind: kind, Message: message}
}

// Reply returns the "reply" string of a reserved-command response.
func (r Response) Reply() string {
	reply, _ := r[KeyReply].(string)
	return reply
}

// Source returns the server name from a ping or terminate reply.
func (r Response) Source() string {
	source, _ := r[KeySource].(string)
	return source
}

// String renders the response with sorted keys, for logs and the CLI.
func (r Response) String() string {
	keys := make([]string, 0, len(r))
	for key := range r {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var builder strings.Builder
	builder.WriteByte('{')
	for index, key := range keys {
		if index > 0 {
			builder.WriteString(", ")
		}
		fmt.Fprintf(&builder, "%s: %v", key, r[key])
	}
	builder.WriteByte('}')
	return builder.String()
}

func errorResponse(kind ErrorKind, format string, args ...any) Response {
	return Response{
		KeyError:     fmt.Sprintf(format, args...),
		KeyErrorKind: string(kind),
	}
}
