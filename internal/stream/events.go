// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"encoding/json"
)

// =============================================================================
// EVENT TYPES
// =============================================================================

// EventType identifies a named event on the wire.
type EventType string

const (
	EventToken      EventType = "token"
	EventThinking   EventType = "thinking"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventComplete   EventType = "complete"
	EventError      EventType = "error"
	EventPing       EventType = "ping"
)

// IsTerminal reports whether an event of this type ends the stream session.
func (t EventType) IsTerminal() bool {
	return t == EventComplete || t == EventError
}

// =============================================================================
// EVENT PAYLOADS
// =============================================================================

// TokenEvent carries one response text delta plus the server-side running total.
type TokenEvent struct {
	Token      string `json:"token"`
	Cumulative string `json:"cumulative"`
}

// ThinkingEvent carries one reasoning-trace delta.
type ThinkingEvent struct {
	Content    string `json:"content"`
	Cumulative string `json:"cumulative"`
}

// ToolCallEvent announces or updates a tool invocation by the model.
type ToolCallEvent struct {
	ID        string          `json:"id"`
	ToolName  string          `json:"tool_name"`
	Arguments json.RawMessage `json:"arguments"`
	Status    string          `json:"status"`
}

// ToolResultEvent reports the outcome of a previously announced tool call.
type ToolResultEvent struct {
	ToolCallID string          `json:"tool_call_id"`
	Result     json.RawMessage `json:"result"`
	IsError    bool            `json:"is_error"`
	LatencyMs  int64           `json:"latency_ms"`
}

// UsageInfo is the token accounting attached to a complete event.
type UsageInfo struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// CompleteEvent terminates a successful generation.
type CompleteEvent struct {
	Response string     `json:"response"`
	Usage    *UsageInfo `json:"usage,omitempty"`
}

// ErrorEvent terminates a failed generation. The transport also synthesizes
// one for connection-level failures, with Retryable set true.
type ErrorEvent struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// PingEvent is a keep-alive; its payload is opaque and never inspected.
type PingEvent struct {
	Raw json.RawMessage `json:"-"`
}

// =============================================================================
// HANDLERS
// =============================================================================

// Handlers is the callback table passed to Connect. Every field is optional;
// events without a registered handler are still recorded in the debug buffer.
type Handlers struct {
	Token      func(TokenEvent)
	Thinking   func(ThinkingEvent)
	ToolCall   func(ToolCallEvent)
	ToolResult func(ToolResultEvent)
	Complete   func(CompleteEvent)
	Error      func(ErrorEvent)
	Ping       func(PingEvent)
}

// =============================================================================
// PAYLOAD DECODING
// =============================================================================

// decodeEvent turns a framed event into its typed payload. The second return
// is false for unrecognized event types, which are ignored for forward
// compatibility. A non-nil error means the payload was malformed and the
// event must be dropped without terminating the stream.
func decodeEvent(typ EventType, data []byte) (any, bool, error) {
	switch typ {
	case EventToken:
		var ev TokenEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, true, err
		}
		return ev, true, nil
	case EventThinking:
		var ev ThinkingEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, true, err
		}
		return ev, true, nil
	case EventToolCall:
		var ev ToolCallEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, true, err
		}
		return ev, true, nil
	case EventToolResult:
		var ev ToolResultEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, true, err
		}
		return ev, true, nil
	case EventComplete:
		var ev CompleteEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, true, err
		}
		return ev, true, nil
	case EventError:
		var ev ErrorEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, true, err
		}
		return ev, true, nil
	case EventPing:
		// Keep-alive payloads are opaque; anything goes.
		return PingEvent{Raw: append(json.RawMessage(nil), data...)}, true, nil
	default:
		return nil, false, nil
	}
}
