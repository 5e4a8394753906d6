// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the kind of a message. A conversation interleaves four
// kinds: user input, assistant answers, and tool call/result pairs recorded
// between a user turn and the answer that used them.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolCall   Role = "tool_call"
	RoleToolResult Role = "tool_result"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleToolCall:
		return "Tool Call"
	case RoleToolResult:
		return "Tool Result"
	default:
		return string(r)
	}
}

// =============================================================================
// STATUS TYPE
// =============================================================================

// MessageStatus tracks the lifecycle of a message.
type MessageStatus string

const (
	StatusStreaming MessageStatus = "streaming"
	StatusComplete  MessageStatus = "complete"
	StatusError     MessageStatus = "error"
	StatusCancelled MessageStatus = "cancelled"
)

// =============================================================================
// USAGE TYPE
// =============================================================================

// Usage holds token counts reported by the backend for one generation.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Total returns the combined token count.
func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single entry in a conversation. It is a tagged union
// over Role: only the fields for the message's role are populated.
type Message struct {
	// Identity
	ID        string        `json:"id"`
	Role      Role          `json:"role"`
	Timestamp time.Time     `json:"timestamp"`
	Status    MessageStatus `json:"status"`

	// User and assistant content
	Content string `json:"content,omitempty"`

	// Assistant extras
	Thinking string `json:"thinking,omitempty"`
	Usage    *Usage `json:"usage,omitempty"`
	Model    string `json:"model,omitempty"`

	// Tool call fields
	ToolName   string          `json:"tool_name,omitempty"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`

	// Tool result fields (ToolCallID shared with the call it answers)
	Result    json.RawMessage `json:"result,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	LatencyMs int64           `json:"latency_ms,omitempty"`
}

// NewUserMessage creates a complete user message.
func NewUserMessage(content string) *Message {
	return &Message{
		ID:        generateMessageID(),
		Role:      RoleUser,
		Timestamp: time.Now(),
		Status:    StatusComplete,
		Content:   content,
	}
}

// NewAssistantMessage creates a complete assistant message carrying the final
// response text, the optional thinking trace, and the reported usage.
func NewAssistantMessage(content, thinking string, usage *Usage, model string) *Message {
	return &Message{
		ID:        generateMessageID(),
		Role:      RoleAssistant,
		Timestamp: time.Now(),
		Status:    StatusComplete,
		Content:   content,
		Thinking:  thinking,
		Usage:     usage,
		Model:     model,
	}
}

// NewErrorMessage creates an assistant message recording a failed generation.
// The content is the error text shown to the user.
func NewErrorMessage(text string) *Message {
	return &Message{
		ID:        generateMessageID(),
		Role:      RoleAssistant,
		Timestamp: time.Now(),
		Status:    StatusError,
		Content:   text,
	}
}

// NewToolCallMessage creates a tool call message.
func NewToolCallMessage(callID, toolName string, arguments json.RawMessage) *Message {
	return &Message{
		ID:         generateMessageID(),
		Role:       RoleToolCall,
		Timestamp:  time.Now(),
		Status:     StatusComplete,
		ToolName:   toolName,
		Arguments:  arguments,
		ToolCallID: callID,
	}
}

// NewToolResultMessage creates a tool result message answering a prior call.
func NewToolResultMessage(callID string, result json.RawMessage, isError bool, latencyMs int64) *Message {
	return &Message{
		ID:         generateMessageID(),
		Role:       RoleToolResult,
		Timestamp:  time.Now(),
		Status:     StatusComplete,
		ToolCallID: callID,
		Result:     result,
		IsError:    isError,
		LatencyMs:  latencyMs,
	}
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// IsTool returns true for tool_call and tool_result messages.
func (m *Message) IsTool() bool {
	return m.Role == RoleToolCall || m.Role == RoleToolResult
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	return string(runes[:maxLen-3]) + "..."
}

// EstimateTokens gives a rough estimate of token count.
// Uses the approximation of ~4 characters per token.
func (m *Message) EstimateTokens() int {
	return (len(m.Content) + 3) / 4
}

// ResultString returns the tool result payload as display text. Structured
// results are returned as their JSON encoding; plain string results are
// unquoted.
func (m *Message) ResultString() string {
	if len(m.Result) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Result, &s); err == nil {
		return s
	}
	return string(m.Result)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateMessageID creates a unique message ID.
func generateMessageID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "msg_" + hex.EncodeToString(bytes)
}
