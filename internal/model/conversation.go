// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds a complete chat conversation with history and metadata.
//
// Two counters are maintained alongside Messages: MessageCount always equals
// len(Messages) after every mutation, and TotalTokens accumulates reported
// usage. TotalTokens is never decremented by truncation - token spend reflects
// cost already incurred.
type Conversation struct {
	// Identity
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Messages
	Messages []*Message `json:"messages"`

	// Model configuration
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Counters
	TotalTokens  int `json:"total_tokens"`
	MessageCount int `json:"message_count"`
}

// NewConversation creates a new conversation with a generated ID.
func NewConversation(model string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        generateConversationID(),
		CreatedAt: now,
		UpdatedAt: now,
		Model:     model,
		Messages:  make([]*Message, 0),
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// Append adds a message to the conversation and keeps the counters in sync.
func (c *Conversation) Append(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.MessageCount = len(c.Messages)
	c.UpdatedAt = time.Now()
	c.updateTitle()
}

// AddUsage folds one generation's reported token usage into TotalTokens.
func (c *Conversation) AddUsage(u *Usage) {
	if u == nil {
		return
	}
	c.TotalTokens += u.Total()
}

// TruncateFrom removes the message at index and everything after it.
// MessageCount is recomputed; TotalTokens is deliberately left alone.
func (c *Conversation) TruncateFrom(index int) {
	if index < 0 || index >= len(c.Messages) {
		return
	}
	c.Messages = c.Messages[:index]
	c.MessageCount = len(c.Messages)
	c.UpdatedAt = time.Now()
}

// GetLastMessage returns the most recent message, or nil if empty.
func (c *Conversation) GetLastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// LastUserIndexAtOrBefore returns the index of the nearest user message at or
// before index, or -1 if there is none.
func (c *Conversation) LastUserIndexAtOrBefore(index int) int {
	if index >= len(c.Messages) {
		index = len(c.Messages) - 1
	}
	for i := index; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return i
		}
	}
	return -1
}

// MessageAt returns the message at index, or nil when out of range.
func (c *Conversation) MessageAt(index int) *Message {
	if index < 0 || index >= len(c.Messages) {
		return nil
	}
	return c.Messages[index]
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// =============================================================================
// REPLAY HISTORY
// =============================================================================

// Turn is one entry of the replay history sent to the backend.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// History returns the conversation as replay turns for the backend: user and
// completed assistant messages only. Tool messages are excluded - the backend
// reconstructs tool context on its own - and error or cancelled assistant
// entries carry no model output worth replaying.
func (c *Conversation) History() []Turn {
	turns := make([]Turn, 0, len(c.Messages))
	for _, msg := range c.Messages {
		switch msg.Role {
		case RoleUser:
			turns = append(turns, Turn{Role: "user", Content: msg.Content})
		case RoleAssistant:
			if msg.Status == StatusComplete {
				turns = append(turns, Turn{Role: "assistant", Content: msg.Content})
			}
		}
	}
	return turns
}

// =============================================================================
// TOOL PAIRING
// =============================================================================

// CheckToolPairing verifies that every tool_result references a tool_call
// seen earlier in the conversation. Returns the offending ToolCallID, or ""
// when the invariant holds.
func (c *Conversation) CheckToolPairing() string {
	seen := make(map[string]bool)
	for _, msg := range c.Messages {
		switch msg.Role {
		case RoleToolCall:
			seen[msg.ToolCallID] = true
		case RoleToolResult:
			if !seen[msg.ToolCallID] {
				return msg.ToolCallID
			}
		}
	}
	return ""
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// updateTitle auto-generates a title from the first user message if not set.
func (c *Conversation) updateTitle() {
	if c.Title != "" {
		return
	}
	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			c.Title = msg.Preview(50)
			return
		}
	}
}

// SetTitle manually sets the conversation title.
func (c *Conversation) SetTitle(title string) {
	c.Title = title
	c.UpdatedAt = time.Now()
}

// GetTitle returns the conversation title or a default.
func (c *Conversation) GetTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return "New Conversation"
}

// =============================================================================
// SERIALIZATION HELPERS
// =============================================================================

// Preview returns a short preview of the conversation.
func (c *Conversation) Preview() string {
	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			return msg.Preview(100)
		}
	}
	return "Empty conversation"
}

// ConversationMeta holds lightweight metadata for listing.
type ConversationMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	MessageCount int       `json:"message_count"`
	TotalTokens  int       `json:"total_tokens"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Preview      string    `json:"preview"`
}

// GetMeta returns metadata about the conversation.
func (c *Conversation) GetMeta() ConversationMeta {
	return ConversationMeta{
		ID:           c.ID,
		Title:        c.GetTitle(),
		Model:        c.Model,
		MessageCount: c.MessageCount,
		TotalTokens:  c.TotalTokens,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		Preview:      c.Preview(),
	}
}

// Clone creates a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	clone := &Conversation{
		ID:           c.ID,
		Title:        c.Title,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		Model:        c.Model,
		SystemPrompt: c.SystemPrompt,
		TotalTokens:  c.TotalTokens,
		MessageCount: c.MessageCount,
		Messages:     make([]*Message, len(c.Messages)),
	}
	for i, msg := range c.Messages {
		msgCopy := *msg
		clone.Messages[i] = &msgCopy
	}
	return clone
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateConversationID creates a unique conversation ID.
func generateConversationID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "conv_" + hex.EncodeToString(bytes)
}
