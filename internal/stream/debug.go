// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultDebugCapacity bounds the debug ring so long sessions never grow it.
const DefaultDebugCapacity = 100

// DebugEvent is one successfully decoded stream event, retained for
// inspection after the fact.
type DebugEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Raw       string    `json:"raw"`
	Parsed    any       `json:"parsed"`
	Timestamp time.Time `json:"timestamp"`
}

// DebugBuffer is a fixed-capacity ring of recent stream events. When full,
// recording a new event evicts the oldest.
type DebugBuffer struct {
	mu    sync.Mutex
	cap   int
	items []DebugEvent
}

// NewDebugBuffer creates a ring holding at most capacity events.
func NewDebugBuffer(capacity int) *DebugBuffer {
	if capacity <= 0 {
		capacity = DefaultDebugCapacity
	}
	return &DebugBuffer{cap: capacity}
}

// Record appends one decoded event, evicting the oldest entry if the ring is
// at capacity.
func (b *DebugBuffer) Record(eventType string, raw []byte, parsed any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) >= b.cap {
		b.items = b.items[1:]
	}
	b.items = append(b.items, DebugEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Raw:       string(raw),
		Parsed:    parsed,
		Timestamp: time.Now(),
	})
}

// Events returns the retained events, oldest first. The returned slice is a
// copy; callers may keep it across further recording.
func (b *DebugBuffer) Events() []DebugEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]DebugEvent, len(b.items))
	copy(out, b.items)
	return out
}

// Len reports how many events the ring currently holds.
func (b *DebugBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Clear discards all retained events.
func (b *DebugBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = nil
}
