// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"encoding/json"
	"strings"
)

// =============================================================================
// STREAM SESSION
// =============================================================================

// toolState tracks one in-flight tool invocation announced by the stream.
type toolState struct {
	ID        string
	Name      string
	Arguments json.RawMessage
	Status    string

	Result    json.RawMessage
	IsError   bool
	LatencyMs int64
	Resolved  bool
}

// session holds the ephemeral accumulators for one generation. It is created
// when a send begins and discarded on the terminal event or cancellation;
// nothing in it is persisted.
type session struct {
	response strings.Builder
	thinking strings.Builder

	// Tool calls keyed by id, with first-seen order preserved separately so
	// materialization on complete is deterministic.
	tools     map[string]*toolState
	toolOrder []string

	userMessageID string
	model         string
}

func newSession(userMessageID, model string) *session {
	return &session{
		tools:         make(map[string]*toolState),
		userMessageID: userMessageID,
		model:         model,
	}
}

// upsertToolCall records or updates a tool invocation. Repeated events for
// the same id update status and arguments in place.
func (s *session) upsertToolCall(id, name string, arguments json.RawMessage, status string) {
	if t, ok := s.tools[id]; ok {
		t.Status = status
		if len(arguments) > 0 {
			t.Arguments = arguments
		}
		return
	}
	s.tools[id] = &toolState{ID: id, Name: name, Arguments: arguments, Status: status}
	s.toolOrder = append(s.toolOrder, id)
}

// resolveToolCall attaches a result to a pending tool call. Results with no
// matching call are dropped; the return value reports whether one matched.
func (s *session) resolveToolCall(id string, result json.RawMessage, isError bool, latencyMs int64) bool {
	t, ok := s.tools[id]
	if !ok {
		return false
	}
	t.Result = result
	t.IsError = isError
	t.LatencyMs = latencyMs
	t.Resolved = true
	t.Status = "complete"
	return true
}

// orderedTools returns the tool states in first-seen order.
func (s *session) orderedTools() []*toolState {
	out := make([]*toolState, 0, len(s.toolOrder))
	for _, id := range s.toolOrder {
		out = append(out, s.tools[id])
	}
	return out
}
