// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine drives a conversation against the streaming chat backend.
//
// The engine owns one conversation and one stream transport. SendMessage
// appends the user's message, opens a stream, and folds the resulting events
// into the message list: tool_call/tool_result pairs first, in the order the
// calls were announced, then the assistant's answer. Errors, cancellation,
// and retry all resolve to well-defined message-list shapes; the caller never
// sees a half-folded generation.
package engine
