// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// A Conversation is an ordered, append-only sequence of Message values with
// two explicit truncation operations (delete-from and retry). Message is a
// tagged union over Role: user, assistant, tool_call, and tool_result
// variants share identity fields and populate only their own payload fields.
//
// # Invariants
//
//   - MessageCount == len(Messages) after every mutation
//   - TotalTokens is monotonically non-decreasing (truncation does not
//     reverse recorded token spend)
//   - every tool_result's ToolCallID references an earlier tool_call in the
//     same conversation
//
// The package has no knowledge of transport or persistence; it is mutated
// only by the engine package and serialized by the storage package.
package model
