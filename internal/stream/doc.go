// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream implements the server-sent-events client used to talk to
// the chat backend.
//
// The wire format is line oriented: each event is an "event:" line naming
// the type, a "data:" line carrying a JSON payload, and a blank line ending
// the frame. The parser accumulates raw bytes and only splits on newlines,
// so chunk boundaries may fall anywhere, including mid-rune.
//
// Transport owns one connection at a time. Connect blocks until the stream
// terminates and dispatches typed callbacks on the calling goroutine, in
// wire order. Every decoded event is also retained in a bounded DebugBuffer
// for after-the-fact inspection.
package stream
