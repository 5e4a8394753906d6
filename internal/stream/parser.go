// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
)

// =============================================================================
// EVENT FRAMING PARSER
// =============================================================================

// rawEvent is one framed wire event before payload decoding.
type rawEvent struct {
	Type EventType
	Data []byte
}

// parser reassembles the line-oriented event framing from an arbitrary
// sequence of byte chunks. Chunks are buffered as raw bytes and only split on
// complete '\n' boundaries, so a chunk boundary falling inside a multi-byte
// UTF-8 sequence can never corrupt a character: the partial bytes simply wait
// in the buffer for the rest of their line.
type parser struct {
	buf []byte

	// Fields of the event currently being assembled.
	eventType EventType
	data      []byte
	haveData  bool
}

// feed appends a chunk and returns every event completed by it, in wire order.
func (p *parser) feed(chunk []byte) []rawEvent {
	p.buf = append(p.buf, chunk...)

	var events []rawEvent
	for {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			break
		}
		line := p.buf[:i]
		p.buf = p.buf[i+1:]

		// Tolerate CRLF line endings.
		line = bytes.TrimSuffix(line, []byte("\r"))

		if ev, ok := p.consumeLine(line); ok {
			events = append(events, ev)
		}
	}
	return events
}

// consumeLine folds one complete line into the parser state. It returns a
// finished event when the line is the blank terminator of a fully assembled
// event:/data: pair. Any other line shape is ignored.
func (p *parser) consumeLine(line []byte) (rawEvent, bool) {
	if len(line) == 0 {
		if p.eventType != "" && p.haveData {
			ev := rawEvent{Type: p.eventType, Data: p.data}
			p.eventType = ""
			p.data = nil
			p.haveData = false
			return ev, true
		}
		return rawEvent{}, false
	}

	switch {
	case bytes.HasPrefix(line, []byte("event:")):
		p.eventType = EventType(bytes.TrimSpace(line[len("event:"):]))
	case bytes.HasPrefix(line, []byte("data:")):
		// Copy: the backing array is re-sliced on the next feed.
		p.data = append([]byte(nil), bytes.TrimSpace(line[len("data:"):])...)
		p.haveData = true
	}
	return rawEvent{}, false
}
