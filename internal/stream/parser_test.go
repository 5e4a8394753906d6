// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"fmt"
	"testing"
)

func feedAll(p *parser, chunks ...string) []rawEvent {
	var events []rawEvent
	for _, c := range chunks {
		events = append(events, p.feed([]byte(c))...)
	}
	return events
}

func TestParser_SingleEvent(t *testing.T) {
	p := &parser{}
	events := feedAll(p, "event: token\ndata: {\"token\":\"hi\"}\n\n")

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Type != EventToken {
		t.Errorf("expected token event, got %q", events[0].Type)
	}
	if string(events[0].Data) != `{"token":"hi"}` {
		t.Errorf("unexpected data: %q", events[0].Data)
	}
}

func TestParser_MultipleEventsOneChunk(t *testing.T) {
	p := &parser{}
	events := feedAll(p,
		"event: token\ndata: {\"token\":\"a\"}\n\nevent: token\ndata: {\"token\":\"b\"}\n\nevent: complete\ndata: {}\n\n")

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Type != EventToken || events[1].Type != EventToken || events[2].Type != EventComplete {
		t.Errorf("wrong event order: %v %v %v", events[0].Type, events[1].Type, events[2].Type)
	}
}

// Framing must be identical no matter where chunk boundaries fall.
func TestParser_ArbitraryChunkBoundaries(t *testing.T) {
	wire := "event: token\ndata: {\"token\":\"héllo\"}\n\nevent: complete\ndata: {\"response\":\"héllo\"}\n\n"

	for size := 1; size <= len(wire); size++ {
		t.Run(fmt.Sprintf("chunk_%d", size), func(t *testing.T) {
			p := &parser{}
			var events []rawEvent
			for i := 0; i < len(wire); i += size {
				end := i + size
				if end > len(wire) {
					end = len(wire)
				}
				events = append(events, p.feed([]byte(wire[i:end]))...)
			}

			if len(events) != 2 {
				t.Fatalf("expected 2 events, got %d", len(events))
			}
			if string(events[0].Data) != `{"token":"héllo"}` {
				t.Errorf("multi-byte rune corrupted: %q", events[0].Data)
			}
			if events[1].Type != EventComplete {
				t.Errorf("expected complete, got %q", events[1].Type)
			}
		})
	}
}

func TestParser_SplitInsideRune(t *testing.T) {
	p := &parser{}
	// "é" is 0xC3 0xA9; split between the two bytes.
	full := []byte("event: token\ndata: {\"token\":\"é\"}\n\n")
	cut := bytes.IndexByte(full, 0xC3) + 1
	events := p.feed(full[:cut])
	events = append(events, p.feed(full[cut:])...)

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if string(events[0].Data) != `{"token":"é"}` {
		t.Errorf("rune corrupted across chunk boundary: %q", events[0].Data)
	}
}

func TestParser_CRLFLineEndings(t *testing.T) {
	p := &parser{}
	events := feedAll(p, "event: token\r\ndata: {\"token\":\"x\"}\r\n\r\n")

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Type != EventToken {
		t.Errorf("expected token, got %q", events[0].Type)
	}
}

func TestParser_IgnoresUnknownLines(t *testing.T) {
	p := &parser{}
	events := feedAll(p, ": comment\nretry: 3000\nevent: ping\ndata: {}\n\n")

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Type != EventPing {
		t.Errorf("expected ping, got %q", events[0].Type)
	}
}

func TestParser_BlankLineWithoutPairEmitsNothing(t *testing.T) {
	p := &parser{}
	if events := feedAll(p, "\n\n\nevent: token\n\n"); len(events) != 0 {
		t.Errorf("expected no events without a data line, got %d", len(events))
	}
}

func TestParser_PartialEventHeldAcrossChunks(t *testing.T) {
	p := &parser{}
	if events := feedAll(p, "event: token\ndata: {\"token\":\"a\"}"); len(events) != 0 {
		t.Fatalf("incomplete frame emitted early: %d events", len(events))
	}
	events := feedAll(p, "\n\n")
	if len(events) != 1 {
		t.Fatalf("expected the held event to complete, got %d", len(events))
	}
}

func TestParser_DataSurvivesBufferReuse(t *testing.T) {
	p := &parser{}
	first := feedAll(p, "event: token\ndata: {\"token\":\"first\"}\n\n")
	feedAll(p, "event: token\ndata: {\"token\":\"second\"}\n\n")

	if string(first[0].Data) != `{"token":"first"}` {
		t.Errorf("earlier event data clobbered by later feed: %q", first[0].Data)
	}
}
