// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"fmt"
	"testing"
)

func TestDebugBuffer_EvictsOldestAtCapacity(t *testing.T) {
	b := NewDebugBuffer(DefaultDebugCapacity)

	for i := 0; i < DefaultDebugCapacity+25; i++ {
		b.Record("token", []byte(fmt.Sprintf(`{"token":"t%d"}`, i)), nil)
	}

	if b.Len() != DefaultDebugCapacity {
		t.Fatalf("ring grew past capacity: %d", b.Len())
	}

	events := b.Events()
	if events[0].Raw != `{"token":"t25"}` {
		t.Errorf("oldest retained = %q, want t25", events[0].Raw)
	}
	if last := events[len(events)-1].Raw; last != fmt.Sprintf(`{"token":"t%d"}`, DefaultDebugCapacity+24) {
		t.Errorf("newest retained = %q", last)
	}
}

func TestDebugBuffer_EventsReturnsCopy(t *testing.T) {
	b := NewDebugBuffer(10)
	b.Record("token", []byte(`{}`), nil)

	snapshot := b.Events()
	b.Record("complete", []byte(`{}`), nil)

	if len(snapshot) != 1 {
		t.Errorf("snapshot mutated by later record: %d entries", len(snapshot))
	}
}

func TestDebugBuffer_Clear(t *testing.T) {
	b := NewDebugBuffer(10)
	b.Record("token", []byte(`{}`), nil)
	b.Clear()
	if b.Len() != 0 {
		t.Errorf("Len after Clear = %d", b.Len())
	}
}
