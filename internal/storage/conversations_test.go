// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jeranaias/tidechat/internal/model"
)

func testStore(t *testing.T) *ConversationStore {
	t.Helper()
	store, err := NewConversationStoreWithDir(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func testConversation(content string) *model.Conversation {
	conv := model.NewConversation("tide-small")
	conv.Append(model.NewUserMessage(content))
	conv.Append(model.NewAssistantMessage("sure", "", &model.Usage{PromptTokens: 3, CompletionTokens: 1}, "tide-small"))
	conv.AddUsage(&model.Usage{PromptTokens: 3, CompletionTokens: 1})
	return conv
}

func TestStore_SaveAndLoad(t *testing.T) {
	store := testStore(t)
	conv := testConversation("hello there")

	if err := store.Save(conv); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(conv.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.ID != conv.ID {
		t.Errorf("ID = %q, want %q", loaded.ID, conv.ID)
	}
	if len(loaded.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(loaded.Messages))
	}
	if loaded.Messages[0].Role != model.RoleUser || loaded.Messages[0].Content != "hello there" {
		t.Errorf("user message mangled: %+v", loaded.Messages[0])
	}
	if loaded.Messages[1].Usage == nil || loaded.Messages[1].Usage.PromptTokens != 3 {
		t.Errorf("assistant usage lost: %+v", loaded.Messages[1].Usage)
	}
	if loaded.TotalTokens != 4 {
		t.Errorf("TotalTokens = %d, want 4", loaded.TotalTokens)
	}
	if loaded.MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2", loaded.MessageCount)
	}
}

func TestStore_ToolMessagesRoundTrip(t *testing.T) {
	store := testStore(t)
	conv := model.NewConversation("tide-small")
	conv.Append(model.NewUserMessage("look it up"))
	conv.Append(model.NewToolCallMessage("t1", "search", json.RawMessage(`{"q":"tides"}`)))
	conv.Append(model.NewToolResultMessage("t1", json.RawMessage(`"high at noon"`), false, 52))
	conv.Append(model.NewAssistantMessage("high at noon", "", nil, "tide-small"))

	if err := store.Save(conv); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := store.Load(conv.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Messages[1].Role != model.RoleToolCall || loaded.Messages[1].ToolName != "search" {
		t.Errorf("tool_call mangled: %+v", loaded.Messages[1])
	}
	if loaded.Messages[2].Role != model.RoleToolResult || loaded.Messages[2].ResultString() != "high at noon" {
		t.Errorf("tool_result mangled: %+v", loaded.Messages[2])
	}
	if offending := loaded.CheckToolPairing(); offending != "" {
		t.Errorf("tool pairing broken after round trip: %s", offending)
	}
}

func TestStore_LoadMissing(t *testing.T) {
	store := testStore(t)
	_, err := store.Load("conv_nope")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestStore_ListOrdersMostRecentFirst(t *testing.T) {
	store := testStore(t)

	first := testConversation("first question")
	second := testConversation("second question")
	if err := store.Save(first); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(second); err != nil {
		t.Fatal(err)
	}

	metas, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(metas))
	}
	if metas[0].ID != second.ID {
		t.Errorf("most recent not first: %q", metas[0].ID)
	}
	if metas[0].MessageCount != 2 {
		t.Errorf("MessageCount = %d", metas[0].MessageCount)
	}
}

func TestStore_Search(t *testing.T) {
	store := testStore(t)
	store.Save(testConversation("how do tides work"))
	store.Save(testConversation("recipe for bread"))

	results, err := store.Search("tides")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if !strings.Contains(strings.ToLower(results[0].Title), "tides") {
		t.Errorf("wrong result: %+v", results[0])
	}
}

func TestStore_SearchMessages(t *testing.T) {
	store := testStore(t)

	conv := model.NewConversation("tide-small")
	conv.Append(model.NewUserMessage("check the weather"))
	conv.Append(model.NewToolCallMessage("t1", "forecast", json.RawMessage(`{"city":"Reykjavik"}`)))
	conv.Append(model.NewToolResultMessage("t1", json.RawMessage(`"rain"`), false, 10))
	store.Save(conv)
	store.Save(testConversation("unrelated"))

	// Query hits tool arguments only.
	results, err := store.SearchMessages("reykjavik")
	if err != nil {
		t.Fatalf("SearchMessages failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != conv.ID {
		t.Fatalf("expected tool-argument match, got %+v", results)
	}
}

func TestStore_Delete(t *testing.T) {
	store := testStore(t)
	conv := testConversation("bye")
	store.Save(conv)

	if err := store.Delete(conv.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Load(conv.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("conversation still loadable after delete: %v", err)
	}
	if err := store.Delete(conv.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("second delete should report not found, got %v", err)
	}
}

func TestStore_Clear(t *testing.T) {
	store := testStore(t)
	store.Save(testConversation("a"))
	store.Save(testConversation("b"))

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	metas, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 0 {
		t.Errorf("expected empty store, got %d", len(metas))
	}
}

func TestStore_EnforcesLimit(t *testing.T) {
	store := testStore(t)
	store.MaxConversations = 3

	var ids []string
	for i := 0; i < 5; i++ {
		conv := testConversation(fmt.Sprintf("conversation %d", i))
		if err := store.Save(conv); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, conv.ID)
	}

	metas, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 3 {
		t.Fatalf("expected 3 retained, got %d", len(metas))
	}
	// The two oldest are gone.
	for _, victim := range ids[:2] {
		if _, err := store.Load(victim); !errors.Is(err, ErrConversationNotFound) {
			t.Errorf("oldest conversation %s not evicted", victim)
		}
	}
}

func TestFormatSessionList(t *testing.T) {
	out := FormatSessionList(nil)
	if out != "No sessions found." {
		t.Errorf("empty list output = %q", out)
	}

	conv := testConversation("how do tides work exactly")
	out = FormatSessionList([]model.ConversationMeta{conv.GetMeta()})
	if !strings.Contains(out, "how do tides work") {
		t.Errorf("output missing title: %q", out)
	}
	if !strings.Contains(out, "2") {
		t.Errorf("output missing message count: %q", out)
	}
}
