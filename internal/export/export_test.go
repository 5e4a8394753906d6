// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/jeranaias/tidechat/internal/model"
)

func exportConversation() *model.Conversation {
	conv := model.NewConversation("tide-small")
	conv.Append(model.NewUserMessage("what's the tide schedule?"))
	conv.Append(model.NewToolCallMessage("t1", "tide_lookup", json.RawMessage(`{"station":"NW-12"}`)))
	conv.Append(model.NewToolResultMessage("t1", json.RawMessage(`"high at 14:02"`), false, 1250))
	conv.Append(model.NewAssistantMessage("High tide is at 14:02.", "looked at station NW-12",
		&model.Usage{PromptTokens: 12, CompletionTokens: 8}, "tide-small"))
	conv.AddUsage(&model.Usage{PromptTokens: 12, CompletionTokens: 8})
	return conv
}

func TestMarkdownExporter_RendersAllRoles(t *testing.T) {
	out, err := NewMarkdownExporter(nil).Export(exportConversation())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	md := string(out)

	for _, want := range []string{
		"## User",
		"what's the tide schedule?",
		"### Tool Call: `tide_lookup`",
		`{"station":"NW-12"}`,
		"### Tool Result",
		"high at 14:02",
		"*Took 1.25s*",
		"## Assistant (tide-small)",
		"High tide is at 14:02.",
		"*Tokens: 12 prompt + 8 completion*",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}

	// Thinking excluded by default.
	if strings.Contains(md, "looked at station") {
		t.Error("thinking trace leaked into default export")
	}
}

func TestMarkdownExporter_IncludeThinking(t *testing.T) {
	opts := DefaultOptions()
	opts.IncludeThinking = true
	out, err := NewMarkdownExporter(opts).Export(exportConversation())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if !strings.Contains(string(out), "looked at station NW-12") {
		t.Error("thinking trace missing with IncludeThinking")
	}
}

func TestMarkdownExporter_ErrorMessage(t *testing.T) {
	conv := model.NewConversation("tide-small")
	conv.Append(model.NewUserMessage("hi"))
	conv.Append(model.NewErrorMessage("backend unavailable"))

	out, err := NewMarkdownExporter(nil).Export(conv)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if !strings.Contains(string(out), "> **Error**: backend unavailable") {
		t.Errorf("error message not rendered: %s", out)
	}
}

func TestMarkdownExporter_FrontmatterEscaping(t *testing.T) {
	conv := exportConversation()
	conv.SetTitle("tricky: title\nwith newline")

	out, err := NewMarkdownExporter(nil).Export(conv)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	md := string(out)
	if strings.Contains(md, "title: tricky: title\nwith newline") {
		t.Error("frontmatter title not escaped")
	}
	if !strings.Contains(md, `title: "tricky: title with newline"`) {
		t.Errorf("unexpected frontmatter: %s", md[:200])
	}
}

func TestMarkdownExporter_EmptyConversation(t *testing.T) {
	conv := model.NewConversation("tide-small")
	if _, err := NewMarkdownExporter(nil).Export(conv); err == nil {
		t.Error("expected error for empty conversation")
	}
}

func TestJSONExporter_RoundTrips(t *testing.T) {
	conv := exportConversation()
	out, err := NewJSONExporter(nil).Export(conv)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var decoded model.Conversation
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if len(decoded.Messages) != 4 {
		t.Errorf("expected 4 messages, got %d", len(decoded.Messages))
	}
	if decoded.TotalTokens != 20 {
		t.Errorf("TotalTokens = %d, want 20", decoded.TotalTokens)
	}
}

func TestExportToFile(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.OutputDir = dir

	path, err := ExportMarkdown(exportConversation(), opts)
	if err != nil {
		t.Fatalf("ExportMarkdown failed: %v", err)
	}
	if !strings.HasSuffix(path, ".md") {
		t.Errorf("unexpected extension: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("exported file unreadable: %v", err)
	}
	if !strings.Contains(string(data), "## User") {
		t.Error("exported file missing content")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"simple", "simple"},
		{"with spaces", "with_spaces"},
		{"a/b\\c:d", "a-b-c-d"},
		{"", "conversation"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
